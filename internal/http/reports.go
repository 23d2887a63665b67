package http

import (
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/yurimoinhos/flowpay/internal/model"
	"github.com/yurimoinhos/flowpay/internal/repository"
	"github.com/yurimoinhos/flowpay/internal/util"
	"go.uber.org/zap"
)

func listSessionEventsHandler(chRepo repository.CHSessionEventsRepository, zl *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		f := repository.SessionEventFilter{
			Email:  util.NormalizeEmail(c.QueryParam("email")),
			Limit:  limit,
			Offset: offset,
		}
		if raw := strings.TrimSpace(c.QueryParam("serviceType")); raw != "" {
			if st, ok := model.ParseServiceType(raw); ok {
				f.ServiceType = st
			}
		}
		if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
			if st := model.SessionStatus(strings.ToUpper(raw)); st.Valid() {
				f.Status = st
			}
		}

		events, err := chRepo.List(c.Request().Context(), f)
		if err != nil {
			zl.Error("clickhouse list failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(events),
			"results": events,
		})
	}
}
