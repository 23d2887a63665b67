package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/yurimoinhos/flowpay/internal/model"
	"github.com/yurimoinhos/flowpay/internal/service/desk"
	"github.com/yurimoinhos/flowpay/internal/util"
	"go.uber.org/zap"
)

type createSessionReq struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	ServiceType string `json:"serviceType"`
}

// emailParam reads :email, undoing percent-encoding that echo leaves in
// place when the request carries a raw path.
func emailParam(c echo.Context) string {
	raw := c.Param("email")
	if v, err := url.PathUnescape(raw); err == nil {
		raw = v
	}
	return util.NormalizeEmail(raw)
}

func queuePath(email string) string {
	return "/api/customer/" + url.PathEscape(email) + "/queue"
}

func createSessionHandler(d Desk, zl *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createSessionReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		email := util.NormalizeEmail(req.Email)
		sess, err := d.CreateSession(c.Request().Context(), desk.CreateSessionRequest{
			Name:        strings.TrimSpace(req.Name),
			Email:       email,
			ServiceType: req.ServiceType,
		})
		if err != nil {
			if sess.ID == 0 {
				return writeError(c, zl, err)
			}
			// the session exists; admission runs again on the next change
			zl.Warn("create: promotion failed", zap.Int64("session_id", sess.ID), zap.Error(err))
		}

		c.Response().Header().Set(echo.HeaderLocation, queuePath(email))
		return c.NoContent(http.StatusSeeOther)
	}
}

func finishSessionHandler(d Desk, zl *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := d.FinishActiveSession(c.Request().Context(), emailParam(c)); err != nil {
			return writeError(c, zl, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func positionHandler(d Desk, zl *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		pos, err := d.PositionOf(c.Request().Context(), emailParam(c))
		if err != nil {
			return writeError(c, zl, err)
		}
		return c.JSON(http.StatusOK, pos)
	}
}

func customerSlotsHandler(d Desk, zl *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		n, err := d.AvailableSlotsFor(c.Request().Context(), emailParam(c))
		if err != nil {
			return writeError(c, zl, err)
		}
		return c.JSON(http.StatusOK, n)
	}
}

func slotsHandler(d Desk, zl *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		st, err := serviceTypeParam(c)
		if err != nil {
			return writeError(c, zl, err)
		}
		n, err := d.CheckAvailableSlots(c.Request().Context(), st)
		if err != nil {
			return writeError(c, zl, err)
		}
		return c.JSON(http.StatusOK, n)
	}
}

func completeSessionHandler(d Desk, zl *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("sessionId"), 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request", "detail": "invalid session id"})
		}
		if _, err := d.CompleteSession(c.Request().Context(), id); err != nil {
			return writeError(c, zl, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func serviceTypeParam(c echo.Context) (model.ServiceType, error) {
	raw := c.Param("serviceType")
	st, ok := model.ParseServiceType(raw)
	if !ok {
		return "", fmt.Errorf("%w: unknown service type %q", desk.ErrValidation, raw)
	}
	return st, nil
}
