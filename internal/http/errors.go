package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/yurimoinhos/flowpay/internal/service/desk"
	"go.uber.org/zap"
)

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, desk.ErrValidation):
		return http.StatusBadRequest, "bad request"
	case errors.Is(err, desk.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, desk.ErrNotFound):
		return http.StatusNotFound, "not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeError maps desk errors onto status codes. Store failures are logged
// and never leak their message.
func writeError(c echo.Context, zl *zap.Logger, err error) error {
	code, title := statusFor(err)
	if code == http.StatusInternalServerError {
		zl.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.JSON(code, map[string]string{"error": title})
	}
	return c.JSON(code, map[string]string{"error": title, "detail": err.Error()})
}
