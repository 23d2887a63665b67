package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

const OperatorKeyHeader = "X-Operator-Key"

// OperatorKeyMiddleware guards attendant routes. The key comes from the
// X-Operator-Key header or, for EventSource clients that cannot set headers,
// the operator_key query parameter. With no keys configured every request passes.
func OperatorKeyMiddleware(keys []string) echo.MiddlewareFunc {
	var allowed [][]byte
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			allowed = append(allowed, []byte(k))
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(allowed) == 0 {
				return next(c)
			}
			key := strings.TrimSpace(c.Request().Header.Get(OperatorKeyHeader))
			if key == "" {
				key = strings.TrimSpace(c.QueryParam("operator_key"))
			}
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing operator key"})
			}
			for _, k := range allowed {
				if subtle.ConstantTimeCompare(k, []byte(key)) == 1 {
					return next(c)
				}
			}
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid operator key"})
		}
	}
}
