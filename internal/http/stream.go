package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/yurimoinhos/flowpay/internal/live"
	"github.com/yurimoinhos/flowpay/internal/metrics"
	"go.uber.org/zap"
)

const (
	eventQueueUpdate      = "queue-update"
	eventInProgressUpdate = "in-progress-update"
	eventMetricsUpdate    = "metrics-update"

	keepAliveEvery = 15 * time.Second
)

func openStream(c echo.Context) {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()
}

func writeEvent(w *echo.Response, event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// pipe forwards samples as SSE events until the channel closes or the
// client goes away. Sampling errors are logged and the stream carries on.
func pipe[T any](c echo.Context, zl *zap.Logger, view, event string, ch <-chan live.Sample[T]) error {
	g := metrics.LiveSubscribers.WithLabelValues(view)
	g.Inc()
	defer g.Dec()

	openStream(c)

	ping := time.NewTicker(keepAliveEvery)
	defer ping.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ping.C:
			if _, err := fmt.Fprint(c.Response(), ": ping\n\n"); err != nil {
				return nil
			}
			c.Response().Flush()
		case s, ok := <-ch:
			if !ok {
				return nil
			}
			if s.Err != nil {
				zl.Warn("stream: sample failed", zap.String("view", view), zap.Error(s.Err))
				continue
			}
			if err := writeEvent(c.Response(), event, s.Value); err != nil {
				zl.Debug("stream: write failed", zap.String("view", view), zap.Error(err))
				return nil
			}
		}
	}
}

func queueStreamHandler(d Desk, zl *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ch, err := d.WatchQueuePosition(c.Request().Context(), emailParam(c))
		if err != nil {
			return writeError(c, zl, err)
		}
		return pipe(c, zl, "queue", eventQueueUpdate, ch)
	}
}

func inProgressStreamHandler(d Desk, zl *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		st, err := serviceTypeParam(c)
		if err != nil {
			return writeError(c, zl, err)
		}
		ch, err := d.WatchInProgress(c.Request().Context(), st)
		if err != nil {
			return writeError(c, zl, err)
		}
		return pipe(c, zl, "in_progress", eventInProgressUpdate, ch)
	}
}

func metricsStreamHandler(d Desk, zl *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ch, err := d.WatchMetrics(c.Request().Context())
		if err != nil {
			return writeError(c, zl, err)
		}
		return pipe(c, zl, "metrics", eventMetricsUpdate, ch)
	}
}
