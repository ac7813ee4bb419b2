package screenshot

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/sketchpilot-dev/sketchpilot/internal/config"
	"github.com/sketchpilot-dev/sketchpilot/internal/metrics"
	"github.com/sketchpilot-dev/sketchpilot/internal/transport"
	"github.com/sketchpilot-dev/sketchpilot/pkg/canvas"
	apperrors "github.com/sketchpilot-dev/sketchpilot/pkg/errors"
	"github.com/sketchpilot-dev/sketchpilot/pkg/wire"
)

// Orchestrator requests canvas snapshots from clients and matches the
// asynchronous responses back to their requests.
type Orchestrator struct {
	tr  transport.Transport
	cfg config.ScreenshotConfig
	m   *metrics.Metrics
	log logr.Logger
}

func New(tr transport.Transport, cfg config.ScreenshotConfig, m *metrics.Metrics, log logr.Logger) *Orchestrator {
	return &Orchestrator{tr: tr, cfg: cfg, m: m, log: log.WithName("screenshot")}
}

// Capture fires a screenshot request and waits for the matching response.
// maxSize of zero leaves the image size to the client. Transport errors and
// deadline misses are retried up to the configured count with a fixed delay.
func (o *Orchestrator) Capture(ctx context.Context, roomID, sessionID string, bounds *canvas.Box, maxSize int) (*wire.ScreenshotResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(o.cfg.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := o.capture(ctx, roomID, sessionID, bounds, maxSize)
		if err == nil {
			o.m.Screenshots.WithLabelValues("ok").Inc()
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		o.m.Screenshots.WithLabelValues("timeout").Inc()
		o.log.V(1).Info("screenshot attempt failed", "attempt", attempt, "error", err.Error())
	}
	return nil, apperrors.New(apperrors.ErrCodeScreenshot, "screenshot unavailable", lastErr)
}

func (o *Orchestrator) capture(ctx context.Context, roomID, sessionID string, bounds *canvas.Box, maxSize int) (*wire.ScreenshotResponse, error) {
	requestID := uuid.NewString()
	key := transport.ScreenshotKey{SessionID: sessionID, RequestID: requestID}
	ch := o.tr.Screenshots().Expect(key)

	req := wire.ScreenshotRequest{
		SessionID: sessionID,
		RequestID: requestID,
		Bounds:    bounds,
		MaxSize:   maxSize,
	}
	if err := o.tr.RequestScreenshot(ctx, roomID, req); err != nil {
		o.tr.Screenshots().Cancel(key)
		return nil, err
	}

	timer := time.NewTimer(o.cfg.WaitTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		o.tr.Screenshots().Cancel(key)
		return nil, apperrors.New(apperrors.ErrCodeScreenshot, "screenshot response deadline elapsed", nil)
	case <-ctx.Done():
		o.tr.Screenshots().Cancel(key)
		return nil, ctx.Err()
	}
}
