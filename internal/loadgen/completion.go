package loadgen

import (
	"context"
	"sync"
	"time"

	"github.com/gammazero/workerpool"

	"github.com/okian/blindfold/internal/domain/model"
	"github.com/okian/blindfold/pkg/logger"
)

// waitForCompletion polls every accepted request until it is terminal or
// config.WaitTimeout passes. Requests still open at the deadline count as
// unfinished.
func waitForCompletion(ctx context.Context, config *Config, client *HTTPClient, subs []*Submission, stats *Stats) error {
	open := make([]*Submission, 0, len(subs))
	for _, s := range subs {
		if s.Accepted {
			open = append(open, s)
		}
	}
	logger.Get().Info(ctx, "waiting for the relay", logger.Int("open", len(open)), logger.String("timeout", config.WaitTimeout.String()))

	deadline := time.Now().Add(config.WaitTimeout)
	for len(open) > 0 {
		open = pollOnce(ctx, config.Workers, client, open)
		if len(open) == 0 || time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(config.PollInterval):
		}
	}

	for _, s := range subs {
		switch {
		case !s.Accepted:
		case s.Status == model.StatusCompleted:
			stats.Completed++
		case s.Status == model.StatusFailed:
			stats.Failed++
		default:
			stats.Unfinished++
		}
	}

	logger.Get().Info(ctx, "relay round finished",
		logger.Int("completed", stats.Completed),
		logger.Int("failed", stats.Failed),
		logger.Int("unfinished", stats.Unfinished))

	if stats.Unfinished > 0 {
		return ErrUnfinished
	}
	return nil
}

// pollOnce refreshes every open submission and returns those still open.
func pollOnce(ctx context.Context, workers int, client *HTTPClient, open []*Submission) []*Submission {
	var mu sync.Mutex
	still := make([]*Submission, 0, len(open))

	wp := workerpool.New(workers)
	for _, s := range open {
		wp.Submit(func() {
			req, err := client.Request(ctx, s.RequestID)
			if err == nil {
				s.request = req
				s.Status = req.Status
			} else {
				logger.Get().Debug(ctx, "request poll failed", logger.Uint64("request_id", s.RequestID), logger.Error(err))
			}
			if err != nil || !req.Status.Terminal() {
				mu.Lock()
				still = append(still, s)
				mu.Unlock()
			}
		})
	}
	wp.StopWait()
	return still
}
