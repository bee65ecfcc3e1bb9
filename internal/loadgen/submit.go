package loadgen

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/blindfold/pkg/logger"
)

type submitCounters struct {
	submitted, accepted, rejected, replays, mismatches atomic.Int64
}

// submitRequests posts every submission using config.Workers workers. Every
// ReplayEvery-th accepted submission is posted again with the same key and
// must come back as a replay of the same request id.
func submitRequests(ctx context.Context, config *Config, client *HTTPClient, subs []*Submission, stats *Stats) error {
	logger.Get().Info(ctx, "submitting requests",
		logger.Int("count", len(subs)),
		logger.Int("workers", config.Workers))

	var counters submitCounters
	jobs := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for w := 0; w < config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				submitOne(ctx, config, client, i, subs[i], &counters)
			}
		}()
	}

	done := make(chan struct{})
	go reportProgress(ctx, done, len(subs), &counters)

feed:
	for i := range subs {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	close(done)

	stats.RequestsSubmitted = int(counters.submitted.Load())
	stats.RequestsAccepted = int(counters.accepted.Load())
	stats.RequestsRejected = int(counters.rejected.Load())
	stats.ReplaysSent = int(counters.replays.Load())
	stats.ReplayMismatches = int(counters.mismatches.Load())

	logger.Get().Info(ctx, "submission finished",
		logger.Int("submitted", stats.RequestsSubmitted),
		logger.Int("accepted", stats.RequestsAccepted),
		logger.Int("rejected", stats.RequestsRejected),
		logger.Int("replays", stats.ReplaysSent))

	if err := ctx.Err(); err != nil {
		return err
	}
	if stats.RequestsAccepted == 0 {
		return ErrNothingAccepted
	}
	if stats.ReplayMismatches > 0 {
		return ErrReplayMismatch
	}
	return nil
}

func submitOne(ctx context.Context, config *Config, client *HTTPClient, index int, s *Submission, counters *submitCounters) {
	counters.submitted.Add(1)
	res, err := client.Submit(ctx, s, config.Deposit)
	if err != nil {
		counters.rejected.Add(1)
		s.Error = err.Error()
		logger.Get().Warn(ctx, "request rejected", logger.String("user", s.User), logger.Error(err))
		return
	}
	counters.accepted.Add(1)
	s.Accepted = true
	s.RequestID = res.RequestID

	if config.ReplayEvery <= 0 || (index+1)%config.ReplayEvery != 0 {
		return
	}
	counters.replays.Add(1)
	again, err := client.Submit(ctx, s, config.Deposit)
	if err != nil || !again.Replayed || again.RequestID != s.RequestID {
		counters.mismatches.Add(1)
		logger.Get().Error(ctx, "idempotent replay mismatch",
			logger.Uint64("request_id", s.RequestID),
			logger.Uint64("replay_id", again.RequestID),
			logger.Bool("replayed", again.Replayed),
			logger.Any("error", err))
	}
}

func reportProgress(ctx context.Context, done <-chan struct{}, total int, counters *submitCounters) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			logger.Get().Info(ctx, "submission progress",
				logger.Int("submitted", int(counters.submitted.Load())),
				logger.Int("total", total),
				logger.Int("accepted", int(counters.accepted.Load())))
		}
	}
}
