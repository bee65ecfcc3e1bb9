package relaysim

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/okian/blindfold/internal/domain/model"
	"github.com/okian/blindfold/pkg/logger"
)

const (
	defaultInterval = 5 * time.Second
	defaultWorkers  = 4
)

// Ledger is the part of the ledger API the relay drives.
type Ledger interface {
	PendingRequests(ctx context.Context) ([]model.AdvisorRequest, error)
	MarkProcessing(ctx context.Context, id uint64) error
	MarkFailed(ctx context.Context, id uint64, reason string) error
	SubmitVerification(ctx context.Context, id uint64, v Verification) (uint64, error)
}

// Stats counts what the relay has done since it was created.
type Stats struct {
	Polls     uint64 `json:"polls"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Skipped   uint64 `json:"skipped"`
}

// Relay processes pending requests.
type Relay struct {
	ledger   Ledger
	signer   *Signer
	advisor  *Advisor
	interval time.Duration
	workers  int
	logger   logger.Logger

	polls, completed, failed, skipped atomic.Uint64
}

// Option configures a Relay.
type Option func(*Relay)

// WithInterval sets the poll interval for Run.
func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithWorkers sets how many requests are processed concurrently per poll.
func WithWorkers(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithAdvisor replaces the default advisor.
func WithAdvisor(a *Advisor) Option {
	return func(r *Relay) {
		if a != nil {
			r.advisor = a
		}
	}
}

// WithLogger sets the relay logger.
func WithLogger(log logger.Logger) Option {
	return func(r *Relay) {
		if log != nil {
			r.logger = log
		}
	}
}

// New creates a relay that signs with signer.
func New(ledger Ledger, signer *Signer, opts ...Option) *Relay {
	r := &Relay{
		ledger:   ledger,
		signer:   signer,
		advisor:  NewAdvisor(""),
		interval: defaultInterval,
		workers:  defaultWorkers,
		logger:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats returns a snapshot of the relay counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Polls:     r.polls.Load(),
		Completed: r.completed.Load(),
		Failed:    r.failed.Load(),
		Skipped:   r.skipped.Load(),
	}
}

// Run polls until ctx is done. A poll that overruns the interval delays the
// next one instead of overlapping it.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info(ctx, "relay started",
		logger.String("signing_address", r.signer.Address()),
		logger.String("interval", r.interval.String()),
		logger.Int("workers", r.workers),
	)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Poll(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn(ctx, "poll failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			r.logger.Info(ctx, "relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll processes every currently pending request once.
func (r *Relay) Poll(ctx context.Context) error {
	r.polls.Add(1)
	pending, err := r.ledger.PendingRequests(ctx)
	if err != nil {
		return errors.Wrap(err, "polling pending requests")
	}
	if len(pending) == 0 {
		return nil
	}
	r.logger.Info(ctx, "found pending requests", logger.Int("count", len(pending)))

	wp := workerpool.New(r.workers)
	for _, req := range pending {
		wp.Submit(func() {
			r.process(ctx, req)
		})
	}
	wp.StopWait()
	return nil
}

func (r *Relay) process(ctx context.Context, req model.AdvisorRequest) { //nolint:gocritic // hugeParam
	log := r.logger.With(logger.Uint64("request_id", req.ID), logger.String("user", req.User))

	if err := r.ledger.MarkProcessing(ctx, req.ID); err != nil {
		if IsConflict(err) {
			r.skipped.Add(1)
			log.Debug(ctx, "request already taken")
			return
		}
		r.failed.Add(1)
		log.Warn(ctx, "mark processing failed", logger.Error(err))
		return
	}

	v, err := r.Attest(req)
	if err == nil {
		var vid uint64
		vid, err = r.ledger.SubmitVerification(ctx, req.ID, v)
		if err == nil {
			r.completed.Add(1)
			log.Info(ctx, "verification stored",
				logger.Uint64("verification_id", vid),
				logger.String("request_hash", v.RequestHash),
				logger.String("response_hash", v.ResponseHash),
			)
			return
		}
	}

	r.failed.Add(1)
	log.Error(ctx, "processing failed", logger.Error(err))
	if markErr := r.ledger.MarkFailed(ctx, req.ID, err.Error()); markErr != nil {
		log.Error(ctx, "mark failed failed", logger.Error(markErr))
	}
}

// Attest builds the signed verification for req and checks the signature
// recovers to the signer before returning it.
func (r *Relay) Attest(req model.AdvisorRequest) (Verification, error) { //nolint:gocritic // hugeParam
	body, err := r.advisor.RequestBody(req)
	if err != nil {
		return Verification{}, err
	}
	answer := r.advisor.Answer(req)
	requestHash := HashHex(body)
	responseHash := HashHex([]byte(answer))

	signature, err := r.signer.Sign(requestHash, responseHash)
	if err != nil {
		return Verification{}, err
	}
	if err := VerifySignature(SignedText(requestHash, responseHash), signature, r.signer.Address()); err != nil {
		return Verification{}, errors.Wrap(err, "self-check")
	}

	attestation, err := json.Marshal(map[string]string{
		"chat_id": uuid.NewString(),
		"model":   r.advisor.Model(),
	})
	if err != nil {
		return Verification{}, errors.Wrap(err, "encoding attestation")
	}

	return Verification{
		RequestHash:    requestHash,
		ResponseHash:   responseHash,
		Signature:      signature,
		SigningAddress: r.signer.Address(),
		SigningAlgo:    SigningAlgo,
		TEEAttestation: string(attestation),
		ResponseText:   answer,
	}, nil
}
