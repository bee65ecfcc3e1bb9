package worker

import (
	"context"

	"github.com/okian/blindfold/pkg/logger"
)

// LogHandler writes one line per event.
func LogHandler(log logger.Logger) Handler {
	return HandlerFunc(func(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam
		fields := []logger.Field{
			logger.String("kind", string(e.Kind)),
			logger.Uint64("height", e.Height),
		}
		if e.RequestID != nil {
			fields = append(fields, logger.Uint64("request_id", *e.RequestID))
		}
		if e.VerificationID != nil {
			fields = append(fields, logger.Uint64("verification_id", *e.VerificationID))
		}
		if e.User != "" {
			fields = append(fields, logger.String("user", e.User))
		}
		if e.Reason != "" {
			fields = append(fields, logger.String("reason", e.Reason))
		}
		log.Info(ctx, "ledger event", fields...)
		return nil
	})
}
