package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/okian/blindfold/internal/domain/model"
	"github.com/okian/blindfold/internal/relaysim"
	"github.com/okian/blindfold/pkg/logger"
)

// verifyResults checks every completed request's verification and the ledger
// totals.
func verifyResults(ctx context.Context, config *Config, client *HTTPClient, subs []*Submission, stats *Stats) error {
	logger.Get().Info(ctx, "verifying results")

	for _, s := range subs {
		if s.Status != model.StatusCompleted {
			continue
		}
		v, err := client.Verification(ctx, s.RequestID)
		if err == nil {
			err = checkVerification(s.request, v, config.RelayAddress)
		}
		if err != nil {
			stats.VerificationErrors++
			s.Error = err.Error()
			logger.Get().Error(ctx, "verification rejected", logger.Uint64("request_id", s.RequestID), logger.Error(err))
			continue
		}
		s.VerificationID = v.ID
		stats.Verified++
		if config.Verbose {
			logger.Get().Info(ctx, "verification ok",
				logger.Uint64("request_id", s.RequestID),
				logger.Uint64("verification_id", v.ID),
				logger.String("signing_address", v.SigningAddress))
		}
	}

	ledgerStats, err := client.LedgerStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch ledger stats: %w", err)
	}
	stats.LedgerRequests = ledgerStats.TotalRequests
	stats.LedgerHeight = ledgerStats.LedgerHeight

	if stats.VerificationErrors > 0 {
		return fmt.Errorf("%w: %d of %d", ErrVerification, stats.VerificationErrors, stats.Completed)
	}
	if ledgerStats.TotalRequests < uint64(stats.RequestsAccepted) || ledgerStats.TotalVerifications < uint64(stats.Verified) {
		return fmt.Errorf("%w: ledger has %d requests and %d verifications", ErrLedgerTotals,
			ledgerStats.TotalRequests, ledgerStats.TotalVerifications)
	}
	logger.Get().Info(ctx, "result verification completed", logger.Int("verified", stats.Verified))
	return nil
}

// checkVerification recomputes both hashes for req and checks the signature
// recovers to the signing address. A non-empty relayAddress must match it.
func checkVerification(req model.AdvisorRequest, v model.Verification, relayAddress string) error { //nolint:gocritic // hugeParam
	if v.RequestID != req.ID {
		return fmt.Errorf("verification is for request %d", v.RequestID)
	}
	if relayAddress != "" && !strings.EqualFold(relayAddress, v.SigningAddress) {
		return fmt.Errorf("signed by %s, want %s", v.SigningAddress, relayAddress)
	}
	if got := relaysim.HashHex([]byte(v.ResponseText)); got != v.ResponseHash {
		return fmt.Errorf("response hash %s does not match response text (%s)", v.ResponseHash, got)
	}

	var att struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal([]byte(v.TEEAttestation), &att); err != nil {
		return fmt.Errorf("attestation: %w", err)
	}
	body, err := relaysim.NewAdvisor(att.Model).RequestBody(req)
	if err != nil {
		return err
	}
	if got := relaysim.HashHex(body); got != v.RequestHash {
		return fmt.Errorf("request hash %s does not match request (%s)", v.RequestHash, got)
	}

	return relaysim.VerifySignature(relaysim.SignedText(v.RequestHash, v.ResponseHash), v.Signature, v.SigningAddress)
}
