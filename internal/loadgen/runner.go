// Package loadgen drives the ledger API end to end: it submits generated
// advisor requests, waits for a relay to answer them and checks every stored
// verification.
package loadgen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/blindfold/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	outputPermission    = 0600
)

// Run executes the complete load run and returns its statistics.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{
		StartTime: time.Now(),
	}
	applyDefaults(config)

	logger.Get().Info(ctx, "starting ledger load run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("requests", config.NumRequests),
		logger.Int("users", config.Users),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Int("replayEvery", config.ReplayEvery),
		logger.String("relayAddress", config.RelayAddress),
		logger.Bool("verbose", config.Verbose))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}

	// Step 2: Generate requests
	subs, err := generateSubmissions(ctx, config, stats)
	if err != nil {
		return stats, fmt.Errorf("request generation failed: %w", err)
	}

	// Step 3: Submit concurrently
	if err := submitRequests(ctx, config, client, subs, stats); err != nil {
		return finish(ctx, config, subs, stats, fmt.Errorf("request submission failed: %w", err))
	}

	// Step 4: Wait for the relay
	if err := waitForCompletion(ctx, config, client, subs, stats); err != nil {
		return finish(ctx, config, subs, stats, fmt.Errorf("waiting for completion failed: %w", err))
	}

	// Step 5: Verify signatures and ledger totals
	if err := verifyResults(ctx, config, client, subs, stats); err != nil {
		return finish(ctx, config, subs, stats, fmt.Errorf("result verification failed: %w", err))
	}

	return finish(ctx, config, subs, stats, nil)
}

func applyDefaults(config *Config) {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.Users < 1 {
		config.Users = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = DefaultWaitTimeout
	}
}

// finish saves the submissions, logs the final statistics and passes runErr through.
func finish(ctx context.Context, config *Config, subs []*Submission, stats *Stats, runErr error) (*Stats, error) {
	if err := saveSubmissionsToFile(ctx, config, subs); err != nil {
		logger.Get().Warn(ctx, "failed to save submissions to file", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	if runErr == nil {
		logger.Get().Info(ctx, "load run completed successfully")
	}
	return stats, runErr
}

// saveSubmissionsToFile writes the submissions as a JSON array. An empty
// OutputFile skips saving.
func saveSubmissionsToFile(ctx context.Context, config *Config, subs []*Submission) error {
	if config.OutputFile == "" || len(subs) == 0 {
		return nil
	}

	dir := filepath.Dir(config.OutputFile)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	raw, err := marshalJSON(subs)
	if err != nil {
		return fmt.Errorf("failed to marshal submissions: %w", err)
	}
	if err := os.WriteFile(config.OutputFile, raw, outputPermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Get().Info(ctx, "submissions saved to file", logger.String("filename", config.OutputFile))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(stats *Stats) {
	var acceptRate, requestsPerSecond float64

	if stats.RequestsSubmitted > 0 {
		acceptRate = float64(stats.RequestsAccepted) / float64(stats.RequestsSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		requestsPerSecond = float64(stats.RequestsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("requestsGenerated", stats.RequestsGenerated),
		logger.Int("requestsSubmitted", stats.RequestsSubmitted),
		logger.Int("requestsAccepted", stats.RequestsAccepted),
		logger.Int("requestsRejected", stats.RequestsRejected),
		logger.Int("replaysSent", stats.ReplaysSent),
		logger.Int("replayMismatches", stats.ReplayMismatches),
		logger.Int("completed", stats.Completed),
		logger.Int("failed", stats.Failed),
		logger.Int("unfinished", stats.Unfinished),
		logger.Int("verified", stats.Verified),
		logger.Int("verificationErrors", stats.VerificationErrors),
		logger.Uint64("ledgerRequests", stats.LedgerRequests),
		logger.Uint64("ledgerHeight", stats.LedgerHeight),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("requestsPerSecond", requestsPerSecond))
}
