package loadgen

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/blindfold/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends log output to both the console and a file. If logFile is
// empty, a timestamped filename is generated. The returned func closes the file.
func SetupLogging(logFile string) (func() error, error) {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "loadgen_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file.Close, nil
}

// ShowHelp prints usage information for the load generator.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `BlindFold Ledger Load Generator
===============================

Submits generated advisor requests to the ledger API, waits for a relay to
answer them and checks every stored verification signature.

Usage:
  go run ./cmd/load-gen [options]

Options:
  -url string
        Base URL of the ledger API (default "http://localhost:9080")
  -requests int
        Number of advisor requests to submit (default 200)
  -users int
        Number of simulated user accounts (default 20)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -deposit string
        Attached deposit per request (default: the service minimum)
  -replay-every int
        Resubmit every Nth request with the same Idempotency-Key (default 10, 0 disables)
  -relay-address string
        Expected relay signing address (default: accept any)
  -wait duration
        How long to wait for the relay (default 2m)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Output file for submissions (default: none)
  -log string
        Log file for run output (default: loadgen_TIMESTAMP.log)
  -verbose
        Log every verified request
  -help
        Show this help message

Examples:
  # Run against a local ledger with relay-sim running
  go run ./cmd/load-gen -requests 500 -relay-address 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266
`)
}
