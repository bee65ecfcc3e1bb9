package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/blindfold/internal/config"
	"github.com/okian/blindfold/internal/loadgen"
)

// Default configuration constants.
const (
	defaultNumRequests = 200
	defaultUsers       = 20
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultReplayEvery = 10
	defaultTimeout     = 30 * time.Second
	defaultRunTimeout  = 10 * time.Minute
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		baseURL      = flag.String("url", "http://localhost:9080", "Base URL of the ledger API")
		numRequests  = flag.Int("requests", defaultNumRequests, "Number of advisor requests to submit")
		users        = flag.Int("users", defaultUsers, "Number of simulated user accounts")
		workers      = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		deposit      = flag.String("deposit", config.DefaultMinDeposit, "Attached deposit per request")
		replayEvery  = flag.Int("replay-every", defaultReplayEvery, "Resubmit every Nth request with the same Idempotency-Key")
		relayAddress = flag.String("relay-address", "", "Expected relay signing address")
		wait         = flag.Duration("wait", loadgen.DefaultWaitTimeout, "How long to wait for the relay")
		timeout      = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile   = flag.String("output", "", "Output file for submissions")
		logFile      = flag.String("log", "", "Log file for run output (default: loadgen_TIMESTAMP.log)")
		verbose      = flag.Bool("verbose", false, "Log every verified request")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp(os.Stdout)
		return 0
	}

	closeLog, err := loadgen.SetupLogging(*logFile)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = closeLog() }()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &loadgen.Config{
		BaseURL:      *baseURL,
		NumRequests:  *numRequests,
		Users:        *users,
		Workers:      *workers,
		Timeout:      *timeout,
		Deposit:      *deposit,
		ReplayEvery:  *replayEvery,
		WaitTimeout:  *wait,
		PollInterval: loadgen.DefaultPollInterval,
		RelayAddress: *relayAddress,
		OutputFile:   *outputFile,
		LogFile:      *logFile,
		Verbose:      *verbose,
	}

	if _, err := loadgen.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Load run failed: " + err.Error() + "\n")
		return 1
	}
	return 0
}
