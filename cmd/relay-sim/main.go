// Command relay-sim drives a BlindFold ledger as its relay: it answers
// pending requests deterministically and records signed verifications.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/blindfold/internal/relaysim"
	"github.com/okian/blindfold/pkg/logger"
)

const (
	keyEnvVar   = "BLINDFOLD_RELAY_KEY"
	tokenEnvVar = "BLINDFOLD_RELAY_TOKEN"
)

type runFlags struct {
	url      string
	relayID  string
	key      string
	token    string
	model    string
	interval time.Duration
	workers  int
	once     bool
	logLevel string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// newRootCmd wires the CLI. The root command runs the relay; keygen and
// verify are helpers for operators.
func newRootCmd(out io.Writer) *cobra.Command {
	var f runFlags
	root := &cobra.Command{
		Use:           "relay-sim",
		Short:         "Reference relay for the BlindFold ledger",
		Long:          "Poll pending advisory requests, answer them from the risk engine, sign request/response hashes and store verifications.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRelay(cmd.Context(), f, out)
		},
	}
	root.SetOut(out)

	flags := root.Flags()
	flags.StringVar(&f.url, "url", "http://localhost:9080", "Ledger API base URL")
	flags.StringVar(&f.relayID, "relay-id", "relay.blindfold.near", "Relay account sent as X-Caller-ID")
	flags.StringVar(&f.key, "key", "", "Hex secp256k1 signing key (default $"+keyEnvVar+", else a fresh key)")
	flags.StringVar(&f.token, "token", "", "Bearer secret for the relay account (default $"+tokenEnvVar+")")
	flags.StringVar(&f.model, "model", relaysim.DefaultModel, "Model name recorded in attestations")
	flags.DurationVar(&f.interval, "interval", 5*time.Second, "Poll interval")
	flags.IntVar(&f.workers, "workers", 4, "Requests processed concurrently per poll")
	flags.BoolVar(&f.once, "once", false, "Poll once and exit")
	flags.StringVar(&f.logLevel, "log-level", "info", "Log level: debug|info|warn|error")

	root.AddCommand(newKeygenCmd(out), newVerifyCmd(out))
	return root
}

func runRelay(ctx context.Context, f runFlags, out io.Writer) error {
	if err := logger.Init(logger.WithOutput(out)); err != nil {
		return err
	}
	if err := logger.SetLevelString(f.logLevel); err != nil {
		return err
	}
	log := logger.Named("relay")

	signer, err := loadSigner(f.key)
	if err != nil {
		return err
	}
	token := f.token
	if token == "" {
		token = os.Getenv(tokenEnvVar)
	}
	if token == "" {
		log.Warn(ctx, "no relay token set; the ledger will refuse privileged calls")
	}
	relay := relaysim.New(
		relaysim.NewClient(f.url, f.relayID, token, nil),
		signer,
		relaysim.WithAdvisor(relaysim.NewAdvisor(f.model)),
		relaysim.WithInterval(f.interval),
		relaysim.WithWorkers(f.workers),
		relaysim.WithLogger(log),
	)

	if f.once {
		if err := relay.Poll(ctx); err != nil {
			return err
		}
		s := relay.Stats()
		log.Info(ctx, "poll finished",
			logger.Uint64("completed", s.Completed),
			logger.Uint64("failed", s.Failed),
			logger.Uint64("skipped", s.Skipped),
		)
		return nil
	}
	return relay.Run(ctx)
}

func loadSigner(key string) (*relaysim.Signer, error) {
	if key == "" {
		key = os.Getenv(keyEnvVar)
	}
	if key == "" {
		return relaysim.GenerateSigner()
	}
	return relaysim.NewSigner(key)
}

func newKeygenCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key and print it with its address",
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := relaysim.GenerateSigner()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]string{"private_key": s.PrivateKeyHex(), "address": s.Address()})
		},
	}
}

func newVerifyCmd(out io.Writer) *cobra.Command {
	var requestHash, responseHash, signature, address string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a stored verification signature",
		RunE: func(_ *cobra.Command, _ []string) error {
			text := relaysim.SignedText(requestHash, responseHash)
			if err := relaysim.VerifySignature(text, signature, address); err != nil {
				return fmt.Errorf("invalid signature: %w", err)
			}
			_, err := fmt.Fprintln(out, "signature valid for", address)
			return err
		},
	}
	cmd.Flags().StringVar(&requestHash, "request-hash", "", "Request hash")
	cmd.Flags().StringVar(&responseHash, "response-hash", "", "Response hash")
	cmd.Flags().StringVar(&signature, "signature", "", "0x-prefixed signature")
	cmd.Flags().StringVar(&address, "address", "", "Signing address")
	for _, name := range []string{"request-hash", "response-hash", "signature", "address"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
