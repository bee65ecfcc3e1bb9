package relaysim_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/okian/blindfold/internal/adapters/http/api"
	service "github.com/okian/blindfold/internal/app"
	"github.com/okian/blindfold/internal/domain/ledger"
	"github.com/okian/blindfold/internal/domain/model"
	"github.com/okian/blindfold/internal/domain/types"
	"github.com/okian/blindfold/internal/relaysim"
	"github.com/okian/blindfold/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

const relayToken = "relay-secret-0123456789"

var (
	relayID = types.MustAccountID("relay.near")
	ownerID = types.MustAccountID("owner.near")
	alice   = types.MustAccountID("alice.near")
)

func startLedger(t *testing.T) (*service.Service, *httptest.Server) {
	svc := service.New(service.WithRelay(relayID), service.WithMinDeposit(sdkmath.NewUint(1)))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Initialize(context.Background(), ownerID); err != nil {
		t.Fatalf("init: %v", err)
	}
	creds := api.WithCredentials(api.Credential{Account: relayID, Token: relayToken})
	srv := httptest.NewServer(api.NewServer(svc, svc, creds).Router())
	return svc, srv
}

func TestRelayEndToEnd(t *testing.T) {
	Convey("Given a ledger with pending requests and a relay", t, func() {
		svc, srv := startLedger(t)
		Reset(func() {
			srv.Close()
			svc.Stop()
		})
		ctx := context.Background()

		portfolio := `{"holdings":[{"token":"NEAR","balance":"60"},{"token":"USDC","balance":"40"}]}`
		for i := 0; i < 3; i++ {
			_, _, err := svc.SubmitRequest(ctx, alice, ledger.RequestInput{Question: "Rebalance?", PortfolioData: portfolio, Deposit: "1"}, "")
			So(err, ShouldBeNil)
		}

		signer, err := relaysim.GenerateSigner()
		So(err, ShouldBeNil)
		client := relaysim.NewClient(srv.URL, relayID.String(), relayToken, srv.Client())
		relay := relaysim.New(client, signer, relaysim.WithWorkers(2))

		Convey("When the relay polls once", func() {
			So(relay.Poll(ctx), ShouldBeNil)

			Convey("Then every request is completed with a verifiable signature", func() {
				So(relay.Stats().Completed, ShouldEqual, 3)
				pending, err := svc.PendingRequests(ctx)
				So(err, ShouldBeNil)
				So(pending, ShouldBeEmpty)

				for id := uint64(0); id < 3; id++ {
					r, err := svc.Request(ctx, id)
					So(err, ShouldBeNil)
					So(r.Status, ShouldEqual, model.StatusCompleted)

					v, err := svc.VerificationByRequest(ctx, id)
					So(err, ShouldBeNil)
					So(v.SigningAddress, ShouldEqual, signer.Address())
					So(v.SigningAlgo, ShouldEqual, relaysim.SigningAlgo)
					So(v.ResponseHash, ShouldEqual, relaysim.HashHex([]byte(v.ResponseText)))
					So(relaysim.VerifySignature(relaysim.SignedText(v.RequestHash, v.ResponseHash), v.Signature, v.SigningAddress), ShouldBeNil)
					So(v.ResponseText, ShouldContainSubstring, "Risk score")

					var att map[string]string
					So(json.Unmarshal([]byte(v.TEEAttestation), &att), ShouldBeNil)
					So(att["chat_id"], ShouldNotBeEmpty)
					So(att["model"], ShouldEqual, relaysim.DefaultModel)
				}
			})

			Convey("Then a second poll has nothing to do", func() {
				So(relay.Poll(ctx), ShouldBeNil)
				So(relay.Stats().Completed, ShouldEqual, 3)
				So(relay.Stats().Polls, ShouldEqual, 2)
			})
		})

		Convey("When an unauthorized account runs the relay", func() {
			rogue := relaysim.New(relaysim.NewClient(srv.URL, alice.String(), "", srv.Client()), signer)
			So(rogue.Poll(ctx), ShouldBeNil)

			Convey("Then nothing changes", func() {
				So(rogue.Stats().Failed, ShouldEqual, 3)
				pending, err := svc.PendingRequests(ctx)
				So(err, ShouldBeNil)
				So(pending, ShouldHaveLength, 3)
			})
		})

		Convey("When a client claims the relay id without its token", func() {
			spoof := relaysim.New(relaysim.NewClient(srv.URL, relayID.String(), "guessed-token-000000", srv.Client()), signer)
			So(spoof.Poll(ctx), ShouldBeNil)

			Convey("Then every claim is refused", func() {
				So(spoof.Stats().Failed, ShouldEqual, 3)
				So(spoof.Stats().Completed, ShouldEqual, 0)
				stats, err := svc.LedgerStats(ctx)
				So(err, ShouldBeNil)
				So(stats.TotalVerifications, ShouldEqual, 0)
			})
		})

		Convey("When Run is cancelled", func() {
			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- relaysim.New(client, signer, relaysim.WithInterval(10*time.Millisecond)).Run(runCtx) }()
			time.Sleep(50 * time.Millisecond)
			cancel()

			Convey("Then it returns cleanly", func() {
				select {
				case err := <-done:
					So(err, ShouldBeNil)
				case <-time.After(2 * time.Second):
					So(errors.New("relay did not stop"), ShouldBeNil)
				}
			})
		})
	})
}

type failingLedger struct {
	requests []model.AdvisorRequest
	submit   error
	failed   map[uint64]string
}

func (f *failingLedger) PendingRequests(context.Context) ([]model.AdvisorRequest, error) {
	return f.requests, nil
}

func (f *failingLedger) MarkProcessing(context.Context, uint64) error { return nil }

func (f *failingLedger) MarkFailed(_ context.Context, id uint64, reason string) error {
	f.failed[id] = reason
	return nil
}

func (f *failingLedger) SubmitVerification(context.Context, uint64, relaysim.Verification) (uint64, error) {
	return 0, f.submit
}

func TestRelayReportsFailures(t *testing.T) {
	Convey("Given a ledger that rejects verifications", t, func() {
		fake := &failingLedger{
			requests: []model.AdvisorRequest{{ID: 7, User: "alice.near", Question: "q"}},
			submit:   errors.New("storage offline"),
			failed:   map[uint64]string{},
		}
		signer, err := relaysim.GenerateSigner()
		So(err, ShouldBeNil)
		relay := relaysim.New(fake, signer, relaysim.WithWorkers(1))

		Convey("When polling", func() {
			So(relay.Poll(context.Background()), ShouldBeNil)

			Convey("Then the request is marked failed with the reason", func() {
				So(fake.failed[7], ShouldContainSubstring, "storage offline")
				So(relay.Stats().Failed, ShouldEqual, 1)
			})
		})
	})
}

func TestClientErrors(t *testing.T) {
	Convey("Given an API returning a ledger error", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"code":"invalid_transition","message":"request 1 is Completed"}`))
		}))
		Reset(srv.Close)
		client := relaysim.NewClient(srv.URL+"/", "relay.near", "", nil)

		Convey("When marking processing", func() {
			err := client.MarkProcessing(context.Background(), 1)

			Convey("Then the error is decoded", func() {
				var apiErr *relaysim.APIError
				So(errors.As(err, &apiErr), ShouldBeTrue)
				So(apiErr.Code, ShouldEqual, "invalid_transition")
				So(relaysim.IsConflict(err), ShouldBeTrue)
				So(strings.Contains(err.Error(), "409"), ShouldBeTrue)
			})
		})
	})
}

func TestAdvisorIsDeterministic(t *testing.T) {
	Convey("Given the same request twice", t, func() {
		a := relaysim.NewAdvisor("")
		req := model.AdvisorRequest{ID: 1, Question: "q", PortfolioData: `{"holdings":[{"token":"NEAR","balance":"1"}]}`}
		b1, err1 := a.RequestBody(req)
		b2, err2 := a.RequestBody(req)

		So(err1, ShouldBeNil)
		So(err2, ShouldBeNil)
		So(string(b1), ShouldEqual, string(b2))
		So(a.Answer(req), ShouldEqual, a.Answer(req))
		So(a.Answer(req), ShouldContainSubstring, "NEAR")
	})
}
