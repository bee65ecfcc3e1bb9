package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/blindfold/internal/adapters/http/api"
	service "github.com/okian/blindfold/internal/app"
	"github.com/okian/blindfold/internal/domain/ledger"
	"github.com/okian/blindfold/internal/domain/types"
	"github.com/okian/blindfold/internal/relaysim"
	"github.com/okian/blindfold/pkg/logger"
)

func TestKeygenAndVerify(t *testing.T) {
	convey.Convey("Given the keygen command", t, func() {
		var out bytes.Buffer
		cmd := newRootCmd(&out)
		cmd.SetArgs([]string{"keygen"})
		convey.So(cmd.Execute(), convey.ShouldBeNil)

		var key map[string]string
		convey.So(json.Unmarshal(out.Bytes(), &key), convey.ShouldBeNil)

		convey.Convey("When signing with the generated key and verifying via the CLI", func() {
			signer, err := relaysim.NewSigner(key["private_key"])
			convey.So(err, convey.ShouldBeNil)
			convey.So(signer.Address(), convey.ShouldEqual, key["address"])
			sig, err := signer.Sign("aa", "bb")
			convey.So(err, convey.ShouldBeNil)

			var vout bytes.Buffer
			verify := newRootCmd(&vout)
			verify.SetArgs([]string{"verify", "--request-hash", "aa", "--response-hash", "bb", "--signature", sig, "--address", key["address"]})

			convey.Convey("Then the signature is accepted", func() {
				convey.So(verify.Execute(), convey.ShouldBeNil)
				convey.So(vout.String(), convey.ShouldContainSubstring, "signature valid")
			})
		})

		convey.Convey("When verifying swapped hashes", func() {
			signer, err := relaysim.NewSigner(key["private_key"])
			convey.So(err, convey.ShouldBeNil)
			sig, err := signer.Sign("aa", "bb")
			convey.So(err, convey.ShouldBeNil)

			var vout bytes.Buffer
			verify := newRootCmd(&vout)
			verify.SetArgs([]string{"verify", "--request-hash", "bb", "--response-hash", "aa", "--signature", sig, "--address", key["address"]})

			convey.Convey("Then it is rejected", func() {
				convey.So(verify.Execute(), convey.ShouldNotBeNil)
			})
		})
	})
}

func TestRunOnce(t *testing.T) {
	convey.Convey("Given a ledger with one pending request", t, func() {
		ctx := context.Background()
		if err := logger.Init(); err != nil {
			t.Fatal(err)
		}
		relay := types.MustAccountID("relay.near")
		svc := service.New(service.WithRelay(relay), service.WithMinDeposit(sdkmath.NewUint(1)))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		creds := api.WithCredentials(api.Credential{Account: relay, Token: "relay-secret-0123456789"})
		srv := httptest.NewServer(api.NewServer(svc, svc, creds).Router())
		convey.Reset(func() {
			srv.Close()
			svc.Stop()
		})
		convey.So(svc.Initialize(ctx, types.MustAccountID("owner.near")), convey.ShouldBeNil)
		_, _, err := svc.SubmitRequest(ctx, types.MustAccountID("alice.near"), ledger.RequestInput{Question: "q", Deposit: "1"}, "")
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When the relay runs once", func() {
			var out bytes.Buffer
			cmd := newRootCmd(&out)
			cmd.SetArgs([]string{"--url", srv.URL, "--relay-id", "relay.near", "--once", "--workers", "1"})
			t.Setenv(tokenEnvVar, "relay-secret-0123456789")
			convey.So(cmd.ExecuteContext(ctx), convey.ShouldBeNil)

			convey.Convey("Then the request is completed", func() {
				stats, err := svc.LedgerStats(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(stats.TotalVerifications, convey.ShouldEqual, 1)
				convey.So(out.String(), convey.ShouldContainSubstring, "poll finished")
			})
		})
	})
}
