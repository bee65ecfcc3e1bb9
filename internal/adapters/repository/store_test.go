package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	repository "github.com/okian/blindfold/internal/adapters/repository"
	"github.com/okian/blindfold/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var errAbort = errors.New("abort")

func newRequest(id uint64, user string) model.AdvisorRequest {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return model.AdvisorRequest{
		ID:            id,
		User:          user,
		Question:      "should I rebalance?",
		PortfolioData: `{"holdings":[]}`,
		Deposit:       "10",
		Status:        model.StatusPending,
		Timestamp:     ts,
		UpdatedAt:     ts,
	}
}

func newVerification(id, requestID uint64) model.Verification {
	return model.Verification{
		ID:             id,
		RequestID:      requestID,
		User:           "alice.near",
		RequestHash:    "aa",
		ResponseHash:   "bb",
		Signature:      "0xsig",
		SigningAddress: "0xabc",
		SigningAlgo:    "ecdsa",
		Timestamp:      time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
		LedgerHeight:   3,
	}
}

var drivers = []string{"memory", "sqlite", "sqlite-file"}

func openStore(t *testing.T, driver string) repository.Store {
	t.Helper()
	var (
		store repository.Store
		err   error
	)
	switch driver {
	case "memory":
		store = repository.NewMemoryStore()
	case "sqlite":
		store, err = repository.OpenSQLStore(repository.InMemorySQLiteDSN)
	default:
		store, err = repository.OpenSQLStore(filepath.Join(t.TempDir(), "ledger.db"))
	}
	if err != nil {
		t.Fatalf("open %s store: %v", driver, err)
	}
	return store
}

func TestStoreContract(t *testing.T) {
	for _, driver := range drivers {
		Convey("Given the "+driver+" store", t, func() {
			ctx := context.Background()
			store := openStore(t, driver)
			Reset(func() { _ = store.Close() })

			Convey("When nothing has been written", func() {
				var meta repository.Meta
				err := store.View(ctx, func(tx repository.Tx) error {
					var err error
					meta, err = tx.Meta(ctx)
					return err
				})

				Convey("Then meta is zero", func() {
					So(err, ShouldBeNil)
					So(meta, ShouldResemble, repository.Meta{})
				})
			})

			Convey("When a unit of work inserts and updates rows", func() {
				err := store.Atomic(ctx, func(tx repository.Tx) error {
					if err := tx.InsertRequest(ctx, newRequest(0, "alice.near")); err != nil {
						return err
					}
					if err := tx.InsertRequest(ctx, newRequest(1, "bob.near")); err != nil {
						return err
					}
					r, err := tx.Request(ctx, 1)
					if err != nil {
						return err
					}
					r.Status = model.StatusProcessing
					if err := tx.UpdateRequest(ctx, r); err != nil {
						return err
					}
					if err := tx.InsertVerification(ctx, newVerification(0, 1)); err != nil {
						return err
					}
					return tx.SaveMeta(ctx, repository.Meta{Initialized: true, Owner: "owner.near", NextRequestID: 2, TotalRequests: 2, Height: 3})
				})
				So(err, ShouldBeNil)

				Convey("Then the writes are visible afterwards", func() {
					var (
						meta   repository.Meta
						r0, r1 model.AdvisorRequest
						v      model.Verification
						vid    uint64
						found  bool
						users  []string
					)
					err := store.View(ctx, func(tx repository.Tx) error {
						var err error
						if meta, err = tx.Meta(ctx); err != nil {
							return err
						}
						if r0, err = tx.Request(ctx, 0); err != nil {
							return err
						}
						if r1, err = tx.Request(ctx, 1); err != nil {
							return err
						}
						if v, err = tx.Verification(ctx, 0); err != nil {
							return err
						}
						if vid, found, err = tx.VerificationIDByRequest(ctx, 1); err != nil {
							return err
						}
						return tx.ScanRequests(ctx, func(r model.AdvisorRequest) bool {
							users = append(users, r.User)
							return true
						})
					})
					So(err, ShouldBeNil)
					So(meta.Owner, ShouldEqual, "owner.near")
					So(meta.Height, ShouldEqual, 3)
					So(r0.ID, ShouldEqual, 0)
					So(r0.Status, ShouldEqual, model.StatusPending)
					So(r0.Timestamp.Equal(newRequest(0, "").Timestamp), ShouldBeTrue)
					So(r1.Status, ShouldEqual, model.StatusProcessing)
					So(v.RequestID, ShouldEqual, 1)
					So(v.SigningAlgo, ShouldEqual, "ecdsa")
					So(found, ShouldBeTrue)
					So(vid, ShouldEqual, 0)
					So(users, ShouldResemble, []string{"alice.near", "bob.near"})
				})

				Convey("Then a scan can stop early", func() {
					seen := 0
					err := store.View(ctx, func(tx repository.Tx) error {
						return tx.ScanRequests(ctx, func(model.AdvisorRequest) bool {
							seen++
							return false
						})
					})
					So(err, ShouldBeNil)
					So(seen, ShouldEqual, 1)
				})

				Convey("Then unknown ids are not found", func() {
					err := store.View(ctx, func(tx repository.Tx) error {
						_, err := tx.Request(ctx, 99)
						return err
					})
					So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

					err = store.View(ctx, func(tx repository.Tx) error {
						_, err := tx.Verification(ctx, 5)
						return err
					})
					So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

					var found bool
					_ = store.View(ctx, func(tx repository.Tx) error {
						_, found, _ = tx.VerificationIDByRequest(ctx, 0)
						return nil
					})
					So(found, ShouldBeFalse)
				})

				Convey("Then a second verification does not move the index", func() {
					err := store.Atomic(ctx, func(tx repository.Tx) error {
						return tx.InsertVerification(ctx, newVerification(1, 1))
					})
					So(err, ShouldBeNil)

					var vid uint64
					var count int
					_ = store.View(ctx, func(tx repository.Tx) error {
						vid, _, _ = tx.VerificationIDByRequest(ctx, 1)
						return tx.ScanVerifications(ctx, func(model.Verification) bool {
							count++
							return true
						})
					})
					So(vid, ShouldEqual, 0)
					So(count, ShouldEqual, 2)
				})
			})

			Convey("When a unit of work fails", func() {
				err := store.Atomic(ctx, func(tx repository.Tx) error {
					if err := tx.InsertRequest(ctx, newRequest(0, "alice.near")); err != nil {
						return err
					}
					if err := tx.SaveMeta(ctx, repository.Meta{Initialized: true, Height: 1}); err != nil {
						return err
					}
					return errAbort
				})

				Convey("Then nothing is committed", func() {
					So(errors.Is(err, errAbort), ShouldBeTrue)
					var meta repository.Meta
					var count int
					_ = store.View(ctx, func(tx repository.Tx) error {
						meta, _ = tx.Meta(ctx)
						return tx.ScanRequests(ctx, func(model.AdvisorRequest) bool {
							count++
							return true
						})
					})
					So(meta.Initialized, ShouldBeFalse)
					So(count, ShouldEqual, 0)
				})
			})

			Convey("When an id skips ahead", func() {
				err := store.Atomic(ctx, func(tx repository.Tx) error {
					return tx.InsertRequest(ctx, newRequest(5, "alice.near"))
				})

				Convey("Then it conflicts", func() {
					So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
				})
			})

			Convey("When a view tries to write", func() {
				err := store.View(ctx, func(tx repository.Tx) error {
					return tx.InsertRequest(ctx, newRequest(0, "alice.near"))
				})

				Convey("Then it is rejected", func() {
					So(errors.Is(err, repository.ErrReadOnly), ShouldBeTrue)
				})
			})

			Convey("When a request carries an unknown status", func() {
				bad := newRequest(0, "alice.near")
				bad.Status = "Done"
				insertErr := store.Atomic(ctx, func(tx repository.Tx) error {
					return tx.InsertRequest(ctx, bad)
				})
				updateErr := store.Atomic(ctx, func(tx repository.Tx) error {
					if err := tx.InsertRequest(ctx, newRequest(0, "alice.near")); err != nil {
						return err
					}
					return tx.UpdateRequest(ctx, bad)
				})

				Convey("Then neither write is stored", func() {
					So(errors.Is(insertErr, repository.ErrInvalid), ShouldBeTrue)
					So(errors.Is(updateErr, repository.ErrInvalid), ShouldBeTrue)
					err := store.View(ctx, func(tx repository.Tx) error {
						_, err := tx.Request(ctx, 0)
						return err
					})
					So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				})
			})

			Convey("When updating a missing request", func() {
				err := store.Atomic(ctx, func(tx repository.Tx) error {
					return tx.UpdateRequest(ctx, newRequest(42, "alice.near"))
				})

				Convey("Then it is not found", func() {
					So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				})
			})
		})
	}
}

func TestSQLStoreReopen(t *testing.T) {
	Convey("Given a file-backed sqlite store", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "ledger.db")
		store, err := repository.OpenSQLStore(path)
		So(err, ShouldBeNil)

		err = store.Atomic(ctx, func(tx repository.Tx) error {
			if err := tx.InsertRequest(ctx, newRequest(0, "alice.near")); err != nil {
				return err
			}
			return tx.SaveMeta(ctx, repository.Meta{Initialized: true, Owner: "owner.near", NextRequestID: 1, TotalRequests: 1, Height: 1})
		})
		So(err, ShouldBeNil)
		So(store.Close(), ShouldBeNil)

		Convey("When it is reopened", func() {
			reopened, err := repository.OpenSQLStore(path)
			So(err, ShouldBeNil)
			defer func() { _ = reopened.Close() }()

			Convey("Then the ledger survived", func() {
				var meta repository.Meta
				var r model.AdvisorRequest
				err := reopened.View(ctx, func(tx repository.Tx) error {
					var err error
					if meta, err = tx.Meta(ctx); err != nil {
						return err
					}
					r, err = tx.Request(ctx, 0)
					return err
				})
				So(err, ShouldBeNil)
				So(meta.TotalRequests, ShouldEqual, 1)
				So(r.User, ShouldEqual, "alice.near")
			})
		})

		Convey("When used after close", func() {
			err := store.Atomic(ctx, func(repository.Tx) error { return nil })

			Convey("Then it reports closed", func() {
				So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
			})
		})
	})
}
