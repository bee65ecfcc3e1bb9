package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/blindfold/internal/domain/model"
	"github.com/okian/blindfold/pkg/metrics"
)

// MemoryStore keeps the ledger in process memory. Atomic units of work are
// serialized by a mutex and staged in an overlay that is applied on success.
type MemoryStore struct {
	mu            sync.RWMutex
	meta          Meta
	requests      []model.AdvisorRequest
	verifications []model.Verification
	byRequest     map[uint64]uint64
	closed        bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byRequest: make(map[uint64]uint64)}
}

func (s *MemoryStore) Atomic(ctx context.Context, fn func(Tx) error) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("atomic", float64(time.Since(start).Nanoseconds())/1e6)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := s.newTx(true)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(Tx) error) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("view", float64(time.Since(start).Nanoseconds())/1e6)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.newTx(false))
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) newTx(writable bool) *memTx {
	return &memTx{
		s:        s,
		writable: writable,
		meta:     s.meta,
		updates:  make(map[uint64]model.AdvisorRequest),
		index:    make(map[uint64]uint64),
	}
}

// memTx stages writes on top of the committed tables.
type memTx struct {
	s        *MemoryStore
	writable bool

	meta    Meta
	updates map[uint64]model.AdvisorRequest
	newReqs []model.AdvisorRequest
	newVers []model.Verification
	index   map[uint64]uint64
}

func (t *memTx) commit() {
	t.s.meta = t.meta
	t.s.requests = append(t.s.requests, t.newReqs...)
	for id, r := range t.updates {
		t.s.requests[id] = r
	}
	t.s.verifications = append(t.s.verifications, t.newVers...)
	for rid, vid := range t.index {
		t.s.byRequest[rid] = vid
	}
}

func (t *memTx) Meta(context.Context) (Meta, error) { return t.meta, nil }

func (t *memTx) SaveMeta(_ context.Context, m Meta) error {
	if !t.writable {
		return ErrReadOnly
	}
	t.meta = m
	return nil
}

func (t *memTx) requestCount() uint64 {
	return uint64(len(t.s.requests) + len(t.newReqs))
}

func (t *memTx) Request(_ context.Context, id uint64) (model.AdvisorRequest, error) {
	if r, ok := t.updates[id]; ok {
		return r, nil
	}
	base := uint64(len(t.s.requests))
	switch {
	case id < base:
		return t.s.requests[id], nil
	case id < t.requestCount():
		return t.newReqs[id-base], nil
	}
	return model.AdvisorRequest{}, ErrNotFound
}

func (t *memTx) InsertRequest(_ context.Context, r model.AdvisorRequest) error {
	if !t.writable {
		return ErrReadOnly
	}
	if !r.Status.Valid() {
		return ErrInvalid
	}
	if r.ID != t.requestCount() {
		return ErrConflict
	}
	t.newReqs = append(t.newReqs, r)
	return nil
}

func (t *memTx) UpdateRequest(ctx context.Context, r model.AdvisorRequest) error {
	if !t.writable {
		return ErrReadOnly
	}
	if !r.Status.Valid() {
		return ErrInvalid
	}
	if _, err := t.Request(ctx, r.ID); err != nil {
		return err
	}
	base := uint64(len(t.s.requests))
	if r.ID >= base {
		t.newReqs[r.ID-base] = r
		return nil
	}
	t.updates[r.ID] = r
	return nil
}

func (t *memTx) ScanRequests(ctx context.Context, fn func(model.AdvisorRequest) bool) error {
	n := t.requestCount()
	for id := uint64(0); id < n; id++ {
		r, err := t.Request(ctx, id)
		if err != nil {
			return err
		}
		if !fn(r) {
			return nil
		}
	}
	return nil
}

func (t *memTx) verificationCount() uint64 {
	return uint64(len(t.s.verifications) + len(t.newVers))
}

func (t *memTx) Verification(_ context.Context, id uint64) (model.Verification, error) {
	base := uint64(len(t.s.verifications))
	switch {
	case id < base:
		return t.s.verifications[id], nil
	case id < t.verificationCount():
		return t.newVers[id-base], nil
	}
	return model.Verification{}, ErrNotFound
}

func (t *memTx) InsertVerification(ctx context.Context, v model.Verification) error {
	if !t.writable {
		return ErrReadOnly
	}
	if v.ID != t.verificationCount() {
		return ErrConflict
	}
	t.newVers = append(t.newVers, v)
	if _, ok, _ := t.VerificationIDByRequest(ctx, v.RequestID); !ok {
		t.index[v.RequestID] = v.ID
	}
	return nil
}

func (t *memTx) VerificationIDByRequest(_ context.Context, requestID uint64) (uint64, bool, error) {
	if id, ok := t.index[requestID]; ok {
		return id, true, nil
	}
	id, ok := t.s.byRequest[requestID]
	return id, ok, nil
}

func (t *memTx) ScanVerifications(ctx context.Context, fn func(model.Verification) bool) error {
	n := t.verificationCount()
	for id := uint64(0); id < n; id++ {
		v, err := t.Verification(ctx, id)
		if err != nil {
			return err
		}
		if !fn(v) {
			return nil
		}
	}
	return nil
}
