package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/blindfold/internal/domain/model"
	"github.com/okian/blindfold/pkg/metrics"
)

const metaRowID = 1

// requestRow is the advisor_requests table. Seq is the ledger id; ID is a
// surrogate key so that ledger id 0 is stored like any other.
type requestRow struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	Seq           uint64    `gorm:"not null;uniqueIndex"`
	User          string    `gorm:"type:varchar(64);not null;index"`
	Question      string    `gorm:"type:text;not null"`
	PortfolioData string    `gorm:"type:text;not null"`
	Deposit       string    `gorm:"type:varchar(80);not null;default:'0'"`
	Status        string    `gorm:"type:varchar(16);not null;index"`
	FailureReason string    `gorm:"type:text"`
	Timestamp     time.Time `gorm:"not null"`
	LastModified  time.Time
}

func (requestRow) TableName() string { return "advisor_requests" }

type verificationRow struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	Seq            uint64    `gorm:"not null;uniqueIndex"`
	RequestSeq     uint64    `gorm:"not null;index"`
	User           string    `gorm:"type:varchar(64);not null;index"`
	RequestHash    string    `gorm:"type:varchar(128);not null"`
	ResponseHash   string    `gorm:"type:varchar(128);not null"`
	Signature      string    `gorm:"type:text;not null"`
	SigningAddress string    `gorm:"type:varchar(128);not null"`
	SigningAlgo    string    `gorm:"type:varchar(32);not null"`
	TEEAttestation string    `gorm:"type:text"`
	ResponseText   string    `gorm:"type:text"`
	Timestamp      time.Time `gorm:"not null"`
	LedgerHeight   uint64    `gorm:"not null"`
}

func (verificationRow) TableName() string { return "verifications" }

type metaRow struct {
	ID                 uint   `gorm:"primaryKey"`
	Initialized        bool   `gorm:"not null;default:false"`
	Owner              string `gorm:"type:varchar(64)"`
	NextRequestID      uint64 `gorm:"not null;default:0"`
	NextVerificationID uint64 `gorm:"not null;default:0"`
	TotalRequests      uint64 `gorm:"not null;default:0"`
	TotalVerifications uint64 `gorm:"not null;default:0"`
	Height             uint64 `gorm:"not null;default:0"`
}

func (metaRow) TableName() string { return "ledger_meta" }

// SQLStore persists the ledger in SQLite through gorm.
type SQLStore struct {
	mu       sync.RWMutex
	db       *gorm.DB
	logLevel gormlogger.LogLevel
	migrate  bool
}

// OpenSQLStore opens (or creates) the database at path. Use
// InMemorySQLiteDSN for an ephemeral database.
func OpenSQLStore(path string, opts ...Option) (*SQLStore, error) {
	s := &SQLStore{
		logLevel: gormlogger.Silent,
		migrate:  true,
	}
	for _, opt := range opts {
		opt(s)
	}

	dsn := path
	if dsn != InMemorySQLiteDSN && !strings.Contains(dsn, "?") {
		dsn += fileDSNParams
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(s.logLevel),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SQLite database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	// One connection: SQLite has a single writer, and an in-memory database
	// lives only as long as its connection.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	s.db = db
	if s.migrate {
		if err := Migrate(db); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *SQLStore) Atomic(ctx context.Context, fn func(Tx) error) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("atomic", float64(time.Since(start).Nanoseconds())/1e6)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqlTx{db: tx, writable: true})
	})
}

func (s *SQLStore) View(ctx context.Context, fn func(Tx) error) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("view", float64(time.Since(start).Nanoseconds())/1e6)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqlTx{db: tx})
	})
}

// Close safely closes the underlying database connection.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to retrieve native sql.DB")
	}
	s.db = nil
	if err := sqlDB.Close(); err != nil {
		return errors.Wrap(err, "failed to close database connection")
	}
	return nil
}

type sqlTx struct {
	db       *gorm.DB
	writable bool
}

var errStopScan = errors.New("stop scan")

func (t *sqlTx) Meta(ctx context.Context) (Meta, error) {
	var row metaRow
	err := t.db.WithContext(ctx).Take(&row, metaRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Meta{}, nil
	}
	if err != nil {
		return Meta{}, errors.Wrap(err, "failed to load ledger meta")
	}
	return Meta{
		Initialized:        row.Initialized,
		Owner:              row.Owner,
		NextRequestID:      row.NextRequestID,
		NextVerificationID: row.NextVerificationID,
		TotalRequests:      row.TotalRequests,
		TotalVerifications: row.TotalVerifications,
		Height:             row.Height,
	}, nil
}

func (t *sqlTx) SaveMeta(ctx context.Context, m Meta) error {
	if !t.writable {
		return ErrReadOnly
	}
	row := metaRow{
		ID:                 metaRowID,
		Initialized:        m.Initialized,
		Owner:              m.Owner,
		NextRequestID:      m.NextRequestID,
		NextVerificationID: m.NextVerificationID,
		TotalRequests:      m.TotalRequests,
		TotalVerifications: m.TotalVerifications,
		Height:             m.Height,
	}
	err := t.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	return errors.Wrap(err, "failed to save ledger meta")
}

func (t *sqlTx) Request(ctx context.Context, id uint64) (model.AdvisorRequest, error) {
	var row requestRow
	err := t.db.WithContext(ctx).Where("seq = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.AdvisorRequest{}, ErrNotFound
	}
	if err != nil {
		return model.AdvisorRequest{}, errors.Wrapf(err, "failed to load request %d", id)
	}
	return row.toModel(), nil
}

func (t *sqlTx) InsertRequest(ctx context.Context, r model.AdvisorRequest) error {
	if !t.writable {
		return ErrReadOnly
	}
	if !r.Status.Valid() {
		return ErrInvalid
	}
	var n int64
	if err := t.db.WithContext(ctx).Model(&requestRow{}).Count(&n).Error; err != nil {
		return errors.Wrap(err, "failed to count requests")
	}
	if r.ID != uint64(n) {
		return ErrConflict
	}
	row := requestRowFrom(r)
	return errors.Wrapf(t.db.WithContext(ctx).Create(&row).Error, "failed to insert request %d", r.ID)
}

func (t *sqlTx) UpdateRequest(ctx context.Context, r model.AdvisorRequest) error {
	if !t.writable {
		return ErrReadOnly
	}
	if !r.Status.Valid() {
		return ErrInvalid
	}
	res := t.db.WithContext(ctx).Model(&requestRow{}).Where("seq = ?", r.ID).Updates(map[string]any{
		"user":           r.User,
		"question":       r.Question,
		"portfolio_data": r.PortfolioData,
		"deposit":        r.Deposit,
		"status":         string(r.Status),
		"failure_reason": r.FailureReason,
		"timestamp":      r.Timestamp,
		"last_modified":  r.UpdatedAt,
	})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "failed to update request %d", r.ID)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqlTx) ScanRequests(ctx context.Context, fn func(model.AdvisorRequest) bool) error {
	var batch []requestRow
	err := t.db.WithContext(ctx).FindInBatches(&batch, 500, func(_ *gorm.DB, _ int) error {
		for _, row := range batch {
			if !fn(row.toModel()) {
				return errStopScan
			}
		}
		return nil
	}).Error
	if err == nil || errors.Is(err, errStopScan) {
		return nil
	}
	return errors.Wrap(err, "failed to scan requests")
}

func (t *sqlTx) Verification(ctx context.Context, id uint64) (model.Verification, error) {
	var row verificationRow
	err := t.db.WithContext(ctx).Where("seq = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Verification{}, ErrNotFound
	}
	if err != nil {
		return model.Verification{}, errors.Wrapf(err, "failed to load verification %d", id)
	}
	return row.toModel(), nil
}

func (t *sqlTx) InsertVerification(ctx context.Context, v model.Verification) error {
	if !t.writable {
		return ErrReadOnly
	}
	var n int64
	if err := t.db.WithContext(ctx).Model(&verificationRow{}).Count(&n).Error; err != nil {
		return errors.Wrap(err, "failed to count verifications")
	}
	if v.ID != uint64(n) {
		return ErrConflict
	}
	row := verificationRowFrom(v)
	return errors.Wrapf(t.db.WithContext(ctx).Create(&row).Error, "failed to insert verification %d", v.ID)
}

// VerificationIDByRequest uses the request_seq index; the lowest seq is the
// first verification stored for the request.
func (t *sqlTx) VerificationIDByRequest(ctx context.Context, requestID uint64) (uint64, bool, error) {
	var row verificationRow
	err := t.db.WithContext(ctx).Select("seq").Where("request_seq = ?", requestID).Order("seq asc").Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "failed to look up verification for request %d", requestID)
	}
	return row.Seq, true, nil
}

func (t *sqlTx) ScanVerifications(ctx context.Context, fn func(model.Verification) bool) error {
	var batch []verificationRow
	err := t.db.WithContext(ctx).FindInBatches(&batch, 500, func(_ *gorm.DB, _ int) error {
		for _, row := range batch {
			if !fn(row.toModel()) {
				return errStopScan
			}
		}
		return nil
	}).Error
	if err == nil || errors.Is(err, errStopScan) {
		return nil
	}
	return errors.Wrap(err, "failed to scan verifications")
}

func requestRowFrom(r model.AdvisorRequest) requestRow {
	return requestRow{
		Seq:           r.ID,
		User:          r.User,
		Question:      r.Question,
		PortfolioData: r.PortfolioData,
		Deposit:       r.Deposit,
		Status:        string(r.Status),
		FailureReason: r.FailureReason,
		Timestamp:     r.Timestamp,
		LastModified:  r.UpdatedAt,
	}
}

func (row requestRow) toModel() model.AdvisorRequest {
	return model.AdvisorRequest{
		ID:            row.Seq,
		User:          row.User,
		Question:      row.Question,
		PortfolioData: row.PortfolioData,
		Deposit:       row.Deposit,
		Status:        model.RequestStatus(row.Status),
		FailureReason: row.FailureReason,
		Timestamp:     row.Timestamp,
		UpdatedAt:     row.LastModified,
	}
}

func verificationRowFrom(v model.Verification) verificationRow {
	return verificationRow{
		Seq:            v.ID,
		RequestSeq:     v.RequestID,
		User:           v.User,
		RequestHash:    v.RequestHash,
		ResponseHash:   v.ResponseHash,
		Signature:      v.Signature,
		SigningAddress: v.SigningAddress,
		SigningAlgo:    v.SigningAlgo,
		TEEAttestation: v.TEEAttestation,
		ResponseText:   v.ResponseText,
		Timestamp:      v.Timestamp,
		LedgerHeight:   v.LedgerHeight,
	}
}

func (row verificationRow) toModel() model.Verification {
	return model.Verification{
		ID:             row.Seq,
		RequestID:      row.RequestSeq,
		User:           row.User,
		RequestHash:    row.RequestHash,
		ResponseHash:   row.ResponseHash,
		Signature:      row.Signature,
		SigningAddress: row.SigningAddress,
		SigningAlgo:    row.SigningAlgo,
		TEEAttestation: row.TEEAttestation,
		ResponseText:   row.ResponseText,
		Timestamp:      row.Timestamp,
		LedgerHeight:   row.LedgerHeight,
	}
}
