package repository

import (
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Migrate brings the ledger schema up to date. Migration structs are frozen
// copies so later row changes do not rewrite history.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, &gormigrate.Options{UseTransaction: true}, []*gormigrate.Migration{
		{
			ID: "create-ledger-meta",
			Migrate: func(tx *gorm.DB) error {
				type ledgerMeta struct {
					ID                 uint   `gorm:"primaryKey"`
					Initialized        bool   `gorm:"not null;default:false"`
					Owner              string `gorm:"type:varchar(64)"`
					NextRequestID      uint64 `gorm:"not null;default:0"`
					NextVerificationID uint64 `gorm:"not null;default:0"`
					TotalRequests      uint64 `gorm:"not null;default:0"`
					TotalVerifications uint64 `gorm:"not null;default:0"`
					Height             uint64 `gorm:"not null;default:0"`
				}
				return tx.Table("ledger_meta").AutoMigrate(&ledgerMeta{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("ledger_meta")
			},
		},
		{
			ID: "create-advisor-requests",
			Migrate: func(tx *gorm.DB) error {
				type advisorRequest struct {
					ID            uint      `gorm:"primaryKey;autoIncrement"`
					Seq           uint64    `gorm:"not null;uniqueIndex"`
					User          string    `gorm:"type:varchar(64);not null;index"`
					Question      string    `gorm:"type:text;not null"`
					PortfolioData string    `gorm:"type:text;not null"`
					Deposit       string    `gorm:"type:varchar(80);not null;default:'0'"`
					Status        string    `gorm:"type:varchar(16);not null;index"`
					Timestamp     time.Time `gorm:"not null"`
				}
				return tx.Table("advisor_requests").AutoMigrate(&advisorRequest{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("advisor_requests")
			},
		},
		{
			ID: "add-failure-reason-to-advisor-requests",
			Migrate: func(tx *gorm.DB) error {
				type advisorRequest struct {
					FailureReason string `gorm:"type:text"`
					LastModified  time.Time
				}
				return tx.Table("advisor_requests").AutoMigrate(&advisorRequest{})
			},
			Rollback: func(tx *gorm.DB) error {
				if err := tx.Migrator().DropColumn("advisor_requests", "failure_reason"); err != nil {
					return err
				}
				return tx.Migrator().DropColumn("advisor_requests", "last_modified")
			},
		},
		{
			ID: "create-verifications",
			Migrate: func(tx *gorm.DB) error {
				type verification struct {
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
				return tx.Table("verifications").AutoMigrate(&verification{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("verifications")
			},
		},
	})

	return errors.Wrap(m.Migrate(), "failed to migrate ledger schema")
}
