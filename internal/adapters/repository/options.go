package repository

import (
	gormlogger "gorm.io/gorm/logger"
)

const (
	// InMemorySQLiteDSN is a special DSN to create an ephemeral in-memory SQLite database.
	InMemorySQLiteDSN = ":memory:"

	// fileDSNParams tune a file-backed database for one writer and concurrent readers.
	fileDSNParams = "?_journal_mode=WAL&_busy_timeout=5000&cache=shared&mode=rwc"
)

// Option applies a configuration option to the SQLStore.
type Option func(*SQLStore)

// WithGormLogLevel sets the gorm logger verbosity. Silent by default.
func WithGormLogLevel(level gormlogger.LogLevel) Option {
	return func(s *SQLStore) {
		s.logLevel = level
	}
}

// WithMigrations toggles schema migration on open. Enabled by default.
func WithMigrations(enabled bool) Option {
	return func(s *SQLStore) {
		s.migrate = enabled
	}
}
