// Package database provides the result store for the lead qualification backtest.
//
// This package includes:
//   - Connection management using GORM over PostgreSQL (lib/pq) or SQLite
//   - Schema initialisation for the three backtest tables
//   - The BacktestRepository used by the scoring and alignment jobs
//   - Typed errors for validation, missing rows and integrity conflicts
//
// Key Concepts:
//   - lead_qualifications holds one row per contact, upserted on contact_id
//   - deal_progressions holds one write-once row per analysed contact and
//     always references an existing qualification
//   - The backtest summary is computed from both tables on demand; snapshots
//     of it are appended to backtest_summary for history only
//
// Data Models:
//
//	All data models are defined in the models_pkg package and re-exported here
//	as type aliases.
package database

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"leadscore-backtest/config"
	models "leadscore-backtest/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the underlying DB instance.
type Database struct {
	db     *gorm.DB
	driver string
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Driver returns "postgres" or "sqlite".
func (d *Database) Driver() string {
	return d.driver
}

// Connect establishes the database connection for the configured driver.
func Connect(cfg config.DatabaseConfig) (*Database, error) {
	var dialector gorm.Dialector
	driver := cfg.Driver

	switch driver {
	case "postgres":
		sqlDB, err := NewConnection(cfg)
		if err != nil {
			return nil, err
		}
		dialector = postgres.New(postgres.Config{Conn: sqlDB})
	case "sqlite", "":
		driver = "sqlite"
		dialector = sqlite.Open(sqliteDSN(cfg.SQLitePath))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
		}
		// SQLite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	return &Database{db: db, driver: driver}, nil
}

// Ping checks that the database answers.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return WrapDBError("Ping", err)
	}
	return WrapDBError("Ping", sqlDB.PingContext(ctx))
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Type aliases so callers can use the models through the database package.
type LeadQualification = models.LeadQualification
type DealProgression = models.DealProgression
type BacktestSummaryRecord = models.BacktestSummaryRecord

// Qualification sources and stage bases, re-exported from models.
const (
	SourceScorer           = models.SourceScorer
	SourceFallbackNoDomain = models.SourceFallbackNoDomain
	SourceFallbackError    = models.SourceFallbackError

	StageBasisAdvancedKeyword = models.StageBasisAdvancedKeyword
	StageBasisEarlyKeyword    = models.StageBasisEarlyKeyword
	StageBasisDefaultAdvanced = models.StageBasisDefaultAdvanced
	StageBasisEmptyStage      = models.StageBasisEmptyStage
	StageBasisNoOpportunity   = models.StageBasisNoOpportunity
)
