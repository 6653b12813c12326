// Package store persists merged company records. Records are keyed by
// (company_id, extraction_timestamp); a company accumulates one row per
// extraction run and rows are never rewritten with different content.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-profiler/internal/model"
)

// Store is the persistence adapter for merged records.
type Store interface {
	// Upsert writes rec. Writing the same (company_id, extraction_timestamp)
	// again replaces the row rather than adding one.
	Upsert(ctx context.Context, rec *model.MergedRecord) error
	// Latest returns the most recent record for companyID, or nil when the
	// company has none.
	Latest(ctx context.Context, companyID string) (*model.MergedRecord, error)
	// History lists records for companyID, newest first. limit <= 0 means
	// no limit.
	History(ctx context.Context, companyID string, limit int) ([]model.MergedRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and tunes the backing database.
type Config struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// Open creates the Store named by cfg.Driver. The caller runs Migrate.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "profiles.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

func validateRecord(rec *model.MergedRecord) error {
	if rec == nil {
		return persistErr("upsert", "", eris.New("store: nil record"))
	}
	if rec.CompanyID == "" {
		return persistErr("upsert", "", eris.New("store: record has no company_id"))
	}
	if rec.ExtractionTimestamp.IsZero() {
		return persistErr("upsert", rec.CompanyID, eris.New("store: record has no extraction timestamp"))
	}
	return nil
}

func persistErr(op, companyID string, err error) error {
	return &model.PersistenceError{Op: op, CompanyID: companyID, Err: err}
}

func encodeRecord(rec *model.MergedRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal record")
	}
	return data, nil
}

func decodeRecord(data []byte) (*model.MergedRecord, error) {
	var rec model.MergedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal record")
	}
	return &rec, nil
}

// versionKey is the timestamp form stored alongside the record. Microsecond
// precision matches Postgres TIMESTAMPTZ so both drivers agree on identity.
func versionKey(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Microsecond)
}
