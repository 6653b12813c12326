package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/company-profiler/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// extraction_ts holds unix microseconds.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS merged_records (
	company_id    TEXT    NOT NULL,
	extraction_ts INTEGER NOT NULL,
	record        TEXT    NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (company_id, extraction_ts)
);

CREATE INDEX IF NOT EXISTS idx_merged_records_latest
	ON merged_records (company_id, extraction_ts DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec *model.MergedRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return persistErr("upsert", rec.CompanyID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO merged_records (company_id, extraction_ts, record) VALUES (?, ?, ?)
		 ON CONFLICT (company_id, extraction_ts) DO UPDATE SET record = excluded.record`,
		rec.CompanyID, versionKey(rec.ExtractionTimestamp).UnixMicro(), string(data),
	)
	if err != nil {
		return persistErr("upsert", rec.CompanyID, eris.Wrap(err, "sqlite: upsert record"))
	}
	return nil
}

func (s *SQLiteStore) Latest(ctx context.Context, companyID string) (*model.MergedRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM merged_records WHERE company_id = ? ORDER BY extraction_ts DESC LIMIT 1`,
		companyID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("latest", companyID, eris.Wrap(err, "sqlite: latest record"))
	}
	rec, err := decodeRecord([]byte(data))
	if err != nil {
		return nil, persistErr("latest", companyID, err)
	}
	return rec, nil
}

func (s *SQLiteStore) History(ctx context.Context, companyID string, limit int) ([]model.MergedRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM merged_records WHERE company_id = ? ORDER BY extraction_ts DESC LIMIT ?`,
		companyID, limit,
	)
	if err != nil {
		return nil, persistErr("history", companyID, eris.Wrap(err, "sqlite: history"))
	}
	defer rows.Close() //nolint:errcheck

	var out []model.MergedRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, persistErr("history", companyID, eris.Wrap(err, "sqlite: scan record"))
		}
		rec, err := decodeRecord([]byte(data))
		if err != nil {
			return nil, persistErr("history", companyID, err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("history", companyID, eris.Wrap(err, "sqlite: iterate records"))
	}
	return out, nil
}
