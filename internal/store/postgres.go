package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/company-profiler/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS merged_records (
	company_id    TEXT        NOT NULL,
	extraction_ts TIMESTAMPTZ NOT NULL,
	record        JSONB       NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (company_id, extraction_ts)
);

CREATE INDEX IF NOT EXISTS idx_merged_records_latest
	ON merged_records (company_id, extraction_ts DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec *model.MergedRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return persistErr("upsert", rec.CompanyID, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO merged_records (company_id, extraction_ts, record) VALUES ($1, $2, $3)
		 ON CONFLICT (company_id, extraction_ts) DO UPDATE SET record = EXCLUDED.record`,
		rec.CompanyID, versionKey(rec.ExtractionTimestamp), data,
	)
	if err != nil {
		return persistErr("upsert", rec.CompanyID, eris.Wrap(err, "postgres: upsert record"))
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context, companyID string) (*model.MergedRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM merged_records WHERE company_id = $1 ORDER BY extraction_ts DESC LIMIT 1`,
		companyID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("latest", companyID, eris.Wrap(err, "postgres: latest record"))
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, persistErr("latest", companyID, err)
	}
	return rec, nil
}

func (s *PostgresStore) History(ctx context.Context, companyID string, limit int) ([]model.MergedRecord, error) {
	sql := `SELECT record FROM merged_records WHERE company_id = $1 ORDER BY extraction_ts DESC`
	args := []any{companyID}
	if limit > 0 {
		sql += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, persistErr("history", companyID, eris.Wrap(err, "postgres: history"))
	}
	defer rows.Close()

	var out []model.MergedRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, persistErr("history", companyID, eris.Wrap(err, "postgres: scan record"))
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, persistErr("history", companyID, err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("history", companyID, eris.Wrap(err, "postgres: iterate records"))
	}
	return out, nil
}
