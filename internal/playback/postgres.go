package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists playback records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS playback_records (
			file TEXT PRIMARY KEY,
			last_played TIMESTAMPTZ NOT NULL,
			play_count INTEGER NOT NULL DEFAULT 0,
			total_play_time DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_position DOUBLE PRECISION NOT NULL DEFAULT 0,
			duration DOUBLE PRECISION NOT NULL DEFAULT 0,
			completed BOOLEAN NOT NULL DEFAULT FALSE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_playback_records_last_played ON playback_records (last_played DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const selectColumns = `last_played, play_count, total_play_time, last_position, duration, completed`

func scanRecord(row pgx.Row, rec *Record) error {
	return row.Scan(&rec.LastPlayed, &rec.PlayCount, &rec.TotalPlayTime, &rec.LastPosition, &rec.Duration, &rec.Completed)
}

func (s *PostgresStore) Get(ctx context.Context, file string) (Record, bool, error) {
	var rec Record
	err := scanRecord(s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM playback_records WHERE file = $1`, file), &rec)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get record: %w", err)
	}
	rec.LastPlayed = rec.LastPlayed.UTC()
	return rec, true, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, u Update) (Record, error) {
	if u.File == "" {
		return Record{}, errors.New("file is required")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Record{}, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	now := s.now()
	// A zeroed row has to exist before FOR UPDATE can serialize first writers.
	if _, err := tx.Exec(ctx,
		`INSERT INTO playback_records (file, last_played) VALUES ($1, $2) ON CONFLICT (file) DO NOTHING`,
		u.File, now,
	); err != nil {
		return Record{}, fmt.Errorf("seed record: %w", err)
	}

	var rec Record
	if err := scanRecord(tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM playback_records WHERE file = $1 FOR UPDATE`, u.File), &rec); err != nil {
		return Record{}, fmt.Errorf("lock record: %w", err)
	}
	rec = apply(rec, u, now)

	_, err = tx.Exec(ctx,
		`UPDATE playback_records SET
		   last_played = $2,
		   play_count = $3,
		   total_play_time = $4,
		   last_position = $5,
		   duration = $6,
		   completed = $7
		 WHERE file = $1`,
		u.File, rec.LastPlayed, rec.PlayCount, rec.TotalPlayTime, rec.LastPosition, rec.Duration, rec.Completed,
	)
	if err != nil {
		return Record{}, fmt.Errorf("upsert record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("commit upsert: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context) (map[string]Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT file, `+selectColumns+` FROM playback_records`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Record)
	for rows.Next() {
		var (
			file string
			rec  Record
		)
		if err := rows.Scan(&file, &rec.LastPlayed, &rec.PlayCount, &rec.TotalPlayTime, &rec.LastPosition, &rec.Duration, &rec.Completed); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.LastPlayed = rec.LastPlayed.UTC()
		out[file] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM playback_records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
