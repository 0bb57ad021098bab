package infra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStatsStore persiste contadores de decisão por minuto, policy e resultado.
// Sobrevive a restart; o estado de admissão em si não.
type SQLiteStatsStore struct {
	db *sql.DB
}

var (
	_ domain.StatsStore  = (*SQLiteStatsStore)(nil)
	_ domain.StatsReader = (*SQLiteStatsStore)(nil)
)

// NewSQLiteStatsStore abre (ou cria) o banco em dsn. Use ":memory:" em testes.
func NewSQLiteStatsStore(dsn string) (*SQLiteStatsStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// ":memory:" é por conexão; uma conexão só mantém o mesmo banco.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS admission_stats (
			bucket   TEXT NOT NULL,
			policy   TEXT NOT NULL,
			outcome  TEXT NOT NULL,
			count    INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (bucket, policy, outcome)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStatsStore{db: db}, nil
}

func (s *SQLiteStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admission_stats (bucket, policy, outcome, count) VALUES (?, ?, ?, 1)
		ON CONFLICT (bucket, policy, outcome) DO UPDATE SET count = count + 1
	`, minuteBucket(at), ev.Policy, outcomeField(ev.Allowed))
	if err != nil {
		return fmt.Errorf("sqlite stats record: %w", err)
	}
	return nil
}

// Totals soma os contadores de uma policy em todos os buckets.
func (s *SQLiteStatsStore) Totals(ctx context.Context, policy string) (domain.Counters, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, SUM(count) FROM admission_stats WHERE policy = ? GROUP BY outcome`, policy)
	if err != nil {
		return domain.Counters{}, err
	}
	defer rows.Close()

	var c domain.Counters
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return domain.Counters{}, err
		}
		switch outcome {
		case outcomeAllowed:
			c.Allowed = n
		case outcomeDenied:
			c.Denied = n
		}
	}
	return c, rows.Err()
}

func (s *SQLiteStatsStore) Close() error {
	return s.db.Close()
}

func minuteBucket(at time.Time) string {
	return at.UTC().Format("200601021504")
}
