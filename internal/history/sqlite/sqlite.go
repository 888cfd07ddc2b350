package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/duelr/internal/history"
)

// Sink writes history events to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS match_history(
		occurred_at TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
		type TEXT NOT NULL,
		run_id TEXT NOT NULL,
		game INTEGER NOT NULL,
		white TEXT,
		black TEXT,
		reason TEXT NOT NULL,
		result TEXT,
		winner TEXT,
		duration_ms INTEGER NOT NULL,
		engine1 TEXT NOT NULL,
		engine2 TEXT NOT NULL,
		engine1_wins INTEGER NOT NULL,
		engine2_wins INTEGER NOT NULL,
		draws INTEGER NOT NULL
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(history.Columns)), ", ")
	q := fmt.Sprintf(`INSERT INTO match_history(%s) VALUES(%s);`, strings.Join(history.Columns, ", "), marks)
	_, err := s.db.ExecContext(ctx, q, e.Values()...)
	return err
}

// Count returns the number of stored events of the given type for a run.
func (s *Sink) Count(ctx context.Context, runID string, typ history.EventType) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM match_history WHERE run_id = ? AND type = ?`, runID, string(typ)).Scan(&n)
	return n, err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
