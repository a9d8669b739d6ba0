package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open connects the journal. URLs with a postgres:// or postgresql:// scheme
// use Postgres; anything else is a SQLite file path. The schema is created
// before returning.
func Open(ctx context.Context, url string) (*SQLJournal, *sql.DB, error) {
	var (
		db      *sql.DB
		dialect Dialect
		err     error
	)
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		db, err = sql.Open("postgres", url)
		dialect = Postgres
	} else {
		if url == "" {
			url = filepath.Join("data", "anchorchain.db")
		}
		if dir := filepath.Dir(url); dir != "." && url != ":memory:" {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		db, err = sql.Open("sqlite", url)
		dialect = SQLite
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if dialect == SQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to reach journal: %w", err)
	}
	j := NewSQLJournal(db, dialect)
	if err := j.Init(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to init journal: %w", err)
	}
	return j, db, nil
}
