package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Dialect selects the placeholder style.
type Dialect int

const (
	SQLite   Dialect = iota // ? placeholders
	Postgres                // $n placeholders
)

// SQLJournal implements Journal using database/sql.
// It supports both Postgres and SQLite via standard drivers.
type SQLJournal struct {
	db      *sql.DB
	dialect Dialect
}

var _ Journal = (*SQLJournal)(nil)

func NewSQLJournal(db *sql.DB, dialect Dialect) *SQLJournal {
	return &SQLJournal{db: db, dialect: dialect}
}

const schema = `
CREATE TABLE IF NOT EXISTS anchors (
	id TEXT PRIMARY KEY,
	packet_digest TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	tx_hash TEXT NOT NULL,
	sender TEXT NOT NULL,
	nonce BIGINT NOT NULL,
	chain_id BIGINT NOT NULL,
	status TEXT NOT NULL,
	block_number BIGINT NOT NULL DEFAULT 0,
	gas_used BIGINT NOT NULL DEFAULT 0,
	error_kind TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS anchors_agent_idx ON anchors (agent_id, created_at);
CREATE INDEX IF NOT EXISTS anchors_status_idx ON anchors (status);
`

const selectColumns = `SELECT id, packet_digest, agent_id, tx_hash, sender, nonce, chain_id, status, block_number, gas_used, error_kind, created_at, updated_at FROM anchors`

func (s *SQLJournal) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// bind rewrites ? placeholders for the configured dialect.
func (s *SQLJournal) bind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLJournal) Record(ctx context.Context, rec *AnchorRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	query := s.bind(`
		INSERT INTO anchors (id, packet_digest, agent_id, tx_hash, sender, nonce, chain_id, status, block_number, gas_used, error_kind, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.PacketDigest, rec.AgentID, rec.TxHash, rec.Sender,
		int64(rec.Nonce), rec.ChainID, string(rec.Status), //nolint:gosec // nonces fit in int64
		int64(rec.BlockNumber), int64(rec.GasUsed), rec.ErrorKind, //nolint:gosec // block numbers and gas fit in int64
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert anchor record: %w", err)
	}
	return nil
}

func (s *SQLJournal) UpdateStatus(ctx context.Context, id string, res Resolution) error {
	query := s.bind(`UPDATE anchors SET status = ?, block_number = ?, gas_used = ?, error_kind = ?, updated_at = ? WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query,
		string(res.Status), int64(res.BlockNumber), int64(res.GasUsed), res.ErrorKind, //nolint:gosec // block numbers and gas fit in int64
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update anchor record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLJournal) Get(ctx context.Context, id string) (AnchorRecord, error) {
	row := s.db.QueryRowContext(ctx, s.bind(selectColumns+` WHERE id = ?`), id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AnchorRecord{}, ErrNotFound
		}
		return AnchorRecord{}, err
	}
	return rec, nil
}

func (s *SQLJournal) ListByAgent(ctx context.Context, agentID string, limit int) ([]AnchorRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.list(ctx, s.bind(selectColumns+` WHERE agent_id = ? ORDER BY created_at DESC LIMIT ?`), agentID, limit)
}

func (s *SQLJournal) ListUnresolved(ctx context.Context) ([]AnchorRecord, error) {
	return s.list(ctx, s.bind(selectColumns+` WHERE status IN (?, ?) ORDER BY created_at ASC`),
		string(StatusPending), string(StatusUnknown))
}

func (s *SQLJournal) list(ctx context.Context, query string, args ...any) ([]AnchorRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]AnchorRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (AnchorRecord, error) {
	var (
		rec                        AnchorRecord
		status                     string
		nonce, block, gas, chainID int64
	)
	err := row.Scan(&rec.ID, &rec.PacketDigest, &rec.AgentID, &rec.TxHash, &rec.Sender,
		&nonce, &chainID, &status, &block, &gas, &rec.ErrorKind, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return AnchorRecord{}, err
	}
	rec.Status = Status(status)
	rec.Nonce = uint64(nonce)       //nolint:gosec // stored from a uint64
	rec.BlockNumber = uint64(block) //nolint:gosec // stored from a uint64
	rec.GasUsed = uint64(gas)       //nolint:gosec // stored from a uint64
	rec.ChainID = chainID
	return rec, nil
}
