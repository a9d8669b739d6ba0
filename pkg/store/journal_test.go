package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

func novaPacket() contracts.ResurrectionPacket {
	return contracts.ResurrectionPacket{
		AgentID:            "nova-001",
		SourceEmbodimentID: "edge-A",
		TargetEmbodimentID: "cloud-B",
		IdentityCommitment: "agent_nova-001",
		MissionCommitment:  "mission_v1",
		Jurisdiction:       contracts.DefaultJurisdiction,
	}
}

var columns = []string{"id", "packet_digest", "agent_id", "tx_hash", "sender", "nonce", "chain_id", "status", "block_number", "gas_used", "error_kind", "created_at", "updated_at"}

func TestPacketDigest_Canonical(t *testing.T) {
	a, err := PacketDigest(novaPacket())
	require.NoError(t, err)
	b, err := PacketDigest(novaPacket())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	other := novaPacket()
	other.MissionCommitment = "mission_v2"
	c, err := PacketDigest(other)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusConfirmed, StatusFor(nil))
	assert.Equal(t, StatusUnknown, StatusFor(contracts.Errorf(contracts.KindConfirmationTimeout, "submit.await", "timeout")))
	assert.Equal(t, StatusFailed, StatusFor(contracts.Errorf(contracts.KindSubmissionRejected, "submit.await", "reverted")))
	assert.Equal(t, StatusFailed, StatusFor(errors.New("boom")))
}

func TestSQLJournal_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	j := NewSQLJournal(db, SQLite)
	rec, err := NewRecord(novaPacket(), "0xabc", "0xsender", 7, 31337)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO anchors").
		WithArgs(rec.ID, rec.PacketDigest, "nova-001", "0xabc", "0xsender", int64(7), int64(31337), "PENDING",
			int64(0), int64(0), "", rec.CreatedAt, rec.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, j.Record(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLJournal_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	j := NewSQLJournal(db, Postgres)
	mock.ExpectExec(`UPDATE anchors SET status = $1, block_number = $2, gas_used = $3, error_kind = $4, updated_at = $5 WHERE id = $6`).
		WithArgs("CONFIRMED", int64(12), int64(90000), "", sqlmock.AnyArg(), "rec-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = j.UpdateStatus(context.Background(), "rec-1", Resolution{Status: StatusConfirmed, BlockNumber: 12, GasUsed: 90000})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLJournal_UpdateStatusMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("UPDATE anchors").WillReturnResult(sqlmock.NewResult(0, 0))
	err = NewSQLJournal(db, SQLite).UpdateStatus(context.Background(), "nope", Resolution{Status: StatusFailed})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLJournal_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT (.+) FROM anchors WHERE id").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(columns))
	_, err = NewSQLJournal(db, SQLite).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLJournal_ListUnresolved(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(columns).
		AddRow("r1", "d1", "nova-001", "0x01", "0xs", int64(1), int64(80002), "PENDING", int64(0), int64(0), "", now, now).
		AddRow("r2", "d2", "nova-001", "0x02", "0xs", int64(2), int64(80002), "UNKNOWN", int64(0), int64(0), "ConfirmationTimeout", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status IN (?, ?)")).
		WithArgs("PENDING", "UNKNOWN").
		WillReturnRows(rows)

	recs, err := NewSQLJournal(db, SQLite).ListUnresolved(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, StatusPending, recs[0].Status)
	assert.Equal(t, StatusUnknown, recs[1].Status)
	assert.Equal(t, uint64(2), recs[1].Nonce)
	assert.Equal(t, int64(80002), recs[1].ChainID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	j, db, err := Open(ctx, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rec, err := NewRecord(novaPacket(), "0xabc", "0xsender", 3, 31337)
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, rec))

	unresolved, err := j.ListUnresolved(ctx)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, rec.ID, unresolved[0].ID)

	require.NoError(t, j.UpdateStatus(ctx, rec.ID, Resolution{Status: StatusConfirmed, BlockNumber: 5, GasUsed: 80000}))

	got, err := j.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, uint64(5), got.BlockNumber)
	assert.Equal(t, rec.PacketDigest, got.PacketDigest)

	byAgent, err := j.ListByAgent(ctx, "nova-001", 10)
	require.NoError(t, err)
	assert.Len(t, byAgent, 1)

	unresolved, err = j.ListUnresolved(ctx)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
}
