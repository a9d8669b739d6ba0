// Package store keeps a durable local journal of anchor submissions so an
// operator can tell which packets were sent, which confirmed, and which
// ended in an unknown state and need reconciling against the ledger.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

// ErrNotFound is returned when a journal entry is not found.
var ErrNotFound = errors.New("not found")

// Status is the lifecycle of a journaled anchor.
type Status string

const (
	StatusPending   Status = "PENDING"   // broadcast, not yet awaited
	StatusConfirmed Status = "CONFIRMED" // included and confirmed
	StatusFailed    Status = "FAILED"    // rejected or reverted
	StatusUnknown   Status = "UNKNOWN"   // confirmation timed out
)

// StatusFor maps a submission error onto the journal status. A nil error is
// a confirmation.
func StatusFor(err error) Status {
	if err == nil {
		return StatusConfirmed
	}
	switch contracts.KindOf(err).Outcome() {
	case contracts.OutcomeUnknown:
		return StatusUnknown
	default:
		return StatusFailed
	}
}

// AnchorRecord is one journaled submission.
type AnchorRecord struct {
	ID           string    `json:"id"`
	PacketDigest string    `json:"packet_digest"`
	AgentID      string    `json:"agent_id"`
	TxHash       string    `json:"tx_hash"`
	Sender       string    `json:"sender"`
	Nonce        uint64    `json:"nonce"`
	ChainID      int64     `json:"chain_id"`
	Status       Status    `json:"status"`
	BlockNumber  uint64    `json:"block_number,omitempty"`
	GasUsed      uint64    `json:"gas_used,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Resolution is the final state written by UpdateStatus.
type Resolution struct {
	Status      Status
	BlockNumber uint64
	GasUsed     uint64
	ErrorKind   string
}

// Journal is the durable interface for anchor records.
type Journal interface {
	// Init creates the schema if missing.
	Init(ctx context.Context) error

	// Record persists a new entry. An empty ID is generated.
	Record(ctx context.Context, rec *AnchorRecord) error

	// UpdateStatus resolves an entry.
	UpdateStatus(ctx context.Context, id string, res Resolution) error

	Get(ctx context.Context, id string) (AnchorRecord, error)

	// ListByAgent returns the newest entries for agentID first.
	ListByAgent(ctx context.Context, agentID string, limit int) ([]AnchorRecord, error)

	// ListUnresolved returns PENDING and UNKNOWN entries, oldest first.
	ListUnresolved(ctx context.Context) ([]AnchorRecord, error)
}

// NewRecord builds a PENDING entry for a broadcast packet.
func NewRecord(p contracts.ResurrectionPacket, txHash, sender string, nonce uint64, chainID int64) (*AnchorRecord, error) {
	digest, err := PacketDigest(p)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &AnchorRecord{
		ID:           uuid.NewString(),
		PacketDigest: digest,
		AgentID:      p.AgentID,
		TxHash:       txHash,
		Sender:       sender,
		Nonce:        nonce,
		ChainID:      chainID,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// PacketDigest is the hex SHA-256 of the packet's RFC 8785 canonical JSON.
// Two packets with the same field values always share a digest.
func PacketDigest(p contracts.ResurrectionPacket) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal packet: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize packet: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
