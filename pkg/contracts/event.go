package contracts

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NotarizationEvent is a decoded ResurrectionRecorded log. It is created by the
// ledger at inclusion time and never mutated.
type NotarizationEvent struct {
	AgentID            string         `json:"agentId"`
	SourceEmbodimentID string         `json:"sourceEmbodimentId"`
	TargetEmbodimentID string         `json:"targetEmbodimentId"`
	IdentityCommitment common.Hash    `json:"identityCommitment"`
	MissionCommitment  common.Hash    `json:"missionCommitment"`
	Jurisdiction       string         `json:"jurisdiction"`
	Caller             common.Address `json:"caller"`
	BlockTime          uint64         `json:"blockTime"`

	BlockNumber uint64      `json:"blockNumber"`
	TxHash      common.Hash `json:"txHash"`
	LogIndex    uint        `json:"logIndex"`
}

// Time returns the ledger-assigned block timestamp.
func (e NotarizationEvent) Time() time.Time {
	return time.Unix(int64(e.BlockTime), 0).UTC() //nolint:gosec // block timestamps fit in int64
}

// Matches reports whether the event records the same transfer as p:
// identical source and target embodiments and byte-equal commitments.
// Agent and jurisdiction are not compared.
func (e NotarizationEvent) Matches(p EncodedPacket) bool {
	return e.SourceEmbodimentID == p.SourceEmbodimentID &&
		e.TargetEmbodimentID == p.TargetEmbodimentID &&
		e.IdentityCommitment == p.IdentityCommitment &&
		e.MissionCommitment == p.MissionCommitment
}
