// Package contracts defines the resurrection notarization data model shared by
// the encoder, builder, submitter, reader and verifier, plus the error taxonomy
// every exposed operation reports.
package contracts

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultJurisdiction is the policy tag used by the CLI and demo tooling when
// the caller does not supply one. The core carries jurisdiction unmodified.
const DefaultJurisdiction = "COVENANT_TREASURY_TRUST"

// ResurrectionPacket is a claim that an agent moved from one embodiment to
// another. The commitment fields hold raw inputs: either a 0x-prefixed
// 64-digit hex string (taken literally) or free text (hashed).
type ResurrectionPacket struct {
	AgentID            string `json:"agentId"`
	SourceEmbodimentID string `json:"sourceEmbodimentId"`
	TargetEmbodimentID string `json:"targetEmbodimentId"`
	IdentityCommitment string `json:"identityCommitment"`
	MissionCommitment  string `json:"missionCommitment"`
	Jurisdiction       string `json:"jurisdiction"`
}

// UnmarshalJSON accepts the canonical field names and the legacy aliases
// (sourceId, targetId, identityHash, missionHash) used by older clients.
func (p *ResurrectionPacket) UnmarshalJSON(data []byte) error {
	var raw struct {
		AgentID            string `json:"agentId"`
		SourceEmbodimentID string `json:"sourceEmbodimentId"`
		TargetEmbodimentID string `json:"targetEmbodimentId"`
		IdentityCommitment string `json:"identityCommitment"`
		MissionCommitment  string `json:"missionCommitment"`
		Jurisdiction       string `json:"jurisdiction"`

		SourceID     string `json:"sourceId"`
		TargetID     string `json:"targetId"`
		IdentityHash string `json:"identityHash"`
		MissionHash  string `json:"missionHash"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = ResurrectionPacket{
		AgentID:            raw.AgentID,
		SourceEmbodimentID: firstNonEmpty(raw.SourceEmbodimentID, raw.SourceID),
		TargetEmbodimentID: firstNonEmpty(raw.TargetEmbodimentID, raw.TargetID),
		IdentityCommitment: firstNonEmpty(raw.IdentityCommitment, raw.IdentityHash),
		MissionCommitment:  firstNonEmpty(raw.MissionCommitment, raw.MissionHash),
		Jurisdiction:       raw.Jurisdiction,
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// EncodedPacket is a ResurrectionPacket whose commitments have been reduced to
// their on-ledger bytes32 form.
type EncodedPacket struct {
	AgentID            string      `json:"agentId"`
	SourceEmbodimentID string      `json:"sourceEmbodimentId"`
	TargetEmbodimentID string      `json:"targetEmbodimentId"`
	IdentityCommitment common.Hash `json:"identityCommitment"`
	MissionCommitment  common.Hash `json:"missionCommitment"`
	Jurisdiction       string      `json:"jurisdiction"`
}

// TransactionReceipt is the result of a confirmed anchor submission.
type TransactionReceipt struct {
	TxHash            common.Hash    `json:"txHash"`
	BlockNumber       uint64         `json:"blockNumber"`
	GasUsed           uint64         `json:"gasUsed"`
	EffectiveGasPrice *big.Int       `json:"effectiveGasPrice,omitempty"`
	Latency           time.Duration  `json:"latency"`
	ChainID           int64          `json:"chainId"`
	Sender            common.Address `json:"sender"`
	Nonce             uint64         `json:"nonce"`

	// ExplorerURL is a human-facing link derived from the chain ID. It is not
	// authoritative and is empty for local chains.
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

// GasCost returns gasUsed * effectiveGasPrice in wei, or nil if the price is unknown.
func (r *TransactionReceipt) GasCost() *big.Int {
	if r == nil || r.EffectiveGasPrice == nil {
		return nil
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
}
