package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIs_MatchesByKind(t *testing.T) {
	err := fmt.Errorf("anchor: %w", E(KindConfirmationTimeout, "submit.await", errors.New("deadline")))

	assert.True(t, errors.Is(err, ErrConfirmationTimeout))
	assert.False(t, errors.Is(err, ErrSubmissionRejected))
	assert.Equal(t, KindConfirmationTimeout, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestError_MessageCarriesOpAndTx(t *testing.T) {
	err := E(KindSubmissionRejected, "submit.broadcast", errors.New("nonce too low")).WithTx("0xabc")
	assert.Equal(t, "submit.broadcast: SubmissionRejected (tx 0xabc): nonce too low", err.Error())
}

func TestKind_Outcome(t *testing.T) {
	assert.Equal(t, OutcomeFailed, KindSubmissionRejected.Outcome())
	assert.Equal(t, OutcomeUnknown, KindConfirmationTimeout.Outcome())
	assert.Equal(t, OutcomeNotAttempted, KindNetworkUnavailable.Outcome())
	assert.Equal(t, OutcomeInvalid, KindMissingSigner.Outcome())

	assert.True(t, KindNetworkUnavailable.Retryable())
	assert.False(t, KindConfirmationTimeout.Retryable())
	assert.False(t, KindSubmissionRejected.Retryable())
}

func TestPacket_UnmarshalLegacyAliases(t *testing.T) {
	var p ResurrectionPacket
	err := json.Unmarshal([]byte(`{
		"agentId": "nova-001",
		"sourceId": "edge-A",
		"targetId": "cloud-B",
		"identityHash": "agent_nova-001",
		"missionHash": "mission_v1"
	}`), &p)
	require.NoError(t, err)

	assert.Equal(t, "edge-A", p.SourceEmbodimentID)
	assert.Equal(t, "cloud-B", p.TargetEmbodimentID)
	assert.Equal(t, "agent_nova-001", p.IdentityCommitment)
	assert.Equal(t, "mission_v1", p.MissionCommitment)
	assert.Empty(t, p.Jurisdiction)
}

func TestEvent_MatchesAndOrder(t *testing.T) {
	id := common.HexToHash("0x01")
	mission := common.HexToHash("0x02")
	ev := NotarizationEvent{
		SourceEmbodimentID: "edge-A",
		TargetEmbodimentID: "cloud-B",
		IdentityCommitment: id,
		MissionCommitment:  mission,
		BlockNumber:        10,
		LogIndex:           3,
	}
	p := EncodedPacket{
		AgentID:            "nova-001",
		SourceEmbodimentID: "edge-A",
		TargetEmbodimentID: "cloud-B",
		IdentityCommitment: id,
		MissionCommitment:  mission,
	}
	assert.True(t, ev.Matches(p))

	p.TargetEmbodimentID = "cloud-C"
	assert.False(t, ev.Matches(p))
}

func TestReceipt_GasCost(t *testing.T) {
	r := &TransactionReceipt{GasUsed: 21000, EffectiveGasPrice: big.NewInt(2)}
	assert.Equal(t, big.NewInt(42000), r.GasCost())
	assert.Nil(t, (&TransactionReceipt{GasUsed: 1}).GasCost())
}
