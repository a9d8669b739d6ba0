package txbuilder

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/chain"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/chain/simulated"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/commitment"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

var (
	contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	sender       = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
)

func newBuilder(t *testing.T, opts ...Option) *Builder {
	t.Helper()
	b, err := chain.NewBinding(contractAddr, nil)
	require.NoError(t, err)
	return New(b, opts...)
}

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

func dynamicFees() FeeParams {
	return FeeParams{MaxFeePerGas: Gwei(30), MaxPriorityFeePerGas: Gwei(1.5)}
}

func TestBuild_DynamicFee(t *testing.T) {
	b := newBuilder(t)
	req, err := b.Build(novaPacket(), sender, 4, dynamicFees(), big.NewInt(80002))
	require.NoError(t, err)

	assert.Equal(t, sender, req.From)
	assert.Equal(t, contractAddr, req.To)
	assert.Equal(t, uint64(4), req.Nonce)
	assert.Equal(t, RecordGasLimit, req.Gas)
	assert.Equal(t, commitment.MustEncode("mission_v1"), req.Packet.MissionCommitment)

	tx := req.UnsignedTx()
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, int64(80002), tx.ChainId().Int64())
	assert.Equal(t, "30000000000", tx.GasFeeCap().String())
	assert.Equal(t, "1500000000", tx.GasTipCap().String())
	assert.Equal(t, contractAddr, *tx.To())
}

func TestBuild_LegacyFee(t *testing.T) {
	b := newBuilder(t, WithGasLimit(500000))
	req, err := b.Build(novaPacket(), sender, 0, FeeParams{GasPrice: Gwei(20)}, big.NewInt(1337))
	require.NoError(t, err)

	tx := req.UnsignedTx()
	assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
	assert.Equal(t, uint64(500000), tx.Gas())
	assert.Equal(t, "20000000000", tx.GasPrice().String())
}

func TestBuild_IsPure(t *testing.T) {
	b := newBuilder(t)
	fees := dynamicFees()
	a, err := b.Build(novaPacket(), sender, 1, fees, big.NewInt(1))
	require.NoError(t, err)
	c, err := b.Build(novaPacket(), sender, 1, fees, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, a.UnsignedTx().Hash(), c.UnsignedTx().Hash())

	fees.MaxFeePerGas.SetInt64(1)
	assert.Equal(t, "30000000000", a.Fees.MaxFeePerGas.String(), "request does not alias caller fees")
}

func TestBuild_Failures(t *testing.T) {
	b := newBuilder(t)
	bad := novaPacket()
	bad.IdentityCommitment = "0x" + strings.Repeat("g", 64)

	tests := []struct {
		name   string
		packet contracts.ResurrectionPacket
		sender common.Address
		fees   FeeParams
		chain  *big.Int
		want   error
	}{
		{"no sender", novaPacket(), common.Address{}, dynamicFees(), big.NewInt(1), contracts.ErrMissingSigner},
		{"no agent", contracts.ResurrectionPacket{}, sender, dynamicFees(), big.NewInt(1), contracts.ErrInvalidInput},
		{"no chain", novaPacket(), sender, dynamicFees(), nil, contracts.ErrInvalidInput},
		{"no fees", novaPacket(), sender, FeeParams{}, big.NewInt(1), contracts.ErrInvalidInput},
		{"both fee styles", novaPacket(), sender, FeeParams{GasPrice: Gwei(1), MaxFeePerGas: Gwei(2), MaxPriorityFeePerGas: Gwei(1)}, big.NewInt(1), contracts.ErrInvalidInput},
		{"half pair", novaPacket(), sender, FeeParams{MaxFeePerGas: Gwei(2)}, big.NewInt(1), contracts.ErrInvalidInput},
		{"tip above cap", novaPacket(), sender, FeeParams{MaxFeePerGas: Gwei(1), MaxPriorityFeePerGas: Gwei(2)}, big.NewInt(1), contracts.ErrInvalidInput},
		{"malformed commitment", bad, sender, dynamicFees(), big.NewInt(1), contracts.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(tt.packet, tt.sender, 0, tt.fees, tt.chain)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGwei(t *testing.T) {
	assert.Equal(t, "1500000000", Gwei(1.5).String())
	assert.Equal(t, "30000000000", Gwei(30).String())
}

func TestSuggestFees(t *testing.T) {
	ctx := context.Background()
	b, err := chain.NewBinding(contractAddr, nil)
	require.NoError(t, err)
	ledger := simulated.New(1337, b, simulated.WithBaseFee(Gwei(2)))

	fees, err := SuggestFees(ctx, ledger, FeeParams{})
	require.NoError(t, err)
	require.True(t, fees.Dynamic())
	assert.Equal(t, Gwei(1.5).String(), fees.MaxPriorityFeePerGas.String())
	assert.Equal(t, Gwei(5.5).String(), fees.MaxFeePerGas.String())

	override := FeeParams{GasPrice: Gwei(9)}
	fees, err = SuggestFees(ctx, ledger, override)
	require.NoError(t, err)
	assert.Equal(t, Gwei(9).String(), fees.GasPrice.String())

	ledger.SetOffline(true)
	_, err = SuggestFees(ctx, ledger, FeeParams{})
	assert.ErrorIs(t, err, contracts.ErrNetworkUnavailable)
}
