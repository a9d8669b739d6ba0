package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

type stubBackend struct {
	blockErrs []error
	blockCall int
	sendErr   error
	sendCall  int
}

func (s *stubBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1337), nil }

func (s *stubBackend) BlockNumber(context.Context) (uint64, error) {
	i := s.blockCall
	s.blockCall++
	if i < len(s.blockErrs) && s.blockErrs[i] != nil {
		return 0, s.blockErrs[i]
	}
	return 42, nil
}

func (s *stubBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(42)}, nil
}

func (s *stubBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 0, nil }

func (s *stubBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (s *stubBackend) SuggestGasTipCap(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (s *stubBackend) SendTransaction(context.Context, *types.Transaction) error {
	s.sendCall++
	return s.sendErr
}

func (s *stubBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func (s *stubBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func fastOptions() ResilientOptions {
	return ResilientOptions{
		Backoff:          BackoffPolicy{Base: time.Millisecond, Max: time.Millisecond, MaxAttempts: 3},
		BreakerThreshold: 2,
		BreakerReset:     time.Hour,
	}
}

func TestResilient_RetriesReads(t *testing.T) {
	stub := &stubBackend{blockErrs: []error{errors.New("EOF"), errors.New("EOF")}}
	r := NewResilient(stub, fastOptions())

	n, err := r.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)
	assert.Equal(t, 3, stub.blockCall)
	assert.Equal(t, "CLOSED", r.Breaker().State())
}

func TestResilient_NeverRetriesSend(t *testing.T) {
	stub := &stubBackend{sendErr: errors.New("connection reset")}
	r := NewResilient(stub, fastOptions())

	err := r.SendTransaction(context.Background(), types.NewTx(&types.LegacyTx{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrNetworkUnavailable)
	assert.Equal(t, 1, stub.sendCall)
}

func TestResilient_RejectionPassesThroughUnwrapped(t *testing.T) {
	stub := &stubBackend{sendErr: jsonRPCError{-32000, "already known"}}
	r := NewResilient(stub, fastOptions())

	err := r.SendTransaction(context.Background(), types.NewTx(&types.LegacyTx{}))
	require.Error(t, err)
	assert.True(t, IsKnownTransaction(err))
	assert.Equal(t, "CLOSED", r.Breaker().State())
}

func TestResilient_BreakerOpens(t *testing.T) {
	stub := &stubBackend{sendErr: errors.New("EOF")}
	r := NewResilient(stub, fastOptions())
	ctx := context.Background()

	_ = r.SendTransaction(ctx, types.NewTx(&types.LegacyTx{}))
	_ = r.SendTransaction(ctx, types.NewTx(&types.LegacyTx{}))
	assert.Equal(t, "OPEN", r.Breaker().State())

	err := r.SendTransaction(ctx, types.NewTx(&types.LegacyTx{}))
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.ErrorIs(t, err, contracts.ErrNetworkUnavailable)
	assert.Equal(t, 2, stub.sendCall, "open breaker does not reach the node")
}

func TestResilient_ReceiptNotFoundIsNotAFailure(t *testing.T) {
	r := NewResilient(&stubBackend{}, fastOptions())
	for i := 0; i < 5; i++ {
		_, err := r.TransactionReceipt(context.Background(), common.Hash{})
		assert.ErrorIs(t, err, ethereum.NotFound)
	}
	assert.Equal(t, "CLOSED", r.Breaker().State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker("test", 1, time.Minute)
	cb.now = func() time.Time { return now }

	cb.Failure()
	assert.False(t, cb.Allow())

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow(), "probe after reset timeout")
	assert.False(t, cb.Allow(), "only one probe in flight")

	cb.Success()
	assert.True(t, cb.Allow())
	assert.Equal(t, "CLOSED", cb.State())
}
