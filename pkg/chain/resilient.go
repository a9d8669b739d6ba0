package chain

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

// ResilientOptions configures NewResilient. Zero values pick defaults.
type ResilientOptions struct {
	Backoff          BackoffPolicy
	BreakerThreshold int
	BreakerReset     time.Duration
	// Limiter throttles outgoing calls. nil disables throttling.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// Resilient wraps a Backend with a rate limiter, a circuit breaker and
// bounded retries of idempotent reads. SendTransaction is never retried here:
// resending is the submitter's decision since it owns the signed transaction.
type Resilient struct {
	next    Backend
	backoff BackoffPolicy
	breaker *CircuitBreaker
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ Backend = (*Resilient)(nil)

func NewResilient(next Backend, opts ResilientOptions) *Resilient {
	if opts.Backoff.MaxAttempts == 0 {
		opts.Backoff = DefaultBackoff()
	}
	if opts.BreakerThreshold == 0 {
		opts.BreakerThreshold = 5
	}
	if opts.BreakerReset == 0 {
		opts.BreakerReset = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resilient{
		next:    next,
		backoff: opts.Backoff,
		breaker: NewCircuitBreaker("rpc", opts.BreakerThreshold, opts.BreakerReset),
		limiter: opts.Limiter,
		logger:  logger.With("component", "chain.resilient"),
	}
}

// Breaker exposes the breaker for health reporting.
func (r *Resilient) Breaker() *CircuitBreaker { return r.breaker }

func (r *Resilient) do(ctx context.Context, op string, retry bool, fn func(context.Context) error) error {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return contracts.E(contracts.KindNetworkUnavailable, op, err)
		}
	}
	if !r.breaker.Allow() {
		return contracts.E(contracts.KindNetworkUnavailable, op, ErrBreakerOpen)
	}

	var err error
	if retry {
		err = Retry(ctx, r.backoff, op, fn)
	} else {
		err = fn(ctx)
	}

	if Classify(err) == contracts.KindNetworkUnavailable {
		r.breaker.Failure()
		r.logger.WarnContext(ctx, "rpc call failed", "op", op, "error", err, "breaker", r.breaker.State())
		return contracts.E(contracts.KindNetworkUnavailable, op, err)
	}
	r.breaker.Success()
	return err
}

func (r *Resilient) ChainID(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := r.do(ctx, "eth_chainId", true, func(ctx context.Context) error {
		var err error
		out, err = r.next.ChainID(ctx)
		return err
	})
	return out, err
}

func (r *Resilient) BlockNumber(ctx context.Context) (uint64, error) {
	var out uint64
	err := r.do(ctx, "eth_blockNumber", true, func(ctx context.Context) error {
		var err error
		out, err = r.next.BlockNumber(ctx)
		return err
	})
	return out, err
}

func (r *Resilient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var out *types.Header
	err := r.do(ctx, "eth_getBlockByNumber", true, func(ctx context.Context) error {
		var err error
		out, err = r.next.HeaderByNumber(ctx, number)
		return err
	})
	return out, err
}

func (r *Resilient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var out uint64
	err := r.do(ctx, "eth_getTransactionCount", true, func(ctx context.Context) error {
		var err error
		out, err = r.next.PendingNonceAt(ctx, account)
		return err
	})
	return out, err
}

func (r *Resilient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := r.do(ctx, "eth_gasPrice", true, func(ctx context.Context) error {
		var err error
		out, err = r.next.SuggestGasPrice(ctx)
		return err
	})
	return out, err
}

func (r *Resilient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := r.do(ctx, "eth_maxPriorityFeePerGas", true, func(ctx context.Context) error {
		var err error
		out, err = r.next.SuggestGasTipCap(ctx)
		return err
	})
	return out, err
}

func (r *Resilient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return r.do(ctx, "eth_sendRawTransaction", false, func(ctx context.Context) error {
		return r.next.SendTransaction(ctx, tx)
	})
}

func (r *Resilient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var out *types.Receipt
	err := r.do(ctx, "eth_getTransactionReceipt", true, func(ctx context.Context) error {
		var err error
		out, err = r.next.TransactionReceipt(ctx, txHash)
		return err
	})
	return out, err
}

func (r *Resilient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var out []types.Log
	err := r.do(ctx, "eth_getLogs", true, func(ctx context.Context) error {
		var err error
		out, err = r.next.FilterLogs(ctx, q)
		return err
	})
	return out, err
}
