// Package chain is the ledger-facing layer: the backend abstraction shared by
// the real JSON-RPC client and the simulated ledger, error classification,
// a resilient backend wrapper, deployment descriptors and the contract binding.
package chain

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

// HeadReader reads chain identity and the current head.
type HeadReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// LogBackend is what the event reader needs. It never requires key material.
type LogBackend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// FeeBackend suggests fee parameters.
type FeeBackend interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// TxBackend is what the submitter needs to broadcast and confirm.
type TxBackend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Backend is the full ledger handle. *ethclient.Client satisfies it, as does
// the simulated ledger in package simulated.
type Backend interface {
	HeadReader
	LogBackend
	FeeBackend
	TxBackend
}

var _ Backend = (*ethclient.Client)(nil)

// Dial connects to a JSON-RPC endpoint. The returned client is meant to be
// constructed once per process and passed to every component.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	if rpcURL == "" {
		return nil, contracts.Errorf(contracts.KindNetworkUnavailable, "chain.dial", "rpc url is required")
	}
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, contracts.E(contracts.KindNetworkUnavailable, "chain.dial", fmt.Errorf("dial %s: %w", rpcURL, err))
	}
	return c, nil
}
