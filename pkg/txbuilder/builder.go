// Package txbuilder turns a resurrection packet into an unsigned
// recordResurrection transaction. Building is pure: it never contacts the
// ledger. Fee discovery lives in fees.go.
package txbuilder

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/chain"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/commitment"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

// RecordGasLimit is the gas ceiling for a recordResurrection call.
const RecordGasLimit uint64 = 350000

// Request is a fully parameterized, unsigned anchor transaction.
type Request struct {
	From    common.Address
	To      common.Address
	Nonce   uint64
	Gas     uint64
	Fees    FeeParams
	ChainID *big.Int
	Data    []byte
	Packet  contracts.EncodedPacket
}

// UnsignedTx renders the request as a dynamic-fee transaction when a
// base+priority pair is set, otherwise as a legacy transaction.
func (r *Request) UnsignedTx() *types.Transaction {
	to := r.To
	if r.Fees.Dynamic() {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   new(big.Int).Set(r.ChainID),
			Nonce:     r.Nonce,
			GasTipCap: new(big.Int).Set(r.Fees.MaxPriorityFeePerGas),
			GasFeeCap: new(big.Int).Set(r.Fees.MaxFeePerGas),
			Gas:       r.Gas,
			To:        &to,
			Data:      r.Data,
		})
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    r.Nonce,
		GasPrice: new(big.Int).Set(r.Fees.GasPrice),
		Gas:      r.Gas,
		To:       &to,
		Data:     r.Data,
	})
}

// Builder binds packets to one deployed contract.
type Builder struct {
	binding  *chain.Binding
	gasLimit uint64
}

type Option func(*Builder)

// WithGasLimit overrides RecordGasLimit.
func WithGasLimit(gas uint64) Option {
	return func(b *Builder) {
		if gas > 0 {
			b.gasLimit = gas
		}
	}
}

func New(binding *chain.Binding, opts ...Option) *Builder {
	b := &Builder{binding: binding, gasLimit: RecordGasLimit}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GasLimit returns the configured gas ceiling.
func (b *Builder) GasLimit() uint64 { return b.gasLimit }

// Build encodes both commitments and assembles the call.
func (b *Builder) Build(p contracts.ResurrectionPacket, sender common.Address, nonce uint64, fees FeeParams, chainID *big.Int) (*Request, error) {
	const op = "txbuilder.build"
	if sender == (common.Address{}) {
		return nil, contracts.Errorf(contracts.KindMissingSigner, op, "a sender identity is required to build a write transaction")
	}
	if strings.TrimSpace(p.AgentID) == "" {
		return nil, contracts.Errorf(contracts.KindInvalidInput, op, "agentId is required")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, contracts.Errorf(contracts.KindInvalidInput, op, "chain id must be positive")
	}
	if err := fees.Validate(); err != nil {
		return nil, err
	}

	encoded, err := commitment.EncodePacket(p)
	if err != nil {
		return nil, err
	}
	data, err := b.binding.PackRecord(encoded)
	if err != nil {
		return nil, err
	}

	return &Request{
		From:    sender,
		To:      b.binding.Address(),
		Nonce:   nonce,
		Gas:     b.gasLimit,
		Fees:    fees.clone(),
		ChainID: new(big.Int).Set(chainID),
		Data:    data,
		Packet:  encoded,
	}, nil
}
