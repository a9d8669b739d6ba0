// Package simulated is an in-memory ledger that speaks the chain.Backend
// interface. It executes recordResurrection calls against a contract binding,
// emits ResurrectionRecorded logs and enforces nonce, balance and chain-ID
// rules the way a node would, so that the submitter, reader and verifier can
// be exercised end to end without a network.
package simulated

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"syscall"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/chain"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

const (
	intrinsicGas   = 21000
	zeroByteGas    = 4
	nonZeroByteGas = 16
	recordExecGas  = 45000
	blockGasLimit  = 30_000_000
	defaultStartTS = 1_700_000_000
	blockPeriod    = 2
)

var (
	// ErrOffline is returned by every call while the ledger is offline.
	ErrOffline = fmt.Errorf("simulated ledger offline: %w", syscall.ECONNREFUSED)

	defaultBaseFee = big.NewInt(1_000_000_000)
	defaultTip     = big.NewInt(1_500_000_000)
)

// RPCError mimics a JSON-RPC error object returned by a node.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string  { return e.Message }
func (e *RPCError) ErrorCode() int { return e.Code }

func rejected(format string, args ...any) error {
	return &RPCError{Code: -32000, Message: fmt.Sprintf(format, args...)}
}

type block struct {
	header   *types.Header
	receipts []*types.Receipt
	logs     []types.Log
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu sync.Mutex

	chainID *big.Int
	signer  types.Signer
	binding *chain.Binding

	blocks   []*block
	pending  []*types.Transaction
	known    map[common.Hash]bool
	receipts map[common.Hash]*types.Receipt
	nonces   map[common.Address]uint64
	balances map[common.Address]*big.Int

	autoMine bool
	offline  bool
	baseFee  *big.Int
	maxSpan  uint64
	revertIf func(contracts.EncodedPacket) bool
	dropNext int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithAutoMine mines a block for every accepted transaction. Default true.
func WithAutoMine(on bool) Option { return func(l *Ledger) { l.autoMine = on } }

// WithFunds credits addr with wei at genesis.
func WithFunds(addr common.Address, wei *big.Int) Option {
	return func(l *Ledger) { l.balances[addr] = new(big.Int).Set(wei) }
}

// WithBaseFee sets the base fee reported in headers.
func WithBaseFee(wei *big.Int) Option { return func(l *Ledger) { l.baseFee = new(big.Int).Set(wei) } }

// WithMaxLogSpan makes FilterLogs refuse ranges wider than span blocks, like
// hosted providers do.
func WithMaxLogSpan(span uint64) Option { return func(l *Ledger) { l.maxSpan = span } }

// WithRevert makes record calls whose packet satisfies fn revert.
func WithRevert(fn func(contracts.EncodedPacket) bool) Option {
	return func(l *Ledger) { l.revertIf = fn }
}

// New creates a ledger with a genesis block.
func New(chainID int64, binding *chain.Binding, opts ...Option) *Ledger {
	l := &Ledger{
		chainID:  big.NewInt(chainID),
		signer:   types.LatestSignerForChainID(big.NewInt(chainID)),
		binding:  binding,
		known:    make(map[common.Hash]bool),
		receipts: make(map[common.Hash]*types.Receipt),
		nonces:   make(map[common.Address]uint64),
		balances: make(map[common.Address]*big.Int),
		autoMine: true,
		baseFee:  new(big.Int).Set(defaultBaseFee),
	}
	for _, opt := range opts {
		opt(l)
	}
	genesis := &types.Header{
		Number:   big.NewInt(0),
		Time:     defaultStartTS,
		GasLimit: blockGasLimit,
		BaseFee:  new(big.Int).Set(l.baseFee),
	}
	l.blocks = append(l.blocks, &block{header: genesis})
	return l
}

var _ chain.Backend = (*Ledger)(nil)

// SetOffline toggles connectivity. While offline every call fails with ErrOffline.
func (l *Ledger) SetOffline(off bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offline = off
}

// DropNextSends makes the next n broadcasts fail with a transport error after
// the node has already accepted the transaction, as happens when a response
// is lost in transit.
func (l *Ledger) DropNextSends(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropNext = n
}

// SetAutoMine toggles automatic mining.
func (l *Ledger) SetAutoMine(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.autoMine = on
}

// Fund credits addr with wei.
func (l *Ledger) Fund(addr common.Address, wei *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balanceOf(addr).Add(l.balanceOf(addr), wei)
}

// Balance returns addr's balance.
func (l *Ledger) Balance(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceOf(addr))
}

// Commit mines all pending transactions into a new block and returns its number.
func (l *Ledger) Commit() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mine()
}

// AdvanceBlocks mines n blocks.
func (l *Ledger) AdvanceBlocks(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < n; i++ {
		l.mine()
	}
}

// PendingCount returns the number of transactions waiting to be mined.
func (l *Ledger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// InjectLog appends a raw log to the latest block. Used to simulate events
// from other contract versions or malformed payloads.
func (l *Ledger) InjectLog(lg types.Log) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.blocks[len(l.blocks)-1]
	lg.BlockNumber = b.header.Number.Uint64()
	lg.BlockHash = b.header.Hash()
	lg.Index = uint(len(b.logs))
	if lg.Address == (common.Address{}) && l.binding != nil {
		lg.Address = l.binding.Address()
	}
	b.logs = append(b.logs, lg)
}

func (l *Ledger) ChainID(context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.offline {
		return nil, ErrOffline
	}
	return new(big.Int).Set(l.chainID), nil
}

func (l *Ledger) BlockNumber(context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.offline {
		return 0, ErrOffline
	}
	return l.head(), nil
}

func (l *Ledger) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.offline {
		return nil, ErrOffline
	}
	n := l.head()
	if number != nil && number.Sign() >= 0 {
		if !number.IsUint64() || number.Uint64() > n {
			return nil, ethereum.NotFound
		}
		n = number.Uint64()
	}
	return types.CopyHeader(l.blocks[n].header), nil
}

func (l *Ledger) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.offline {
		return 0, ErrOffline
	}
	return l.pendingNonce(account), nil
}

func (l *Ledger) SuggestGasPrice(context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.offline {
		return nil, ErrOffline
	}
	return new(big.Int).Add(l.baseFee, defaultTip), nil
}

func (l *Ledger) SuggestGasTipCap(context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.offline {
		return nil, ErrOffline
	}
	return new(big.Int).Set(defaultTip), nil
}

func (l *Ledger) SendTransaction(_ context.Context, tx *types.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.offline {
		return ErrOffline
	}
	// geth forgets mined transactions; a resend then fails the nonce check.
	if _, mined := l.receipts[tx.Hash()]; l.known[tx.Hash()] && !mined {
		return rejected("already known")
	}
	if tx.ChainId() != nil && tx.ChainId().Sign() != 0 && tx.ChainId().Cmp(l.chainID) != 0 {
		return rejected("invalid chain id: have %s want %s", tx.ChainId(), l.chainID)
	}
	from, err := types.Sender(l.signer, tx)
	if err != nil {
		return rejected("invalid sender: %v", err)
	}
	want := l.pendingNonce(from)
	switch {
	case tx.Nonce() < want:
		return rejected("nonce too low: next nonce %d, tx nonce %d", want, tx.Nonce())
	case tx.Nonce() > want:
		return rejected("nonce too high: next nonce %d, tx nonce %d", want, tx.Nonce())
	}
	if tx.Gas() < intrinsicGas {
		return rejected("intrinsic gas too low: have %d, want %d", tx.Gas(), intrinsicGas)
	}
	if tx.Gas() > blockGasLimit {
		return rejected("exceeds block gas limit")
	}
	if tx.GasFeeCap().Cmp(l.baseFee) < 0 {
		return rejected("max fee per gas less than block base fee: maxFeePerGas: %s baseFee: %s", tx.GasFeeCap(), l.baseFee)
	}
	cost := new(big.Int).Mul(new(big.Int).SetUint64(tx.Gas()), tx.GasFeeCap())
	cost.Add(cost, tx.Value())
	if l.balanceOf(from).Cmp(cost) < 0 {
		return rejected("insufficient funds for gas * price + value: address %s have %s want %s", from.Hex(), l.balanceOf(from), cost)
	}

	l.known[tx.Hash()] = true
	l.pending = append(l.pending, tx)
	if l.autoMine {
		l.mine()
	}
	if l.dropNext > 0 {
		l.dropNext--
		return fmt.Errorf("simulated response lost: %w", syscall.ECONNRESET)
	}
	return nil
}

func (l *Ledger) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.offline {
		return nil, ErrOffline
	}
	r, ok := l.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	cp := *r
	return &cp, nil
}

func (l *Ledger) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.offline {
		return nil, ErrOffline
	}
	head := l.head()
	from, to := uint64(0), head
	if q.FromBlock != nil {
		from = q.FromBlock.Uint64()
	}
	if q.ToBlock != nil && q.ToBlock.Uint64() < head {
		to = q.ToBlock.Uint64()
	}
	if from > to {
		return nil, nil
	}
	if l.maxSpan > 0 && to-from+1 > l.maxSpan {
		return nil, rejected("query exceeds max block range %d", l.maxSpan)
	}

	var out []types.Log
	for n := from; n <= to; n++ {
		for _, lg := range l.blocks[n].logs {
			if matchLog(lg, q) {
				out = append(out, lg)
			}
		}
	}
	return out, nil
}

func matchLog(lg types.Log, q ethereum.FilterQuery) bool {
	if len(q.Addresses) > 0 {
		found := false
		for _, a := range q.Addresses {
			if a == lg.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i, alts := range q.Topics {
		if len(alts) == 0 {
			continue
		}
		if i >= len(lg.Topics) {
			return false
		}
		found := false
		for _, t := range alts {
			if t == lg.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (l *Ledger) head() uint64 {
	return uint64(len(l.blocks) - 1)
}

func (l *Ledger) balanceOf(addr common.Address) *big.Int {
	b, ok := l.balances[addr]
	if !ok {
		b = new(big.Int)
		l.balances[addr] = b
	}
	return b
}

func (l *Ledger) pendingNonce(addr common.Address) uint64 {
	n := l.nonces[addr]
	for _, tx := range l.pending {
		if from, err := types.Sender(l.signer, tx); err == nil && from == addr {
			n++
		}
	}
	return n
}

// mine must be called with l.mu held.
func (l *Ledger) mine() uint64 {
	parent := l.blocks[len(l.blocks)-1].header
	number := new(big.Int).Add(parent.Number, big.NewInt(1))
	header := &types.Header{
		ParentHash: parent.Hash(),
		Number:     number,
		Time:       parent.Time + blockPeriod,
		GasLimit:   blockGasLimit,
		BaseFee:    new(big.Int).Set(l.baseFee),
	}
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], number.Uint64())
	parts := [][]byte{parent.Hash().Bytes(), seed[:]}
	for _, tx := range l.pending {
		parts = append(parts, tx.Hash().Bytes())
	}
	header.TxHash = crypto.Keccak256Hash(parts...)
	blockHash := header.Hash()

	b := &block{header: header}
	var cumulative uint64
	for i, tx := range l.pending {
		from, _ := types.Sender(l.signer, tx)
		status, gasUsed, logs := l.execute(tx, from, header.Time)
		cumulative += gasUsed

		price := effectivePrice(tx, l.baseFee)
		fee := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), price)
		l.balanceOf(from).Sub(l.balanceOf(from), fee)
		l.nonces[from] = tx.Nonce() + 1

		for j := range logs {
			logs[j].BlockNumber = number.Uint64()
			logs[j].BlockHash = blockHash
			logs[j].TxHash = tx.Hash()
			logs[j].TxIndex = uint(i)
			logs[j].Index = uint(len(b.logs))
			b.logs = append(b.logs, logs[j])
		}
		receipt := &types.Receipt{
			Type:              tx.Type(),
			Status:            status,
			CumulativeGasUsed: cumulative,
			TxHash:            tx.Hash(),
			GasUsed:           gasUsed,
			EffectiveGasPrice: price,
			BlockHash:         blockHash,
			BlockNumber:       new(big.Int).Set(number),
			TransactionIndex:  uint(i),
		}
		for j := range logs {
			lg := b.logs[len(b.logs)-len(logs)+j]
			receipt.Logs = append(receipt.Logs, &lg)
		}
		l.receipts[tx.Hash()] = receipt
	}
	l.pending = nil
	l.blocks = append(l.blocks, b)
	return number.Uint64()
}

func (l *Ledger) execute(tx *types.Transaction, from common.Address, blockTime uint64) (uint64, uint64, []types.Log) {
	gasUsed := uint64(intrinsicGas)
	for _, c := range tx.Data() {
		if c == 0 {
			gasUsed += zeroByteGas
		} else {
			gasUsed += nonZeroByteGas
		}
	}
	if l.binding == nil || tx.To() == nil || *tx.To() != l.binding.Address() {
		if gasUsed > tx.Gas() {
			return types.ReceiptStatusFailed, tx.Gas(), nil
		}
		return types.ReceiptStatusSuccessful, gasUsed, nil
	}

	gasUsed += recordExecGas
	if gasUsed > tx.Gas() {
		return types.ReceiptStatusFailed, tx.Gas(), nil
	}
	p, err := l.binding.UnpackRecord(tx.Data())
	if err != nil || (l.revertIf != nil && l.revertIf(p)) {
		return types.ReceiptStatusFailed, gasUsed, nil
	}
	topics, data, err := l.binding.EncodeEvent(p, from, blockTime)
	if err != nil {
		return types.ReceiptStatusFailed, gasUsed, nil
	}
	return types.ReceiptStatusSuccessful, gasUsed, []types.Log{{
		Address: l.binding.Address(),
		Topics:  topics,
		Data:    data,
	}}
}

func effectivePrice(tx *types.Transaction, baseFee *big.Int) *big.Int {
	if tx.Type() == types.LegacyTxType {
		return new(big.Int).Set(tx.GasPrice())
	}
	price := new(big.Int).Add(baseFee, tx.GasTipCap())
	if price.Cmp(tx.GasFeeCap()) > 0 {
		price.Set(tx.GasFeeCap())
	}
	return price
}

// Record mines a block containing a ResurrectionRecorded event from caller
// without a signed transaction. It returns the synthetic tx hash and block.
func (l *Ledger) Record(caller common.Address, p contracts.EncodedPacket) (common.Hash, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	number := l.mine()
	b := l.blocks[number]

	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], uint64(len(b.logs)))
	txHash := crypto.Keccak256Hash(caller.Bytes(), b.header.Hash().Bytes(), seed[:])

	topics, data, err := l.binding.EncodeEvent(p, caller, b.header.Time)
	if err != nil {
		panic(err)
	}
	b.logs = append(b.logs, types.Log{
		Address:     l.binding.Address(),
		Topics:      topics,
		Data:        data,
		BlockNumber: number,
		BlockHash:   b.header.Hash(),
		TxHash:      txHash,
		Index:       uint(len(b.logs)),
	})
	return txHash, number
}
