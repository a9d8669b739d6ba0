// Package nonce serializes nonce assignment per sending account. A Lease is
// held from the nonce lookup until the transaction using it has been
// broadcast, so concurrent anchors from one key never collide.
package nonce

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/chain"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

// Source reports the ledger's next nonce for an account, including pending
// transactions.
type Source interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Manager hands out exclusive nonce leases.
type Manager interface {
	Acquire(ctx context.Context, sender common.Address) (*Lease, error)
}

// Lease is an exclusive claim on the next nonce of one sender. Exactly one of
// Commit or Release must be called; later calls are no-ops.
type Lease struct {
	sender  common.Address
	nonce   uint64
	once    sync.Once
	commit  func() error
	release func() error
}

// NewLease builds a lease for Manager implementations outside this package.
// commit and release may be nil.
func NewLease(sender common.Address, n uint64, commit, release func() error) *Lease {
	noop := func() error { return nil }
	if commit == nil {
		commit = noop
	}
	if release == nil {
		release = noop
	}
	return &Lease{sender: sender, nonce: n, commit: commit, release: release}
}

func (l *Lease) Sender() common.Address { return l.sender }

func (l *Lease) Nonce() uint64 { return l.nonce }

// Commit records that the nonce was consumed by a broadcast transaction.
func (l *Lease) Commit() error {
	var err error
	l.once.Do(func() { err = l.commit() })
	return err
}

// Release gives the nonce back unused. The next Acquire re-reads the ledger.
func (l *Lease) Release() error {
	var err error
	l.once.Do(func() { err = l.release() })
	return err
}

func lookup(ctx context.Context, src Source, sender common.Address) (uint64, error) {
	n, err := src.PendingNonceAt(ctx, sender)
	if err != nil {
		return 0, chain.Wrap("nonce.lookup", err)
	}
	return n, nil
}

// Local is an in-process Manager.
type Local struct {
	source Source
	mu     sync.Mutex
	slots  map[common.Address]*slot
}

type slot struct {
	sem   chan struct{}
	next  uint64
	known bool
}

var _ Manager = (*Local)(nil)

func NewLocal(source Source) *Local {
	return &Local{source: source, slots: make(map[common.Address]*slot)}
}

func (m *Local) slot(sender common.Address) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[sender]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		m.slots[sender] = s
	}
	return s
}

// Acquire blocks until the sender's slot is free or ctx is done. The nonce
// is max(ledger pending nonce, last committed + 1).
func (m *Local) Acquire(ctx context.Context, sender common.Address) (*Lease, error) {
	s := m.slot(sender)
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, contracts.E(contracts.KindNetworkUnavailable, "nonce.acquire", ctx.Err())
	}

	n, err := lookup(ctx, m.source, sender)
	if err != nil {
		<-s.sem
		return nil, err
	}
	if s.known && s.next > n {
		n = s.next
	}
	return &Lease{
		sender: sender,
		nonce:  n,
		commit: func() error {
			s.next = n + 1
			s.known = true
			<-s.sem
			return nil
		},
		release: func() error {
			s.known = false
			<-s.sem
			return nil
		},
	}, nil
}
