// Package anchor is the core facade: it wires the encoder, builder, nonce
// manager, submitter, reader and verifier around one ledger handle and
// exposes Anchor, Verify and ReadEvents.
package anchor

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel/attribute"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/chain"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/events"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/nonce"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/observability"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/policy"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/signer"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/store"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/submitter"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/txbuilder"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/verifier"
)

type options struct {
	expectedChainID int64
	networks        map[int64]Network
	fees            txbuilder.FeeParams
	gasLimit        uint64
	span            uint64
	submit          submitter.Options
	nonces          nonce.Manager
	journal         store.Journal
	policy          *policy.Evaluator
	sink            observability.Sink
	provider        *observability.Provider
	nonceRetries    int
	logger          *slog.Logger
}

// Option configures a Client.
type Option func(*options)

// WithExpectedChainID makes New fail when the ledger reports another chain.
func WithExpectedChainID(id int64) Option { return func(o *options) { o.expectedChainID = id } }

// WithNetworks overrides the built-in network table.
func WithNetworks(n map[int64]Network) Option { return func(o *options) { o.networks = n } }

// WithFees fixes fee parameters. Zero fees are discovered from the ledger per anchor.
func WithFees(f txbuilder.FeeParams) Option { return func(o *options) { o.fees = f } }

func WithGasLimit(gas uint64) Option { return func(o *options) { o.gasLimit = gas } }

// WithLogSpan sets the event reader window.
func WithLogSpan(span uint64) Option { return func(o *options) { o.span = span } }

// WithSubmitter sets confirmation depth, timeout, poll interval and backoff.
// Its Sink and Logger are replaced by the client's.
func WithSubmitter(s submitter.Options) Option { return func(o *options) { o.submit = s } }

// WithNonceManager replaces the in-process nonce manager, e.g. with nonce.Redis.
func WithNonceManager(m nonce.Manager) Option { return func(o *options) { o.nonces = m } }

func WithJournal(j store.Journal) Option { return func(o *options) { o.journal = j } }

func WithPolicy(p *policy.Evaluator) Option { return func(o *options) { o.policy = p } }

func WithSink(s observability.Sink) Option { return func(o *options) { o.sink = s } }

// WithProvider enables spans and operation metrics.
func WithProvider(p *observability.Provider) Option { return func(o *options) { o.provider = p } }

// WithNonceRetries bounds how often a nonce-conflict rejection is retried
// with a fresh nonce. Default 1.
func WithNonceRetries(n int) Option { return func(o *options) { o.nonceRetries = n } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// Client is an explicit, long-lived handle. It is safe for concurrent use and
// never re-initializes itself.
type Client struct {
	backend  chain.Backend
	binding  *chain.Binding
	chainID  *big.Int
	network  Network
	fees     txbuilder.FeeParams
	builder  *txbuilder.Builder
	sub      *submitter.Submitter
	reader   *events.Reader
	verifier *verifier.Verifier
	nonces   nonce.Manager
	journal  store.Journal
	policy   *policy.Evaluator
	sink     observability.Sink
	provider *observability.Provider
	retries  int
	logger   *slog.Logger
}

// New resolves the chain ID once and assembles the components.
func New(ctx context.Context, backend chain.Backend, binding *chain.Binding, opts ...Option) (*Client, error) {
	o := options{sink: observability.Nop{}, nonceRetries: 1, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if backend == nil || binding == nil {
		return nil, contracts.Errorf(contracts.KindInvalidInput, "anchor.new", "backend and binding are required")
	}
	if !o.fees.IsZero() {
		if err := o.fees.Validate(); err != nil {
			return nil, err
		}
	}

	id, err := backend.ChainID(ctx)
	if err != nil {
		return nil, chain.Wrap("anchor.chain_id", err)
	}
	if o.expectedChainID != 0 && id.Int64() != o.expectedChainID {
		return nil, contracts.Errorf(contracts.KindInvalidInput, "anchor.new",
			"ledger reports chain %d, configured for %d", id.Int64(), o.expectedChainID)
	}

	logger := o.logger.With("component", "anchor")
	if o.nonces == nil {
		o.nonces = nonce.NewLocal(backend)
	}
	var builderOpts []txbuilder.Option
	if o.gasLimit > 0 {
		builderOpts = append(builderOpts, txbuilder.WithGasLimit(o.gasLimit))
	}
	o.submit.Sink = o.sink
	o.submit.Logger = o.logger
	reader := events.New(backend, binding,
		events.WithSpan(o.span), events.WithSink(o.sink), events.WithLogger(o.logger))

	c := &Client{
		backend:  backend,
		binding:  binding,
		chainID:  id,
		network:  LookupNetwork(id.Int64(), o.networks),
		fees:     o.fees,
		builder:  txbuilder.New(binding, builderOpts...),
		sub:      submitter.New(backend, o.submit),
		reader:   reader,
		verifier: verifier.New(reader, verifier.WithSink(o.sink), verifier.WithLogger(o.logger)),
		nonces:   o.nonces,
		journal:  o.journal,
		policy:   o.policy,
		sink:     o.sink,
		provider: o.provider,
		retries:  o.nonceRetries,
		logger:   logger,
	}
	logger.InfoContext(ctx, "anchor client ready",
		"chain_id", id.Int64(), "network", c.network.Name, "contract", binding.Address().Hex())
	return c, nil
}

func (c *Client) ChainID() int64 { return c.chainID.Int64() }

func (c *Client) Network() Network { return c.network }

func (c *Client) Binding() *chain.Binding { return c.binding }

func (c *Client) track(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if c.provider == nil {
		return ctx, func(error) {}
	}
	return c.provider.TrackOperation(ctx, name, attrs...)
}

// Anchor records p on the ledger and waits for confirmation. On failure the
// error kind tells the caller whether the record definitely failed, may
// still land (ConfirmationTimeout, tx hash attached) or was never attempted.
func (c *Client) Anchor(ctx context.Context, p contracts.ResurrectionPacket, s signer.Signer) (receipt *contracts.TransactionReceipt, err error) {
	ctx, done := c.track(ctx, "anchor.submit", attribute.String("agent_id", p.AgentID))
	defer func() { done(err) }()

	if s == nil {
		return nil, contracts.Errorf(contracts.KindMissingSigner, "anchor.submit", "no signing key configured")
	}
	if c.policy != nil {
		if err := c.policy.Evaluate(ctx, p); err != nil {
			c.logger.WarnContext(ctx, "anchor refused by policy", "agent", p.AgentID, "error", err)
			return nil, err
		}
	}

	pending, err := c.broadcast(ctx, p, s)
	if err != nil {
		if pending != nil {
			c.journalResolve(ctx, c.journalPending(ctx, p, pending), nil, err)
		}
		return nil, err
	}
	rec := c.journalPending(ctx, p, pending)

	receipt, err = c.sub.Await(ctx, pending)
	c.journalResolve(ctx, rec, receipt, err)
	if err != nil {
		return nil, err
	}
	receipt.ExplorerURL = c.network.TxURL(receipt.TxHash)
	return receipt, nil
}

// broadcast holds the nonce lease from lookup through send. A nonce
// conflict releases the lease, which resyncs from the ledger, and retries.
// An unknown outcome returns the Pending with the error so it can be journaled.
func (c *Client) broadcast(ctx context.Context, p contracts.ResurrectionPacket, s signer.Signer) (*submitter.Pending, error) {
	fees, err := txbuilder.SuggestFees(ctx, c.backend, c.fees)
	if err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		lease, err := c.nonces.Acquire(ctx, s.Address())
		if err != nil {
			return nil, err
		}
		req, err := c.builder.Build(p, s.Address(), lease.Nonce(), fees, c.chainID)
		if err != nil {
			_ = lease.Release()
			return nil, err
		}
		pending, err := c.sub.Broadcast(ctx, req, s)
		if err != nil {
			if rerr := lease.Release(); rerr != nil {
				c.logger.WarnContext(ctx, "nonce release failed", "sender", s.Address().Hex(), "error", rerr)
			}
			conflict := errors.Is(err, contracts.ErrSubmissionRejected) && chain.IsNonceConflict(err)
			if conflict && attempt < c.retries {
				c.logger.InfoContext(ctx, "nonce conflict, retrying with fresh nonce",
					"sender", lease.Sender().Hex(), "nonce", lease.Nonce(), "attempt", attempt+1)
				continue
			}
			if conflict {
				c.sink.RecordAnchor(ctx, observability.AnchorOutcome{Kind: contracts.KindOf(err), ChainID: c.chainID.Int64()})
			}
			return pending, err
		}
		if err := lease.Commit(); err != nil {
			c.logger.WarnContext(ctx, "nonce commit failed", "sender", s.Address().Hex(), "error", err)
		}
		return pending, nil
	}
}

func (c *Client) journalPending(ctx context.Context, p contracts.ResurrectionPacket, pending *submitter.Pending) *store.AnchorRecord {
	if c.journal == nil {
		return nil
	}
	rec, err := store.NewRecord(p, pending.Hash.Hex(), pending.From.Hex(), pending.Nonce, pending.ChainID)
	if err == nil {
		err = c.journal.Record(ctx, rec)
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "journal write failed", "tx", pending.Hash.Hex(), "error", err)
		return nil
	}
	return rec
}

func (c *Client) journalResolve(ctx context.Context, rec *store.AnchorRecord, r *contracts.TransactionReceipt, awaitErr error) {
	if c.journal == nil || rec == nil {
		return
	}
	res := store.Resolution{Status: store.StatusFor(awaitErr), ErrorKind: string(contracts.KindOf(awaitErr))}
	if r != nil {
		res.BlockNumber = r.BlockNumber
		res.GasUsed = r.GasUsed
	}
	// The caller's context may already be done after a timeout.
	if err := c.journal.UpdateStatus(context.WithoutCancel(ctx), rec.ID, res); err != nil {
		c.logger.ErrorContext(ctx, "journal update failed", "id", rec.ID, "tx", rec.TxHash, "error", err)
	}
}

// Verify reports whether an event matching p exists at or after fromBlock.
func (c *Client) Verify(ctx context.Context, p contracts.ResurrectionPacket, fromBlock uint64) (ok bool, err error) {
	ctx, done := c.track(ctx, "anchor.verify", attribute.String("agent_id", p.AgentID))
	defer func() { done(err) }()
	return c.verifier.Verify(ctx, p, fromBlock)
}

// Check is Verify with the detailed report.
func (c *Client) Check(ctx context.Context, p contracts.ResurrectionPacket, fromBlock uint64) (r *verifier.Report, err error) {
	ctx, done := c.track(ctx, "anchor.check", attribute.String("agent_id", p.AgentID))
	defer func() { done(err) }()
	return c.verifier.Check(ctx, p, fromBlock)
}

// ReadEvents returns agentID's events in [fromBlock, toBlock] in ledger
// order. A nil toBlock reads to the current head; an empty agentID reads all.
func (c *Client) ReadEvents(ctx context.Context, agentID string, fromBlock uint64, toBlock *uint64) (b *events.Batch, err error) {
	ctx, done := c.track(ctx, "anchor.read_events", attribute.String("agent_id", agentID))
	defer func() { done(err) }()
	return c.reader.Collect(ctx, events.Query{AgentID: agentID, FromBlock: fromBlock, ToBlock: toBlock})
}

// Events is the lazy form of ReadEvents.
func (c *Client) Events(ctx context.Context, q events.Query) iter.Seq2[contracts.NotarizationEvent, error] {
	return c.reader.Read(ctx, q)
}

// Info describes the deployment the client is bound to.
type Info struct {
	Contract    string         `json:"contractAddress"`
	ChainID     int64          `json:"chainId"`
	Network     string         `json:"network"`
	ExplorerURL string         `json:"explorerUrl,omitempty"`
	EventTopic  common.Hash    `json:"eventTopic"`
	GasLimit    uint64         `json:"gasLimit"`
	HeadBlock   uint64         `json:"headBlock"`
}

func (c *Client) Info(ctx context.Context) (*Info, error) {
	head, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return nil, chain.Wrap("anchor.info", err)
	}
	return &Info{
		Contract:    c.binding.Address().Hex(),
		ChainID:     c.chainID.Int64(),
		Network:     c.network.Name,
		ExplorerURL: c.network.AddressURL(c.binding.Address()),
		EventTopic:  c.binding.EventID(),
		GasLimit:    c.builder.GasLimit(),
		HeadBlock:   head,
	}, nil
}

// Health returns nil when the ledger answers.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.backend.BlockNumber(ctx)
	return chain.Wrap("anchor.health", err)
}

// Journal returns the configured journal, or nil.
func (c *Client) Journal() store.Journal { return c.journal }

// ReconcileResult summarizes one Reconcile pass.
type ReconcileResult struct {
	Checked   int                  `json:"checked"`
	Confirmed int                  `json:"confirmed"`
	Failed    int                  `json:"failed"`
	Pending   int                  `json:"pending"`
	Records   []store.AnchorRecord `json:"records"`
}

// Reconcile re-checks every PENDING or UNKNOWN journal entry against the
// ledger receipt. Entries still without a receipt stay unresolved.
func (c *Client) Reconcile(ctx context.Context) (res *ReconcileResult, err error) {
	ctx, done := c.track(ctx, "anchor.reconcile")
	defer func() { done(err) }()

	if c.journal == nil {
		return nil, contracts.Errorf(contracts.KindInvalidInput, "anchor.reconcile", "no journal configured")
	}
	recs, err := c.journal.ListUnresolved(ctx)
	if err != nil {
		return nil, err
	}
	res = &ReconcileResult{Records: make([]store.AnchorRecord, 0, len(recs))}
	for _, rec := range recs {
		res.Checked++
		r, err := c.backend.TransactionReceipt(ctx, common.HexToHash(rec.TxHash))
		switch {
		case errors.Is(err, ethereum.NotFound) || (err == nil && r == nil):
			res.Pending++
			res.Records = append(res.Records, rec)
			continue
		case err != nil:
			return res, chain.Wrap("anchor.reconcile", err)
		}

		if r.BlockNumber == nil {
			res.Pending++
			res.Records = append(res.Records, rec)
			continue
		}

		update := store.Resolution{
			Status:      store.StatusConfirmed,
			BlockNumber: r.BlockNumber.Uint64(),
			GasUsed:     r.GasUsed,
		}
		if r.Status != types.ReceiptStatusSuccessful {
			update.Status = store.StatusFailed
			update.ErrorKind = string(contracts.KindSubmissionRejected)
			res.Failed++
		} else {
			res.Confirmed++
		}
		if err := c.journal.UpdateStatus(ctx, rec.ID, update); err != nil {
			return res, err
		}
		rec.Status, rec.BlockNumber, rec.GasUsed, rec.ErrorKind = update.Status, update.BlockNumber, update.GasUsed, update.ErrorKind
		res.Records = append(res.Records, rec)
		c.logger.InfoContext(ctx, "journal entry reconciled", "id", rec.ID, "tx", rec.TxHash, "status", update.Status)
	}
	return res, nil
}
