// Package submitter signs anchor transactions locally, broadcasts them and
// waits, bounded in time, for the ledger to include them.
package submitter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/chain"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/observability"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/signer"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/txbuilder"
)

const (
	DefaultTimeout      = 120 * time.Second
	DefaultPollInterval = 2 * time.Second
)

// Options configures a Submitter. Zero values pick defaults.
type Options struct {
	// Confirmations is the inclusion depth required; 1 means "in a block".
	Confirmations uint64
	Timeout       time.Duration
	PollInterval  time.Duration
	Backoff       chain.BackoffPolicy
	Sink          observability.Sink
	Logger        *slog.Logger
}

// Submitter is safe for concurrent use. Nonce serialization is the caller's
// job (see package nonce).
type Submitter struct {
	backend chain.TxBackend
	opts    Options
	logger  *slog.Logger
}

func New(backend chain.TxBackend, opts Options) *Submitter {
	if opts.Confirmations == 0 {
		opts.Confirmations = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Backoff.MaxAttempts == 0 {
		opts.Backoff = chain.DefaultBackoff()
	}
	if opts.Sink == nil {
		opts.Sink = observability.Nop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{backend: backend, opts: opts, logger: logger.With("component", "submitter")}
}

// Pending is a broadcast transaction awaiting inclusion.
type Pending struct {
	Tx      *types.Transaction
	Hash    common.Hash
	From    common.Address
	Nonce   uint64
	ChainID int64
	SentAt  time.Time
}

// Broadcast signs req with s and sends it. NetworkUnavailable failures are
// retried with the same signed transaction, so a retry can never create a
// second anchor. A node answering "already known" counts as accepted.
// When a resend cannot tell whether an earlier send landed, the error is
// ConfirmationTimeout and the Pending is returned alongside it.
func (sub *Submitter) Broadcast(ctx context.Context, req *txbuilder.Request, s signer.Signer) (*Pending, error) {
	const op = "submit.broadcast"
	if s == nil {
		return nil, contracts.Errorf(contracts.KindMissingSigner, op, "no signing key supplied")
	}
	if s.Address() != req.From {
		return nil, contracts.Errorf(contracts.KindInvalidInput, op, "request was built for %s but signer is %s", req.From.Hex(), s.Address().Hex())
	}

	signed, err := s.SignTx(req.UnsignedTx(), req.ChainID)
	if err != nil {
		return nil, err
	}

	pending := &Pending{
		Tx:      signed,
		Hash:    signed.Hash(),
		From:    req.From,
		Nonce:   req.Nonce,
		ChainID: req.ChainID.Int64(),
		SentAt:  time.Now(),
	}
	var maybeSent bool
	err = chain.Retry(ctx, sub.opts.Backoff, op, func(ctx context.Context) error {
		err := sub.backend.SendTransaction(ctx, signed)
		switch {
		case chain.IsKnownTransaction(err):
			sub.logger.DebugContext(ctx, "transaction already known to node", "tx", signed.Hash().Hex())
			return nil
		case maybeSent && chain.IsNonceConflict(err):
			return sub.resolveResend(ctx, op, pending, err)
		case err != nil && chain.Classify(err).Retryable():
			maybeSent = true
		}
		return err
	})
	if err != nil {
		e := classified(op, err).WithTx(signed.Hash().Hex())
		sub.logger.WarnContext(ctx, "broadcast failed",
			"tx", signed.Hash().Hex(), "nonce", req.Nonce, "kind", e.Kind, "error", err)
		if e.Kind == contracts.KindConfirmationTimeout {
			sub.opts.Sink.RecordAnchor(ctx, observability.AnchorOutcome{Kind: e.Kind, ChainID: pending.ChainID})
			return pending, e
		}
		// a nonce conflict is the caller's to retry or report
		if !chain.IsNonceConflict(err) {
			sub.opts.Sink.RecordAnchor(ctx, observability.AnchorOutcome{Kind: e.Kind, ChainID: pending.ChainID})
		}
		return nil, e
	}

	sub.logger.InfoContext(ctx, "transaction broadcast",
		"tx", signed.Hash().Hex(), "from", req.From.Hex(), "nonce", req.Nonce, "agent", req.Packet.AgentID)
	return pending, nil
}

// resolveResend handles a nonce conflict on a resend after an earlier send
// whose response was lost. The first send may have been mined, in which case
// the node no longer knows the hash. A receipt means accepted; anything else
// is an unknown outcome, never a rejection.
func (sub *Submitter) resolveResend(ctx context.Context, op string, p *Pending, sendErr error) error {
	r, err := sub.backend.TransactionReceipt(ctx, p.Hash)
	if err == nil && r != nil && r.BlockNumber != nil {
		sub.logger.InfoContext(ctx, "resend conflicted but earlier send was included", "tx", p.Hash.Hex())
		return nil
	}
	return contracts.Errorf(contracts.KindConfirmationTimeout, op,
		"earlier send may have landed, resend refused: %v", sendErr).WithTx(p.Hash.Hex())
}

// Await polls for the receipt of p until it is included at the configured
// depth. It never blocks past the configured timeout; expiry, or the caller
// cancelling ctx, yields ConfirmationTimeout carrying the tx hash because the
// transaction may still land.
func (sub *Submitter) Await(ctx context.Context, p *Pending) (*contracts.TransactionReceipt, error) {
	const op = "submit.await"
	waitCtx, cancel := context.WithTimeout(ctx, sub.opts.Timeout)
	defer cancel()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-waitCtx.Done():
			e := contracts.Errorf(contracts.KindConfirmationTimeout, op,
				"not confirmed within %s: %v", sub.opts.Timeout, context.Cause(waitCtx)).WithTx(p.Hash.Hex())
			sub.opts.Sink.RecordAnchor(ctx, observability.AnchorOutcome{Kind: e.Kind, ChainID: p.ChainID})
			sub.logger.WarnContext(ctx, "confirmation timed out", "tx", p.Hash.Hex(), "waited", time.Since(p.SentAt))
			return nil, e
		case <-timer.C:
		}

		r, done, err := sub.poll(waitCtx, p)
		if err != nil {
			sub.opts.Sink.RecordAnchor(ctx, observability.AnchorOutcome{Kind: contracts.KindOf(err), ChainID: p.ChainID})
			return nil, err
		}
		if done {
			latency := time.Since(p.SentAt)
			out := &contracts.TransactionReceipt{
				TxHash:            p.Hash,
				BlockNumber:       r.BlockNumber.Uint64(),
				GasUsed:           r.GasUsed,
				EffectiveGasPrice: r.EffectiveGasPrice,
				Latency:           latency,
				ChainID:           p.ChainID,
				Sender:            p.From,
				Nonce:             p.Nonce,
			}
			sub.opts.Sink.RecordAnchor(ctx, observability.AnchorOutcome{
				ChainID: p.ChainID,
				Latency: latency,
				GasUsed: r.GasUsed,
				GasCost: out.GasCost(),
			})
			sub.logger.InfoContext(ctx, "transaction confirmed",
				"tx", p.Hash.Hex(), "block", out.BlockNumber, "gas_used", out.GasUsed, "latency", latency)
			return out, nil
		}
		timer.Reset(sub.opts.PollInterval)
	}
}

// poll returns done=true once the receipt is deep enough. Transient errors
// and "not found" keep the loop going.
func (sub *Submitter) poll(ctx context.Context, p *Pending) (*types.Receipt, bool, error) {
	r, err := sub.backend.TransactionReceipt(ctx, p.Hash)
	switch {
	case errors.Is(err, ethereum.NotFound):
		return nil, false, nil
	case err != nil:
		sub.logger.DebugContext(ctx, "receipt poll failed", "tx", p.Hash.Hex(), "error", err)
		return nil, false, nil
	case r == nil || r.BlockNumber == nil:
		return nil, false, nil
	}

	if r.Status != types.ReceiptStatusSuccessful {
		return nil, false, contracts.Errorf(contracts.KindSubmissionRejected, "submit.await",
			"execution reverted in block %d", r.BlockNumber.Uint64()).WithTx(p.Hash.Hex())
	}
	if sub.opts.Confirmations <= 1 {
		return r, true, nil
	}
	head, err := sub.backend.BlockNumber(ctx)
	if err != nil {
		return nil, false, nil
	}
	included := r.BlockNumber.Uint64()
	return r, head >= included && head-included+1 >= sub.opts.Confirmations, nil
}

// Submit is Broadcast followed by Await.
func (sub *Submitter) Submit(ctx context.Context, req *txbuilder.Request, s signer.Signer) (*contracts.TransactionReceipt, error) {
	p, err := sub.Broadcast(ctx, req, s)
	if err != nil {
		return nil, err
	}
	return sub.Await(ctx, p)
}

func classified(op string, err error) *contracts.Error {
	var e *contracts.Error
	if errors.As(err, &e) {
		cp := *e
		if cp.Op == "" {
			cp.Op = op
		}
		return &cp
	}
	kind := chain.Classify(err)
	if kind == "" {
		kind = contracts.KindNetworkUnavailable
	}
	return contracts.E(kind, op, err)
}
