// Package events reads ResurrectionRecorded logs back from the ledger.
//
// Reads are lazy and windowed: the block range is walked in fixed spans so
// that hosted providers with range limits can serve it, and a consumer that
// stops early never triggers the remaining queries. Nothing is cached between
// calls.
package events

import (
	"context"
	"iter"
	"log/slog"
	"math/big"
	"sort"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/chain"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/observability"
)

// DefaultSpan is the number of blocks per eth_getLogs call.
const DefaultSpan uint64 = 5000

// Query selects events. An empty AgentID selects every agent.
type Query struct {
	AgentID   string
	FromBlock uint64
	ToBlock   *uint64 // nil means the head at the time of the call
	Caller    *common.Address
}

// Stats accumulates bookkeeping for one read.
type Stats struct {
	Skipped int
	ToBlock uint64
}

// Batch is a fully materialized read.
type Batch struct {
	Events    []contracts.NotarizationEvent `json:"events"`
	Skipped   int                           `json:"skipped"`
	FromBlock uint64                        `json:"fromBlock"`
	ToBlock   uint64                        `json:"toBlock"`
}

type Reader struct {
	backend chain.LogBackend
	binding *chain.Binding
	span    uint64
	sink    observability.Sink
	logger  *slog.Logger
}

type Option func(*Reader)

// WithSpan sets the window size in blocks.
func WithSpan(span uint64) Option {
	return func(r *Reader) {
		if span > 0 {
			r.span = span
		}
	}
}

func WithSink(s observability.Sink) Option { return func(r *Reader) { r.sink = s } }

func WithLogger(l *slog.Logger) Option { return func(r *Reader) { r.logger = l } }

func New(backend chain.LogBackend, binding *chain.Binding, opts ...Option) *Reader {
	r := &Reader{
		backend: backend,
		binding: binding,
		span:    DefaultSpan,
		sink:    observability.Nop{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "events")
	return r
}

// Read yields matching events in ledger order (block number, then log
// index). An undecodable entry is skipped and counted, never fatal. An
// infrastructure failure is yielded once as the error and ends the sequence.
func (r *Reader) Read(ctx context.Context, q Query) iter.Seq2[contracts.NotarizationEvent, error] {
	return r.ReadWithStats(ctx, q, nil)
}

// Collect materializes Read and reports how many entries were skipped.
func (r *Reader) Collect(ctx context.Context, q Query) (*Batch, error) {
	var stats Stats
	b := &Batch{FromBlock: q.FromBlock}
	for ev, err := range r.ReadWithStats(ctx, q, &stats) {
		if err != nil {
			return nil, err
		}
		b.Events = append(b.Events, ev)
	}
	b.Skipped = stats.Skipped
	b.ToBlock = stats.ToBlock
	return b, nil
}

// ReadWithStats is Read that also fills stats (when non-nil) as the
// sequence is consumed.
func (r *Reader) ReadWithStats(ctx context.Context, q Query, stats *Stats) iter.Seq2[contracts.NotarizationEvent, error] {
	return func(yield func(contracts.NotarizationEvent, error) bool) {
		const op = "events.read"
		var to uint64
		if q.ToBlock != nil {
			to = *q.ToBlock
		} else {
			head, err := r.backend.BlockNumber(ctx)
			if err != nil {
				yield(contracts.NotarizationEvent{}, chain.Wrap(op, err))
				return
			}
			to = head
		}
		if stats != nil {
			stats.ToBlock = to
		}
		if q.FromBlock > to {
			return
		}

		topics := [][]common.Hash{{r.binding.EventID()}}
		if q.Caller != nil {
			topics = append(topics, []common.Hash{common.BytesToHash(q.Caller.Bytes())})
		}

		span := r.span
		for start := q.FromBlock; ; {
			end := to
			if to-start >= span {
				end = start + span - 1
			}
			logs, err := r.backend.FilterLogs(ctx, ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(start),
				ToBlock:   new(big.Int).SetUint64(end),
				Addresses: []common.Address{r.binding.Address()},
				Topics:    topics,
			})
			if err != nil {
				// providers refuse wide ranges with an error response; narrow and retry
				if span > 1 && chain.Classify(err) == contracts.KindSubmissionRejected {
					span /= 2
					r.logger.DebugContext(ctx, "narrowing log window", "from", start, "span", span, "error", err)
					continue
				}
				yield(contracts.NotarizationEvent{}, chain.Wrap(op, err))
				return
			}

			if !r.emit(ctx, q, logs, stats, yield) {
				return
			}
			if end >= to {
				return
			}
			start = end + 1
		}
	}
}

func (r *Reader) emit(ctx context.Context, q Query, logs []types.Log, stats *Stats, yield func(contracts.NotarizationEvent, error) bool) bool {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	skipped := 0
	defer func() {
		if skipped > 0 {
			r.sink.RecordDecodeSkipped(ctx, skipped)
			if stats != nil {
				stats.Skipped += skipped
			}
		}
	}()

	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, err := r.binding.DecodeLog(lg)
		if err != nil {
			skipped++
			r.logger.WarnContext(ctx, "skipping undecodable log",
				"block", lg.BlockNumber, "log_index", lg.Index, "tx", lg.TxHash.Hex(), "error", err)
			continue
		}
		if q.AgentID != "" && ev.AgentID != q.AgentID {
			continue
		}
		if !yield(ev, nil) {
			return false
		}
	}
	return true
}
