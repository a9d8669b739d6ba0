package observability

import (
	"context"
	"math/big"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

// AnchorOutcome describes one finished submission. Kind is empty on success.
type AnchorOutcome struct {
	Kind    contracts.Kind
	ChainID int64
	Latency time.Duration
	GasUsed uint64
	GasCost *big.Int // wei
}

// VerifyOutcome describes one finished verification. Kind is set when the
// verification failed with an error rather than a negative result.
type VerifyOutcome struct {
	Verified bool
	Kind     contracts.Kind
	Scanned  int
	Duration time.Duration
}

// Sink receives outcomes from every component. Implementations must accept
// concurrent calls.
type Sink interface {
	RecordAnchor(ctx context.Context, o AnchorOutcome)
	RecordVerify(ctx context.Context, o VerifyOutcome)
	RecordDecodeSkipped(ctx context.Context, n int)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordAnchor(context.Context, AnchorOutcome) {}
func (Nop) RecordVerify(context.Context, VerifyOutcome) {}
func (Nop) RecordDecodeSkipped(context.Context, int)    {}

// Metrics is the OpenTelemetry Sink.
type Metrics struct {
	txOK        metric.Int64Counter
	txErr       metric.Int64Counter
	confirmTime metric.Float64Histogram
	gasUsed     metric.Int64Histogram
	gasCost     metric.Float64Histogram
	verifyPass  metric.Int64Counter
	verifyFail  metric.Int64Counter
	verifyTime  metric.Float64Histogram
	skipped     metric.Int64Counter
}

var _ Sink = (*Metrics)(nil)

// NewMetrics registers the anchoring instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.txOK, err = meter.Int64Counter("anchorchain.tx.ok",
		metric.WithDescription("Anchor transactions confirmed"),
		metric.WithUnit("{transaction}")); err != nil {
		return nil, err
	}
	if m.txErr, err = meter.Int64Counter("anchorchain.tx.err",
		metric.WithDescription("Anchor submissions that failed, by kind"),
		metric.WithUnit("{transaction}")); err != nil {
		return nil, err
	}
	if m.confirmTime, err = meter.Float64Histogram("anchorchain.tx.confirm_time",
		metric.WithDescription("Broadcast to confirmed receipt"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2, 4, 8, 15, 30, 60, 120, 300)); err != nil {
		return nil, err
	}
	if m.gasUsed, err = meter.Int64Histogram("anchorchain.tx.gas_used",
		metric.WithDescription("Gas consumed by confirmed anchors"),
		metric.WithUnit("{gas}"),
		metric.WithExplicitBucketBoundaries(50000, 100000, 150000, 200000, 250000, 300000, 350000)); err != nil {
		return nil, err
	}
	if m.gasCost, err = meter.Float64Histogram("anchorchain.gas_cost",
		metric.WithDescription("Fee paid per confirmed anchor"),
		metric.WithUnit("Gwei")); err != nil {
		return nil, err
	}
	if m.verifyPass, err = meter.Int64Counter("resurrection.verify.pass",
		metric.WithDescription("Verifications that found a matching event"),
		metric.WithUnit("{verification}")); err != nil {
		return nil, err
	}
	if m.verifyFail, err = meter.Int64Counter("resurrection.verify.fail",
		metric.WithDescription("Verifications with no match or an error"),
		metric.WithUnit("{verification}")); err != nil {
		return nil, err
	}
	if m.verifyTime, err = meter.Float64Histogram("resurrection.verify.duration",
		metric.WithDescription("Verification duration"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.skipped, err = meter.Int64Counter("anchorchain.events.skipped",
		metric.WithDescription("Log entries skipped because they could not be decoded"),
		metric.WithUnit("{log}")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) RecordAnchor(ctx context.Context, o AnchorOutcome) {
	chainAttr := attribute.Int64("chain_id", o.ChainID)
	if o.Kind != "" {
		m.txErr.Add(ctx, 1, metric.WithAttributes(chainAttr,
			attribute.String("kind", string(o.Kind)),
			attribute.String("outcome", string(o.Kind.Outcome()))))
		return
	}
	attrs := metric.WithAttributes(chainAttr)
	m.txOK.Add(ctx, 1, attrs)
	m.confirmTime.Record(ctx, o.Latency.Seconds(), attrs)
	m.gasUsed.Record(ctx, int64(o.GasUsed), attrs) //nolint:gosec // bounded by the gas ceiling
	if o.GasCost != nil {
		gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(o.GasCost), big.NewFloat(1e9)).Float64()
		m.gasCost.Record(ctx, gwei, attrs)
	}
}

func (m *Metrics) RecordVerify(ctx context.Context, o VerifyOutcome) {
	m.verifyTime.Record(ctx, o.Duration.Seconds())
	switch {
	case o.Verified:
		m.verifyPass.Add(ctx, 1)
	case o.Kind != "":
		m.verifyFail.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(o.Kind))))
	default:
		m.verifyFail.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "no_match")))
	}
}

func (m *Metrics) RecordDecodeSkipped(ctx context.Context, n int) {
	if n > 0 {
		m.skipped.Add(ctx, int64(n))
	}
}
