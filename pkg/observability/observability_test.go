package observability

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, "anchorchain", config.ServiceName)
	assert.Equal(t, "localhost:4317", config.OTLPEndpoint)
	assert.Equal(t, 1.0, config.SampleRate)
	assert.False(t, config.Enabled)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestMetrics_RecordAnchor(t *testing.T) {
	ctx := context.Background()
	m, reader := newTestMetrics(t)

	m.RecordAnchor(ctx, AnchorOutcome{
		ChainID: 80002,
		Latency: 3 * time.Second,
		GasUsed: 120000,
		GasCost: new(big.Int).Mul(big.NewInt(120000), big.NewInt(30_000_000_000)),
	})
	m.RecordAnchor(ctx, AnchorOutcome{ChainID: 80002, Kind: contracts.KindSubmissionRejected})
	m.RecordAnchor(ctx, AnchorOutcome{ChainID: 80002, Kind: contracts.KindConfirmationTimeout})

	got := collect(t, reader)
	assert.Equal(t, int64(1), sumOf(t, got["anchorchain.tx.ok"]))
	assert.Equal(t, int64(2), sumOf(t, got["anchorchain.tx.err"]))

	hist, ok := got["anchorchain.tx.confirm_time"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 3.0, hist.DataPoints[0].Sum, 1e-9)

	cost, ok := got["anchorchain.gas_cost"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.InDelta(t, 3_600_000.0, cost.DataPoints[0].Sum, 1e-6)

	errs := got["anchorchain.tx.err"].Data.(metricdata.Sum[int64])
	kinds := map[string]bool{}
	for _, dp := range errs.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("kind"))
		kinds[v.AsString()] = true
	}
	assert.True(t, kinds["SubmissionRejected"])
	assert.True(t, kinds["ConfirmationTimeout"])
}

func TestMetrics_RecordVerifyAndSkipped(t *testing.T) {
	ctx := context.Background()
	m, reader := newTestMetrics(t)

	m.RecordVerify(ctx, VerifyOutcome{Verified: true})
	m.RecordVerify(ctx, VerifyOutcome{Verified: false})
	m.RecordVerify(ctx, VerifyOutcome{Kind: contracts.KindNetworkUnavailable})
	m.RecordDecodeSkipped(ctx, 2)
	m.RecordDecodeSkipped(ctx, 0)

	got := collect(t, reader)
	assert.Equal(t, int64(1), sumOf(t, got["resurrection.verify.pass"]))
	assert.Equal(t, int64(2), sumOf(t, got["resurrection.verify.fail"]))
	assert.Equal(t, int64(2), sumOf(t, got["anchorchain.events.skipped"]))
}

func TestTrackOperation(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	p, err := NewWithProviders(tp, mp)
	require.NoError(t, err)

	_, done := p.TrackOperation(context.Background(), "anchor", attribute.String("agent", "nova-001"))
	done(nil)
	_, done = p.TrackOperation(context.Background(), "anchor")
	done(errors.New("boom"))

	got := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, got["anchorchain.operations.total"]))
	assert.Equal(t, int64(1), sumOf(t, got["anchorchain.operations.failed"]))
	assert.Equal(t, int64(0), sumOf(t, got["anchorchain.operations.active"]))
	require.Len(t, spans.Ended(), 2)
	assert.Contains(t, spans.Ended()[0].Attributes(), attribute.String("agent", "nova-001"))

	total, ok := got["anchorchain.operations.total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, total.DataPoints, 1, "per-call attributes must not split the series")
	_, hasAgent := total.DataPoints[0].Attributes.Value("agent")
	assert.False(t, hasAgent)

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNop(t *testing.T) {
	var s Sink = Nop{}
	s.RecordAnchor(context.Background(), AnchorOutcome{})
	s.RecordVerify(context.Background(), VerifyOutcome{})
	s.RecordDecodeSkipped(context.Background(), 1)
}
