// Package verifier proves that a claimed resurrection was notarized: it
// re-derives the commitments from the claim and looks for the first ledger
// event recording the same transfer.
package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/commitment"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/events"
	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/observability"
)

// Report is the detailed result of one verification.
type Report struct {
	AgentID   string                       `json:"agentId"`
	Verified  bool                         `json:"verified"`
	Timestamp time.Time                    `json:"timestamp"`
	Expected  contracts.EncodedPacket      `json:"expected"`
	Match     *contracts.NotarizationEvent `json:"match,omitempty"`
	Checks    []CheckResult                `json:"checks"`
	Scanned   int                          `json:"scanned"`
	Skipped   int                          `json:"skipped"`
	FromBlock uint64                       `json:"fromBlock"`
	ToBlock   uint64                       `json:"toBlock"`
	Summary   string                       `json:"summary"`
}

// CheckResult represents a single verification check.
type CheckResult struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type Verifier struct {
	reader *events.Reader
	sink   observability.Sink
	logger *slog.Logger
}

type Option func(*Verifier)

func WithSink(s observability.Sink) Option { return func(v *Verifier) { v.sink = s } }

func WithLogger(l *slog.Logger) Option { return func(v *Verifier) { v.logger = l } }

func New(reader *events.Reader, opts ...Option) *Verifier {
	v := &Verifier{reader: reader, sink: observability.Nop{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.With("component", "verifier")
	return v
}

// Verify reports whether an event matching p exists at or after fromBlock.
// "Not found" is false, never an error.
func (v *Verifier) Verify(ctx context.Context, p contracts.ResurrectionPacket, fromBlock uint64) (bool, error) {
	r, err := v.Check(ctx, p, fromBlock)
	if err != nil {
		return false, err
	}
	return r.Verified, nil
}

// Check is Verify with the full report. The scan stops at the first match.
func (v *Verifier) Check(ctx context.Context, p contracts.ResurrectionPacket, fromBlock uint64) (*Report, error) {
	start := time.Now()
	report := &Report{
		AgentID:   p.AgentID,
		Timestamp: start.UTC(),
		FromBlock: fromBlock,
	}

	// an empty agent id would select every agent's events in the reader
	if strings.TrimSpace(p.AgentID) == "" {
		err := contracts.Errorf(contracts.KindInvalidInput, "verify.check", "agentId is required")
		v.sink.RecordVerify(ctx, observability.VerifyOutcome{Kind: contracts.KindInvalidInput, Duration: time.Since(start)})
		return nil, err
	}

	expected, err := commitment.EncodePacket(p)
	if err != nil {
		v.sink.RecordVerify(ctx, observability.VerifyOutcome{Kind: contracts.KindOf(err), Duration: time.Since(start)})
		return nil, err
	}
	report.Expected = expected
	report.Checks = append(report.Checks, CheckResult{
		Name:   "commitments",
		Pass:   true,
		Detail: fmt.Sprintf("identity=%s mission=%s", expected.IdentityCommitment.Hex(), expected.MissionCommitment.Hex()),
	})

	var (
		stats   events.Stats
		closest *contracts.NotarizationEvent
		best    = -1
	)
	for ev, err := range v.reader.ReadWithStats(ctx, events.Query{AgentID: p.AgentID, FromBlock: fromBlock}, &stats) {
		if err != nil {
			v.sink.RecordVerify(ctx, observability.VerifyOutcome{Kind: contracts.KindOf(err), Scanned: report.Scanned, Duration: time.Since(start)})
			return nil, err
		}
		report.Scanned++
		if ev.Matches(expected) {
			match := ev
			report.Match = &match
			break
		}
		if score := similarity(ev, expected); score > best {
			best = score
			c := ev
			closest = &c
		}
	}
	report.Skipped = stats.Skipped
	report.ToBlock = stats.ToBlock
	report.Verified = report.Match != nil

	report.Checks = append(report.Checks, CheckResult{
		Name:   "agent_events",
		Pass:   report.Scanned > 0,
		Detail: fmt.Sprintf("%d event(s) for %q in blocks %d..%d, %d undecodable skipped", report.Scanned, p.AgentID, fromBlock, stats.ToBlock, stats.Skipped),
	})
	if report.Match != nil {
		report.Checks = append(report.Checks, CheckResult{
			Name:   "event_match",
			Pass:   true,
			Detail: fmt.Sprintf("tx %s block %d log %d", report.Match.TxHash.Hex(), report.Match.BlockNumber, report.Match.LogIndex),
		})
		report.Summary = fmt.Sprintf("VERIFIED: %s %s -> %s recorded in block %d", p.AgentID, p.SourceEmbodimentID, p.TargetEmbodimentID, report.Match.BlockNumber)
	} else {
		report.Checks = append(report.Checks, mismatchChecks(closest, expected)...)
		report.Summary = fmt.Sprintf("NOT VERIFIED: no event for %s matches %s -> %s", p.AgentID, p.SourceEmbodimentID, p.TargetEmbodimentID)
	}

	v.sink.RecordVerify(ctx, observability.VerifyOutcome{Verified: report.Verified, Scanned: report.Scanned, Duration: time.Since(start)})
	v.logger.InfoContext(ctx, "verification complete",
		"agent", p.AgentID, "verified", report.Verified, "scanned", report.Scanned, "skipped", report.Skipped)
	return report, nil
}

func similarity(ev contracts.NotarizationEvent, p contracts.EncodedPacket) int {
	n := 0
	if ev.SourceEmbodimentID == p.SourceEmbodimentID {
		n++
	}
	if ev.TargetEmbodimentID == p.TargetEmbodimentID {
		n++
	}
	if ev.IdentityCommitment == p.IdentityCommitment {
		n++
	}
	if ev.MissionCommitment == p.MissionCommitment {
		n++
	}
	return n
}

// mismatchChecks explains, field by field, how the closest event differs.
func mismatchChecks(closest *contracts.NotarizationEvent, p contracts.EncodedPacket) []CheckResult {
	if closest == nil {
		return []CheckResult{{Name: "event_match", Pass: false, Reason: "no events recorded for this agent in range"}}
	}
	field := func(name string, ok bool, got, want string) CheckResult {
		c := CheckResult{Name: name, Pass: ok}
		if !ok {
			c.Reason = fmt.Sprintf("closest event (block %d) has %s, claim has %s", closest.BlockNumber, got, want)
		}
		return c
	}
	return []CheckResult{
		{Name: "event_match", Pass: false, Reason: "no event matches all of source, target and both commitments"},
		field("source_embodiment", closest.SourceEmbodimentID == p.SourceEmbodimentID, closest.SourceEmbodimentID, p.SourceEmbodimentID),
		field("target_embodiment", closest.TargetEmbodimentID == p.TargetEmbodimentID, closest.TargetEmbodimentID, p.TargetEmbodimentID),
		field("identity_commitment", closest.IdentityCommitment == p.IdentityCommitment, closest.IdentityCommitment.Hex(), p.IdentityCommitment.Hex()),
		field("mission_commitment", closest.MissionCommitment == p.MissionCommitment, closest.MissionCommitment.Hex(), p.MissionCommitment.Hex()),
	}
}
