// Package policy admits or refuses packets before they are anchored, using
// CEL expressions over the packet fields.
//
// Expressions see two variables:
//
//	packet  map with agentId, sourceEmbodimentId, targetEmbodimentId,
//	        identityCommitment, missionCommitment, jurisdiction (strings)
//	now     unix seconds
//
// Example: packet.jurisdiction in ["COVENANT_TREASURY_TRUST"] && packet.sourceEmbodimentId != packet.targetEmbodimentId
package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

// systemRules always apply and bound what can be written to the ledger.
var systemRules = []Rule{
	{Name: "field-size", Expr: `size(packet.agentId) <= 256 && size(packet.sourceEmbodimentId) <= 256 && size(packet.targetEmbodimentId) <= 256 && size(packet.jurisdiction) <= 256`},
}

// Rule is a named CEL expression that must evaluate to true.
type Rule struct {
	Name string `json:"name" yaml:"name"`
	Expr string `json:"expr" yaml:"expr"`
}

type compiled struct {
	rule Rule
	prg  cel.Program
}

// Evaluator is immutable after construction and safe for concurrent use.
type Evaluator struct {
	rules []compiled
	now   func() time.Time
}

// New compiles the system rules plus the given ones. Blank expressions are ignored.
func New(rules ...Rule) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("packet", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("now", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Evaluator{now: time.Now}
	for _, r := range append(append([]Rule{}, systemRules...), rules...) {
		if strings.TrimSpace(r.Expr) == "" {
			continue
		}
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule-%d", len(e.rules))
		}
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("policy %s: compile: %w", r.Name, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("policy %s: expression must return bool, got %s", r.Name, ast.OutputType())
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, fmt.Errorf("policy %s: program: %w", r.Name, err)
		}
		e.rules = append(e.rules, compiled{rule: r, prg: prg})
	}
	return e, nil
}

// FromExpr builds an Evaluator from a single operator-supplied expression.
func FromExpr(expr string) (*Evaluator, error) {
	return New(Rule{Name: "operator", Expr: expr})
}

// Evaluate returns nil when every rule passes, otherwise a PolicyDenied error
// naming the first failing rule. Evaluation errors also deny.
func (e *Evaluator) Evaluate(ctx context.Context, p contracts.ResurrectionPacket) error {
	const op = "policy.evaluate"
	input := map[string]any{
		"packet": map[string]string{
			"agentId":            p.AgentID,
			"sourceEmbodimentId": p.SourceEmbodimentID,
			"targetEmbodimentId": p.TargetEmbodimentID,
			"identityCommitment": p.IdentityCommitment,
			"missionCommitment":  p.MissionCommitment,
			"jurisdiction":       p.Jurisdiction,
		},
		"now": e.now().Unix(),
	}
	for _, c := range e.rules {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, _, err := c.prg.Eval(input)
		if err != nil {
			return contracts.Errorf(contracts.KindPolicyDenied, op, "rule %s failed to evaluate: %v", c.rule.Name, err)
		}
		allowed, ok := out.Value().(bool)
		if !ok || !allowed {
			return contracts.Errorf(contracts.KindPolicyDenied, op, "rule %s denied packet for agent %q", c.rule.Name, p.AgentID)
		}
	}
	return nil
}

// Rules returns the active rule names, system rules first.
func (e *Evaluator) Rules() []string {
	names := make([]string, len(e.rules))
	for i, c := range e.rules {
		names[i] = c.rule.Name
	}
	return names
}
