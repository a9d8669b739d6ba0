package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RushikeshHarne/Immortal-Logic-AnchorChain-Demo/pkg/contracts"
)

func nova() contracts.ResurrectionPacket {
	return contracts.ResurrectionPacket{
		AgentID:            "nova-001",
		SourceEmbodimentID: "edge-A",
		TargetEmbodimentID: "cloud-B",
		IdentityCommitment: "agent_nova-001",
		MissionCommitment:  "mission_v1",
		Jurisdiction:       contracts.DefaultJurisdiction,
	}
}

func TestEvaluate_DefaultAllows(t *testing.T) {
	e, err := FromExpr("")
	require.NoError(t, err)
	assert.NoError(t, e.Evaluate(context.Background(), nova()))
	assert.Equal(t, []string{"field-size"}, e.Rules())
}

func TestEvaluate_OperatorRule(t *testing.T) {
	e, err := FromExpr(`packet.jurisdiction == "COVENANT_TREASURY_TRUST" && packet.sourceEmbodimentId != packet.targetEmbodimentId`)
	require.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, e.Evaluate(ctx, nova()))

	p := nova()
	p.Jurisdiction = "ELSEWHERE"
	err = e.Evaluate(ctx, p)
	assert.ErrorIs(t, err, contracts.ErrPolicyDenied)
	assert.Contains(t, err.Error(), "operator")

	p = nova()
	p.TargetEmbodimentID = p.SourceEmbodimentID
	assert.ErrorIs(t, e.Evaluate(ctx, p), contracts.ErrPolicyDenied)
}

func TestEvaluate_SystemRule(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	p := nova()
	p.AgentID = strings.Repeat("x", 300)
	err = e.Evaluate(context.Background(), p)
	assert.ErrorIs(t, err, contracts.ErrPolicyDenied)
	assert.Contains(t, err.Error(), "field-size")
}

func TestEvaluate_UsesNow(t *testing.T) {
	e, err := New(Rule{Name: "after-epoch", Expr: `now > 1700000000`})
	require.NoError(t, err)
	assert.NoError(t, e.Evaluate(context.Background(), nova()))
}

func TestNew_RejectsBadExpressions(t *testing.T) {
	_, err := FromExpr(`packet.agentId ==`)
	assert.Error(t, err)

	_, err = FromExpr(`packet.agentId`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bool")
}
