package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
)

func TestDescribe_CoversEveryIntent(t *testing.T) {
	for _, i := range core.Intents() {
		d := Describe(i)
		require.NotEmpty(t, d.Design.Primary, "intent %s", i)
		assert.Equal(t, i.IsDirect(), d.Direct, "intent %s", i)
		if i.IsTask() {
			assert.NotEmpty(t, d.ContentType, "intent %s", i)
			assert.NotEmpty(t, d.Implement.Primary, "intent %s", i)
		}
	}
}

func TestDescribe_UnmatchedIntentFallsBack(t *testing.T) {
	d := Describe(core.Intent("summon_dragon"))
	assert.Equal(t, AgentConversation, d.Design.Primary)
	assert.Equal(t, OrderAdaptive, d.Design.Mode.Order())
}

func TestModeOrder(t *testing.T) {
	assert.Equal(t, OrderSequential, ModeWorkflow.Order())
	assert.Equal(t, OrderParallel, ModeCollaborative.Order())
	assert.Equal(t, OrderAdaptive, ModeConversational.Order())
	assert.Equal(t, OrderAdaptive, ModeAdaptive.Order())
}

func TestBuildPlan_DesignPhase(t *testing.T) {
	p := New()
	sess := core.NewSessionContext("s1")
	sess.State = core.StateDesigning

	plan := p.BuildPlan(core.IntentCreateLesson, sess)
	assert.NotEmpty(t, plan.ID)
	assert.Equal(t, "s1", plan.SessionID)
	assert.Equal(t, PhaseDesign, plan.Phase)
	assert.Equal(t, AgentCurriculum, plan.PrimaryAgent)
	assert.Equal(t, []string{AgentAssessment, AgentQuiz}, plan.SupportingAgents)
	assert.Equal(t, OrderParallel, plan.ExecutionOrder)
	assert.True(t, plan.DependsOn(AgentQuiz, DepPrimaryOutput))
	assert.Equal(t, []string{AgentConversation}, plan.FallbackAgents)
}

func TestBuildPlan_ContinuesSessionTask(t *testing.T) {
	p := New()
	sess := core.NewSessionContext("s1")
	sess.State = core.StateImplementing
	sess.TaskIntent = core.IntentGenerateTerrain

	plan := p.BuildPlan(core.IntentConfirm, sess)
	assert.Equal(t, core.IntentGenerateTerrain, plan.Intent)
	assert.Equal(t, PhaseImplement, plan.Phase)
	assert.Equal(t, AgentScript, plan.PrimaryAgent)
	assert.Equal(t, OrderSequential, plan.ExecutionOrder)
	assert.True(t, plan.DependsOn(AgentScript, ArtifactDep(AgentTerrain)))
	assert.True(t, plan.DependsOn(AgentCodeReview, DepPreviousOutput))
}

func TestBuildPlan_AdaptiveDependencies(t *testing.T) {
	plan := New().BuildPlan(core.IntentCreateAssessment, core.NewSessionContext("s"))
	assert.Equal(t, OrderAdaptive, plan.ExecutionOrder)
	assert.True(t, plan.DependsOn(AgentQuiz, DepPrimaryOutput))
	assert.False(t, plan.DependsOn(AgentCurriculum, DepPrimaryOutput))
}

func TestBuildPlan_DirectAndConversation(t *testing.T) {
	p := New()
	plan := p.BuildPlan(core.IntentReviewCode, core.NewSessionContext("s"))
	assert.Equal(t, PhaseDirect, plan.Phase)
	assert.Equal(t, AgentCodeReview, plan.PrimaryAgent)

	plan = p.BuildPlan(core.IntentGreeting, core.NewSessionContext("s"))
	assert.Equal(t, PhaseConversation, plan.Phase)
	assert.Equal(t, AgentConversation, plan.PrimaryAgent)
	assert.Empty(t, plan.FallbackAgents)
}

func TestBuildPlan_FreshPerTurn(t *testing.T) {
	p := New()
	sess := core.NewSessionContext("s")
	a := p.BuildPlan(core.IntentCreateQuiz, sess)
	b := p.BuildPlan(core.IntentCreateQuiz, sess)
	assert.NotEqual(t, a.ID, b.ID)

	c := a.Clone()
	c.SupportingAgents[0] = "mutated"
	c.DataDependencies[AgentQuiz][0] = "mutated"
	assert.Equal(t, AgentAssessment, a.SupportingAgents[0])
	assert.Equal(t, DepContext, a.DataDependencies[AgentQuiz][0])
}
