// Package planner turns an intent and a session into an immutable
// orchestration plan.
package planner

import (
	"time"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

// ExecutionOrder is how supporting agents run relative to each other.
type ExecutionOrder string

const (
	OrderSequential ExecutionOrder = "sequential"
	OrderParallel   ExecutionOrder = "parallel"
	OrderAdaptive   ExecutionOrder = "adaptive"
)

// Phase names the lifecycle step a plan serves.
type Phase string

const (
	PhaseDesign       Phase = "design"
	PhaseImplement    Phase = "implement"
	PhaseDirect       Phase = "direct"
	PhaseConversation Phase = "conversation"
)

// Upstream data keys used in DataDependencies.
const (
	DepContext        = "context"
	DepPrimaryOutput  = "primary_output"
	DepPreviousOutput = "previous_output"
)

// ArtifactDep names the stored output of agent from an earlier turn.
func ArtifactDep(agent string) string { return "artifact:" + agent }

// Plan is the audit record of one turn's orchestration. It is never mutated
// after construction; use Clone to derive a modified copy.
type Plan struct {
	ID               string              `json:"plan_id"`
	SessionID        string              `json:"session_id"`
	Intent           core.Intent         `json:"intent"`
	Phase            Phase               `json:"phase"`
	PrimaryAgent     string              `json:"primary_agent"`
	SupportingAgents []string            `json:"supporting_agents"`
	ExecutionOrder   ExecutionOrder      `json:"execution_order"`
	DataDependencies map[string][]string `json:"data_dependencies"`
	FallbackAgents   []string            `json:"fallback_agents"`
	ExpectedOutputs  []string            `json:"expected_outputs"`
	CreatedAt        time.Time           `json:"created_at"`
}

// DependsOn reports whether agent declares dep as required upstream data.
func (p Plan) DependsOn(agent, dep string) bool {
	for _, d := range p.DataDependencies[agent] {
		if d == dep {
			return true
		}
	}
	return false
}

// Agents returns the primary followed by the supporting agents.
func (p Plan) Agents() []string {
	return append([]string{p.PrimaryAgent}, p.SupportingAgents...)
}

// Clone returns a deep copy.
func (p Plan) Clone() Plan {
	c := p
	c.SupportingAgents = append([]string(nil), p.SupportingAgents...)
	c.FallbackAgents = append([]string(nil), p.FallbackAgents...)
	c.ExpectedOutputs = append([]string(nil), p.ExpectedOutputs...)
	c.DataDependencies = make(map[string][]string, len(p.DataDependencies))
	for k, v := range p.DataDependencies {
		c.DataDependencies[k] = append([]string(nil), v...)
	}
	return c
}

// Options configures a Planner.
type Options struct {
	Logger logging.Logger
}

// Planner builds plans from the static routing table.
type Planner struct {
	opts Options
}

// New creates a Planner.
func New(optFns ...func(o *Options)) *Planner {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Planner{opts: opts}
}

// EffectiveIntent resolves which intent a turn is served under. Task and
// direct intents stand for themselves; anything else continues the task the
// session is already working on.
func EffectiveIntent(intent core.Intent, sess *core.SessionContext) core.Intent {
	if intent.IsTask() || intent.IsDirect() {
		return intent
	}
	if sess != nil && sess.TaskIntent != "" {
		return sess.TaskIntent
	}
	return intent
}

// BuildPlan creates a fresh plan for this turn.
func (p *Planner) BuildPlan(intent core.Intent, sess *core.SessionContext) Plan {
	eff := EffectiveIntent(intent, sess)
	desc := Describe(eff)

	route, phase := desc.Design, PhaseDesign
	switch {
	case desc.Direct:
		phase = PhaseDirect
	case desc.Design.Primary == AgentConversation:
		phase = PhaseConversation
	case sess != nil && (sess.State == core.StateImplementing || sess.State == core.StateReviewing):
		route, phase = desc.Implement, PhaseImplement
	}

	plan := Plan{
		ID:               core.NewID(),
		Intent:           eff,
		Phase:            phase,
		PrimaryAgent:     route.Primary,
		SupportingAgents: append([]string(nil), route.Supporting...),
		ExecutionOrder:   route.Mode.Order(),
		DataDependencies: dependencies(route, desc, phase),
		FallbackAgents:   append([]string(nil), route.Fallbacks...),
		ExpectedOutputs:  append([]string(nil), route.Outputs...),
		CreatedAt:        time.Now().UTC(),
	}
	if sess != nil {
		plan.SessionID = sess.ID
	}
	p.opts.Logger.Debug("plan built", "session_id", plan.SessionID, "plan_id", plan.ID,
		"intent", plan.Intent, "phase", plan.Phase, "primary", plan.PrimaryAgent, "order", plan.ExecutionOrder)
	return plan
}

func dependencies(route Route, desc Descriptor, phase Phase) map[string][]string {
	deps := map[string][]string{route.Primary: {DepContext}}
	if phase == PhaseImplement && desc.Design.Primary != "" {
		deps[route.Primary] = append(deps[route.Primary], ArtifactDep(desc.Design.Primary))
	}
	order := route.Mode.Order()
	for _, s := range route.Supporting {
		switch order {
		case OrderParallel:
			deps[s] = []string{DepContext, DepPrimaryOutput}
		case OrderSequential:
			deps[s] = []string{DepContext, DepPreviousOutput}
		default:
			deps[s] = []string{DepContext}
			for _, d := range route.DependsOnPrimary {
				if d == s {
					deps[s] = append(deps[s], DepPrimaryOutput)
				}
			}
		}
	}
	return deps
}
