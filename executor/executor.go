// Package executor runs orchestration plans against registered agents.
//
// The primary agent always runs first. Supporting agents then run according
// to the plan's execution order:
//
//   - parallel: all supporting agents concurrently, each fed the primary output
//   - sequential: a chain where each agent receives the previous output
//   - adaptive: agents depending on the primary output chain; the rest fan out
//
// Every call is bounded by a timeout. Failures, timeouts, panics and unknown
// agent names all become failed core.TaskResult values; nothing aborts the
// plan except a failed primary, which re-routes to the fallback agents.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/planner"
)

const (
	// DefaultAgentTimeout bounds a single agent call.
	DefaultAgentTimeout = 30 * time.Second
	// DefaultMaxAgentCalls bounds the agent calls of a single plan.
	DefaultMaxAgentCalls = 16
)

// Data keys handed to agents.
const (
	KeySessionID      = "session_id"
	KeyPlanID         = "plan_id"
	KeyIntent         = "intent"
	KeyPhase          = "phase"
	KeyState          = "state"
	KeyContext        = "context"
	KeyPrimaryAgent   = "primary_agent"
	KeyPrimaryOutput  = planner.DepPrimaryOutput
	KeyPreviousAgent  = "previous_agent"
	KeyPreviousOutput = planner.DepPreviousOutput
)

// Registry resolves agent names. *agent.Registry satisfies it.
type Registry interface {
	Lookup(name string) (core.Agent, bool)
}

// Observer receives per-call measurements. *metrics.Metrics satisfies it.
type Observer interface {
	ObserveAgent(agent string, success bool, d time.Duration)
}

// Hooks are invoked around every agent call. Both may be nil.
type Hooks struct {
	OnStart func(ctx context.Context, plan planner.Plan, agent string)
	OnDone  func(ctx context.Context, plan planner.Plan, agent string, res core.TaskResult, d time.Duration)
}

// Options configures an Executor.
type Options struct {
	AgentTimeout  time.Duration
	MaxAgentCalls int
	Logger        logging.Logger
	Observer      Observer
	Hooks         Hooks
}

// Executor runs plans. It is safe for concurrent use.
type Executor struct {
	registry Registry
	opts     Options
}

// New creates an Executor over registry.
func New(registry Registry, optFns ...func(o *Options)) *Executor {
	opts := Options{
		AgentTimeout:  DefaultAgentTimeout,
		MaxAgentCalls: DefaultMaxAgentCalls,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.AgentTimeout <= 0 {
		opts.AgentTimeout = DefaultAgentTimeout
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Executor{registry: registry, opts: opts}
}

// Report is the aggregated outcome of one plan.
type Report struct {
	PlanID  string
	Results map[string]core.TaskResult
	// Order lists agents in the order their results were recorded.
	Order         []string
	PrimaryFailed bool
	FallbackUsed  string
	Duration      time.Duration
}

// Successes counts successful results.
func (r Report) Successes() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

// SuccessRatio is successes over total results, or 0 without results.
func (r Report) SuccessRatio() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	return float64(r.Successes()) / float64(len(r.Results))
}

// Succeeded reports whether the plan produced a usable primary outcome,
// either from the primary itself or from a fallback.
func (r Report) Succeeded() bool {
	return !r.PrimaryFailed || r.FallbackUsed != ""
}

type run struct {
	e       *Executor
	plan    planner.Plan
	base    map[string]any
	limiter *core.CallLimiter

	mu      sync.Mutex
	results map[string]core.TaskResult
	order   []string
}

func (r *run) record(name string, res core.TaskResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[name] = res
	r.order = append(r.order, name)
}

// Execute runs plan for sess. upstream holds stored outputs of earlier turns
// keyed by agent name; entries the plan depends on are passed to agents.
func (e *Executor) Execute(ctx context.Context, plan planner.Plan, sess *core.SessionContext, upstream map[string]map[string]any) Report {
	start := time.Now()
	r := &run{
		e:       e,
		plan:    plan,
		base:    BaseData(plan, sess, upstream),
		limiter: core.NewCallLimiter(e.opts.MaxAgentCalls),
		results: make(map[string]core.TaskResult),
	}

	primary := r.invoke(ctx, plan.PrimaryAgent, nil)
	r.record(plan.PrimaryAgent, primary)

	report := Report{PlanID: plan.ID}
	if !primary.Success {
		report.PrimaryFailed = true
		e.opts.Logger.Warn("primary agent failed", "plan_id", plan.ID, "agent", plan.PrimaryAgent, "error", primary.Error)
		report.FallbackUsed = r.fallback(ctx)
	} else {
		switch plan.ExecutionOrder {
		case planner.OrderParallel:
			r.parallel(ctx, plan.SupportingAgents, primary.Data)
		case planner.OrderSequential:
			r.chain(ctx, plan.SupportingAgents, plan.PrimaryAgent, primary.Data, nil)
		default:
			r.adaptive(ctx, primary.Data)
		}
	}

	report.Results = r.results
	report.Order = r.order
	report.Duration = time.Since(start)
	e.opts.Logger.Debug("plan executed", "plan_id", plan.ID, "agents", len(r.results),
		"successes", report.Successes(), "duration", report.Duration)
	return report
}

// fallback tries each fallback agent once, in order, with the base data and
// returns the name of the first that succeeded.
func (r *run) fallback(ctx context.Context) string {
	for _, name := range r.plan.FallbackAgents {
		if name == r.plan.PrimaryAgent {
			continue
		}
		res := r.invoke(ctx, name, nil)
		r.record(name, res)
		if res.Success {
			return name
		}
	}
	return ""
}

func (r *run) parallel(ctx context.Context, agents []string, primaryOut map[string]any) {
	extra := map[string]any{KeyPrimaryAgent: r.plan.PrimaryAgent, KeyPrimaryOutput: primaryOut}
	r.fanOut(ctx, agents, extra)
}

func (r *run) fanOut(ctx context.Context, agents []string, extra map[string]any) {
	results := make([]core.TaskResult, len(agents))
	var wg sync.WaitGroup
	for i, name := range agents {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = r.invoke(ctx, name, extra)
		}(i, name)
	}
	wg.Wait()
	for i, name := range agents {
		r.record(name, results[i])
	}
}

// chain runs agents one after another. Each receives the output of the last
// successful agent before it; a failed link does not break the chain.
func (r *run) chain(ctx context.Context, agents []string, prevAgent string, prevOut map[string]any, extra map[string]any) {
	for _, name := range agents {
		data := map[string]any{KeyPreviousAgent: prevAgent, KeyPreviousOutput: prevOut}
		for k, v := range extra {
			data[k] = v
		}
		res := r.invoke(ctx, name, data)
		r.record(name, res)
		if res.Success {
			prevAgent, prevOut = name, res.Data
		}
	}
}

func (r *run) adaptive(ctx context.Context, primaryOut map[string]any) {
	var independent, dependent []string
	for _, name := range r.plan.SupportingAgents {
		if r.plan.DependsOn(name, planner.DepPrimaryOutput) {
			dependent = append(dependent, name)
		} else {
			independent = append(independent, name)
		}
	}
	var wg sync.WaitGroup
	if len(dependent) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			extra := map[string]any{KeyPrimaryAgent: r.plan.PrimaryAgent, KeyPrimaryOutput: primaryOut}
			r.chain(ctx, dependent, r.plan.PrimaryAgent, primaryOut, extra)
		}()
	}
	if len(independent) > 0 {
		r.fanOut(ctx, independent, nil)
	}
	wg.Wait()
}

// invoke runs a single agent call with timeout and panic isolation.
func (r *run) invoke(ctx context.Context, name string, extra map[string]any) (res core.TaskResult) {
	e := r.e
	start := time.Now()
	if e.opts.Hooks.OnStart != nil {
		e.opts.Hooks.OnStart(ctx, r.plan, name)
	}
	defer func() {
		d := time.Since(start)
		if e.opts.Observer != nil {
			e.opts.Observer.ObserveAgent(name, res.Success, d)
		}
		if e.opts.Hooks.OnDone != nil {
			e.opts.Hooks.OnDone(ctx, r.plan, name, res, d)
		}
		if !res.Success {
			e.opts.Logger.Warn("agent call failed", "plan_id", r.plan.ID, "agent", name, "error", res.Error, "duration", d)
		}
	}()

	if err := r.limiter.Acquire(); err != nil {
		return core.Failed(err)
	}
	a, ok := e.registry.Lookup(name)
	if !ok || a == nil {
		return core.Failed(fmt.Errorf("%w: %s", core.ErrAgentNotFound, name))
	}

	sessionID, _ := r.base[KeySessionID].(string)
	task := core.Task{
		SessionID:   sessionID,
		PlanID:      r.plan.ID,
		Description: describe(r.plan, name),
		Data:        merge(r.base, extra),
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.AgentTimeout)
	defer cancel()

	done := make(chan core.TaskResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- core.Failed(fmt.Errorf("agent %s panicked: %v", name, p))
			}
		}()
		done <- a.Execute(callCtx, task)
	}()

	select {
	case out := <-done:
		if !out.Success && out.Error == "" {
			out.Error = "agent reported failure"
		}
		return out
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return core.Failed(fmt.Errorf("%w: %s after %s", core.ErrAgentTimeout, name, e.opts.AgentTimeout))
		}
		return core.Failed(callCtx.Err())
	}
}

// BaseData builds the session-derived input every agent of a plan receives.
func BaseData(plan planner.Plan, sess *core.SessionContext, upstream map[string]map[string]any) map[string]any {
	data := map[string]any{
		KeyPlanID: plan.ID,
		KeyIntent: string(plan.Intent),
		KeyPhase:  string(plan.Phase),
	}
	if sess != nil {
		data[KeySessionID] = sess.ID
		data[KeyState] = string(sess.State)
		values := sess.Context.Values()
		ctxData := make(map[string]any, len(values))
		for k, v := range values {
			ctxData[k] = v
		}
		data[KeyContext] = ctxData
	}
	for _, deps := range plan.DataDependencies {
		for _, d := range deps {
			agentName, ok := strings.CutPrefix(d, "artifact:")
			if !ok {
				continue
			}
			if out, ok := upstream[agentName]; ok {
				data[d] = out
			}
		}
	}
	return data
}

// merge builds the data of one agent call. Nested maps are copied one level
// deep so concurrent agents never share a writable map.
func merge(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = shallow(v)
	}
	for k, v := range extra {
		out[k] = shallow(v)
	}
	return out
}

func shallow(v any) any {
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return v
	}
	out := make(map[string]any, len(m))
	for k, x := range m {
		out[k] = x
	}
	return out
}

func describe(plan planner.Plan, agent string) string {
	return fmt.Sprintf("%s %s (%s)", plan.Phase, strings.ReplaceAll(string(plan.Intent), "_", " "), agent)
}
