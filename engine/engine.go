package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hupe1980/dialogmesh/accumulator"
	"github.com/hupe1980/dialogmesh/agent"
	"github.com/hupe1980/dialogmesh/artifact"
	"github.com/hupe1980/dialogmesh/bus"
	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/executor"
	"github.com/hupe1980/dialogmesh/fsm"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/metrics"
	"github.com/hupe1980/dialogmesh/nlu"
	"github.com/hupe1980/dialogmesh/planner"
	"github.com/hupe1980/dialogmesh/session"
	"github.com/hupe1980/dialogmesh/synth"
)

// Source is the SourceAgent of every envelope the engine publishes.
const Source = "engine"

// Config defines the policy knobs of the turn pipeline.
//
// Example:
//
//	cfg := DefaultConfig()
//	cfg.RequireConfirmation = true
//	cfg.AgentTimeout = 10 * time.Second
type Config struct {
	// AutoCompleteThreshold is the completeness at which gathering stops
	// and design begins.
	AutoCompleteThreshold float64

	// MaxClarificationRounds caps consecutive clarification rounds without
	// progress before defaults are applied.
	MaxClarificationRounds int

	// RequireConfirmation asks the user to confirm a complete context
	// before design starts.
	RequireConfirmation bool

	// EmptyTurnPolicy decides whether clarification answers without any
	// extracted fact count as a failed round.
	EmptyTurnPolicy fsm.EmptyTurnPolicy

	// HistoryCap bounds the turns retained per session.
	HistoryCap int

	// SessionTTL bounds how long audit data such as the last plan of an
	// idle session is kept.
	SessionTTL time.Duration

	// AgentTimeout bounds every single agent call.
	AgentTimeout time.Duration

	// MaxAgentCalls bounds the agent calls of a single plan.
	MaxAgentCalls int

	// MaxConcurrentTurns limits turns processed simultaneously across all
	// sessions. Zero means unlimited.
	MaxConcurrentTurns int
}

// DefaultConfig returns the default pipeline policy.
func DefaultConfig() Config {
	return Config{
		AutoCompleteThreshold:  accumulator.DefaultThreshold,
		MaxClarificationRounds: fsm.DefaultMaxClarificationRounds,
		EmptyTurnPolicy:        fsm.EmptyTurnEscalate,
		HistoryCap:             core.DefaultHistoryCap,
		SessionTTL:             session.DefaultTTL,
		AgentTimeout:           executor.DefaultAgentTimeout,
		MaxAgentCalls:          executor.DefaultMaxAgentCalls,
		MaxConcurrentTurns:     64,
	}
}

// Options configures an Engine instance using the functional options pattern.
// Every dependency has an in-memory or offline default.
type Options struct {
	// Config contains the pipeline policy. Defaults to DefaultConfig().
	Config Config

	// SessionStore owns all sessions. Defaults to session.NewInMemoryStore.
	SessionStore core.SessionStore

	// Artifacts keeps agent outputs across turns.
	Artifacts *artifact.InMemoryStore

	// Agents resolves agent names. Defaults to the offline skill agents.
	Agents *agent.Registry

	// Understander interprets user text. Defaults to the rule understander,
	// which also serves as fallback when a custom understander fails.
	Understander core.Understander

	// Bus receives every pipeline envelope.
	Bus *bus.Bus

	// Metrics records Prometheus collectors. Nil disables metrics.
	Metrics *metrics.Metrics

	// Phraser selects reply wording. Seed it for reproducible replies.
	Phraser *synth.Phraser

	// Callbacks hook into lifecycle points.
	Callbacks *CallbackManager

	// Logger provides structured logging. A *logging.DialogLogger
	// additionally gets domain log lines for turns, agents and transitions.
	Logger logging.Logger
}

// Engine runs the turn pipeline. It is safe for concurrent use.
type Engine struct {
	config Config

	store        core.SessionStore
	artifacts    *artifact.InMemoryStore
	agents       *agent.Registry
	understander core.Understander
	rules        core.Understander
	bus          *bus.Bus
	metrics      *metrics.Metrics
	callbacks    *CallbackManager
	logger       logging.Logger

	acc      *accumulator.Accumulator
	machine  *fsm.Machine
	planner  *planner.Planner
	executor *executor.Executor
	synth    *synth.Synthesizer

	locks *session.KeyedMutex
	sem   chan struct{}
	plans *expirable.LRU[string, planner.Plan]
}

// New creates an Engine with sensible defaults.
//
// Examples:
//
//	// Offline engine with rule understanding and skill agents
//	e := New()
//
//	// Model-backed understanding and persistent sessions
//	e := New(func(o *Options) {
//	    o.Understander = nlu.NewModelUnderstander(llm)
//	    o.SessionStore = session.NewInMemoryStore(func(so *session.Options) {
//	        so.Persister = snapshotter
//	    })
//	})
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)
	cfg := opts.Config
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = session.DefaultTTL
	}

	e := &Engine{
		config:       cfg,
		store:        opts.SessionStore,
		artifacts:    opts.Artifacts,
		agents:       opts.Agents,
		understander: opts.Understander,
		rules:        nlu.NewRuleUnderstander(),
		bus:          opts.Bus,
		metrics:      opts.Metrics,
		callbacks:    opts.Callbacks,
		logger:       logger,
		locks:        session.NewKeyedMutex(),
		plans:        expirable.NewLRU[string, planner.Plan](session.DefaultMaxSessions, nil, cfg.SessionTTL),
	}
	if e.store == nil {
		e.store = session.NewInMemoryStore(func(o *session.Options) { o.Logger = logger })
	}
	if e.artifacts == nil {
		e.artifacts = artifact.NewInMemoryStore()
	}
	if e.agents == nil {
		e.agents = agent.NewRegistry(agent.NewSkillAgents()...)
	}
	if e.understander == nil {
		e.understander = e.rules
	}
	if e.bus == nil {
		e.bus = bus.New(func(o *bus.Options) {
			o.Logger = logger
			if opts.Metrics != nil {
				o.Observer = opts.Metrics
			}
		})
	}
	if e.callbacks == nil {
		e.callbacks = NewCallbackManager()
	}
	if cfg.MaxConcurrentTurns > 0 {
		e.sem = make(chan struct{}, cfg.MaxConcurrentTurns)
	}

	e.acc = accumulator.New(func(o *accumulator.Options) {
		o.Threshold = cfg.AutoCompleteThreshold
		o.Logger = logger
	})
	e.machine = fsm.New(e.acc, func(o *fsm.Options) {
		o.MaxClarificationRounds = cfg.MaxClarificationRounds
		o.RequireConfirmation = cfg.RequireConfirmation
		o.EmptyTurnPolicy = cfg.EmptyTurnPolicy
		o.Logger = logger
		o.OnTransition = e.onTransition
	})
	e.planner = planner.New(func(o *planner.Options) { o.Logger = logger })
	e.executor = executor.New(e.agents, func(o *executor.Options) {
		o.AgentTimeout = cfg.AgentTimeout
		o.MaxAgentCalls = cfg.MaxAgentCalls
		o.Logger = logger
		if opts.Metrics != nil {
			o.Observer = opts.Metrics
		}
		o.Hooks = executor.Hooks{OnStart: e.agentStarted, OnDone: e.agentDone}
	})
	e.synth = synth.New(func(o *synth.Options) {
		o.Phraser = opts.Phraser
		o.Logger = logger
	})
	return e
}

// Bus returns the message bus the engine publishes on.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// Agents returns the agent registry.
func (e *Engine) Agents() *agent.Registry { return e.agents }

// Callbacks returns the callback manager.
func (e *Engine) Callbacks() *CallbackManager { return e.callbacks }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.config }

// Register adds an agent, replacing any agent with the same name.
func (e *Engine) Register(a core.Agent) {
	e.agents.Replace(a)
}

// StartSession creates a session explicitly and returns its ID. initial
// facts are merged as if the user had stated them.
func (e *Engine) StartSession(ctx context.Context, userID string, initial map[string]string) (string, error) {
	id := core.NewID()
	unlock := e.locks.Lock(id)
	defer unlock()

	sess, err := e.store.Create(id)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	sess.UserID = userID
	if len(initial) > 0 {
		facts := make(map[string]core.Fact, len(initial))
		for k, v := range initial {
			facts[k] = core.Fact{Value: v, Confidence: 1, Replace: true}
		}
		e.acc.Merge(sess, facts)
	}
	if err := e.store.Save(sess); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	e.sessionStarted(ctx, sess)
	return id, nil
}

// EndSession tears a session down. Unknown sessions yield
// core.ErrSessionNotFound.
func (e *Engine) EndSession(ctx context.Context, sessionID string) (bool, error) {
	unlock := e.locks.Lock(sessionID)
	defer unlock()

	existed, err := e.store.Delete(sessionID)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}
	e.artifacts.Clear(sessionID)
	e.plans.Remove(sessionID)
	e.metrics.SessionEnded()
	e.publish(ctx, bus.EventSessionEnded, sessionID, "", map[string]any{})
	e.logger.Info("session ended", "session_id", sessionID)
	return true, nil
}

// SessionSummary returns a read-only overview of a session.
func (e *Engine) SessionSummary(sessionID string) (core.SessionSummary, error) {
	sess, err := e.store.Get(sessionID)
	if err != nil {
		return core.SessionSummary{}, err
	}
	return Summarize(sess), nil
}

// Session returns a snapshot of the session.
func (e *Engine) Session(sessionID string) (*core.SessionContext, error) {
	return e.store.Get(sessionID)
}

// LastPlan returns the plan built during the most recent turn of a session.
func (e *Engine) LastPlan(sessionID string) (planner.Plan, bool) {
	p, ok := e.plans.Get(sessionID)
	if !ok {
		return planner.Plan{}, false
	}
	return p.Clone(), true
}

// Artifacts returns copies of the stored agent outputs of a session.
func (e *Engine) Artifacts(sessionID string) (map[string]map[string]any, error) {
	return e.artifacts.Upstream(sessionID)
}

// Summarize builds the summary of sess.
func Summarize(sess *core.SessionContext) core.SessionSummary {
	return core.SessionSummary{
		SessionID:           sess.ID,
		State:               sess.State,
		TotalTurns:          sess.TurnCount,
		Completeness:        sess.Completeness,
		MissingFields:       accumulator.Missing(&sess.Context),
		CompletedTasks:      append([]string(nil), sess.CompletedTasks...),
		PendingQuestions:    append([]string(nil), sess.PendingQuestions...),
		ClarificationRounds: sess.ClarificationRounds,
		LastUpdated:         sess.UpdatedAt,
	}
}

func (e *Engine) sessionStarted(ctx context.Context, sess *core.SessionContext) {
	e.metrics.SessionStarted()
	e.publish(ctx, bus.EventSessionStarted, sess.ID, "", map[string]any{"user_id": sess.UserID})
	e.logger.Info("session started", "session_id", sess.ID)
}

// publish sends an envelope within the correlation chain of a turn. Routing
// failures are logged; they never fail the turn.
func (e *Engine) publish(ctx context.Context, eventType bus.EventType, sessionID, correlationID string, data map[string]any) {
	data["session_id"] = sessionID
	env := bus.NewEnvelope(eventType, Source, data)
	if correlationID != "" {
		env.CorrelationID = correlationID
	}
	if err := e.bus.Publish(ctx, env); err != nil {
		e.logger.Warn("publish failed", "event_type", eventType, "session_id", sessionID, "error", err)
	}
}

func (e *Engine) onTransition(sess *core.SessionContext, from, to core.State, reason string) {
	e.metrics.ObserveTransition(string(from), string(to))
	if dl, ok := e.logger.(*logging.DialogLogger); ok {
		dl.WithSession(sess.ID, "").LogTransition(string(from), string(to), reason)
	}
}

func (e *Engine) agentStarted(ctx context.Context, plan planner.Plan, name string) {
	corr, _ := ctx.Value(correlationKey{}).(string)
	e.publish(ctx, bus.EventAgentStarted, plan.SessionID, corr, map[string]any{
		"plan_id": plan.ID, "agent": name,
	})
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeAgent, &CallbackContext{
		SessionID: plan.SessionID, Plan: &plan, Agent: name,
	}); err != nil {
		e.logger.Warn("before agent callback failed", "agent", name, "error", err)
	}
}

func (e *Engine) agentDone(ctx context.Context, plan planner.Plan, name string, res core.TaskResult, d time.Duration) {
	corr, _ := ctx.Value(correlationKey{}).(string)
	eventType := bus.EventAgentCompleted
	data := map[string]any{"plan_id": plan.ID, "agent": name, "duration_ms": d.Milliseconds()}
	var callErr error
	if !res.Success {
		eventType = bus.EventAgentFailed
		data["error"] = res.Error
		callErr = errors.New(res.Error)
	}
	e.publish(ctx, eventType, plan.SessionID, corr, data)
	if dl, ok := e.logger.(*logging.DialogLogger); ok {
		dl.WithSession(plan.SessionID, "").LogAgentCall(name, d, res.Success, callErr)
	}
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterAgent, &CallbackContext{
		SessionID: plan.SessionID, Plan: &plan, Agent: name, Result: &res,
	}); err != nil {
		e.logger.Warn("after agent callback failed", "agent", name, "error", err)
	}
}

type correlationKey struct{}
