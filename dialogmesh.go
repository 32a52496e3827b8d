// Package dialogmesh provides a high-level façade over the turn pipeline
// (sessions, understanding, planning, agent execution and reply synthesis)
// for building multi-agent conversational assistants. Most applications
// interact with this package by:
//  1. Creating a DialogMesh via New() or NewFromConfig()
//  2. Optionally registering agents that replace the offline skill agents
//  3. Feeding user messages to ProcessTurn and rendering the TurnResponse
//
// All defaults run offline and in memory. Production deployments typically
// load a config file that enables SQLite snapshots and a model provider.
package dialogmesh

import (
	"context"
	"errors"
	"fmt"
	"io"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/dialogmesh/agent"
	"github.com/hupe1980/dialogmesh/bus"
	"github.com/hupe1980/dialogmesh/config"
	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/engine"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/metrics"
	"github.com/hupe1980/dialogmesh/model"
	"github.com/hupe1980/dialogmesh/model/anthropic"
	"github.com/hupe1980/dialogmesh/model/openai"
	"github.com/hupe1980/dialogmesh/nlu"
	"github.com/hupe1980/dialogmesh/planner"
	"github.com/hupe1980/dialogmesh/session"
	"github.com/hupe1980/dialogmesh/session/sqlite"
	"github.com/hupe1980/dialogmesh/synth"
)

// conversationInstruction drives the model-backed conversation agent.
const conversationInstruction = "You are a friendly assistant helping a teacher plan classroom content. " +
	"Known details: {{range $k, $v := .context}}{{$k}}={{$v}} {{end}}. " +
	"Task: {{.description}}. Reply in two or three sentences."

// Options configures the DialogMesh instance.
type Options struct {
	// Pipeline policy (thresholds, caps, timeouts)
	Config engine.Config

	// SessionStore defaults to an in-memory store.
	SessionStore core.SessionStore

	// Understander defaults to the rule understander.
	Understander core.Understander

	// Agents replace the offline skill agents of the same name.
	Agents []core.Agent

	// Bus defaults to an in-process bus.
	Bus *bus.Bus

	// Metrics is optional; nil disables Prometheus collection.
	Metrics *metrics.Metrics

	// Phraser selects reply wording; seed it for reproducible output.
	Phraser *synth.Phraser

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// DialogMesh is the high-level façade aggregating the engine and its services.
type DialogMesh struct {
	opts    Options
	engine  *engine.Engine
	closers []io.Closer
}

// New creates a new DialogMesh instance with optional overrides. Any unset
// service is initialized with an in-memory or offline implementation.
func New(optFns ...func(o *Options)) *DialogMesh {
	opts := Options{
		Config: engine.DefaultConfig(),
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	registry := agent.NewRegistry(agent.NewSkillAgents()...)
	for _, a := range opts.Agents {
		registry.Replace(a)
	}

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.Config
		o.SessionStore = opts.SessionStore
		o.Agents = registry
		o.Understander = opts.Understander
		o.Bus = opts.Bus
		o.Metrics = opts.Metrics
		o.Phraser = opts.Phraser
		o.Logger = opts.Logger
	})

	return &DialogMesh{opts: opts, engine: e}
}

// NewFromConfig builds a DialogMesh from a loaded configuration: logger,
// session persistence, bus retention and the model provider. optFns run
// last and may override anything derived from cfg.
func NewFromConfig(cfg config.Config, optFns ...func(o *Options)) (*DialogMesh, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := cfg.Logger()

	var closers []io.Closer
	var persister session.Persister
	if cfg.Store.SQLitePath != "" {
		snap, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open session database: %w", err)
		}
		persister = snap
		closers = append(closers, snap)
	}

	llm, err := NewModel(cfg.Model)
	if err != nil {
		closeAll(closers)
		return nil, err
	}

	fns := []func(o *Options){func(o *Options) {
		o.Config = cfg.EngineConfig()
		o.Logger = logger
		o.SessionStore = session.NewInMemoryStore(func(so *session.Options) {
			so.MaxSessions = cfg.Session.MaxSessions
			so.TTL = cfg.Session.TTL
			so.Logger = logger
			if persister != nil {
				so.Persister = persister
			}
		})
		o.Bus = bus.New(func(bo *bus.Options) {
			bo.HistoryCap = cfg.Bus.HistoryCap
			bo.HistoryKeep = cfg.Bus.HistoryKeep
			bo.Logger = logger
		})
		if llm != nil {
			o.Understander = nlu.NewModelUnderstander(llm, func(mo *nlu.ModelOptions) {
				mo.Logger = logger
			})
			o.Agents = append(o.Agents, agent.NewModelAgent(planner.AgentConversation, llm, func(ao *agent.ModelAgentOptions) {
				ao.Instruction = agent.NewInstructionFromText(conversationInstruction)
				ao.OutputKey = "reply"
			}))
		}
	}}

	m := New(append(fns, optFns...)...)
	m.closers = closers
	logger.Info("dialogmesh ready", "model_provider", cfg.Model.Provider, "persistent", persister != nil)
	return m, nil
}

// NewModel returns the model of the configured provider, or nil when the
// provider is "none".
func NewModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "", config.ProviderNone:
		return nil, nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = sdkanthropic.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			o.APIKey = cfg.APIKey
		}), nil
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			o.APIKey = cfg.APIKey
		}), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}

// RegisterAgent adds an agent, replacing any agent with the same name.
func (m *DialogMesh) RegisterAgent(a core.Agent) { m.engine.Register(a) }

// ProcessTurn handles one user message. An empty sessionID starts a session.
func (m *DialogMesh) ProcessTurn(ctx context.Context, sessionID, text string) engine.TurnResponse {
	return m.engine.ProcessTurn(ctx, sessionID, text, nil)
}

// ProcessTurnWithContext is ProcessTurn with caller supplied facts, such as
// form fields, merged at full confidence.
func (m *DialogMesh) ProcessTurnWithContext(ctx context.Context, sessionID, text string, facts map[string]string) engine.TurnResponse {
	return m.engine.ProcessTurn(ctx, sessionID, text, facts)
}

// StartSession creates a session and returns its ID.
func (m *DialogMesh) StartSession(ctx context.Context, userID string, initial map[string]string) (string, error) {
	return m.engine.StartSession(ctx, userID, initial)
}

// EndSession tears a session down.
func (m *DialogMesh) EndSession(ctx context.Context, sessionID string) (bool, error) {
	return m.engine.EndSession(ctx, sessionID)
}

// SessionSummary returns a read-only overview of a session.
func (m *DialogMesh) SessionSummary(sessionID string) (core.SessionSummary, error) {
	return m.engine.SessionSummary(sessionID)
}

// LastPlan returns the plan of the latest turn of a session.
func (m *DialogMesh) LastPlan(sessionID string) (planner.Plan, bool) {
	return m.engine.LastPlan(sessionID)
}

// Bus returns the message bus every pipeline event is published on.
func (m *DialogMesh) Bus() *bus.Bus { return m.engine.Bus() }

// Engine exposes the underlying engine for advanced use such as callbacks.
func (m *DialogMesh) Engine() *engine.Engine { return m.engine }

// Close releases resources opened by NewFromConfig.
func (m *DialogMesh) Close() error {
	err := closeAll(m.closers)
	m.closers = nil
	return err
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
