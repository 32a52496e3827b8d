// Package fsm implements the conversation lifecycle: an explicit transition
// table plus the per-turn decision policy that moves a session through it.
//
// Transition logic is synchronous. The machine mutates the session it is
// handed; callers serialize turns per session.
package fsm

import (
	"fmt"

	"github.com/hupe1980/dialogmesh/accumulator"
	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

// DefaultMaxClarificationRounds caps consecutive clarification re-entries.
const DefaultMaxClarificationRounds = 3

// metaDesignFailed marks a session whose last design run failed.
const metaDesignFailed = "design_failed"

// Action tells the engine what to do after the state decision.
type Action string

const (
	ActionNone      Action = "none"
	ActionGreet     Action = "greet"
	ActionHelp      Action = "help"
	ActionAsk       Action = "ask"
	ActionConfirm   Action = "confirm"
	ActionRevise    Action = "revise"
	ActionDesign    Action = "design"
	ActionImplement Action = "implement"
	ActionReview    Action = "review"
	ActionComplete  Action = "complete"
	ActionPause     Action = "pause"
	ActionDirect    Action = "direct"
	ActionAwait     Action = "await"
	ActionRecover   Action = "recover"
)

// Executes reports whether the action runs an orchestration plan.
func (a Action) Executes() bool {
	return a == ActionDesign || a == ActionImplement || a == ActionDirect
}

// EmptyTurnPolicy decides how a clarification turn that yields no facts at
// all is treated.
type EmptyTurnPolicy string

const (
	// EmptyTurnEscalate counts the turn as a failed clarification round.
	EmptyTurnEscalate EmptyTurnPolicy = "escalate"
	// EmptyTurnReask repeats the question without counting the round.
	EmptyTurnReask EmptyTurnPolicy = "reask"
)

// Input is what the machine needs to know about the current turn.
type Input struct {
	Intent core.Intent
	// Delta is the result of merging this turn's facts.
	Delta accumulator.Delta
	// Empty is true when understanding produced no entities.
	Empty bool
	// ContentType is the content type implied by the task intent, used
	// when clarification gives up and defaults are applied.
	ContentType string
}

// Outcome describes the decision taken for one turn.
type Outcome struct {
	From      core.State
	To        core.State
	Path      []core.State
	Action    Action
	AskField  core.Field
	Forced    bool
	Defaulted []core.Field
	Err       error
}

// Options configures a Machine.
type Options struct {
	MaxClarificationRounds int
	RequireConfirmation    bool
	EmptyTurnPolicy        EmptyTurnPolicy
	Logger                 logging.Logger
	// OnTransition is invoked after every applied state change.
	OnTransition func(sess *core.SessionContext, from, to core.State, reason string)
}

// Machine drives sessions through the lifecycle.
type Machine struct {
	opts Options
	acc  *accumulator.Accumulator
}

// New creates a Machine. acc supplies readiness and defaulting.
func New(acc *accumulator.Accumulator, optFns ...func(o *Options)) *Machine {
	opts := Options{
		MaxClarificationRounds: DefaultMaxClarificationRounds,
		EmptyTurnPolicy:        EmptyTurnEscalate,
		Logger:                 logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxClarificationRounds < 0 {
		opts.MaxClarificationRounds = 0
	}
	if opts.EmptyTurnPolicy == "" {
		opts.EmptyTurnPolicy = EmptyTurnEscalate
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if acc == nil {
		acc = accumulator.New()
	}
	return &Machine{opts: opts, acc: acc}
}

// Transition moves sess to the requested state. Staying put is a no-op. An
// illegal request forces the session into ERROR and returns
// core.ErrIllegalTransition.
func (m *Machine) Transition(sess *core.SessionContext, to core.State, reason string) error {
	from := sess.State
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		m.Fail(sess, fmt.Sprintf("illegal transition %s -> %s", from, to))
		return fmt.Errorf("%w: %s -> %s", core.ErrIllegalTransition, from, to)
	}
	m.apply(sess, to, reason)
	return nil
}

// Fail forces sess into ERROR regardless of the table.
func (m *Machine) Fail(sess *core.SessionContext, reason string) {
	if sess.State == core.StateError {
		return
	}
	m.opts.Logger.Warn("session forced into error", "session_id", sess.ID, "from", sess.State, "reason", reason)
	m.apply(sess, core.StateError, reason)
}

func (m *Machine) apply(sess *core.SessionContext, to core.State, reason string) {
	from := sess.State
	sess.PreviousState = from
	sess.State = to
	sess.Touch()
	m.opts.Logger.Debug("state transition", "session_id", sess.ID, "from", from, "to", to, "reason", reason)
	if m.opts.OnTransition != nil {
		m.opts.OnTransition(sess, from, to, reason)
	}
}

// turn collects the moves of one Advance call.
type turn struct {
	m    *Machine
	sess *core.SessionContext
	out  Outcome
}

func (t *turn) move(to core.State, reason string) bool {
	if err := t.m.Transition(t.sess, to, reason); err != nil {
		t.out.Err = err
		t.out.Action = ActionRecover
		t.out.Path = append(t.out.Path, core.StateError)
		return false
	}
	if t.out.To != to {
		t.out.Path = append(t.out.Path, to)
	}
	t.out.To = to
	return true
}

func (t *turn) ask(f core.Field) {
	t.out.Action = ActionAsk
	t.out.AskField = f
	t.sess.AskedField = f
}

func (t *turn) finish() Outcome {
	t.out.To = t.sess.State
	return t.out
}

// Advance applies one turn's worth of policy to sess. Forced automatic moves
// (session start, error re-entry) happen first; the session then takes at
// most one policy step from the state it is in.
func (m *Machine) Advance(sess *core.SessionContext, in Input) Outcome {
	t := &turn{m: m, sess: sess, out: Outcome{From: sess.State, To: sess.State, Action: ActionNone}}

	if in.Intent.IsTask() {
		sess.TaskIntent = in.Intent
	}

	switch sess.State {
	case core.StateInitializing:
		t.move(core.StateGreeting, "session start")
	case core.StateError:
		if sess.Context.HasAny() {
			t.move(core.StateGatheringRequirements, "recover with partial context")
			sess.ClarificationRounds = 0
			sess.AwaitingConfirmation = false
			m.gather(t, in, true)
			return t.finish()
		}
		t.move(core.StateGreeting, "recover")
	}

	if in.Intent.IsDirect() {
		t.out.Action = ActionDirect
		return t.finish()
	}
	if in.Intent == core.IntentHelp {
		t.out.Action = ActionHelp
		return t.finish()
	}

	switch sess.State {
	case core.StateGreeting:
		m.greeting(t, in)
	case core.StateGatheringRequirements:
		m.gathering(t, in)
	case core.StateClarifying:
		m.clarifying(t, in)
	case core.StateDesigning:
		m.designing(t, in)
	case core.StateReviewing:
		m.reviewing(t, in)
	case core.StateImplementing:
		m.implementing(t, in)
	case core.StateCompleted:
		m.completed(t, in)
	case core.StatePaused:
		m.paused(t, in)
	}
	return t.finish()
}

func (m *Machine) greeting(t *turn, in Input) {
	switch {
	case in.Intent.IsTask():
		if t.move(core.StateGatheringRequirements, "task requested") {
			t.sess.ClarificationRounds = 0
			t.sess.AwaitingConfirmation = false
			m.gather(t, in, true)
		}
	case in.Delta.RequiredAdded > 0:
		if m.acc.Ready(t.sess) {
			if t.move(core.StateGatheringRequirements, "requirements supplied") {
				m.gather(t, in, true)
			}
			return
		}
		if t.move(core.StateClarifying, "requirements supplied") {
			t.sess.ClarificationRounds = 0
			t.ask(accumulator.Missing(&t.sess.Context)[0])
		}
	default:
		t.out.Action = ActionGreet
	}
}

// gather applies the GATHERING_REQUIREMENTS decision. entered is true when
// the session arrived in GATHERING during this turn, in which case an
// incomplete context keeps the session here and asks its first question.
func (m *Machine) gather(t *turn, in Input, entered bool) {
	sess := t.sess
	if m.acc.Ready(sess) {
		m.readyForDesign(t)
		return
	}
	missing := accumulator.Missing(&sess.Context)
	if entered {
		t.ask(missing[0])
		return
	}
	if t.move(core.StateClarifying, "required fields missing") {
		sess.ClarificationRounds = 0
		t.ask(missing[0])
	}
}

func (m *Machine) readyForDesign(t *turn) {
	sess := t.sess
	if m.opts.RequireConfirmation {
		if sess.State == core.StateClarifying && !t.move(core.StateGatheringRequirements, "awaiting confirmation") {
			return
		}
		sess.AwaitingConfirmation = true
		sess.AskedField = ""
		t.out.Action = ActionConfirm
		return
	}
	if t.move(core.StateDesigning, "context ready") {
		sess.AskedField = ""
		t.out.Action = ActionDesign
	}
}

func (m *Machine) gathering(t *turn, in Input) {
	sess := t.sess
	if in.Intent == core.IntentPause {
		if t.move(core.StatePaused, "user paused") {
			t.out.Action = ActionPause
		}
		return
	}
	if sess.AwaitingConfirmation {
		switch in.Intent {
		case core.IntentConfirm:
			sess.AwaitingConfirmation = false
			if t.move(core.StateDesigning, "context confirmed") {
				t.out.Action = ActionDesign
			}
			return
		case core.IntentReject:
			sess.AwaitingConfirmation = false
			t.out.Action = ActionRevise
			return
		}
		if !in.Delta.Changed() {
			t.out.Action = ActionConfirm
			return
		}
		sess.AwaitingConfirmation = false
	}
	m.gather(t, in, false)
}

func (m *Machine) clarifying(t *turn, in Input) {
	sess := t.sess
	if in.Intent == core.IntentPause {
		if t.move(core.StateGatheringRequirements, "user paused") && t.move(core.StatePaused, "user paused") {
			t.out.Action = ActionPause
		}
		return
	}
	if m.acc.Ready(sess) {
		sess.ClarificationRounds = 0
		m.readyForDesign(t)
		return
	}
	missing := accumulator.Missing(&sess.Context)
	if in.Delta.RequiredAdded > 0 {
		sess.ClarificationRounds = 0
		t.ask(missing[0])
		return
	}
	if in.Empty && m.opts.EmptyTurnPolicy == EmptyTurnReask {
		t.ask(missing[0])
		return
	}
	if sess.ClarificationRounds >= m.opts.MaxClarificationRounds {
		m.opts.Logger.Info("clarification limit reached", "session_id", sess.ID, "rounds", sess.ClarificationRounds)
		t.out.Forced = true
		t.out.Defaulted = m.acc.ApplyDefaults(sess, in.ContentType)
		sess.ClarificationRounds = 0
		if t.move(core.StateDesigning, "clarification limit reached") {
			t.out.Action = ActionDesign
		}
		return
	}
	sess.ClarificationRounds++
	t.ask(missing[0])
}

func (m *Machine) designing(t *turn, in Input) {
	sess := t.sess
	failed := sess.Metadata[metaDesignFailed] != ""
	switch {
	case in.Intent == core.IntentConfirm && !failed:
		if t.move(core.StateImplementing, "design approved") {
			t.out.Action = ActionImplement
		}
	case in.Intent == core.IntentPause:
		t.move(core.StatePaused, "user paused")
	case failed, in.Intent == core.IntentConfirm,
		in.Intent == core.IntentReject, in.Intent == core.IntentModifyContent,
		in.Intent.IsTask(), in.Delta.Changed():
		t.out.Action = ActionDesign
	default:
		t.out.Action = ActionAwait
	}
}

func (m *Machine) reviewing(t *turn, in Input) {
	switch {
	case in.Intent == core.IntentConfirm:
		if t.move(core.StateCompleted, "work accepted") {
			t.out.Action = ActionComplete
		}
	case in.Intent == core.IntentPause:
		t.move(core.StatePaused, "user paused")
	case in.Intent == core.IntentReject, in.Intent == core.IntentModifyContent,
		in.Intent.IsTask(), in.Delta.Changed():
		if t.move(core.StateDesigning, "changes requested") {
			t.out.Action = ActionDesign
		}
	default:
		t.out.Action = ActionAwait
	}
}

func (m *Machine) implementing(t *turn, in Input) {
	switch {
	case in.Intent == core.IntentPause:
		t.move(core.StatePaused, "user paused")
	case in.Intent == core.IntentReject, in.Intent == core.IntentModifyContent:
		if t.move(core.StateReviewing, "changes requested") && t.move(core.StateDesigning, "changes requested") {
			t.out.Action = ActionDesign
		}
	default:
		t.out.Action = ActionImplement
	}
}

func (m *Machine) completed(t *turn, in Input) {
	sess := t.sess
	switch {
	case in.Intent.IsTask():
		if t.move(core.StateGreeting, "new task") && t.move(core.StateGatheringRequirements, "new task") {
			sess.ClarificationRounds = 0
			sess.AwaitingConfirmation = false
			m.gather(t, in, true)
		}
	case in.Intent == core.IntentModifyContent:
		if t.move(core.StateReviewing, "revisit completed work") {
			t.out.Action = ActionReview
		}
	case in.Intent == core.IntentGreeting:
		if t.move(core.StateGreeting, "greeting") {
			t.out.Action = ActionGreet
		}
	default:
		t.out.Action = ActionComplete
	}
}

func (m *Machine) paused(t *turn, in Input) {
	sess := t.sess
	switch {
	case in.Intent.IsTask(), in.Intent == core.IntentConfirm, in.Delta.RequiredAdded > 0:
		if t.move(core.StateGatheringRequirements, "resumed") {
			sess.ClarificationRounds = 0
			m.gather(t, in, true)
		}
	case in.Intent == core.IntentGreeting:
		if t.move(core.StateGreeting, "greeting") {
			t.out.Action = ActionGreet
		}
	default:
		t.out.Action = ActionPause
	}
}

// Complete applies the post-execution move for an action that ran a plan.
func (m *Machine) Complete(sess *core.SessionContext, action Action, success bool) Outcome {
	t := &turn{m: m, sess: sess, out: Outcome{From: sess.State, To: sess.State, Action: action}}
	switch action {
	case ActionDesign:
		if success {
			delete(sess.Metadata, metaDesignFailed)
		} else {
			if sess.Metadata == nil {
				sess.Metadata = map[string]string{}
			}
			sess.Metadata[metaDesignFailed] = "true"
		}
	case ActionImplement:
		if success {
			t.move(core.StateReviewing, "implementation finished")
		}
	}
	return t.finish()
}
