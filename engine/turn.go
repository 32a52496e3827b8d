package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hupe1980/dialogmesh/accumulator"
	"github.com/hupe1980/dialogmesh/bus"
	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/executor"
	"github.com/hupe1980/dialogmesh/fsm"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/planner"
	"github.com/hupe1980/dialogmesh/synth"
)

const (
	// contentTypeConfidence is the confidence of the content type implied
	// by a task intent. It replaces defaulted or inferred values but not
	// facts the user stated with full confidence.
	contentTypeConfidence = 0.9
	// bareAnswerConfidence is the confidence of a short reply taken as the
	// answer to the pending question.
	bareAnswerConfidence = 0.6
	// bareAnswerMaxWords bounds replies treated as bare answers.
	bareAnswerMaxWords = 6
)

// nonAnswerRe matches replies that decline to answer the pending question.
var nonAnswerRe = regexp.MustCompile(`\b(i don'?t know|do not know|dunno|idk|not sure|unsure|no idea|whatever|no preference|doesn'?t matter|does not matter|don'?t care|up to you|you (decide|choose|pick)|surprise me)\b|^(any|anything|hmm+|um+|uh+|maybe|nothing|none)$`)

// ErrTurnRejected is reported when a before-turn callback vetoes a turn.
var ErrTurnRejected = errors.New("turn rejected")

// TurnResponse is the structured result of ProcessTurn.
type TurnResponse struct {
	SessionID          string            `json:"session_id"`
	TurnID             string            `json:"turn_id"`
	Message            string            `json:"message"`
	State              core.State        `json:"state"`
	Intent             core.Intent       `json:"intent"`
	AccumulatedContext map[string]string `json:"accumulated_context"`
	Completeness       float64           `json:"completeness"`
	MissingFields      []core.Field      `json:"missing_fields"`
	Suggestions        []string          `json:"suggestions"`
	Data               map[string]any    `json:"data,omitempty"`
	PlanID             string            `json:"plan_id,omitempty"`
	Success            bool              `json:"success"`
	Error              string            `json:"error,omitempty"`
}

// ProcessTurn runs one user message through the pipeline. An empty
// sessionID starts a new session; unknown IDs are created on the fly.
// external carries facts supplied by the caller alongside the text, such as
// form fields, and is merged with full confidence.
//
// ProcessTurn never panics and never returns an error: failures are
// reported through TurnResponse.Success with a softened message.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID, text string, external map[string]string) (resp TurnResponse) {
	start := time.Now()
	if sessionID == "" {
		sessionID = core.NewID()
	}
	turnID := core.NewID()
	resp = TurnResponse{SessionID: sessionID, TurnID: turnID}

	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("turn panicked", "session_id", sessionID, "turn_id", turnID, "panic", p)
			resp = e.failed(ctx, resp, nil, fmt.Errorf("internal error: %v", p))
		}
	}()

	if e.sem != nil {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-ctx.Done():
			return e.failed(ctx, resp, nil, ctx.Err())
		}
	}

	unlock := e.locks.Lock(sessionID)
	defer unlock()

	// A panic after the session is loaded leaves it in ERROR so the stored
	// state matches the reported one.
	var sess *core.SessionContext
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("turn panicked", "session_id", sessionID, "turn_id", turnID, "panic", p)
			if sess != nil {
				e.machine.Fail(sess, "turn panicked")
				if err := e.store.Save(sess); err != nil {
					e.logger.Error("saving failed session", "session_id", sessionID, "error", err)
				}
			}
			resp = e.failed(ctx, resp, sess, fmt.Errorf("internal error: %v", p))
		}
	}()

	loaded, created, err := e.store.GetOrCreate(sessionID)
	if err != nil {
		return e.failed(ctx, resp, nil, fmt.Errorf("load session: %w", err))
	}
	sess = loaded
	if created {
		e.sessionStarted(ctx, sess)
	}

	t := &turnRun{e: e, sess: sess, id: turnID, text: text}
	t.corr = t.id
	ctx = context.WithValue(ctx, correlationKey{}, t.corr)
	t.logger = e.logger
	if dl, ok := e.logger.(*logging.DialogLogger); ok {
		t.logger = dl.WithSession(sessionID, turnID)
	}

	e.publish(ctx, bus.EventTurnReceived, sessionID, t.corr, map[string]any{"text": text, "turn_id": turnID})
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeTurn, &CallbackContext{
		SessionID: sessionID, Session: sess.Clone(), Text: text,
	}); err != nil {
		return e.failed(ctx, resp, sess, fmt.Errorf("%w: %v", ErrTurnRejected, err))
	}

	resp = t.run(ctx, external, resp)

	if err := e.store.Save(sess); err != nil {
		resp = e.failed(ctx, resp, sess, fmt.Errorf("save session: %w", err))
	}

	d := time.Since(start)
	e.metrics.ObserveTurn(string(resp.State), resp.Success, resp.Completeness, d)
	if dl, ok := t.logger.(*logging.DialogLogger); ok {
		dl.LogTurn(string(resp.State), resp.Completeness, d, resp.Success)
	}
	e.publish(ctx, bus.EventResponseReady, sessionID, t.corr, map[string]any{
		"turn_id": turnID, "state": string(resp.State), "success": resp.Success, "message": resp.Message,
	})
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackAfterTurn, &CallbackContext{
		SessionID: sessionID, Session: sess.Clone(), Text: text,
		Metadata: map[string]any{"response": resp},
	}); err != nil {
		e.logger.Warn("after turn callback failed", "session_id", sessionID, "error", err)
	}
	return resp
}

// turnRun carries the state of one pipeline run.
type turnRun struct {
	e      *Engine
	sess   *core.SessionContext
	id     string
	corr   string
	text   string
	logger logging.Logger
}

func (t *turnRun) run(ctx context.Context, external map[string]string, resp TurnResponse) TurnResponse {
	e, sess := t.e, t.sess

	u := t.understand(ctx)
	resp.Intent = u.Intent

	facts, empty := t.facts(u, external)
	sess.TurnCount++
	sess.AddTurn(core.Turn{ID: t.id, Role: "user", Text: t.text, Intent: u.Intent, State: sess.State}, e.config.HistoryCap)

	delta := e.acc.Merge(sess, facts)
	if delta.Changed() {
		e.publish(ctx, bus.EventContextUpdated, sess.ID, t.corr, map[string]any{
			"added":        fieldNames(delta.Added),
			"replaced":     fieldNames(delta.Replaced),
			"completeness": delta.Completeness,
		})
	}

	desc := planner.Describe(planner.EffectiveIntent(u.Intent, sess))
	outcome := e.machine.Advance(sess, fsm.Input{
		Intent:      u.Intent,
		Delta:       delta,
		Empty:       empty,
		ContentType: desc.ContentType,
	})
	t.transitions(ctx, outcome)
	if outcome.Err != nil {
		t.logger.Warn("illegal transition requested", "session_id", sess.ID, "error", outcome.Err)
	}

	plan := e.planner.BuildPlan(u.Intent, sess)
	e.plans.Add(sess.ID, plan)
	resp.PlanID = plan.ID

	hint := synth.Hint{
		Action:       outcome.Action,
		AskField:     outcome.AskField,
		PrimaryAgent: plan.PrimaryAgent,
		Forced:       outcome.Forced,
		Defaulted:    outcome.Defaulted,
	}

	var results map[string]core.TaskResult
	executed := false
	if outcome.Action.Executes() && outcome.Err == nil {
		report := t.execute(ctx, plan)
		results = report.Results
		executed = true
		hint.PrimaryFailed = report.PrimaryFailed
		hint.FallbackUsed = report.FallbackUsed
		resp.Success = report.Succeeded()
		done := e.machine.Complete(sess, outcome.Action, report.Succeeded())
		t.transitions(ctx, done)
	}
	if !executed {
		resp.Success = outcome.Err == nil
	}

	reply := e.synth.Synthesize(results, sess, hint)
	if outcome.Action == fsm.ActionAsk && outcome.Err == nil {
		sess.PendingQuestions = []string{reply.Message}
		e.publish(ctx, bus.EventClarificationRequested, sess.ID, t.corr, map[string]any{
			"field": string(outcome.AskField), "question": reply.Message, "round": sess.ClarificationRounds,
		})
	}
	sess.AddTurn(core.Turn{Role: "assistant", Text: reply.Message, State: sess.State}, e.config.HistoryCap)

	resp.Message = reply.Message
	resp.Suggestions = reply.Suggestions
	resp.Data = reply.Data
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
	}
	return fill(resp, sess)
}

// understand asks the configured understander and falls back to the rules.
func (t *turnRun) understand(ctx context.Context) core.Understanding {
	e, sess := t.e, t.sess
	u, err := e.understander.Understand(ctx, t.text, sess.History, sess.Context.Clone())
	if err != nil && e.understander != e.rules {
		t.logger.Warn("understanding failed, using rules", "session_id", sess.ID, "error", err)
		u, err = e.rules.Understand(ctx, t.text, sess.History, sess.Context.Clone())
	}
	if err != nil {
		t.logger.Warn("understanding failed", "session_id", sess.ID, "error", err)
		return core.Understanding{Intent: core.IntentUnknown}
	}
	if u.Intent == "" {
		u.Intent = core.IntentUnknown
	}
	return u
}

// facts assembles the facts of this turn. empty reports that the user
// supplied nothing the accumulator could use.
func (t *turnRun) facts(u core.Understanding, external map[string]string) (map[string]core.Fact, bool) {
	sess := t.sess
	facts := make(map[string]core.Fact, len(u.Entities)+len(external)+1)
	for k, f := range u.Entities {
		if field, ok := core.ParseField(k); ok && supersedesInferred(&sess.Context, field, f) {
			f.Replace = true
		}
		facts[k] = f
	}
	for k, v := range external {
		facts[k] = core.Fact{Value: v, Confidence: 1, Replace: true}
	}
	if len(facts) == 0 && sess.AskedField != "" && u.Intent == core.IntentUnknown {
		if answer, ok := bareAnswer(t.text); ok {
			facts[string(sess.AskedField)] = core.Fact{Value: answer, Confidence: bareAnswerConfidence}
		}
	}
	empty := len(facts) == 0

	if u.Intent.IsTask() {
		if ct := planner.Describe(u.Intent).ContentType; ct != "" {
			if _, given := facts[string(core.FieldContentType)]; !given {
				facts[string(core.FieldContentType)] = core.Fact{Value: ct, Confidence: contentTypeConfidence, Replace: true}
			}
		}
	}
	return facts, empty
}

func (t *turnRun) execute(ctx context.Context, plan planner.Plan) executor.Report {
	e, sess := t.e, t.sess
	e.publish(ctx, bus.EventPlanCreated, sess.ID, t.corr, map[string]any{
		"plan_id":         plan.ID,
		"intent":          string(plan.Intent),
		"phase":           string(plan.Phase),
		"primary_agent":   plan.PrimaryAgent,
		"supporting":      append([]string(nil), plan.SupportingAgents...),
		"execution_order": string(plan.ExecutionOrder),
	})

	upstream, err := e.artifacts.Upstream(sess.ID)
	if err != nil {
		t.logger.Warn("loading stored outputs failed", "session_id", sess.ID, "error", err)
	}
	report := e.executor.Execute(ctx, plan, sess, upstream)

	if _, err := e.artifacts.Record(sess.ID, report.Results); err != nil {
		t.logger.Warn("storing outputs failed", "session_id", sess.ID, "error", err)
	}
	short := plan.ID
	if len(short) > 8 {
		short = short[:8]
	}
	for _, name := range report.Order {
		if report.Results[name].Success {
			sess.CompletedTasks = append(sess.CompletedTasks, name+":"+short)
		}
	}
	return report
}

// transitions publishes and reports the moves of an outcome.
func (t *turnRun) transitions(ctx context.Context, out fsm.Outcome) {
	e := t.e
	from := out.From
	for _, to := range out.Path {
		e.publish(ctx, bus.EventStateChanged, t.sess.ID, t.corr, map[string]any{
			"from": string(from), "to": string(to),
		})
		if err := e.callbacks.ExecuteCallbacks(ctx, CallbackOnStateChange, &CallbackContext{
			SessionID: t.sess.ID, Session: t.sess.Clone(), From: from, To: to,
		}); err != nil {
			t.logger.Warn("state change callback failed", "session_id", t.sess.ID, "error", err)
		}
		from = to
	}
}

// failed builds the response of a turn that could not be processed.
func (e *Engine) failed(ctx context.Context, resp TurnResponse, sess *core.SessionContext, err error) TurnResponse {
	e.logger.Error("turn failed", "session_id", resp.SessionID, "turn_id", resp.TurnID, "error", err)
	resp.Success = false
	resp.Error = err.Error()
	resp.Message = synth.RecoveryMessage
	resp.Suggestions = []string{"Try rephrasing your request", "Start a new lesson"}
	cc := &CallbackContext{SessionID: resp.SessionID, Err: err}
	if sess != nil {
		cc.Session = sess.Clone()
		resp = fill(resp, sess)
	} else {
		resp.State = core.StateError
		resp.AccumulatedContext = map[string]string{}
	}
	if cbErr := e.callbacks.ExecuteCallbacks(ctx, CallbackOnError, cc); cbErr != nil {
		e.logger.Warn("error callback failed", "session_id", resp.SessionID, "error", cbErr)
	}
	return resp
}

func fill(resp TurnResponse, sess *core.SessionContext) TurnResponse {
	resp.State = sess.State
	resp.AccumulatedContext = sess.Context.Values()
	resp.Completeness = sess.Completeness
	resp.MissingFields = accumulator.Missing(&sess.Context)
	return resp
}

// bareAnswer accepts short statements as the answer to a pending question.
// Hedges such as "not sure" are not answers.
func bareAnswer(text string) (string, bool) {
	text = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(text), ".!"))
	words := strings.Fields(text)
	if len(words) == 0 || len(words) > bareAnswerMaxWords || strings.Contains(text, "?") {
		return "", false
	}
	norm := strings.ToLower(strings.ReplaceAll(strings.Join(words, " "), "’", "'"))
	if nonAnswerRe.MatchString(norm) {
		return "", false
	}
	return strings.Join(words, " "), true
}

// supersedesInferred reports whether an extracted fact should replace a
// value that was only inferred, either from a bare answer or a default.
func supersedesInferred(ctx *core.LessonContext, f core.Field, fact core.Fact) bool {
	if !ctx.Has(f) {
		return false
	}
	conf := fact.Confidence
	if conf <= 0 {
		conf = 1
	}
	cur := ctx.Confidence[f]
	return cur <= bareAnswerConfidence && conf > cur
}

func fieldNames(fields []core.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}
