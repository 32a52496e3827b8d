// Package synth turns agent results and session state into the single reply
// of a turn.
//
// The mapping from (state, action, results) to the information a reply
// carries is deterministic. Only the wording varies, through the Phraser.
package synth

import (
	"sort"
	"strings"

	"github.com/hupe1980/dialogmesh/accumulator"
	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/fsm"
	"github.com/hupe1980/dialogmesh/logging"
)

// MaxSuggestions caps the suggestions of a reply.
const MaxSuggestions = 3

// Response is the synthesized reply of a turn.
type Response struct {
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
}

// Hint carries what the turn decided besides the raw results.
type Hint struct {
	Action        fsm.Action
	AskField      core.Field
	PrimaryAgent  string
	PrimaryFailed bool
	FallbackUsed  string
	Forced        bool
	Defaulted     []core.Field
	// Failed marks a turn that could not be processed at all.
	Failed bool
}

// Options configures a Synthesizer.
type Options struct {
	Phraser *Phraser
	Logger  logging.Logger
}

// Synthesizer builds replies.
type Synthesizer struct {
	opts Options
}

// New creates a Synthesizer.
func New(optFns ...func(o *Options)) *Synthesizer {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Phraser == nil {
		opts.Phraser = NewPhraser(nil)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Synthesizer{opts: opts}
}

// Synthesize builds the reply for sess after a turn produced results.
func (s *Synthesizer) Synthesize(results map[string]core.TaskResult, sess *core.SessionContext, hint Hint) Response {
	data := templateData(results, sess, hint)
	resp := Response{
		Data:        responseData(results, sess),
		Suggestions: Suggestions(sess, hint),
	}
	resp.Message = s.message(results, sess, hint, data)
	if resp.Message == "" {
		resp.Message = RecoveryMessage
	}
	return resp
}

func (s *Synthesizer) message(results map[string]core.TaskResult, sess *core.SessionContext, hint Hint, data map[string]any) string {
	p := s.opts.Phraser
	if hint.Failed || hint.Action == fsm.ActionRecover || sess.State == core.StateError {
		return RecoveryMessage
	}
	if hint.Action.Executes() && len(results) > 0 {
		return s.executed(results, sess, hint, data)
	}

	switch hint.Action {
	case fsm.ActionHelp:
		return helpText
	case fsm.ActionGreet:
		return p.Pick(greetings...)
	case fsm.ActionAsk:
		return p.Render(data, questions[hint.AskField]...)
	case fsm.ActionConfirm:
		return p.Render(data, confirmations...)
	case fsm.ActionRevise:
		return p.Pick(revisions...)
	case fsm.ActionPause:
		return p.Pick(pauses...)
	case fsm.ActionComplete:
		return p.Render(data, completions...)
	case fsm.ActionReview:
		return p.Render(data, awaiting[core.StateReviewing]...)
	}

	if tmpls, ok := awaiting[sess.State]; ok {
		return p.Render(data, tmpls...)
	}
	switch sess.State {
	case core.StateGreeting, core.StateInitializing:
		return p.Pick(greetings...)
	case core.StatePaused:
		return p.Pick(pauses...)
	}
	return s.summary(results, data)
}

// executed phrases the outcome of a plan run.
func (s *Synthesizer) executed(results map[string]core.TaskResult, sess *core.SessionContext, hint Hint, data map[string]any) string {
	p := s.opts.Phraser
	if hint.PrimaryFailed {
		if hint.FallbackUsed != "" {
			if reply := replyOf(results[hint.FallbackUsed]); reply != "" {
				return RecoveryMessage + " " + reply
			}
		}
		return RecoveryMessage
	}

	var msg string
	switch {
	case hint.Action == fsm.ActionDirect:
		msg = s.summary(results, data)
	case hint.Action == fsm.ActionImplement && sess.State == core.StateReviewing:
		msg = p.Render(data, implementSummaries...)
	case hint.Action == fsm.ActionDesign:
		msg = p.Render(data, designSummaries...)
	default:
		msg = s.summary(results, data)
	}
	if ok, total := successCount(results); ok < total && hint.Action != fsm.ActionDirect {
		msg += " " + p.Render(data, someFailed...)
	}
	if hint.Forced && len(hint.Defaulted) > 0 {
		msg += p.Render(data, defaultedNote)
	}
	return msg
}

// summary is the generic ratio based phrasing.
func (s *Synthesizer) summary(results map[string]core.TaskResult, data map[string]any) string {
	ok, total := successCount(results)
	switch {
	case total == 0:
		return s.opts.Phraser.Pick(greetings...)
	case ok == total:
		return s.opts.Phraser.Render(data, allSucceeded...)
	case ok == 0:
		return RecoveryMessage
	default:
		return s.opts.Phraser.Render(data, someFailed...)
	}
}

// Suggestions derives up to MaxSuggestions follow-ups from what the session
// knows and lacks.
func Suggestions(sess *core.SessionContext, hint Hint) []string {
	var out []string
	add := func(s string) {
		if len(out) < MaxSuggestions {
			out = append(out, s)
		}
	}
	switch {
	case hint.Failed || sess.State == core.StateError:
		add("Try rephrasing your request")
		add("Start a new lesson")
	case sess.State == core.StateGreeting || sess.State == core.StateInitializing:
		add("Create a lesson")
		add("Create a quiz")
		add("Generate a terrain")
	case sess.State == core.StatePaused:
		add("Continue where we left off")
	case sess.State == core.StateGatheringRequirements && sess.AwaitingConfirmation:
		add("Yes, start designing")
		add("Change something first")
	case sess.State == core.StateGatheringRequirements || sess.State == core.StateClarifying:
		for _, f := range accumulator.Missing(&sess.Context) {
			add("Specify the " + f.Label())
		}
		for _, f := range accumulator.MissingOptional(&sess.Context) {
			add("Add the " + f.Label())
		}
	case sess.State == core.StateDesigning:
		add("Yes, build it")
		add("Change the design")
		if !sess.Context.Has(core.FieldDuration) {
			add("Set a duration")
		}
	case sess.State == core.StateImplementing || sess.State == core.StateReviewing:
		add("Looks good")
		add("Make changes")
	case sess.State == core.StateCompleted:
		add("Create a quiz for this lesson")
		add("Start something new")
	}
	return out
}

func templateData(results map[string]core.TaskResult, sess *core.SessionContext, hint Hint) map[string]any {
	data := map[string]any{}
	for k, v := range sess.Context.Values() {
		data[k] = v
	}
	if data[string(core.FieldContentType)] == nil {
		data[string(core.FieldContentType)] = "content"
	}
	if data[string(core.FieldTopic)] == nil {
		data[string(core.FieldTopic)] = "your topic"
	}
	data["summary"] = contextSummary(&sess.Context)
	ok, total := successCount(results)
	data["successes"] = ok
	data["total"] = total
	data["outputs"] = outputs(results)
	labels := make([]string, 0, len(hint.Defaulted))
	for _, f := range hint.Defaulted {
		labels = append(labels, f.Label())
	}
	data["defaulted"] = strings.Join(labels, ", ")
	return data
}

// contextSummary reads like "a 5th grade math lesson on fractions".
func contextSummary(c *core.LessonContext) string {
	var parts []string
	for _, f := range []core.Field{core.FieldGradeLevel, core.FieldSubject, core.FieldContentType} {
		if v := c.Get(f); v != "" {
			parts = append(parts, v)
		}
	}
	s := strings.Join(parts, " ")
	if s == "" {
		s = "your content"
	}
	if t := c.Get(core.FieldTopic); t != "" {
		s += " on " + t
	}
	return s
}

// outputs lists the produced output keys of successful results.
func outputs(results map[string]core.TaskResult) string {
	seen := map[string]bool{}
	var keys []string
	for _, res := range results {
		if !res.Success {
			continue
		}
		for k := range res.Data {
			if k == "agent" || k == "model" || seen[k] {
				continue
			}
			seen[k] = true
			keys = append(keys, strings.ReplaceAll(k, "_", " "))
		}
	}
	if len(keys) == 0 {
		return "the requested content"
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

func responseData(results map[string]core.TaskResult, sess *core.SessionContext) map[string]any {
	data := map[string]any{
		"completeness": sess.Completeness,
		"missing":      fieldNames(accumulator.Missing(&sess.Context)),
	}
	if len(results) == 0 {
		return data
	}
	agents := map[string]any{}
	var failed []string
	for name, res := range results {
		if res.Success {
			agents[name] = res.Data
		} else {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	data["results"] = agents
	if len(failed) > 0 {
		data["failed_agents"] = failed
	}
	return data
}

func fieldNames(fields []core.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}

func successCount(results map[string]core.TaskResult) (ok, total int) {
	for _, r := range results {
		if r.Success {
			ok++
		}
	}
	return ok, len(results)
}

func replyOf(res core.TaskResult) string {
	if !res.Success {
		return ""
	}
	if s, ok := res.Data["reply"].(string); ok {
		return s
	}
	return ""
}
