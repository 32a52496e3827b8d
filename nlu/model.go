package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/util"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/model"
)

// DefaultHistoryWindow is the number of recent turns sent to the model.
const DefaultHistoryWindow = 6

// modelReply is the JSON contract the model must answer with.
type modelReply struct {
	Intent     string            `json:"intent" description:"one of the supported intents"`
	Entities   map[string]string `json:"entities" description:"lesson facts found in the message"`
	Confidence float64           `json:"confidence" description:"0..1"`
	Clarify    []string          `json:"clarifications_needed,omitempty"`
	Suggest    []string          `json:"suggestions,omitempty"`
}

var replySchema = util.SchemaFor(modelReply{})

// ModelOptions configures a ModelUnderstander.
type ModelOptions struct {
	// Fallback handles turns the model could not. Defaults to RuleUnderstander.
	Fallback      core.Understander
	HistoryWindow int
	Logger        logging.Logger
}

// ModelUnderstander asks a language model for the understanding.
type ModelUnderstander struct {
	llm  model.Model
	opts ModelOptions
}

var _ core.Understander = (*ModelUnderstander)(nil)

// NewModelUnderstander creates a ModelUnderstander backed by llm.
func NewModelUnderstander(llm model.Model, optFns ...func(o *ModelOptions)) *ModelUnderstander {
	opts := ModelOptions{
		Fallback:      RuleUnderstander{},
		HistoryWindow: DefaultHistoryWindow,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Fallback == nil {
		opts.Fallback = RuleUnderstander{}
	}
	return &ModelUnderstander{llm: llm, opts: opts}
}

// Understand implements core.Understander.
func (m *ModelUnderstander) Understand(ctx context.Context, text string, history []core.Turn, accumulated core.LessonContext) (core.Understanding, error) {
	u, err := m.ask(ctx, text, history, accumulated)
	if err != nil {
		if ctx.Err() != nil {
			return core.Understanding{}, ctx.Err()
		}
		m.opts.Logger.Warn("model understanding failed, using rules", "model", m.llm.Info().Name, "error", err)
		return m.opts.Fallback.Understand(ctx, text, history, accumulated)
	}
	return u, nil
}

func (m *ModelUnderstander) ask(ctx context.Context, text string, history []core.Turn, accumulated core.LessonContext) (core.Understanding, error) {
	known, err := json.Marshal(accumulated.Values())
	if err != nil {
		return core.Understanding{}, err
	}
	msgs := make([]model.Message, 0, m.opts.HistoryWindow+1)
	start := len(history) - m.opts.HistoryWindow
	if start < 0 {
		start = 0
	}
	for _, t := range history[start:] {
		msgs = append(msgs, model.Message{Role: t.Role, Text: t.Text})
	}
	msgs = append(msgs, model.Message{Role: "user", Text: text})

	raw, err := model.Complete(ctx, m.llm, model.Request{
		Instructions: instructions(string(known)),
		Messages:     msgs,
	})
	if err != nil {
		return core.Understanding{}, err
	}
	return ParseReply(raw)
}

// ParseReply decodes and validates a model answer. Code fences and prose
// around the JSON object are tolerated.
func ParseReply(raw string) (core.Understanding, error) {
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return core.Understanding{}, fmt.Errorf("no JSON object in model reply")
	}
	body := raw[start : end+1]

	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return core.Understanding{}, fmt.Errorf("decode model reply: %w", err)
	}
	if err := util.Validate(payload, replySchema); err != nil {
		return core.Understanding{}, err
	}
	var reply modelReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return core.Understanding{}, fmt.Errorf("decode model reply: %w", err)
	}

	u := core.Understanding{
		Intent:               core.ParseIntent(reply.Intent),
		Confidence:           clamp(reply.Confidence),
		ClarificationsNeeded: reply.Clarify,
		Suggestions:          reply.Suggest,
	}
	if len(reply.Entities) > 0 {
		u.Entities = make(map[string]core.Fact, len(reply.Entities))
		for k, v := range reply.Entities {
			if v = strings.TrimSpace(v); v != "" {
				u.Entities[k] = core.Fact{Value: v, Confidence: u.Confidence}
			}
		}
	}
	return u, nil
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

func instructions(known string) string {
	intents := make([]string, 0, len(core.Intents()))
	for _, i := range core.Intents() {
		intents = append(intents, string(i))
	}
	fields := make([]string, 0, 12)
	for _, f := range append(core.RequiredFields(), core.OptionalFields()...) {
		fields = append(fields, string(f))
	}
	return fmt.Sprintf(`You classify messages from teachers designing educational content.
Answer with a single JSON object and nothing else:
{"intent": string, "entities": {field: value}, "confidence": number, "clarifications_needed": [field], "suggestions": [string]}
Supported intents: %s.
Known entity fields: %s.
Already known: %s`, strings.Join(intents, ", "), strings.Join(fields, ", "), known)
}
