// Package accumulator merges extracted facts into a session's LessonContext
// and scores how complete the context is.
package accumulator

import (
	"sort"
	"strings"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

const (
	// RequiredWeight is the share of completeness carried by required fields.
	RequiredWeight = 0.7
	// OptionalWeight is the share carried by optional fields.
	OptionalWeight = 0.3
	// DefaultThreshold is the completeness at which design may start.
	DefaultThreshold = 0.8
)

// Defaults fill required fields when clarification gives up.
var Defaults = map[core.Field]string{
	core.FieldGradeLevel:  "general audience",
	core.FieldSubject:     "general",
	core.FieldTopic:       "introductory overview",
	core.FieldContentType: "lesson",
}

// Completeness returns 0.7*(required present/4) + 0.3*(optional present/8).
func Completeness(c *core.LessonContext) float64 {
	req, opt := core.RequiredFields(), core.OptionalFields()
	var r, o int
	for _, f := range req {
		if c.Has(f) {
			r++
		}
	}
	for _, f := range opt {
		if c.Has(f) {
			o++
		}
	}
	return RequiredWeight*float64(r)/float64(len(req)) + OptionalWeight*float64(o)/float64(len(opt))
}

// Missing returns the absent required fields in priority order.
func Missing(c *core.LessonContext) []core.Field {
	var out []core.Field
	for _, f := range core.RequiredFields() {
		if !c.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// MissingOptional returns the absent optional fields.
func MissingOptional(c *core.LessonContext) []core.Field {
	var out []core.Field
	for _, f := range core.OptionalFields() {
		if !c.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Ready reports whether the context may move on to design: either the
// completeness threshold is met or every required field is present.
func Ready(c *core.LessonContext, threshold float64) bool {
	return Completeness(c) >= threshold || len(Missing(c)) == 0
}

// Delta describes what a merge changed.
type Delta struct {
	Added         []core.Field
	Replaced      []core.Field
	Extensions    []string
	Ignored       []string
	RequiredAdded int
	Completeness  float64
	Missing       []core.Field
}

// Changed reports whether the merge modified the context.
func (d Delta) Changed() bool {
	return len(d.Added)+len(d.Replaced)+len(d.Extensions) > 0
}

// Options configures an Accumulator.
type Options struct {
	Threshold float64
	Logger    logging.Logger
}

// Accumulator merges facts into sessions. It holds no per-session state.
type Accumulator struct {
	opts Options
}

// New creates an Accumulator.
func New(optFns ...func(o *Options)) *Accumulator {
	opts := Options{Threshold: DefaultThreshold, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Accumulator{opts: opts}
}

// Threshold returns the configured readiness threshold.
func (a *Accumulator) Threshold() float64 { return a.opts.Threshold }

// Ready reports whether sess may move on to design.
func (a *Accumulator) Ready(sess *core.SessionContext) bool {
	return Ready(&sess.Context, a.opts.Threshold)
}

// Merge folds facts into sess.Context. Existing values win unless a fact
// asks to replace them with at least the stored confidence. Empty values are
// skipped, so completeness never decreases. A pending question is cleared
// once the field it asked about is filled.
func (a *Accumulator) Merge(sess *core.SessionContext, facts map[string]core.Fact) Delta {
	ctx := &sess.Context
	if ctx.Confidence == nil {
		ctx.Confidence = make(map[core.Field]float64)
	}

	names := make([]string, 0, len(facts))
	for n := range facts {
		names = append(names, n)
	}
	sort.Strings(names)

	var d Delta
	for _, name := range names {
		fact := facts[name]
		value := strings.TrimSpace(fact.Value)
		if value == "" {
			continue
		}
		conf := fact.Confidence
		if conf <= 0 {
			conf = 1.0
		}
		key := strings.ToLower(strings.TrimSpace(name))
		if f, ok := core.ParseField(key); ok {
			switch {
			case !ctx.Has(f):
				ctx.Set(f, value)
				ctx.Confidence[f] = conf
				d.Added = append(d.Added, f)
				if f.IsRequired() {
					d.RequiredAdded++
				}
			case fact.Replace && ctx.Get(f) != value && conf >= ctx.Confidence[f]:
				ctx.Set(f, value)
				ctx.Confidence[f] = conf
				d.Replaced = append(d.Replaced, f)
			default:
				d.Ignored = append(d.Ignored, key)
			}
			continue
		}
		if ctx.Extensions == nil {
			ctx.Extensions = make(map[string]string)
		}
		if cur, ok := ctx.Extensions[key]; !ok || (fact.Replace && cur != value) {
			ctx.Extensions[key] = value
			d.Extensions = append(d.Extensions, key)
		} else {
			d.Ignored = append(d.Ignored, key)
		}
	}

	if sess.AskedField != "" && ctx.Has(sess.AskedField) {
		sess.AskedField = ""
		sess.PendingQuestions = sess.PendingQuestions[:0]
	}

	sess.Completeness = Completeness(ctx)
	sess.Touch()
	d.Completeness = sess.Completeness
	d.Missing = Missing(ctx)
	if d.Changed() {
		a.opts.Logger.Debug("context merged", "session_id", sess.ID, "added", len(d.Added), "replaced", len(d.Replaced), "completeness", d.Completeness)
	}
	return d
}

// ApplyDefaults fills every missing required field with a default value and
// records which ones were defaulted. contentType overrides the content type
// default when non-empty.
func (a *Accumulator) ApplyDefaults(sess *core.SessionContext, contentType string) []core.Field {
	var filled []core.Field
	for _, f := range Missing(&sess.Context) {
		v := Defaults[f]
		if f == core.FieldContentType && contentType != "" {
			v = contentType
		}
		sess.Context.Set(f, v)
		if sess.Context.Confidence == nil {
			sess.Context.Confidence = make(map[core.Field]float64)
		}
		sess.Context.Confidence[f] = 0
		filled = append(filled, f)
	}
	sess.Defaulted = append(sess.Defaulted, filled...)
	sess.AskedField = ""
	sess.PendingQuestions = sess.PendingQuestions[:0]
	sess.Completeness = Completeness(&sess.Context)
	sess.Touch()
	if len(filled) > 0 {
		a.opts.Logger.Info("required fields defaulted", "session_id", sess.ID, "fields", filled)
	}
	return filled
}
