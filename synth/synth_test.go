package synth

import (
	"testing"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/fsm"
	"github.com/hupe1980/dialogmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSynth(seed uint64) *Synthesizer {
	return New(func(o *Options) { o.Phraser = NewSeededPhraser(seed) })
}

func TestPhraser_SeededIsDeterministic(t *testing.T) {
	a, b := NewSeededPhraser(7), NewSeededPhraser(7)
	opts := []string{"a", "b", "c", "d"}
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Pick(opts...), b.Pick(opts...))
	}
	assert.Equal(t, "", a.Pick())
	assert.Equal(t, "only", a.Pick("only"))
}

func TestPhraser_RenderFallsBackOnBrokenTemplate(t *testing.T) {
	p := NewSeededPhraser(1)
	assert.Equal(t, "{{.oops", p.Render(nil, "{{.oops"))
	assert.Equal(t, "hi Ada", p.Render(map[string]any{"name": "Ada"}, "hi {{.name}}"))
}

func TestSynthesize_ClarificationQuestion(t *testing.T) {
	sess := testutil.NewSessionBuilder("s").State(core.StateGatheringRequirements).Build()
	resp := newSynth(1).Synthesize(nil, sess, Hint{Action: fsm.ActionAsk, AskField: core.FieldGradeLevel})

	assert.Contains(t, resp.Message, "grade")
	assert.Equal(t, 1, countQuestions(resp.Message))
	assert.LessOrEqual(t, len(resp.Suggestions), MaxSuggestions)
	assert.Equal(t, "Specify the grade level", resp.Suggestions[0])
	assert.Equal(t, []string{"grade_level", "subject", "topic", "content_type"}, resp.Data["missing"])
}

func countQuestions(s string) int {
	n := 0
	for _, r := range s {
		if r == '?' {
			n++
		}
	}
	return n
}

func TestSynthesize_QuestionUsesKnownContext(t *testing.T) {
	sess := testutil.NewSessionBuilder("s").State(core.StateClarifying).
		Field(core.FieldSubject, "science").Build()
	resp := newSynth(3).Synthesize(nil, sess, Hint{Action: fsm.ActionAsk, AskField: core.FieldTopic})
	assert.Contains(t, resp.Message, "in science")
}

func TestSynthesize_DesignSummary(t *testing.T) {
	sess := testutil.NewSessionBuilder("s").Required().State(core.StateDesigning).Build()
	results := map[string]core.TaskResult{
		"curriculum": core.Succeeded(map[string]any{"agent": "curriculum", "lesson_plan": "x"}),
		"quiz":       core.Succeeded(map[string]any{"agent": "quiz", "quiz_outline": "y"}),
	}
	resp := newSynth(1).Synthesize(results, sess, Hint{Action: fsm.ActionDesign, PrimaryAgent: "curriculum"})

	assert.Contains(t, resp.Message, "5th grade math lesson on fractions")
	assert.Contains(t, resp.Message, "lesson plan, quiz outline")
	assert.Equal(t, []string{"Yes, build it", "Change the design", "Set a duration"}, resp.Suggestions)

	agents := resp.Data["results"].(map[string]any)
	assert.Len(t, agents, 2)
}

func TestSynthesize_PartialFailure(t *testing.T) {
	sess := testutil.NewSessionBuilder("s").Required().State(core.StateDesigning).Build()
	results := map[string]core.TaskResult{
		"curriculum": core.Succeeded(map[string]any{"lesson_plan": "x"}),
		"assessment": {Success: false, Error: "boom"},
		"quiz":       {Success: false, Error: "boom"},
		"terrain":    core.Succeeded(map[string]any{"terrain_layout": "z"}),
	}
	resp := newSynth(1).Synthesize(results, sess, Hint{Action: fsm.ActionDesign})

	assert.NotEmpty(t, resp.Message)
	assert.Contains(t, resp.Message, "2 of 4")
	assert.NotContains(t, resp.Message, "boom")
	assert.Equal(t, []string{"assessment", "quiz"}, resp.Data["failed_agents"])
}

func TestSynthesize_PrimaryFailureRecovery(t *testing.T) {
	sess := testutil.NewSessionBuilder("s").Required().State(core.StateDesigning).Build()
	results := map[string]core.TaskResult{
		"curriculum":   {Success: false, Error: "upstream 500"},
		"conversation": core.Succeeded(map[string]any{"reply": "Let's keep working on fractions."}),
	}
	resp := newSynth(1).Synthesize(results, sess, Hint{
		Action: fsm.ActionDesign, PrimaryAgent: "curriculum", PrimaryFailed: true, FallbackUsed: "conversation",
	})
	assert.Equal(t, RecoveryMessage+" Let's keep working on fractions.", resp.Message)
	assert.NotContains(t, resp.Message, "500")

	resp = newSynth(1).Synthesize(map[string]core.TaskResult{"curriculum": {Error: "x"}}, sess, Hint{
		Action: fsm.ActionDesign, PrimaryFailed: true,
	})
	assert.Equal(t, RecoveryMessage, resp.Message)
}

func TestSynthesize_ForcedDefaultsNote(t *testing.T) {
	sess := testutil.NewSessionBuilder("s").Required().State(core.StateDesigning).Build()
	results := map[string]core.TaskResult{"curriculum": core.Succeeded(map[string]any{"lesson_plan": "x"})}
	resp := newSynth(1).Synthesize(results, sess, Hint{
		Action: fsm.ActionDesign, Forced: true, Defaulted: []core.Field{core.FieldGradeLevel, core.FieldTopic},
	})
	assert.Contains(t, resp.Message, "defaults for grade level, topic")
}

func TestSynthesize_StatesAndActions(t *testing.T) {
	tests := []struct {
		name  string
		state core.State
		hint  Hint
		want  []string
	}{
		{"greeting", core.StateGreeting, Hint{Action: fsm.ActionGreet}, greetings},
		{"help", core.StateGreeting, Hint{Action: fsm.ActionHelp}, []string{helpText}},
		{"pause", core.StatePaused, Hint{Action: fsm.ActionPause}, pauses},
		{"revise", core.StateGatheringRequirements, Hint{Action: fsm.ActionRevise}, revisions},
		{"error", core.StateError, Hint{Action: fsm.ActionRecover}, []string{RecoveryMessage}},
		{"failed", core.StateGatheringRequirements, Hint{Failed: true}, []string{RecoveryMessage}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := testutil.NewSessionBuilder("s").State(tt.state).Build()
			resp := newSynth(5).Synthesize(nil, sess, tt.hint)
			assert.Contains(t, tt.want, resp.Message)
		})
	}
}

func TestSynthesize_ConfirmAndComplete(t *testing.T) {
	sess := testutil.NewSessionBuilder("s").Required().State(core.StateGatheringRequirements).Build()
	sess.AwaitingConfirmation = true
	resp := newSynth(2).Synthesize(nil, sess, Hint{Action: fsm.ActionConfirm})
	assert.Contains(t, resp.Message, "5th grade math lesson on fractions")
	assert.Equal(t, []string{"Yes, start designing", "Change something first"}, resp.Suggestions)

	sess.State = core.StateCompleted
	resp = newSynth(2).Synthesize(nil, sess, Hint{Action: fsm.ActionComplete})
	assert.Contains(t, resp.Message, "lesson on fractions")
}

func TestSynthesize_DirectSummary(t *testing.T) {
	sess := testutil.NewSessionBuilder("s").State(core.StateGreeting).Build()
	results := map[string]core.TaskResult{
		"analytics":  core.Succeeded(map[string]any{"insights": "a", "recommendations": "b"}),
		"curriculum": core.Succeeded(map[string]any{"alignment": "c"}),
	}
	resp := newSynth(4).Synthesize(results, sess, Hint{Action: fsm.ActionDirect})
	assert.Contains(t, resp.Message, "alignment, insights, recommendations")

	results["curriculum"] = core.TaskResult{Error: "x"}
	resp = newSynth(4).Synthesize(results, sess, Hint{Action: fsm.ActionDirect})
	assert.Contains(t, resp.Message, "1 of 2")
}

func TestSuggestions_Capped(t *testing.T) {
	sess := testutil.NewSessionBuilder("s").State(core.StateClarifying).Build()
	got := Suggestions(sess, Hint{})
	require.Len(t, got, MaxSuggestions)
	assert.Equal(t, "Specify the grade level", got[0])
}

func TestSynthesize_DeterministicForSeed(t *testing.T) {
	sess := testutil.NewSessionBuilder("s").Required().State(core.StateDesigning).Build()
	results := map[string]core.TaskResult{"curriculum": core.Succeeded(map[string]any{"lesson_plan": "x"})}
	a := newSynth(9).Synthesize(results, sess, Hint{Action: fsm.ActionDesign})
	b := newSynth(9).Synthesize(results, sess, Hint{Action: fsm.ActionDesign})
	assert.Equal(t, a, b)
}
