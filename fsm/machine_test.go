package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/accumulator"
	"github.com/hupe1980/dialogmesh/core"
)

func newMachine(optFns ...func(o *Options)) (*Machine, *accumulator.Accumulator) {
	acc := accumulator.New()
	return New(acc, optFns...), acc
}

// step merges facts and advances, mimicking one engine turn.
func step(m *Machine, acc *accumulator.Accumulator, sess *core.SessionContext, intent core.Intent, facts map[string]string) Outcome {
	in := map[string]core.Fact{}
	for k, v := range facts {
		in[k] = core.Fact{Value: v, Confidence: 0.9}
	}
	d := acc.Merge(sess, in)
	return m.Advance(sess, Input{Intent: intent, Delta: d, Empty: len(facts) == 0, ContentType: "lesson"})
}

func TestTransitionClosure(t *testing.T) {
	m, _ := newMachine()
	for _, from := range core.States() {
		for _, to := range core.States() {
			if from == to {
				continue
			}
			sess := core.NewSessionContext("s")
			sess.State = from
			err := m.Transition(sess, to, "test")
			if CanTransition(from, to) {
				require.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, sess.State)
				continue
			}
			require.ErrorIs(t, err, core.ErrIllegalTransition, "%s -> %s", from, to)
			assert.Equal(t, core.StateError, sess.State, "%s -> %s", from, to)
		}
	}
}

func TestTransitionTableShape(t *testing.T) {
	for _, s := range core.States() {
		_, ok := transitions[s]
		assert.True(t, ok, "state %s has no entry", s)
	}
	for _, resting := range []core.State{core.StateCompleted, core.StatePaused, core.StateError} {
		for _, to := range Targets(resting) {
			assert.Contains(t, []core.State{core.StateGreeting, core.StateGatheringRequirements, core.StateReviewing}, to)
		}
	}
}

func TestOnTransitionHook(t *testing.T) {
	var seen []string
	m, _ := newMachine(func(o *Options) {
		o.OnTransition = func(_ *core.SessionContext, from, to core.State, _ string) {
			seen = append(seen, string(from)+">"+string(to))
		}
	})
	sess := core.NewSessionContext("s")
	require.NoError(t, m.Transition(sess, core.StateGreeting, "start"))
	require.NoError(t, m.Transition(sess, core.StateGreeting, "stay"))
	assert.Equal(t, []string{"INITIALIZING>GREETING"}, seen)
	assert.Equal(t, core.StateInitializing, sess.PreviousState)
}

func TestScenario_GatherClarifyDesign(t *testing.T) {
	m, acc := newMachine()
	sess := core.NewSessionContext("s")

	out := step(m, acc, sess, core.IntentCreateLesson, map[string]string{"content_type": "lesson"})
	assert.Equal(t, core.StateGatheringRequirements, out.To)
	assert.Equal(t, ActionAsk, out.Action)
	assert.Equal(t, core.FieldGradeLevel, out.AskField)
	assert.Equal(t, []core.State{core.StateGreeting, core.StateGatheringRequirements}, out.Path)
	assert.Less(t, sess.Completeness, 0.8)

	out = step(m, acc, sess, core.IntentUnknown, map[string]string{"grade_level": "5th grade", "subject": "math"})
	assert.Equal(t, core.StateClarifying, out.To)
	assert.Equal(t, core.FieldTopic, out.AskField)

	out = step(m, acc, sess, core.IntentUnknown, map[string]string{"topic": "fractions"})
	assert.Equal(t, core.StateDesigning, out.To)
	assert.Equal(t, ActionDesign, out.Action)
	assert.True(t, out.Action.Executes())
}

func TestClarificationCap(t *testing.T) {
	m, acc := newMachine()
	sess := core.NewSessionContext("s")
	step(m, acc, sess, core.IntentCreateLesson, map[string]string{"content_type": "lesson"})
	out := step(m, acc, sess, core.IntentUnknown, nil)
	require.Equal(t, core.StateClarifying, out.To)
	require.Zero(t, sess.ClarificationRounds)

	for i := 1; i <= DefaultMaxClarificationRounds; i++ {
		out = step(m, acc, sess, core.IntentUnknown, map[string]string{"mood": "happy"})
		require.Equal(t, core.StateClarifying, out.To, "round %d", i)
		require.Equal(t, i, sess.ClarificationRounds)
	}

	out = step(m, acc, sess, core.IntentUnknown, nil)
	assert.Equal(t, core.StateDesigning, out.To)
	assert.True(t, out.Forced)
	assert.ElementsMatch(t, []core.Field{core.FieldGradeLevel, core.FieldSubject, core.FieldTopic}, out.Defaulted)
	assert.Equal(t, "lesson", sess.Context.ContentType)
	assert.Empty(t, accumulator.Missing(&sess.Context))
}

func TestClarification_ProgressResetsRounds(t *testing.T) {
	m, acc := newMachine()
	sess := core.NewSessionContext("s")
	step(m, acc, sess, core.IntentCreateLesson, map[string]string{"content_type": "lesson"})
	step(m, acc, sess, core.IntentUnknown, nil)
	step(m, acc, sess, core.IntentUnknown, nil)
	require.Equal(t, 1, sess.ClarificationRounds)

	out := step(m, acc, sess, core.IntentUnknown, map[string]string{"grade_level": "3rd grade"})
	assert.Zero(t, sess.ClarificationRounds)
	assert.Equal(t, core.FieldSubject, out.AskField)
}

func TestEmptyTurnReask(t *testing.T) {
	m, acc := newMachine(func(o *Options) { o.EmptyTurnPolicy = EmptyTurnReask })
	sess := core.NewSessionContext("s")
	step(m, acc, sess, core.IntentCreateLesson, map[string]string{"content_type": "lesson"})
	step(m, acc, sess, core.IntentUnknown, nil)
	for i := 0; i < 10; i++ {
		out := step(m, acc, sess, core.IntentUnknown, nil)
		require.Equal(t, core.StateClarifying, out.To)
	}
	assert.Zero(t, sess.ClarificationRounds)
}

func TestConfirmationStep(t *testing.T) {
	m, acc := newMachine(func(o *Options) { o.RequireConfirmation = true })
	sess := core.NewSessionContext("s")
	out := step(m, acc, sess, core.IntentCreateLesson, map[string]string{
		"content_type": "lesson", "grade_level": "5th grade", "subject": "math", "topic": "fractions",
	})
	assert.Equal(t, core.StateGatheringRequirements, out.To)
	assert.Equal(t, ActionConfirm, out.Action)
	assert.True(t, sess.AwaitingConfirmation)

	out = step(m, acc, sess, core.IntentReject, nil)
	assert.Equal(t, ActionRevise, out.Action)
	assert.False(t, sess.AwaitingConfirmation)

	out = step(m, acc, sess, core.IntentUnknown, nil)
	assert.Equal(t, ActionConfirm, out.Action)

	out = step(m, acc, sess, core.IntentConfirm, nil)
	assert.Equal(t, core.StateDesigning, out.To)
	assert.Equal(t, ActionDesign, out.Action)
}

func TestLifecycleThroughCompletion(t *testing.T) {
	m, acc := newMachine()
	sess := core.NewSessionContext("s")
	out := step(m, acc, sess, core.IntentCreateQuiz, map[string]string{
		"content_type": "quiz", "grade_level": "5th grade", "subject": "math", "topic": "fractions",
	})
	require.Equal(t, core.StateDesigning, out.To)
	m.Complete(sess, ActionDesign, true)

	out = step(m, acc, sess, core.IntentConfirm, nil)
	require.Equal(t, core.StateImplementing, out.To)
	require.Equal(t, ActionImplement, out.Action)

	out = m.Complete(sess, ActionImplement, false)
	assert.Equal(t, core.StateImplementing, out.To)
	out = step(m, acc, sess, core.IntentUnknown, nil)
	assert.Equal(t, ActionImplement, out.Action)
	out = m.Complete(sess, ActionImplement, true)
	assert.Equal(t, core.StateReviewing, out.To)

	out = step(m, acc, sess, core.IntentConfirm, nil)
	assert.Equal(t, core.StateCompleted, out.To)
	assert.True(t, sess.State.IsResting())

	out = step(m, acc, sess, core.IntentCreateLesson, nil)
	assert.Equal(t, []core.State{core.StateGreeting, core.StateGatheringRequirements, core.StateDesigning}, out.Path)
}

func TestDesignFailureRetries(t *testing.T) {
	m, acc := newMachine()
	sess := core.NewSessionContext("s")
	step(m, acc, sess, core.IntentCreateLesson, map[string]string{
		"content_type": "lesson", "grade_level": "5th grade", "subject": "math", "topic": "fractions",
	})
	m.Complete(sess, ActionDesign, false)

	out := step(m, acc, sess, core.IntentConfirm, nil)
	assert.Equal(t, core.StateDesigning, out.To)
	assert.Equal(t, ActionDesign, out.Action)

	m.Complete(sess, ActionDesign, true)
	out = step(m, acc, sess, core.IntentConfirm, nil)
	assert.Equal(t, core.StateImplementing, out.To)
}

func TestPauseAndResume(t *testing.T) {
	m, acc := newMachine()
	sess := core.NewSessionContext("s")
	step(m, acc, sess, core.IntentCreateLesson, map[string]string{"content_type": "lesson"})

	out := step(m, acc, sess, core.IntentPause, nil)
	assert.Equal(t, core.StatePaused, out.To)
	assert.Equal(t, ActionPause, out.Action)

	out = step(m, acc, sess, core.IntentCreateLesson, nil)
	assert.Equal(t, core.StateGatheringRequirements, out.To)
	assert.Equal(t, ActionAsk, out.Action)
}

func TestIllegalPauseRoutesToErrorThenRecovers(t *testing.T) {
	m, acc := newMachine()
	sess := core.NewSessionContext("s")
	step(m, acc, sess, core.IntentCreateLesson, map[string]string{
		"content_type": "lesson", "grade_level": "5th grade", "subject": "math", "topic": "fractions",
	})
	require.Equal(t, core.StateDesigning, sess.State)

	out := step(m, acc, sess, core.IntentPause, nil)
	require.ErrorIs(t, out.Err, core.ErrIllegalTransition)
	assert.Equal(t, core.StateError, out.To)
	assert.Equal(t, ActionRecover, out.Action)

	out = step(m, acc, sess, core.IntentUnknown, nil)
	assert.Equal(t, core.StateDesigning, out.To, "partial context re-enters through gathering")
	assert.Equal(t, core.StateGatheringRequirements, out.Path[0])
}

func TestErrorWithoutContextReentersGreeting(t *testing.T) {
	m, acc := newMachine()
	sess := core.NewSessionContext("s")
	sess.State = core.StateError
	out := step(m, acc, sess, core.IntentGreeting, nil)
	assert.Equal(t, core.StateGreeting, out.To)
	assert.Equal(t, ActionGreet, out.Action)
}

func TestDirectIntentKeepsState(t *testing.T) {
	m, acc := newMachine()
	sess := core.NewSessionContext("s")
	out := step(m, acc, sess, core.IntentReviewCode, nil)
	assert.Equal(t, core.StateGreeting, out.To)
	assert.Equal(t, ActionDirect, out.Action)
}
