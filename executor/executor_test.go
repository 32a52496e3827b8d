package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/dialogmesh/agent"
	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/testutil"
	"github.com/hupe1980/dialogmesh/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlan(order planner.ExecutionOrder, primary string, supporting ...string) planner.Plan {
	deps := map[string][]string{primary: {planner.DepContext}}
	for _, s := range supporting {
		deps[s] = []string{planner.DepContext}
	}
	return planner.Plan{
		ID:               "plan-1",
		SessionID:        "sess-1",
		Intent:           core.IntentCreateLesson,
		Phase:            planner.PhaseDesign,
		PrimaryAgent:     primary,
		SupportingAgents: supporting,
		ExecutionOrder:   order,
		DataDependencies: deps,
		FallbackAgents:   []string{"conversation"},
	}
}

func testSession() *core.SessionContext {
	return testutil.NewSessionBuilder("sess-1").Required().State(core.StateDesigning).Build()
}

type recordingObserver struct {
	mu    sync.Mutex
	calls map[string]bool
}

func (o *recordingObserver) ObserveAgent(agent string, success bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = map[string]bool{}
	}
	o.calls[agent] = success
}

func TestExecute_ParallelPartialFailure(t *testing.T) {
	primary := testutil.NewStubAgent("curriculum")
	primary.Result = core.Succeeded(map[string]any{"lesson_plan": "draft"})
	ok := testutil.NewStubAgent("quiz")
	bad1 := testutil.NewFailingAgent("assessment", "boom")
	bad2 := testutil.NewFailingAgent("terrain", "down")

	obs := &recordingObserver{}
	e := New(agent.NewRegistry(primary, ok, bad1, bad2), func(o *Options) { o.Observer = obs })
	report := e.Execute(context.Background(), testPlan(planner.OrderParallel, "curriculum", "assessment", "quiz", "terrain"), testSession(), nil)

	assert.Len(t, report.Results, 4)
	assert.Equal(t, 2, report.Successes())
	assert.InDelta(t, 0.5, report.SuccessRatio(), 1e-9)
	assert.True(t, report.Succeeded())
	assert.False(t, report.PrimaryFailed)
	assert.Equal(t, "curriculum", report.Order[0])
	assert.Equal(t, "boom", report.Results["assessment"].Error)

	for _, name := range []string{"assessment", "quiz", "terrain"} {
		assert.Equal(t, map[string]any{"lesson_plan": "draft"}, lastTask(t, e, name).Data[KeyPrimaryOutput], name)
	}
	assert.Equal(t, map[string]bool{"curriculum": true, "quiz": true, "assessment": false, "terrain": false}, obs.calls)
}

func TestExecute_ConcurrentAgentsGetOwnPrimaryOutput(t *testing.T) {
	primary := testutil.NewStubAgent("curriculum")
	primary.Result = core.Succeeded(map[string]any{"lesson_plan": "draft"})
	writer := func(name string) *agent.FuncAgent {
		return agent.NewFuncAgent(name, func(_ context.Context, task core.Task) core.TaskResult {
			out, ok := task.Data[KeyPrimaryOutput].(map[string]any)
			if !ok {
				return core.Succeeded(map[string]any{"seen": name})
			}
			out["touched_by"] = name
			return core.Succeeded(map[string]any{"seen": out["touched_by"]})
		})
	}

	for _, order := range []planner.ExecutionOrder{planner.OrderParallel, planner.OrderAdaptive} {
		t.Run(string(order), func(t *testing.T) {
			e := New(agent.NewRegistry(primary, writer("quiz"), writer("assessment"), writer("terrain")))
			plan := testPlan(order, "curriculum", "quiz", "assessment", "terrain")
			if order == planner.OrderAdaptive {
				plan.DataDependencies["quiz"] = []string{planner.DepPrimaryOutput}
				plan.DataDependencies["assessment"] = []string{planner.DepPrimaryOutput}
			}
			report := e.Execute(context.Background(), plan, testSession(), nil)

			require.Equal(t, 4, report.Successes())
			assert.Equal(t, map[string]any{"lesson_plan": "draft"}, report.Results["curriculum"].Data)
			for _, name := range []string{"quiz", "assessment", "terrain"} {
				assert.Equal(t, name, report.Results[name].Data["seen"])
			}
		})
	}
}

func lastTask(t *testing.T, e *Executor, name string) core.Task {
	t.Helper()
	a, ok := e.registry.Lookup(name)
	require.True(t, ok)
	tasks := a.(*testutil.StubAgent).Tasks()
	require.NotEmpty(t, tasks)
	return tasks[len(tasks)-1]
}

func TestExecute_SequentialChainSkipsFailedLink(t *testing.T) {
	primary := testutil.NewStubAgent("terrain")
	primary.Result = core.Succeeded(map[string]any{"terrain_layout": "grid"})
	failing := testutil.NewFailingAgent("script", "syntax error")
	review := testutil.NewStubAgent("code_review")

	e := New(agent.NewRegistry(primary, failing, review))
	report := e.Execute(context.Background(), testPlan(planner.OrderSequential, "terrain", "script", "code_review"), testSession(), nil)

	assert.Equal(t, []string{"terrain", "script", "code_review"}, report.Order)
	assert.Equal(t, 2, report.Successes())

	scriptTask := lastTask(t, e, "script")
	assert.Equal(t, "terrain", scriptTask.Data[KeyPreviousAgent])

	reviewTask := lastTask(t, e, "code_review")
	assert.Equal(t, "terrain", reviewTask.Data[KeyPreviousAgent])
	assert.Equal(t, map[string]any{"terrain_layout": "grid"}, reviewTask.Data[KeyPreviousOutput])
}

func TestExecute_SequentialPassesLatestOutput(t *testing.T) {
	primary := testutil.NewStubAgent("script")
	review := testutil.NewStubAgent("code_review")
	review.Result = core.Succeeded(map[string]any{"review": "ok"})
	quiz := testutil.NewStubAgent("quiz")

	e := New(agent.NewRegistry(primary, review, quiz))
	e.Execute(context.Background(), testPlan(planner.OrderSequential, "script", "code_review", "quiz"), testSession(), nil)

	quizTask := lastTask(t, e, "quiz")
	assert.Equal(t, "code_review", quizTask.Data[KeyPreviousAgent])
	assert.Equal(t, map[string]any{"review": "ok"}, quizTask.Data[KeyPreviousOutput])
}

func TestExecute_Adaptive(t *testing.T) {
	primary := testutil.NewStubAgent("assessment")
	primary.Result = core.Succeeded(map[string]any{"assessment_outline": "o"})
	curriculum := testutil.NewStubAgent("curriculum")
	quiz := testutil.NewStubAgent("quiz")

	plan := testPlan(planner.OrderAdaptive, "assessment", "curriculum", "quiz")
	plan.DataDependencies["quiz"] = []string{planner.DepContext, planner.DepPrimaryOutput}

	e := New(agent.NewRegistry(primary, curriculum, quiz))
	report := e.Execute(context.Background(), plan, testSession(), nil)

	assert.Equal(t, 3, report.Successes())
	assert.Equal(t, map[string]any{"assessment_outline": "o"}, lastTask(t, e, "quiz").Data[KeyPrimaryOutput])
	assert.NotContains(t, lastTask(t, e, "curriculum").Data, KeyPrimaryOutput)
}

func TestExecute_PrimaryFailureUsesFallback(t *testing.T) {
	primary := testutil.NewFailingAgent("curriculum", "unavailable")
	supporting := testutil.NewStubAgent("quiz")
	fallback := testutil.NewStubAgent("conversation")

	e := New(agent.NewRegistry(primary, supporting, fallback))
	report := e.Execute(context.Background(), testPlan(planner.OrderParallel, "curriculum", "quiz"), testSession(), nil)

	assert.True(t, report.PrimaryFailed)
	assert.Equal(t, "conversation", report.FallbackUsed)
	assert.True(t, report.Succeeded())
	assert.Equal(t, 0, supporting.Calls())
	assert.Equal(t, 1, fallback.Calls())
	assert.Equal(t, []string{"curriculum", "conversation"}, report.Order)
}

func TestExecute_FallbacksTriedOnceInOrder(t *testing.T) {
	primary := testutil.NewFailingAgent("curriculum", "x")
	first := testutil.NewFailingAgent("assessment", "y")
	second := testutil.NewStubAgent("conversation")
	third := testutil.NewStubAgent("analytics")

	plan := testPlan(planner.OrderParallel, "curriculum")
	plan.FallbackAgents = []string{"curriculum", "assessment", "conversation", "analytics"}

	e := New(agent.NewRegistry(primary, first, second, third))
	report := e.Execute(context.Background(), plan, testSession(), nil)

	assert.Equal(t, "conversation", report.FallbackUsed)
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 1, first.Calls())
	assert.Equal(t, 0, third.Calls())
}

func TestExecute_AllFallbacksFail(t *testing.T) {
	e := New(agent.NewRegistry(
		testutil.NewFailingAgent("curriculum", "x"),
		testutil.NewFailingAgent("conversation", "y"),
	))
	report := e.Execute(context.Background(), testPlan(planner.OrderParallel, "curriculum"), testSession(), nil)

	assert.True(t, report.PrimaryFailed)
	assert.Empty(t, report.FallbackUsed)
	assert.False(t, report.Succeeded())
	assert.Equal(t, 0.0, report.SuccessRatio())
}

func TestExecute_Timeout(t *testing.T) {
	slow := testutil.NewStubAgent("quiz")
	slow.Delay = time.Second

	e := New(agent.NewRegistry(testutil.NewStubAgent("curriculum"), slow), func(o *Options) {
		o.AgentTimeout = 20 * time.Millisecond
	})
	start := time.Now()
	report := e.Execute(context.Background(), testPlan(planner.OrderParallel, "curriculum", "quiz"), testSession(), nil)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, report.Results["quiz"].Success)
	assert.Contains(t, report.Results["quiz"].Error, core.ErrAgentTimeout.Error())
}

func TestExecute_UnregisteredAgent(t *testing.T) {
	e := New(agent.NewRegistry(testutil.NewStubAgent("curriculum")))
	report := e.Execute(context.Background(), testPlan(planner.OrderParallel, "curriculum", "ghost"), testSession(), nil)

	assert.False(t, report.Results["ghost"].Success)
	assert.Contains(t, report.Results["ghost"].Error, core.ErrAgentNotFound.Error())
	assert.True(t, report.Results["curriculum"].Success)
}

func TestExecute_PanicIsContained(t *testing.T) {
	panicky := testutil.NewStubAgent("quiz")
	panicky.Fn = func(context.Context, core.Task) core.TaskResult { panic("kaboom") }

	e := New(agent.NewRegistry(testutil.NewStubAgent("curriculum"), panicky))
	report := e.Execute(context.Background(), testPlan(planner.OrderParallel, "curriculum", "quiz"), testSession(), nil)

	assert.False(t, report.Results["quiz"].Success)
	assert.Contains(t, report.Results["quiz"].Error, "kaboom")
}

func TestExecute_FailureWithoutMessage(t *testing.T) {
	silent := testutil.NewStubAgent("quiz")
	silent.Result = core.TaskResult{}

	e := New(agent.NewRegistry(testutil.NewStubAgent("curriculum"), silent))
	report := e.Execute(context.Background(), testPlan(planner.OrderParallel, "curriculum", "quiz"), testSession(), nil)
	assert.Equal(t, "agent reported failure", report.Results["quiz"].Error)
}

func TestExecute_CallLimit(t *testing.T) {
	e := New(agent.NewRegistry(
		testutil.NewStubAgent("curriculum"),
		testutil.NewStubAgent("assessment"),
		testutil.NewStubAgent("quiz"),
	), func(o *Options) { o.MaxAgentCalls = 2 })
	report := e.Execute(context.Background(), testPlan(planner.OrderSequential, "curriculum", "assessment", "quiz"), testSession(), nil)

	assert.True(t, report.Results["assessment"].Success)
	assert.False(t, report.Results["quiz"].Success)
	assert.Contains(t, report.Results["quiz"].Error, core.ErrCallLimitExceeded.Error())
}

func TestExecute_Hooks(t *testing.T) {
	var mu sync.Mutex
	var started, done []string
	e := New(agent.NewRegistry(testutil.NewStubAgent("curriculum"), testutil.NewStubAgent("quiz")), func(o *Options) {
		o.Hooks = Hooks{
			OnStart: func(_ context.Context, _ planner.Plan, a string) {
				mu.Lock()
				defer mu.Unlock()
				started = append(started, a)
			},
			OnDone: func(_ context.Context, _ planner.Plan, a string, _ core.TaskResult, _ time.Duration) {
				mu.Lock()
				defer mu.Unlock()
				done = append(done, a)
			},
		}
	})
	e.Execute(context.Background(), testPlan(planner.OrderSequential, "curriculum", "quiz"), testSession(), nil)
	assert.Equal(t, []string{"curriculum", "quiz"}, started)
	assert.Equal(t, []string{"curriculum", "quiz"}, done)
}

func TestBaseData(t *testing.T) {
	plan := testPlan(planner.OrderSequential, "script")
	plan.Phase = planner.PhaseImplement
	plan.DataDependencies["script"] = append(plan.DataDependencies["script"], planner.ArtifactDep("terrain"))

	upstream := map[string]map[string]any{
		"terrain":   {"terrain_layout": "grid"},
		"analytics": {"insights": "ignored"},
	}
	data := BaseData(plan, testSession(), upstream)

	assert.Equal(t, "sess-1", data[KeySessionID])
	assert.Equal(t, "implement", data[KeyPhase])
	assert.Equal(t, string(core.StateDesigning), data[KeyState])
	assert.Equal(t, "fractions", data[KeyContext].(map[string]any)["topic"])
	assert.Equal(t, map[string]any{"terrain_layout": "grid"}, data["artifact:terrain"])
	assert.NotContains(t, data, "artifact:analytics")
}

func TestExecute_TaskCarriesPlanIdentity(t *testing.T) {
	primary := testutil.NewStubAgent("curriculum")
	e := New(agent.NewRegistry(primary))
	e.Execute(context.Background(), testPlan(planner.OrderParallel, "curriculum"), testSession(), nil)

	task := primary.Tasks()[0]
	assert.Equal(t, "sess-1", task.SessionID)
	assert.Equal(t, "plan-1", task.PlanID)
	assert.Equal(t, "design create lesson (curriculum)", task.Description)
}
