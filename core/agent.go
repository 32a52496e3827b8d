package core

import "context"

// Task is the unit of work handed to an Agent.
type Task struct {
	SessionID   string         `json:"session_id"`
	PlanID      string         `json:"plan_id,omitempty"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data"`
}

// TaskResult is the uniform contract returned by every agent invocation.
// Nothing beyond these three fields is assumed of external agents.
type TaskResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Succeeded builds a successful TaskResult.
func Succeeded(data map[string]any) TaskResult {
	return TaskResult{Success: true, Data: data}
}

// Failed builds a failed TaskResult from err.
func Failed(err error) TaskResult {
	if err == nil {
		return TaskResult{Success: false, Error: "unknown error"}
	}
	return TaskResult{Success: false, Error: err.Error()}
}

// Agent is an opaque skill executor. Each registered name maps to exactly
// one Agent.
//
// Implementations must:
//   - Respect context cancellation (the engine bounds every call by a timeout)
//   - Report failures through TaskResult.Success/Error rather than panicking
type Agent interface {
	Name() string
	Execute(ctx context.Context, task Task) TaskResult
}

// Fact is one extracted entity value. Replace signals that the value should
// overwrite an existing one instead of being ignored (first write wins).
type Fact struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence,omitempty"`
	Replace    bool    `json:"replace,omitempty"`
}

// Understanding is the output of the natural-language understanding step.
type Understanding struct {
	Intent               Intent          `json:"intent"`
	Entities             map[string]Fact `json:"entities,omitempty"`
	Confidence           float64         `json:"confidence"`
	ClarificationsNeeded []string        `json:"clarifications_needed,omitempty"`
	Suggestions          []string        `json:"suggestions,omitempty"`
}

// Understander turns raw user text into an Understanding. Implementations
// may return IntentUnknown; the orchestration core falls back to default
// routing in that case.
type Understander interface {
	Understand(ctx context.Context, text string, history []Turn, accumulated LessonContext) (Understanding, error)
}
