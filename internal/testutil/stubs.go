package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/dialogmesh/core"
)

// StubAgent is a scripted core.Agent that records its calls.
type StubAgent struct {
	name   string
	Result core.TaskResult
	// Delay is slept before answering; the call honours ctx cancellation.
	Delay time.Duration
	// Fn overrides Result when set.
	Fn func(ctx context.Context, task core.Task) core.TaskResult

	mu    sync.Mutex
	tasks []core.Task
}

// NewStubAgent returns an agent that succeeds with {"agent": name}.
func NewStubAgent(name string) *StubAgent {
	return &StubAgent{name: name, Result: core.Succeeded(map[string]any{"agent": name})}
}

// NewFailingAgent returns an agent that always fails with msg.
func NewFailingAgent(name, msg string) *StubAgent {
	return &StubAgent{name: name, Result: core.TaskResult{Success: false, Error: msg}}
}

// Name implements core.Agent.
func (a *StubAgent) Name() string { return a.name }

// Execute implements core.Agent.
func (a *StubAgent) Execute(ctx context.Context, task core.Task) core.TaskResult {
	a.mu.Lock()
	a.tasks = append(a.tasks, task)
	a.mu.Unlock()
	if a.Delay > 0 {
		select {
		case <-time.After(a.Delay):
		case <-ctx.Done():
			return core.Failed(ctx.Err())
		}
	}
	if a.Fn != nil {
		return a.Fn(ctx, task)
	}
	return a.Result
}

// Calls returns how many times the agent ran.
func (a *StubAgent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tasks)
}

// Tasks returns the received tasks.
func (a *StubAgent) Tasks() []core.Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]core.Task(nil), a.tasks...)
}

// StubUnderstander returns scripted understandings keyed by exact text and
// falls back to IntentUnknown without entities.
type StubUnderstander struct {
	Replies map[string]core.Understanding
	Err     error
}

// Understand implements core.Understander.
func (s *StubUnderstander) Understand(_ context.Context, text string, _ []core.Turn, _ core.LessonContext) (core.Understanding, error) {
	if s.Err != nil {
		return core.Understanding{}, s.Err
	}
	if u, ok := s.Replies[text]; ok {
		return u, nil
	}
	return core.Understanding{Intent: core.IntentUnknown}, nil
}
