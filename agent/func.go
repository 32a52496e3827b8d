package agent

import (
	"context"

	"github.com/hupe1980/dialogmesh/core"
)

// FuncAgent adapts a plain function to core.Agent.
type FuncAgent struct {
	BaseAgent
	fn func(ctx context.Context, task core.Task) core.TaskResult
}

var _ core.Agent = (*FuncAgent)(nil)

// NewFuncAgent wraps fn under name.
func NewFuncAgent(name string, fn func(ctx context.Context, task core.Task) core.TaskResult) *FuncAgent {
	return &FuncAgent{BaseAgent: NewBaseAgent(name), fn: fn}
}

// Execute implements core.Agent.
func (f *FuncAgent) Execute(ctx context.Context, task core.Task) core.TaskResult {
	if err := ctx.Err(); err != nil {
		return core.Failed(err)
	}
	return f.fn(ctx, task)
}
