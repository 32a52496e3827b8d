package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/model"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Instruction Instruction
	// OutputKey is the result data key the completion is stored under.
	OutputKey string
	Stream    bool
}

// ModelAgent answers tasks by prompting a language model. The resolved
// instruction becomes the system prompt; the task description and data are
// sent as the user message.
type ModelAgent struct {
	BaseAgent
	llm         model.Model
	instruction Instruction
	outputKey   string
	stream      bool
}

var _ core.Agent = (*ModelAgent)(nil)

// NewModelAgent creates a model-backed agent.
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction: NewInstructionFromText(fmt.Sprintf(
			"You are the %s specialist of an educational content team. "+
				"Work on: {{.description}}. Answer concisely.", name)),
		OutputKey: "content",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ModelAgent{
		BaseAgent:   NewBaseAgent(name),
		llm:         llm,
		instruction: opts.Instruction,
		outputKey:   opts.OutputKey,
		stream:      opts.Stream,
	}
}

// Execute implements core.Agent.
func (a *ModelAgent) Execute(ctx context.Context, task core.Task) core.TaskResult {
	system, err := a.instruction.Resolve(task)
	if err != nil {
		return core.Failed(fmt.Errorf("resolve instruction: %w", err))
	}
	payload, err := json.Marshal(task.Data)
	if err != nil {
		return core.Failed(fmt.Errorf("encode task data: %w", err))
	}
	text, err := model.Complete(ctx, a.llm, model.Request{
		Instructions: system,
		Messages: []model.Message{{
			Role: "user",
			Text: fmt.Sprintf("%s\n\nInput:\n%s", task.Description, payload),
		}},
		Stream: a.stream,
	})
	if err != nil {
		return core.Failed(err)
	}
	return core.Succeeded(map[string]any{
		"agent":     a.Name(),
		"model":     a.llm.Info().Name,
		a.outputKey: text,
	})
}
