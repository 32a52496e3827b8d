package agent

import (
	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(task core.Task) (string, error)
}

// ProviderFunc is a functional adapter to allow ordinary functions to be used as Providers.
type ProviderFunc func(task core.Task) (string, error)

// Instruction implements Provider.
func (f ProviderFunc) Instruction(task core.Task) (string, error) { return f(task) }

// Instruction represents either a static template or a dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a text/template string.
// The template sees the task data plus "description" and "session_id".
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(task core.Task) (string, error)) Instruction {
	return Instruction{provider: ProviderFunc(f)}
}

// IsStatic returns true if the instruction is backed by a template.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text for task.
func (i Instruction) Resolve(task core.Task) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(task)
	}
	data := make(map[string]any, len(task.Data)+2)
	for k, v := range task.Data {
		data[k] = v
	}
	data["description"] = task.Description
	data["session_id"] = task.SessionID
	return util.RenderTemplate(i.text, data)
}
