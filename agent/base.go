package agent

import "fmt"

// BaseAgent bundles identity helpers. Embed it in concrete agent
// implementations and supply an Execute method to satisfy core.Agent.
type BaseAgent struct {
	name        string
	description string
}

// NewBaseAgent constructs a BaseAgent with a generated description
// (customizable via SetDescription).
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{name: name, description: fmt.Sprintf("Agent %s", name)}
}

// Name returns the registered name of the agent.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a human readable description of the agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }
