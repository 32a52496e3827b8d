// Package agent contains agent implementations and the registry the
// executor resolves agent names against. The package focuses on three
// concerns:
//
//  1. Identity plumbing shared by concrete agents (BaseAgent)
//  2. Name resolution with exactly one agent per name (Registry)
//  3. Ready-made agents: function adapters (FuncAgent), offline skill
//     agents producing structured drafts (NewSkillAgents) and a
//     model-backed agent driven by templated instructions (ModelAgent)
//
// Every agent satisfies core.Agent: it receives a core.Task and answers with
// a core.TaskResult. Agents report failures through the result instead of
// panicking and honour context cancellation.
package agent
