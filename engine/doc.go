// Package engine implements the turn pipeline of dialogmesh.
//
// The Engine is the coordination hub that turns one user message into one
// reply. Every turn runs the same pipeline under a per-session lock:
//
//	understand -> accumulate -> transition -> plan -> execute -> synthesize
//
// # Core Responsibilities
//
// Session Management:
//   - Sessions are created on first contact (ProcessTurn) or explicitly
//     (StartSession) and torn down with EndSession
//   - Turns of one session never interleave; different sessions run
//     concurrently up to Config.MaxConcurrentTurns
//
// Orchestration:
//   - The conversation state machine decides what the turn does
//   - Plans are built every turn and kept for auditing (LastPlan)
//   - Plans run only when the decided action produces content
//   - Successful agent outputs are kept per session so later phases can
//     build on earlier ones
//
// Observability:
//   - Every pipeline step publishes an envelope on the message bus
//   - Prometheus collectors record turns, transitions and agent calls
//   - Callbacks hook into turn, agent and state change lifecycle points
//
// # Error Handling
//
// Nothing escapes ProcessTurn. Understanding failures fall back to the rule
// based understander, agent failures become failed results that the
// synthesizer softens, illegal transitions route the session into ERROR,
// and panics are recovered into a failed TurnResponse. Operations other than
// ProcessTurn return core.ErrSessionNotFound for unknown sessions.
package engine
