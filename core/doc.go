// Package core provides the foundational domain types and contracts used by
// dialogmesh. It defines:
//
//   - SessionContext (per-conversation state: lifecycle state, bounded turn
//     history, accumulated LessonContext, completeness, tasks, questions)
//   - LessonContext (a fixed set of required/optional fields plus a small
//     open extension map)
//   - Agent / TaskResult (the uniform contract every skill agent satisfies)
//   - Understander / Understanding (the natural-language understanding boundary)
//   - SessionStore (the single owner of session state)
//
// Concrete behavior (accumulation, state machine, planning, execution,
// synthesis) lives in dedicated packages that depend on core, never the
// other way round.
package core
