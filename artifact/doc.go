// Package artifact keeps the outputs agents produced in earlier turns.
//
// The engine records the data of every successful agent result under
// (session, agent). Later plans that declare an artifact dependency, such as
// an implementation run that builds on the approved design, receive those
// outputs as part of their base data.
package artifact
