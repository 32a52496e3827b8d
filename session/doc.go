// Package session houses concrete implementations of core.SessionStore.
//
// InMemoryStore keeps live sessions in a bounded, expiring LRU. An optional
// Persister (see session/sqlite) receives snapshots on every save so that
// sessions pushed out by capacity can be rehydrated on the next access.
// KeyedMutex serializes whole turns per session id without a global lock.
package session
