package artifact

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/dialogmesh/core"
)

// InMemoryStore keeps the latest successful output per (session, agent).
// Outputs are stored JSON encoded so every read hands out an independent
// deep copy.
//
// Layout: sessionID -> agent -> encoded data
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]map[string][]byte
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string]map[string][]byte)}
}

// Save stores (or overwrites) the output of agent for the session.
func (a *InMemoryStore) Save(sessionID, agent string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode output of %s: %w", agent, err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.artifacts[sessionID]; !exists {
		a.artifacts[sessionID] = make(map[string][]byte)
	}
	a.artifacts[sessionID][agent] = raw
	return nil
}

// Record saves the data of every successful result and returns how many
// outputs were stored. Failed results never replace an earlier output.
func (a *InMemoryStore) Record(sessionID string, results map[string]core.TaskResult) (int, error) {
	n := 0
	for agent, res := range results {
		if !res.Success {
			continue
		}
		if err := a.Save(sessionID, agent, res.Data); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Get returns a copy of the stored output or ErrNotFound.
func (a *InMemoryStore) Get(sessionID, agent string) (map[string]any, error) {
	a.mu.RLock()
	raw, ok := a.artifacts[sessionID][agent]
	a.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(raw)
}

// Upstream returns copies of all outputs of the session keyed by agent.
func (a *InMemoryStore) Upstream(sessionID string) (map[string]map[string]any, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]map[string]any, len(a.artifacts[sessionID]))
	for agent, raw := range a.artifacts[sessionID] {
		data, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out[agent] = data
	}
	return out, nil
}

// List returns the agents with stored outputs for the session, sorted.
func (a *InMemoryStore) List(sessionID string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]string, 0, len(a.artifacts[sessionID]))
	for id := range a.artifacts[sessionID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Delete removes the output if present or returns ErrNotFound.
func (a *InMemoryStore) Delete(sessionID, agent string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.artifacts[sessionID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m[agent]; !ok {
		return ErrNotFound
	}
	delete(m, agent)
	return nil
}

// Clear drops every output of the session.
func (a *InMemoryStore) Clear(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.artifacts, sessionID)
}

func decode(raw []byte) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return data, nil
}
