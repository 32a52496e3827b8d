package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/logging"
)

const (
	// DefaultMaxSessions bounds the number of sessions kept in memory.
	DefaultMaxSessions = 10000
	// DefaultTTL is the inactivity window after which a session expires.
	DefaultTTL = 30 * time.Minute
)

// Persister stores durable session snapshots.
type Persister interface {
	// Load returns the snapshot or core.ErrSessionNotFound.
	Load(id string) (*core.SessionContext, error)
	Store(sess *core.SessionContext) error
	Remove(id string) error
}

// Options configures an InMemoryStore.
type Options struct {
	MaxSessions int
	TTL         time.Duration
	Persister   Persister
	Logger      logging.Logger
	// OnExpire is called with the id of every session dropped for inactivity.
	OnExpire func(id string)
}

// InMemoryStore is a SessionStore backed by an expirable LRU. It is safe for
// concurrent access. Each returned session is cloned to prevent external
// mutation of internal state.
type InMemoryStore struct {
	opts  Options
	mu    sync.Mutex
	cache *expirable.LRU[string, *core.SessionContext]
}

var _ core.SessionStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{
		MaxSessions: DefaultMaxSessions,
		TTL:         DefaultTTL,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	s := &InMemoryStore{opts: opts}
	s.cache = expirable.NewLRU[string, *core.SessionContext](opts.MaxSessions, s.onEvict, opts.TTL)
	return s
}

// onEvict runs under the LRU lock and must not call back into the cache.
func (s *InMemoryStore) onEvict(id string, sess *core.SessionContext) {
	if s.opts.TTL <= 0 || time.Since(sess.UpdatedAt) < s.opts.TTL {
		return
	}
	s.opts.Logger.Debug("session expired", "session_id", id)
	if s.opts.Persister != nil {
		if err := s.opts.Persister.Remove(id); err != nil {
			s.opts.Logger.Warn("failed to remove expired session snapshot", "session_id", id, "error", err)
		}
	}
	if s.opts.OnExpire != nil {
		s.opts.OnExpire(id)
	}
}

// Create stores a fresh session, overwriting any existing one with that id.
func (s *InMemoryStore) Create(id string) (*core.SessionContext, error) {
	if id == "" {
		return nil, errors.New("session id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := core.NewSessionContext(id)
	if err := s.putLocked(sess); err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// Get returns a clone of the session or core.ErrSessionNotFound.
func (s *InMemoryStore) Get(id string) (*core.SessionContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// GetOrCreate returns the session, creating it when absent.
func (s *InMemoryStore) GetOrCreate(id string) (*core.SessionContext, bool, error) {
	if id == "" {
		return nil, false, errors.New("session id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.lookupLocked(id)
	if err == nil {
		return sess.Clone(), false, nil
	}
	if !errors.Is(err, core.ErrSessionNotFound) {
		return nil, false, err
	}
	sess = core.NewSessionContext(id)
	if err := s.putLocked(sess); err != nil {
		return nil, false, err
	}
	return sess.Clone(), true, nil
}

// Save replaces the stored session with a clone of sess and refreshes its TTL.
func (s *InMemoryStore) Save(sess *core.SessionContext) error {
	if sess == nil || sess.ID == "" {
		return errors.New("cannot save session without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(sess.Clone())
}

// Delete removes the session and its snapshot.
func (s *InMemoryStore) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existed := s.cache.Remove(id)
	if s.opts.Persister != nil {
		if !existed {
			if _, err := s.opts.Persister.Load(id); err == nil {
				existed = true
			}
		}
		if err := s.opts.Persister.Remove(id); err != nil {
			return existed, fmt.Errorf("remove session snapshot: %w", err)
		}
	}
	return existed, nil
}

// Len reports the number of sessions held in memory.
func (s *InMemoryStore) Len() int { return s.cache.Len() }

// IDs returns the ids of sessions held in memory, oldest first.
func (s *InMemoryStore) IDs() []string { return s.cache.Keys() }

func (s *InMemoryStore) lookupLocked(id string) (*core.SessionContext, error) {
	if sess, ok := s.cache.Get(id); ok {
		return sess, nil
	}
	if s.opts.Persister == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	sess, err := s.opts.Persister.Load(id)
	if err != nil {
		return nil, err
	}
	if s.opts.TTL > 0 && time.Since(sess.UpdatedAt) >= s.opts.TTL {
		_ = s.opts.Persister.Remove(id)
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	s.opts.Logger.Debug("session rehydrated", "session_id", id)
	s.cache.Add(id, sess)
	return sess, nil
}

func (s *InMemoryStore) putLocked(sess *core.SessionContext) error {
	s.cache.Add(sess.ID, sess)
	if s.opts.Persister != nil {
		if err := s.opts.Persister.Store(sess); err != nil {
			return fmt.Errorf("persist session %s: %w", sess.ID, err)
		}
	}
	return nil
}
