package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
)

type mapPersister struct {
	mu    sync.Mutex
	snaps map[string]*core.SessionContext
}

func newMapPersister() *mapPersister {
	return &mapPersister{snaps: map[string]*core.SessionContext{}}
}

func (p *mapPersister) Load(id string) (*core.SessionContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.snaps[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (p *mapPersister) Store(sess *core.SessionContext) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps[sess.ID] = sess.Clone()
	return nil
}

func (p *mapPersister) Remove(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.snaps, id)
	return nil
}

func TestInMemoryStore_GetOrCreate(t *testing.T) {
	s := NewInMemoryStore()

	sess, created, err := s.GetOrCreate("s1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, core.StateInitializing, sess.State)

	_, created, err = s.GetOrCreate("s1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, s.Len())
}

func TestInMemoryStore_GetMissing(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Get("nope")
	require.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestInMemoryStore_ClonesOnReadAndWrite(t *testing.T) {
	s := NewInMemoryStore()
	sess, err := s.Create("s1")
	require.NoError(t, err)

	sess.Context.Set(core.FieldSubject, "math")
	got, err := s.Get("s1")
	require.NoError(t, err)
	assert.Empty(t, got.Context.Subject)

	require.NoError(t, s.Save(sess))
	sess.Context.Set(core.FieldSubject, "science")
	got, _ = s.Get("s1")
	assert.Equal(t, "math", got.Context.Subject)
}

func TestInMemoryStore_Delete(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Create("s1")
	require.NoError(t, err)

	ok, err := s.Delete("s1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete("s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryStore_CapacityEvictionRehydrates(t *testing.T) {
	p := newMapPersister()
	s := NewInMemoryStore(func(o *Options) {
		o.MaxSessions = 2
		o.Persister = p
	})
	for _, id := range []string{"a", "b", "c"} {
		sess, err := s.Create(id)
		require.NoError(t, err)
		sess.Context.Set(core.FieldTopic, "topic-"+id)
		require.NoError(t, s.Save(sess))
	}
	assert.Equal(t, 2, s.Len())
	assert.NotContains(t, s.IDs(), "a")

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "topic-a", got.Context.Topic)
}

func TestInMemoryStore_TTLExpiry(t *testing.T) {
	p := newMapPersister()
	s := NewInMemoryStore(func(o *Options) {
		o.TTL = 30 * time.Millisecond
		o.Persister = p
	})
	_, err := s.Create("s1")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	_, err = s.Get("s1")
	require.ErrorIs(t, err, core.ErrSessionNotFound)
	_, err = p.Load("s1")
	require.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()
	var inFlight, maxInFlight atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("s1")
			defer unlock()
			n := inFlight.Add(1)
			if n > maxInFlight.Load() {
				maxInFlight.Store(n)
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Zero(t, km.Len())
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked by a")
	}
	unlockA()
}
