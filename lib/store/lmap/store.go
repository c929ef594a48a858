package lmap

import (
	"sync"

	"github.com/dmap-io/dmap/lib/cmap"
	"github.com/dmap-io/dmap/lib/cmap/util"
	"github.com/dmap-io/dmap/lib/store"
)

// mapImpl is the embedded, single-node IMap implementation. A single mutex
// serializes every command, giving the state machine the same
// one-command-at-a-time execution model a consensus log provides. Change
// events are fanned out to per-session MPSC queues so that slow consumers
// never block the command path.
type mapImpl struct {
	mu  sync.Mutex
	svc *cmap.Service

	queues map[string]*util.LockFreeMPSC[cmap.Event] // sessionID -> event queue
}

// NewLocalMap creates a new local map instance.
// This implementation is not distributed and only works in-process; it is
// suitable for embedded use and as the reference backend in tests.
func NewLocalMap(factory store.ServiceFactory) *Map {
	m := &mapImpl{
		queues: make(map[string]*util.LockFreeMPSC[cmap.Event]),
	}
	if factory != nil {
		m.svc = factory()
	} else {
		m.svc = cmap.NewService(nil)
	}
	m.svc.SetSink(m.deliver)
	return &Map{impl: m}
}

// Map is the exported handle. It implements store.IMap and additionally
// exposes Watch for local event consumption.
type Map struct {
	impl *mapImpl
}

// deliver fans one command's events out to the queues of the registered
// sessions. Called from inside the command path while the mutex is held;
// Push is non-blocking so the command path never waits on consumers.
func (m *mapImpl) deliver(sessions []string, events []cmap.Event) {
	for _, sessionID := range sessions {
		q, ok := m.queues[sessionID]
		if !ok {
			continue
		}
		for i := range events {
			e := events[i]
			q.Push(&e)
		}
	}
}

// --------------------------------------------------------------------------
// Write Operations (docu see store/interface.go)
// --------------------------------------------------------------------------

func (m *Map) Put(key string, value []byte) (cmap.UpdateResult, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.Put(key, value), nil
}

func (m *Map) PutIfAbsent(key string, value []byte) (cmap.UpdateResult, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.PutIfAbsent(key, value), nil
}

func (m *Map) PutAndGet(key string, value []byte) (cmap.UpdateResult, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.PutAndGet(key, value), nil
}

func (m *Map) Remove(key string) (cmap.UpdateResult, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.Remove(key), nil
}

func (m *Map) RemoveValue(key string, expect []byte) (cmap.UpdateResult, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.RemoveValue(key, expect), nil
}

func (m *Map) RemoveVersion(key string, version uint64) (cmap.UpdateResult, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.RemoveVersion(key, version), nil
}

func (m *Map) Replace(key string, value []byte) (cmap.UpdateResult, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.Replace(key, value), nil
}

func (m *Map) ReplaceValue(key string, oldValue, newValue []byte) (cmap.UpdateResult, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.ReplaceValue(key, oldValue, newValue), nil
}

func (m *Map) ReplaceVersion(key string, oldVersion uint64, newValue []byte) (cmap.UpdateResult, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.ReplaceVersion(key, oldVersion, newValue), nil
}

func (m *Map) Clear() (cmap.UpdateResult, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.Clear(), nil
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

func (m *Map) Get(key string) (cmap.VersionedValue, bool, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	vv, ok := m.impl.svc.Get(key)
	return vv, ok, nil
}

func (m *Map) GetOrDefault(key string, def []byte) (cmap.VersionedValue, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.GetOrDefault(key, def), nil
}

func (m *Map) ContainsKey(key string) (bool, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.ContainsKey(key), nil
}

func (m *Map) ContainsValue(value []byte) (bool, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.ContainsValue(value), nil
}

func (m *Map) Size() (int, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.Size(), nil
}

func (m *Map) IsEmpty() (bool, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.IsEmpty(), nil
}

func (m *Map) KeySet() ([]string, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.KeySet(), nil
}

func (m *Map) Values() ([]cmap.VersionedValue, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.Values(), nil
}

func (m *Map) EntrySet() ([]cmap.Entry, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.EntrySet(), nil
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

func (m *Map) Begin(txID string) (uint64, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.Begin(txID), nil
}

func (m *Map) Prepare(txID string, updates []cmap.MapUpdate) (cmap.PrepareStatus, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.Prepare(txID, updates), nil
}

func (m *Map) PrepareAndCommit(txID string, updates []cmap.MapUpdate) (cmap.PrepareStatus, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.PrepareAndCommit(txID, updates), nil
}

func (m *Map) Commit(txID string) (cmap.CommitStatus, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.Commit(txID), nil
}

func (m *Map) Rollback(txID string) (cmap.CommitStatus, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.Rollback(txID), nil
}

// --------------------------------------------------------------------------
// Iterators
// --------------------------------------------------------------------------

func (m *Map) OpenIterator(sessionID string) (uint64, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	return m.impl.svc.OpenIterator(sessionID), nil
}

func (m *Map) Next(iteratorID uint64, position, batchSize int) (cmap.IteratorBatch, bool, error) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	batch, ok := m.impl.svc.Next(iteratorID, position, batchSize)
	return batch, ok, nil
}

func (m *Map) CloseIterator(iteratorID uint64) error {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	m.impl.svc.CloseIterator(iteratorID)
	return nil
}

// --------------------------------------------------------------------------
// Listeners and Sessions
// --------------------------------------------------------------------------

func (m *Map) AddListener(sessionID string) error {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	m.impl.svc.AddListener(sessionID)
	if _, ok := m.impl.queues[sessionID]; !ok {
		m.impl.queues[sessionID] = util.NewLockFreeMPSC[cmap.Event]()
	}
	return nil
}

func (m *Map) RemoveListener(sessionID string) error {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	m.impl.svc.RemoveListener(sessionID)
	if q, ok := m.impl.queues[sessionID]; ok {
		q.Close()
		delete(m.impl.queues, sessionID)
	}
	return nil
}

func (m *Map) CloseSession(sessionID string) error {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	m.impl.svc.CloseSession(sessionID)
	if q, ok := m.impl.queues[sessionID]; ok {
		q.Close()
		delete(m.impl.queues, sessionID)
	}
	return nil
}

// Watch returns the change-event channel of a registered session. The
// channel delivers events in commit order and closes when the session's
// listener is removed or the session is closed. The boolean is false if the
// session has no listener registration.
//
// Watch is local-only: it is how embedded users consume the events the sink
// produces. Remote delivery is the transport's concern.
func (m *Map) Watch(sessionID string) (<-chan *cmap.Event, bool) {
	m.impl.mu.Lock()
	defer m.impl.mu.Unlock()
	q, ok := m.impl.queues[sessionID]
	if !ok {
		return nil, false
	}
	return q.Recv(), true
}
