package store

import (
	"sort"
	"sync"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Subscribers receive updates via buffered channels. Updates are sent
// non-blocking; if a subscriber's buffer is full the update is dropped for
// that subscriber rather than stalling the dispatch worker that produced it.
type MemoryStore struct {
	mu          sync.RWMutex
	records     map[string]Record
	subscribers map[chan Record]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:     make(map[string]Record),
		subscribers: make(map[chan Record]struct{}),
	}
}

// Update stores rec under rec.Name and notifies all subscribers.
func (m *MemoryStore) Update(rec Record) {
	rec = cloneRecord(rec)

	m.mu.Lock()
	m.records[rec.Name] = rec
	m.mu.Unlock()

	m.notifySubscribers(cloneRecord(rec))
}

// Modify applies fn to a copy of the named record, stores the result and
// notifies subscribers.
func (m *MemoryStore) Modify(name string, fn func(*Record)) bool {
	m.mu.Lock()
	rec, ok := m.records[name]
	if !ok {
		m.mu.Unlock()
		return false
	}
	rec = cloneRecord(rec)
	fn(&rec)
	rec.Name = name
	m.records[name] = rec
	m.mu.Unlock()

	m.notifySubscribers(cloneRecord(rec))
	return true
}

// Get returns a copy of the named record.
func (m *MemoryStore) Get(name string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[name]
	if !ok {
		return Record{}, false
	}
	return cloneRecord(rec), true
}

// GetAll returns a snapshot of all records ordered by name.
func (m *MemoryStore) GetAll() []Record {
	m.mu.RLock()
	records := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, cloneRecord(rec))
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records
}

// Subscribe creates a new subscription.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Record {
	ch := make(chan Record, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Record) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (m *MemoryStore) notifySubscribers(rec Record) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- rec:
		default:
			// subscriber is slow, drop the message
		}
	}
}

// cloneRecord copies the mutable fields so stored records are never shared.
func cloneRecord(rec Record) Record {
	if rec.Labels != nil {
		labels := make(map[string]string, len(rec.Labels))
		for k, v := range rec.Labels {
			labels[k] = v
		}
		rec.Labels = labels
	}
	if rec.Value != nil {
		v := *rec.Value
		rec.Value = &v
	}
	return rec
}
