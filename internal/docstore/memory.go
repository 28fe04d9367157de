package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store guarded by a RWMutex.
type Memory struct {
	mu    sync.RWMutex
	now   func() time.Time
	colls map[string]map[string]Fields
}

// NewMemory creates an empty store. now supplies ServerTimestamp values;
// nil means time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now, colls: make(map[string]map[string]Fields)}
}

// Set writes a document at path, replacing any existing one. Used to seed
// fixtures and by the management tooling.
func (m *Memory) Set(path string, data Fields) error {
	coll, id, err := Split(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(coll, id, resolve(data, m.now()))
	return nil
}

func (m *Memory) put(coll, id string, data Fields) {
	docs, ok := m.colls[coll]
	if !ok {
		docs = make(map[string]Fields)
		m.colls[coll] = docs
	}
	docs[id] = data
}

// Get returns the document at path.
func (m *Memory) Get(_ context.Context, path string) (Document, error) {
	coll, id, err := Split(path)
	if err != nil {
		return Document{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.colls[coll][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Path: path, Data: clone(data)}, nil
}

// Query returns every document of collection matching all filters.
func (m *Memory) Query(_ context.Context, collection string, filters ...Filter) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Document
	for id, data := range m.colls[collection] {
		keep := true
		for _, f := range filters {
			if !matches(data, f) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, Document{ID: id, Path: Join(collection, id), Data: clone(data)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Add stores data under a generated id.
func (m *Memory) Add(_ context.Context, collection string, data Fields) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(collection, id, resolve(data, m.now()))
	return id, nil
}

// Update merges data into the existing document at path.
func (m *Memory) Update(_ context.Context, path string, data Fields) error {
	coll, id, err := Split(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.colls[coll][id]
	if !ok {
		return ErrNotFound
	}
	next := clone(cur)
	for k, v := range resolve(data, m.now()) {
		next[k] = v
	}
	m.colls[coll][id] = next
	return nil
}

// Len reports how many documents collection holds.
func (m *Memory) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.colls[collection])
}

func clone(in Fields) Fields {
	out := make(Fields, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
