package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is a map-backed store for dev and tests, mirroring the semantics the
// Postgres store provides.
type Memory struct {
	mu   sync.Mutex
	docs map[string]map[string]any
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string]any)}
}

// Get returns a copy of the document at path.
func (m *Memory) Get(ctx context.Context, path string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return deepCopyDoc(doc), nil
}

// SetMerge merges fields into the document at path, creating it if absent.
func (m *Memory) SetMerge(ctx context.Context, path string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validDocPath(path) {
		return fmt.Errorf("docstore: invalid document path %q", path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		doc = make(map[string]any)
		m.docs[path] = doc
	}
	mergeTopLevel(doc, fields)
	return nil
}

// UpdateFields applies dotted-field-path updates to an existing document.
func (m *Memory) UpdateFields(ctx context.Context, path string, updates map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		return ErrNotFound
	}
	for fp, v := range updates {
		if err := applyFieldPath(doc, fp, v); err != nil {
			return err
		}
	}
	return nil
}

// CollectionGroup returns all documents in collections of the given name,
// ordered by path so sweeps are deterministic.
func (m *Memory) CollectionGroup(ctx context.Context, collection string) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Snapshot
	for path, doc := range m.docs {
		if collectionOf(path) == collection {
			out = append(out, Snapshot{Path: path, Data: deepCopyDoc(doc)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
