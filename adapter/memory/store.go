package memory

import (
	"context"
	"sync"

	"github.com/leeforge/strata/adapter"
)

// Store is an in-process document store: type -> id -> document. Every
// adapter built with New gets its own Store.
type Store struct {
	records map[string]map[string]adapter.Document
	lastID  int64
	mu      sync.RWMutex
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]map[string]adapter.Document),
	}
}

// New returns a document adapter over a fresh in-memory store.
func New(opts ...adapter.Option) *adapter.DocumentAdapter {
	return adapter.New(NewStore(), opts...)
}

// Load 获取记录
func (s *Store) Load(_ context.Context, typ, id string) (adapter.Document, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, exists := s.records[typ][id]
	if !exists {
		return nil, false, nil
	}
	return adapter.Clone(doc), true, nil
}

// Scan 获取某类型全部记录
func (s *Store) Scan(_ context.Context, typ string) ([]adapter.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table := s.records[typ]
	ids := make([]string, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	adapter.SortIDs(ids)

	out := make([]adapter.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, adapter.Clone(table[id]))
	}
	return out, nil
}

// Save 保存记录
func (s *Store) Save(_ context.Context, typ, id string, doc adapter.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.records[typ]
	if !ok {
		table = make(map[string]adapter.Document)
		s.records[typ] = table
	}
	table[id] = adapter.Clone(doc)
	return nil
}

// Remove 删除记录
func (s *Store) Remove(_ context.Context, typ, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records[typ], id)
	return nil
}

// NextID returns monotonically increasing int64 ids, shared by all types.
func (s *Store) NextID(context.Context, string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	return s.lastID, nil
}

// Len returns the number of stored documents of typ.
func (s *Store) Len(typ string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[typ])
}

// Ensure Store implements adapter.Store.
var _ adapter.Store = (*Store)(nil)
