package notes

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// MemStore is an in-memory Store implementation. It backs deployments that
// run without a database and doubles as the reference implementation for
// store semantics in tests. Safe for concurrent use.
type MemStore struct {
	mu      sync.RWMutex
	nextID  int64
	records map[int64]Record
	now     func() time.Time
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		nextID:  1,
		records: make(map[int64]Record),
		now:     time.Now,
	}
}

// Create implements Store.
func (s *MemStore) Create(_ context.Context, owner string, subjectName, body string) (Record, error) {
	if owner == "" {
		return Record{}, ErrMissingOwner
	}
	if subjectName == "" {
		return Record{}, ErrMissingSubject
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{
		ID:            s.nextID,
		OwnerIdentity: owner,
		SubjectName:   subjectName,
		Body:          body,
		CreatedAt:     s.now().UTC(),
	}
	s.nextID++
	s.records[rec.ID] = rec
	return rec, nil
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, owner string, id int64) (Record, error) {
	if owner == "" {
		return Record{}, ErrMissingOwner
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok || rec.OwnerIdentity != owner {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// ListByOwner implements Store. Records are ordered newest first, ties broken
// by descending ID.
func (s *MemStore) ListByOwner(_ context.Context, owner string) ([]Record, error) {
	if owner == "" {
		return nil, ErrMissingOwner
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Record{}
	for _, rec := range s.records {
		if rec.OwnerIdentity == owner {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Update implements Store.
func (s *MemStore) Update(_ context.Context, owner string, id int64, upd Update) (Record, error) {
	if owner == "" {
		return Record{}, ErrMissingOwner
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.OwnerIdentity != owner {
		return Record{}, ErrNotFound
	}

	if upd.SubjectName != nil {
		rec.SubjectName = *upd.SubjectName
	}
	if upd.Body != nil {
		rec.Body = *upd.Body
	}
	if upd.Approved != nil {
		rec.Approved = *upd.Approved
	}
	s.records[id] = rec
	return rec, nil
}

// Delete implements Store.
func (s *MemStore) Delete(_ context.Context, owner string, id int64) error {
	if owner == "" {
		return ErrMissingOwner
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.OwnerIdentity != owner {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}
