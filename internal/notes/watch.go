package notes

import (
	"context"
	"log/slog"
	"sync"
)

// Compile-time interface check.
var _ Store = (*Watched)(nil)

// Observer receives the owner's full, freshly listed record set after every
// successful mutation in that owner's scope. Dispatch is synchronous: the
// mutating call does not return until every observer has run.
type Observer func(owner string, records []Record)

// Watched wraps a Store and notifies registered observers whenever a mutation
// (Create, Update, Delete) succeeds. Reads pass through untouched.
//
// Observers always receive the complete current list for the affected owner,
// never a delta, so a listener that misses intermediate states still converges
// on the truth.
type Watched struct {
	store Store
	log   *slog.Logger

	mu        sync.RWMutex
	observers []Observer
}

// Watch wraps store. logger is used to report list-refresh failures after an
// otherwise successful mutation; nil means slog.Default().
func Watch(store Store, logger *slog.Logger) *Watched {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watched{store: store, log: logger}
}

// Subscribe registers an observer. Observers cannot be removed; they live as
// long as the store.
func (w *Watched) Subscribe(obs Observer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observers = append(w.observers, obs)
}

// notify refreshes owner's record list and dispatches it to every observer.
// A failed refresh is logged and swallowed so that the mutation's success is
// not retracted.
func (w *Watched) notify(ctx context.Context, owner string) {
	w.mu.RLock()
	observers := w.observers
	w.mu.RUnlock()
	if len(observers) == 0 {
		return
	}

	records, err := w.store.ListByOwner(ctx, owner)
	if err != nil {
		w.log.Error("refresh record list for observers", "owner", owner, "error", err)
		return
	}
	for _, obs := range observers {
		obs(owner, records)
	}
}

// Create implements Store.
func (w *Watched) Create(ctx context.Context, owner string, subjectName, body string) (Record, error) {
	rec, err := w.store.Create(ctx, owner, subjectName, body)
	if err != nil {
		return Record{}, err
	}
	w.notify(ctx, owner)
	return rec, nil
}

// Get implements Store.
func (w *Watched) Get(ctx context.Context, owner string, id int64) (Record, error) {
	return w.store.Get(ctx, owner, id)
}

// ListByOwner implements Store.
func (w *Watched) ListByOwner(ctx context.Context, owner string) ([]Record, error) {
	return w.store.ListByOwner(ctx, owner)
}

// Update implements Store.
func (w *Watched) Update(ctx context.Context, owner string, id int64, upd Update) (Record, error) {
	rec, err := w.store.Update(ctx, owner, id, upd)
	if err != nil {
		return Record{}, err
	}
	w.notify(ctx, owner)
	return rec, nil
}

// Delete implements Store.
func (w *Watched) Delete(ctx context.Context, owner string, id int64) error {
	if err := w.store.Delete(ctx, owner, id); err != nil {
		return err
	}
	w.notify(ctx, owner)
	return nil
}
