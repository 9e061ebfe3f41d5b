// Package repo owns the authoritative in-memory sequence of job applications
// and keeps it synchronized with the injected store. All structural
// invariants (unique ids, no dangling references) are enforced here, the
// store is a collaborator that may fail without corrupting the sequence.
package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/go-pkgz/syncs"
	"github.com/google/uuid"

	"github.com/umputun/apptrack/app/domain"
)

// ErrNotFound indicates an update referencing an id not present in the collection
var ErrNotFound = errors.New("application not found")

// Store defines storage operations the repository depends on
type Store interface {
	Load() ([]domain.JobApplication, error)
	Save(app domain.JobApplication) error
	Delete(id string) error
	ReplaceAll(apps []domain.JobApplication) error
}

// Repeater retries failed persistence calls
type Repeater interface {
	Do(ctx context.Context, fun func() error, errs ...error) error
}

// Prefill carries optional initial values for a new record, used by
// import-by-link to seed the link and the fetched page text.
type Prefill struct {
	JobTitle        string
	ApplicationLink string
	JobDescription  string
}

// Applications is the repository. Reads return copies, mutations are applied
// to memory first (optimistic) and persisted via the store. Background
// persistence of new records is bounded to a single in-flight worker to keep
// write order deterministic.
type Applications struct {
	store    Store
	repeater Repeater
	now      func() time.Time

	mu   sync.RWMutex
	apps []domain.JobApplication

	persist *syncs.SizedGroup
	updates chan struct{}
}

// New creates a repository populated from the store. The initial order is
// whatever the store returns (application date descending), later inserts go
// to the front. A nil rptr disables retries on background persistence.
func New(store Store, rptr Repeater) (*Applications, error) {
	if rptr == nil {
		rptr = repeater.New(&strategy.Once{})
	}

	apps, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load applications: %w", err)
	}

	res := &Applications{
		store:    store,
		repeater: rptr,
		now:      time.Now,
		apps:     apps,
		persist:  syncs.NewSizedGroup(1),
		updates:  make(chan struct{}, 1),
	}
	log.Printf("[INFO] repository loaded with %d applications", len(apps))
	return res, nil
}

// All returns a copy of the current sequence in repository order
func (a *Applications) All() []domain.JobApplication {
	a.mu.RLock()
	defer a.mu.RUnlock()
	res := make([]domain.JobApplication, len(a.apps))
	copy(res, a.apps)
	return res
}

// Get returns the record with the given id
func (a *Applications) Get(id string) (domain.JobApplication, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, app := range a.apps {
		if app.ID == id {
			return app, true
		}
	}
	return domain.JobApplication{}, false
}

// Add creates a new record with a fresh id and default fields, optionally
// prefilled, inserts it at the front and persists in the background. On
// persistence failure the record stays in memory, the failure is logged and
// the durable state catches up on the next successful save.
func (a *Applications) Add(prefill Prefill) string {
	app := domain.JobApplication{
		ID:              uuid.New().String(),
		JobTitle:        prefill.JobTitle,
		ApplicationLink: prefill.ApplicationLink,
		JobDescription:  prefill.JobDescription,
		ApplicationDate: a.now(),
		Status:          domain.DefaultStatus,
		Location:        domain.Remote(),
	}

	a.mu.Lock()
	a.apps = append([]domain.JobApplication{app}, a.apps...)
	a.mu.Unlock()
	a.notify()

	a.persist.Go(func(ctx context.Context) {
		if err := a.repeater.Do(ctx, func() error { return a.store.Save(app) }); err != nil {
			log.Printf("[WARN] failed to persist new application %s: %v", app.ID, err)
		}
	})

	return app.ID
}

// Update replaces the record with the same id and persists synchronously.
// Returns ErrNotFound without touching the collection if the id is unknown,
// it never inserts. A store failure is returned but the in-memory change
// stays, memory is the source of truth for the session.
func (a *Applications) Update(app domain.JobApplication) error {
	a.mu.Lock()
	idx := -1
	for i := range a.apps {
		if a.apps[i].ID == app.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		a.mu.Unlock()
		return fmt.Errorf("update %s: %w", app.ID, ErrNotFound)
	}
	a.apps[idx] = app
	a.mu.Unlock()
	a.notify()

	if err := a.store.Save(app); err != nil {
		log.Printf("[WARN] failed to persist application %s: %v", app.ID, err)
		return fmt.Errorf("failed to persist update: %w", err)
	}
	return nil
}

// Delete removes the record from memory and from the store. A vanished id is
// a benign no-op to absorb races between UI action and state refresh.
func (a *Applications) Delete(id string) error {
	a.mu.Lock()
	idx := -1
	for i := range a.apps {
		if a.apps[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		a.mu.Unlock()
		return nil
	}
	a.apps = append(a.apps[:idx], a.apps[idx+1:]...)
	a.mu.Unlock()
	a.notify()

	if err := a.store.Delete(id); err != nil {
		log.Printf("[WARN] failed to delete application %s from store: %v", id, err)
		return fmt.Errorf("failed to delete from store: %w", err)
	}
	return nil
}

// ReplaceAll swaps the whole collection, store first so a failed restore
// leaves memory untouched. Used by backup restore.
func (a *Applications) ReplaceAll(apps []domain.JobApplication) error {
	if err := a.store.ReplaceAll(apps); err != nil {
		return fmt.Errorf("failed to replace stored applications: %w", err)
	}

	a.mu.Lock()
	a.apps = make([]domain.JobApplication, len(apps))
	copy(a.apps, apps)
	a.mu.Unlock()
	a.notify()
	return nil
}

// Updates returns the change notification channel. A single buffered slot,
// notifications coalesce, consumers re-read the collection on receive.
func (a *Applications) Updates() <-chan struct{} {
	return a.updates
}

// Wait blocks until all background persistence completes, used on shutdown
// and in tests.
func (a *Applications) Wait() {
	a.persist.Wait()
}

func (a *Applications) notify() {
	select {
	case a.updates <- struct{}{}:
	default: // a pending notification already covers this change
	}
}
