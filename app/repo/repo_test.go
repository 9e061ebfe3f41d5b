package repo

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/apptrack/app/domain"
)

// storeMock is a func-field stub for the Store interface
type storeMock struct {
	mu         sync.Mutex
	loadFunc   func() ([]domain.JobApplication, error)
	saveFunc   func(app domain.JobApplication) error
	deleteFunc func(id string) error
	saved      []domain.JobApplication
	deleted    []string
}

func (m *storeMock) Load() ([]domain.JobApplication, error) {
	if m.loadFunc != nil {
		return m.loadFunc()
	}
	return []domain.JobApplication{}, nil
}

func (m *storeMock) Save(app domain.JobApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveFunc != nil {
		if err := m.saveFunc(app); err != nil {
			return err
		}
	}
	m.saved = append(m.saved, app)
	return nil
}

func (m *storeMock) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteFunc != nil {
		if err := m.deleteFunc(id); err != nil {
			return err
		}
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *storeMock) ReplaceAll(apps []domain.JobApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append([]domain.JobApplication{}, apps...)
	return nil
}

func (m *storeMock) savedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func TestNew(t *testing.T) {
	t.Run("loads initial collection", func(t *testing.T) {
		store := &storeMock{loadFunc: func() ([]domain.JobApplication, error) {
			return []domain.JobApplication{{ID: "a"}, {ID: "b"}}, nil
		}}
		apps, err := New(store, nil)
		require.NoError(t, err)
		assert.Len(t, apps.All(), 2)
	})

	t.Run("load failure propagates", func(t *testing.T) {
		store := &storeMock{loadFunc: func() ([]domain.JobApplication, error) {
			return nil, errors.New("disk on fire")
		}}
		_, err := New(store, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk on fire")
	})
}

func TestApplications_Add(t *testing.T) {
	store := &storeMock{}
	apps, err := New(store, nil)
	require.NoError(t, err)

	id := apps.Add(Prefill{})
	require.NotEmpty(t, id)

	got, ok := apps.Get(id)
	require.True(t, ok)
	assert.Equal(t, "", got.JobTitle)
	assert.Equal(t, domain.DefaultStatus, got.Status)
	assert.Equal(t, domain.Remote(), got.Location)
	assert.False(t, got.ApplicationDate.IsZero())

	apps.Wait()
	assert.Equal(t, 1, store.savedCount())
}

func TestApplications_AddPrefilled(t *testing.T) {
	apps, err := New(&storeMock{}, nil)
	require.NoError(t, err)

	id := apps.Add(Prefill{ApplicationLink: "https://example.com/job", JobDescription: "raw page text"})
	got, ok := apps.Get(id)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/job", got.ApplicationLink)
	assert.Equal(t, "raw page text", got.JobDescription)
	apps.Wait()
}

func TestApplications_AddInsertsAtFront(t *testing.T) {
	store := &storeMock{loadFunc: func() ([]domain.JobApplication, error) {
		return []domain.JobApplication{{ID: "existing"}}, nil
	}}
	apps, err := New(store, nil)
	require.NoError(t, err)

	id := apps.Add(Prefill{})
	all := apps.All()
	require.Len(t, all, 2)
	assert.Equal(t, id, all[0].ID)
	assert.Equal(t, "existing", all[1].ID)
	apps.Wait()
}

func TestApplications_AddUniqueIDs(t *testing.T) {
	apps, err := New(&storeMock{}, nil)
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := apps.Add(Prefill{})
		assert.False(t, seen[id], "id %s reused", id)
		seen[id] = true
	}
	apps.Wait()
}

func TestApplications_AddSurvivesPersistFailure(t *testing.T) {
	store := &storeMock{saveFunc: func(domain.JobApplication) error { return errors.New("save failed") }}
	apps, err := New(store, nil)
	require.NoError(t, err)

	id := apps.Add(Prefill{})
	apps.Wait()

	// no rollback on persistence failure, the record stays in memory
	_, ok := apps.Get(id)
	assert.True(t, ok)
}

func TestApplications_Update(t *testing.T) {
	store := &storeMock{loadFunc: func() ([]domain.JobApplication, error) {
		return []domain.JobApplication{{ID: "a", JobTitle: "Engineer"}}, nil
	}}
	apps, err := New(store, nil)
	require.NoError(t, err)

	require.NoError(t, apps.Update(domain.JobApplication{ID: "a", JobTitle: "Senior Engineer", Status: domain.StatusInterviewing}))

	got, ok := apps.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Senior Engineer", got.JobTitle)
	assert.Equal(t, domain.StatusInterviewing, got.Status)
	assert.Equal(t, 1, store.savedCount(), "update persists synchronously")
}

func TestApplications_UpdateUnknownID(t *testing.T) {
	store := &storeMock{loadFunc: func() ([]domain.JobApplication, error) {
		return []domain.JobApplication{{ID: "a"}}, nil
	}}
	apps, err := New(store, nil)
	require.NoError(t, err)

	err = apps.Update(domain.JobApplication{ID: "ghost", JobTitle: "Nope"})
	require.ErrorIs(t, err, ErrNotFound)

	// must not insert and must not alter the collection
	all := apps.All()
	require.Len(t, all, 1)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, 0, store.savedCount())
}

func TestApplications_UpdatePersistFailure(t *testing.T) {
	store := &storeMock{
		loadFunc: func() ([]domain.JobApplication, error) { return []domain.JobApplication{{ID: "a"}}, nil },
		saveFunc: func(domain.JobApplication) error { return errors.New("save failed") },
	}
	apps, err := New(store, nil)
	require.NoError(t, err)

	err = apps.Update(domain.JobApplication{ID: "a", JobTitle: "New"})
	require.Error(t, err)

	// memory keeps the change even though the save failed
	got, _ := apps.Get("a")
	assert.Equal(t, "New", got.JobTitle)
}

func TestApplications_Delete(t *testing.T) {
	store := &storeMock{loadFunc: func() ([]domain.JobApplication, error) {
		return []domain.JobApplication{{ID: "a"}, {ID: "b"}}, nil
	}}
	apps, err := New(store, nil)
	require.NoError(t, err)

	require.NoError(t, apps.Delete("a"))
	_, ok := apps.Get("a")
	assert.False(t, ok)
	assert.Len(t, apps.All(), 1)
	assert.Equal(t, []string{"a"}, store.deleted)

	// idempotent: second delete is a no-op, not an error
	require.NoError(t, apps.Delete("a"))
	assert.Equal(t, []string{"a"}, store.deleted, "store not called for vanished id")
}

func TestApplications_ReplaceAll(t *testing.T) {
	store := &storeMock{loadFunc: func() ([]domain.JobApplication, error) {
		return []domain.JobApplication{{ID: "old"}}, nil
	}}
	apps, err := New(store, nil)
	require.NoError(t, err)

	repl := []domain.JobApplication{{ID: "n1"}, {ID: "n2"}}
	require.NoError(t, apps.ReplaceAll(repl))

	all := apps.All()
	require.Len(t, all, 2)
	assert.Equal(t, "n1", all[0].ID)
}

func TestApplications_Updates(t *testing.T) {
	apps, err := New(&storeMock{}, nil)
	require.NoError(t, err)

	apps.Add(Prefill{})
	select {
	case <-apps.Updates():
	case <-time.After(time.Second):
		t.Fatal("no update notification after add")
	}

	// notifications coalesce, repeated mutations never block
	for i := 0; i < 10; i++ {
		apps.Add(Prefill{})
	}
	select {
	case <-apps.Updates():
	case <-time.After(time.Second):
		t.Fatal("no update notification after burst")
	}
	apps.Wait()
}

func TestApplications_AllReturnsCopy(t *testing.T) {
	store := &storeMock{loadFunc: func() ([]domain.JobApplication, error) {
		return []domain.JobApplication{{ID: "a", JobTitle: "Engineer"}}, nil
	}}
	apps, err := New(store, nil)
	require.NoError(t, err)

	all := apps.All()
	all[0].JobTitle = "Mutated"

	got, _ := apps.Get("a")
	assert.Equal(t, "Engineer", got.JobTitle)
}
