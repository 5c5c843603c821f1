// Package replay tests for the serial mutation replay engine.
package replay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapnote-app/core/internal/api"
	"github.com/snapnote-app/core/internal/db"
	apperrors "github.com/snapnote-app/core/internal/errors"
	"github.com/snapnote-app/core/internal/models"
)

// =====================================================
// Test Doubles
// =====================================================

// fakeRemote records the exact order of network calls and answers each
// target with a scripted error (nil for success).
type fakeRemote struct {
	mu      sync.Mutex
	calls   []string
	errs    map[string]error // keyed by "<kind> <target>"
	release chan struct{}    // when set, calls block until closed
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{errs: make(map[string]error)}
}

func (f *fakeRemote) record(kind string, id models.UUID) error {
	f.mu.Lock()
	key := fmt.Sprintf("%s %s", kind, id)
	f.calls = append(f.calls, key)
	err := f.errs[key]
	release := f.release
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	return err
}

func (f *fakeRemote) UpdateNote(ctx context.Context, id models.UUID, update *api.NoteUpdate) error {
	return f.record("update", id)
}

func (f *fakeRemote) DeleteNote(ctx context.Context, id models.UUID) error {
	return f.record("delete", id)
}

func (f *fakeRemote) SetFavorite(ctx context.Context, id models.UUID, favorite bool) error {
	return f.record("favorite", id)
}

func (f *fakeRemote) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

// =====================================================
// Helpers
// =====================================================

func newTestEngine(t *testing.T) (*Engine, *db.Store, *fakeRemote) {
	t.Helper()

	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.NewMigrator(database.DB).Up())

	store := db.NewStore(database)
	t.Cleanup(func() { store.Close() })

	remote := newFakeRemote()
	return NewEngine(store, remote, 5), store, remote
}

func seedNote(t *testing.T, store *db.Store, id string, synced bool) {
	t.Helper()
	require.NoError(t, store.UpsertNote(&models.Note{
		ID:        models.UUID(id),
		Title:     "seed",
		CreatedAt: time.Now().Unix(),
		UpdatedAt: time.Now().Unix(),
		Synced:    synced,
	}))
}

// =====================================================
// Replay Tests
// =====================================================

// TestRun_emptyQueue verifies a pass over nothing is a clean zero.
func TestRun_emptyQueue(t *testing.T) {
	e, _, remote := newTestEngine(t)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
	assert.Empty(t, remote.callOrder())
}

// TestRun_ordering verifies strict FIFO replay: an edit enqueued before a
// delete of the same note hits the wire first, and both confirm.
func TestRun_ordering(t *testing.T) {
	e, store, remote := newTestEngine(t)

	seedNote(t, store, "x", false)
	_, err := store.EnqueueMutation(models.MutationUpdate, "x", &api.NoteUpdate{})
	require.NoError(t, err)
	_, err = store.EnqueueMutation(models.MutationDelete, "x", nil)
	require.NoError(t, err)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Replayed)
	assert.Zero(t, result.Failed)

	assert.Equal(t, []string{"update x", "delete x"}, remote.callOrder())

	pending, err := e.Pending()
	require.NoError(t, err)
	assert.Zero(t, pending)
}

// TestRun_marksSynced verifies confirmed non-delete mutations flip the
// note's synced flag.
func TestRun_marksSynced(t *testing.T) {
	e, store, _ := newTestEngine(t)

	seedNote(t, store, "n1", false)
	_, err := store.EnqueueMutation(models.MutationToggleFavorite, "n1",
		map[string]bool{"is_favorite": true})
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.NoError(t, err)

	note, err := store.GetNote("n1")
	require.NoError(t, err)
	assert.True(t, note.Synced)
}

// TestRun_notFoundResolves verifies the remote's not-found answer removes
// the entry without touching the retry counter, and drops the orphaned note.
func TestRun_notFoundResolves(t *testing.T) {
	e, store, remote := newTestEngine(t)

	seedNote(t, store, "ghost", false)
	_, err := store.EnqueueMutation(models.MutationUpdate, "ghost", &api.NoteUpdate{})
	require.NoError(t, err)

	remote.errs["update ghost"] = apperrors.New(apperrors.ErrNotFound, "gone")

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Replayed)
	assert.Zero(t, result.Failed)

	mutations, err := store.ListMutations()
	require.NoError(t, err)
	assert.Empty(t, mutations, "resolved mutation must leave the queue")

	_, err = store.GetNote("ghost")
	assert.True(t, apperrors.Is(err, apperrors.ErrNoteNotFound),
		"orphaned local copy should be dropped")
}

// TestRun_transientFailure verifies a failing call stays queued with a
// bumped retry counter.
func TestRun_transientFailure(t *testing.T) {
	e, store, remote := newTestEngine(t)

	seedNote(t, store, "n1", false)
	_, err := store.EnqueueMutation(models.MutationUpdate, "n1", &api.NoteUpdate{})
	require.NoError(t, err)

	remote.errs["update n1"] = apperrors.New(apperrors.ErrNetwork, "unreachable")

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Failed: 1}, result)

	mutations, err := store.ListMutations()
	require.NoError(t, err)
	require.Len(t, mutations, 1)
	assert.Equal(t, 1, mutations[0].RetryCount)

	// The note stays dirty until a pass confirms it.
	note, err := store.GetNote("n1")
	require.NoError(t, err)
	assert.False(t, note.Synced)
}

// TestRun_retryCeiling verifies entries over the ceiling are skipped without
// a network call and left untouched for manual recovery.
func TestRun_retryCeiling(t *testing.T) {
	e, store, remote := newTestEngine(t)

	seedNote(t, store, "stuck", false)
	m, err := store.EnqueueMutation(models.MutationUpdate, "stuck", &api.NoteUpdate{})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.IncrementMutationRetry(m.ID))
	}

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 1}, result)
	assert.Empty(t, remote.callOrder(), "skipped mutation must not hit the wire")

	mutations, err := store.ListMutations()
	require.NoError(t, err)
	require.Len(t, mutations, 1)
	assert.Equal(t, 5, mutations[0].RetryCount, "skip must not modify the entry")

	// Manual recovery makes it eligible again.
	reset, err := store.ResetAbandonedMutations(5)
	require.NoError(t, err)
	assert.Equal(t, 1, reset)

	result, err = e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Replayed: 1}, result)
}

// TestRun_reentrancy verifies a trigger during a running pass is a no-op
// and exactly one pass executes.
func TestRun_reentrancy(t *testing.T) {
	e, store, remote := newTestEngine(t)

	seedNote(t, store, "n1", false)
	_, err := store.EnqueueMutation(models.MutationUpdate, "n1", &api.NoteUpdate{})
	require.NoError(t, err)

	release := make(chan struct{})
	remote.mu.Lock()
	remote.release = release
	remote.mu.Unlock()

	firstDone := make(chan Result)
	go func() {
		result, _ := e.Run(context.Background())
		firstDone <- result
	}()

	// Wait until the first pass is inside a network call.
	deadline := time.After(3 * time.Second)
	for len(remote.callOrder()) == 0 {
		select {
		case <-deadline:
			t.Fatal("first pass never started")
		case <-time.After(2 * time.Millisecond):
		}
	}
	assert.True(t, e.Syncing())

	second, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, second, "second trigger must return a zero result")

	close(release)
	first := <-firstDone
	assert.Equal(t, Result{Replayed: 1}, first)
	assert.False(t, e.Syncing())

	assert.Len(t, remote.callOrder(), 1, "exactly one pass may execute")
}

// TestRun_cancelled verifies a cancelled context stops the pass between
// mutations.
func TestRun_cancelled(t *testing.T) {
	e, store, _ := newTestEngine(t)

	seedNote(t, store, "n1", false)
	_, err := store.EnqueueMutation(models.MutationUpdate, "n1", &api.NoteUpdate{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
