// Package replay drains the durable mutation queue against the remote API.
//
// Replay is strictly serial: one network call in flight at a time, in queue
// order, so an edit enqueued before a delete of the same note is always sent
// first.
package replay

import (
	"context"
	"sync/atomic"

	"github.com/snapnote-app/core/internal/api"
	"github.com/snapnote-app/core/internal/db"
	apperrors "github.com/snapnote-app/core/internal/errors"
	"github.com/snapnote-app/core/internal/logging"
	"github.com/snapnote-app/core/internal/models"
)

// Remote is the slice of the API client replay needs. These are the same
// endpoints the live mutation paths use.
type Remote interface {
	UpdateNote(ctx context.Context, id models.UUID, update *api.NoteUpdate) error
	DeleteNote(ctx context.Context, id models.UUID) error
	SetFavorite(ctx context.Context, id models.UUID, favorite bool) error
}

// Result summarizes one replay pass.
type Result struct {
	Replayed int // confirmed by the server, or resolved as moot
	Failed   int // transient failures, retry counter bumped
	Skipped  int // over the retry ceiling, left for manual recovery
}

// Engine replays queued mutations. At most one pass runs at a time; a
// trigger while a pass is running returns a zero Result immediately instead
// of queueing a second pass.
type Engine struct {
	store      *db.Store
	remote     Remote
	maxRetries int
	running    atomic.Bool
}

// NewEngine creates an Engine. maxRetries is the per-mutation ceiling after
// which an entry is skipped instead of retried.
func NewEngine(store *db.Store, remote Remote, maxRetries int) *Engine {
	if maxRetries < 1 {
		maxRetries = 5
	}
	return &Engine{
		store:      store,
		remote:     remote,
		maxRetries: maxRetries,
	}
}

// Syncing reports whether a replay pass is currently running. Exposed for
// the "syncing" indicator in the UI layer.
func (e *Engine) Syncing() bool {
	return e.running.Load()
}

// Pending returns the number of queued mutations, for the pending badge.
func (e *Engine) Pending() (int, error) {
	return e.store.CountPendingMutations()
}

// Run executes one replay pass. Reentrant calls while a pass is running are
// no-ops returning a zero Result.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		logging.Debug("replay already running, trigger ignored", nil)
		return Result{}, nil
	}
	defer e.running.Store(false)

	mutations, err := e.store.ListMutations()
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.ErrSyncFailed, "failed to read mutation queue", err)
	}
	if len(mutations) == 0 {
		return Result{}, nil
	}

	logging.Info("replay pass started", logging.Fields{"queued": len(mutations)})

	var result Result
	for _, m := range mutations {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if m.RetryCount >= e.maxRetries {
			result.Skipped++
			continue
		}

		switch err := e.send(ctx, m); {
		case err == nil:
			e.confirm(m, &result)
		case api.IsNotFound(err):
			// The target is already gone server-side: the local intent is
			// satisfied, whatever the kind. Drop the entry, no retry.
			logging.Info("mutation target gone remotely, resolving", logging.Fields{
				"mutation_id": m.ID, "kind": m.Kind, "note_id": m.TargetID,
			})
			e.drop(m, &result)
		default:
			logging.Warn("mutation replay failed", logging.Fields{
				"mutation_id": m.ID, "kind": m.Kind, "retry": m.RetryCount + 1,
				"error": err.Error(),
			})
			if err := e.store.IncrementMutationRetry(m.ID); err != nil {
				logging.Error("failed to bump retry counter", err, logging.Fields{"mutation_id": m.ID})
			}
			result.Failed++
		}
	}

	logging.Info("replay pass finished", logging.Fields{
		"replayed": result.Replayed, "failed": result.Failed, "skipped": result.Skipped,
	})
	return result, nil
}

// send issues the remote call for one mutation.
func (e *Engine) send(ctx context.Context, m *models.QueuedMutation) error {
	switch m.Kind {
	case models.MutationUpdate:
		var update api.NoteUpdate
		if err := m.DecodePayload(&update); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "corrupt update payload", err)
		}
		return e.remote.UpdateNote(ctx, m.TargetID, &update)

	case models.MutationDelete:
		return e.remote.DeleteNote(ctx, m.TargetID)

	case models.MutationToggleFavorite:
		var payload struct {
			IsFavorite bool `json:"is_favorite"`
		}
		if err := m.DecodePayload(&payload); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "corrupt favorite payload", err)
		}
		return e.remote.SetFavorite(ctx, m.TargetID, payload.IsFavorite)

	default:
		return apperrors.Newf(apperrors.ErrInvalid, "unknown mutation kind %q", m.Kind)
	}
}

// confirm removes a server-accepted mutation and clears the note's dirty flag.
func (e *Engine) confirm(m *models.QueuedMutation, result *Result) {
	if err := e.store.DeleteMutation(m.ID); err != nil {
		logging.Error("failed to remove confirmed mutation", err, logging.Fields{"mutation_id": m.ID})
		result.Failed++
		return
	}
	result.Replayed++

	// A confirmed delete has no note left to flag.
	if m.Kind == models.MutationDelete {
		return
	}
	if err := e.store.SetNoteSynced(m.TargetID, true); err != nil &&
		!apperrors.Is(err, apperrors.ErrNoteNotFound) {
		logging.Error("failed to mark note synced", err, logging.Fields{"note_id": m.TargetID})
	}
}

// drop removes a mutation resolved as moot (target deleted remotely) and the
// now-orphaned cached note.
func (e *Engine) drop(m *models.QueuedMutation, result *Result) {
	if err := e.store.DeleteMutation(m.ID); err != nil {
		logging.Error("failed to remove resolved mutation", err, logging.Fields{"mutation_id": m.ID})
		result.Failed++
		return
	}
	result.Replayed++

	if err := e.store.DeleteNote(m.TargetID); err != nil {
		logging.Error("failed to drop orphaned note", err, logging.Fields{"note_id": m.TargetID})
	}
}
