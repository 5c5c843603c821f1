// Package session wires the core together for one signed-in user: the local
// database, the API client, the connectivity monitor, the job scheduler and
// the replay engine share the session's lifetime.
package session

import (
	"context"
	"os"
	"time"

	"github.com/snapnote-app/core/internal/api"
	"github.com/snapnote-app/core/internal/cache"
	"github.com/snapnote-app/core/internal/config"
	"github.com/snapnote-app/core/internal/connectivity"
	"github.com/snapnote-app/core/internal/db"
	apperrors "github.com/snapnote-app/core/internal/errors"
	"github.com/snapnote-app/core/internal/jobs"
	"github.com/snapnote-app/core/internal/logging"
	"github.com/snapnote-app/core/internal/models"
	"github.com/snapnote-app/core/internal/replay"
)

// Session is the top-level handle the UI layer talks to. All reads serve
// from the local store first; all writes apply locally, enqueue, and sync
// in the background when connectivity allows.
type Session struct {
	cfg *config.Config

	database   *db.DB
	store      *db.Store
	client     *api.Client
	monitor    *connectivity.Monitor
	reconciler *cache.Reconciler
	scheduler  *jobs.Scheduler
	engine     *replay.Engine

	ctx    context.Context
	cancel context.CancelFunc
}

// Open builds a Session from configuration: opens (and migrates) the local
// database, constructs the remote client, and starts the connectivity
// monitor and its deferred startup probe.
func Open(cfg *config.Config) (*Session, error) {
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	logging.Init(os.Stdout, cfg.Logging.Level)

	database, err := db.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	if err := db.NewMigrator(database.DB).Up(); err != nil {
		database.Close()
		return nil, err
	}

	store := db.NewStore(database)
	client := api.NewClient(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout)
	reconciler := cache.NewReconciler(store)

	s := &Session{
		cfg:        cfg,
		database:   database,
		store:      store,
		client:     client,
		reconciler: reconciler,
		engine:     replay.NewEngine(store, client, cfg.Sync.MaxRetries),
		scheduler: jobs.NewScheduler(client, reconciler, &jobs.Config{
			MaxConcurrent:   cfg.Jobs.MaxConcurrent,
			PollInterval:    cfg.Jobs.PollInterval,
			MaxPollAttempts: cfg.Jobs.MaxPollAttempts,
			DedupWindow:     cfg.Jobs.DedupWindow,
		}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.monitor = connectivity.NewMonitor(client.Ping, cfg.Sync.StartupProbeDelay)
	s.monitor.OnReconnect(func() { go s.replayPass() })
	s.monitor.Start(s.ctx)

	logging.Info("session opened", logging.Fields{"data_dir": cfg.Storage.DataDir})
	return s, nil
}

// Close releases everything the session holds. Pollers are cancelled, not
// awaited to completion of their jobs; queued mutations stay on disk for
// the next session.
func (s *Session) Close() error {
	s.cancel()
	s.monitor.Stop()
	s.scheduler.Shutdown()
	s.store.Close()
	err := s.database.Close()
	logging.Info("session closed", nil)
	return err
}

// =====================================================
// Connectivity
// =====================================================

// Online reports the current connectivity belief.
func (s *Session) Online() bool {
	return s.monitor.Online()
}

// SetOnline feeds a platform connectivity signal into the monitor. An
// offline-to-online transition kicks off a replay pass.
func (s *Session) SetOnline(online bool) {
	s.monitor.SetOnline(online)
}

// =====================================================
// Library
// =====================================================

// Notes lists the local library, newest update first. Never touches the
// network.
func (s *Session) Notes() ([]*models.Note, error) {
	return s.store.ListNotes()
}

// Favorites lists the locally cached favorites, newest update first.
func (s *Session) Favorites() ([]*models.Note, error) {
	return s.store.ListFavoriteNotes()
}

// RefreshLibrary pulls the server's list view and reconciles it into the
// local cache, then returns the merged library. Offline, or when the pull
// fails transiently, it serves the cache as-is.
func (s *Session) RefreshLibrary(ctx context.Context) ([]*models.Note, error) {
	if s.monitor.Online() {
		remote, err := s.client.ListNotes(ctx)
		switch {
		case err == nil:
			if err := s.reconciler.Merge(remote); err != nil {
				return nil, err
			}
		case api.IsTransient(err):
			logging.Warn("library refresh failed, serving cache", logging.Fields{"error": err.Error()})
			s.monitor.SetOnline(false)
		default:
			return nil, err
		}
	}
	return s.store.ListNotes()
}

// OpenNote returns the full detail view of one note. Online it fetches the
// authoritative copy and caches it; offline (or on a transient failure) it
// serves the cached copy, which may be list-level only.
func (s *Session) OpenNote(ctx context.Context, id models.UUID) (*models.Note, error) {
	if s.monitor.Online() {
		remote, err := s.client.GetNote(ctx, id)
		switch {
		case err == nil:
			if err := s.reconciler.Upsert(remote); err != nil {
				logging.Error("failed to cache note detail", err, logging.Fields{"note_id": id})
			}
			return remote, nil
		case api.IsNotFound(err):
			// Gone server-side. Drop the stale cached copy too.
			if derr := s.store.DeleteNote(id); derr != nil {
				logging.Error("failed to drop stale note", derr, logging.Fields{"note_id": id})
			}
			return nil, apperrors.Wrap(apperrors.ErrNoteNotFound, "note not found", err)
		case api.IsTransient(err):
			logging.Warn("note fetch failed, serving cache", logging.Fields{
				"note_id": id, "error": err.Error(),
			})
			s.monitor.SetOnline(false)
		default:
			return nil, err
		}
	}
	return s.store.GetNote(id)
}

// =====================================================
// Mutations (optimistic local apply + durable queue)
// =====================================================

// UpdateNote applies an edit locally, queues it for replay, and triggers a
// sync pass when online. The local apply is never rolled back.
func (s *Session) UpdateNote(id models.UUID, update *api.NoteUpdate) error {
	note, err := s.store.GetNote(id)
	if err != nil {
		return err
	}

	if update.Title != nil {
		note.Title = *update.Title
	}
	if update.Category != nil {
		note.Category = *update.Category
	}
	if update.Tags != nil {
		note.Tags = *update.Tags
	}
	if update.IsArchived != nil {
		note.IsArchived = *update.IsArchived
	}
	note.UpdatedAt = time.Now().Unix()
	note.Synced = false

	if err := s.store.UpsertNote(note); err != nil {
		return err
	}
	if _, err := s.store.EnqueueMutation(models.MutationUpdate, id, update); err != nil {
		return err
	}
	s.kickReplay()
	return nil
}

// DeleteNote removes a note locally and queues the deletion for replay.
func (s *Session) DeleteNote(id models.UUID) error {
	if err := s.store.DeleteNote(id); err != nil {
		return err
	}
	if _, err := s.store.EnqueueMutation(models.MutationDelete, id, nil); err != nil {
		return err
	}
	s.kickReplay()
	return nil
}

// SetFavorite flips a note's favorite flag locally and queues the change.
// The payload carries the desired state, not a toggle, so replaying it twice
// is harmless.
func (s *Session) SetFavorite(id models.UUID, favorite bool) error {
	note, err := s.store.GetNote(id)
	if err != nil {
		return err
	}
	note.IsFavorite = favorite
	note.UpdatedAt = time.Now().Unix()
	note.Synced = false

	if err := s.store.UpsertNote(note); err != nil {
		return err
	}
	payload := map[string]bool{"is_favorite": favorite}
	if _, err := s.store.EnqueueMutation(models.MutationToggleFavorite, id, payload); err != nil {
		return err
	}
	s.kickReplay()
	return nil
}

// =====================================================
// Sync
// =====================================================

// SyncNow runs one replay pass immediately, regardless of connectivity
// belief. Used by pull-to-refresh.
func (s *Session) SyncNow(ctx context.Context) (replay.Result, error) {
	return s.engine.Run(ctx)
}

// Syncing reports whether a replay pass is in flight.
func (s *Session) Syncing() bool {
	return s.engine.Syncing()
}

// PendingMutations returns the queued-change count for the pending badge.
func (s *Session) PendingMutations() (int, error) {
	return s.engine.Pending()
}

// RecoverAbandoned resets the retry counter of mutations parked over the
// retry ceiling, making them eligible for the next pass.
func (s *Session) RecoverAbandoned() (int, error) {
	return s.store.ResetAbandonedMutations(s.cfg.Sync.MaxRetries)
}

// kickReplay starts a background replay pass if we believe we are online.
// Offline the mutation just waits for the reconnect edge.
func (s *Session) kickReplay() {
	if !s.monitor.Online() {
		return
	}
	go s.replayPass()
}

func (s *Session) replayPass() {
	if _, err := s.engine.Run(s.ctx); err != nil {
		logging.Error("replay pass aborted", err, nil)
	}
}

// =====================================================
// Capture jobs
// =====================================================

// SubmitCapture hands captured images to the job scheduler. Returns the
// task id, which changes once the server accepts the job.
func (s *Session) SubmitCapture(blobs []api.BlobRef, category string) (string, error) {
	return s.scheduler.Submit(blobs, category)
}

// Tasks returns a snapshot of the session's conversion tasks in FIFO order.
func (s *Session) Tasks() []jobs.Task {
	return s.scheduler.Tasks()
}

// Task looks up one task by its current id.
func (s *Session) Task(id string) (jobs.Task, bool) {
	return s.scheduler.Task(id)
}

// RetryTask re-queues a failed task.
func (s *Session) RetryTask(id string) error {
	return s.scheduler.Retry(id)
}

// ClearTask removes a finished task from the registry.
func (s *Session) ClearTask(id string) error {
	return s.scheduler.ClearTask(id)
}

// MarkTaskViewed flags a terminal task as seen by the user.
func (s *Session) MarkTaskViewed(id string) error {
	return s.scheduler.MarkViewed(id)
}

// =====================================================
// Account lifecycle
// =====================================================

// SetToken installs a fresh bearer token after login or refresh.
func (s *Session) SetToken(token string) {
	s.client.SetToken(token)
}

// SignOut wipes local state: running pollers are cancelled, the task
// registry is cleared, and the notes and mutation queue of the signed-out
// account are purged. The session stays usable for the next sign-in.
func (s *Session) SignOut() error {
	s.scheduler.Reset()
	s.client.SetToken("")
	if err := s.store.Purge(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to purge local state", err)
	}
	logging.Info("signed out, local state purged", nil)
	return nil
}
