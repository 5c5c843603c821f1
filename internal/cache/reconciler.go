// Package cache reconciles fetched remote data into the local store.
//
// Its one hard rule: data of lower fetch fidelity must never destroy cached
// data of higher fidelity. A background list refresh updating a note the user
// has already opened in full must not blank out the detail payload.
package cache

import (
	"github.com/snapnote-app/core/internal/db"
	apperrors "github.com/snapnote-app/core/internal/errors"
	"github.com/snapnote-app/core/internal/logging"
	"github.com/snapnote-app/core/internal/models"
)

// Reconciler merges remote reads into the local note store.
type Reconciler struct {
	store *db.Store
}

// NewReconciler creates a Reconciler over the local store.
func NewReconciler(store *db.Store) *Reconciler {
	return &Reconciler{store: store}
}

// Upsert writes one note fetched at detail fidelity (or produced by a
// completed job). Full replace: detail data is the richest we ever hold.
func (r *Reconciler) Upsert(n *models.Note) error {
	n.Synced = true
	if err := r.store.UpsertNote(n); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to cache note", err)
	}
	return nil
}

// Merge reconciles a list-level fetch into the store.
//
// Per incoming note: if the cached copy is detail-rich and the incoming one
// is list-level, only metadata is overwritten; otherwise the incoming note
// replaces the cached one. Cached notes absent from the incoming list are
// deleted only when synced; an unsynced note's absence from a stale list is
// not evidence of remote deletion.
//
// Individual note failures are logged and skipped so one corrupt row cannot
// abort a whole refresh.
func (r *Reconciler) Merge(incoming []*models.Note) error {
	cached, err := r.store.ListNoteIDs()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to snapshot cache", err)
	}

	present := make(map[models.UUID]bool, len(incoming))
	for _, n := range incoming {
		present[n.ID] = true
		if err := r.mergeOne(n); err != nil {
			logging.Error("failed to merge note", err, logging.Fields{"note_id": n.ID})
		}
	}

	// Server-confirmed absence: synced notes missing from the list are gone.
	for id, synced := range cached {
		if present[id] || !synced {
			continue
		}
		if err := r.store.DeleteNote(id); err != nil {
			logging.Error("failed to drop deleted note", err, logging.Fields{"note_id": id})
			continue
		}
		logging.Debug("dropped remotely deleted note", logging.Fields{"note_id": id})
	}

	return nil
}

// mergeOne applies the fidelity rule to a single incoming note.
func (r *Reconciler) mergeOne(incoming *models.Note) error {
	existing, err := r.store.GetNote(incoming.ID)
	if apperrors.Is(err, apperrors.ErrNoteNotFound) {
		incoming.Synced = true
		return r.store.UpsertNote(incoming)
	}
	if err != nil {
		return err
	}

	if existing.DetailRich() && incoming.ListLevel() {
		merged := r.partialUpdate(existing, incoming)
		return r.store.UpsertNote(merged)
	}

	incoming.Synced = true
	return r.store.UpsertNote(incoming)
}

// partialUpdate overwrites metadata from the incoming summary while leaving
// the detail payload, and the larger media set, untouched.
func (r *Reconciler) partialUpdate(existing, incoming *models.Note) *models.Note {
	merged := *existing
	merged.Title = incoming.Title
	merged.Category = incoming.Category
	merged.Tags = incoming.Tags
	merged.ImageURL = incoming.ImageURL
	merged.ImageFilename = incoming.ImageFilename
	merged.ImageSize = incoming.ImageSize
	merged.IsFavorite = incoming.IsFavorite
	merged.IsArchived = incoming.IsArchived
	merged.CreatedAt = incoming.CreatedAt
	merged.UpdatedAt = incoming.UpdatedAt

	if len(incoming.Media) > len(existing.Media) {
		merged.Media = incoming.Media
	}

	// An unsynced note still has mutations queued for it; a list refresh
	// does not change that.
	merged.Synced = existing.Synced

	return &merged
}
