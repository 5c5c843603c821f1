// Package db provides CRUD repository operations over the local store.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/snapnote-app/core/internal/errors"
	"github.com/snapnote-app/core/internal/models"
)

// Store provides CRUD operations for cached notes and the durable mutation
// queue. Statements are prepared on first use and cached for reuse.
type Store struct {
	db        *sql.DB
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewStore creates a new Store instance over an opened database.
func NewStore(db *DB) *Store {
	return &Store{db: db.DB}
}

// prepareStmt gets or creates a prepared statement from the cache.
func (s *Store) prepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := s.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate.
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (s *Store) Close() error {
	var firstErr error
	s.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// Note Operations
// =====================================================

const noteColumns = `id, title, category, tags, image_url, image_filename,
	image_size, original_text, structured_data, media, is_favorite,
	is_archived, created_at, updated_at, synced`

// UpsertNote inserts or fully replaces a cached note.
func (s *Store) UpsertNote(n *models.Note) error {
	tags, err := n.MarshalTags()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to encode tags", err)
	}
	structured, err := n.MarshalStructuredData()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to encode structured data", err)
	}
	media, err := n.MarshalMedia()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to encode media", err)
	}

	query := `
	INSERT INTO notes (` + noteColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		category = excluded.category,
		tags = excluded.tags,
		image_url = excluded.image_url,
		image_filename = excluded.image_filename,
		image_size = excluded.image_size,
		original_text = excluded.original_text,
		structured_data = excluded.structured_data,
		media = excluded.media,
		is_favorite = excluded.is_favorite,
		is_archived = excluded.is_archived,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		synced = excluded.synced
	`
	_, err = s.db.Exec(query, n.ID, n.Title, n.Category, tags, n.ImageURL,
		n.ImageFilename, n.ImageSize, n.OriginalText, structured, media,
		n.IsFavorite, n.IsArchived, n.CreatedAt, n.UpdatedAt, n.Synced)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to upsert note", err)
	}
	return nil
}

// GetNote retrieves a cached note by id.
func (s *Store) GetNote(id models.UUID) (*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE id = ?`
	stmt, err := s.prepareStmt(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to prepare note query", err)
	}

	n, err := scanNote(stmt.QueryRow(id))
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrNoteNotFound, "note %s not in cache", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to get note", err)
	}
	return n, nil
}

// ListNotes returns all cached notes ordered by most recently updated first.
func (s *Store) ListNotes() ([]*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes ORDER BY updated_at DESC, id`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list notes", err)
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan note", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// ListFavoriteNotes returns the cached notes flagged as favorites, most
// recently updated first.
func (s *Store) ListFavoriteNotes() ([]*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE is_favorite = 1 ORDER BY updated_at DESC, id`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list favorites", err)
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan note", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// ListNoteIDs returns the id and synced flag of every cached note. Used by
// the reconciler to detect server-confirmed deletions during a bulk merge.
func (s *Store) ListNoteIDs() (map[models.UUID]bool, error) {
	rows, err := s.db.Query("SELECT id, synced FROM notes")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list note ids", err)
	}
	defer rows.Close()

	ids := make(map[models.UUID]bool)
	for rows.Next() {
		var id models.UUID
		var synced bool
		if err := rows.Scan(&id, &synced); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan note id", err)
		}
		ids[id] = synced
	}
	return ids, rows.Err()
}

// DeleteNote removes a cached note. Deleting an absent note is not an error.
func (s *Store) DeleteNote(id models.UUID) error {
	if _, err := s.db.Exec("DELETE FROM notes WHERE id = ?", id); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete note", err)
	}
	return nil
}

// SetNoteSynced flips the synced flag for one note.
func (s *Store) SetNoteSynced(id models.UUID, synced bool) error {
	res, err := s.db.Exec("UPDATE notes SET synced = ? WHERE id = ?", synced, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to update synced flag", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return apperrors.Newf(apperrors.ErrNoteNotFound, "note %s not in cache", id)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanNote.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNote(row scanner) (*models.Note, error) {
	var n models.Note
	var tags, structured, media string
	err := row.Scan(&n.ID, &n.Title, &n.Category, &tags, &n.ImageURL,
		&n.ImageFilename, &n.ImageSize, &n.OriginalText, &structured, &media,
		&n.IsFavorite, &n.IsArchived, &n.CreatedAt, &n.UpdatedAt, &n.Synced)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		return nil, fmt.Errorf("corrupt tags column for note %s: %w", n.ID, err)
	}
	if err := json.Unmarshal([]byte(structured), &n.StructuredData); err != nil {
		return nil, fmt.Errorf("corrupt structured_data column for note %s: %w", n.ID, err)
	}
	if err := json.Unmarshal([]byte(media), &n.Media); err != nil {
		return nil, fmt.Errorf("corrupt media column for note %s: %w", n.ID, err)
	}
	if len(n.StructuredData) == 0 {
		n.StructuredData = nil
	}
	return &n, nil
}

// =====================================================
// Mutation Queue Operations
// =====================================================

// EnqueueMutation appends one durable mutation to the queue.
func (s *Store) EnqueueMutation(kind models.MutationKind, targetID models.UUID, payload interface{}) (*models.QueuedMutation, error) {
	if !kind.Valid() {
		return nil, apperrors.Newf(apperrors.ErrInvalid, "unknown mutation kind %q", kind)
	}

	raw := json.RawMessage("{}")
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to encode mutation payload", err)
		}
		raw = b
	}

	m := &models.QueuedMutation{
		Kind:      kind,
		TargetID:  targetID,
		Payload:   raw,
		CreatedAt: time.Now().Unix(),
	}

	query := `INSERT INTO mutation_queue (kind, target_id, payload, created_at, retry_count)
			  VALUES (?, ?, ?, ?, 0)`
	res, err := s.db.Exec(query, m.Kind, m.TargetID, string(m.Payload), m.CreatedAt)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to enqueue mutation", err)
	}

	m.ID, err = res.LastInsertId()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to read mutation id", err)
	}
	return m, nil
}

// ListMutations returns all queued mutations in replay order: creation time
// ascending, insert id breaking ties within the same second.
func (s *Store) ListMutations() ([]*models.QueuedMutation, error) {
	query := `SELECT id, kind, target_id, payload, created_at, retry_count
			  FROM mutation_queue ORDER BY created_at, id`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list mutations", err)
	}
	defer rows.Close()

	var mutations []*models.QueuedMutation
	for rows.Next() {
		var m models.QueuedMutation
		var payload string
		if err := rows.Scan(&m.ID, &m.Kind, &m.TargetID, &payload, &m.CreatedAt, &m.RetryCount); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan mutation", err)
		}
		m.Payload = json.RawMessage(payload)
		mutations = append(mutations, &m)
	}
	return mutations, rows.Err()
}

// DeleteMutation removes one mutation after the server confirmed it (or the
// replay engine resolved it as moot).
func (s *Store) DeleteMutation(id int64) error {
	if _, err := s.db.Exec("DELETE FROM mutation_queue WHERE id = ?", id); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to delete mutation", err)
	}
	return nil
}

// IncrementMutationRetry bumps the retry counter after a transient failure.
func (s *Store) IncrementMutationRetry(id int64) error {
	if _, err := s.db.Exec("UPDATE mutation_queue SET retry_count = retry_count + 1 WHERE id = ?", id); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to increment retry count", err)
	}
	return nil
}

// CountPendingMutations returns the number of queued mutations, for the
// "N changes pending sync" badge.
func (s *Store) CountPendingMutations() (int, error) {
	stmt, err := s.prepareStmt("SELECT COUNT(*) FROM mutation_queue")
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to prepare count query", err)
	}
	var count int
	if err := stmt.QueryRow().Scan(&count); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to count mutations", err)
	}
	return count, nil
}

// ResetAbandonedMutations zeroes the retry counter on mutations that exceeded
// the retry ceiling, making them eligible for the next replay pass. Returns
// the number of mutations reset.
func (s *Store) ResetAbandonedMutations(maxRetries int) (int, error) {
	res, err := s.db.Exec("UPDATE mutation_queue SET retry_count = 0 WHERE retry_count >= ?", maxRetries)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to reset mutations", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to read reset count", err)
	}
	return int(affected), nil
}

// =====================================================
// Session Teardown
// =====================================================

// Purge deletes all cached notes and queued mutations. Called on sign-out and
// account switch so the next session starts from an empty replica.
func (s *Store) Purge() error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to begin purge", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM notes"); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to purge notes", err)
	}
	if _, err := tx.Exec("DELETE FROM mutation_queue"); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to purge mutation queue", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to commit purge", err)
	}
	return nil
}
