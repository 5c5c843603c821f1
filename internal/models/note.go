// Package models provides data model definitions for the SnapNote client core.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*u = ""
	case string:
		*u = UUID(v)
	case []byte:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// MediaRef references one media asset attached to a note.
type MediaRef struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Note is the local replica of one server-owned note.
//
// A note fetched from the list endpoint carries metadata and at most a cover
// media reference; OriginalText and StructuredData stay empty until the
// detail endpoint has been fetched. Synced reports whether the server has
// confirmed the latest local state.
type Note struct {
	ID             UUID                   `db:"id" json:"id"`
	Title          string                 `db:"title" json:"title"`
	Category       string                 `db:"category" json:"category"`
	Tags           []string               `db:"tags" json:"tags"`
	ImageURL       string                 `db:"image_url" json:"image_url"`
	ImageFilename  string                 `db:"image_filename" json:"image_filename"`
	ImageSize      int64                  `db:"image_size" json:"image_size"`
	OriginalText   string                 `db:"original_text" json:"original_text,omitempty"`
	StructuredData map[string]interface{} `db:"structured_data" json:"structured_data,omitempty"`
	Media          []MediaRef             `db:"media" json:"media,omitempty"`
	IsFavorite     bool                   `db:"is_favorite" json:"is_favorite"`
	IsArchived     bool                   `db:"is_archived" json:"is_archived"`
	CreatedAt      int64                  `db:"created_at" json:"created_at"`
	UpdatedAt      int64                  `db:"updated_at" json:"updated_at"`
	Synced         bool                   `db:"synced" json:"-"`
}

// TableName returns the table name for Note.
func (Note) TableName() string {
	return "notes"
}

// DetailRich reports whether the note carries detail-level content that a
// list-level write must not destroy.
func (n *Note) DetailRich() bool {
	return n.OriginalText != "" || len(n.StructuredData) > 0 || len(n.Media) > 1
}

// ListLevel reports whether the note looks like a list-endpoint summary,
// i.e. it carries no detail payload.
func (n *Note) ListLevel() bool {
	return n.OriginalText == "" && len(n.StructuredData) == 0
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (n *Note) CreatedAtTime() time.Time {
	return time.Unix(n.CreatedAt, 0)
}

// UpdatedAtTime returns the UpdatedAt as time.Time.
func (n *Note) UpdatedAtTime() time.Time {
	return time.Unix(n.UpdatedAt, 0)
}

// Touch updates the UpdatedAt timestamp.
func (n *Note) Touch() {
	n.UpdatedAt = time.Now().Unix()
}

// MarshalTags serializes Tags for a JSON text column.
func (n *Note) MarshalTags() (string, error) {
	if n.Tags == nil {
		return "[]", nil
	}
	b, err := json.Marshal(n.Tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MarshalStructuredData serializes StructuredData for a JSON text column.
func (n *Note) MarshalStructuredData() (string, error) {
	if n.StructuredData == nil {
		return "{}", nil
	}
	b, err := json.Marshal(n.StructuredData)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MarshalMedia serializes Media for a JSON text column.
func (n *Note) MarshalMedia() (string, error) {
	if n.Media == nil {
		return "[]", nil
	}
	b, err := json.Marshal(n.Media)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
