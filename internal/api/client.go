// Package api provides the typed HTTP client for the SnapNote backend.
//
// All remote access goes through this package so the rest of the core never
// sees raw HTTP statuses or the server's loosely-typed job status strings.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	apperrors "github.com/snapnote-app/core/internal/errors"
	"github.com/snapnote-app/core/internal/models"
)

// BlobRef is one opaque input blob for a conversion job. The bytes are held
// in memory so a queued submission can be retried after the original caller
// has moved on.
type BlobRef struct {
	Filename    string
	ContentType string
	Data        []byte
}

// JobAccepted is the server's answer to a job submission.
type JobAccepted struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// JobStatus is one poll result for an in-flight job. Status carries the raw
// server vocabulary; callers normalize it at the jobs boundary.
type JobStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	NoteID string `json:"note_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NoteUpdate is the payload for a note update. Nil fields are left unchanged
// server-side.
type NoteUpdate struct {
	Title      *string   `json:"title,omitempty"`
	Category   *string   `json:"category,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
	IsArchived *bool     `json:"is_archived,omitempty"`
}

// Client is the HTTP client for the backend API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client for the given base URL (including the version
// prefix, e.g. https://api.example.com/api/v1) and bearer token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// SetToken replaces the bearer token, e.g. after a refresh by the auth layer.
func (c *Client) SetToken(token string) {
	c.token = token
}

// SubmitJob uploads 1..N input blobs and an optional category hint, creating
// one conversion job on the server.
func (c *Client) SubmitJob(ctx context.Context, blobs []BlobRef, category string) (*JobAccepted, error) {
	if len(blobs) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalid, "job submission requires at least one input")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, blob := range blobs {
		part, err := w.CreateFormFile("files", blob.Filename)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to build multipart body", err)
		}
		if _, err := part.Write(blob.Data); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to write multipart body", err)
		}
	}
	if category != "" {
		if err := w.WriteField("category", category); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to write category field", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to finalize multipart body", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload/image", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp struct {
		Job JobAccepted `json:"job"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if resp.Job.ID == "" {
		return nil, apperrors.New(apperrors.ErrRemote, "server accepted job without an id")
	}
	return &resp.Job, nil
}

// GetJob queries the current status of one conversion job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*JobStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/upload/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}

	var status JobStatus
	if err := c.do(req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListNotes fetches the note summaries for the library screen. Summaries
// carry metadata only; detail payloads come from GetNote.
func (c *Client) ListNotes(ctx context.Context) ([]*models.Note, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/library/notes", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Notes []*models.Note `json:"notes"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Notes, nil
}

// GetNote fetches one full note, detail payload included.
func (c *Client) GetNote(ctx context.Context, id models.UUID) (*models.Note, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/library/notes/"+id.String(), nil)
	if err != nil {
		return nil, err
	}

	var note models.Note
	if err := c.do(req, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// UpdateNote applies an update to one note.
func (c *Client) UpdateNote(ctx context.Context, id models.UUID, update *NoteUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode update", err)
	}

	req, err := c.newRequest(ctx, http.MethodPut, "/library/notes/"+id.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, nil)
}

// DeleteNote deletes one note.
func (c *Client) DeleteNote(ctx context.Context, id models.UUID) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/library/notes/"+id.String(), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// SetFavorite sets the favorite flag on one note. The desired value is sent
// explicitly so replaying a queue of flag changes stays idempotent.
func (c *Client) SetFavorite(ctx context.Context, id models.UUID, favorite bool) error {
	body, err := json.Marshal(map[string]bool{"is_favorite": favorite})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode favorite payload", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/library/notes/"+id.String()+"/favorite", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, nil)
}

// Ping probes reachability of the backend. Used by the connectivity monitor.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// newRequest builds an authenticated request for an API path.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do executes the request and decodes the JSON response into out when out is
// non-nil. HTTP statuses are mapped onto coded errors here and nowhere else.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to decode
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.Newf(apperrors.ErrNotFound, "%s %s: not found", req.Method, req.URL.Path)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperrors.Newf(apperrors.ErrUnauthorized, "%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return apperrors.Newf(apperrors.ErrValidation, "%s %s: status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, readErrorDetail(resp.Body))
	default:
		return apperrors.Newf(apperrors.ErrRemote, "%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.ErrRemote, "failed to decode response", err)
	}
	return nil
}

// readErrorDetail pulls the server's error detail out of a 4xx body, if any.
func readErrorDetail(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(body) == 0 {
		return "no detail"
	}
	var detail struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &detail) == nil && detail.Detail != "" {
		return detail.Detail
	}
	return string(body)
}

// IsNotFound reports whether err is the remote's not-found answer. The replay
// engine treats this as success-by-conflict-resolution.
func IsNotFound(err error) bool {
	return apperrors.Is(err, apperrors.ErrNotFound)
}

// IsTransient reports whether err is worth retrying: transport failures and
// server-side errors, but not validation or auth rejections.
func IsTransient(err error) bool {
	return apperrors.Is(err, apperrors.ErrNetwork) || apperrors.Is(err, apperrors.ErrRemote)
}
