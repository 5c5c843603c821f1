// Package jobs schedules and polls image-to-note conversion jobs.
//
// One scheduler owns all tasks of a session. Submissions run immediately
// while slots are free under the concurrency ceiling and queue otherwise;
// queued tasks are promoted strictly oldest-first as slots free up.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/snapnote-app/core/internal/api"
	apperrors "github.com/snapnote-app/core/internal/errors"
	"github.com/snapnote-app/core/internal/logging"
	"github.com/snapnote-app/core/internal/models"
	"github.com/snapnote-app/core/internal/uuid"
)

// Backend is the slice of the remote API the scheduler needs.
type Backend interface {
	SubmitJob(ctx context.Context, blobs []api.BlobRef, category string) (*api.JobAccepted, error)
	GetJob(ctx context.Context, jobID string) (*api.JobStatus, error)
	GetNote(ctx context.Context, id models.UUID) (*models.Note, error)
}

// NoteCache receives the resulting note of a completed job.
type NoteCache interface {
	Upsert(n *models.Note) error
}

// Task tracks one submitted conversion job through its lifecycle. The ID is
// a client-local temporary id until the server accepts the job, then the
// server's job id; the old id is invalid for lookups from that point on.
type Task struct {
	ID        string
	Inputs    []api.BlobRef
	Tag       string
	Status    Status
	CreatedAt time.Time
	ResultRef models.UUID
	LastError string
	Viewed    bool

	seq int64 // FIFO tiebreaker for tasks created within one clock reading
}

// Config holds scheduler tunables.
type Config struct {
	MaxConcurrent   int
	PollInterval    time.Duration
	MaxPollAttempts int
	DedupWindow     time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrent:   3,
		PollInterval:    2 * time.Second,
		MaxPollAttempts: 45,
		DedupWindow:     5 * time.Second,
	}
}

// Scheduler owns the task registry of one session.
type Scheduler struct {
	backend Backend
	cache   NoteCache
	cfg     Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	tasks   map[string]*Task
	recent  map[string]time.Time // first-input filename -> last submission
	nextSeq int64
}

// NewScheduler creates a Scheduler. Construction happens at session start;
// Shutdown must be called at session end so no poller outlives its session.
func NewScheduler(backend Backend, cache NoteCache, cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		backend: backend,
		cache:   cache,
		cfg:     *cfg,
		ctx:     ctx,
		cancel:  cancel,
		tasks:   make(map[string]*Task),
		recent:  make(map[string]time.Time),
	}
}

// Submit registers a new conversion job for the given input blobs.
// Returns the task id: a temporary id the caller must re-resolve through
// Task after the job is accepted remotely.
//
// A submission whose first input matches one submitted within the
// de-duplication window is rejected with JOB_DUPLICATE; that absorbs
// accidental double-taps and is a user-visible notice, not a failure.
func (s *Scheduler) Submit(inputs []api.BlobRef, tag string) (string, error) {
	if len(inputs) == 0 {
		return "", apperrors.New(apperrors.ErrInvalid, "submission requires at least one input")
	}

	now := time.Now()
	key := inputs[0].Filename

	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.recent[key]; ok && now.Sub(last) < s.cfg.DedupWindow {
		return "", apperrors.Newf(apperrors.ErrJobDuplicate,
			"%s was already submitted moments ago", key)
	}
	s.recent[key] = now
	s.pruneRecentLocked(now)

	task := &Task{
		ID:        uuid.NewTemp(),
		Inputs:    inputs,
		Tag:       tag,
		Status:    StatusQueued,
		CreatedAt: now,
		seq:       s.nextSeq,
	}
	s.nextSeq++
	s.tasks[task.ID] = task

	if s.activeLocked() < s.cfg.MaxConcurrent {
		s.startLocked(task)
	} else {
		logging.Info("task queued, concurrency ceiling reached",
			logging.Fields{"task_id": task.ID, "active": s.activeLocked()})
	}

	return task.ID, nil
}

// Retry re-queues a failed task. It re-enters the normal promotion path and
// does not bypass the concurrency ceiling.
func (s *Scheduler) Retry(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return apperrors.Newf(apperrors.ErrJobNotFound, "no task %s", taskID)
	}
	if task.Status != StatusFailed {
		return apperrors.Newf(apperrors.ErrInvalid,
			"task %s is %s, only failed tasks can be retried", taskID, task.Status)
	}

	task.Status = StatusQueued
	task.LastError = ""
	s.promoteLocked()
	return nil
}

// Task returns a copy of one task by its current id.
func (s *Scheduler) Task(taskID string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Tasks returns copies of all tasks, oldest first.
func (s *Scheduler) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, *task)
	}
	sortTasks(out)
	return out
}

// ActiveCount returns the number of tasks counting against the ceiling.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

// MarkViewed records that the user has seen a terminal task's outcome.
func (s *Scheduler) MarkViewed(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return apperrors.Newf(apperrors.ErrJobNotFound, "no task %s", taskID)
	}
	task.Viewed = true
	return nil
}

// ClearTask removes a terminal task from the registry. Terminal tasks are
// never auto-deleted; this is the caller's explicit acknowledgement.
func (s *Scheduler) ClearTask(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return apperrors.Newf(apperrors.ErrJobNotFound, "no task %s", taskID)
	}
	if !task.Status.Terminal() {
		return apperrors.Newf(apperrors.ErrInvalid,
			"task %s is still %s", taskID, task.Status)
	}
	delete(s.tasks, taskID)
	return nil
}

// Shutdown cancels all pollers and waits for them to stop. Mandatory at
// session end: a stale session's pollers must never write into the next
// session's cache.
func (s *Scheduler) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// Reset cancels all pollers, waits for them to stop, and empties the
// registry. Unlike Shutdown the scheduler stays usable afterwards, so
// sign-out followed by a fresh sign-in reuses the same instance.
func (s *Scheduler) Reset() {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.tasks = make(map[string]*Task)
	s.recent = make(map[string]time.Time)
}

// =====================================================
// internal, s.mu held
// =====================================================

func (s *Scheduler) activeLocked() int {
	count := 0
	for _, task := range s.tasks {
		if task.Status.active() {
			count++
		}
	}
	return count
}

// startLocked moves a queued task into execution. The context is captured
// here, under the lock, so a poller always belongs to the generation of the
// scheduler that started it.
func (s *Scheduler) startLocked(task *Task) {
	task.Status = StatusSubmitting
	s.wg.Add(1)
	go s.run(s.ctx, task)
}

// promoteLocked fills freed slots with queued tasks, oldest first.
func (s *Scheduler) promoteLocked() {
	for s.activeLocked() < s.cfg.MaxConcurrent {
		next := s.oldestQueuedLocked()
		if next == nil {
			return
		}
		logging.Debug("promoting queued task", logging.Fields{"task_id": next.ID})
		s.startLocked(next)
	}
}

func (s *Scheduler) oldestQueuedLocked() *Task {
	var oldest *Task
	for _, task := range s.tasks {
		if task.Status != StatusQueued {
			continue
		}
		if oldest == nil || task.CreatedAt.Before(oldest.CreatedAt) ||
			(task.CreatedAt.Equal(oldest.CreatedAt) && task.seq < oldest.seq) {
			oldest = task
		}
	}
	return oldest
}

func (s *Scheduler) pruneRecentLocked(now time.Time) {
	for key, at := range s.recent {
		if now.Sub(at) >= s.cfg.DedupWindow {
			delete(s.recent, key)
		}
	}
}

func sortTasks(tasks []Task) {
	// Insertion sort: task lists are small (a session's submissions).
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0 && tasks[j].before(&tasks[j-1]); j-- {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
		}
	}
}

func (t *Task) before(other *Task) bool {
	if !t.CreatedAt.Equal(other.CreatedAt) {
		return t.CreatedAt.Before(other.CreatedAt)
	}
	return t.seq < other.seq
}
