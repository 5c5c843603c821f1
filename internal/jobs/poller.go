// Package jobs schedules and polls image-to-note conversion jobs.
package jobs

import (
	"context"
	"time"

	apperrors "github.com/snapnote-app/core/internal/errors"
	"github.com/snapnote-app/core/internal/logging"
	"github.com/snapnote-app/core/internal/models"
)

// run drives one task from submission to a terminal state. Each executing
// task has its own goroutine and its own polling cadence; there is no
// shared tick.
func (s *Scheduler) run(ctx context.Context, task *Task) {
	defer s.wg.Done()

	accepted, err := s.backend.SubmitJob(ctx, task.Inputs, task.Tag)
	if err != nil {
		logging.Error("job submission failed", err, logging.Fields{"task_id": task.ID})
		s.fail(task, err)
		return
	}

	// The server accepted the job: rewrite the task id from the temporary
	// client id to the server-assigned one. The old id is dead from here.
	s.mu.Lock()
	delete(s.tasks, task.ID)
	oldID := task.ID
	task.ID = accepted.ID
	task.Status = StatusInProgress
	s.tasks[task.ID] = task
	s.mu.Unlock()

	logging.Info("job accepted", logging.Fields{
		"task_id": task.ID, "temp_id": oldID, "status": accepted.Status,
	})

	s.poll(ctx, task)
}

// poll queries the job status every PollInterval until a terminal remote
// status or the attempt ceiling. A transient query failure never fails the
// task by itself; it just burns one attempt.
func (s *Scheduler) poll(ctx context.Context, task *Task) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for attempts := 0; ; {
		select {
		case <-ctx.Done():
			// Session ended; leave the task as-is and stop quietly.
			return
		case <-ticker.C:
		}

		attempts++

		remote, err := s.backend.GetJob(ctx, task.ID)
		if err != nil {
			logging.Debug("poll attempt failed", logging.Fields{
				"task_id": task.ID, "attempt": attempts, "error": err.Error(),
			})
			if attempts >= s.cfg.MaxPollAttempts {
				s.fail(task, s.timeoutError(attempts))
				return
			}
			continue
		}

		switch NormalizeRemoteStatus(remote.Status) {
		case StatusCompleted:
			s.complete(ctx, task, models.UUID(remote.NoteID))
			return
		case StatusFailed:
			reason := remote.Error
			if reason == "" {
				reason = "job failed remotely"
			}
			s.fail(task, apperrors.New(apperrors.ErrJobFailed, reason))
			return
		default:
			if attempts >= s.cfg.MaxPollAttempts {
				s.fail(task, s.timeoutError(attempts))
				return
			}
		}
	}
}

func (s *Scheduler) timeoutError(attempts int) error {
	return apperrors.Newf(apperrors.ErrJobTimeout,
		"no terminal status after %d polls", attempts)
}

// complete fetches the produced note, hands it to the cache, and finishes
// the task. A cache write failure degrades to a log entry: losing a cache
// write is recoverable, losing job progress is not.
func (s *Scheduler) complete(ctx context.Context, task *Task, noteID models.UUID) {
	if noteID != "" {
		note, err := s.backend.GetNote(ctx, noteID)
		if err != nil {
			logging.Error("failed to fetch completed note", err, logging.Fields{
				"task_id": task.ID, "note_id": noteID,
			})
		} else if err := s.cache.Upsert(note); err != nil {
			logging.Error("failed to cache completed note", err, logging.Fields{
				"task_id": task.ID, "note_id": noteID,
			})
		}
	}

	s.mu.Lock()
	task.Status = StatusCompleted
	task.ResultRef = noteID
	s.promoteLocked()
	s.mu.Unlock()

	logging.Info("job completed", logging.Fields{"task_id": task.ID, "note_id": noteID})
}

// fail finishes the task with an error and frees its slot.
func (s *Scheduler) fail(task *Task, err error) {
	s.mu.Lock()
	task.Status = StatusFailed
	task.LastError = err.Error()
	s.promoteLocked()
	s.mu.Unlock()
}
