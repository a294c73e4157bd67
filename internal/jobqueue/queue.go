package jobqueue

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"coordplane/internal/config"
	"coordplane/internal/lockreg"
	"coordplane/internal/logger"
)

// ErrNotFound is returned for an unknown job id.
type ErrNotFound struct{ ID string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("job %s not found", e.ID) }

// Queue owns the job board and its lifecycle operations.
type Queue struct {
	cfg      *config.Config
	board    *board
	locks    *lockreg.Registry
	notifier *Notifier
	runtime  Runtime
	log      *slog.Logger
	now      func() time.Time
}

// New wires a queue from config. locks may be nil (lock checks skipped);
// runtime defaults to subprocess execution.
func New(cfg *config.Config, locks *lockreg.Registry, log *slog.Logger) *Queue {
	if log == nil {
		log = logger.New()
	}
	return &Queue{
		cfg:      cfg,
		board:    &board{path: cfg.JobQueuePath(), log: log},
		locks:    locks,
		notifier: NewNotifier(cfg.WebhookURL, log),
		runtime:  &ExecRuntime{},
		log:      log,
		now:      time.Now,
	}
}

// Add enqueues a new pending job and returns it.
func (q *Queue) Add(channel, video string, maxRetries int) (Job, error) {
	if channel == "" || video == "" {
		return Job{}, fmt.Errorf("channel and video are required")
	}
	if maxRetries < 0 {
		return Job{}, fmt.Errorf("max_retries must be >= 0")
	}
	now := q.now().UTC()
	job := Job{
		SchemaVersion: SchemaVersion,
		ID:            uuid.NewString(),
		Channel:       channel,
		Video:         video,
		Status:        StatusPending,
		MaxRetries:    maxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := q.board.mutate(func(jobs []Job) ([]Job, error) {
		return append(jobs, job), nil
	})
	if err != nil {
		return Job{}, err
	}
	return job, nil
}

// List returns jobs, optionally filtered by status ("" for all).
func (q *Queue) List(status Status) ([]Job, error) {
	jobs, err := q.board.load()
	if err != nil {
		return nil, err
	}
	if status == "" {
		return jobs, nil
	}
	out := jobs[:0]
	for _, job := range jobs {
		if job.Status == status {
			out = append(out, job)
		}
	}
	return out, nil
}

// Get returns one job by id.
func (q *Queue) Get(id string) (Job, error) {
	jobs, err := q.board.load()
	if err != nil {
		return Job{}, err
	}
	for _, job := range jobs {
		if job.ID == id {
			return job, nil
		}
	}
	return Job{}, &ErrNotFound{ID: id}
}

// Cancel moves a job to canceled. Only a pending job can be canceled; a
// running one must have its subprocess killed externally.
func (q *Queue) Cancel(id string) (Job, error) {
	return q.update(id, func(job *Job) error {
		if job.Status != StatusPending {
			return fmt.Errorf("job %s is %s; only pending jobs can be canceled", id, job.Status)
		}
		job.Status = StatusCanceled
		return nil
	})
}

// Retry is the operator action that requeues a terminally failed (or
// canceled) job with a fresh attempt budget.
func (q *Queue) Retry(id string) (Job, error) {
	return q.update(id, func(job *Job) error {
		if job.Status != StatusFailed && job.Status != StatusCanceled {
			return fmt.Errorf("job %s is %s; only failed or canceled jobs can be retried", id, job.Status)
		}
		job.Status = StatusPending
		job.Attempts = 0
		job.StartedAt = nil
		job.Result = ""
		return nil
	})
}

// ForceStatus is the administrative escape hatch for manual recovery. It
// bypasses the normal transition rules but only toward pending or failed.
func (q *Queue) ForceStatus(id string, status Status) (Job, error) {
	if !forceable(status) {
		return Job{}, fmt.Errorf("status %q cannot be forced; only pending or failed (got a job into a weird state? purge and re-add)", status)
	}
	return q.update(id, func(job *Job) error {
		job.Status = status
		if status == StatusPending {
			job.StartedAt = nil
		}
		return nil
	})
}

// Purge removes terminal jobs whose last update is older than olderThan
// and returns how many were dropped.
func (q *Queue) Purge(olderThan time.Duration) (int, error) {
	cutoff := q.now().UTC().Add(-olderThan)
	removed := 0
	err := q.board.mutate(func(jobs []Job) ([]Job, error) {
		kept := jobs[:0]
		for _, job := range jobs {
			if job.Status.Terminal() && job.UpdatedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, job)
		}
		if removed == 0 {
			return nil, nil
		}
		return kept, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// GC forces jobs stuck in running past the threshold to failed. The
// worker pool runs as goroutines in one process; if that process dies its
// running jobs are abandoned, and this pass is the only reclamation.
// The queue file is checked against the advisory lock registry first.
func (q *Queue) GC(threshold time.Duration) ([]Job, error) {
	if err := q.guard(); err != nil {
		return nil, err
	}

	cutoff := q.now().UTC().Add(-threshold)
	var reclaimed []Job
	err := q.board.mutate(func(jobs []Job) ([]Job, error) {
		changed := false
		for i := range jobs {
			job := &jobs[i]
			if job.Status != StatusRunning {
				continue
			}
			if job.StartedAt == nil || job.StartedAt.Before(cutoff) {
				job.Status = StatusFailed
				job.Result = fmt.Sprintf("reclaimed: running since %v exceeded gc threshold %v", job.StartedAt, threshold)
				job.UpdatedAt = q.now().UTC()
				reclaimed = append(reclaimed, *job)
				changed = true
			}
		}
		if !changed {
			return nil, nil
		}
		return jobs, nil
	})
	if err != nil {
		return nil, err
	}
	for _, job := range reclaimed {
		q.notifier.Notify(job, StatusFailed, 0, q.cfg.JobLogPath(job.ID))
	}
	return reclaimed, nil
}

// guard consults the advisory lock registry before mutating the queue
// file. Advisory means exactly this: the check is here, not in the kernel.
func (q *Queue) guard() error {
	if q.locks == nil {
		return nil
	}
	// Lock scopes are declared relative to the coordination root.
	rel, err := filepath.Rel(q.cfg.Root, q.cfg.JobQueuePath())
	if err != nil {
		rel = q.cfg.JobQueuePath()
	}
	blocking, err := q.locks.Blocking(rel)
	if err != nil {
		return fmt.Errorf("consult lock registry: %w", err)
	}
	if blocking != nil {
		return &ErrBlocked{LockID: blocking.ID, CreatedBy: blocking.CreatedBy, Scopes: blocking.Scopes}
	}
	return nil
}

// claimNext atomically claims the first pending job, moving it to running.
// Claims are serialized by the critical section, so no two workers get the
// same job; order is approximately FIFO by file position.
func (q *Queue) claimNext() (*Job, error) {
	var claimed *Job
	err := q.board.mutate(func(jobs []Job) ([]Job, error) {
		for i := range jobs {
			if jobs[i].Status != StatusPending {
				continue
			}
			now := q.now().UTC()
			jobs[i].Status = StatusRunning
			jobs[i].StartedAt = &now
			jobs[i].UpdatedAt = now
			claimed = &jobs[i]
			return jobs, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return nil, nil
	}
	job := *claimed
	return &job, nil
}

// finish applies the post-execution transition for a job that was running
// and returns the updated row plus the notification label.
func (q *Queue) finish(id string, exitCode int, timedOut bool, result string) (Job, Status, error) {
	var label Status
	job, err := q.update(id, func(job *Job) error {
		now := q.now().UTC()
		job.UpdatedAt = now
		job.Result = result

		switch {
		case timedOut:
			// Timeout is terminal regardless of remaining retry budget.
			job.Status = StatusFailed
			job.Attempts++
			label = StatusFailed
		case exitCode == 0:
			job.Status = StatusCompleted
			label = StatusCompleted
		default:
			job.Attempts++
			if job.Attempts > job.MaxRetries {
				job.Status = StatusFailed
				label = StatusFailed
			} else {
				// Requeued: stored status is pending, the notification
				// carries the retrying label.
				job.Status = StatusPending
				job.StartedAt = nil
				label = StatusRetrying
			}
		}
		return nil
	})
	if err != nil {
		return Job{}, "", err
	}
	return job, label, nil
}

// update mutates a single job by id inside the critical section.
func (q *Queue) update(id string, fn func(job *Job) error) (Job, error) {
	var updated Job
	found := false
	err := q.board.mutate(func(jobs []Job) ([]Job, error) {
		for i := range jobs {
			if jobs[i].ID != id {
				continue
			}
			found = true
			if err := fn(&jobs[i]); err != nil {
				return nil, err
			}
			jobs[i].UpdatedAt = q.now().UTC()
			updated = jobs[i]
			return jobs, nil
		}
		return nil, nil
	})
	if err != nil {
		return Job{}, err
	}
	if !found {
		return Job{}, &ErrNotFound{ID: id}
	}
	return updated, nil
}
