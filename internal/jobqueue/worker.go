package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"coordplane/internal/logger"
)

// poolMetrics are the queue's OTel instruments. Instrument construction
// failures degrade to nil instruments with a warning.
type poolMetrics struct {
	completed metric.Int64Counter
	failed    metric.Int64Counter
	retried   metric.Int64Counter
	duration  metric.Float64Histogram
}

func (q *Queue) initMetrics() *poolMetrics {
	meter := otel.Meter("coordplane/jobqueue")
	m := &poolMetrics{}
	var err error
	if m.completed, err = meter.Int64Counter("jobs_completed_total"); err != nil {
		logger.Soft(q.log, "create counter", err)
	}
	if m.failed, err = meter.Int64Counter("jobs_failed_total"); err != nil {
		logger.Soft(q.log, "create counter", err)
	}
	if m.retried, err = meter.Int64Counter("jobs_retried_total"); err != nil {
		logger.Soft(q.log, "create counter", err)
	}
	if m.duration, err = meter.Float64Histogram("job_duration_seconds"); err != nil {
		logger.Soft(q.log, "create histogram", err)
	}
	return m
}

// RunNext claims and executes at most one job. It returns the finished job
// or nil when the queue had nothing pending.
func (q *Queue) RunNext(ctx context.Context) (*Job, error) {
	claimed, err := q.claimNext()
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return nil, nil
	}
	done, err := q.execute(ctx, *claimed, q.initMetrics())
	if err != nil {
		return nil, err
	}
	return &done, nil
}

// execute runs one claimed job to its next stored state.
func (q *Queue) execute(ctx context.Context, job Job, m *poolMetrics) (Job, error) {
	tracer := otel.Tracer("coordplane/jobqueue")
	spanCtx, span := tracer.Start(ctx, "execute_job",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.channel", job.Channel),
			attribute.String("job.video", job.Video),
			attribute.Int("job.attempts", job.Attempts),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	logPath := q.cfg.JobLogPath(job.ID)
	started := q.now()

	command, err := buildCommand(q.cfg.JobCommand, job.Channel, job.Video)
	if err != nil {
		// Policy violation: terminal, surfaced with the remediation hint,
		// and the job must not be left stuck in running.
		span.RecordError(err)
		if _, _, ferr := q.finish(job.ID, -1, false, err.Error()); ferr != nil {
			logger.Soft(q.log, "fail misconfigured job", ferr, "job_id", job.ID)
		}
		return Job{}, err
	}

	// The execution context is detached from the poll context so graceful
	// drain lets in-flight subprocesses finish; only the wall-clock
	// timeout kills them.
	execCtx, cancel := context.WithTimeout(context.Background(), q.cfg.JobTimeout)
	defer cancel()

	handle, err := q.runtime.Start(execCtx, StartOptions{
		Command: command,
		Env: map[string]string{
			"COORDPLANE_JOB_ID":  job.ID,
			"COORDPLANE_CHANNEL": job.Channel,
			"COORDPLANE_VIDEO":   job.Video,
		},
		LogPath: logPath,
	})
	if err != nil {
		span.RecordError(err)
		return q.settle(spanCtx, m, job, -1, false, fmt.Sprintf("start failed: %v", err), started, logPath)
	}

	res, err := handle.Wait(execCtx)
	if err != nil {
		span.RecordError(err)
		return q.settle(spanCtx, m, job, -1, false, fmt.Sprintf("wait failed: %v", err), started, logPath)
	}

	span.SetAttributes(attribute.Int("job.exit_code", res.ExitCode))
	result := fmt.Sprintf("exit code %d", res.ExitCode)
	if res.TimedOut {
		result = fmt.Sprintf("timed out after %v", q.cfg.JobTimeout)
	}
	return q.settle(spanCtx, m, job, res.ExitCode, res.TimedOut, result, started, logPath)
}

// settle applies the state transition, emits the notification and metrics.
func (q *Queue) settle(ctx context.Context, m *poolMetrics, job Job, exitCode int, timedOut bool, result string, started time.Time, logPath string) (Job, error) {
	updated, label, err := q.finish(job.ID, exitCode, timedOut, result)
	if err != nil {
		return Job{}, err
	}

	elapsed := q.now().Sub(started)
	q.notifier.Notify(updated, label, elapsed, logPath)

	attrs := metric.WithAttributes(attribute.String("channel", updated.Channel))
	switch label {
	case StatusCompleted:
		if m.completed != nil {
			m.completed.Add(ctx, 1, attrs)
		}
	case StatusFailed:
		if m.failed != nil {
			m.failed.Add(ctx, 1, attrs)
		}
	case StatusRetrying:
		if m.retried != nil {
			m.retried.Add(ctx, 1, attrs)
		}
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}

	q.log.Info("job settled",
		"job_id", updated.ID,
		"channel", updated.Channel,
		"video", updated.Video,
		"status", string(label),
		"attempts", updated.Attempts,
		"elapsed", elapsed.String(),
	)
	return updated, nil
}

// RunLoop is the worker pool: up to concurrency jobs in flight, adaptive
// backoff when the queue is empty, graceful drain on cancellation. When
// limit > 0 the loop exits after that many jobs have been executed.
func (q *Queue) RunLoop(ctx context.Context, limit, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	pollInterval := q.cfg.WorkerPollInterval
	if pollInterval <= 0 {
		pollInterval = 1 * time.Second
	}
	maxBackoff := q.cfg.WorkerMaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	q.log.Info("worker pool starting", "concurrency", concurrency, "limit", limit)

	m := q.initMetrics()
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var executed atomic.Int64

	// Channel to signal an immediate non-blocking re-poll.
	pollNow := make(chan struct{}, 1)
	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
			// Already a poll pending.
		}
	}
	triggerPoll()

	currentBackoff := pollInterval

	for {
		if limit > 0 && executed.Load() >= int64(limit) {
			wg.Wait()
			q.log.Info("worker pool reached job limit", "limit", limit)
			return nil
		}

		select {
		case <-ctx.Done():
			q.log.Info("context cancelled, draining running jobs")
			wg.Wait()
			return ctx.Err()

		case <-time.After(currentBackoff):
			triggerPoll()

		case <-pollNow:
			if len(sem) >= concurrency {
				continue
			}

			claimed, err := q.claimNext()
			if err != nil {
				q.log.Error("claim failed", "error", err.Error())
				continue
			}
			if claimed == nil {
				// Empty queue: exponential backoff, capped.
				currentBackoff *= 2
				if currentBackoff > maxBackoff {
					currentBackoff = maxBackoff
				}
				continue
			}

			// Found work: reset backoff and keep polling while slots last.
			currentBackoff = pollInterval
			executed.Add(1)

			sem <- struct{}{}
			wg.Add(1)
			go func(job Job) {
				defer wg.Done()
				defer func() {
					<-sem
					triggerPoll()
				}()
				if _, err := q.execute(ctx, job, m); err != nil {
					q.log.Error("job execution failed", "job_id", job.ID, "error", err.Error())
				}
			}(*claimed)

			if limit <= 0 || executed.Load() < int64(limit) {
				triggerPoll()
			}
		}
	}
}
