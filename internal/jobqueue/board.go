package jobqueue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"coordplane/internal/fsjson"
	"coordplane/internal/logger"
)

// board is the JSONL queue file. Every mutation is: acquire the file's
// critical section, read all rows, mutate in memory, rewrite the whole
// file. No partial-row updates; simple and correct for the concurrency
// model this queue runs under (threads in one process, maybe a second
// process on the same filesystem).
type board struct {
	path string
	log  *slog.Logger
}

// load reads every parseable row. Corrupt rows are warned about and
// dropped; a missing file is an empty queue.
func (b *board) load() ([]Job, error) {
	var jobs []Job
	err := fsjson.ScanLines(b.path, func(line []byte) error {
		var job Job
		if err := json.Unmarshal(line, &job); err != nil {
			logger.Soft(b.log, "drop corrupt queue row", err)
			return nil
		}
		jobs = append(jobs, job)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// save rewrites the whole file via temp-write + rename. Callers hold the
// critical section.
func (b *board) save(jobs []Job) error {
	var buf bytes.Buffer
	for _, job := range jobs {
		line, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job %s: %w", job.ID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write queue temp file: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("rename queue file: %w", err)
	}
	return nil
}

// mutate runs fn over the current rows inside the critical section and
// persists what fn returns. Returning nil rows means "no change".
func (b *board) mutate(fn func(jobs []Job) ([]Job, error)) error {
	return fsjson.WithLock(b.path, func() error {
		jobs, err := b.load()
		if err != nil {
			return err
		}
		out, err := fn(jobs)
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		return b.save(out)
	})
}
