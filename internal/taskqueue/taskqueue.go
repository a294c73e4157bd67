// Package taskqueue is the content-addressed dedup queue. Expensive calls
// are memoized by content hash; on a cache miss the caller gets a
// Suspended outcome and an external agent fulfills the work later.
// Re-running the original call is how the caller resumes.
package taskqueue

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coordplane/internal/config"
	"coordplane/internal/fsjson"
	"coordplane/internal/logger"
	"coordplane/pkg/api"
)

// SchemaVersion is stamped on every persisted task record.
const SchemaVersion = 1

// Message is one element of the semantic payload being memoized.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Pending is the record of a task awaiting external fulfillment.
type Pending struct {
	SchemaVersion int                    `json:"schema_version"`
	ID            string                 `json:"id"`
	Task          string                 `json:"task"`
	Messages      []Message              `json:"messages"`
	Options       map[string]any         `json:"options,omitempty"`
	RunbookPath   string                 `json:"runbook_path"`
	ResultPath    string                 `json:"result_path"`
	CreatedAt     time.Time              `json:"created_at"`
	ClaimedBy     string                 `json:"claimed_by,omitempty"`
	Resume        api.ResumeInstructions `json:"resume"`
}

// Result is the immutable fulfillment of a task id.
type Result struct {
	SchemaVersion int       `json:"schema_version"`
	ID            string    `json:"id"`
	Content       string    `json:"content"`
	CompletedBy   string    `json:"completed_by"`
	CompletedAt   time.Time `json:"completed_at"`
	Notes         string    `json:"notes,omitempty"`
}

// OutcomeKind discriminates the Resolve sum type.
type OutcomeKind string

const (
	// OutcomeHit means a cached result existed.
	OutcomeHit OutcomeKind = "hit"
	// OutcomeSuspended means a pending record was written (or reused) and
	// the caller should stop here; an external agent finishes the work.
	// This is a deliberate control signal, not an error.
	OutcomeSuspended OutcomeKind = "suspended"
	// OutcomePassthrough means interception is disabled and the caller
	// should do the work itself.
	OutcomePassthrough OutcomeKind = "passthrough"
)

// PendingRef carries everything a suspended caller needs to resume later.
type PendingRef struct {
	ID          string
	PendingPath string
	ResultPath  string
	Resume      api.ResumeInstructions
}

// Outcome is the tagged result of Resolve. Exactly one of Result and
// Pending is set, matching Kind.
type Outcome struct {
	Kind    OutcomeKind
	Result  *Result
	Pending *PendingRef
}

// Queue resolves work against the pending/results/completed directories.
type Queue struct {
	cfg *config.Config
	log *slog.Logger
}

// New returns a queue bound to cfg's directories.
func New(cfg *config.Config, log *slog.Logger) *Queue {
	if log == nil {
		log = logger.New()
	}
	return &Queue{cfg: cfg, log: log}
}

// Resolve memoizes one unit of work. Cache hit returns the stored result;
// cache miss writes (or reuses) a pending record and reports Suspended.
func (q *Queue) Resolve(task string, messages []Message, options map[string]any) (Outcome, error) {
	if !q.cfg.TaskIntercept {
		return Outcome{Kind: OutcomePassthrough}, nil
	}

	id, err := ComputeTaskID(task, messages, options)
	if err != nil {
		return Outcome{}, err
	}

	resultPath := q.resultPath(id)
	var result Result
	err = fsjson.Read(resultPath, &result)
	if err == nil {
		return Outcome{Kind: OutcomeHit, Result: &result}, nil
	}
	if !fsjson.IsAbsent(err) {
		return Outcome{}, err
	}

	pendingPath := q.pendingPath(id)
	pending, err := q.ensurePending(id, pendingPath, resultPath, task, messages, options)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Kind: OutcomeSuspended,
		Pending: &PendingRef{
			ID:          id,
			PendingPath: pendingPath,
			ResultPath:  resultPath,
			Resume:      pending.Resume,
		},
	}, nil
}

// ensurePending writes a fresh pending record unless a well-formed one is
// already in place. A parseable existing record is reused verbatim so that
// claimed_by metadata set by an agent survives re-resolves; a corrupt one
// is regenerated with a warning.
func (q *Queue) ensurePending(id, pendingPath, resultPath, task string, messages []Message, options map[string]any) (Pending, error) {
	var existing Pending
	err := fsjson.Read(pendingPath, &existing)
	switch {
	case err == nil && existing.ID == id:
		return existing, nil
	case err == nil:
		logger.Soft(q.log, "regenerate mismatched pending record", fmt.Errorf("record id %q != %q", existing.ID, id))
	case errors.Is(err, fsjson.ErrCorrupt):
		logger.Soft(q.log, "regenerate corrupt pending record", err, "task_id", id)
	case !fsjson.IsAbsent(err):
		return Pending{}, err
	}

	runbook, err := q.selectRunbook(task)
	if err != nil {
		return Pending{}, err
	}

	pending := Pending{
		SchemaVersion: SchemaVersion,
		ID:            id,
		Task:          task,
		Messages:      messages,
		Options:       options,
		RunbookPath:   runbook,
		ResultPath:    resultPath,
		CreatedAt:     time.Now().UTC(),
		Resume: api.ResumeInstructions{
			SubmitCommand: fmt.Sprintf("coordctl task complete %s --file <result-file>", id),
			ResultPath:    resultPath,
			ResumeHint:    "re-run the original invocation; it returns the cached result once " + resultPath + " exists",
		},
	}
	if err := fsjson.WriteAtomic(pendingPath, pending); err != nil {
		return Pending{}, fmt.Errorf("write pending record: %w", err)
	}
	return pending, nil
}

// WriteResult records the fulfillment for id and archives the pending
// record. The archive move is best-effort: its failure never invalidates
// the written result.
func (q *Queue) WriteResult(id, content, completedBy, notes string) (Result, error) {
	if id == "" {
		return Result{}, fmt.Errorf("task id is required")
	}
	resultPath := q.resultPath(id)

	var existing Result
	if err := fsjson.Read(resultPath, &existing); err == nil {
		return Result{}, fmt.Errorf("result for %s already exists (completed by %s); results are immutable", id, existing.CompletedBy)
	} else if !fsjson.IsAbsent(err) {
		return Result{}, err
	}

	result := Result{
		SchemaVersion: SchemaVersion,
		ID:            id,
		Content:       content,
		CompletedBy:   completedBy,
		CompletedAt:   time.Now().UTC(),
		Notes:         notes,
	}
	if err := fsjson.WriteAtomic(resultPath, result); err != nil {
		return Result{}, fmt.Errorf("write result: %w", err)
	}

	if err := q.archivePending(id); err != nil {
		logger.Soft(q.log, "archive pending record", err, "task_id", id)
	}
	return result, nil
}

func (q *Queue) archivePending(id string) error {
	src := q.pendingPath(id)
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	dst := filepath.Join(q.cfg.CompletedDir(), id+".json")
	if err := os.MkdirAll(q.cfg.CompletedDir(), 0o755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

// GetPending loads one pending record by id.
func (q *Queue) GetPending(id string) (Pending, error) {
	var p Pending
	if err := fsjson.Read(q.pendingPath(id), &p); err != nil {
		return Pending{}, err
	}
	return p, nil
}

// GetResult loads one result by id.
func (q *Queue) GetResult(id string) (Result, error) {
	var r Result
	if err := fsjson.Read(q.resultPath(id), &r); err != nil {
		return Result{}, err
	}
	return r, nil
}

// Claim stamps claimed_by on a pending record so other agents see it is
// being worked.
func (q *Queue) Claim(id, agent string) (Pending, error) {
	p, err := q.GetPending(id)
	if err != nil {
		return Pending{}, err
	}
	p.ClaimedBy = agent
	if err := fsjson.WriteAtomic(q.pendingPath(id), p); err != nil {
		return Pending{}, fmt.Errorf("claim pending record: %w", err)
	}
	return p, nil
}

// ListPending returns every parseable pending record, skipping corrupt
// ones with a warning.
func (q *Queue) ListPending() ([]Pending, error) {
	ids, err := idsIn(q.cfg.PendingDir())
	if err != nil {
		return nil, err
	}
	out := make([]Pending, 0, len(ids))
	for _, id := range ids {
		p, err := q.GetPending(id)
		if err != nil {
			if fsjson.IsAbsent(err) {
				logger.Soft(q.log, "read pending record", err, "task_id", id)
				continue
			}
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Prompt renders the machine-actionable instructions an agent follows to
// fulfill a suspended task.
func (q *Queue) Prompt(id string) (string, error) {
	p, err := q.GetPending(id)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "task: %s\nid: %s\nrunbook: %s\n", p.Task, p.ID, p.RunbookPath)
	if p.ClaimedBy != "" {
		fmt.Fprintf(&b, "claimed_by: %s\n", p.ClaimedBy)
	}
	b.WriteString("\nmessages:\n")
	for _, m := range p.Messages {
		fmt.Fprintf(&b, "  [%s] %s\n", m.Role, m.Content)
	}
	fmt.Fprintf(&b, "\nsubmit with:\n  %s\nresult will land at:\n  %s\n%s\n",
		p.Resume.SubmitCommand, p.Resume.ResultPath, p.Resume.ResumeHint)
	return b.String(), nil
}

func (q *Queue) pendingPath(id string) string {
	return filepath.Join(q.cfg.PendingDir(), id+".json")
}

func (q *Queue) resultPath(id string) string {
	return filepath.Join(q.cfg.ResultsDir(), id+".json")
}

func idsIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}
