package taskqueue

import (
	"errors"
	"strings"

	"coordplane/internal/fsjson"
	"coordplane/internal/logger"
)

// DefaultRunbook is the built-in fallback reference used when no runbook
// table exists or nothing in it matches.
const DefaultRunbook = "runbooks/default.md"

// runbookTable is the on-disk task-name → runbook mapping.
type runbookTable struct {
	SchemaVersion int               `json:"schema_version"`
	Tasks         map[string]string `json:"tasks"`
	Default       string            `json:"default,omitempty"`
}

// selectRunbook picks the runbook for a task name: exact match first, then
// the longest prefix match, then the table's default, then the built-in
// default. A missing or corrupt table is the built-in default.
func (q *Queue) selectRunbook(task string) (string, error) {
	var table runbookTable
	if err := fsjson.Read(q.cfg.RunbooksPath(), &table); err != nil {
		if !fsjson.IsAbsent(err) {
			return "", err
		}
		if errors.Is(err, fsjson.ErrCorrupt) {
			logger.Soft(q.log, "read runbook table", err)
		}
		return DefaultRunbook, nil
	}

	if path, ok := table.Tasks[task]; ok {
		return path, nil
	}

	bestLen := -1
	best := ""
	for name, path := range table.Tasks {
		if strings.HasPrefix(task, name) && len(name) > bestLen {
			bestLen = len(name)
			best = path
		}
	}
	if bestLen >= 0 {
		return best, nil
	}

	if table.Default != "" {
		return table.Default, nil
	}
	return DefaultRunbook, nil
}
