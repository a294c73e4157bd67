package config

import "path/filepath"

// Directory layout under the queue root. Every component derives its paths
// from these helpers so the layout is defined in exactly one place.

func (c *Config) PendingDir() string   { return filepath.Join(c.Root, "pending") }
func (c *Config) ResultsDir() string   { return filepath.Join(c.Root, "results") }
func (c *Config) CompletedDir() string { return filepath.Join(c.Root, "completed") }

// RunbooksPath is the task-name → runbook table consulted on suspension.
func (c *Config) RunbooksPath() string { return filepath.Join(c.Root, "runbooks.json") }

func (c *Config) CoordinationDir() string { return filepath.Join(c.Root, "coordination") }
func (c *Config) AgentsDir() string       { return filepath.Join(c.CoordinationDir(), "agents") }
func (c *Config) MemosDir() string        { return filepath.Join(c.CoordinationDir(), "memos") }
func (c *Config) LocksDir() string        { return filepath.Join(c.CoordinationDir(), "locks") }
func (c *Config) AssignmentsDir() string  { return filepath.Join(c.CoordinationDir(), "assignments") }

func (c *Config) NotesInboxDir() string {
	return filepath.Join(c.CoordinationDir(), "agent_notes", "inbox")
}

func (c *Config) NotesArchivedDir() string {
	return filepath.Join(c.CoordinationDir(), "agent_notes", "archived")
}

func (c *Config) OrchestratorDir() string {
	return filepath.Join(c.CoordinationDir(), "orchestrator")
}

func (c *Config) OrchInboxDir() string     { return filepath.Join(c.OrchestratorDir(), "inbox") }
func (c *Config) OrchOutboxDir() string    { return filepath.Join(c.OrchestratorDir(), "outbox") }
func (c *Config) OrchProcessedDir() string { return filepath.Join(c.OrchestratorDir(), "processed") }
func (c *Config) OrchLeasePath() string    { return filepath.Join(c.OrchestratorDir(), "lease.lock") }
func (c *Config) OrchStatePath() string {
	return filepath.Join(c.OrchestratorDir(), "orchestrator.json")
}
func (c *Config) OrchHeartbeatPath() string {
	return filepath.Join(c.OrchestratorDir(), "heartbeat.json")
}

// EventsPath is the append-only coordination audit log.
func (c *Config) EventsPath() string {
	return filepath.Join(c.CoordinationDir(), "events.jsonl")
}

func (c *Config) JobQueuePath() string { return filepath.Join(c.Root, "job_queue.jsonl") }
func (c *Config) JobLogsDir() string   { return filepath.Join(c.Root, "logs") }
func (c *Config) JobLogPath(jobID string) string {
	return filepath.Join(c.JobLogsDir(), jobID+".log")
}
