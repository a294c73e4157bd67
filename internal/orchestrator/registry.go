package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"coordplane/internal/fsjson"
	"coordplane/internal/logger"
)

// Agent is a presence record: who is around and what they do.
type Agent struct {
	SchemaVersion int       `json:"schema_version"`
	Name          string    `json:"name"`
	Role          string    `json:"role,omitempty"`
	PID           int       `json:"pid,omitempty"`
	RegisteredAt  time.Time `json:"registered_at"`
	LastSeen      time.Time `json:"last_seen"`
}

// Note is a directed message between agents, optionally threaded and
// optionally expiring.
type Note struct {
	SchemaVersion int        `json:"schema_version"`
	ID            string     `json:"id"`
	From          string     `json:"from"`
	To            string     `json:"to"`
	Body          string     `json:"body"`
	ReplyTo       string     `json:"reply_to,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// Memo is an undirected broadcast record.
type Memo struct {
	SchemaVersion int       `json:"schema_version"`
	ID            string    `json:"id"`
	From          string    `json:"from"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"`
}

// Assignment binds an agent to a task id.
type Assignment struct {
	SchemaVersion int       `json:"schema_version"`
	ID            string    `json:"id"`
	Agent         string    `json:"agent"`
	TaskID        string    `json:"task_id"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// RegisterAgent writes (or refreshes) a presence record.
func (c *Channel) RegisterAgent(name, role string, pid int) (Agent, error) {
	if name == "" {
		return Agent{}, fmt.Errorf("agent name is required")
	}
	now := c.now().UTC()
	agent := Agent{
		SchemaVersion: SchemaVersion,
		Name:          name,
		Role:          role,
		PID:           pid,
		RegisteredAt:  now,
		LastSeen:      now,
	}
	var existing Agent
	if err := fsjson.Read(c.agentPath(name), &existing); err == nil {
		agent.RegisteredAt = existing.RegisteredAt
	}
	if err := fsjson.WriteAtomic(c.agentPath(name), agent); err != nil {
		return Agent{}, fmt.Errorf("write agent record: %w", err)
	}
	c.appendEvent("agent_registered", name, map[string]any{"role": role})
	return agent, nil
}

// GetAgent loads one presence record.
func (c *Channel) GetAgent(name string) (Agent, error) {
	var agent Agent
	if err := fsjson.Read(c.agentPath(name), &agent); err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// ListAgents returns all parseable presence records.
func (c *Channel) ListAgents() ([]Agent, error) {
	var out []Agent
	err := c.eachRecord(c.cfg.AgentsDir(), func(path string) error {
		var agent Agent
		if err := fsjson.Read(path, &agent); err != nil {
			return err
		}
		out = append(out, agent)
		return nil
	})
	return out, err
}

// SendNote drops a note in the recipient's inbox. ttl == 0 means the note
// never expires.
func (c *Channel) SendNote(to, body, replyTo string, ttl time.Duration) (Note, error) {
	if to == "" || body == "" {
		return Note{}, fmt.Errorf("recipient and body are required")
	}
	now := c.now().UTC()
	note := Note{
		SchemaVersion: SchemaVersion,
		ID:            uuid.NewString(),
		From:          c.cfg.AgentName,
		To:            to,
		Body:          body,
		ReplyTo:       replyTo,
		CreatedAt:     now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		note.ExpiresAt = &expires
	}
	if err := fsjson.WriteAtomic(c.notePath(note.ID), note); err != nil {
		return Note{}, fmt.Errorf("write note: %w", err)
	}
	c.appendEvent("note_sent", note.ID, map[string]any{"to": to})
	return note, nil
}

// ListNotes returns the unexpired inbox notes for an agent ("" for all).
// Expired notes are filtered, not deleted.
func (c *Channel) ListNotes(agent string) ([]Note, error) {
	now := c.now().UTC()
	var out []Note
	err := c.eachRecord(c.cfg.NotesInboxDir(), func(path string) error {
		var note Note
		if err := fsjson.Read(path, &note); err != nil {
			return err
		}
		if agent != "" && note.To != agent {
			return nil
		}
		if note.ExpiresAt != nil && !now.Before(*note.ExpiresAt) {
			return nil
		}
		out = append(out, note)
		return nil
	})
	return out, err
}

// ArchiveNote moves a note out of the inbox.
func (c *Channel) ArchiveNote(id string) error {
	src := c.notePath(id)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("note %s: %w", id, err)
	}
	if err := os.MkdirAll(c.cfg.NotesArchivedDir(), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	dst := filepath.Join(c.cfg.NotesArchivedDir(), id+".json")
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("archive note %s: %w", id, err)
	}
	return nil
}

// SendMemo writes a broadcast record.
func (c *Channel) SendMemo(subject, body string) (Memo, error) {
	if subject == "" {
		return Memo{}, fmt.Errorf("subject is required")
	}
	memo := Memo{
		SchemaVersion: SchemaVersion,
		ID:            uuid.NewString(),
		From:          c.cfg.AgentName,
		Subject:       subject,
		Body:          body,
		CreatedAt:     c.now().UTC(),
	}
	path := filepath.Join(c.cfg.MemosDir(), memo.ID+".json")
	if err := fsjson.WriteAtomic(path, memo); err != nil {
		return Memo{}, fmt.Errorf("write memo: %w", err)
	}
	c.appendEvent("memo_sent", memo.ID, map[string]any{"subject": subject})
	return memo, nil
}

// ListMemos returns all parseable memos.
func (c *Channel) ListMemos() ([]Memo, error) {
	var out []Memo
	err := c.eachRecord(c.cfg.MemosDir(), func(path string) error {
		var memo Memo
		if err := fsjson.Read(path, &memo); err != nil {
			return err
		}
		out = append(out, memo)
		return nil
	})
	return out, err
}

// Assign records that an agent owns a task.
func (c *Channel) Assign(agent, taskID string) (Assignment, error) {
	if agent == "" || taskID == "" {
		return Assignment{}, fmt.Errorf("agent and task id are required")
	}
	a := Assignment{
		SchemaVersion: SchemaVersion,
		ID:            uuid.NewString(),
		Agent:         agent,
		TaskID:        taskID,
		CreatedBy:     c.cfg.AgentName,
		CreatedAt:     c.now().UTC(),
	}
	path := filepath.Join(c.cfg.AssignmentsDir(), a.ID+".json")
	if err := fsjson.WriteAtomic(path, a); err != nil {
		return Assignment{}, fmt.Errorf("write assignment: %w", err)
	}
	return a, nil
}

// ListAssignments returns all parseable assignments.
func (c *Channel) ListAssignments() ([]Assignment, error) {
	var out []Assignment
	err := c.eachRecord(c.cfg.AssignmentsDir(), func(path string) error {
		var a Assignment
		if err := fsjson.Read(path, &a); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	return out, err
}

// eachRecord walks the .json files in dir, skipping corrupt ones with a
// warning. A missing dir is empty.
func (c *Channel) eachRecord(dir string, fn func(path string) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := fn(path); err != nil {
			if fsjson.IsAbsent(err) {
				logger.Soft(c.log, "read coordination record", err, "path", path)
				continue
			}
			return err
		}
	}
	return nil
}

func (c *Channel) agentPath(name string) string {
	return filepath.Join(c.cfg.AgentsDir(), name+".json")
}

func (c *Channel) notePath(id string) string {
	return filepath.Join(c.cfg.NotesInboxDir(), id+".json")
}
