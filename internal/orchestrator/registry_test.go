package orchestrator

import (
	"testing"
	"time"
)

func TestAgents_RegisterListGet(t *testing.T) {
	c, _ := testChannel(t)

	first, err := c.RegisterAgent("writer-1", "script-writer", 1234)
	if err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	if _, err := c.RegisterAgent("editor-1", "video-editor", 0); err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}

	agents, err := c.ListAgents()
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(agents))
	}

	got, err := c.GetAgent("writer-1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.Role != "script-writer" || got.PID != 1234 {
		t.Errorf("unexpected agent: %+v", got)
	}

	// Re-registration refreshes last_seen but keeps registered_at.
	time.Sleep(10 * time.Millisecond)
	refreshed, err := c.RegisterAgent("writer-1", "script-writer", 1234)
	if err != nil {
		t.Fatalf("RegisterAgent: %v", err)
	}
	if !refreshed.RegisteredAt.Equal(first.RegisteredAt) {
		t.Errorf("registered_at changed on refresh: %v vs %v", refreshed.RegisteredAt, first.RegisteredAt)
	}
	if !refreshed.LastSeen.After(first.LastSeen) {
		t.Errorf("last_seen not refreshed: %v vs %v", refreshed.LastSeen, first.LastSeen)
	}
}

func TestNotes_SendListArchive(t *testing.T) {
	c, _ := testChannel(t)

	note, err := c.SendNote("editor-1", "thumbnails for ep42 are ready", "", 0)
	if err != nil {
		t.Fatalf("SendNote: %v", err)
	}
	reply, err := c.SendNote("tester", "got them", note.ID, 0)
	if err != nil {
		t.Fatalf("SendNote reply: %v", err)
	}
	if reply.ReplyTo != note.ID {
		t.Errorf("reply threading lost: %+v", reply)
	}

	mine, err := c.ListNotes("editor-1")
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != note.ID {
		t.Errorf("unexpected inbox for editor-1: %+v", mine)
	}

	all, err := c.ListNotes("")
	if err != nil {
		t.Fatalf("ListNotes all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 notes, got %d", len(all))
	}

	if err := c.ArchiveNote(note.ID); err != nil {
		t.Fatalf("ArchiveNote: %v", err)
	}
	mine, err = c.ListNotes("editor-1")
	if err != nil {
		t.Fatalf("ListNotes after archive: %v", err)
	}
	if len(mine) != 0 {
		t.Errorf("archived note still listed: %+v", mine)
	}

	if err := c.ArchiveNote("no-such-note"); err == nil {
		t.Error("archiving a missing note should error")
	}
}

func TestNotes_TTLExpiryFiltersNotDeletes(t *testing.T) {
	c, _ := testChannel(t)

	expired, err := c.SendNote("editor-1", "old news", "", 1*time.Nanosecond)
	if err != nil {
		t.Fatalf("SendNote: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	notes, err := c.ListNotes("editor-1")
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if len(notes) != 0 {
		t.Errorf("expired note should be filtered: %+v", notes)
	}

	// The record itself is untouched; cleanup belongs to an external job.
	if err := c.ArchiveNote(expired.ID); err != nil {
		t.Errorf("expired note file should still exist: %v", err)
	}
}

func TestMemos_SendList(t *testing.T) {
	c, _ := testChannel(t)

	if _, err := c.SendMemo("pipeline freeze", "no uploads until friday"); err != nil {
		t.Fatalf("SendMemo: %v", err)
	}

	memos, err := c.ListMemos()
	if err != nil {
		t.Fatalf("ListMemos: %v", err)
	}
	if len(memos) != 1 || memos[0].Subject != "pipeline freeze" {
		t.Errorf("unexpected memos: %+v", memos)
	}

	if _, err := c.SendMemo("", "body"); err == nil {
		t.Error("expected error for empty subject")
	}
}

func TestAssignments_AssignList(t *testing.T) {
	c, _ := testChannel(t)

	a, err := c.Assign("writer-1", "describe__abcd")
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	list, err := c.ListAssignments()
	if err != nil {
		t.Fatalf("ListAssignments: %v", err)
	}
	if len(list) != 1 || list[0].ID != a.ID || list[0].TaskID != "describe__abcd" {
		t.Errorf("unexpected assignments: %+v", list)
	}
}
