package taskqueue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"coordplane/internal/config"
	"coordplane/internal/fsjson"
)

func testQueue(t *testing.T) (*Queue, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		Root:          t.TempDir(),
		AgentName:     "tester",
		TaskIntercept: true,
	}
	return New(cfg, nil), cfg
}

var testMsgs = []Message{{Role: "user", Content: "describe channel alpha"}}

func TestResolve_PassthroughWhenDisabled(t *testing.T) {
	q, cfg := testQueue(t)
	cfg.TaskIntercept = false

	out, err := q.Resolve("describe", testMsgs, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Kind != OutcomePassthrough {
		t.Errorf("expected passthrough, got %s", out.Kind)
	}

	// Nothing written.
	if _, err := os.Stat(cfg.PendingDir()); !os.IsNotExist(err) {
		t.Error("passthrough must not create pending records")
	}
}

func TestResolve_MissSuspendsWithPendingRecord(t *testing.T) {
	q, cfg := testQueue(t)

	out, err := q.Resolve("describe", testMsgs, map[string]any{"model": "m"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Kind != OutcomeSuspended {
		t.Fatalf("expected suspended, got %s", out.Kind)
	}
	ref := out.Pending
	if ref == nil || ref.ID == "" {
		t.Fatal("suspension must carry a pending ref")
	}
	if ref.PendingPath != filepath.Join(cfg.PendingDir(), ref.ID+".json") {
		t.Errorf("unexpected pending path: %s", ref.PendingPath)
	}
	if ref.Resume.SubmitCommand == "" || ref.Resume.ResultPath == "" {
		t.Error("resume instructions must be machine-actionable")
	}

	p, err := q.GetPending(ref.ID)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if p.SchemaVersion != SchemaVersion {
		t.Errorf("missing schema_version on pending record: %+v", p)
	}
	if p.RunbookPath != DefaultRunbook {
		t.Errorf("expected built-in default runbook, got %s", p.RunbookPath)
	}
}

func TestResolve_SecondCallReusesPending(t *testing.T) {
	q, _ := testQueue(t)

	first, err := q.Resolve("describe", testMsgs, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// An agent claims the pending record between resolves.
	if _, err := q.Claim(first.Pending.ID, "agent-9"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	second, err := q.Resolve("describe", testMsgs, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if second.Kind != OutcomeSuspended {
		t.Fatalf("expected suspended, got %s", second.Kind)
	}
	if second.Pending.ID != first.Pending.ID {
		t.Errorf("same content must map to one pending record: %s vs %s", second.Pending.ID, first.Pending.ID)
	}

	p, err := q.GetPending(first.Pending.ID)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if p.ClaimedBy != "agent-9" {
		t.Errorf("re-resolve reset claimed_by: %+v", p)
	}

	pend, err := q.ListPending()
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pend) != 1 {
		t.Errorf("expected exactly one pending record, got %d", len(pend))
	}
}

func TestWriteResult_ThenResolveHits(t *testing.T) {
	q, _ := testQueue(t)

	out, err := q.Resolve("describe", testMsgs, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	id := out.Pending.ID

	if _, err := q.WriteResult(id, "X", "agent-9", "done by hand"); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}

	hit, err := q.Resolve("describe", testMsgs, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if hit.Kind != OutcomeHit {
		t.Fatalf("expected hit, got %s", hit.Kind)
	}
	if hit.Result.Content != "X" {
		t.Errorf("expected cached content X, got %q", hit.Result.Content)
	}

	// Pending record was archived, not left behind.
	pend, err := q.ListPending()
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pend) != 0 {
		t.Errorf("expected pending record archived, found %d", len(pend))
	}
	var archived Pending
	if err := fsjson.Read(filepath.Join(q.cfg.CompletedDir(), id+".json"), &archived); err != nil {
		t.Errorf("expected archived record in completed/: %v", err)
	}
}

func TestWriteResult_Immutable(t *testing.T) {
	q, _ := testQueue(t)

	if _, err := q.WriteResult("describe__abc", "first", "a", ""); err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	if _, err := q.WriteResult("describe__abc", "second", "b", ""); err == nil {
		t.Error("expected overwrite of an existing result to be refused")
	}

	r, err := q.GetResult("describe__abc")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if r.Content != "first" {
		t.Errorf("result was mutated: %q", r.Content)
	}
}

func TestResolve_CorruptPendingIsRegenerated(t *testing.T) {
	q, cfg := testQueue(t)

	out, err := q.Resolve("describe", testMsgs, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	id := out.Pending.ID

	path := filepath.Join(cfg.PendingDir(), id+".json")
	if err := os.WriteFile(path, []byte("{{{"), 0o644); err != nil {
		t.Fatal(err)
	}

	again, err := q.Resolve("describe", testMsgs, nil)
	if err != nil {
		t.Fatalf("corrupt pending must be self-healing: %v", err)
	}
	if again.Kind != OutcomeSuspended {
		t.Fatalf("expected suspended, got %s", again.Kind)
	}

	p, err := q.GetPending(id)
	if err != nil {
		t.Fatalf("regenerated record should parse: %v", err)
	}
	if p.ID != id {
		t.Errorf("regenerated record has wrong id: %s", p.ID)
	}
}

func TestSelectRunbook(t *testing.T) {
	q, cfg := testQueue(t)

	table := runbookTable{
		SchemaVersion: 1,
		Tasks: map[string]string{
			"describe":         "runbooks/describe.md",
			"describe_channel": "runbooks/describe_channel.md",
		},
		Default: "runbooks/fallback.md",
	}
	if err := fsjson.WriteAtomic(cfg.RunbooksPath(), table); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		task string
		want string
	}{
		{"describe_channel", "runbooks/describe_channel.md"},        // exact beats prefix
		{"describe_channel_batch", "runbooks/describe_channel.md"},  // longest prefix
		{"describe_thumbnail", "runbooks/describe.md"},              // shorter prefix
		{"transcode", "runbooks/fallback.md"},                       // table default
	}
	for _, tc := range cases {
		got, err := q.selectRunbook(tc.task)
		if err != nil {
			t.Fatalf("selectRunbook(%s): %v", tc.task, err)
		}
		if got != tc.want {
			t.Errorf("selectRunbook(%s) = %s, want %s", tc.task, got, tc.want)
		}
	}
}

func TestSelectRunbook_MissingTableFallsBack(t *testing.T) {
	q, _ := testQueue(t)

	got, err := q.selectRunbook("anything")
	if err != nil {
		t.Fatalf("selectRunbook: %v", err)
	}
	if got != DefaultRunbook {
		t.Errorf("expected built-in default, got %s", got)
	}
}

func TestPrompt_RendersInstructions(t *testing.T) {
	q, _ := testQueue(t)

	out, err := q.Resolve("describe", testMsgs, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	text, err := q.Prompt(out.Pending.ID)
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	for _, want := range []string{out.Pending.ID, "coordctl task complete", "describe channel alpha"} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt missing %q:\n%s", want, text)
		}
	}
}
