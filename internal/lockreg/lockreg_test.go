package lockreg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"coordplane/internal/fsjson"
)

func mkLock(scopes []string, expiresAt time.Time) Lock {
	return Lock{
		SchemaVersion: SchemaVersion,
		ID:            "lock-" + scopes[0],
		Mode:          "edit",
		Scopes:        scopes,
		CreatedBy:     "tester",
		CreatedAt:     expiresAt.Add(-time.Hour),
		ExpiresAt:     expiresAt,
	}
}

func TestFindBlockingLock_Matching(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(time.Hour)
	past := now.Add(-time.Minute)

	cases := []struct {
		name  string
		path  string
		locks []Lock
		want  bool
	}{
		{"glob doublestar", "a/b/c.txt", []Lock{mkLock([]string{"a/b/**"}, future)}, true},
		{"glob single star", "a/b/c.txt", []Lock{mkLock([]string{"a/b/*.txt"}, future)}, true},
		{"glob non-matching", "a/x/c.txt", []Lock{mkLock([]string{"a/b/**"}, future)}, false},
		{"exact", "a/b/c.txt", []Lock{mkLock([]string{"a/b/c.txt"}, future)}, true},
		{"exact trailing slash", "a/b", []Lock{mkLock([]string{"a/b/"}, future)}, true},
		{"prefix", "a/b/c.txt", []Lock{mkLock([]string{"a/b"}, future)}, true},
		{"prefix must be a path segment", "a/bc.txt", []Lock{mkLock([]string{"a/b"}, future)}, false},
		{"expired exact is ignored", "a/b/c.txt", []Lock{mkLock([]string{"a/b/c.txt"}, past)}, false},
		{"second scope matches", "a/b/c.txt", []Lock{mkLock([]string{"z/", "a/b"}, future)}, true},
		{"no locks", "a/b/c.txt", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FindBlockingLock(tc.path, tc.locks, now)
			if (got != nil) != tc.want {
				t.Errorf("FindBlockingLock(%q) = %v, want blocked=%v", tc.path, got, tc.want)
			}
		})
	}
}

func TestFindBlockingLock_ReturnsFirstBlocker(t *testing.T) {
	now := time.Now().UTC()
	expired := mkLock([]string{"a/b/c.txt"}, now.Add(-time.Minute))
	active := mkLock([]string{"a/b/**"}, now.Add(time.Hour))

	got := FindBlockingLock("a/b/c.txt", []Lock{expired, active}, now)
	if got == nil {
		t.Fatal("expected a blocking lock")
	}
	if got.ID != active.ID {
		t.Errorf("expected the active lock, got %s", got.ID)
	}
}

func TestRegistry_CreateGetRemoveList(t *testing.T) {
	reg := New(filepath.Join(t.TempDir(), "locks"), nil)

	lock, err := reg.Create("edit", []string{"channels/alpha/**"}, "agent-1", time.Hour, "bulk retitle")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if lock.ID == "" {
		t.Fatal("expected an id")
	}
	if lock.SchemaVersion != SchemaVersion {
		t.Errorf("expected schema_version %d, got %d", SchemaVersion, lock.SchemaVersion)
	}

	got, err := reg.Get(lock.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CreatedBy != "agent-1" || got.Note != "bulk retitle" {
		t.Errorf("round trip mismatch: %+v", got)
	}

	locks, err := reg.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(locks) != 1 {
		t.Fatalf("expected 1 lock, got %d", len(locks))
	}

	if err := reg.Remove(lock.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	locks, err = reg.List()
	if err != nil {
		t.Fatalf("List after remove: %v", err)
	}
	if len(locks) != 0 {
		t.Errorf("expected no locks after remove, got %d", len(locks))
	}

	// Idempotent remove.
	if err := reg.Remove(lock.ID); err != nil {
		t.Errorf("removing a missing lock should not error: %v", err)
	}
}

func TestRegistry_CreateValidation(t *testing.T) {
	reg := New(t.TempDir(), nil)

	if _, err := reg.Create("edit", nil, "a", time.Hour, ""); err == nil {
		t.Error("expected error for empty scopes")
	}
	if _, err := reg.Create("edit", []string{"x"}, "a", 0, ""); err == nil {
		t.Error("expected error for non-positive ttl")
	}
}

func TestRegistry_ListSkipsCorruptRecords(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "locks")
	reg := New(dir, nil)

	if _, err := reg.Create("edit", []string{"a"}, "x", time.Hour, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "junk.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	locks, err := reg.List()
	if err != nil {
		t.Fatalf("List must tolerate corrupt records: %v", err)
	}
	if len(locks) != 1 {
		t.Errorf("expected the one good lock, got %d", len(locks))
	}
}

func TestRegistry_Blocking(t *testing.T) {
	reg := New(filepath.Join(t.TempDir(), "locks"), nil)

	created, err := reg.Create("edit", []string{"assets/audio/**"}, "sync-tool", time.Hour, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	blocker, err := reg.Blocking("assets/audio/ep42.mp3")
	if err != nil {
		t.Fatalf("Blocking: %v", err)
	}
	if blocker == nil || blocker.ID != created.ID {
		t.Errorf("expected lock %s to block, got %v", created.ID, blocker)
	}

	clear, err := reg.Blocking("assets/thumbs/ep42.png")
	if err != nil {
		t.Fatalf("Blocking: %v", err)
	}
	if clear != nil {
		t.Errorf("expected no blocker, got %+v", clear)
	}
}

func TestRegistry_ActiveFiltersExpired(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "locks")
	reg := New(dir, nil)

	// Write an already-expired lock directly; Create refuses ttl <= 0.
	expired := mkLock([]string{"old/"}, time.Now().UTC().Add(-time.Hour))
	if err := writeLockFile(t, dir, expired); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Create("edit", []string{"new/"}, "x", time.Hour, ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	active, err := reg.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active lock, got %d", len(active))
	}
	if active[0].Scopes[0] != "new/" {
		t.Errorf("wrong lock survived filtering: %+v", active[0])
	}
}

func writeLockFile(t *testing.T, dir string, lock Lock) error {
	t.Helper()
	reg := New(dir, nil)
	return fsjson.WriteAtomic(reg.path(lock.ID), lock)
}
