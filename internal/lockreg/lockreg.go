// Package lockreg is the advisory scope-lock registry. A lock declares
// "don't touch these paths until I expire"; every mutator of shared files
// is expected to consult Blocking before writing. Nothing here enforces
// anything at the kernel level; cooperation is the whole mechanism.
package lockreg

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"coordplane/internal/fsjson"
	"coordplane/internal/logger"
)

// SchemaVersion is stamped on every persisted lock record.
const SchemaVersion = 1

// Lock is an advisory claim over one or more path scopes.
type Lock struct {
	SchemaVersion int       `json:"schema_version"`
	ID            string    `json:"id"`
	Mode          string    `json:"mode"`
	Scopes        []string  `json:"scopes"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Note          string    `json:"note,omitempty"`
}

// Expired reports whether the lock no longer blocks anything. Expired
// locks are ignored, not deleted; cleanup is an external job's problem.
func (l Lock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// hasWildcard reports whether a scope should be treated as a glob pattern.
func hasWildcard(scope string) bool {
	return strings.ContainsAny(scope, "*?[{")
}

// scopeMatches tests one scope against one path: glob when the scope
// carries wildcards, otherwise exact match (trailing slash ignored) or
// directory-prefix match.
func scopeMatches(scope, path string) bool {
	if hasWildcard(scope) {
		ok, err := doublestar.Match(scope, path)
		return err == nil && ok
	}
	trimmed := strings.TrimSuffix(scope, "/")
	if path == trimmed {
		return true
	}
	return strings.HasPrefix(path, trimmed+"/")
}

// FindBlockingLock returns the first non-expired lock whose scopes cover
// path, or nil. It is a pure function so call sites cannot grow their own
// matching variants.
func FindBlockingLock(path string, locks []Lock, now time.Time) *Lock {
	for i := range locks {
		if locks[i].Expired(now) {
			continue
		}
		for _, scope := range locks[i].Scopes {
			if scopeMatches(scope, path) {
				return &locks[i]
			}
		}
	}
	return nil
}

// Registry is CRUD over the lock directory.
type Registry struct {
	dir string
	log *slog.Logger
}

// New returns a registry over dir, typically cfg.LocksDir().
func New(dir string, log *slog.Logger) *Registry {
	if log == nil {
		log = logger.New()
	}
	return &Registry{dir: dir, log: log}
}

// Create registers a new lock and returns it.
func (r *Registry) Create(mode string, scopes []string, createdBy string, ttl time.Duration, note string) (Lock, error) {
	if len(scopes) == 0 {
		return Lock{}, fmt.Errorf("at least one scope is required")
	}
	if ttl <= 0 {
		return Lock{}, fmt.Errorf("ttl must be positive")
	}
	now := time.Now().UTC()
	lock := Lock{
		SchemaVersion: SchemaVersion,
		ID:            uuid.NewString(),
		Mode:          mode,
		Scopes:        scopes,
		CreatedBy:     createdBy,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
		Note:          note,
	}
	if err := fsjson.WriteAtomic(r.path(lock.ID), lock); err != nil {
		return Lock{}, fmt.Errorf("write lock: %w", err)
	}
	return lock, nil
}

// Get loads one lock by id.
func (r *Registry) Get(id string) (Lock, error) {
	var lock Lock
	if err := fsjson.Read(r.path(id), &lock); err != nil {
		return Lock{}, err
	}
	return lock, nil
}

// Remove deletes a lock record. Removing a missing lock is not an error.
func (r *Registry) Remove(id string) error {
	err := os.Remove(r.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock %s: %w", id, err)
	}
	return nil
}

// List returns every parseable lock record. Corrupt records are warned
// about and skipped, never fatal.
func (r *Registry) List() ([]Lock, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lock dir: %w", err)
	}
	locks := make([]Lock, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var lock Lock
		if err := fsjson.Read(filepath.Join(r.dir, entry.Name()), &lock); err != nil {
			if fsjson.IsAbsent(err) {
				logger.Soft(r.log, "read lock record", err)
				continue
			}
			return nil, err
		}
		locks = append(locks, lock)
	}
	return locks, nil
}

// Active returns the non-expired locks.
func (r *Registry) Active() ([]Lock, error) {
	locks, err := r.List()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	active := locks[:0]
	for _, lock := range locks {
		if !lock.Expired(now) {
			active = append(active, lock)
		}
	}
	return active, nil
}

// Blocking is the guard every mutator calls before writing to path.
// It returns the blocking lock, or nil when the path is clear.
func (r *Registry) Blocking(path string) (*Lock, error) {
	locks, err := r.List()
	if err != nil {
		return nil, err
	}
	return FindBlockingLock(path, locks, time.Now().UTC()), nil
}

func (r *Registry) path(id string) string {
	return filepath.Join(r.dir, id+".json")
}
