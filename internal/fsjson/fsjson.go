// Package fsjson contains the file primitives every component builds on:
// atomic JSON document writes, tolerant reads, JSONL append/scan, and a
// flock-based critical section for single-file read-modify-write windows.
package fsjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrCorrupt marks a state file that exists but does not parse. Callers
// treat it the same as absent (regenerate, warn), never as fatal.
var ErrCorrupt = errors.New("corrupt state file")

// IsAbsent reports whether err means "no usable record": the file is
// missing or unparseable.
func IsAbsent(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, ErrCorrupt)
}

// WriteAtomic marshals v and writes it to path via temp-write + rename, so
// readers never observe a partial document.
func WriteAtomic(path string, v any) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Read unmarshals the JSON document at path into v. A missing file yields
// fs.ErrNotExist; an unparseable one yields ErrCorrupt. Unknown extra
// fields in the document are ignored, per the forward-compatibility rule.
func Read(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w: %s", path, ErrCorrupt, err)
	}
	return nil
}

// AppendLine appends v as one JSON line to path, creating it if needed.
func AppendLine(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal line: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append to %s: %w", path, err)
	}
	return nil
}

// ScanLines calls fn for each non-empty line of the JSONL file at path.
// A missing file is an empty file.
func ScanLines(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("line %d of %s: %w", lineNo, path, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", path, err)
	}
	return nil
}

// WithLock runs fn while holding an OS advisory lock scoped to path. The
// lock lives in a sidecar file (path + ".lock") because path itself is
// rewritten by rename, which would drop a lock held on its inode.
//
// This guards one file for one read-modify-write window. It is not a scope
// lock; path-level advisory locking is lockreg's job.
func WithLock(path string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire lock on %s: %w", path, err)
	}
	defer fl.Unlock()
	return fn()
}

// ProbeLock reports whether some other process currently holds the flock
// at path, by attempting a non-blocking acquire and releasing on success.
func ProbeLock(path string) (held bool, err error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe lock %s: %w", path, err)
	}
	if !ok {
		return true, nil
	}
	if err := fl.Unlock(); err != nil {
		return false, fmt.Errorf("release probe lock %s: %w", path, err)
	}
	return false, nil
}
