// Package lockfile serializes writers on an alias.
//
// Sync and rebuild both mutate state behind an alias; running them
// concurrently is operationally unsafe, so each takes the same per-alias
// file lock before starting.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Acquire takes the writer lock for an alias under dir/locks.
// Returns a release function. An empty dir disables locking, which is the
// in-memory test mode where no other process can exist.
func Acquire(dir, alias string) (func(), error) {
	if dir == "" {
		return func() {}, nil
	}

	lockDir := filepath.Join(dir, "locks")
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create lock directory: %w", err)
	}

	fl := flock.New(filepath.Join(lockDir, alias+".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("cannot acquire lock for alias %s: %w", alias, err)
	}
	if !locked {
		return nil, fmt.Errorf("another sync or rebuild holds alias %s", alias)
	}

	return func() { _ = fl.Unlock() }, nil
}
