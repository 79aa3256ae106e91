// Package optout checks for a per-user marker file that disables
// coursesync entirely, mirroring the teacher's loadConfig use of
// os.UserHomeDir and os.Stat to locate a well-known path under $HOME.
package optout

import (
	"fmt"
	"os"
	"path/filepath"
)

// MarkerName is the zero-or-more-byte marker file that, when present in
// the invoking user's home directory, short-circuits the whole sync.
const MarkerName = ".git-sync-off"

// Active reports whether the opt-out marker is present under the
// invoking user's home directory.
func Active() (bool, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return false, fmt.Errorf("optout: resolving home directory: %w", err)
	}

	_, err = os.Stat(filepath.Join(home, MarkerName))
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("optout: checking marker file: %w", err)
	}
}
