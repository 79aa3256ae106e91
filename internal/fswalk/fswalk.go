// Package fswalk enumerates the files and directories beneath a root,
// excluding the VCS metadata subtree, repairing traversal permissions as
// it descends.
package fswalk

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/coursesync/coursesync/internal/orderedset"
)

// gitSubtree returns the absolute path that marks the VCS metadata
// subtree under root, which the walker must never enumerate or descend
// into.
func gitSubtree(root string) string {
	return filepath.Join(root, ".git")
}

// AllDirs returns every directory beneath root (root itself excluded),
// skipping root/.git, repairing each visited directory's mode to
// mode|0o700 before descending so that a previous lock-down or hostile
// chmod cannot hide a subtree from enumeration.
func AllDirs(root string) (orderedset.Set[string], error) {
	dirs := orderedset.NewStrings()
	err := walk(root, gitSubtree(root), func(path string, info os.FileInfo) {
		if info.IsDir() {
			dirs = dirs.Add(path)
		}
	})
	return dirs, err
}

// AllFiles returns every file beneath root, skipping root/.git.
func AllFiles(root string) (orderedset.Set[string], error) {
	files := orderedset.NewStrings()
	err := walk(root, gitSubtree(root), func(path string, info os.FileInfo) {
		if !info.IsDir() {
			files = files.Add(path)
		}
	})
	return files, err
}

// walk performs a manual depth-first traversal of root, repairing each
// directory's mode to include user rwx *before* attempting to read its
// contents (a filepath.Walk-based traversal would only discover the
// permission problem after failing to list the directory, which is too
// late to recover from within the same pass). File modes are never
// altered here. visit is invoked for every path other than root itself.
func walk(root, excluded string, visit func(path string, info os.FileInfo)) error {
	rootInfo, err := os.Lstat(root)
	if err != nil {
		return fmt.Errorf("fswalk: stat %q: %w", root, err)
	}
	if !rootInfo.IsDir() {
		return fmt.Errorf("fswalk: %q is not a directory", root)
	}

	return walkDir(root, excluded, visit)
}

func walkDir(dir, excluded string, visit func(path string, info os.FileInfo)) error {
	if dir == excluded {
		return nil
	}

	info, err := os.Lstat(dir)
	if err != nil {
		return fmt.Errorf("fswalk: stat %q: %w", dir, err)
	}
	if err := os.Chmod(dir, info.Mode().Perm()|0o700); err != nil {
		return fmt.Errorf("fswalk: repairing permissions on %q: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("fswalk: reading %q: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if path == excluded {
			continue
		}

		entryInfo, err := entry.Info()
		if err != nil {
			return fmt.Errorf("fswalk: stat %q: %w", path, err)
		}

		if entry.IsDir() {
			if err := walkDir(path, excluded, visit); err != nil {
				return err
			}
			// Re-stat after descent: our own chmod above already set
			// the bits we care about, but pick up the post-repair mode
			// for the visit callback so callers see the repaired state.
			repaired, statErr := os.Lstat(path)
			if statErr == nil {
				entryInfo = repaired
			}
		}

		visit(path, entryInfo)
	}

	return nil
}
