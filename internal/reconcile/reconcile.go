// Package reconcile implements the core sync state machine: given a
// possibly-damaged local checkout, it converges repo_dir to the upstream
// branch's exact tree while preserving every user-originated artifact
// under a timestamped sidecar name, then locks the upstream-owned
// portion of the tree against accidental modification.
//
// Orchestration follows the teacher's internal/sync.Engine.Run: a single
// public entry point logs each major phase, wraps every returned error
// with context, and recomputes derived state rather than caching it.
package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/coursesync/coursesync/internal/config"
	"github.com/coursesync/coursesync/internal/fswalk"
	"github.com/coursesync/coursesync/internal/instructions"
	"github.com/coursesync/coursesync/internal/orderedset"
	"github.com/coursesync/coursesync/internal/pathkind"
	"github.com/coursesync/coursesync/internal/statusparse"
	"github.com/coursesync/coursesync/internal/vcsadapter"
)

// ErrUnknownStatusCode is returned when the VCS status parser reports a
// code outside the fixed table. The reconciler treats this as fatal
// classification error rather than silently ignoring it.
var ErrUnknownStatusCode = errors.New("reconcile: unknown status code encountered")

// ErrValidationFailed is returned by the finalization phase when the
// post-sync tree violates an invariant (leftover tracked changes, or a
// dirty diff against upstream). Unlike update-path errors, this is never
// recovered by re-cloning: it surfaces straight to the caller.
var ErrValidationFailed = errors.New("reconcile: finalization validation failed")

// instructionsFilename is the fixed name of the instructions file copied
// into repo_dir and its parent after locking.
const instructionsFilename = instructions.Filename

// originName is the remote name the update path replaces on every run.
const originName = "origin"

// Reconciler drives a single sync invocation for one repoDir against one
// upstream branch. It is not safe for concurrent use, and not reused
// across invocations: construct a fresh Reconciler per Sync call so the
// timestamp is derived once per invocation, per spec.
type Reconciler struct {
	cfg    *config.Config
	vcs    vcsadapter.Client
	logger *slog.Logger

	repoURL    string
	branch     string
	repoDir    string
	programDir string

	timestamp string

	allDirs   orderedset.Set[string]
	allFiles  orderedset.Set[string]
	userDirs  orderedset.Set[string]
	userFiles orderedset.Set[string]
	backups   orderedset.Set[string]
}

// New constructs a Reconciler for one sync invocation, deriving the
// process-global backup timestamp immediately.
func New(cfg *config.Config, vcs vcsadapter.Client, logger *slog.Logger, repoURL, branch, repoDir, programDir string) *Reconciler {
	return &Reconciler{
		cfg:        cfg,
		vcs:        vcs,
		logger:     logger,
		repoURL:    repoURL,
		branch:     branch,
		repoDir:    repoDir,
		programDir: programDir,
		timestamp:  fmt.Sprintf("%08x", time.Now().Unix()&0xffffffff),
		allDirs:    orderedset.NewStrings(),
		allFiles:   orderedset.NewStrings(),
		userDirs:   orderedset.NewStrings(),
		userFiles:  orderedset.NewStrings(),
		backups:    orderedset.NewStrings(),
	}
}

// Sync runs the outer state machine described by the reconciler's
// algorithm: gate on repoDir's existence, then either a fresh clone or
// an update path with whole-tree recovery on failure, then an
// unconditional finalization phase.
func (r *Reconciler) Sync(ctx context.Context) error {
	_, statErr := os.Stat(r.repoDir)
	switch {
	case os.IsNotExist(statErr):
		r.logger.Info("repo_dir missing, performing fresh clone", "repo_dir", r.repoDir)
		if err := r.freshClone(ctx); err != nil {
			return fmt.Errorf("reconcile: fresh clone: %w", err)
		}
	default:
		if err := r.updatePath(ctx); err != nil {
			r.logger.Error("Updating failed", "error", err)
			if rerr := r.recoverByReclone(ctx); rerr != nil {
				return fmt.Errorf("reconcile: recovery re-clone: %w", rerr)
			}
		}
	}

	return r.finalize(ctx)
}

// freshClone performs a blobless clone of repoURL at branch into
// repoDir, configures the safe-directory setting, and fetches branch.
// Classification and restore are skipped entirely for a fresh clone.
func (r *Reconciler) freshClone(ctx context.Context) error {
	if err := r.vcs.Clone(ctx, r.repoURL, r.branch, r.repoDir); err != nil {
		return fmt.Errorf("cloning %q: %w", r.repoURL, err)
	}
	if err := r.vcs.ConfigureSafeDirectory(ctx, r.repoDir); err != nil {
		return fmt.Errorf("configuring safe directory: %w", err)
	}
	if err := r.vcs.Fetch(ctx, r.repoDir, r.branch); err != nil {
		return fmt.Errorf("fetching %q: %w", r.branch, err)
	}
	return nil
}

// updatePath executes the update-path sequence in spec order: walk and
// repair, status, classify, recompute, remote replacement and fetch,
// reset/checkout, recompute, restore.
func (r *Reconciler) updatePath(ctx context.Context) error {
	if err := r.recomputeAll(); err != nil {
		return fmt.Errorf("walking tree: %w", err)
	}

	status, err := r.vcs.Status(ctx, r.repoDir)
	if err != nil {
		return fmt.Errorf("obtaining status: %w", err)
	}

	if err := r.classify(status); err != nil {
		return fmt.Errorf("classifying status: %w", err)
	}

	if err := r.recomputeAll(); err != nil {
		return fmt.Errorf("recomputing tree after classification: %w", err)
	}

	if err := r.vcs.SetRemote(ctx, r.repoDir, originName, r.repoURL); err != nil {
		return fmt.Errorf("replacing remote %q: %w", originName, err)
	}
	if err := r.vcs.ConfigureSafeDirectory(ctx, r.repoDir); err != nil {
		return fmt.Errorf("configuring safe directory: %w", err)
	}
	if err := r.vcs.Fetch(ctx, r.repoDir, r.branch); err != nil {
		return fmt.Errorf("fetching %q: %w", r.branch, err)
	}

	if err := r.vcs.ResetIndex(ctx, r.repoDir); err != nil {
		return fmt.Errorf("resetting index: %w", err)
	}
	if err := r.vcs.CheckoutIndex(ctx, r.repoDir); err != nil {
		return fmt.Errorf("checking out index: %w", err)
	}
	remoteRef := originName + "/" + r.branch
	if err := r.vcs.CheckoutRef(ctx, r.repoDir, remoteRef); err != nil {
		return fmt.Errorf("checking out %q: %w", remoteRef, err)
	}

	if err := r.recomputeAll(); err != nil {
		return fmt.Errorf("recomputing tree after checkout: %w", err)
	}

	if err := r.restoreBackups(); err != nil {
		return fmt.Errorf("restoring backups: %w", err)
	}

	return nil
}

// recoverByReclone is the update path's ultimate safety net: it catches
// everything, restores user access on repoDir, renames the entire
// repoDir aside as a single user artifact, and falls through to a fresh
// clone. This guarantees forward progress: a damaged tree never prevents
// the next sync from completing.
func (r *Reconciler) recoverByReclone(ctx context.Context) error {
	if info, err := os.Stat(r.repoDir); err == nil {
		_ = os.Chmod(r.repoDir, info.Mode().Perm()|0o700)

		backup := r.repoDir + "." + r.timestamp
		if err := os.Rename(r.repoDir, backup); err != nil {
			return fmt.Errorf("backing up damaged repo_dir: %w", err)
		}
		r.backups = r.backups.Add(backup)
		r.userDirs = r.userDirs.Add(backup)
		r.logger.Info("backed up damaged repo_dir", "backup", backup)
	}

	return r.freshClone(ctx)
}

// finalize recomputes the tree, validates it, locks upstream-owned
// content, copies the instructions file, then re-validates with diff
// disabled. This runs unconditionally, whether the update path succeeded
// or fell through to a fresh clone. A failure here is never recovered:
// it is an invariant violation of the tool itself.
func (r *Reconciler) finalize(ctx context.Context) error {
	if err := r.recomputeAll(); err != nil {
		return fmt.Errorf("reconcile: finalize: walking tree: %w", err)
	}
	if err := r.validate(ctx, true); err != nil {
		return fmt.Errorf("reconcile: finalize: %w", err)
	}
	if err := r.lock(); err != nil {
		return fmt.Errorf("reconcile: finalize: locking: %w", err)
	}
	if err := r.copyInstructions(); err != nil {
		return fmt.Errorf("reconcile: finalize: copying instructions: %w", err)
	}
	if err := r.validate(ctx, false); err != nil {
		return fmt.Errorf("reconcile: finalize: %w", err)
	}
	return nil
}

// recomputeAll refreshes allDirs and allFiles from disk. It is called
// after every filesystem-mutating step rather than caching stale state,
// per invariant 1 (user_* subseteq all_*).
func (r *Reconciler) recomputeAll() error {
	dirs, err := fswalk.AllDirs(r.repoDir)
	if err != nil {
		return err
	}
	files, err := fswalk.AllFiles(r.repoDir)
	if err != nil {
		return err
	}
	r.allDirs = dirs
	r.allFiles = files
	return nil
}

// classify parses raw porcelain status output and applies the
// classification rules from the update path: deleted/renamed entries
// are ignored, every other recognized kind triggers backup-and-track,
// and an unknown code is fatal.
func (r *Reconciler) classify(rawStatus string) error {
	for _, e := range statusparse.Parse(rawStatus) {
		switch e.Kind {
		case statusparse.Deleted, statusparse.Renamed:
			continue
		case statusparse.Unknown:
			r.logger.Error("unknown status code encountered", "status", rawStatus)
			return fmt.Errorf("%w: path %q", ErrUnknownStatusCode, e.Path)
		default:
			if err := r.backupAndTrack(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// backupAndTrack renames a single classified artifact to its
// timestamped backup name and records it in the appropriate user_* sets,
// recursing into the backup's subtree when the artifact is a directory.
func (r *Reconciler) backupAndTrack(e statusparse.Entry) error {
	repoDir, err := pathkind.New(r.repoDir, false)
	if err != nil {
		return err
	}
	repoDir = pathkind.NewDir(repoDir.String())

	combined, err := repoDir.Join(e.Path)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", e.Path, err)
	}

	backup, err := combined.WithSuffix("." + r.timestamp)
	if err != nil {
		return fmt.Errorf("computing backup name for %q: %w", combined, err)
	}
	if err := combined.Rename(backup); err != nil {
		return fmt.Errorf("backing up %q: %w", combined, err)
	}
	r.backups = r.backups.Add(backup.String())

	if combined.IsDir() {
		r.userDirs = r.userDirs.Add(backup.String())
		dirs, err := fswalk.AllDirs(backup.String())
		if err != nil {
			return fmt.Errorf("enumerating backup subtree %q: %w", backup, err)
		}
		files, err := fswalk.AllFiles(backup.String())
		if err != nil {
			return fmt.Errorf("enumerating backup subtree %q: %w", backup, err)
		}
		r.userDirs = r.userDirs.Union(dirs)
		r.userFiles = r.userFiles.Union(files)
	} else {
		r.userFiles = r.userFiles.Add(backup.String())
		r.logger.Debug("backed up user artifact", "diagnostics", fingerprintLogValue(backup.String()))
	}

	return nil
}

// backupFingerprint is a quick content identity check for a backed-up
// file, logged alongside the backup's path so two runs that both report
// "backed up foo.py" can be told apart without diffing the files by
// hand.
type backupFingerprint struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Bytes  int    `json:"bytes"`
}

// fingerprintLogValue hashes path's content and renders the result as a
// compact JSON string suitable for a single log attribute. Hashing
// failure (the file vanished, a permission error) is non-fatal here;
// the field just degrades to an error note rather than aborting the
// backup that already succeeded.
func fingerprintLogValue(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf(`{"path":%q,"error":%q}`, path, err.Error())
	}
	sum := sha256.Sum256(data)
	fp := backupFingerprint{Path: path, SHA256: fmt.Sprintf("%x", sum), Bytes: len(data)}
	b, err := json.Marshal(fp)
	if err != nil {
		return fmt.Sprintf(`{"path":%q,"error":%q}`, path, err.Error())
	}
	return string(b)
}

// restoreBackups iterates backups in sorted order, renaming each back to
// its original name when that name does not collide with upstream
// content, and leaving colliding backups in place.
func (r *Reconciler) restoreBackups() error {
	for _, b := range r.backups.Slice() {
		var bp pathkind.Path
		if r.userDirs.Contains(b) {
			bp = pathkind.NewDir(b)
		} else {
			bp = pathkind.NewFile(b)
		}

		original, ok := bp.StripSuffix()
		if !ok {
			continue
		}

		if original.Exists() {
			continue
		}

		if err := bp.Rename(original); err != nil {
			return fmt.Errorf("restoring %q: %w", b, err)
		}
		r.backups = r.backups.Remove(b)

		if bp.IsDir() {
			r.userDirs = r.userDirs.Remove(b).Add(original.String())
			dirs, err := fswalk.AllDirs(original.String())
			if err == nil {
				r.userDirs = r.userDirs.Union(dirs)
			}
			files, err := fswalk.AllFiles(original.String())
			if err == nil {
				r.userFiles = r.userFiles.Union(files)
			}
		} else {
			r.userFiles = r.userFiles.Remove(b).Add(original.String())
		}
	}
	return nil
}

// lock tightens permissions on upstream-owned content: directories gain
// user rwx (so the next sync can still walk them), files lose every
// write bit. User-classified paths are never touched.
func (r *Reconciler) lock() error {
	for _, d := range r.gitDirs().Slice() {
		info, err := os.Stat(d)
		if err != nil {
			return err
		}
		if err := os.Chmod(d, info.Mode().Perm()|0o700); err != nil {
			return err
		}
	}
	for _, f := range r.gitFiles().Slice() {
		info, err := os.Stat(f)
		if err != nil {
			return err
		}
		if err := os.Chmod(f, info.Mode().Perm()&^0o222); err != nil {
			return err
		}
	}
	return nil
}

// copyInstructions copies the instructions file from programDir to
// repoDir and repoDir's parent, overwriting any existing contents, after
// locking (so the instructions file itself is never locked).
func (r *Reconciler) copyInstructions() error {
	return instructions.CopyTo(r.programDir, r.repoDir)
}

// validate re-runs porcelain status and requires every reported entry to
// be untracked (backups and the instructions file are, by design, the
// only things left untracked). When diff is true it additionally
// requires a clean diff against the configured validation ref.
func (r *Reconciler) validate(ctx context.Context, diff bool) error {
	status, err := r.vcs.Status(ctx, r.repoDir)
	if err != nil {
		return fmt.Errorf("validation status: %w", err)
	}
	for _, e := range statusparse.Parse(status) {
		if e.Kind != statusparse.Untracked {
			return fmt.Errorf("%w: unexpected status kind %s for %q", ErrValidationFailed, e.Kind, e.Path)
		}
	}

	if diff {
		ref := r.cfg.Validation.DiffRef
		if err := r.vcs.Diff(ctx, r.repoDir, ref); err != nil {
			return fmt.Errorf("%w: %w", ErrValidationFailed, err)
		}
	}

	return nil
}

// gitFiles returns every upstream-owned file: all files minus
// user-classified files minus the instructions file.
func (r *Reconciler) gitFiles() orderedset.Set[string] {
	instructions, err := pathkind.NewDir(r.repoDir).Join(instructionsFilename)
	if err != nil {
		return r.allFiles.Difference(r.userFiles)
	}
	return r.allFiles.Difference(r.userFiles).Remove(instructions.String())
}

// gitDirs returns every upstream-owned directory: all directories minus
// user-classified directories.
func (r *Reconciler) gitDirs() orderedset.Set[string] {
	return r.allDirs.Difference(r.userDirs)
}
