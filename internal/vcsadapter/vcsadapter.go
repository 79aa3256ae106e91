// Package vcsadapter is a thin porcelain-style wrapper over the VCS
// primitives the reconciler needs: blobless clone, safe-directory
// configuration, remote management, fetch, index reset, working-tree
// checkout from the index and from a remote-tracking ref, status, and
// diff. Every call shells out through internal/shellrun, following the
// same exec.CommandContext pattern internal/git's ShellClient uses, kept
// behind a single interface so the reconciler never depends on the git
// binary directly.
package vcsadapter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/coursesync/coursesync/internal/shellrun"
)

// ErrDiffNotClean is returned by Diff when the working tree differs from
// the compared ref; the reconciler's validation step treats this as a
// fatal invariant violation rather than triggering recovery.
var ErrDiffNotClean = errors.New("vcsadapter: working tree differs from ref")

// Client is the VCS-adapter surface the reconciler depends on. Keeping
// every VCS call behind this interface lets coursesync be ported to any
// porcelain-compatible backend without touching the reconciler.
type Client interface {
	// Clone performs a shallow blobless clone (filter=blob:none) of url
	// at branch into dir. dir must not already exist.
	Clone(ctx context.Context, url, branch, dir string) error
	// ConfigureSafeDirectory marks dir as a safe.directory for the
	// invoking user, needed because the checkout may be owned by a
	// different uid than the one running the sync.
	ConfigureSafeDirectory(ctx context.Context, dir string) error
	// SetRemote deletes name if it already exists in dir, then adds it
	// pointing at url.
	SetRemote(ctx context.Context, dir, name, url string) error
	// Fetch fetches branch from origin into dir.
	Fetch(ctx context.Context, dir, branch string) error
	// ResetIndex unstages everything in dir, leaving the working tree
	// untouched.
	ResetIndex(ctx context.Context, dir string) error
	// CheckoutIndex restores the working tree in dir from the index.
	CheckoutIndex(ctx context.Context, dir string) error
	// CheckoutRef checks out ref (typically a remote-tracking branch
	// such as origin/main) into the working tree and index of dir and
	// moves HEAD to it (detached), so that status reports no tracked
	// changes against ref afterwards.
	CheckoutRef(ctx context.Context, dir, ref string) error
	// Status returns the raw porcelain-v1 status output for dir.
	Status(ctx context.Context, dir string) (string, error)
	// Diff returns nil if dir's working tree is identical to ref, or
	// ErrDiffNotClean otherwise. The diff runs with --quiet, so the error
	// names the ref and directory but carries no diff output.
	Diff(ctx context.Context, dir, ref string) error
}

// ShellClient implements Client by shelling out to the git binary.
type ShellClient struct {
	sshKeyFile     string
	httpsTokenFile string

	// shellOpts carries the caller's Timeout/Interpreter/Preamble,
	// sourced from config.ShellConfig. Script/Dir/Check/Capture/Env are
	// set per call on top of a copy of this base.
	shellOpts shellrun.Options
}

// NewShellClient constructs a ShellClient. Either sshKeyFile or
// httpsTokenFile may be empty; both empty means no auth is configured
// and only unauthenticated remotes will succeed. shellOpts supplies the
// Timeout/Interpreter/Preamble every invocation runs with; its
// Script/Dir/Check/Capture/Env fields are ignored (each call sets its
// own). A zero-value shellOpts falls through to shellrun's own
// defaults.
func NewShellClient(sshKeyFile, httpsTokenFile string, shellOpts shellrun.Options) *ShellClient {
	return &ShellClient{
		sshKeyFile:     sshKeyFile,
		httpsTokenFile: httpsTokenFile,
		shellOpts: shellrun.Options{
			Timeout:     shellOpts.Timeout,
			Interpreter: shellOpts.Interpreter,
			Preamble:    shellOpts.Preamble,
		},
	}
}

// base returns a copy of the client's configured Timeout/Interpreter/
// Preamble, ready for a call site to fill in Script/Dir/Check/Capture/
// Env.
func (c *ShellClient) base() shellrun.Options {
	return c.shellOpts
}

func (c *ShellClient) Clone(ctx context.Context, url, branch, dir string) error {
	env, err := c.authEnv(url)
	if err != nil {
		return err
	}
	script := fmt.Sprintf("git clone --filter=blob:none --branch %s %s %s\n",
		shellQuote(branch), shellQuote(url), shellQuote(dir))
	opts := c.base()
	opts.Script, opts.Check, opts.Env = script, true, env
	_, err = shellrun.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("vcsadapter: clone %q: %w", url, err)
	}
	return nil
}

func (c *ShellClient) ConfigureSafeDirectory(ctx context.Context, dir string) error {
	script := fmt.Sprintf("git config --global --add safe.directory %s\n", shellQuote(dir))
	opts := c.base()
	opts.Script, opts.Check = script, true
	_, err := shellrun.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("vcsadapter: configure safe directory %q: %w", dir, err)
	}
	return nil
}

func (c *ShellClient) SetRemote(ctx context.Context, dir, name, url string) error {
	script := fmt.Sprintf(
		"git remote remove %s || true\ngit remote add %s %s\n",
		shellQuote(name), shellQuote(name), shellQuote(url),
	)
	opts := c.base()
	opts.Dir, opts.Script, opts.Check = dir, script, true
	_, err := shellrun.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("vcsadapter: set remote %q on %q: %w", name, dir, err)
	}
	return nil
}

func (c *ShellClient) Fetch(ctx context.Context, dir, branch string) error {
	env, err := c.authEnvFromRemote(ctx, dir)
	if err != nil {
		return err
	}
	script := fmt.Sprintf("git fetch origin %s\n", shellQuote(branch))
	opts := c.base()
	opts.Dir, opts.Script, opts.Check, opts.Env = dir, script, true, env
	_, err = shellrun.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("vcsadapter: fetch %q in %q: %w", branch, dir, err)
	}
	return nil
}

func (c *ShellClient) ResetIndex(ctx context.Context, dir string) error {
	opts := c.base()
	opts.Dir, opts.Script, opts.Check = dir, "git reset\n", true
	_, err := shellrun.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("vcsadapter: reset index in %q: %w", dir, err)
	}
	return nil
}

func (c *ShellClient) CheckoutIndex(ctx context.Context, dir string) error {
	opts := c.base()
	opts.Dir, opts.Script, opts.Check = dir, "git checkout -- .\n", true
	_, err := shellrun.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("vcsadapter: checkout index in %q: %w", dir, err)
	}
	return nil
}

func (c *ShellClient) CheckoutRef(ctx context.Context, dir, ref string) error {
	script := fmt.Sprintf("git checkout %s\n", shellQuote(ref))
	opts := c.base()
	opts.Dir, opts.Script, opts.Check = dir, script, true
	_, err := shellrun.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("vcsadapter: checkout ref %q in %q: %w", ref, dir, err)
	}
	return nil
}

func (c *ShellClient) Status(ctx context.Context, dir string) (string, error) {
	opts := c.base()
	opts.Dir, opts.Script, opts.Check, opts.Capture = dir, "git status --porcelain\n", true, true
	res, err := shellrun.Run(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("vcsadapter: status in %q: %w", dir, err)
	}
	return res.Stdout, nil
}

func (c *ShellClient) Diff(ctx context.Context, dir, ref string) error {
	script := fmt.Sprintf("git diff --quiet %s\n", shellQuote(ref))
	opts := c.base()
	opts.Dir, opts.Script, opts.Check, opts.Capture = dir, script, false, true
	res, err := shellrun.Run(ctx, opts.WithNoPreamble())
	if err != nil {
		return fmt.Errorf("vcsadapter: diff against %q in %q: %w", ref, dir, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: ref %q in %q", ErrDiffNotClean, ref, dir)
	}
	return nil
}

// authEnv returns the environment entries needed to authenticate a
// direct operation (clone) against url, nearly verbatim from the
// teacher's configureAuth.
func (c *ShellClient) authEnv(url string) ([]string, error) {
	if c.sshKeyFile != "" && (strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")) {
		sshCmd := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -F /dev/null", shellQuote(c.sshKeyFile))
		return []string{"GIT_SSH_COMMAND=" + sshCmd}, nil
	}

	if c.httpsTokenFile != "" && strings.HasPrefix(url, "https://") {
		token, err := os.ReadFile(c.httpsTokenFile)
		if err != nil {
			return nil, fmt.Errorf("vcsadapter: reading HTTPS token file: %w", err)
		}
		tokenStr := strings.TrimSpace(string(token))
		return []string{
			"GIT_TERMINAL_PROMPT=0",
			"COURSESYNC_GIT_TOKEN=" + tokenStr,
			"GIT_CONFIG_COUNT=1",
			`GIT_CONFIG_KEY_0=credential.helper`,
			`GIT_CONFIG_VALUE_0=!f() { echo "username=x-access-token"; echo "password=$COURSESYNC_GIT_TOKEN"; }; f`,
		}, nil
	}

	return nil, nil
}

// authEnvFromRemote reads the origin URL already configured in dir and
// derives auth env the same way authEnv does, used by Fetch which no
// longer has the original url in hand.
func (c *ShellClient) authEnvFromRemote(ctx context.Context, dir string) ([]string, error) {
	opts := c.base()
	opts.Dir, opts.Script, opts.Check, opts.Capture = dir, "git remote get-url origin\n", true, true
	res, err := shellrun.Run(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("vcsadapter: resolving origin url in %q: %w", dir, err)
	}
	return c.authEnv(strings.TrimSpace(res.Stdout))
}

// shellQuote wraps s in single quotes, escaping any embedded single
// quotes, matching internal/git's helper of the same name.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
