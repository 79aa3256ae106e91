// Command coursesync keeps a local checkout of a course repository
// continuously converged on a named upstream branch. It is the thin
// entry point described by the specification: parse arguments, consult
// the opt-out gate, construct the reconciler, and manage the log file's
// final location.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/coursesync/coursesync/internal/config"
	"github.com/coursesync/coursesync/internal/optout"
	"github.com/coursesync/coursesync/internal/profiling"
	"github.com/coursesync/coursesync/internal/reconcile"
	"github.com/coursesync/coursesync/internal/shellrun"
	"github.com/coursesync/coursesync/internal/synclog"
	"github.com/coursesync/coursesync/internal/vcsadapter"
	"github.com/spf13/cobra"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	verbose    bool
	profile    bool
	cfgFile    string
	sshKeyFile string
	tokenFile  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "coursesync <repo_url> <branch> <repo_dir>",
	Short: "Synchronize a local checkout with a course's upstream repository",
	Long: `coursesync brings a local working copy into alignment with a remote
branch while preserving user-introduced material under timestamped
backup names.

It repeatedly converges repo_dir toward origin/<branch>, tolerating and
recovering from arbitrarily damaged local state.`,
	Args:         cobra.ExactArgs(3),
	SilenceUsage: true,
	RunE:         runSync,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("coursesync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.Flags().BoolVarP(&profile, "profile", "p", false, "wrap the run in a cumulative-time profiler")
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults)")
	rootCmd.Flags().StringVar(&sshKeyFile, "ssh-key-file", "", "private key file for SSH remotes")
	rootCmd.Flags().StringVar(&tokenFile, "https-token-file", "", "token file for HTTPS remotes")

	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	repoURL, branch, repoDir := args[0], args[1], args[2]

	active, err := optout.Active()
	if err != nil {
		return fmt.Errorf("checking opt-out marker: %w", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}

	// Config must be loaded before the log sink opens: Log.Filename and
	// Log.Format choose how and where the sink writes.
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Validation.DiffRef = "origin/" + branch

	sink, err := synclog.Open(wd, cfg.Log.Filename, synclog.Format(cfg.Log.Format), verbose)
	if err != nil {
		return fmt.Errorf("opening log sink: %w", err)
	}
	logger := sink.Logger()
	if cfgFile != "" {
		logger.Debug("configuration loaded", "path", cfgFile, "diff_ref", cfg.Validation.DiffRef)
	}

	if active {
		logger.Info("opt-out marker present, skipping sync")
		return sink.Succeed()
	}

	ctx, cancel := setupSignalHandler()
	defer cancel()

	var prof *profiling.Profiler
	if profile {
		prof = profiling.New()
	}

	programDir, err := executableDir()
	if err != nil {
		_ = sink.Fail(repoDir)
		return fmt.Errorf("resolving program directory: %w", err)
	}

	vcs := vcsadapter.NewShellClient(sshKeyFile, tokenFile, shellrun.Options{
		Timeout:     cfg.Shell.Timeout(),
		Interpreter: cfg.Shell.Interpreter,
		Preamble:    cfg.Shell.Preamble,
	})
	r := reconcile.New(cfg, vcs, logger, repoURL, branch, repoDir, programDir)

	done := prof.Track("sync")
	logger.Info("starting sync", "repo", repoURL, "branch", branch, "dir", repoDir)
	syncErr := r.Sync(ctx)
	done()

	if profile {
		prof.Report(os.Stdout)
	}

	if syncErr != nil {
		logger.Error("sync failed", "error", syncErr)
		if failErr := sink.Fail(repoDir); failErr != nil {
			logger.Error("relocating failed log", "error", failErr)
		}
		return syncErr
	}

	logger.Info("sync complete")
	return sink.Succeed()
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	return config.Load(cfgFile)
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return filepath.Dir(exe), nil
	}
	return filepath.Dir(resolved), nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
