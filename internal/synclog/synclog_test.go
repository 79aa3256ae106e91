package synclog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpen_WritesLevelDashMessageFormat(t *testing.T) {
	dir := t.TempDir()
	sink, err := Open(dir, "", FormatText, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sink.Logger().Info("starting sync", "repo", "example")
	sink.Critical("something went very wrong")

	data, err := os.ReadFile(filepath.Join(dir, DefaultFilename))
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)

	if !strings.Contains(content, "INFO - starting sync repo=example") {
		t.Fatalf("expected INFO line, got %q", content)
	}
	if !strings.Contains(content, "CRITICAL - something went very wrong") {
		t.Fatalf("expected CRITICAL line, got %q", content)
	}
}

func TestOpen_VerboseEnablesDebug(t *testing.T) {
	dir := t.TempDir()
	sink, err := Open(dir, "", FormatText, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sink.Logger().Debug("debug detail")

	data, err := os.ReadFile(filepath.Join(dir, DefaultFilename))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "DEBUG - debug detail") {
		t.Fatalf("expected debug line to be present, got %q", data)
	}
}

func TestSucceed_RemovesLogFile(t *testing.T) {
	dir := t.TempDir()
	sink, err := Open(dir, "", FormatText, false)
	if err != nil {
		t.Fatal(err)
	}
	sink.Logger().Info("done")

	if err := sink.Succeed(); err != nil {
		t.Fatalf("Succeed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, DefaultFilename)); !os.IsNotExist(err) {
		t.Fatalf("expected log file to be removed, stat err = %v", err)
	}
}

func TestFail_RelocatesLogFileIntoRepoDir(t *testing.T) {
	dir := t.TempDir()
	repoDir := t.TempDir()

	sink, err := Open(dir, "", FormatText, false)
	if err != nil {
		t.Fatal(err)
	}
	sink.Logger().Error("sync failed")

	if err := sink.Fail(repoDir); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, DefaultFilename)); !os.IsNotExist(err) {
		t.Fatalf("expected original log file to be gone")
	}
	data, err := os.ReadFile(filepath.Join(repoDir, FailedFilename))
	if err != nil {
		t.Fatalf("expected failed log at repo_dir: %v", err)
	}
	if !strings.Contains(string(data), "ERROR - sync failed") {
		t.Fatalf("unexpected failed log content: %q", data)
	}
}

func TestFail_LeavesLogInPlaceWhenRepoDirNotADirectory(t *testing.T) {
	dir := t.TempDir()
	sink, err := Open(dir, "", FormatText, false)
	if err != nil {
		t.Fatal(err)
	}
	sink.Logger().Error("sync failed")

	if err := sink.Fail(filepath.Join(dir, "does-not-exist")); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, DefaultFilename)); err != nil {
		t.Fatalf("expected original log file to remain: %v", err)
	}
}

func TestOpen_JSONFormatEmitsStructuredRecords(t *testing.T) {
	dir := t.TempDir()
	sink, err := Open(dir, "", FormatJSON, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sink.Logger().Info("starting sync", "repo", "example")

	data, err := os.ReadFile(filepath.Join(dir, DefaultFilename))
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)

	if strings.Contains(content, "INFO - starting sync") {
		t.Fatalf("expected JSON format, got line format: %q", content)
	}
	if !strings.Contains(content, `"msg":"starting sync"`) || !strings.Contains(content, `"repo":"example"`) {
		t.Fatalf("expected JSON fields in output, got %q", content)
	}
}
