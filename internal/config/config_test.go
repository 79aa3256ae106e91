package config

import (
	"os"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Shell.TimeoutSeconds != 120 {
		t.Errorf("Shell.TimeoutSeconds = %d, want 120", cfg.Shell.TimeoutSeconds)
	}
	if cfg.Shell.Interpreter != "/bin/bash" {
		t.Errorf("Shell.Interpreter = %q, want /bin/bash", cfg.Shell.Interpreter)
	}
	if cfg.Shell.Preamble != "set -eux -o pipefail\n" {
		t.Errorf("Shell.Preamble = %q, want the strict-mode preamble", cfg.Shell.Preamble)
	}
	if cfg.Validation.DiffRef != "origin/main" {
		t.Errorf("Validation.DiffRef = %q, want origin/main", cfg.Validation.DiffRef)
	}
	if cfg.Log.Format != LogFormatText {
		t.Errorf("Log.Format = %q, want text", cfg.Log.Format)
	}
	if cfg.Log.Filename != "gs4.log" {
		t.Errorf("Log.Filename = %q, want gs4.log", cfg.Log.Filename)
	}
}

func TestLoad_OverlaysOntoDefaults(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "coursesync-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.Remove(tmpfile.Name())
	}()

	content := `
shell:
  timeout_seconds: 30

log:
  format: json
  filename: custom.log
`
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Shell.TimeoutSeconds != 30 {
		t.Errorf("Shell.TimeoutSeconds = %d, want 30 (explicit override)", cfg.Shell.TimeoutSeconds)
	}
	if cfg.Shell.Interpreter != "/bin/bash" {
		t.Errorf("Shell.Interpreter = %q, want default /bin/bash to survive overlay", cfg.Shell.Interpreter)
	}
	if cfg.Validation.DiffRef != "origin/main" {
		t.Errorf("Validation.DiffRef = %q, want default origin/main to survive overlay", cfg.Validation.DiffRef)
	}
	if cfg.Log.Format != LogFormatJSON {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
	if cfg.Log.Filename != "custom.log" {
		t.Errorf("Log.Filename = %q, want custom.log", cfg.Log.Filename)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/to/config.yaml"); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "coursesync-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.Remove(tmpfile.Name())
	}()

	if _, err := tmpfile.WriteString("shell: [this is not a mapping"); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(tmpfile.Name()); err == nil {
		t.Fatalf("expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "defaults are valid",
			cfg:  *Default(),
		},
		{
			name: "non-positive timeout",
			cfg: Config{
				Shell: ShellConfig{TimeoutSeconds: 0, Interpreter: "/bin/bash"},
				Log:   LogConfig{Format: LogFormatText},
			},
			wantErr: true,
		},
		{
			name: "relative interpreter path",
			cfg: Config{
				Shell: ShellConfig{TimeoutSeconds: 120, Interpreter: "bash"},
				Log:   LogConfig{Format: LogFormatText},
			},
			wantErr: true,
		},
		{
			name: "invalid log format",
			cfg: Config{
				Shell: ShellConfig{TimeoutSeconds: 120, Interpreter: "/bin/bash"},
				Log:   LogConfig{Format: "xml"},
			},
			wantErr: true,
		},
		{
			name: "json log format is valid",
			cfg: Config{
				Shell: ShellConfig{TimeoutSeconds: 120, Interpreter: "/bin/bash"},
				Log:   LogConfig{Format: LogFormatJSON},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestShellConfig_Timeout(t *testing.T) {
	s := ShellConfig{TimeoutSeconds: 30}
	if got := s.Timeout().Seconds(); got != 30 {
		t.Errorf("Timeout() = %v seconds, want 30", got)
	}
}

func TestApplyDefaults_DoesNotOverwriteExplicitValues(t *testing.T) {
	cfg := Config{
		Shell: ShellConfig{TimeoutSeconds: 5, Interpreter: "/usr/bin/zsh", Preamble: "set -e\n"},
		Validation: ValidationConfig{
			DiffRef: "origin/release",
		},
		Log: LogConfig{Format: LogFormatJSON, Filename: "other.log"},
	}
	cfg.applyDefaults()

	if cfg.Shell.TimeoutSeconds != 5 {
		t.Errorf("TimeoutSeconds overwritten, got %d, want 5", cfg.Shell.TimeoutSeconds)
	}
	if cfg.Shell.Interpreter != "/usr/bin/zsh" {
		t.Errorf("Interpreter overwritten, got %q, want /usr/bin/zsh", cfg.Shell.Interpreter)
	}
	if cfg.Validation.DiffRef != "origin/release" {
		t.Errorf("DiffRef overwritten, got %q, want origin/release", cfg.Validation.DiffRef)
	}
	if cfg.Log.Filename != "other.log" {
		t.Errorf("Filename overwritten, got %q, want other.log", cfg.Log.Filename)
	}
}
