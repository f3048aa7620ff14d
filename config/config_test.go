package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "settings.yaml", `
email: me@example.com
keywords: [golang, backend]
locations: [europe]
simulation_mode: true
max_submissions_per_session: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Email != "me@example.com" {
		t.Fatalf("Email = %q", cfg.Email)
	}
	if !cfg.SimulationMode {
		t.Fatal("SimulationMode = false, want true")
	}
	if cfg.MaxSubmissionsPerSession != 5 {
		t.Fatalf("MaxSubmissionsPerSession = %d, want 5", cfg.MaxSubmissionsPerSession)
	}
	// Defaults applied.
	if cfg.SortOrder != "recent" {
		t.Fatalf("SortOrder = %q, want recent", cfg.SortOrder)
	}
	if cfg.RecoveryRetries != 3 {
		t.Fatalf("RecoveryRetries = %d, want 3", cfg.RecoveryRetries)
	}
	if cfg.NavTimeout != 30*time.Second {
		t.Fatalf("NavTimeout = %v, want 30s", cfg.NavTimeout)
	}
	if !cfg.RetryFailedPolicy() {
		t.Fatal("RetryFailedPolicy = false, want default true")
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "settings.yaml", `
email: yaml@example.com
keywords: [golang]
locations: [asia]
max_submissions_per_session: 5
`)

	t.Setenv("TALENTPILOT_EMAIL", "env@example.com")
	t.Setenv("TALENTPILOT_MAX_SUBMISSIONS_PER_SESSION", "2")
	t.Setenv("TALENTPILOT_KEYWORDS", "sre, platform engineer")
	t.Setenv("TALENTPILOT_SIMULATION_MODE", "true")
	t.Setenv("TALENTPILOT_RETRY_FAILED", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Email != "env@example.com" {
		t.Fatalf("Email = %q, want env override", cfg.Email)
	}
	if cfg.MaxSubmissionsPerSession != 2 {
		t.Fatalf("MaxSubmissionsPerSession = %d, want 2", cfg.MaxSubmissionsPerSession)
	}
	if len(cfg.Keywords) != 2 || cfg.Keywords[0] != "sre" || cfg.Keywords[1] != "platform engineer" {
		t.Fatalf("Keywords = %v", cfg.Keywords)
	}
	if !cfg.SimulationMode {
		t.Fatal("SimulationMode = false, want env true")
	}
	if cfg.RetryFailedPolicy() {
		t.Fatal("RetryFailedPolicy = true, want env false")
	}
}

func TestLoadMissingFileEnvOnly(t *testing.T) {
	t.Setenv("TALENTPILOT_EMAIL", "env@example.com")
	t.Setenv("TALENTPILOT_KEYWORDS", "golang")
	t.Setenv("TALENTPILOT_LOCATIONS", "europe")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load without file: %v", err)
	}
	if cfg.Email != "env@example.com" {
		t.Fatalf("Email = %q", cfg.Email)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing email", "keywords: [a]\nlocations: [b]\n"},
		{"missing keywords", "email: x@y.z\nlocations: [b]\n"},
		{"missing locations", "email: x@y.z\nkeywords: [a]\n"},
		{"negative cap", "email: x@y.z\nkeywords: [a]\nlocations: [b]\nmax_submissions_per_session: -1\n"},
		{"bad sort order", "email: x@y.z\nkeywords: [a]\nlocations: [b]\nsort_order: upside-down\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "settings.yaml", tt.yaml)
			_, err := Load(path)
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Load = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadAnswersNormalizesKeys(t *testing.T) {
	path := writeFile(t, "answers.yaml", `
text:
  "Years of Experience": "4"
  "  Notice Period ": "30 days"
radio:
  "Willing to Relocate": "Yes"
dropdown:
  "English Proficiency": "Professional"
`)

	a, err := LoadAnswers(path)
	if err != nil {
		t.Fatalf("LoadAnswers: %v", err)
	}
	if a.Text["years of experience"] != "4" {
		t.Fatalf("text answer = %q", a.Text["years of experience"])
	}
	if a.Text["notice period"] != "30 days" {
		t.Fatalf("trimmed key lookup = %q", a.Text["notice period"])
	}
	if a.Radio["willing to relocate"] != "Yes" {
		t.Fatalf("radio answer = %q", a.Radio["willing to relocate"])
	}
	if a.Dropdown["english proficiency"] != "Professional" {
		t.Fatalf("dropdown answer = %q", a.Dropdown["english proficiency"])
	}
}

func TestLoadAnswersMissingFile(t *testing.T) {
	a, err := LoadAnswers(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("LoadAnswers: %v", err)
	}
	if a.Text == nil || a.Radio == nil || a.Dropdown == nil {
		t.Fatal("maps should be initialised for a missing file")
	}
}
