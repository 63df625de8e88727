package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const noopRego = `package repop.custom.noop

import rego.v1

deny contains msg if {
	false
	msg := "never"
}
`

func newTestLoader() *Loader {
	return NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := newTestLoader()
	path := filepath.Join(t.TempDir(), "max-units.rego")
	content := "# Caps the number of units.\n# severity: critical\n" + noopRego
	writeFile(t, path, content)

	policy, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "max-units" {
		t.Errorf("Expected name 'max-units', got '%s'", policy.Name)
	}
	if policy.Rego != content {
		t.Error("Rego content doesn't match")
	}
	if policy.Severity != SeverityCritical {
		t.Errorf("Expected severity critical, got %s", policy.Severity)
	}
	if policy.Source != path {
		t.Errorf("Expected source %s, got %s", path, policy.Source)
	}
	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()

	named := Policy{Name: "named", Description: "A JSON policy", Rego: noopRego, Severity: SeverityError, Enabled: true}
	data, err := json.Marshal(named)
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}
	writeFile(t, filepath.Join(dir, "named.json"), string(data))
	writeFile(t, filepath.Join(dir, "fallback.json"), `{"rego": "package x", "enabled": true}`)

	tests := []struct {
		file     string
		name     string
		severity Severity
	}{
		{file: "named.json", name: "named", severity: SeverityError},
		{file: "fallback.json", name: "fallback", severity: SeverityWarning},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			loaded, err := loader.loadFromFile(context.Background(), filepath.Join(dir, tt.file))
			if err != nil {
				t.Fatalf("Failed to load policy: %v", err)
			}
			if loaded.Name != tt.name {
				t.Errorf("Expected name '%s', got '%s'", tt.name, loaded.Name)
			}
			if loaded.Severity != tt.severity {
				t.Errorf("Expected severity '%s', got '%s'", tt.severity, loaded.Severity)
			}
		})
	}
}

func TestLoadFromDirectory(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()
	sub := filepath.Join(dir, "blends")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}

	writeFile(t, filepath.Join(dir, "a.rego"), noopRego)
	writeFile(t, filepath.Join(sub, "b.rego"), noopRego)
	writeFile(t, filepath.Join(dir, "README.md"), "# policies")
	writeFile(t, filepath.Join(dir, "broken.json"), "not json")

	loaded, err := loader.loadFromDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(loaded) != 2 {
		t.Errorf("Expected 2 policies (broken and non-policy files skipped), got %d", len(loaded))
	}
}

func TestLoadFromPaths(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	if err := os.Mkdir(nested, 0o755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	writeFile(t, filepath.Join(nested, "one.rego"), noopRego)
	single := filepath.Join(dir, "two.rego")
	writeFile(t, single, noopRego)

	loaded, err := loader.LoadFromPaths(context.Background(), []string{nested, single})
	if err != nil {
		t.Fatalf("Failed to load paths: %v", err)
	}
	if len(loaded) != 2 {
		t.Errorf("Expected 2 policies, got %d", len(loaded))
	}

	if _, err := loader.LoadFromPaths(context.Background(), []string{"/nonexistent/path"}); err == nil {
		t.Error("Expected error for non-existent path")
	}
}

func TestExtractHeader(t *testing.T) {
	loader := newTestLoader()

	tests := []struct {
		name        string
		content     string
		description string
		severity    Severity
	}{
		{
			name:        "single line",
			content:     "# Flags heavy units\npackage test",
			description: "Flags heavy units",
			severity:    SeverityWarning,
		},
		{
			name:        "multi line with blank comment",
			content:     "# First line\n#\n# second line\npackage test",
			description: "First line second line",
			severity:    SeverityWarning,
		},
		{
			name:        "severity line",
			content:     "# Blocks runs\n# severity: error\npackage test",
			description: "Blocks runs",
			severity:    SeverityError,
		},
		{
			name:        "leading blank lines",
			content:     "\n\n# Late header\npackage test",
			description: "Late header",
			severity:    SeverityWarning,
		},
		{
			name:        "comments after package ignored",
			content:     "package test\n# severity: critical",
			description: "",
			severity:    SeverityWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			description, severity := loader.extractHeader(tt.content)
			if description != tt.description {
				t.Errorf("Expected description '%s', got '%s'", tt.description, description)
			}
			if severity != tt.severity {
				t.Errorf("Expected severity '%s', got '%s'", tt.severity, severity)
			}
		})
	}
}

func TestClearCache(t *testing.T) {
	loader := newTestLoader()
	path := filepath.Join(t.TempDir(), "cached.rego")
	writeFile(t, path, noopRego)

	if _, err := loader.loadFromFile(context.Background(), path); err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(loader.cache) != 1 {
		t.Errorf("Expected 1 cache entry, got %d", len(loader.cache))
	}

	loader.ClearCache()
	if len(loader.cache) != 0 {
		t.Errorf("Expected 0 cache entries after clear, got %d", len(loader.cache))
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a policy")
	writeFile(t, filepath.Join(dir, "bad.json"), "invalid json")

	for _, name := range []string{"notes.txt", "bad.json", "missing.rego"} {
		t.Run(name, func(t *testing.T) {
			if _, err := loader.loadFromFile(context.Background(), filepath.Join(dir, name)); err == nil {
				t.Errorf("Expected error loading %s", name)
			}
		})
	}
}

func TestLoadFromFile_CacheFollowsModTime(t *testing.T) {
	loader := newTestLoader()
	path := filepath.Join(t.TempDir(), "described.rego")
	writeFile(t, path, "# First version.\n"+noopRego)

	first, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	again, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if again != first {
		t.Error("Expected unchanged file to be served from cache")
	}

	writeFile(t, path, "# Second version.\n"+noopRego)
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("Failed to touch policy: %v", err)
	}

	changed, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if changed.Description != "Second version." {
		t.Errorf("Expected description 'Second version.', got '%s'", changed.Description)
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	loader := newTestLoader()
	loader.debounce = 20 * time.Millisecond
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "first.rego"), noopRego)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Policy, 4)
	err := loader.Watch(ctx, []string{dir}, func(policies []Policy) error {
		reloaded <- policies
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to start watching: %v", err)
	}

	writeFile(t, filepath.Join(dir, "second.rego"), noopRego)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case policies := <-reloaded:
			if len(policies) == 2 {
				return
			}
		case <-deadline:
			t.Fatal("Expected reload with two policies")
		}
	}
}
