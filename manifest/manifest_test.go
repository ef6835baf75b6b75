package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "grumpy.toml"), `
[project]
name = "test-app"
version = "0.1.0"

[source]
entry = "src/fact.gpy"

[build]
output = "out/fact.gbc"
max-depth = 64

[cache]
enabled = true
path = "build/cache.db"

[run]
max-steps = 100000
max-stack = 1024
max-heap = 4096

[server]
port = 7070
grpc-port = 7071
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if m.Source.Entry != "src/fact.gpy" {
		t.Errorf("source entry = %q, want src/fact.gpy", m.Source.Entry)
	}
	if m.Build.MaxDepth != 64 {
		t.Errorf("build max-depth = %d, want 64", m.Build.MaxDepth)
	}
	if !m.Cache.Enabled {
		t.Error("cache enabled = false, want true")
	}
	if m.Run.MaxSteps != 100000 || m.Run.MaxStack != 1024 || m.Run.MaxHeap != 4096 {
		t.Errorf("run = %+v, want max-steps 100000, max-stack 1024, max-heap 4096", m.Run)
	}
	if m.Server.Port != 7070 || m.Server.GRPCPort != 7071 {
		t.Errorf("server = %+v, want 7070/7071", m.Server)
	}
	if got, want := m.EntryPath(), filepath.Join(m.Dir, "src", "fact.gpy"); got != want {
		t.Errorf("EntryPath = %q, want %q", got, want)
	}
	if got, want := m.OutputPath(), filepath.Join(m.Dir, "out", "fact.gbc"); got != want {
		t.Errorf("OutputPath = %q, want %q", got, want)
	}
	if got, want := m.CachePath(), filepath.Join(m.Dir, "build", "cache.db"); got != want {
		t.Errorf("CachePath = %q, want %q", got, want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "grumpy.toml"), `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Source.Entry != "main.gpy" {
		t.Errorf("default entry = %q, want main.gpy", m.Source.Entry)
	}
	if m.Build.MaxDepth != 512 {
		t.Errorf("default max-depth = %d, want 512", m.Build.MaxDepth)
	}
	if m.Run.MaxSteps != 0 {
		t.Errorf("default max-steps = %d, want 0", m.Run.MaxSteps)
	}
	if m.Run.MaxHeap != 1<<22 {
		t.Errorf("default max-heap = %d, want %d", m.Run.MaxHeap, 1<<22)
	}
	if got, want := m.OutputPath(), filepath.Join(m.Dir, "main.gbc"); got != want {
		t.Errorf("OutputPath = %q, want %q", got, want)
	}
	if m.Cache.Enabled {
		t.Error("cache should be disabled by default")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "grumpy.yaml"), `
project:
  name: yaml-app
source:
  entry: prog.gpy
run:
  max-steps: 500
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Name != "yaml-app" {
		t.Errorf("project name = %q, want yaml-app", m.Project.Name)
	}
	if m.Run.MaxSteps != 500 {
		t.Errorf("max-steps = %d, want 500", m.Run.MaxSteps)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"unknown toml key", "grumpy.toml", "[project]\nnmae = \"x\"\n", "unknown keys"},
		{"unknown yaml key", "grumpy.yaml", "project:\n  nmae: x\n", "nmae"},
		{"bad entry extension", "grumpy.toml", "[source]\nentry = \"main.go\"\n", "invalid manifest"},
		{"port out of range", "grumpy.toml", "[server]\nport = 70000\n", "invalid manifest"},
		{"negative steps", "grumpy.toml", "[run]\nmax-steps = -1\n", "invalid manifest"},
		{"toml syntax", "grumpy.toml", "[project\n", "parse error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, tc.file), tc.content)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "grumpy.toml"), "[project]\nname = \"found-project\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
	if m.Dir != dir {
		t.Errorf("Dir = %q, want %q", m.Dir, dir)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no grumpy.toml exists")
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Errorf("Default() does not validate: %v", err)
	}
}
