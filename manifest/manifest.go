// Package manifest handles grumpy.toml project configuration.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
	"gopkg.in/yaml.v3"
)

var log = commonlog.GetLogger("grumpy.manifest")

// File names searched for, in order.
var FileNames = []string{"grumpy.toml", "grumpy.yaml", "grumpy.yml"}

// Manifest represents a grumpy.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project" yaml:"project" json:"project"`
	Source  Source       `toml:"source" yaml:"source" json:"source"`
	Build   BuildConfig  `toml:"build" yaml:"build" json:"build"`
	Cache   CacheConfig  `toml:"cache" yaml:"cache" json:"cache"`
	Run     RunConfig    `toml:"run" yaml:"run" json:"run"`
	Server  ServerConfig `toml:"server" yaml:"server" json:"server"`

	// Dir is the directory containing the manifest file (set at load time).
	Dir string `toml:"-" yaml:"-" json:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name" yaml:"name" json:"name"`
	Version string `toml:"version" yaml:"version" json:"version"`
}

// Source configures the program entry file.
type Source struct {
	Entry string `toml:"entry" yaml:"entry" json:"entry"`
}

// BuildConfig configures compilation and bytecode output.
type BuildConfig struct {
	Output   string `toml:"output" yaml:"output" json:"output"`
	MaxDepth int    `toml:"max-depth" yaml:"max-depth" json:"max-depth"`
}

// CacheConfig configures the build cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
	Path    string `toml:"path" yaml:"path" json:"path"`
}

// RunConfig bounds program execution. Zero MaxSteps means unlimited.
type RunConfig struct {
	MaxSteps int `toml:"max-steps" yaml:"max-steps" json:"max-steps"`
	MaxStack int `toml:"max-stack" yaml:"max-stack" json:"max-stack"`
	MaxHeap  int `toml:"max-heap" yaml:"max-heap" json:"max-heap"` // cells
}

// ServerConfig configures the compile service listeners.
type ServerConfig struct {
	Port     int `toml:"port" yaml:"port" json:"port"`
	GRPCPort int `toml:"grpc-port" yaml:"grpc-port" json:"grpc-port"`
}

// Default returns the configuration used when no manifest exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Source.Entry == "" {
		m.Source.Entry = "main.gpy"
	}
	if m.Build.MaxDepth == 0 {
		m.Build.MaxDepth = 512
	}
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".grumpy", "cache.db")
	}
	if m.Run.MaxStack == 0 {
		m.Run.MaxStack = 1 << 16
	}
	if m.Run.MaxHeap == 0 {
		m.Run.MaxHeap = 1 << 22
	}
	if m.Server.Port == 0 {
		m.Server.Port = 8080
	}
	if m.Server.GRPCPort == 0 {
		m.Server.GRPCPort = 9090
	}
}

// Load parses the manifest in the given directory.
func Load(dir string) (*Manifest, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, fmt.Errorf("no manifest in %s (looked for %s)", dir, strings.Join(FileNames, ", "))
}

// LoadFile parses a manifest file. The format follows the extension:
// .yaml and .yml are YAML, anything else is TOML.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	default:
		md, err := toml.Decode(string(data), &m)
		if err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	m.applyDefaults()
	if err := Validate(&m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debugf("loaded manifest %s", path)
	return &m, nil
}

// FindAndLoad walks up from startDir to find a manifest file, then loads
// and returns it. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return LoadFile(path)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// resolve makes p absolute relative to the manifest directory.
func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// EntryPath returns the absolute path of the entry source file.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Source.Entry)
}

// OutputPath returns the absolute path for built bytecode. When no output
// is configured it is the entry path with a .gbc extension.
func (m *Manifest) OutputPath() string {
	if m.Build.Output != "" {
		return m.resolve(m.Build.Output)
	}
	entry := m.EntryPath()
	return strings.TrimSuffix(entry, filepath.Ext(entry)) + ".gbc"
}

// CachePath returns the absolute path of the build cache database.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}
