// internal/config/config.go
//
// This package handles launcher configuration and the on-disk layout of the
// game root. Every root gets a launcher.yaml next to its versions/ folder.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultRoot is the directory used when neither --root nor
	// CRAFTLAUNCH_ROOT is provided.
	DefaultRoot = ".minecraft"

	// RootEnv overrides DefaultRoot.
	RootEnv = "CRAFTLAUNCH_ROOT"

	// FileName is the configuration file inside the root.
	FileName = "launcher.yaml"

	defaultVersionID = "1.21"
	defaultParallel  = 4
	defaultTimeout   = 5 * time.Minute
	defaultMinHeap   = "1G"
	defaultMaxHeap   = "2G"
)

const defaultSettingsYAML = `# craftlaunch configuration
version: 1

# Version launched when none is selected.
default_version: "1.21"

java:
  # Leave empty to use <root>/java/bin/java.
  path: ""
  min_heap: 1G
  max_heap: 2G

downloads:
  # Number of libraries fetched concurrently.
  parallel: 4
  # Per-artifact transfer timeout.
  timeout: 5m

natives:
  # Library classifier whose archives are unpacked (natives-windows,
  # natives-linux, natives-macos). Empty picks the host platform.
  classifier: ""
`

var heapPattern = regexp.MustCompile(`^[0-9]+[KkMmGg]?$`)

// JavaConfig selects the runtime executable and its heap bounds.
type JavaConfig struct {
	Path    string `yaml:"path"`
	MinHeap string `yaml:"min_heap"`
	MaxHeap string `yaml:"max_heap"`
}

// DownloadConfig tunes the artifact fetcher.
type DownloadConfig struct {
	Parallel int           `yaml:"parallel"`
	Timeout  time.Duration `yaml:"timeout"`
}

// NativesConfig controls which libraries are treated as native archives.
type NativesConfig struct {
	Classifier string `yaml:"classifier"`
}

// Settings models <root>/launcher.yaml.
type Settings struct {
	Version        int            `yaml:"version"`
	DefaultVersion string         `yaml:"default_version"`
	Java           JavaConfig     `yaml:"java"`
	Downloads      DownloadConfig `yaml:"downloads"`
	Natives        NativesConfig  `yaml:"natives"`
}

// Config holds the runtime configuration for the launcher.
type Config struct {
	// Root is the absolute game root (".minecraft" by default).
	Root string

	Settings Settings
}

// Layout is the set of paths derived from a root and a version id. It is
// computed once per launch attempt and never mutated.
type Layout struct {
	Root         string
	VersionID    string
	VersionDir   string
	ManifestPath string
	MainArchive  string
	LibrariesDir string
	NativesDir   string
	GameDir      string
	AssetsDir    string
}

// ResolveRoot picks the root directory: an explicit value wins, then the
// CRAFTLAUNCH_ROOT environment variable, then DefaultRoot.
func ResolveRoot(explicit string) string {
	if root := strings.TrimSpace(explicit); root != "" {
		return root
	}
	if root := strings.TrimSpace(os.Getenv(RootEnv)); root != "" {
		return root
	}
	return DefaultRoot
}

// InitRoot creates the directory skeleton of a game root.
//
// Structure created:
// <root>/
// ├── versions/     <- one folder per installed version
// ├── natives/      <- extracted native libraries per version
// ├── logs/         <- launcher.log
// └── launcher.yaml
func InitRoot(root string) error {
	dirs := []string{
		filepath.Join(root, "versions"),
		filepath.Join(root, "natives"),
		filepath.Join(root, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return ensureSettings(filepath.Join(root, FileName))
}

// Load reads the configuration rooted at root. A missing launcher.yaml
// yields the defaults.
func Load(root string) (*Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("config: resolve root %s: %w", root, err)
	}
	cfg := &Config{Root: abs, Settings: defaultSettings()}
	if err := cfg.loadSettings(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the on-disk location of launcher.yaml.
func (c *Config) Path() string {
	return filepath.Join(c.Root, FileName)
}

// VersionsDir returns the directory holding installed versions.
func (c *Config) VersionsDir() string {
	return filepath.Join(c.Root, "versions")
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.Root, "logs")
}

// JavaPath returns the runtime executable. The location does not depend on
// the version being launched.
func (c *Config) JavaPath() string {
	if c.Settings.Java.Path != "" {
		return c.Settings.Java.Path
	}
	name := "java"
	if runtime.GOOS == "windows" {
		name = "java.exe"
	}
	return filepath.Join(c.Root, "java", "bin", name)
}

// DefaultVersion returns the configured default version identifier.
func (c *Config) DefaultVersion() string {
	return c.Settings.DefaultVersion
}

// Layout derives every per-version path.
func (c *Config) Layout(versionID string) Layout {
	versionDir := filepath.Join(c.Root, "versions", versionID)
	return Layout{
		Root:         c.Root,
		VersionID:    versionID,
		VersionDir:   versionDir,
		ManifestPath: filepath.Join(versionDir, versionID+".json"),
		MainArchive:  filepath.Join(versionDir, versionID+".jar"),
		LibrariesDir: filepath.Join(versionDir, "libraries"),
		NativesDir:   filepath.Join(c.Root, "natives", versionID),
		GameDir:      versionDir,
		AssetsDir:    filepath.Join(versionDir, "assets"),
	}
}

// SetDefaultVersion records id as the default version and persists it to
// launcher.yaml. An existing file is edited in place so its comments and
// other keys are kept as written.
func (c *Config) SetDefaultVersion(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("config: version id is required")
	}
	c.Settings.DefaultVersion = id
	patched, err := c.patchSetting("default_version", id)
	if err != nil || patched {
		return err
	}
	return c.saveSettings()
}

// patchSetting rewrites one top-level string key of launcher.yaml through
// its node tree. It reports false when there is no mapping document to edit.
func (c *Config) patchSetting(key, value string) (bool, error) {
	path := c.Path()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("config: read %s: %w", path, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return false, nil
	}

	mapping := doc.Content[0]
	var target *yaml.Node
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			target = mapping.Content[i+1]
			break
		}
	}
	if target == nil {
		target = &yaml.Node{}
		mapping.Content = append(mapping.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, target)
	}
	target.Kind = yaml.ScalarNode
	target.Tag = "!!str"
	target.Style = yaml.DoubleQuotedStyle
	target.Value = value
	target.Content = nil

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return false, fmt.Errorf("config: encode settings: %w", err)
	}
	if err := enc.Close(); err != nil {
		return false, fmt.Errorf("config: encode settings: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return false, fmt.Errorf("config: write settings: %w", err)
	}
	return true, nil
}

func (c *Config) loadSettings() error {
	path := c.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed := defaultSettings()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.Root)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Settings = parsed
	return nil
}

func defaultSettings() Settings {
	return Settings{
		Version:        1,
		DefaultVersion: defaultVersionID,
		Java: JavaConfig{
			MinHeap: defaultMinHeap,
			MaxHeap: defaultMaxHeap,
		},
		Downloads: DownloadConfig{
			Parallel: defaultParallel,
			Timeout:  defaultTimeout,
		},
	}
}

func (s *Settings) applyDefaults() {
	if s.Version == 0 {
		s.Version = 1
	}
	if s.Java.MinHeap == "" {
		s.Java.MinHeap = defaultMinHeap
	}
	if s.Java.MaxHeap == "" {
		s.Java.MaxHeap = defaultMaxHeap
	}
	if s.Downloads.Parallel == 0 {
		s.Downloads.Parallel = defaultParallel
	}
	if s.Downloads.Timeout == 0 {
		s.Downloads.Timeout = defaultTimeout
	}
}

func (s *Settings) normalize(base string) {
	s.DefaultVersion = strings.TrimSpace(s.DefaultVersion)
	if s.DefaultVersion == "" {
		s.DefaultVersion = defaultVersionID
	}
	s.Java.Path = resolvePath(base, s.Java.Path)
	s.Java.MinHeap = strings.TrimSpace(s.Java.MinHeap)
	s.Java.MaxHeap = strings.TrimSpace(s.Java.MaxHeap)
	s.Natives.Classifier = strings.ToLower(strings.TrimSpace(s.Natives.Classifier))
}

func (s *Settings) validate() error {
	if s.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if !heapPattern.MatchString(s.Java.MinHeap) {
		return fmt.Errorf("java.min_heap %q is not a heap size", s.Java.MinHeap)
	}
	if !heapPattern.MatchString(s.Java.MaxHeap) {
		return fmt.Errorf("java.max_heap %q is not a heap size", s.Java.MaxHeap)
	}
	if s.Downloads.Parallel < 1 {
		return fmt.Errorf("downloads.parallel must be >= 1")
	}
	if s.Downloads.Timeout < 0 {
		return fmt.Errorf("downloads.timeout cannot be negative")
	}
	switch s.Natives.Classifier {
	case "", "natives-windows", "natives-linux", "natives-macos", "natives-osx":
	default:
		return fmt.Errorf("natives.classifier %q is not supported", s.Natives.Classifier)
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureSettings(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultSettingsYAML), 0o644)
}

func (c *Config) saveSettings() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Settings.applyDefaults()
	c.Settings.normalize(c.Root)
	if err := c.Settings.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.Root, 0o755); err != nil {
		return fmt.Errorf("config: ensure root: %w", err)
	}
	data, err := yaml.Marshal(c.Settings)
	if err != nil {
		return fmt.Errorf("config: encode settings: %w", err)
	}
	if err := os.WriteFile(c.Path(), data, 0o644); err != nil {
		return fmt.Errorf("config: write settings: %w", err)
	}
	return nil
}
