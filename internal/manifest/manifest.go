// Package manifest is the typed view over a version descriptor document:
// the entry-point class, the asset index and the ordered library records.
// Only the fields the launcher consumes are decoded; everything else in the
// document is ignored.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
)

var (
	// ErrNotFound is returned when the manifest file does not exist.
	ErrNotFound = errors.New("manifest: not found")
	// ErrMalformed is returned when the document cannot be decoded.
	ErrMalformed = errors.New("manifest: malformed")
	// ErrMissingMainClass is returned when mainClass is absent or empty.
	ErrMissingMainClass = errors.New("manifest: mainClass missing")
)

// Version is the parsed version descriptor.
type Version struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	MainClass string    `json:"mainClass"`
	Assets    string    `json:"assets"`
	Libraries []Library `json:"libraries"`

	versionID    string
	hasLibraries bool
}

// Library is one dependency record.
type Library struct {
	Name      string     `json:"name"`
	Downloads *Downloads `json:"downloads,omitempty"`
}

// Downloads is the optional download section of a library.
type Downloads struct {
	Artifact *Artifact `json:"artifact,omitempty"`
}

// Artifact describes a concrete downloadable file.
type Artifact struct {
	URL  string `json:"url"`
	Path string `json:"path"`
	SHA1 string `json:"sha1,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Resolved is a library artifact mapped onto the local libraries directory.
type Resolved struct {
	Name string
	URL  string
	Dest string
	SHA1 string
	Size int64
}

// Load reads and validates the manifest at path. versionID is used as the
// asset index when the document does not name one.
func Load(path, versionID string) (*Version, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Parse(data, versionID)
}

// Parse decodes a manifest document.
func Parse(data []byte, versionID string) (*Version, error) {
	var raw struct {
		Version
		Libraries json.RawMessage `json:"libraries"`
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	v := raw.Version
	v.versionID = versionID
	if len(raw.Libraries) > 0 && string(raw.Libraries) != "null" {
		if err := json.Unmarshal(raw.Libraries, &v.Libraries); err != nil {
			return nil, fmt.Errorf("%w: libraries: %v", ErrMalformed, err)
		}
		v.hasLibraries = true
	}
	v.MainClass = strings.TrimSpace(v.MainClass)
	if v.MainClass == "" {
		return nil, ErrMissingMainClass
	}
	return &v, nil
}

// AssetIndex returns the asset index id, falling back to the version id.
func (v *Version) AssetIndex() string {
	if idx := strings.TrimSpace(v.Assets); idx != "" {
		return idx
	}
	return v.versionID
}

// HasLibraries reports whether the document carried a libraries array.
func (v *Version) HasLibraries() bool {
	return v.hasLibraries
}

// Artifact returns the library's concrete artifact, or nil when the record
// has no download section or no artifact inside it.
func (l Library) Artifact() *Artifact {
	if l.Downloads == nil {
		return nil
	}
	return l.Downloads.Artifact
}

// IsNative reports whether the record's name carries the platform classifier.
func (l Library) IsNative(classifier string) bool {
	return classifier != "" && strings.Contains(l.Name, classifier)
}

// Artifacts maps every downloadable record onto librariesDir. Records with
// no artifact are dropped silently; records whose artifact lacks a url or a
// path are dropped and counted in skipped.
func (v *Version) Artifacts(librariesDir string) (resolved []Resolved, skipped int) {
	for _, lib := range v.Libraries {
		art := lib.Artifact()
		if art == nil {
			continue
		}
		if strings.TrimSpace(art.URL) == "" || strings.TrimSpace(art.Path) == "" {
			skipped++
			continue
		}
		resolved = append(resolved, Resolved{
			Name: lib.Name,
			URL:  art.URL,
			Dest: filepath.Join(librariesDir, filepath.FromSlash(art.Path)),
			SHA1: strings.ToLower(art.SHA1),
			Size: art.Size,
		})
	}
	return resolved, skipped
}

// NativeArchives returns the local paths of every record whose name marks it
// as a native archive for classifier.
func (v *Version) NativeArchives(librariesDir, classifier string) []string {
	var paths []string
	for _, lib := range v.Libraries {
		if !lib.IsNative(classifier) {
			continue
		}
		art := lib.Artifact()
		if art == nil || strings.TrimSpace(art.Path) == "" {
			continue
		}
		paths = append(paths, filepath.Join(librariesDir, filepath.FromSlash(art.Path)))
	}
	return paths
}

// ListVersions returns the installed version ids: the names of the
// directories under versionsDir, sorted.
func ListVersions(versionsDir string) ([]string, error) {
	entries, err := os.ReadDir(versionsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("manifest: list versions: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
