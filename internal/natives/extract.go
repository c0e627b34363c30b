// Package natives unpacks platform shared libraries from dependency
// archives into one flat directory the runtime can load them from.
package natives

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/zip"
)

// ErrArchiveOpen is returned when the archive itself cannot be opened.
var ErrArchiveOpen = errors.New("natives: open archive")

const copyBufferSize = 4096

// DefaultClassifier returns the library classifier for the host platform.
func DefaultClassifier() string {
	switch runtime.GOOS {
	case "windows":
		return "natives-windows"
	case "darwin":
		return "natives-macos"
	default:
		return "natives-linux"
	}
}

// SuffixFor returns the shared-library suffix extracted for classifier.
func SuffixFor(classifier string) string {
	switch classifier {
	case "natives-windows":
		return ".dll"
	case "natives-macos", "natives-osx":
		return ".dylib"
	default:
		return ".so"
	}
}

// Options tunes an extraction.
type Options struct {
	// Suffix selects entries by name, case-insensitively.
	Suffix string
	// Log receives warnings and the final "[Extract]" line.
	Log func(string)
}

func (o Options) logf(format string, args ...any) {
	if o.Log != nil {
		o.Log(fmt.Sprintf(format, args...))
	}
}

// Extract copies every entry of archivePath whose name ends with
// opts.Suffix into outputDir, keeping only the entry's base name. Entries
// that cannot be read or written are logged and skipped; only failing to
// open the archive or to create outputDir is returned as an error. The base
// names of the extracted files are returned.
func Extract(archivePath, outputDir string, opts Options) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrArchiveOpen, archivePath, err)
	}
	defer r.Close()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("natives: create %s: %w", outputDir, err)
	}

	suffix := strings.ToLower(opts.Suffix)
	buf := make([]byte, copyBufferSize)
	var extracted []string
	for i, file := range r.File {
		name := file.Name
		if !readableName(name) {
			opts.logf("[Warn] Invalid ZIP entry at index: %d", i)
			continue
		}
		if suffix == "" || !strings.HasSuffix(strings.ToLower(name), suffix) || file.FileInfo().IsDir() {
			continue
		}
		base := path.Base(strings.ReplaceAll(name, `\`, "/"))
		if base == "." || base == ".." || base == "/" {
			continue
		}
		if extractEntry(file, filepath.Join(outputDir, base), buf, opts) {
			extracted = append(extracted, base)
		}
	}
	opts.logf("[Extract] %s", filepath.Base(archivePath))
	return extracted, nil
}

func readableName(name string) bool {
	return name != "" && utf8.ValidString(name) && !strings.ContainsRune(name, 0)
}

// writerOnly hides io.ReaderFrom so io.CopyBuffer uses our bounded buffer.
type writerOnly struct {
	io.Writer
}

func extractEntry(file *zip.File, dest string, buf []byte, opts Options) bool {
	rc, err := file.Open()
	if err != nil {
		opts.logf("[Error] Failed to open ZIP entry: %s", file.Name)
		return false
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		opts.logf("[Error] Failed to create output library: %s", dest)
		return false
	}
	_, copyErr := io.CopyBuffer(writerOnly{out}, rc, buf)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		opts.logf("[Error] Failed to write output library: %s", dest)
		_ = os.Remove(dest)
		return false
	}
	return true
}
