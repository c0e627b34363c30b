// Package classpath assembles the runtime classpath from the fetched
// library tree and the version's main archive.
package classpath

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Entries walks librariesDir and returns every regular .jar file in
// traversal order, followed by the absolute main archive when it exists. A
// missing main archive is logged and omitted; a missing libraries directory
// contributes nothing.
func Entries(librariesDir, mainArchive string, log func(string)) []string {
	logf := func(format string, args ...any) {
		if log != nil {
			log(fmt.Sprintf(format, args...))
		}
	}

	var entries []string
	err := filepath.WalkDir(librariesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() || !strings.EqualFold(filepath.Ext(path), ".jar") {
			return nil
		}
		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			abs = path
		}
		entries = append(entries, abs)
		return nil
	})
	if err != nil {
		logf("[Warn] Library scan stopped: %v", err)
	}

	main, absErr := filepath.Abs(mainArchive)
	if absErr != nil {
		main = mainArchive
	}
	if info, statErr := os.Stat(main); statErr == nil && info.Mode().IsRegular() {
		entries = append(entries, main)
	} else {
		logf("[Error] Missing version JAR: %s", main)
	}
	return entries
}

// Build joins Entries with the platform path-list separator. An empty
// result is logged.
func Build(librariesDir, mainArchive string, log func(string)) string {
	entries := Entries(librariesDir, mainArchive, log)
	if len(entries) == 0 {
		if log != nil {
			log(fmt.Sprintf("[Error] No JARs found in libraries directory: %s", librariesDir))
		}
		return ""
	}
	return strings.Join(entries, string(os.PathListSeparator))
}
