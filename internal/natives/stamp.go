package natives

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// StampFile is written into a natives directory to remember which archives
// were already unpacked there.
const StampFile = ".extracted"

// stampEncMode writes the stamp with deterministic encoding so an unchanged
// set of records produces identical bytes.
var stampEncMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("natives: CBOR encoder initialization failed: " + err.Error())
	}
	return mode
}()

type stampRecord struct {
	Digest string   `cbor:"1,keyasint"`
	Files  []string `cbor:"2,keyasint"`
}

// Stamp records, per archive path, the BLAKE3 digest of the archive and the
// files it produced.
type Stamp struct {
	dir     string
	records map[string]stampRecord
}

// LoadStamp reads the stamp in dir. A missing or unreadable stamp yields an
// empty one, which only costs a re-extraction.
func LoadStamp(dir string) *Stamp {
	s := &Stamp{dir: dir, records: map[string]stampRecord{}}
	data, err := os.ReadFile(filepath.Join(dir, StampFile))
	if err != nil {
		return s
	}
	var records map[string]stampRecord
	if err := cbor.Unmarshal(data, &records); err == nil && records != nil {
		s.records = records
	}
	return s
}

// Digest hashes the file at path with BLAKE3. The file is streamed so memory
// stays constant regardless of archive size.
func Digest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("natives: open %s for hashing: %w", path, err)
	}
	defer file.Close()
	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("natives: hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Fresh reports whether archive was extracted from content with digest and
// every file it produced is still present.
func (s *Stamp) Fresh(archive, digest string) bool {
	rec, ok := s.records[archive]
	if !ok || rec.Digest != digest {
		return false
	}
	for _, name := range rec.Files {
		if _, err := os.Stat(filepath.Join(s.dir, name)); errors.Is(err, fs.ErrNotExist) {
			return false
		}
	}
	return true
}

// Record remembers an extraction. Call Save to persist it.
func (s *Stamp) Record(archive, digest string, files []string) {
	s.records[archive] = stampRecord{Digest: digest, Files: files}
}

// Save writes the stamp into its directory.
func (s *Stamp) Save() error {
	data, err := stampEncMode.Marshal(s.records)
	if err != nil {
		return fmt.Errorf("natives: encode stamp: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("natives: create %s: %w", s.dir, err)
	}
	return os.WriteFile(filepath.Join(s.dir, StampFile), data, 0o644)
}
