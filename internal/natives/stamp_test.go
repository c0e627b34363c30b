package natives

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStampTracksDigestAndFiles(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "natives.jar")
	writeArchive(t, archive, []entry{{name: "lib/foo.so", body: "foo"}})
	out := filepath.Join(dir, "out")

	digest, err := Digest(archive)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if len(digest) != 64 {
		t.Fatalf("digest length = %d", len(digest))
	}

	stamp := LoadStamp(out)
	if stamp.Fresh(archive, digest) {
		t.Fatalf("empty stamp reported fresh")
	}
	files, err := Extract(archive, out, Options{Suffix: ".so"})
	if err != nil {
		t.Fatal(err)
	}
	stamp.Record(archive, digest, files)
	if err := stamp.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := LoadStamp(out)
	if !reloaded.Fresh(archive, digest) {
		t.Fatalf("stamp did not survive reload")
	}
	if reloaded.Fresh(archive, "deadbeef") {
		t.Fatalf("changed digest reported fresh")
	}
	if err := os.Remove(filepath.Join(out, "foo.so")); err != nil {
		t.Fatal(err)
	}
	if reloaded.Fresh(archive, digest) {
		t.Fatalf("missing output file reported fresh")
	}
}

func TestLoadStampIgnoresGarbage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, StampFile), []byte("not cbor"), 0o644); err != nil {
		t.Fatal(err)
	}
	if LoadStamp(dir).Fresh("x", "y") {
		t.Fatalf("garbage stamp reported fresh")
	}
}
