package fileutil

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()

	got, err := UniquePath(dir, "converted_clip.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(dir, "converted_clip.mp3") {
		t.Fatalf("free name changed: %s", got)
	}

	for _, name := range []string{"converted_clip.mp3", "converted_clip (1).mp3"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	got, err = UniquePath(dir, "converted_clip.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "converted_clip (2).mp3" {
		t.Fatalf("got %s, want converted_clip (2).mp3", filepath.Base(got))
	}
}

func TestUniquePathWithoutExtension(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := UniquePath(dir, "notes")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "notes (1)" {
		t.Fatalf("got %s", filepath.Base(got))
	}
}

func TestWriteExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.txt")

	n, err := WriteExclusive(path, bytes.NewReader([]byte("ciao")), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("wrote %d bytes", n)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "ciao" {
		t.Fatalf("content = %q (%v)", got, err)
	}

	if _, err := WriteExclusive(path, bytes.NewReader([]byte("again")), 0o644); !errors.Is(err, os.ErrExist) {
		t.Fatalf("second write error = %v, want ErrExist", err)
	}
	got, _ = os.ReadFile(path)
	if string(got) != "ciao" {
		t.Fatalf("existing file was modified: %q", got)
	}
}
