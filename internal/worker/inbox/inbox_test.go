package inbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestDirs(t *testing.T) Dirs {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "ingest")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatalf("failed to create source dir: %v", err)
	}
	return Dirs{
		Source: src,
		Dest:   filepath.Join(root, "ingested"),
		Failed: filepath.Join(root, "failed"),
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestNew_CreatesDirectories(t *testing.T) {
	dirs := newTestDirs(t)

	if _, err := New(dirs); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, d := range []string{dirs.Dest, dirs.Failed} {
		if fi, err := os.Stat(d); err != nil || !fi.IsDir() {
			t.Errorf("%s should be a directory (err=%v)", d, err)
		}
	}
}

func TestNew_DefaultFailedDir(t *testing.T) {
	dirs := newTestDirs(t)
	dirs.Failed = ""

	ib, err := New(dirs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	want := filepath.Join(dirs.Source, "failed")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("default failed dir should exist: %v", err)
	}
	if got := ib.Dirs().Failed; got != want {
		t.Errorf("Dirs().Failed = %q, want %q", got, want)
	}
}

func TestNew_RequiresDirs(t *testing.T) {
	if _, err := New(Dirs{Source: t.TempDir()}); err == nil {
		t.Error("expected error without destination dir")
	}
}

func TestList_OnlyZipFilesSorted(t *testing.T) {
	dirs := newTestDirs(t)
	inbox, err := New(dirs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	touch(t, filepath.Join(dirs.Source, "pone.0000002.zip"))
	touch(t, filepath.Join(dirs.Source, "pone.0000001.ZIP"))
	touch(t, filepath.Join(dirs.Source, "notes.txt"))
	if err := os.Mkdir(filepath.Join(dirs.Source, "nested.zip"), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}

	got, err := inbox.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"pone.0000001.ZIP", "pone.0000002.zip"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
}

func TestList_MissingSource(t *testing.T) {
	dirs := newTestDirs(t)
	inbox, err := New(dirs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := os.RemoveAll(dirs.Source); err != nil {
		t.Fatalf("failed to remove source: %v", err)
	}
	if _, err := inbox.List(); err == nil {
		t.Error("expected error for missing source dir")
	}
}

func TestMarkIngestedAndFailed_MoveArchives(t *testing.T) {
	dirs := newTestDirs(t)
	inbox, err := New(dirs)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	touch(t, filepath.Join(dirs.Source, "a.zip"))
	touch(t, filepath.Join(dirs.Source, "b.zip"))

	dest, err := inbox.MarkIngested("a.zip")
	if err != nil {
		t.Fatalf("MarkIngested() error = %v", err)
	}
	if dest != filepath.Join(dirs.Dest, "a.zip") {
		t.Errorf("dest = %q, want %q", dest, filepath.Join(dirs.Dest, "a.zip"))
	}
	if _, err := inbox.MarkFailed("b.zip"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dirs.Failed, "b.zip")); err != nil {
		t.Errorf("b.zip should be in failed dir: %v", err)
	}
	remaining, _ := inbox.List()
	if len(remaining) != 0 {
		t.Errorf("remaining = %v, want none", remaining)
	}

	if _, err := inbox.MarkIngested("a.zip"); err == nil {
		t.Error("expected error when moving an archive twice")
	}
}
