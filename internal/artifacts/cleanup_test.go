package artifacts_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"screenclip/internal/artifacts"
	"screenclip/internal/logging"
	"screenclip/internal/testsupport"
)

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestListSkipsNonContainers(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteAgedFile(t, filepath.Join(dir, "b-raw.webm"), 10, time.Minute)
	testsupport.WriteAgedFile(t, filepath.Join(dir, "a-raw.webm"), 10, time.Hour)
	testsupport.WriteAgedFile(t, filepath.Join(dir, "replay-1.webm"), 5, time.Second)
	testsupport.WriteAgedFile(t, filepath.Join(dir, "notes.txt"), 5, time.Second)
	if err := os.Mkdir(filepath.Join(dir, "nested.webm"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	files, err := artifacts.List(dir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 containers, got %+v", files)
	}
	if files[0].Name != "a-raw.webm" || files[2].Name != "replay-1.webm" || !files[2].Spool || files[0].Spool {
		t.Fatalf("unexpected order or spool flag: %+v", files)
	}

	missing, err := artifacts.List(filepath.Join(dir, "missing"))
	if err != nil || missing != nil {
		t.Fatalf("missing directory should be empty, got %v %v", missing, err)
	}
}

func TestCleanStaleSpools(t *testing.T) {
	dir := t.TempDir()
	oldReplay := filepath.Join(dir, "replay-old.webm")
	oldSegment := filepath.Join(dir, "segment-abc-000.webm")
	fresh := filepath.Join(dir, "replay-new.webm")
	export := filepath.Join(dir, "take-raw.webm")
	testsupport.WriteAgedFile(t, oldReplay, 100, 3*time.Hour)
	testsupport.WriteAgedFile(t, oldSegment, 50, 2*time.Hour)
	testsupport.WriteAgedFile(t, fresh, 100, time.Minute)
	testsupport.WriteAgedFile(t, export, 100, 3*time.Hour)

	result := artifacts.CleanStaleSpools(context.Background(), dir, time.Hour, false, logging.NewNop())
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Removed) != 2 || result.Removed[0] != oldReplay || result.Removed[1] != oldSegment || result.Bytes != 150 {
		t.Fatalf("unexpected result %+v", result)
	}
	if exists(oldReplay) || exists(oldSegment) || !exists(fresh) || !exists(export) {
		t.Fatal("only the old spools should be removed")
	}
}

func TestCleanOrphanedKeepsReferenced(t *testing.T) {
	dir := t.TempDir()
	kept := filepath.Join(dir, "kept-raw.webm")
	orphan := filepath.Join(dir, "gone-trimmed.webm")
	spool := filepath.Join(dir, "replay-9.webm")
	copied := filepath.Join(dir, "demo.webm")
	for _, p := range []string{kept, orphan, spool, copied} {
		testsupport.WriteAgedFile(t, p, 10, time.Hour)
	}

	referenced := map[string]struct{}{kept: {}}
	dry := artifacts.CleanOrphaned(context.Background(), dir, referenced, true, nil)
	if len(dry.Removed) != 1 || !exists(orphan) {
		t.Fatalf("dry run should report without deleting, got %+v", dry)
	}

	result := artifacts.CleanOrphaned(context.Background(), dir, referenced, false, nil)
	if len(result.Removed) != 1 || result.Removed[0] != orphan {
		t.Fatalf("unexpected result %+v", result)
	}
	if exists(orphan) || !exists(kept) || !exists(spool) || !exists(copied) {
		t.Fatal("orphan cleanup touched the wrong files")
	}
}

func TestRemoveIgnoresMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "take-raw.webm")
	testsupport.WriteAgedFile(t, path, 42, time.Minute)

	var total artifacts.CleanResult
	total.Merge(artifacts.Remove([]string{path, filepath.Join(dir, "missing.webm"), ""}, false, nil))
	if len(total.Errors) != 0 || len(total.Removed) != 1 || total.Bytes != 42 {
		t.Fatalf("unexpected result %+v", total)
	}
	if exists(path) {
		t.Fatal("file should be removed")
	}
}
