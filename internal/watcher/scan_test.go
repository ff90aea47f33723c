package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alchemist-io/alchemist/internal/config"
	"github.com/alchemist-io/alchemist/internal/jobs"
	"github.com/alchemist-io/alchemist/internal/store"
)

func newTestWatcherStore(t *testing.T) store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fixedScannerSettings(scanner config.ScannerSettings) func() config.EngineSettings {
	return func() config.EngineSettings {
		s := config.DefaultConfig().Engine
		s.Scanner = scanner
		return s
	}
}

func newTestWatcher(t *testing.T, st store.Store, scanner config.ScannerSettings) *Watcher {
	t.Helper()
	w, err := New(st, fixedScannerSettings(scanner))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.ctx = context.Background()
	t.Cleanup(func() { w.fsw.Close() })
	return w
}

func TestFingerprintChangesWhenSizeChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mkv")
	if err := os.WriteFile(path, []byte("short"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	info1, _ := os.Stat(path)
	fp1 := fingerprint(info1)

	if err := os.WriteFile(path, []byte("a much longer body"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	info2, _ := os.Stat(path)
	fp2 := fingerprint(info2)

	if fp1 == fp2 {
		t.Error("fingerprint unchanged after the file's size changed")
	}
}

func TestFingerprintStableForUnchangedStat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mkv")
	if err := os.WriteFile(path, []byte("body"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, _ := os.Stat(path)
	if fingerprint(info) != fingerprint(info) {
		t.Error("fingerprint() not stable across repeated calls on the same os.FileInfo")
	}
}

func TestAllowedExtensionUsesPerDirOverride(t *testing.T) {
	wd := &jobs.WatchDir{Extensions: []string{".avi"}}
	if allowedExtension("/media/movie.mkv", wd, []string{".mkv"}) {
		t.Error("allowedExtension() = true, want false: per-dir override excludes .mkv")
	}
	if !allowedExtension("/media/movie.avi", wd, []string{".mkv"}) {
		t.Error("allowedExtension() = false, want true: per-dir override includes .avi")
	}
}

func TestAllowedExtensionFallsBackToGlobalWhenDirHasNoOverride(t *testing.T) {
	wd := &jobs.WatchDir{}
	if !allowedExtension("/media/movie.mkv", wd, []string{".mkv", ".mp4"}) {
		t.Error("allowedExtension() = false, want true using the global list")
	}
	if allowedExtension("/media/movie.txt", wd, []string{".mkv", ".mp4"}) {
		t.Error("allowedExtension() = true, want false for an extension outside the global list")
	}
}

func TestExcludedMatchesSubstringCaseInsensitive(t *testing.T) {
	if !excluded("/media/Sample/movie.mkv", []string{"sample"}) {
		t.Error("excluded() = false, want true for a case-insensitive substring match")
	}
	if excluded("/media/movies/movie.mkv", []string{"sample"}) {
		t.Error("excluded() = true, want false when no pattern matches")
	}
}

func TestCandidateFileRejectsHiddenFiles(t *testing.T) {
	wd := &jobs.WatchDir{}
	if candidateFile("/media/.movie.mkv", wd, config.ScannerSettings{}) {
		t.Error("candidateFile() = true, want false for a dotfile")
	}
}

func TestRescanAllInsertsQueuedJobsForMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"keep.mkv", "skip.txt", ".hidden.mkv"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	st := newTestWatcherStore(t)
	ctx := context.Background()
	if _, err := st.AddWatchDir(ctx, &jobs.WatchDir{Path: dir, Recursive: true, Enabled: true}); err != nil {
		t.Fatalf("AddWatchDir: %v", err)
	}

	w := newTestWatcher(t, st, config.ScannerSettings{Extensions: []string{".mkv"}})
	result, err := w.RescanAll(ctx)
	if err != nil {
		t.Fatalf("RescanAll: %v", err)
	}
	if result.FilesFound != 1 || result.FilesAdded != 1 {
		t.Errorf("RescanAll() = %+v, want exactly one candidate found and added", result)
	}

	jobsList, err := st.ListJobs(ctx, store.JobFilter{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobsList) != 1 || jobsList[0].InputPath != filepath.Join(dir, "keep.mkv") {
		t.Errorf("ListJobs() = %+v, want exactly one job for keep.mkv", jobsList)
	}
}

func TestRescanAllSkipsDisabledWatchDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "movie.mkv"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	st := newTestWatcherStore(t)
	ctx := context.Background()
	if _, err := st.AddWatchDir(ctx, &jobs.WatchDir{Path: dir, Recursive: true, Enabled: false}); err != nil {
		t.Fatalf("AddWatchDir: %v", err)
	}

	w := newTestWatcher(t, st, config.ScannerSettings{Extensions: []string{".mkv"}})
	result, err := w.RescanAll(ctx)
	if err != nil {
		t.Fatalf("RescanAll: %v", err)
	}
	if result.FilesFound != 0 {
		t.Errorf("RescanAll() = %+v, want a disabled WatchDir to be skipped entirely", result)
	}
}

func TestRescanAllNonRecursiveSkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "season1")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "top.mkv"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "nested.mkv"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	st := newTestWatcherStore(t)
	ctx := context.Background()
	if _, err := st.AddWatchDir(ctx, &jobs.WatchDir{Path: dir, Recursive: false, Enabled: true}); err != nil {
		t.Fatalf("AddWatchDir: %v", err)
	}

	w := newTestWatcher(t, st, config.ScannerSettings{Extensions: []string{".mkv"}})
	result, err := w.RescanAll(ctx)
	if err != nil {
		t.Fatalf("RescanAll: %v", err)
	}
	if result.FilesFound != 1 {
		t.Errorf("RescanAll() = %+v, want only the top-level file for a non-recursive WatchDir", result)
	}
}

func TestEnqueueReportsFalseOnSecondIdenticalCall(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "movie.mkv")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	st := newTestWatcherStore(t)
	w := newTestWatcher(t, st, config.ScannerSettings{})
	ctx := context.Background()

	if added := w.enqueue(ctx, path); !added {
		t.Error("enqueue() first call = false, want true for a brand new job")
	}
	time.Sleep(5 * time.Millisecond)
	if added := w.enqueue(ctx, path); added {
		t.Error("enqueue() second call with an unchanged fingerprint = true, want false (idempotent no-op)")
	}
}
