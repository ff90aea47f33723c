package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alchemist-io/alchemist/internal/config"
	"github.com/alchemist-io/alchemist/internal/jobs"
	"github.com/alchemist-io/alchemist/internal/logger"
)

// fingerprint derives a job's mtime_hash as H(mtime, size): a signature
// cheap enough to compute on every scan without reading the file's
// contents. Any change to modification time or size produces a different
// fingerprint.
func fingerprint(info os.FileInfo) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%d", info.ModTime().UnixNano(), info.Size())))
	return hex.EncodeToString(sum[:8])
}

// allowedExtension checks path against wd's per-directory extension
// override, falling back to the global scanner list when wd has none
// configured. An empty combined list allows everything.
func allowedExtension(path string, wd *jobs.WatchDir, global []string) bool {
	exts := wd.Extensions
	if len(exts) == 0 {
		exts = global
	}
	if len(exts) == 0 {
		return true
	}
	lower := strings.ToLower(path)
	for _, e := range exts {
		if strings.HasSuffix(lower, strings.ToLower(e)) {
			return true
		}
	}
	return false
}

// excluded reports whether path matches any exclude pattern via a
// case-insensitive substring match.
func excluded(path string, patterns []string) bool {
	lower := strings.ToLower(path)
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// candidateFile reports whether a regular file at path should be enqueued:
// not hidden, extension-allowed, and not exclude-matched. Callers are
// responsible for having already established path is not a directory.
func candidateFile(path string, wd *jobs.WatchDir, scanner config.ScannerSettings) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	if !allowedExtension(path, wd, scanner.Extensions) {
		return false
	}
	if excluded(path, scanner.ExcludePatterns) {
		return false
	}
	return true
}

// RescanResult reports the outcome of a full directory walk triggered by
// the on-demand rescan API.
type RescanResult struct {
	FilesFound    int    `json:"files_found"`
	FilesAdded    int    `json:"files_added"`
	CurrentFolder string `json:"current_folder"`
}

// RescanAll walks every enabled WatchDir once, inserting a queued job for
// every candidate file found. It's the synchronous counterpart to the
// fsnotify-driven loop, exposed as the on-demand rescan API.
func (w *Watcher) RescanAll(ctx context.Context) (*RescanResult, error) {
	dirs, err := w.store.ListWatchDirs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list watch dirs: %w", err)
	}

	scanner := w.settings().Scanner
	result := &RescanResult{}
	for _, wd := range dirs {
		if !wd.Enabled {
			continue
		}
		result.CurrentFolder = wd.Path
		if err := w.walkOne(ctx, wd, scanner, result); err != nil {
			logger.Warn("watcher: rescan failed", "path", wd.Path, "error", err)
		}
	}
	return result, nil
}

// RescanOne walks a single WatchDir. Used by triggerRescan and as the
// overflow-degradation fallback when the event queue fills for a
// particular root.
func (w *Watcher) RescanOne(ctx context.Context, wd *jobs.WatchDir) (*RescanResult, error) {
	result := &RescanResult{CurrentFolder: wd.Path}
	err := w.walkOne(ctx, wd, w.settings().Scanner, result)
	return result, err
}

func (w *Watcher) walkOne(ctx context.Context, wd *jobs.WatchDir, scanner config.ScannerSettings, result *RescanResult) error {
	root := wd.Path
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return filepath.SkipAll
		}
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if !wd.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !candidateFile(path, wd, scanner) {
			return nil
		}
		result.FilesFound++
		if w.enqueue(ctx, path) {
			result.FilesAdded++
		}
		return nil
	})
}

// enqueue stats path, computes its fingerprint, and inserts it via
// Store.InsertJob, reporting whether this call actually created or reset a
// job rather than hitting the idempotent no-op path.
func (w *Watcher) enqueue(ctx context.Context, path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		logger.Warn("watcher: stat failed", "path", path, "error", err)
		return false
	}
	if info.IsDir() {
		return false
	}

	before := time.Now()
	job, err := w.store.InsertJob(ctx, path, fingerprint(info), 0)
	if err != nil {
		logger.Warn("watcher: insert job failed", "path", path, "error", err)
		return false
	}
	// InsertJob is idempotent: a true no-op returns the existing job
	// unchanged, so its UpdatedAt predates this call. A fresh insert or a
	// changed-hash reset to queued both stamp UpdatedAt with "now".
	added := !job.UpdatedAt.Before(before)
	if added && w.Notifier != nil {
		w.Notifier.Notify(ctx, jobs.EventQueued, job, "", nil)
	}
	return added
}
