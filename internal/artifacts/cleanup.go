package artifacts

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"screenclip/internal/logging"
)

// SpoolPatterns match the temporary files of the ffmpeg backend: replay
// copies written by the player and recording segments written by the recorder.
var SpoolPatterns = []string{"replay-*.webm", "segment-*.webm"}

// File describes one container in the recordings directory.
type File struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
	Spool   bool
}

// CleanResult contains the outcome of a cleanup pass.
type CleanResult struct {
	Removed []string
	Bytes   int64
	Errors  []CleanupError
}

// CleanupError pairs a path with the error that kept it on disk.
type CleanupError struct {
	Path string
	Err  error
}

// List returns the .webm files in dir, oldest first. A missing directory is
// empty.
func List(dir string) ([]File, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []File
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".webm") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, File{
			Name:    entry.Name(),
			Path:    filepath.Join(dir, entry.Name()),
			ModTime: info.ModTime(),
			Size:    info.Size(),
			Spool:   IsSpool(entry.Name()),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ModTime.Before(files[j].ModTime) })
	return files, nil
}

// CleanStaleSpools removes backend spools older than maxAge. Spools are
// deleted when their trim or recording ends, so an old one was left behind
// by an interrupted run.
func CleanStaleSpools(ctx context.Context, dir string, maxAge time.Duration, dryRun bool, logger *slog.Logger) CleanResult {
	cutoff := time.Now().Add(-maxAge)
	return clean(ctx, dir, dryRun, logger, "stale spool", func(f File) bool {
		return f.Spool && f.ModTime.Before(cutoff)
	})
}

// CleanOrphaned removes take exports whose path is not in referenced. Other
// containers in dir, such as spools or user copies, are left alone.
func CleanOrphaned(ctx context.Context, dir string, referenced map[string]struct{}, dryRun bool, logger *slog.Logger) CleanResult {
	return clean(ctx, dir, dryRun, logger, "orphaned recording", func(f File) bool {
		if f.Spool || !IsExport(f.Name) {
			return false
		}
		_, ok := referenced[filepath.Clean(f.Path)]
		return !ok
	})
}

// IsSpool reports whether name is a backend spool file.
func IsSpool(name string) bool {
	for _, pattern := range SpoolPatterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// IsExport reports whether name looks like a take export.
func IsExport(name string) bool {
	return strings.HasSuffix(name, "-raw.webm") || strings.HasSuffix(name, "-trimmed.webm")
}

// Remove deletes the given files, ignoring ones already gone.
func Remove(paths []string, dryRun bool, logger *slog.Logger) CleanResult {
	result := CleanResult{}
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				result.Errors = append(result.Errors, CleanupError{Path: path, Err: err})
			}
			continue
		}
		removeOne(&result, File{Path: path, Size: info.Size(), ModTime: info.ModTime()}, dryRun, logger, "pruned take recording")
	}
	return result
}

func clean(ctx context.Context, dir string, dryRun bool, logger *slog.Logger, what string, match func(File) bool) CleanResult {
	result := CleanResult{}
	files, err := List(dir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: dir, Err: err})
		return result
	}
	for _, f := range files {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Err: ctx.Err()})
			return result
		}
		if match(f) {
			removeOne(&result, f, dryRun, logger, what)
		}
	}
	return result
}

func removeOne(result *CleanResult, f File, dryRun bool, logger *slog.Logger, what string) {
	if !dryRun {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: f.Path, Err: err})
			if logger != nil {
				logging.WarnWithContext(logger, "failed to remove "+what, "artifact_cleanup_failed",
					logging.String("path", f.Path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check recordings_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			return
		}
	}
	result.Removed = append(result.Removed, f.Path)
	result.Bytes += f.Size
	if logger != nil && !dryRun {
		logger.Info("removed "+what,
			logging.String("path", f.Path),
			logging.Int64("bytes", f.Size),
			logging.Duration("age", time.Since(f.ModTime)),
			logging.String(logging.FieldEventType, "artifact_cleanup"),
		)
	}
}

// Merge folds other into r.
func (r *CleanResult) Merge(other CleanResult) {
	r.Removed = append(r.Removed, other.Removed...)
	r.Bytes += other.Bytes
	r.Errors = append(r.Errors, other.Errors...)
}
