package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"screenclip/internal/artifacts"
	"screenclip/internal/library"
	"screenclip/internal/services"
)

const staleSpoolAge = time.Hour

func newPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete discarded takes, old shared takes, and leftover files",
		Long: `Remove discarded takes and takes shared more than --older-than ago from the
library together with their exported recordings. Exports no take refers to and
replay files left by an interrupted trim are removed as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(func() error {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				logger, err := ctx.ensureLogger()
				if err != nil {
					return err
				}
				store, err := ctx.ensureStore()
				if err != nil {
					return err
				}

				lock := flock.New(cfg.CaptureLockPath())
				locked, err := lock.TryLock()
				if err != nil {
					return fmt.Errorf("acquire capture lock: %w", err)
				}
				if !locked {
					return services.Wrap(services.ErrValidation, "", "prune", "a capture is running; try again when it finishes", nil)
				}
				defer func() { _ = lock.Unlock() }()

				takes, err := store.List(cmd.Context(), 0)
				if err != nil {
					return err
				}
				cutoff := time.Now().Add(-olderThan)
				referenced := make(map[string]struct{})
				var result artifacts.CleanResult
				pruned := 0
				for _, take := range takes {
					if !prunable(take, cutoff) {
						for _, path := range []string{take.RawPath, take.TrimmedPath} {
							if path != "" {
								referenced[filepath.Clean(path)] = struct{}{}
							}
						}
						continue
					}
					result.Merge(artifacts.Remove([]string{take.RawPath, take.TrimmedPath}, dryRun, logger))
					if !dryRun {
						if _, err := store.Remove(cmd.Context(), take.ID); err != nil {
							return err
						}
					}
					pruned++
				}
				result.Merge(artifacts.CleanOrphaned(cmd.Context(), cfg.Paths.RecordingsDir, referenced, dryRun, logger))
				result.Merge(artifacts.CleanStaleSpools(cmd.Context(), cfg.Paths.RecordingsDir, staleSpoolAge, dryRun, logger))

				out := cmd.OutOrStdout()
				verb := "Removed"
				if dryRun {
					verb = "Would remove"
				}
				for _, path := range result.Removed {
					fmt.Fprintln(out, renderField(verb, path))
				}
				for _, failure := range result.Errors {
					fmt.Fprintln(out, renderStatusLine(failure.Path, statusError, failure.Err.Error(), shouldColorize(out)))
				}
				fmt.Fprintf(out, "%s %d take(s) and %d file(s), %s\n", verb, pruned, len(result.Removed), formatBytes(result.Bytes))
				if len(result.Errors) > 0 {
					return fmt.Errorf("prune left %d file(s) behind", len(result.Errors))
				}
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Prune shared takes last updated before this age")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be removed without deleting anything")
	return cmd
}

// prunable reports whether take can leave the library.
func prunable(take *library.Take, cutoff time.Time) bool {
	switch {
	case take.Stage == "discarded":
		return true
	case take.Shared():
		return take.UpdatedAt.Before(cutoff)
	default:
		return false
	}
}
