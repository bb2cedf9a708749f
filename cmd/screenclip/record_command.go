package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"screenclip/internal/fileutil"
	"screenclip/internal/media"
	"screenclip/internal/preflight"
	"screenclip/internal/recording"
	"screenclip/internal/services"
)

type recordOptions struct {
	title    string
	start    string
	end      string
	noTrim   bool
	noUpload bool
	discard  bool
	output   string
}

func newRecordCommand(ctx *commandContext) *cobra.Command {
	var opts recordOptions

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Capture the screen, then trim and share the take",
		Long: `Capture the screen until Enter is pressed (or the shared display goes away),
then walk the take through trimming and uploading.

While recording, type "p" and Enter to pause or resume.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(func() error {
				return runRecord(cmd, ctx, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.title, "title", "", "Title for the uploaded video")
	cmd.Flags().StringVar(&opts.start, "trim-start", "", "Keep the recording from this timestamp (SS, MM:SS, or HH:MM:SS)")
	cmd.Flags().StringVar(&opts.end, "trim-end", "", "Keep the recording up to this timestamp")
	cmd.Flags().BoolVar(&opts.noTrim, "no-trim", false, "Forward the recording without trimming")
	cmd.Flags().BoolVar(&opts.noUpload, "no-upload", false, "Stop after trimming and keep the take for a later upload")
	cmd.Flags().BoolVar(&opts.discard, "discard", false, "Discard the take right after recording")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Also copy the final recording to this path")
	cmd.MarkFlagsMutuallyExclusive("no-trim", "trim-start")
	cmd.MarkFlagsMutuallyExclusive("no-trim", "trim-end")
	return cmd
}

func runRecord(cmd *cobra.Command, ctx *commandContext, opts recordOptions) error {
	window, hasWindow, err := parseWindowFlags(opts.start, opts.end)
	if err != nil {
		return err
	}

	s, err := ctx.newSession(!opts.noUpload && !opts.discard)
	if err != nil {
		return err
	}

	lock := flock.New(s.cfg.CaptureLockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire capture lock: %w", err)
	}
	if !locked {
		return services.Wrap(services.ErrValidation, "capturing", "acquire capture lock", "another capture is already running", nil)
	}
	defer func() { _ = lock.Unlock() }()

	base := cmd.Context()
	if err := capturePreflight(base, s, !opts.noUpload && !opts.discard); err != nil {
		return err
	}

	con := newConsole(cmd)
	if err := captureTake(base, con, s); err != nil {
		return err
	}

	if opts.discard {
		if err := s.pipeline.BackToRecord(base); err != nil {
			return err
		}
		con.status("Take", statusInfo, "discarded")
		return nil
	}

	stageCtx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
	defer stop()

	choice := trimChoice{skip: opts.noTrim, window: window, explicit: hasWindow}
	if err := runTrimStage(stageCtx, con, s, choice); err != nil {
		return err
	}

	if opts.output != "" {
		raw, trimmed := s.pipeline.ArtifactPaths()
		src := trimmed
		if src == "" {
			src = raw
		}
		if err := copyArtifact(src, opts.output); err != nil {
			return err
		}
		con.status("Copied to", statusOK, opts.output)
	}

	if opts.noUpload {
		con.status("Saved take", statusInfo, s.pipeline.TakeID())
		fmt.Fprintf(con.out, "Run 'screenclip upload %s' to share it.\n", shortID(s.pipeline.TakeID()))
		return nil
	}

	_, err = runUploadStage(stageCtx, con, s, opts.title)
	return err
}

// capturePreflight fails before any capture starts when a directory is
// unusable or, for takes that will be uploaded, the service is down.
func capturePreflight(ctx context.Context, s *session, withUpload bool) error {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, s.cfg)) {
		if result.Name == preflight.UploadServiceCheck && !withUpload {
			continue
		}
		return services.Wrap(services.ErrConfiguration, "capturing", "preflight", result.Name+": "+result.Detail, nil)
	}
	return nil
}

// captureTake records until the operator stops, the display goes away, or
// the process is interrupted, then finalizes the take.
func captureTake(base context.Context, con *console, s *session) error {
	captureCtx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := s.pipeline.StartCapture(base)
	if err != nil {
		return err
	}
	fmt.Fprintln(con.out, "Recording. Press Enter to stop, or type p and Enter to pause.")

	var tick <-chan time.Time
	if con.interactive {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		tick = ticker.C
	}

	lines := con.Lines()
	interrupted := captureCtx.Done()
	for waiting := true; waiting; {
		select {
		case <-rec.Done():
			waiting = false
		case <-interrupted:
			interrupted = nil
			rec.Stop()
		case line, ok := <-lines:
			if !ok {
				lines = nil
				rec.Stop()
				continue
			}
			switch line {
			case "p", "pause", "r", "resume":
				togglePause(con, rec)
			default:
				rec.Stop()
			}
		case <-tick:
			label := "REC"
			if rec.State() == recording.StatePaused {
				label = "PAUSED"
			}
			fmt.Fprintf(con.out, "\r%s %s ", label, media.FormatClock(rec.Elapsed()))
		}
	}
	if con.interactive {
		fmt.Fprintln(con.out)
	}

	raw, err := s.pipeline.FinishCapture(context.WithoutCancel(base))
	if err != nil {
		return err
	}
	detail := fmt.Sprintf("%s, %s", media.FormatClock(rec.Elapsed()), formatBytes(int64(raw.Size())))
	if rec.AutoStopped() {
		detail += ", stopped when the display ended"
	}
	con.status("Recorded", statusOK, detail)
	if path, _ := s.pipeline.ArtifactPaths(); path != "" {
		con.status("Raw recording", statusInfo, path)
	}
	return nil
}

func togglePause(con *console, rec *recording.Session) {
	if rec.State() == recording.StatePaused {
		if rec.Resume() {
			con.status("Recording", statusInfo, "resumed")
		}
		return
	}
	if rec.Pause() {
		con.status("Recording", statusWarn, "paused")
	}
}

func copyArtifact(src, dst string) error {
	if src == "" {
		return errors.New("no exported recording to copy")
	}
	if dir := filepath.Dir(dst); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	return fileutil.CopyFileVerified(src, dst)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
