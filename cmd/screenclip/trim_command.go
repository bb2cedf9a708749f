package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"screenclip/internal/media"
	"screenclip/internal/services"
	"screenclip/internal/trim"
)

// trimChoice is how the trim stage should treat the recording.
type trimChoice struct {
	skip     bool
	explicit bool
	window   media.TrimWindow
}

func newTrimCommand(ctx *commandContext) *cobra.Command {
	var start, end string
	var skip bool

	cmd := &cobra.Command{
		Use:   "trim <take>",
		Short: "Trim a saved take again",
		Long: `Re-encode a saved take between two timestamps. Any earlier trim is discarded
and the take returns to the upload stage. Without --start or --end an
interactive terminal is prompted for the bounds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(func() error {
				window, explicit, err := parseWindowFlags(start, end)
				if err != nil {
					return err
				}
				s, take, err := resumeTake(cmd.Context(), ctx, args[0], false, false)
				if err != nil {
					return err
				}
				con := newConsole(cmd)
				if err := runTrimStage(cmd.Context(), con, s, trimChoice{skip: skip, explicit: explicit, window: window}); err != nil {
					return err
				}
				fmt.Fprintf(con.out, "Run 'screenclip upload %s' to share it.\n", shortID(take.ID))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "Keep the recording from this timestamp (SS, MM:SS, or HH:MM:SS)")
	cmd.Flags().StringVar(&end, "end", "", "Keep the recording up to this timestamp")
	cmd.Flags().BoolVar(&skip, "skip", false, "Forward the recording untouched")
	cmd.MarkFlagsMutuallyExclusive("skip", "start")
	cmd.MarkFlagsMutuallyExclusive("skip", "end")
	return cmd
}

// parseWindowFlags turns --start/--end values into a window. A missing end
// means "to the end of the recording".
func parseWindowFlags(start, end string) (media.TrimWindow, bool, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" && end == "" {
		return media.TrimWindow{}, false, nil
	}
	var window media.TrimWindow
	if start != "" {
		value, err := media.ParseTimestamp(start)
		if err != nil {
			return media.TrimWindow{}, false, services.Wrap(services.ErrValidation, "trimming", "parse window", "invalid start", err)
		}
		window.Start = value
	}
	if end != "" {
		value, err := media.ParseTimestamp(end)
		if err != nil {
			return media.TrimWindow{}, false, services.Wrap(services.ErrValidation, "trimming", "parse window", "invalid end", err)
		}
		if value-window.Start < media.MinSpan {
			return media.TrimWindow{}, false, services.Wrap(services.ErrValidation, "trimming", "parse window",
				fmt.Sprintf("end must be at least %.1fs after start", media.MinSpan), nil)
		}
		window.End = value
	}
	return window, true, nil
}

// runTrimStage moves the pipeline from trim to upload. Problems inside the
// re-encode fall back to the untouched recording and are only reported.
func runTrimStage(ctx context.Context, con *console, s *session, choice trimChoice) error {
	var (
		result trim.Result
		err    error
	)
	switch {
	case choice.skip:
		result, err = s.pipeline.SkipTrim(ctx)
	case choice.explicit:
		result, err = s.pipeline.Trim(ctx, choice.window)
	case con.interactive:
		window, skip, perr := promptWindow(ctx, con, s)
		if perr != nil {
			return perr
		}
		if skip {
			result, err = s.pipeline.SkipTrim(ctx)
		} else {
			result, err = s.pipeline.Trim(ctx, window)
		}
	default:
		result, err = s.pipeline.SkipTrim(ctx)
	}
	if err != nil {
		return err
	}
	reportTrim(con, result)
	return nil
}

func promptWindow(ctx context.Context, con *console, s *session) (media.TrimWindow, bool, error) {
	duration, err := s.pipeline.Duration(ctx)
	endFallback := ""
	if err == nil && media.ValidDuration(duration) {
		con.status("Length", statusInfo, media.FormatPrecise(duration))
		endFallback = media.FormatPrecise(duration)
	} else {
		con.status("Length", statusWarn, "unknown, the end bound defaults to the end of the recording")
	}
	fmt.Fprintln(con.out, "Enter trim bounds as SS, MM:SS, or HH:MM:SS. Type s to skip trimming.")

	for {
		answer, err := con.prompt(ctx, "Start", "00:00.00")
		if err != nil {
			return media.TrimWindow{}, false, err
		}
		if isSkip(answer) {
			return media.TrimWindow{}, true, nil
		}
		endAnswer, err := con.prompt(ctx, "End", endFallback)
		if err != nil {
			return media.TrimWindow{}, false, err
		}
		if isSkip(endAnswer) {
			return media.TrimWindow{}, true, nil
		}
		window, _, err := parseWindowFlags(answer, endAnswer)
		if err != nil {
			con.status("Trim", statusError, err.Error())
			continue
		}
		return window, false, nil
	}
}

func isSkip(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "s", "skip":
		return true
	default:
		return false
	}
}

func reportTrim(con *console, result trim.Result) {
	size := formatBytes(int64(result.Container.Size()))
	if result.Applied {
		con.status("Trimmed", statusOK, fmt.Sprintf("%s, %s", result.Window, size))
		return
	}
	kind := statusWarn
	if result.Reason == trim.ReasonSkipped || result.Reason == trim.ReasonFullWindow {
		kind = statusInfo
	}
	con.status("Trim", kind, fmt.Sprintf("%s, keeping the original recording (%s)", titleCase(result.Reason), size))
}
