package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"screenclip/internal/library"
	"screenclip/internal/media"
	"screenclip/internal/services"
	"screenclip/internal/upload"
)

type showOutput struct {
	Take  *takeView     `json:"take,omitempty"`
	Video *upload.Video `json:"video,omitempty"`
	Link  string        `json:"link,omitempty"`
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var countView bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <take|share-id>",
		Short: "Show a take and its published video",
		Long: `Show a local take by id prefix or share id. Shared takes, and share ids not
recorded on this machine, are looked up on the upload service.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(func() error {
				out, err := lookupShow(cmd.Context(), ctx, args[0], countView)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, out)
				}
				printShow(cmd, out)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&countView, "count-view", false, "Record a view on the service")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func lookupShow(ctx context.Context, cc *commandContext, ref string, countView bool) (showOutput, error) {
	store, err := cc.ensureStore()
	if err != nil {
		return showOutput{}, err
	}
	var out showOutput
	take, err := store.Find(ctx, ref)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrNotFound):
		take = nil
	default:
		return showOutput{}, err
	}

	shareID := ref
	if take != nil {
		view := newTakeView(take, take.ShareURL)
		out.Take = &view
		if !take.Shared() {
			return out, nil
		}
		shareID = take.ShareID
	}

	client, err := cc.newUploadClient()
	if err != nil {
		if take != nil {
			return out, nil
		}
		return showOutput{}, err
	}
	video, err := client.Resolve(ctx, shareID)
	if err != nil {
		return showOutput{}, err
	}
	if countView {
		count, err := client.RecordView(ctx, video.ID)
		if err != nil {
			return showOutput{}, err
		}
		video.ViewCount = count
	}
	out.Video = &video
	out.Link = client.ShareLink(upload.ShareResult{ShareID: video.ShareID})
	if out.Take != nil {
		out.Take.ShareURL = out.Link
	}
	return out, nil
}

func printShow(cmd *cobra.Command, out showOutput) {
	w := cmd.OutOrStdout()
	if out.Take != nil {
		take := out.Take
		for _, line := range renderSectionHeader("Take "+shortID(take.ID), false) {
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w, renderField("Stage", titleCase(take.Stage)))
		fmt.Fprintln(w, renderField("Recorded", take.CreatedAt))
		length := media.FormatClock(take.ElapsedSeconds)
		if take.AutoStopped {
			length += " (stopped when the display ended)"
		}
		fmt.Fprintln(w, renderField("Length", length))
		fmt.Fprintln(w, renderField("Raw", take.RawPath))
		fmt.Fprintln(w, renderField("Trim", describeTrim(&library.Take{
			TrimApplied: take.TrimApplied,
			TrimReason:  take.TrimReason,
			TrimStart:   take.TrimStart,
			TrimEnd:     take.TrimEnd,
		})))
		if take.TrimmedPath != "" {
			fmt.Fprintln(w, renderField("Trimmed", take.TrimmedPath))
		}
		if take.UploadError != "" {
			fmt.Fprintln(w, renderField("Last upload error", fmt.Sprintf("%s (%d attempts)", take.UploadError, take.UploadAttempts)))
		}
	}
	if out.Video != nil {
		video := out.Video
		for _, line := range renderSectionHeader("Video "+video.ShareID, false) {
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w, renderField("Title", video.Title))
		if !video.CreatedAt.IsZero() {
			fmt.Fprintln(w, renderField("Published", video.CreatedAt.Local().Format(time.RFC1123)))
		}
		fmt.Fprintln(w, renderField("Views", fmt.Sprintf("%d", video.ViewCount)))
		fmt.Fprintln(w, renderField("Media", video.URL))
		fmt.Fprintln(w, renderField("Link", out.Link))
	}
}
