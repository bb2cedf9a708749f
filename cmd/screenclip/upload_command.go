package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"screenclip/internal/library"
	"screenclip/internal/media"
	"screenclip/internal/pipeline"
	"screenclip/internal/services"
	"screenclip/internal/upload"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "upload <take>",
		Short: "Upload a saved take and print its share link",
		Long: `Upload a take saved with --no-upload or left behind by a failed upload.
Takes still waiting in the trim stage are forwarded untrimmed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(func() error {
				s, take, err := resumeTake(cmd.Context(), ctx, args[0], true, true)
				if err != nil {
					return err
				}
				con := newConsole(cmd)
				if take.Shared() {
					con.status("Already shared", statusInfo, s.uploader.ShareLink(shareOf(take)))
					return nil
				}
				if s.pipeline.Stage() == pipeline.StageTrim {
					if err := runTrimStage(cmd.Context(), con, s, trimChoice{skip: true}); err != nil {
						return err
					}
				}
				if strings.TrimSpace(title) == "" {
					title = take.Title
				}
				_, err = runUploadStage(cmd.Context(), con, s, title)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Title for the uploaded video")
	return cmd
}

// resumeTake loads a saved take and re-enters a fresh pipeline at the
// stage it was left in. With forUpload the trimmed export is restored too.
// Shared takes are returned without resuming.
func resumeTake(ctx context.Context, cc *commandContext, ref string, withUpload, forUpload bool) (*session, *library.Take, error) {
	s, err := cc.newSession(withUpload)
	if err != nil {
		return nil, nil, err
	}
	take, err := s.store.Find(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case take.Shared():
		if !forUpload {
			return nil, nil, services.Wrap(services.ErrValidation, "trimming", "resume take",
				fmt.Sprintf("take %s is already shared", shortID(take.ID)), nil)
		}
		return s, take, nil
	case take.Stage == "discarded":
		return nil, nil, services.Wrap(services.ErrValidation, "", "resume take",
			fmt.Sprintf("take %s was discarded", shortID(take.ID)), nil)
	}

	raw, err := readArtifact(take.RawPath)
	if err != nil {
		return nil, nil, err
	}
	var trimmed *media.Container
	if forUpload && take.Stage == "upload" {
		trimmed = raw
		if take.TrimmedPath != "" {
			if trimmed, err = readArtifact(take.TrimmedPath); err != nil {
				return nil, nil, err
			}
		}
	}
	if err := s.pipeline.Resume(take, raw, trimmed); err != nil {
		return nil, nil, err
	}
	return s, take, nil
}

// runUploadStage uploads the trim stage's output. On an interactive
// terminal a failed upload can be retried without leaving the stage.
func runUploadStage(ctx context.Context, con *console, s *session, title string) (upload.ShareResult, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = s.cfg.Upload.DefaultTitle
		if con.interactive {
			answer, err := con.prompt(ctx, "Title", title)
			if err != nil {
				return upload.ShareResult{}, err
			}
			title = answer
		}
	}

	for {
		share, err := s.pipeline.Upload(ctx, title)
		if err == nil {
			con.status("Shared", statusOK, share.Title)
			fmt.Fprintln(con.out, s.uploader.ShareLink(share))
			return share, nil
		}
		if !errors.Is(err, services.ErrUpload) || !con.interactive {
			return upload.ShareResult{}, err
		}
		con.status("Upload", statusError, upload.Reason(err))
		retry, cerr := con.confirm(ctx, "Retry upload?", true)
		if cerr != nil {
			return upload.ShareResult{}, cerr
		}
		if !retry {
			fmt.Fprintf(con.out, "Run 'screenclip upload %s' to try again.\n", shortID(s.pipeline.TakeID()))
			return upload.ShareResult{}, err
		}
	}
}

func shareOf(take *library.Take) upload.ShareResult {
	return upload.ShareResult{
		ID:       take.VideoID,
		ShareID:  take.ShareID,
		Title:    take.Title,
		URL:      take.MediaURL,
		ShareURL: take.ShareURL,
	}
}
