package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"screenclip/internal/media"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recorded takes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(func() error {
				store, err := ctx.ensureStore()
				if err != nil {
					return err
				}
				takes, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}

				if asJSON {
					views := make([]takeView, 0, len(takes))
					for _, take := range takes {
						views = append(views, newTakeView(take, take.ShareURL))
					}
					return writeJSON(cmd, views)
				}

				out := cmd.OutOrStdout()
				if len(takes) == 0 {
					fmt.Fprintln(out, "No takes recorded yet")
					return nil
				}
				rows := make([][]string, 0, len(takes))
				var totalBytes int64
				for _, take := range takes {
					totalBytes += take.RawBytes + take.TrimmedBytes
					share := take.ShareID
					if share == "" && take.UploadError != "" {
						share = "failed: " + take.UploadError
					}
					if share == "" {
						share = "-"
					}
					rows = append(rows, []string{
						shortID(take.ID),
						take.CreatedAt.Local().Format("2006-01-02 15:04"),
						titleCase(take.Stage),
						media.FormatClock(take.ElapsedSeconds),
						describeTakeSize(take),
						describeTrim(take),
						share,
					})
				}
				headers := []string{"ID", "Recorded", "Stage", "Length", "Size", "Trim", "Share"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft}
				footer := []string{fmt.Sprintf("%d takes", len(takes)), "", "", "", formatBytes(totalBytes)}
				fmt.Fprintln(out, renderTable(headers, rows, aligns, footer...))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of takes to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
