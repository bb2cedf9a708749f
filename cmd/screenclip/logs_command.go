package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"screenclip/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var takeRef string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the screenclip log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(func() error {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				path := cfg.LogPath()
				if path == "" {
					return fmt.Errorf("file logging is disabled (paths.log_dir is empty)")
				}

				// Console output abbreviates take ids to their first eight characters.
				opts := logs.Options{Limit: lines}
				if takeRef != "" {
					store, err := ctx.ensureStore()
					if err != nil {
						return err
					}
					take, err := store.Find(cmd.Context(), takeRef)
					if err != nil {
						return err
					}
					opts.Match = shortID(take.ID)
				}

				out := cmd.OutOrStdout()
				result, err := logs.Tail(path, opts)
				if err != nil {
					return err
				}
				for _, line := range result.Lines {
					fmt.Fprintln(out, line)
				}
				if !follow {
					return nil
				}

				followCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return logs.Follow(followCtx, path, result.Offset, opts, logs.DefaultPollInterval, func(line string) {
					fmt.Fprintln(out, line)
				})
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&takeRef, "take", "", "Only show lines for this take (id prefix or share id)")
	return cmd
}
