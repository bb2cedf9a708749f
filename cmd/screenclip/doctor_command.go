package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"screenclip/internal/ffmpeg"
	"screenclip/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var skipDevices bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, tools, capture devices, and the upload service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			problems := 0

			section := func(title string) {
				for _, line := range renderSectionHeader(title, colorize) {
					fmt.Fprintln(out, line)
				}
			}
			report := func(results []preflight.Result) {
				for _, result := range results {
					kind := statusOK
					if !result.Passed {
						kind = statusError
						problems++
					}
					fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
				}
			}

			section("Environment")
			report(preflight.RunAll(cmd.Context(), cfg))
			if cfg.Upload.BaseURL == "" {
				fmt.Fprintln(out, renderStatusLine(preflight.UploadServiceCheck, statusWarn, "not configured, uploads are disabled", colorize))
			}

			section("Tools")
			ffmpegReady := true
			for _, status := range preflight.CheckSystemDeps(cmd.Context(), cfg) {
				kind, detail := statusOK, status.Description
				if status.Path != "" {
					detail = fmt.Sprintf("%s (%s)", status.Description, status.Path)
				}
				if !status.Available {
					detail = status.Detail
					if status.Optional {
						kind = statusWarn
					} else {
						kind = statusError
						problems++
						ffmpegReady = false
					}
				}
				fmt.Fprintln(out, renderStatusLine(status.Name, kind, detail, colorize))
			}

			if !skipDevices {
				section("Capture")
				if ffmpegReady {
					backend := ffmpeg.New(ffmpeg.FromConfig(cfg, logger))
					results := preflight.CheckCaptureDevices(cmd.Context(), backend, preflight.CaptureProbe{
						FrameRate:   cfg.Capture.FrameRate,
						SystemAudio: cfg.Capture.SystemAudio,
						Microphone:  cfg.Capture.Microphone,
					})
					for i, result := range results {
						kind := statusOK
						switch {
						case result.Passed:
						case i == 0:
							kind = statusError
							problems++
						default:
							kind = statusWarn
						}
						fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
					}
				} else {
					fmt.Fprintln(out, renderStatusLine("Display capture", statusWarn, "skipped until ffmpeg is available", colorize))
				}
			}

			if problems > 0 {
				return fmt.Errorf("doctor found %d problem(s)", problems)
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipDevices, "skip-devices", false, "Do not open the display or microphone")
	return cmd
}
