package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const capabilityTimeout = 10 * time.Second

// Capability is an ffmpeg component screenclip needs at runtime.
type Capability struct {
	Name        string
	Description string
	// Flag is the ffmpeg listing that must mention Name: "-encoders" or "-devices".
	Flag string
}

// FFmpegCapabilities lists the encoders and devices capture and trim use.
var FFmpegCapabilities = []Capability{
	{Name: "libvpx-vp9", Description: "VP9 video encoder", Flag: "-encoders"},
	{Name: "libopus", Description: "Opus audio encoder", Flag: "-encoders"},
	{Name: "x11grab", Description: "X11 display capture", Flag: "-devices"},
	{Name: "pulse", Description: "PulseAudio capture", Flag: "-devices"},
}

// Requirements returns the binaries screenclip executes.
func Requirements(ffmpegBinary, ffprobeBinary string) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: ResolveBinary(ffmpegBinary, "ffmpeg"), Description: "Required for capture and trimming"},
		{Name: "FFprobe", Command: ResolveBinary(ffprobeBinary, "ffprobe"), Description: "Required for trim duration probing"},
	}
}

// ResolveBinary returns the configured binary or the default name.
func ResolveBinary(configured, fallback string) string {
	if v := strings.TrimSpace(configured); v != "" {
		return v
	}
	return fallback
}

// CheckFFmpegCapabilities asks ffmpeg for its encoder and device listings
// and reports each capability. A listing that cannot be produced marks every
// capability depending on it unavailable.
func CheckFFmpegCapabilities(ctx context.Context, ffmpegBinary string) []Status {
	binary := ResolveBinary(ffmpegBinary, "ffmpeg")
	listings := map[string]string{}
	failures := map[string]error{}
	results := make([]Status, 0, len(FFmpegCapabilities))

	for _, capability := range FFmpegCapabilities {
		status := Status{Name: capability.Name, Command: binary, Description: capability.Description}
		listing, seen := listings[capability.Flag]
		if _, failed := failures[capability.Flag]; !seen && !failed {
			out, err := ffmpegListing(ctx, binary, capability.Flag)
			if err != nil {
				failures[capability.Flag] = err
			} else {
				listings[capability.Flag] = out
				listing = out
			}
		}
		if err, failed := failures[capability.Flag]; failed {
			status.Detail = fmt.Sprintf("ffmpeg %s failed: %v", capability.Flag, err)
			results = append(results, status)
			continue
		}
		if !listingHas(listing, capability.Name) {
			status.Detail = fmt.Sprintf("ffmpeg build lacks %s", capability.Name)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

func ffmpegListing(ctx context.Context, binary, flag string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, capabilityTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, binary, "-hide_banner", flag).Output() //nolint:gosec
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// listingHas reports whether any line of an ffmpeg listing names the
// component as its second field, e.g. " V....D libvpx-vp9  ...".
func listingHas(listing, name string) bool {
	for _, line := range strings.Split(listing, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == name {
			return true
		}
	}
	return false
}
