package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
	Packets []Packet `json:"packets,omitempty"`
	raw     []byte
}

// Packet carries the timing fields requested by PacketDuration.
type Packet struct {
	CodecType    string `json:"codec_type"`
	PTSTime      string `json:"pts_time"`
	DurationTime string `json:"duration_time"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	CodecTag   string `json:"codec_tag_string"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	return run(ctx, binary, "inspect", "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
}

// PacketDuration scans every packet of path and returns the end time of the
// last one, in seconds. It is slower than Inspect and meant as a fallback.
func PacketDuration(ctx context.Context, binary string, path string) (float64, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, errors.New("ffprobe packets: empty path")
	}
	result, err := run(ctx, binary, "packets", "-v", "error", "-hide_banner",
		"-show_entries", "packet=codec_type,pts_time,duration_time", "-of", "json", "--", path)
	if err != nil {
		return 0, err
	}
	end := result.PacketEnd()
	if end <= 0 {
		return 0, errors.New("ffprobe packets: no timed packets")
	}
	return end, nil
}

func run(ctx context.Context, binary, op string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe %s: %w: %s", op, err, strings.TrimSpace(string(output)))
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe %s parse: %w", op, err)
	}
	result.raw = append([]byte(nil), output...)
	return result, nil
}

// RawJSON returns the raw ffprobe JSON payload.
func (r Result) RawJSON() []byte {
	return append([]byte(nil), r.raw...)
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			count++
		}
	}
	return count
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// PacketEnd returns the largest pts+duration across Packets, or 0.
func (r Result) PacketEnd() float64 {
	end := 0.0
	for _, p := range r.Packets {
		pts := parseFloat(p.PTSTime)
		if math.IsNaN(pts) {
			continue
		}
		if d := parseFloat(p.DurationTime); !math.IsNaN(d) && d > 0 {
			pts += d
		}
		end = math.Max(end, pts)
	}
	return end
}

// Duration returns the container duration, falling back to PacketEnd when
// the header does not carry a usable value.
func (r Result) Duration() float64 {
	if d := r.DurationSeconds(); !math.IsNaN(d) && !math.IsInf(d, 0) && d > 0 {
		return d
	}
	return r.PacketEnd()
}

// VideoSize returns the dimensions of the first video stream, or zeros.
func (r Result) VideoSize() (int, int) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") && stream.Width > 0 && stream.Height > 0 {
			return stream.Width, stream.Height
		}
	}
	return 0, 0
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

// BitRate returns the container bitrate in bits per second, or 0 when unavailable.
func (r Result) BitRate() int64 {
	rate := parseFloat(r.Format.BitRate)
	if math.IsNaN(rate) || rate < 0 {
		return 0
	}
	return int64(rate)
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
