package ffmpeg

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"screenclip/internal/logging"
	"screenclip/internal/media"
	"screenclip/internal/media/mediatest"
	"screenclip/internal/services"
	"screenclip/internal/testsupport"
)

const noopScript = "#!/bin/sh\nexit 0\n"

func newTestBackend(t *testing.T, ffmpegScript, ffprobeScript string) *Backend {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "bin")
	testsupport.StubBinaries(t, bin, ffmpegScript, "ffmpeg")
	testsupport.StubBinaries(t, bin, ffprobeScript, "ffprobe")
	return New(Config{
		FFmpegBinary:       filepath.Join(bin, "ffmpeg"),
		FFprobeBinary:      filepath.Join(bin, "ffprobe"),
		Display:            ":99.0",
		WorkDir:            filepath.Join(dir, "work"),
		TimeUpdateInterval: 10 * time.Millisecond,
		StopGrace:          2 * time.Second,
		Logger:             logging.NewNop(),
	})
}

func displayTrack() *track {
	t := newTrack(media.KindVideo, "display :99.0", staticInput("x11grab::99.0",
		"-f", "x11grab", "-framerate", "30", "-draw_mouse", "1", "-i", ":99.0"))
	t.frameRate = 30
	return t
}

func pulse(device string) *track {
	return newTrack(media.KindAudio, device, staticInput("pulse:"+device, "-f", "pulse", "-i", device))
}

func resolveAll(tracks []*track) []input {
	out := make([]input, len(tracks))
	for i, t := range tracks {
		out[i] = t.resolve()
	}
	return out
}

func TestRecordArgsMixesAudioSources(t *testing.T) {
	tracks := []*track{displayTrack(), pulse("@DEFAULT_MONITOR@"), pulse("default")}
	got, err := recordArgs(tracks, resolveAll(tracks), recordOutput{path: "/work/segment-000.webm", timeslice: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("recordArgs: %v", err)
	}
	want := []string{
		"-hide_banner", "-loglevel", "error", "-nostats", "-y",
		"-f", "x11grab", "-framerate", "30", "-draw_mouse", "1", "-i", ":99.0",
		"-f", "pulse", "-i", "@DEFAULT_MONITOR@",
		"-f", "pulse", "-i", "default",
		"-filter_complex", "[1:a:0][2:a:0]amix=inputs=2:duration=longest[aout]",
		"-map", "0:v:0",
		"-c:v", "libvpx-vp9", "-deadline", "realtime", "-cpu-used", "8", "-row-mt", "1",
		"-b:v", "0", "-crf", "32", "-pix_fmt", "yuv420p", "-r", "30",
		"-map", "[aout]", "-c:a", "libopus", "-b:a", "128k",
		"-f", "webm", "-cluster_time_limit", "100", "/work/segment-000.webm",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected args (-want +got):\n%s", diff)
	}
}

func TestRecordArgsReplaySharesOneInput(t *testing.T) {
	p := &player{path: "/tmp/replay.webm", base: 2.5, duration: 10}
	video := newTrack(media.KindVideo, "replay surface", p.replayInput)
	video.filter = "scale=640:360"
	audio := newTrack(media.KindAudio, "replay audio", p.replayInput)
	tracks := []*track{video, audio}

	got, err := recordArgs(tracks, resolveAll(tracks), recordOutput{path: "/work/out.webm", timeslice: time.Second})
	if err != nil {
		t.Fatalf("recordArgs: %v", err)
	}
	joined := strings.Join(got, " ")
	if strings.Count(joined, "-i ") != 1 {
		t.Fatalf("expected a single replay input, got %q", joined)
	}
	for _, part := range []string{
		"-re -ss 2.500 -i /tmp/replay.webm",
		"-filter_complex [0:v:0]scale=640:360[vout]",
		"-map [vout]",
		"-map 0:a:0",
		"-cluster_time_limit 1000 /work/out.webm",
	} {
		if !strings.Contains(joined, part) {
			t.Fatalf("expected %q in %q", part, joined)
		}
	}
	if strings.Contains(joined, "-f pulse") {
		t.Fatalf("no playback output without a playback track, got %q", joined)
	}
}

func TestRecordArgsPlaysReplayAudio(t *testing.T) {
	p := &player{path: "/tmp/replay.webm", duration: 10}
	video := newTrack(media.KindVideo, "replay surface", p.replayInput)
	audio := newTrack(media.KindAudio, "replay audio", p.replayInput)
	audio.playback = true
	tracks := []*track{video, audio}

	got, err := recordArgs(tracks, resolveAll(tracks), recordOutput{path: "/work/out.webm", timeslice: time.Second, playbackSink: "speakers"})
	if err != nil {
		t.Fatalf("recordArgs: %v", err)
	}
	joined := strings.Join(got, " ")
	for _, part := range []string{
		"-map 0:a:0 -f pulse -device speakers screenclip replay -map 0:v:0",
		"-map 0:a:0 -c:a libopus",
	} {
		if !strings.Contains(joined, part) {
			t.Fatalf("expected %q in %q", part, joined)
		}
	}
	if got[len(got)-1] != "/work/out.webm" {
		t.Fatalf("the recording file must stay the last output, got %q", got[len(got)-1])
	}

	// Mixed audio is a filter label and has to be split between the outputs.
	tracks = []*track{video, audio, pulse("default")}
	got, err = recordArgs(tracks, resolveAll(tracks), recordOutput{path: "/work/out.webm", timeslice: time.Second, playbackSink: "speakers"})
	if err != nil {
		t.Fatalf("recordArgs: %v", err)
	}
	joined = strings.Join(got, " ")
	for _, part := range []string{
		"[aout]asplit=2[arec][aplay]",
		"-map [aplay] -f pulse -device speakers",
		"-map [arec] -c:a libopus",
	} {
		if !strings.Contains(joined, part) {
			t.Fatalf("expected %q in %q", part, joined)
		}
	}

	// Without a sink nothing is played.
	got, err = recordArgs(tracks, resolveAll(tracks), recordOutput{path: "/work/out.webm", timeslice: time.Second})
	if err != nil {
		t.Fatalf("recordArgs: %v", err)
	}
	if joined := strings.Join(got, " "); strings.Contains(joined, "pulse -device") || strings.Contains(joined, "asplit") {
		t.Fatalf("unexpected playback output in %q", joined)
	}
}

func TestRecordArgsNeedsATrack(t *testing.T) {
	if _, err := recordArgs(nil, nil, recordOutput{path: "/work/out.webm", timeslice: time.Second}); err == nil {
		t.Fatal("expected error without tracks")
	}
}

func TestConcatListQuotesPaths(t *testing.T) {
	got := concatList([]string{"/work/a.webm", "/work/it's.webm"})
	want := "file '/work/a.webm'\nfile '/work/it'\\''s.webm'\n"
	if got != want {
		t.Fatalf("unexpected list:\n%s", got)
	}
}

type recorderEvents struct {
	mu      sync.Mutex
	data    []byte
	errs    []error
	order   []string
	stopped chan struct{}
}

func newRecorderEvents() *recorderEvents {
	return &recorderEvents{stopped: make(chan struct{})}
}

func (e *recorderEvents) note(event string) {
	e.mu.Lock()
	e.order = append(e.order, event)
	e.mu.Unlock()
}

func (e *recorderEvents) events() media.RecorderEvents {
	return media.RecorderEvents{
		OnData: func(data []byte) {
			e.mu.Lock()
			e.data = append(e.data, data...)
			e.mu.Unlock()
		},
		OnError: func(err error) {
			e.mu.Lock()
			e.errs = append(e.errs, err)
			e.order = append(e.order, "error")
			e.mu.Unlock()
		},
		OnStop: func() {
			e.note("stop")
			close(e.stopped)
		},
	}
}

func (e *recorderEvents) payload() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return string(e.data)
}

func (e *recorderEvents) snapshot() ([]string, []error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...), append([]error(nil), e.errs...)
}

func (e *recorderEvents) waitStopped(t *testing.T) {
	t.Helper()
	select {
	case <-e.stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("recorder never stopped")
	}
}

// segmentScript writes "head" to the output file, waits for the quit line,
// then appends "tail". A concat run joins the listed files.
const segmentScript = `#!/bin/sh
for out; do :; done
case "$*" in
  *"-f concat"*)
    prev=""
    for arg; do
      [ "$prev" = "-i" ] && list="$arg"
      prev="$arg"
    done
    sed -n "s/^file '\(.*\)'$/\1/p" "$list" | while read -r part; do cat "$part"; done > "$out"
    exit 0
    ;;
esac
printf 'head' > "$out"
read cmd
printf 'tail' >> "$out"
`

func spools(t *testing.T, b *Backend) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(b.cfg.WorkDir, "segment-*"))
	if err != nil {
		t.Fatalf("glob spools: %v", err)
	}
	return matches
}

func TestRecorderDeliversSegmentOnStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	b := newTestBackend(t, segmentScript, noopScript)
	display := displayTrack()
	display.OnEnded(func() { t.Error("a requested stop must not end the display track") })

	events := newRecorderEvents()
	rec, err := b.NewRecorder(media.NewStream(display), media.RecorderOptions{
		MIMEType:  media.RecorderMIME,
		Timeslice: 10 * time.Millisecond,
	}, events.events())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	events.waitStopped(t)

	if got := events.payload(); got != "headtail" {
		t.Fatalf("expected the finished segment, got %q", got)
	}
	order, errs := events.snapshot()
	if len(errs) != 0 || !cmp.Equal(order, []string{"stop"}) {
		t.Fatalf("expected a clean single stop, got order=%v errs=%v", order, errs)
	}
	if left := spools(t, b); len(left) != 0 {
		t.Fatalf("spool files left behind: %v", left)
	}
	if err := rec.Stop(); err != nil {
		t.Fatalf("second Stop should be a no-op, got %v", err)
	}
}

func TestRecorderPauseSplitsSegmentsAndJoinsThem(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	b := newTestBackend(t, segmentScript, noopScript)
	events := newRecorderEvents()
	rec, err := b.NewRecorder(media.NewStream(displayTrack()), media.RecorderOptions{Timeslice: 10 * time.Millisecond}, events.events())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.Resume(); err == nil {
		t.Fatal("Resume before Start should fail")
	}
	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := rec.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if running := spools(t, b); len(running) != 1 {
		t.Fatalf("expected the first segment on disk while paused, got %v", running)
	}
	if err := rec.Pause(); err == nil {
		t.Fatal("second Pause should fail")
	}
	if err := rec.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := rec.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop while paused: %v", err)
	}
	events.waitStopped(t)

	if got := events.payload(); got != "headtailheadtail" {
		t.Fatalf("expected both segments joined, got %q", got)
	}
	if _, errs := events.snapshot(); len(errs) != 0 {
		t.Fatalf("unexpected errors %v", errs)
	}
	if left := spools(t, b); len(left) != 0 {
		t.Fatalf("spool files left behind: %v", left)
	}
}

func TestRecorderLostDisplayEndsTakeWithoutError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	script := "#!/bin/sh\nfor out; do :; done\nprintf 'x' > \"$out\"\necho 'x11grab: display lost' >&2\nexit 1\n"
	b := newTestBackend(t, script, noopScript)
	display := displayTrack()
	display.live = true
	events := newRecorderEvents()
	display.OnEnded(func() { events.note("ended") })

	rec, err := b.NewRecorder(media.NewStream(display, pulse("default")), media.RecorderOptions{Timeslice: 10 * time.Millisecond}, events.events())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	events.waitStopped(t)

	order, errs := events.snapshot()
	if !cmp.Equal(order, []string{"ended", "stop"}) {
		t.Fatalf("expected the display to end before OnStop, got %v", order)
	}
	if len(errs) != 0 {
		t.Fatalf("losing the display is a normal end, got %v", errs)
	}
	if events.payload() != "x" {
		t.Fatalf("expected the captured data, got %q", events.payload())
	}
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop after exit should be a no-op, got %v", err)
	}
}

func TestRecorderFailureWithoutLiveSourceIsAnError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	script := "#!/bin/sh\necho 'replay decode failed' >&2\nexit 1\n"
	b := newTestBackend(t, script, noopScript)
	p := &player{b: b, path: "/tmp/replay.webm", duration: 10}
	video := newTrack(media.KindVideo, "replay surface", p.replayInput)
	events := newRecorderEvents()
	video.OnEnded(func() { events.note("ended") })

	rec, err := b.NewRecorder(media.NewStream(video), media.RecorderOptions{Timeslice: 10 * time.Millisecond}, events.events())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	events.waitStopped(t)

	order, errs := events.snapshot()
	if !cmp.Equal(order, []string{"ended", "error", "stop"}) {
		t.Fatalf("unexpected event order %v", order)
	}
	if len(errs) != 1 || !errors.Is(errs[0], services.ErrExternalTool) {
		t.Fatalf("expected one external tool error, got %v", errs)
	}
	if !strings.Contains(errs[0].Error(), "replay decode failed") {
		t.Fatalf("expected stderr detail, got %v", errs[0])
	}
}

func TestLiveDisplayThatNeverCapturedIsAnError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	script := "#!/bin/sh\necho 'cannot open display' >&2\nexit 1\n"
	b := newTestBackend(t, script, noopScript)
	display := displayTrack()
	display.live = true
	events := newRecorderEvents()

	rec, err := b.NewRecorder(media.NewStream(display), media.RecorderOptions{Timeslice: 10 * time.Millisecond}, events.events())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	events.waitStopped(t)
	if _, errs := events.snapshot(); len(errs) != 1 {
		t.Fatalf("expected an error when nothing was captured, got %v", errs)
	}
}

func TestNewRecorderRejectsForeignTracks(t *testing.T) {
	b := newTestBackend(t, noopScript, noopScript)
	foreign := mediatest.NewTrack("v", media.KindVideo, nil)
	if _, err := b.NewRecorder(media.NewStream(foreign), media.RecorderOptions{}, media.RecorderEvents{}); err == nil {
		t.Fatal("expected foreign track to be rejected")
	}
	if _, err := b.NewRecorder(media.NewStream(displayTrack()), media.RecorderOptions{MIMEType: "video/mp4"}, media.RecorderEvents{}); err == nil {
		t.Fatal("expected unsupported format to be rejected")
	}
	if _, err := b.NewRecorder(media.NewStream(), media.RecorderOptions{}, media.RecorderEvents{}); err == nil {
		t.Fatal("expected empty stream to be rejected")
	}
}
