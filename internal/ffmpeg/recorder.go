package ffmpeg

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"screenclip/internal/logging"
	"screenclip/internal/media"
)

const (
	defaultTimeslice = time.Second
	// chunkBytes bounds each OnData delivery of the finished recording.
	chunkBytes = 64 * 1024
	// playbackStreamName is how the replay shows up in the PulseAudio mixer.
	playbackStreamName = "screenclip replay"
)

type recorderState int

const (
	recorderIdle recorderState = iota
	recorderRunning
	recorderPaused
	recorderStopping
	recorderDone
)

// NewRecorder validates the stream and MIME type. The first segment starts in
// Start.
func (b *Backend) NewRecorder(stream *media.Stream, opts media.RecorderOptions, events media.RecorderEvents) (media.Recorder, error) {
	if mime := strings.TrimSpace(opts.MIMEType); mime != "" && !strings.HasPrefix(mime, media.ContentTypeWebM) {
		return nil, fmt.Errorf("unsupported recorder format %q", mime)
	}
	tracks, err := ownTracks(stream.Tracks())
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, errors.New("recorder needs at least one track")
	}
	if opts.Timeslice <= 0 {
		opts.Timeslice = defaultTimeslice
	}
	id := uuid.NewString()
	return &recorder{
		b:      b,
		id:     id,
		tracks: tracks,
		opts:   opts,
		events: events,
		logger: b.logger.With(logging.String("process", "recorder"), logging.String("recorder_id", id[:8])),
	}, nil
}

func ownTracks(in []media.Track) ([]*track, error) {
	out := make([]*track, 0, len(in))
	for _, t := range in {
		own, ok := t.(*track)
		if !ok {
			return nil, fmt.Errorf("track %q does not belong to the ffmpeg backend", t.ID())
		}
		out = append(out, own)
	}
	return out, nil
}

// recorder runs one ffmpeg process per segment, each writing a spool file in
// the work directory. Pause finishes the running segment and Resume starts
// the next, so paused time is never captured: x11grab and pulse timestamp by
// wall clock and would otherwise carry the pause into the output. When the
// recording ends the segments are joined with the concat demuxer and the
// result is delivered through OnData, then OnStop, from a single goroutine.
type recorder struct {
	b      *Backend
	id     string
	tracks []*track
	opts   media.RecorderOptions
	events media.RecorderEvents
	logger *slog.Logger

	mu       sync.Mutex
	state    recorderState
	current  *segment
	segments []*segment
}

type segment struct {
	index  int
	path   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tail
	// quit and kill are guarded by recorder.mu.
	quit   bool
	kill   *time.Timer
	exited chan struct{}
}

// segmentExit describes a segment that ended without being asked to.
type segmentExit struct {
	seg *segment
	err error
}

func (r *recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != recorderIdle {
		return errors.New("recorder already started")
	}
	if err := os.MkdirAll(r.b.cfg.WorkDir, 0o755); err != nil {
		return fmt.Errorf("recorder work dir: %w", err)
	}
	if err := r.startSegment(); err != nil {
		return err
	}
	r.state = recorderRunning
	return nil
}

// Pause finishes the running segment and waits for its file to be complete.
func (r *recorder) Pause() error {
	r.mu.Lock()
	if r.state != recorderRunning {
		r.mu.Unlock()
		return errors.New("recorder cannot pause in its current state")
	}
	seg := r.current
	r.current = nil
	r.state = recorderPaused
	r.requestQuit(seg)
	r.mu.Unlock()

	<-seg.exited
	return nil
}

// Resume starts a new segment. Replay inputs resolve again, so they pick up
// the player's current position.
func (r *recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != recorderPaused {
		return errors.New("recorder cannot resume in its current state")
	}
	if err := r.startSegment(); err != nil {
		return err
	}
	r.state = recorderRunning
	return nil
}

// Stop asks the running segment to finish its file by sending "q" on stdin;
// it is killed if it has not exited after the stop grace period. A paused
// recorder has nothing running and completes straight away.
func (r *recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case recorderIdle:
		return errors.New("recorder not started")
	case recorderStopping, recorderDone:
		return nil
	case recorderPaused:
		r.state = recorderStopping
		go r.complete(nil)
		return nil
	}
	r.state = recorderStopping
	r.requestQuit(r.current)
	return nil
}

// startSegment launches the next ffmpeg process. r.mu must be held.
func (r *recorder) startSegment() error {
	inputs := make([]input, len(r.tracks))
	for i, t := range r.tracks {
		inputs[i] = t.resolve()
	}
	index := len(r.segments)
	out := recordOutput{
		path:         r.spoolPath(fmt.Sprintf("%03d.webm", index)),
		timeslice:    r.opts.Timeslice,
		playbackSink: r.b.cfg.PlaybackSink,
	}
	args, err := recordArgs(r.tracks, inputs, out)
	if err != nil {
		return err
	}

	cmd := exec.Command(r.b.cfg.FFmpegBinary, args...) //nolint:gosec
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	seg := &segment{
		index:  index,
		path:   out.path,
		cmd:    cmd,
		stdin:  stdin,
		stderr: newTail(stderrTailBytes),
		exited: make(chan struct{}),
	}
	cmd.Stderr = seg.stderr
	if err := cmd.Start(); err != nil {
		return wrapTool("capturing", "start recorder", err)
	}
	r.current = seg
	r.segments = append(r.segments, seg)
	r.logger.Debug("recorder segment started",
		logging.Int("segment", index),
		logging.Int("pid", cmd.Process.Pid),
		logging.String("args", strings.Join(args, " ")),
	)
	go r.watch(seg)
	return nil
}

// requestQuit asks seg's ffmpeg to finish its file. r.mu must be held.
func (r *recorder) requestQuit(seg *segment) {
	seg.quit = true
	if _, err := io.WriteString(seg.stdin, "q\n"); err != nil {
		r.logger.Debug("quit request not delivered", logging.Int("segment", seg.index), logging.Error(err))
	}
	_ = seg.stdin.Close()
	process := seg.cmd.Process
	seg.kill = time.AfterFunc(r.b.cfg.StopGrace, func() {
		r.logger.Debug("recorder segment did not exit in time, killing", logging.Int("segment", seg.index))
		_ = process.Kill()
	})
}

func (r *recorder) watch(seg *segment) {
	err := seg.cmd.Wait()
	close(seg.exited)
	r.segmentExited(seg, err)
}

func (r *recorder) segmentExited(seg *segment, waitErr error) {
	r.mu.Lock()
	if seg.kill != nil {
		seg.kill.Stop()
	}
	requested := seg.quit
	current := seg == r.current
	if current {
		r.current = nil
		r.state = recorderStopping
	}
	r.mu.Unlock()

	if requested && waitErr != nil {
		r.logger.Debug("recorder segment exited with error after quit",
			logging.Int("segment", seg.index),
			logging.Error(toolError(waitErr, seg.stderr)),
		)
	}
	switch {
	case !current:
		// Finished by Pause; the file waits for the join.
	case requested:
		r.complete(nil)
	default:
		r.complete(&segmentExit{seg: seg, err: waitErr})
	}
}

// complete ends the recording: it reports a lost source, joins and delivers
// the segments, removes the spools, and fires OnStop last.
func (r *recorder) complete(exit *segmentExit) {
	r.mu.Lock()
	segments := append([]*segment(nil), r.segments...)
	r.mu.Unlock()

	var failure error
	if exit != nil {
		failure = r.sourceEnded(*exit, segments)
	}
	data, spools, err := r.join(segments)
	if err != nil && failure == nil {
		failure = wrapTool("capturing", "join segments", err)
	}
	if r.events.OnData != nil {
		for len(data) > 0 {
			n := min(len(data), chunkBytes)
			r.events.OnData(data[:n])
			data = data[n:]
		}
	}
	if failure != nil && r.events.OnError != nil {
		r.events.OnError(failure)
	}
	for _, path := range spools {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Debug("spool not removed", logging.String("path", path), logging.Error(err))
		}
	}

	r.mu.Lock()
	r.state = recorderDone
	r.mu.Unlock()
	r.logger.Debug("recorder finished", logging.Int("segments", len(segments)))
	if r.events.OnStop != nil {
		r.events.OnStop()
	}
}

// sourceEnded handles a segment that exited on its own: a capture device
// went away or a replay input reached its end. Video tracks end before
// anything is delivered, so the owner learns the take auto-stopped ahead of
// OnStop. Losing a live device after something was captured is a normal end
// of the take; any other failed exit is a recorder error.
func (r *recorder) sourceEnded(exit segmentExit, segments []*segment) error {
	live := false
	for _, t := range r.tracks {
		if t.kind != media.KindVideo {
			continue
		}
		live = live || t.live
		t.end()
	}
	if exit.err == nil {
		return nil
	}
	detail := toolError(exit.err, exit.seg.stderr)
	if live && captured(segments) {
		logging.WarnWithContext(r.logger, "display capture ended", "capture_source_lost",
			logging.Int("segment", exit.seg.index),
			logging.Error(detail),
			logging.String(logging.FieldImpact, "the take ends at the last captured frame"),
		)
		return nil
	}
	return wrapTool("capturing", "record", detail)
}

func captured(segments []*segment) bool {
	for _, seg := range segments {
		if info, err := os.Stat(seg.path); err == nil && info.Size() > 0 {
			return true
		}
	}
	return false
}

// join returns the recording assembled from the non-empty segments, plus
// every spool path to remove. When the concat run fails the first segment is
// returned with the error.
func (r *recorder) join(segments []*segment) ([]byte, []string, error) {
	spools := make([]string, 0, len(segments)+2)
	var parts []string
	for _, seg := range segments {
		spools = append(spools, seg.path)
		if info, err := os.Stat(seg.path); err == nil && info.Size() > 0 {
			parts = append(parts, seg.path)
		}
	}
	switch len(parts) {
	case 0:
		return nil, spools, nil
	case 1:
		data, err := os.ReadFile(parts[0])
		return data, spools, err
	}

	list := r.spoolPath("list.txt")
	joined := r.spoolPath("joined.webm")
	spools = append(spools, list, joined)
	if err := os.WriteFile(list, []byte(concatList(parts)), 0o644); err != nil {
		first, _ := os.ReadFile(parts[0])
		return first, spools, fmt.Errorf("write concat list: %w", err)
	}
	stderr := newTail(stderrTailBytes)
	cmd := exec.Command(r.b.cfg.FFmpegBinary, concatArgs(list, joined)...) //nolint:gosec
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		first, _ := os.ReadFile(parts[0])
		return first, spools, toolError(err, stderr)
	}
	data, err := os.ReadFile(joined)
	return data, spools, err
}

func (r *recorder) spoolPath(suffix string) string {
	return filepath.Join(r.b.cfg.WorkDir, "segment-"+r.id+"-"+suffix)
}

// concatList renders paths in the concat demuxer's list format.
func concatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(p, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// concatArgs stream-copies the listed segments into one WebM file. Each
// segment's timestamps are rebased onto the end of the previous one.
func concatArgs(list, out string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostats", "-y",
		"-f", "concat", "-safe", "0", "-i", list,
		"-c", "copy", "-f", "webm", out,
	}
}

// recordOutput is where one segment goes.
type recordOutput struct {
	path      string
	timeslice time.Duration
	// playbackSink, when set, also plays audio from playback tracks on a
	// PulseAudio sink.
	playbackSink string
}

// recordArgs builds the ffmpeg command line for tracks. inputs[i] is the
// resolved input of tracks[i]; tracks sharing an input key share an index.
func recordArgs(tracks []*track, inputs []input, out recordOutput) ([]string, error) {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostats", "-y"}
	index := map[string]int{}
	slots := make([]int, len(tracks))
	for i, in := range inputs {
		slot, ok := index[in.key]
		if !ok {
			slot = len(index)
			index[in.key] = slot
			args = append(args, in.args...)
		}
		slots[i] = slot
	}

	var (
		graph     []string
		videoMap  string
		frameRate int
		audio     []string
		playback  bool
	)
	for i, t := range tracks {
		ref := fmt.Sprintf("%d:%s:0", slots[i], streamLetter(t.kind))
		switch t.kind {
		case media.KindVideo:
			if videoMap != "" {
				continue
			}
			videoMap = ref
			frameRate = t.frameRate
			if t.filter != "" {
				graph = append(graph, fmt.Sprintf("[%s]%s[vout]", ref, t.filter))
				videoMap = "[vout]"
			}
		case media.KindAudio:
			audio = append(audio, ref)
			playback = playback || t.playback
		}
	}

	audioMap := ""
	switch len(audio) {
	case 0:
	case 1:
		audioMap = audio[0]
	default:
		var labels strings.Builder
		for _, ref := range audio {
			labels.WriteString("[" + ref + "]")
		}
		graph = append(graph, fmt.Sprintf("%samix=inputs=%d:duration=longest[aout]", labels.String(), len(audio)))
		audioMap = "[aout]"
	}
	if videoMap == "" && audioMap == "" {
		return nil, errors.New("no recordable tracks")
	}

	// A filter graph label feeds one output only, so mixed audio is split
	// before it can go to both the file and the speakers.
	playMap := ""
	if playback && audioMap != "" && out.playbackSink != "" {
		if strings.HasPrefix(audioMap, "[") {
			graph = append(graph, audioMap+"asplit=2[arec][aplay]")
			audioMap, playMap = "[arec]", "[aplay]"
		} else {
			playMap = audioMap
		}
	}

	if len(graph) > 0 {
		args = append(args, "-filter_complex", strings.Join(graph, ";"))
	}
	if playMap != "" {
		args = append(args, "-map", playMap, "-f", "pulse", "-device", out.playbackSink, playbackStreamName)
	}
	if videoMap != "" {
		args = append(args, "-map", videoMap,
			"-c:v", "libvpx-vp9", "-deadline", "realtime", "-cpu-used", "8", "-row-mt", "1",
			"-b:v", "0", "-crf", "32", "-pix_fmt", "yuv420p")
		if frameRate > 0 {
			args = append(args, "-r", strconv.Itoa(frameRate))
		}
	}
	if audioMap != "" {
		args = append(args, "-map", audioMap, "-c:a", "libopus", "-b:a", "128k")
	}
	args = append(args,
		"-f", "webm",
		"-cluster_time_limit", strconv.FormatInt(out.timeslice.Milliseconds(), 10),
		out.path,
	)
	return args, nil
}

func streamLetter(kind media.Kind) string {
	if kind == media.KindVideo {
		return "v"
	}
	return "a"
}
