package trim_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"screenclip/internal/media"
	"screenclip/internal/media/mediatest"
	"screenclip/internal/trim"
)

type rig struct {
	log      *mediatest.EventLog
	players  *mediatest.PlayerFactory
	surfaces *mediatest.SurfaceFactory
	graphs   *mediatest.AudioGraphFactory
	recs     *mediatest.RecorderFactory
	source   *media.Container
}

func newRig(durations ...float64) *rig {
	log := &mediatest.EventLog{}
	return &rig{
		log:      log,
		players:  &mediatest.PlayerFactory{Log: log, Durations: durations, Width: 1280, Height: 720, AutoSeek: true, AutoPlay: true, Step: 0.5},
		surfaces: &mediatest.SurfaceFactory{Log: log},
		graphs:   &mediatest.AudioGraphFactory{Log: log},
		recs:     &mediatest.RecorderFactory{Log: log, Flush: []byte("clip")},
		source:   media.NewContainer(media.ContentTypeWebM, []byte("source-bytes")),
	}
}

func (r *rig) reencoder(mutate func(*trim.Options)) *trim.Reencoder {
	opts := trim.Options{
		Players:            r.players,
		Surfaces:           r.surfaces,
		AudioGraphs:        r.graphs,
		Recorders:          r.recs,
		DurationRetryDelay: time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return trim.New(opts)
}

func (r *rig) trim(t *testing.T, re *trim.Reencoder, window media.TrimWindow) trim.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return re.Trim(ctx, r.source, window)
}

func (r *rig) assertReleased(t *testing.T) {
	t.Helper()
	if p := r.players.Last(); p != nil && !p.Closed() {
		t.Fatal("player not closed")
	}
	if s := r.surfaces.Last(); s != nil {
		if !s.Closed() {
			t.Fatal("surface not closed")
		}
		if s.Video != nil && s.Video.Stops() != 1 {
			t.Fatalf("surface track stopped %d times, want 1", s.Video.Stops())
		}
	}
	if g := r.graphs.Last(); g != nil {
		if g.Closes() != 1 {
			t.Fatalf("audio graph closed %d times, want 1", g.Closes())
		}
		if g.Track != nil && g.Track.Stops() != 1 {
			t.Fatalf("tap track stopped %d times, want 1", g.Track.Stops())
		}
	}
}

func (r *rig) assertPassthrough(t *testing.T, res trim.Result, reason string) {
	t.Helper()
	if res.Applied {
		t.Fatal("expected passthrough, got applied trim")
	}
	if !res.Container.Same(r.source) {
		t.Fatal("expected the original container to be returned")
	}
	if res.Reason != reason {
		t.Fatalf("unexpected reason %q, want %q", res.Reason, reason)
	}
	r.assertReleased(t)
}

func waitForEvent(t *testing.T, log *mediatest.EventLog, name string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for log.Index(name) < 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; events: %v", name, log.Events())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRecorderStartsOnlyAfterSeekCompletes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	r := newRig(10)
	r.players.AutoSeek = false
	r.players.AutoPlay = false
	r.recs.Flush = []byte("-tail")
	re := r.reencoder(nil)

	results := make(chan trim.Result, 1)
	go func() { results <- r.trim(t, re, media.TrimWindow{Start: 2, End: 4}) }()

	waitForEvent(t, r.log, "player.seek")
	player := r.players.Last()

	// A stale time update past the end arrives before the seek completes.
	player.TimeUpdate(9.5)
	time.Sleep(20 * time.Millisecond)
	if r.log.Index("recorder.start") >= 0 || r.log.Index("recorder.stop") >= 0 {
		t.Fatalf("recorder touched before seek completed: %v", r.log.Events())
	}

	player.CompleteSeek()
	waitForEvent(t, r.log, "player.play")
	rec := r.recs.Last()
	rec.Emit([]byte("a"))
	player.TimeUpdate(2.5)
	rec.Emit([]byte("b"))
	player.TimeUpdate(4.0)

	var res trim.Result
	select {
	case res = <-results:
	case <-time.After(5 * time.Second):
		t.Fatal("trim did not finish")
	}

	if !res.Applied {
		t.Fatalf("expected applied trim, got reason %q", res.Reason)
	}
	if got := string(res.Container.Bytes()); got != "ab-tail" {
		t.Fatalf("unexpected trimmed payload %q", got)
	}
	if res.Window != (media.TrimWindow{Start: 2, End: 4}) {
		t.Fatalf("unexpected window %+v", res.Window)
	}

	order := []string{"player.seek", "player.seeked", "recorder.start", "player.play", "player.pause", "recorder.stop"}
	last := -1
	for _, name := range order {
		idx := r.log.Index(name)
		if idx <= last {
			t.Fatalf("event %s out of order: %v", name, r.log.Events())
		}
		last = idx
	}
	if diff := cmp.Diff([]float64{9.5, 2.5, 4.0}, r.surfaces.Last().Draws()); diff != "" {
		t.Fatalf("draws mismatch (-want +got):\n%s", diff)
	}
	if r.log.Count("recorder.start") != 1 {
		t.Fatalf("recorder started %d times", r.log.Count("recorder.start"))
	}
	r.assertReleased(t)
	rec.Wait()
}

func TestSeekCompletingBeforeStartRequestStillStartsOnce(t *testing.T) {
	r := newRig(6)
	re := r.reencoder(nil)

	res := r.trim(t, re, media.TrimWindow{Start: 1, End: 3})
	if !res.Applied {
		t.Fatalf("expected applied trim, got reason %q", res.Reason)
	}
	if r.log.Count("recorder.start") != 1 || r.log.Count("player.play") != 1 {
		t.Fatalf("expected exactly one start and play: %v", r.log.Events())
	}
	if r.log.Index("player.seeked") > r.log.Index("recorder.start") {
		t.Fatalf("recorder started before seek completed: %v", r.log.Events())
	}
	r.assertReleased(t)
	r.recs.Last().Wait()
}

func TestDurationRetriedExactlyOnce(t *testing.T) {
	r := newRig(math.NaN(), 8)
	re := r.reencoder(nil)

	res := r.trim(t, re, media.TrimWindow{Start: 1, End: 3})
	if !res.Applied {
		t.Fatalf("expected applied trim after retry, got reason %q", res.Reason)
	}
	if got := r.players.Last().DurationReads(); got != 2 {
		t.Fatalf("expected two duration reads, got %d", got)
	}
	if res.SourceDuration != 8 {
		t.Fatalf("unexpected source duration %v", res.SourceDuration)
	}
	r.recs.Last().Wait()
}

func TestInvalidDurationFallsBackToPassthrough(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	r := newRig(math.NaN(), math.Inf(1))
	re := r.reencoder(nil)

	res := r.trim(t, re, media.TrimWindow{Start: 1, End: 3})
	r.assertPassthrough(t, res, trim.ReasonNoDuration)
	if got := r.players.Last().DurationReads(); got != 2 {
		t.Fatalf("expected one retry and no polling, got %d reads", got)
	}
	if r.surfaces.Last() != nil {
		t.Fatal("surface built without a valid duration")
	}
}

func TestMissingDrawingContextFallsBackToPassthrough(t *testing.T) {
	r := newRig(5)
	r.surfaces.NilCanvas = true
	res := r.trim(t, r.reencoder(nil), media.TrimWindow{Start: 0, End: 2})
	r.assertPassthrough(t, res, trim.ReasonNoCanvas)
	if r.recs.Last() != nil {
		t.Fatal("recorder built without a drawing context")
	}
}

func TestSurfaceFailureFallsBackToPassthrough(t *testing.T) {
	r := newRig(5)
	r.surfaces.Err = errors.New("no gpu")
	res := r.trim(t, r.reencoder(nil), media.TrimWindow{Start: 0, End: 2})
	r.assertPassthrough(t, res, trim.ReasonNoSurface)
}

func TestAudioGraphFailureFallsBackToPassthrough(t *testing.T) {
	r := newRig(5)
	r.graphs.TapErr = errors.New("no audio destination")
	res := r.trim(t, r.reencoder(nil), media.TrimWindow{Start: 0, End: 2})
	r.assertPassthrough(t, res, trim.ReasonNoAudioGraph)
}

func TestRecorderErrorFallsBackToPassthrough(t *testing.T) {
	r := newRig(10)
	r.players.AutoPlay = false
	re := r.reencoder(nil)

	results := make(chan trim.Result, 1)
	go func() { results <- r.trim(t, re, media.TrimWindow{Start: 1, End: 5}) }()
	waitForEvent(t, r.log, "recorder.start")
	rec := r.recs.Last()
	rec.Emit([]byte("partial"))
	rec.Fail(errors.New("encoder crashed"))

	res := <-results
	r.assertPassthrough(t, res, trim.ReasonRecorder)
}

func TestPlayerErrorBeforeMetadataFallsBackToPassthrough(t *testing.T) {
	r := newRig(5)
	r.players.NoMetadata = true
	re := r.reencoder(nil)

	results := make(chan trim.Result, 1)
	go func() { results <- r.trim(t, re, media.TrimWindow{Start: 1, End: 2}) }()
	waitForEvent(t, r.log, "player.load")
	r.players.Last().Fail(errors.New("corrupt header"))

	r.assertPassthrough(t, <-results, trim.ReasonLoadFailed)
}

func TestCancellationReleasesResources(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	r := newRig(10)
	r.players.AutoSeek = false
	re := r.reencoder(nil)

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan trim.Result, 1)
	go func() { results <- re.Trim(ctx, r.source, media.TrimWindow{Start: 1, End: 2}) }()
	waitForEvent(t, r.log, "player.seek")
	cancel()

	res := <-results
	r.assertPassthrough(t, res, trim.ReasonCanceled)
	if r.log.Index("recorder.start") >= 0 {
		t.Fatal("recorder started after cancellation")
	}
}

func TestEmptyReencodeFallsBackToPassthrough(t *testing.T) {
	r := newRig(4)
	r.recs.Flush = nil
	res := r.trim(t, r.reencoder(nil), media.TrimWindow{Start: 0, End: 1})
	r.assertPassthrough(t, res, trim.ReasonEmptyOutput)
	r.recs.Last().Wait()
}

func TestFullWindowIsReencodedUnlessSkipped(t *testing.T) {
	r := newRig(3)
	res := r.trim(t, r.reencoder(nil), media.TrimWindow{})
	if !res.Applied {
		t.Fatalf("expected full window to be re-encoded, got %q", res.Reason)
	}
	if res.Window != media.FullWindow(3) {
		t.Fatalf("unexpected window %+v", res.Window)
	}
	r.recs.Last().Wait()

	skip := newRig(3)
	res = skip.trim(t, skip.reencoder(func(o *trim.Options) { o.SkipFullWindow = true }), media.TrimWindow{Start: 0, End: 3})
	skip.assertPassthrough(t, res, trim.ReasonFullWindow)
	if skip.surfaces.Last() != nil {
		t.Fatal("surface built for a skipped full window")
	}
}

func TestSurfaceSizing(t *testing.T) {
	native := newRig(2)
	native.trim(t, native.reencoder(nil), media.TrimWindow{Start: 0, End: 1})
	if w, h := native.surfaces.Last().Size(); w != 1280 || h != 720 {
		t.Fatalf("expected native size, got %dx%d", w, h)
	}
	if fps := native.surfaces.Last().FrameRate(); fps != trim.DefaultFrameRate {
		t.Fatalf("unexpected capture frame rate %d", fps)
	}
	rec := native.recs.Last()
	if rec.Options.Timeslice != trim.DefaultTimeslice || rec.Options.MIMEType != media.RecorderMIME {
		t.Fatalf("unexpected recorder options %+v", rec.Options)
	}
	if rec.Stream.Len() != 2 {
		t.Fatalf("expected surface video plus tap audio, got %d tracks", rec.Stream.Len())
	}
	rec.Wait()

	fallback := newRig(2)
	fallback.players.Width, fallback.players.Height = 0, 0
	fallback.graphs.Silent = true
	fallback.trim(t, fallback.reencoder(nil), media.TrimWindow{Start: 0, End: 1})
	if w, h := fallback.surfaces.Last().Size(); w != trim.DefaultWidth || h != trim.DefaultHeight {
		t.Fatalf("expected fallback size, got %dx%d", w, h)
	}
	if got := fallback.recs.Last().Stream.Len(); got != 1 {
		t.Fatalf("expected video-only capture for silent source, got %d tracks", got)
	}
	fallback.recs.Last().Wait()
}

func TestSkipAndEmptySourceReturnOriginal(t *testing.T) {
	r := newRig(5)
	re := r.reencoder(nil)
	res := re.Skip(r.source)
	if res.Applied || !res.Container.Same(r.source) || res.Reason != trim.ReasonSkipped {
		t.Fatalf("unexpected skip result %+v", res)
	}

	empty := media.Concat(media.ContentTypeWebM, nil)
	res = re.Trim(context.Background(), empty, media.TrimWindow{Start: 0, End: 1})
	if res.Applied || !res.Container.Same(empty) || res.Reason != trim.ReasonEmptySource {
		t.Fatalf("unexpected empty-source result %+v", res)
	}
	if r.players.Last() != nil {
		t.Fatal("player loaded for an empty source")
	}
}

func TestDurationProbe(t *testing.T) {
	r := newRig(math.NaN(), 12.5)
	d, err := r.reencoder(nil).Duration(context.Background(), r.source)
	if err != nil {
		t.Fatalf("Duration returned error: %v", err)
	}
	if d != 12.5 {
		t.Fatalf("unexpected duration %v", d)
	}
	if !r.players.Last().Closed() {
		t.Fatal("probe player not closed")
	}

	bad := newRig(math.NaN())
	if _, err := bad.reencoder(nil).Duration(context.Background(), bad.source); err == nil {
		t.Fatal("expected error for unknown duration")
	}
}
