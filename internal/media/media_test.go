package media_test

import (
	"bytes"
	"io"
	"math"
	"sync"
	"testing"

	"screenclip/internal/media"
)

type countingTrack struct {
	id    string
	kind  media.Kind
	mu    sync.Mutex
	stops int
}

func (t *countingTrack) ID() string       { return t.id }
func (t *countingTrack) Kind() media.Kind { return t.kind }
func (t *countingTrack) Label() string    { return t.id }
func (t *countingTrack) OnEnded(func())   {}

func (t *countingTrack) Stop() {
	t.mu.Lock()
	t.stops++
	t.mu.Unlock()
}

func (t *countingTrack) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

func TestStreamStopAllStopsEachTrackOnce(t *testing.T) {
	video := &countingTrack{id: "v", kind: media.KindVideo}
	audio := &countingTrack{id: "a", kind: media.KindAudio}
	stream := media.NewStream(video, audio, nil)

	if stream.Len() != 2 {
		t.Fatalf("expected 2 tracks, got %d", stream.Len())
	}
	if len(stream.VideoTracks()) != 1 || len(stream.AudioTracks()) != 1 {
		t.Fatalf("unexpected track split: %d video, %d audio", len(stream.VideoTracks()), len(stream.AudioTracks()))
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stream.StopAll()
		}()
	}
	wg.Wait()

	if video.stopCount() != 1 || audio.stopCount() != 1 {
		t.Fatalf("expected one stop per track, got video=%d audio=%d", video.stopCount(), audio.stopCount())
	}
}

func TestStreamTransferMovesOwnership(t *testing.T) {
	video := &countingTrack{id: "v", kind: media.KindVideo}
	original := media.NewStream(video)
	moved := original.Transfer()

	if original.Len() != 0 {
		t.Fatalf("expected original to be empty after transfer, got %d", original.Len())
	}
	original.StopAll()
	if video.stopCount() != 0 {
		t.Fatal("expected emptied stream to stop nothing")
	}
	moved.StopAll()
	moved.StopAll()
	if video.stopCount() != 1 {
		t.Fatalf("expected single stop through new owner, got %d", video.stopCount())
	}
}

func TestConcatPreservesOrder(t *testing.T) {
	c := media.Concat(media.ContentTypeWebM, []media.Chunk{
		{Seq: 0, Data: []byte("ab")},
		{Seq: 1, Data: []byte("cd")},
		{Seq: 2, Data: []byte("e")},
	})
	if got := string(c.Bytes()); got != "abcde" {
		t.Fatalf("unexpected payload %q", got)
	}
	if c.ContentType() != media.ContentTypeWebM || c.Size() != 5 {
		t.Fatalf("unexpected container %s/%d", c.ContentType(), c.Size())
	}
	data, err := io.ReadAll(c.Reader())
	if err != nil || !bytes.Equal(data, []byte("abcde")) {
		t.Fatalf("reader mismatch: %q %v", data, err)
	}
}

func TestConcatZeroChunksIsEmptyContainer(t *testing.T) {
	c := media.Concat("", nil)
	if c == nil || !c.Empty() || c.Size() != 0 {
		t.Fatalf("expected empty container, got %+v", c)
	}
	if c.ContentType() != media.ContentTypeWebM {
		t.Fatalf("expected default content type, got %q", c.ContentType())
	}
}

func TestContainerIsImmutable(t *testing.T) {
	src := []byte("payload")
	c := media.NewContainer(media.ContentTypeWebM, src)
	src[0] = 'X'
	out := c.Bytes()
	out[1] = 'Y'
	if got := string(c.Bytes()); got != "payload" {
		t.Fatalf("container mutated: %q", got)
	}
	other := media.NewContainer(media.ContentTypeWebM, src)
	if c.Same(other) || !c.Same(c) {
		t.Fatal("unexpected identity comparison")
	}
}

func TestTrimWindowClamp(t *testing.T) {
	cases := []struct {
		name     string
		in       media.TrimWindow
		duration float64
		want     media.TrimWindow
	}{
		{"unset end", media.TrimWindow{Start: 0, End: 0}, 10, media.TrimWindow{Start: 0, End: 10}},
		{"end past duration", media.TrimWindow{Start: 2, End: 12}, 10, media.TrimWindow{Start: 2, End: 10}},
		{"negative start", media.TrimWindow{Start: -1, End: 5}, 10, media.TrimWindow{Start: 0, End: 5}},
		{"start past end", media.TrimWindow{Start: 6, End: 5}, 10, media.TrimWindow{Start: 4.9, End: 5}},
		{"nan end", media.TrimWindow{Start: 1, End: math.NaN()}, 8, media.TrimWindow{Start: 1, End: 8}},
		{"tiny source", media.TrimWindow{Start: 1, End: 1}, 0.05, media.TrimWindow{Start: 0, End: 0.05}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.in.Clamp(tc.duration)
			if math.Abs(got.Start-tc.want.Start) > 1e-9 || math.Abs(got.End-tc.want.End) > 1e-9 {
				t.Fatalf("Clamp(%v, %v) = %+v, want %+v", tc.in, tc.duration, got, tc.want)
			}
			if !(got.Start < got.End) {
				t.Fatalf("expected start < end, got %+v", got)
			}
		})
	}

	invalid := media.TrimWindow{Start: 1, End: 2}
	if got := invalid.Clamp(math.Inf(1)); got != invalid {
		t.Fatalf("expected unknown duration to leave window untouched, got %+v", got)
	}
}

func TestValidDuration(t *testing.T) {
	for _, d := range []float64{math.NaN(), math.Inf(1), 0, -3} {
		if media.ValidDuration(d) {
			t.Fatalf("expected %v to be invalid", d)
		}
	}
	if !media.ValidDuration(0.5) {
		t.Fatal("expected 0.5 to be valid")
	}
}

func TestFormatting(t *testing.T) {
	if got := media.FormatClock(125); got != "02:05" {
		t.Fatalf("FormatClock = %q", got)
	}
	if got := media.FormatPrecise(65.456); got != "01:05.46" {
		t.Fatalf("FormatPrecise = %q", got)
	}
	if got := media.FormatPrecise(math.NaN()); got != "00:00.00" {
		t.Fatalf("FormatPrecise(NaN) = %q", got)
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]float64{
		"5":       5,
		"1.25":    1.25,
		"01:05.5": 65.5,
		"1:00:02": 3602,
		" 00:10 ": 10,
	}
	for in, want := range cases {
		got, err := media.ParseTimestamp(in)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q) error: %v", in, err)
		}
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("ParseTimestamp(%q) = %v, want %v", in, got, want)
		}
	}
	for _, bad := range []string{"", "a:10", "1.5:10", "1:2:3:4", "-1"} {
		if _, err := media.ParseTimestamp(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
