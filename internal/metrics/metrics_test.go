package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"screenclip/internal/metrics"
)

func gatherValue(t *testing.T, m *metrics.Pipeline, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := 0
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] == pair.GetValue() {
					matched++
				}
			}
			if matched != len(labels) {
				continue
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				return float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func TestPipelineCounters(t *testing.T) {
	m := metrics.New()
	m.ObserveCapture("ok")
	m.ObserveCapture("denied")
	m.ObserveCapture("weird")
	m.ObserveRecording(12, 4096)
	m.ObserveTrim(true, "", 2048)
	m.ObserveTrim(false, "duration unavailable", 0)
	m.ObserveUpload(false)
	m.ObserveUpload(true)
	m.ObserveTransition("record", "trim")

	checks := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"screenclip_captures_total", map[string]string{"result": "ok"}, 1},
		{"screenclip_captures_total", map[string]string{"result": "denied"}, 1},
		{"screenclip_captures_total", map[string]string{"result": "unknown"}, 1},
		{"screenclip_recorded_seconds_total", nil, 12},
		{"screenclip_artifact_bytes", map[string]string{"kind": "raw"}, 1},
		{"screenclip_artifact_bytes", map[string]string{"kind": "trimmed"}, 1},
		{"screenclip_trims_total", map[string]string{"result": "applied", "reason": "none"}, 1},
		{"screenclip_trims_total", map[string]string{"result": "passthrough", "reason": "duration_unavailable"}, 1},
		{"screenclip_uploads_total", map[string]string{"result": "failed"}, 1},
		{"screenclip_uploads_total", map[string]string{"result": "ok"}, 1},
		{"screenclip_stage_transitions_total", map[string]string{"from": "record", "to": "trim"}, 1},
		{"screenclip_stage", map[string]string{"stage": "trim"}, 1},
		{"screenclip_stage", map[string]string{"stage": "record"}, 0},
	}
	for _, tc := range checks {
		if got := gatherValue(t, m, tc.name, tc.labels); got != tc.want {
			t.Fatalf("%s%v: expected %v, got %v", tc.name, tc.labels, tc.want, got)
		}
	}
}

func TestReasonLabel(t *testing.T) {
	cases := map[string]string{
		"":                           "unknown",
		"full window":                "full_window",
		"re-encode produced no data": "re_encode_produced_no_data",
		"  Canceled ":                "canceled",
	}
	for in, want := range cases {
		if got := metrics.ReasonLabel(in); got != want {
			t.Fatalf("ReasonLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteTextfile(t *testing.T) {
	m := metrics.New()
	m.ObserveUpload(true)
	path := filepath.Join(t.TempDir(), "textfile", "screenclip.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `screenclip_uploads_total{result="ok"} 1`) {
		t.Fatalf("textfile missing upload counter:\n%s", data)
	}
}

func TestNilPipelineIsNoop(t *testing.T) {
	var m *metrics.Pipeline
	m.ObserveCapture("ok")
	m.ObserveTrim(false, "x", 0)
	m.ObserveTransition("a", "b")
	if err := m.WriteTextfile("/nonexistent/x.prom"); err != nil {
		t.Fatalf("nil pipeline should not write: %v", err)
	}
	if err := metrics.New().WriteTextfile(""); err != nil {
		t.Fatalf("empty path should disable export: %v", err)
	}
}
