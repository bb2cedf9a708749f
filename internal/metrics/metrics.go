package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "screenclip"

// Pipeline holds the counters updated as takes move through the stages.
// A nil *Pipeline is valid and records nothing.
type Pipeline struct {
	registry        *prometheus.Registry
	captures        *prometheus.CounterVec
	recordedSeconds prometheus.Counter
	artifactBytes   *prometheus.HistogramVec
	trims           *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	stage           *prometheus.GaugeVec
}

// New creates and registers the pipeline metrics.
func New() *Pipeline {
	registry := prometheus.NewRegistry()

	captures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "captures_total",
		Help:      "Capture attempts by result (ok, denied, error)",
	}, []string{"result"})
	recordedSeconds := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "recorded_seconds_total",
		Help:      "Seconds of screen recorded, excluding paused time",
	})
	artifactBytes := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "artifact_bytes",
		Help:      "Size of finalized containers by kind (raw, trimmed)",
		Buckets:   prometheus.ExponentialBuckets(64*1024, 4, 8),
	}, []string{"kind"})
	trims := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trims_total",
		Help:      "Trim outcomes by result (applied, passthrough) and reason",
	}, []string{"result", "reason"})
	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "Upload attempts by result (ok, failed)",
	}, []string{"result"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_transitions_total",
		Help:      "Pipeline stage transitions",
	}, []string{"from", "to"})
	stage := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stage",
		Help:      "1 for the stage the pipeline is currently in",
	}, []string{"stage"})

	registry.MustRegister(captures, recordedSeconds, artifactBytes, trims, uploads, transitions, stage)

	return &Pipeline{
		registry:        registry,
		captures:        captures,
		recordedSeconds: recordedSeconds,
		artifactBytes:   artifactBytes,
		trims:           trims,
		uploads:         uploads,
		transitions:     transitions,
		stage:           stage,
	}
}

// Registry exposes the underlying registry for gathering.
func (p *Pipeline) Registry() *prometheus.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

// ObserveCapture counts a capture attempt. Result is one of ok, denied, error.
func (p *Pipeline) ObserveCapture(result string) {
	if p == nil {
		return
	}
	p.captures.WithLabelValues(normalizeResult(result, "ok", "denied", "error")).Inc()
}

// ObserveRecording records the elapsed seconds and size of a finalized take.
func (p *Pipeline) ObserveRecording(seconds int, bytes int) {
	if p == nil {
		return
	}
	if seconds > 0 {
		p.recordedSeconds.Add(float64(seconds))
	}
	p.artifactBytes.WithLabelValues("raw").Observe(float64(bytes))
}

// ObserveTrim counts a trim outcome. Passthrough reasons become snake_case labels.
func (p *Pipeline) ObserveTrim(applied bool, reason string, bytes int) {
	if p == nil {
		return
	}
	if applied {
		p.trims.WithLabelValues("applied", "none").Inc()
		p.artifactBytes.WithLabelValues("trimmed").Observe(float64(bytes))
		return
	}
	p.trims.WithLabelValues("passthrough", ReasonLabel(reason)).Inc()
}

// ObserveUpload counts an upload attempt.
func (p *Pipeline) ObserveUpload(ok bool) {
	if p == nil {
		return
	}
	result := "failed"
	if ok {
		result = "ok"
	}
	p.uploads.WithLabelValues(result).Inc()
}

// ObserveTransition counts a stage change and moves the current-stage gauge.
func (p *Pipeline) ObserveTransition(from, to string) {
	if p == nil {
		return
	}
	p.transitions.WithLabelValues(from, to).Inc()
	p.stage.WithLabelValues(from).Set(0)
	p.stage.WithLabelValues(to).Set(1)
}

// WriteTextfile atomically writes the registry in text exposition format.
// An empty path disables the export.
func (p *Pipeline) WriteTextfile(path string) error {
	if p == nil || strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// ReasonLabel turns a free-form reason into a bounded label value.
func ReasonLabel(reason string) string {
	reason = strings.ToLower(strings.TrimSpace(reason))
	if reason == "" {
		return "unknown"
	}
	var b strings.Builder
	lastUnderscore := false
	for _, r := range reason {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore && b.Len() > 0:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func normalizeResult(result string, allowed ...string) string {
	result = strings.ToLower(strings.TrimSpace(result))
	for _, candidate := range allowed {
		if result == candidate {
			return result
		}
	}
	return "unknown"
}
