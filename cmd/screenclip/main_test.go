package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"screenclip/internal/config"
	"screenclip/internal/services"
	"screenclip/internal/testsupport"
)

// fakeFFmpeg writes a small container to the last argument for recorder
// runs and answers probes and capability listings.
const fakeFFmpeg = `#!/bin/sh
for out; do :; done
case "$*" in
  *-cluster_time_limit*)
    printf 'webm-head' > "$out"
    read cmd
    printf 'webm-tail' >> "$out"
    ;;
  *-encoders*)
    echo " V....D libvpx-vp9           libvpx VP9"
    echo " A....D libopus              libopus Opus"
    ;;
  *-devices*)
    echo " D  x11grab         X11 screen capture"
    echo " DE pulse           Pulse audio output"
    ;;
esac
exit 0
`

type cliEnv struct {
	t          *testing.T
	cfg        *config.Config
	configPath string
}

func newCLIEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliEnv {
	t.Helper()
	t.Setenv("SCREENCLIP_UPLOAD_URL", "")
	cfg := testsupport.NewConfig(t, opts...)
	bin := testsupport.StubBinaries(t, filepath.Join(testsupport.BaseDir(cfg), "bin"), fakeFFmpeg, "ffmpeg", "ffprobe")
	cfg.FFmpeg.FFmpegBinary = filepath.Join(bin, "ffmpeg")
	cfg.FFmpeg.FFprobeBinary = filepath.Join(bin, "ffprobe")
	env := &cliEnv{t: t, cfg: cfg, configPath: filepath.Join(testsupport.BaseDir(cfg), "config.toml")}
	env.writeConfig()
	return env
}

func (e *cliEnv) writeConfig() {
	e.t.Helper()
	data, err := toml.Marshal(e.cfg)
	if err != nil {
		e.t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(e.configPath, data, 0o644); err != nil {
		e.t.Fatalf("write config: %v", err)
	}
}

func (e *cliEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newShareServer(t *testing.T) (*httptest.Server, *[]byte) {
	t.Helper()
	var uploaded []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/upload", func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("video")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, `{"error":"bad form"}`, http.StatusBadRequest)
			return
		}
		defer file.Close()
		uploaded, _ = io.ReadAll(file)
		title := r.FormValue("title")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"video":{"id":"v1","shareId":"ab12cd34","title":"` + title + `","url":"https://cdn.example/v1.webm","shareUrl":"/watch/ab12cd34"}}`))
	})
	mux.HandleFunc("GET /api/videos/ab12cd34", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"v1","shareId":"ab12cd34","title":"Demo","url":"https://cdn.example/v1.webm","createdAt":"2026-10-01T12:00:00Z","viewCount":2}`))
	})
	mux.HandleFunc("POST /api/analytics/view", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"viewCount":3}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &uploaded
}

func TestRecordThenUploadAndShow(t *testing.T) {
	server, uploaded := newShareServer(t)
	env := newCLIEnv(t, testsupport.WithUploadURL(server.URL), testsupport.WithMetricsTextfile())

	out, err := env.run("\n", "record", "--no-trim", "--no-upload")
	if err != nil {
		t.Fatalf("record: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Saved take") {
		t.Fatalf("expected saved take notice, got:\n%s", out)
	}

	out, err = env.run("", "list", "--json")
	if err != nil {
		t.Fatalf("list: %v\n%s", err, out)
	}
	var takes []takeView
	if err := json.Unmarshal([]byte(out), &takes); err != nil {
		t.Fatalf("decode list: %v\n%s", err, out)
	}
	if len(takes) != 1 {
		t.Fatalf("expected one take, got %d", len(takes))
	}
	take := takes[0]
	if take.Stage != "upload" || take.TrimReason != "skipped" || take.RawBytes == 0 {
		t.Fatalf("unexpected take %+v", take)
	}
	raw, err := os.ReadFile(take.RawPath)
	if err != nil {
		t.Fatalf("read raw export: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("webm-head")) {
		t.Fatalf("unexpected raw export %q", raw)
	}

	out, err = env.run("", "logs", "--take", take.ID, "-n", "100")
	if err != nil || !strings.Contains(out, "capture finalized") {
		t.Fatalf("expected the take's log lines, got %v\n%s", err, out)
	}

	out, err = env.run("", "upload", take.ID[:8], "--title", "Demo")
	if err != nil {
		t.Fatalf("upload: %v\n%s", err, out)
	}
	if !strings.Contains(out, server.URL+"/watch/ab12cd34") {
		t.Fatalf("expected share link, got:\n%s", out)
	}
	if !bytes.Equal(*uploaded, raw) {
		t.Fatalf("uploaded %q, want the raw export", *uploaded)
	}

	out, err = env.run("", "show", "ab12cd34", "--count-view", "--json")
	if err != nil {
		t.Fatalf("show: %v\n%s", err, out)
	}
	var shown showOutput
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("decode show: %v\n%s", err, out)
	}
	if shown.Video == nil || shown.Video.ViewCount != 3 {
		t.Fatalf("expected counted view, got %+v", shown.Video)
	}
	if shown.Take == nil || shown.Take.Stage != "share" || shown.Take.ID != take.ID {
		t.Fatalf("expected shared local take, got %+v", shown.Take)
	}

	out, err = env.run("", "upload", take.ID)
	if err != nil || !strings.Contains(out, "Already shared") {
		t.Fatalf("expected already shared notice, got %v\n%s", err, out)
	}

	if _, err := os.Stat(env.cfg.Metrics.TextfilePath); err != nil {
		t.Fatalf("expected metrics textfile: %v", err)
	}
}

func TestRecordDiscardMarksTake(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("\n", "record", "--discard")
	if err != nil {
		t.Fatalf("record: %v\n%s", err, out)
	}
	if !strings.Contains(out, "discarded") {
		t.Fatalf("expected discard notice, got:\n%s", out)
	}

	out, err = env.run("", "list", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var takes []takeView
	if err := json.Unmarshal([]byte(out), &takes); err != nil || len(takes) != 1 || takes[0].Stage != "discarded" {
		t.Fatalf("expected one discarded take, got %v %+v", err, takes)
	}
	if _, err := env.run("", "trim", takes[0].ID, "--skip"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected discarded take to be rejected, got %v", err)
	}

	out, err = env.run("", "prune")
	if err != nil {
		t.Fatalf("prune: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Removed 1 take(s)") {
		t.Fatalf("unexpected prune output:\n%s", out)
	}
	if _, err := os.Stat(takes[0].RawPath); !os.IsNotExist(err) {
		t.Fatalf("raw export should be removed, got %v", err)
	}
	out, err = env.run("", "list", "--json")
	if err != nil || strings.TrimSpace(out) != "[]" {
		t.Fatalf("expected an empty library, got %v %q", err, out)
	}
}

func TestRecordRequiresUploadService(t *testing.T) {
	env := newCLIEnv(t)
	env.cfg.Upload.BaseURL = ""
	env.writeConfig()

	_, err := env.run("\n", "record")
	if err == nil || !strings.Contains(err.Error(), "upload.base_url is required") {
		t.Fatalf("expected missing upload url error, got %v", err)
	}
}

func TestListWithoutTakes(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run("", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "No takes recorded yet") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestDoctorReportsMissingFFmpeg(t *testing.T) {
	env := newCLIEnv(t)
	env.cfg.FFmpeg.FFmpegBinary = filepath.Join(testsupport.BaseDir(env.cfg), "missing", "ffmpeg")
	env.writeConfig()

	out, err := env.run("", "doctor", "--skip-devices")
	if err == nil || !strings.Contains(err.Error(), "problem") {
		t.Fatalf("expected doctor failure, got %v\n%s", err, out)
	}
	if !strings.Contains(out, "[ERROR]") {
		t.Fatalf("expected an error line, got:\n%s", out)
	}
}

func TestConfigValidate(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run("", "config", "validate")
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, env.configPath) {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestParseWindowFlags(t *testing.T) {
	window, explicit, err := parseWindowFlags("1:05", "")
	if err != nil || !explicit || window.Start != 65 || window.End != 0 {
		t.Fatalf("unexpected window %+v %v %v", window, explicit, err)
	}
	if _, explicit, err := parseWindowFlags("", ""); err != nil || explicit {
		t.Fatalf("empty flags should select nothing, got %v %v", explicit, err)
	}
	if _, _, err := parseWindowFlags("10", "10.05"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for a short window, got %v", err)
	}
	if _, _, err := parseWindowFlags("abc", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for a bad timestamp, got %v", err)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		512:     "512 B",
		2048:    "2.0 KiB",
		5 << 20: "5.0 MiB",
	}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Fatalf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(services.Wrap(services.ErrValidation, "", "op", "bad", nil)); got != 2 {
		t.Fatalf("validation error should exit 2, got %d", got)
	}
	if got := exitCode(errors.New("boom")); got != 1 {
		t.Fatalf("runtime error should exit 1, got %d", got)
	}
}
