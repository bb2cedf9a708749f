package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"screenclip/internal/logging"
	"screenclip/internal/media"
	"screenclip/internal/services"
)

const (
	// DefaultTitle is what the service stores when the title field is blank.
	DefaultTitle = "Untitled Recording"
	// FallbackReason is reported when the service gives no error text.
	FallbackReason = "Upload failed"

	uploadFileName  = "recording.webm"
	defaultTimeout  = 2 * time.Minute
	maxErrorBody    = 4096
	userAgent       = "screenclip/1.0"
	requestIDHeader = "X-Request-ID"
)

// ShareResult is what the service returns for a stored recording.
type ShareResult struct {
	ID       string `json:"id"`
	ShareID  string `json:"shareId"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	ShareURL string `json:"shareUrl"`
}

// Video is the public record behind a share id.
type Video struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ShareID   string    `json:"shareId"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
	ViewCount int       `json:"viewCount"`
}

// WatchEvent reports how much of a video one viewer session watched.
type WatchEvent struct {
	VideoID         string  `json:"videoId"`
	WatchPercentage float64 `json:"watchPercentage"`
	Completed       bool    `json:"completed"`
	SessionID       string  `json:"sessionId,omitempty"`
}

// Failure is an upload the service rejected or that never reached it.
type Failure struct {
	Status int
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Status > 0 {
		return fmt.Sprintf("upload failed (%d): %s", f.Status, f.Reason)
	}
	return "upload failed: " + f.Reason
}

func (f *Failure) Unwrap() error { return f.Err }

// Is lets errors.Is(err, services.ErrUpload) match any Failure.
func (f *Failure) Is(target error) bool { return target == services.ErrUpload }

// Reason extracts the user-facing failure text from err.
func Reason(err error) string {
	var failure *Failure
	if errors.As(err, &failure) && strings.TrimSpace(failure.Reason) != "" {
		return failure.Reason
	}
	return FallbackReason
}

// SharePath is the public watch path for a share id.
func SharePath(shareID string) string {
	return "/watch/" + url.PathEscape(shareID)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the share service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New validates the base URL and builds a client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, services.Wrap(services.ErrConfiguration, "uploading", "configure client", "upload.base_url is required", nil)
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, services.Wrap(services.ErrConfiguration, "uploading", "configure client", fmt.Sprintf("invalid base url %q", base), err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		baseURL: base,
		http:    httpClient,
		logger:  logging.NewComponentLogger(logger, "upload"),
	}, nil
}

// BaseURL reports the normalized service root.
func (c *Client) BaseURL() string { return c.baseURL }

// ShareLink turns a result's share path into an absolute URL.
func (c *Client) ShareLink(result ShareResult) string {
	link := strings.TrimSpace(result.ShareURL)
	if link == "" {
		if result.ShareID == "" {
			return ""
		}
		link = SharePath(result.ShareID)
	}
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}
	return c.baseURL + link
}

// Upload posts the container under the given title.
func (c *Client) Upload(ctx context.Context, container *media.Container, title string) (ShareResult, error) {
	if container.Empty() {
		return ShareResult{}, &Failure{Reason: "No video file provided"}
	}
	body, contentType, err := buildUploadForm(container, title)
	if err != nil {
		return ShareResult{}, &Failure{Reason: FallbackReason, Err: err}
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/upload", bytes.NewReader(body))
	if err != nil {
		return ShareResult{}, &Failure{Reason: FallbackReason, Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ShareResult{}, ctxErr
		}
		return ShareResult{}, &Failure{Reason: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		failure := &Failure{Status: resp.StatusCode, Reason: readErrorReason(resp.Body)}
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "upload rejected", "upload_rejected",
			logging.Int("status", resp.StatusCode),
			logging.String("reason", failure.Reason),
			logging.String(logging.FieldErrorHint, "the recording is kept; retry the upload"),
			logging.String(logging.FieldImpact, "no share link yet"),
		)
		return ShareResult{}, failure
	}

	var payload struct {
		Video *ShareResult `json:"video"`
		Error string       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ShareResult{}, &Failure{Status: resp.StatusCode, Reason: FallbackReason, Err: fmt.Errorf("decode upload response: %w", err)}
	}
	if payload.Video == nil || payload.Video.ShareID == "" {
		reason := strings.TrimSpace(payload.Error)
		if reason == "" {
			reason = FallbackReason
		}
		return ShareResult{}, &Failure{Status: resp.StatusCode, Reason: reason}
	}
	result := *payload.Video
	if result.ShareURL == "" {
		result.ShareURL = SharePath(result.ShareID)
	}

	logging.WithContext(ctx, c.logger).Info("upload complete",
		logging.String(logging.FieldEventType, "upload_complete"),
		logging.String("share_id", result.ShareID),
		logging.Int("bytes", container.Size()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

// Resolve fetches the public record for a share id.
func (c *Client) Resolve(ctx context.Context, shareID string) (Video, error) {
	shareID = strings.TrimSpace(shareID)
	if shareID == "" {
		return Video{}, services.Wrap(services.ErrValidation, "sharing", "resolve", "share id is required", nil)
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/videos/"+url.PathEscape(shareID), nil)
	if err != nil {
		return Video{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Video{}, services.Wrap(services.ErrTransient, "sharing", "resolve", "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Video{}, services.Wrap(services.ErrNotFound, "sharing", "resolve", fmt.Sprintf("share %q not found", shareID), nil)
	case resp.StatusCode >= 300:
		reason := readErrorReason(resp.Body)
		return Video{}, services.Wrap(services.ErrTransient, "sharing", "resolve", fmt.Sprintf("service returned %d: %s", resp.StatusCode, reason), nil)
	}

	var video Video
	if err := json.NewDecoder(resp.Body).Decode(&video); err != nil {
		return Video{}, services.Wrap(services.ErrExternalTool, "sharing", "resolve", "decode response", err)
	}
	return video, nil
}

// RecordView bumps the view counter and returns the new total.
func (c *Client) RecordView(ctx context.Context, videoID string) (int, error) {
	var out struct {
		ViewCount int `json:"viewCount"`
	}
	if err := c.postJSON(ctx, "/api/analytics/view", map[string]string{"videoId": videoID}, &out); err != nil {
		return 0, err
	}
	return out.ViewCount, nil
}

// RecordWatch stores one watch event. A blank session id gets a fresh one.
func (c *Client) RecordWatch(ctx context.Context, event WatchEvent) error {
	if event.SessionID == "" {
		event.SessionID = uuid.NewString()
	}
	return c.postJSON(ctx, "/api/analytics/watch", event, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "sharing", path, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "sharing", path, readErrorReason(resp.Body), nil)
	case resp.StatusCode == http.StatusBadRequest:
		return services.Wrap(services.ErrValidation, "sharing", path, readErrorReason(resp.Body), nil)
	case resp.StatusCode >= 300:
		return services.Wrap(services.ErrTransient, "sharing", path, fmt.Sprintf("service returned %d: %s", resp.StatusCode, readErrorReason(resp.Body)), nil)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrExternalTool, "sharing", path, "decode response", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("User-Agent", userAgent)
	if id, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set(requestIDHeader, id)
	}
	return req, nil
}

func buildUploadForm(container *media.Container, title string) ([]byte, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename=%q`, uploadFileName))
	header.Set("Content-Type", container.ContentType())
	part, err := form.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create video part: %w", err)
	}
	if _, err := io.Copy(part, container.Reader()); err != nil {
		return nil, "", fmt.Errorf("write video part: %w", err)
	}

	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	if err := form.WriteField("title", title); err != nil {
		return nil, "", fmt.Errorf("write title field: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return buf.Bytes(), form.FormDataContentType(), nil
}

func readErrorReason(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && strings.TrimSpace(payload.Error) != "" {
		return strings.TrimSpace(payload.Error)
	}
	return FallbackReason
}
