package main

import (
	"fmt"
	"time"

	"screenclip/internal/library"
	"screenclip/internal/media"
)

// takeView is the JSON shape of a take.
type takeView struct {
	ID             string   `json:"id"`
	Title          string   `json:"title,omitempty"`
	Stage          string   `json:"stage"`
	CreatedAt      string   `json:"createdAt"`
	ElapsedSeconds int      `json:"elapsedSeconds"`
	AutoStopped    bool     `json:"autoStopped"`
	RawPath        string   `json:"rawPath,omitempty"`
	RawBytes       int64    `json:"rawBytes"`
	TrimmedPath    string   `json:"trimmedPath,omitempty"`
	TrimmedBytes   int64    `json:"trimmedBytes,omitempty"`
	TrimApplied    bool     `json:"trimApplied"`
	TrimReason     string   `json:"trimReason,omitempty"`
	TrimStart      *float64 `json:"trimStart,omitempty"`
	TrimEnd        *float64 `json:"trimEnd,omitempty"`
	ShareID        string   `json:"shareId,omitempty"`
	ShareURL       string   `json:"shareUrl,omitempty"`
	UploadError    string   `json:"uploadError,omitempty"`
	UploadAttempts int      `json:"uploadAttempts"`
}

func newTakeView(take *library.Take, shareLink string) takeView {
	return takeView{
		ID:             take.ID,
		Title:          take.Title,
		Stage:          take.Stage,
		CreatedAt:      take.CreatedAt.Format(time.RFC3339),
		ElapsedSeconds: take.ElapsedSeconds,
		AutoStopped:    take.AutoStopped,
		RawPath:        take.RawPath,
		RawBytes:       take.RawBytes,
		TrimmedPath:    take.TrimmedPath,
		TrimmedBytes:   take.TrimmedBytes,
		TrimApplied:    take.TrimApplied,
		TrimReason:     take.TrimReason,
		TrimStart:      take.TrimStart,
		TrimEnd:        take.TrimEnd,
		ShareID:        take.ShareID,
		ShareURL:       shareLink,
		UploadError:    take.UploadError,
		UploadAttempts: take.UploadAttempts,
	}
}

func describeTrim(take *library.Take) string {
	switch {
	case take.TrimApplied && take.TrimStart != nil && take.TrimEnd != nil:
		return media.TrimWindow{Start: *take.TrimStart, End: *take.TrimEnd}.String()
	case take.TrimReason != "":
		return titleCase(take.TrimReason)
	default:
		return "-"
	}
}

func describeTakeSize(take *library.Take) string {
	if take.TrimmedBytes > 0 {
		return fmt.Sprintf("%s (raw %s)", formatBytes(take.TrimmedBytes), formatBytes(take.RawBytes))
	}
	return formatBytes(take.RawBytes)
}
