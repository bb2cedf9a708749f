package library

import "time"

// Take is one recording and everything that happened to it afterwards.
type Take struct {
	ID             string
	Title          string
	Stage          string
	RawPath        string
	RawBytes       int64
	ElapsedSeconds int
	AutoStopped    bool
	TrimmedPath    string
	TrimmedBytes   int64
	TrimApplied    bool
	TrimReason     string
	TrimStart      *float64
	TrimEnd        *float64
	VideoID        string
	ShareID        string
	ShareURL       string
	MediaURL       string
	UploadError    string
	UploadAttempts int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Shared reports whether the take reached the share stage.
func (t *Take) Shared() bool { return t != nil && t.ShareID != "" }

// UploadSource is the artifact an upload retry should send: the trimmed
// export when present, the raw one otherwise.
func (t *Take) UploadSource() string {
	if t == nil {
		return ""
	}
	if t.TrimmedPath != "" {
		return t.TrimmedPath
	}
	return t.RawPath
}

// TrimOutcome records what the trim stage produced.
type TrimOutcome struct {
	Path    string
	Bytes   int64
	Applied bool
	Reason  string
	Start   float64
	End     float64
}

// ShareOutcome records a successful upload.
type ShareOutcome struct {
	VideoID  string
	ShareID  string
	ShareURL string
	MediaURL string
	Title    string
}
