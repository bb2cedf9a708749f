package mediatest

import (
	"context"
	"sync"

	"screenclip/internal/media"
)

// Devices grants scripted streams. A nil Gate returns immediately; otherwise
// GetDisplayMedia waits for Gate to close, like a pending permission prompt.
// GetUserMedia always answers immediately.
type Devices struct {
	Display    *media.Stream
	DisplayErr error
	Mic        *media.Stream
	MicErr     error
	Gate       chan struct{}

	mu          sync.Mutex
	displayReqs []media.DisplayRequest
	micReqs     []media.UserMediaRequest
}

func (d *Devices) GetDisplayMedia(ctx context.Context, req media.DisplayRequest) (*media.Stream, error) {
	d.mu.Lock()
	d.displayReqs = append(d.displayReqs, req)
	d.mu.Unlock()
	if d.Gate != nil {
		select {
		case <-d.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.DisplayErr != nil {
		return nil, d.DisplayErr
	}
	return d.Display, nil
}

func (d *Devices) GetUserMedia(_ context.Context, req media.UserMediaRequest) (*media.Stream, error) {
	d.mu.Lock()
	d.micReqs = append(d.micReqs, req)
	d.mu.Unlock()
	if d.MicErr != nil {
		return nil, d.MicErr
	}
	return d.Mic, nil
}

// DisplayRequests returns the display requests received so far.
func (d *Devices) DisplayRequests() []media.DisplayRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]media.DisplayRequest(nil), d.displayReqs...)
}

// MicRequests returns the microphone requests received so far.
func (d *Devices) MicRequests() []media.UserMediaRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]media.UserMediaRequest(nil), d.micReqs...)
}
