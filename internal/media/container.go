package media

import (
	"bytes"
	"io"
	"sync/atomic"
)

const (
	// ContentTypeWebM is the fixed container type exchanged with the upload service.
	ContentTypeWebM = "video/webm"
	// RecorderMIME is the recorder format: WebM with VP9 video and Opus audio.
	RecorderMIME = "video/webm;codecs=vp9"
)

// Chunk is one recorded fragment. Seq increases in arrival order.
type Chunk struct {
	Seq  int
	Data []byte
}

// Size reports the fragment length in bytes.
func (c Chunk) Size() int { return len(c.Data) }

var containerIDs atomic.Uint64

// Container is an immutable, finalized media artifact.
type Container struct {
	id          uint64
	contentType string
	data        []byte
}

// NewContainer copies data into a new Container.
func NewContainer(contentType string, data []byte) *Container {
	if contentType == "" {
		contentType = ContentTypeWebM
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return &Container{id: containerIDs.Add(1), contentType: contentType, data: cp}
}

// Concat joins chunks in slice order. Zero chunks yield an empty Container.
func Concat(contentType string, chunks []Chunk) *Container {
	total := 0
	for _, c := range chunks {
		total += len(c.Data)
	}
	buf := make([]byte, 0, total)
	for _, c := range chunks {
		buf = append(buf, c.Data...)
	}
	if contentType == "" {
		contentType = ContentTypeWebM
	}
	return &Container{id: containerIDs.Add(1), contentType: contentType, data: buf}
}

// ID is unique per Container within the process.
func (c *Container) ID() uint64 { return c.id }

func (c *Container) ContentType() string { return c.contentType }

func (c *Container) Size() int { return len(c.data) }

// Empty reports whether the container holds no bytes.
func (c *Container) Empty() bool { return c == nil || len(c.data) == 0 }

// Bytes returns a copy of the container payload.
func (c *Container) Bytes() []byte {
	cp := make([]byte, len(c.data))
	copy(cp, c.data)
	return cp
}

// Reader streams the payload without copying it.
func (c *Container) Reader() io.Reader { return bytes.NewReader(c.data) }

// Same reports whether both values refer to the same finalized artifact.
func (c *Container) Same(other *Container) bool {
	return c != nil && other != nil && c.id == other.id
}
