// Package capture provides the screen stream and frame extraction
// capabilities. A Source opens a Stream; an Extractor turns the stream's
// current picture into a compressed still Frame.
package capture

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	// ErrCancelled reports that the user declined to share the screen.
	ErrCancelled = errors.New("screen sharing cancelled by user")
	// ErrStreamInvalid reports that the stream ended underneath the caller.
	ErrStreamInvalid = errors.New("capture stream is no longer valid")
)

// Stream is a live screen feed.
type Stream interface {
	// Live reports whether the video source is still delivering frames.
	Live() bool
	// Grab returns the current picture. It returns ErrStreamInvalid once
	// the stream has ended.
	Grab(ctx context.Context) (image.Image, error)
	// Stop releases the stream. Safe to call more than once.
	Stop()
}

// Source opens streams.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Frame is a compressed still image.
type Frame struct {
	Data       []byte
	MIMEType   string
	Width      int
	Height     int
	CapturedAt time.Time
}

// Extractor produces one Frame from a stream.
type Extractor interface {
	Extract(ctx context.Context, s Stream) (Frame, error)
}
