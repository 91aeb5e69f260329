package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
)

// FileSource treats an image file kept up to date by another program as
// the screen. The stream stays live for as long as the file exists.
type FileSource struct {
	Path string
}

func (f FileSource) Open(_ context.Context) (Stream, error) {
	if _, err := os.Stat(f.Path); err != nil {
		return nil, fmt.Errorf("opening frame file: %w", err)
	}
	return &fileStream{path: f.Path}, nil
}

type fileStream struct {
	path string

	mu      sync.Mutex
	stopped bool
}

func (s *fileStream) Live() bool {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return false
	}
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *fileStream) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *fileStream) Grab(_ context.Context) (image.Image, error) {
	if !s.Live() {
		return nil, ErrStreamInvalid
	}
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrStreamInvalid
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding frame file: %w", err)
	}
	return img, nil
}
