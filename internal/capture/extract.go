package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"golang.org/x/image/draw"
)

const (
	DefaultMaxWidth    = 720
	DefaultJPEGQuality = 60
)

// ImageExtractor grabs the stream's picture, downscales it to at most
// MaxWidth pixels wide and encodes it as JPEG.
type ImageExtractor struct {
	MaxWidth int
	Quality  int
	Now      func() time.Time
}

// NewImageExtractor returns an extractor with the given limits; zero values
// pick the defaults.
func NewImageExtractor(maxWidth, quality int) *ImageExtractor {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &ImageExtractor{MaxWidth: maxWidth, Quality: quality, Now: time.Now}
}

func (e *ImageExtractor) Extract(ctx context.Context, s Stream) (Frame, error) {
	if s == nil {
		return Frame{}, ErrStreamInvalid
	}
	img, err := s.Grab(ctx)
	if err != nil {
		return Frame{}, err
	}

	img = downscale(img, e.MaxWidth)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.Quality}); err != nil {
		return Frame{}, fmt.Errorf("encoding frame: %w", err)
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	b := img.Bounds()
	return Frame{
		Data:       buf.Bytes(),
		MIMEType:   "image/jpeg",
		Width:      b.Dx(),
		Height:     b.Dy(),
		CapturedAt: now(),
	}, nil
}

func downscale(src image.Image, maxWidth int) image.Image {
	b := src.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return src
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
