package main

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"

	"clipick/clip"
)

// ImagingCropper applies a relative crop to a full resolution photo and
// writes it out as JPEG.
type ImagingCropper struct {
	Quality int
}

func NewImagingCropper(quality int) *ImagingCropper {
	if quality <= 0 {
		quality = 90
	}
	return &ImagingCropper{Quality: quality}
}

func (c *ImagingCropper) Crop(ctx context.Context, r io.Reader, w io.Writer, crop Crop) error {
	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out := image.Image(src)
	if !crop.Full() {
		b := src.Bounds()
		size := clip.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
		frame := clip.Rect{
			X:      crop.X * size.Width,
			Y:      crop.Y * size.Height,
			Width:  crop.Width * size.Width,
			Height: crop.Height * size.Height,
		}
		rect, err := clip.PixelRect(frame, 1, size)
		if err != nil {
			return err
		}
		out = imaging.Crop(src, rect.Add(b.Min))
	}

	return imaging.Encode(w, out, imaging.JPEG, imaging.JPEGQuality(c.Quality))
}
