package library

import (
	"image"
	"math"

	"github.com/nfnt/resize"
)

// PreviewSize picks the size a photo of w x h pixels is shown at in the
// full screen preview, given the reference side standard.
//
// Photos within standard on both sides keep their size. Photos over it on
// both sides get their long side scaled to standard, except panoramas (an
// aspect ratio over 2 or under 0.5) which get their short side scaled to
// standard. Photos over it on one side only get that side scaled to
// standard unless they are panoramas, which keep their size.
func PreviewSize(w, h, standard int) (int, int) {
	if w <= 0 || h <= 0 || standard <= 0 {
		return w, h
	}
	width, height, std := float64(w), float64(h), float64(standard)
	scale := width / height

	var tw, th float64
	switch {
	case width <= std && height <= std:
		return w, h
	case width > std && height > std:
		switch {
		case scale > 2:
			tw, th = std*scale, std
		case scale < 0.5:
			tw, th = std, std/scale
		case scale > 1:
			tw, th = std, std/scale
		default:
			tw, th = std*scale, std
		}
	default:
		switch {
		case scale > 1 && scale <= 2:
			tw, th = std, std/scale
		case scale > 0.5 && scale <= 1:
			tw, th = std*scale, std
		default:
			return w, h
		}
	}
	return int(math.Round(tw)), int(math.Round(th))
}

// preview scales src down to its preview size.
func preview(src image.Image, standard int) image.Image {
	b := src.Bounds()
	w, h := PreviewSize(b.Dx(), b.Dy(), standard)
	if w == b.Dx() && h == b.Dy() {
		return src
	}
	return resize.Resize(uint(w), uint(h), src, resize.Lanczos3)
}
