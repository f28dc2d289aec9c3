package clip

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/sourcegraph/conc/panics"
)

var (
	// ErrNoSource is returned when there are no decodable pixels to crop.
	ErrNoSource = errors.New("no source image")
	// ErrDegenerateRegion is returned when the crop region has no area
	// left once clamped to the image.
	ErrDegenerateRegion = errors.New("degenerate crop region")
	// ErrInteracting is returned when a crop is requested before the
	// rectangle has settled.
	ErrInteracting = errors.New("crop rectangle is still moving")
)

// Source is the decoded image being cropped.
type Source struct {
	// Pixels may be nil when only the dimensions are known; cropping then
	// fails with ErrNoSource.
	Pixels image.Image
	// PixelSize is the natural size in pixels. It is taken from Pixels
	// when zero.
	PixelSize Size
	// Scale is the number of pixels per display point, 1 when zero.
	Scale float64
}

// Size returns the natural pixel size.
func (s Source) Size() Size {
	if !s.PixelSize.Empty() {
		return s.PixelSize
	}
	if s.Pixels == nil {
		return Size{}
	}
	b := s.Pixels.Bounds()
	return Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
}

// DisplaySize is the size in points, which only the aspect ratio of
// matters for layout.
func (s Source) DisplaySize() Size {
	scale := s.Scale
	if scale <= 0 {
		scale = 1
	}
	px := s.Size()
	return Size{Width: px.Width / scale, Height: px.Height / scale}
}

// cropFrame is the part of the image to keep, in the image's base display
// coordinates. An untouched rectangle keeps the whole image.
func (r *Resizer) cropFrame() Rect {
	img := r.surface.ImageSize()
	if !r.canRecover {
		return Rect{Width: img.Width, Height: img.Height}
	}
	return r.surface.ToImage(r.rect)
}

// NormalizedCrop returns the crop region relative to the image, each
// component in [0, 1].
func (r *Resizer) NormalizedCrop() Rect {
	img := r.surface.ImageSize()
	if img.Empty() {
		return Rect{}
	}
	unit := Rect{Width: 1, Height: 1}
	f := r.cropFrame()
	return intersect(Rect{
		X:      f.X / img.Width,
		Y:      f.Y / img.Height,
		Width:  f.Width / img.Width,
		Height: f.Height / img.Height,
	}, unit)
}

// Crop cuts the source down to the crop rectangle on a worker goroutine
// and calls done on the scheduler's goroutine.
//
// With useOriginal the cropped pixels are returned as they are. Otherwise
// the result is resampled so that the whole image would be targetWidth
// wide, with targetWidth clamped between the displayed width and the
// natural width. A targetWidth of zero means the displayed width.
//
// Cropping while the rectangle is still moving fails with ErrInteracting.
func (r *Resizer) Crop(useOriginal bool, targetWidth float64, done func(image.Image, error)) {
	deliver := func(img image.Image, err error) {
		if r.sched == nil {
			done(img, err)
			return
		}
		r.sched.Post(func() { done(img, err) })
	}
	if r.interacting {
		deliver(nil, ErrInteracting)
		return
	}
	if r.source.Pixels == nil {
		deliver(nil, ErrNoSource)
		return
	}

	px := r.source.Size()
	base := r.surface.ImageSize()
	job := cropJob{
		src:         r.source.Pixels,
		frame:       r.cropFrame(),
		scale:       px.Width / base.Width,
		pixelSize:   px,
		useOriginal: useOriginal,
		outWidth:    referenceWidth(targetWidth, px.Width, base.Width),
	}
	log := r.log

	go func() {
		var img image.Image
		var err error
		var pc panics.Catcher
		pc.Try(func() { img, err = job.run() })
		if rec := pc.Recovered(); rec != nil {
			err = fmt.Errorf("crop panicked: %v", rec.Value)
		}
		if err != nil {
			log.Error().Err(err).Msg("crop failed")
		} else {
			b := img.Bounds()
			log.Info().Int("width", b.Dx()).Int("height", b.Dy()).Msg("cropped")
		}
		deliver(img, err)
	}()
}

func referenceWidth(target, natural, displayed float64) float64 {
	if target <= 0 {
		return displayed
	}
	hi := math.Max(natural, displayed)
	lo := math.Min(natural, displayed)
	return math.Max(lo, math.Min(target, hi))
}

// cropJob is a snapshot of everything a crop needs, safe to hand to
// another goroutine.
type cropJob struct {
	src         image.Image
	frame       Rect
	scale       float64
	pixelSize   Size
	useOriginal bool
	outWidth    float64
}

func (j cropJob) run() (image.Image, error) {
	rect, err := PixelRect(j.frame, j.scale, j.pixelSize)
	if err != nil {
		return nil, err
	}
	rect = rect.Add(j.src.Bounds().Min)
	cropped := imaging.Crop(j.src, rect)
	if j.useOriginal {
		return cropped, nil
	}

	ratio := j.outWidth / j.pixelSize.Width
	w := int(math.Round(float64(rect.Dx()) * ratio))
	h := int(math.Round(float64(rect.Dy()) * ratio))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("resample to %dx%d: %w", w, h, ErrDegenerateRegion)
	}
	return imaging.Resize(cropped, w, h, imaging.Lanczos), nil
}

// PixelRect converts a frame in display coordinates into whole source
// pixels. Parts hanging over an edge are cut off rather than shifted back
// onto the image.
func PixelRect(frame Rect, scale float64, pixels Size) (image.Rectangle, error) {
	x := frame.MinX() * scale
	y := frame.MinY() * scale
	w := frame.Width * scale
	h := frame.Height * scale
	if x < 0 {
		w += x
		x = 0
	}
	if y < 0 {
		h += y
		y = 0
	}
	if x+w > pixels.Width {
		w = pixels.Width - x
	}
	if y+h > pixels.Height {
		h = pixels.Height - y
	}
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, fmt.Errorf("crop %v: %w", frame, ErrDegenerateRegion)
	}

	rect := image.Rect(
		int(math.Round(x)), int(math.Round(y)),
		int(math.Round(x+w)), int(math.Round(y+h)),
	).Intersect(image.Rect(0, 0, int(math.Round(pixels.Width)), int(math.Round(pixels.Height))))
	if rect.Empty() {
		return image.Rectangle{}, fmt.Errorf("crop %v: %w", frame, ErrDegenerateRegion)
	}
	return rect, nil
}
