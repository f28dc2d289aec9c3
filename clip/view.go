package clip

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/rs/zerolog"

	"clipick/runloop"
)

type ViewConfig struct {
	// Bounds is the size of the whole container.
	Bounds Size
	// ContentInset is covered by bars; the image is laid out in the rest.
	ContentInset Insets
	// Margin is kept clear around the largest crop frame.
	Margin float64
	Source Source
	Logger *zerolog.Logger
}

type gesture int

const (
	gestureNone gesture = iota
	gestureResize
	gesturePan
)

// View is the crop container: the zoomable surface with the crop overlay
// on top, laid out inside the container bounds. Pointer and pinch input is
// given in container coordinates and routed to the overlay handles or the
// surface underneath.
type View struct {
	bounds  Size
	inset   Insets
	frame   Rect
	content Size
	source  Source

	surface *Surface
	overlay *Overlay
	resizer *Resizer

	gesture gesture
	last    Point
}

func NewView(cfg ViewConfig, sched runloop.Scheduler) (*View, error) {
	display := cfg.Source.DisplaySize()
	if display.Empty() {
		return nil, fmt.Errorf("lay out crop view: %w", ErrNoSource)
	}
	content := Size{
		Width:  cfg.Bounds.Width - cfg.ContentInset.Left - cfg.ContentInset.Right,
		Height: cfg.Bounds.Height - cfg.ContentInset.Top - cfg.ContentInset.Bottom,
	}
	if content.Empty() {
		return nil, fmt.Errorf("container %vx%v leaves no room for content", cfg.Bounds.Width, cfg.Bounds.Height)
	}

	// The surface is as tall as the content and wide enough to hold the
	// content turned on its side.
	h := content.Height
	w := h * h / content.Width
	frame := Rect{
		X:      cfg.ContentInset.Left + (cfg.Bounds.Width-w)/2,
		Y:      cfg.ContentInset.Top,
		Width:  w,
		Height: h,
	}
	imageFrame := FrameForContent(display, content, cfg.Margin)

	v := &View{
		bounds:  cfg.Bounds,
		inset:   cfg.ContentInset,
		frame:   frame,
		content: content,
		source:  cfg.Source,
	}
	v.surface = NewSurface(frame.Size(), imageFrame.Size())
	v.overlay = NewOverlay(frame.Size())
	v.resizer = NewResizer(ResizerConfig{
		Bounds:      frame.Size(),
		ContentSize: content,
		Margin:      cfg.Margin,
		Source:      cfg.Source,
		Logger:      cfg.Logger,
	}, v.surface, v.overlay, sched)
	return v, nil
}

func (v *View) Surface() *Surface { return v.surface }
func (v *View) Overlay() *Overlay { return v.overlay }
func (v *View) Resizer() *Resizer { return v.resizer }

// Frame is where the surface and overlay sit in the container.
func (v *View) Frame() Rect { return v.frame }

func (v *View) OnCanRecoverChanged(fn func(bool))  { v.resizer.OnCanRecoverChanged(fn) }
func (v *View) OnInteractingChanged(fn func(bool)) { v.resizer.OnInteractingChanged(fn) }

func (v *View) local(p Point) Point { return p.Sub(v.frame.Origin()) }

// PointerDown starts a drag at p. Points on the rectangle's edge band grab
// a handle; anything else drags the surface.
func (v *View) PointerDown(p Point) {
	if v.gesture != gestureNone || !v.resizer.InteractionEnabled() {
		return
	}
	local := v.local(p)
	v.last = p
	if v.resizer.Contains(local) {
		if v.resizer.BeginResize(local) {
			v.gesture = gestureResize
		}
		return
	}
	v.surface.BeginPan()
	v.gesture = gesturePan
}

func (v *View) PointerMove(p Point) {
	delta := p.Sub(v.last)
	v.last = p
	switch v.gesture {
	case gestureResize:
		v.resizer.UpdateResize(delta)
	case gesturePan:
		v.surface.Pan(delta)
	}
}

func (v *View) PointerUp() {
	switch v.gesture {
	case gestureResize:
		v.resizer.EndResize()
	case gesturePan:
		v.surface.EndPan()
	}
	v.gesture = gestureNone
}

func (v *View) PinchBegin() {
	if !v.resizer.InteractionEnabled() {
		return
	}
	v.surface.BeginZoom()
}

// PinchChange scales by factor around center, given in container
// coordinates.
func (v *View) PinchChange(factor float64, center Point) {
	v.surface.ZoomBy(factor, v.local(center))
}

func (v *View) PinchEnd() {
	v.surface.EndZoom()
}

// Recover restores the untouched image. It returns false when there is
// nothing to restore.
func (v *View) Recover() bool {
	return v.resizer.Recover()
}

// Crop cuts out the current crop rectangle and hands the result to done on
// the scheduler. It fails with ErrInteracting while a gesture or settle is
// still pending, ErrNoSource without pixels, and ErrDegenerateRegion when
// nothing of the image is left.
func (v *View) Crop(useOriginal bool, targetWidth float64, done func(image.Image, error)) {
	v.resizer.Crop(useOriginal, targetWidth, done)
}

// Snapshot describes the view for hosts that draw it themselves. All
// rectangles are in container coordinates.
type Snapshot struct {
	Bounds      Size    `json:"bounds"`
	Frame       Rect    `json:"frame"`
	Rect        Rect    `json:"rect"`
	MaxFrame    Rect    `json:"max_frame"`
	ImageFrame  Rect    `json:"image_frame"`
	Zoom        float64 `json:"zoom"`
	MinZoom     float64 `json:"min_zoom"`
	State       string  `json:"state"`
	Interacting bool    `json:"interacting"`
	CanRecover  bool    `json:"can_recover"`
	Enabled     bool    `json:"enabled"`
	Crop        Rect    `json:"crop"`
	Shapes      Shapes  `json:"shapes"`
}

func (v *View) Snapshot() Snapshot {
	o := v.frame.Origin()
	r := v.resizer
	return Snapshot{
		Bounds:      v.bounds,
		Frame:       v.frame,
		Rect:        r.Rect().Offset(o),
		MaxFrame:    r.MaxFrame().Offset(o),
		ImageFrame:  v.surface.ImageFrame().Offset(o),
		Zoom:        v.surface.ZoomScale(),
		MinZoom:     v.surface.MinZoom(),
		State:       r.State().String(),
		Interacting: r.IsInteracting(),
		CanRecover:  r.CanRecover(),
		Enabled:     r.InteractionEnabled(),
		Crop:        r.NormalizedCrop(),
		Shapes:      v.overlay.Current().Translate(o),
	}
}

// Render draws the container as the user sees it: the image on black with
// the overlay at animation progress t on top.
func (v *View) Render(t float64) *image.RGBA {
	w := int(math.Ceil(v.bounds.Width))
	h := int(math.Ceil(v.bounds.Height))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	if px := v.source.Pixels; px != nil {
		f := v.surface.ImageFrame().Offset(v.frame.Origin())
		target := image.Rect(
			int(math.Round(f.MinX())), int(math.Round(f.MinY())),
			int(math.Round(f.MaxX())), int(math.Round(f.MaxY())),
		)
		xdraw.ApproxBiLinear.Scale(dst, target, px, px.Bounds(), xdraw.Over, nil)
	}
	Render(dst, v.overlay.Frame(t).Translate(v.frame.Origin()))
	return dst
}
