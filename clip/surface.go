package clip

import "math"

// SurfaceObserver is told when the user starts and stops moving the image
// surface directly.
type SurfaceObserver interface {
	SurfaceWillBeginInteraction(s *Surface)
	SurfaceDidEndInteraction(s *Surface)
}

// Surface is the pannable, zoomable area holding the image. Its bounds
// share their coordinate space with the crop overlay placed on top of it.
//
// The image is laid out at its base display size and scaled by the zoom
// scale. The content offset is the point of the zoomed content shown at
// the top left of the bounds, and the content inset extends the range the
// offset may settle in.
type Surface struct {
	bounds    Size
	imageSize Size

	zoom    float64
	minZoom float64
	maxZoom float64
	offset  Point
	inset   Insets

	panning   bool
	zooming   bool
	observers []SurfaceObserver
}

// NewSurface places an image of base display size imageSize in the middle
// of bounds at zoom scale 1.
func NewSurface(bounds, imageSize Size) *Surface {
	s := &Surface{
		bounds:    bounds,
		imageSize: imageSize,
		zoom:      1,
		minZoom:   1,
		maxZoom:   math.MaxFloat64,
	}
	hInset := (bounds.Width - imageSize.Width) / 2
	vInset := (bounds.Height - imageSize.Height) / 2
	s.inset = Insets{Top: vInset, Left: hInset, Bottom: vInset, Right: hInset}
	s.offset = Point{X: -hInset, Y: -vInset}
	return s
}

// FrameForContent fits an image of the given size into content, keeping
// margin clear on every side, and centers it there.
func FrameForContent(image, content Size, margin float64) Rect {
	if image.Empty() {
		return Rect{}
	}
	maxW := content.Width - 2*margin
	maxH := content.Height - 2*margin
	aspect := image.Aspect()
	w := maxW
	h := w / aspect
	if h > maxH {
		h = maxH
		w = h * aspect
	}
	return Rect{X: (content.Width - w) / 2, Y: (content.Height - h) / 2, Width: w, Height: h}
}

func (s *Surface) Observe(o SurfaceObserver) {
	s.observers = append(s.observers, o)
}

func (s *Surface) Bounds() Size         { return s.bounds }
func (s *Surface) ImageSize() Size      { return s.imageSize }
func (s *Surface) ZoomScale() float64   { return s.zoom }
func (s *Surface) MinZoom() float64     { return s.minZoom }
func (s *Surface) ContentOffset() Point { return s.offset }
func (s *Surface) ContentInset() Insets { return s.inset }

func (s *Surface) ContentSize() Size {
	return Size{Width: s.imageSize.Width * s.zoom, Height: s.imageSize.Height * s.zoom}
}

func (s *Surface) SetContentOffset(p Point) { s.offset = p }
func (s *Surface) SetContentInset(in Insets) { s.inset = in }

func (s *Surface) SetMinZoom(scale float64) {
	s.minZoom = scale
	if s.maxZoom < scale {
		s.maxZoom = scale
	}
}

// MinZoomScale is the smallest zoom at which the image covers a rectangle
// of the given size.
func (s *Surface) MinZoomScale(target Size) float64 {
	if s.imageSize.Empty() {
		return 1
	}
	var scale float64
	if target.Width >= target.Height {
		scale = target.Width / s.imageSize.Width
		if h := s.imageSize.Height * scale; h < target.Height {
			scale *= target.Height / h
		}
	} else {
		scale = target.Height / s.imageSize.Height
		if w := s.imageSize.Width * scale; w < target.Width {
			scale *= target.Width / w
		}
	}
	return scale
}

// ToImage converts r from surface coordinates into the image's unzoomed
// coordinate space.
func (s *Surface) ToImage(r Rect) Rect {
	return Rect{
		X:      (r.X + s.offset.X) / s.zoom,
		Y:      (r.Y + s.offset.Y) / s.zoom,
		Width:  r.Width / s.zoom,
		Height: r.Height / s.zoom,
	}
}

func (s *Surface) ToImagePoint(p Point) Point {
	return p.Add(s.offset).Scale(1 / s.zoom)
}

// FromImage converts r from image coordinates into surface coordinates.
func (s *Surface) FromImage(r Rect) Rect {
	return Rect{
		X:      r.X*s.zoom - s.offset.X,
		Y:      r.Y*s.zoom - s.offset.Y,
		Width:  r.Width * s.zoom,
		Height: r.Height * s.zoom,
	}
}

// ImageFrame is where the whole image currently sits in surface
// coordinates.
func (s *Surface) ImageFrame() Rect {
	return s.FromImage(Rect{Width: s.imageSize.Width, Height: s.imageSize.Height})
}

// SetZoomScale zooms so the image point under anchor stays put. The scale
// is clamped to the zoom limits.
func (s *Surface) SetZoomScale(scale float64, anchor Point) {
	s.setZoom(s.clampZoom(scale), anchor)
}

func (s *Surface) clampZoom(scale float64) float64 {
	return math.Max(s.minZoom, math.Min(scale, s.maxZoom))
}

func (s *Surface) setZoom(scale float64, anchor Point) {
	if scale <= 0 {
		return
	}
	q := s.ToImagePoint(anchor)
	s.zoom = scale
	s.offset = q.Scale(scale).Sub(anchor)
}

// ZoomTo zooms so that r, in image coordinates, fills the bounds and is
// centered in them, then settles the offset into the inset range.
func (s *Surface) ZoomTo(r Rect) {
	if r.Empty() {
		return
	}
	scale := s.clampZoom(math.Min(s.bounds.Width/r.Width, s.bounds.Height/r.Height))
	s.zoom = scale
	s.offset = Point{
		X: r.MidX()*scale - s.bounds.Width/2,
		Y: r.MidY()*scale - s.bounds.Height/2,
	}
	s.ClampOffset()
}

// ClampOffset pulls the content offset back into the range allowed by the
// content inset, the way a scroll view bounces back after a drag.
func (s *Surface) ClampOffset() {
	content := s.ContentSize()
	clamp := func(v, lo, hi float64) float64 {
		if hi < lo {
			hi = lo
		}
		return math.Max(lo, math.Min(v, hi))
	}
	s.offset.X = clamp(s.offset.X, -s.inset.Left, content.Width-s.bounds.Width+s.inset.Right)
	s.offset.Y = clamp(s.offset.Y, -s.inset.Top, content.Height-s.bounds.Height+s.inset.Bottom)
}

// Interacting reports whether a pan or pinch is in progress.
func (s *Surface) Interacting() bool { return s.panning || s.zooming }

func (s *Surface) BeginPan() {
	if s.panning {
		return
	}
	s.panning = true
	s.notifyBegin()
}

// Pan moves the content with the finger: dragging right reveals content
// further left.
func (s *Surface) Pan(delta Point) {
	if !s.panning {
		return
	}
	s.offset = s.offset.Sub(delta)
}

func (s *Surface) EndPan() {
	if !s.panning {
		return
	}
	s.panning = false
	s.ClampOffset()
	s.notifyEnd()
}

func (s *Surface) BeginZoom() {
	if s.zooming {
		return
	}
	s.zooming = true
	s.notifyBegin()
}

// ZoomBy multiplies the zoom scale around anchor. While pinching the scale
// may drop under the minimum; EndZoom bounces it back.
func (s *Surface) ZoomBy(factor float64, anchor Point) {
	if !s.zooming || factor <= 0 {
		return
	}
	s.setZoom(math.Min(s.zoom*factor, s.maxZoom), anchor)
}

func (s *Surface) EndZoom() {
	if !s.zooming {
		return
	}
	s.zooming = false
	if s.zoom < s.minZoom {
		s.setZoom(s.minZoom, Point{X: s.bounds.Width / 2, Y: s.bounds.Height / 2})
	}
	s.ClampOffset()
	s.notifyEnd()
}

func (s *Surface) notifyBegin() {
	for _, o := range s.observers {
		o.SurfaceWillBeginInteraction(s)
	}
}

func (s *Surface) notifyEnd() {
	for _, o := range s.observers {
		o.SurfaceDidEndInteraction(s)
	}
}
