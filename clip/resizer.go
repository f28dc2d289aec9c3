package clip

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"clipick/runloop"
)

const (
	// MinCropSize is the smallest width or height the crop rectangle may
	// be dragged down to.
	MinCropSize = 70.0
	// HandleTolerance is the side of the square hit zone around each
	// corner, and the thickness of the zones along each edge.
	HandleTolerance = 50.0
	// SettleDelay is how long the rectangle rests before it is fitted to
	// the maximum frame.
	SettleDelay = 500 * time.Millisecond
	// AnimationDuration is the length of the settle and recovery
	// animations.
	AnimationDuration = 250 * time.Millisecond
)

// Handle identifies the part of the crop rectangle being dragged.
type Handle int

const (
	HandleNone Handle = iota
	HandleLeftTop
	HandleRightTop
	HandleLeftBottom
	HandleRightBottom
	HandleLeftMid
	HandleRightMid
	HandleTopMid
	HandleBottomMid
)

func (h Handle) String() string {
	switch h {
	case HandleLeftTop:
		return "left-top"
	case HandleRightTop:
		return "right-top"
	case HandleLeftBottom:
		return "left-bottom"
	case HandleRightBottom:
		return "right-bottom"
	case HandleLeftMid:
		return "left-mid"
	case HandleRightMid:
		return "right-mid"
	case HandleTopMid:
		return "top-mid"
	case HandleBottomMid:
		return "bottom-mid"
	default:
		return "none"
	}
}

func (h Handle) IsCorner() bool {
	return h >= HandleLeftTop && h <= HandleRightBottom
}

type State int

const (
	StateIdle State = iota
	StateInteracting
	StateSettling
)

func (s State) String() string {
	switch s {
	case StateInteracting:
		return "interacting"
	case StateSettling:
		return "settling"
	default:
		return "idle"
	}
}

// Resizer owns the crop rectangle. It reacts to handle drags and to the
// surface being panned or zoomed, keeps the surface covering the
// rectangle, and fits the rectangle back into its maximum frame once the
// user lets go.
//
// All methods must be called from the scheduler's goroutine.
type Resizer struct {
	log     zerolog.Logger
	sched   runloop.Scheduler
	surface *Surface
	overlay *Overlay
	source  Source

	bounds      Size
	maxFrame    Rect
	originFrame Rect
	rect        Rect

	state       State
	interacting bool
	canRecover  bool
	enabled     bool

	handle    Handle
	anchor    Point
	startSize Size

	settleTimer runloop.Timer
	animTimer   runloop.Timer
	animGen     int

	onCanRecover  func(bool)
	onInteracting func(bool)
	onState       func(State)
}

// ResizerConfig describes where the crop rectangle lives.
type ResizerConfig struct {
	// Bounds is the size of the overlay, equal to the surface bounds.
	Bounds Size
	// ContentSize is the visible part of the container the image is
	// fitted into.
	ContentSize Size
	// Margin is kept clear between the content edges and the maximum
	// crop frame.
	Margin float64
	Source Source
	Logger *zerolog.Logger
}

func NewResizer(cfg ResizerConfig, surface *Surface, overlay *Overlay, sched runloop.Scheduler) *Resizer {
	r := &Resizer{
		log:     zerolog.Nop(),
		sched:   sched,
		surface: surface,
		overlay: overlay,
		source:  cfg.Source,
		bounds:  cfg.Bounds,
		enabled: true,
	}
	if cfg.Logger != nil {
		r.log = cfg.Logger.With().Str("component", "resizer").Logger()
	}

	img := surface.ImageSize()
	r.originFrame = Rect{
		X:      (cfg.Bounds.Width - img.Width) / 2,
		Y:      (cfg.Bounds.Height - img.Height) / 2,
		Width:  img.Width,
		Height: img.Height,
	}
	maxX := (cfg.Bounds.Width-cfg.ContentSize.Width)/2 + cfg.Margin
	maxY := cfg.Margin
	r.maxFrame = Rect{
		X:      maxX,
		Y:      maxY,
		Width:  cfg.Bounds.Width - 2*maxX,
		Height: cfg.Bounds.Height - 2*maxY,
	}

	surface.Observe(r)
	r.rect = r.originFrame
	overlay.Update(r.originFrame, false)
	return r
}

func (r *Resizer) Rect() Rect          { return r.rect }
func (r *Resizer) MaxFrame() Rect      { return r.maxFrame }
func (r *Resizer) OriginFrame() Rect   { return r.originFrame }
func (r *Resizer) State() State        { return r.state }
func (r *Resizer) Handle() Handle      { return r.handle }
func (r *Resizer) CanRecover() bool    { return r.canRecover }
func (r *Resizer) IsInteracting() bool { return r.interacting }

// InteractionEnabled is false while a recovery animation runs.
func (r *Resizer) InteractionEnabled() bool { return r.enabled }

func (r *Resizer) OnCanRecoverChanged(fn func(bool))  { r.onCanRecover = fn }
func (r *Resizer) OnInteractingChanged(fn func(bool)) { r.onInteracting = fn }
func (r *Resizer) OnStateChanged(fn func(State))      { r.onState = fn }

// Contains reports whether p is on the band around the rectangle's edge
// that accepts handle drags. Points well inside the rectangle belong to
// the surface underneath.
func (r *Resizer) Contains(p Point) bool {
	half := HandleTolerance / 2
	outer := r.rect.Inset(-half, -half)
	inner := r.rect.Inset(half, half)
	return outer.Contains(p) && !inner.Contains(p)
}

// handleAt finds the handle zone containing p and the point that must stay
// fixed while it is dragged. Corners are checked before edges.
func (r *Resizer) handleAt(p Point) (Handle, Point) {
	const tol = HandleTolerance
	half := tol / 2
	x, y := r.rect.MinX(), r.rect.MinY()
	w, h := r.rect.Width, r.rect.Height
	midX, midY := r.rect.MidX(), r.rect.MidY()
	maxX, maxY := r.rect.MaxX(), r.rect.MaxY()

	zones := []struct {
		handle Handle
		zone   Rect
		anchor Point
	}{
		{HandleLeftTop, R(x-half, y-half, tol, tol), Point{maxX, maxY}},
		{HandleLeftBottom, R(x-half, maxY-half, tol, tol), Point{maxX, y}},
		{HandleRightTop, R(maxX-half, y-half, tol, tol), Point{x, maxY}},
		{HandleRightBottom, R(maxX-half, maxY-half, tol, tol), Point{x, y}},
		{HandleLeftMid, R(x-half, y+half, tol, h-tol), Point{maxX, midY}},
		{HandleRightMid, R(maxX-half, y+half, tol, h-tol), Point{x, midY}},
		{HandleTopMid, R(x+half, y-half, w-tol, tol), Point{midX, maxY}},
		{HandleBottomMid, R(x+half, maxY-half, w-tol, tol), Point{midX, y}},
	}
	for _, z := range zones {
		if z.zone.Contains(p) {
			return z.handle, z.anchor
		}
	}
	return HandleNone, Point{}
}

// BeginResize starts a handle drag at p. It does nothing and returns false
// when p is not on a handle.
func (r *Resizer) BeginResize(p Point) bool {
	if !r.enabled {
		return false
	}
	handle, anchor := r.handleAt(p)
	if handle == HandleNone {
		return false
	}
	r.beginInteraction()
	r.handle = handle
	r.anchor = anchor
	r.startSize = r.rect.Size()
	r.log.Debug().Stringer("handle", handle).Stringer("rect", r.rect).Msg("resize began")
	return true
}

// UpdateResize applies the drag movement since the previous call.
func (r *Resizer) UpdateResize(delta Point) {
	if r.handle == HandleNone {
		return
	}
	next := r.resized(delta)
	r.rect = next
	r.overlay.Update(next, false)
	r.keepImageUnderRect(next)
}

// resized computes the rectangle after moving the active handle by delta.
// The moving edges stop at the maximum frame and are pulled back toward
// the anchor when the rectangle would get smaller than MinCropSize.
func (r *Resizer) resized(delta Point) Rect {
	x, y := r.rect.MinX(), r.rect.MinY()
	w, h := r.rect.Width, r.rect.Height
	lo := r.maxFrame
	a := r.anchor

	switch r.handle {
	case HandleLeftTop:
		x += delta.X
		y += delta.Y
		x = math.Max(x, lo.MinX())
		y = math.Max(y, lo.MinY())
		w = a.X - x
		h = a.Y - y
		if w < MinCropSize {
			w = MinCropSize
			x = a.X - w
		}
		if h < MinCropSize {
			h = MinCropSize
			y = a.Y - h
		}
	case HandleLeftBottom:
		x += delta.X
		h += delta.Y
		x = math.Max(x, lo.MinX())
		if y+h > lo.MaxY() {
			h = lo.MaxY() - a.Y
		}
		w = a.X - x
		if w < MinCropSize {
			w = MinCropSize
			x = a.X - w
		}
		h = math.Max(h, MinCropSize)
	case HandleRightTop:
		y += delta.Y
		w += delta.X
		y = math.Max(y, lo.MinY())
		if x+w > lo.MaxX() {
			w = lo.MaxX() - a.X
		}
		h = a.Y - y
		w = math.Max(w, MinCropSize)
		if h < MinCropSize {
			h = MinCropSize
			y = a.Y - h
		}
	case HandleRightBottom:
		w += delta.X
		h += delta.Y
		if x+w > lo.MaxX() {
			w = lo.MaxX() - a.X
		}
		if y+h > lo.MaxY() {
			h = lo.MaxY() - a.Y
		}
		w = math.Max(w, MinCropSize)
		h = math.Max(h, MinCropSize)
	case HandleLeftMid:
		x += delta.X
		x = math.Max(x, lo.MinX())
		w = a.X - x
		if w < MinCropSize {
			w = MinCropSize
			x = a.X - w
		}
	case HandleRightMid:
		w += delta.X
		if x+w > lo.MaxX() {
			w = lo.MaxX() - a.X
		}
		w = math.Max(w, MinCropSize)
	case HandleTopMid:
		y += delta.Y
		y = math.Max(y, lo.MinY())
		h = a.Y - y
		if h < MinCropSize {
			h = MinCropSize
			y = a.Y - h
		}
	case HandleBottomMid:
		h += delta.Y
		if y+h > lo.MaxY() {
			h = lo.MaxY() - a.Y
		}
		h = math.Max(h, MinCropSize)
	}
	return Rect{X: x, Y: y, Width: w, Height: h}
}

// keepImageUnderRect shifts the surface so the crop window stays on the
// image, and zooms in when the rectangle has grown past what the image
// can cover at its base size.
func (r *Resizer) keepImageUnderRect(next Rect) {
	s := r.surface
	img := s.ImageSize()
	zoom := s.ZoomScale()
	in := s.ToImage(next)
	offset := s.ContentOffset()
	if in.MinX() < 0 {
		offset.X -= in.MinX() * zoom
	} else if in.MaxX() > img.Width {
		offset.X -= (in.MaxX() - img.Width) * zoom
	}
	if in.MinY() < 0 {
		offset.Y -= in.MinY() * zoom
	} else if in.MaxY() > img.Height {
		offset.Y -= (in.MaxY() - img.Height) * zoom
	}
	s.SetContentOffset(offset)

	var wZoom, hZoom float64
	if next.Width > r.startSize.Width {
		wZoom = next.Width / img.Width
	}
	if next.Height > r.startSize.Height {
		hZoom = next.Height / img.Height
	}
	if z := math.Max(wZoom, hZoom); z > s.ZoomScale() {
		s.SetZoomScale(z, r.anchor)
	}
}

// EndResize finishes a drag, pan or pinch: the surface may no longer
// scroll the image away from the rectangle, and the settle timer starts.
func (r *Resizer) EndResize() {
	if r.state != StateInteracting {
		return
	}
	r.surface.SetContentInset(InsetsWithin(r.rect, r.bounds))
	r.handle = HandleNone
	r.setState(StateIdle)
	r.armSettleTimer()
	r.log.Debug().Stringer("rect", r.rect).Msg("resize ended")
}

func (r *Resizer) SurfaceWillBeginInteraction(*Surface) {
	if !r.enabled {
		return
	}
	r.beginInteraction()
}

func (r *Resizer) SurfaceDidEndInteraction(*Surface) {
	r.EndResize()
}

func (r *Resizer) beginInteraction() {
	r.stopSettleTimer()
	if r.state == StateSettling {
		r.cancelAnimation()
	}
	r.setInteracting(true)
	r.setState(StateInteracting)
}

func (r *Resizer) armSettleTimer() {
	r.stopSettleTimer()
	if r.sched == nil {
		return
	}
	r.settleTimer = r.sched.AfterFunc(SettleDelay, func() {
		r.settleTimer = nil
		if r.state != StateIdle {
			return
		}
		r.settle(true)
	})
}

func (r *Resizer) stopSettleTimer() {
	if r.settleTimer != nil {
		r.settleTimer.Stop()
		r.settleTimer = nil
	}
}

// SettlePending reports whether the settle timer is armed.
func (r *Resizer) SettlePending() bool { return r.settleTimer != nil }

// settle fits the rectangle to the largest frame of the same aspect ratio
// inside the maximum frame and zooms the surface so the same part of the
// image fills it.
func (r *Resizer) settle(animated bool) {
	s := r.surface
	cur := r.rect
	adjusted := FitFrame(cur, r.maxFrame)
	if adjusted.ApproxEqual(cur, 1e-6) {
		adjusted = cur
	}

	s.SetMinZoom(s.MinZoomScale(adjusted.Size()))
	s.SetContentInset(InsetsWithin(adjusted, r.bounds))

	// Grow the current rectangle by the adjusted rectangle's margins,
	// scaled back to the current size. Zooming that area to fill the
	// bounds maps cur exactly onto adjusted.
	scale := cur.Width / adjusted.Width
	dx := adjusted.MinX() * scale
	dy := adjusted.MinY() * scale
	area := Rect{X: cur.X - dx, Y: cur.Y - dy, Width: cur.Width + 2*dx, Height: cur.Height + 2*dy}
	s.ZoomTo(s.ToImage(area))

	r.rect = adjusted
	r.overlay.Update(adjusted, animated)
	r.setState(StateSettling)
	r.log.Debug().Stringer("from", cur).Stringer("to", adjusted).Bool("animated", animated).Msg("settling")

	r.runAnimation(animated, func() {
		r.setState(StateIdle)
		r.setInteracting(false)
		r.checkCanRecover()
	})
}

// Recover animates back to the untouched full image. It returns false when
// there is nothing to recover.
func (r *Resizer) Recover() bool {
	if !r.canRecover {
		return false
	}
	r.stopSettleTimer()
	r.cancelAnimation()
	r.handle = HandleNone
	r.setState(StateIdle)
	r.setEnabled(false)

	s := r.surface
	img := s.ImageSize()
	origin := r.originFrame
	inset := InsetsWithin(origin, r.bounds)
	minZoom := s.MinZoomScale(origin.Size())

	r.rect = origin
	r.overlay.Update(origin, true)
	s.SetMinZoom(minZoom)
	s.SetZoomScale(minZoom, origin.Center())
	s.SetContentInset(inset)
	s.SetContentOffset(Point{
		X: -inset.Left + (img.Width*minZoom-origin.Width)/2,
		Y: -inset.Top + (img.Height*minZoom-origin.Height)/2,
	})
	r.log.Debug().Stringer("rect", origin).Msg("recovering")

	r.runAnimation(true, func() {
		r.settle(false)
		r.setEnabled(true)
	})
	return true
}

// runAnimation calls done once the animation has run, or right away when
// not animated. Starting another animation or cancelling drops done.
func (r *Resizer) runAnimation(animated bool, done func()) {
	r.stopAnimationTimer()
	gen := r.animGen
	finish := func() {
		if gen != r.animGen {
			return
		}
		r.animTimer = nil
		r.overlay.FinishAnimation()
		done()
	}
	if !animated || r.sched == nil {
		finish()
		return
	}
	r.animTimer = r.sched.AfterFunc(AnimationDuration, finish)
}

func (r *Resizer) cancelAnimation() {
	r.stopAnimationTimer()
	r.overlay.FinishAnimation()
}

func (r *Resizer) stopAnimationTimer() {
	if r.animTimer != nil {
		r.animTimer.Stop()
		r.animTimer = nil
	}
	r.animGen++
}

// checkCanRecover compares the rectangle, seen in image coordinates, with
// the whole image.
func (r *Resizer) checkCanRecover() {
	in := r.surface.ToImage(r.rect)
	img := r.surface.ImageSize()
	moved := math.Abs(in.X) > 1 || math.Abs(in.Y) > 1 ||
		math.Abs(in.Width-img.Width) > 1 || math.Abs(in.Height-img.Height) > 1
	r.setCanRecover(moved)
}

func (r *Resizer) setState(s State) {
	if r.state == s {
		return
	}
	prev := r.state
	r.state = s
	r.log.Debug().Stringer("from", prev).Stringer("to", s).Msg("state changed")
	if r.onState != nil {
		r.onState(s)
	}
}

func (r *Resizer) setInteracting(v bool) {
	if r.interacting == v {
		return
	}
	r.interacting = v
	if r.onInteracting != nil {
		r.onInteracting(v)
	}
}

func (r *Resizer) setCanRecover(v bool) {
	if r.canRecover == v {
		return
	}
	r.canRecover = v
	if r.onCanRecover != nil {
		r.onCanRecover(v)
	}
}

func (r *Resizer) setEnabled(v bool) { r.enabled = v }
