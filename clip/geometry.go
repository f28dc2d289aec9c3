package clip

import (
	"fmt"
	"math"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

func (p Point) Scale(s float64) Point { return Point{p.X * s, p.Y * s} }

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Aspect is width over height, 0 for a degenerate size.
func (s Size) Aspect() float64 {
	if s.Height == 0 {
		return 0
	}
	return s.Width / s.Height
}

func (s Size) Empty() bool { return s.Width <= 0 || s.Height <= 0 }

// Rect is an origin plus a size, in whichever coordinate space the caller
// is working in.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func R(x, y, w, h float64) Rect { return Rect{X: x, Y: y, Width: w, Height: h} }

func (r Rect) MinX() float64 { return r.X }
func (r Rect) MinY() float64 { return r.Y }
func (r Rect) MaxX() float64 { return r.X + r.Width }
func (r Rect) MaxY() float64 { return r.Y + r.Height }
func (r Rect) MidX() float64 { return r.X + r.Width/2 }
func (r Rect) MidY() float64 { return r.Y + r.Height/2 }

func (r Rect) Origin() Point { return Point{r.X, r.Y} }
func (r Rect) Size() Size    { return Size{r.Width, r.Height} }
func (r Rect) Center() Point { return Point{r.MidX(), r.MidY()} }
func (r Rect) Empty() bool   { return r.Width <= 0 || r.Height <= 0 }

// Contains treats the min edges as inside and the max edges as outside.
func (r Rect) Contains(p Point) bool {
	if r.Empty() {
		return false
	}
	return p.X >= r.MinX() && p.X < r.MaxX() && p.Y >= r.MinY() && p.Y < r.MaxY()
}

// ContainsRect reports whether o lies inside r, allowing eps of slack.
func (r Rect) ContainsRect(o Rect, eps float64) bool {
	return o.MinX() >= r.MinX()-eps && o.MinY() >= r.MinY()-eps &&
		o.MaxX() <= r.MaxX()+eps && o.MaxY() <= r.MaxY()+eps
}

// Inset shrinks r by dx on the left and right and dy on the top and bottom.
// Negative values grow it.
func (r Rect) Inset(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, Width: r.Width - 2*dx, Height: r.Height - 2*dy}
}

func (r Rect) Offset(d Point) Rect {
	return Rect{X: r.X + d.X, Y: r.Y + d.Y, Width: r.Width, Height: r.Height}
}

func (r Rect) ApproxEqual(o Rect, eps float64) bool {
	return math.Abs(r.X-o.X) <= eps && math.Abs(r.Y-o.Y) <= eps &&
		math.Abs(r.Width-o.Width) <= eps && math.Abs(r.Height-o.Height) <= eps
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.2f,%.2f %.2fx%.2f)", r.X, r.Y, r.Width, r.Height)
}

// Insets are distances from the edges of a bounding rectangle.
type Insets struct {
	Top    float64 `json:"top" yaml:"top"`
	Left   float64 `json:"left" yaml:"left"`
	Bottom float64 `json:"bottom" yaml:"bottom"`
	Right  float64 `json:"right" yaml:"right"`
}

// InsetsWithin returns the insets that place r inside bounds of size b.
func InsetsWithin(r Rect, b Size) Insets {
	return Insets{
		Top:    r.MinY(),
		Left:   r.MinX(),
		Bottom: b.Height - r.MaxY(),
		Right:  b.Width - r.MaxX(),
	}
}

// FitFrame returns the largest rectangle with the aspect ratio of r that
// fits inside bounds, centered in it.
func FitFrame(r Rect, bounds Rect) Rect {
	aspect := r.Size().Aspect()
	if aspect <= 0 {
		return bounds
	}
	var w, h float64
	if aspect >= 1 {
		w = bounds.Width
		h = w / aspect
		if h > bounds.Height {
			h = bounds.Height
			w = h * aspect
		}
	} else {
		h = bounds.Height
		w = h * aspect
		if w > bounds.Width {
			w = bounds.Width
			h = w / aspect
		}
	}
	return Rect{
		X:      bounds.MinX() + (bounds.Width-w)/2,
		Y:      bounds.MinY() + (bounds.Height-h)/2,
		Width:  w,
		Height: h,
	}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func lerpPoint(a, b Point, t float64) Point {
	return Point{lerp(a.X, b.X, t), lerp(a.Y, b.Y, t)}
}

func lerpRect(a, b Rect, t float64) Rect {
	return Rect{
		X:      lerp(a.X, b.X, t),
		Y:      lerp(a.Y, b.Y, t),
		Width:  lerp(a.Width, b.Width, t),
		Height: lerp(a.Height, b.Height, t),
	}
}
