package clip

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

const (
	cornerLineLength = 20.0
	cornerLineWidth  = 2.5
	normalLineWidth  = 0.5
	borderLineWidth  = 1.0
	canvasOutset     = 800.0
)

var (
	maskColor   = color.NRGBA{A: 0x80}
	strokeColor = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// Corner order used by Shapes.Corners.
const (
	CornerLeftTop = iota
	CornerRightTop
	CornerLeftBottom
	CornerRightBottom
)

// Shapes is everything drawn for one crop rectangle.
type Shapes struct {
	// Canvas is the dimmed area; Hole is punched out of it.
	Canvas Rect `json:"canvas"`
	Hole   Rect `json:"hole"`
	Border Rect `json:"border"`
	// Corners are three point brackets, see the Corner constants.
	Corners [4][3]Point `json:"corners"`
	// Grid holds the two horizontal then the two vertical third lines.
	Grid [4][2]Point `json:"grid"`
}

// Translate moves every shape by d.
func (s Shapes) Translate(d Point) Shapes {
	s.Canvas = s.Canvas.Offset(d)
	s.Hole = s.Hole.Offset(d)
	s.Border = s.Border.Offset(d)
	for i := range s.Corners {
		for j := range s.Corners[i] {
			s.Corners[i][j] = s.Corners[i][j].Add(d)
		}
	}
	for i := range s.Grid {
		for j := range s.Grid[i] {
			s.Grid[i][j] = s.Grid[i][j].Add(d)
		}
	}
	return s
}

func lerpShapes(a, b Shapes, t float64) Shapes {
	out := Shapes{
		Canvas: lerpRect(a.Canvas, b.Canvas, t),
		Hole:   lerpRect(a.Hole, b.Hole, t),
		Border: lerpRect(a.Border, b.Border, t),
	}
	for i := range out.Corners {
		for j := range out.Corners[i] {
			out.Corners[i][j] = lerpPoint(a.Corners[i][j], b.Corners[i][j], t)
		}
	}
	for i := range out.Grid {
		for j := range out.Grid[i] {
			out.Grid[i][j] = lerpPoint(a.Grid[i][j], b.Grid[i][j], t)
		}
	}
	return out
}

// Overlay turns the crop rectangle into the mask, border, corner brackets
// and third lines drawn over the image.
type Overlay struct {
	bounds    Size
	current   Shapes
	from      Shapes
	animating bool
}

func NewOverlay(bounds Size) *Overlay {
	return &Overlay{bounds: bounds}
}

// Shapes computes the drawing for r without touching the overlay state.
func (o *Overlay) Shapes(r Rect) Shapes {
	half := cornerLineWidth / 2
	s := Shapes{
		Canvas: Rect{X: -canvasOutset, Y: -canvasOutset, Width: o.bounds.Width + 2*canvasOutset, Height: o.bounds.Height + 2*canvasOutset},
		Hole:   r,
		Border: r,
	}

	lt := Point{r.MinX() - half, r.MinY() - half}
	s.Corners[CornerLeftTop] = [3]Point{{lt.X, lt.Y + cornerLineLength}, lt, {lt.X + cornerLineLength, lt.Y}}
	rt := Point{r.MaxX() + half, r.MinY() - half}
	s.Corners[CornerRightTop] = [3]Point{{rt.X - cornerLineLength, rt.Y}, rt, {rt.X, rt.Y + cornerLineLength}}
	lb := Point{r.MinX() - half, r.MaxY() + half}
	s.Corners[CornerLeftBottom] = [3]Point{{lb.X, lb.Y - cornerLineLength}, lb, {lb.X + cornerLineLength, lb.Y}}
	rb := Point{r.MaxX() + half, r.MaxY() + half}
	s.Corners[CornerRightBottom] = [3]Point{{rb.X - cornerLineLength, rb.Y}, rb, {rb.X, rb.Y - cornerLineLength}}

	for i, f := range []float64{1.0 / 3, 2.0 / 3} {
		y := r.MinY() + r.Height*f
		s.Grid[i] = [2]Point{{r.MinX(), y}, {r.MaxX(), y}}
		x := r.MinX() + r.Width*f
		s.Grid[2+i] = [2]Point{{x, r.MinY()}, {x, r.MaxY()}}
	}
	return s
}

// Update redraws for r. When animated, Frame interpolates from the
// previous drawing until FinishAnimation is called.
func (o *Overlay) Update(r Rect, animated bool) {
	next := o.Shapes(r)
	if animated {
		o.from = o.current
		o.animating = true
	} else {
		o.animating = false
	}
	o.current = next
}

func (o *Overlay) FinishAnimation() { o.animating = false }

func (o *Overlay) Animating() bool { return o.animating }

// Current is the drawing at rest.
func (o *Overlay) Current() Shapes { return o.current }

// Frame returns the drawing at animation progress t in [0, 1], eased in
// and out.
func (o *Overlay) Frame(t float64) Shapes {
	if !o.animating {
		return o.current
	}
	t = math.Max(0, math.Min(1, t))
	return lerpShapes(o.from, o.current, easeInOut(t))
}

func easeInOut(t float64) float64 {
	return t * t * (3 - 2*t)
}

// Render draws s onto dst, whose origin is the overlay's origin.
func Render(dst draw.Image, s Shapes) {
	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return
	}
	area := Rect{Width: float64(w), Height: float64(h)}
	z := vector.NewRasterizer(w, h)

	outer := intersect(s.Canvas, area)
	hole := intersect(s.Hole, outer)
	addRect(z, outer, false)
	if !hole.Empty() {
		// The hole is wound the other way so it cancels out the canvas.
		addRect(z, hole, true)
	}
	z.Draw(dst, b, image.NewUniform(maskColor), image.Point{})

	z.Reset(w, h)
	addStrokedRect(z, s.Border, borderLineWidth)
	for _, c := range s.Corners {
		addSegment(z, c[0], c[1], cornerLineWidth, true)
		addSegment(z, c[1], c[2], cornerLineWidth, true)
	}
	for _, g := range s.Grid {
		addSegment(z, g[0], g[1], normalLineWidth, false)
	}
	z.Draw(dst, b, image.NewUniform(strokeColor), image.Point{})
}

func intersect(a, b Rect) Rect {
	x0 := math.Max(a.MinX(), b.MinX())
	y0 := math.Max(a.MinY(), b.MinY())
	x1 := math.Min(a.MaxX(), b.MaxX())
	y1 := math.Min(a.MaxY(), b.MaxY())
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

func addRect(z *vector.Rasterizer, r Rect, reverse bool) {
	pts := [4]Point{{r.MinX(), r.MinY()}, {r.MaxX(), r.MinY()}, {r.MaxX(), r.MaxY()}, {r.MinX(), r.MaxY()}}
	if reverse {
		pts[1], pts[3] = pts[3], pts[1]
	}
	addPolygon(z, pts[:])
}

func addPolygon(z *vector.Rasterizer, pts []Point) {
	z.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		z.LineTo(float32(p.X), float32(p.Y))
	}
	z.ClosePath()
}

func addStrokedRect(z *vector.Rasterizer, r Rect, width float64) {
	tl, tr := Point{r.MinX(), r.MinY()}, Point{r.MaxX(), r.MinY()}
	bl, br := Point{r.MinX(), r.MaxY()}, Point{r.MaxX(), r.MaxY()}
	addSegment(z, tl, tr, width, true)
	addSegment(z, tr, br, width, true)
	addSegment(z, br, bl, width, true)
	addSegment(z, bl, tl, width, true)
}

// addSegment adds a quad covering the line from a to b. Square caps extend
// it by half the width so joined segments meet without a notch.
func addSegment(z *vector.Rasterizer, a, b Point, width float64, squareCap bool) {
	d := b.Sub(a)
	length := math.Hypot(d.X, d.Y)
	if length == 0 {
		return
	}
	u := d.Scale(1 / length)
	n := Point{-u.Y, u.X}.Scale(width / 2)
	if squareCap {
		ext := u.Scale(width / 2)
		a, b = a.Sub(ext), b.Add(ext)
	}
	addPolygon(z, []Point{a.Add(n), b.Add(n), b.Sub(n), a.Sub(n)})
}
