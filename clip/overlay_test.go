package clip

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverlay_Shapes(t *testing.T) {
	o := NewOverlay(Size{Width: 400, Height: 600})
	s := o.Shapes(R(100, 200, 90, 60))

	assert.Equal(t, R(-800, -800, 2000, 2200), s.Canvas)
	assert.Equal(t, R(100, 200, 90, 60), s.Hole)
	assert.Equal(t, s.Hole, s.Border)

	half := cornerLineWidth / 2
	assert.Equal(t, [3]Point{{100 - half, 200 - half + 20}, {100 - half, 200 - half}, {100 - half + 20, 200 - half}}, s.Corners[CornerLeftTop])
	assert.Equal(t, Point{190 + half, 260 + half}, s.Corners[CornerRightBottom][1])

	assert.Equal(t, [2]Point{{100, 220}, {190, 220}}, s.Grid[0])
	assert.Equal(t, [2]Point{{100, 240}, {190, 240}}, s.Grid[1])
	assert.Equal(t, [2]Point{{130, 200}, {130, 260}}, s.Grid[2])
	assert.Equal(t, [2]Point{{160, 200}, {160, 260}}, s.Grid[3])
}

func TestOverlay_AnimatedUpdate(t *testing.T) {
	o := NewOverlay(Size{Width: 400, Height: 600})
	from := R(100, 100, 100, 100)
	to := R(0, 0, 300, 300)
	o.Update(from, false)
	assert.False(t, o.Animating())

	o.Update(to, true)
	assert.True(t, o.Animating())
	assert.Equal(t, to, o.Current().Hole, "the resting drawing is the target")
	assert.Equal(t, from, o.Frame(0).Hole)
	assert.Equal(t, R(50, 50, 200, 200), o.Frame(0.5).Hole)
	assert.Equal(t, to, o.Frame(1).Hole)
	assert.Equal(t, to, o.Frame(7).Hole)

	o.FinishAnimation()
	assert.Equal(t, to, o.Frame(0).Hole)
}

func TestShapes_Translate(t *testing.T) {
	o := NewOverlay(Size{Width: 100, Height: 100})
	s := o.Shapes(R(10, 10, 50, 50))
	moved := s.Translate(Point{X: 5, Y: -5})

	assert.Equal(t, R(15, 5, 50, 50), moved.Hole)
	assert.Equal(t, s.Corners[CornerLeftTop][1].Add(Point{X: 5, Y: -5}), moved.Corners[CornerLeftTop][1])
	assert.Equal(t, R(10, 10, 50, 50), s.Hole, "the receiver is left alone")
}

func TestRender(t *testing.T) {
	o := NewOverlay(Size{Width: 200, Height: 200})
	dst := image.NewRGBA(image.Rect(0, 0, 200, 200))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	Render(dst, o.Shapes(R(50, 50, 100, 100)))

	outside := dst.RGBAAt(10, 10)
	assert.InDelta(t, 0x7f, int(outside.R), 2, "masked area is dimmed")
	assert.Equal(t, uint8(0xff), outside.A)

	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, dst.RGBAAt(70, 90), "hole is left untouched")

	// A dark image makes the strokes show up. The half pixel offset lines
	// the one pixel border up with a pixel row.
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	Render(dst, o.Shapes(R(50.5, 50.5, 100, 100)))
	assert.Equal(t, uint8(0xff), dst.RGBAAt(48, 48).R, "corner bracket")
	assert.Equal(t, uint8(0xff), dst.RGBAAt(100, 50).R, "border")
	assert.Equal(t, uint8(0), dst.RGBAAt(70, 70).R, "between grid lines")
}

func TestRender_EmptyDestination(t *testing.T) {
	o := NewOverlay(Size{Width: 10, Height: 10})
	assert.NotPanics(t, func() {
		Render(image.NewRGBA(image.Rectangle{}), o.Shapes(R(1, 1, 5, 5)))
	})
}
