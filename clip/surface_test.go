package clip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitFrame(t *testing.T) {
	bounds := R(10, 20, 300, 600)
	cases := []struct {
		name string
		in   Rect
		want Rect
	}{
		{"landscape fills width", R(0, 0, 200, 100), R(10, 245, 300, 150)},
		{"square fills width", R(50, 50, 80, 80), R(10, 170, 300, 300)},
		{"portrait fills height", R(0, 0, 100, 400), R(85, 20, 150, 600)},
		{"tall portrait narrower than bounds", R(0, 0, 10, 100), R(130, 20, 60, 600)},
		{"wide portrait capped by width", R(0, 0, 90, 100), R(10, 153.33333333333334, 300, 333.3333333333333)},
		{"degenerate returns bounds", R(0, 0, 0, 10), bounds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FitFrame(tc.in, bounds)
			assert.True(t, got.ApproxEqual(tc.want, 1e-9), "got %v want %v", got, tc.want)
			assert.True(t, bounds.ContainsRect(got, 1e-9))
		})
	}
}

func TestFitFrame_LandscapeCappedByHeight(t *testing.T) {
	got := FitFrame(R(0, 0, 200, 100), R(0, 0, 300, 100))
	assert.True(t, got.ApproxEqual(R(50, 0, 200, 100), 1e-9), "got %v", got)
}

func TestFrameForContent(t *testing.T) {
	f := FrameForContent(Size{Width: 4000, Height: 3000}, Size{Width: 410, Height: 800}, 30)
	assert.InDelta(t, 350, f.Width, eps)
	assert.InDelta(t, 262.5, f.Height, eps)
	assert.InDelta(t, 30, f.X, eps)

	f = FrameForContent(Size{Width: 1000, Height: 4000}, Size{Width: 410, Height: 800}, 30)
	assert.InDelta(t, 740, f.Height, eps)
	assert.InDelta(t, 185, f.Width, eps)
	assert.InDelta(t, 30, f.Y, eps)

	assert.Equal(t, Rect{}, FrameForContent(Size{}, Size{Width: 410, Height: 800}, 30))
}

func TestSurface_NewCentersImage(t *testing.T) {
	s := NewSurface(Size{Width: 400, Height: 800}, Size{Width: 300, Height: 200})
	assert.Equal(t, R(50, 300, 300, 200), s.ImageFrame())
	assert.Equal(t, Insets{Top: 300, Left: 50, Bottom: 300, Right: 50}, s.ContentInset())
	assert.Equal(t, R(0, 0, 300, 200), s.ToImage(R(50, 300, 300, 200)))
}

func TestSurface_MinZoomScale(t *testing.T) {
	s := NewSurface(Size{Width: 400, Height: 800}, Size{Width: 300, Height: 200})
	assert.InDelta(t, 1, s.MinZoomScale(Size{Width: 300, Height: 200}), eps)
	assert.InDelta(t, 2, s.MinZoomScale(Size{Width: 600, Height: 100}), eps)
	assert.InDelta(t, 1.5, s.MinZoomScale(Size{Width: 300, Height: 300}), eps, "square needs the height covered")
	assert.InDelta(t, 2, s.MinZoomScale(Size{Width: 100, Height: 400}), eps)
	assert.InDelta(t, 2, s.MinZoomScale(Size{Width: 600, Height: 350}), eps)
}

func TestSurface_SetZoomScaleKeepsAnchor(t *testing.T) {
	s := NewSurface(Size{Width: 400, Height: 800}, Size{Width: 300, Height: 200})
	anchor := Point{X: 120, Y: 350}
	before := s.ToImagePoint(anchor)

	s.SetZoomScale(3, anchor)
	assert.InDelta(t, 3, s.ZoomScale(), eps)
	after := s.ToImagePoint(anchor)
	assert.InDelta(t, before.X, after.X, eps)
	assert.InDelta(t, before.Y, after.Y, eps)

	s.SetZoomScale(0.1, anchor)
	assert.InDelta(t, 1, s.ZoomScale(), eps, "clamped to the minimum")
}

func TestSurface_ZoomToCentersRegion(t *testing.T) {
	s := NewSurface(Size{Width: 400, Height: 800}, Size{Width: 300, Height: 200})
	s.SetContentInset(Insets{})
	s.ZoomTo(R(100, 50, 100, 100))

	assert.InDelta(t, 4, s.ZoomScale(), eps)
	r := s.FromImage(R(100, 50, 100, 100))
	assert.InDelta(t, 0, r.X, eps)
	assert.InDelta(t, 200, r.Y, eps)
	assert.InDelta(t, 400, r.Width, eps)
}

func TestSurface_ClampOffset(t *testing.T) {
	s := NewSurface(Size{Width: 400, Height: 800}, Size{Width: 300, Height: 200})
	s.SetContentInset(Insets{Top: 10, Left: 20, Bottom: 30, Right: 40})

	s.SetContentOffset(Point{X: -1000, Y: -1000})
	s.ClampOffset()
	assert.Equal(t, Point{X: -20, Y: -10}, s.ContentOffset())

	// The content is smaller than the bounds, so the upper limit collapses
	// onto the lower one.
	s.SetContentOffset(Point{X: 1000, Y: 1000})
	s.ClampOffset()
	assert.Equal(t, Point{X: -20, Y: -10}, s.ContentOffset())

	s.SetZoomScale(4, Point{})
	s.SetContentOffset(Point{X: 1000, Y: 1000})
	s.ClampOffset()
	assert.Equal(t, Point{X: 1200 - 400 + 40, Y: 800 - 800 + 30}, s.ContentOffset())
}

type recordingObserver struct{ events []string }

func (o *recordingObserver) SurfaceWillBeginInteraction(*Surface) { o.events = append(o.events, "begin") }
func (o *recordingObserver) SurfaceDidEndInteraction(*Surface)    { o.events = append(o.events, "end") }

func TestSurface_GesturesNotifyObservers(t *testing.T) {
	s := NewSurface(Size{Width: 400, Height: 800}, Size{Width: 300, Height: 200})
	obs := &recordingObserver{}
	s.Observe(obs)

	s.Pan(Point{X: 10})
	assert.Equal(t, R(50, 300, 300, 200), s.ImageFrame(), "pan without begin is ignored")

	s.BeginPan()
	s.BeginPan()
	require.True(t, s.Interacting())
	s.Pan(Point{X: 30, Y: -20})
	assert.Equal(t, R(80, 280, 300, 200), s.ImageFrame())
	s.EndPan()
	assert.False(t, s.Interacting())
	assert.Equal(t, R(50, 300, 300, 200), s.ImageFrame(), "bounced back into the inset range")

	s.BeginZoom()
	s.ZoomBy(0.5, Point{X: 200, Y: 400})
	assert.InDelta(t, 0.5, s.ZoomScale(), eps, "may shrink below the minimum while pinching")
	s.EndZoom()
	assert.InDelta(t, 1, s.ZoomScale(), eps)

	assert.Equal(t, []string{"begin", "end", "begin", "end"}, obs.events)
}
