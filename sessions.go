package main

import (
	"context"
	"image"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"clipick/clip"
	"clipick/library"
)

const (
	// sessionIdleTimeout closes crop sessions nobody has used for a while,
	// such as ones left behind by a closed tab.
	sessionIdleTimeout   = 15 * time.Minute
	sessionSweepInterval = time.Minute
)

// cropSession is one open crop view. The view itself is only touched from
// the run loop.
type cropSession struct {
	id       uuid.UUID
	asset    library.Asset
	view     *clip.View
	openedAt time.Time
	lastUsed time.Time
}

type sessionStore struct {
	clock    clock.Clock
	mu       sync.Mutex
	sessions map[uuid.UUID]*cropSession
}

func newSessionStore(c clock.Clock) *sessionStore {
	return &sessionStore{clock: c, sessions: make(map[uuid.UUID]*cropSession)}
}

func (s *sessionStore) add(sess *cropSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.lastUsed = s.clock.Now()
	s.sessions[sess.id] = sess
}

func (s *sessionStore) get(id uuid.UUID) (*cropSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if ok {
		sess.lastUsed = s.clock.Now()
	}
	return sess, ok
}

// expire removes the sessions idle for longer than timeout.
func (s *sessionStore) expire(timeout time.Duration) []*cropSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.clock.Now().Add(-timeout)
	var expired []*cropSession
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	return expired
}

func (s *sessionStore) remove(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (a *WebApp) sweepSessions() int {
	expired := a.sessions.expire(sessionIdleTimeout)
	for _, sess := range expired {
		log.Debug().
			Str("session", sess.id.String()).
			Str("asset", sess.asset.ID).
			Dur("open", a.clock.Since(sess.openedAt)).
			Msg("crop session expired")
	}
	return len(expired)
}

func (a *WebApp) sweepLoop(ctx context.Context) {
	ticker := a.clock.Ticker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sweepSessions()
		}
	}
}

func (a *WebApp) session(c *fiber.Ctx) (*cropSession, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(http.StatusBadRequest, "invalid session id")
	}
	sess, ok := a.sessions.get(id)
	if !ok {
		return nil, fiber.NewError(http.StatusNotFound, "no such crop session")
	}
	return sess, nil
}

// snapshot reads the view state on the run loop and writes it out.
func (a *WebApp) snapshot(c *fiber.Ctx, sess *cropSession) error {
	var snap clip.Snapshot
	if err := a.loop.Do(c.UserContext(), func() { snap = sess.view.Snapshot() }); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"id": sess.id, "asset": a.assetResponse(sess.asset), "view": snap})
}

func (a *WebApp) handleCropStart(c *fiber.Ctx) error {
	var request struct {
		ID     string  `json:"id"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := c.BodyParser(&request); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	asset, err := a.lookup(c, request.ID)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	img, err := a.lib.Load(ctx, asset, library.TargetOriginal)
	if err != nil {
		return err
	}

	settings := a.config.Settings
	bounds := clip.Size{Width: settings.Width, Height: settings.Height}
	if request.Width > 0 && request.Height > 0 {
		bounds = clip.Size{Width: request.Width, Height: request.Height}
	}
	sess := &cropSession{id: uuid.New(), asset: asset, openedAt: a.clock.Now()}
	logger := log.With().Str("session", sess.id.String()).Str("asset", asset.ID).Logger()

	var viewErr error
	err = a.loop.Do(ctx, func() {
		sess.view, viewErr = clip.NewView(clip.ViewConfig{
			Bounds:       bounds,
			ContentInset: settings.ContentInset,
			Margin:       settings.Margin,
			Source:       clip.Source{Pixels: img},
			Logger:       &logger,
		}, a.loop)
	})
	if err != nil {
		return err
	}
	if viewErr != nil {
		return fiber.NewError(http.StatusUnprocessableEntity, viewErr.Error())
	}
	a.sessions.add(sess)
	logger.Debug().Int("open", a.sessions.len()).Msg("crop session started")
	c.Status(http.StatusCreated)
	return a.snapshot(c, sess)
}

func (a *WebApp) handleCropState(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	return a.snapshot(c, sess)
}

func (a *WebApp) handleCropPointer(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	var request struct {
		Phase string  `json:"phase"`
		X     float64 `json:"x"`
		Y     float64 `json:"y"`
	}
	if err := c.BodyParser(&request); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	p := clip.Point{X: request.X, Y: request.Y}
	var fn func()
	switch request.Phase {
	case "down":
		fn = func() { sess.view.PointerDown(p) }
	case "move":
		fn = func() { sess.view.PointerMove(p) }
	case "up":
		fn = sess.view.PointerUp
	default:
		return fiber.NewError(http.StatusBadRequest, "unknown pointer phase "+strconv.Quote(request.Phase))
	}
	if err := a.loop.Do(c.UserContext(), fn); err != nil {
		return err
	}
	return a.snapshot(c, sess)
}

func (a *WebApp) handleCropPinch(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	var request struct {
		Phase  string  `json:"phase"`
		Factor float64 `json:"factor"`
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
	}
	if err := c.BodyParser(&request); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	var fn func()
	switch request.Phase {
	case "begin":
		fn = sess.view.PinchBegin
	case "change":
		if request.Factor <= 0 {
			return fiber.NewError(http.StatusBadRequest, "pinch factor must be positive")
		}
		fn = func() { sess.view.PinchChange(request.Factor, clip.Point{X: request.X, Y: request.Y}) }
	case "end":
		fn = sess.view.PinchEnd
	default:
		return fiber.NewError(http.StatusBadRequest, "unknown pinch phase "+strconv.Quote(request.Phase))
	}
	if err := a.loop.Do(c.UserContext(), fn); err != nil {
		return err
	}
	return a.snapshot(c, sess)
}

func (a *WebApp) handleCropRecover(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	if err := a.loop.Do(c.UserContext(), func() { sess.view.Recover() }); err != nil {
		return err
	}
	return a.snapshot(c, sess)
}

func (a *WebApp) handleCropRender(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	t := c.QueryFloat("t", 1)
	var img *image.RGBA
	if err := a.loop.Do(c.UserContext(), func() { img = sess.view.Render(t) }); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return imaging.Encode(c.Response().BodyWriter(), img, imaging.PNG)
}

type cropResult struct {
	img image.Image
	err error
}

// crop runs the view's crop and waits for it to be delivered back on the
// run loop.
func (a *WebApp) crop(ctx context.Context, sess *cropSession, useOriginal bool, width float64) (image.Image, clip.Rect, error) {
	results := make(chan cropResult, 1)
	var region clip.Rect
	err := a.loop.Do(ctx, func() {
		region = sess.view.Resizer().NormalizedCrop()
		sess.view.Crop(useOriginal, width, func(img image.Image, err error) {
			results <- cropResult{img, err}
		})
	})
	if err != nil {
		return nil, clip.Rect{}, err
	}
	select {
	case res := <-results:
		return res.img, region, res.err
	case <-ctx.Done():
		return nil, clip.Rect{}, ctx.Err()
	}
}

func (a *WebApp) handleCropConfirm(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	var request struct {
		UseOriginal bool    `json:"use_original"`
		Width       float64 `json:"width"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	img, region, err := a.crop(c.UserContext(), sess, request.UseOriginal, request.Width)
	if err != nil {
		return err
	}
	a.selection.SetEdited(sess.asset, img)
	a.mu.Lock()
	a.crops[sess.asset.ID] = region
	a.mu.Unlock()
	a.sessions.remove(sess.id)

	log.Info().
		Str("asset", sess.asset.ID).
		Stringer("crop", cropFromRect(region)).
		Dur("open", a.clock.Since(sess.openedAt)).
		Msg("photo edited")
	b := img.Bounds()
	return c.JSON(fiber.Map{
		"asset":  a.assetResponse(sess.asset),
		"crop":   cropFromRect(region),
		"width":  b.Dx(),
		"height": b.Dy(),
	})
}

func (a *WebApp) handleCropClose(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid session id")
	}
	if !a.sessions.remove(id) {
		return fiber.NewError(http.StatusNotFound, "no such crop session")
	}
	return c.SendStatus(http.StatusNoContent)
}
