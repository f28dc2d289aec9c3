package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/rs/zerolog/log"

	"clipick/clip"
	"clipick/library"
	"clipick/picker"
	"clipick/runloop"
)

//go:embed static
var staticFS embed.FS
var isDebug = os.Getenv("DEBUG") == "1"

type Config struct {
	RootDir          string
	Settings         Settings
	Library          *library.Manager
	OnBeforeShutdown func()
	OnReady          func(addr string)
	OnSave           func(ops Operations)
	OnCancel         func()
	// Clock drives session expiry, the wall clock when nil.
	Clock clock.Clock
}

type WebApp struct {
	config    Config
	lib       *library.Manager
	loop      *runloop.Loop
	clock     clock.Clock
	selection *picker.Selection
	picker    *picker.Picker
	sessions  *sessionStore

	mu    sync.Mutex
	crops map[string]clip.Rect

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

func NewWebApp(config Config) *WebApp {
	c := config.Clock
	if c == nil {
		c = clock.New()
	}
	a := &WebApp{
		config:     config,
		lib:        config.Library,
		loop:       runloop.NewWithClock(256, c),
		clock:      c,
		selection:  picker.NewSelection(config.Settings.MaxSelectCount),
		sessions:   newSessionStore(c),
		crops:      make(map[string]clip.Rect),
		shutdownCh: make(chan struct{}),
	}
	a.picker = picker.New(a.selection, a.lib, picker.DelegateFuncs{
		Cancel: func() {
			log.Info().Msg("picking cancelled")
			if fn := a.config.OnCancel; fn != nil {
				fn()
			}
		},
		SelectAssets: func(assets []library.Asset, isOrigin bool) {
			log.Info().Int("count", len(assets)).Bool("origin", isOrigin).Msg("assets selected")
		},
	})
	a.selection.Subscribe(func(ev picker.Event) {
		if ev.Kind == picker.EventSelectionChanged {
			log.Debug().Int("selected", len(ev.Selected)).Msg("selection changed")
		}
	})
	return a
}

func (a *WebApp) Shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdownCh)
	})
}

func (a *WebApp) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := a.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Ctx(ctx).Error().Err(err).Msg("run loop stopped")
		}
	}()

	go a.sweepLoop(ctx)

	webapp := a.newServer()

	webapp.Hooks().OnListen(func(listen fiber.ListenData) error {
		if fn := a.config.OnReady; fn != nil {
			fn(fmt.Sprintf("http://%s:%s", listen.Host, listen.Port))
		}
		return nil
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-a.shutdownCh:
		}
		if fn := a.config.OnBeforeShutdown; fn != nil {
			fn()
		}
		if err := webapp.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to shutdown web application")
		}
	}()

	// Let the OS assign a random available port
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", 0))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if err := webapp.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func (a *WebApp) newServer() *fiber.App {
	webapp := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			err = httpError(err)
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				if fiberErr.Code == http.StatusNotFound && c.Path() == "/favicon.ico" {
					return nil
				}
				log.Ctx(c.Context()).Warn().
					Err(err).
					Str("path", c.Path()).
					Str("method", c.Method()).
					Msg("Request rejected")
				return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
			}
			log.Ctx(c.Context()).Error().
				Err(err).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("Request failed")
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		},
	})

	api := webapp.Group("/api")
	api.Get("/albums", a.handleAlbums)
	api.Get("/assets", a.handleAssets)
	api.Get("/assets/thumbnail", a.handleImage(library.TargetThumbnail))
	api.Get("/assets/preview", a.handleImage(library.TargetPreview))
	api.Get("/view", a.handleView)

	api.Get("/selection", a.handleSelection)
	api.Post("/selection/toggle", a.handleToggle)
	api.Post("/selection/origin", a.handleOrigin)
	api.Delete("/selection", a.handleClearSelection)

	api.Post("/crop", a.handleCropStart)
	api.Get("/crop/:id", a.handleCropState)
	api.Post("/crop/:id/pointer", a.handleCropPointer)
	api.Post("/crop/:id/pinch", a.handleCropPinch)
	api.Post("/crop/:id/recover", a.handleCropRecover)
	api.Get("/crop/:id/overlay.png", a.handleCropRender)
	api.Post("/crop/:id/confirm", a.handleCropConfirm)
	api.Delete("/crop/:id", a.handleCropClose)

	api.Post("/confirm", a.handleConfirm)
	api.Post("/cancel", func(c *fiber.Ctx) error {
		a.picker.Cancel()
		return c.SendStatus(http.StatusNoContent)
	})
	api.Post("/save", func(c *fiber.Ctx) error {
		var request struct {
			Operations []Operation `json:"operations"`
		}
		if err := c.BodyParser(&request); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		a.save(request.Operations)
		return c.SendStatus(http.StatusNoContent)
	})
	api.Post("/shutdown", func(c *fiber.Ctx) error {
		a.Shutdown()
		return nil
	})

	if isDebug {
		log.Debug().Msg("Debug mode enabled, serving static files from './static' directory")
		webapp.Static("/", "static")
	} else {
		webapp.Use("/", filesystem.New(filesystem.Config{
			Root:       http.FS(staticFS),
			PathPrefix: "/static",
		}))
	}
	return webapp
}

// httpError maps domain errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, library.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, library.ErrDenied):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, picker.ErrLimitReached), errors.Is(err, clip.ErrInteracting):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, clip.ErrNoSource), errors.Is(err, clip.ErrDegenerateRegion):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, library.ErrCancelled):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	}
	return err
}

func (a *WebApp) save(ops Operations) {
	if fn := a.config.OnSave; fn != nil {
		fn(ops)
	}
}

func assetURL(path, id string) string {
	return "/api/" + path + "?id=" + url.QueryEscape(id)
}

type assetResponse struct {
	library.Asset
	Selected  int    `json:"selected_index"`
	Edited    bool   `json:"edited"`
	Thumbnail string `json:"thumbnail_url"`
	Preview   string `json:"preview_url"`
	URL       string `json:"url"`
}

func (a *WebApp) assetResponse(asset library.Asset) assetResponse {
	_, edited := a.selection.Edited(asset.ID)
	return assetResponse{
		Asset:     asset,
		Selected:  a.selection.Index(asset.ID),
		Edited:    edited,
		Thumbnail: assetURL("assets/thumbnail", asset.ID),
		Preview:   assetURL("assets/preview", asset.ID),
		URL:       assetURL("view", asset.ID),
	}
}

func (a *WebApp) handleAlbums(c *fiber.Ctx) error {
	albums, err := a.lib.Albums(c.UserContext())
	if err != nil {
		return fmt.Errorf("failed to list albums: %w", err)
	}
	type albumResponse struct {
		library.Album
		CoverURL string `json:"cover_url,omitempty"`
	}
	out := make([]albumResponse, len(albums))
	for i, al := range albums {
		out[i].Album = al
		if al.Cover != nil {
			out[i].CoverURL = assetURL("assets/thumbnail", al.Cover.ID)
		}
	}
	return c.JSON(fiber.Map{"albums": out})
}

func (a *WebApp) handleAssets(c *fiber.Ctx) error {
	album := c.Query("album", library.RootAlbumID)
	assets, err := a.lib.Assets(c.UserContext(), album)
	if err != nil {
		return err
	}
	out := make([]assetResponse, len(assets))
	for i, asset := range assets {
		out[i] = a.assetResponse(asset)
	}
	return c.JSON(fiber.Map{"album": album, "assets": out})
}

func (a *WebApp) lookup(c *fiber.Ctx, id string) (library.Asset, error) {
	if id == "" {
		return library.Asset{}, fiber.NewError(http.StatusBadRequest, "missing asset id")
	}
	return a.lib.Asset(c.UserContext(), id)
}

func (a *WebApp) handleImage(target library.Target) fiber.Handler {
	return func(c *fiber.Ctx) error {
		asset, err := a.lookup(c, c.Query("id"))
		if err != nil {
			return err
		}
		img, ok := a.selection.Edited(asset.ID)
		switch {
		case ok && target == library.TargetThumbnail:
			size := a.config.Settings.ThumbSize
			img = imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)
		case !ok:
			img, err = a.lib.Load(c.UserContext(), asset, target)
			if err != nil {
				return err
			}
		}
		c.Set(fiber.HeaderContentType, "image/jpeg")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		return imaging.Encode(c.Response().BodyWriter(), img, imaging.JPEG, imaging.JPEGQuality(85))
	}
}

func (a *WebApp) handleView(c *fiber.Ctx) error {
	asset, err := a.lookup(c, c.Query("id"))
	if err != nil {
		return err
	}
	return c.SendFile(a.lib.Path(asset))
}

func (a *WebApp) selectionState() fiber.Map {
	assets := a.selection.Assets()
	out := make([]assetResponse, len(assets))
	for i, asset := range assets {
		out[i] = a.assetResponse(asset)
	}
	return fiber.Map{
		"selected":  out,
		"is_origin": a.selection.IsOrigin(),
		"max_count": a.selection.MaxCount(),
	}
}

func (a *WebApp) handleSelection(c *fiber.Ctx) error {
	return c.JSON(a.selectionState())
}

func (a *WebApp) handleToggle(c *fiber.Ctx) error {
	var request struct {
		ID string `json:"id"`
	}
	if err := c.BodyParser(&request); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	asset, err := a.lookup(c, request.ID)
	if err != nil {
		return err
	}
	if _, err := a.selection.Toggle(asset); err != nil {
		return err
	}
	return c.JSON(a.selectionState())
}

func (a *WebApp) handleOrigin(c *fiber.Ctx) error {
	var request struct {
		IsOrigin bool `json:"is_origin"`
	}
	if err := c.BodyParser(&request); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	a.selection.SetOrigin(request.IsOrigin)
	return c.JSON(a.selectionState())
}

func (a *WebApp) handleClearSelection(c *fiber.Ctx) error {
	a.selection.Clear()
	a.mu.Lock()
	a.crops = make(map[string]clip.Rect)
	a.mu.Unlock()
	return c.JSON(a.selectionState())
}

// operations turns the selection into what gets written: edited photos are
// cropped from the full resolution file, the rest copied.
func (a *WebApp) operations() Operations {
	a.mu.Lock()
	defer a.mu.Unlock()
	var ops Operations
	for _, asset := range a.selection.Assets() {
		if r, ok := a.crops[asset.ID]; ok {
			ops = append(ops, Operation{Crop: &CropOperation{Filename: asset.ID, Crop: cropFromRect(r)}})
			continue
		}
		ops = append(ops, Operation{Pick: &PickOperation{Filename: asset.ID}})
	}
	return ops
}

func (a *WebApp) handleConfirm(c *fiber.Ctx) error {
	if a.selection.Len() == 0 {
		return fiber.NewError(http.StatusBadRequest, "nothing selected")
	}
	images, err := a.picker.Confirm(c.UserContext())
	if err != nil {
		return err
	}
	ops := a.operations()
	a.save(ops)
	return c.JSON(fiber.Map{"count": len(images), "operations": ops})
}
