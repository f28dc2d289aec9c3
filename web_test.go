package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipick/library"
)

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, imaging.Save(image.NewNRGBA(image.Rect(0, 0, w, h)), path))
}

type testApp struct {
	*WebApp
	srv       *fiber.App
	clock     *clock.Mock
	saved     chan Operations
	cancelled bool
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "c.jpg"), 40, 30)
	writeImage(t, filepath.Join(root, "trip", "a.jpg"), 400, 300)
	writeImage(t, filepath.Join(root, "trip", "b.jpg"), 40, 30)

	settings := defaultSettings(root)
	settings.MaxSelectCount = 2
	lib, err := library.NewManager(settings.libraryOptions(root))
	require.NoError(t, err)

	ta := &testApp{clock: clock.NewMock(), saved: make(chan Operations, 1)}
	ta.WebApp = NewWebApp(Config{
		RootDir:  root,
		Settings: settings,
		Library:  lib,
		Clock:    ta.clock,
		OnSave:   func(ops Operations) { ta.saved <- ops },
		OnCancel: func() { ta.cancelled = true },
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ta.loop.Run(ctx)
	ta.srv = ta.newServer()
	return ta
}

// call sends body as JSON and decodes the response into out when given.
func (ta *testApp) call(t *testing.T, method, path string, body, out any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ta.srv.Test(req, -1)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

type selectionBody struct {
	Selected []struct {
		ID       string `json:"id"`
		Selected int    `json:"selected_index"`
		Edited   bool   `json:"edited"`
	} `json:"selected"`
	IsOrigin bool `json:"is_origin"`
	MaxCount int  `json:"max_count"`
}

func TestWebApp_Albums(t *testing.T) {
	ta := newTestApp(t)

	var body struct {
		Albums []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Kind     string `json:"kind"`
			Count    int    `json:"count"`
			CoverURL string `json:"cover_url"`
		} `json:"albums"`
	}
	resp := ta.call(t, http.MethodGet, "/api/albums", nil, &body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Albums, 2)
	assert.Equal(t, "All Photos", body.Albums[0].Name)
	assert.Equal(t, "smart", body.Albums[0].Kind)
	assert.Equal(t, 3, body.Albums[0].Count)
	assert.Equal(t, "trip", body.Albums[1].Name)
	assert.Equal(t, 2, body.Albums[1].Count)
	assert.NotEmpty(t, body.Albums[1].CoverURL)

	var assets struct {
		Assets []assetResponse `json:"assets"`
	}
	resp = ta.call(t, http.MethodGet, "/api/assets?album=trip", nil, &assets)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, assets.Assets, 2)
	assert.Equal(t, 400, assets.Assets[0].Width)
	assert.Equal(t, -1, assets.Assets[0].Selected)

	resp = ta.call(t, http.MethodGet, "/api/assets/thumbnail?id=trip/a.jpg", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

	resp = ta.call(t, http.MethodGet, "/api/assets/preview?id=nope.jpg", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebApp_SelectionLimit(t *testing.T) {
	ta := newTestApp(t)

	var sel selectionBody
	for _, id := range []string{"trip/b.jpg", "c.jpg"} {
		resp := ta.call(t, http.MethodPost, "/api/selection/toggle", fiber.Map{"id": id}, &sel)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	require.Len(t, sel.Selected, 2)
	assert.Equal(t, "trip/b.jpg", sel.Selected[0].ID)
	assert.Equal(t, 1, sel.Selected[1].Selected)
	assert.Equal(t, 2, sel.MaxCount)

	resp := ta.call(t, http.MethodPost, "/api/selection/toggle", fiber.Map{"id": "trip/a.jpg"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ta.call(t, http.MethodPost, "/api/selection/toggle", fiber.Map{"id": "missing.jpg"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ta.call(t, http.MethodPost, "/api/selection/toggle", fiber.Map{"id": "trip/b.jpg"}, &sel)
	require.Len(t, sel.Selected, 1)
	assert.Equal(t, 0, sel.Selected[0].Selected)

	ta.call(t, http.MethodPost, "/api/selection/origin", fiber.Map{"is_origin": true}, &sel)
	assert.True(t, sel.IsOrigin)

	ta.call(t, http.MethodDelete, "/api/selection", nil, &sel)
	assert.Empty(t, sel.Selected)
	assert.True(t, sel.IsOrigin)
}

func TestWebApp_CropAndConfirm(t *testing.T) {
	ta := newTestApp(t)
	for _, id := range []string{"c.jpg", "trip/a.jpg"} {
		resp := ta.call(t, http.MethodPost, "/api/selection/toggle", fiber.Map{"id": id}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	var session struct {
		ID   string `json:"id"`
		View struct {
			State      string `json:"state"`
			CanRecover bool   `json:"can_recover"`
		} `json:"view"`
	}
	resp := ta.call(t, http.MethodPost, "/api/crop", fiber.Map{"id": "trip/a.jpg"}, &session)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, session.ID)
	assert.Equal(t, "idle", session.View.State)
	assert.False(t, session.View.CanRecover)

	base := "/api/crop/" + session.ID
	resp = ta.call(t, http.MethodGet, base+"/overlay.png?t=0.5", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp = ta.call(t, http.MethodPost, base+"/pointer", fiber.Map{"phase": "sideways"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = ta.call(t, http.MethodPost, base+"/pinch", fiber.Map{"phase": "change", "factor": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var edited struct {
		Width  int  `json:"width"`
		Height int  `json:"height"`
		Crop   Crop `json:"crop"`
	}
	resp = ta.call(t, http.MethodPost, base+"/confirm", fiber.Map{"use_original": true}, &edited)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 400, edited.Width)
	assert.Equal(t, 300, edited.Height)
	assert.True(t, edited.Crop.Full())

	resp = ta.call(t, http.MethodGet, base, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "confirming closes the session")

	var sel selectionBody
	ta.call(t, http.MethodGet, "/api/selection", nil, &sel)
	require.Len(t, sel.Selected, 2)
	assert.False(t, sel.Selected[0].Edited)
	assert.True(t, sel.Selected[1].Edited)

	resp = ta.call(t, http.MethodGet, "/api/assets/thumbnail?id=trip/a.jpg", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var confirmed struct {
		Count      int         `json:"count"`
		Operations []Operation `json:"operations"`
	}
	resp = ta.call(t, http.MethodPost, "/api/confirm", nil, &confirmed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, confirmed.Count)
	require.Len(t, confirmed.Operations, 2)
	require.NotNil(t, confirmed.Operations[0].Pick)
	assert.Equal(t, "c.jpg", confirmed.Operations[0].Pick.Filename)
	require.NotNil(t, confirmed.Operations[1].Crop)
	assert.Equal(t, "trip/a.jpg", confirmed.Operations[1].Crop.Filename)

	saved := <-ta.saved
	assert.Equal(t, confirmed.Operations, saved)
}

func TestWebApp_Sessions(t *testing.T) {
	ta := newTestApp(t)

	resp := ta.call(t, http.MethodGet, "/api/crop/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = ta.call(t, http.MethodGet, "/api/crop/8f5c7d9e-6b0a-4c2e-9a51-2f4d3b1e0c7a", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var session struct {
		ID string `json:"id"`
	}
	resp = ta.call(t, http.MethodPost, "/api/crop", fiber.Map{"id": "c.jpg", "width": 410, "height": 800}, &session)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, ta.sessions.len())

	var state struct {
		View struct {
			Bounds struct {
				Width float64 `json:"width"`
			} `json:"bounds"`
			State string `json:"state"`
		} `json:"view"`
	}
	resp = ta.call(t, http.MethodPost, "/api/crop/"+session.ID+"/recover", nil, &state)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 410.0, state.View.Bounds.Width)
	assert.Equal(t, "idle", state.View.State)

	resp = ta.call(t, http.MethodDelete, "/api/crop/"+session.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, ta.sessions.len())
	resp = ta.call(t, http.MethodDelete, "/api/crop/"+session.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebApp_IdleSessionsExpire(t *testing.T) {
	ta := newTestApp(t)

	var session struct {
		ID string `json:"id"`
	}
	resp := ta.call(t, http.MethodPost, "/api/crop", fiber.Map{"id": "c.jpg"}, &session)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	path := "/api/crop/" + session.ID

	ta.clock.Add(sessionIdleTimeout - time.Minute)
	resp = ta.call(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ta.clock.Add(sessionIdleTimeout - time.Minute)
	assert.Zero(t, ta.sweepSessions(), "using a session keeps it open")
	assert.Equal(t, 1, ta.sessions.len())

	ta.clock.Add(2 * time.Minute)
	assert.Equal(t, 1, ta.sweepSessions())
	assert.Zero(t, ta.sessions.len())
	resp = ta.call(t, http.MethodGet, path, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebApp_ConfirmAndCancel(t *testing.T) {
	ta := newTestApp(t)

	resp := ta.call(t, http.MethodPost, "/api/confirm", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ta.call(t, http.MethodPost, "/api/cancel", nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, ta.cancelled)

	resp = ta.call(t, http.MethodPost, "/api/save", fiber.Map{
		"operations": []fiber.Map{{"type": "pick", "filename": "c.jpg"}},
	}, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	saved := <-ta.saved
	require.Len(t, saved, 1)
	assert.Equal(t, "c.jpg", saved[0].Filename())
}
