package library

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"time"

	"github.com/disintegration/imaging"
	"github.com/segmentio/ksuid"
)

// Target is the kind of image a request asks for.
type Target int

const (
	// TargetThumbnail is a square crop filling ThumbSize on both sides.
	TargetThumbnail Target = iota
	// TargetPreview is scaled by the PreviewSize rules.
	TargetPreview
	// TargetOriginal is the full resolution photo.
	TargetOriginal
)

func (t Target) String() string {
	switch t {
	case TargetThumbnail:
		return "thumbnail"
	case TargetPreview:
		return "preview"
	case TargetOriginal:
		return "original"
	default:
		return fmt.Sprintf("target(%d)", int(t))
	}
}

// Request is an image load in flight.
type Request struct {
	ID     ksuid.KSUID
	Asset  Asset
	Target Target

	cancel context.CancelFunc
	done   chan struct{}
	img    image.Image
	err    error
}

// Done is closed once the result is ready.
func (r *Request) Done() <-chan struct{} { return r.done }

// Wait blocks until the image is loaded or ctx ends.
func (r *Request) Wait(ctx context.Context) (image.Image, error) {
	select {
	case <-r.done:
		return r.img, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Request) Cancel() { r.cancel() }

type thumbEntry struct {
	modified time.Time
	img      image.Image
}

// Request starts loading an image of asset a. done, when not nil, is called
// with the result on the manager's scheduler. A cancelled request completes
// with ErrCancelled.
func (m *Manager) Request(ctx context.Context, a Asset, target Target, done func(image.Image, error)) *Request {
	rctx, cancel := context.WithCancel(ctx)
	req := &Request{
		ID:     ksuid.New(),
		Asset:  a,
		Target: target,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.mu.Lock()
	m.requests[req.ID] = req
	m.mu.Unlock()

	go func() {
		img, err := m.fetch(rctx, req)
		if err == nil && rctx.Err() != nil {
			img, err = nil, rctx.Err()
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			m.log.Debug().Stringer("request", req.ID).Str("asset", a.ID).Stringer("target", target).Msg("request cancelled")
			err = fmt.Errorf("%s of %s: %w", target, a.ID, ErrCancelled)
		} else if err != nil {
			m.log.Error().Err(err).Str("asset", a.ID).Stringer("target", target).Msg("image request failed")
		}
		m.finish(req, img, err, done)
	}()
	return req
}

func (m *Manager) RequestThumbnail(ctx context.Context, a Asset, done func(image.Image, error)) *Request {
	return m.Request(ctx, a, TargetThumbnail, done)
}

func (m *Manager) RequestPreview(ctx context.Context, a Asset, done func(image.Image, error)) *Request {
	return m.Request(ctx, a, TargetPreview, done)
}

func (m *Manager) RequestOriginal(ctx context.Context, a Asset, done func(image.Image, error)) *Request {
	return m.Request(ctx, a, TargetOriginal, done)
}

// Load requests an image and waits for it.
func (m *Manager) Load(ctx context.Context, a Asset, target Target) (image.Image, error) {
	return m.Request(ctx, a, target, nil).Wait(ctx)
}

// Cancel stops the request with the given ID. It returns false when the
// request has already completed.
func (m *Manager) Cancel(id ksuid.KSUID) bool {
	m.mu.Lock()
	req, ok := m.requests[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	req.Cancel()
	return true
}

// Pending returns the number of requests that have not completed.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *Manager) finish(req *Request, img image.Image, err error, done func(image.Image, error)) {
	m.mu.Lock()
	delete(m.requests, req.ID)
	m.mu.Unlock()
	req.cancel()

	req.img, req.err = img, err
	close(req.done)
	if done == nil {
		return
	}
	if m.sched != nil {
		m.sched.Post(func() { done(img, err) })
		return
	}
	done(img, err)
}

func (m *Manager) fetch(ctx context.Context, req *Request) (image.Image, error) {
	a := req.Asset
	if req.Target == TargetThumbnail {
		if e, ok := m.thumbs.Get(a.ID); ok && e.modified.Equal(a.ModifiedAt) {
			return e.img, nil
		}
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer m.sem.Release(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := imaging.Open(m.Path(a), imaging.AutoOrientation(true))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("asset %q: %w", a.ID, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("decode %s: %w", a.ID, err)
	}
	switch req.Target {
	case TargetThumbnail:
		thumb := imaging.Fill(src, m.thumbSize, m.thumbSize, imaging.Center, imaging.Lanczos)
		m.thumbs.Add(a.ID, thumbEntry{modified: a.ModifiedAt, img: thumb})
		return thumb, nil
	case TargetPreview:
		return preview(src, m.previewStandard), nil
	default:
		return src, nil
	}
}
