// Package picker holds the multi-photo picking flow: the shared selection
// and the confirm step that turns it into images.
package picker

import (
	"context"
	"fmt"
	"image"
	"runtime"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"clipick/library"
)

// Delegate hears how picking ended.
type Delegate interface {
	DidCancel()
	// DidSelectAssets is called first on confirm with the picked photos.
	DidSelectAssets(assets []library.Asset, isOrigin bool)
	// DidSelectImages follows with the loaded images, in selection order.
	// It is not called when any image fails to load.
	DidSelectImages(images []image.Image)
}

// DelegateFuncs adapts plain funcs to a Delegate. Nil funcs are skipped.
type DelegateFuncs struct {
	Cancel       func()
	SelectAssets func([]library.Asset, bool)
	SelectImages func([]image.Image)
}

func (d DelegateFuncs) DidCancel() {
	if d.Cancel != nil {
		d.Cancel()
	}
}

func (d DelegateFuncs) DidSelectAssets(assets []library.Asset, isOrigin bool) {
	if d.SelectAssets != nil {
		d.SelectAssets(assets, isOrigin)
	}
}

func (d DelegateFuncs) DidSelectImages(images []image.Image) {
	if d.SelectImages != nil {
		d.SelectImages(images)
	}
}

// Loader fetches the pixels of a photo.
type Loader interface {
	Load(ctx context.Context, a library.Asset, target library.Target) (image.Image, error)
}

type Picker struct {
	selection *Selection
	loader    Loader
	delegate  Delegate
}

func New(selection *Selection, loader Loader, delegate Delegate) *Picker {
	if delegate == nil {
		delegate = DelegateFuncs{}
	}
	return &Picker{selection: selection, loader: loader, delegate: delegate}
}

func (p *Picker) Selection() *Selection { return p.selection }

func (p *Picker) Cancel() {
	p.delegate.DidCancel()
}

// Confirm resolves every selected photo to an image: its edit when it has
// one, otherwise the original or the preview depending on the
// original-size toggle. Loads run concurrently; the first failure aborts.
func (p *Picker) Confirm(ctx context.Context) ([]image.Image, error) {
	assets := p.selection.Assets()
	isOrigin := p.selection.IsOrigin()
	p.delegate.DidSelectAssets(assets, isOrigin)

	target := library.TargetPreview
	if isOrigin {
		target = library.TargetOriginal
	}

	images := make([]image.Image, len(assets))
	pl := pool.New().WithErrors().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(runtime.NumCPU())
	for i, a := range assets {
		if img, ok := p.selection.Edited(a.ID); ok {
			images[i] = img
			continue
		}
		pl.Go(func(ctx context.Context) error {
			img, err := p.loader.Load(ctx, a, target)
			if err != nil {
				return fmt.Errorf("load %s of %s: %w", target, a.ID, err)
			}
			images[i] = img
			return nil
		})
	}
	if err := pl.Wait(); err != nil {
		log.Ctx(ctx).Error().Err(err).Int("count", len(assets)).Msg("failed to load picked photos")
		return nil, err
	}

	log.Ctx(ctx).Info().Int("count", len(images)).Bool("origin", isOrigin).Msg("photos picked")
	p.delegate.DidSelectImages(images)
	return images, nil
}
