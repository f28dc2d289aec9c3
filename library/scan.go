package library

import (
	"context"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

var extensions = []string{".jpg", ".jpeg", ".png"}

func isImage(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (m *Manager) skipDir(dir string) bool {
	return strings.HasPrefix(filepath.Base(dir), ".") || m.exclude[filepath.Clean(dir)]
}

// scan collects the photos under dir, oldest first.
func (m *Manager) scan(ctx context.Context, dir string) ([]Asset, error) {
	var assets []Asset
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && m.skipDir(p) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isImage(p) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get file info: %w", err)
		}
		a, err := m.newAsset(ctx, p, info)
		if err != nil {
			return err
		}
		assets = append(assets, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sortAssets(assets)
	return assets, nil
}

func (m *Manager) newAsset(ctx context.Context, p string, info fs.FileInfo) (Asset, error) {
	rel, err := filepath.Rel(m.root, p)
	if err != nil {
		return Asset{}, fmt.Errorf("failed to get relative path: %w", err)
	}
	id := filepath.ToSlash(rel)
	a := Asset{
		ID:         id,
		Album:      path.Dir(id),
		Name:       info.Name(),
		SizeBytes:  info.Size(),
		ModifiedAt: info.ModTime(),
	}
	w, h, err := readDimensions(p)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("asset", id).Msg("cannot read image dimensions")
		return a, nil
	}
	a.Width, a.Height = w, h
	return a, nil
}

// readDimensions reads only the image header.
func readDimensions(p string) (width, height int, err error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}
