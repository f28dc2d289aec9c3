package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"clipick/clip"
	"clipick/library"
	"clipick/picker"
)

const settingsFile = "clipick.yaml"

// Settings are the picker options read from clipick.yaml in the library
// root. Command line flags override them.
type Settings struct {
	MaxSelectCount    int         `yaml:"max_select_count"`
	Margin            float64     `yaml:"margin"`
	ThumbSize         int         `yaml:"thumb_size"`
	PreviewStandard   int         `yaml:"preview_standard"`
	AlbumKinds        []string    `yaml:"album_kinds"`
	FilterEmptyAlbums bool        `yaml:"filter_empty_albums"`
	OutputDir         string      `yaml:"output_dir"`
	JPEGQuality       int         `yaml:"jpeg_quality"`
	Width             float64     `yaml:"width"`
	Height            float64     `yaml:"height"`
	ContentInset      clip.Insets `yaml:"content_inset"`
}

func defaultSettings(root string) Settings {
	return Settings{
		MaxSelectCount:    picker.DefaultMaxCount,
		Margin:            30,
		ThumbSize:         200,
		PreviewStandard:   1280,
		AlbumKinds:        []string{"smart", "user"},
		FilterEmptyAlbums: true,
		OutputDir:         filepath.Join(root, "output"),
		JPEGQuality:       90,
		Width:             375,
		Height:            667,
		ContentInset:      clip.Insets{Top: 20, Bottom: 49},
	}
}

// loadSettings reads path over the defaults. A missing file is fine unless
// it was asked for explicitly.
func loadSettings(root, path string) (Settings, error) {
	s := defaultSettings(root)
	explicit := path != ""
	if !explicit {
		path = filepath.Join(root, settingsFile)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return s, nil
	} else if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	if s.OutputDir != "" && !filepath.IsAbs(s.OutputDir) {
		s.OutputDir = filepath.Join(root, s.OutputDir)
	}
	return s, s.validate()
}

func (s Settings) validate() error {
	if s.MaxSelectCount <= 0 {
		return fmt.Errorf("max_select_count must be positive, got %d", s.MaxSelectCount)
	}
	if s.JPEGQuality < 1 || s.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be within 1..100, got %d", s.JPEGQuality)
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("container size must be positive, got %vx%v", s.Width, s.Height)
	}
	if _, err := library.ParseKinds(s.AlbumKinds); err != nil {
		return err
	}
	return nil
}

func (s Settings) libraryOptions(root string) library.Options {
	kinds, _ := library.ParseKinds(s.AlbumKinds)
	return library.Options{
		Root:            root,
		Kinds:           kinds,
		FilterEmpty:     s.FilterEmptyAlbums,
		Exclude:         []string{s.OutputDir},
		ThumbSize:       s.ThumbSize,
		PreviewStandard: s.PreviewStandard,
	}
}
