package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipick/library"
)

func TestPrintAlbums(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "c.jpg"), 40, 30)
	writeImage(t, filepath.Join(root, "trip", "a.jpg"), 40, 30)

	lib, err := library.NewManager(defaultSettings(root).libraryOptions(root))
	require.NoError(t, err)
	albums, err := lib.Albums(context.Background())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printAlbums(context.Background(), &out, lib, albums))
	assert.Contains(t, out.String(), "All Photos")
	assert.Contains(t, out.String(), "trip")
	assert.Contains(t, out.String(), "smart")
}

func TestGlobals_Load(t *testing.T) {
	root := t.TempDir()
	g := Globals{}
	abs, s, err := g.load(root)
	require.NoError(t, err)
	assert.Equal(t, root, abs)
	assert.Equal(t, filepath.Join(root, "output"), s.OutputDir)

	g.Config = filepath.Join(root, "nope.yaml")
	_, _, err = g.load(root)
	assert.Error(t, err)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestApplyWithProgress(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "a.jpg"), 40, 30)
	writeImage(t, filepath.Join(root, "trip", "b.jpg"), 40, 30)
	ops := []Operation{
		{Pick: &PickOperation{Filename: "a.jpg"}},
		{Pick: &PickOperation{Filename: "trip/b.jpg"}},
	}
	executor := func(out string) *OperationExecutor {
		return &OperationExecutor{BaseDir: root, OutputDir: out, Cropper: NewImagingCropper(90)}
	}

	var progress bytes.Buffer
	out := filepath.Join(root, "output")
	require.NoError(t, applyWithProgress(context.Background(), executor(out), ops, &progress))
	assert.FileExists(t, filepath.Join(out, "trip", "b.jpg"))
	assert.Contains(t, progress.String(), "applying")

	out = filepath.Join(root, "again")
	require.NoError(t, applyWithProgress(context.Background(), executor(out), ops, failingWriter{}),
		"progress output failures do not fail the run")
	assert.FileExists(t, filepath.Join(out, "a.jpg"))

	err := applyWithProgress(context.Background(), executor(out),
		[]Operation{{Pick: &PickOperation{Filename: "missing.jpg"}}}, &progress)
	assert.Error(t, err)
}
