package main

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"clipick/clip"
)

type Operations = []Operation

// Operation is one picked photo to write out: either copied as it is or
// cropped first.
type Operation struct {
	Crop *CropOperation
	Pick *PickOperation
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	var op struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &op); err != nil {
		return fmt.Errorf("failed to unmarshal operation: %w", err)
	}

	switch op.Type {
	case "crop":
		var crop CropOperation
		if err := json.Unmarshal(data, &crop); err != nil {
			return fmt.Errorf("failed to unmarshal crop operation: %w", err)
		}
		o.Crop = &crop
	case "pick":
		var pick PickOperation
		if err := json.Unmarshal(data, &pick); err != nil {
			return fmt.Errorf("failed to unmarshal pick operation: %w", err)
		}
		o.Pick = &pick
	default:
		return fmt.Errorf("unknown operation %q", op.Type)
	}
	return nil
}

func (o Operation) MarshalJSON() ([]byte, error) {
	switch {
	case o.Crop != nil:
		return json.Marshal(struct {
			Type string `json:"type"`
			CropOperation
		}{"crop", *o.Crop})
	case o.Pick != nil:
		return json.Marshal(struct {
			Type string `json:"type"`
			PickOperation
		}{"pick", *o.Pick})
	}
	return nil, fmt.Errorf("empty operation")
}

func (o Operation) Filename() string {
	if o.Crop != nil {
		return o.Crop.Filename
	}
	if o.Pick != nil {
		return o.Pick.Filename
	}
	return ""
}

// Crop is a region of a photo relative to its size, every field within
// [0, 1].
type Crop struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

func cropFromRect(r clip.Rect) Crop {
	return Crop{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

func (c Crop) String() string {
	return fmt.Sprintf("crop(x=%.4f,y=%.4f,w=%.4f,h=%.4f)", c.X, c.Y, c.Width, c.Height)
}

// Full reports whether the crop keeps the whole photo.
func (c Crop) Full() bool {
	return c.X <= 0 && c.Y <= 0 && c.Width >= 1 && c.Height >= 1
}

// ID names the output of this crop so repeated crops of one photo don't
// overwrite each other.
func (c Crop) ID() string {
	return fmt.Sprintf("%x", md5.Sum([]byte(c.String())))[:12]
}

type CropOperation struct {
	Filename string `json:"filename"`
	Crop     Crop   `json:"crop"`
}

type PickOperation struct {
	Filename string `json:"filename"`
}

type Cropper interface {
	Crop(ctx context.Context, r io.Reader, w io.Writer, crop Crop) error
}

type OperationExecutor struct {
	BaseDir   string
	OutputDir string
	Cropper   Cropper
	// OnDone, when set, is called after each operation. It may be called
	// from several goroutines at once.
	OnDone func(op Operation, err error)
}

func (r OperationExecutor) Exec(ctx context.Context, ops []Operation) error {
	if len(ops) == 0 {
		log.Ctx(ctx).Warn().Msg("no operations to execute")
		return nil
	}

	pooler := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(runtime.NumCPU())

	if err := os.MkdirAll(r.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", r.OutputDir, err)
	}
	for _, op := range ops {
		pooler.Go(func(ctx context.Context) error {
			err := r.executeOperation(ctx, op)
			if r.OnDone != nil {
				r.OnDone(op, err)
			}
			if err != nil {
				log.Ctx(ctx).Error().Err(err).
					Str("filename", op.Filename()).
					Msg("failed to execute operation")
				return err
			}
			return nil
		})
	}

	if err := pooler.Wait(); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Msg("finished with errors")
		return err
	}

	return nil
}

func (r OperationExecutor) executeOperation(ctx context.Context, op Operation) error {
	if op.Crop != nil {
		return r.executeCrop(ctx, *op.Crop)
	} else if op.Pick != nil {
		return r.executePick(ctx, *op.Pick)
	}
	return nil
}

// sourcePath keeps filenames inside BaseDir.
func (r OperationExecutor) sourcePath(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("filename %q is outside the library", name)
	}
	return filepath.Join(r.BaseDir, clean), nil
}

// outputPath mirrors the album folders of the library inside OutputDir.
func (r OperationExecutor) outputPath(name string) (string, error) {
	p := filepath.Join(r.OutputDir, filepath.Clean(filepath.FromSlash(name)))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory for %s: %w", name, err)
	}
	return p, nil
}

func (r OperationExecutor) executeCrop(ctx context.Context, op CropOperation) error {
	log.Ctx(ctx).Info().Str("filename", op.Filename).Stringer("crop", op.Crop).Msg("cropping")
	sourcePath, err := r.sourcePath(op.Filename)
	if err != nil {
		return err
	}
	f, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", sourcePath, err)
	}
	defer f.Close()
	var b bytes.Buffer
	if err := r.Cropper.Crop(ctx, f, &b, op.Crop); err != nil {
		return fmt.Errorf("failed to crop %s: %w", op.Filename, err)
	}

	base := strings.TrimSuffix(op.Filename, filepath.Ext(op.Filename))
	croppedPath, err := r.outputPath(fmt.Sprintf("%s-%s.jpg", base, op.Crop.ID()))
	if err != nil {
		return err
	}
	wf, err := os.Create(croppedPath)
	if err != nil {
		return fmt.Errorf("failed to create cropped file %s: %w", croppedPath, err)
	}
	defer wf.Close()
	if _, err := b.WriteTo(wf); err != nil {
		return fmt.Errorf("failed to write cropped data to file %s: %w", croppedPath, err)
	}
	return nil
}

func (r OperationExecutor) executePick(ctx context.Context, op PickOperation) error {
	log.Ctx(ctx).Info().Str("filename", op.Filename).Msg("picking")
	sourcePath, err := r.sourcePath(op.Filename)
	if err != nil {
		return err
	}
	savePath, err := r.outputPath(op.Filename)
	if err != nil {
		return err
	}
	if err := copyFile(sourcePath, savePath); err != nil {
		return fmt.Errorf("failed to pick file %s: %w", op.Filename, err)
	}
	return nil
}

func copyFile(sourcePath, destPath string) error {
	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", sourcePath, err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", destPath, err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return fmt.Errorf("failed to copy file from %s to %s: %w", sourcePath, destPath, err)
	}

	return nil
}
