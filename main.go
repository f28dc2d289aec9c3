package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"clipick/library"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run() error {
	var args cliArgs
	cliCtx := kong.Parse(
		&args,
		kong.Name("clipick"),
		kong.Description("Pick and crop photos from a folder of albums."),
		kong.UsageOnError(),
	)
	setupLogging(args.Verbose)
	if err := cliCtx.Run(&args.Globals); err != nil {
		return err
	}

	return nil
}

func setupLogging(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
	})).Level(level)
	zerolog.DefaultContextLogger = &log.Logger
}

type Globals struct {
	Verbose bool   `help:"Enable verbose logging" default:"false"`
	Config  string `help:"Settings file, defaults to clipick.yaml in the root directory" type:"path"`
}

// load resolves the library root and reads its settings.
func (g *Globals) load(rootDir string) (string, Settings, error) {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return "", Settings{}, fmt.Errorf("failed to resolve %s: %w", rootDir, err)
	}
	settings, err := loadSettings(root, g.Config)
	if err != nil {
		return "", Settings{}, err
	}
	return root, settings, nil
}

type serveCmd struct {
	RootDir   string `arg:"" help:"Root directory to pick photos from"`
	Open      bool   `help:"Open the browser automatically when the server starts" default:"true" negatable:""`
	JSON      bool   `help:"Output operations in JSON format without executing"`
	Once      bool   `help:"Run the server once and exit after save" default:"true" negatable:""`
	MaxSelect int    `help:"Maximum number of photos to pick, overrides the settings file"`
	OutputDir string `help:"Where picked photos are written, overrides the settings file" type:"path"`
}

func (cmd *serveCmd) Run(globals *Globals) error {
	root, settings, err := globals.load(cmd.RootDir)
	if err != nil {
		return err
	}
	if cmd.MaxSelect > 0 {
		settings.MaxSelectCount = cmd.MaxSelect
	}
	if cmd.OutputDir != "" {
		settings.OutputDir = cmd.OutputDir
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	ctx = log.Logger.WithContext(ctx)

	lib, err := library.NewManager(settings.libraryOptions(root))
	if err != nil {
		return err
	}

	executor := &OperationExecutor{
		BaseDir:   root,
		OutputDir: settings.OutputDir,
		Cropper:   NewImagingCropper(settings.JPEGQuality),
	}

	app := NewWebApp(Config{
		RootDir:  root,
		Settings: settings,
		Library:  lib,
		OnBeforeShutdown: func() {
			log.Ctx(ctx).Info().Msg("Shutting down web application...")
		},
		OnReady: func(addr string) {
			log.Ctx(ctx).Info().Msgf("Server started at %s", addr)
			if cmd.Open {
				if err := openBrowser(addr); err != nil {
					log.Error().Err(err).Msg("Failed to open browser")
				}
			}
		},
		OnSave: func(ops Operations) {
			if cmd.JSON {
				printJSONL(ops)
			} else {
				if err := executor.Exec(ctx, ops); err != nil {
					log.Ctx(ctx).Error().Err(err).Msg("Failed to execute operations")
				}
			}

			if cmd.Once {
				cancel()
			}
		},
		OnCancel: func() {
			if cmd.Once {
				cancel()
			}
		},
	})

	if err := app.Run(ctx); err != nil {
		return err
	}

	return nil
}

type albumsCmd struct {
	RootDir string   `arg:"" help:"Root directory to list albums of"`
	Kinds   []string `help:"Album kinds to list (smart, user)"`
	All     bool     `help:"Include empty albums"`
}

func (cmd *albumsCmd) Run(globals *Globals) error {
	root, settings, err := globals.load(cmd.RootDir)
	if err != nil {
		return err
	}
	if len(cmd.Kinds) > 0 {
		settings.AlbumKinds = cmd.Kinds
	}
	if cmd.All {
		settings.FilterEmptyAlbums = false
	}
	if err := settings.validate(); err != nil {
		return err
	}
	lib, err := library.NewManager(settings.libraryOptions(root))
	if err != nil {
		return err
	}
	ctx := log.Logger.WithContext(context.Background())
	albums, err := lib.Albums(ctx)
	if err != nil {
		return err
	}
	return printAlbums(ctx, os.Stdout, lib, albums)
}

func printAlbums(ctx context.Context, w io.Writer, lib *library.Manager, albums []library.Album) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Album", "Kind", "Photos", "Size", "Latest"})
	table.SetBorder(false)
	kind := color.New(color.FgCyan).SprintFunc()
	for _, album := range albums {
		assets, err := lib.Assets(ctx, album.ID)
		if err != nil {
			return err
		}
		var size uint64
		latest := "-"
		for _, a := range assets {
			size += uint64(a.SizeBytes)
		}
		if n := len(assets); n > 0 {
			latest = humanize.Time(assets[n-1].ModifiedAt)
		}
		table.Append([]string{
			album.Name,
			kind(album.Kind),
			strconv.Itoa(album.Count),
			humanize.Bytes(size),
			latest,
		})
	}
	table.Render()
	return nil
}

type applyCmd struct {
	RootDir string `arg:"" help:"Root directory the operations refer to"`
	File    string `arg:"" optional:"" help:"JSON lines file of operations, stdin when omitted"`
}

func (cmd *applyCmd) Run(globals *Globals) error {
	root, settings, err := globals.load(cmd.RootDir)
	if err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if cmd.File != "" {
		f, err := os.Open(cmd.File)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", cmd.File, err)
		}
		defer f.Close()
		r = f
	}
	ops, err := readJSONL[Operation](r)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = log.Logger.WithContext(ctx)

	executor := &OperationExecutor{
		BaseDir:   root,
		OutputDir: settings.OutputDir,
		Cropper:   NewImagingCropper(settings.JPEGQuality),
	}
	return applyWithProgress(ctx, executor, ops, os.Stderr)
}

// applyWithProgress executes ops with a progress bar written to w. Progress
// output failures are logged, never returned.
func applyWithProgress(ctx context.Context, executor *OperationExecutor, ops []Operation, w io.Writer) error {
	bar := progressbar.NewOptions(len(ops),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("applying"),
		progressbar.OptionShowCount(),
	)
	var mu sync.Mutex
	executor.OnDone = func(Operation, error) {
		mu.Lock()
		defer mu.Unlock()
		if err := bar.Add(1); err != nil {
			log.Ctx(ctx).Debug().Err(err).Msg("Failed to update progress")
		}
	}
	err := executor.Exec(ctx, ops)
	if ferr := bar.Finish(); ferr != nil {
		log.Ctx(ctx).Debug().Err(ferr).Msg("Failed to finish progress")
	}
	return err
}

type cliArgs struct {
	Globals

	Serve  serveCmd  `cmd:"" default:"withargs" help:"Serve the picker in the browser"`
	Albums albumsCmd `cmd:"" help:"List albums"`
	Apply  applyCmd  `cmd:"" help:"Execute saved operations"`
}

func printJSONL[T any](data []T) {
	enc := json.NewEncoder(os.Stdout)
	for _, item := range data {
		if err := enc.Encode(item); err != nil {
			log.Error().Err(err).Msg("Failed to encode item to JSON")
			continue
		}
	}
}

func readJSONL[T any](r io.Reader) ([]T, error) {
	var items []T
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var item T
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read operations: %w", err)
	}
	return items, nil
}
