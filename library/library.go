// Package library serves photos from a directory tree the way a phone photo
// library does: the root is the album holding every photo and each
// sub-directory is a user album.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
	"golang.org/x/sync/semaphore"

	"clipick/runloop"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDenied    = errors.New("photo library access denied")
	ErrCancelled = errors.New("request cancelled")
)

// Kind is an album category.
type Kind int

const (
	// KindSmart is the album of every photo in the library.
	KindSmart Kind = iota + 1
	// KindUser is an album the user created.
	KindUser
)

var kindNames = map[Kind]string{
	KindSmart: "smart",
	KindUser:  "user",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown album kind %q", s)
}

// KindSet is a set of album kinds.
type KindSet map[Kind]struct{}

// AllKinds returns a set holding every kind.
func AllKinds() KindSet {
	s := make(KindSet, len(kindNames))
	for k := range kindNames {
		s[k] = struct{}{}
	}
	return s
}

func Kinds(kinds ...Kind) KindSet {
	s := make(KindSet, len(kinds))
	for _, k := range kinds {
		s[k] = struct{}{}
	}
	return s
}

// ParseKinds builds a set from kind names. An empty list means every kind.
func ParseKinds(names []string) (KindSet, error) {
	if len(names) == 0 {
		return AllKinds(), nil
	}
	s := make(KindSet, len(names))
	for _, n := range names {
		k, err := ParseKind(n)
		if err != nil {
			return nil, err
		}
		s[k] = struct{}{}
	}
	return s, nil
}

func (s KindSet) Has(k Kind) bool {
	_, ok := s[k]
	return ok
}

// RootAlbumID identifies the album of every photo.
const RootAlbumID = "."

type Album struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Kind  Kind   `json:"kind"`
	Count int    `json:"count"`
	// Cover is the oldest photo of the album, nil for an empty album.
	Cover *Asset `json:"cover,omitempty"`
}

// Asset is one photo. Its ID is the slash separated path relative to the
// library root.
type Asset struct {
	ID         string    `json:"id"`
	Album      string    `json:"album"`
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
}

type Options struct {
	Root string
	// Kinds selects which albums are listed. An empty set means every kind.
	Kinds KindSet
	// FilterEmpty drops albums without photos.
	FilterEmpty bool
	// Exclude lists directories, relative to Root, that are never scanned.
	Exclude []string
	// ThumbSize is the side of the square thumbnails, 200 when zero.
	ThumbSize int
	// PreviewStandard is the reference side used to size previews, 1280
	// when zero.
	PreviewStandard int
	// MaxConcurrent bounds the image loads running at once.
	MaxConcurrent int
	// CacheSize is the number of thumbnails kept in memory.
	CacheSize int
	// Scheduler receives request callbacks. Without one they run on the
	// worker goroutine.
	Scheduler runloop.Scheduler
	Logger    *zerolog.Logger
}

type Manager struct {
	root            string
	kinds           KindSet
	filterEmpty     bool
	exclude         map[string]bool
	thumbSize       int
	previewStandard int
	sched           runloop.Scheduler
	log             zerolog.Logger

	sem    *semaphore.Weighted
	thumbs *lru.Cache[string, thumbEntry]

	mu       sync.Mutex
	requests map[ksuid.KSUID]*Request
}

// NewManager opens the library at opts.Root. It fails with ErrNotFound when
// the root does not exist and ErrDenied when it cannot be read.
func NewManager(opts Options) (*Manager, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve library root: %w", err)
	}
	if err := checkAccess(root); err != nil {
		return nil, err
	}

	m := &Manager{
		root:            root,
		kinds:           opts.Kinds,
		filterEmpty:     opts.FilterEmpty,
		thumbSize:       opts.ThumbSize,
		previewStandard: opts.PreviewStandard,
		sched:           opts.Scheduler,
		log:             log.Logger,
		exclude:         make(map[string]bool),
		requests:        make(map[ksuid.KSUID]*Request),
	}
	for _, dir := range opts.Exclude {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		m.exclude[filepath.Clean(dir)] = true
	}
	if len(m.kinds) == 0 {
		m.kinds = AllKinds()
	}
	if m.thumbSize <= 0 {
		m.thumbSize = 200
	}
	if m.previewStandard <= 0 {
		m.previewStandard = 1280
	}
	if opts.Logger != nil {
		m.log = *opts.Logger
	}
	m.log = m.log.With().Str("component", "library").Logger()

	workers := opts.MaxConcurrent
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	m.sem = semaphore.NewWeighted(int64(workers))

	size := opts.CacheSize
	if size <= 0 {
		size = 256
	}
	if m.thumbs, err = lru.New[string, thumbEntry](size); err != nil {
		return nil, fmt.Errorf("create thumbnail cache: %w", err)
	}
	return m, nil
}

func checkAccess(root string) error {
	info, err := os.Stat(root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("library %s: %w", root, ErrNotFound)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("library %s: %w", root, ErrDenied)
	case err != nil:
		return fmt.Errorf("stat library %s: %w", root, err)
	case !info.IsDir():
		return fmt.Errorf("library %s is not a directory: %w", root, ErrNotFound)
	}
	f, err := os.Open(root)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("library %s: %w", root, ErrDenied)
		}
		return fmt.Errorf("open library %s: %w", root, err)
	}
	defer f.Close()
	if _, err := f.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("library %s: %w", root, ErrDenied)
	}
	return nil
}

func (m *Manager) Root() string { return m.root }

// Albums lists the albums of the configured kinds, the smart album first
// and user albums by name.
func (m *Manager) Albums(ctx context.Context) ([]Album, error) {
	all, err := m.scan(ctx, m.root)
	if err != nil {
		return nil, err
	}

	var albums []Album
	if m.kinds.Has(KindSmart) {
		albums = m.appendAlbum(albums, Album{ID: RootAlbumID, Name: "All Photos", Kind: KindSmart}, all)
	}
	if m.kinds.Has(KindUser) {
		entries, err := os.ReadDir(m.root)
		if err != nil {
			return nil, fmt.Errorf("list albums: %w", err)
		}
		byAlbum := make(map[string][]Asset)
		for _, a := range all {
			if a.Album != RootAlbumID {
				top := strings.SplitN(a.Album, "/", 2)[0]
				byAlbum[top] = append(byAlbum[top], a)
			}
		}
		for _, e := range entries {
			if !e.IsDir() || m.skipDir(filepath.Join(m.root, e.Name())) {
				continue
			}
			albums = m.appendAlbum(albums, Album{ID: e.Name(), Name: e.Name(), Kind: KindUser}, byAlbum[e.Name()])
		}
	}
	log.Ctx(ctx).Debug().Int("albums", len(albums)).Int("assets", len(all)).Msg("listed albums")
	return albums, nil
}

func (m *Manager) appendAlbum(albums []Album, a Album, assets []Asset) []Album {
	a.Count = len(assets)
	if a.Count == 0 && m.filterEmpty {
		return albums
	}
	if a.Count > 0 {
		cover := assets[0]
		a.Cover = &cover
	}
	return append(albums, a)
}

// Assets lists the photos of an album, oldest first. The smart album holds
// every photo in the library.
func (m *Manager) Assets(ctx context.Context, albumID string) ([]Asset, error) {
	if albumID == "" || albumID == RootAlbumID {
		return m.scan(ctx, m.root)
	}
	dir, err := m.resolve(albumID)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("album %q: %w", albumID, ErrNotFound)
	}
	return m.scan(ctx, dir)
}

// Asset looks up a single photo by ID.
func (m *Manager) Asset(ctx context.Context, id string) (Asset, error) {
	p, err := m.resolve(id)
	if err != nil {
		return Asset{}, err
	}
	info, err := os.Stat(p)
	if err != nil || info.IsDir() || !isImage(p) {
		return Asset{}, fmt.Errorf("asset %q: %w", id, ErrNotFound)
	}
	return m.newAsset(ctx, p, info)
}

// Path returns the file backing an asset.
func (m *Manager) Path(a Asset) string {
	return filepath.Join(m.root, filepath.FromSlash(a.ID))
}

// resolve maps an ID onto a path under the root, refusing anything that
// would escape it.
func (m *Manager) resolve(id string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(id))
	if clean == "/" {
		return m.root, nil
	}
	return filepath.Join(m.root, filepath.FromSlash(clean[1:])), nil
}

// sortAssets orders photos by creation, which for files is the
// modification time, oldest first.
func sortAssets(assets []Asset) {
	sort.SliceStable(assets, func(i, j int) bool {
		if !assets[i].ModifiedAt.Equal(assets[j].ModifiedAt) {
			return assets[i].ModifiedAt.Before(assets[j].ModifiedAt)
		}
		return assets[i].ID < assets[j].ID
	})
}
