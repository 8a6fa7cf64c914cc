package library

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	// Decoders for the supported photo formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gogpu/reveal"
	"github.com/gogpu/reveal/internal/cache"
)

// Library errors.
var (
	// ErrNotDirectory is returned when the root is not a directory.
	ErrNotDirectory = errors.New("library: root is not a directory")

	// ErrOutsideRoot is returned for asset IDs escaping the root.
	ErrOutsideRoot = errors.New("library: asset outside root")
)

// DefaultCacheSize is the number of decoded originals kept in memory.
const DefaultCacheSize = 16

// DefaultPreviewDivisor shrinks the degraded preview relative to the target.
const DefaultPreviewDivisor = 8

var extensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// Supported reports whether name has a supported image extension.
func Supported(name string) bool {
	return extensions[strings.ToLower(filepath.Ext(name))]
}

// Dir is a photo library rooted at a directory. Asset IDs are slash
// separated paths relative to the root.
//
// Dir is safe for concurrent use.
type Dir struct {
	root      string
	selection map[string]bool
	divisor   int
	originals *cache.Cache[string, image.Image]
}

// Option configures a Dir.
type Option func(*Dir)

// WithCacheSize sets how many decoded originals are kept.
func WithCacheSize(n int) Option {
	return func(d *Dir) {
		d.originals = cache.New[string, image.Image](n)
	}
}

// WithSelection restricts the library to the given asset IDs, the way a
// user grants access to a few photos only. Authorize then reports
// reveal.AuthLimited.
func WithSelection(ids ...string) Option {
	return func(d *Dir) {
		d.selection = make(map[string]bool, len(ids))
		for _, id := range ids {
			d.selection[path.Clean(filepath.ToSlash(id))] = true
		}
	}
}

// WithPreviewDivisor sets how much smaller than the target the degraded
// preview is. A divisor of 1 disables the preview.
func WithPreviewDivisor(n int) Option {
	return func(d *Dir) {
		d.divisor = n
	}
}

// New returns a library rooted at root. The directory is not touched until
// Authorize or FetchCatalog.
func New(root string, opts ...Option) *Dir {
	d := &Dir{
		root:      filepath.Clean(root),
		divisor:   DefaultPreviewDivisor,
		originals: cache.New[string, image.Image](DefaultCacheSize),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Root returns the library root.
func (d *Dir) Root() string { return d.root }

// Authorize reports AuthGranted for a readable directory, AuthLimited when a
// selection is configured, and AuthDenied when the root is missing or
// unreadable. Other stat failures are returned as errors.
func (d *Dir) Authorize(ctx context.Context) (reveal.AuthStatus, error) {
	if err := ctx.Err(); err != nil {
		return reveal.AuthDenied, err
	}

	info, err := os.Stat(d.root)
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return reveal.AuthDenied, nil
	case err != nil:
		return reveal.AuthDenied, fmt.Errorf("library: stat root: %w", err)
	case !info.IsDir():
		return reveal.AuthDenied, ErrNotDirectory
	}

	f, err := os.Open(d.root)
	if err != nil {
		return reveal.AuthDenied, nil
	}
	defer func() { _ = f.Close() }()
	if _, err := f.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return reveal.AuthDenied, nil
	}

	if d.selection != nil {
		return reveal.AuthLimited, nil
	}
	return reveal.AuthGranted, nil
}

// FetchCatalog walks the root and returns every supported image, ordered by
// modification time. Hidden files and directories are skipped. Ties are
// broken by ID so the order is stable.
func (d *Dir) FetchCatalog(ctx context.Context, order reveal.SortOrder) (reveal.Catalog, error) {
	var assets []reveal.Asset

	err := filepath.WalkDir(d.root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			if p == d.root {
				return err
			}
			reveal.Logger().Debug("library: skipping unreadable entry", "path", p, "err", err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := e.Name()
		if p != d.root && strings.HasPrefix(name, ".") {
			if e.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if e.IsDir() || !Supported(name) {
			return nil
		}

		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return nil
		}
		id := filepath.ToSlash(rel)
		if d.selection != nil && !d.selection[id] {
			return nil
		}

		info, err := e.Info()
		if err != nil {
			return nil
		}
		assets = append(assets, reveal.Asset{ID: id, Created: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("library: walk %s: %w", d.root, err)
	}

	slices.SortFunc(assets, func(a, b reveal.Asset) int {
		c := a.Created.Compare(b.Created)
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if order == reveal.SortCreationDesc {
			return -c
		}
		return c
	})

	reveal.Logger().Debug("library: catalog built", "root", d.root, "assets", len(assets))
	return reveal.NewCatalog(assets), nil
}

// RequestImage decodes the asset and delivers a degraded preview followed by
// the final image at target size. Decode failures produce a single error
// delivery. The channel is closed when the request finishes or ctx is done.
func (d *Dir) RequestImage(ctx context.Context, asset reveal.Asset, target reveal.Size, mode reveal.ContentMode) <-chan reveal.Delivery {
	ch := make(chan reveal.Delivery, 2)
	go func() {
		defer close(ch)

		send := func(dl reveal.Delivery) bool {
			select {
			case ch <- dl:
				return true
			case <-ctx.Done():
				return false
			}
		}

		src, err := d.original(asset.ID)
		if err != nil {
			send(reveal.Delivery{Err: err})
			return
		}
		if ctx.Err() != nil {
			return
		}

		if d.divisor > 1 {
			preview := Resize(src, previewSize(target, d.divisor), mode, xdraw.NearestNeighbor)
			if !send(reveal.Delivery{Image: preview, Degraded: true}) {
				return
			}
		}

		send(reveal.Delivery{Image: Resize(src, target, mode, xdraw.CatmullRom)})
	}()
	return ch
}

// original returns the decoded full-size image, from cache when possible.
func (d *Dir) original(id string) (image.Image, error) {
	return d.originals.GetOrLoad(id, func() (image.Image, error) {
		p, err := d.resolve(id)
		if err != nil {
			return nil, err
		}
		return decodeFile(p)
	})
}

// resolve maps an asset ID to a path under the root.
func (d *Dir) resolve(id string) (string, error) {
	clean := path.Clean("/" + id)[1:]
	if clean == "" || clean != id {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, id)
	}
	return filepath.Join(d.root, filepath.FromSlash(clean)), nil
}

func decodeFile(p string) (image.Image, error) {
	f, err := os.Open(filepath.Clean(p))
	if err != nil {
		return nil, fmt.Errorf("library: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("library: decode %s: %w", filepath.Base(p), err)
	}
	reveal.Logger().Debug("library: decoded original", "path", p, "format", format,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return img, nil
}

// CacheStats counts decoded-original cache activity.
type CacheStats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// CacheStats returns counters of the decoded-original cache.
func (d *Dir) CacheStats() CacheStats {
	return CacheStats(d.originals.Stats())
}
