// Package facade ties the pipeline together: it sniffs an input's
// format, instantiates the matching TocBuilder, builds the materializer
// with selected and resolved patches, and caches the result per input
// path for the life of the process.
package facade

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/djherbis/times"

	"github.com/wilkovatch/http-xiso-wrapper/pkg/inputsource"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/materializer"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/patch"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/toc"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/xiso"
)

var (
	// ErrInputNotFound means the requested path does not exist or is
	// unreadable.
	ErrInputNotFound = errors.New("facade: input not found")

	// ErrUnrecognizedFormat means no TocBuilder accepts the input.
	ErrUnrecognizedFormat = errors.New("facade: unrecognized input format")
)

// Options configures a Cache once, at startup.
type Options struct {
	// Patches are the user-supplied patches parsed from the command
	// line, in order. Selection by title id happens per input.
	Patches []patch.Patch

	// ForceMediaPatch prepends the media-check bypass patch even for
	// inputs whose image origin is zero.
	ForceMediaPatch bool

	Logger *slog.Logger
}

// Pipeline is one fully-populated input: its source, builder, TOC model
// and the materializer serving byte ranges of it. Once in the cache it
// is immutable.
type Pipeline struct {
	Path    string
	Source  inputsource.Source
	Builder materializer.TocBuilder
	Model   *toc.Model
	Mat     *materializer.Materializer
	Title   materializer.TitleInfo
}

// Cache is the process-wide map from input path to populated Pipeline.
// It is an explicitly-owned structure handed to the HTTP handler, not a
// package-level singleton, so tests stay deterministic.
type Cache struct {
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	entries map[string]*Pipeline
}

func NewCache(opts Options) *Cache {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		opts:    opts,
		log:     log,
		entries: make(map[string]*Pipeline),
	}
}

// Open returns the cached Pipeline for path, populating it on first
// touch. Population holds the cache lock: concurrent first requests for
// the same path build it once.
func (c *Cache) Open(path string) (*Pipeline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pl, ok := c.entries[path]; ok {
		return pl, nil
	}

	pl, err := c.build(path)
	if err != nil {
		return nil, err
	}
	c.entries[path] = pl
	return pl, nil
}

// Close releases every cached source. Sources are deliberately kept open
// between requests; this runs only at process teardown.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, pl := range c.entries {
		if err := pl.Source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", pl.Path, err))
		}
	}
	c.entries = make(map[string]*Pipeline)
	return errors.Join(errs...)
}

func (c *Cache) build(path string) (*Pipeline, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("facade: stat %s: %w", path, err)
	}

	if ts, err := times.Stat(path); err == nil && ts.HasBirthTime() {
		c.log.Debug("indexing input", "path", path, "mtime", fi.ModTime(), "created", ts.BirthTime())
	} else {
		c.log.Debug("indexing input", "path", path, "mtime", fi.ModTime())
	}

	src, builder, err := c.sniff(path, fi.IsDir())
	if err != nil {
		return nil, err
	}

	model, err := builder.BuildTOC()
	if err != nil {
		src.Close()
		return nil, err
	}

	title := c.extractTitle(builder, model)
	if title.TitleID == "" {
		c.log.Warn("could not determine title id, title-bound patches will not match", "path", path)
	} else {
		c.log.Info("identified title", "path", path, "title_id", title.TitleID, "title_name", title.TitleName)
	}

	patches := c.opts.Patches
	if builder.RequiresMediaPatch() || c.opts.ForceMediaPatch {
		c.log.Info("applying media patch", "path", path)
		patches = append([]patch.Patch{patch.MediaPatch(title.TitleID)}, patches...)
	}

	engine := patch.NewEngine(c.log)
	reader := &modelFileReader{builder: builder, model: model}

	var resolved []patch.Patch
	for _, p := range engine.Select(patches, title.TitleID) {
		rp := engine.Resolve(p, reader)
		if len(rp.Operations) == 0 {
			continue
		}
		resolved = append(resolved, rp)
	}

	return &Pipeline{
		Path:    path,
		Source:  src,
		Builder: builder,
		Model:   model,
		Mat:     materializer.New(builder, model, resolved),
		Title:   title,
	}, nil
}

// sniff decides which TocBuilder handles the input: a directory (or a
// zip archive) holding an XBEH-headed default.xbe goes to the synthesis
// builder, a file with the volume magic at either known origin goes to
// the passthrough builder.
func (c *Cache) sniff(path string, isDir bool) (inputsource.Source, materializer.TocBuilder, error) {
	if isDir {
		src := inputsource.NewOSDirectory(path)
		return c.directoryBuilder(path, src)
	}

	fileSrc := inputsource.NewOSFile(path)
	if isZip, _ := fileSrc.Matches("*.zip"); isZip {
		fileSrc.Close()
		zipSrc, err := inputsource.NewZip(path)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnrecognizedFormat, path)
		}
		return c.directoryBuilder(path, zipSrc)
	}

	origin, rootSector, rootSize, ok := materializer.DetectXISO(fileSrc)
	if !ok {
		fileSrc.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrUnrecognizedFormat, path)
	}

	builder, err := materializer.NewXisoBuilder(fileSrc, origin, rootSector, rootSize)
	if err != nil {
		fileSrc.Close()
		return nil, nil, err
	}
	return fileSrc, builder, nil
}

func (c *Cache) directoryBuilder(path string, src inputsource.Source) (inputsource.Source, materializer.TocBuilder, error) {
	if !hasXBE(src) {
		src.Close()
		return nil, nil, fmt.Errorf("%w: %s has no default.xbe", ErrUnrecognizedFormat, path)
	}

	builder, err := materializer.NewDirectoryBuilder(src)
	if err != nil {
		src.Close()
		return nil, nil, err
	}
	return src, builder, nil
}

func hasXBE(src inputsource.Source) bool {
	f, err := src.OpenSub("default.xbe")
	if err != nil {
		return false
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := f.ReadAt(magic, 0); err != nil {
		return false
	}
	return string(magic) == materializer.XBEMagic
}

func (c *Cache) extractTitle(builder materializer.TocBuilder, model *toc.Model) materializer.TitleInfo {
	const xbe = "default.xbe"

	region, ok := model.Get(toc.Key{Kind: toc.KindFile, Path: xbe})
	if !ok {
		return materializer.TitleInfo{}
	}

	info, err := materializer.ExtractXBEInfo(int64(region.Size), func(offset int64, length int) ([]byte, error) {
		return builder.ReadFileBytes(xbe, xiso.SizeBytes(offset), length)
	})
	if err != nil {
		c.log.Warn("xbe certificate parse failed", "error", err)
		return materializer.TitleInfo{}
	}
	return info
}

// modelFileReader adapts a built pipeline to the patch engine's file
// reading capability, keyed by TOC file path.
type modelFileReader struct {
	builder materializer.TocBuilder
	model   *toc.Model
}

func (r *modelFileReader) FileSize(path string) (int64, bool) {
	region, ok := r.model.Get(toc.Key{Kind: toc.KindFile, Path: path})
	if !ok {
		return 0, false
	}
	return int64(region.Size), true
}

func (r *modelFileReader) ReadFileAt(path string, offset int64, length int) ([]byte, error) {
	return r.builder.ReadFileBytes(path, xiso.SizeBytes(offset), length)
}
