package inputsource

import (
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// OSSource is a Source backed by an afero.Fs rooted at a single
// directory or file. The base-path jail keeps every sub-path read
// inside the input's own tree.
type OSSource struct {
	fsys afero.Fs
	name string // base name, used for Matches

	mu   sync.Mutex
	file afero.File // lazily opened handle to name, for the ReaderAt/Size case
}

// NewOSDirectory returns a Source whose root is the directory at root.
func NewOSDirectory(root string) *OSSource {
	return &OSSource{
		fsys: afero.NewBasePathFs(afero.NewOsFs(), root),
		name: filepath.Base(root),
	}
}

// NewOSFile returns a Source whose single file is at path, for the
// TocBuilder (XISO) passthrough case.
func NewOSFile(p string) *OSSource {
	dir, base := filepath.Split(p)
	if dir == "" {
		dir = "."
	}
	return &OSSource{
		fsys: afero.NewBasePathFs(afero.NewOsFs(), dir),
		name: base,
	}
}

func (s *OSSource) ensureOpen() (afero.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		return s.file, nil
	}

	f, err := s.fsys.Open(s.name)
	if err != nil {
		return nil, fmt.Errorf("inputsource: open %s: %w", s.name, err)
	}
	s.file = f
	return f, nil
}

func (s *OSSource) ReadAt(p []byte, off int64) (int, error) {
	f, err := s.ensureOpen()
	if err != nil {
		return 0, err
	}

	if ra, ok := f.(io.ReaderAt); ok {
		return ra.ReadAt(p, off)
	}

	// Not every afero.File implements io.ReaderAt (e.g. some memory-backed
	// or wrapped implementations); fall back to a locked seek+read pair
	// since the underlying handle is shared across concurrent readers.
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(f, p)
}

func (s *OSSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *OSSource) Size() (int64, error) {
	fi, err := s.fsys.Stat(s.name)
	if err != nil {
		return 0, fmt.Errorf("inputsource: stat %s: %w", s.name, err)
	}
	return fi.Size(), nil
}

func (s *OSSource) Matches(pattern string) (bool, error) {
	return path.Match(pattern, s.name)
}

func (s *OSSource) Walk(dir string) ([]DirEntry, error) {
	if dir == "" {
		dir = "."
	}
	entries, err := afero.ReadDir(s.fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("inputsource: walk %s: %w", dir, err)
	}

	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir(), Size: e.Size()})
	}
	return out, nil
}

func (s *OSSource) SubSize(p string) (int64, error) {
	fi, err := s.fsys.Stat(p)
	if err != nil {
		return 0, fmt.Errorf("inputsource: stat %s: %w", p, err)
	}
	return fi.Size(), nil
}

func (s *OSSource) OpenSub(p string) (SubFile, error) {
	f, err := s.fsys.Open(p)
	if err != nil {
		return nil, fmt.Errorf("inputsource: open %s: %w", p, err)
	}
	if ra, ok := f.(io.ReaderAt); ok {
		return &readerAtSubFile{ra: ra, closer: f}, nil
	}
	return &seekingSubFile{f: f}, nil
}

type readerAtSubFile struct {
	ra     io.ReaderAt
	closer io.Closer
}

func (f *readerAtSubFile) ReadAt(p []byte, off int64) (int, error) { return f.ra.ReadAt(p, off) }
func (f *readerAtSubFile) Close() error                            { return f.closer.Close() }

// seekingSubFile adapts a seek+read-only afero.File to io.ReaderAt with a
// per-handle lock, for backends whose File type doesn't implement
// io.ReaderAt directly.
type seekingSubFile struct {
	mu sync.Mutex
	f  afero.File
}

func (f *seekingSubFile) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(f.f, p)
}

func (f *seekingSubFile) Close() error { return f.f.Close() }
