// Package inputsource implements the abstract random-access byte source
// the TocBuilders read from: an on-OS-filesystem backend (via afero) and
// a zip-archive backend (via stdlib archive/zip), behind one interface.
package inputsource

import (
	"errors"
	"io"
	"io/fs"
)

// ErrNotSupported is returned by directory-mode operations on a source
// that has no notion of a directory walk. Neither backend in this
// package returns it: an OS source opened on a single file (NewOSFile)
// serves directory-mode operations from the directory holding that file.
var ErrNotSupported = errors.New("inputsource: operation not supported by this source")

// DirEntry is one child of a directory walk: either a subdirectory name
// or a file name plus size.
type DirEntry struct {
	Name  string
	IsDir bool
	Size  int64
}

// Source is the capability surface every InputSource backend offers. The
// core (r io.ReaderAt) covers the XISO-passthrough case; the directory
// methods are used by TocBuilder (Directory) and are optional depending
// on the backend (one without a directory structure returns
// ErrNotSupported from them).
type Source interface {
	io.ReaderAt
	io.Closer

	// Size is the total byte length of the whole source (the raw input
	// file, not a particular sub-entry).
	Size() (int64, error)

	// Matches reports whether the source's own name satisfies a glob
	// pattern, for format sniffing by filename.
	Matches(pattern string) (bool, error)

	// Walk lists the direct children of dir ("" for the root), relative
	// to the source's root. Returns ErrNotSupported if the backend has
	// no directory structure.
	Walk(dir string) ([]DirEntry, error)

	// SubSize returns the byte size of the file at the given relative
	// path.
	SubSize(path string) (int64, error)

	// OpenSub opens the file at path for random-access reads.
	OpenSub(path string) (SubFile, error)
}

// SubFile is a single file opened within a Source's directory tree.
type SubFile interface {
	io.ReaderAt
	io.Closer
}

// IsNotExist reports whether err indicates the source (or a sub-path
// within it) does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
