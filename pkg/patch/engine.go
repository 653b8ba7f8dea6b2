package patch

import (
	"bytes"
	"log/slog"
)

// FileReader is the narrow capability the engine needs from a
// materializer to resolve pattern-based patches: random access into one
// named file's data, by file-relative offset.
type FileReader interface {
	FileSize(path string) (int64, bool)
	ReadFileAt(path string, offset int64, length int) ([]byte, error)
}

// Engine resolves and applies patches against one image's files.
type Engine struct {
	log *slog.Logger
}

func NewEngine(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{log: log}
}

// Select keeps every patch whose TitleID matches titleID or is unset.
// A patch with no TitleID is still applied, it just warns the user.
func (e *Engine) Select(patches []Patch, titleID string) []Patch {
	var out []Patch
	for _, p := range patches {
		if p.TitleID != "" && p.TitleID != titleID {
			continue
		}
		if p.TitleID == "" {
			e.log.Warn("patch has no title_id, applying unconditionally", "patch", p.Name)
		}
		out = append(out, p)
	}
	return out
}

const resolveChunkSize = 1024 * 1024

// Resolve converts every OriginalBytes-based operation in p into an
// address-based one by locating the pattern in the named target file.
// Operations that can't be resolved are dropped with a log.
// Occurrence counting is per patch file: a repeated OriginalBytes
// pattern advances to its next literal occurrence each time it recurs
// within the same patch's operation list, resetting only when the
// pattern text itself changes.
func (e *Engine) Resolve(p Patch, files FileReader) Patch {
	if p.TargetFile == "" {
		e.log.Warn("patch has unresolved target file, dropping", "patch", p.Name)
		return Patch{Name: p.Name, TitleID: p.TitleID, Author: p.Author}
	}

	resolved := Patch{Name: p.Name, TitleID: p.TitleID, TargetFile: p.TargetFile, Author: p.Author}

	var prevOriginal []byte
	occurrence := 0

	for _, op := range p.Operations {
		if op.resolved() {
			resolved.Operations = append(resolved.Operations, op)
			continue
		}

		if prevOriginal != nil && bytes.Equal(prevOriginal, op.OriginalBytes) {
			occurrence++
		} else {
			occurrence = 0
		}
		prevOriginal = op.OriginalBytes

		addr, ok := e.locate(files, p.TargetFile, op.OriginalBytes, occurrence)
		if !ok {
			e.log.Warn("patch operation unresolvable, dropping",
				"patch", p.Name, "file", p.TargetFile)
			continue
		}

		resolved.Operations = append(resolved.Operations, Operation{
			Address:      addr,
			PatchedBytes: op.PatchedBytes,
		})
	}

	return resolved
}

// locate scans file in resolveChunkSize chunks, each overlapping the
// previous by len(pattern)-1 bytes so a match straddling a chunk
// boundary is never missed, and returns the address of the
// (occurrence+1)-th match (0-based).
func (e *Engine) locate(files FileReader, file string, pattern []byte, occurrence int) (int64, bool) {
	size, ok := files.FileSize(file)
	if !ok || len(pattern) == 0 {
		return 0, false
	}

	var cur int64
	remaining := occurrence

	for cur < size {
		chunk, err := files.ReadFileAt(file, cur, resolveChunkSize)
		if err != nil {
			e.log.Warn("patch resolve read failed", "file", file, "error", err)
			return 0, false
		}

		idx := bytes.Index(chunk, pattern)
		if idx < 0 {
			cur += resolveChunkSize - int64(len(pattern)-1)
			continue
		}

		addr := cur + int64(idx)
		if remaining > 0 {
			remaining--
			cur = addr + int64(len(pattern))
			continue
		}

		return addr, true
	}

	return 0, false
}

// Apply overlays every operation's PatchedBytes onto buf, where buf holds
// the bytes of file starting at bufFileOffset. Operations are clipped to
// buf's bounds; partial overlaps at either edge are supported. Applying
// the same resolved patch to the same buffer twice is idempotent since
// each byte write is unconditional and deterministic.
func Apply(ops []Operation, buf []byte, bufFileOffset int64) {
	for _, op := range ops {
		for i, b := range op.PatchedBytes {
			j := op.Address + int64(i) - bufFileOffset
			if j >= 0 && j < int64(len(buf)) {
				buf[j] = b
			}
		}
	}
}
