package materializer

import (
	"fmt"
	"io"

	"github.com/wilkovatch/http-xiso-wrapper/pkg/patch"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/searchtree"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/toc"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/xiso"
)

const fillByte = 0xFF

// Materializer serves byte ranges of a synthesized/parsed XISO by
// querying a searchtree.Tree built over a toc.Model and delegating
// per-region byte production to the active TocBuilder.
type Materializer struct {
	builder   TocBuilder
	model     *toc.Model
	tree      *searchtree.Tree
	totalSize xiso.SizeBytes

	patches []patch.Patch // resolved, selected for this image's title
}

// New builds the SearchTree over model's regions and returns a ready
// Materializer. patches must already be selected and resolved against
// this model (see the facade).
func New(builder TocBuilder, model *toc.Model, patches []patch.Patch) *Materializer {
	tree := &searchtree.Tree{}
	for _, r := range model.Regions() {
		tree.Insert(r.Offset, r.Size, r)
	}

	return &Materializer{
		builder:   builder,
		model:     model,
		tree:      tree,
		totalSize: builder.OutputSize(),
		patches:   patches,
	}
}

func (m *Materializer) TotalSize() xiso.SizeBytes { return m.totalSize }

// Read returns exactly end-start bytes covering the virtual range
// [start, end).
func (m *Materializer) Read(start, end xiso.SizeBytes) ([]byte, error) {
	if end < start {
		return nil, fmt.Errorf("materializer: invalid range [%d,%d)", start, end)
	}

	out := make([]byte, 0, end-start)
	for _, e := range m.tree.RangeQuery(start, end) {
		if e.StartPadding > 0 {
			out = append(out, fillBytes(int(e.StartPadding))...)
		}

		if e.End > e.Start {
			b, err := m.readRegion(e)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}

		if e.EndPadding > 0 {
			out = append(out, fillBytes(int(e.EndPadding))...)
		}
	}

	return out, nil
}

// ReadAll drives Read in a loop over the whole output, never stopping
// before every byte up to the total size has been produced.
func (m *Materializer) ReadAll(bufSize int) ([]byte, error) {
	total := m.totalSize
	out := make([]byte, 0, total)

	var produced xiso.SizeBytes
	for produced < total {
		n := xiso.SizeBytes(bufSize)
		if produced+n > total {
			n = total - produced
		}
		b, err := m.Read(produced, produced+n)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
		produced += n
	}

	return out, nil
}

// RangeReader adapts a sub-range of the materialized output to
// io.Reader for streaming to a transport. Each Read call materializes
// at most len(p) bytes; the reader never stops short of end, so a
// driver looping to EOF always emits the final byte.
type RangeReader struct {
	m        *Materializer
	pos, end xiso.SizeBytes
}

// RangeReader returns a reader over [start, end) of the output.
func (m *Materializer) RangeReader(start, end xiso.SizeBytes) *RangeReader {
	return &RangeReader{m: m, pos: start, end: end}
}

func (r *RangeReader) Read(p []byte) (int, error) {
	if r.pos >= r.end {
		return 0, io.EOF
	}

	n := xiso.SizeBytes(len(p))
	if r.pos+n > r.end {
		n = r.end - r.pos
	}

	b, err := r.m.Read(r.pos, r.pos+n)
	if err != nil {
		return 0, err
	}

	copy(p, b)
	r.pos += n
	return int(n), nil
}

func (m *Materializer) readRegion(e searchtree.Entry) ([]byte, error) {
	r, ok := e.Payload.(*toc.Region)
	if !ok {
		// The synthetic PAD entry from an empty range query.
		return fillBytes(int(e.End - e.Start)), nil
	}

	switch r.Key.Kind {
	case toc.KindHeader:
		full := (xiso.Header{RootSector: r.Header.RootSector, RootSize: r.Header.RootSize}).Encode()
		return full[e.Start:e.End], nil

	case toc.KindTOC:
		var enc xiso.Encoder
		r.TOC.Entry.Encode(&enc)
		enc.PadTo(r.Size, fillByte)
		full := []byte(enc)
		return full[e.Start:e.End], nil

	case toc.KindFile:
		length := int(e.End - e.Start)
		buf, err := m.builder.ReadFileBytes(r.Key.Path, e.Start, length)
		if err != nil {
			return nil, fmt.Errorf("materializer: read file region %s: %w", r.Key.Path, err)
		}

		fileOffset := e.Start // file-relative offset of buf[0]
		for _, p := range m.patches {
			if p.TargetFile == r.Key.Path {
				patch.Apply(p.Operations, buf, int64(fileOffset))
			}
		}

		return buf, nil

	default:
		return nil, fmt.Errorf("materializer: unknown region kind %v", r.Key.Kind)
	}
}

func fillBytes(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = fillByte
	}
	return b
}
