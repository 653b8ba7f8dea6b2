// Package toc defines the in-memory model of a synthesized or parsed XISO:
// a set of typed, non-overlapping byte regions keyed by a stable string key.
package toc

import (
	"fmt"
	"sort"

	"github.com/wilkovatch/http-xiso-wrapper/pkg/xiso"
)

// Kind distinguishes the three region types a TOC can contain.
type Kind int

const (
	KindHeader Kind = iota
	KindTOC
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "HEADER"
	case KindTOC:
		return "TOC"
	case KindFile:
		return "FILE"
	default:
		return "UNKNOWN"
	}
}

// Key is the typed, unique identifier of a region: "HEADER:HEADER",
// "TOC:<path>", or "FILE:<path>".
type Key struct {
	Kind Kind
	Path string
}

func (k Key) String() string {
	if k.Kind == KindHeader {
		return "HEADER:HEADER"
	}
	return fmt.Sprintf("%s:%s", k.Kind, k.Path)
}

// HeaderExtra carries the header region's volume-level fields.
type HeaderExtra struct {
	RootSector uint32
	RootSize   uint32
}

// TOCExtra carries the fields needed to re-encode a directory TOC entry.
type TOCExtra struct {
	Entry xiso.Entry
}

// Region is one addressable, non-overlapping span of the synthesized output.
type Region struct {
	Key    Key
	Offset xiso.SizeBytes
	Size   xiso.SizeBytes

	Header *HeaderExtra // set iff Key.Kind == KindHeader
	TOC    *TOCExtra    // set iff Key.Kind == KindTOC
}

// Model is the full set of regions describing one synthesized or parsed
// XISO. It is built once per input path and then treated as immutable.
type Model struct {
	regions map[Key]*Region
}

func NewModel() *Model {
	return &Model{regions: make(map[Key]*Region)}
}

// Add inserts a region. It panics on a duplicate key, since that
// indicates a builder bug rather than a runtime condition to recover
// from.
func (m *Model) Add(r Region) {
	if _, exists := m.regions[r.Key]; exists {
		panic(fmt.Sprintf("toc: duplicate region key %s", r.Key))
	}
	m.regions[r.Key] = &r
}

func (m *Model) Get(k Key) (*Region, bool) {
	r, ok := m.regions[k]
	return r, ok
}

// Regions returns every region sorted by ascending offset.
func (m *Model) Regions() []*Region {
	out := make([]*Region, 0, len(m.regions))
	for _, r := range m.regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// TotalSize is the offset immediately past the last region, i.e. the
// byte length of the full synthesized output.
func (m *Model) TotalSize() xiso.SizeBytes {
	var max xiso.SizeBytes
	for _, r := range m.regions {
		if end := r.Offset + r.Size; end > max {
			max = end
		}
	}
	return max
}
