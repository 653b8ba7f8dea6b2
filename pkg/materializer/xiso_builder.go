package materializer

import (
	"encoding/binary"
	"fmt"

	"github.com/wilkovatch/http-xiso-wrapper/pkg/inputsource"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/toc"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/xiso"
)

// XisoBuilder is the passthrough TocBuilder for inputs that are already
// an XISO: it walks the on-disc binary tree and records region offsets
// without moving any bytes, reading file data straight out of the
// underlying source on demand.
type XisoBuilder struct {
	src         inputsource.Source
	imageOrigin xiso.SizeBytes
	rootSector  uint32
	rootSize    uint32
	size        xiso.SizeBytes

	model *toc.Model // built once, then immutable
}

// DetectXISO probes src for the volume header (sector 32) of an image
// at origin 0 and, failing that, of one at the Redump origin. It returns ok=false if neither location
// carries the magic.
func DetectXISO(src inputsource.Source) (origin xiso.SizeBytes, rootSector, rootSize uint32, ok bool) {
	for _, candidate := range [...]xiso.SizeBytes{0, xiso.RedumpOrigin} {
		buf := make([]byte, 20+8)
		n, err := src.ReadAt(buf, int64(candidate)+int64(xiso.HeaderSector.Bytes()))
		if err != nil && n < len(buf) {
			continue
		}
		if string(buf[:20]) != xiso.VolumeMagic {
			continue
		}
		return candidate, binary.LittleEndian.Uint32(buf[20:24]), binary.LittleEndian.Uint32(buf[24:28]), true
	}
	return 0, 0, 0, false
}

// NewXisoBuilder constructs a builder after DetectXISO has already
// located the header; it returns an error if the header is present but
// its root pointers are inconsistent with the source's size.
func NewXisoBuilder(src inputsource.Source, origin xiso.SizeBytes, rootSector, rootSize uint32) (*XisoBuilder, error) {
	size, err := src.Size()
	if err != nil {
		return nil, fmt.Errorf("materializer: xiso size: %w", err)
	}

	rootOffset := int64(origin) + int64(rootSector)*int64(xiso.SectorSize)
	if rootOffset < 0 || rootOffset+int64(rootSize) > size {
		return nil, fmt.Errorf("materializer: corrupt xiso: root directory [%d,%d) exceeds file size %d",
			rootOffset, rootOffset+int64(rootSize), size)
	}

	return &XisoBuilder{
		src:         src,
		imageOrigin: origin,
		rootSector:  rootSector,
		rootSize:    rootSize,
		size:        xiso.SizeBytes(size) - origin,
	}, nil
}

func (b *XisoBuilder) RequiresMediaPatch() bool   { return b.imageOrigin > 0 }
func (b *XisoBuilder) OutputSize() xiso.SizeBytes { return b.size }

func (b *XisoBuilder) ReadFileBytes(path string, offset xiso.SizeBytes, length int) ([]byte, error) {
	m, err := b.BuildTOC()
	if err != nil {
		return nil, err
	}
	r, ok := m.Get(toc.Key{Kind: toc.KindFile, Path: path})
	if !ok {
		return nil, fmt.Errorf("materializer: no such file region: %s", path)
	}

	buf := make([]byte, length)
	n, err := b.src.ReadAt(buf, int64(b.imageOrigin)+int64(r.Offset)+int64(offset))
	if err != nil && n == 0 {
		return nil, err
	}
	return buf[:n], nil
}

type xisoWorkItem struct {
	parentPath   string
	parentOffset xiso.SizeBytes
	parentSize   xiso.SizeBytes
	nodeOffset   xiso.SizeBytes
}

// BuildTOC walks the implicit per-directory binary tree using an
// explicit stack rather than recursion, so a maliciously deep or cyclic
// tree can't blow the goroutine stack. The model is built once and
// reused by later calls.
func (b *XisoBuilder) BuildTOC() (*toc.Model, error) {
	if b.model != nil {
		return b.model, nil
	}

	m := toc.NewModel()
	m.Add(toc.Region{
		Key:    toc.Key{Kind: toc.KindHeader},
		Offset: xiso.HeaderSector.Bytes(),
		Size:   xiso.SectorSize,
		Header: &toc.HeaderExtra{RootSector: b.rootSector, RootSize: b.rootSize},
	})

	rootOffset := xiso.SizeBytes(b.rootSector) * xiso.SectorSize

	// Stack is LIFO; push order is reversed so popping reproduces the
	// visit order: node, directory child, left sibling, right sibling.
	stack := []xisoWorkItem{{parentPath: "", parentOffset: rootOffset, parentSize: xiso.SizeBytes(b.rootSize), nodeOffset: 0}}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if item.nodeOffset >= item.parentSize {
			continue
		}

		entryOffset := item.parentOffset + item.nodeOffset

		header := make([]byte, 14)
		if _, err := b.src.ReadAt(header, int64(b.imageOrigin)+int64(entryOffset)); err != nil {
			return nil, fmt.Errorf("materializer: read toc entry at %d: %w", entryOffset, err)
		}
		if xiso.EntryEmpty(header) {
			continue
		}

		nameLen := int(header[13])
		nameBuf := make([]byte, nameLen)
		if _, err := b.src.ReadAt(nameBuf, int64(b.imageOrigin)+int64(entryOffset)+14); err != nil {
			return nil, fmt.Errorf("materializer: read toc entry name at %d: %w", entryOffset, err)
		}

		entry := xiso.Entry{
			LeftOffset:  binary.LittleEndian.Uint16(header[0:2]),
			RightOffset: binary.LittleEndian.Uint16(header[2:4]),
			NodeSector:  binary.LittleEndian.Uint32(header[4:8]),
			NodeSize:    binary.LittleEndian.Uint32(header[8:12]),
			Attributes:  header[12],
			Name:        string(nameBuf),
		}

		filePath := joinPath(item.parentPath, entry.Name)
		dataOffset := xiso.SizeBytes(entry.NodeSector) * xiso.SectorSize

		m.Add(toc.Region{
			Key:    toc.Key{Kind: toc.KindTOC, Path: filePath},
			Offset: entryOffset,
			Size:   entry.EncodedSize(),
			TOC:    &toc.TOCExtra{Entry: entry},
		})
		if !entry.IsDir() {
			m.Add(toc.Region{
				Key:    toc.Key{Kind: toc.KindFile, Path: filePath},
				Offset: dataOffset,
				Size:   xiso.SizeBytes(entry.NodeSize),
			})
		}

		left, right := entry.LeftOffset, entry.RightOffset
		if right != 0 && right != 0xFFFF {
			stack = append(stack, xisoWorkItem{
				parentPath: item.parentPath, parentOffset: item.parentOffset,
				parentSize: item.parentSize, nodeOffset: xiso.SizeBytes(right) * 4,
			})
		}
		if left != 0 && left != 0xFFFF {
			stack = append(stack, xisoWorkItem{
				parentPath: item.parentPath, parentOffset: item.parentOffset,
				parentSize: item.parentSize, nodeOffset: xiso.SizeBytes(left) * 4,
			})
		}
		if entry.IsDir() && entry.NodeSize != 0 {
			stack = append(stack, xisoWorkItem{
				parentPath:   filePath,
				parentOffset: dataOffset,
				parentSize:   xiso.SizeBytes(entry.NodeSize),
				nodeOffset:   0,
			})
		}
	}

	b.model = m
	return m, nil
}
