package materializer

import (
	"fmt"
	"strings"

	"github.com/wilkovatch/http-xiso-wrapper/pkg/inputsource"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/toc"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/xiso"
)

const rootStartSector = 33

// DirectoryBuilder synthesizes XISO geometry from a directory tree (or a
// zip archive walked the same way): per-directory entries are ordered by
// a name-keyed AVL tree, packed without straddling sectors, and offsets
// are assigned in two passes over the whole tree.
type DirectoryBuilder struct {
	src inputsource.Source

	dirs      map[string]*dirPlan // key: directory path relative to root, "" is root
	dirOrder  []string            // root first, then the rest in a fixed walk order
	totalSize xiso.SizeBytes      // final layout cursor, trailing gap sector included
}

type entryPlan struct {
	name        string
	isDir       bool
	fileSize    xiso.SizeBytes // for files
	childPath   string         // for directories, the key into dirs
	entrySize   xiso.SizeBytes
	entryOff    xiso.SizeBytes // absolute offset of this entry within its parent's TOC region
	dataOff     xiso.SizeBytes // absolute offset of file data, or of the child directory's TOC region
	leftName    string         // tree children by name, recorded at discovery
	rightName   string
	leftOffset  uint16
	rightOffset uint16
}

type dirPlan struct {
	path       string
	entries    []*entryPlan // in pre-order packing order
	byName     map[string]*entryPlan
	tocStart   xiso.SizeBytes // absolute offset of this directory's first entry
	packedSize xiso.SizeBytes // packed entry bytes, straddle pushes included, not ceiled
	tocSize    xiso.SizeBytes // packedSize ceiled to a sector, as referenced by parent entries
}

// NewDirectoryBuilder walks src's directory tree (via Walk) and computes
// the full synthesized geometry eagerly; BuildTOC then only needs to
// translate that geometry into a toc.Model.
func NewDirectoryBuilder(src inputsource.Source) (*DirectoryBuilder, error) {
	b := &DirectoryBuilder{src: src, dirs: make(map[string]*dirPlan)}

	if err := b.discover(""); err != nil {
		return nil, err
	}
	b.computeLocalTOCSizes()
	b.assignOffsets()
	b.assignLeftRight()

	return b, nil
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// discover performs a breadth-first walk of src, populating b.dirs and
// b.dirOrder with root first.
func (b *DirectoryBuilder) discover(root string) error {
	queue := []string{root}
	seen := map[string]bool{root: true}

	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		children, err := b.src.Walk(dir)
		if err != nil {
			return fmt.Errorf("materializer: walk %q: %w", dir, err)
		}

		plan := &dirPlan{path: dir, byName: make(map[string]*entryPlan)}

		tree := &nameTree{}
		names := make(map[string]inputsource.DirEntry, len(children))
		for _, c := range children {
			tree.insert(c.Name)
			names[c.Name] = c
		}

		for _, pe := range tree.preorder() {
			c := names[pe.name]
			ep := &entryPlan{name: c.Name, isDir: c.IsDir, leftName: pe.leftName, rightName: pe.rightName}
			if c.IsDir {
				ep.childPath = joinPath(dir, c.Name)
			} else {
				size, err := b.src.SubSize(joinPath(dir, c.Name))
				if err != nil {
					return err
				}
				ep.fileSize = xiso.SizeBytes(size)
			}
			ep.entrySize = (xiso.Entry{Name: c.Name}).EncodedSize()
			plan.entries = append(plan.entries, ep)
			plan.byName[c.Name] = ep
		}

		b.dirs[dir] = plan
		b.dirOrder = append(b.dirOrder, dir)

		for _, c := range children {
			if c.IsDir {
				childPath := joinPath(dir, c.Name)
				if !seen[childPath] {
					seen[childPath] = true
					queue = append(queue, childPath)
				}
			}
		}
	}

	return nil
}

// adjustedEntryOffset pushes cur forward to the next sector boundary if
// placing an entry of entrySize at cur would straddle a sector. Ending
// exactly on a boundary is fine; crossing one is not.
func adjustedEntryOffset(cur, entrySize xiso.SizeBytes) xiso.SizeBytes {
	if cur%xiso.SectorSize+entrySize > xiso.SectorSize {
		return cur.CeilSector()
	}
	return cur
}

// computeLocalTOCSizes computes each directory's own TOC region size in
// isolation (starting from a local offset of 0), independent of where
// that directory ultimately lands in the global layout. A directory's
// size depends only on its own children's entry sizes, never on its
// children's *contents*, so this can run before the global offset pass.
func (b *DirectoryBuilder) computeLocalTOCSizes() {
	for _, dir := range b.dirOrder {
		plan := b.dirs[dir]
		var cur xiso.SizeBytes
		for _, e := range plan.entries {
			cur = adjustedEntryOffset(cur, e.entrySize)
			cur += e.entrySize
		}
		plan.packedSize = cur
		plan.tocSize = cur.CeilSector()
	}
}

// assignOffsets runs the global two-pass offset assignment: for
// each directory in turn, pack its TOC entries, ceil to a sector, then
// place its files' data, ceil after each, then add one empty sector
// before moving to the next directory.
func (b *DirectoryBuilder) assignOffsets() {
	cur := xiso.SizeBytes(rootStartSector) * xiso.SectorSize

	for _, dir := range b.dirOrder {
		plan := b.dirs[dir]
		plan.tocStart = cur

		for _, e := range plan.entries {
			cur = adjustedEntryOffset(cur, e.entrySize)
			e.entryOff = cur
			cur += e.entrySize
		}
		cur = cur.CeilSector()

		for _, e := range plan.entries {
			if e.isDir {
				continue
			}
			e.dataOff = cur
			cur = (cur + e.fileSize).CeilSector()
		}

		cur += xiso.SectorSize
	}
	b.totalSize = cur

	// Directory entries point at their own directory's TOC start.
	for _, dir := range b.dirOrder {
		if dir == "" {
			continue
		}
		parent, name := splitParent(dir)
		b.dirs[parent].byName[name].dataOff = b.dirs[dir].tocStart
	}
}

func splitParent(path string) (parent, name string) {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

// assignLeftRight computes each entry's left/right TOC offsets (in units
// of 4 bytes, relative to the directory's own TOC start), from the tree
// children recorded at discovery time.
func (b *DirectoryBuilder) assignLeftRight() {
	for _, dir := range b.dirOrder {
		plan := b.dirs[dir]
		for _, e := range plan.entries {
			if e.leftName != "" {
				e.leftOffset = uint16((plan.byName[e.leftName].entryOff - plan.tocStart) / 4)
			}
			if e.rightName != "" {
				e.rightOffset = uint16((plan.byName[e.rightName].entryOff - plan.tocStart) / 4)
			}
		}
	}
}

func (b *DirectoryBuilder) RequiresMediaPatch() bool { return false }

func (b *DirectoryBuilder) OutputSize() xiso.SizeBytes { return b.totalSize }

func (b *DirectoryBuilder) ReadFileBytes(path string, offset xiso.SizeBytes, length int) ([]byte, error) {
	f, err := b.src.OpenSub(path)
	if err != nil {
		return nil, fmt.Errorf("materializer: open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, int64(offset))
	if err != nil && n == 0 {
		return nil, err
	}
	return buf[:n], nil
}

// BuildTOC translates the computed geometry into a toc.Model.
func (b *DirectoryBuilder) BuildTOC() (*toc.Model, error) {
	m := toc.NewModel()

	root := b.dirs[""]
	m.Add(toc.Region{
		Key:    toc.Key{Kind: toc.KindHeader},
		Offset: xiso.HeaderSector.Bytes(),
		Size:   xiso.SectorSize,
		Header: &toc.HeaderExtra{RootSector: uint32(root.tocStart / xiso.SectorSize), RootSize: uint32(root.packedSize)},
	})

	for _, dir := range b.dirOrder {
		plan := b.dirs[dir]
		for _, e := range plan.entries {
			path := joinPath(dir, e.name)

			entry := xiso.Entry{
				LeftOffset:  e.leftOffset,
				RightOffset: e.rightOffset,
				Name:        e.name,
			}
			if e.isDir {
				entry.Attributes = xiso.AttrDirectory
				entry.NodeSector = uint32(e.dataOff / xiso.SectorSize)
				entry.NodeSize = uint32(b.dirs[e.childPath].tocSize)
			} else {
				entry.Attributes = xiso.AttrFile
				entry.NodeSector = uint32(e.dataOff / xiso.SectorSize)
				entry.NodeSize = uint32(e.fileSize)
			}

			m.Add(toc.Region{
				Key:    toc.Key{Kind: toc.KindTOC, Path: path},
				Offset: e.entryOff,
				Size:   entry.EncodedSize(),
				TOC:    &toc.TOCExtra{Entry: entry},
			})

			if !e.isDir {
				m.Add(toc.Region{
					Key:    toc.Key{Kind: toc.KindFile, Path: path},
					Offset: e.dataOff,
					Size:   e.fileSize,
				})
			}
		}
	}

	return m, nil
}
