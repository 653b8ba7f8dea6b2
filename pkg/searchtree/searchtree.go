// Package searchtree implements a self-balancing, offset-keyed binary
// search tree over byte ranges, supporting O(log n) insert and ordered
// interval-overlap range queries. It is the Go analogue of an AVL tree
// keyed by node offset, augmented with each node's size.
package searchtree

import "github.com/wilkovatch/http-xiso-wrapper/pkg/xiso"

// Payload is carried opaquely by each node; the tree never inspects it.
type Payload any

type node struct {
	offset, size xiso.SizeBytes
	payload      Payload
	left, right  *node
	height       int
}

func height(n *node) int {
	if n == nil {
		return 0
	}
	return n.height
}

func (n *node) updateHeight() {
	lh, rh := height(n.left), height(n.right)
	if lh > rh {
		n.height = lh + 1
	} else {
		n.height = rh + 1
	}
}

func (n *node) balanceFactor() int {
	return height(n.left) - height(n.right)
}

// Tree is an AVL tree keyed by offset.
type Tree struct {
	root *node
}

// Insert adds a node at offset with the given size and payload. offset
// must be unique; the caller (a TocBuilder) is responsible for that
// invariant, established over the non-overlapping regions of a toc.Model.
func (t *Tree) Insert(offset, size xiso.SizeBytes, payload Payload) {
	t.root = insert(t.root, offset, size, payload)
}

func insert(n *node, offset, size xiso.SizeBytes, payload Payload) *node {
	if n == nil {
		return &node{offset: offset, size: size, payload: payload, height: 1}
	}

	if offset < n.offset {
		n.left = insert(n.left, offset, size, payload)
	} else {
		n.right = insert(n.right, offset, size, payload)
	}
	n.updateHeight()

	bf := n.balanceFactor()
	if bf > 1 {
		if offset < n.left.offset {
			return rotateRight(n)
		}
		n.left = rotateLeft(n.left)
		return rotateRight(n)
	}
	if bf < -1 {
		if offset > n.right.offset {
			return rotateLeft(n)
		}
		n.right = rotateRight(n.right)
		return rotateLeft(n)
	}

	return n
}

func rotateLeft(x *node) *node {
	z := x.right
	t23 := z.left
	z.left = x
	x.right = t23
	x.updateHeight()
	z.updateHeight()
	return z
}

func rotateRight(x *node) *node {
	z := x.left
	t23 := z.right
	z.right = x
	x.left = t23
	x.updateHeight()
	z.updateHeight()
	return z
}

// Entry is one overlapping region returned by a range query, with the
// sub-range within that region clamped to the query and the padding
// needed before/after it, per the half-open range semantics of the
// overlap query.
type Entry struct {
	Payload                  Payload
	Offset, Size             xiso.SizeBytes
	Start, End               xiso.SizeBytes // sub-range within [Offset, Offset+Size)
	StartPadding, EndPadding xiso.SizeBytes
}

// padKey is the payload placed on a synthetic all-padding entry when no
// node overlaps the query at all. Callers type-assert against it to
// detect the degenerate empty-query case if they need to.
type padKey struct{}

var PadPayload Payload = padKey{}

// RangeQuery returns every node whose [offset, offset+size) overlaps the
// half-open range [start, end), in ascending offset order, with computed
// start/end sub-ranges and paddings. If nothing overlaps, a single
// synthetic padding entry spanning the whole query is returned.
func (t *Tree) RangeQuery(start, end xiso.SizeBytes) []Entry {
	var res []Entry
	search(t.root, start, end, &res)

	if len(res) == 0 {
		return []Entry{{
			Payload:      PadPayload,
			Offset:       start,
			Size:         end - start,
			Start:        0,
			End:          end - start,
			StartPadding: 0,
			EndPadding:   0,
		}}
	}

	res[0].StartPadding = max0(res[0].Offset - start)

	for i := 0; i < len(res)-1; i++ {
		e0, e1 := res[i], res[i+1]
		gap := e1.Offset - (e0.Offset + e0.Size)
		maxNeeded := end - (e0.Offset + e0.Size)
		res[i].EndPadding = minBytes(gap, maxNeeded)
	}

	last := len(res) - 1
	res[last].EndPadding = max0(end - (res[last].Offset + res[last].Size))

	return res
}

func search(n *node, start, end xiso.SizeBytes, res *[]Entry) {
	if n == nil {
		return
	}

	// Ranges are half-open: a node whose end exactly touches the query
	// start (or whose offset equals the query end) does not overlap.
	switch {
	case n.offset+n.size <= start:
		search(n.right, start, end, res)
	case n.offset >= end:
		search(n.left, start, end, res)
	default:
		search(n.left, start, end, res)
		*res = append(*res, Entry{
			Payload: n.payload,
			Offset:  n.offset,
			Size:    n.size,
			Start:   max0(start - n.offset),
			End:     minBytes(n.size, end-n.offset),
		})
		search(n.right, start, end, res)
	}
}

func max0(v xiso.SizeBytes) xiso.SizeBytes {
	if v < 0 {
		return 0
	}
	return v
}

func minBytes(a, b xiso.SizeBytes) xiso.SizeBytes {
	if a < b {
		return a
	}
	return b
}
