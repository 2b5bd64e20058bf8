package blocktree

import kerr "github.com/keramics/keramics/pkg/errors"

// Tree maps a sparse linear space of base element size e onto leaf
// values, branching by a fixed factor per level. Insert stamps whole
// subtrees once their span no longer exceeds the inserted range,
// rather than always subdividing down to e; leaf slots are write-once.
type Tree[V any] struct {
	elementSize     int64
	elementsPerNode int
	rootSpan        int64
	root            *node[V]
}

type node[V any] struct {
	assigned bool
	value    V
	children []*node[V]
}

// New builds a Tree over [0, totalSize) with base element size
// elementSize and branching factor elementsPerNode (both must be > 0).
// The tree's depth is the smallest number of levels such that
// elementSize * elementsPerNode^depth covers totalSize.
func New[V any](elementSize int64, elementsPerNode int, totalSize int64) *Tree[V] {
	span := elementSize
	for span < totalSize {
		span *= int64(elementsPerNode)
	}
	return &Tree[V]{
		elementSize:     elementSize,
		elementsPerNode: elementsPerNode,
		rootSpan:        span,
		root:            &node[V]{},
	}
}

// Insert stores value for the range [offset, offset+size). Any portion
// of that range already covered by a prior Insert is a conflict: the
// whole call fails and the tree is left with only the successfully
// inserted prefix of this call's recursion, matching a write-once leaf
// discipline (callers that need atomicity should treat any error as
// fatal for the whole build).
func (t *Tree[V]) Insert(offset, size int64, value V) error {
	if size <= 0 {
		return kerr.New(kerr.KindInternal, "blocktree", "insert size must be positive")
	}
	if offset < 0 || offset+size > t.rootSpan {
		return kerr.New(kerr.KindInternal, "blocktree", "insert range out of bounds")
	}
	return t.insert(t.root, 0, t.rootSpan, offset, size, value)
}

func (t *Tree[V]) insert(n *node[V], nodeStart, nodeSpan, offset, size int64, value V) error {
	if n.assigned {
		return kerr.New(kerr.KindCorruption, "blocktree", "duplicate insert over an already-assigned range")
	}

	nodeEnd := nodeStart + nodeSpan
	if nodeSpan <= size && offset <= nodeStart && nodeEnd <= offset+size {
		n.assigned = true
		n.value = value
		n.children = nil
		return nil
	}

	if nodeSpan <= t.elementSize {
		// At base granularity already: the insert only partially
		// covers this leaf, since it didn't qualify for the
		// whole-node stamp above. The caller's range must be
		// misaligned with the base element size.
		return kerr.New(kerr.KindInternal, "blocktree", "insert range misaligned with base element size")
	}

	childSpan := nodeSpan / int64(t.elementsPerNode)
	if n.children == nil {
		n.children = make([]*node[V], t.elementsPerNode)
	}
	for i := 0; i < t.elementsPerNode; i++ {
		childStart := nodeStart + int64(i)*childSpan
		childEnd := childStart + childSpan
		if childEnd <= offset || childStart >= offset+size {
			continue
		}
		if n.children[i] == nil {
			n.children[i] = &node[V]{}
		}
		if err := t.insert(n.children[i], childStart, childSpan, offset, size, value); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the value covering offset, if any range inserted so far
// covers it.
func (t *Tree[V]) Get(offset int64) (V, bool) {
	var zero V
	if offset < 0 || offset >= t.rootSpan {
		return zero, false
	}
	return t.get(t.root, 0, t.rootSpan, offset)
}

func (t *Tree[V]) get(n *node[V], nodeStart, nodeSpan, offset int64) (V, bool) {
	var zero V
	if n == nil {
		return zero, false
	}
	if n.assigned {
		return n.value, true
	}
	if n.children == nil {
		return zero, false
	}
	childSpan := nodeSpan / int64(t.elementsPerNode)
	idx := (offset - nodeStart) / childSpan
	return t.get(n.children[idx], nodeStart+idx*childSpan, childSpan, offset)
}
