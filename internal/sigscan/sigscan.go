package sigscan

import (
	"bytes"
	"fmt"
	"sort"

	kerr "github.com/keramics/keramics/pkg/errors"
)

// Class is one of the three pattern classes the scanner recognises.
type Class int

const (
	// HeadBound signatures must appear at a declared absolute offset
	// from the start of the stream.
	HeadBound Class = iota
	// TailBound signatures must appear at a declared offset counted
	// back from the end of the stream.
	TailBound
	// Unbound signatures may appear anywhere in the stream.
	Unbound
)

// Signature is one recognisable byte pattern. Anchor is the absolute
// start offset for HeadBound, the distance from stream end to the
// match's start offset for TailBound, and unused for Unbound.
type Signature struct {
	ID      int
	Class   Class
	Anchor  int64
	Pattern []byte
}

// Match reports a signature found at offset.
type Match struct {
	Offset int64
	ID     int
}

// Scanner holds the built scan trees and skip table for one signature
// set. Build it once, Scan it over as many buffers as needed.
type Scanner struct {
	headTrees   map[int64]*scanNode
	tailTrees   map[int64]*scanNode
	unboundTree *scanNode

	skipTable       [256]int
	shortestUnbound int
}

// scanNode is either a branch, testing the byte at `position` within
// the candidate pattern(s), or a leaf holding the final candidate set
// to verify by memcmp.
type scanNode struct {
	position   int
	children   map[byte]*scanNode
	candidates []Signature
}

// Build constructs a Scanner from sigs. It fails only on a pattern
// conflict: two distinct signatures sharing the same (class, anchor,
// pattern bytes).
func Build(sigs []Signature) (*Scanner, error) {
	seen := make(map[string]bool, len(sigs))
	var head, tail, unbound []Signature
	for _, s := range sigs {
		key := fmt.Sprintf("%d:%d:%s", s.Class, s.Anchor, s.Pattern)
		if seen[key] {
			return nil, kerr.New(kerr.KindFormatInvalid, "sigscan", "pattern-conflict: duplicate (class, anchor, pattern)")
		}
		seen[key] = true

		switch s.Class {
		case HeadBound:
			head = append(head, s)
		case TailBound:
			tail = append(tail, s)
		case Unbound:
			unbound = append(unbound, s)
		}
	}

	sc := &Scanner{
		headTrees:   buildGroupedTrees(head),
		tailTrees:   buildGroupedTrees(tail),
		unboundTree: buildTree(unbound),
	}
	sc.buildSkipTable(unbound)
	return sc, nil
}

func buildGroupedTrees(sigs []Signature) map[int64]*scanNode {
	groups := make(map[int64][]Signature)
	for _, s := range sigs {
		groups[s.Anchor] = append(groups[s.Anchor], s)
	}
	trees := make(map[int64]*scanNode, len(groups))
	for anchor, group := range groups {
		trees[anchor] = buildTree(group)
	}
	return trees
}

// buildTree recursively partitions sigs by the byte position that
// splits them most evenly (smallest worst-case group), ties broken by
// the smallest offset, until each group is a single candidate.
func buildTree(sigs []Signature) *scanNode {
	if len(sigs) == 0 {
		return nil
	}
	if len(sigs) == 1 {
		return &scanNode{position: -1, candidates: sigs}
	}

	minLen := len(sigs[0].Pattern)
	for _, s := range sigs[1:] {
		if len(s.Pattern) < minLen {
			minLen = len(s.Pattern)
		}
	}

	bestPos := -1
	bestScore := -1
	var bestGroups map[byte][]Signature
	for p := 0; p < minLen; p++ {
		groups := make(map[byte][]Signature)
		for _, s := range sigs {
			groups[s.Pattern[p]] = append(groups[s.Pattern[p]], s)
		}
		if len(groups) < 2 {
			// Every candidate shares the same byte at p: this position
			// makes no progress splitting the set, so it's not a
			// usable branch point.
			continue
		}
		worst := 0
		for _, g := range groups {
			if len(g) > worst {
				worst = len(g)
			}
		}
		if bestPos == -1 || worst < bestScore {
			bestPos, bestScore, bestGroups = p, worst, groups
		}
	}

	if bestPos == -1 {
		// No byte position disambiguates further (every pattern here
		// is a prefix of the others, or all identical past a
		// non-conflicting anchor); leave as a leaf, resolved by
		// memcmp at scan time.
		return &scanNode{position: -1, candidates: sigs}
	}

	children := make(map[byte]*scanNode, len(bestGroups))
	for b, group := range bestGroups {
		children[b] = buildTree(group)
	}
	return &scanNode{position: bestPos, children: children}
}

// buildSkipTable builds the Boyer-Moore-Horspool skip table for the
// unbound class: for each byte value, the smallest distance to the end
// of the shortest unbound pattern, computed by looking only at each
// pattern's first `shortest` bytes (all that can be compared against
// that window in every case).
func (sc *Scanner) buildSkipTable(unbound []Signature) {
	if len(unbound) == 0 {
		return
	}
	shortest := len(unbound[0].Pattern)
	for _, s := range unbound[1:] {
		if len(s.Pattern) < shortest {
			shortest = len(s.Pattern)
		}
	}
	sc.shortestUnbound = shortest

	for i := range sc.skipTable {
		sc.skipTable[i] = shortest
	}
	for _, s := range unbound {
		limit := shortest
		if len(s.Pattern) < limit {
			limit = len(s.Pattern)
		}
		for i := 0; i < limit; i++ {
			dist := shortest - 1 - i
			if dist < sc.skipTable[s.Pattern[i]] {
				sc.skipTable[s.Pattern[i]] = dist
			}
		}
	}
}

// Scan reports every (offset, signature-id) match in buffer, in
// stream-offset order. Scan never fails; only Build can.
func (sc *Scanner) Scan(buffer []byte) []Match {
	var matches []Match

	for anchor, tree := range sc.headTrees {
		matches = append(matches, sc.verify(tree, buffer, int(anchor))...)
	}
	for anchor, tree := range sc.tailTrees {
		pos := int64(len(buffer)) - anchor
		if pos < 0 {
			continue
		}
		matches = append(matches, sc.verify(tree, buffer, int(pos))...)
	}

	if sc.unboundTree != nil && sc.shortestUnbound > 0 {
		i := 0
		for i+sc.shortestUnbound <= len(buffer) {
			matches = append(matches, sc.verify(sc.unboundTree, buffer, i)...)
			skip := sc.skipTable[buffer[i+sc.shortestUnbound-1]]
			if skip <= 0 {
				skip = 1
			}
			i += skip
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Offset != matches[j].Offset {
			return matches[i].Offset < matches[j].Offset
		}
		return matches[i].ID < matches[j].ID
	})
	return matches
}

// verify walks node against buffer starting at pos, memcmp-verifying
// whatever candidate set the walk reaches.
func (sc *Scanner) verify(node *scanNode, buffer []byte, pos int) []Match {
	if node == nil || pos < 0 {
		return nil
	}
	if node.position == -1 {
		var out []Match
		for _, s := range node.candidates {
			end := pos + len(s.Pattern)
			if end <= len(buffer) && bytes.Equal(buffer[pos:end], s.Pattern) {
				out = append(out, Match{Offset: int64(pos), ID: s.ID})
			}
		}
		return out
	}
	idx := pos + node.position
	if idx < 0 || idx >= len(buffer) {
		return nil
	}
	child, ok := node.children[buffer[idx]]
	if !ok {
		return nil
	}
	return sc.verify(child, buffer, pos)
}
