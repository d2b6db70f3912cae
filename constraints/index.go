package constraints

import (
	"fmt"

	"github.com/happyhackingspace/sparsepr/corpus"
)

// RootPosition is the parent position of a root reference.
const RootPosition = -1

// Reference locates one optimization variable in the corpus: child token
// Child of sentence Sentence together with every parent position that maps
// to the same group. Root references have Parents == [RootPosition].
type Reference struct {
	Sentence int
	Child    int
	Parents  []int
}

// NewReference builds a Reference. A missing parent list is a programming
// error and panics.
func NewReference(sentence, child int, parents []int) Reference {
	if len(parents) == 0 {
		panic("constraints: reference without parents")
	}
	return Reference{Sentence: sentence, Child: child, Parents: parents}
}

// IsRoot reports whether r refers to the virtual root attachment.
func (r Reference) IsRoot() bool {
	return len(r.Parents) == 1 && r.Parents[0] == RootPosition
}

// Index is the bijection between flat optimization-variable indices and
// structured (sentence, child, parents) references.
//
// Groups[g] lists the references of group g; Flat is their concatenation in
// group order, so group g occupies Flat[Offsets[g]:Offsets[g+1]].
type Index struct {
	Groups       [][]Reference
	Flat         []Reference
	Offsets      []int
	NumSentences int
}

// BuildIndex enumerates every root and edge group of instances and lays out
// their references. Counting and filling run the same traversal, so the
// enumerator alone decides group membership.
func BuildIndex(e *Enumerator, instances []*corpus.Instance) *Index {
	var counts []int
	visit(e, instances, func(_, _, g int, _ []int) {
		for g >= len(counts) {
			counts = append(counts, 0)
		}
		counts[g]++
	})
	for len(counts) < e.NumGroups() {
		counts = append(counts, 0)
	}

	ix := &Index{
		Groups:       make([][]Reference, len(counts)),
		Offsets:      make([]int, len(counts)+1),
		NumSentences: len(instances),
	}
	for g, n := range counts {
		ix.Groups[g] = make([]Reference, 0, n)
		ix.Offsets[g+1] = ix.Offsets[g] + n
	}

	visit(e, instances, func(s, child, g int, parents []int) {
		if len(ix.Groups[g]) == cap(ix.Groups[g]) {
			panic(fmt.Sprintf("constraints: group %d grew between passes", g))
		}
		ix.Groups[g] = append(ix.Groups[g], NewReference(s, child, parents))
	})

	ix.Flat = make([]Reference, 0, ix.Offsets[len(counts)])
	for _, refs := range ix.Groups {
		ix.Flat = append(ix.Flat, refs...)
	}
	return ix
}

// visit calls fn once per root group and once per distinct edge group of
// every child token. parents is freshly allocated for each call.
func visit(e *Enumerator, instances []*corpus.Instance, fn func(s, child, g int, parents []int)) {
	var order []int
	byGroup := make(map[int][]int)
	for s, in := range instances {
		n := in.Len()
		for child := range n {
			if g, ok := e.GroupForRoot(in, child); ok {
				fn(s, child, g, []int{RootPosition})
			}
			order = order[:0]
			clear(byGroup)
			for parent := range n {
				if parent == child {
					continue
				}
				g := e.GroupForEdge(in, child, parent)
				if _, seen := byGroup[g]; !seen {
					order = append(order, g)
				}
				byGroup[g] = append(byGroup[g], parent)
			}
			for _, g := range order {
				fn(s, child, g, byGroup[g])
			}
		}
	}
}

// Len returns the number of optimization variables.
func (ix *Index) Len() int { return len(ix.Flat) }

// NumGroups returns the number of groups, including empty ones.
func (ix *Index) NumGroups() int { return len(ix.Groups) }

// Occurrences returns the number of references in group g.
func (ix *Index) Occurrences(g int) int { return len(ix.Groups[g]) }

// Sizes returns the occurrence count of every group.
func (ix *Index) Sizes() []int {
	sizes := make([]int, len(ix.Groups))
	for g, refs := range ix.Groups {
		sizes[g] = len(refs)
	}
	return sizes
}

// Check panics if the per-group lists and the flat index disagree in size.
func (ix *Index) Check() {
	total := 0
	for _, refs := range ix.Groups {
		total += len(refs)
	}
	if total != len(ix.Flat) {
		panic(fmt.Sprintf("constraints: index holds %d grouped references but %d flat ones", total, len(ix.Flat)))
	}
}
