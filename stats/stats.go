// Package stats computes decoder-side sparsity statistics that are logged
// after every EM iteration.
package stats

import (
	"fmt"
	"math"

	"github.com/happyhackingspace/sparsepr/constraints"
	"github.com/happyhackingspace/sparsepr/hmm"
)

// DependencyL1LMax is the L1Lmax penalty of a set of dependency posteriors:
// the sum over constraint groups of the largest expected count any single
// child token puts on the group.
type DependencyL1LMax struct {
	// Total sums the group maxima over every group.
	Total float64
	// Edges and Root split Total by group kind.
	Edges float64
	Root  float64
	// PerChild[c] sums the maxima of the edge groups of child entity c.
	PerChild []float64
	// Children is the number of child entities with at least one edge group.
	Children int
}

// Average returns the edge L1Lmax per child entity.
func (d DependencyL1LMax) Average() float64 {
	if d.Children == 0 {
		return 0
	}
	return d.Edges / float64(d.Children)
}

func (d DependencyL1LMax) String() string {
	return fmt.Sprintf("L1LMax %.4f edges %.4f root %.4f AVG %.4f", d.Total, d.Edges, d.Root, d.Average())
}

// Dependency computes the L1Lmax of posts, indexed by sentence, over the
// groups of ix.
func Dependency(e *constraints.Enumerator, ix *constraints.Index, posts []constraints.Posteriors) (DependencyL1LMax, error) {
	if len(posts) != ix.NumSentences {
		return DependencyL1LMax{}, fmt.Errorf("stats: index built for %d sentences, got %d", ix.NumSentences, len(posts))
	}
	maxima := make([]float64, ix.NumGroups())
	for g, refs := range ix.Groups {
		for _, ref := range refs {
			maxima[g] = math.Max(maxima[g], posts[ref.Sentence].Mass(ref))
		}
	}

	var out DependencyL1LMax
	for g, m := range maxima {
		out.Total += m
		if e.IsRootGroup(g) {
			out.Root += m
		} else {
			out.Edges += m
		}
	}
	perChild := e.GroupsPerChild()
	out.PerChild = make([]float64, len(perChild))
	for c, groups := range perChild {
		if len(groups) == 0 {
			continue
		}
		out.Children++
		for _, g := range groups {
			out.PerChild[c] += maxima[g]
		}
	}
	return out, nil
}

// Transitions tracks, for every (previous, next) state pair, the largest
// transition posterior and the sum of squared transition posteriors seen
// since the last BeforeInference. It implements hmm.Observer.
type Transitions struct {
	numStates int
	max       [][]float64
	l2        [][]float64
}

var _ hmm.Observer = (*Transitions)(nil)

// NewTransitions allocates tables for numStates hidden states.
func NewTransitions(numStates int) *Transitions {
	t := &Transitions{numStates: numStates, max: make([][]float64, numStates), l2: make([][]float64, numStates)}
	for i := range numStates {
		t.max[i] = make([]float64, numStates)
		t.l2[i] = make([]float64, numStates)
	}
	return t
}

// BeforeInference clears the tables.
func (t *Transitions) BeforeInference() {
	for i := range t.numStates {
		clear(t.max[i])
		clear(t.l2[i])
	}
}

// AfterSentence folds one sentence's transition posteriors into the tables.
func (t *Transitions) AfterSentence(p hmm.Posterior) {
	for _, tr := range p.Transitions {
		for i, row := range tr {
			for j, prob := range row {
				if prob > t.max[i][j] {
					t.max[i][j] = prob
				}
				t.l2[i][j] += prob * prob
			}
		}
	}
}

// TransitionL1LMax summarizes a Transitions table.
type TransitionL1LMax struct {
	L1LMax float64
	L1L2   float64
	States int
}

func (s TransitionL1LMax) String() string {
	k := float64(max(s.States, 1))
	return fmt.Sprintf("L1LMax %.4f AVG %.4f L1LL2 %.4f AVG %.4f", s.L1LMax, s.L1LMax/k, s.L1L2, s.L1L2/k)
}

// Summary returns the per-state row sums of the max table and the per-state
// L2 norms of the squared-sum table, each divided by the number of states
// and summed over states.
func (t *Transitions) Summary() TransitionL1LMax {
	out := TransitionL1LMax{States: t.numStates}
	if t.numStates == 0 {
		return out
	}
	k := float64(t.numStates)
	for i := range t.numStates {
		rowMax, rowL2 := 0.0, 0.0
		for j := range t.numStates {
			rowMax += t.max[i][j]
			rowL2 += t.l2[i][j]
		}
		out.L1LMax += rowMax / k
		out.L1L2 += math.Sqrt(rowL2) / k
	}
	return out
}
