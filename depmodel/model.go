// Package depmodel implements an edge-factored dependency model over coarse
// tags. Every tree of a sentence is scored by the product of a root weight
// for the token attached to the virtual root and an attachment weight per
// edge, chosen by the parent tag, the child tag and the edge direction.
// Sentence marginals come from the matrix-tree theorem.
package depmodel

import (
	"errors"
	"fmt"

	"github.com/happyhackingspace/sparsepr/alphabet"
	"github.com/happyhackingspace/sparsepr/constraints"
	"github.com/happyhackingspace/sparsepr/corpus"
)

// Attachment directions.
const (
	Left  = 0 // child precedes its parent
	Right = 1 // child follows its parent
)

// Direction returns Right when child > parent, Left otherwise.
func Direction(child, parent int) int {
	if child > parent {
		return Right
	}
	return Left
}

// Model holds the root and attachment distributions.
type Model struct {
	Tags *alphabet.Alphabet `json:"tags"`
	// Root[t] weighs tag t attaching to the virtual root.
	Root []float64 `json:"root"`
	// Attach[d][p][c] weighs a child tagged c attaching in direction d to a
	// parent tagged p. Each Attach[d][p] sums to one.
	Attach [2][][]float64 `json:"attach"`

	version int
}

// NewModel creates a model with uniform distributions over tags.
func NewModel(tags *alphabet.Alphabet) *Model {
	n := tags.Size()
	m := &Model{Tags: tags, Root: uniform(n)}
	for d := range m.Attach {
		m.Attach[d] = make([][]float64, n)
		for p := range n {
			m.Attach[d][p] = uniform(n)
		}
	}
	return m
}

func uniform(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1 / float64(n)
	}
	return v
}

// NumTags returns the number of tags the model covers.
func (m *Model) NumTags() int { return len(m.Root) }

// Version changes whenever the parameters change.
func (m *Model) Version() int { return m.version }

// Validate checks that the parameter shapes agree.
func (m *Model) Validate() error {
	n := len(m.Root)
	if m.Tags != nil && m.Tags.Size() != n {
		return fmt.Errorf("depmodel: %d tags but %d root weights", m.Tags.Size(), n)
	}
	for d, rows := range m.Attach {
		if len(rows) != n {
			return fmt.Errorf("depmodel: direction %d has %d parent rows, want %d", d, len(rows), n)
		}
		for p, row := range rows {
			if len(row) != n {
				return fmt.Errorf("depmodel: direction %d parent %d has %d weights, want %d", d, p, len(row), n)
			}
		}
	}
	return nil
}

// weights returns theta[h][m], the weight of the edge h -> m, and the root
// weight of every token of in.
func (m *Model) weights(in *corpus.Instance) ([][]float64, []float64) {
	n := in.Len()
	theta := make([][]float64, n)
	root := make([]float64, n)
	for h := range n {
		theta[h] = make([]float64, n)
		for c := range n {
			if c == h {
				continue
			}
			theta[h][c] = m.Attach[Direction(c, h)][in.Tags[h]][in.Tags[c]]
		}
	}
	for c := range n {
		root[c] = m.Root[in.Tags[c]]
	}
	return theta, root
}

// Counts holds expected root and attachment counts.
type Counts struct {
	Root          []float64
	Attach        [2][][]float64
	LogLikelihood float64
	Sentences     int
}

// NewCounts allocates zeroed counts shaped like m.
func (m *Model) NewCounts() *Counts {
	n := m.NumTags()
	c := &Counts{Root: make([]float64, n)}
	for d := range c.Attach {
		c.Attach[d] = make([][]float64, n)
		for p := range n {
			c.Attach[d][p] = make([]float64, n)
		}
	}
	return c
}

// Clear implements constraints.CountTable.
func (c *Counts) Clear() {
	clear(c.Root)
	for d := range c.Attach {
		for _, row := range c.Attach[d] {
			clear(row)
		}
	}
	c.LogLikelihood = 0
	c.Sentences = 0
}

// AddToCounts implements constraints.Model by adding the live posteriors of
// sd to counts.
func (m *Model) AddToCounts(sd constraints.SentenceDist, counts constraints.CountTable) error {
	c, ok := counts.(*Counts)
	if !ok {
		return fmt.Errorf("depmodel: unexpected count table %T", counts)
	}
	in := sd.Instance()
	post := sd.Posteriors()
	for child := range in.Len() {
		c.Root[in.Tags[child]] += post.Root[child]
		for parent, v := range post.Child[child] {
			if parent == child {
				continue
			}
			c.Attach[Direction(child, parent)][in.Tags[parent]][in.Tags[child]] += v
		}
	}
	if s, ok := sd.(*Sentence); ok {
		c.LogLikelihood += s.LogZ()
	}
	c.Sentences++
	return nil
}

// ErrNoCounts is returned by MStep when counts hold no mass at all.
var ErrNoCounts = errors.New("depmodel: empty counts")

// MStep re-estimates every distribution from counts with additive
// smoothing. Rows without mass become uniform.
func (m *Model) MStep(c *Counts, smoothing float64) error {
	if smoothing < 0 {
		return fmt.Errorf("depmodel: negative smoothing %v", smoothing)
	}
	if sum(c.Root) == 0 {
		return ErrNoCounts
	}
	normalize(m.Root, c.Root, smoothing)
	for d := range m.Attach {
		for p := range m.Attach[d] {
			normalize(m.Attach[d][p], c.Attach[d][p], smoothing)
		}
	}
	m.version++
	return nil
}

func normalize(dst, counts []float64, smoothing float64) {
	total := sum(counts) + smoothing*float64(len(counts))
	if total == 0 {
		for i := range dst {
			dst[i] = 1 / float64(len(dst))
		}
		return
	}
	for i, v := range counts {
		dst[i] = (v + smoothing) / total
	}
}

func sum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}
