package constraints

import "github.com/happyhackingspace/sparsepr/corpus"

// Posteriors holds per-sentence edge and root marginals. Child[c][p] is the
// probability that token p heads token c; Root[c] that the virtual root
// heads c.
type Posteriors struct {
	Child [][]float64
	Root  []float64
}

// NewPosteriors allocates zeroed posteriors for a sentence of n tokens.
func NewPosteriors(n int) Posteriors {
	p := Posteriors{Child: make([][]float64, n), Root: make([]float64, n)}
	for c := range n {
		p.Child[c] = make([]float64, n)
	}
	return p
}

// Clone returns a deep copy.
func (p Posteriors) Clone() Posteriors {
	out := Posteriors{Child: make([][]float64, len(p.Child)), Root: append([]float64(nil), p.Root...)}
	for c, row := range p.Child {
		out.Child[c] = append([]float64(nil), row...)
	}
	return out
}

// CopyFrom overwrites p with src. Shapes must match.
func (p Posteriors) CopyFrom(src Posteriors) {
	copy(p.Root, src.Root)
	for c, row := range src.Child {
		copy(p.Child[c], row)
	}
}

// Penalty holds non-negative multipliers added to edge and root scores:
// a tree z is reweighted by exp(-sum of penalties of its edges).
type Penalty = Posteriors

// IsZero reports whether every entry is zero.
func (p Posteriors) IsZero() bool {
	for _, v := range p.Root {
		if v != 0 {
			return false
		}
	}
	for _, row := range p.Child {
		for _, v := range row {
			if v != 0 {
				return false
			}
		}
	}
	return true
}

// Mass returns the expected count of ref: the posterior of its root
// attachment or the summed posterior of its parent positions. ref.Sentence
// is not checked.
func (p Posteriors) Mass(ref Reference) float64 {
	if ref.IsRoot() {
		return p.Root[ref.Child]
	}
	m := 0.0
	for _, h := range ref.Parents {
		m += p.Child[ref.Child][h]
	}
	return m
}

// zero resets every entry.
func (p Posteriors) zero() {
	clear(p.Root)
	for _, row := range p.Child {
		clear(row)
	}
}

// SentenceDist is a structured model's posterior over trees of one sentence.
// Different SentenceDists must be safe to use from different goroutines.
type SentenceDist interface {
	Instance() *corpus.Instance
	// Refresh recomputes cached marginals against the current model
	// parameters. Calling it again without a parameter change is a no-op.
	Refresh() error
	// Posteriors returns the live marginals.
	Posteriors() Posteriors
	// Reweighted computes the marginals of q(z) ∝ p(z)·exp(-pen·φ(z)) without
	// touching the live marginals, and returns log Z(pen) - log Z(0).
	Reweighted(pen Penalty) (Posteriors, float64, error)
	// Commit overwrites the live marginals.
	Commit(p Posteriors)
}

// CountTable is a model's sufficient-statistics accumulator.
type CountTable interface {
	Clear()
}

// Model aggregates a sentence's live posteriors into a count table.
type Model interface {
	AddToCounts(sd SentenceDist, counts CountTable) error
}

// TrainStats receives instrumentation callbacks around each projection.
type TrainStats interface {
	EStepStart()
	EStepEnd(r Report)
}
