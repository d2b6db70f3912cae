package constraints

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Objective is the dual of the L1Lmax posterior projection:
//
//	f(λ) = Σ_s log Σ_z p_s(z) exp(-λ·φ(z))
//
// minimized over λ_g ≥ 0, Σ_i λ_gi ≤ strength_g. Its gradient is minus the
// re-weighted expected mass of each reference. Entries of groups with zero
// strength get a zero gradient.
//
// The objective keeps the posteriors of the point it evaluated last in a
// working copy; the baseline snapshot is never modified.
type Objective struct {
	index       *Index
	strengths   []float64
	sentences   []SentenceDist
	baseline    []Posteriors
	working     []Posteriors
	penalties   []Penalty
	logZ        []float64
	parallelism int
	evaluations int
}

func newObjective(ix *Index, strengths []float64, sentences []SentenceDist, baseline []Posteriors, parallelism int) *Objective {
	o := &Objective{
		index:       ix,
		strengths:   strengths,
		sentences:   sentences,
		baseline:    baseline,
		working:     make([]Posteriors, len(sentences)),
		penalties:   make([]Penalty, len(sentences)),
		logZ:        make([]float64, len(sentences)),
		parallelism: parallelism,
	}
	for s, sd := range sentences {
		o.penalties[s] = NewPosteriors(sd.Instance().Len())
	}
	return o
}

// Dim implements optimize.Objective.
func (o *Objective) Dim() int { return o.index.Len() }

// Evaluate implements optimize.Objective.
func (o *Objective) Evaluate(lambda, grad []float64) (float64, error) {
	if len(lambda) != o.index.Len() || len(grad) != o.index.Len() {
		return 0, fmt.Errorf("constraints: objective has dimension %d, got %d/%d", o.index.Len(), len(lambda), len(grad))
	}
	o.evaluations++
	for _, pen := range o.penalties {
		pen.zero()
	}
	for i, ref := range o.index.Flat {
		l := lambda[i]
		if l == 0 {
			continue
		}
		pen := o.penalties[ref.Sentence]
		if ref.IsRoot() {
			pen.Root[ref.Child] += l
			continue
		}
		for _, p := range ref.Parents {
			pen.Child[ref.Child][p] += l
		}
	}

	var g errgroup.Group
	g.SetLimit(o.parallelism)
	for s, sd := range o.sentences {
		g.Go(func() error {
			if o.penalties[s].IsZero() {
				o.working[s] = o.baseline[s]
				o.logZ[s] = 0
				return nil
			}
			post, logZ, err := sd.Reweighted(o.penalties[s])
			if err != nil {
				return fmt.Errorf("sentence %d: %w", s, err)
			}
			o.working[s] = post
			o.logZ[s] = logZ
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	value := 0.0
	for _, v := range o.logZ {
		value += v
	}
	for gid, strength := range o.strengths {
		lo, hi := o.index.Offsets[gid], o.index.Offsets[gid+1]
		for i := lo; i < hi; i++ {
			if strength == 0 {
				grad[i] = 0
				continue
			}
			ref := o.index.Flat[i]
			grad[i] = -o.working[ref.Sentence].Mass(ref)
		}
	}
	return value, nil
}

// Working returns the posteriors of the last evaluated point.
func (o *Objective) Working() []Posteriors { return o.working }

// Evaluations returns how many times Evaluate ran.
func (o *Objective) Evaluations() int { return o.evaluations }
