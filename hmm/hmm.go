// Package hmm implements a first-order hidden Markov model over word ids,
// trained without supervision by Baum-Welch.
package hmm

import (
	"fmt"
	"math/rand/v2"

	"github.com/happyhackingspace/sparsepr/alphabet"
	"github.com/happyhackingspace/sparsepr/corpus"
)

// Model holds the HMM parameters as probabilities.
type Model struct {
	NumStates int                `json:"num_states"`
	Words     *alphabet.Alphabet `json:"words"`
	Initial   []float64          `json:"initial"`
	// Trans[i][j] = P(state j | previous state i).
	Trans [][]float64 `json:"trans"`
	// Emit[s][w] = P(word w | state s).
	Emit [][]float64 `json:"emit"`
}

// NewModel creates a model whose distributions are uniform up to a small
// random perturbation, so that EM can tell the states apart.
func NewModel(numStates int, words *alphabet.Alphabet, rng *rand.Rand) *Model {
	m := &Model{
		NumStates: numStates,
		Words:     words,
		Initial:   perturbed(numStates, rng),
		Trans:     make([][]float64, numStates),
		Emit:      make([][]float64, numStates),
	}
	for s := range numStates {
		m.Trans[s] = perturbed(numStates, rng)
		m.Emit[s] = perturbed(words.Size(), rng)
	}
	return m
}

func perturbed(n int, rng *rand.Rand) []float64 {
	v := make([]float64, n)
	total := 0.0
	for i := range v {
		v[i] = 1 + 0.1*rng.Float64()
		total += v[i]
	}
	for i := range v {
		v[i] /= total
	}
	return v
}

// emissions returns the [T][K] emission probabilities of in.
func (m *Model) emissions(in *corpus.Instance) [][]float64 {
	out := make([][]float64, in.Len())
	for t, w := range in.Words {
		out[t] = make([]float64, m.NumStates)
		for s := range m.NumStates {
			out[t][s] = m.Emit[s][w]
		}
	}
	return out
}

// Posterior is the state and transition posterior of one sentence.
type Posterior struct {
	// States[t][s] = P(y_t = s | x).
	States [][]float64
	// Transitions[t][i][j] = P(y_t = i, y_{t+1} = j | x).
	Transitions   [][][]float64
	LogLikelihood float64
}

// Posterior runs forward-backward on in.
func (m *Model) Posterior(in *corpus.Instance) (Posterior, error) {
	for t, w := range in.Words {
		if w < 0 || w >= m.Words.Size() {
			return Posterior{}, fmt.Errorf("hmm: word id %d at position %d outside vocabulary", w, t)
		}
	}
	emit := m.emissions(in)
	fb := ForwardBackward(emit, m.Initial, m.Trans)
	return Posterior{
		States:        fb.Marginals,
		Transitions:   TransitionMarginals(fb, emit, m.Trans),
		LogLikelihood: fb.LogZ,
	}, nil
}

// Counts holds expected initial, transition and emission counts.
type Counts struct {
	Initial       []float64
	Trans         [][]float64
	Emit          [][]float64
	LogLikelihood float64
	Sentences     int
}

// NewCounts allocates zeroed counts shaped like m.
func (m *Model) NewCounts() *Counts {
	c := &Counts{
		Initial: make([]float64, m.NumStates),
		Trans:   make([][]float64, m.NumStates),
		Emit:    make([][]float64, m.NumStates),
	}
	for s := range m.NumStates {
		c.Trans[s] = make([]float64, m.NumStates)
		c.Emit[s] = make([]float64, m.Words.Size())
	}
	return c
}

// Clear zeroes every count.
func (c *Counts) Clear() {
	clear(c.Initial)
	for s := range c.Trans {
		clear(c.Trans[s])
		clear(c.Emit[s])
	}
	c.LogLikelihood = 0
	c.Sentences = 0
}

// Add accumulates the posterior of in.
func (c *Counts) Add(in *corpus.Instance, p Posterior) {
	if in.Len() == 0 {
		return
	}
	for s, v := range p.States[0] {
		c.Initial[s] += v
	}
	for t, w := range in.Words {
		for s, v := range p.States[t] {
			c.Emit[s][w] += v
		}
	}
	for _, tr := range p.Transitions {
		for i, row := range tr {
			for j, v := range row {
				c.Trans[i][j] += v
			}
		}
	}
	c.LogLikelihood += p.LogLikelihood
	c.Sentences++
}

// MStep re-estimates the parameters from counts with additive smoothing.
func (m *Model) MStep(c *Counts, smoothing float64) {
	normalize(m.Initial, c.Initial, smoothing)
	for s := range m.NumStates {
		normalize(m.Trans[s], c.Trans[s], smoothing)
		normalize(m.Emit[s], c.Emit[s], smoothing)
	}
}

func normalize(dst, counts []float64, smoothing float64) {
	total := smoothing * float64(len(counts))
	for _, v := range counts {
		total += v
	}
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
