package depmodel

import (
	"errors"
	"math"

	"github.com/happyhackingspace/sparsepr/constraints"
	"github.com/happyhackingspace/sparsepr/corpus"
)

var errStale = errors.New("depmodel: sentence not refreshed against current parameters")

// Sentence is the posterior over dependency trees of one instance. It
// implements constraints.SentenceDist.
type Sentence struct {
	model *Model
	in    *corpus.Instance

	live      constraints.Posteriors
	logZ      float64
	version   int
	committed bool
}

// NewSentence binds an instance to a model. Marginals are computed on the
// first Refresh.
func NewSentence(m *Model, in *corpus.Instance) *Sentence {
	return &Sentence{model: m, in: in, version: -1}
}

// NewSentences wraps every instance.
func NewSentences(m *Model, instances []*corpus.Instance) []constraints.SentenceDist {
	out := make([]constraints.SentenceDist, len(instances))
	for i, in := range instances {
		out[i] = NewSentence(m, in)
	}
	return out
}

// Instance implements constraints.SentenceDist.
func (s *Sentence) Instance() *corpus.Instance { return s.in }

// Refresh implements constraints.SentenceDist. Committed posteriors are
// discarded even when the parameters have not changed.
func (s *Sentence) Refresh() error {
	if s.version == s.model.version && !s.committed {
		return nil
	}
	theta, root := s.model.weights(s.in)
	post, logZ, err := matrixTree(theta, root)
	if err != nil {
		return err
	}
	s.live = post
	s.logZ = logZ
	s.version = s.model.version
	s.committed = false
	return nil
}

// Posteriors implements constraints.SentenceDist.
func (s *Sentence) Posteriors() constraints.Posteriors { return s.live }

// Reweighted implements constraints.SentenceDist.
func (s *Sentence) Reweighted(pen constraints.Penalty) (constraints.Posteriors, float64, error) {
	if s.version != s.model.version {
		return constraints.Posteriors{}, 0, errStale
	}
	theta, root := s.model.weights(s.in)
	for m := range root {
		root[m] *= math.Exp(-pen.Root[m])
		for h := range theta {
			if h != m {
				theta[h][m] *= math.Exp(-pen.Child[m][h])
			}
		}
	}
	post, logZ, err := matrixTree(theta, root)
	if err != nil {
		return constraints.Posteriors{}, 0, err
	}
	return post, logZ - s.logZ, nil
}

// Commit implements constraints.SentenceDist.
func (s *Sentence) Commit(p constraints.Posteriors) {
	s.live.CopyFrom(p)
	s.committed = true
}

// LogZ returns the log partition function under the current parameters,
// the sentence's log likelihood.
func (s *Sentence) LogZ() float64 { return s.logZ }
