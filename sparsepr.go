// Package sparsepr trains an unsupervised dependency model with posterior
// regularization toward sparse edge types.
//
// The E-step posteriors are projected onto the set where each child word
// attaches to few distinct parent tags (the L1Lmax penalty) before the
// M-step consumes them.
//
//	c, _ := corpus.ReadFile("train.conll", corpus.ReadOptions{MaxLength: 10})
//	p, res, _ := sparsepr.Train(c, sparsepr.DefaultTrainConfig())
//	fmt.Println(res.LogLikelihoods)
//	_ = p.Save("model.json")
package sparsepr

import (
	"fmt"

	"github.com/happyhackingspace/sparsepr/constraints"
	"github.com/happyhackingspace/sparsepr/corpus"
	"github.com/happyhackingspace/sparsepr/depmodel"
)

// Parser wraps a trained dependency model.
type Parser struct {
	model *depmodel.Model
}

// NewParser wraps an existing model.
func NewParser(m *depmodel.Model) *Parser {
	return &Parser{model: m}
}

// Load loads a trained parser from a model file.
func Load(path string) (*Parser, error) {
	m, err := depmodel.LoadModel(path)
	if err != nil {
		return nil, fmt.Errorf("sparsepr: %w", err)
	}
	return &Parser{model: m}, nil
}

// Save writes the parser to a model file.
func (p *Parser) Save(path string) error {
	if p.model == nil {
		return fmt.Errorf("sparsepr: parser not initialized")
	}
	if err := depmodel.SaveModel(p.model, path); err != nil {
		return fmt.Errorf("sparsepr: %w", err)
	}
	return nil
}

// Model returns the underlying dependency model.
func (p *Parser) Model() *depmodel.Model { return p.model }

// Group describes one constraint group of a corpus.
type Group struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Root        bool    `json:"root"`
	Occurrences int     `json:"occurrences"`
	Strength    float64 `json:"strength"`
}

// Groups enumerates the constraint groups opts induces on c, in id order.
func Groups(c *corpus.Corpus, opts constraints.Options) ([]Group, error) {
	p, err := constraints.NewProjector(c, c.Instances, nil, opts)
	if err != nil {
		return nil, fmt.Errorf("sparsepr: %w", err)
	}
	e, ix := p.Enumerator(), p.Index()
	out := make([]Group, ix.NumGroups())
	for g := range out {
		out[g] = Group{
			ID:          g,
			Name:        e.GroupName(g),
			Root:        e.IsRootGroup(g),
			Occurrences: ix.Occurrences(g),
			Strength:    p.ConstraintStrength(g),
		}
	}
	return out, nil
}
