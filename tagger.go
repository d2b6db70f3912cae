package sparsepr

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/happyhackingspace/sparsepr/corpus"
	"github.com/happyhackingspace/sparsepr/hmm"
	"github.com/happyhackingspace/sparsepr/stats"
)

// TaggerConfig holds configuration for unsupervised HMM tagging.
type TaggerConfig struct {
	States  int
	Trainer hmm.TrainerConfig
	Seed    uint64
}

// DefaultTaggerConfig returns a 12-state tagger trained for 20 iterations.
func DefaultTaggerConfig() TaggerConfig {
	return TaggerConfig{States: 12, Trainer: hmm.DefaultTrainerConfig(), Seed: 1}
}

// TaggerIteration summarizes one Baum-Welch iteration.
type TaggerIteration struct {
	Iteration     int
	LogLikelihood float64
	Transitions   stats.TransitionL1LMax
}

// TrainTagger runs Baum-Welch on the words of c and reports transition
// sparsity after every E-step.
func TrainTagger(c *corpus.Corpus, cfg TaggerConfig) (*hmm.Model, []TaggerIteration, error) {
	if len(c.Instances) == 0 {
		return nil, nil, fmt.Errorf("sparsepr: %w", corpus.ErrEmptyCorpus)
	}
	if cfg.States < 1 {
		return nil, nil, fmt.Errorf("sparsepr: tagger needs at least one state, got %d", cfg.States)
	}
	m := hmm.NewModel(cfg.States, c.Words, rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)))
	trans := stats.NewTransitions(cfg.States)

	var history []TaggerIteration
	for iter := range cfg.Trainer.Iterations {
		counts, err := m.EStep(c.Instances, cfg.Trainer.Parallelism, trans)
		if err != nil {
			return nil, history, fmt.Errorf("sparsepr: tagger iteration %d: %w", iter, err)
		}
		it := TaggerIteration{Iteration: iter, LogLikelihood: counts.LogLikelihood, Transitions: trans.Summary()}
		history = append(history, it)
		slog.Info("Tagger iteration", "iteration", iter, "log_likelihood", it.LogLikelihood, "transitions", it.Transitions.String())
		m.MStep(counts, cfg.Trainer.Smoothing)
	}
	return m, history, nil
}
