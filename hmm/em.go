package hmm

import (
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/happyhackingspace/sparsepr/corpus"
)

// Observer sees every sentence posterior of an E-step.
type Observer interface {
	BeforeInference()
	AfterSentence(p Posterior)
}

// TrainerConfig holds Baum-Welch settings.
type TrainerConfig struct {
	Iterations  int
	Smoothing   float64
	Parallelism int
}

// DefaultTrainerConfig returns default Baum-Welch settings.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Iterations: 20,
		Smoothing:  1e-3,
	}
}

// EStep computes the posterior of every instance and returns their counts.
// Observers see the posteriors in instance order.
func (m *Model) EStep(instances []*corpus.Instance, parallelism int, observers ...Observer) (*Counts, error) {
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	posts := make([]Posterior, len(instances))
	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, in := range instances {
		g.Go(func() error {
			p, err := m.Posterior(in)
			if err != nil {
				return fmt.Errorf("sentence %d: %w", i, err)
			}
			posts[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, o := range observers {
		o.BeforeInference()
	}
	counts := m.NewCounts()
	for i, in := range instances {
		counts.Add(in, posts[i])
		for _, o := range observers {
			o.AfterSentence(posts[i])
		}
	}
	return counts, nil
}

// Train runs Baum-Welch and returns the log likelihood of every E-step.
func (m *Model) Train(instances []*corpus.Instance, cfg TrainerConfig, observers ...Observer) ([]float64, error) {
	history := make([]float64, 0, cfg.Iterations)
	for iter := range cfg.Iterations {
		counts, err := m.EStep(instances, cfg.Parallelism, observers...)
		if err != nil {
			return history, fmt.Errorf("hmm: iteration %d: %w", iter, err)
		}
		history = append(history, counts.LogLikelihood)
		slog.Debug("Baum-Welch iteration", "iteration", iter, "log_likelihood", counts.LogLikelihood)
		m.MStep(counts, cfg.Smoothing)
	}
	return history, nil
}
