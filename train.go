package sparsepr

import (
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/happyhackingspace/sparsepr/constraints"
	"github.com/happyhackingspace/sparsepr/corpus"
	"github.com/happyhackingspace/sparsepr/depmodel"
	"github.com/happyhackingspace/sparsepr/internal/checkpoint"
	"github.com/happyhackingspace/sparsepr/stats"
)

// TrainConfig holds configuration for EM training.
type TrainConfig struct {
	Iterations int
	Smoothing  float64
	// Project enables the L1Lmax projection of every E-step.
	Project     bool
	Constraints constraints.Options
	Parallelism int
	// Stats receives projection callbacks. Optional.
	Stats constraints.TrainStats

	// Checkpoints, when set, receives the model and multipliers after
	// every iteration under RunID.
	Checkpoints *checkpoint.Store
	RunID       string
	// Resume continues from a saved checkpoint.
	Resume *checkpoint.Checkpoint
}

// DefaultTrainConfig returns ten projected EM iterations with word-child,
// tag-parent constraints.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Iterations:  10,
		Smoothing:   1e-3,
		Project:     true,
		Constraints: constraints.DefaultOptions(),
	}
}

// IterationResult summarizes one EM iteration.
type IterationResult struct {
	Iteration     int
	LogLikelihood float64
	L1LMax        stats.DependencyL1LMax
	Projection    *constraints.Report
}

// TrainResult holds the history of a training run.
type TrainResult struct {
	RunID      string
	Iterations []IterationResult
}

// LogLikelihoods returns the log likelihood of every iteration.
func (r *TrainResult) LogLikelihoods() []float64 {
	out := make([]float64, len(r.Iterations))
	for i, it := range r.Iterations {
		out[i] = it.LogLikelihood
	}
	return out
}

// Train runs EM on c. Each iteration refreshes the sentence posteriors,
// projects them when cfg.Project is set, and re-estimates the model.
func Train(c *corpus.Corpus, cfg TrainConfig) (*Parser, *TrainResult, error) {
	if len(c.Instances) == 0 {
		return nil, nil, fmt.Errorf("sparsepr: %w", corpus.ErrEmptyCorpus)
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.GOMAXPROCS(0)
	}
	if cfg.Constraints.Parallelism <= 0 {
		cfg.Constraints.Parallelism = cfg.Parallelism
	}

	model := depmodel.NewModel(c.Tags)
	first := 0
	if cfg.Resume != nil {
		m, err := depmodel.UnmarshalModel(cfg.Resume.Model)
		if err != nil {
			return nil, nil, fmt.Errorf("sparsepr: resume: %w", err)
		}
		if m.NumTags() != c.NumTags() {
			return nil, nil, fmt.Errorf("sparsepr: resume: checkpoint has %d tags, corpus has %d", m.NumTags(), c.NumTags())
		}
		m.Tags = c.Tags
		model = m
		first = cfg.Resume.Iteration + 1
	}

	proj, err := constraints.NewProjector(c, c.Instances, model, cfg.Constraints)
	if err != nil {
		return nil, nil, fmt.Errorf("sparsepr: %w", err)
	}
	if cfg.Resume != nil && len(cfg.Resume.Lambda) > 0 {
		if err := proj.RestoreLambda(cfg.Resume.Lambda); err != nil {
			return nil, nil, fmt.Errorf("sparsepr: resume: %w", err)
		}
	}
	if cfg.Checkpoints != nil && cfg.RunID == "" {
		cfg.RunID = checkpoint.NewRunID()
	}

	sents := depmodel.NewSentences(model, c.Instances)
	counts := model.NewCounts()
	result := &TrainResult{RunID: cfg.RunID}

	for iter := first; iter < first+cfg.Iterations; iter++ {
		it := IterationResult{Iteration: iter}
		if cfg.Project {
			report, err := proj.Project(counts, sents, cfg.Stats)
			if err != nil {
				return nil, result, fmt.Errorf("sparsepr: iteration %d: %w", iter, err)
			}
			it.Projection = &report
		} else if err := expectedCounts(model, sents, counts, cfg.Parallelism); err != nil {
			return nil, result, fmt.Errorf("sparsepr: iteration %d: %w", iter, err)
		}
		it.LogLikelihood = counts.LogLikelihood

		posts := make([]constraints.Posteriors, len(sents))
		for i, sd := range sents {
			posts[i] = sd.Posteriors()
		}
		it.L1LMax, err = stats.Dependency(proj.Enumerator(), proj.Index(), posts)
		if err != nil {
			return nil, result, err
		}
		slog.Info("EM iteration",
			"iteration", iter,
			"log_likelihood", it.LogLikelihood,
			"l1lmax", it.L1LMax.Total,
			"l1lmax_avg", it.L1LMax.Average())

		if err := model.MStep(counts, cfg.Smoothing); err != nil {
			return nil, result, fmt.Errorf("sparsepr: iteration %d: %w", iter, err)
		}
		result.Iterations = append(result.Iterations, it)

		if cfg.Checkpoints != nil {
			if err := saveCheckpoint(cfg.Checkpoints, cfg.RunID, iter, model, proj, it.LogLikelihood); err != nil {
				return nil, result, err
			}
		}
	}
	return NewParser(model), result, nil
}

// expectedCounts refreshes every sentence and collects unprojected counts.
func expectedCounts(model *depmodel.Model, sents []constraints.SentenceDist, counts *depmodel.Counts, parallelism int) error {
	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, sd := range sents {
		g.Go(func() error {
			if err := sd.Refresh(); err != nil {
				return fmt.Errorf("sentence %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	counts.Clear()
	for _, sd := range sents {
		if err := model.AddToCounts(sd, counts); err != nil {
			return err
		}
	}
	return nil
}

func saveCheckpoint(store *checkpoint.Store, runID string, iter int, model *depmodel.Model, proj *constraints.Projector, ll float64) error {
	data, err := depmodel.MarshalModel(model)
	if err != nil {
		return fmt.Errorf("sparsepr: encode model: %w", err)
	}
	cp := checkpoint.Checkpoint{
		Iteration:     iter,
		Model:         data,
		Lambda:        proj.Lambda(),
		LogLikelihood: ll,
	}
	if err := store.Save(runID, cp); err != nil {
		return fmt.Errorf("sparsepr: save checkpoint %d: %w", iter, err)
	}
	slog.Debug("Checkpoint saved", "run", runID, "iteration", iter)
	return nil
}
