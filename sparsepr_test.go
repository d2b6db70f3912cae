package sparsepr

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/happyhackingspace/sparsepr/constraints"
	"github.com/happyhackingspace/sparsepr/corpus"
	"github.com/happyhackingspace/sparsepr/internal/checkpoint"
)

func toyCorpus() *corpus.Corpus {
	c := corpus.New()
	c.Add([]string{"the", "dog", "barks"}, []string{"DET", "NOUN", "VERB"})
	c.Add([]string{"a", "cat", "sleeps"}, []string{"DET", "NOUN", "VERB"})
	c.Add([]string{"the", "cat", "sees", "a", "dog"}, []string{"DET", "NOUN", "VERB", "DET", "NOUN"})
	c.Add([]string{"dogs", "bark", "loudly"}, []string{"NOUN", "VERB", "ADV"})
	return c
}

func TestTrainProjected(t *testing.T) {
	cfg := DefaultTrainConfig()
	cfg.Iterations = 3
	cfg.Parallelism = 2
	p, res, err := Train(toyCorpus(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Iterations) != 3 {
		t.Fatalf("got %d iterations, want 3", len(res.Iterations))
	}
	for _, it := range res.Iterations {
		if it.Projection == nil {
			t.Fatalf("iteration %d has no projection report", it.Iteration)
		}
		if math.IsNaN(it.LogLikelihood) || math.IsInf(it.LogLikelihood, 0) {
			t.Errorf("iteration %d: log likelihood %f", it.Iteration, it.LogLikelihood)
		}
		if it.Projection.KL < -1e-9 {
			t.Errorf("iteration %d: negative KL %f", it.Iteration, it.Projection.KL)
		}
	}

	path := filepath.Join(t.TempDir(), "model.json")
	if err := p.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Model().NumTags() != 4 {
		t.Errorf("loaded model has %d tags, want 4", loaded.Model().NumTags())
	}
}

func TestTrainWithoutProjection(t *testing.T) {
	cfg := DefaultTrainConfig()
	cfg.Iterations = 6
	cfg.Project = false
	cfg.Smoothing = 0
	_, res, err := Train(toyCorpus(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	ll := res.LogLikelihoods()
	for i := 1; i < len(ll); i++ {
		if ll[i] < ll[i-1]-1e-9 {
			t.Errorf("log likelihood decreased at %d: %f -> %f", i, ll[i-1], ll[i])
		}
	}
	if res.Iterations[0].Projection != nil {
		t.Error("unexpected projection report")
	}
}

func TestTrainCheckpointAndResume(t *testing.T) {
	store, err := checkpoint.Open(checkpoint.InMemoryConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	cfg := DefaultTrainConfig()
	cfg.Iterations = 2
	cfg.Checkpoints = store
	_, res, err := Train(toyCorpus(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.RunID == "" {
		t.Fatal("expected a generated run id")
	}

	cp, err := store.Latest(res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if cp.Iteration != 1 {
		t.Fatalf("latest checkpoint is iteration %d, want 1", cp.Iteration)
	}
	if len(cp.Lambda) == 0 {
		t.Error("checkpoint has no multipliers")
	}

	cfg.Iterations = 1
	cfg.Resume = &cp
	cfg.RunID = res.RunID
	_, resumed, err := Train(toyCorpus(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got := resumed.Iterations[0].Iteration; got != 2 {
		t.Errorf("resumed at iteration %d, want 2", got)
	}
	iters, err := store.Iterations(res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(iters) != 3 {
		t.Errorf("stored iterations %v, want 3 entries", iters)
	}
}

func TestTrainEmptyCorpus(t *testing.T) {
	_, _, err := Train(corpus.New(), DefaultTrainConfig())
	if !errors.Is(err, corpus.ErrEmptyCorpus) {
		t.Errorf("got %v, want ErrEmptyCorpus", err)
	}
}

func TestGroups(t *testing.T) {
	c := corpus.New()
	c.Add([]string{"the", "dog"}, []string{"DET", "NOUN"})
	c.Add([]string{"the", "cat"}, []string{"DET", "NOUN"})
	opts := constraints.DefaultOptions()
	opts.MinOccurrences = 2

	groups, err := Groups(c, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 6 {
		t.Fatalf("got %d groups, want 6", len(groups))
	}
	if groups[0].Name != "root=the" || !groups[0].Root || groups[0].Occurrences != 2 || groups[0].Strength != 1 {
		t.Errorf("group 0 = %+v", groups[0])
	}
	if groups[3].Name != "edge=dog,DET:right" || groups[3].Strength != 0 {
		t.Errorf("group 3 = %+v", groups[3])
	}
}

func TestTrainTagger(t *testing.T) {
	cfg := DefaultTaggerConfig()
	cfg.States = 3
	cfg.Trainer.Iterations = 4
	m, history, err := TrainTagger(toyCorpus(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if m.NumStates != 3 || len(history) != 4 {
		t.Fatalf("states=%d iterations=%d", m.NumStates, len(history))
	}
	if history[0].Transitions.L1LMax <= 0 {
		t.Error("expected positive transition L1LMax")
	}

	cfg.States = 0
	if _, _, err := TrainTagger(toyCorpus(), cfg); err == nil {
		t.Error("expected error for zero states")
	}
}

func TestLoadNonExistent(t *testing.T) {
	_, err := Load("nonexistent.json")
	if err == nil {
		t.Error("expected error for nonexistent model")
	}
}

func TestParserNotInitialized(t *testing.T) {
	p := &Parser{}
	if err := p.Save(filepath.Join(t.TempDir(), "model.json")); err == nil {
		t.Error("expected error for uninitialized parser")
	}
}
