package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/sparsepr/constraints"
	"github.com/happyhackingspace/sparsepr/corpus"
	"github.com/happyhackingspace/sparsepr/internal/config"
)

// settingsFlags are the flags shared by commands that build constraints.
// Flags override the config file only when given explicitly.
type settingsFlags struct {
	configPath     string
	child          string
	parent         string
	noRoot         bool
	noDirection    bool
	strength       float64
	minOccurrences int
	allowList      string
	maxLength      int
	lowerCase      bool
	fineTags       bool
	parallelism    int
}

func (f *settingsFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	fs.StringVar(&f.child, "child", "word", "Child entity type (word or tag)")
	fs.StringVar(&f.parent, "parent", "tag", "Parent entity type (word or tag)")
	fs.BoolVar(&f.noRoot, "no-root", false, "Do not constrain root attachments")
	fs.BoolVar(&f.noDirection, "no-direction", false, "Do not split edge groups by direction")
	fs.Float64Var(&f.strength, "strength", 1, "Constraint strength")
	fs.IntVar(&f.minOccurrences, "min-occurrences", 0, "Skip groups with fewer occurrences")
	fs.StringVar(&f.allowList, "allow-list", "", "File of \"<parent> <child>\" edges never projected")
	fs.IntVar(&f.maxLength, "max-length", 0, "Drop sentences longer than this (0 keeps all)")
	fs.BoolVar(&f.lowerCase, "lower", false, "Lowercase word forms")
	fs.BoolVar(&f.fineTags, "fine-tags", false, "Use fine-grained POS tags instead of coarse ones")
	fs.IntVar(&f.parallelism, "parallelism", 0, "Concurrent sentences (0 uses all CPUs)")
}

// load merges the config file, the environment and explicit flags.
func (f *settingsFlags) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	fs := cmd.Flags()
	if fs.Changed("child") {
		cfg.Child = f.child
	}
	if fs.Changed("parent") {
		cfg.Parent = f.parent
	}
	if fs.Changed("no-root") {
		cfg.UseRoot = !f.noRoot
	}
	if fs.Changed("no-direction") {
		cfg.UseDirection = !f.noDirection
	}
	if fs.Changed("strength") {
		cfg.ConstraintStrength = f.strength
	}
	if fs.Changed("min-occurrences") {
		cfg.MinOccurrences = f.minOccurrences
	}
	if fs.Changed("allow-list") {
		cfg.AllowList = f.allowList
	}
	if fs.Changed("max-length") {
		cfg.MaxSentenceLength = f.maxLength
	}
	if fs.Changed("lower") {
		cfg.LowerCase = f.lowerCase
	}
	if fs.Changed("fine-tags") {
		cfg.FineTags = f.fineTags
	}
	if fs.Changed("parallelism") {
		cfg.Parallelism = f.parallelism
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

func readCorpus(path string, cfg config.Config) (*corpus.Corpus, error) {
	return corpus.ReadFile(path, corpus.ReadOptions{
		MaxLength: cfg.MaxSentenceLength,
		LowerCase: cfg.LowerCase,
		FineTags:  cfg.FineTags,
	})
}

func projectorOptions(cfg config.Config) (constraints.Options, error) {
	child, err := constraints.ParseEntity(cfg.Child)
	if err != nil {
		return constraints.Options{}, err
	}
	parent, err := constraints.ParseEntity(cfg.Parent)
	if err != nil {
		return constraints.Options{}, err
	}
	return constraints.Options{
		Child:          child,
		Parent:         parent,
		UseRoot:        cfg.UseRoot,
		UseDirection:   cfg.UseDirection,
		Strength:       cfg.ConstraintStrength,
		MinOccurrences: cfg.MinOccurrences,
		AllowListPath:  cfg.AllowList,
		Solver:         cfg.Solver(),
		Parallelism:    cfg.Parallelism,
	}, nil
}
