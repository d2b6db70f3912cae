// Package config loads training settings from defaults, an optional YAML
// file and SPARSEPR_* environment variables, in increasing priority.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/happyhackingspace/sparsepr/optimize"
)

// Config holds every setting of a training run.
type Config struct {
	Corpus            string `yaml:"corpus"`
	MaxSentenceLength int    `yaml:"max_sentence_length" validate:"gte=0"`
	LowerCase         bool   `yaml:"lower_case"`
	FineTags          bool   `yaml:"fine_tags"`

	Child              string  `yaml:"child" validate:"oneof=word tag"`
	Parent             string  `yaml:"parent" validate:"oneof=word tag"`
	UseRoot            bool    `yaml:"use_root"`
	UseDirection       bool    `yaml:"use_direction"`
	ConstraintStrength float64 `yaml:"constraint_strength" validate:"gte=0"`
	MinOccurrences     int     `yaml:"min_occurrences" validate:"gte=0"`
	AllowList          string  `yaml:"allow_list"`
	// Project disables posterior regularization when false, leaving plain EM.
	Project bool `yaml:"project"`

	EMIterations int              `yaml:"em_iterations" validate:"gte=1"`
	Smoothing    float64          `yaml:"smoothing" validate:"gte=0"`
	Projection   ProjectionConfig `yaml:"projection"`
	Parallelism  int              `yaml:"parallelism" validate:"gte=0"`

	CheckpointDir string `yaml:"checkpoint_dir"`
}

// ProjectionConfig mirrors optimize.Config.
type ProjectionConfig struct {
	C1                    float64 `yaml:"c1" validate:"gt=0,lt=1"`
	C2                    float64 `yaml:"c2" validate:"gt=0,lt=1"`
	Tolerance             float64 `yaml:"tolerance" validate:"gt=0"`
	InitialStep           float64 `yaml:"initial_step" validate:"gt=0"`
	MaxStep               float64 `yaml:"max_step" validate:"gt=0"`
	MaxZoomEvals          int     `yaml:"max_zoom_evals" validate:"gte=1"`
	MaxExtrapolationIters int     `yaml:"max_extrapolation_iters" validate:"gte=1"`
	MaxIterations         int     `yaml:"max_iterations" validate:"gte=0"`
}

// Default returns the settings used when nothing else is given.
func Default() Config {
	solver := optimize.DefaultConfig()
	return Config{
		Child:              "word",
		Parent:             "tag",
		UseRoot:            true,
		UseDirection:       true,
		ConstraintStrength: 1,
		Project:            true,
		EMIterations:       10,
		Smoothing:          1e-3,
		Projection: ProjectionConfig{
			C1:                    solver.C1,
			C2:                    solver.C2,
			Tolerance:             solver.Tolerance,
			InitialStep:           solver.InitialStep,
			MaxStep:               solver.MaxStep,
			MaxZoomEvals:          solver.MaxZoomEvals,
			MaxExtrapolationIters: solver.MaxExtrapolationIters,
			MaxIterations:         solver.MaxIterations,
		},
	}
}

// Solver returns the projection settings as an optimize.Config.
func (c Config) Solver() optimize.Config {
	p := c.Projection
	return optimize.Config{
		C1:                    p.C1,
		C2:                    p.C2,
		Tolerance:             p.Tolerance,
		InitialStep:           p.InitialStep,
		MaxStep:               p.MaxStep,
		MaxZoomEvals:          p.MaxZoomEvals,
		MaxExtrapolationIters: p.MaxExtrapolationIters,
		MaxIterations:         p.MaxIterations,
	}
}

var validate = validator.New()

// Validate checks field constraints and the solver's cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	return c.Solver().Validate()
}

// Load merges defaults, the YAML file at path (if path is not empty) and
// the environment, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := loadFromEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) error {
	strs := map[string]*string{
		"SPARSEPR_CORPUS":         &cfg.Corpus,
		"SPARSEPR_CHILD":          &cfg.Child,
		"SPARSEPR_PARENT":         &cfg.Parent,
		"SPARSEPR_ALLOW_LIST":     &cfg.AllowList,
		"SPARSEPR_CHECKPOINT_DIR": &cfg.CheckpointDir,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SPARSEPR_MAX_SENTENCE_LENGTH":  &cfg.MaxSentenceLength,
		"SPARSEPR_MIN_OCCURRENCES":      &cfg.MinOccurrences,
		"SPARSEPR_EM_ITERATIONS":        &cfg.EMIterations,
		"SPARSEPR_PARALLELISM":          &cfg.Parallelism,
		"SPARSEPR_MAX_PROJECTION_STEPS": &cfg.Projection.MaxIterations,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = i
		}
	}

	floats := map[string]*float64{
		"SPARSEPR_CONSTRAINT_STRENGTH": &cfg.ConstraintStrength,
		"SPARSEPR_SMOOTHING":           &cfg.Smoothing,
		"SPARSEPR_TOLERANCE":           &cfg.Projection.Tolerance,
	}
	for key, dst := range floats {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}

	bools := map[string]*bool{
		"SPARSEPR_USE_ROOT":      &cfg.UseRoot,
		"SPARSEPR_USE_DIRECTION": &cfg.UseDirection,
		"SPARSEPR_PROJECT":       &cfg.Project,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}
	return nil
}
