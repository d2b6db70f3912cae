package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/happyhackingspace/sparsepr"
	"github.com/happyhackingspace/sparsepr/internal/checkpoint"
	"github.com/happyhackingspace/sparsepr/internal/trainstats"
)

func (c *CLI) newTrainCommand() *cobra.Command {
	var settings settingsFlags
	var iterations, maxSteps int
	var noProject bool
	var checkpointDir, resume, metricsFile string

	cmd := &cobra.Command{
		Use:   "train <corpus> <modelfile>",
		Short: "Train a dependency model with projected EM",
		Args:  cobra.ExactArgs(2),
		Example: `  sparsepr train train.conll model.json
  sparsepr train train.conll model.json --strength 10 --min-occurrences 5
  sparsepr train train.conll model.json --checkpoint-dir ckpt --resume <run-id>
  sparsepr train train.conll model.json --config train.yaml -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			corpusPath, modelPath := args[0], args[1]
			cfg, err := settings.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("iterations") {
				cfg.EMIterations = iterations
			}
			if cmd.Flags().Changed("max-projection-steps") {
				cfg.Projection.MaxIterations = maxSteps
			}
			if noProject {
				cfg.Project = false
			}
			if cmd.Flags().Changed("checkpoint-dir") {
				cfg.CheckpointDir = checkpointDir
			}

			corp, err := readCorpus(corpusPath, cfg)
			if err != nil {
				return err
			}
			slog.Info("Corpus loaded", "path", corpusPath, "sentences", len(corp.Instances), "tokens", corp.NumTokens(), "tags", corp.NumTags())

			opts, err := projectorOptions(cfg)
			if err != nil {
				return err
			}
			reg := prometheus.NewRegistry()
			tc := sparsepr.TrainConfig{
				Iterations:  cfg.EMIterations,
				Smoothing:   cfg.Smoothing,
				Project:     cfg.Project,
				Constraints: opts,
				Parallelism: cfg.Parallelism,
				Stats:       trainstats.New(trainstats.NewMetrics(reg), nil),
			}

			if cfg.CheckpointDir != "" {
				storeCfg := checkpoint.DefaultConfig()
				storeCfg.Path = cfg.CheckpointDir
				storeCfg.Logger = slog.Default()
				store, err := checkpoint.Open(storeCfg)
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				tc.Checkpoints = store
				if resume != "" {
					cp, err := store.Latest(resume)
					if err != nil {
						return fmt.Errorf("resume %s: %w", resume, err)
					}
					tc.Resume = &cp
					tc.RunID = resume
					slog.Info("Resuming", "run", resume, "iteration", cp.Iteration)
				}
			} else if resume != "" {
				return fmt.Errorf("--resume requires --checkpoint-dir")
			}

			start := time.Now()
			p, res, err := sparsepr.Train(corp, tc)
			if err != nil {
				return err
			}
			slog.Debug("Training completed", "duration", time.Since(start), "run", res.RunID)
			if err := p.Save(modelPath); err != nil {
				return err
			}
			slog.Info("Model saved", "path", modelPath)

			if metricsFile != "" {
				if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
					return fmt.Errorf("write metrics: %w", err)
				}
			}
			return nil
		},
	}

	settings.register(cmd)
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 10, "EM iterations")
	cmd.Flags().IntVar(&maxSteps, "max-projection-steps", 200, "Solver iterations per projection")
	cmd.Flags().BoolVar(&noProject, "no-project", false, "Run plain EM without posterior regularization")
	cmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "", "Save a checkpoint after every iteration")
	cmd.Flags().StringVar(&resume, "resume", "", "Run id to resume from the checkpoint store")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write prometheus metrics in text format")
	return cmd
}
