package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/sparsepr"
)

func (c *CLI) newTagCommand() *cobra.Command {
	var settings settingsFlags
	var states, iterations int
	var seed uint64
	var output string

	cmd := &cobra.Command{
		Use:   "tag <corpus>",
		Short: "Induce word classes with a Baum-Welch HMM and report transition sparsity",
		Args:  cobra.ExactArgs(1),
		Example: `  sparsepr tag train.conll --states 12 --iterations 30
  sparsepr tag train.conll --output hmm.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := settings.load(cmd)
			if err != nil {
				return err
			}
			corp, err := readCorpus(args[0], cfg)
			if err != nil {
				return err
			}

			tc := sparsepr.DefaultTaggerConfig()
			tc.States = states
			tc.Seed = seed
			tc.Trainer.Iterations = iterations
			tc.Trainer.Smoothing = cfg.Smoothing
			tc.Trainer.Parallelism = cfg.Parallelism
			m, history, err := sparsepr.TrainTagger(corp, tc)
			if err != nil {
				return err
			}
			if n := len(history); n > 0 {
				last := history[n-1]
				fmt.Printf("log likelihood %.4f\nTransL1LMax:: %s\n", last.LogLikelihood, last.Transitions)
			}

			if output != "" {
				data, err := json.MarshalIndent(m, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, data, 0644); err != nil {
					return err
				}
				slog.Info("Tagger saved", "path", output)
			}
			return nil
		},
	}

	settings.register(cmd)
	cmd.Flags().IntVar(&states, "states", 12, "Hidden states")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 20, "Baum-Welch iterations")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "Random seed for initialization")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the trained HMM as JSON")
	return cmd
}
