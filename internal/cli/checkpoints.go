package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/sparsepr/internal/checkpoint"
)

func (c *CLI) newCheckpointsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "checkpoints <dir>",
		Short:   "List training runs and their saved iterations",
		Args:    cobra.ExactArgs(1),
		Example: `  sparsepr checkpoints ckpt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := checkpoint.DefaultConfig()
			cfg.Path = args[0]
			store, err := checkpoint.Open(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.Runs()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tITERATIONS\tLATEST\tLOG-LIKELIHOOD")
			for _, run := range runs {
				iters, err := store.Iterations(run)
				if err != nil {
					return err
				}
				latest, err := store.Latest(run)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%.4f\n", run, len(iters), latest.Iteration, latest.LogLikelihood)
			}
			return w.Flush()
		},
	}
}
