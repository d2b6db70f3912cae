package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/happyhackingspace/sparsepr"
)

func (c *CLI) newGroupsCommand() *cobra.Command {
	var settings settingsFlags
	var asJSON, projectedOnly bool

	cmd := &cobra.Command{
		Use:   "groups <corpus>",
		Short: "List the constraint groups a corpus induces",
		Args:  cobra.ExactArgs(1),
		Example: `  sparsepr groups train.conll
  sparsepr groups train.conll --child tag --no-direction --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := settings.load(cmd)
			if err != nil {
				return err
			}
			corp, err := readCorpus(args[0], cfg)
			if err != nil {
				return err
			}
			opts, err := projectorOptions(cfg)
			if err != nil {
				return err
			}
			groups, err := sparsepr.Groups(corp, opts)
			if err != nil {
				return err
			}
			if projectedOnly {
				kept := groups[:0]
				for _, g := range groups {
					if g.Strength > 0 {
						kept = append(kept, g)
					}
				}
				groups = kept
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(groups)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tOCCURRENCES\tSTRENGTH\tGROUP")
			for _, g := range groups {
				fmt.Fprintf(w, "%d\t%d\t%g\t%s\n", g.ID, g.Occurrences, g.Strength, g.Name)
			}
			return w.Flush()
		},
	}

	settings.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print groups as JSON")
	cmd.Flags().BoolVar(&projectedOnly, "projected", false, "Only list groups with non-zero strength")
	return cmd
}
