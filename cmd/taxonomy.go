package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/landcover/internal/aggregate"
	"github.com/sells-group/landcover/internal/taxonomy"
)

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy [code...]",
	Short: "Print the effective taxonomy table or classify codes",
	Long: `Without arguments, prints the taxonomy table in effect as YAML. With
arguments, normalizes each one and prints its code, mid-level code, category,
and whether it counts as impervious.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			data, err := yaml.Marshal(taxTable)
			if err != nil {
				return eris.Wrap(err, "taxonomy: encode table")
			}
			_, err = out.Write(data)
			return err
		}

		formatClassifications(out, taxonomy.NewNormalizer(taxTable), aggregate.NewImperviousCodes(cfg.Pipeline.ImperviousCodes), args)
		return nil
	},
}

func formatClassifications(out io.Writer, n *taxonomy.Normalizer, imp aggregate.ImperviousCodes, codes []string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INPUT\tCODE\tMID\tCATEGORY\tIMPERVIOUS")
	for _, raw := range codes {
		c := n.Normalize(raw)
		code := "-"
		if c.Code >= 0 {
			code = fmt.Sprint(c.Code)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%t\n", raw, code, c.MidCode, c.Category, imp.Contains(c))
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(taxonomyCmd)
}
