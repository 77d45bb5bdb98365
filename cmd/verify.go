package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/landcover/internal/merge"
	"github.com/sells-group/landcover/internal/pipeline"
	"github.com/sells-group/landcover/internal/tabular"
	"github.com/sells-group/landcover/internal/taxonomy"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Check category sums against total area in a merged table",
	Long: `Re-reads a merged land_info table (CSV or xlsx), recomputes the category sum
of every row, and reports the rows whose sum differs from TOTAL_AREA_M2 by more
than the tolerance. Defaults to land_info.csv in the output directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(cfg.Output.Dir, pipeline.LandInfoFile)
		if len(args) == 1 {
			path = args[0]
		}
		tolerance := cfg.Pipeline.Tolerance
		if cmd.Flags().Changed("tolerance") {
			tolerance, _ = cmd.Flags().GetFloat64("tolerance")
		}
		sheet, _ := cmd.Flags().GetString("sheet")
		strict, _ := cmd.Flags().GetBool("strict")

		rep, present, err := verifyFile(cmd.Context(), path, sheet, taxTable, tolerance)
		if err != nil {
			return err
		}
		formatVerifyReport(cmd.OutOrStdout(), path, present, rep)

		if strict && !rep.OK() {
			return eris.Errorf("verify: %d of %d rows differ by more than %g", rep.Mismatches, rep.Rows, rep.Tolerance)
		}
		return nil
	},
}

// verifyFile parses a merged table and validates it. It returns the category
// columns that were found.
func verifyFile(ctx context.Context, path, sheet string, table taxonomy.Table, tolerance float64) (merge.Report, []string, error) {
	var (
		t   *tabular.Table
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		if sheet == "" {
			sheet = "land_info"
		}
		t, err = tabular.ReadXLSX(path, sheet)
	} else {
		t, err = tabular.ReadCSV(ctx, path)
	}
	if err != nil {
		return merge.Report{}, nil, eris.Wrap(err, "verify: read table")
	}

	categories := make([]string, len(table.Order))
	for i, c := range table.Order {
		categories[i] = string(c)
	}
	recs, present, err := merge.ParseTable(t, categories)
	if err != nil {
		return merge.Report{}, nil, eris.Wrapf(err, "verify: parse %s", path)
	}
	return merge.Validate(recs, tolerance), present, nil
}

// formatVerifyReport writes the validation outcome and the worst rows to out.
func formatVerifyReport(out io.Writer, path string, categories []string, rep merge.Report) {
	_, _ = fmt.Fprintf(out, "file:       %s\n", path)
	_, _ = fmt.Fprintf(out, "categories: %s\n", strings.Join(categories, ", "))
	_, _ = fmt.Fprintf(out, "rows:       %d\n", rep.Rows)
	_, _ = fmt.Fprintf(out, "tolerance:  %g\n", rep.Tolerance)
	_, _ = fmt.Fprintf(out, "max diff:   %.4f\n", rep.MaxDiff)

	if rep.OK() {
		_, _ = fmt.Fprintln(out, "all rows match")
		return
	}
	_, _ = fmt.Fprintf(out, "mismatches: %d\n\n", rep.Mismatches)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DISTRICT\tYEAR\tCATEGORY_SUM\tTOTAL\tDIFF")
	_, _ = fmt.Fprintln(w, "--------\t----\t------------\t-----\t----")
	for _, m := range rep.Worst {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.4f\n", m.District, m.Year, m.CategorySum, m.Total, m.Diff)
	}
	_ = w.Flush()
}

func init() {
	verifyCmd.Flags().Float64("tolerance", 0, "allowed |category sum - total| in square meters (default from config)")
	verifyCmd.Flags().String("sheet", "", "worksheet to read from an xlsx file")
	verifyCmd.Flags().Bool("strict", false, "exit non-zero when any row mismatches")
	rootCmd.AddCommand(verifyCmd)
}
