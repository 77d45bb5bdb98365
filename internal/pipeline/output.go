package pipeline

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landcover/internal/aggregate"
	"github.com/sells-group/landcover/internal/interpolate"
	"github.com/sells-group/landcover/internal/merge"
	"github.com/sells-group/landcover/internal/tabular"
)

// Final output file names.
const (
	LandCoverFile = "landcover_mapping.csv"
	LandInfoFile  = "land_info.csv"
	WorkbookFile  = "land_info.xlsx"
)

// ImperviousFile names the interpolated imperviousness table for a year range.
func ImperviousFile(r interpolate.YearRange) string {
	return fmt.Sprintf("impervious_%d_%d.csv", r.Start, r.End)
}

// writeTables writes the three final tables, plus the workbook when enabled,
// and returns the paths written.
func (p *Pipeline) writeTables(
	landcover interpolate.Series,
	impervious []aggregate.ImperviousCell,
	recs []merge.Record,
	rep merge.Report,
	categories []string,
	years interpolate.YearRange,
) ([]string, error) {
	out := p.cfg.Output

	lc := LandCoverTable(landcover, out.AreaDecimals)
	imp := ImperviousSeriesTable(impervious, out.AreaDecimals, out.RatioDecimals)
	info := merge.Table(recs, categories, rep, out.AreaDecimals, out.RatioDecimals)

	files := []struct {
		name  string
		table *tabular.Table
	}{
		{LandCoverFile, lc},
		{ImperviousFile(years), imp},
		{LandInfoFile, info},
	}

	var written []string
	for _, f := range files {
		path := filepath.Join(out.Dir, f.name)
		if err := tabular.WriteCSV(path, f.table); err != nil {
			return written, eris.Wrapf(err, "pipeline: write %s", f.name)
		}
		written = append(written, path)
	}

	if out.XLSX {
		path := filepath.Join(out.Dir, WorkbookFile)
		err := tabular.WriteXLSX(path,
			tabular.Sheet{Name: "land_info", Table: info, Numeric: merge.NumericColumns(categories)},
			tabular.Sheet{Name: "landcover", Table: lc, Numeric: numericFrom(lc, 2, 0)},
			tabular.Sheet{Name: "impervious", Table: imp, Numeric: numericFrom(imp, 2, 0)},
		)
		if err != nil {
			return written, eris.Wrap(err, "pipeline: write workbook")
		}
		written = append(written, path)
	}

	p.log.Info("pipeline: tables written")
	return written, nil
}

// LandCoverTable renders the dense category series with a TOTAL_CHECK column
// holding the sum of the rounded category areas.
func LandCoverTable(s interpolate.Series, areaDecimals int) *tabular.Table {
	t := &tabular.Table{Header: make([]string, 0, len(s.Fields)+3)}
	t.Header = append(t.Header, aggregate.ColYear, aggregate.ColDistrict)
	t.Header = append(t.Header, s.Fields...)
	t.Header = append(t.Header, aggregate.ColTotalCheck)

	for _, o := range s.Rows {
		row := make([]string, 0, len(t.Header))
		row = append(row, strconv.Itoa(o.Year), o.District)
		var check float64
		for _, v := range o.Values {
			rounded, _ := strconv.ParseFloat(aggregate.FormatFloat(v, areaDecimals), 64)
			check += rounded
			row = append(row, aggregate.FormatFloat(rounded, areaDecimals))
		}
		t.Rows = append(t.Rows, append(row, aggregate.FormatFloat(check, areaDecimals)))
	}
	return t
}

// ImperviousSeriesTable renders the interpolated imperviousness cells.
func ImperviousSeriesTable(cells []aggregate.ImperviousCell, areaDecimals, ratioDecimals int) *tabular.Table {
	t := &tabular.Table{Header: []string{
		aggregate.ColYear, aggregate.ColDistrict,
		aggregate.ColPervious, aggregate.ColImpervious, aggregate.ColTotal, aggregate.ColRatio,
	}}
	for _, c := range cells {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(c.Year),
			c.District,
			aggregate.FormatFloat(c.Pervious, areaDecimals),
			aggregate.FormatFloat(c.Impervious, areaDecimals),
			aggregate.FormatFloat(c.Total, areaDecimals),
			aggregate.FormatFloat(c.Ratio, ratioDecimals),
		})
	}
	return t
}

// numericFrom lists column indexes from start to the end of t's header, plus
// any extra indexes given.
func numericFrom(t *tabular.Table, start int, extra ...int) []int {
	out := append([]int(nil), extra...)
	for i := start; i < len(t.Header); i++ {
		out = append(out, i)
	}
	return out
}
