package aggregate

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/landcover/internal/tabular"
	"github.com/sells-group/landcover/internal/taxonomy"
)

// ErrMissingColumn is returned when a summary file lacks a required column.
var ErrMissingColumn = errors.New("aggregate: missing column")

// SummaryOptions names the columns of a yearly summary file.
type SummaryOptions struct {
	DistrictField string
	AreaField     string
}

// SummaryStats describes what ReadSummary saw in one file.
type SummaryStats struct {
	CodeColumn   string
	Rows         int
	UnknownCodes int
	BadAreas     int
}

// ReadSummary parses a (district, code, area) summary CSV into rows for the
// given year. The code column is the finest one present. Codes that cannot be
// classified become unknown and areas that cannot be parsed count as 0; both
// are tallied in the stats.
func ReadSummary(ctx context.Context, path string, year int, n *taxonomy.Normalizer, opts SummaryOptions) ([]Row, SummaryStats, error) {
	var stats SummaryStats

	t, err := tabular.ReadCSV(ctx, path)
	if err != nil {
		return nil, stats, err
	}

	di := t.Index(opts.DistrictField)
	if di < 0 {
		return nil, stats, eris.Wrapf(ErrMissingColumn, "%s in %s", opts.DistrictField, path)
	}
	ai := t.Index(opts.AreaField)
	if ai < 0 {
		return nil, stats, eris.Wrapf(ErrMissingColumn, "%s in %s", opts.AreaField, path)
	}
	codeCol, ok := taxonomy.DetectCodeColumn(t.Header)
	if !ok {
		return nil, stats, eris.Wrapf(ErrMissingColumn, "code column (%s) in %s",
			strings.Join(taxonomy.CodeColumns, "|"), path)
	}
	ci := t.Index(codeCol)
	stats.CodeColumn = codeCol

	log := zap.L().With(zap.String("component", "aggregate.summary"), zap.String("path", path))
	noisy := rate.Sometimes{First: 3, Interval: 5 * time.Second}

	rows := make([]Row, 0, len(t.Rows))
	for i, rec := range t.Rows {
		if di >= len(rec) || ci >= len(rec) || ai >= len(rec) {
			stats.BadAreas++
			continue
		}

		class := n.NormalizeField(codeCol, rec[ci])
		if class.Code < 0 {
			stats.UnknownCodes++
			noisy.Do(func() {
				log.Warn("unparseable land-cover code", zap.Int("line", i+2), zap.String("code", rec[ci]))
			})
		}

		area, err := strconv.ParseFloat(rec[ai], 64)
		if err != nil || area < 0 || math.IsNaN(area) || math.IsInf(area, 0) {
			stats.BadAreas++
			area = 0
		}

		rows = append(rows, Row{District: rec[di], Year: year, Class: class, Area: area})
	}
	stats.Rows = len(rows)

	if stats.UnknownCodes > 0 || stats.BadAreas > 0 {
		log.Info("summary read with unclassified rows",
			zap.Int("rows", stats.Rows),
			zap.Int("unknown_codes", stats.UnknownCodes),
			zap.Int("bad_areas", stats.BadAreas),
		)
	}
	return rows, stats, nil
}

// ImperviousHeader is the column layout of a per-year impervious summary.
var ImperviousHeader = []string{ColDistrict, ColPervious, ColImpervious, ColTotal, ColRatio}

// ImperviousTable renders per-year impervious cells with areas rounded to
// areaDecimals and ratios to ratioDecimals.
func ImperviousTable(cells []ImperviousCell, areaDecimals, ratioDecimals int) *tabular.Table {
	t := &tabular.Table{Header: append([]string(nil), ImperviousHeader...)}
	for _, c := range cells {
		t.Rows = append(t.Rows, []string{
			c.District,
			FormatFloat(c.Pervious, areaDecimals),
			FormatFloat(c.Impervious, areaDecimals),
			FormatFloat(c.Total, areaDecimals),
			FormatFloat(c.Ratio, ratioDecimals),
		})
	}
	return t
}

// FormatFloat rounds v to a fixed number of decimals. Negative zero is
// printed as zero.
func FormatFloat(v float64, decimals int) string {
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	if strings.HasPrefix(s, "-") && strings.Trim(s, "-0.") == "" {
		return s[1:]
	}
	return s
}
