package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/landcover/internal/aggregate"
	"github.com/sells-group/landcover/internal/config"
	"github.com/sells-group/landcover/internal/interpolate"
	"github.com/sells-group/landcover/internal/layer"
	"github.com/sells-group/landcover/internal/merge"
	"github.com/sells-group/landcover/internal/monitoring"
	"github.com/sells-group/landcover/internal/resilience"
	"github.com/sells-group/landcover/internal/spatial"
	"github.com/sells-group/landcover/internal/store"
	"github.com/sells-group/landcover/internal/tabular"
	"github.com/sells-group/landcover/internal/taxonomy"
)

// Pipeline runs the clip and summarize stages for one configuration.
type Pipeline struct {
	cfg    *config.Config
	store  store.Store
	norm   *taxonomy.Normalizer
	imp    aggregate.ImperviousCodes
	report *monitoring.Report
	runID  string
	log    *zap.Logger
}

// New creates a Pipeline. st may be nil to disable persistence.
func New(cfg *config.Config, st store.Store, norm *taxonomy.Normalizer) *Pipeline {
	runID := uuid.NewString()
	return &Pipeline{
		cfg:    cfg,
		store:  st,
		norm:   norm,
		imp:    aggregate.NewImperviousCodes(cfg.Pipeline.ImperviousCodes),
		report: monitoring.NewReport(runID),
		runID:  runID,
		log:    zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", runID)),
	}
}

// RunID identifies this run in logs, metrics and persisted rows.
func (p *Pipeline) RunID() string { return p.runID }

// Report returns the run counters.
func (p *Pipeline) Report() *monitoring.Report { return p.report }

// ClippedLayer describes the outputs written for one land-cover layer.
type ClippedLayer struct {
	Source      InputFile `json:"source"`
	Intersected string    `json:"intersected"`
	Summary     string    `json:"summary"`
	Parcels     int       `json:"parcels"`
}

// ClipResult lists what the clip stage produced.
type ClipResult struct {
	Layers []ClippedLayer `json:"layers"`
	// Summaries holds one summary per year, ready for Summarize.
	Summaries []InputFile `json:"summaries"`
}

// Result is the outcome of the summarize stage.
type Result struct {
	RunID      string         `json:"run_id"`
	Categories []string       `json:"categories"`
	Records    []merge.Record `json:"-"`
	Validation merge.Report   `json:"validation"`
	Outputs    []string       `json:"outputs"`
}

// Run clips every layer and summarizes the summaries the clip produced.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	clipped, err := p.Clip(ctx)
	if err != nil {
		return nil, err
	}
	return p.summarize(ctx, clipped.Summaries)
}

// Clip intersects every discovered land-cover layer with the district
// boundaries. Layers are processed in parallel; a failing layer is skipped
// and recorded without stopping the others.
func (p *Pipeline) Clip(ctx context.Context) (*ClipResult, error) {
	in := p.cfg.Input

	found, err := DiscoverLayers(in.LayerDir, in.LayerPattern)
	if err != nil {
		return nil, err
	}
	for _, path := range found.Unmatched {
		p.report.FileSeen(monitoring.StageClip)
		p.skip(monitoring.StageClip, NewSkipError(KindNoYear, path, "file name has no YYYY_ prefix", nil))
	}

	bl, err := layer.Read(in.BoundaryPath, layer.ReadOptions{Encoding: in.DBFEncoding})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read boundary layer")
	}
	bounds, err := spatial.NewBoundaries(bl, in.DistrictField)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: prepare boundaries")
	}

	p.log.Info("pipeline: clipping layers",
		zap.Int("layers", len(found.Files)),
		zap.Int("districts", len(bounds.Districts)),
	)

	results := make([]*ClippedLayer, len(found.Files))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency())
	for i, f := range found.Files {
		i, f := i, f
		g.Go(func() error {
			p.report.FileSeen(monitoring.StageClip)
			res, err := p.clipLayer(gCtx, bounds, f)
			if err != nil {
				if ctxErr := gCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.skip(monitoring.StageClip, asSkip(err, f.Path, KindGeometry, "clip failed"))
				return nil
			}
			results[i] = res
			p.report.FileProcessed(monitoring.StageClip, f.Year)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: clip")
	}

	out := &ClipResult{}
	var summaries []InputFile
	for _, r := range results {
		if r == nil {
			continue
		}
		out.Layers = append(out.Layers, *r)
		summaries = append(summaries, InputFile{Path: r.Summary, Year: r.Source.Year})
	}
	if len(out.Layers) == 0 {
		return nil, eris.Wrap(ErrNoInput, "pipeline: clip")
	}
	out.Summaries = OnePerYear(summaries)

	p.log.Info("pipeline: clip complete",
		zap.Int("clipped", len(out.Layers)),
		zap.Int("skipped", len(found.Files)-len(out.Layers)+len(found.Unmatched)),
	)
	return out, nil
}

// clipLayer runs one layer through reprojection, overlay, and output.
func (p *Pipeline) clipLayer(ctx context.Context, bounds *spatial.Boundaries, f InputFile) (*ClippedLayer, error) {
	in := p.cfg.Input
	log := p.log.With(zap.String("layer", f.Path), zap.Int("year", f.Year))

	src, err := layer.Read(f.Path, layer.ReadOptions{Encoding: in.DBFEncoding})
	if err != nil {
		return nil, NewSkipError(KindRead, f.Path, "shapefile unreadable", err)
	}
	if level, _ := taxonomy.DetectGroupColumns(src.Fields); level == taxonomy.LevelNone {
		return nil, NewSkipError(KindMissingColumn, f.Path, "no classification column", spatial.ErrNoGroupColumns)
	}

	src, err = spatial.Reproject(src, bounds.Projection)
	if err != nil {
		return nil, NewSkipError(KindGeometry, f.Path, "reprojection failed", err)
	}

	parcels, err := bounds.Clip(src)
	if err != nil {
		return nil, asSkip(err, f.Path, KindGeometry, "overlay failed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary, err := spatial.Summarize(src, parcels, in.DistrictField, in.AreaField)
	if err != nil {
		return nil, asSkip(err, f.Path, KindMissingColumn, "summary failed")
	}

	name := f.Name()
	res := &ClippedLayer{
		Source:      f,
		Intersected: filepath.Join(p.cfg.Output.Dir, name+"_intersected.shp"),
		Summary:     filepath.Join(p.cfg.Output.Dir, name+"_summary.csv"),
		Parcels:     len(parcels),
	}

	if err := layer.Write(res.Intersected, spatial.ParcelLayer(src, parcels, in.DistrictField, in.AreaField)); err != nil {
		return nil, NewSkipError(KindWrite, f.Path, "intersected layer not written", err)
	}
	if err := tabular.WriteCSV(res.Summary, &tabular.Table{Header: summary.Header(), Rows: summary.Records()}); err != nil {
		return nil, NewSkipError(KindWrite, f.Path, "summary not written", err)
	}

	if p.store != nil {
		rows, err := p.storeParcels(src, parcels)
		if err != nil {
			return nil, NewSkipError(KindGeometry, f.Path, "parcel geometry not encodable", err)
		}
		err = p.persist(ctx, "save_parcels", func(ctx context.Context) error {
			return p.store.SaveParcels(ctx, p.runID, f.Year, name, rows)
		})
		if err != nil {
			return nil, NewSkipError(KindWrite, f.Path, "parcels not persisted", err)
		}
	}

	p.report.AddParcels(len(parcels))
	log.Info("pipeline: layer clipped",
		zap.Int("features", len(src.Features)),
		zap.Int("parcels", len(parcels)),
		zap.Int("summary_rows", len(summary.Rows)),
		zap.String("level", summary.Level.String()),
	)
	return res, nil
}

// storeParcels classifies each parcel by the finest code column of src and
// encodes its geometry.
func (p *Pipeline) storeParcels(src *layer.Layer, parcels []spatial.Parcel) ([]store.Parcel, error) {
	codeCol, hasCode := taxonomy.DetectCodeColumn(src.Fields)
	ci := src.FieldIndex(codeCol)

	out := make([]store.Parcel, 0, len(parcels))
	for _, pc := range parcels {
		class := taxonomy.Classification{Code: -1, Category: p.norm.Table().Unknown}
		if hasCode && ci >= 0 && ci < len(pc.Attrs) {
			class = p.norm.NormalizeField(codeCol, pc.Attrs[ci])
		}
		wkb, err := layer.EncodeEWKB(pc.Geometry, p.cfg.Store.SRID)
		if err != nil {
			return nil, err
		}
		out = append(out, store.Parcel{
			District: pc.District,
			Code:     class.Code,
			Category: string(class.Category),
			Area:     pc.Area,
			Geometry: wkb,
		})
	}
	return out, nil
}

// Summarize builds the final tables from the summary files found in the
// configured summary directory.
func (p *Pipeline) Summarize(ctx context.Context) (*Result, error) {
	in := p.cfg.Input
	found, err := DiscoverSummaries(in.SummaryDir, in.SummaryPattern)
	if err != nil {
		return nil, err
	}
	for _, path := range found.Unmatched {
		p.report.FileSeen(monitoring.StageSummarize)
		p.skip(monitoring.StageSummarize, NewSkipError(KindNoYear, path, "file name has no YYYY_ prefix", nil))
	}
	return p.summarize(ctx, found.Files)
}

// yearCells holds the aggregates of one yearly summary.
type yearCells struct {
	categories []aggregate.CategoryCell
	impervious []aggregate.ImperviousCell
}

// summarize aggregates every file, then interpolates, merges, validates and
// writes the final tables. Files must carry distinct years.
func (p *Pipeline) summarize(ctx context.Context, files []InputFile) (*Result, error) {
	table := p.norm.Table()
	categories := make([]string, len(table.Order))
	for i, c := range table.Order {
		categories[i] = string(c)
	}

	results := make([]*yearCells, len(files))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency())
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			p.report.FileSeen(monitoring.StageSummarize)
			cells, err := p.aggregateYear(gCtx, f, table)
			if err != nil {
				if ctxErr := gCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.skip(monitoring.StageSummarize, asSkip(err, f.Path, KindRead, "summary unreadable"))
				return nil
			}
			results[i] = cells
			p.report.FileProcessed(monitoring.StageSummarize, f.Year)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: summarize")
	}

	var (
		landcover  = interpolate.Series{Fields: categories}
		impervious = interpolate.Series{Fields: []string{aggregate.ColImpervious, aggregate.ColTotal}}
		processed  int
	)
	for _, y := range results {
		if y == nil {
			continue
		}
		processed++
		for _, c := range y.categories {
			landcover.Rows = append(landcover.Rows, interpolate.Observation{District: c.District, Year: c.Year, Values: c.Areas})
		}
		for _, c := range y.impervious {
			impervious.Rows = append(impervious.Rows, interpolate.Observation{
				District: c.District,
				Year:     c.Year,
				Values:   []float64{c.Impervious, c.Total},
			})
		}
	}
	if processed == 0 {
		return nil, eris.Wrap(ErrNoInput, "pipeline: summarize")
	}

	years := interpolate.YearRange{Start: p.cfg.Pipeline.StartYear, End: p.cfg.Pipeline.EndYear}
	landcover, err := interpolate.Interpolate(landcover, years)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: interpolate land cover")
	}
	landcover = interpolate.FillMissing(landcover, 0)

	impervious, err = interpolate.Interpolate(impervious, years)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: interpolate imperviousness")
	}
	impervious = interpolate.FillMissing(impervious, 0)

	impCells := make([]aggregate.ImperviousCell, 0, len(impervious.Rows))
	for _, o := range impervious.Rows {
		impCells = append(impCells, aggregate.DeriveImperviousness(o.District, o.Year, o.Values[0], o.Values[1]))
	}

	recs := merge.Merge(landcover, impCells)
	rep := merge.Validate(recs, p.cfg.Pipeline.Tolerance)

	res := &Result{
		RunID:      p.runID,
		Categories: categories,
		Records:    recs,
		Validation: rep,
	}
	if res.Outputs, err = p.writeTables(landcover, impCells, recs, rep, categories, years); err != nil {
		return nil, err
	}

	if p.store != nil {
		err := p.persist(ctx, "save_land_info", func(ctx context.Context) error {
			return p.store.SaveLandInfo(ctx, p.runID, categories, recs, rep)
		})
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: persist land info")
		}
	}

	p.report.SetValidation(countDistricts(recs), rep.Rows, rep.Mismatches, rep.MaxDiff)
	p.logValidation(rep)
	return res, nil
}

// aggregateYear reads one summary file and writes its audit table.
func (p *Pipeline) aggregateYear(ctx context.Context, f InputFile, table taxonomy.Table) (*yearCells, error) {
	rows, stats, err := aggregate.ReadSummary(ctx, f.Path, f.Year, p.norm, aggregate.SummaryOptions{
		DistrictField: p.cfg.Input.DistrictField,
		AreaField:     p.cfg.Input.AreaField,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, NewSkipError(KindEmptyInput, f.Path, "summary has no rows", nil)
	}
	if stats.UnknownCodes > 0 {
		p.report.AddUnknownCodes(stats.UnknownCodes)
		p.log.Warn("pipeline: codes counted as unknown",
			zap.String("path", f.Path),
			zap.String("kind", string(KindUnparseableCode)),
			zap.String("column", stats.CodeColumn),
			zap.Int("count", stats.UnknownCodes),
		)
	}

	cells := &yearCells{
		categories: aggregate.Categories(rows, f.Year, table.Order, table.Unknown),
		impervious: aggregate.Imperviousness(rows, f.Year, p.imp.Contains),
	}

	out := p.cfg.Output
	path := filepath.Join(out.Dir, fmt.Sprintf("%d_impervious_summary.csv", f.Year))
	if err := tabular.WriteCSV(path, aggregate.ImperviousTable(cells.impervious, out.AreaDecimals, out.RatioDecimals)); err != nil {
		return nil, NewSkipError(KindWrite, f.Path, "impervious summary not written", err)
	}
	return cells, nil
}

// persist runs a store write, retrying transient failures.
func (p *Pipeline) persist(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	rc := resilience.DefaultRetryConfig()
	rc.MaxAttempts = p.cfg.Store.RetryAttempts
	rc.InitialBackoff = p.cfg.Store.RetryBackoff
	rc.OnRetry = resilience.RetryLogger(op)
	return resilience.Do(ctx, rc, fn)
}

// skip logs and records a per-file failure.
func (p *Pipeline) skip(stage monitoring.Stage, se *SkipError) {
	p.report.FileSkipped(stage, string(se.Kind))
	fields := []zap.Field{
		zap.String("stage", string(stage)),
		zap.String("path", se.Path),
		zap.String("kind", string(se.Kind)),
		zap.String("reason", se.Reason),
	}
	if se.Err != nil {
		fields = append(fields, zap.Error(se.Err))
	}
	p.log.Warn("pipeline: file skipped", fields...)
}

func (p *Pipeline) logValidation(rep merge.Report) {
	if rep.OK() {
		p.log.Info("pipeline: validation passed",
			zap.Int("rows", rep.Rows),
			zap.Float64("max_diff", rep.MaxDiff),
		)
		return
	}
	p.log.Warn("pipeline: category sums differ from total area",
		zap.Int("rows", rep.Rows),
		zap.Int("mismatches", rep.Mismatches),
		zap.Float64("max_diff", rep.MaxDiff),
		zap.Float64("tolerance", rep.Tolerance),
	)
	for _, m := range rep.Worst {
		p.log.Warn("pipeline: mismatch",
			zap.String("district", m.District),
			zap.Int("year", m.Year),
			zap.Float64("diff", m.Diff),
		)
	}
}

func (p *Pipeline) concurrency() int {
	if n := p.cfg.Pipeline.Concurrency; n > 0 {
		return n
	}
	return 1
}

func countDistricts(recs []merge.Record) int {
	seen := make(map[string]struct{})
	for _, r := range recs {
		seen[r.District] = struct{}{}
	}
	return len(seen)
}
