package monitoring

import (
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Registry builds a private registry holding the gauges of one snapshot.
func Registry(s Snapshot) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	runLabels := prometheus.Labels{"run_id": s.RunID}

	gauge := func(name, help string, v float64) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "landcover",
			Name:        name,
			Help:        help,
			ConstLabels: runLabels,
		})
		g.Set(v)
		reg.MustRegister(g)
	}

	gauge("parcels", "Clipped parcels produced.", float64(s.Parcels))
	gauge("unknown_codes", "Land-cover codes classified as unknown.", float64(s.UnknownCodes))
	gauge("years_observed", "Distinct survey years processed.", float64(len(s.Years)))
	gauge("districts", "Districts in the final table.", float64(s.Districts))
	gauge("rows", "Rows in the final table.", float64(s.Rows))
	gauge("mismatches", "Rows whose category sum differs from the total area.", float64(s.Mismatches))
	gauge("max_area_diff", "Largest category sum difference in square meters.", s.MaxDiff)
	gauge("run_duration_seconds", "Wall time of the run.", s.Duration.Seconds())
	gauge("last_run_timestamp_seconds", "Start of the run as a Unix timestamp.", float64(s.StartedAt.Unix()))

	vec := func(name, help string, labels ...string) *prometheus.GaugeVec {
		v := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "landcover",
			Name:        name,
			Help:        help,
			ConstLabels: runLabels,
		}, labels)
		reg.MustRegister(v)
		return v
	}

	seen := vec("files_seen", "Input files discovered, by stage.", "stage")
	processed := vec("files_processed", "Input files processed, by stage.", "stage")
	for _, f := range s.Files {
		seen.WithLabelValues(string(f.Stage)).Set(float64(f.Seen))
		processed.WithLabelValues(string(f.Stage)).Set(float64(f.Processed))
	}

	skipped := vec("files_skipped", "Input files skipped, by stage and reason.", "stage", "kind")
	for _, c := range s.Skipped {
		skipped.WithLabelValues(string(c.Stage), c.Kind).Set(float64(c.Count))
	}

	return reg
}

// WriteTextfile writes the snapshot in the Prometheus text format to path,
// atomically replacing any previous file.
func WriteTextfile(path string, s Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "monitoring: create dir for %s", path)
	}
	if err := prometheus.WriteToTextfile(path, Registry(s)); err != nil {
		return eris.Wrapf(err, "monitoring: write textfile %s", path)
	}
	return nil
}
