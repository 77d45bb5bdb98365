package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
}

func TestYearFromName(t *testing.T) {
	tests := []struct {
		path string
		year int
		ok   bool
	}{
		{"/data/2010_add_area.shp", 2010, true},
		{"2024_lv2_summary.csv", 2024, true},
		{"add_area_2010.shp", 0, false},
		{"201_add_area.shp", 0, false},
		{"20101_add_area.shp", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			y, ok := YearFromName(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.year, y)
		})
	}
}

func TestDiscoverLayers(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "2010_add_area.shp", "2000_add_area.shp", "misc_add_area.shp", "2000_add_area.dbf", "2005_other.shp")

	d, err := DiscoverLayers(dir, "*_add_area.shp")
	require.NoError(t, err)
	assert.Equal(t, []InputFile{
		{Path: filepath.Join(dir, "2000_add_area.shp"), Year: 2000},
		{Path: filepath.Join(dir, "2010_add_area.shp"), Year: 2010},
	}, d.Files)
	assert.Equal(t, []string{filepath.Join(dir, "misc_add_area.shp")}, d.Unmatched)
	assert.Equal(t, "2000_add_area", d.Files[0].Name())
}

func TestDiscoverLayers_MissingDir(t *testing.T) {
	_, err := DiscoverLayers(filepath.Join(t.TempDir(), "nope"), "*.shp")
	assert.Error(t, err)
}

func TestDiscoverSummaries(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"2000_lv2_summary.csv",
		"2000_add_area_summary.csv",
		"2005_lv2_summary.csv",
		"2010_impervious_summary.csv",
		"2010_b_summary.csv",
		"2010_a_summary.csv",
		"total_summary.csv",
	)

	d, err := DiscoverSummaries(dir, "*_summary.csv")
	require.NoError(t, err)
	assert.Equal(t, []InputFile{
		{Path: filepath.Join(dir, "2000_add_area_summary.csv"), Year: 2000},
		{Path: filepath.Join(dir, "2005_lv2_summary.csv"), Year: 2005},
		{Path: filepath.Join(dir, "2010_a_summary.csv"), Year: 2010},
	}, d.Files)
	assert.Equal(t, []string{filepath.Join(dir, "total_summary.csv")}, d.Unmatched)
}

func TestOnePerYear_DoesNotMutateInput(t *testing.T) {
	in := []InputFile{
		{Path: "b/2000_lv2_summary.csv", Year: 2000},
		{Path: "a/2000_summary.csv", Year: 2000},
	}
	out := OnePerYear(in)
	assert.Equal(t, []InputFile{{Path: "a/2000_summary.csv", Year: 2000}}, out)
	assert.Equal(t, "b/2000_lv2_summary.csv", in[0].Path)
}
