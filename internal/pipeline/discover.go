package pipeline

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

var yearPrefix = regexp.MustCompile(`^(\d{4})_`)

// YearFromName returns the survey year encoded as a "YYYY_" filename prefix.
func YearFromName(path string) (int, bool) {
	m := yearPrefix.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return y, true
}

// InputFile is a discovered yearly input.
type InputFile struct {
	Path string `json:"path"`
	Year int    `json:"year"`
}

// Name is the file name without directory or extension.
func (f InputFile) Name() string {
	base := filepath.Base(f.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Discovery lists the files matched by a pattern, split into those with a
// year prefix and those without.
type Discovery struct {
	Files     []InputFile
	Unmatched []string
}

// DiscoverLayers finds land-cover layers in dir matching pattern. Files are
// returned sorted by year, then path.
func DiscoverLayers(dir, pattern string) (*Discovery, error) {
	paths, err := glob(dir, pattern)
	if err != nil {
		return nil, err
	}

	d := &Discovery{}
	for _, p := range paths {
		y, ok := YearFromName(p)
		if !ok {
			d.Unmatched = append(d.Unmatched, p)
			continue
		}
		d.Files = append(d.Files, InputFile{Path: p, Year: y})
	}
	sortFiles(d.Files)
	return d, nil
}

// DiscoverSummaries finds yearly summary tables in dir matching pattern and
// keeps one per year. Impervious summaries are ignored. A fine-grained summary
// is preferred over an "lv2" one; otherwise the first path in order wins.
func DiscoverSummaries(dir, pattern string) (*Discovery, error) {
	paths, err := glob(dir, pattern)
	if err != nil {
		return nil, err
	}

	d := &Discovery{}
	var candidates []InputFile
	for _, p := range paths {
		if strings.Contains(strings.ToLower(filepath.Base(p)), "impervious") {
			continue
		}
		y, ok := YearFromName(p)
		if !ok {
			d.Unmatched = append(d.Unmatched, p)
			continue
		}
		candidates = append(candidates, InputFile{Path: p, Year: y})
	}
	d.Files = OnePerYear(candidates)
	return d, nil
}

// OnePerYear keeps a single summary per year using the DiscoverSummaries
// preference.
func OnePerYear(files []InputFile) []InputFile {
	sorted := append([]InputFile(nil), files...)
	sortFiles(sorted)

	chosen := make(map[int]InputFile)
	for _, f := range sorted {
		cur, ok := chosen[f.Year]
		if !ok || (isLevel2(cur.Path) && !isLevel2(f.Path)) {
			chosen[f.Year] = f
		}
	}

	out := make([]InputFile, 0, len(chosen))
	for _, f := range chosen {
		out = append(out, f)
	}
	sortFiles(out)
	return out
}

func isLevel2(path string) bool {
	return strings.Contains(strings.ToLower(filepath.Base(path)), "lv2")
}

func glob(dir, pattern string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, eris.Wrapf(err, "pipeline: input dir %s", dir)
	}
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: bad pattern %q", pattern)
	}
	sort.Strings(paths)
	return paths, nil
}

func sortFiles(files []InputFile) {
	sort.Slice(files, func(a, b int) bool {
		if files[a].Year != files[b].Year {
			return files[a].Year < files[b].Year
		}
		return files[a].Path < files[b].Path
	})
}
