package taxonomy

import "strings"

// Level is a classification granularity found in survey files.
type Level int

// Classification levels, coarsest first.
const (
	LevelNone Level = iota
	Level1
	Level2
	Level3
)

func (l Level) String() string {
	switch l {
	case Level1:
		return "L1"
	case Level2:
		return "L2"
	case Level3:
		return "L3"
	default:
		return "none"
	}
}

// SchemaCandidate is one column set that identifies a classification level.
type SchemaCandidate struct {
	Level   Level
	Columns []string
}

// CodeColumns lists code column names, finest classification first.
var CodeColumns = []string{"L3_CODE", "L2_CODE", "LV2_CODE", "CODE", "L1_CODE"}

// GroupCandidates lists the grouping column sets used when summarizing clipped
// layers, finest first.
var GroupCandidates = []SchemaCandidate{
	{Level: Level3, Columns: []string{"L3_CODE", "L3_NAME"}},
	{Level: Level2, Columns: []string{"L2_CODE", "L2_NAME", "LV2_CODE", "LV2_NAME", "CODE"}},
	{Level: Level1, Columns: []string{"L1_CODE", "L1_NAME"}},
}

// IsCodeColumn reports whether name is one of CodeColumns.
func IsCodeColumn(name string) bool {
	for _, c := range CodeColumns {
		if strings.EqualFold(strings.TrimSpace(name), c) {
			return true
		}
	}
	return false
}

// DetectCodeColumn returns the first CodeColumns entry present in header as it
// is spelled in header, and false if none is present.
func DetectCodeColumn(header []string) (string, bool) {
	idx := headerIndex(header)
	for _, c := range CodeColumns {
		if i, ok := idx[c]; ok {
			return header[i], true
		}
	}
	return "", false
}

// DetectGroupColumns returns every present column of the finest level found in
// header, in candidate order.
func DetectGroupColumns(header []string) (Level, []string) {
	idx := headerIndex(header)
	for _, cand := range GroupCandidates {
		var found []string
		for _, c := range cand.Columns {
			if i, ok := idx[c]; ok {
				found = append(found, header[i])
			}
		}
		if len(found) > 0 {
			return cand.Level, found
		}
	}
	return LevelNone, nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}
