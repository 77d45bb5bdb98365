package tabular

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Sheet is one named worksheet of a workbook.
type Sheet struct {
	Name  string
	Table *Table
	// Numeric lists the column indexes written as number cells.
	Numeric []int
}

// WriteXLSX writes the sheets into a single workbook at path.
func WriteXLSX(path string, sheets ...Sheet) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "xlsx: create dir for %s", path)
	}

	f := xlsx.NewFile()
	for _, s := range sheets {
		sheet, err := f.AddSheet(s.Name)
		if err != nil {
			return eris.Wrapf(err, "xlsx: add sheet %s", s.Name)
		}

		numeric := make(map[int]bool, len(s.Numeric))
		for _, i := range s.Numeric {
			numeric[i] = true
		}

		header := sheet.AddRow()
		for _, h := range s.Table.Header {
			header.AddCell().SetString(h)
		}
		for _, rec := range s.Table.Rows {
			row := sheet.AddRow()
			for i, v := range rec {
				cell := row.AddCell()
				if numeric[i] {
					if n, err := strconv.ParseFloat(v, 64); err == nil {
						cell.SetFloat(n)
						continue
					}
				}
				cell.SetString(v)
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

// ReadXLSX returns the named sheet (or the first sheet when name is empty)
// as a Table whose header is the first row.
func ReadXLSX(path, name string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}

	var sheet *xlsx.Sheet
	if name != "" {
		s, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found in %s", name, path)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.Errorf("xlsx: %s has no sheets", path)
		}
		sheet = f.Sheets[0]
	}

	t := &Table{}
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = c.String()
		}
		if i == 0 {
			t.Header = cells
			continue
		}
		t.Rows = append(t.Rows, cells)
	}
	if t.Header == nil {
		return nil, eris.Errorf("xlsx: sheet of %s is empty", path)
	}
	return t, nil
}
