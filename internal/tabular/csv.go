// Package tabular reads and writes the CSV and XLSX tables produced by the
// pipeline.
package tabular

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// BOM is the UTF-8 byte order mark written at the start of every CSV so that
// spreadsheet tools detect the encoding of Korean district names.
const BOM = "\ufeff"

// Table is a header plus string rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Index returns the position of the named column (case-insensitive), or -1.
func (t *Table) Index(name string) int {
	for i, h := range t.Header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter rune            // default ','
	HasHeader bool            // if true, first row is skipped but sent to HeaderCh
	HeaderCh  chan<- []string // optional: receives the header row
	TrimSpace bool
}

// StreamCSV reads CSV rows from r and sends them to a channel. A leading
// byte order mark is dropped. Both channels are closed when processing
// completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "tabular: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "tabular: read row")
				return
			}

			if first && len(record) > 0 {
				record[0] = strings.TrimPrefix(record[0], BOM)
			}
			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			if first && opts.HasHeader {
				first = false
				if opts.HeaderCh != nil {
					select {
					case opts.HeaderCh <- record:
					case <-ctx.Done():
						errCh <- eris.Wrap(ctx.Err(), "tabular: context cancelled sending header")
						return
					}
				}
				continue
			}
			first = false

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "tabular: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSV loads a whole CSV file whose first row is the header.
func ReadCSV(ctx context.Context, path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: open %s", path)
	}
	defer func() { _ = f.Close() }()

	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(ctx, bufio.NewReader(f), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	t := &Table{}
	for row := range rowCh {
		t.Rows = append(t.Rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "tabular: parse %s", path)
	}
	select {
	case h := <-headerCh:
		t.Header = h
	default:
		return nil, eris.Errorf("tabular: %s has no header row", path)
	}
	return t, nil
}

// WriteCSV writes t to path as UTF-8 with a byte order mark, creating parent
// directories as needed.
func WriteCSV(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "tabular: create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "tabular: create %s", path)
	}

	bw := bufio.NewWriter(f)
	if _, err := bw.WriteString(BOM); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "tabular: write %s", path)
	}
	w := csv.NewWriter(bw)
	if err := w.Write(t.Header); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "tabular: write header of %s", path)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "tabular: write rows of %s", path)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "tabular: flush %s", path)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "tabular: close %s", path)
	}
	return nil
}
