package tegrastats

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/samber/lo"
)

var leadingColumns = []string{"timestamp_raw", "timestamp_ns", "row_idx"}

// Columns returns every field declared by any record, sorted.
func Columns(records []Record) []Field {
	names := lo.Uniq(lo.FlatMap(records, func(r Record, _ int) []Field {
		return lo.Keys(r.Fields)
	}))
	slices.Sort(names)
	return names
}

// WriteTable writes records as CSV: timestamp_raw, timestamp_ns and
// row_idx, then one column per field in Columns order. Unavailable and
// absent fields are empty cells.
func WriteTable(w io.Writer, records []Record) error {
	cols := Columns(records)
	cw := csv.NewWriter(w)

	header := append(slices.Clone(leadingColumns), lo.Map(cols, func(f Field, _ int) string {
		return string(f)
	})...)
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for _, rec := range records {
		row[0] = rec.TimestampRaw
		row[1] = strconv.FormatInt(rec.TimestampNS, 10)
		row[2] = strconv.Itoa(rec.ArrivalIndex)
		for i, col := range cols {
			row[len(leadingColumns)+i] = rec.Fields.Format(col)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteTableFile writes the table to path, creating parent directories.
func WriteTableFile(path string, records []Record) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTable(f, records); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
