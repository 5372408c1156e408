// Package runlog defines the per-run records produced by the latency
// recorders and the append-only CSV log they are written to.
package runlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// Writer is an append-only CSV log. The header is written when the log
// is created and every row is flushed to the file before Append
// returns, so an abrupt exit loses at most the row being written.
//
// A Writer is owned by a single goroutine.
type Writer struct {
	path    string
	file    *os.File
	csv     *csv.Writer
	columns int
	rows    int
}

// Create truncates or creates the file at path, creating parent
// directories as needed, and writes the header.
func Create(path string, columns []string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create log: %w", err)
	}

	w := &Writer{
		path:    path,
		file:    f,
		csv:     csv.NewWriter(f),
		columns: len(columns),
	}
	if err := w.write(columns); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return w, nil
}

// Append writes one row and flushes it.
func (w *Writer) Append(row []string) error {
	if len(row) != w.columns {
		return fmt.Errorf("row has %d fields, log has %d columns", len(row), w.columns)
	}
	if err := w.write(row); err != nil {
		return fmt.Errorf("append row %d: %w", w.rows, err)
	}
	w.rows++
	return nil
}

// Rows returns the number of data rows appended so far.
func (w *Writer) Rows() int {
	return w.rows
}

// Path returns the log's file path.
func (w *Writer) Path() string {
	return w.path
}

func (w *Writer) Close() error {
	w.csv.Flush()
	flushErr := w.csv.Error()
	closeErr := w.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

func (w *Writer) write(row []string) error {
	if err := w.csv.Write(row); err != nil {
		return err
	}
	w.csv.Flush()
	return w.csv.Error()
}
