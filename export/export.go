// Package export writes scraped data to disk.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
)

const dirPerm = 0o755

// WriteCSV writes rows as CSV, creating parent directories as needed.
func WriteCSV(path string, rows [][]string) error {
	return create(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.WriteAll(rows); err != nil {
			return fmt.Errorf("export: write csv: %w", err)
		}
		return nil
	})
}

// WriteRecords writes records as CSV under a header made of the sorted
// union of their keys. Missing keys become empty cells.
func WriteRecords(path string, records []map[string]string) error {
	keys := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			keys[k] = struct{}{}
		}
	}
	header := make([]string, 0, len(keys))
	for k := range keys {
		header = append(header, k)
	}
	slices.Sort(header)

	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, header)
	for _, r := range records {
		row := make([]string, len(header))
		for i, k := range header {
			row[i] = r[k]
		}
		rows = append(rows, row)
	}
	return WriteCSV(path, rows)
}

// WriteJSON writes v as JSON indented by four spaces.
func WriteJSON(path string, v any) error {
	return create(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "    ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("export: encode json: %w", err)
		}
		return nil
	})
}

// SaveBytes writes data to path.
func SaveBytes(path string, data []byte) error {
	return create(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// SaveStream copies r to path and returns the number of bytes written.
func SaveStream(path string, r io.Reader) (int64, error) {
	var n int64
	err := create(path, func(w io.Writer) error {
		var err error
		n, err = io.Copy(w, r)
		return err
	})
	return n, err
}

// create opens path for writing after creating its directory, runs write,
// and removes the partial file when anything fails.
func create(path string, write func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("export: mkdir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("export: close %s: %w", path, cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("export: %s: %w", path, err)
	}
	return nil
}
