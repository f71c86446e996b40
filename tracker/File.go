package tracker

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// File persists a run to a directory: run metadata as meta.json,
// written once at creation, and one logs.csv row per record. The CSV
// column set is fixed by the first record; later records missing a
// column write an empty cell.
type File struct {
	dir     string
	file    *os.File
	csv     *csv.Writer
	columns []string
}

// NewFile creates the run directory if needed and writes meta.json
func NewFile(dir string, meta map[string]interface{}) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("newFile: could not create run "+
			"directory: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("newFile: could not encode metadata: %w",
			err)
	}
	metaPath := filepath.Join(dir, "meta.json")
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("newFile: could not write %v: %w",
			metaPath, err)
	}

	logPath := filepath.Join(dir, "logs.csv")
	file, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("newFile: could not create %v: %w",
			logPath, err)
	}

	return &File{dir: dir, file: file, csv: csv.NewWriter(file)}, nil
}

// Dir returns the run directory
func (f *File) Dir() string { return f.dir }

// Track appends one CSV row
func (f *File) Track(r Record) error {
	if f.columns == nil {
		f.columns = r.Keys()
		header := append([]string{"frames", "step"}, f.columns...)
		if err := f.csv.Write(header); err != nil {
			return fmt.Errorf("track: could not write header: %w", err)
		}
	}

	row := make([]string, 0, len(f.columns)+2)
	row = append(row, strconv.FormatInt(r.Frames, 10),
		strconv.FormatInt(r.Step, 10))
	for _, col := range f.columns {
		v, ok := r.Fields[col]
		if !ok {
			row = append(row, "")
			continue
		}
		row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
	}

	if err := f.csv.Write(row); err != nil {
		return fmt.Errorf("track: could not write row: %w", err)
	}
	f.csv.Flush()
	return f.csv.Error()
}

// Close flushes and closes the CSV file
func (f *File) Close() error {
	f.csv.Flush()
	if err := f.csv.Error(); err != nil {
		f.file.Close()
		return fmt.Errorf("close: %w", err)
	}
	return f.file.Close()
}
