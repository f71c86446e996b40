// Package checkpointer persists training state so a run can resume
// after interruption and a finished run can seed a later one.
package checkpointer

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record is the persisted state of a run. Model holds the
// gob-encoded policy parameters; Visits the flattened visit-count
// table, nil when no counts were kept.
type Record struct {
	Frames int64
	Steps  int64
	Bonus  string
	Model  []byte
	Visits []uint64
}

// Checkpointer saves records to one path on a wall-clock interval
type Checkpointer struct {
	path  string
	every time.Duration
	last  time.Time
}

// New creates a checkpointer writing to path at most once per interval
func New(path string, every time.Duration) *Checkpointer {
	return &Checkpointer{path: path, every: every, last: time.Now()}
}

// Path returns the checkpoint path
func (c *Checkpointer) Path() string { return c.path }

// Due reports whether the interval has elapsed since the last save
func (c *Checkpointer) Due() bool {
	return time.Since(c.last) >= c.every
}

// Save writes a record atomically: the record is encoded into a
// temporary file in the same directory, then renamed over the target,
// so a crash mid-write never corrupts an existing checkpoint.
func (c *Checkpointer) Save(r Record) error {
	// The temporary file must live on the same filesystem as the
	// target for the rename to stay atomic.
	tmp, err := os.CreateTemp(filepath.Dir(c.path), "checkpoint-*")
	if err != nil {
		return fmt.Errorf("save: could not create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(r); err != nil {
		tmp.Close()
		return fmt.Errorf("save: could not encode record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("save: could not move checkpoint into "+
			"place: %w", err)
	}

	c.last = time.Now()
	return nil
}

// Load reads a record from path
func Load(path string) (Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return Record{}, fmt.Errorf("load: %w", err)
	}
	defer file.Close()

	var r Record
	if err := gob.NewDecoder(file).Decode(&r); err != nil {
		return Record{}, fmt.Errorf("load: could not decode %v: %w",
			path, err)
	}
	return r, nil
}
