package checkpointer

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.ckpt")
	c := New(path, time.Hour)

	want := Record{
		Frames: 12345,
		Steps:  67,
		Bonus:  "rndxepisodic",
		Model:  []byte{1, 2, 3, 4},
		Visits: []uint64{0, 3, 1},
	}
	require.NoError(t, c.Save(want))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.ckpt")
	c := New(path, time.Hour)

	require.NoError(t, c.Save(Record{Frames: 1}))
	require.NoError(t, c.Save(Record{Frames: 2}))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(2), got.Frames)

	// No stray temporary files remain
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestDueFollowsInterval(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "model.ckpt"), time.Hour)
	require.False(t, c.Due())

	c.every = 0
	require.True(t, c.Due())

	c.every = time.Hour
	require.NoError(t, c.Save(Record{}))
	require.False(t, c.Due(), "saving resets the interval")
}

// A record written by an older build without every field still loads,
// with the absent fields left at their zero values.
func TestLoadPartialRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.ckpt")

	type legacyRecord struct {
		Frames int64
		Model  []byte
	}
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, gob.NewEncoder(file).Encode(legacyRecord{
		Frames: 9,
		Model:  []byte{7},
	}))
	require.NoError(t, file.Close())

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(9), got.Frames)
	require.Equal(t, []byte{7}, got.Model)
	require.Empty(t, got.Bonus)
	require.Nil(t, got.Visits)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.ckpt"))
	require.Error(t, err)
}
