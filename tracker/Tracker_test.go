package tracker

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileWritesMetaAndRows(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	f, err := NewFile(dir, map[string]interface{}{"run_id": "test"})
	require.NoError(t, err)

	require.NoError(t, f.Track(Record{Frames: 10, Step: 1,
		Fields: map[string]float64{"loss": 0.5, "return": 1}}))
	require.NoError(t, f.Track(Record{Frames: 20, Step: 2,
		Fields: map[string]float64{"loss": 0.25}}))
	require.NoError(t, f.Close())

	metaData, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	require.NoError(t, err)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(metaData, &meta))
	require.Equal(t, "test", meta["run_id"])

	logFile, err := os.Open(filepath.Join(dir, "logs.csv"))
	require.NoError(t, err)
	defer logFile.Close()

	rows, err := csv.NewReader(logFile).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"frames", "step", "loss", "return"},
		{"10", "1", "0.5", "1"},
		{"20", "2", "0.25", ""},
	}, rows)
}

func TestPlotSavesCurves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curves.png")
	p := NewPlot(path, "return")

	for i := 1; i <= 5; i++ {
		require.NoError(t, p.Track(Record{Frames: int64(i * 100),
			Fields: map[string]float64{"return": float64(i)}}))
	}
	require.NoError(t, p.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Positive(t, info.Size())
}

func TestPlotWithoutPointsWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curves.png")
	require.NoError(t, NewPlot(path, "return").Close())
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

type countingSink struct {
	tracked int
	closed  bool
}

func (c *countingSink) Track(Record) error { c.tracked++; return nil }
func (c *countingSink) Close() error       { c.closed = true; return nil }

func TestMultiFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	m := Multi{a, b}

	require.NoError(t, m.Track(Record{}))
	require.NoError(t, m.Close())
	require.Equal(t, 1, a.tracked)
	require.Equal(t, 1, b.tracked)
	require.True(t, a.closed)
	require.True(t, b.closed)
}
