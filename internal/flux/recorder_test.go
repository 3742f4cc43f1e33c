package flux

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reactions = []string{"R_PGK", "R_PYK"}

func TestRecordIntervalWritesThreeLogs(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, nil)

	require.NoError(t, r.RecordInterval("3", []float64{1, 2}, []float64{3, 4}, reactions))

	start, err := ReadLog(LogPath(dir, "3", Start))
	require.NoError(t, err)
	assert.Equal(t, []Row{{0, "R_PGK", 1}, {1, "R_PYK", 2}}, start)

	for _, kind := range []Kind{Final, Interval} {
		rows, err := ReadLog(LogPath(dir, "3", kind))
		require.NoError(t, err, kind.String())
		assert.Equal(t, []Row{{0, "R_PGK", 3}, {1, "R_PYK", 4}}, rows, kind.String())
	}
}

func TestLogsAreAppendOnly(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, nil)
	const intervals = 5

	for i := 0; i < intervals; i++ {
		v := float64(i)
		require.NoError(t, r.RecordInterval("7", []float64{v, -v}, []float64{v + 0.5, -v - 0.5}, reactions))
	}

	for _, kind := range Kinds() {
		rows, err := ReadLog(LogPath(dir, "7", kind))
		require.NoError(t, err)
		require.Len(t, rows, intervals*len(reactions), kind.String())
		assert.Equal(t, intervals, Intervals(rows))

		series := Series(rows, "R_PGK")
		for i := 1; i < len(series); i++ {
			assert.Greater(t, series[i], series[i-1], "rows must stay in chronological order")
		}
	}
}

func TestRecordIntervalFileFormat(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, nil)

	require.NoError(t, r.RecordInterval("1", []float64{0, 0}, []float64{0.5, -1.25}, reactions))
	require.NoError(t, r.RecordInterval("1", []float64{0, 0}, []float64{0.75, 2e-6}, reactions))

	data, err := os.ReadFile(LogPath(dir, "1", Final))
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "final_log", data)
}

func TestRecordIntervalRecreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fluxes")
	r := NewRecorder(dir, nil)

	require.NoError(t, r.RecordInterval("2", []float64{1, 1}, []float64{2, 2}, reactions))

	_, err := os.Stat(LogPath(dir, "2", Interval))
	assert.NoError(t, err)
}

func TestRecordIntervalLengthMismatch(t *testing.T) {
	r := NewRecorder(t.TempDir(), nil)
	err := r.RecordInterval("1", []float64{1}, []float64{1, 2}, reactions)
	assert.Error(t, err)
}

func TestLogPathSuffixes(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "rep-4-fluxDF-start.csv"), LogPath("out", "4", Start))
	assert.Equal(t, filepath.Join("out", "rep-4-fluxDF_final.csv"), LogPath("out", "4", Final))
	assert.Equal(t, filepath.Join("out", "rep-4-fluxDF.csv"), LogPath("out", "4", Interval))
}
