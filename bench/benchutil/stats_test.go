package benchutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 1.0, Percentile(data, 0))
	assert.Equal(t, 3.0, Percentile(data, 50))
	assert.Equal(t, 5.0, Percentile(data, 100))
	assert.InDelta(t, 4.6, Percentile(data, 90), 1e-9)
	assert.Equal(t, 0.0, Percentile(nil, 50))
}

func TestSummarize(t *testing.T) {
	data := []float64{1000, 3, 1, 2, 4}
	s := Summarize(data, 20)

	assert.Equal(t, 5, s.Count)
	assert.Equal(t, []float64{1, 2, 3, 4, 1000}, data, "data is sorted in place")
	assert.Equal(t, 3.0, s.TrimmedMean, "one sample trimmed from each end")
	assert.Equal(t, 3.0, s.P50)

	assert.Equal(t, Summary{}, Summarize(nil, 1))
	assert.Equal(t, 7.0, Summarize([]float64{7}, 50).TrimmedMean)
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lat.csv")
	require.NoError(t, WriteCSV(path, []float64{1.5, 2}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"latency_ms", "1.500", "2.000"}, strings.Fields(string(b)))
}
