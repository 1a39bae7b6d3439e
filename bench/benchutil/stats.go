package benchutil

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
)

// Summary describes a latency sample in milliseconds.
type Summary struct {
	Count       int
	TrimmedMean float64
	P50         float64
	P90         float64
	P99         float64
}

func (s Summary) String() string {
	return fmt.Sprintf("count=%d trimmed_mean=%.2f p50=%.2f p90=%.2f p99=%.2f",
		s.Count, s.TrimmedMean, s.P50, s.P90, s.P99)
}

// Summarize sorts data in place and computes its statistics, dropping trimPercent of
// the samples from each end for the mean.
func Summarize(data []float64, trimPercent float64) Summary {
	sort.Float64s(data)
	return Summary{
		Count:       len(data),
		TrimmedMean: trimmedMean(data, trimPercent),
		P50:         Percentile(data, 50),
		P90:         Percentile(data, 90),
		P99:         Percentile(data, 99),
	}
}

// trimmedMean expects sorted data.
func trimmedMean(data []float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = (len(data) - 1) / 2
	}
	trimmed := data[trim : len(data)-trim]
	var sum float64
	for _, v := range trimmed {
		sum += v
	}
	return sum / float64(len(trimmed))
}

// Percentile interpolates the p-th percentile of sorted data.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	return data[f]*(float64(c)-k) + data[c]*(k-float64(f))
}

// WriteCSV stores one latency per row under a latency_ms header.
func WriteCSV(path string, latencies []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"latency_ms"}); err != nil {
		return err
	}
	for _, v := range latencies {
		if err := w.Write([]string{fmt.Sprintf("%.3f", v)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
