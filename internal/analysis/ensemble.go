package analysis

import (
	"math"
	"sort"
)

// Band summarises an ensemble of aligned series point by point.
type Band struct {
	Median []float64
	Mean   []float64
	Std    []float64
	Lo     []float64
	Hi     []float64
}

// Align truncates every series to the shortest one so that index i means the
// same timepoint in each.
func Align(series [][]float64) [][]float64 {
	if len(series) == 0 {
		return nil
	}
	n := len(series[0])
	for _, s := range series[1:] {
		n = min(n, len(s))
	}
	out := make([][]float64, len(series))
	for i, s := range series {
		out[i] = s[:n]
	}
	return out
}

// Summarize aligns series and computes the point-wise median, mean,
// population standard deviation and the [lo, hi] percentile envelope.
func Summarize(series [][]float64, lo, hi float64) Band {
	aligned := Align(series)
	if len(aligned) == 0 {
		return Band{}
	}
	n := len(aligned[0])
	b := Band{
		Median: make([]float64, n),
		Mean:   make([]float64, n),
		Std:    make([]float64, n),
		Lo:     make([]float64, n),
		Hi:     make([]float64, n),
	}

	col := make([]float64, len(aligned))
	for t := 0; t < n; t++ {
		for i, s := range aligned {
			col[i] = s[t]
		}
		sort.Float64s(col)

		mean := 0.0
		for _, v := range col {
			mean += v
		}
		mean /= float64(len(col))

		variance := 0.0
		for _, v := range col {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(len(col))

		b.Median[t] = percentileSorted(col, 50)
		b.Mean[t] = mean
		b.Std[t] = math.Sqrt(variance)
		b.Lo[t] = percentileSorted(col, lo)
		b.Hi[t] = percentileSorted(col, hi)
	}
	return b
}

// Percentile returns the p-th percentile of values with linear
// interpolation between closest ranks.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	p = max(0, min(p, 100))
	rank := p / 100 * float64(len(sorted)-1)
	i := int(math.Floor(rank))
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(i)
	return sorted[i] + frac*(sorted[i+1]-sorted[i])
}

// ToFloat converts a count series for plotting.
func ToFloat(counts []int64) []float64 {
	out := make([]float64, len(counts))
	for i, c := range counts {
		out[i] = float64(c)
	}
	return out
}
