package report

import "math"

// Histogram counts values into bins equal-width bins over [lo, hi]. The last
// bin is closed so hi itself is counted. Values outside the range and NaN
// are dropped.
func Histogram(values []float64, bins int, lo, hi float64) []int {
	if bins <= 0 {
		return nil
	}
	counts := make([]int, bins)
	width := (hi - lo) / float64(bins)
	if width <= 0 || math.IsNaN(width) || math.IsInf(width, 0) {
		return counts
	}
	for _, v := range values {
		if math.IsNaN(v) || v < lo || v > hi {
			continue
		}
		i := int((v - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		counts[i]++
	}
	return counts
}

// BinCenters returns the midpoint of each histogram bin.
func BinCenters(bins int, lo, hi float64) []float64 {
	if bins <= 0 {
		return nil
	}
	width := (hi - lo) / float64(bins)
	out := make([]float64, bins)
	for i := range out {
		out[i] = lo + width*(float64(i)+0.5)
	}
	return out
}

// span returns the min and max of values, widened to a non-empty range.
func span(values []float64) (lo, hi float64) {
	if len(values) == 0 {
		return 0, 1
	}
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		hi = lo + 1
	}
	return lo, hi
}
