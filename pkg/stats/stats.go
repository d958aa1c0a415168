package stats

import (
	"sort"
)

// Mean computes the average of a slice.
func Mean(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum / float64(n)
}

// MinMax returns the minimum and maximum values in the slice.
func MinMax(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	min, max := x[0], x[0]
	for i := 1; i < len(x); i++ {
		if x[i] < min {
			min = x[i]
		} else if x[i] > max {
			max = x[i]
		}
	}
	return min, max
}

// Min returns the smallest value.
func Min(x []float64) float64 { lo, _ := MinMax(x); return lo }

// Max returns the largest value.
func Max(x []float64) float64 { _, hi := MinMax(x); return hi }

// Sum returns the sum of all elements in the slice.
func Sum(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v
	}
	return s
}

// Median returns the median value of the slice (allocates a copy).
func Median(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	cp := make([]float64, n)
	copy(cp, x)
	return MedianInPlace(cp)
}

// MedianInPlace sorts and finds the median in-place (modifies input).
func MedianInPlace(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	sort.Float64s(x)
	mid := n >> 1
	if n&1 == 0 {
		return (x[mid-1] + x[mid]) * 0.5
	}
	return x[mid]
}

// Mode returns the most frequent value in the slice. Ties resolve to the smallest value
// so the result does not depend on observation order.
func Mode(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	counts := make(map[float64]int, len(x))
	for _, v := range x {
		counts[v]++
	}
	mode, maxCount := x[0], 0
	for v, c := range counts {
		if c > maxCount || (c == maxCount && v < mode) {
			mode, maxCount = v, c
		}
	}
	return mode
}
