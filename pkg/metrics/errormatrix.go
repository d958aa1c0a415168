// Package metrics quantifies agreement between label images: error matrices,
// accuracies, class coverage and class transitions.
package metrics

import (
	"errors"
	"fmt"
)

var ErrNoSamples = errors.New("no samples")

// ErrorMatrix cross-tabulates sample counts. Rows are reference labels, columns predicted
// labels; both are indexed by label value.
type ErrorMatrix struct {
	Counts [][]int64
}

// NewErrorMatrix allocates an n x n matrix.
func NewErrorMatrix(n int) ErrorMatrix {
	counts := make([][]int64, n)
	for i := range counts {
		counts[i] = make([]int64, n)
	}
	return ErrorMatrix{Counts: counts}
}

// FromPairs builds a matrix sized to the largest label seen plus one.
func FromPairs(reference, prediction []int) (ErrorMatrix, error) {
	if len(reference) != len(prediction) {
		return ErrorMatrix{}, fmt.Errorf("%d reference labels, %d predictions", len(reference), len(prediction))
	}
	n := 0
	for i := range reference {
		if reference[i] < 0 || prediction[i] < 0 {
			return ErrorMatrix{}, fmt.Errorf("negative label at sample %d", i)
		}
		n = max(n, reference[i]+1, prediction[i]+1)
	}
	m := NewErrorMatrix(n)
	for i := range reference {
		m.Counts[reference[i]][prediction[i]]++
	}
	return m, nil
}

// Size is the number of rows.
func (m ErrorMatrix) Size() int { return len(m.Counts) }

// Total is the number of samples.
func (m ErrorMatrix) Total() int64 {
	var t int64
	for _, row := range m.Counts {
		for _, v := range row {
			t += v
		}
	}
	return t
}

func (m ErrorMatrix) diagonal() int64 {
	var d int64
	for i := range m.Counts {
		d += m.Counts[i][i]
	}
	return d
}

// Accuracy is the fraction of samples on the diagonal.
func (m ErrorMatrix) Accuracy() float64 {
	t := m.Total()
	if t == 0 {
		return 0
	}
	return float64(m.diagonal()) / float64(t)
}

// Kappa is Cohen's kappa coefficient.
func (m ErrorMatrix) Kappa() float64 {
	t := float64(m.Total())
	if t == 0 {
		return 0
	}
	rows, cols := m.rowSums(), m.colSums()
	expected := 0.0
	for i := range rows {
		expected += float64(rows[i]) * float64(cols[i])
	}
	expected /= t * t
	if expected == 1 {
		return 0
	}
	return (m.Accuracy() - expected) / (1 - expected)
}

// ProducersAccuracy is, per reference class, the fraction correctly predicted (recall).
func (m ErrorMatrix) ProducersAccuracy() []float64 {
	rows := m.rowSums()
	out := make([]float64, len(rows))
	for i, s := range rows {
		if s > 0 {
			out[i] = float64(m.Counts[i][i]) / float64(s)
		}
	}
	return out
}

// ConsumersAccuracy is, per predicted class, the fraction that is correct (precision).
func (m ErrorMatrix) ConsumersAccuracy() []float64 {
	cols := m.colSums()
	out := make([]float64, len(cols))
	for j, s := range cols {
		if s > 0 {
			out[j] = float64(m.Counts[j][j]) / float64(s)
		}
	}
	return out
}

// F1 is the harmonic mean of producers and consumers accuracy per class.
func (m ErrorMatrix) F1() []float64 {
	prec, rec := m.ConsumersAccuracy(), m.ProducersAccuracy()
	out := make([]float64, len(prec))
	for i := range out {
		if prec[i]+rec[i] > 0 {
			out[i] = 2 * prec[i] * rec[i] / (prec[i] + rec[i])
		}
	}
	return out
}

func (m ErrorMatrix) rowSums() []int64 {
	out := make([]int64, len(m.Counts))
	for i, row := range m.Counts {
		for _, v := range row {
			out[i] += v
		}
	}
	return out
}

func (m ErrorMatrix) colSums() []int64 {
	out := make([]int64, len(m.Counts))
	for _, row := range m.Counts {
		for j, v := range row {
			out[j] += v
		}
	}
	return out
}

// NormalisedMatrix is a row-normalised error matrix with named rows and columns.
type NormalisedMatrix struct {
	Labels []string    `json:"labels"`
	Rows   [][]float64 `json:"rows"`
}

// Normalised divides each row by its sum, giving per-class agreement in [0,1]. Rows without
// samples are all zero. The matrix is padded or truncated to len(labels).
func (m ErrorMatrix) Normalised(labels []string) NormalisedMatrix {
	n := len(labels)
	out := NormalisedMatrix{Labels: append([]string(nil), labels...), Rows: make([][]float64, n)}
	for i := 0; i < n; i++ {
		out.Rows[i] = make([]float64, n)
		if i >= len(m.Counts) {
			continue
		}
		var sum int64
		for j := 0; j < n && j < len(m.Counts[i]); j++ {
			sum += m.Counts[i][j]
		}
		if sum == 0 {
			continue
		}
		for j := 0; j < n && j < len(m.Counts[i]); j++ {
			out.Rows[i][j] = float64(m.Counts[i][j]) / float64(sum)
		}
	}
	return out
}
