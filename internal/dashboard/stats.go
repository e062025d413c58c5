package dashboard

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/tinytelemetry/flowdash/internal/model"
)

var nan = math.NaN()

// quantile returns the q-quantile of sorted, interpolating at rank q*(n-1).
// stat.LinInterp interpolates at rank p*n-1, so q is rescaled onto it.
func quantile(sorted []float64, q float64) float64 {
	n := float64(len(sorted))
	if n == 0 {
		return nan
	}
	p := (q*(n-1) + 1) / n
	return stat.Quantile(math.Min(1, p), stat.LinInterp, sorted, nil)
}

// boxStats summarizes values. Whiskers reach the most extreme values within
// 1.5 IQR of the quartiles.
func boxStats(values []float64) *model.BoxStats {
	v := finite(values)
	if len(v) == 0 {
		return nil
	}
	sort.Float64s(v)

	b := &model.BoxStats{
		N:      len(v),
		Min:    v[0],
		Max:    v[len(v)-1],
		Q1:     quantile(v, 0.25),
		Median: quantile(v, 0.5),
		Q3:     quantile(v, 0.75),
		Mean:   stat.Mean(v, nil),
	}
	iqr := b.Q3 - b.Q1
	lo, hi := b.Q1-1.5*iqr, b.Q3+1.5*iqr
	b.LowerFence, b.UpperFence = b.Q1, b.Q3
	for _, x := range v {
		if x >= lo {
			b.LowerFence = math.Min(x, b.Q1)
			break
		}
	}
	for i := len(v) - 1; i >= 0; i-- {
		if v[i] <= hi {
			b.UpperFence = math.Max(v[i], b.Q3)
			break
		}
	}
	return b
}

func finite(values []float64) []float64 {
	var v []float64
	for _, x := range values {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			v = append(v, x)
		}
	}
	return v
}

// pearson returns the correlation of x and y over the indices where both are
// defined. It reports false when fewer than two pairs remain or either side
// has zero variance.
func pearson(x, y []float64) (float64, bool) {
	var xs, ys []float64
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	if len(xs) < 2 || stat.Variance(xs, nil) == 0 || stat.Variance(ys, nil) == 0 {
		return 0, false
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		return 0, false
	}
	return math.Max(-1, math.Min(1, r)), true
}

// correlationMatrix returns the pairwise Pearson matrix of columns.
// Undefined cells are nil.
func correlationMatrix(columns []string, values [][]float64) *model.Matrix {
	m := &model.Matrix{
		X:      append([]string(nil), columns...),
		Y:      append([]string(nil), columns...),
		Values: make([][]*float64, len(columns)),
	}
	for i := range columns {
		m.Values[i] = make([]*float64, len(columns))
	}
	for i := range columns {
		for j := i; j < len(columns); j++ {
			r, ok := pearson(values[i], values[j])
			if !ok {
				continue
			}
			a, b := r, r
			m.Values[i][j] = &a
			m.Values[j][i] = &b
		}
	}
	return m
}
