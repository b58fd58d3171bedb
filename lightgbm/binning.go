package lightgbm

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnrank/core/parallel"
)

// binConstructSampleCount bounds the rows inspected when choosing bin edges.
const binConstructSampleCount = 200000

// BinMapper maps raw feature values to histogram bins. Bins 0..NumBins-1
// hold finite values; NaN goes to the missing bin, NumBins.
type BinMapper struct {
	// UpperBounds[b] is the largest value falling in bin b. The last bound is +Inf.
	UpperBounds []float64
	// HasMissing is true when NaN occurred while constructing the bins.
	HasMissing bool
}

// NumBins returns the number of value bins, excluding the missing bin.
func (m *BinMapper) NumBins() int { return len(m.UpperBounds) }

// MissingBin returns the bin index used for NaN.
func (m *BinMapper) MissingBin() uint8 { return uint8(len(m.UpperBounds)) }

// Trivial reports whether the feature cannot produce a split.
func (m *BinMapper) Trivial() bool {
	return len(m.UpperBounds) < 2 && !m.HasMissing
}

// ValueToBin returns the bin of v.
func (m *BinMapper) ValueToBin(v float64) uint8 {
	if math.IsNaN(v) {
		return m.MissingBin()
	}
	return uint8(sort.SearchFloat64s(m.UpperBounds, v))
}

// newBinMapper picks at most maxBin bins so that each holds a similar number
// of sampled values. Edges sit halfway between neighbouring distinct values.
func newBinMapper(values []float64, maxBin int) *BinMapper {
	m := &BinMapper{}
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) {
			m.HasMissing = true
			continue
		}
		finite = append(finite, v)
	}
	if len(finite) == 0 {
		m.UpperBounds = []float64{math.Inf(1)}
		return m
	}
	sort.Float64s(finite)

	distinct := []float64{finite[0]}
	counts := []int{1}
	for _, v := range finite[1:] {
		if v == distinct[len(distinct)-1] {
			counts[len(counts)-1]++
			continue
		}
		distinct = append(distinct, v)
		counts = append(counts, 1)
	}

	if len(distinct) <= maxBin {
		for i := 0; i < len(distinct)-1; i++ {
			m.UpperBounds = append(m.UpperBounds, midpoint(distinct[i], distinct[i+1]))
		}
		m.UpperBounds = append(m.UpperBounds, math.Inf(1))
		return m
	}

	// greedy equal-frequency cut over the distinct values
	perBin := float64(len(finite)) / float64(maxBin)
	acc := 0
	target := perBin
	for i := 0; i < len(distinct)-1 && len(m.UpperBounds) < maxBin-1; i++ {
		acc += counts[i]
		if float64(acc) >= target {
			m.UpperBounds = append(m.UpperBounds, midpoint(distinct[i], distinct[i+1]))
			remaining := maxBin - len(m.UpperBounds)
			target = float64(acc) + float64(len(finite)-acc)/float64(remaining)
		}
	}
	m.UpperBounds = append(m.UpperBounds, math.Inf(1))
	return m
}

func midpoint(a, b float64) float64 {
	mid := a + (b-a)/2
	if mid <= a || mid >= b {
		// adjacent floats
		return a
	}
	return mid
}

// binnedData is the column-major bin representation of a training matrix.
type binnedData struct {
	rows    int
	mappers []*BinMapper
	bins    [][]uint8
}

func buildBins(X mat.Matrix, maxBin, workers int) *binnedData {
	rows, cols := X.Dims()
	bd := &binnedData{
		rows:    rows,
		mappers: make([]*BinMapper, cols),
		bins:    make([][]uint8, cols),
	}

	stride := 1
	if rows > binConstructSampleCount {
		stride = (rows + binConstructSampleCount - 1) / binConstructSampleCount
	}

	parallel.Parallelize(cols, workers, func(start, end int) {
		sample := make([]float64, 0, rows/stride+1)
		for j := start; j < end; j++ {
			sample = sample[:0]
			for i := 0; i < rows; i += stride {
				sample = append(sample, X.At(i, j))
			}
			mapper := newBinMapper(sample, maxBin)
			if stride > 1 && !mapper.HasMissing {
				// the sample may have skipped every NaN
				for i := 0; i < rows; i++ {
					if math.IsNaN(X.At(i, j)) {
						mapper.HasMissing = true
						break
					}
				}
			}
			col := make([]uint8, rows)
			for i := 0; i < rows; i++ {
				col[i] = mapper.ValueToBin(X.At(i, j))
			}
			bd.mappers[j] = mapper
			bd.bins[j] = col
		}
	})
	return bd
}
