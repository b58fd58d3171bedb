// Package frame holds customer-period rows loaded from the attrition dataset.
//
// A Frame is columnar: key columns, the parsed outcome, the three columns
// derived from it and any number of named float64 feature columns. Missing
// feature values are NaN.
package frame

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnrank/pkg/errors"
)

// Key identifies a row. It is unique within a loaded frame.
type Key struct {
	CustomerID int64
	PeriodID   int64
}

// Frame is a set of rows restricted to some periods. It is not safe for
// concurrent mutation.
type Frame struct {
	customers []int64
	periods   []int64
	outcomes  []Outcome

	target     []float64
	evalTarget []float64
	weight     []float64

	names   []string
	index   map[string]int
	columns [][]float64
}

// New creates an empty frame with the given feature columns.
func New(names []string) *Frame {
	f := &Frame{
		names:   append([]string(nil), names...),
		index:   make(map[string]int, len(names)),
		columns: make([][]float64, len(names)),
	}
	for i, name := range names {
		f.index[name] = i
	}
	return f
}

// Append adds one row. values must follow the order of Names.
func (f *Frame) Append(customerID, periodID int64, outcome Outcome, values []float64) error {
	if len(values) != len(f.names) {
		return errors.NewDimensionError("Frame.Append", len(f.names), len(values), 1)
	}
	f.customers = append(f.customers, customerID)
	f.periods = append(f.periods, periodID)
	f.outcomes = append(f.outcomes, outcome)
	f.target = append(f.target, outcome.TrainingTarget())
	f.evalTarget = append(f.evalTarget, outcome.EvalTarget())
	f.weight = append(f.weight, outcome.Weight())
	for j, v := range values {
		f.columns[j] = append(f.columns[j], v)
	}
	return nil
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.customers) }

// Names returns the feature column names in storage order.
func (f *Frame) Names() []string { return append([]string(nil), f.names...) }

// CustomerID returns the customer of row i.
func (f *Frame) CustomerID(i int) int64 { return f.customers[i] }

// PeriodID returns the period of row i.
func (f *Frame) PeriodID(i int) int64 { return f.periods[i] }

// Key returns the key of row i.
func (f *Frame) Key(i int) Key { return Key{CustomerID: f.customers[i], PeriodID: f.periods[i]} }

// Keys returns the row keys in row order.
func (f *Frame) Keys() []Key {
	keys := make([]Key, f.Len())
	for i := range keys {
		keys[i] = f.Key(i)
	}
	return keys
}

// Outcome returns the outcome of row i.
func (f *Frame) Outcome(i int) Outcome { return f.outcomes[i] }

// Targets returns the training target column. The slice is shared.
func (f *Frame) Targets() []float64 { return f.target }

// EvalTargets returns the evaluation target column. The slice is shared.
func (f *Frame) EvalTargets() []float64 { return f.evalTarget }

// Weights returns the training weight column. The slice is shared.
func (f *Frame) Weights() []float64 { return f.weight }

// Column returns a feature column. The slice is shared.
func (f *Frame) Column(name string) ([]float64, bool) {
	j, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.columns[j], true
}

// Matrix builds a row-major matrix of the named columns in the given order.
func (f *Frame) Matrix(names []string) (*mat.Dense, error) {
	if f.Len() == 0 {
		return nil, errors.ErrEmptyData
	}
	if len(names) == 0 {
		return nil, errors.NewValueError("Frame.Matrix", "at least one column is required")
	}
	cols := make([][]float64, len(names))
	for j, name := range names {
		col, ok := f.Column(name)
		if !ok {
			return nil, errors.NewDataError("frame", "missing feature column "+name)
		}
		cols[j] = col
	}

	rows := f.Len()
	data := make([]float64, rows*len(names))
	for i := 0; i < rows; i++ {
		row := data[i*len(names) : (i+1)*len(names)]
		for j, col := range cols {
			row[j] = col[i]
		}
	}
	return mat.NewDense(rows, len(names), data), nil
}

// Filter returns a new frame holding the rows for which keep is true.
func (f *Frame) Filter(keep func(i int) bool) *Frame {
	out := New(f.names)
	values := make([]float64, len(f.names))
	for i := 0; i < f.Len(); i++ {
		if !keep(i) {
			continue
		}
		for j := range f.columns {
			values[j] = f.columns[j][i]
		}
		// lengths match by construction
		_ = out.Append(f.customers[i], f.periods[i], f.outcomes[i], values)
	}
	return out
}

// SizeBytes approximates the memory held by the frame's columns.
func (f *Frame) SizeBytes() int64 {
	rows := int64(f.Len())
	// keys, outcome, derived columns and features
	return rows*(8+8+1+8*3) + rows*8*int64(len(f.columns))
}

// Release drops every column so the memory can be collected. The frame is
// empty afterwards.
func (f *Frame) Release() {
	f.customers, f.periods, f.outcomes = nil, nil, nil
	f.target, f.evalTarget, f.weight = nil, nil, nil
	for j := range f.columns {
		f.columns[j] = nil
	}
}
