// Package ensemble trains seed-ensembled boosted-tree models over customer
// snapshots and merges their scores into a ranked selection.
//
// Scores flow upward through three levels. A GroupRunner averages the seeds
// of one model, a ConfigRunner averages the models of one configuration and
// the Ensembler averages configurations. The first two levels require every
// score column to cover the same rows; only the Ensembler joins outer.
package ensemble

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/churnrank/core/frame"
	"github.com/YuminosukeSato/churnrank/pkg/errors"
)

// Key identifies a scored row by customer and period.
type Key = frame.Key

// ScoreFrame holds named score columns over an ordered key set. Absent cells
// are NaN and only arise from OuterJoin.
type ScoreFrame struct {
	keys    []Key
	index   map[Key]int
	names   []string
	columns [][]float64
}

// NewScoreFrame creates a frame anchored on keys. Duplicate keys are an
// AggregationError.
func NewScoreFrame(keys []Key) (*ScoreFrame, error) {
	s := &ScoreFrame{
		keys:  append([]Key(nil), keys...),
		index: make(map[Key]int, len(keys)),
	}
	for i, k := range keys {
		if _, dup := s.index[k]; dup {
			return nil, errors.NewAggregationError("NewScoreFrame",
				fmt.Sprintf("duplicate row for customer %d in period %d", k.CustomerID, k.PeriodID))
		}
		s.index[k] = i
	}
	return s, nil
}

// Len returns the number of rows.
func (s *ScoreFrame) Len() int { return len(s.keys) }

// Keys returns the row keys in anchor order.
func (s *ScoreFrame) Keys() []Key { return append([]Key(nil), s.keys...) }

// Names returns the score column names in insertion order.
func (s *ScoreFrame) Names() []string { return append([]string(nil), s.names...) }

// Column returns a score column. The slice is shared.
func (s *ScoreFrame) Column(name string) ([]float64, bool) {
	for j, n := range s.names {
		if n == name {
			return s.columns[j], true
		}
	}
	return nil, false
}

// AddColumn left-joins values, given in the order of keys, onto the anchor
// rows. Every anchor row must be covered. Rows of keys outside the anchor
// are ignored.
func (s *ScoreFrame) AddColumn(name string, keys []Key, values []float64) error {
	if len(keys) != len(values) {
		return errors.NewDimensionError("ScoreFrame.AddColumn", len(keys), len(values), 0)
	}
	if _, exists := s.Column(name); exists {
		return errors.NewAggregationError("ScoreFrame.AddColumn", "duplicate score column "+name)
	}

	col := make([]float64, len(s.keys))
	filled := make([]bool, len(s.keys))
	covered := 0
	for i, k := range keys {
		j, ok := s.index[k]
		if !ok {
			continue
		}
		if filled[j] {
			return errors.NewAggregationError("ScoreFrame.AddColumn",
				fmt.Sprintf("column %s scores customer %d in period %d twice", name, k.CustomerID, k.PeriodID))
		}
		col[j] = values[i]
		filled[j] = true
		covered++
	}
	if covered != len(s.keys) {
		for j, ok := range filled {
			if !ok {
				k := s.keys[j]
				return errors.NewAggregationError("ScoreFrame.AddColumn",
					fmt.Sprintf("column %s has no score for customer %d in period %d", name, k.CustomerID, k.PeriodID))
			}
		}
	}

	s.names = append(s.names, name)
	s.columns = append(s.columns, col)
	return nil
}

// Join adds every column of other with AddColumn.
func (s *ScoreFrame) Join(other *ScoreFrame) error {
	for j, name := range other.names {
		if err := s.AddColumn(name, other.keys, other.columns[j]); err != nil {
			return err
		}
	}
	return nil
}

// OuterJoin combines frames on the union of their keys. Keys keep first-seen
// order and cells a frame does not cover are NaN. Column names must be
// distinct across frames.
func OuterJoin(frames ...*ScoreFrame) (*ScoreFrame, error) {
	out := &ScoreFrame{index: make(map[Key]int)}
	for _, f := range frames {
		for _, k := range f.keys {
			if _, ok := out.index[k]; !ok {
				out.index[k] = len(out.keys)
				out.keys = append(out.keys, k)
			}
		}
	}

	for _, f := range frames {
		for j, name := range f.names {
			if _, exists := out.Column(name); exists {
				return nil, errors.NewAggregationError("OuterJoin", "duplicate score column "+name)
			}
			col := make([]float64, len(out.keys))
			for i := range col {
				col[i] = math.NaN()
			}
			for i, k := range f.keys {
				col[out.index[k]] = f.columns[j][i]
			}
			out.names = append(out.names, name)
			out.columns = append(out.columns, col)
		}
	}
	return out, nil
}
