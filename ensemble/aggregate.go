package ensemble

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/YuminosukeSato/churnrank/pkg/errors"
)

// RankedRow is one row of a Ranking.
type RankedRow struct {
	Key      Key
	Mean     float64
	Rank     int
	Selected bool
}

// Ranking is a ScoreFrame reduced to its row means, sorted by mean
// descending.
type Ranking struct {
	Rows []RankedRow
	// N is the submission count the rows were flagged with.
	N int

	// anchor order of the source frame
	keys []Key
	mean []float64
}

type aggregateConfig struct {
	skipMissing bool
}

// AggregateOption configures Aggregate.
type AggregateOption func(*aggregateConfig)

// SkipMissing averages each row over its present cells only. A row with no
// present cell is an error.
func SkipMissing() AggregateOption {
	return func(c *aggregateConfig) { c.skipMissing = true }
}

// Aggregate averages the score columns of s row-wise, sorts the rows by
// mean descending and flags the first n as selected. Rows with equal means
// keep their anchor order.
func Aggregate(s *ScoreFrame, n int, opts ...AggregateOption) (*Ranking, error) {
	cfg := &aggregateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(s.names) == 0 {
		return nil, errors.NewAggregationError("Aggregate", "no score columns to aggregate")
	}
	if n < 0 {
		return nil, errors.NewValueError("Aggregate", fmt.Sprintf("submission count must be non-negative, got %d", n))
	}

	means := make([]float64, s.Len())
	cells := make(stats.Float64Data, 0, len(s.columns))
	for i := range means {
		cells = cells[:0]
		for j, col := range s.columns {
			v := col[i]
			if math.IsNaN(v) {
				if cfg.skipMissing {
					continue
				}
				k := s.keys[i]
				return nil, errors.NewAggregationError("Aggregate",
					fmt.Sprintf("column %s has no score for customer %d in period %d", s.names[j], k.CustomerID, k.PeriodID))
			}
			cells = append(cells, v)
		}
		m, err := stats.Mean(cells)
		if err != nil {
			k := s.keys[i]
			return nil, errors.NewAggregationError("Aggregate",
				fmt.Sprintf("no score for customer %d in period %d: %v", k.CustomerID, k.PeriodID, err))
		}
		means[i] = m
	}

	order := make([]int, len(means))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return means[order[a]] > means[order[b]] })

	r := &Ranking{
		Rows: make([]RankedRow, len(order)),
		N:    n,
		keys: s.Keys(),
		mean: means,
	}
	for rank, i := range order {
		r.Rows[rank] = RankedRow{Key: s.keys[i], Mean: means[i], Rank: rank, Selected: rank < n}
	}
	return r, nil
}

// Len returns the number of ranked rows.
func (r *Ranking) Len() int { return len(r.Rows) }

// Selected returns the flagged rows in rank order.
func (r *Ranking) Selected() []RankedRow {
	var out []RankedRow
	for _, row := range r.Rows {
		if row.Selected {
			out = append(out, row)
		}
	}
	return out
}

// MeanFrame returns the row means as a single-column ScoreFrame in the
// anchor order of the aggregated frame.
func (r *Ranking) MeanFrame(name string) *ScoreFrame {
	// keys were unique in the source frame
	out, _ := NewScoreFrame(r.keys)
	out.names = []string{name}
	out.columns = [][]float64{append([]float64(nil), r.mean...)}
	return out
}

// CustomerIDs returns up to limit customer ids in rank order, each at most
// once. A customer scored in several periods takes its best rank.
func (r *Ranking) CustomerIDs(limit int) []int64 {
	if limit < 0 {
		limit = 0
	}
	seen := make(map[int64]struct{}, limit)
	ids := make([]int64, 0, limit)
	for _, row := range r.Rows {
		if len(ids) >= limit {
			break
		}
		if _, dup := seen[row.Key.CustomerID]; dup {
			continue
		}
		seen[row.Key.CustomerID] = struct{}{}
		ids = append(ids, row.Key.CustomerID)
	}
	return ids
}
