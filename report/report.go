// Package report writes the outputs of a run: the header-less customer list
// and optional diagnostics over the final ranking.
package report

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/churnrank/ensemble"
	"github.com/YuminosukeSato/churnrank/pkg/errors"
)

type selectionRecord struct {
	CustomerID int64 `csv:"customer_id"`
}

type rankingRecord struct {
	CustomerID int64   `csv:"customer_id"`
	PeriodID   int64   `csv:"period_id"`
	Mean       float64 `csv:"mean_score"`
	Rank       int     `csv:"rank"`
	Selected   int     `csv:"selected"`
}

// WriteSelection writes one customer id per line without a header.
func WriteSelection(w io.Writer, ids []int64) error {
	records := make([]*selectionRecord, len(ids))
	for i, id := range ids {
		records[i] = &selectionRecord{CustomerID: id}
	}
	if len(records) == 0 {
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(&records, w); err != nil {
		return errors.Wrap(err, "write selection")
	}
	return nil
}

// WriteRanking writes every ranked row with a header, in rank order.
func WriteRanking(w io.Writer, r *ensemble.Ranking) error {
	records := make([]*rankingRecord, len(r.Rows))
	for i, row := range r.Rows {
		rec := &rankingRecord{
			CustomerID: row.Key.CustomerID,
			PeriodID:   row.Key.PeriodID,
			Mean:       row.Mean,
			Rank:       row.Rank,
		}
		if row.Selected {
			rec.Selected = 1
		}
		records[i] = rec
	}
	if err := gocsv.Marshal(&records, w); err != nil {
		return errors.Wrap(err, "write ranking")
	}
	return nil
}

// PlotScores renders a PNG histogram of the final mean scores with a
// vertical line at the lowest selected score.
func PlotScores(w io.Writer, r *ensemble.Ranking, bins int) error {
	if r.Len() == 0 {
		return errors.Wrap(errors.ErrEmptyData, "plot scores")
	}
	if bins < 1 {
		return errors.NewValueError("PlotScores", fmt.Sprintf("bins must be positive, got %d", bins))
	}

	values := make(plotter.Values, r.Len())
	for i, row := range r.Rows {
		values[i] = row.Mean
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Final scores (%d rows, top %d selected)", r.Len(), len(r.Selected()))
	p.X.Label.Text = "mean score"
	p.Y.Label.Text = "rows"

	hist, err := plotter.NewHist(values, bins)
	if err != nil {
		return errors.Wrap(err, "build histogram")
	}
	p.Add(hist)

	if selected := r.Selected(); len(selected) > 0 && len(selected) < r.Len() {
		cutoff := selected[len(selected)-1].Mean
		var peak float64
		for _, b := range hist.Bins {
			if b.Weight > peak {
				peak = b.Weight
			}
		}
		line, err := plotter.NewLine(plotter.XYs{{X: cutoff, Y: 0}, {X: cutoff, Y: peak}})
		if err != nil {
			return errors.Wrap(err, "build cutoff line")
		}
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
		p.Legend.Add("cutoff", line)
	}

	wt, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return errors.Wrap(err, "render plot")
	}
	if _, err := wt.WriteTo(w); err != nil {
		return errors.Wrap(err, "write plot")
	}
	return nil
}
