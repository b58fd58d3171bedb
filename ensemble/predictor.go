package ensemble

import (
	"github.com/YuminosukeSato/churnrank/core/frame"
	"github.com/YuminosukeSato/churnrank/pkg/errors"
)

// Predict scores every row of f into a single-column ScoreFrame named
// column. The matrix is built in the scorer's own feature order.
func Predict(scorer Scorer, f *frame.Frame, column string) (*ScoreFrame, error) {
	X, err := f.Matrix(scorer.FeatureNames())
	if err != nil {
		return nil, errors.Wrap(err, "build prediction matrix")
	}
	scores, err := scorer.Predict(X)
	if err != nil {
		return nil, err
	}
	if len(scores) != f.Len() {
		return nil, errors.NewDimensionError("Predict", f.Len(), len(scores), 0)
	}

	out, err := NewScoreFrame(f.Keys())
	if err != nil {
		return nil, err
	}
	out.names = []string{column}
	out.columns = [][]float64{scores}
	return out, nil
}
