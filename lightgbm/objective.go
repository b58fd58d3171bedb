package lightgbm

import (
	"math"

	"github.com/YuminosukeSato/churnrank/pkg/errors"
)

// ObjectiveFunction supplies the per-row derivatives of a loss with respect
// to the raw score.
type ObjectiveFunction interface {
	// Gradients fills grad and hess for rows [start, end) from the current
	// scores. Disjoint ranges may run concurrently.
	Gradients(scores, grad, hess []float64, start, end int)

	// Loss returns the weighted mean loss of the scores.
	Loss(scores []float64) float64

	// InitScore returns the constant starting score.
	InitScore() float64

	// Transform maps a raw score to the model output.
	Transform(raw float64) float64

	// Name returns the LightGBM objective name.
	Name() string
}

func newObjective(p TrainingParams, label, weight []float64) (ObjectiveFunction, error) {
	switch p.Objective {
	case "binary":
		return newBinaryLogloss(label, weight, p.ScalePosWeight, p.BoostFromAverage)
	case "regression":
		return newRegressionL2(label, weight, p.BoostFromAverage), nil
	default:
		return nil, errors.NewValueError("lightgbm", "unsupported objective "+p.Objective)
	}
}

// binaryLogloss is the cross-entropy of a sigmoid over labels in {0, 1}.
type binaryLogloss struct {
	label     []float64
	weight    []float64
	initScore float64
}

func newBinaryLogloss(label, weight []float64, scalePos float64, fromAverage bool) (*binaryLogloss, error) {
	w := make([]float64, len(label))
	var sumW, sumPos float64
	var positives, negatives int
	for i, y := range label {
		switch y {
		case 0:
			negatives++
		case 1:
			positives++
		default:
			return nil, errors.NewValueError("lightgbm", "binary labels must be 0 or 1")
		}
		w[i] = 1
		if weight != nil {
			w[i] = weight[i]
		}
		if y == 1 {
			w[i] *= scalePos
		}
		sumW += w[i]
		sumPos += w[i] * y
	}
	if positives == 0 || negatives == 0 {
		return nil, errors.NewValueError("lightgbm", "binary objective needs both classes in the training labels")
	}

	o := &binaryLogloss{label: label, weight: w}
	if fromAverage {
		p := sumPos / sumW
		o.initScore = math.Log(p / (1 - p))
	}
	return o, nil
}

func (o *binaryLogloss) Gradients(scores, grad, hess []float64, start, end int) {
	for i := start; i < end; i++ {
		p := sigmoid(scores[i])
		grad[i] = (p - o.label[i]) * o.weight[i]
		hess[i] = p * (1 - p) * o.weight[i]
	}
}

func (o *binaryLogloss) Loss(scores []float64) float64 {
	const eps = 1e-15
	var loss, sumW float64
	for i, s := range scores {
		p := math.Min(math.Max(sigmoid(s), eps), 1-eps)
		if o.label[i] == 1 {
			loss -= o.weight[i] * math.Log(p)
		} else {
			loss -= o.weight[i] * math.Log(1-p)
		}
		sumW += o.weight[i]
	}
	return loss / sumW
}

func (o *binaryLogloss) InitScore() float64 { return o.initScore }

func (o *binaryLogloss) Transform(raw float64) float64 { return sigmoid(raw) }

func (o *binaryLogloss) Name() string { return "binary" }

// regressionL2 is the squared error.
type regressionL2 struct {
	label     []float64
	weight    []float64
	initScore float64
}

func newRegressionL2(label, weight []float64, fromAverage bool) *regressionL2 {
	w := make([]float64, len(label))
	var sumW, sumY float64
	for i, y := range label {
		w[i] = 1
		if weight != nil {
			w[i] = weight[i]
		}
		sumW += w[i]
		sumY += w[i] * y
	}
	o := &regressionL2{label: label, weight: w}
	if fromAverage {
		o.initScore = sumY / sumW
	}
	return o
}

func (o *regressionL2) Gradients(scores, grad, hess []float64, start, end int) {
	for i := start; i < end; i++ {
		grad[i] = (scores[i] - o.label[i]) * o.weight[i]
		hess[i] = o.weight[i]
	}
}

func (o *regressionL2) Loss(scores []float64) float64 {
	var loss, sumW float64
	for i, s := range scores {
		d := s - o.label[i]
		loss += o.weight[i] * d * d
		sumW += o.weight[i]
	}
	return loss / sumW
}

func (o *regressionL2) InitScore() float64 { return o.initScore }

func (o *regressionL2) Transform(raw float64) float64 { return raw }

func (o *regressionL2) Name() string { return "regression" }

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
