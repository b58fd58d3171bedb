package ensemble

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnrank/lightgbm"
	"github.com/YuminosukeSato/churnrank/pkg/errors"
	"github.com/YuminosukeSato/churnrank/pkg/log"
)

// Params is a LightGBM-style hyperparameter map. Keys may be canonical names
// or aliases.
type Params map[string]interface{}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a copy of p with every entry of override applied. An
// override replaces any alias of the same parameter.
func (p Params) Merge(override Params) Params {
	out := p.Clone()
	for k, v := range override {
		out.drop(canonical(k))
		out[k] = v
	}
	return out
}

// Lookup finds a parameter by canonical name through any alias.
func (p Params) Lookup(name string) (interface{}, bool) {
	for k, v := range p {
		if canonical(k) == name {
			return v, true
		}
	}
	return nil, false
}

func (p Params) drop(names ...string) {
	for k := range p {
		c := canonical(k)
		for _, name := range names {
			if c == name {
				delete(p, k)
			}
		}
	}
}

func canonical(name string) string {
	if c, ok := lightgbm.CanonicalName(name); ok {
		return c
	}
	return name
}

// compatibilityRule removes parameters that conflict with the rest of the
// set before it reaches the trainer.
type compatibilityRule struct {
	name string
	when func(p Params) bool
	drop []string
}

var compatibilityTable = []compatibilityRule{
	{
		name: "bagging disabled",
		when: func(p Params) bool {
			v, ok := p.Lookup("bagging_freq")
			return !ok || isZero(v)
		},
		drop: []string{"bagging_fraction", "pos_bagging_fraction", "neg_bagging_fraction"},
	},
}

func isZero(v interface{}) bool {
	switch x := v.(type) {
	case int:
		return x == 0
	case int64:
		return x == 0
	case float64:
		return x == 0
	case nil:
		return true
	default:
		return false
	}
}

// Normalize returns the parameters one seed-ensemble member trains with. The
// seed drives every internal random stream and training is deterministic.
// Parameters made meaningless by the rest of the set are dropped.
func Normalize(params Params, seed int) Params {
	out := params.Clone()
	out.drop("seed", "deterministic", "bagging_seed", "feature_fraction_seed", "verbosity")
	out["seed"] = seed
	out["deterministic"] = true
	out["bagging_seed"] = seed
	out["feature_fraction_seed"] = seed
	out["verbosity"] = -1

	for _, rule := range compatibilityTable {
		if rule.when(out) {
			out.drop(rule.drop...)
		}
	}
	return out
}

// TrainingSet is the weighted labeled matrix one model is fit on.
type TrainingSet struct {
	X        *mat.Dense
	Label    []float64
	Weight   []float64
	Features []string
}

// SizeBytes approximates the memory held by the set.
func (s *TrainingSet) SizeBytes() int64 {
	if s == nil || s.X == nil {
		return 0
	}
	rows, cols := s.X.Dims()
	return int64(rows) * int64(cols+2) * 8
}

// Release drops the set's buffers.
func (s *TrainingSet) Release() {
	s.X, s.Label, s.Weight = nil, nil, nil
}

// Scorer is a trained model.
type Scorer interface {
	// FeatureNames returns the columns the model was fit on, in fit order.
	FeatureNames() []string
	// Predict returns one score per row of X, whose columns follow
	// FeatureNames.
	Predict(X mat.Matrix) ([]float64, error)
}

// Trainer fits a Scorer from normalized parameters.
type Trainer interface {
	Train(params Params, set *TrainingSet) (Scorer, error)
}

// BoosterTrainer trains lightgbm models.
type BoosterTrainer struct {
	logger log.Logger
}

// NewBoosterTrainer creates a BoosterTrainer.
func NewBoosterTrainer() *BoosterTrainer {
	return &BoosterTrainer{logger: log.GetLoggerWithName("ensemble.trainer")}
}

// Train fits a booster. Unknown parameters are logged and ignored.
func (t *BoosterTrainer) Train(params Params, set *TrainingSet) (scorer Scorer, err error) {
	defer errors.Recover(&err, "BoosterTrainer.Train")

	p, unknown, err := lightgbm.ParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		t.logger.Warn("Ignoring unknown training parameters", log.IgnoredParamsKey, unknown)
	}

	ds, err := lightgbm.NewDataset(set.X, set.Label, set.Weight, set.Features)
	if err != nil {
		return nil, err
	}
	model, err := lightgbm.Train(p, ds)
	if err != nil {
		return nil, err
	}
	return model, nil
}
