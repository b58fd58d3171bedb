package lightgbm

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/churnrank/pkg/errors"
)

// TrainingParams contains the hyperparameters understood by the trainer.
// Field tags carry the canonical LightGBM parameter names.
type TrainingParams struct {
	// Core
	Objective     string  `json:"objective"`
	Boosting      string  `json:"boosting"`
	NumIterations int     `json:"num_iterations"`
	LearningRate  float64 `json:"learning_rate"`
	NumLeaves     int     `json:"num_leaves"`
	MaxDepth      int     `json:"max_depth"`
	NumThreads    int     `json:"num_threads"`

	// Tree growth
	MinDataInLeaf       int     `json:"min_data_in_leaf"`
	MinSumHessianInLeaf float64 `json:"min_sum_hessian_in_leaf"`
	MinGainToSplit      float64 `json:"min_gain_to_split"`
	LambdaL1            float64 `json:"lambda_l1"`
	LambdaL2            float64 `json:"lambda_l2"`
	MaxDeltaStep        float64 `json:"max_delta_step"`

	// Row sampling
	BaggingFreq        int     `json:"bagging_freq"`
	BaggingFraction    float64 `json:"bagging_fraction"`
	PosBaggingFraction float64 `json:"pos_bagging_fraction"`
	NegBaggingFraction float64 `json:"neg_bagging_fraction"`
	BaggingSeed        int64   `json:"bagging_seed"`

	// Feature sampling
	FeatureFraction       float64 `json:"feature_fraction"`
	FeatureFractionByNode float64 `json:"feature_fraction_bynode"`
	FeatureFractionSeed   int64   `json:"feature_fraction_seed"`

	// Dataset
	MaxBin int `json:"max_bin"`

	// Objective specific
	BoostFromAverage bool    `json:"boost_from_average"`
	ScalePosWeight   float64 `json:"scale_pos_weight"`

	// Other
	Seed               int64 `json:"seed"`
	Deterministic      bool  `json:"deterministic"`
	Verbosity          int   `json:"verbosity"`
	EarlyStoppingRound int   `json:"early_stopping_round"`
}

// DefaultParams returns LightGBM's defaults for the binary objective.
func DefaultParams() TrainingParams {
	return TrainingParams{
		Objective:             "binary",
		Boosting:              "gbdt",
		NumIterations:         100,
		LearningRate:          0.1,
		NumLeaves:             31,
		MaxDepth:              -1,
		MinDataInLeaf:         20,
		MinSumHessianInLeaf:   1e-3,
		BaggingFraction:       1.0,
		PosBaggingFraction:    1.0,
		NegBaggingFraction:    1.0,
		BaggingSeed:           3,
		FeatureFraction:       1.0,
		FeatureFractionByNode: 1.0,
		FeatureFractionSeed:   2,
		MaxBin:                255,
		BoostFromAverage:      true,
		ScalePosWeight:        1.0,
		Verbosity:             1,
	}
}

type paramKind int

const (
	kindInt paramKind = iota
	kindFloat
	kindBool
	kindString
	kindIgnored
)

type paramSpec struct {
	kind  paramKind
	apply func(p *TrainingParams, v interface{})
}

// canonical name -> aliases
var paramAliases = map[string][]string{
	"num_iterations":          {"num_iteration", "n_iter", "num_tree", "num_trees", "num_round", "num_rounds", "nrounds", "num_boost_round", "n_estimators", "max_iter"},
	"learning_rate":           {"shrinkage_rate", "eta"},
	"num_leaves":              {"num_leaf", "max_leaves", "max_leaf", "max_leaf_nodes"},
	"objective":               {"objective_type", "app", "application", "loss"},
	"boosting":                {"boosting_type", "boost"},
	"num_threads":             {"num_thread", "nthread", "nthreads", "n_jobs"},
	"min_data_in_leaf":        {"min_data_per_leaf", "min_data", "min_child_samples", "min_samples_leaf"},
	"min_sum_hessian_in_leaf": {"min_sum_hessian_per_leaf", "min_sum_hessian", "min_hessian", "min_child_weight"},
	"min_gain_to_split":       {"min_split_gain"},
	"lambda_l1":               {"reg_alpha", "l1_regularization"},
	"lambda_l2":               {"reg_lambda", "lambda", "l2_regularization"},
	"bagging_fraction":        {"sub_row", "subsample", "bagging"},
	"pos_bagging_fraction":    {"pos_sub_row", "pos_subsample", "pos_bagging"},
	"neg_bagging_fraction":    {"neg_sub_row", "neg_subsample", "neg_bagging"},
	"bagging_freq":            {"subsample_freq"},
	"bagging_seed":            {"bagging_fraction_seed"},
	"feature_fraction":        {"sub_feature", "colsample_bytree"},
	"feature_fraction_bynode": {"sub_feature_bynode", "colsample_bynode"},
	"max_bin":                 {"max_bins"},
	"seed":                    {"random_seed", "random_state"},
	"verbosity":               {"verbose"},
	"early_stopping_round":    {"early_stopping_rounds", "early_stopping", "n_iter_no_change"},
}

var paramSpecs = map[string]paramSpec{
	"objective":               {kindString, func(p *TrainingParams, v interface{}) { p.Objective = v.(string) }},
	"boosting":                {kindString, func(p *TrainingParams, v interface{}) { p.Boosting = v.(string) }},
	"num_iterations":          {kindInt, func(p *TrainingParams, v interface{}) { p.NumIterations = int(v.(int64)) }},
	"learning_rate":           {kindFloat, func(p *TrainingParams, v interface{}) { p.LearningRate = v.(float64) }},
	"num_leaves":              {kindInt, func(p *TrainingParams, v interface{}) { p.NumLeaves = int(v.(int64)) }},
	"max_depth":               {kindInt, func(p *TrainingParams, v interface{}) { p.MaxDepth = int(v.(int64)) }},
	"num_threads":             {kindInt, func(p *TrainingParams, v interface{}) { p.NumThreads = int(v.(int64)) }},
	"min_data_in_leaf":        {kindInt, func(p *TrainingParams, v interface{}) { p.MinDataInLeaf = int(v.(int64)) }},
	"min_sum_hessian_in_leaf": {kindFloat, func(p *TrainingParams, v interface{}) { p.MinSumHessianInLeaf = v.(float64) }},
	"min_gain_to_split":       {kindFloat, func(p *TrainingParams, v interface{}) { p.MinGainToSplit = v.(float64) }},
	"lambda_l1":               {kindFloat, func(p *TrainingParams, v interface{}) { p.LambdaL1 = v.(float64) }},
	"lambda_l2":               {kindFloat, func(p *TrainingParams, v interface{}) { p.LambdaL2 = v.(float64) }},
	"max_delta_step":          {kindFloat, func(p *TrainingParams, v interface{}) { p.MaxDeltaStep = v.(float64) }},
	"bagging_freq":            {kindInt, func(p *TrainingParams, v interface{}) { p.BaggingFreq = int(v.(int64)) }},
	"bagging_fraction":        {kindFloat, func(p *TrainingParams, v interface{}) { p.BaggingFraction = v.(float64) }},
	"pos_bagging_fraction":    {kindFloat, func(p *TrainingParams, v interface{}) { p.PosBaggingFraction = v.(float64) }},
	"neg_bagging_fraction":    {kindFloat, func(p *TrainingParams, v interface{}) { p.NegBaggingFraction = v.(float64) }},
	"bagging_seed":            {kindInt, func(p *TrainingParams, v interface{}) { p.BaggingSeed = v.(int64) }},
	"feature_fraction":        {kindFloat, func(p *TrainingParams, v interface{}) { p.FeatureFraction = v.(float64) }},
	"feature_fraction_bynode": {kindFloat, func(p *TrainingParams, v interface{}) { p.FeatureFractionByNode = v.(float64) }},
	"feature_fraction_seed":   {kindInt, func(p *TrainingParams, v interface{}) { p.FeatureFractionSeed = v.(int64) }},
	"max_bin":                 {kindInt, func(p *TrainingParams, v interface{}) { p.MaxBin = int(v.(int64)) }},
	"boost_from_average":      {kindBool, func(p *TrainingParams, v interface{}) { p.BoostFromAverage = v.(bool) }},
	"scale_pos_weight":        {kindFloat, func(p *TrainingParams, v interface{}) { p.ScalePosWeight = v.(float64) }},
	"seed":                    {kindInt, func(p *TrainingParams, v interface{}) { p.Seed = v.(int64) }},
	"deterministic":           {kindBool, func(p *TrainingParams, v interface{}) { p.Deterministic = v.(bool) }},
	"verbosity":               {kindInt, func(p *TrainingParams, v interface{}) { p.Verbosity = int(v.(int64)) }},
	"early_stopping_round":    {kindInt, func(p *TrainingParams, v interface{}) { p.EarlyStoppingRound = int(v.(int64)) }},

	// Accepted for compatibility. Row-wise histograms are the only layout and
	// features that cannot split are always skipped.
	"force_row_wise":     {kindIgnored, nil},
	"force_col_wise":     {kindIgnored, nil},
	"feature_pre_filter": {kindIgnored, nil},
}

var aliasIndex = func() map[string]string {
	idx := make(map[string]string)
	for canonical, aliases := range paramAliases {
		for _, alias := range aliases {
			idx[alias] = canonical
		}
	}
	return idx
}()

// CanonicalName resolves a LightGBM parameter name or alias.
func CanonicalName(name string) (string, bool) {
	if _, ok := paramSpecs[name]; ok {
		return name, true
	}
	canonical, ok := aliasIndex[name]
	return canonical, ok
}

// ParamsFromMap builds TrainingParams from LightGBM-style names on top of
// DefaultParams. Unknown keys are returned sorted so callers can report
// them. When seed is given, bagging_seed and feature_fraction_seed default
// to it unless they are set explicitly.
func ParamsFromMap(raw map[string]interface{}) (TrainingParams, []string, error) {
	p := DefaultParams()
	var unknown []string
	set := make(map[string]string)

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		canonical, ok := CanonicalName(key)
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		if prev, dup := set[canonical]; dup {
			return p, nil, errors.NewValueError("ParamsFromMap",
				fmt.Sprintf("parameters %q and %q are aliases of %s", prev, key, canonical))
		}
		set[canonical] = key

		spec := paramSpecs[canonical]
		if spec.kind == kindIgnored {
			continue
		}
		v, err := coerce(raw[key], spec.kind)
		if err != nil {
			return p, nil, errors.NewValueError("ParamsFromMap", fmt.Sprintf("%s: %v", key, err))
		}
		spec.apply(&p, v)
	}

	if _, ok := set["seed"]; ok {
		if _, ok := set["bagging_seed"]; !ok {
			p.BaggingSeed = p.Seed
		}
		if _, ok := set["feature_fraction_seed"]; !ok {
			p.FeatureFractionSeed = p.Seed
		}
	}
	return p, unknown, nil
}

func coerce(v interface{}, kind paramKind) (interface{}, error) {
	switch kind {
	case kindInt:
		return toInt(v)
	case kindFloat:
		return toFloat(v)
	case kindBool:
		return toBool(v)
	case kindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", v)
		}
		return strings.ToLower(strings.TrimSpace(s)), nil
	default:
		return nil, fmt.Errorf("unsupported parameter kind %d", kind)
	}
}

func toInt(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint64:
		return int64(x), nil
	case float32:
		return toInt(float64(x))
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return 0, fmt.Errorf("expected an integer, got %v", x)
		}
		return int64(x), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func toBool(v interface{}) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int:
		return x != 0, nil
	case int64:
		return x != 0, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	default:
		return false, fmt.Errorf("expected a boolean, got %T", v)
	}
}

// Validate checks value ranges and the consistency of the sampling settings.
func (p TrainingParams) Validate() error {
	check := func(ok bool, name string, value interface{}, reason string) error {
		if ok {
			return nil
		}
		return errors.NewValueError("TrainingParams.Validate", fmt.Sprintf("%s=%v: %s", name, value, reason))
	}
	inUnit := func(f float64) bool { return f > 0 && f <= 1 }

	checks := []error{
		check(p.Objective == "binary" || p.Objective == "regression", "objective", p.Objective, "supported objectives are binary and regression"),
		check(p.Boosting == "gbdt", "boosting", p.Boosting, "only gbdt is supported"),
		check(p.NumIterations >= 1, "num_iterations", p.NumIterations, "must be positive"),
		check(p.LearningRate > 0, "learning_rate", p.LearningRate, "must be positive"),
		check(p.NumLeaves >= 2 && p.NumLeaves <= 131072, "num_leaves", p.NumLeaves, "must be in [2, 131072]"),
		check(p.MinDataInLeaf >= 0, "min_data_in_leaf", p.MinDataInLeaf, "must be non-negative"),
		check(p.MinSumHessianInLeaf >= 0, "min_sum_hessian_in_leaf", p.MinSumHessianInLeaf, "must be non-negative"),
		check(p.MinGainToSplit >= 0, "min_gain_to_split", p.MinGainToSplit, "must be non-negative"),
		check(p.LambdaL1 >= 0, "lambda_l1", p.LambdaL1, "must be non-negative"),
		check(p.LambdaL2 >= 0, "lambda_l2", p.LambdaL2, "must be non-negative"),
		check(p.BaggingFreq >= 0, "bagging_freq", p.BaggingFreq, "must be non-negative"),
		check(inUnit(p.BaggingFraction), "bagging_fraction", p.BaggingFraction, "must be in (0, 1]"),
		check(inUnit(p.PosBaggingFraction), "pos_bagging_fraction", p.PosBaggingFraction, "must be in (0, 1]"),
		check(inUnit(p.NegBaggingFraction), "neg_bagging_fraction", p.NegBaggingFraction, "must be in (0, 1]"),
		check(inUnit(p.FeatureFraction), "feature_fraction", p.FeatureFraction, "must be in (0, 1]"),
		check(inUnit(p.FeatureFractionByNode), "feature_fraction_bynode", p.FeatureFractionByNode, "must be in (0, 1]"),
		check(p.MaxBin >= 2 && p.MaxBin <= 255, "max_bin", p.MaxBin, "must be in [2, 255]"),
		check(p.ScalePosWeight > 0, "scale_pos_weight", p.ScalePosWeight, "must be positive"),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if p.BaggingFreq == 0 && (p.BaggingFraction < 1 || p.PosBaggingFraction < 1 || p.NegBaggingFraction < 1) {
		return errors.NewValueError("TrainingParams.Validate",
			"bagging fractions below 1 require bagging_freq > 0")
	}
	if p.BaggingFraction < 1 && (p.PosBaggingFraction < 1 || p.NegBaggingFraction < 1) {
		return errors.NewValueError("TrainingParams.Validate",
			"bagging_fraction cannot be combined with pos_bagging_fraction or neg_bagging_fraction")
	}
	return nil
}

func (p TrainingParams) balancedBagging() bool {
	return p.PosBaggingFraction < 1 || p.NegBaggingFraction < 1
}

func (p TrainingParams) bagging() bool {
	return p.BaggingFreq > 0 && (p.BaggingFraction < 1 || p.balancedBagging())
}
