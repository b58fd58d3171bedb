package lightgbm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/churnrank/pkg/errors"
)

func TestParamsFromMap(t *testing.T) {
	t.Run("canonical names and aliases", func(t *testing.T) {
		p, unknown, err := ParamsFromMap(map[string]interface{}{
			"objective":             "binary",
			"num_boost_round":       50,
			"learning_rate":         0.05,
			"num_leaves":            64.0,
			"min_child_samples":     "40",
			"bagging_fraction_seed": 7,
			"feature_fraction":      0.5,
			"verbose":               -1,
			"first_metric_only":     true,
		})
		require.NoError(t, err)

		assert.Equal(t, 50, p.NumIterations)
		assert.Equal(t, 0.05, p.LearningRate)
		assert.Equal(t, 64, p.NumLeaves)
		assert.Equal(t, 40, p.MinDataInLeaf)
		assert.Equal(t, int64(7), p.BaggingSeed)
		assert.Equal(t, 0.5, p.FeatureFraction)
		assert.Equal(t, -1, p.Verbosity)
		assert.Equal(t, []string{"first_metric_only"}, unknown)
	})

	t.Run("seed seeds the samplers", func(t *testing.T) {
		p, _, err := ParamsFromMap(map[string]interface{}{"seed": 11, "feature_fraction_seed": 5})
		require.NoError(t, err)
		assert.Equal(t, int64(11), p.Seed)
		assert.Equal(t, int64(11), p.BaggingSeed)
		assert.Equal(t, int64(5), p.FeatureFractionSeed)
	})

	t.Run("ignored parameters", func(t *testing.T) {
		p, unknown, err := ParamsFromMap(map[string]interface{}{"force_row_wise": true, "feature_pre_filter": false})
		require.NoError(t, err)
		assert.Empty(t, unknown)
		assert.Equal(t, DefaultParams(), p)
	})

	t.Run("conflicting aliases", func(t *testing.T) {
		_, _, err := ParamsFromMap(map[string]interface{}{"num_leaves": 31, "max_leaves": 63})
		require.Error(t, err)
		var valueErr *errors.ValueError
		assert.True(t, errors.As(err, &valueErr))
	})

	t.Run("bad type", func(t *testing.T) {
		_, _, err := ParamsFromMap(map[string]interface{}{"num_leaves": 3.5})
		assert.Error(t, err)
		_, _, err = ParamsFromMap(map[string]interface{}{"objective": 1})
		assert.Error(t, err)
	})
}

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"num_iterations", "num_iterations", true},
		{"n_estimators", "num_iterations", true},
		{"reg_lambda", "lambda_l2", true},
		{"colsample_bytree", "feature_fraction", true},
		{"not_a_param", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := CanonicalName(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(p *TrainingParams)
		wantErr bool
	}{
		{"defaults", func(p *TrainingParams) {}, false},
		{"balanced bagging", func(p *TrainingParams) {
			p.BaggingFreq = 1
			p.PosBaggingFraction = 1
			p.NegBaggingFraction = 0.1
		}, false},
		{"bagging without frequency", func(p *TrainingParams) { p.BaggingFraction = 0.8 }, true},
		{"negative bagging without frequency", func(p *TrainingParams) { p.NegBaggingFraction = 0.3 }, true},
		{"plain and balanced bagging", func(p *TrainingParams) {
			p.BaggingFreq = 1
			p.BaggingFraction = 0.8
			p.NegBaggingFraction = 0.3
		}, true},
		{"unsupported objective", func(p *TrainingParams) { p.Objective = "lambdarank" }, true},
		{"dart", func(p *TrainingParams) { p.Boosting = "dart" }, true},
		{"one leaf", func(p *TrainingParams) { p.NumLeaves = 1 }, true},
		{"max bin too large", func(p *TrainingParams) { p.MaxBin = 1024 }, true},
		{"zero feature fraction", func(p *TrainingParams) { p.FeatureFraction = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
