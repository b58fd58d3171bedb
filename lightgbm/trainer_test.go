package lightgbm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/churnrank/pkg/errors"
)

// separable returns rows where the label is 1 exactly when the first
// feature exceeds 0.5. The second feature is noise.
func separable(n int) (*mat.Dense, []float64) {
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n)
		X.Set(i, 0, x)
		X.Set(i, 1, float64((i*7919)%13))
		if x > 0.5 {
			y[i] = 1
		}
	}
	return X, y
}

func smallParams() TrainingParams {
	p := DefaultParams()
	p.NumIterations = 20
	p.NumLeaves = 4
	p.MinDataInLeaf = 5
	p.Verbosity = -1
	return p
}

func TestNewDataset(t *testing.T) {
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})

	tests := []struct {
		name    string
		label   []float64
		weight  []float64
		names   []string
		wantErr bool
	}{
		{name: "default names", label: []float64{0, 1}},
		{name: "label length", label: []float64{0}, wantErr: true},
		{name: "weight length", label: []float64{0, 1}, weight: []float64{1}, wantErr: true},
		{name: "negative weight", label: []float64{0, 1}, weight: []float64{1, -1}, wantErr: true},
		{name: "zero weights", label: []float64{0, 1}, weight: []float64{0, 0}, wantErr: true},
		{name: "nan label", label: []float64{math.NaN(), 1}, wantErr: true},
		{name: "duplicate names", label: []float64{0, 1}, names: []string{"a", "a"}, wantErr: true},
		{name: "name count", label: []float64{0, 1}, names: []string{"a"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := NewDataset(X, tt.label, tt.weight, tt.names)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"Column_0", "Column_1"}, ds.FeatureNames)
		})
	}
}

func TestTrainerSeparable(t *testing.T) {
	X, y := separable(200)
	ds, err := NewDataset(X, y, nil, []string{"signal", "noise"})
	require.NoError(t, err)

	model, err := Train(smallParams(), ds)
	require.NoError(t, err)
	assert.Greater(t, model.NumTrees(), 0)
	assert.Equal(t, []string{"signal", "noise"}, model.FeatureNames())

	probs, err := model.Predict(X)
	require.NoError(t, err)
	for i, p := range probs {
		if y[i] == 1 {
			assert.Greater(t, p, 0.5, "row %d", i)
		} else {
			assert.Less(t, p, 0.5, "row %d", i)
		}
	}

	counts := model.SplitCounts()
	assert.Greater(t, counts[0], 0)
}

func TestTrainerDeterminism(t *testing.T) {
	X, y := separable(300)
	ds, err := NewDataset(X, y, nil, nil)
	require.NoError(t, err)

	p := smallParams()
	p.BaggingFreq = 1
	p.NegBaggingFraction = 0.5
	p.FeatureFraction = 0.5

	predict := func(threads int) []float64 {
		p.NumThreads = threads
		model, err := Train(p, ds)
		require.NoError(t, err)
		out, err := model.PredictRaw(X)
		require.NoError(t, err)
		return out
	}

	assert.Equal(t, predict(1), predict(4))

	p.BaggingSeed = 99
	other := predict(1)
	p.BaggingSeed = DefaultParams().BaggingSeed
	assert.NotEqual(t, predict(1), other)
}

func TestTrainerErrors(t *testing.T) {
	X, _ := separable(50)

	t.Run("single class", func(t *testing.T) {
		ds, err := NewDataset(X, make([]float64, 50), nil, nil)
		require.NoError(t, err)
		_, err = Train(smallParams(), ds)
		var valueErr *errors.ValueError
		assert.True(t, errors.As(err, &valueErr))
	})

	t.Run("bagging fraction without frequency", func(t *testing.T) {
		_, y := separable(50)
		ds, err := NewDataset(X, y, nil, nil)
		require.NoError(t, err)
		p := smallParams()
		p.BaggingFraction = 0.5
		_, err = Train(p, ds)
		assert.Error(t, err)
	})

	t.Run("nil dataset", func(t *testing.T) {
		_, err := Train(smallParams(), nil)
		assert.True(t, errors.Is(err, errors.ErrEmptyData))
	})
}

func TestTrainerMissingValues(t *testing.T) {
	// NaN rows are all positive, so the split must route NaN away from the
	// negatives.
	n := 120
	X := mat.NewDense(n, 1, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		switch {
		case i < 40:
			X.Set(i, 0, float64(i))
		case i < 80:
			X.Set(i, 0, float64(i))
			y[i] = 1
		default:
			X.Set(i, 0, math.NaN())
			y[i] = 1
		}
	}
	ds, err := NewDataset(X, y, nil, nil)
	require.NoError(t, err)
	model, err := Train(smallParams(), ds)
	require.NoError(t, err)

	probs, err := model.Predict(mat.NewDense(3, 1, []float64{5, 70, math.NaN()}))
	require.NoError(t, err)
	assert.Less(t, probs[0], 0.5)
	assert.Greater(t, probs[1], 0.5)
	assert.Greater(t, probs[2], 0.5)
}

func TestTrainerRegression(t *testing.T) {
	n := 100
	X := mat.NewDense(n, 1, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		y[i] = 3
		if i >= 50 {
			y[i] = 7
		}
	}
	ds, err := NewDataset(X, y, nil, nil)
	require.NoError(t, err)

	p := smallParams()
	p.Objective = "regression"
	p.NumIterations = 100
	model, err := Train(p, ds)
	require.NoError(t, err)

	pred, err := model.Predict(mat.NewDense(2, 1, []float64{10, 90}))
	require.NoError(t, err)
	assert.InDelta(t, 3, pred[0], 0.05)
	assert.InDelta(t, 7, pred[1], 0.05)
}

func TestModelPredictErrors(t *testing.T) {
	_, err := (&Model{}).PredictRaw(mat.NewDense(1, 1, nil))
	var notFitted *errors.NotFittedError
	assert.True(t, errors.As(err, &notFitted))

	X, y := separable(100)
	ds, _ := NewDataset(X, y, nil, nil)
	model, err := Train(smallParams(), ds)
	require.NoError(t, err)
	_, err = model.PredictRaw(mat.NewDense(1, 3, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}
