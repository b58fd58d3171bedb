package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/churnrank/pkg/errors"
)

func TestFeatureSetsResolve(t *testing.T) {
	sets := FeatureSets{
		"base":   {"ctrx", "mcuentas_saldo", "clase_ternaria"},
		"lagged": {"ctrx_lag1", "ctrx", "foto_mes"},
	}

	t.Run("deduplicated in first-seen order", func(t *testing.T) {
		got, err := sets.Resolve("models.m.chosen_features", []string{"base", "lagged"}, "clase_ternaria")
		require.NoError(t, err)
		assert.Equal(t, []string{"ctrx", "mcuentas_saldo", "ctrx_lag1", "foto_mes"}, got)
	})

	t.Run("unknown set", func(t *testing.T) {
		_, err := sets.Resolve("models.m.chosen_features", []string{"base", "seleccion_999"})
		var cfgErr *errors.ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "seleccion_999", cfgErr.Value)
	})

	t.Run("no sets", func(t *testing.T) {
		_, err := sets.Resolve("models.m.chosen_features", nil)
		assert.Error(t, err)
	})
}

func validModel(name string) ModelSpec {
	return ModelSpec{
		Name:                  name,
		Params:                Params{"num_leaves": 31},
		FeatureSets:           []string{"base"},
		Features:              []string{"ctrx"},
		Months:                []int64{202101},
		UndersamplingFraction: 1,
		Semillerio:            1,
		Submissions:           10,
	}
}

func TestNewConfiguration(t *testing.T) {
	cfg, err := NewConfiguration("1", []int64{202106}, Params{"max_leaves": 63, "max_bin": 31},
		[]ModelSpec{validModel("model_b"), validModel("model_a")})
	require.NoError(t, err)

	assert.Equal(t, "model_a", cfg.Models[0].Name)
	assert.Equal(t, "model_b", cfg.Models[1].Name)
	assert.Equal(t, Params{"max_leaves": 63, "max_bin": 31}, cfg.Models[0].Params)
	assert.Equal(t, []string{"ctrx"}, cfg.Features())
}

func TestModelSpecValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(m *ModelSpec)
	}{
		{"no months", func(m *ModelSpec) { m.Months = nil }},
		{"no features", func(m *ModelSpec) { m.Features = nil }},
		{"zero seeds", func(m *ModelSpec) { m.Semillerio = 0 }},
		{"zero submissions", func(m *ModelSpec) { m.Submissions = 0 }},
		{"fraction above one", func(m *ModelSpec) { m.UndersamplingFraction = 1.5 }},
		{"zero fraction", func(m *ModelSpec) { m.UndersamplingFraction = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validModel("m")
			tt.modify(&m)
			err := m.Validate("models.m")
			var cfgErr *errors.ConfigurationError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
	assert.NoError(t, validModel("m").Validate("models.m"))
}

func TestPlanValidate(t *testing.T) {
	cfg, err := NewConfiguration("1", []int64{202106}, nil, []ModelSpec{validModel("m")})
	require.NoError(t, err)

	assert.NoError(t, Plan{Configurations: []Configuration{cfg}, Submissions: 5}.Validate())
	assert.Error(t, Plan{Submissions: 5}.Validate())
	assert.Error(t, Plan{Configurations: []Configuration{cfg}}.Validate())
	assert.Error(t, Plan{Configurations: []Configuration{cfg, cfg}, Submissions: 5}.Validate())

	_, err = NewConfiguration("2", []int64{202106}, nil, []ModelSpec{validModel("m"), validModel("m")})
	assert.Error(t, err)
	_, err = NewConfiguration("3", nil, nil, []ModelSpec{validModel("m")})
	assert.Error(t, err)
}
