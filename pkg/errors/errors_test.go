package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewConfigurationError(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		reason  string
		value   interface{}
		wantMsg string
	}{
		{
			name:    "with value",
			field:   "models.model_2019.chosen_features",
			reason:  "unknown feature set",
			value:   "seleccion_999",
			wantMsg: "churnrank: configuration: models.model_2019.chosen_features: unknown feature set (got: seleccion_999)",
		},
		{
			name:    "without value",
			field:   "configurations",
			reason:  "at least one configuration is required",
			wantMsg: "churnrank: configuration: configurations: at least one configuration is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfigurationError(tt.field, tt.reason, tt.value)
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			var cfgErr *ConfigurationError
			if !As(err, &cfgErr) {
				t.Fatal("Error should be castable to *ConfigurationError")
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestNewDataError(t *testing.T) {
	err := NewDataErrorAt("data/202109.csv", 12, `unknown outcome label "BAJA+3"`)
	want := `churnrank: data: data/202109.csv:12: unknown outcome label "BAJA+3"`
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dataErr *DataError
	if !As(err, &dataErr) {
		t.Fatal("Error should be castable to *DataError")
	}
	if dataErr.Line != 12 {
		t.Errorf("Line = %d, want 12", dataErr.Line)
	}

	if got := NewDataError("dataset.parquet", "unsupported format").Error(); got != "churnrank: data: dataset.parquet: unsupported format" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestNewAggregationError(t *testing.T) {
	err := NewAggregationError("Aggregate", "no score columns")
	if err.Error() != "churnrank: Aggregate: no score columns" {
		t.Errorf("unexpected message %q", err.Error())
	}
	var aggErr *AggregationError
	if !As(err, &aggErr) {
		t.Error("Error should be castable to *AggregationError")
	}
}

func TestNewTrainingError(t *testing.T) {
	cause := fmt.Errorf("binary objective requires both classes")
	err := NewTrainingError("model_804", 3, cause)

	want := "churnrank: training model_804 (seed 3): binary objective requires both classes"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
	if !Is(err, cause) {
		t.Error("TrainingError should unwrap to its cause")
	}

	var trainErr *TrainingError
	if !As(err, &trainErr) {
		t.Fatal("Error should be castable to *TrainingError")
	}
	if trainErr.Seed != 3 {
		t.Errorf("Seed = %d, want 3", trainErr.Seed)
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 10, 8, 1)
	want := "churnrank: Predict: dimension mismatch on axis 1 (features). Expected 10, got 8"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("Booster", "Predict")
	want := "churnrank: Booster: this model is not fitted yet. Call Fit() before using Predict()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestStacktrace(t *testing.T) {
	err := NewValueError("Aggregate", "n must be non-negative")
	if Stacktrace(err) == "" {
		t.Error("expected a stack trace detail")
	}
	if Stacktrace(fmt.Errorf("plain")) != "" {
		t.Error("plain errors carry no stack trace")
	}
}

func TestWrap(t *testing.T) {
	base := NewDataError("x.csv", "bad cell")
	wrapped := Wrapf(base, "load periods %v", []int64{202109})

	if !strings.Contains(wrapped.Error(), "load periods [202109]") {
		t.Errorf("wrapped message missing context: %s", wrapped)
	}
	var dataErr *DataError
	if !As(wrapped, &dataErr) {
		t.Error("wrapped error should still be a *DataError")
	}
}
