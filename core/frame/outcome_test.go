package frame

import (
	"testing"

	"github.com/YuminosukeSato/churnrank/pkg/errors"
)

func TestOutcomeDerivedColumns(t *testing.T) {
	tests := []struct {
		outcome    Outcome
		target     float64
		evalTarget float64
		weight     float64
	}{
		{outcome: Stable, target: 0, evalTarget: 0, weight: 1.0},
		{outcome: AtRisk, target: 1, evalTarget: 0, weight: 1.00001},
		{outcome: Attrited, target: 1, evalTarget: 1, weight: 1.00002},
	}

	for _, tt := range tests {
		t.Run(tt.outcome.String(), func(t *testing.T) {
			if got := tt.outcome.TrainingTarget(); got != tt.target {
				t.Errorf("TrainingTarget() = %v, want %v", got, tt.target)
			}
			if got := tt.outcome.EvalTarget(); got != tt.evalTarget {
				t.Errorf("EvalTarget() = %v, want %v", got, tt.evalTarget)
			}
			if got := tt.outcome.Weight(); got != tt.weight {
				t.Errorf("Weight() = %v, want %v", got, tt.weight)
			}
		})
	}
}

func TestLabelsParse(t *testing.T) {
	labels := DefaultLabels()

	tests := []struct {
		raw  string
		want Outcome
		ok   bool
	}{
		{raw: "CONTINUA", want: Stable, ok: true},
		{raw: "BAJA+1", want: AtRisk, ok: true},
		{raw: "BAJA+2", want: Attrited, ok: true},
		{raw: "BAJA+3", ok: false},
		{raw: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := labels.Parse(tt.raw)
			if ok != tt.ok {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSchemaValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Schema)
		wantErr bool
	}{
		{name: "default", mutate: func(*Schema) {}},
		{name: "missing customer column", mutate: func(s *Schema) { s.CustomerColumn = "" }, wantErr: true},
		{name: "key equals outcome", mutate: func(s *Schema) { s.PeriodColumn = s.OutcomeColumn }, wantErr: true},
		{name: "duplicate labels", mutate: func(s *Schema) { s.Labels.AtRisk = s.Labels.Stable }, wantErr: true},
		{name: "empty label", mutate: func(s *Schema) { s.Labels.Attrited = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSchema()
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var cfgErr *errors.ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Errorf("expected ConfigurationError, got %T", err)
				}
			}
		})
	}
}
