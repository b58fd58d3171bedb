package frame

import (
	"fmt"

	"github.com/YuminosukeSato/churnrank/pkg/errors"
)

// Outcome is the observed label of a customer in a period.
type Outcome uint8

const (
	// Stable customers stay; they form the majority class.
	Stable Outcome = iota
	// AtRisk customers leave within two periods.
	AtRisk
	// Attrited customers leave within one period of the evaluation horizon.
	Attrited
)

func (o Outcome) String() string {
	switch o {
	case Stable:
		return "stable"
	case AtRisk:
		return "at-risk"
	case Attrited:
		return "attrited"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// TrainingTarget is 0 for Stable and 1 otherwise.
func (o Outcome) TrainingTarget() float64 {
	if o == Stable {
		return 0
	}
	return 1
}

// EvalTarget is 1 only for Attrited.
func (o Outcome) EvalTarget() float64 {
	if o == Attrited {
		return 1
	}
	return 0
}

// Weight grows with proximity to attrition.
func (o Outcome) Weight() float64 {
	switch o {
	case AtRisk:
		return 1.00001
	case Attrited:
		return 1.00002
	default:
		return 1.0
	}
}

// Labels are the raw strings used for each outcome in the dataset.
type Labels struct {
	Stable   string `yaml:"stable"`
	AtRisk   string `yaml:"at_risk"`
	Attrited string `yaml:"attrited"`
}

// DefaultLabels returns the labels of the reference dataset.
func DefaultLabels() Labels {
	return Labels{Stable: "CONTINUA", AtRisk: "BAJA+1", Attrited: "BAJA+2"}
}

// Parse maps a raw label to its Outcome.
func (l Labels) Parse(raw string) (Outcome, bool) {
	switch raw {
	case l.Stable:
		return Stable, true
	case l.AtRisk:
		return AtRisk, true
	case l.Attrited:
		return Attrited, true
	default:
		return 0, false
	}
}

// Validate requires three non-empty distinct labels.
func (l Labels) Validate() error {
	if l.Stable == "" || l.AtRisk == "" || l.Attrited == "" {
		return errors.NewConfigurationError("dataset.labels", "all three outcome labels are required", nil)
	}
	if l.Stable == l.AtRisk || l.Stable == l.Attrited || l.AtRisk == l.Attrited {
		return errors.NewConfigurationError("dataset.labels", "outcome labels must be distinct", l)
	}
	return nil
}

// Schema names the key and label columns of the dataset.
type Schema struct {
	CustomerColumn string `yaml:"customer_column"`
	PeriodColumn   string `yaml:"period_column"`
	OutcomeColumn  string `yaml:"outcome_column"`
	Labels         Labels `yaml:"labels"`
}

// DefaultSchema returns the column names of the reference dataset.
func DefaultSchema() Schema {
	return Schema{
		CustomerColumn: "numero_de_cliente",
		PeriodColumn:   "foto_mes",
		OutcomeColumn:  "clase_ternaria",
		Labels:         DefaultLabels(),
	}
}

// Validate checks that every column is named and the labels are usable.
func (s Schema) Validate() error {
	if s.CustomerColumn == "" || s.PeriodColumn == "" || s.OutcomeColumn == "" {
		return errors.NewConfigurationError("dataset.schema", "customer, period and outcome columns are required", nil)
	}
	if s.CustomerColumn == s.PeriodColumn || s.CustomerColumn == s.OutcomeColumn || s.PeriodColumn == s.OutcomeColumn {
		return errors.NewConfigurationError("dataset.schema", "key and outcome columns must be distinct", s)
	}
	return s.Labels.Validate()
}
