package ensemble

import (
	"fmt"
	"sort"

	"github.com/YuminosukeSato/churnrank/pkg/errors"
)

// DefaultSubmissions is the number of customers a run selects.
const DefaultSubmissions = 11000

// FeatureSets maps a feature-set name to its ordered column names.
type FeatureSets map[string][]string

// Resolve concatenates the named sets, keeping the first occurrence of each
// column and leaving out the columns in exclude. An unknown set name is a
// ConfigurationError.
func (fs FeatureSets) Resolve(field string, names []string, exclude ...string) ([]string, error) {
	if len(names) == 0 {
		return nil, errors.NewConfigurationError(field, "at least one feature set is required", nil)
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, c := range exclude {
		skip[c] = struct{}{}
	}
	seen := make(map[string]struct{})
	var out []string
	for _, name := range names {
		cols, ok := fs[name]
		if !ok {
			return nil, errors.NewConfigurationError(field, "unknown feature set", name)
		}
		for _, c := range cols {
			if _, dup := seen[c]; dup {
				continue
			}
			if _, excluded := skip[c]; excluded {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, errors.NewConfigurationError(field, "feature sets resolve to no columns", names)
	}
	return out, nil
}

// ModelSpec describes one seed-ensembled model.
type ModelSpec struct {
	Name string
	// Params are the model's hyperparameters with the configuration's fixed
	// parameters applied.
	Params      Params
	FeatureSets []string
	// Features is the resolved, deduplicated column list in fit order.
	Features []string
	Months   []int64
	// UndersamplingFraction keeps this share of Stable rows. Values outside
	// (0, 1) disable undersampling.
	UndersamplingFraction float64
	Semillerio            int
	// SubEarlyStop is accepted for compatibility and has no effect.
	SubEarlyStop int
	Submissions  int
}

// Validate checks the record. field prefixes error locations.
func (m ModelSpec) Validate(field string) error {
	switch {
	case m.Name == "":
		return errors.NewConfigurationError(field+".name", "model name is required", nil)
	case len(m.Features) == 0:
		return errors.NewConfigurationError(field+".chosen_features", "no feature columns", nil)
	case len(m.Months) == 0:
		return errors.NewConfigurationError(field+".months", "at least one training period is required", nil)
	case m.Semillerio < 1:
		return errors.NewConfigurationError(field+".semillerio", "seed count must be positive", m.Semillerio)
	case m.Submissions < 1:
		return errors.NewConfigurationError(field+".n_submissions", "submission count must be positive", m.Submissions)
	case !(m.UndersamplingFraction > 0 && m.UndersamplingFraction <= 1):
		return errors.NewConfigurationError(field+".undersampling_fraction", "must be in (0, 1]", m.UndersamplingFraction)
	}
	return nil
}

// Configuration is a named group of models sharing validation periods.
type Configuration struct {
	Name              string
	ValidationPeriods []int64
	FixedParams       Params
	// Models are sorted by name.
	Models []ModelSpec
}

// NewConfiguration applies the fixed parameters to every model, sorts the
// models by name and validates the result.
func NewConfiguration(name string, validation []int64, fixed Params, models []ModelSpec) (Configuration, error) {
	c := Configuration{
		Name:              name,
		ValidationPeriods: append([]int64(nil), validation...),
		FixedParams:       fixed.Clone(),
		Models:            make([]ModelSpec, len(models)),
	}
	for i, m := range models {
		m.Params = m.Params.Merge(fixed)
		m.Features = append([]string(nil), m.Features...)
		m.Months = append([]int64(nil), m.Months...)
		c.Models[i] = m
	}
	sort.SliceStable(c.Models, func(i, j int) bool { return c.Models[i].Name < c.Models[j].Name })
	return c, c.Validate()
}

// Validate checks the configuration and its models.
func (c Configuration) Validate() error {
	field := "configurations." + c.Name
	if c.Name == "" {
		return errors.NewConfigurationError("configurations", "configuration name is required", nil)
	}
	if len(c.ValidationPeriods) == 0 {
		return errors.NewConfigurationError(field+".validation_periods", "at least one validation period is required", nil)
	}
	if len(c.Models) == 0 {
		return errors.NewConfigurationError(field+".models", "at least one model is required", nil)
	}
	seen := make(map[string]struct{}, len(c.Models))
	for _, m := range c.Models {
		if _, dup := seen[m.Name]; dup {
			return errors.NewConfigurationError(field+".models", "duplicate model name", m.Name)
		}
		seen[m.Name] = struct{}{}
		if err := m.Validate(fmt.Sprintf("%s.models.%s", field, m.Name)); err != nil {
			return err
		}
	}
	return nil
}

// Features returns the union of the models' features in model order.
func (c Configuration) Features() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range c.Models {
		for _, f := range m.Features {
			if _, dup := seen[f]; !dup {
				seen[f] = struct{}{}
				out = append(out, f)
			}
		}
	}
	return out
}

// Plan is every configuration of a run plus the final submission count.
type Plan struct {
	Configurations []Configuration
	Submissions    int
}

// Validate checks the plan and every configuration.
func (p Plan) Validate() error {
	if len(p.Configurations) == 0 {
		return errors.NewConfigurationError("configurations", "at least one configuration is required", nil)
	}
	if p.Submissions < 1 {
		return errors.NewConfigurationError("submissions", "submission count must be positive", p.Submissions)
	}
	seen := make(map[string]struct{}, len(p.Configurations))
	for _, c := range p.Configurations {
		if _, dup := seen[c.Name]; dup {
			return errors.NewConfigurationError("configurations", "duplicate configuration name", c.Name)
		}
		seen[c.Name] = struct{}{}
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Result is the outcome of a run.
type Result struct {
	// CustomerIDs holds at most Submissions ids in rank order.
	CustomerIDs []int64
	Ranking     *Ranking
}
