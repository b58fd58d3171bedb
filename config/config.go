// Package config reads the YAML run description into validated ensemble
// records. Every reference is resolved here so that a bad file fails before
// any dataset is opened.
package config

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/churnrank/core/frame"
	"github.com/YuminosukeSato/churnrank/ensemble"
	"github.com/YuminosukeSato/churnrank/pkg/errors"
)

// File mirrors the on-disk layout.
type File struct {
	Dataset        DatasetFile         `yaml:"dataset"`
	Submissions    int                 `yaml:"submissions"`
	MemoryLimit    string              `yaml:"memory_limit"`
	FeatureSets    map[string][]string `yaml:"feature_sets"`
	Configurations []ConfigurationFile `yaml:"configurations"`
}

// DatasetFile locates the dataset and names its columns.
type DatasetFile struct {
	Path   string        `yaml:"path"`
	Source string        `yaml:"source"`
	Schema *frame.Schema `yaml:"schema"`
}

// ConfigurationFile is one entry of configurations.
type ConfigurationFile struct {
	Name              string               `yaml:"name"`
	ValidationPeriods []int64              `yaml:"validation_periods"`
	FixedParams       ensemble.Params      `yaml:"fixed_params"`
	Models            map[string]ModelFile `yaml:"models"`
}

// ModelFile is one model of a configuration. Pointer fields distinguish
// absent values from zero.
type ModelFile struct {
	Params                ensemble.Params `yaml:"params"`
	Semillerio            *int            `yaml:"semillerio"`
	Submissions           *int            `yaml:"n_submissions"`
	SubEarlyStop          int             `yaml:"sub_early_stop"`
	Months                []int64         `yaml:"months"`
	UndersamplingFraction *float64        `yaml:"undersampling_fraction"`
	ChosenFeatures        []string        `yaml:"chosen_features"`
}

// Dataset is the resolved dataset section.
type Dataset struct {
	// Path is where the pipeline reads the dataset.
	Path string
	// Source, when set, is fetched to Path if Path does not exist.
	Source string
	Schema frame.Schema
}

// Settings is a validated run description.
type Settings struct {
	Dataset Dataset
	Plan    ensemble.Plan
	// MemoryLimit caps the bytes tracked by the training budget; 0 is
	// unlimited.
	MemoryLimit int64
}

// Load reads and resolves the file at path.
func Load(fs afero.Fs, path string) (*Settings, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read configuration %s", path)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "configuration %s", path)
	}
	return s, nil
}

// Parse decodes data strictly and resolves it.
func Parse(data []byte) (*Settings, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.NewConfigurationError("", "configuration is empty", nil)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, errors.NewConfigurationError("", "invalid YAML: "+err.Error(), nil)
	}
	return f.Resolve()
}

// Resolve applies defaults, resolves feature sets and validates the result.
func (f File) Resolve() (*Settings, error) {
	s := &Settings{
		Dataset: Dataset{
			Path:   f.Dataset.Path,
			Source: f.Dataset.Source,
			Schema: frame.DefaultSchema(),
		},
	}
	if f.Dataset.Schema != nil {
		s.Dataset.Schema = *f.Dataset.Schema
	}
	if err := s.Dataset.Schema.Validate(); err != nil {
		return nil, err
	}

	if f.MemoryLimit != "" {
		limit, err := humanize.ParseBytes(f.MemoryLimit)
		if err != nil {
			return nil, errors.NewConfigurationError("memory_limit", "not a byte size", f.MemoryLimit)
		}
		s.MemoryLimit = int64(limit)
	}

	s.Plan.Submissions = f.Submissions
	if s.Plan.Submissions == 0 {
		s.Plan.Submissions = ensemble.DefaultSubmissions
	}

	sets := ensemble.FeatureSets(f.FeatureSets)
	for i, cf := range f.Configurations {
		cfg, err := f.resolveConfiguration(i, cf, sets, s)
		if err != nil {
			return nil, err
		}
		s.Plan.Configurations = append(s.Plan.Configurations, cfg)
	}
	if err := s.Plan.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (f File) resolveConfiguration(i int, cf ConfigurationFile, sets ensemble.FeatureSets, s *Settings) (ensemble.Configuration, error) {
	name := cf.Name
	if name == "" {
		name = strconv.Itoa(i + 1)
	}
	field := "configurations." + name

	names := make([]string, 0, len(cf.Models))
	for modelName := range cf.Models {
		names = append(names, modelName)
	}
	sort.Strings(names)

	models := make([]ensemble.ModelSpec, 0, len(cf.Models))
	for _, modelName := range names {
		mf := cf.Models[modelName]
		mfield := fmt.Sprintf("%s.models.%s", field, modelName)
		features, err := sets.Resolve(mfield+".chosen_features", mf.ChosenFeatures, s.Dataset.Schema.OutcomeColumn)
		if err != nil {
			return ensemble.Configuration{}, err
		}

		m := ensemble.ModelSpec{
			Name:                  modelName,
			Params:                mf.Params.Clone(),
			FeatureSets:           append([]string(nil), mf.ChosenFeatures...),
			Features:              features,
			Months:                mf.Months,
			UndersamplingFraction: 1,
			Semillerio:            1,
			SubEarlyStop:          mf.SubEarlyStop,
			Submissions:           s.Plan.Submissions,
		}
		if mf.UndersamplingFraction != nil {
			m.UndersamplingFraction = *mf.UndersamplingFraction
		}
		if mf.Semillerio != nil {
			m.Semillerio = *mf.Semillerio
		}
		if mf.Submissions != nil {
			m.Submissions = *mf.Submissions
		}
		models = append(models, m)
	}

	return ensemble.NewConfiguration(name, cf.ValidationPeriods, cf.FixedParams, models)
}
