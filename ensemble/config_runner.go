package ensemble

import (
	"fmt"
	"time"

	"github.com/YuminosukeSato/churnrank/core/frame"
	"github.com/YuminosukeSato/churnrank/performance"
	"github.com/YuminosukeSato/churnrank/pkg/errors"
	"github.com/YuminosukeSato/churnrank/pkg/log"
)

// ConfigurationRunner produces the ranking of one configuration.
type ConfigurationRunner interface {
	Run(cfg Configuration) (*Ranking, error)
}

// ConfigRunner runs the models of a configuration against one shared
// validation frame.
type ConfigRunner struct {
	source FrameSource
	models ModelRunner
	logger log.Logger
}

// NewConfigRunner creates a ConfigRunner.
func NewConfigRunner(source FrameSource, models ModelRunner) *ConfigRunner {
	return &ConfigRunner{
		source: source,
		models: models,
		logger: log.GetLoggerWithName("ensemble.config"),
	}
}

// WithLogger replaces the runner's logger.
func (c *ConfigRunner) WithLogger(logger log.Logger) *ConfigRunner {
	c.logger = logger
	return c
}

// Run loads the validation periods once, runs every model in name order and
// returns the single model's ranking, or the ranking of the models' means
// joined as model_<i> and flagged with the first model's submission count.
func (c *ConfigRunner) Run(cfg Configuration) (*Ranking, error) {
	logger := c.logger.With(log.ConfigKey, cfg.Name)
	start := time.Now()

	validation, err := c.source.Load(cfg.ValidationPeriods, frame.WithColumns(cfg.Features()...))
	if err != nil {
		return nil, errors.Wrapf(err, "load validation periods of %s", cfg.Name)
	}
	defer func() {
		validation.Release()
		performance.Release(logger, "configuration "+cfg.Name)
	}()
	if validation.Len() == 0 {
		return nil, errors.NewDataError(cfg.Name, fmt.Sprintf("no rows in validation periods %v", cfg.ValidationPeriods))
	}
	logger.Info("Running configuration",
		log.PeriodsKey, cfg.ValidationPeriods,
		log.SamplesKey, validation.Len(),
		"models", len(cfg.Models),
	)

	rankings := make([]*Ranking, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		r, err := c.models.Run(m, validation)
		if err != nil {
			return nil, err
		}
		rankings = append(rankings, r)
	}
	if len(rankings) == 1 {
		return rankings[0], nil
	}

	combined, err := NewScoreFrame(validation.Keys())
	if err != nil {
		return nil, err
	}
	for i, r := range rankings {
		if err := combined.Join(r.MeanFrame(fmt.Sprintf("model_%d", i))); err != nil {
			return nil, errors.Wrapf(err, "join models of %s", cfg.Name)
		}
	}
	ranking, err := Aggregate(combined, cfg.Models[0].Submissions)
	if err != nil {
		return nil, err
	}

	logger.Info("Configuration scored",
		log.ColumnsKey, combined.Names(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return ranking, nil
}
