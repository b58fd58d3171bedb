package ensemble

import (
	"time"

	"github.com/YuminosukeSato/churnrank/pkg/errors"
	"github.com/YuminosukeSato/churnrank/pkg/log"
)

// Ensembler averages the configurations of a plan into the final selection.
type Ensembler struct {
	configs ConfigurationRunner
	logger  log.Logger
}

// NewEnsembler creates an Ensembler.
func NewEnsembler(configs ConfigurationRunner) *Ensembler {
	return &Ensembler{
		configs: configs,
		logger:  log.GetLoggerWithName("ensemble"),
	}
}

// WithLogger replaces the ensembler's logger.
func (e *Ensembler) WithLogger(logger log.Logger) *Ensembler {
	e.logger = logger
	return e
}

// Run validates plan, runs its configurations in order and combines them.
func (e *Ensembler) Run(plan Plan) (*Result, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	names := make([]string, 0, len(plan.Configurations))
	rankings := make([]*Ranking, 0, len(plan.Configurations))
	for _, cfg := range plan.Configurations {
		r, err := e.configs.Run(cfg)
		if err != nil {
			return nil, err
		}
		names = append(names, cfg.Name)
		rankings = append(rankings, r)
	}

	result, err := Combine(names, rankings, plan.Submissions)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Ensemble complete",
		log.ColumnsKey, len(names),
		log.SamplesKey, result.Ranking.Len(),
		log.SelectedKey, len(result.CustomerIDs),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return result, nil
}

// Combine outer-joins the mean scores of the rankings as config_<name>,
// averages each row over the configurations that scored it and returns the
// top n customers in rank order.
func Combine(names []string, rankings []*Ranking, n int) (*Result, error) {
	if len(names) != len(rankings) {
		return nil, errors.NewDimensionError("Combine", len(names), len(rankings), 0)
	}
	frames := make([]*ScoreFrame, len(rankings))
	for i, r := range rankings {
		frames[i] = r.MeanFrame("config_" + names[i])
	}
	joined, err := OuterJoin(frames...)
	if err != nil {
		return nil, err
	}
	ranking, err := Aggregate(joined, n, SkipMissing())
	if err != nil {
		return nil, err
	}
	return &Result{CustomerIDs: ranking.CustomerIDs(n), Ranking: ranking}, nil
}
