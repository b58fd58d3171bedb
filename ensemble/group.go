package ensemble

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/YuminosukeSato/churnrank/core/frame"
	"github.com/YuminosukeSato/churnrank/core/sampling"
	"github.com/YuminosukeSato/churnrank/performance"
	"github.com/YuminosukeSato/churnrank/pkg/errors"
	"github.com/YuminosukeSato/churnrank/pkg/log"
)

// FrameSource loads the rows of some periods. *frame.Loader implements it.
type FrameSource interface {
	Load(periods []int64, opts ...frame.LoadOption) (*frame.Frame, error)
}

// ModelRunner scores a validation frame with one seed-ensembled model.
type ModelRunner interface {
	Run(spec ModelSpec, validation *frame.Frame) (*Ranking, error)
}

// GroupRunner trains every seed of one model and averages their scores.
// The training set lives only for the duration of Run.
type GroupRunner struct {
	source  FrameSource
	trainer Trainer
	budget  *performance.Budget
	logger  log.Logger
}

// NewGroupRunner creates a GroupRunner. A nil budget records usage without
// a cap.
func NewGroupRunner(source FrameSource, trainer Trainer, budget *performance.Budget) *GroupRunner {
	if budget == nil {
		budget = performance.NewBudget(0)
	}
	return &GroupRunner{
		source:  source,
		trainer: trainer,
		budget:  budget,
		logger:  log.GetLoggerWithName("ensemble.group"),
	}
}

// WithLogger replaces the runner's logger.
func (g *GroupRunner) WithLogger(logger log.Logger) *GroupRunner {
	g.logger = logger
	return g
}

// Run trains spec once per seed in 0..Semillerio-1, scores validation with
// each member and aggregates the members with spec.Submissions.
func (g *GroupRunner) Run(spec ModelSpec, validation *frame.Frame) (*Ranking, error) {
	logger := g.logger.With(log.ModelKey, spec.Name)
	start := time.Now()

	set, err := g.trainingSet(spec, logger)
	if err != nil {
		return nil, err
	}
	size := set.SizeBytes()
	defer func() {
		set.Release()
		g.budget.Free(size)
		performance.Release(logger, "model "+spec.Name)
	}()

	scores, err := NewScoreFrame(validation.Keys())
	if err != nil {
		return nil, err
	}
	for seed := 0; seed < spec.Semillerio; seed++ {
		if err := g.runSeed(spec, seed, set, validation, scores, logger); err != nil {
			return nil, err
		}
	}

	ranking, err := Aggregate(scores, spec.Submissions)
	if err != nil {
		return nil, errors.Wrapf(err, "aggregate seeds of %s", spec.Name)
	}
	logger.Info("Model scored",
		log.SeedsKey, spec.Semillerio,
		log.SamplesKey, ranking.Len(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return ranking, nil
}

// trainingSet loads the training periods projected to the model's features,
// undersampled while reading, and copies them into a matrix. The frame is
// released before returning.
func (g *GroupRunner) trainingSet(spec ModelSpec, logger log.Logger) (*TrainingSet, error) {
	opts := []frame.LoadOption{frame.WithColumns(spec.Features...)}
	if filter := sampling.Filter(spec.UndersamplingFraction, sampling.PipelineSeed); filter != nil {
		opts = append(opts, frame.WithRowFilter(filter))
	}

	f, err := g.source.Load(spec.Months, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "load training periods of %s", spec.Name)
	}
	frameSize := f.SizeBytes()
	if err := g.budget.Allocate("training frame of "+spec.Name, frameSize); err != nil {
		f.Release()
		return nil, err
	}
	defer func() {
		f.Release()
		g.budget.Free(frameSize)
	}()

	X, err := f.Matrix(spec.Features)
	if err != nil {
		return nil, errors.Wrapf(err, "build training matrix of %s", spec.Name)
	}
	set := &TrainingSet{
		X:        X,
		Label:    append([]float64(nil), f.Targets()...),
		Weight:   append([]float64(nil), f.Weights()...),
		Features: append([]string(nil), spec.Features...),
	}
	if err := g.budget.Allocate("training set of "+spec.Name, set.SizeBytes()); err != nil {
		set.Release()
		return nil, err
	}

	logger.Info("Training set built",
		log.PeriodsKey, spec.Months,
		log.SamplesKey, f.Len(),
		log.FeaturesKey, len(spec.Features),
		log.FractionKey, spec.UndersamplingFraction,
		log.MemoryKey, humanize.IBytes(uint64(set.SizeBytes())),
	)
	return set, nil
}

func (g *GroupRunner) runSeed(spec ModelSpec, seed int, set *TrainingSet, validation *frame.Frame, scores *ScoreFrame, logger log.Logger) error {
	start := time.Now()
	params := Normalize(spec.Params, seed)

	var scorer Scorer
	err := errors.SafeExecute("train "+spec.Name, func() error {
		var err error
		scorer, err = g.trainer.Train(params, set)
		return err
	})
	if err != nil {
		return errors.NewTrainingError(spec.Name, seed, err)
	}

	column := fmt.Sprintf("score_%d", seed)
	pred, err := Predict(scorer, validation, column)
	if err != nil {
		return errors.Wrapf(err, "score %s seed %d", spec.Name, seed)
	}
	if err := scores.Join(pred); err != nil {
		return err
	}

	logger.Debug("Seed trained",
		log.SeedKey, seed,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}
