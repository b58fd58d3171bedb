// Command churnrank trains the configured seed ensembles and writes the
// customers most likely to leave, one id per line.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/YuminosukeSato/churnrank/config"
	"github.com/YuminosukeSato/churnrank/core/frame"
	"github.com/YuminosukeSato/churnrank/ensemble"
	"github.com/YuminosukeSato/churnrank/fetch"
	"github.com/YuminosukeSato/churnrank/performance"
	"github.com/YuminosukeSato/churnrank/pkg/errors"
	"github.com/YuminosukeSato/churnrank/pkg/log"
	"github.com/YuminosukeSato/churnrank/report"
)

type args struct {
	Config    string `arg:"--config,required" help:"YAML run description"`
	Dataset   string `arg:"--dataset" help:"local dataset path, overrides dataset.path"`
	CacheDir  string `arg:"--cache-dir" help:"directory for downloaded datasets without a configured path"`
	Output    string `arg:"--output" help:"customer list to write"`
	Scores    string `arg:"--scores" help:"optional CSV of the final ranking"`
	Plot      string `arg:"--plot" help:"optional PNG histogram of the final scores"`
	PlotBins  int    `arg:"--plot-bins" help:"histogram bins"`
	LogLevel  string `arg:"--log-level" help:"debug, info, warn or error"`
	AWSRegion string `arg:"--aws-region,env:AWS_REGION" help:"region for s3:// dataset sources"`
}

func (args) Description() string {
	return "churnrank ranks customers by attrition risk with seed-ensembled boosted trees"
}

func main() {
	a := args{
		CacheDir: "data",
		Output:   "selection.csv",
		PlotBins: 50,
		LogLevel: "info",
	}
	p := arg.MustParse(&a)

	level, err := a.validate()
	if err != nil {
		p.Fail(err.Error())
	}
	log.SetProvider(log.NewZerologProvider(level))
	logger := log.GetLoggerWithName("churnrank")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, afero.NewOsFs(), a, nil, logger); err != nil {
		logger.Error("Run failed", err)
		stop()
		os.Exit(1)
	}
}

// validate checks the flags that go-arg cannot and returns the log level.
func (a args) validate() (log.Level, error) {
	level, err := log.ParseLevel(a.LogLevel)
	if err != nil {
		return level, errors.Newf("--log-level: %q is not one of debug, info, warn or error", a.LogLevel)
	}
	if a.Plot != "" && a.PlotBins <= 0 {
		return level, errors.Newf("--plot-bins: must be positive, got %d", a.PlotBins)
	}
	return level, nil
}

// run executes the pipeline. trainer may be nil for the lightgbm trainer.
func run(ctx context.Context, fs afero.Fs, a args, trainer ensemble.Trainer, logger log.Logger) error {
	start := time.Now()

	settings, err := config.Load(fs, a.Config)
	if err != nil {
		return err
	}

	dataset := settings.Dataset.Path
	if a.Dataset != "" {
		dataset = a.Dataset
	}
	if dataset == "" {
		if settings.Dataset.Source == "" {
			return errors.NewConfigurationError("dataset.path", "a dataset path or source is required", nil)
		}
		dataset = filepath.Join(a.CacheDir, path.Base(settings.Dataset.Source))
	}

	fetcher := fetch.New(fs, fetch.WithRegion(a.AWSRegion))
	if err := fetcher.Ensure(ctx, settings.Dataset.Source, dataset); err != nil {
		return err
	}

	loader, err := frame.NewLoader(fs, dataset, frame.WithSchema(settings.Dataset.Schema))
	if err != nil {
		return err
	}
	if trainer == nil {
		trainer = ensemble.NewBoosterTrainer()
	}
	budget := performance.NewBudget(settings.MemoryLimit)
	group := ensemble.NewGroupRunner(loader, trainer, budget)
	configs := ensemble.NewConfigRunner(loader, group)

	result, err := ensemble.NewEnsembler(configs).Run(settings.Plan)
	if err != nil {
		return err
	}

	outputs := []output{{a.Output, func(w io.Writer) error {
		return report.WriteSelection(w, result.CustomerIDs)
	}}}
	if a.Scores != "" {
		outputs = append(outputs, output{a.Scores, func(w io.Writer) error {
			return report.WriteRanking(w, result.Ranking)
		}})
	}
	if a.Plot != "" {
		outputs = append(outputs, output{a.Plot, func(w io.Writer) error {
			return report.PlotScores(w, result.Ranking, a.PlotBins)
		}})
	}
	if err := publish(fs, outputs); err != nil {
		return err
	}

	logger.Info("Selection written",
		log.OutputKey, a.Output,
		log.SelectedKey, len(result.CustomerIDs),
		log.SubmissionsKey, settings.Plan.Submissions,
		log.PeakMemoryKey, humanize.IBytes(uint64(budget.Peak())),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

type output struct {
	target string
	write  func(w io.Writer) error
}

// publish renders every output into a temporary file next to its target and
// renames them into place only once all of them are complete. A failed run
// leaves none of its outputs behind.
func publish(fs afero.Fs, outputs []output) (err error) {
	staged := make([]string, 0, len(outputs))
	defer func() {
		if err != nil {
			for _, tmp := range staged {
				_ = fs.Remove(tmp)
			}
		}
	}()

	for _, o := range outputs {
		tmp, err := stage(fs, o.target, o.write)
		if err != nil {
			return err
		}
		staged = append(staged, tmp)
	}
	for i, o := range outputs {
		if err := fs.Rename(staged[i], o.target); err != nil {
			for _, done := range outputs[:i] {
				_ = fs.Remove(done.target)
			}
			return errors.Wrapf(err, "rename into %s", o.target)
		}
	}
	return nil
}

// stage writes one output to a temporary file in the target directory and
// returns its name.
func stage(fs afero.Fs, target string, write func(w io.Writer) error) (string, error) {
	dir := filepath.Dir(target)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create %s", dir)
	}
	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return "", errors.Wrapf(err, "create temporary file for %s", target)
	}
	if err := write(tmp); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmp.Name())
		return "", errors.Wrapf(err, "close %s", tmp.Name())
	}
	return tmp.Name(), nil
}
