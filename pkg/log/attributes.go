package log

// Pipeline context. Keys follow a hierarchical "area.name" convention so that
// log lines can be filtered per configuration, model and seed.
const (
	// ComponentKey identifies the package emitting the record.
	ComponentKey = "component"

	// ConfigKey names the configuration being run, e.g. "config_1".
	ConfigKey = "ensemble.config"

	// ModelKey names the model group being run, e.g. "model_2019".
	ModelKey = "ensemble.model"

	// StageKey names the pipeline stage a record belongs to.
	StageKey = "pipeline.stage"
)

// Training.
const (
	SeedKey          = "training.seed"
	SeedsKey         = "training.seeds"
	IterationKey     = "training.iteration"
	LeavesKey        = "training.leaves"
	IgnoredParamsKey = "training.ignored_params"
	LossKey          = "metrics.loss"
)

// Data shape.
const (
	SourceKey   = "data.source"
	PeriodsKey  = "data.periods"
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	FormatKey   = "data.format"

	// FractionKey is the undersampling fraction of the Stable class.
	FractionKey = "sampling.fraction"
	// FilteredKey counts rows dropped by a row filter while loading.
	FilteredKey = "sampling.filtered"
)

// Scores and selection.
const (
	ColumnsKey     = "scores.columns"
	SubmissionsKey = "scores.submissions"
	SelectedKey    = "scores.selected"
	OutputKey      = "output.path"
)

// Performance.
const (
	DurationMsKey = "perf.duration_ms"
	MemoryKey     = "perf.memory"
	// PeakMemoryKey is the largest budgeted allocation of a run.
	PeakMemoryKey = "perf.memory_peak"
)

// Error context.
const (
	ErrorKey       = "error"
	ErrorDetailKey = "error.detail"
	StacktraceKey  = "error.stacktrace"
)
