// Package churnrank ranks bank customers by the risk that they leave within
// the next two months and selects the customers to target with retention
// offers.
//
// A run is described by a YAML file. Each configuration names the periods
// it scores and a set of models; each model is trained on its own periods
// and features once per seed, and the seed scores are averaged into a
// ranking. The models of a configuration are averaged again, and the
// configurations are combined into the final customer list.
//
// # Quick Start
//
//	churnrank --config configs/example.yaml --output selection.csv
//
// The selection file has one numero_de_cliente per line, best first, and no
// header. --scores writes the full ranking as CSV and --plot a histogram of
// the final scores with the selection cutoff.
//
// # Packages
//
//   - core/frame: Dataset loading (CSV, gzip or snappy, period partitions)
//   - core/sampling: Deterministic undersampling of retained customers
//   - core/parallel: Parallel processing utilities
//   - lightgbm: Gradient boosted trees with LightGBM parameter names
//   - ensemble: Seed ensembles, score aggregation and configuration runs
//   - config: YAML run description
//   - fetch: Dataset download from S3
//   - report: Selection and ranking output
//   - performance: Memory budget for training sets
//   - pkg/errors, pkg/log: Error types and structured logging
//
// # Library use
//
//	settings, err := config.Load(afero.NewOsFs(), "configs/example.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	loader, err := frame.NewLoader(afero.NewOsFs(), settings.Dataset.Path,
//	    frame.WithSchema(settings.Dataset.Schema))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	group := ensemble.NewGroupRunner(loader, ensemble.NewBoosterTrainer(), nil)
//	result, err := ensemble.NewEnsembler(ensemble.NewConfigRunner(loader, group)).
//	    Run(settings.Plan)
package churnrank
