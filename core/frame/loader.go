package frame

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"

	"github.com/YuminosukeSato/churnrank/pkg/errors"
	"github.com/YuminosukeSato/churnrank/pkg/log"
)

// Format is the on-disk encoding of a dataset.
type Format int

const (
	// FormatCSV is a plain comma separated file with a header row.
	FormatCSV Format = iota
	// FormatSnappyCSV is a CSV file compressed with the snappy framing format.
	FormatSnappyCSV
	// FormatGzipCSV is a gzip compressed CSV file.
	FormatGzipCSV
	// FormatDirectory is a directory of the above, optionally partitioned by
	// period as <period column>=<value>/.
	FormatDirectory
	// FormatParquet is an Apache Parquet file with flat columns.
	FormatParquet
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatSnappyCSV:
		return "csv.sz"
	case FormatGzipCSV:
		return "csv.gz"
	case FormatDirectory:
		return "directory"
	case FormatParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// DetectFormat infers the format of a single file from its name.
func DetectFormat(path string) (Format, bool) {
	name := strings.ToLower(path)
	switch {
	case strings.HasSuffix(name, ".csv.sz"):
		return FormatSnappyCSV, true
	case strings.HasSuffix(name, ".csv.gz"):
		return FormatGzipCSV, true
	case strings.HasSuffix(name, ".csv"):
		return FormatCSV, true
	case strings.HasSuffix(name, ".parquet"):
		return FormatParquet, true
	default:
		return 0, false
	}
}

// RowFilter decides whether a row is materialised. It sees only the key and
// outcome so that dropped rows never have their features parsed. Dropped rows
// still take part in the duplicate key check.
type RowFilter func(customerID int64, outcome Outcome) bool

type part struct {
	path      string
	format    Format
	period    int64
	hasPeriod bool
}

// Loader reads frames from a dataset file or directory.
type Loader struct {
	fs     afero.Fs
	path   string
	format Format
	parts  []part
	schema Schema
	logger log.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithSchema overrides the key, outcome and label names.
func WithSchema(s Schema) Option {
	return func(l *Loader) { l.schema = s }
}

// WithLogger sets the logger used for load summaries.
func WithLogger(logger log.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader validates path and its format. No data is read.
func NewLoader(fs afero.Fs, path string, opts ...Option) (*Loader, error) {
	l := &Loader{
		fs:     fs,
		path:   path,
		schema: DefaultSchema(),
		logger: log.GetLoggerWithName("frame.loader"),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.schema.Validate(); err != nil {
		return nil, err
	}

	info, err := fs.Stat(path)
	if err != nil {
		return nil, errors.NewDataError(path, "dataset not found")
	}

	if !info.IsDir() {
		format, ok := DetectFormat(path)
		if !ok {
			return nil, errors.NewDataError(path, "unsupported format, expected .csv, .csv.sz, .csv.gz, .parquet or a directory")
		}
		l.format = format
		l.parts = []part{{path: path, format: format}}
		return l, nil
	}

	l.format = FormatDirectory
	err = afero.Walk(fs, path, func(p string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if fi.IsDir() {
			return nil
		}
		format, ok := DetectFormat(p)
		if !ok {
			return nil
		}
		pt := part{path: p, format: format}
		rel, relErr := filepath.Rel(path, p)
		if relErr != nil {
			return relErr
		}
		for _, seg := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
			name, value, found := strings.Cut(seg, "=")
			if !found || name != l.schema.PeriodColumn {
				continue
			}
			period, parseErr := parseID(value)
			if parseErr != nil {
				return errors.NewDataError(p, fmt.Sprintf("invalid partition value %q", value))
			}
			pt.period, pt.hasPeriod = period, true
		}
		l.parts = append(l.parts, pt)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan dataset directory %s", path)
	}
	if len(l.parts) == 0 {
		return nil, errors.NewDataError(path, "directory holds no supported dataset files")
	}
	sort.Slice(l.parts, func(i, j int) bool { return l.parts[i].path < l.parts[j].path })
	return l, nil
}

// Path returns the dataset location.
func (l *Loader) Path() string { return l.path }

// Format returns the detected dataset format.
func (l *Loader) Format() Format { return l.format }

// Schema returns the schema used to interpret columns.
func (l *Loader) Schema() Schema { return l.schema }

type loadConfig struct {
	columns []string
	filter  RowFilter
}

// LoadOption configures one Load call.
type LoadOption func(*loadConfig)

// WithColumns restricts the feature columns to names, in that order. The key
// columns may be listed to load them as features too.
func WithColumns(names ...string) LoadOption {
	return func(c *loadConfig) { c.columns = append([]string(nil), names...) }
}

// WithRowFilter drops rows for which filter returns false.
func WithRowFilter(filter RowFilter) LoadOption {
	return func(c *loadConfig) { c.filter = filter }
}

// Load reads every row whose period is listed.
func (l *Loader) Load(periods []int64, opts ...LoadOption) (*Frame, error) {
	if len(periods) == 0 {
		return nil, errors.NewValueError("Loader.Load", "at least one period is required")
	}
	cfg := &loadConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	start := time.Now()
	st := &loadState{
		schema:  l.schema,
		cfg:     cfg,
		periods: make(map[int64]struct{}, len(periods)),
		seen:    make(map[Key]struct{}),
	}
	for _, p := range periods {
		st.periods[p] = struct{}{}
	}

	for _, pt := range l.parts {
		if pt.hasPeriod {
			if _, ok := st.periods[pt.period]; !ok {
				continue
			}
		}
		if err := l.readPart(pt, st); err != nil {
			return nil, err
		}
	}
	if st.frame == nil {
		// every partition was outside the requested periods
		st.frame = New(cfg.columns)
	}

	l.logger.Info("Frame loaded",
		log.SourceKey, l.path,
		log.FormatKey, l.format.String(),
		log.PeriodsKey, periods,
		log.SamplesKey, st.frame.Len(),
		log.FeaturesKey, len(st.frame.names),
		log.FilteredKey, st.filtered,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return st.frame, nil
}

type loadState struct {
	schema   Schema
	cfg      *loadConfig
	periods  map[int64]struct{}
	seen     map[Key]struct{}
	frame    *Frame
	filtered int
}

func (l *Loader) openRecords(pt part) (records, error) {
	if pt.format == FormatParquet {
		return openParquet(l.fs, pt.path)
	}

	f, err := l.fs.Open(pt.path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", pt.path)
	}
	var rc io.ReadCloser = f
	switch pt.format {
	case FormatSnappyCSV:
		rc = readCloser{Reader: snappy.NewReader(f), closers: []io.Closer{f}}
	case FormatGzipCSV:
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.NewDataError(pt.path, "invalid gzip stream: "+err.Error())
		}
		rc = readCloser{Reader: zr, closers: []io.Closer{zr, f}}
	}
	return newCSVRecords(pt.path, rc)
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// records is a row-at-a-time view of one dataset part.
type records interface {
	// Columns returns the column names in record order. It is empty for a
	// part without a header.
	Columns() []string
	// Next returns the next record and its line or row number. It returns
	// io.EOF after the last record.
	Next() (record, int, error)
	Close() error
}

// record gives access to the cells of one row by column position.
type record interface {
	// Text renders the cell for identifiers, labels and error messages.
	Text(i int) string
	// Value reads the cell as a feature; missing cells are NaN.
	Value(i int) (float64, error)
}

type csvRecords struct {
	rc     io.ReadCloser
	reader gocsv.CSVReader
	header []string
	line   int
}

func newCSVRecords(path string, rc io.ReadCloser) (*csvRecords, error) {
	reader := gocsv.DefaultCSVReader(rc)
	header, err := reader.Read()
	if err != nil && err != io.EOF {
		rc.Close()
		return nil, errors.NewDataErrorAt(path, 1, "unreadable header: "+err.Error())
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return &csvRecords{rc: rc, reader: reader, header: header, line: 1}, nil
}

func (c *csvRecords) Columns() []string { return c.header }

func (c *csvRecords) Next() (record, int, error) {
	c.line++
	row, err := c.reader.Read()
	if err != nil {
		return nil, c.line, err
	}
	return csvRecord(row), c.line, nil
}

func (c *csvRecords) Close() error { return c.rc.Close() }

type csvRecord []string

func (r csvRecord) Text(i int) string { return r[i] }

func (r csvRecord) Value(i int) (float64, error) { return parseCell(r[i]) }

// column source index used for the partition period value
const fromPartition = -1

func (l *Loader) readPart(pt part, st *loadState) (err error) {
	defer errors.Recover(&err, "Loader.readPart")

	rs, err := l.openRecords(pt)
	if err != nil {
		return err
	}
	defer rs.Close()

	header := rs.Columns()
	if len(header) == 0 {
		return nil
	}
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[name] = i
	}

	lookup := func(name string) (int, bool) {
		if i, ok := colIdx[name]; ok {
			return i, true
		}
		if name == st.schema.PeriodColumn && pt.hasPeriod {
			return fromPartition, true
		}
		return 0, false
	}

	customerIdx, ok := colIdx[st.schema.CustomerColumn]
	if !ok {
		return errors.NewDataError(pt.path, "missing required column "+st.schema.CustomerColumn)
	}
	outcomeIdx, ok := colIdx[st.schema.OutcomeColumn]
	if !ok {
		return errors.NewDataError(pt.path, "missing required column "+st.schema.OutcomeColumn)
	}
	periodIdx, ok := lookup(st.schema.PeriodColumn)
	if !ok {
		return errors.NewDataError(pt.path, "missing required column "+st.schema.PeriodColumn)
	}

	if st.frame == nil {
		names := st.cfg.columns
		if names == nil {
			for _, name := range header {
				if name != st.schema.OutcomeColumn {
					names = append(names, name)
				}
			}
			if periodIdx == fromPartition {
				names = append(names, st.schema.PeriodColumn)
			}
		}
		st.frame = New(names)
	}

	sources := make([]int, len(st.frame.names))
	for j, name := range st.frame.names {
		idx, ok := lookup(name)
		if !ok {
			return errors.NewDataError(pt.path, "missing column "+name)
		}
		sources[j] = idx
	}

	values := make([]float64, len(sources))
	for {
		rec, line, err := rs.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.NewDataErrorAt(pt.path, line, err.Error())
		}

		var period int64
		if periodIdx == fromPartition {
			period = pt.period
		} else if period, err = parseID(rec.Text(periodIdx)); err != nil {
			return errors.NewDataErrorAt(pt.path, line, fmt.Sprintf("invalid %s %q", st.schema.PeriodColumn, rec.Text(periodIdx)))
		}
		if _, ok := st.periods[period]; !ok {
			continue
		}

		customer, err := parseID(rec.Text(customerIdx))
		if err != nil {
			return errors.NewDataErrorAt(pt.path, line, fmt.Sprintf("invalid %s %q", st.schema.CustomerColumn, rec.Text(customerIdx)))
		}
		outcome, ok := st.schema.Labels.Parse(strings.TrimSpace(rec.Text(outcomeIdx)))
		if !ok {
			return errors.NewDataErrorAt(pt.path, line, fmt.Sprintf("unknown outcome label %q", rec.Text(outcomeIdx)))
		}

		// keys are unique across the dataset, including rows the filter drops
		key := Key{CustomerID: customer, PeriodID: period}
		if _, dup := st.seen[key]; dup {
			return errors.NewDataErrorAt(pt.path, line, fmt.Sprintf("duplicate row for customer %d in period %d", customer, period))
		}
		st.seen[key] = struct{}{}

		if st.cfg.filter != nil && !st.cfg.filter(customer, outcome) {
			st.filtered++
			continue
		}

		for j, idx := range sources {
			if idx == fromPartition {
				values[j] = float64(pt.period)
				continue
			}
			v, err := rec.Value(idx)
			if err != nil {
				return errors.NewDataErrorAt(pt.path, line, fmt.Sprintf("invalid value %q in column %s", rec.Text(idx), st.frame.names[j]))
			}
			values[j] = v
		}
		if err := st.frame.Append(customer, period, outcome, values); err != nil {
			return err
		}
	}
}

// parseID reads an integer identifier, accepting integral float renderings
// such as "202107.0".
func parseID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, errors.Newf("not an integer: %s", s)
	}
	return int64(f), nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "NA", "NaN", "nan", "null", "NULL":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
