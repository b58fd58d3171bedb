package frame

import (
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/spf13/afero"

	"github.com/YuminosukeSato/churnrank/pkg/errors"
)

// rows decoded per ReadRows call
const parquetBatch = 256

// parquetRecords streams the row groups of a Parquet file in order. Nested
// columns are named by their dotted path.
type parquetRecords struct {
	file    afero.File
	columns []string
	groups  []parquet.RowGroup
	group   int
	rows    parquet.Rows
	// exhausted is set once rows has returned io.EOF. rows stays open until
	// the rows already buffered from it have been consumed.
	exhausted bool
	buf       []parquet.Row
	n, pos    int
	row       int
	cells     parquetRecord
}

func openParquet(fs afero.Fs, path string) (*parquetRecords, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		f.Close()
		return nil, errors.NewDataError(path, "invalid parquet file: "+err.Error())
	}

	paths := pf.Schema().Columns()
	columns := make([]string, len(paths))
	for i, p := range paths {
		columns[i] = strings.Join(p, ".")
	}
	return &parquetRecords{
		file:    f,
		columns: columns,
		groups:  pf.RowGroups(),
		buf:     make([]parquet.Row, parquetBatch),
		cells:   make(parquetRecord, len(columns)),
	}, nil
}

func (p *parquetRecords) Columns() []string { return p.columns }

func (p *parquetRecords) Next() (record, int, error) {
	for p.pos >= p.n {
		if err := p.fill(); err != nil {
			return nil, p.row + 1, err
		}
	}
	row := p.buf[p.pos]
	p.pos++
	p.row++

	for i := range p.cells {
		p.cells[i] = parquet.Value{}
	}
	for _, v := range row {
		if c := v.Column(); c >= 0 && c < len(p.cells) {
			p.cells[c] = v
		}
	}
	return p.cells, p.row, nil
}

func (p *parquetRecords) fill() error {
	for {
		if p.rows != nil && p.exhausted {
			p.rows.Close()
			p.rows = nil
		}
		if p.rows == nil {
			if p.group >= len(p.groups) {
				return io.EOF
			}
			p.rows = p.groups[p.group].Rows()
			p.group++
			p.exhausted = false
		}

		n, err := p.rows.ReadRows(p.buf)
		p.n, p.pos = n, 0
		switch {
		case err == io.EOF:
			p.exhausted = true
		case err != nil:
			return err
		}
		if n > 0 {
			return nil
		}
	}
}

func (p *parquetRecords) Close() error {
	if p.rows != nil {
		p.rows.Close()
		p.rows = nil
	}
	return p.file.Close()
}

// parquetRecord is one row indexed by leaf column. Absent and null cells are
// zero Values.
type parquetRecord []parquet.Value

func (r parquetRecord) Text(i int) string {
	v := r[i]
	if v.IsNull() {
		return ""
	}
	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'g', -1, 32)
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'g', -1, 64)
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}

func (r parquetRecord) Value(i int) (float64, error) {
	v := r[i]
	if v.IsNull() {
		return math.NaN(), nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		if v.Boolean() {
			return 1, nil
		}
		return 0, nil
	case parquet.Int32:
		return float64(v.Int32()), nil
	case parquet.Int64:
		return float64(v.Int64()), nil
	case parquet.Float:
		return float64(v.Float()), nil
	case parquet.Double:
		return v.Double(), nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return parseCell(string(v.ByteArray()))
	default:
		return 0, errors.Newf("unsupported parquet type %s", v.Kind())
	}
}
