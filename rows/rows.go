package rows

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Field is one named value of a row.
type Field struct {
	Name  string
	Value string
}

// Row holds one recipient's values in header order.
type Row []Field

// Get returns the value of the named field.
func (r Row) Get(name string) (string, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Names returns field names in header order.
func (r Row) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// Map returns the row as a map.
func (r Row) Map() map[string]string {
	m := make(map[string]string, len(r))
	for _, f := range r {
		m[f.Name] = f.Value
	}
	return m
}

// Reader yields rows from delimited text whose first record names the fields.
// It is forward-only and reads one record per call to Next.
type Reader struct {
	csv     *csv.Reader
	dialect Dialect
	header  []string
}

// NewReader sniffs the dialect from the first SampleSize bytes of r and
// reads the header record. A leading UTF-8 byte order mark is skipped.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReaderSize(r, SampleSize)

	sample, err := br.Peek(SampleSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, errors.Wrap(err, "failed to read csv sample")
	}

	if bytes.HasPrefix(sample, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, errors.Wrap(err, "failed to skip byte order mark")
		}
		sample = sample[len(utf8BOM):]
	}

	// the last line of a full sample is probably cut short
	if len(sample) >= SampleSize-len(utf8BOM) {
		if i := bytes.LastIndexByte(sample, '\n'); i > 0 {
			sample = sample[:i+1]
		}
	}

	dialect, err := Sniff(sample)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(br)
	cr.Comma = dialect.Delimiter
	cr.TrimLeadingSpace = dialect.TrimLeadingSpace
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &FormatError{Reason: "missing header row"}
	}
	if err != nil {
		return nil, parseError(err)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	return &Reader{
		csv:     cr,
		dialect: dialect,
		header:  header,
	}, nil
}

func validateHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		if strings.TrimSpace(name) == "" {
			return &FormatError{Line: 1, Reason: fmt.Sprintf("header field %d is empty", i+1)}
		}
		if seen[name] {
			return &FormatError{Line: 1, Reason: fmt.Sprintf("duplicate header field %q", name)}
		}
		seen[name] = true
	}
	return nil
}

// Header returns a copy of the field names.
func (r *Reader) Header() []string {
	return append([]string(nil), r.header...)
}

// Dialect returns the sniffed dialect.
func (r *Reader) Dialect() Dialect {
	return r.dialect
}

// Next returns the next row, or io.EOF after the last one.
// A record with a different number of fields than the header is a *FormatError.
func (r *Reader) Next() (Row, error) {
	rec, err := r.csv.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, parseError(err)
	}

	if len(rec) != len(r.header) {
		line, _ := r.csv.FieldPos(0)
		return nil, &FormatError{
			Line:   line,
			Reason: fmt.Sprintf("record has %d fields, header has %d", len(rec), len(r.header)),
		}
	}

	row := make(Row, len(rec))
	for i, v := range rec {
		row[i] = Field{Name: r.header[i], Value: v}
	}
	return row, nil
}

func parseError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &FormatError{Line: pe.Line, Reason: "invalid record", Err: pe.Err}
	}
	return errors.Wrap(err, "failed to read csv")
}
