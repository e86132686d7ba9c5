package dump

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// TSVWriter writes tab-separated text with a header row.
type TSVWriter struct {
	w       *bufio.Writer
	closer  io.Closer
	columns int
}

// NewTSVWriter writes to w. If w is an io.Closer, Close closes it.
func NewTSVWriter(w io.Writer) *TSVWriter {
	t := &TSVWriter{w: bufio.NewWriter(w), columns: -1}
	if c, ok := w.(io.Closer); ok {
		t.closer = c
	}
	return t
}

// WriteHeader writes the column names.
func (t *TSVWriter) WriteHeader(columns []string) error {
	if t.columns >= 0 {
		return errors.New("tsv dump: header already written")
	}
	t.columns = len(columns)
	_, err := t.w.WriteString(strings.Join(columns, "\t") + "\n")
	return err
}

// WriteRow writes one row in shortest round-trip float format.
func (t *TSVWriter) WriteRow(values []float64) error {
	if t.columns < 0 {
		return errors.New("tsv dump: row before header")
	}
	if len(values) != t.columns {
		return fmt.Errorf("tsv dump: row has %d values for %d columns", len(values), t.columns)
	}
	for i, v := range values {
		if i > 0 {
			if err := t.w.WriteByte('\t'); err != nil {
				return err
			}
		}
		if _, err := t.w.WriteString(strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
			return err
		}
	}
	return t.w.WriteByte('\n')
}

// Close flushes buffered rows.
func (t *TSVWriter) Close() error {
	err := t.w.Flush()
	if t.closer != nil {
		err = errors.Join(err, t.closer.Close())
	}
	return err
}
