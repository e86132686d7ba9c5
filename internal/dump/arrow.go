package dump

import (
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/plexsim/internal/constants"
)

// ArrowWriter writes an Arrow IPC file with one float64 column per
// dumpable. Rows are buffered and written as record batches.
type ArrowWriter struct {
	out       io.WriteSeeker
	closer    io.Closer
	mem       memory.Allocator
	batchRows int

	schema  *arrow.Schema
	builder *array.RecordBuilder
	file    *ipc.FileWriter
	pending int
}

// NewArrowWriter writes to w, flushing a record batch every batchRows rows.
// The IPC file format seeks back to patch its footer, so w is usually an
// *os.File. A non-positive batchRows uses the default. If w is an
// io.Closer, Close closes it.
func NewArrowWriter(w io.WriteSeeker, batchRows int) *ArrowWriter {
	if batchRows <= 0 {
		batchRows = constants.DumpBatchRows
	}
	a := &ArrowWriter{out: w, mem: memory.NewGoAllocator(), batchRows: batchRows}
	if c, ok := w.(io.Closer); ok {
		a.closer = c
	}
	return a
}

// WriteHeader fixes the schema.
func (a *ArrowWriter) WriteHeader(columns []string) error {
	if a.schema != nil {
		return errors.New("arrow dump: header already written")
	}
	fields := make([]arrow.Field, len(columns))
	for i, c := range columns {
		fields[i] = arrow.Field{Name: c, Type: arrow.PrimitiveTypes.Float64}
	}
	a.schema = arrow.NewSchema(fields, nil)

	fw, err := ipc.NewFileWriter(a.out, ipc.WithSchema(a.schema), ipc.WithAllocator(a.mem))
	if err != nil {
		return fmt.Errorf("arrow dump: opening file writer: %w", err)
	}
	a.file = fw
	a.builder = array.NewRecordBuilder(a.mem, a.schema)
	return nil
}

// WriteRow appends one row to the current batch.
func (a *ArrowWriter) WriteRow(values []float64) error {
	if a.schema == nil {
		return errors.New("arrow dump: row before header")
	}
	if len(values) != len(a.schema.Fields()) {
		return fmt.Errorf("arrow dump: row has %d values for %d columns", len(values), len(a.schema.Fields()))
	}
	for i, v := range values {
		a.builder.Field(i).(*array.Float64Builder).Append(v)
	}
	a.pending++
	if a.pending >= a.batchRows {
		return a.flush()
	}
	return nil
}

func (a *ArrowWriter) flush() error {
	if a.pending == 0 {
		return nil
	}
	rec := a.builder.NewRecord()
	defer rec.Release()
	a.pending = 0
	if err := a.file.Write(rec); err != nil {
		return fmt.Errorf("arrow dump: writing batch: %w", err)
	}
	return nil
}

// Close writes the last batch and the file footer.
func (a *ArrowWriter) Close() error {
	var err error
	if a.file != nil {
		err = a.flush()
		err = errors.Join(err, a.file.Close())
		a.builder.Release()
		a.file = nil
	}
	if a.closer != nil {
		err = errors.Join(err, a.closer.Close())
	}
	return err
}
