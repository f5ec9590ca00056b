package parse

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"sync"

	"github.com/apache/arrow/go/v18/arrow"
	arrowarray "github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
)

// Sink receives export rows. Implementations are safe for concurrent use.
type Sink interface {
	Write(Row) error
	Close() error
}

// NewSink creates a sink of the given format ("csv" or "arrow") writing to w.
func NewSink(format string, w io.Writer) (Sink, error) {
	switch format {
	case "", "csv":
		return newCSVSink(w)
	case "arrow":
		return newArrowSink(w)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

type csvSink struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	writer *csv.Writer
}

func newCSVSink(w io.Writer) (*csvSink, error) {
	buf := bufio.NewWriter(w)
	s := &csvSink{buf: buf, writer: csv.NewWriter(buf)}
	if err := s.writer.Write(Columns); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return s, nil
}

func (s *csvSink) Write(row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Write(row.Strings())
}

func (s *csvSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return err
	}
	return s.buf.Flush()
}

// arrowBatchSize is the number of rows per Arrow record batch.
const arrowBatchSize = 1024

var arrowSchema = arrow.NewSchema([]arrow.Field{
	{Name: "patent_id", Type: arrow.BinaryTypes.String},
	{Name: "publication_date", Type: arrow.BinaryTypes.String},
	{Name: "application_id", Type: arrow.BinaryTypes.String},
	{Name: "application_date", Type: arrow.BinaryTypes.String},
	{Name: "series_code", Type: arrow.BinaryTypes.String},
	{Name: "locarno_edition", Type: arrow.BinaryTypes.String},
	{Name: "locarno_class", Type: arrow.BinaryTypes.String},
	{Name: "national_country", Type: arrow.BinaryTypes.String},
	{Name: "national_class", Type: arrow.BinaryTypes.String},
	{Name: "national_further", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "claim_statement", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "claims_count", Type: arrow.PrimitiveTypes.Int64},
	{Name: "first_claim", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "description_sections", Type: arrow.BinaryTypes.String},
	{Name: "description_words", Type: arrow.PrimitiveTypes.Int64},
}, nil)

// arrowSink writes an Arrow IPC file, buffering rows into record batches.
type arrowSink struct {
	mu      sync.Mutex
	writer  *ipc.FileWriter
	builder *arrowarray.RecordBuilder
	pending int
}

func newArrowSink(w io.Writer) (*arrowSink, error) {
	mem := memory.NewGoAllocator()
	writer, err := ipc.NewFileWriter(w, ipc.WithSchema(arrowSchema), ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("create arrow writer: %w", err)
	}
	return &arrowSink{
		writer:  writer,
		builder: arrowarray.NewRecordBuilder(mem, arrowSchema),
	}, nil
}

func (s *arrowSink) Write(row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	strs := row.Strings()
	for i, field := range arrowSchema.Fields() {
		switch b := s.builder.Field(i).(type) {
		case *arrowarray.Int64Builder:
			switch field.Name {
			case "claims_count":
				b.Append(row.ClaimsCount)
			default:
				b.Append(row.DescriptionWords)
			}
		case *arrowarray.StringBuilder:
			switch field.Name {
			case "national_further":
				appendOptional(b, row.NationalFurther)
			case "claim_statement":
				appendOptional(b, row.ClaimStatement)
			case "first_claim":
				appendOptional(b, row.FirstClaim)
			default:
				b.Append(strs[i])
			}
		}
	}
	s.pending++
	if s.pending >= arrowBatchSize {
		return s.flush()
	}
	return nil
}

func appendOptional(b *arrowarray.StringBuilder, v *string) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(*v)
}

func (s *arrowSink) flush() error {
	if s.pending == 0 {
		return nil
	}
	rec := s.builder.NewRecord()
	defer rec.Release()
	s.pending = 0
	return s.writer.Write(rec)
}

func (s *arrowSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.builder.Release()
	if err := s.flush(); err != nil {
		return err
	}
	return s.writer.Close()
}
