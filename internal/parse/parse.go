package parse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	F "github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/config"
	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/grant"
	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/xmlevent"
)

// ErrStop ends a stream early without an error when returned by a visitor.
var ErrStop = errors.New("stop streaming")

type Parser struct {
	Cfg              config.Parse
	Logger           *zap.SugaredLogger
	Tracer           trace.Tracer
	Meter            metric.Meter
	progress         *progressbar.ProgressBar
	progressOut      io.Writer
	createOutput     func(name string) (io.WriteCloser, error)
	processedRecords *atomic.Uint64
	sessionDuration  metric.Int64Histogram
	filesTotal       metric.Int64Counter
	filesSuccess     metric.Int64Counter
	filesFailed      metric.Int64Counter
	recordsTotal     metric.Int64Counter
	recordsSkipped   metric.Int64Counter
	fileDuration     metric.Int64Histogram
}

// Stats summarizes one streamed input.
type Stats struct {
	Records int
	Skipped int
}

func NewParser(
	cfg config.Parse,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Parser, error) {
	p := &Parser{
		Cfg:              cfg,
		Logger:           logger,
		Tracer:           tracer,
		Meter:            meter,
		progressOut:      os.Stdout,
		processedRecords: &atomic.Uint64{},
		createOutput: func(name string) (io.WriteCloser, error) {
			return os.Create(name)
		},
	}

	var err error
	p.sessionDuration, err = meter.Int64Histogram(
		"parse.session.duration",
		metric.WithDescription("Duration of the full export session"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	p.filesTotal, err = meter.Int64Counter(
		"parse.files.total",
		metric.WithDescription("Total number of grant files processed"),
	)
	if err != nil {
		return nil, err
	}

	p.filesSuccess, err = meter.Int64Counter(
		"parse.files.success",
		metric.WithDescription("Number of grant files exported without error"),
	)
	if err != nil {
		return nil, err
	}

	p.filesFailed, err = meter.Int64Counter(
		"parse.files.failed",
		metric.WithDescription("Number of grant files that failed"),
	)
	if err != nil {
		return nil, err
	}

	p.recordsTotal, err = meter.Int64Counter(
		"parse.records.total",
		metric.WithDescription("Total number of grant records decoded"),
	)
	if err != nil {
		return nil, err
	}

	p.recordsSkipped, err = meter.Int64Counter(
		"parse.records.skipped",
		metric.WithDescription("Number of malformed grant records skipped"),
	)
	if err != nil {
		return nil, err
	}

	p.fileDuration, err = meter.Int64Histogram(
		"parse.file.duration",
		metric.WithDescription("Duration of individual grant file decoding"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// SetProgressOutput redirects the progress bar, io.Discard silences it.
func (p *Parser) SetProgressOutput(w io.Writer) {
	p.progressOut = w
}

func (p *Parser) decoderOptions() []xmlevent.Option {
	var opts []xmlevent.Option
	if p.Cfg.Charset != "" {
		opts = append(opts, xmlevent.WithCharset(p.Cfg.Charset))
	}
	if p.Cfg.BufferSize > 0 {
		opts = append(opts, xmlevent.WithBufferSize(p.Cfg.BufferSize))
	}
	return opts
}

// StreamFile decodes every grant in the file at path and hands it to visit.
// Malformed records are skipped when Cfg.SkipErrors is set and fail the file
// otherwise. At most limit records are visited when limit is positive.
// A visit returning ErrStop ends the stream cleanly.
func (p *Parser) StreamFile(
	ctx context.Context,
	path string,
	limit int,
	visit func(*grant.Grant) error,
) (Stats, error) {
	var stats Stats
	err := visitInput(path, func(member string, r io.Reader) error {
		d, err := grant.NewDecoder(r, p.decoderOptions()...)
		if err != nil {
			return fmt.Errorf("%s: %w", member, err)
		}
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && stats.Records >= limit {
				return ErrStop
			}
			g, err := d.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				if !p.Cfg.SkipErrors {
					return fmt.Errorf("%s: %w", member, err)
				}
				p.Logger.Warnw("Skipping malformed record", "file", member, "error", err)
				p.recordsSkipped.Add(ctx, 1)
				stats.Skipped++
				if err := d.Skip(); err != nil {
					return fmt.Errorf("%s: %w", member, err)
				}
				continue
			}
			stats.Records++
			if err := visit(g); err != nil {
				return err
			}
		}
	})
	if errors.Is(err, ErrStop) {
		err = nil
	}
	p.recordsTotal.Add(ctx, int64(stats.Records))
	p.processedRecords.Add(uint64(stats.Records))
	return stats, err
}

// ExportAll decodes every grant file under Cfg.InputDir with up to
// Cfg.Workers files in flight and writes one row per grant to Cfg.Output.
func (p *Parser) ExportAll(ctx context.Context) error {
	ctx, sessionSpan := p.Tracer.Start(ctx, "parse.session", trace.WithAttributes(
		attribute.String("input_dir", p.Cfg.InputDir),
		attribute.String("output", p.Cfg.Output),
		attribute.String("format", p.Cfg.Format),
		attribute.Int("max_workers", p.Cfg.Workers),
	))
	defer sessionSpan.End()

	startTime := time.Now()
	p.Logger.Infow("Starting export session",
		"input_dir", p.Cfg.InputDir,
		"output", p.Cfg.Output,
		"format", p.Cfg.Format)

	inputs, err := FindInputs(p.Cfg.InputDir)
	if err != nil {
		sessionSpan.RecordError(err)
		return fmt.Errorf("failed to walk directory: %w", err)
	}
	p.filesTotal.Add(ctx, int64(len(inputs)))
	p.Logger.Infow("Found grant files", "count", len(inputs))
	sessionSpan.AddEvent("grant_files_found",
		trace.WithAttributes(attribute.Int("count", len(inputs))))

	out, err := p.createOutput(p.Cfg.Output)
	if err != nil {
		sessionSpan.RecordError(err)
		return fmt.Errorf("failed to create output: %w", err)
	}

	sink, err := NewSink(p.Cfg.Format, out)
	if err != nil {
		_ = out.Close()
		sessionSpan.RecordError(err)
		return err
	}

	p.progress = progressbar.NewOptions(len(inputs),
		progressbar.OptionSetWriter(p.progressOut),
		progressbar.OptionSetWidth(60),
		progressbar.OptionSetDescription("[0 records] Exporting grant files..."),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(50*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionUseANSICodes(true),
	)

	sem := semaphore.NewWeighted(int64(max(p.Cfg.Workers, 1)))
	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		runErr  error
	)
	fail := func(err error) {
		errOnce.Do(func() { runErr = err })
	}

	for _, path := range inputs {
		if err := sem.Acquire(ctx, 1); err != nil {
			p.Logger.Warn("Export cancelled")
			fail(err)
			break
		}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer sem.Release(1)
			if err := p.exportFile(ctx, path, sink)(); ET.IsLeft(err) {
				_, cause := ET.UnwrapError(err)
				fail(cause)
			}
			p.updateProgress()
		}(path)
	}
	wg.Wait()

	if err := sink.Close(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if err := out.Close(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("close output: %w", err))
	}
	if runErr != nil {
		sessionSpan.RecordError(runErr)
		return runErr
	}

	status := "success"
	if len(inputs) == 0 {
		status = "empty"
	}
	p.sessionDuration.Record(ctx, time.Since(startTime).Milliseconds(),
		metric.WithAttributes(attribute.String("status", status)))
	p.Logger.Infow("Export completed", "total_records", p.processedRecords.Load())
	if p.progress != nil {
		p.progress.Describe("Export complete")
		_ = p.progress.Finish()
	}
	return nil
}

func (p *Parser) exportFile(ctx context.Context, path string, sink Sink) IOE.IOEither[error, Stats] {
	return func() ET.Either[error, Stats] {
		ctx, span := p.Tracer.Start(ctx, "parse.grant_file", trace.WithAttributes(
			attribute.String("path", path),
		))
		defer span.End()
		fileStart := time.Now()

		return F.Pipe2(
			IOE.TryCatchError(func() (Stats, error) {
				return p.StreamFile(ctx, path, 0, func(g *grant.Grant) error {
					return sink.Write(RowFromGrant(g))
				})
			}),
			IOE.Tap(func(stats Stats) IOE.IOEither[error, Stats] {
				span.SetAttributes(
					attribute.Int("records", stats.Records),
					attribute.Int("skipped", stats.Skipped),
				)
				p.filesSuccess.Add(ctx, 1)
				p.fileDuration.Record(ctx, time.Since(fileStart).Milliseconds(),
					metric.WithAttributes(attribute.String("status", "success")))
				p.Logger.Debugw("Grant file exported",
					"path", path,
					"records", stats.Records,
					"skipped", stats.Skipped)
				return IOE.Of[error](stats)
			}),
			IOE.TapLeft[Stats](func(err error) IOE.IOEither[error, Stats] {
				span.RecordError(err)
				p.filesFailed.Add(ctx, 1)
				p.fileDuration.Record(ctx, time.Since(fileStart).Milliseconds(),
					metric.WithAttributes(attribute.String("status", "failed")))
				p.Logger.Errorw("Grant file failed", "path", path, "error", err)
				return IOE.Of[error](Stats{})
			}),
		)()
	}
}

func (p *Parser) updateProgress() {
	if p.progress != nil {
		p.progress.Describe(fmt.Sprintf("[%d records] Exporting grant files...", p.processedRecords.Load()))
		_ = p.progress.Add(1)
	}
}
