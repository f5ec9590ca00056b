package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/config"
	T "github.com/Qubut/IP-Claim/packages/grant_processor/internal/typing"
)

type Extractor struct {
	Cfg             config.Extract
	progress        *progressbar.ProgressBar
	progressOut     io.Writer
	mu              sync.Mutex
	ExtractedFiles  *atomic.Int64
	Logger          *zap.SugaredLogger
	Tracer          trace.Tracer
	Meter           metric.Meter
	sessionDuration metric.Int64Histogram
	filesTotal      metric.Int64Counter
	filesSkipped    metric.Int64Counter
	zipsTotal       metric.Int64Counter
	zipsFailed      metric.Int64Counter
	bytesTotal      metric.Int64Counter
	zipDuration     metric.Int64Histogram
}

func NewExtractor(
	cfg config.Extract,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Extractor, error) {
	e := &Extractor{
		Cfg:            cfg,
		ExtractedFiles: &atomic.Int64{},
		progressOut:    os.Stdout,
		Logger:         logger,
		Tracer:         tracer,
		Meter:          meter,
	}

	var err error

	e.sessionDuration, err = meter.Int64Histogram(
		"extraction.session.duration",
		metric.WithDescription("Duration of the full extraction session"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	e.filesTotal, err = meter.Int64Counter(
		"extraction.files.total",
		metric.WithDescription("Total number of files extracted"),
	)
	if err != nil {
		return nil, err
	}

	e.filesSkipped, err = meter.Int64Counter(
		"extraction.files.skipped",
		metric.WithDescription("Archive members left out because they are not grant XML"),
	)
	if err != nil {
		return nil, err
	}

	e.zipsTotal, err = meter.Int64Counter(
		"extraction.zips.total",
		metric.WithDescription("Number of zip archives processed"),
	)
	if err != nil {
		return nil, err
	}

	e.zipsFailed, err = meter.Int64Counter(
		"extraction.zips.failed",
		metric.WithDescription("Number of zip archives that failed to extract"),
	)
	if err != nil {
		return nil, err
	}

	e.bytesTotal, err = meter.Int64Counter(
		"extraction.bytes.total",
		metric.WithDescription("Total bytes extracted"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	e.zipDuration, err = meter.Int64Histogram(
		"extraction.zip.duration",
		metric.WithDescription("Duration of individual archive extraction"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return e, nil
}

// SetProgressOutput redirects the progress spinner, io.Discard silences it.
func (e *Extractor) SetProgressOutput(w io.Writer) {
	e.progressOut = w
}

// ExtractAll unpacks every zip archive directly inside dir into a sibling
// directory named after the archive, then unpacks zips nested in those.
func (e *Extractor) ExtractAll(ctx context.Context, dir string) IOE.IOEither[error, T.Unit] {
	return func() ET.Either[error, T.Unit] {
		ctx, span := e.Tracer.Start(ctx, "extraction.session", trace.WithAttributes(
			attribute.String("directory", dir),
			attribute.Bool("delete_after", e.Cfg.DeleteAfterExtract),
			attribute.Bool("xml_only", e.Cfg.XMLOnly),
		))
		defer span.End()
		return IOE.TapLeft[T.Unit](func(err error) IOE.IOEither[error, T.Unit] {
			span.RecordError(err)
			return IOE.Of[error](T.Unit{})
		})(e.session(ctx, span, dir))()
	}
}

func (e *Extractor) session(ctx context.Context, span trace.Span, dir string) IOE.IOEither[error, T.Unit] {
	startTime := time.Now()
	e.Logger.Infow("Starting extraction in directory",
		"dir", dir,
		"deleteAfter", e.Cfg.DeleteAfterExtract,
		"xmlOnly", e.Cfg.XMLOnly)

	e.progress = progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(e.progressOut),
		progressbar.OptionSetWidth(60),
		progressbar.OptionSetDescription("[0 extracted] Finding zip files..."),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionThrottle(50*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionUseANSICodes(true),
	)

	if ctx.Err() != nil {
		e.Logger.Warn("Extraction session cancelled")
		return IOE.Left[T.Unit](ctx.Err())
	}
	return function.Pipe2(
		IOE.TryCatchError(func() ([]string, error) {
			return findZipFiles(dir)
		}),
		IOE.Chain(func(zipFiles []string) IOE.IOEither[error, []T.Unit] {
			if err := ctx.Err(); err != nil {
				return IOE.Left[[]T.Unit](err)
			}
			e.zipsTotal.Add(ctx, int64(len(zipFiles)),
				metric.WithAttributes(attribute.String("type", "main")),
			)
			if len(zipFiles) == 0 {
				e.Logger.Infow("No zip files found in directory", "dir", dir)
				return IOE.Right[error]([]T.Unit{})
			}

			span.AddEvent("zip_files_found", trace.WithAttributes(attribute.Int("count", len(zipFiles))))
			e.Logger.Infow("Found zip files to extract", "count", len(zipFiles), "dir", dir)
			e.describe(fmt.Sprintf("[0 extracted] Processing %d zip files...", len(zipFiles)))

			return IOE.TraverseArrayPar(func(zipPath string) IOE.IOEither[error, T.Unit] {
				return e.processSingleZip(ctx, zipPath)
			})(zipFiles)
		}),
		IOE.Map[error](func(_ []T.Unit) T.Unit {
			status := "success"
			if e.ExtractedFiles.Load() == 0 {
				status = "empty"
			}
			e.sessionDuration.Record(ctx, time.Since(startTime).Milliseconds(),
				metric.WithAttributes(
					attribute.String("status", status),
					attribute.Bool("delete_after", e.Cfg.DeleteAfterExtract),
				),
			)
			e.describe("Extraction complete")
			if e.progress != nil {
				_ = e.progress.Finish()
			}
			span.SetAttributes(attribute.Int64("extracted_files", e.ExtractedFiles.Load()))
			e.Logger.Infow("Extraction completed", "total_files", e.ExtractedFiles.Load())
			return T.Unit{}
		}),
	)
}

// ProcessZipFile extracts a single archive and the zips nested in it.
func (e *Extractor) ProcessZipFile(ctx context.Context, zipPath string) IOE.IOEither[error, T.Unit] {
	return e.processSingleZip(ctx, zipPath)
}

func (e *Extractor) processSingleZip(
	ctx context.Context,
	zipPath string,
) IOE.IOEither[error, T.Unit] {
	startTime := time.Now()
	baseName := strings.TrimSuffix(filepath.Base(zipPath), filepath.Ext(zipPath))
	destDir := filepath.Join(filepath.Dir(zipPath), baseName)

	return function.Pipe3(
		IOE.TryCatchError(func() (T.Unit, error) {
			if err := ctx.Err(); err != nil {
				return T.Unit{}, err
			}
			e.Logger.Infow("Extracting archive", "zip", zipPath, "dest", destDir)
			e.describe(fmt.Sprintf("Extracting %s", filepath.Base(zipPath)))
			return T.Unit{}, e.extractZipToDir(ctx, zipPath, destDir)
		}),
		IOE.Chain(func(_ T.Unit) IOE.IOEither[error, T.Unit] {
			return e.extractAllZipsInDir(ctx, destDir)
		}),
		IOE.Chain(func(_ T.Unit) IOE.IOEither[error, T.Unit] {
			if e.Cfg.DeleteAfterExtract {
				e.remove(zipPath)
			}
			return IOE.Right[error](T.Unit{})
		}),
		IOE.Tap(func(_ T.Unit) IOE.IOEither[error, T.Unit] {
			e.zipDuration.Record(ctx, time.Since(startTime).Milliseconds(),
				metric.WithAttributes(
					attribute.String("status", "success"),
					attribute.String("type", "main"),
				),
			)
			return IOE.Of[error](T.Unit{})
		}),
	)
}

func (e *Extractor) remove(zipPath string) {
	if err := os.Remove(zipPath); err != nil {
		e.Logger.Warnw("Failed to delete zip", "zip", zipPath, "error", err)
		return
	}
	e.Logger.Infow("Deleted zip", "zip", zipPath)
}

func (e *Extractor) describe(desc string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.progress != nil {
		e.progress.Describe(desc)
	}
}

func (e *Extractor) extractAllZipsInDir(
	ctx context.Context,
	dir string,
) IOE.IOEither[error, T.Unit] {
	return IOE.TryCatchError(func() (T.Unit, error) {
		done := map[string]bool{}
		for {
			if err := ctx.Err(); err != nil {
				e.Logger.Warn("Nested zip extraction cancelled")
				return T.Unit{}, err
			}
			zipFiles, err := findZipFilesRecursive(dir, done)
			if err != nil {
				return T.Unit{}, err
			}
			if len(zipFiles) == 0 {
				return T.Unit{}, nil
			}
			e.Logger.Debugw("Found nested zip files", "count", len(zipFiles), "dir", dir)

			for _, zipFile := range zipFiles {
				done[zipFile] = true
				if err := e.extractNested(ctx, zipFile); err != nil {
					return T.Unit{}, err
				}
			}
		}
	})
}

func (e *Extractor) extractNested(ctx context.Context, zipFile string) error {
	ctx, span := e.Tracer.Start(ctx, "extract.nested_zip", trace.WithAttributes(
		attribute.String("zip_file", zipFile),
	))
	defer span.End()

	e.zipsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("type", "nested")))
	if err := e.extractZipToDir(ctx, zipFile, filepath.Dir(zipFile)); err != nil {
		span.RecordError(err)
		e.zipsFailed.Add(ctx, 1,
			metric.WithAttributes(attribute.String("error_type", "extract_failed")),
		)
		return err
	}
	if e.Cfg.DeleteAfterExtract {
		e.remove(zipFile)
	}
	return nil
}

func findZipFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var zipFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && isZip(entry.Name()) {
			zipFiles = append(zipFiles, filepath.Join(dir, entry.Name()))
		}
	}
	return zipFiles, nil
}

func findZipFilesRecursive(dir string, done map[string]bool) ([]string, error) {
	var zipFiles []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isZip(d.Name()) && !done[path] {
			zipFiles = append(zipFiles, path)
		}
		return nil
	})
	return zipFiles, err
}

func isZip(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".zip")
}

// wanted reports whether an archive member should be written out. Nested
// archives are always kept so they can be unpacked in turn.
func (e *Extractor) wanted(name string) bool {
	if !e.Cfg.XMLOnly || isZip(name) {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".xml" || strings.HasSuffix(strings.ToLower(name), ".xml.gz")
}

// safeJoin joins an archive member name onto destDir, refusing names that
// would land outside it.
func safeJoin(destDir, name string) (string, error) {
	destPath := filepath.Join(destDir, name)
	rel, err := filepath.Rel(destDir, destPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) ||
		filepath.IsAbs(name) {
		return "", fmt.Errorf("illegal file path in archive: %s", name)
	}
	return destPath, nil
}

func (e *Extractor) extractZipToDir(ctx context.Context, zipPath, destDir string) error {
	e.Logger.Debugw("Opening zip file", "zip", zipPath, "dest", destDir)

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open zip %s: %w", zipPath, err)
	}
	defer r.Close()

	extracted := 0
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		destPath, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", destPath, err)
			}
			continue
		}
		if !e.wanted(f.Name) {
			e.filesSkipped.Add(ctx, 1)
			continue
		}

		n, err := extractFile(f, destPath)
		if err != nil {
			return err
		}
		extracted++
		e.filesTotal.Add(ctx, 1)
		e.bytesTotal.Add(ctx, n)
		total := e.ExtractedFiles.Add(1)
		e.describe(fmt.Sprintf("[%d extracted] Extracting %s from %s",
			total, filepath.Base(f.Name), filepath.Base(zipPath)))
		e.Logger.Debugw("File extracted", "file", f.Name, "dest", destPath)
	}

	e.Logger.Infow("Zip extraction completed", "zip", zipPath, "files_extracted", extracted)
	return nil
}

func extractFile(f *zip.File, destPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create parent directory for %s: %w", destPath, err)
	}
	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("failed to open file %s in zip: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file %s: %w", destPath, err)
	}
	n, err := io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to copy file %s: %w", f.Name, err)
	}
	return n, nil
}
