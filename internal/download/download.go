package download

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IBM/fp-go/v2/array"
	ET "github.com/IBM/fp-go/v2/either"
	"github.com/IBM/fp-go/v2/function"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/IBM/fp-go/v2/ioeither/file"
	Http "github.com/IBM/fp-go/v2/ioeither/http"
	"github.com/IBM/fp-go/v2/option"
	"github.com/IBM/fp-go/v2/retry"
	"github.com/IBM/fp-go/v2/tuple"
	"github.com/schollz/progressbar/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/config"
	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/models"
	T "github.com/Qubut/IP-Claim/packages/grant_processor/internal/typing"
)

type Downloader struct {
	Cfg                     config.Download
	progress                *progressbar.ProgressBar
	progressOut             io.Writer
	total                   int
	Logger                  *zap.SugaredLogger
	Tracer                  trace.Tracer
	Meter                   metric.Meter
	downloadSessionDuration metric.Int64Histogram
	downloadFilesTotal      metric.Int64Counter
	downloadFilesSuccess    metric.Int64Counter
	downloadFilesFailed     metric.Int64Counter
	downloadBytesTotal      metric.Int64Counter
	downloadFileDuration    metric.Int64Histogram
}

type DownloadFile struct {
	filename     string
	filePath     string
	expectedSize int64
	checksum     string
	url          string
}

func NewDownloader(
	cfg config.Download,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Downloader, error) {
	d := &Downloader{
		Cfg:         cfg,
		Tracer:      tracer,
		Logger:      logger,
		Meter:       meter,
		progressOut: os.Stdout,
	}

	var err error
	d.downloadSessionDuration, err = d.Meter.Int64Histogram(
		"download.session.duration",
		metric.WithDescription("Duration of bulk download session"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	d.downloadFilesTotal, err = d.Meter.Int64Counter(
		"download.files.total",
		metric.WithDescription("Total number of files listed in the manifest"),
	)
	if err != nil {
		return nil, err
	}

	d.downloadFilesSuccess, err = d.Meter.Int64Counter(
		"download.files.success",
		metric.WithDescription("Number of successfully downloaded or skipped files"),
	)
	if err != nil {
		return nil, err
	}

	d.downloadFilesFailed, err = d.Meter.Int64Counter(
		"download.files.failed",
		metric.WithDescription("Number of failed downloads after retries"),
	)
	if err != nil {
		return nil, err
	}

	d.downloadBytesTotal, err = d.Meter.Int64Counter(
		"download.bytes.total",
		metric.WithDescription("Total bytes actually downloaded"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	d.downloadFileDuration, err = d.Meter.Int64Histogram(
		"download.file.duration",
		metric.WithDescription("Duration of individual file download"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return d, nil
}

// SetProgressOutput redirects the progress bar, io.Discard silences it.
func (downloader *Downloader) SetProgressOutput(w io.Writer) {
	downloader.progressOut = w
}

// FetchFiles reads the manifest at Cfg.ManifestURL and downloads every file it
// lists into Cfg.Directory. The result holds the byte size of each file.
func (downloader *Downloader) FetchFiles(ctx context.Context) IOE.IOEither[error, []int64] {
	return func() ET.Either[error, []int64] {
		ctx, span := downloader.Tracer.Start(ctx, "download.session", trace.WithAttributes(
			attribute.String("manifest_url", downloader.Cfg.ManifestURL),
			attribute.Int("max_concurrent", downloader.Cfg.ConcurrentDownloads),
			attribute.Int("max_retries", downloader.Cfg.MaxRetries),
		))
		defer span.End()
		return IOE.TapLeft[[]int64](func(err error) IOE.IOEither[error, T.Unit] {
			span.RecordError(err)
			return IOE.Of[error](T.Unit{})
		})(downloader.session(ctx, span))()
	}
}

func (downloader *Downloader) session(ctx context.Context, span trace.Span) IOE.IOEither[error, []int64] {
	startTime := time.Now()
	downloader.Logger.Infow("Starting bulk download session",
		"manifest", downloader.Cfg.ManifestURL,
		"concurrent", downloader.Cfg.ConcurrentDownloads)

	if err := os.MkdirAll(downloader.Cfg.Directory, 0o755); err != nil {
		return IOE.Left[[]int64](fmt.Errorf("create download dir: %w", err))
	}

	addProgressBar := function.Flow2(
		array.Reduce(
			func(acc tuple.Tuple2[int64, int], item DownloadFile) tuple.Tuple2[int64, int] {
				return tuple.Tuple2[int64, int]{F1: acc.F1 + item.expectedSize, F2: acc.F2 + 1}
			},
			tuple.Tuple2[int64, int]{F1: 0, F2: 0},
		),
		func(total tuple.Tuple2[int64, int]) IOE.IOEither[error, T.Unit] {
			span.SetAttributes(attribute.Int("files", total.F2), attribute.Int64("expected_bytes", total.F1))
			// Sizes are optional in the manifest; -1 is the bar's indeterminate mode.
			maxBytes := total.F1
			if maxBytes <= 0 {
				maxBytes = -1
			}
			downloader.progress = progressbar.NewOptions64(
				maxBytes,
				progressbar.OptionSetWriter(downloader.progressOut),
				progressbar.OptionSetWidth(60),
				progressbar.OptionSetDescription(
					"[0/"+strconv.Itoa(total.F2)+"] Downloading grant files...",
				),
				progressbar.OptionShowBytes(true),
				progressbar.OptionShowIts(),
				progressbar.OptionSetElapsedTime(true),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionThrottle(50*time.Millisecond),
				progressbar.OptionSetRenderBlankState(true),
				progressbar.OptionUseANSICodes(true),
			)
			downloader.total = total.F2
			return IOE.Of[error](T.Unit{})
		},
	)
	timeout := function.Ternary(
		func(t time.Duration) bool { return t > 0 },
		function.Constant1[time.Duration, time.Duration](downloader.Cfg.Timeout),
		function.Constant1[time.Duration](30*time.Second),
	)(
		downloader.Cfg.Timeout,
	)
	var completed atomic.Int64
	client := Http.MakeClient(&http.Client{Timeout: timeout})
	request := Http.MakeGetRequest(downloader.Cfg.ManifestURL)
	sem := semaphore.NewWeighted(int64(max(downloader.Cfg.ConcurrentDownloads, 1)))
	download := func(downloadFile DownloadFile) IOE.IOEither[error, int64] {
		acquire := IOE.TryCatchError(func() (DownloadFile, error) {
			return downloadFile, sem.Acquire(ctx, 1)
		})
		use := function.Flow2(
			function.Curry3(downloader.DownloadFile)(ctx)(client),
			IOE.Chain(func(size int64) IOE.IOEither[error, int64] {
				completed.Add(1)
				desc := fmt.Sprintf(
					"[%d/%d completed] Downloading grant files...",
					completed.Load(),
					downloader.total,
				)
				downloader.progress.Describe(desc)
				return IOE.Of[error](size)
			}),
		)
		release := func(_ DownloadFile, _ ET.Either[error, int64]) IOE.IOEither[error, T.Unit] {
			sem.Release(1)
			return IOE.Of[error](T.Unit{})
		}
		return IOE.Bracket(acquire, use, release)
	}
	cleanUp := func(_ []int64) IOE.IOEither[error, T.Unit] {
		if downloader.progress != nil {
			downloader.progress.Describe("Download complete")
			if err := downloader.progress.Finish(); err != nil {
				return IOE.Left[T.Unit](fmt.Errorf("progress bar finish: %w", err))
			}
			if err := downloader.progress.Exit(); err != nil {
				return IOE.Left[T.Unit](fmt.Errorf("progress bar cleanup: %w", err))
			}
		}
		return IOE.Of[error](T.Unit{})
	}
	program := function.Pipe6(
		request,
		Http.ReadJSON[models.Manifest](client),
		IOE.Chain(func(m models.Manifest) IOE.IOEither[error, []DownloadFile] {
			if err := ctx.Err(); err != nil {
				return IOE.Left[[]DownloadFile](err)
			}
			items := array.MonadMap(m.Files, downloader.plan)
			downloader.Logger.Infow("Manifest loaded", "product", m.Name, "files", len(items))
			downloader.downloadFilesTotal.Add(ctx, int64(len(items)),
				metric.WithAttributes(attribute.String("product", m.Name)),
			)
			return IOE.Of[error](items)
		}),
		IOE.Tap(addProgressBar),
		IOE.Chain(IOE.TraverseArrayPar(download)),
		IOE.Tap(cleanUp),
		IOE.Tap(func(sizes []int64) IOE.IOEither[error, T.Unit] {
			status := "success"
			if len(sizes) == 0 {
				status = "empty"
			}
			downloader.downloadSessionDuration.Record(ctx, time.Since(startTime).Milliseconds(),
				metric.WithAttributes(
					attribute.String("status", status),
					attribute.Int("concurrent", downloader.Cfg.ConcurrentDownloads),
				),
			)
			return IOE.Of[error](T.Unit{})
		}),
	)
	if ctx.Err() != nil {
		downloader.Logger.Warn("Download session cancelled")
		return IOE.Left[[]int64](ctx.Err())
	}
	return program
}

func (downloader *Downloader) plan(f models.BulkFile) DownloadFile {
	name := filepath.Base(f.Name)
	return DownloadFile{
		filename:     name,
		filePath:     filepath.Join(downloader.Cfg.Directory, name),
		expectedSize: parseFileSize(f.Size),
		checksum:     strings.ToLower(f.SHA1),
		url:          f.URL,
	}
}

func parseFileSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	re := regexp.MustCompile(`^(\d+)(?:[.,](\d+))?\s*([A-Za-z]*)$`)
	matches := re.FindStringSubmatch(s)
	if matches == nil {
		return 0
	}
	integerPart := matches[1]
	decimalPart := matches[2]
	unit := strings.ToUpper(matches[3])
	parseInt := func(str string) option.Option[int64] {
		if str == "" {
			return option.None[int64]()
		}
		return option.TryCatch(func() (int64, error) {
			return strconv.ParseInt(str, 10, 64)
		})
	}
	multiplier := getUnitMultiplier(unit)
	whole := function.Pipe2(
		integerPart,
		parseInt,
		option.Map(func(whole int64) int64 { return whole * multiplier }),
	)
	decimal := function.Pipe2(decimalPart, parseInt, option.Map(func(decimal int64) int64 {
		scale := int64(math.Pow10(len(decimalPart)))
		return (decimal * multiplier) / scale
	}))
	zero := func() int64 { return 0 }
	fraction := option.MonadGetOrElse(decimal, zero)
	total := option.Map(func(w int64) int64 { return w + fraction })(whole)
	return option.MonadGetOrElse(total, zero)
}

func getUnitMultiplier(unit string) int64 {
	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "TB", "TIB", "T":
		return 1 << 40
	case "GB", "GIB", "G":
		return 1 << 30
	case "MB", "MIB", "M":
		return 1 << 20
	case "KB", "KIB", "K":
		return 1 << 10
	case "B", "BYTES", "BYTE", "":
		return 1
	default:
		return 0
	}
}

// existing reports whether f is already on disk and intact: by SHA-1 when the
// manifest has one, by size otherwise.
func (downloader *Downloader) existing(f DownloadFile) bool {
	if f.checksum != "" {
		return ET.IsRight(verifyChecksum(f.checksum, f.filePath)())
	}
	info, err := os.Stat(f.filePath)
	if err != nil {
		return false
	}
	return f.expectedSize == 0 || info.Size() == f.expectedSize
}

func (downloader *Downloader) DownloadFile(
	ctx context.Context,
	client Http.Client,
	f DownloadFile,
) IOE.IOEither[error, int64] {
	return func() ET.Either[error, int64] {
		ctx, span := downloader.Tracer.Start(ctx, "download.file", trace.WithAttributes(
			attribute.String("file.name", f.filename),
			attribute.String("file.url", f.url),
			attribute.Int64("file.expected_size_bytes", f.expectedSize),
			attribute.String("file.checksum", f.checksum),
		))
		defer span.End()
		return downloader.fetchFile(ctx, span, client, f)()
	}
}

func (downloader *Downloader) fetchFile(
	ctx context.Context,
	span trace.Span,
	client Http.Client,
	f DownloadFile,
) IOE.IOEither[error, int64] {
	startTime := time.Now()
	if err := ctx.Err(); err != nil {
		return IOE.Left[int64](err)
	}
	if downloader.Cfg.SkipExists {
		if downloader.existing(f) {
			span.SetAttributes(attribute.Bool("skipped", true))
			span.AddEvent("file_already_exists_and_valid")
			if downloader.progress != nil {
				_ = downloader.progress.Add64(f.expectedSize)
			}
			downloader.Logger.Debugw("Skipping existing file", "file", f.filename)
			downloader.downloadFilesSuccess.Add(ctx, 1,
				metric.WithAttributes(
					attribute.String("method", "skip"),
					attribute.Bool("skipped", true),
				),
			)
			return IOE.Of[error](f.expectedSize)
		}
		span.AddEvent("existing_file_invalid_or_missing")
		_ = os.Remove(f.filePath)
	}
	policy := retry.Monoid.Concat(
		retry.LimitRetries(uint(downloader.Cfg.MaxRetries)),
		retry.ExponentialBackoff(5*time.Millisecond),
	)
	fetch := IOE.Bracket(
		client.Do(Http.MakeGetRequest(f.url)),
		func(resp *http.Response) IOE.IOEither[error, int64] {
			if resp.StatusCode != http.StatusOK {
				return IOE.Left[int64](fmt.Errorf("download %s: bad status: %d", f.filename, resp.StatusCode))
			}
			return IOE.Bracket(
				file.Create(f.filePath),
				func(out *os.File) IOE.IOEither[error, int64] {
					var writer io.Writer = out
					if downloader.progress != nil {
						writer = io.MultiWriter(out, barWriter{downloader.progress})
					}
					return IOE.TryCatchError(func() (int64, error) {
						return io.Copy(writer, resp.Body)
					})
				},
				func(out *os.File, _ ET.Either[error, int64]) IOE.IOEither[error, any] {
					return IOE.TryCatchError(func() (any, error) { return nil, out.Close() })
				},
			)
		},
		func(resp *http.Response, _ ET.Either[error, int64]) IOE.IOEither[error, any] {
			return IOE.TryCatchError(func() (any, error) { return nil, resp.Body.Close() })
		},
	)
	action := func(status retry.RetryStatus) IOE.IOEither[error, int64] {
		if err := ctx.Err(); err != nil {
			return IOE.Left[int64](err)
		}
		if status.IterNumber > 0 {
			downloader.Logger.Warnw("Retrying download", "file", f.filename, "attempt", status.IterNumber)
		}
		if !downloader.Cfg.VerifySHA1 || f.checksum == "" {
			return fetch
		}
		return IOE.Chain(func(size int64) IOE.IOEither[error, int64] {
			return IOE.Map[error](function.Constant1[string](size))(verifyChecksum(f.checksum, f.filePath))
		})(fetch)
	}
	shouldRetry := ET.Fold(
		func(err error) bool { return ctx.Err() == nil },
		function.Constant1[int64](false),
	)
	return function.Pipe2(
		IOE.Retrying(policy, action, shouldRetry),
		IOE.Tap(func(size int64) IOE.IOEither[error, T.Unit] {
			attrs := []attribute.KeyValue{attribute.String("file.name", f.filename)}
			downloader.downloadFilesSuccess.Add(ctx, 1, metric.WithAttributes(attrs...))
			downloader.downloadBytesTotal.Add(ctx, size, metric.WithAttributes(attrs...))
			downloader.downloadFileDuration.Record(ctx, time.Since(startTime).Milliseconds(),
				metric.WithAttributes(
					attribute.String("status", "success"),
					attribute.Bool("skipped", false),
				))
			return IOE.Of[error](T.Unit{})
		}),
		IOE.TapLeft[int64](func(err error) IOE.IOEither[error, T.Unit] {
			span.RecordError(err)
			downloader.Logger.Errorw("Download failed", "file", f.filename, "error", err)
			downloader.downloadFilesFailed.Add(ctx, 1, metric.WithAttributes(
				attribute.String("file.name", f.filename),
			))
			downloader.downloadFileDuration.Record(ctx, time.Since(startTime).Milliseconds(),
				metric.WithAttributes(attribute.String("status", "failed")))
			return IOE.Of[error](T.Unit{})
		}),
	)
}

// barWriter feeds the progress bar without letting its errors fail a copy.
type barWriter struct {
	bar *progressbar.ProgressBar
}

func (w barWriter) Write(p []byte) (int, error) {
	_ = w.bar.Add(len(p))
	return len(p), nil
}

func verifyChecksum(expectedChecksum, filePath string) IOE.IOEither[error, string] {
	acquire := file.Open(filePath)
	use := func(f *os.File) IOE.IOEither[error, string] {
		h := sha1.New()
		if _, err := io.Copy(h, f); err != nil {
			return IOE.Left[string](err)
		}
		actual := hex.EncodeToString(h.Sum(nil))
		if actual == expectedChecksum {
			return IOE.Right[error](filePath)
		}
		return IOE.Left[string](
			fmt.Errorf("checksum mismatch for %s: expected %s, got %s", filepath.Base(filePath), expectedChecksum, actual),
		)
	}
	release := func(f *os.File, _ ET.Either[error, string]) IOE.IOEither[error, any] {
		return IOE.TryCatchError(func() (any, error) {
			return nil, f.Close()
		})
	}
	return IOE.Bracket(acquire, use, release)
}
