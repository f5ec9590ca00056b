package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/config"
)

type member struct {
	name string
	body []byte
}

func zipBytes(t *testing.T, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.name)
		require.NoError(t, err)
		_, err = w.Write(m.body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestExtractor(t *testing.T, cfg config.Extract) *Extractor {
	t.Helper()
	e, err := NewExtractor(cfg,
		tracenoop.NewTracerProvider().Tracer("test"),
		zap.NewNop().Sugar(),
		metricnoop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	e.SetProgressOutput(io.Discard)
	return e
}

func TestExtractAllNested(t *testing.T) {
	dir := t.TempDir()
	inner := zipBytes(t, member{"ipg240102.xml", []byte("<grants/>")})
	outer := zipBytes(t,
		member{"ipg240102/ipg240102.zip", inner},
		member{"ipg240102/README.txt", []byte("read me")},
	)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "I20240102.zip"), outer, 0o644))

	e := newTestExtractor(t, config.Extract{XMLOnly: true, DeleteAfterExtract: true})
	_, err := ET.UnwrapError(e.ExtractAll(context.Background(), dir)())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "I20240102", "ipg240102", "ipg240102.xml"))
	require.NoError(t, err)
	assert.Equal(t, "<grants/>", string(data))

	assert.NoFileExists(t, filepath.Join(dir, "I20240102", "ipg240102", "README.txt"), "xml only")
	assert.NoFileExists(t, filepath.Join(dir, "I20240102", "ipg240102", "ipg240102.zip"), "deleted after extract")
	assert.NoFileExists(t, filepath.Join(dir, "I20240102.zip"))
	assert.Equal(t, int64(2), e.ExtractedFiles.Load())
}

func TestExtractKeepsEverythingByDefault(t *testing.T) {
	dir := t.TempDir()
	archive := zipBytes(t,
		member{"a.xml", []byte("a")},
		member{"b.txt", []byte("b")},
	)
	zipPath := filepath.Join(dir, "bundle.zip")
	require.NoError(t, os.WriteFile(zipPath, archive, 0o644))

	e := newTestExtractor(t, config.Extract{})
	_, err := ET.UnwrapError(e.ProcessZipFile(context.Background(), zipPath)())
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "bundle", "a.xml"))
	assert.FileExists(t, filepath.Join(dir, "bundle", "b.txt"))
	assert.FileExists(t, zipPath)
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := zipBytes(t, member{"../../escape.xml", []byte("x")})
	zipPath := filepath.Join(dir, "evil.zip")
	require.NoError(t, os.WriteFile(zipPath, archive, 0o644))

	e := newTestExtractor(t, config.Extract{})
	_, err := ET.UnwrapError(e.ProcessZipFile(context.Background(), zipPath)())
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dir), "escape.xml"))
}

func TestExtractEmptyDirectory(t *testing.T) {
	e := newTestExtractor(t, config.Extract{})
	_, err := ET.UnwrapError(e.ExtractAll(context.Background(), t.TempDir())())
	assert.NoError(t, err)
	assert.Zero(t, e.ExtractedFiles.Load())
}

func TestWanted(t *testing.T) {
	e := &Extractor{Cfg: config.Extract{XMLOnly: true}}
	assert.True(t, e.wanted("ipg240102.xml"))
	assert.True(t, e.wanted("IPG240102.XML"))
	assert.True(t, e.wanted("ipg240102.xml.gz"))
	assert.True(t, e.wanted("nested.zip"))
	assert.False(t, e.wanted("images/US-D1234567-S00001.TIF"))
}

func TestExtractAllSessionSpan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "I20240102.zip"),
		zipBytes(t, member{"ipg240102.xml", []byte("<grants/>")}), 0o644))

	rec := tracetest.NewSpanRecorder()
	e := newTestExtractor(t, config.Extract{})
	e.Tracer = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)).Tracer("test")

	run := e.ExtractAll(context.Background(), dir)
	assert.Empty(t, rec.Started(), "the session starts when the IO runs")

	_, err := ET.UnwrapError(run())
	require.NoError(t, err)

	var session sdktrace.ReadOnlySpan
	for _, s := range rec.Ended() {
		if s.Name() == "extraction.session" {
			session = s
		}
	}
	require.NotNil(t, session)
	assert.Contains(t, session.Attributes(), attribute.Int64("extracted_files", 1))
	require.Len(t, session.Events(), 1)
	assert.Equal(t, "zip_files_found", session.Events()[0].Name)
}
