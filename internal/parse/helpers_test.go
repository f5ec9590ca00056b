package parse

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/config"
)

const header = `<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
	`<!DOCTYPE us-patent-grant SYSTEM "us-patent-grant-v45-2014-04-03.dtd" [ ]>` + "\n"

func grantXML(number string) string {
	return header + `<us-patent-grant lang="EN" file="USD0` + number + `-20240102.XML">
<us-bibliographic-data-grant>
<publication-reference><document-id><country>US</country><doc-number>D` + number + `</doc-number><kind>S1</kind><date>20240102</date></document-id></publication-reference>
<application-reference appl-type="design"><document-id><country>US</country><doc-number>29800001</doc-number><date>20210712</date></document-id></application-reference>
<us-application-series-code>29</us-application-series-code>
<classification-locarno><edition>14</edition><main-classification>0601</main-classification></classification-locarno>
<classification-national><country>US</country><main-classification>D 6566</main-classification></classification-national>
</us-bibliographic-data-grant>
<description id="description">
<?brief-description-of-drawings description="Brief Description of Drawings" end="lead"?>
<p id="p-0001" num="0001">FIG. 1 is a front view;</p>
<?brief-description-of-drawings description="Brief Description of Drawings" end="tail"?>
</description>
<us-claim-statement>I claim:</us-claim-statement>
<claims id="claims"><claim id="CLM-00001" num="00001"><claim-text>The ornamental design for a chair.</claim-text></claim></claims>
</us-patent-grant>
`
}

const brokenXML = header + `<us-patent-grant><us-bibliographic-data-grant>` +
	`<publication-reference><country>US</country></publication-reference>` +
	`</us-bibliographic-data-grant></us-patent-grant>` + "\n"

func newTestParser(t *testing.T, cfg config.Parse) *Parser {
	t.Helper()
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	p, err := NewParser(cfg,
		tracenoop.NewTracerProvider().Tracer("test"),
		zap.NewNop().Sugar(),
		metricnoop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	p.SetProgressOutput(io.Discard)
	return p
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func gzipBytes(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := pgzip.NewWriter(&buf)
	_, err := io.Copy(zw, strings.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeZip(t *testing.T, path string, members map[string][]byte, order ...string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(members[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}
