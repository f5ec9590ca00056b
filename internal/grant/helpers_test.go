package grant

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/xmlevent"
)

const recordHeader = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE us-patent-grant SYSTEM "us-patent-grant-v45-2014-04-03.dtd" [ ]>
`

// record wraps body in a complete pseudo-document.
func record(body string) string {
	return recordHeader +
		`<us-patent-grant lang="EN" dtd-version="v4.5 2014-04-03" id="us-patent-grant" country="US">` +
		body +
		"</us-patent-grant>\n"
}

const biblioBody = `<us-bibliographic-data-grant>
<publication-reference>
<document-id>
<country>US</country>
<doc-number>1234567</doc-number>
<kind>B2</kind>
<date>20200101</date>
</document-id>
</publication-reference>
<application-reference appl-type="design">
<document-id>
<country>US</country>
<doc-number>29412345</doc-number>
<date>20120110</date>
</document-id>
</application-reference>
<us-application-series-code>29</us-application-series-code>
<us-term-of-grant><length-of-grant>14</length-of-grant></us-term-of-grant>
<classification-locarno>
<edition>10</edition>
<main-classification>0601</main-classification>
</classification-locarno>
<classification-national>
<country>US</country>
<additional-info>unstructured</additional-info>
<main-classification>D 6566</main-classification>
<further-classification>D 6501</further-classification>
</classification-national>
<us-references-cited>
<us-citation>
<patcit num="00001"><document-id><country>US</country><doc-number>D500000</doc-number></document-id></patcit>
<classification-national><country>US</country><main-classification>D6/999</main-classification></classification-national>
</us-citation>
</us-references-cited>
</us-bibliographic-data-grant>
`

const descriptionBody = `<drawings id="DRAWINGS"><figure id="Fig-EMI-D00000" num="00000"><img id="EMI-D00000" file="US01234567-20200101-D00000.TIF" img-format="tif"/></figure></drawings>
<description id="description">
<?brief-description-of-drawings description="Brief Description of Drawings" end="lead"?>
<p id="p-0001" num="0001">FIG. 1 is a front view;</p>
<?brief-description-of-drawings description="Brief Description of Drawings" end="tail"?>
<?DETDESC description="Detailed Description" end="lead"?>
<p id="p-0002" num="0002">The chair has <b>legs</b> &amp; a seat.</p>
<?in-line-formulae description="In-line Formulae" end="lead"?><maths id="MATH-US-00001" num="00001"><math><mi>x</mi></math></maths><?in-line-formulae description="In-line Formulae" end="tail"?>
<?DETDESC description="Detailed Description" end="tail"?>
</description>
`

const claimsBody = `<us-claim-statement>I claim:</us-claim-statement>
<claims id="claims">
<claim id="CLM-00001" num="00001">
<claim-text>The ornamental design for a chair, as shown and described.</claim-text>
</claim>
</claims>
`

var fullRecord = record(biblioBody + descriptionBody + claimsBody)

func newTestDecoder(t *testing.T, input string) *Decoder {
	t.Helper()
	d, err := NewDecoder(strings.NewReader(input))
	require.NoError(t, err)
	return d
}

// decodeOne decodes the first record of input.
func decodeOne(t *testing.T, input string) (*Grant, error) {
	t.Helper()
	return newTestDecoder(t, input).Next()
}

// fakeSource replays events and then fails with err, or reports EOF.
type fakeSource struct {
	events []xmlevent.Event
	err    error
}

func (f *fakeSource) Next() (xmlevent.Event, error) {
	if len(f.events) == 0 {
		if f.err != nil {
			return xmlevent.Event{}, f.err
		}
		return xmlevent.Event{Kind: xmlevent.EOF}, nil
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

func (f *fakeSource) Capture(*bytes.Buffer) {}

func (f *fakeSource) Offset() int64 { return 0 }

func requireKind(t *testing.T, err, kind error) *RecordError {
	t.Helper()
	require.Error(t, err)
	require.NotErrorIs(t, err, io.EOF)
	require.ErrorIs(t, err, kind)
	var recErr *RecordError
	require.True(t, errors.As(err, &recErr))
	return recErr
}

func ptr(s string) *string { return &s }
