package xmlevent

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s *Source) []Event {
	t.Helper()
	var events []Event
	for {
		ev, err := s.Next()
		require.NoError(t, err)
		if ev.Kind == EOF {
			return events
		}
		if ev.Blank() {
			continue
		}
		events = append(events, ev)
	}
}

func TestSourceConcatenatedDocuments(t *testing.T) {
	const input = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE us-patent-grant SYSTEM "us-patent-grant-v45.dtd" [ ]>
<us-patent-grant lang="EN"><a>x &amp; y</a><?BRFSUM description="Brief Summary" end="lead"?></us-patent-grant>
<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE us-patent-grant SYSTEM "us-patent-grant-v45.dtd" [ ]>
<us-patent-grant/>
`
	s, err := NewSource(strings.NewReader(input))
	require.NoError(t, err)

	events := collect(t, s)
	kinds := make([]Kind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []Kind{
		Declaration, DocType, StartElement, StartElement, Text, EndElement, ProcInst, EndElement,
		Declaration, DocType, StartElement, EndElement,
	}, kinds)

	assert.Equal(t, "us-patent-grant", events[2].Name)
	assert.Equal(t, "x & y", events[4].Data, "entities are unescaped")
	assert.Equal(t, "BRFSUM", events[6].Name)
	assert.Equal(t, `description="Brief Summary" end="lead"`, events[6].Data)
	assert.True(t, strings.HasPrefix(events[1].Data, "us-patent-grant SYSTEM"))
	assert.True(t, events[11].IsEnd("us-patent-grant"), "self-closing element yields an end event")
}

func TestSourceSkipsComments(t *testing.T) {
	s, err := NewSource(strings.NewReader(`<a><!-- note --><b/></a>`))
	require.NoError(t, err)

	events := collect(t, s)
	require.Len(t, events, 4)
	assert.True(t, events[0].IsStart("a"))
	assert.True(t, events[1].IsStart("b"))
}

func TestSourceHTMLEntities(t *testing.T) {
	s, err := NewSource(strings.NewReader(`<p>a&nbsp;b&#x2014;c</p>`))
	require.NoError(t, err)

	events := collect(t, s)
	require.Len(t, events, 3)
	assert.Equal(t, "a\u00a0b\u2014c", events[1].Data)
}

func TestSourceCapture(t *testing.T) {
	s, err := NewSource(strings.NewReader(`<r><?A end="lead"?><p>one &amp; two</p><?A end="tail"?></r>`))
	require.NoError(t, err)

	var buf bytes.Buffer
	for {
		ev, err := s.Next()
		require.NoError(t, err)
		if ev.Kind == ProcInst {
			s.Capture(&buf)
			break
		}
	}
	for {
		ev, err := s.Next()
		require.NoError(t, err)
		if ev.Kind == ProcInst {
			s.Capture(nil)
			break
		}
	}
	assert.Equal(t, `<p>one &amp; two</p><?A end="tail"?>`, buf.String())
}

func TestSourceLexicalError(t *testing.T) {
	s, err := NewSource(strings.NewReader(`<a><b`))
	require.NoError(t, err)

	_, err = s.Next()
	require.NoError(t, err)
	_, err = s.Next()
	require.Error(t, err)

	var lexErr *LexicalError
	require.True(t, errors.As(err, &lexErr))
	assert.Positive(t, lexErr.Offset)
}

func TestSourceCharset(t *testing.T) {
	// "café" in ISO-8859-1.
	input := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><a>caf\xe9</a>")
	s, err := NewSource(bytes.NewReader(input), WithCharset("ISO-8859-1"))
	require.NoError(t, err)

	events := collect(t, s)
	require.Len(t, events, 4)
	assert.Equal(t, "café", events[2].Data)
}

func TestSourceUnknownCharset(t *testing.T) {
	_, err := NewSource(strings.NewReader(""), WithCharset("no-such-charset"))
	assert.Error(t, err)
}

func TestSourceOffset(t *testing.T) {
	s, err := NewSource(strings.NewReader(`<a></a>`), WithBufferSize(1))
	require.NoError(t, err)

	_, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.Offset())
}
