package grant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/xmlevent"
)

func TestParseMarker(t *testing.T) {
	tests := []struct {
		ev   xmlevent.Event
		want marker
		ok   bool
	}{
		{
			ev:   xmlevent.Event{Kind: xmlevent.ProcInst, Name: "BRFSUM", Data: `description="Brief Summary" end="lead"`},
			want: marker{name: "BRFSUM", role: roleLead},
			ok:   true,
		},
		{
			ev:   xmlevent.Event{Kind: xmlevent.ProcInst, Name: "RELAPP", Data: `description="Other Patent Relations" end="tail"`},
			want: marker{name: "RELAPP", role: roleTail},
			ok:   true,
		},
		{
			ev:   xmlevent.Event{Kind: xmlevent.ProcInst, Name: "page"},
			want: marker{name: "page", role: "page"},
			ok:   true,
		},
		{
			ev: xmlevent.Event{Kind: xmlevent.ProcInst},
		},
	}
	for _, tt := range tests {
		got, ok := parseMarker(tt.ev)
		assert.Equal(t, tt.ok, ok, tt.ev.String())
		assert.Equal(t, tt.want, got, tt.ev.String())
	}
}

func TestTextBlockVerbatim(t *testing.T) {
	body := `<description><?BRFSUM description="Brief Summary" end="lead"?>` +
		`<heading id="h-0001" level="1">BACKGROUND</heading><p>x &lt; y</p>` +
		`<?BRFSUM description="Brief Summary" end="tail"?></description>`
	g, err := decodeOne(t, record(body))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"BRFSUM": `<heading id="h-0001" level="1">BACKGROUND</heading><p>x &lt; y</p>`,
	}, g.Descriptions)
}

func TestTextBlockNestedPairIsLiteral(t *testing.T) {
	nested := `<?in-line-formulae description="In-line Formulae" end="lead"?>` +
		`<maths num="1"><math>a</math></maths>` +
		`<?in-line-formulae description="In-line Formulae" end="tail"?>`
	body := `<?DETDESC description="Detailed Description" end="lead"?>` +
		`<p>before</p>` + nested + `<p>after</p>` +
		`<?DETDESC description="Detailed Description" end="tail"?>`

	g, err := decodeOne(t, record(body))
	require.NoError(t, err)
	assert.Equal(t, `<p>before</p>`+nested+`<p>after</p>`, g.Descriptions["DETDESC"])
	assert.NotContains(t, g.Descriptions, "in-line-formulae")
}

func TestTextBlockSameNameOverwrites(t *testing.T) {
	body := `<?RELAPP end="lead"?>first<?RELAPP end="tail"?>` +
		`<?RELAPP end="lead"?>second<?RELAPP end="tail"?>`
	g, err := decodeOne(t, record(body))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"RELAPP": "second"}, g.Descriptions)
}

func TestTextBlockIgnoresOtherInstructions(t *testing.T) {
	body := `<?page 12?><?RELAPP end="tail"?><claims></claims>`
	g, err := decodeOne(t, record(body))
	require.NoError(t, err)
	assert.Empty(t, g.Descriptions)
}

func TestTextBlockUnterminated(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "end of input",
			input: recordHeader + `<us-patent-grant><?BRFSUM end="lead"?><p>text</p>`,
		},
		{
			name:  "next record starts",
			input: recordHeader + `<us-patent-grant><?BRFSUM end="lead"?><p>text</p>` + record(""),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDecoder(t, tt.input)
			_, err := d.Next()
			recErr := requireKind(t, err, ErrStructure)
			assert.Contains(t, recErr.Msg, `unterminated text block "BRFSUM"`)
		})
	}
}

// An unpaired lead inside a block raises the depth, so the block's own tail
// is taken as the nested tail and the block runs to the end of the record.
func TestTextBlockUnpairedNestedLead(t *testing.T) {
	broken := record(`<description><?DETDESC end="lead"?><p>a</p>` +
		`<?in-line-formulae end="lead"?><p>b</p>` +
		`<?DETDESC end="tail"?></description>`)
	next := record(`<us-claim-statement>I claim:</us-claim-statement>`)
	d := newTestDecoder(t, broken+next)

	_, err := d.Next()
	recErr := requireKind(t, err, ErrStructure)
	assert.Contains(t, recErr.Msg, `unterminated text block "DETDESC"`)

	require.NoError(t, d.Skip())
	g, err := d.Next()
	require.NoError(t, err)
	require.NotNil(t, g.ClaimStatement)
	assert.Equal(t, "I claim:", *g.ClaimStatement)
	assert.Empty(t, g.Descriptions)
}

func TestTextBlockDoesNotLeakAcrossRecords(t *testing.T) {
	first := record(`<?A end="lead"?>one<?A end="tail"?>`)
	second := record(`<?B end="lead"?>two<?B end="tail"?>`)
	d := newTestDecoder(t, first+second)

	g, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "one"}, g.Descriptions)

	g, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"B": "two"}, g.Descriptions)
}

func TestTextBlockInvalidUTF8(t *testing.T) {
	input := record("<?A end=\"lead\"?>\xff\xfe<?A end=\"tail\"?>")
	_, err := decodeOne(t, input)
	requireKind(t, err, ErrLexical)
}
