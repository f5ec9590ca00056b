package parse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/grant"
)

func decodeFixture(t *testing.T, xml string) *grant.Grant {
	t.Helper()
	d, err := grant.NewDecoder(strings.NewReader(xml))
	require.NoError(t, err)
	g, err := d.Next()
	require.NoError(t, err)
	return g
}

func TestRowFromGrant(t *testing.T) {
	row := RowFromGrant(decodeFixture(t, grantXML("1000001")))

	assert.Equal(t, "USD1000001S1", row.PatentID)
	assert.Equal(t, "20240102", row.PublicationDate)
	assert.Equal(t, "US29800001", row.ApplicationID)
	assert.Equal(t, "20210712", row.ApplicationDate)
	assert.Equal(t, "29", row.SeriesCode)
	assert.Equal(t, "14", row.LocarnoEdition)
	assert.Equal(t, "0601", row.LocarnoClass)
	assert.Equal(t, "D 6566", row.NationalClass)
	assert.Nil(t, row.NationalFurther)
	require.NotNil(t, row.FirstClaim)
	assert.Equal(t, "The ornamental design for a chair.", *row.FirstClaim)
	assert.Equal(t, int64(1), row.ClaimsCount)
	assert.Equal(t, "brief-description-of-drawings", row.DescriptionSections)
	assert.Equal(t, int64(6), row.DescriptionWords)

	cells := row.Strings()
	require.Len(t, cells, len(Columns))
	assert.Equal(t, "", cells[9], "absent further classification is an empty cell")
	assert.Equal(t, "I claim:", cells[10])
}

func TestRowFromEmptyGrant(t *testing.T) {
	row := RowFromGrant(&grant.Grant{})
	assert.Equal(t, "", row.PatentID)
	assert.Nil(t, row.FirstClaim)
	assert.Zero(t, row.ClaimsCount)
	assert.Equal(t, "", row.DescriptionSections)
}

func TestDescriptionSectionsSorted(t *testing.T) {
	row := RowFromGrant(&grant.Grant{Descriptions: map[string]string{
		"RELAPP": "", "BRFSUM": "", "DETDESC": "",
	}})
	assert.Equal(t, "BRFSUM;DETDESC;RELAPP", row.DescriptionSections)
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "markup stripped",
			raw:  `<heading id="h-0001" level="1">BACKGROUND</heading><p>x &lt; y</p>`,
			want: "BACKGROUNDx < y",
		},
		{
			name: "plain",
			raw:  "  just text  ",
			want: "just text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.raw))
		})
	}
}

func TestLenientText(t *testing.T) {
	assert.Equal(t, "a\u00a0b then c", lenientText("<p>a&nbsp;b</p> then <i>c"))
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount(""))
	assert.Equal(t, 6, WordCount("FIG. 1 is a front view;"))
	assert.Equal(t, 3, WordCount("  chair,  table -- lamp "))
}

func TestFindInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"b/ipg240109.xml.gz",
		"a/ipg240102.xml",
		"a/notes.txt",
		"I20240116.zip",
		"I20240123.zip",
		"I20240123/ipg240123.xml",
	} {
		writeFile(t, filepath.Join(dir, name), "x")
	}

	inputs, err := FindInputs(dir)
	require.NoError(t, err)

	var rel []string
	for _, in := range inputs {
		r, err := filepath.Rel(dir, in)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{
		"I20240116.zip",
		"I20240123/ipg240123.xml",
		"a/ipg240102.xml",
		"b/ipg240109.xml.gz",
	}, rel)
}

func TestFindInputsMissingDir(t *testing.T) {
	_, err := FindInputs(filepath.Join(t.TempDir(), "absent"))
	assert.True(t, os.IsNotExist(err))
}
