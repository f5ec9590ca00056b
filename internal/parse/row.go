package parse

import (
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/blevesearch/segment"
	"github.com/samber/lo"

	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/grant"
	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/xmlevent"
)

// Columns is the header of every export, in column order.
var Columns = []string{
	"patent_id",
	"publication_date",
	"application_id",
	"application_date",
	"series_code",
	"locarno_edition",
	"locarno_class",
	"national_country",
	"national_class",
	"national_further",
	"claim_statement",
	"claims_count",
	"first_claim",
	"description_sections",
	"description_words",
}

// Row is the flat export form of a grant. Nil pointers are exported as
// empty CSV cells or Arrow nulls.
type Row struct {
	PatentID            string
	PublicationDate     string
	ApplicationID       string
	ApplicationDate     string
	SeriesCode          string
	LocarnoEdition      string
	LocarnoClass        string
	NationalCountry     string
	NationalClass       string
	NationalFurther     *string
	ClaimStatement      *string
	ClaimsCount         int64
	FirstClaim          *string
	DescriptionSections string
	DescriptionWords    int64
}

func RowFromGrant(g *grant.Grant) Row {
	b := g.Bibliographic
	row := Row{
		PatentID:        g.PatentID(),
		PublicationDate: b.PublicationReference.Date,
		ApplicationID:   b.ApplicationReference.ID(),
		ApplicationDate: b.ApplicationReference.Date,
		SeriesCode:      b.SeriesCode,
		LocarnoEdition:  b.ClassificationLocarno.Edition,
		LocarnoClass:    b.ClassificationLocarno.MainClassification,
		NationalCountry: b.ClassificationNational.Country,
		NationalClass:   b.ClassificationNational.MainClassification,
		NationalFurther: b.ClassificationNational.FurtherClassification,
		ClaimStatement:  g.ClaimStatement,
		ClaimsCount:     int64(len(g.Claims)),
	}
	if first, ok := lo.First(g.Claims); ok {
		row.FirstClaim = &first
	}

	names := lo.Keys(g.Descriptions)
	sort.Strings(names)
	row.DescriptionSections = strings.Join(names, ";")
	row.DescriptionWords = int64(lo.SumBy(names, func(name string) int {
		return WordCount(PlainText(g.Descriptions[name]))
	}))
	return row
}

// Strings renders the row in Columns order.
func (r Row) Strings() []string {
	return []string{
		r.PatentID,
		r.PublicationDate,
		r.ApplicationID,
		r.ApplicationDate,
		r.SeriesCode,
		r.LocarnoEdition,
		r.LocarnoClass,
		r.NationalCountry,
		r.NationalClass,
		lo.FromPtr(r.NationalFurther),
		lo.FromPtr(r.ClaimStatement),
		strconv.FormatInt(r.ClaimsCount, 10),
		lo.FromPtr(r.FirstClaim),
		r.DescriptionSections,
		strconv.FormatInt(r.DescriptionWords, 10),
	}
}

// PlainText strips the markup from a raw description block. Blocks that are
// not well formed enough for xmlquery go through the lenient tokenizer.
func PlainText(raw string) string {
	doc, err := xmlquery.Parse(strings.NewReader("<description>" + raw + "</description>"))
	if err == nil {
		return strings.TrimSpace(doc.InnerText())
	}
	return lenientText(raw)
}

func lenientText(raw string) string {
	src, err := xmlevent.NewSource(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	var sb strings.Builder
	for {
		ev, err := src.Next()
		if err != nil || ev.Kind == xmlevent.EOF {
			break
		}
		if ev.Kind == xmlevent.Text {
			sb.WriteString(ev.Data)
		}
	}
	return strings.TrimSpace(sb.String())
}

// WordCount counts the letter, number and ideographic segments of text.
func WordCount(text string) int {
	seg := segment.NewWordSegmenter(strings.NewReader(text))
	count := 0
	for seg.Segment() {
		if seg.Type() != segment.None {
			count++
		}
	}
	return count
}
