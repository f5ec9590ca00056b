package grant

// Grant is one patent grant record.
type Grant struct {
	Bibliographic  Bibliographic     `json:"bibliographic"`
	Descriptions   map[string]string `json:"descriptions"`
	ClaimStatement *string           `json:"claim_statement,omitempty"`
	Claims         []string          `json:"claims"`
}

type Bibliographic struct {
	PublicationReference   DocumentID             `json:"publication_reference"`
	ApplicationReference   DocumentID             `json:"application_reference"`
	SeriesCode             string                 `json:"series_code"`
	ClassificationLocarno  ClassificationLocarno  `json:"classification_locarno"`
	ClassificationNational ClassificationNational `json:"classification_national"`
}

type DocumentID struct {
	Country   string  `json:"country"`
	DocNumber string  `json:"doc_number"`
	Kind      *string `json:"kind,omitempty"`
	Date      string  `json:"date"`
}

type ClassificationLocarno struct {
	Edition            string `json:"edition"`
	MainClassification string `json:"main_classification"`
}

type ClassificationNational struct {
	Country               string  `json:"country"`
	AdditionalInfo        string  `json:"additional_info"`
	MainClassification    string  `json:"main_classification"`
	FurtherClassification *string `json:"further_classification,omitempty"`
}

func newGrant() *Grant {
	return &Grant{Descriptions: make(map[string]string)}
}

// ID joins country, number and kind, e.g. "USD0912345S1".
func (d DocumentID) ID() string {
	id := d.Country + d.DocNumber
	if d.Kind != nil {
		id += *d.Kind
	}
	return id
}

// PatentID identifies the grant by its publication reference.
func (g *Grant) PatentID() string {
	return g.Bibliographic.PublicationReference.ID()
}
