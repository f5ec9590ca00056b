package grant

import "github.com/Qubut/IP-Claim/packages/grant_processor/internal/xmlevent"

// unknownPolicy decides what happens to a child element a context does not
// recognize.
type unknownPolicy uint8

const (
	// rejectUnknown fails the record: the container has a fixed schema.
	rejectUnknown unknownPolicy = iota
	// skipUnknown discards the element and everything inside it.
	skipUnknown
	// enterUnknown ignores the tag but keeps dispatching its content.
	enterUnknown
)

func (d *Decoder) unknownElement(policy unknownPolicy, container, name string) error {
	switch policy {
	case skipUnknown:
		return d.skipElement(name)
	case enterUnknown:
		return nil
	default:
		return d.structural("unrecognized element %q in %s", name, container)
	}
}

type (
	field[T any]    func(*T) *string
	optField[T any] func(*T) **string
)

// fieldMapper copies the text of known child elements of a container into
// the slots of a T. Optional slots are set to a pointer so that an absent
// element stays distinguishable from an empty one.
type fieldMapper[T any] struct {
	container string
	required  map[string]field[T]
	optional  map[string]optField[T]
	unknown   unknownPolicy
}

// decode is called right after the container's start tag and returns after
// its end tag.
func (m *fieldMapper[T]) decode(d *Decoder, dst *T) error {
	for {
		ev, err := d.next()
		if err != nil {
			return err
		}
		switch ev.Kind {
		case xmlevent.StartElement:
			if slot, ok := m.required[ev.Name]; ok {
				text, err := d.readText(ev.Name)
				if err != nil {
					return err
				}
				*slot(dst) = text
				continue
			}
			if slot, ok := m.optional[ev.Name]; ok {
				text, err := d.readText(ev.Name)
				if err != nil {
					return err
				}
				*slot(dst) = &text
				continue
			}
			if err := d.unknownElement(m.unknown, m.container, ev.Name); err != nil {
				return err
			}
		case xmlevent.EndElement:
			if ev.Name == m.container {
				return nil
			}
			if m.unknown != enterUnknown {
				return d.structural("unexpected end tag %q in %s", ev.Name, m.container)
			}
		case xmlevent.Declaration, xmlevent.EOF:
			return d.truncated(ev, m.container)
		}
	}
}

var documentIDFields = &fieldMapper[DocumentID]{
	container: tagDocumentID,
	required: map[string]field[DocumentID]{
		"country":    func(v *DocumentID) *string { return &v.Country },
		"doc-number": func(v *DocumentID) *string { return &v.DocNumber },
		"date":       func(v *DocumentID) *string { return &v.Date },
	},
	optional: map[string]optField[DocumentID]{
		"kind": func(v *DocumentID) **string { return &v.Kind },
	},
	unknown: rejectUnknown,
}

var locarnoFields = &fieldMapper[ClassificationLocarno]{
	container: tagClassificationLocarno,
	required: map[string]field[ClassificationLocarno]{
		"edition":             func(v *ClassificationLocarno) *string { return &v.Edition },
		"main-classification": func(v *ClassificationLocarno) *string { return &v.MainClassification },
	},
	unknown: rejectUnknown,
}

var nationalFields = &fieldMapper[ClassificationNational]{
	container: tagClassificationNational,
	required: map[string]field[ClassificationNational]{
		"country":             func(v *ClassificationNational) *string { return &v.Country },
		"additional-info":     func(v *ClassificationNational) *string { return &v.AdditionalInfo },
		"main-classification": func(v *ClassificationNational) *string { return &v.MainClassification },
	},
	optional: map[string]optField[ClassificationNational]{
		"further-classification": func(v *ClassificationNational) **string { return &v.FurtherClassification },
	},
	unknown: rejectUnknown,
}
