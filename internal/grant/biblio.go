package grant

import "github.com/Qubut/IP-Claim/packages/grant_processor/internal/xmlevent"

// decodeBibliographic fills b from the children of container. Children it
// does not know are skipped whole.
func (d *Decoder) decodeBibliographic(container string, b *Bibliographic) error {
	for {
		ev, err := d.next()
		if err != nil {
			return err
		}
		switch ev.Kind {
		case xmlevent.StartElement:
			if err := d.decodeBibliographicField(ev.Name, b); err != nil {
				return err
			}
		case xmlevent.EndElement:
			if ev.Name == container {
				return nil
			}
		case xmlevent.Declaration, xmlevent.EOF:
			return d.truncated(ev, container)
		}
	}
}

func (d *Decoder) decodeBibliographicField(name string, b *Bibliographic) error {
	var err error
	switch name {
	case tagPublicationReference:
		err = d.decodeReference(name, &b.PublicationReference)
	case tagApplicationReference:
		err = d.decodeReference(name, &b.ApplicationReference)
	case tagSeriesCode, tagUSSeriesCode:
		b.SeriesCode, err = d.readText(name)
	case tagClassificationLocarno:
		err = locarnoFields.decode(d, &b.ClassificationLocarno)
	case tagClassificationNational:
		err = nationalFields.decode(d, &b.ClassificationNational)
	default:
		err = d.unknownElement(skipUnknown, "bibliographic data", name)
	}
	return err
}

// decodeReference reads the document-id wrapped by a reference element and
// consumes the reference's end tag.
func (d *Decoder) decodeReference(name string, id *DocumentID) error {
	ev, err := d.next()
	if err != nil {
		return err
	}
	if !ev.IsStart(tagDocumentID) {
		if ev.Kind == xmlevent.Declaration || ev.Kind == xmlevent.EOF {
			return d.truncated(ev, name)
		}
		return d.structural("expected %s in %s, found %s", tagDocumentID, name, ev)
	}
	if err := documentIDFields.decode(d, id); err != nil {
		return err
	}
	return d.skipElement(name)
}
