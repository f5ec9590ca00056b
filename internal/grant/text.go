package grant

import (
	"strings"

	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/xmlevent"
)

// readText returns the text of the element whose start tag was just read,
// with the text of nested elements flattened in. Surrounding whitespace is
// trimmed.
func (d *Decoder) readText(name string) (string, error) {
	var sb strings.Builder
	depth := 0
	for {
		ev, err := d.read()
		if err != nil {
			return "", err
		}
		switch ev.Kind {
		case xmlevent.Text:
			sb.WriteString(ev.Data)
		case xmlevent.StartElement:
			depth++
		case xmlevent.EndElement:
			if depth > 0 {
				depth--
				continue
			}
			if ev.Name != name {
				return "", d.structural("unexpected end tag %q in %s", ev.Name, name)
			}
			return strings.TrimSpace(sb.String()), nil
		case xmlevent.Declaration, xmlevent.EOF:
			return "", d.truncated(ev, name)
		}
	}
}

// skipElement discards the rest of the element whose start tag was just
// read, including its end tag.
func (d *Decoder) skipElement(name string) error {
	depth := 0
	for {
		ev, err := d.read()
		if err != nil {
			return err
		}
		switch ev.Kind {
		case xmlevent.StartElement:
			depth++
		case xmlevent.EndElement:
			if depth == 0 {
				return nil
			}
			depth--
		case xmlevent.Declaration, xmlevent.EOF:
			return d.truncated(ev, name)
		}
	}
}

// truncated reports an element cut short by the end of input or by the
// declaration of the next record, which is kept for Skip.
func (d *Decoder) truncated(ev xmlevent.Event, container string) error {
	if ev.Kind == xmlevent.Declaration {
		d.unread(ev)
		return d.structural("new declaration inside %s", container)
	}
	return d.structural("unexpected end of input inside %s", container)
}
