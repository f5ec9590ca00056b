package grant

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/xmlevent"
)

// Roles carried as the last token of a text block marker, as in
// <?BRFSUM description="Brief Summary" end="lead"?>.
const (
	roleLead = `end="lead"`
	roleTail = `end="tail"`
)

type marker struct {
	name string
	role string
}

func parseMarker(ev xmlevent.Event) (marker, bool) {
	tokens := strings.Fields(ev.Name + " " + ev.Data)
	if len(tokens) == 0 {
		return marker{}, false
	}
	return marker{name: tokens[0], role: tokens[len(tokens)-1]}, true
}

// decodeMarker handles a processing instruction met between sections. Only
// lead markers start a text block.
func (d *Decoder) decodeMarker(ev xmlevent.Event, g *Grant) error {
	m, ok := parseMarker(ev)
	if !ok {
		return d.structural("processing instruction without a name")
	}
	if m.role != roleLead {
		return nil
	}
	text, err := d.captureTextBlock(m.name)
	if err != nil {
		return err
	}
	g.Descriptions[m.name] = text
	return nil
}

// captureTextBlock returns the raw bytes between the lead marker just read
// and its tail marker. The interior is tokenized only to find the tail: any
// markup and nested lead/tail pairs are kept verbatim.
func (d *Decoder) captureTextBlock(name string) (string, error) {
	d.scratch.Reset()
	d.src.Capture(&d.scratch)
	defer d.src.Capture(nil)

	depth := 0
	for {
		ev, err := d.read()
		if err != nil {
			return "", err
		}
		switch ev.Kind {
		case xmlevent.ProcInst:
			m, ok := parseMarker(ev)
			if !ok {
				continue
			}
			switch m.role {
			case roleLead:
				depth++
			case roleTail:
				if depth == 0 {
					return d.blockText(name)
				}
				depth--
			}
		case xmlevent.Declaration, xmlevent.EOF:
			if ev.Kind == xmlevent.Declaration {
				d.unread(ev)
			}
			return "", d.structural("unterminated text block %q", name)
		}
	}
}

// blockText drops the tail marker from the captured bytes.
func (d *Decoder) blockText(name string) (string, error) {
	raw := d.scratch.Bytes()
	if i := bytes.LastIndex(raw, []byte("<?")); i >= 0 {
		raw = raw[:i]
	}
	if !utf8.Valid(raw) {
		return "", d.structural("text block %q is not valid UTF-8", name)
	}
	text := string(raw)
	d.scratch.Reset()
	return text, nil
}
