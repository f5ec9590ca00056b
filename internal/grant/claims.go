package grant

import "github.com/Qubut/IP-Claim/packages/grant_processor/internal/xmlevent"

// decodeClaims appends one entry per claim, in document order. It stops at
// the end of the claims element or, without error, at the first sibling that
// is not a claim; that sibling is left for the caller.
func (d *Decoder) decodeClaims(g *Grant) error {
	for {
		ev, err := d.next()
		if err != nil {
			return err
		}
		switch {
		case ev.IsEnd(tagClaims):
			return nil
		case ev.Kind == xmlevent.Text:
			continue
		case !ev.IsStart(tagClaim):
			d.unread(ev)
			return nil
		}

		inner, err := d.next()
		if err != nil {
			return err
		}
		if !inner.IsStart(tagClaimText) {
			d.unread(inner)
			return nil
		}
		text, err := d.readText(tagClaimText)
		if err != nil {
			return err
		}
		g.Claims = append(g.Claims, text)
		if err := d.skipElement(tagClaim); err != nil {
			return err
		}
	}
}
