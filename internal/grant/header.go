package grant

import (
	"io"

	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/xmlevent"
)

type headerState uint8

const (
	awaitingDeclaration headerState = iota
	awaitingDocType
)

// scanHeader consumes the declaration and doctype opening a record. It
// returns io.EOF when the stream ends where a record could have started.
func (d *Decoder) scanHeader() error {
	state := d.header
	d.header = awaitingDeclaration

	for {
		ev, err := d.next()
		if err != nil {
			return err
		}
		switch state {
		case awaitingDeclaration:
			switch ev.Kind {
			case xmlevent.EOF:
				return io.EOF
			case xmlevent.Declaration:
				state = awaitingDocType
			default:
				return d.headerError("expected declaration at head of record, found %s", ev)
			}
		case awaitingDocType:
			switch ev.Kind {
			case xmlevent.DocType:
				return nil
			case xmlevent.Declaration:
				// the record was only a declaration; keep the next one
				d.unread(ev)
			}
			return d.headerError("expected doctype at head of record, found %s", ev)
		}
	}
}
