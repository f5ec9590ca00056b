// Package xmlevent turns a byte stream of concatenated XML pseudo-documents
// into a forward-only sequence of lexical events.
package xmlevent

import "strings"

// Kind identifies a lexical event.
type Kind uint8

const (
	EOF Kind = iota
	Declaration
	DocType
	StartElement
	EndElement
	ProcInst
	Text
)

var kindNames = [...]string{
	EOF:          "end of input",
	Declaration:  "declaration",
	DocType:      "doctype",
	StartElement: "start element",
	EndElement:   "end element",
	ProcInst:     "processing instruction",
	Text:         "text",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Event is a single lexical event. Its fields are copies and stay valid
// after the next call to Source.Next.
//
//   - StartElement, EndElement: Name is the qualified element name.
//   - ProcInst: Name is the target, Data the instruction.
//   - Text: Data is the unescaped character data.
//   - Declaration, DocType: Data is the raw body.
type Event struct {
	Kind Kind
	Name string
	Data string
}

// Blank reports whether e is text made only of whitespace.
func (e Event) Blank() bool {
	return e.Kind == Text && strings.TrimSpace(e.Data) == ""
}

// IsStart reports whether e opens an element called name.
func (e Event) IsStart(name string) bool {
	return e.Kind == StartElement && e.Name == name
}

// IsEnd reports whether e closes an element called name.
func (e Event) IsEnd(name string) bool {
	return e.Kind == EndElement && e.Name == name
}

func (e Event) String() string {
	switch e.Kind {
	case StartElement:
		return "<" + e.Name + ">"
	case EndElement:
		return "</" + e.Name + ">"
	case ProcInst:
		return "<?" + e.Name + " " + e.Data + "?>"
	default:
		return e.Kind.String()
	}
}
