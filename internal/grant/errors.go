package grant

import (
	"errors"
	"fmt"
)

var (
	// ErrHeader marks a record whose declaration or doctype is missing.
	ErrHeader = errors.New("invalid record header")
	// ErrStructure marks elements or markers out of place.
	ErrStructure = errors.New("unexpected record structure")
	// ErrLexical marks bytes the tokenizer rejected.
	ErrLexical = errors.New("malformed input")
)

// RecordError is returned for a record that could not be decoded. Kind is
// one of ErrHeader, ErrStructure or ErrLexical, so errors.Is works on it.
type RecordError struct {
	Kind   error
	Record int   // 1-based position of the record in the stream
	Offset int64 // bytes consumed when the error was detected
	Msg    string
	Err    error
}

func (e *RecordError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	return fmt.Sprintf("record %d (byte %d): %v: %s", e.Record, e.Offset, e.Kind, msg)
}

func (e *RecordError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func (d *Decoder) newError(kind error, err error, format string, args ...any) *RecordError {
	return &RecordError{
		Kind:   kind,
		Record: d.seq,
		Offset: d.src.Offset(),
		Msg:    fmt.Sprintf(format, args...),
		Err:    err,
	}
}

func (d *Decoder) headerError(format string, args ...any) error {
	return d.newError(ErrHeader, nil, format, args...)
}

func (d *Decoder) structural(format string, args ...any) error {
	return d.newError(ErrStructure, nil, format, args...)
}

func (d *Decoder) lexical(err error) error {
	return d.newError(ErrLexical, err, "tokenizer failed")
}
