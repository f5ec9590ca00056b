package xmlevent

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

const defaultBufferSize = 64 * 1024

// LexicalError reports bytes the tokenizer could not make sense of.
type LexicalError struct {
	Offset int64
	Err    error
}

func (e *LexicalError) Error() string {
	return fmt.Sprintf("malformed xml at byte %d: %v", e.Offset, e.Err)
}

func (e *LexicalError) Unwrap() error { return e.Err }

// Option configures a Source.
type Option func(*options)

type options struct {
	charset    string
	bufferSize int
}

// WithCharset declares the character set of the input. Anything other than
// UTF-8 is transcoded to UTF-8 before tokenizing.
func WithCharset(label string) Option {
	return func(o *options) {
		o.charset = label
	}
}

// WithBufferSize sets the size of the read buffer.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// Source yields lexical events from a byte stream. It never seeks backwards.
type Source struct {
	cur *cursor
	dec *xml.Decoder
}

// NewSource wraps r. The reader is consumed lazily, one event at a time.
func NewSource(r io.Reader, opts ...Option) (*Source, error) {
	o := options{bufferSize: defaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}

	if !isUTF8(o.charset) {
		enc, err := ianaindex.IANA.Encoding(o.charset)
		if err != nil {
			return nil, fmt.Errorf("lookup charset %q: %w", o.charset, err)
		}
		if enc == nil {
			return nil, fmt.Errorf("charset %q has no decoder", o.charset)
		}
		r = transform.NewReader(r, enc.NewDecoder())
	}

	cur := &cursor{r: bufio.NewReaderSize(r, o.bufferSize)}
	dec := xml.NewDecoder(cur)
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	// Every record repeats its declaration. The bytes reaching the decoder
	// are UTF-8 already, so the declared label is not acted upon.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	return &Source{cur: cur, dec: dec}, nil
}

func isUTF8(label string) bool {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// Next returns the next event. End of input is reported as an EOF event with
// a nil error. Comments and directives other than DOCTYPE are not reported.
func (s *Source) Next() (Event, error) {
	for {
		tok, err := s.dec.RawToken()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Event{Kind: EOF}, nil
			}
			return Event{}, &LexicalError{Offset: s.dec.InputOffset(), Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			return Event{Kind: StartElement, Name: qualified(t.Name)}, nil
		case xml.EndElement:
			return Event{Kind: EndElement, Name: qualified(t.Name)}, nil
		case xml.CharData:
			return Event{Kind: Text, Data: string(t)}, nil
		case xml.ProcInst:
			if t.Target == "xml" {
				return Event{Kind: Declaration, Data: string(t.Inst)}, nil
			}
			return Event{Kind: ProcInst, Name: t.Target, Data: string(t.Inst)}, nil
		case xml.Directive:
			if body, ok := bytes.CutPrefix(t, []byte("DOCTYPE")); ok {
				return Event{Kind: DocType, Data: strings.TrimSpace(string(body))}, nil
			}
		}
	}
}

// Capture starts copying every byte the source consumes into buf. A nil buf
// stops capturing.
func (s *Source) Capture(buf *bytes.Buffer) {
	s.cur.capture = buf
}

// Offset is the number of bytes consumed from the underlying reader.
func (s *Source) Offset() int64 {
	return s.cur.offset
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// cursor is the byte reader handed to encoding/xml. The decoder reads
// through ReadByte one byte at a time, so the capture buffer sees exactly the
// bytes that have been tokenized.
type cursor struct {
	r       *bufio.Reader
	capture *bytes.Buffer
	offset  int64
}

func (c *cursor) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err != nil {
		return b, err
	}
	c.offset++
	if c.capture != nil {
		c.capture.WriteByte(b)
	}
	return b, nil
}

func (c *cursor) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.offset += int64(n)
	if c.capture != nil {
		c.capture.Write(p[:n])
	}
	return n, err
}
