// Package xmldoc decodes XML documents into nested maps so that feeds whose
// shape varies between a single element and a repeated one can be walked
// without declaring a struct per variant.
package xmldoc

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

// ErrEmptyDocument is returned when the input holds no root element.
var ErrEmptyDocument = errors.New("xml document has no root element")

// Document maps the root element's name to its decoded value.
type Document map[string]any

var (
	intPattern   = regexp.MustCompile(`^-?(0|[1-9][0-9]*)$`)
	floatPattern = regexp.MustCompile(`^-?(0|[1-9][0-9]*)\.[0-9]+$`)
)

// Decode reads one XML document from r.
//
// Attributes are ignored. An element with child elements becomes a
// map[string]any keyed by child name; siblings sharing a name collapse into
// a []any in document order. Leaf elements become int64, float64 or string
// depending on their trimmed text. Non UTF-8 encodings declared in the XML
// prolog (ISO-8859-1 is common) are transcoded.
func Decode(r io.Reader) (Document, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyDocument
		}
		if err != nil {
			return nil, fmt.Errorf("reading xml token: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		v, err := decodeElement(dec)
		if err != nil {
			return nil, fmt.Errorf("decoding <%s>: %w", start.Name.Local, err)
		}
		return Document{start.Name.Local: v}, nil
	}
}

// decodeElement consumes tokens up to and including the end of the element
// whose start token was just read.
func decodeElement(dec *xml.Decoder) (any, error) {
	var (
		children map[string]any
		text     strings.Builder
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			v, err := decodeElement(dec)
			if err != nil {
				return nil, err
			}
			if children == nil {
				children = make(map[string]any)
			}
			addChild(children, t.Name.Local, v)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			// Mixed content keeps only the children.
			if children != nil {
				return children, nil
			}
			return coerce(strings.TrimSpace(text.String())), nil
		}
	}
}

func addChild(children map[string]any, name string, v any) {
	existing, ok := children[name]
	if !ok {
		children[name] = v
		return
	}
	// Leaves are never lists, so an existing []any was built from siblings.
	if list, ok := existing.([]any); ok {
		children[name] = append(list, v)
		return
	}
	children[name] = []any{existing, v}
}

func coerce(s string) any {
	switch {
	case intPattern.MatchString(s):
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case floatPattern.MatchString(s):
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}
