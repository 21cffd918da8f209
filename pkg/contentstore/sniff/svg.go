package sniff

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func newXMLDecoder(r io.Reader) *xml.Decoder {
	d := xml.NewDecoder(r)
	d.Entity = xml.HTMLEntity
	return d
}

// rootElement returns the name of the first element of an XML stream.
func rootElement(d *xml.Decoder) (string, error) {
	for {
		tok, err := d.Token()
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

// CheckSVGHeader rejects a first chunk that cannot start an SVG document.
// A chunk that ends before the root element is accepted.
func CheckSVGHeader(header []byte) error {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(header, utf8BOM), " \t\r\n")
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] != '<' {
		return ErrNotSVG
	}
	name, err := rootElement(newXMLDecoder(bytes.NewReader(trimmed)))
	if err != nil {
		var syntaxErr *xml.SyntaxError
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
			(errors.As(err, &syntaxErr) && syntaxErr.Msg == "unexpected EOF") {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrNotSVG, err)
	}
	if name != "svg" {
		return fmt.Errorf("%w: root element is %q", ErrNotSVG, name)
	}
	return nil
}

// InspectSVG parses the whole document and requires an svg root element.
func InspectSVG(r io.Reader) error {
	d := newXMLDecoder(r)
	name, err := rootElement(d)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotSVG, err)
	}
	if name != "svg" {
		return fmt.Errorf("%w: root element is %q", ErrNotSVG, name)
	}
	for {
		if _, err := d.Token(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrNotSVG, err)
		}
	}
}
