package contentstore

import (
	"encoding/json"
	"fmt"
)

// ElementValue is the closed set of element value variants:
// *TextElementValue and *BinaryElementValue.
type ElementValue interface {
	isElementValue()
	// IsEmpty reports whether the value carries no content.
	IsEmpty() bool
}

// TextElementValue holds textual content; dates, links, phones and colors use it too.
type TextElementValue struct {
	Raw string `json:"raw"`
}

// BinaryElementValue references a finalized upload by its content key.
// Filename and Filesize are filled from the upload's stored metadata on commit.
type BinaryElementValue struct {
	Raw         string `json:"raw"`
	Filename    string `json:"filename,omitempty"`
	Filesize    int64  `json:"filesize,omitempty"`
	DownloadURI string `json:"downloadUri,omitempty"`
}

func (*TextElementValue) isElementValue()   {}
func (*BinaryElementValue) isElementValue() {}

func (v *TextElementValue) IsEmpty() bool   { return v == nil || v.Raw == "" }
func (v *BinaryElementValue) IsEmpty() bool { return v == nil || v.Raw == "" }

// newValue allocates the value variant expected for t.
func newValue(t ElementType) (ElementValue, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown element type %q", string(t))
	}
	if t.IsBinary() {
		return &BinaryElementValue{}, nil
	}
	return &TextElementValue{}, nil
}

func decodeValue(t ElementType, raw json.RawMessage) (ElementValue, error) {
	v, err := newValue(t)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

// valueContentEqual compares values ignoring fields derived on read.
func valueContentEqual(a, b ElementValue) bool {
	switch av := a.(type) {
	case *TextElementValue:
		bv, ok := b.(*TextElementValue)
		return ok && av.Raw == bv.Raw
	case *BinaryElementValue:
		bv, ok := b.(*BinaryElementValue)
		return ok && av.Raw == bv.Raw && av.Filename == bv.Filename && av.Filesize == bv.Filesize
	default:
		return a == nil && b == nil
	}
}
