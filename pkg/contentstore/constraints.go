package contentstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// ElementConstraints is the closed set of per-type constraint variants:
// *TextElementConstraints, *BinaryElementConstraints,
// *BitmapImageElementConstraints and *PlainElementConstraints.
type ElementConstraints interface {
	isElementConstraints()
}

// TextElementConstraints limit textual values (plain, formatted, comment and link types).
type TextElementConstraints struct {
	MaxSymbols        *int `json:"maxSymbols,omitempty"`
	MaxSymbolsPerWord *int `json:"maxSymbolsPerWord,omitempty"`
	MaxLines          *int `json:"maxLines,omitempty"`
	IsFormatted       bool `json:"isFormatted,omitempty"`
}

// BinaryElementConstraints limit uploaded files (vector images and articles).
type BinaryElementConstraints struct {
	MaxFilenameLength    *int         `json:"maxFilenameLength,omitempty"`
	MaxSize              *int64       `json:"maxSize,omitempty"`
	SupportedFileFormats []FileFormat `json:"supportedFileFormats,omitempty"`
}

// BitmapImageElementConstraints add pixel-level limits to binary constraints.
type BitmapImageElementConstraints struct {
	BinaryElementConstraints
	SupportedImageSizes    []ImageSize `json:"supportedImageSizes,omitempty"`
	IsAlphaChannelRequired bool        `json:"isAlphaChannelRequired,omitempty"`
}

// PlainElementConstraints carry no limits (date, phone and color).
type PlainElementConstraints struct{}

func (*TextElementConstraints) isElementConstraints()        {}
func (*BinaryElementConstraints) isElementConstraints()      {}
func (*BitmapImageElementConstraints) isElementConstraints() {}
func (*PlainElementConstraints) isElementConstraints()       {}

// binaryConstraintsOf returns the file-level limits shared by every binary variant.
func binaryConstraintsOf(c ElementConstraints) (*BinaryElementConstraints, bool) {
	switch v := c.(type) {
	case *BinaryElementConstraints:
		return v, true
	case *BitmapImageElementConstraints:
		return &v.BinaryElementConstraints, true
	default:
		return nil, false
	}
}

// newConstraints allocates the constraint variant expected for t.
func newConstraints(t ElementType) (ElementConstraints, error) {
	k, err := t.kind()
	if err != nil {
		return nil, err
	}
	switch k {
	case kindText:
		return &TextElementConstraints{}, nil
	case kindBinary:
		return &BinaryElementConstraints{}, nil
	case kindBitmap:
		return &BitmapImageElementConstraints{}, nil
	case kindPlain:
		return &PlainElementConstraints{}, nil
	}
	return nil, fmt.Errorf("no constraints for element type %q", string(t))
}

// checkConstraintsType verifies that c is the variant expected for t.
func checkConstraintsType(t ElementType, c ElementConstraints) error {
	expected, err := newConstraints(t)
	if err != nil {
		return err
	}
	if c == nil || reflect.TypeOf(c) != reflect.TypeOf(expected) {
		return fmt.Errorf("constraints %T do not match element type %q", c, string(t))
	}
	return nil
}

// ConstraintSet holds the constraints of one element slot per language.
type ConstraintSet map[Language]ElementConstraints

// For returns the constraints for lang, falling back to LanguageUnspecified.
func (s ConstraintSet) For(lang Language) (ElementConstraints, bool) {
	if c, ok := s[lang]; ok && c != nil {
		return c, true
	}
	c, ok := s[LanguageUnspecified]
	return c, ok && c != nil
}

// Equal reports whether both sets hold the same constraints for the same languages.
// Constraints are compared by their JSON form so nil and empty lists are equal.
func (s ConstraintSet) Equal(other ConstraintSet) bool {
	if len(s) != len(other) {
		return false
	}
	for lang, c := range s {
		o, ok := other[lang]
		if !ok || reflect.TypeOf(c) != reflect.TypeOf(o) {
			return false
		}
		a, errA := json.Marshal(c)
		b, errB := json.Marshal(o)
		if errA != nil || errB != nil || !bytes.Equal(a, b) {
			return false
		}
	}
	return true
}

// decodeConstraintSet decodes raw JSON into the variant required by t.
func decodeConstraintSet(t ElementType, raw json.RawMessage) (ConstraintSet, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return ConstraintSet{}, nil
	}
	var byLang map[Language]json.RawMessage
	if err := json.Unmarshal(raw, &byLang); err != nil {
		return nil, fmt.Errorf("decode constraints: %w", err)
	}
	set := make(ConstraintSet, len(byLang))
	for lang, data := range byLang {
		c, err := newConstraints(t)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("decode constraints for language %q: %w", string(lang), err)
		}
		set[lang] = c
	}
	return set, nil
}
