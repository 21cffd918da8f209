package contentstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func kinds(errs []*ValidationError) []ValidationErrorKind {
	out := make([]ValidationErrorKind, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Kind)
	}
	return out
}

func TestValidate_Text(t *testing.T) {
	c := &TextElementConstraints{MaxSymbols: intPtr(10), MaxSymbolsPerWord: intPtr(5), MaxLines: intPtr(2)}

	t.Run("Valid", func(t *testing.T) {
		assert.Empty(t, Validate(ElementTypePlainText, &TextElementValue{Raw: "one two"}, c))
	})

	t.Run("Every violated rule is reported", func(t *testing.T) {
		errs := Validate(ElementTypePlainText, &TextElementValue{Raw: "abcdefgh\nb\nc"}, c)
		assert.Equal(t, []ValidationErrorKind{
			ErrKindElementTextTooLong,
			ErrKindElementWordsTooLong,
			ErrKindElementTooManyLines,
		}, kinds(errs))
		assert.Equal(t, 10, errs[0].Limit)
		assert.Equal(t, []string{"abcdefgh"}, errs[1].Details)
	})

	t.Run("Restricted symbols", func(t *testing.T) {
		errs := Validate(ElementTypePlainText, &TextElementValue{Raw: "a\u00a0b\u00a0c\u00ad"}, &TextElementConstraints{})
		require.Len(t, errs, 1)
		assert.Equal(t, ErrKindRestrictedSymbols, errs[0].Kind)
		assert.Equal(t, []string{"U+00A0", "U+00AD"}, errs[0].Details)
	})

	t.Run("Non-breaking space does not split words", func(t *testing.T) {
		errs := Validate(ElementTypePlainText, &TextElementValue{Raw: "abc\u00a0def"}, &TextElementConstraints{MaxSymbolsPerWord: intPtr(5)})
		assert.Contains(t, kinds(errs), ErrKindElementWordsTooLong)
	})

	t.Run("Phone only checks restricted symbols", func(t *testing.T) {
		assert.Empty(t, Validate(ElementTypePhone, &TextElementValue{Raw: "+1 555 0100"}, &PlainElementConstraints{}))
		errs := Validate(ElementTypePhone, &TextElementValue{Raw: "+1\u2060555"}, &PlainElementConstraints{})
		assert.Equal(t, []ValidationErrorKind{ErrKindRestrictedSymbols}, kinds(errs))
	})
}

func TestValidate_FormattedText(t *testing.T) {
	c := &TextElementConstraints{IsFormatted: true, MaxSymbols: intPtr(30)}

	tests := []struct {
		name     string
		raw      string
		expected []ValidationErrorKind
	}{
		{"Valid markup", "<p><b>bold</b> and <i>italic</i></p><ul><li>one</li><li>two</li></ul>", nil},
		{"Nested list", "<ul><li>a<ul><li>b</li></ul></li></ul>", []ValidationErrorKind{ErrKindNestedList}},
		{"Empty list", "<ul></ul>", []ValidationErrorKind{ErrKindEmptyList}},
		{"Text directly in list", "<ol>x<li>a</li></ol>", []ValidationErrorKind{ErrKindUnsupportedListElements}},
		{"Unsupported tag", "<p><span>a</span></p>", []ValidationErrorKind{ErrKindUnsupportedTags}},
		{"Attributes", `<p class="x">a</p>`, []ValidationErrorKind{ErrKindUnsupportedAttributes}},
		{"Not well-formed", "<p><b>a</p></b>", []ValidationErrorKind{ErrKindInvalidHTML}},
		{"Visible text is counted", "<p><b>" + strings.Repeat("a", 30) + "</b></p>", []ValidationErrorKind{ErrKindElementTextTooLong}},
		{"Markup is not counted", "<p><b><i><u>" + strings.Repeat("a", 20) + "</u></i></b></p>", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(ElementTypeFormattedText, &TextElementValue{Raw: tt.raw}, c)
			if tt.expected == nil {
				assert.Empty(t, errs)
				return
			}
			assert.Equal(t, tt.expected, kinds(errs))
		})
	}
}

func TestValidate_PlainTypes(t *testing.T) {
	text := &TextElementConstraints{}
	plain := &PlainElementConstraints{}

	assert.Empty(t, Validate(ElementTypeLink, &TextElementValue{Raw: "https://example.com/a"}, text))
	assert.Equal(t, []ValidationErrorKind{ErrKindIncorrectLink}, kinds(Validate(ElementTypeLink, &TextElementValue{Raw: "example.com"}, text)))
	assert.Equal(t, []ValidationErrorKind{ErrKindIncorrectLink}, kinds(Validate(ElementTypeVideoLink, &TextElementValue{Raw: "ftp://host/v"}, text)))

	assert.Empty(t, Validate(ElementTypeDate, &TextElementValue{Raw: "2024-02-29"}, plain))
	assert.Empty(t, Validate(ElementTypeDate, &TextElementValue{Raw: "2024-02-29T10:00:00Z"}, plain))
	assert.Equal(t, []ValidationErrorKind{ErrKindInvalidDate}, kinds(Validate(ElementTypeDate, &TextElementValue{Raw: "2023-02-29"}, plain)))

	assert.Empty(t, Validate(ElementTypeColor, &TextElementValue{Raw: "#A0b1C2"}, plain))
	assert.Equal(t, []ValidationErrorKind{ErrKindInvalidColor}, kinds(Validate(ElementTypeColor, &TextElementValue{Raw: "red"}, plain)))
}

func TestValidate_Binary(t *testing.T) {
	c := &BinaryElementConstraints{SupportedFileFormats: []FileFormat{FileFormatSvg}}

	assert.Empty(t, Validate(ElementTypeVectorImage, &BinaryElementValue{}, c))
	assert.Empty(t, Validate(ElementTypeVectorImage, &BinaryElementValue{Raw: "abc.svg", Filename: "logo.svg"}, c))
	assert.Equal(t, []ValidationErrorKind{ErrKindBinaryFilenameMissing},
		kinds(Validate(ElementTypeVectorImage, &BinaryElementValue{Raw: "abc.svg"}, c)))
}

func TestValidate_Mismatches(t *testing.T) {
	assert.Equal(t, []ValidationErrorKind{ErrKindUnknownElementType},
		kinds(Validate("sticker", &TextElementValue{}, &PlainElementConstraints{})))
	assert.Equal(t, []ValidationErrorKind{ErrKindConstraintsTypeMismatch},
		kinds(Validate(ElementTypePlainText, &TextElementValue{}, &PlainElementConstraints{})))
	assert.Equal(t, []ValidationErrorKind{ErrKindValueTypeMismatch},
		kinds(Validate(ElementTypePlainText, &BinaryElementValue{}, &TextElementConstraints{})))
}

func TestValidateElement(t *testing.T) {
	element := &ObjectElementDescriptor{
		ID:           7,
		TemplateCode: 3,
		Type:         ElementTypePlainText,
		Constraints: ConstraintSet{
			LanguageUnspecified: &TextElementConstraints{MaxSymbols: intPtr(3)},
			"fr":                &TextElementConstraints{MaxSymbols: intPtr(10)},
		},
		Value: &TextElementValue{Raw: "bonjour"},
	}

	assert.Nil(t, ValidateElement(element, "fr"))

	result := ValidateElement(element, "en")
	require.NotNil(t, result)
	assert.Equal(t, int64(7), result.ElementID)
	assert.Equal(t, int32(3), result.TemplateCode)
	assert.Equal(t, []ValidationErrorKind{ErrKindElementTextTooLong}, kinds(result.Errors))

	element.Constraints = ConstraintSet{"fr": &TextElementConstraints{}}
	result = ValidateElement(element, "en")
	require.NotNil(t, result)
	assert.Equal(t, []ValidationErrorKind{ErrKindConstraintsMissing}, kinds(result.Errors))
}

func TestValidateTemplateElements(t *testing.T) {
	bitmap := func(formats []FileFormat, sizes []ImageSize) ConstraintSet {
		return ConstraintSet{LanguageUnspecified: &BitmapImageElementConstraints{
			BinaryElementConstraints: BinaryElementConstraints{SupportedFileFormats: formats},
			SupportedImageSizes:      sizes,
		}}
	}

	t.Run("Valid", func(t *testing.T) {
		results := ValidateTemplateElements([]ElementDescriptor{
			{Type: ElementTypePlainText, TemplateCode: 1, Constraints: ConstraintSet{"en": &TextElementConstraints{MaxSymbols: intPtr(10)}}},
			{Type: ElementTypeFormattedText, TemplateCode: 2, Constraints: ConstraintSet{"en": &TextElementConstraints{IsFormatted: true}}},
			{Type: ElementTypeBitmapImage, TemplateCode: 3, Constraints: bitmap([]FileFormat{FileFormatPng}, []ImageSize{{Width: 10, Height: 10}})},
			{Type: ElementTypeColor, TemplateCode: 4, Constraints: ConstraintSet{LanguageUnspecified: &PlainElementConstraints{}}},
		})
		assert.Empty(t, results)
	})

	t.Run("Violations", func(t *testing.T) {
		results := ValidateTemplateElements([]ElementDescriptor{
			{Type: ElementTypePlainText, TemplateCode: 1, Constraints: ConstraintSet{"en": &TextElementConstraints{MaxSymbols: intPtr(3), MaxSymbolsPerWord: intPtr(5), IsFormatted: true}}},
			{Type: ElementTypeFormattedText, TemplateCode: 1, Constraints: ConstraintSet{"en": &TextElementConstraints{MaxLines: intPtr(0)}}},
			{Type: ElementTypeBitmapImage, TemplateCode: 3, Constraints: bitmap([]FileFormat{FileFormatSvg}, nil)},
			{Type: ElementTypeArticle, TemplateCode: 4},
			{Type: ElementTypeDate, TemplateCode: 5, Constraints: ConstraintSet{"en": &TextElementConstraints{}}},
		})
		require.Len(t, results, 5)
		assert.Equal(t, []ValidationErrorKind{ErrKindMaxSymbolsLessThanPerWord, ErrKindFormattedNotAllowed}, kinds(results[0].Errors))
		assert.Equal(t, []ValidationErrorKind{ErrKindDuplicateTemplateCode, ErrKindNonPositiveLimit, ErrKindFormattedRequired}, kinds(results[1].Errors))
		assert.Equal(t, []ValidationErrorKind{ErrKindUnsupportedFileFormat, ErrKindEmptyImageSizes}, kinds(results[2].Errors))
		assert.Equal(t, []ValidationErrorKind{ErrKindConstraintsMissing}, kinds(results[3].Errors))
		assert.Equal(t, []ValidationErrorKind{ErrKindConstraintsTypeMismatch}, kinds(results[4].Errors))
	})
}
