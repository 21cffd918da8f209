package contentstore

import (
	"net/url"
	"regexp"
	"time"
)

// valueRule checks one aspect of a value against the constraints of its slot.
// Rules receive constraints already checked to be the variant of the element type.
type valueRule func(value ElementValue, constraints ElementConstraints) []*ValidationError

// valueRules is the ordered rule table per element type.
var valueRules = map[ElementType][]valueRule{
	ElementTypePlainText:     {plainTextRule},
	ElementTypeFasComment:    {plainTextRule},
	ElementTypeFormattedText: {formattedTextRule},
	ElementTypeLink:          {linkRule, plainTextRule},
	ElementTypeVideoLink:     {linkRule, plainTextRule},
	ElementTypeBitmapImage:   {binaryRule},
	ElementTypeVectorImage:   {binaryRule},
	ElementTypeArticle:       {binaryRule},
	ElementTypeDate:          {dateRule},
	ElementTypePhone:         {restrictedSymbolsRule},
	ElementTypeColor:         {colorRule},
}

// Validate checks a value against the constraints of its element slot and
// returns every violated rule. An empty result means the value is valid.
func Validate(elementType ElementType, value ElementValue, constraints ElementConstraints) []*ValidationError {
	rules, ok := valueRules[elementType]
	if !ok {
		return []*ValidationError{newValidationError(ErrKindUnknownElementType, "unknown element type %q", string(elementType))}
	}
	if err := checkConstraintsType(elementType, constraints); err != nil {
		return []*ValidationError{newValidationError(ErrKindConstraintsTypeMismatch, "%s", err.Error())}
	}
	if !valueMatchesType(elementType, value) {
		return []*ValidationError{newValidationError(ErrKindValueTypeMismatch, "value %T does not match element type %q", value, string(elementType))}
	}

	var errs []*ValidationError
	for _, rule := range rules {
		errs = append(errs, rule(value, constraints)...)
	}
	return errs
}

func valueMatchesType(t ElementType, value ElementValue) bool {
	switch value.(type) {
	case *TextElementValue:
		return !t.IsBinary()
	case *BinaryElementValue:
		return t.IsBinary()
	default:
		return false
	}
}

func plainTextRule(value ElementValue, constraints ElementConstraints) []*ValidationError {
	text := value.(*TextElementValue).Raw
	return checkText(text, constraints.(*TextElementConstraints))
}

func formattedTextRule(value ElementValue, constraints ElementConstraints) []*ValidationError {
	raw := value.(*TextElementValue).Raw
	visible, htmlErrs := checkFormattedHTML(raw)
	errs := checkText(visible, constraints.(*TextElementConstraints))
	return append(errs, htmlErrs...)
}

func restrictedSymbolsRule(value ElementValue, _ ElementConstraints) []*ValidationError {
	if err := checkRestrictedSymbols(value.(*TextElementValue).Raw); err != nil {
		return []*ValidationError{err}
	}
	return nil
}

func linkRule(value ElementValue, _ ElementConstraints) []*ValidationError {
	raw := value.(*TextElementValue).Raw
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []*ValidationError{newValidationError(ErrKindIncorrectLink, "%q is not a valid absolute http(s) url", raw)}
	}
	return nil
}

func binaryRule(value ElementValue, _ ElementConstraints) []*ValidationError {
	v := value.(*BinaryElementValue)
	if v.Raw != "" && v.Filename == "" {
		return []*ValidationError{newValidationError(ErrKindBinaryFilenameMissing, "filename is required for file %q", v.Raw)}
	}
	return nil
}

var dateLayouts = []string{time.RFC3339, time.DateOnly}

func dateRule(value ElementValue, _ ElementConstraints) []*ValidationError {
	raw := value.(*TextElementValue).Raw
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, raw); err == nil {
			return nil
		}
	}
	return []*ValidationError{newValidationError(ErrKindInvalidDate, "%q is not a valid date", raw)}
}

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

func colorRule(value ElementValue, _ ElementConstraints) []*ValidationError {
	raw := value.(*TextElementValue).Raw
	if raw == "" || colorPattern.MatchString(raw) {
		return nil
	}
	return []*ValidationError{newValidationError(ErrKindInvalidColor, "%q is not a #RRGGBB color", raw)}
}

// ValidateElement validates one object element for the given language.
// It returns nil when the element is valid.
func ValidateElement(element *ObjectElementDescriptor, lang Language) *ElementValidationResult {
	var errs []*ValidationError
	constraints, ok := element.Constraints.For(lang)
	if !ok {
		errs = []*ValidationError{newValidationError(ErrKindConstraintsMissing, "no constraints for language %q", string(lang))}
	} else {
		errs = Validate(element.Type, element.Value, constraints)
	}
	if len(errs) == 0 {
		return nil
	}
	return &ElementValidationResult{
		ElementID:    element.ID,
		TemplateCode: element.TemplateCode,
		Errors:       errs,
	}
}
