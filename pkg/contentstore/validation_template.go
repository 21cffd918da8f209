package contentstore

import (
	"fmt"
	"sort"
)

// constraintRule checks template-authoring sanity of one constraint variant.
type constraintRule func(elementType ElementType, constraints ElementConstraints) []*ValidationError

var constraintRules = map[constraintKind][]constraintRule{
	kindText:   {textLimitsRule, formattedFlagRule},
	kindBinary: {binaryLimitsRule, fileFormatsRule},
	kindBitmap: {binaryLimitsRule, fileFormatsRule, imageSizesRule},
	kindPlain:  nil,
}

// ValidateTemplateElements checks the element slots of a template descriptor:
// known types, unique template codes and sane constraints for every language.
func ValidateTemplateElements(elements []ElementDescriptor) []ElementValidationResult {
	var results []ElementValidationResult
	seen := make(map[int32]bool, len(elements))
	for i := range elements {
		e := &elements[i]
		var errs []*ValidationError
		if seen[e.TemplateCode] {
			errs = append(errs, newValidationError(ErrKindDuplicateTemplateCode, "template code %d is used more than once", e.TemplateCode))
		}
		seen[e.TemplateCode] = true
		errs = append(errs, validateElementConstraints(e)...)
		if len(errs) > 0 {
			results = append(results, ElementValidationResult{TemplateCode: e.TemplateCode, Errors: errs})
		}
	}
	return results
}

func validateElementConstraints(e *ElementDescriptor) []*ValidationError {
	kind, err := e.Type.kind()
	if err != nil {
		return []*ValidationError{newValidationError(ErrKindUnknownElementType, "%s", err.Error())}
	}
	if len(e.Constraints) == 0 {
		return []*ValidationError{newValidationError(ErrKindConstraintsMissing, "element must define constraints for at least one language")}
	}

	// deterministic order for stable error lists
	langs := make([]string, 0, len(e.Constraints))
	for lang := range e.Constraints {
		langs = append(langs, string(lang))
	}
	sort.Strings(langs)

	var errs []*ValidationError
	for _, lang := range langs {
		c := e.Constraints[Language(lang)]
		if err := checkConstraintsType(e.Type, c); err != nil {
			errs = append(errs, newValidationError(ErrKindConstraintsTypeMismatch, "language %q: %s", lang, err.Error()))
			continue
		}
		for _, rule := range constraintRules[kind] {
			for _, ve := range rule(e.Type, c) {
				ve.Message = fmt.Sprintf("language %q: %s", lang, ve.Message)
				errs = append(errs, ve)
			}
		}
	}
	return errs
}

func positiveLimit(name string, value *int) *ValidationError {
	if value != nil && *value <= 0 {
		return newValidationError(ErrKindNonPositiveLimit, "%s must be positive, got %d", name, *value)
	}
	return nil
}

func textLimitsRule(_ ElementType, constraints ElementConstraints) []*ValidationError {
	c := constraints.(*TextElementConstraints)
	var errs []*ValidationError
	for _, check := range []struct {
		name  string
		value *int
	}{
		{"maxSymbols", c.MaxSymbols},
		{"maxSymbolsPerWord", c.MaxSymbolsPerWord},
		{"maxLines", c.MaxLines},
	} {
		if err := positiveLimit(check.name, check.value); err != nil {
			errs = append(errs, err)
		}
	}
	if c.MaxSymbols != nil && c.MaxSymbolsPerWord != nil && *c.MaxSymbols < *c.MaxSymbolsPerWord {
		errs = append(errs, newValidationError(ErrKindMaxSymbolsLessThanPerWord,
			"maxSymbols (%d) must not be less than maxSymbolsPerWord (%d)", *c.MaxSymbols, *c.MaxSymbolsPerWord))
	}
	return errs
}

func formattedFlagRule(t ElementType, constraints ElementConstraints) []*ValidationError {
	c := constraints.(*TextElementConstraints)
	switch {
	case c.IsFormatted && t != ElementTypeFormattedText:
		return []*ValidationError{newValidationError(ErrKindFormattedNotAllowed, "only %s elements may be formatted", ElementTypeFormattedText)}
	case !c.IsFormatted && t == ElementTypeFormattedText:
		return []*ValidationError{newValidationError(ErrKindFormattedRequired, "%s elements must set isFormatted", ElementTypeFormattedText)}
	}
	return nil
}

func binaryLimitsRule(_ ElementType, constraints ElementConstraints) []*ValidationError {
	c, _ := binaryConstraintsOf(constraints)
	var errs []*ValidationError
	if err := positiveLimit("maxFilenameLength", c.MaxFilenameLength); err != nil {
		errs = append(errs, err)
	}
	if c.MaxSize != nil && *c.MaxSize <= 0 {
		errs = append(errs, newValidationError(ErrKindNonPositiveLimit, "maxSize must be positive, got %d", *c.MaxSize))
	}
	return errs
}

func fileFormatsRule(t ElementType, constraints ElementConstraints) []*ValidationError {
	c, _ := binaryConstraintsOf(constraints)
	if len(c.SupportedFileFormats) == 0 {
		return []*ValidationError{newValidationError(ErrKindEmptyFileFormats, "supportedFileFormats must not be empty")}
	}
	allowed := make(map[FileFormat]bool)
	for _, f := range AllowedFileFormats(t) {
		allowed[f] = true
	}
	var unsupported []FileFormat
	for _, f := range c.SupportedFileFormats {
		if !allowed[f] {
			unsupported = append(unsupported, f)
		}
	}
	if len(unsupported) > 0 {
		return []*ValidationError{newValidationError(ErrKindUnsupportedFileFormat,
			"file formats %v are not allowed for %s", unsupported, t).withDetails(unsupported)}
	}
	return nil
}

func imageSizesRule(_ ElementType, constraints ElementConstraints) []*ValidationError {
	c := constraints.(*BitmapImageElementConstraints)
	if len(c.SupportedImageSizes) == 0 {
		return []*ValidationError{newValidationError(ErrKindEmptyImageSizes, "supportedImageSizes must not be empty")}
	}
	var errs []*ValidationError
	seen := make(map[ImageSize]bool)
	for _, size := range c.SupportedImageSizes {
		if size.Width <= 0 || size.Height <= 0 {
			errs = append(errs, newValidationError(ErrKindInvalidImageSize, "image size %s must be positive", size))
			continue
		}
		if seen[size] {
			errs = append(errs, newValidationError(ErrKindInvalidImageSize, "image size %s is listed more than once", size))
		}
		seen[size] = true
	}
	return errs
}
