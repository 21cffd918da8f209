package contentstore

import (
	"encoding/json"
	"fmt"
)

// ValidationErrorKind names a single violated rule.
type ValidationErrorKind string

// Element value rules.
const (
	ErrKindElementTextTooLong       ValidationErrorKind = "elementTextTooLong"
	ErrKindElementWordsTooLong      ValidationErrorKind = "elementWordsTooLong"
	ErrKindElementTooManyLines      ValidationErrorKind = "elementTooManyLines"
	ErrKindRestrictedSymbols        ValidationErrorKind = "restrictedSymbolsInText"
	ErrKindInvalidHTML              ValidationErrorKind = "invalidHtml"
	ErrKindUnsupportedTags          ValidationErrorKind = "unsupportedTags"
	ErrKindUnsupportedAttributes    ValidationErrorKind = "unsupportedAttributes"
	ErrKindEmptyList                ValidationErrorKind = "emptyList"
	ErrKindNestedList               ValidationErrorKind = "nestedList"
	ErrKindUnsupportedListElements  ValidationErrorKind = "unsupportedListElements"
	ErrKindIncorrectLink            ValidationErrorKind = "incorrectLink"
	ErrKindBinaryFilenameMissing    ValidationErrorKind = "binaryFilenameMissing"
	ErrKindBinaryNotFound           ValidationErrorKind = "binaryNotFound"
	ErrKindInvalidDate              ValidationErrorKind = "invalidDate"
	ErrKindInvalidColor             ValidationErrorKind = "invalidColor"
	ErrKindConstraintsMissing       ValidationErrorKind = "constraintsMissing"
	ErrKindValueTypeMismatch        ValidationErrorKind = "valueTypeMismatch"
	ErrKindElementValidationFailure ValidationErrorKind = "elementValidationFailure"
)

// Binary upload rules.
const (
	ErrKindBinaryFilenameTooLong    ValidationErrorKind = "binaryFilenameTooLong"
	ErrKindBinaryTooLarge           ValidationErrorKind = "binaryTooLarge"
	ErrKindBinaryEmpty              ValidationErrorKind = "binaryEmpty"
	ErrKindBinaryInvalidFormat      ValidationErrorKind = "binaryInvalidFormat"
	ErrKindBinaryExtensionMismatch  ValidationErrorKind = "binaryExtensionMismatch"
	ErrKindImageUnsupportedSize     ValidationErrorKind = "imageUnsupportedSize"
	ErrKindImageMissingAlphaChannel ValidationErrorKind = "imageMissingAlphaChannel"
	ErrKindImageCorrupted           ValidationErrorKind = "imageCorrupted"
	ErrKindVectorImageInvalid       ValidationErrorKind = "vectorImageInvalid"
	ErrKindArticleIncorrect         ValidationErrorKind = "articleIncorrect"
)

// Template constraint rules.
const (
	ErrKindNonPositiveLimit          ValidationErrorKind = "nonPositiveLimit"
	ErrKindMaxSymbolsLessThanPerWord ValidationErrorKind = "maxSymbolsLessThanMaxSymbolsPerWord"
	ErrKindFormattedNotAllowed       ValidationErrorKind = "formattedFlagNotAllowed"
	ErrKindFormattedRequired         ValidationErrorKind = "formattedFlagRequired"
	ErrKindEmptyFileFormats          ValidationErrorKind = "emptyFileFormats"
	ErrKindUnsupportedFileFormat     ValidationErrorKind = "unsupportedFileFormat"
	ErrKindEmptyImageSizes           ValidationErrorKind = "emptyImageSizes"
	ErrKindInvalidImageSize          ValidationErrorKind = "invalidImageSize"
	ErrKindDuplicateTemplateCode     ValidationErrorKind = "duplicateTemplateCode"
	ErrKindUnknownElementType        ValidationErrorKind = "unknownElementType"
	ErrKindConstraintsTypeMismatch   ValidationErrorKind = "constraintsTypeMismatch"
)

// ValidationError is one violated rule with the values needed to explain it.
type ValidationError struct {
	Kind    ValidationErrorKind `json:"type"`
	Message string              `json:"message"`
	Limit   any                 `json:"limit,omitempty"`
	Details any                 `json:"details,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newValidationError(kind ValidationErrorKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) withLimit(limit any) *ValidationError {
	e.Limit = limit
	return e
}

func (e *ValidationError) withDetails(details any) *ValidationError {
	e.Details = details
	return e
}

// ElementValidationResult packages the failures of one element.
type ElementValidationResult struct {
	ElementID    int64              `json:"elementId"`
	TemplateCode int32              `json:"templateCode"`
	Errors       []*ValidationError `json:"errors"`
}

// MarshalJSON keeps the transport shape {elementId, templateCode, errors:[...]} stable.
func (r ElementValidationResult) MarshalJSON() ([]byte, error) {
	type plain ElementValidationResult
	if r.Errors == nil {
		r.Errors = []*ValidationError{}
	}
	return json.Marshal(plain(r))
}
