package contentstore

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// restrictedSymbols are invisible separators that break layout on rendering.
var restrictedSymbols = map[rune]bool{
	'\u00A0': true,
	'\u00AD': true,
	'\u2007': true,
	'\u202F': true,
	'\u2060': true,
	'\uFEFF': true,
}

func isRestrictedSymbol(r rune) bool {
	if r == '\n' || r == '\t' {
		return false
	}
	return unicode.IsControl(r) || restrictedSymbols[r]
}

// checkRestrictedSymbols reports the distinct restricted symbols in text, in order of appearance.
func checkRestrictedSymbols(text string) *ValidationError {
	var codes []string
	seen := map[rune]bool{}
	for _, r := range text {
		if isRestrictedSymbol(r) && !seen[r] {
			seen[r] = true
			codes = append(codes, fmt.Sprintf("U+%04X", r))
		}
	}
	if len(codes) == 0 {
		return nil
	}
	return newValidationError(ErrKindRestrictedSymbols, "text contains restricted symbols").withDetails(codes)
}

// splitWords splits text on any whitespace except the restricted separators.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) && !isRestrictedSymbol(r)
	})
}

func countLines(text string) int {
	text = strings.Trim(text, "\n")
	if text == "" {
		return 0
	}
	return strings.Count(text, "\n") + 1
}

// checkText applies the textual limits to text.
func checkText(text string, c *TextElementConstraints) []*ValidationError {
	var errs []*ValidationError

	if c.MaxSymbols != nil {
		if n := utf8.RuneCountInString(text); n > *c.MaxSymbols {
			errs = append(errs, newValidationError(ErrKindElementTextTooLong,
				"text has %d symbols, at most %d allowed", n, *c.MaxSymbols).withLimit(*c.MaxSymbols))
		}
	}

	if c.MaxSymbolsPerWord != nil {
		var tooLong []string
		for _, word := range splitWords(text) {
			if utf8.RuneCountInString(word) > *c.MaxSymbolsPerWord {
				tooLong = append(tooLong, word)
			}
		}
		if len(tooLong) > 0 {
			errs = append(errs, newValidationError(ErrKindElementWordsTooLong,
				"%d word(s) exceed %d symbols", len(tooLong), *c.MaxSymbolsPerWord).
				withLimit(*c.MaxSymbolsPerWord).withDetails(tooLong))
		}
	}

	if c.MaxLines != nil {
		if n := countLines(text); n > *c.MaxLines {
			errs = append(errs, newValidationError(ErrKindElementTooManyLines,
				"text has %d lines, at most %d allowed", n, *c.MaxLines).withLimit(*c.MaxLines))
		}
	}

	if err := checkRestrictedSymbols(text); err != nil {
		errs = append(errs, err)
	}
	return errs
}
