package contentstore

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Tags allowed in formatted text. Attributes are never allowed.
var formattedTextTags = map[string]bool{
	"b":  true,
	"i":  true,
	"u":  true,
	"p":  true,
	"br": true,
	"ul": true,
	"ol": true,
	"li": true,
}

var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "source": true, "track": true, "wbr": true,
}

// blockTags start and end on their own line in the visible text.
var blockTags = map[string]bool{"p": true, "ul": true, "ol": true, "li": true}

func isListTag(tag string) bool {
	return tag == "ul" || tag == "ol"
}

type htmlFrame struct {
	tag   string
	items int
}

// htmlScan accumulates what checkFormattedHTML learns from the token stream.
type htmlScan struct {
	stack           []htmlFrame
	text            strings.Builder
	wellFormed      bool
	unsupportedTags []string
	hasAttributes   bool
	emptyList       bool
	nestedList      bool
	badListChildren bool
}

func (s *htmlScan) top() *htmlFrame {
	if len(s.stack) == 0 {
		return nil
	}
	return &s.stack[len(s.stack)-1]
}

func (s *htmlScan) insideList() bool {
	for _, f := range s.stack {
		if isListTag(f.tag) {
			return true
		}
	}
	return false
}

func (s *htmlScan) lineBreak() {
	str := s.text.String()
	if str != "" && !strings.HasSuffix(str, "\n") {
		s.text.WriteByte('\n')
	}
}

func (s *htmlScan) addUnsupported(tag string) {
	for _, t := range s.unsupportedTags {
		if t == tag {
			return
		}
	}
	s.unsupportedTags = append(s.unsupportedTags, tag)
}

func (s *htmlScan) startTag(tag string, hasAttr bool, selfClosing bool) {
	if hasAttr {
		s.hasAttributes = true
	}
	if !formattedTextTags[tag] {
		s.addUnsupported(tag)
	}
	if top := s.top(); top != nil && isListTag(top.tag) {
		if tag == "li" {
			top.items++
		} else {
			s.badListChildren = true
		}
	}
	if isListTag(tag) && s.insideList() {
		s.nestedList = true
	}
	if tag == "br" {
		s.text.WriteByte('\n')
	}
	if blockTags[tag] {
		s.lineBreak()
	}
	if voidTags[tag] || selfClosing {
		if isListTag(tag) {
			s.emptyList = true
		}
		return
	}
	s.stack = append(s.stack, htmlFrame{tag: tag})
}

func (s *htmlScan) endTag(tag string) {
	if voidTags[tag] {
		return
	}
	top := s.top()
	if top == nil || top.tag != tag {
		s.wellFormed = false
		return
	}
	if isListTag(tag) && top.items == 0 {
		s.emptyList = true
	}
	s.stack = s.stack[:len(s.stack)-1]
	if blockTags[tag] {
		s.lineBreak()
	}
}

// checkFormattedHTML validates formatted-text markup and returns its visible text.
// Structural rules are reported only for well-formed markup.
func checkFormattedHTML(raw string) (string, []*ValidationError) {
	s := &htmlScan{wellFormed: true}
	z := html.NewTokenizer(strings.NewReader(raw))

scan:
	for s.wellFormed {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if !errors.Is(z.Err(), io.EOF) {
				s.wellFormed = false
			}
			break scan
		case html.TextToken:
			text := string(z.Text())
			s.text.WriteString(text)
			if top := s.top(); top != nil && isListTag(top.tag) && strings.TrimSpace(text) != "" {
				s.badListChildren = true
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			s.startTag(string(name), hasAttr, tt == html.SelfClosingTagToken)
		case html.EndTagToken:
			name, _ := z.TagName()
			s.endTag(string(name))
		case html.DoctypeToken:
			s.addUnsupported("!doctype")
		case html.CommentToken:
		}
	}
	if len(s.stack) > 0 {
		s.wellFormed = false
	}

	visible := s.text.String()
	if !s.wellFormed {
		return visible, []*ValidationError{newValidationError(ErrKindInvalidHTML, "markup is not well-formed html")}
	}

	var errs []*ValidationError
	if len(s.unsupportedTags) > 0 {
		errs = append(errs, newValidationError(ErrKindUnsupportedTags, "unsupported tags: %s",
			strings.Join(s.unsupportedTags, ", ")).withDetails(s.unsupportedTags))
	}
	if s.hasAttributes {
		errs = append(errs, newValidationError(ErrKindUnsupportedAttributes, "tag attributes are not allowed"))
	}
	if s.emptyList {
		errs = append(errs, newValidationError(ErrKindEmptyList, "lists must contain at least one item"))
	}
	if s.nestedList {
		errs = append(errs, newValidationError(ErrKindNestedList, "lists must not be nested"))
	}
	if s.badListChildren {
		errs = append(errs, newValidationError(ErrKindUnsupportedListElements, "lists may only contain li elements"))
	}
	return visible, errs
}
