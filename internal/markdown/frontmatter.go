// Package markdown converts pages between their on-disk markdown form and
// the rich text model.
//
// A page file is a YAML front matter block followed by a CommonMark body:
//
//	---
//	title: "Page title"
//	draft: true
//	tags:
//	  - Tag
//	---
//	body
package markdown

import (
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/document"
)

const fmDelim = "---"

// FrontMatter is the page header.
type FrontMatter struct {
	Title string   `yaml:"title"`
	Draft string   `yaml:"draft"`
	Tags  []string `yaml:"tags"`
}

// SplitFrontMatter separates the header from the body. Input that does not
// start with "---" is not a page.
//
// Blank lines before the body and trailing whitespace are dropped; a
// non-empty body ends with exactly one newline.
func SplitFrontMatter(data []byte) (FrontMatter, string, error) {
	var fm FrontMatter
	s := string(data)
	if !strings.HasPrefix(s, fmDelim) {
		return fm, "", fmt.Errorf("markdown: %w: missing front matter", apperr.ErrNotDocument)
	}
	rest := s[len(fmDelim):]
	end := strings.Index(rest, "\n"+fmDelim)
	if end < 0 {
		return fm, "", fmt.Errorf("markdown: %w: unterminated front matter", apperr.ErrNotDocument)
	}
	header := rest[:end]
	after := rest[end+1+len(fmDelim):]
	if nl := strings.IndexByte(after, '\n'); nl >= 0 {
		after = after[nl+1:]
	} else {
		after = ""
	}

	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return fm, "", fmt.Errorf("markdown: %w: %v", apperr.ErrNotDocument, err)
	}
	if fm.Title == "" {
		return fm, "", fmt.Errorf("markdown: %w: missing title", apperr.ErrNotDocument)
	}
	if fm.Draft == "" {
		fm.Draft = document.DefaultDraft
	}

	body := strings.TrimRightFunc(after, unicode.IsSpace)
	body = body[leadingBlankLines(body):]
	if body != "" {
		body += "\n"
	}
	return fm, body, nil
}

// leadingBlankLines returns the length of the whitespace-only lines that
// open s. Indentation of the first non-blank line is kept.
func leadingBlankLines(s string) int {
	n := 0
	for {
		nl := strings.IndexByte(s[n:], '\n')
		if nl < 0 || strings.TrimSpace(s[n:n+nl]) != "" {
			return n
		}
		n += nl + 1
	}
}

// yamlKeywords resolve to something other than a string when plain.
var yamlKeywords = map[string]bool{
	"true": true, "false": true, "yes": true, "no": true, "on": true, "off": true,
	"y": true, "n": true, "null": true, "~": true,
}

// tagScalar renders a tag plain when YAML reads it back as the same string,
// and double quoted otherwise.
func tagScalar(tag string) string {
	if plainScalar(tag) {
		return tag
	}
	return quote(tag)
}

func plainScalar(s string) bool {
	if s == "" || yamlKeywords[strings.ToLower(s)] {
		return false
	}
	for i, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
		case i > 0 && (r == ' ' || r == '-' || r == '.' || r == '/'):
		default:
			return false
		}
	}
	return !strings.HasSuffix(s, " ")
}

// quote renders s as a YAML double-quoted scalar.
func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
