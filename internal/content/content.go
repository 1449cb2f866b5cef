// Package content derives the HTML and plain text parts of an email body.
package content

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	strictPolicy *bluemonday.Policy
	ugcPolicy    *bluemonday.Policy
	initOnce     sync.Once

	md = goldmark.New(
		goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
	)

	tagPattern   = regexp.MustCompile(`<[a-zA-Z][a-zA-Z0-9]*(\s[^>]*)?/?>`)
	blockPattern = regexp.MustCompile(`(?i)<\s*(br\s*/?|/p|/div|/h[1-6]|/li|/tr|/blockquote)\s*>`)
	itemPattern  = regexp.MustCompile(`(?i)<\s*li(\s[^>]*)?>`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
	spaceRuns    = regexp.MustCompile(`[ \t]+`)

	placeholderPattern = regexp.MustCompile(`\{\{\s*[A-Za-z0-9_]+\s*\}\}`)
	styleValue         = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|rgba?\([0-9 ,.%]+\)|[a-zA-Z0-9 .%-]+)$`)
)

func initPolicies() {
	initOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
		ugcPolicy = bluemonday.UGCPolicy()
		ugcPolicy.AllowAttrs("style").OnElements("p", "span", "div", "a", "td", "table")
		ugcPolicy.AllowStyles("color", "background-color", "font-weight", "text-align", "padding", "margin").
			Matching(styleValue).Globally()
	})
}

// IsHTML reports whether content contains markup
func IsHTML(content string) bool {
	return tagPattern.MatchString(content)
}

// Render derives both parts from a template. The format is decided on the
// template itself, so substituted values never switch plain text into markup.
// fill substitutes placeholders; escape is set for the HTML part.
func Render(tmpl string, fill func(s string, escape bool) string) (htmlBody, textBody string, err error) {
	if strings.TrimSpace(tmpl) == "" {
		return "", "", nil
	}

	if IsHTML(tmpl) {
		htmlBody = Sanitize(fill(tmpl, true))
		return htmlBody, ToText(htmlBody), nil
	}

	htmlBody, err = ToHTML(fill(tmpl, true))
	if err != nil {
		return "", "", err
	}
	return Sanitize(htmlBody), strings.TrimSpace(fill(tmpl, false)), nil
}

// ToHTML renders markdown or plain text to HTML
func ToHTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return buf.String(), nil
}

// ToText strips all markup and keeps paragraph breaks
func ToText(htmlBody string) string {
	initPolicies()

	s := itemPattern.ReplaceAllString(htmlBody, "- ")
	s = blockPattern.ReplaceAllString(s, "\n")
	s = strictPolicy.Sanitize(s)
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Sanitize removes dangerous markup while keeping formatting
func Sanitize(htmlBody string) string {
	initPolicies()
	return ugcPolicy.Sanitize(htmlBody)
}

// SanitizeTemplate sanitizes markup that still carries {{placeholders}}.
// Placeholders are masked while sanitizing so they survive inside href and
// style attributes.
func SanitizeTemplate(tmpl string) string {
	var saved []string
	masked := placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		saved = append(saved, m)
		return placeholderToken(len(saved) - 1)
	})

	out := Sanitize(masked)
	for i, m := range saved {
		out = strings.ReplaceAll(out, placeholderToken(i), m)
	}
	return out
}

func placeholderToken(i int) string {
	return "cdvar" + strconv.Itoa(i) + "z"
}
