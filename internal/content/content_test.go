package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsHTML(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"<p>Hello</p>", true},
		{"Hi <br/> there", true},
		{"plain text", false},
		{"2 < 3 and 4 > 1", false},
		{"Hello {{clientName}}", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHTML(tt.in))
		})
	}
}

func verbatim(s string, _ bool) string { return s }

func TestRender_HTML(t *testing.T) {
	in := "<p>Hi Jane,</p><p>Thanks &amp; welcome!</p><ul><li>One</li><li>Two</li></ul>"

	htmlBody, text, err := Render(in, verbatim)
	require.NoError(t, err)
	assert.Equal(t, in, htmlBody)
	assert.Equal(t, "Hi Jane,\nThanks & welcome!\n- One\n- Two", text)
}

func TestRender_Markdown(t *testing.T) {
	in := "Hi **Jane**\n\nSee https://example.com"

	htmlBody, text, err := Render(in, verbatim)
	require.NoError(t, err)
	assert.Contains(t, htmlBody, "<strong>Jane</strong>")
	assert.Contains(t, htmlBody, `href="https://example.com"`)
	assert.Equal(t, in, text)
}

func TestRender_Empty(t *testing.T) {
	htmlBody, text, err := Render("   ", verbatim)
	require.NoError(t, err)
	assert.Empty(t, htmlBody)
	assert.Empty(t, text)
}

func TestRender_MarkdownIsSanitized(t *testing.T) {
	htmlBody, _, err := Render("Hi [there](javascript:alert(1))", verbatim)
	require.NoError(t, err)
	assert.NotContains(t, htmlBody, "javascript:")
}

func TestRender_FormatFollowsTemplate(t *testing.T) {
	fill := func(s string, escape bool) string {
		v := "<Acme>"
		if escape {
			v = "&lt;Acme&gt;"
		}
		return strings.ReplaceAll(s, "{{clientCompany}}", v)
	}

	htmlBody, text, err := Render("Welcome aboard, {{clientCompany}}", fill)
	require.NoError(t, err)
	assert.Contains(t, htmlBody, "&lt;Acme&gt;")
	assert.NotContains(t, htmlBody, "<Acme>")
	assert.Equal(t, "Welcome aboard, <Acme>", text)
}

func TestToText_StripsScripts(t *testing.T) {
	text := ToText(`<div>Hello<script>alert(1)</script></div>`)
	assert.False(t, strings.Contains(text, "<"))
	assert.True(t, strings.HasPrefix(text, "Hello"))
}

func TestSanitize(t *testing.T) {
	out := Sanitize(`<p onclick="x()">Hi <a href="javascript:alert(1)">link</a><script>bad()</script></p>`)
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "javascript:")
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "<p>Hi")
}

func TestSanitizeTemplate_KeepsPlaceholders(t *testing.T) {
	in := `<p style="color: {{primaryColor}}">Hi {{clientName}}</p><p><a href="{{ctaUrl}}">{{ctaText}}</a></p><script>x()</script>`

	out := SanitizeTemplate(in)
	assert.Contains(t, out, `href="{{ctaUrl}}"`)
	assert.Contains(t, out, "{{primaryColor}}")
	assert.Contains(t, out, "style=")
	assert.Contains(t, out, "Hi {{clientName}}")
	assert.Contains(t, out, "{{ctaText}}")
	assert.NotContains(t, out, "%7B")
	assert.NotContains(t, out, "<script>")
}

func TestSanitize_StyleValues(t *testing.T) {
	out := Sanitize(`<p style="color: #1a73e8">Hi</p><p style="color: expression(alert(1)); background: url(x)">Bad</p>`)
	assert.Contains(t, out, "#1a73e8")
	assert.NotContains(t, out, "expression")
	assert.NotContains(t, out, "url(")
}
