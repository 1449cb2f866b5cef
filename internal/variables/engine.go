// Package variables resolves template variables from clients, the freelancer
// profile and custom overrides, and substitutes them into template text.
//
// Two placeholder syntaxes are understood: {{variableName}}, matched
// case-insensitively with optional whitespace inside the braces, and the
// legacy [human readable name] form. The bracket form is best effort: a
// phrase matches a key if it equals the key itself, its space separated
// form ("client name") or its snake_case form ("client_name"). New content
// should use the brace form only.
package variables

import (
	"html"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/foxzi/clientdesk/internal/models"
)

// DefaultDateLayout is the short date layout used for currentDate
const DefaultDateLayout = "1/2/2006"

// Context is the set of entities available when resolving variables
type Context struct {
	Client          *models.Client
	User            *models.User
	ProjectType     string
	CustomVariables map[string]string
}

// Map is a resolved variable key to value mapping
type Map map[string]string

// Validation is the result of checking a template against a context
type Validation struct {
	IsValid          bool     `json:"is_valid"`
	MissingVariables []string `json:"missing_variables"`
	UnusedVariables  []string `json:"unused_variables"`
}

// Engine resolves and substitutes template variables
type Engine struct {
	now        func() time.Time
	dateLayout string

	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the time source used for date variables
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithDateLayout sets the layout used for currentDate
func WithDateLayout(layout string) Option {
	return func(e *Engine) {
		if layout != "" {
			e.dateLayout = layout
		}
	}
}

// New creates a new variable engine
func New(opts ...Option) *Engine {
	e := &Engine{
		now:        time.Now,
		dateLayout: DefaultDateLayout,
		patterns:   make(map[string]*regexp.Regexp),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AvailableVariables resolves the context into a flat variable map.
// Every catalog key is present; custom variables are applied last.
func (e *Engine) AvailableVariables(ctx Context) Map {
	vars := make(Map, len(catalog)+len(ctx.CustomVariables))
	for _, d := range catalog {
		vars[d.Key] = ""
	}

	if c := ctx.Client; c != nil {
		vars["clientName"] = c.Name
		vars["clientEmail"] = c.Email
		vars["clientCompany"] = c.Company
		vars["clientPhone"] = c.Phone
		vars["projectType"] = c.ProjectType
		vars["onboardingStage"] = c.OnboardingStage
		vars["clientStatus"] = c.Status
	}

	freelancerEmail := ""
	if u := ctx.User; u != nil {
		freelancerEmail = u.Email
		vars["freelancerName"] = u.Name
		vars["freelancerEmail"] = u.Email
		vars["businessName"] = firstNonEmpty(u.Brand.CompanyName, u.Name)
		vars["businessAddress"] = u.Brand.Address
		vars["primaryColor"] = u.Brand.PrimaryColor
		vars["secondaryColor"] = u.Brand.SecondaryColor
	}

	if ctx.ProjectType != "" {
		vars["projectType"] = ctx.ProjectType
	}

	now := e.now()
	vars["currentDate"] = now.Format(e.dateLayout)
	vars["currentYear"] = now.Format("2006")
	vars["primaryColor"] = firstNonEmpty(vars["primaryColor"], defaultPrimaryColor)
	vars["secondaryColor"] = firstNonEmpty(vars["secondaryColor"], defaultSecondaryColor)
	vars["ctaText"] = defaultCTAText
	vars["ctaUrl"] = "mailto:" + freelancerEmail

	for k, v := range ctx.CustomVariables {
		vars[k] = v
	}

	return vars
}

// ReplaceVariables resolves the context and substitutes placeholders in content.
// Placeholders with no resolved key are left as they are.
func (e *Engine) ReplaceVariables(content string, ctx Context) string {
	return e.Substitute(content, e.AvailableVariables(ctx))
}

// Substitute replaces placeholders in content using an already resolved map.
// Keys are applied in sorted order, brace form first, then bracket form.
// A value that itself looks like a placeholder may be substituted again by a
// later key.
func (e *Engine) Substitute(content string, vars Map) string {
	if content == "" {
		return content
	}

	keys := sortedKeys(vars)

	for _, key := range keys {
		content = e.bracePattern(key).ReplaceAllLiteralString(content, vars[key])
	}

	for _, key := range keys {
		for _, variant := range keyVariants(key) {
			content = e.bracketPattern(variant).ReplaceAllLiteralString(content, vars[key])
		}
	}

	return content
}

// Fill returns a substitution func over vars. With escape set the values
// are HTML-escaped first, for content that will be sent as markup.
func (e *Engine) Fill(vars Map) func(content string, escape bool) string {
	escaped := make(Map, len(vars))
	for k, v := range vars {
		escaped[k] = html.EscapeString(v)
	}
	return func(content string, escape bool) string {
		if escape {
			return e.Substitute(content, escaped)
		}
		return e.Substitute(content, vars)
	}
}

// ValidateTemplate reports placeholders in content that the context cannot
// resolve and resolved variables the content never uses.
func (e *Engine) ValidateTemplate(content string, ctx Context) Validation {
	return e.Validate(content, e.AvailableVariables(ctx))
}

// Validate checks content against an already resolved map.
// A key resolving to an empty string counts as present.
func (e *Engine) Validate(content string, vars Map) Validation {
	byLower := make(map[string]string, len(vars))
	byVariant := make(map[string]string, len(vars)*3)
	for _, key := range sortedKeys(vars) {
		if _, ok := byLower[strings.ToLower(key)]; !ok {
			byLower[strings.ToLower(key)] = key
		}
		for _, variant := range keyVariants(key) {
			if _, ok := byVariant[variant]; !ok {
				byVariant[variant] = key
			}
		}
	}

	used := make(map[string]bool)
	seen := make(map[string]bool)
	missing := []string{}

	addMissing := func(name string) {
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
	}

	for _, m := range braceScan.FindAllStringSubmatch(content, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}
		if key, ok := byLower[strings.ToLower(name)]; ok {
			used[key] = true
			continue
		}
		addMissing(name)
	}

	for _, m := range bracketScan.FindAllStringSubmatch(content, -1) {
		phrase := strings.TrimSpace(m[1])
		if key, ok := byVariant[strings.ToLower(phrase)]; ok {
			used[key] = true
			continue
		}
		addMissing(phrase)
	}

	unused := []string{}
	for _, key := range orderedKeys(vars) {
		if vars[key] != "" && !used[key] {
			unused = append(unused, key)
		}
	}

	return Validation{
		IsValid:          len(missing) == 0,
		MissingVariables: missing,
		UnusedVariables:  unused,
	}
}

var (
	braceScan   = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)
	bracketScan = regexp.MustCompile(`\[\s*([A-Za-z][A-Za-z0-9 _]*?)\s*\]`)
)

func (e *Engine) bracePattern(key string) *regexp.Regexp {
	return e.pattern("{"+key, `(?i)\{\{\s*`+regexp.QuoteMeta(key)+`\s*\}\}`)
}

func (e *Engine) bracketPattern(variant string) *regexp.Regexp {
	return e.pattern("["+variant, `(?i)\[\s*`+regexp.QuoteMeta(variant)+`\s*\]`)
}

func (e *Engine) pattern(cacheKey, expr string) *regexp.Regexp {
	e.mu.RLock()
	re, ok := e.patterns[cacheKey]
	e.mu.RUnlock()
	if ok {
		return re
	}

	re = regexp.MustCompile(expr)

	e.mu.Lock()
	e.patterns[cacheKey] = re
	e.mu.Unlock()
	return re
}

// keyVariants returns the lowercase forms a bracket placeholder may use for key
func keyVariants(key string) []string {
	words := splitCamel(key)
	variants := []string{
		strings.ToLower(key),
		strings.Join(words, " "),
		strings.Join(words, "_"),
	}

	out := variants[:0]
	seen := make(map[string]bool, len(variants))
	for _, v := range variants {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// splitCamel splits a camelCase identifier into lowercase words
func splitCamel(s string) []string {
	var words []string
	var current []rune
	prevLower := false

	for _, r := range s {
		switch {
		case r == '_' || r == '-' || r == ' ':
			if len(current) > 0 {
				words = append(words, string(current))
				current = current[:0]
			}
			prevLower = false
			continue
		case unicode.IsUpper(r) && prevLower && len(current) > 0:
			words = append(words, string(current))
			current = current[:0]
		}
		current = append(current, unicode.ToLower(r))
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
	}
	if len(current) > 0 {
		words = append(words, string(current))
	}
	return words
}

func sortedKeys(vars Map) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// orderedKeys lists catalog keys in catalog order followed by extra keys sorted
func orderedKeys(vars Map) []string {
	keys := make([]string, 0, len(vars))
	for _, d := range catalog {
		if _, ok := vars[d.Key]; ok {
			keys = append(keys, d.Key)
		}
	}

	var extra []string
	for k := range vars {
		if !IsCatalogKey(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
