// Package dnscheck verifies that a sending domain publishes the SPF, DKIM
// and DMARC records mail providers expect.
package dnscheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// ErrInvalidDomain is returned for malformed domain names or selectors
var ErrInvalidDomain = errors.New("invalid domain name")

var (
	domainRegex   = regexp.MustCompile(`^(?i)[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)
	selectorRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
)

// Check statuses
const (
	StatusOK       = "ok"
	StatusWarning  = "warning"
	StatusError    = "error"
	StatusNotFound = "not_found"
)

// Resolver looks up TXT records. *net.Resolver satisfies it.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Result is the outcome of one record check
type Result struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message,omitempty"`
}

// Report contains every check for a domain
type Report struct {
	Domain  string   `json:"domain"`
	Results []Result `json:"results"`
}

// OK reports whether no check ended in error or not_found
func (r *Report) OK() bool {
	for _, res := range r.Results {
		if res.Status == StatusError || res.Status == StatusNotFound {
			return false
		}
	}
	return true
}

// Options controls the DKIM part of the check
type Options struct {
	Selector string // Skip DKIM when empty
	// PublicKey is the expected base64 p= value, compared when set
	PublicKey string
}

// Checker runs the checks against a resolver
type Checker struct {
	resolver Resolver
}

// New creates a checker. A nil resolver uses the system resolver.
func New(resolver Resolver) *Checker {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Checker{resolver: resolver}
}

// Check verifies the SPF, DKIM and DMARC records of domain
func (c *Checker) Check(ctx context.Context, domain string, opts Options) (*Report, error) {
	domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if err := ValidateDomain(domain); err != nil {
		return nil, err
	}
	if opts.Selector != "" && !selectorRegex.MatchString(opts.Selector) {
		return nil, fmt.Errorf("%w: bad selector %q", ErrInvalidDomain, opts.Selector)
	}

	report := &Report{Domain: domain}
	report.Results = append(report.Results, c.checkSPF(ctx, domain))
	if opts.Selector != "" {
		report.Results = append(report.Results, c.checkDKIM(ctx, domain, opts))
	}
	report.Results = append(report.Results, c.checkDMARC(ctx, domain))
	return report, nil
}

// ValidateDomain checks the domain name syntax
func ValidateDomain(domain string) error {
	if domain == "" || len(domain) > 253 || !domainRegex.MatchString(domain) {
		return ErrInvalidDomain
	}
	return nil
}

func (c *Checker) checkSPF(ctx context.Context, domain string) Result {
	res := Result{Type: "SPF", Name: domain}

	records, err := c.lookup(ctx, domain, "v=spf1")
	if err != nil {
		return failed(res, err)
	}

	switch len(records) {
	case 0:
		res.Status = StatusNotFound
		res.Message = "no SPF record, receivers cannot verify the sending servers"
	case 1:
		res.Value = records[0]
		res.Status = StatusOK
		if strings.Contains(records[0], "+all") {
			res.Status = StatusWarning
			res.Message = "+all allows any server to send for this domain"
		}
	default:
		res.Value = strings.Join(records, " | ")
		res.Status = StatusError
		res.Message = "multiple SPF records, only one is allowed"
	}
	return res
}

func (c *Checker) checkDKIM(ctx context.Context, domain string, opts Options) Result {
	name := opts.Selector + "._domainkey." + domain
	res := Result{Type: "DKIM", Name: name}

	records, err := c.lookup(ctx, name, "")
	if err != nil {
		return failed(res, err)
	}

	for _, rec := range records {
		tags := parseTags(rec)
		p, ok := tags["p"]
		if !ok {
			continue
		}

		res.Value = rec
		switch {
		case p == "":
			res.Status = StatusError
			res.Message = "key has been revoked (empty p=)"
		case opts.PublicKey != "" && p != opts.PublicKey:
			res.Status = StatusError
			res.Message = "published key does not match the configured private key"
		default:
			res.Status = StatusOK
		}
		return res
	}

	res.Status = StatusNotFound
	res.Message = "no DKIM key published for selector " + opts.Selector
	return res
}

func (c *Checker) checkDMARC(ctx context.Context, domain string) Result {
	name := "_dmarc." + domain
	res := Result{Type: "DMARC", Name: name}

	records, err := c.lookup(ctx, name, "v=DMARC1")
	if err != nil {
		return failed(res, err)
	}
	if len(records) == 0 {
		res.Status = StatusNotFound
		res.Message = "no DMARC policy, bulk mail is more likely to be filtered"
		return res
	}

	res.Value = records[0]
	switch parseTags(records[0])["p"] {
	case "quarantine", "reject":
		res.Status = StatusOK
	case "none":
		res.Status = StatusWarning
		res.Message = "policy is p=none, failures are only reported"
	default:
		res.Status = StatusError
		res.Message = "DMARC record has no valid p= policy"
	}
	return res
}

// lookup returns the TXT records of name starting with prefix.
// A missing name yields no records and no error.
func (c *Checker) lookup(ctx context.Context, name, prefix string) ([]string, error) {
	txts, err := c.resolver.LookupTXT(ctx, name)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, nil
		}
		return nil, err
	}

	var out []string
	for _, txt := range txts {
		if prefix == "" || strings.HasPrefix(strings.ToLower(txt), strings.ToLower(prefix)) {
			out = append(out, txt)
		}
	}
	return out, nil
}

func failed(res Result, err error) Result {
	res.Status = StatusError
	res.Message = fmt.Sprintf("lookup failed: %v", err)
	return res
}

// parseTags splits a "k=v; k2=v2" record into a map
func parseTags(record string) map[string]string {
	tags := make(map[string]string)
	for _, part := range strings.Split(record, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		tags[strings.ToLower(strings.TrimSpace(k))] = strings.ReplaceAll(strings.TrimSpace(v), " ", "")
	}
	return tags
}
