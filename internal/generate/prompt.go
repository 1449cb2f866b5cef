package generate

import (
	"fmt"
	"strings"

	"github.com/foxzi/clientdesk/internal/variables"
)

const systemPrompt = `You write short, effective emails for freelancers to send to their clients.
Reply with the email body only, as simple HTML using <p>, <ul>, <li>, <strong> and <a> tags.
Do not include a subject line, explanations or markdown code fences.`

// BuildPrompt turns a request into the user prompt sent to the model
func BuildPrompt(req Request) string {
	var b strings.Builder

	typ := strings.ReplaceAll(req.Type, "_", " ")
	if typ == "" {
		typ = "general"
	}
	tone := req.Tone
	if tone == "" {
		tone = ToneProfessional
	}

	fmt.Fprintf(&b, "Write a %s email template with a %s tone.\n", typ, tone)
	if req.BusinessType != "" {
		fmt.Fprintf(&b, "The sender is a freelancer working in %s.\n", req.BusinessType)
	}
	if req.ProjectType != "" {
		fmt.Fprintf(&b, "The project type is %s.\n", req.ProjectType)
	}

	if req.UseClientData {
		b.WriteString("\nUse these details literally in the text:\n")
		writeDetail(&b, "Client name", req.ClientName)
		writeDetail(&b, "Client email", req.ClientEmail)
		writeDetail(&b, "Client company", req.ClientCompany)
		writeDetail(&b, "Freelancer name", req.FreelancerName)
		writeDetail(&b, "Business name", req.BrandName)
		return b.String()
	}

	b.WriteString("\nDo not invent names. Use these placeholders exactly as written wherever the value belongs:\n")
	for _, d := range variables.Catalog() {
		if d.Group == variables.GroupDate {
			continue
		}
		fmt.Fprintf(&b, "- {{%s}}: %s\n", d.Key, strings.ToLower(d.Label))
	}
	if req.BrandName != "" {
		fmt.Fprintf(&b, "The business is called %s; still use {{businessName}} in the text.\n", req.BrandName)
	}
	return b.String()
}

func writeDetail(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}
