package variables

// Variable groups
const (
	GroupClient    = "client"
	GroupBrand     = "freelancer"
	GroupStructure = "structure"
	GroupDate      = "date"
)

// Definition documents a catalog variable
type Definition struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Group       string `json:"group"`
	Description string `json:"description,omitempty"`
	Example     string `json:"example,omitempty"`
}

var catalog = []Definition{
	{Key: "clientName", Label: "Client name", Group: GroupClient, Example: "Jane Doe"},
	{Key: "clientEmail", Label: "Client email", Group: GroupClient, Example: "jane@acme.com"},
	{Key: "clientCompany", Label: "Client company", Group: GroupClient, Example: "Acme Inc."},
	{Key: "clientPhone", Label: "Client phone", Group: GroupClient},
	{Key: "projectType", Label: "Project type", Group: GroupClient, Description: "Overridden by the context project type", Example: "Website redesign"},
	{Key: "onboardingStage", Label: "Onboarding stage", Group: GroupClient, Example: "proposal"},
	{Key: "clientStatus", Label: "Client status", Group: GroupClient, Example: "active"},

	{Key: "freelancerName", Label: "Your name", Group: GroupBrand, Example: "Sue Smith"},
	{Key: "freelancerEmail", Label: "Your email", Group: GroupBrand, Example: "sue@studio.dev"},
	{Key: "businessName", Label: "Business name", Group: GroupBrand, Description: "Falls back to your name"},
	{Key: "businessAddress", Label: "Business address", Group: GroupBrand},
	{Key: "primaryColor", Label: "Primary brand color", Group: GroupBrand, Example: defaultPrimaryColor},
	{Key: "secondaryColor", Label: "Secondary brand color", Group: GroupBrand, Example: defaultSecondaryColor},

	{Key: "emailSubject", Label: "Email subject", Group: GroupStructure},
	{Key: "preheader", Label: "Preheader", Group: GroupStructure, Description: "Preview text shown by mail clients"},
	{Key: "ctaText", Label: "Call to action text", Group: GroupStructure, Example: defaultCTAText},
	{Key: "ctaUrl", Label: "Call to action URL", Group: GroupStructure, Description: "Defaults to a mailto: link to your email"},

	{Key: "currentDate", Label: "Current date", Group: GroupDate},
	{Key: "currentYear", Label: "Current year", Group: GroupDate},
}

const (
	defaultPrimaryColor   = "#2563eb"
	defaultSecondaryColor = "#64748b"
	defaultCTAText        = "Get in touch"
)

// Catalog returns the static list of known variables in display order
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// IsCatalogKey reports whether key is part of the static catalog
func IsCatalogKey(key string) bool {
	for _, d := range catalog {
		if d.Key == key {
			return true
		}
	}
	return false
}
