package variables

var defaultEngine = New()

// AvailableVariables resolves ctx with the default engine
func AvailableVariables(ctx Context) Map {
	return defaultEngine.AvailableVariables(ctx)
}

// ReplaceVariables substitutes placeholders in content with the default engine
func ReplaceVariables(content string, ctx Context) string {
	return defaultEngine.ReplaceVariables(content, ctx)
}

// ValidateTemplate validates content with the default engine
func ValidateTemplate(content string, ctx Context) Validation {
	return defaultEngine.ValidateTemplate(content, ctx)
}
