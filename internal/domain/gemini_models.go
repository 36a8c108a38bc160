package domain

// GeminiModelOption describes one selectable Gemini model preset.
type GeminiModelOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default"`
}

// DefaultModel is used when no model is configured or the stored one is unknown.
const DefaultModel = "gemini-2.5-pro"

// AvailableModels is the fixed allow-list of Gemini model identifiers.
var AvailableModels = []string{
	"gemini-2.5-pro",
	"gemini-2.5-flash",
}

// IsValidModel reports whether the identifier is in the allow-list.
func IsValidModel(id string) bool {
	for _, m := range AvailableModels {
		if m == id {
			return true
		}
	}
	return false
}

// NormalizeModel maps unknown or empty identifiers to the default model.
func NormalizeModel(id string) string {
	if IsValidModel(id) {
		return id
	}
	return DefaultModel
}
