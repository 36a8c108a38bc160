package bootstrap

import (
	"video-chapters/internal/domain"
)

var geminiModelCatalog = []domain.GeminiModelOption{
	{
		ID:          "gemini-2.5-pro",
		Name:        "Gemini 2.5 Pro",
		Description: "Highest quality chapter titles, slower responses.",
		Default:     true,
	},
	{
		ID:          "gemini-2.5-flash",
		Name:        "Gemini 2.5 Flash",
		Description: "Faster and cheaper, slightly less precise titles.",
	},
}
