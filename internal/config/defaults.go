package config

import (
	"video-chapters/internal/domain"
	"video-chapters/internal/history"
)

// DefaultSettings returns baseline configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		Model:                   domain.DefaultModel,
		Language:                "",
		KeepFiles:               false,
		ShowSubtitles:           false,
		Quiet:                   false,
		OutputDir:               "",
		WindowGeometry:          "800x600",
		LastURL:                 "",
		InstructionHistoryLimit: history.DefaultCapacity,
	}
}
