package domain

// JobStatus tracks each pipeline stage for a single processing job.
type JobStatus string

const (
	JobStatusIdle        JobStatus = "idle"
	JobStatusChecking    JobStatus = "checking"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusGenerating  JobStatus = "generating"
	JobStatusDone        JobStatus = "done"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCancelled   JobStatus = "cancelled"
)

// Settings contains user-selectable configuration persisted across runs.
type Settings struct {
	Model                   string             `json:"model"`
	Language                string             `json:"language"`
	KeepFiles               bool               `json:"keepFiles"`
	ShowSubtitles           bool               `json:"showSubtitles"`
	Quiet                   bool               `json:"quiet"`
	OutputDir               string             `json:"outputDir"`
	WindowGeometry          string             `json:"windowGeometry"`
	LastURL                 string             `json:"lastUrl"`
	InstructionHistory      []InstructionEntry `json:"instructionHistory"`
	InstructionHistoryLimit int                `json:"instructionHistoryLimit"`
}

// ProcessingOptions is the immutable configuration for one pipeline run.
type ProcessingOptions struct {
	Language           string
	APIKey             string
	Model              string
	KeepFiles          bool
	OutputDir          string
	ShowSubtitles      bool
	NonInteractive     bool
	CustomInstructions string
}

// SubtitleInfo describes one successfully downloaded subtitle track.
type SubtitleInfo struct {
	Language string `json:"language"`
	FilePath string `json:"filePath"`
	Content  string `json:"content"`
}

// InstructionEntry is one saved custom-instruction history item.
type InstructionEntry struct {
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Preview   string `json:"preview"`
}

// Job stores the current job identity and lifecycle status.
type Job struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
}
