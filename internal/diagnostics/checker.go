package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"video-chapters/internal/domain"
)

// Checker validates external tools, configured settings, and credentials.
type Checker struct {
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	hasAPIKey  func() (bool, error)
}

// NewChecker builds a checker using real OS dependencies. hasAPIKey probes
// the credential store without exposing the secret.
func NewChecker(hasAPIKey func() (bool, error)) *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		hasAPIKey:  hasAPIKey,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("yt-dlp"),
		c.checkModel(settings.Model),
		c.checkOutputDir(settings.OutputDir),
		c.checkAPIKey(),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a required CLI executable is on PATH.
func (c *Checker) checkTool(name string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    "Install it and ensure the binary is available on PATH before processing a video.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkModel validates the configured model against the allow-list.
func (c *Checker) checkModel(model string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "model",
		Name: "Gemini model",
	}

	if !domain.IsValidModel(model) {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Unknown model: %s", model)
		item.Hint = fmt.Sprintf("Choose one of: %s.", strings.Join(domain.AvailableModels, ", "))
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Configured model: %s", model)
	return item
}

// checkOutputDir validates output directory write access. An empty setting
// passes: the pipeline falls back to a temporary directory.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "output_dir",
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusPass
		item.Message = "Using temporary directories for downloads."
		return item
	}

	if err := c.mkdirAll(outputDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create output directory: %s", outputDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(outputDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = "Choose a writable directory for subtitle and chapter export."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", outputDir)
	return item
}

// checkAPIKey reports whether a Gemini credential is stored. A missing key
// is a warning, not a failure: subtitle download still works without it.
func (c *Checker) checkAPIKey() domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "api_key",
		Name: "Gemini API key",
	}

	if c.hasAPIKey == nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Credential store is not configured."
		return item
	}

	ok, err := c.hasAPIKey()
	if err != nil {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "Could not read the credential store."
		item.Hint = "Chapter generation needs a stored Gemini API key."
		return item
	}
	if !ok {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "No API key stored."
		item.Hint = "Add a Gemini API key to enable chapter generation."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "API key is stored."
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	hasAPIKey func() (bool, error),
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		hasAPIKey:  hasAPIKey,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
