package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"video-chapters/internal/config"
	"video-chapters/internal/credentials"
	"video-chapters/internal/diagnostics"
	"video-chapters/internal/domain"
	"video-chapters/internal/gemini"
	"video-chapters/internal/history"
	"video-chapters/internal/jobs"
	"video-chapters/internal/subtitles"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

const (
	defaultWindowWidth  = 800
	defaultWindowHeight = 600
)

// App wires configuration, credentials, history, jobs, and the subtitle
// pipeline behind the UI runtime.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Credentials credentials.Store
	Jobs        *jobs.Manager
	Pipeline    pipelineRunner
	History     *history.Store
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker

	mu          sync.Mutex
	activeJobID string
	events      *jobs.EventBus
	runtimeCtx  context.Context
}

// pipelineRunner isolates the subtitle pipeline behind an interface.
type pipelineRunner interface {
	Run(ctx context.Context, req subtitles.Request) (subtitles.Result, error)
	AvailableLanguages(ctx context.Context, url string) (subtitles.Classification, error)
	RequestStop()
	ResetStop()
	Cleanup()
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(homeDir, ".video-chapters", "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	creds := credentials.NewKeyringStore()
	checker := diagnostics.NewChecker(func() (bool, error) {
		key, err := creds.Get()
		if err != nil {
			return false, err
		}
		return key != "", nil
	})
	report := checker.Run(settings)

	return &App{
		Settings:    settings,
		Store:       store,
		Credentials: creds,
		Jobs:        jobs.NewManager(),
		Pipeline:    subtitles.NewPipeline(gemini.NewClient()),
		History:     history.NewStore(settings.InstructionHistoryLimit, settings.InstructionHistory),
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		events:      jobs.NewEventBus(1000),
	}, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	width, height := parseGeometry(a.Settings.WindowGeometry)

	return wails.Run(&options.App{
		Title:       "Video Chapters",
		Width:       width,
		Height:      height,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			if a.Pipeline != nil {
				a.Pipeline.Cleanup()
			}
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	return a.refreshDiagnosticsFromSettings(settings), nil
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
// The instruction-history limit is applied to the live store immediately.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if a.History != nil {
		a.History.SetCapacity(normalized.InstructionHistoryLimit)
		normalized.InstructionHistoryLimit = a.History.Capacity()
		normalized.InstructionHistory = a.History.Entries()
	}

	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized)
	}
	a.mu.Unlock()

	return normalized, nil
}

// GetModels returns the selectable Gemini model presets.
func (a *App) GetModels() []domain.GeminiModelOption {
	models := make([]domain.GeminiModelOption, len(geminiModelCatalog))
	copy(models, geminiModelCatalog)
	return models
}

// SetAPIKey stores the Gemini API key in the OS keychain and refreshes
// diagnostics. The key value itself is never persisted to settings.
func (a *App) SetAPIKey(key string) error {
	if a.Credentials == nil {
		return fmt.Errorf("credential store is not configured")
	}
	if err := a.Credentials.Set(strings.TrimSpace(key)); err != nil {
		return err
	}

	a.refreshDiagnosticsFromSettings(a.currentSettings())
	return nil
}

// HasAPIKey reports whether a Gemini API key is stored.
func (a *App) HasAPIKey() (bool, error) {
	if a.Credentials == nil {
		return false, nil
	}
	key, err := a.Credentials.Get()
	if err != nil {
		return false, err
	}
	return key != "", nil
}

// ClearAPIKey removes the stored Gemini API key.
func (a *App) ClearAPIKey() error {
	if a.Credentials == nil {
		return nil
	}
	if err := a.Credentials.Clear(); err != nil {
		return err
	}

	a.refreshDiagnosticsFromSettings(a.currentSettings())
	return nil
}

// CheckLanguages lists the subtitle languages offered for a URL without
// downloading anything.
func (a *App) CheckLanguages(url string) (subtitles.Classification, error) {
	if strings.TrimSpace(url) == "" {
		return subtitles.Classification{}, fmt.Errorf("video URL is required")
	}
	return a.Pipeline.AvailableLanguages(context.Background(), url)
}

// GetInstructionHistory returns saved custom instructions, oldest first.
func (a *App) GetInstructionHistory() []domain.InstructionEntry {
	if a.History == nil {
		return nil
	}
	return a.History.Entries()
}

// DeleteInstruction removes one history entry by position and persists.
func (a *App) DeleteInstruction(index int) error {
	if a.History == nil {
		return nil
	}
	a.History.DeleteAt(index)
	return a.persistHistory()
}

// SetInstructionHistoryLimit changes the history bound, trims immediately,
// and returns the applied (clamped) value.
func (a *App) SetInstructionHistoryLimit(limit int) (int, error) {
	if a.History == nil {
		return history.DefaultCapacity, nil
	}
	a.History.SetCapacity(limit)
	applied := a.History.Capacity()
	return applied, a.persistHistory()
}

// StartProcessing creates a job and runs the pipeline asynchronously.
// Custom instructions are recorded in history before the run starts.
func (a *App) StartProcessing(url string, customInstructions string) (domain.Job, error) {
	cleaned := subtitles.CleanURL(strings.TrimSpace(url))
	if cleaned == "" {
		return domain.Job{}, fmt.Errorf("video URL is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.Job{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	jobID := uuid.NewString()
	if err := a.Jobs.Start(jobID); err != nil {
		return domain.Job{}, err
	}

	// Clear any stale stop request and leftover artifacts from the previous
	// run before a new download begins. Resetting here (not inside Run) keeps
	// a stop that arrives while the job goroutine is still being scheduled.
	a.Pipeline.ResetStop()
	a.Pipeline.Cleanup()

	if a.History != nil && strings.TrimSpace(customInstructions) != "" {
		a.History.Add(customInstructions)
	}
	settings.LastURL = cleaned
	if a.History != nil {
		settings.InstructionHistory = a.History.Entries()
		settings.InstructionHistoryLimit = a.History.Capacity()
	}
	if err := a.Store.Save(settings); err != nil {
		slog.Warn("could not persist settings before job start", "error", err)
	}

	apiKey := ""
	if a.Credentials != nil {
		apiKey, err = a.Credentials.Get()
		if err != nil {
			slog.Warn("could not read credential store, continuing without API key", "error", err)
			apiKey = ""
		}
	}

	a.mu.Lock()
	a.activeJobID = jobID
	a.Settings = settings
	a.mu.Unlock()

	runOpts := domain.ProcessingOptions{
		Language:           settings.Language,
		APIKey:             apiKey,
		Model:              settings.Model,
		KeepFiles:          settings.KeepFiles,
		OutputDir:          settings.OutputDir,
		ShowSubtitles:      settings.ShowSubtitles,
		CustomInstructions: customInstructions,
	}

	a.publishStatus(jobID, domain.JobStatusChecking, "Job started")
	go a.runProcessingJob(context.Background(), jobID, cleaned, runOpts)
	return a.Jobs.Current(), nil
}

// StopProcessing requests a cooperative stop of the running job. The
// in-flight download finishes; chapter generation is skipped.
func (a *App) StopProcessing() error {
	a.mu.Lock()
	activeJobID := a.activeJobID
	a.mu.Unlock()

	if activeJobID == "" {
		return jobs.ErrNoRunningJob
	}

	a.Pipeline.RequestStop()
	a.publishEvent(jobs.Event{
		JobID:   activeJobID,
		Type:    jobs.EventTypeProgress,
		Message: "Stop requested, finishing current step",
	})
	return nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Jobs.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// SaveChapters exports chapter text to the configured output directory
// (or the user home when none is set) and returns the written path.
func (a *App) SaveChapters(title string, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("no chapter content to save")
	}

	dir := strings.TrimSpace(a.currentSettings().OutputDir)
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve user home: %w", err)
		}
		dir = homeDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	return subtitles.SaveChapters(dir, title, content)
}

// PickOutputDirectory opens a native directory picker for exports.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.currentSettings().OutputDir
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// runProcessingJob executes the pipeline and maps outcomes to job events.
func (a *App) runProcessingJob(ctx context.Context, jobID, url string, options domain.ProcessingOptions) {
	req := subtitles.Request{
		URL:     url,
		Options: options,
		OnStage: func(stage string) {
			status, ok := mapStageToStatus(stage)
			if !ok {
				return
			}
			if err := a.Jobs.Transition(status); err == nil {
				a.publishStatus(jobID, status, "Running "+stage+" stage")
			}
		},
		OnProgress: func(message string) {
			a.publishEvent(jobs.Event{
				JobID:   jobID,
				Type:    jobs.EventTypeProgress,
				Message: message,
			})
		},
		OnLog: func(log subtitles.CommandLog) {
			a.publishEvent(jobs.Event{
				JobID:    jobID,
				Type:     jobs.EventTypeLog,
				Message:  "Command completed",
				Command:  log.Command,
				Args:     log.Args,
				ExitCode: log.ExitCode,
				Stdout:   log.Stdout,
				Stderr:   log.Stderr,
			})
		},
	}

	result, err := a.Pipeline.Run(ctx, req)
	if err != nil {
		// A generation failure still delivers the downloaded subtitles.
		if result.Subtitles.Content != "" {
			a.publishResult(jobID, result, "Chapter generation failed, subtitles are available")
		}

		_ = a.Jobs.Transition(domain.JobStatusFailed)
		a.publishStatus(jobID, domain.JobStatusFailed, "Job failed")
		a.publishEvent(jobs.Event{
			JobID:   jobID,
			Type:    jobs.EventTypeError,
			Status:  domain.JobStatusFailed,
			Message: err.Error(),
		})

		var pipelineErr *subtitles.PipelineError
		if errors.As(err, &pipelineErr) && pipelineErr.CommandLog.Command != "" {
			a.publishEvent(jobs.Event{
				JobID:    jobID,
				Type:     jobs.EventTypeLog,
				Message:  "Failed command",
				Command:  pipelineErr.CommandLog.Command,
				Args:     pipelineErr.CommandLog.Args,
				ExitCode: pipelineErr.CommandLog.ExitCode,
				Stdout:   pipelineErr.CommandLog.Stdout,
				Stderr:   pipelineErr.CommandLog.Stderr,
			})
		}

		a.clearActiveJob(jobID)
		return
	}

	if result.Stopped {
		_ = a.Jobs.Transition(domain.JobStatusCancelled)
		a.publishStatus(jobID, domain.JobStatusCancelled, "Job stopped")
		if result.Subtitles.Content != "" {
			a.publishResult(jobID, result, "Subtitles downloaded before stop")
		}
		a.clearActiveJob(jobID)
		return
	}

	if err := a.Jobs.Transition(domain.JobStatusDone); err == nil {
		a.publishStatus(jobID, domain.JobStatusDone, "Job completed")
	}

	message := "Subtitles downloaded"
	if result.Generated {
		message = "Chapters generated"
	}
	a.publishResult(jobID, result, message)
	a.clearActiveJob(jobID)
}

// publishResult sends the subtitle and chapter payload to subscribers.
func (a *App) publishResult(jobID string, result subtitles.Result, message string) {
	a.publishEvent(jobs.Event{
		JobID:        jobID,
		Type:         jobs.EventTypeResult,
		Status:       a.Jobs.Current().Status,
		Message:      message,
		Title:        result.Title,
		Language:     result.Subtitles.Language,
		SubtitlePath: result.Subtitles.FilePath,
		Subtitles:    result.Subtitles.Content,
		Chapters:     result.Chapters,
	})
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(jobID string, status domain.JobStatus, message string) {
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", published)
	}
}

// clearActiveJob clears the active job handle for completed job IDs.
func (a *App) clearActiveJob(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeJobID == jobID {
		a.activeJobID = ""
	}
}

// persistHistory syncs the live history store into persisted settings.
func (a *App) persistHistory() error {
	settings := a.currentSettings()
	settings.InstructionHistory = a.History.Entries()
	settings.InstructionHistoryLimit = a.History.Capacity()

	if err := a.Store.Save(settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()
	return nil
}

// currentSettings returns a snapshot of in-memory settings.
func (a *App) currentSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Settings
}

// refreshDiagnosticsFromSettings reruns checks against given settings.
func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

// mapStageToStatus maps pipeline stage names to job statuses.
func mapStageToStatus(stage string) (domain.JobStatus, bool) {
	switch stage {
	case "checking":
		return domain.JobStatusChecking, true
	case "downloading":
		return domain.JobStatusDownloading, true
	case "generating":
		return domain.JobStatusGenerating, true
	default:
		return "", false
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and repairs invalid values. An empty
// language is preserved: it selects the automatic track mode.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.Model = domain.NormalizeModel(strings.TrimSpace(settings.Model))
	settings.Language = strings.TrimSpace(settings.Language)
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.WindowGeometry = strings.TrimSpace(settings.WindowGeometry)
	settings.LastURL = strings.TrimSpace(settings.LastURL)
	if settings.InstructionHistoryLimit == 0 {
		settings.InstructionHistoryLimit = history.DefaultCapacity
	}
	settings.InstructionHistoryLimit = history.ClampCapacity(settings.InstructionHistoryLimit)
	return settings
}

// parseGeometry reads a "WIDTHxHEIGHT" string, falling back to defaults.
func parseGeometry(geometry string) (width, height int) {
	parts := strings.Split(strings.TrimSpace(geometry), "x")
	if len(parts) != 2 {
		return defaultWindowWidth, defaultWindowHeight
	}

	w, errW := strconv.Atoi(parts[0])
	h, errH := strconv.Atoi(parts[1])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return defaultWindowWidth, defaultWindowHeight
	}
	return w, h
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
