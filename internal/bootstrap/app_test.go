package bootstrap

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"video-chapters/internal/config"
	"video-chapters/internal/diagnostics"
	"video-chapters/internal/domain"
	"video-chapters/internal/history"
	"video-chapters/internal/jobs"
	"video-chapters/internal/subtitles"
)

// fakeStore returns deterministic settings and records saves for App tests.
type fakeStore struct {
	mu       sync.Mutex
	settings domain.Settings
	saved    []domain.Settings
}

// Load returns preconfigured settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

// Save records the settings snapshot and makes it the current one.
func (s *fakeStore) Save(settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.saved = append(s.saved, settings)
	return nil
}

// lastSaved returns the most recent persisted snapshot.
func (s *fakeStore) lastSaved() (domain.Settings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return domain.Settings{}, false
	}
	return s.saved[len(s.saved)-1], true
}

// fakePipeline allows injecting custom run behavior per test.
type fakePipeline struct {
	mu      sync.Mutex
	run     func(ctx context.Context, req subtitles.Request) (subtitles.Result, error)
	stopped bool
}

// Run delegates to injected function.
func (p *fakePipeline) Run(ctx context.Context, req subtitles.Request) (subtitles.Result, error) {
	if p.run == nil {
		return subtitles.Result{}, nil
	}
	return p.run(ctx, req)
}

// AvailableLanguages returns an empty classification in tests.
func (p *fakePipeline) AvailableLanguages(context.Context, string) (subtitles.Classification, error) {
	return subtitles.Classification{}, nil
}

// RequestStop records that a stop was requested.
func (p *fakePipeline) RequestStop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

// ResetStop clears a recorded stop request.
func (p *fakePipeline) ResetStop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = false
}

// Cleanup is a no-op for tests.
func (p *fakePipeline) Cleanup() {}

// stopRequested reports whether RequestStop was called.
func (p *fakePipeline) stopRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// newTestApp wires an App with fakes and an empty history store.
func newTestApp(store *fakeStore, pipeline *fakePipeline) *App {
	return &App{
		Settings: store.settings,
		Store:    store,
		Jobs:     jobs.NewManager(),
		Pipeline: pipeline,
		History:  history.NewStore(0, nil),
		events:   jobs.NewEventBus(100),
	}
}

// TestStartProcessingEnforcesSingleRunningJob checks single-job guard.
func TestStartProcessingEnforcesSingleRunningJob(t *testing.T) {
	release := make(chan struct{})
	store := &fakeStore{settings: domain.Settings{Model: domain.DefaultModel, Language: "en"}}
	pipeline := &fakePipeline{run: func(ctx context.Context, req subtitles.Request) (subtitles.Result, error) {
		<-release
		return subtitles.Result{Stopped: true}, nil
	}}
	app := newTestApp(store, pipeline)

	if _, err := app.StartProcessing("https://example.com/watch?v=1", ""); err != nil {
		t.Fatalf("start first job: %v", err)
	}
	if _, err := app.StartProcessing("https://example.com/watch?v=2", ""); !errors.Is(err, jobs.ErrJobAlreadyRunning) {
		t.Fatalf("second start error = %v, want %v", err, jobs.ErrJobAlreadyRunning)
	}

	close(release)
	waitForStatus(t, app, domain.JobStatusCancelled)
}

// TestStartProcessingPublishesProgressAndResultEvents checks event flow for
// a full run with generated chapters.
func TestStartProcessingPublishesProgressAndResultEvents(t *testing.T) {
	store := &fakeStore{settings: domain.Settings{Model: domain.DefaultModel, Language: "en"}}
	pipeline := &fakePipeline{run: func(ctx context.Context, req subtitles.Request) (subtitles.Result, error) {
		if req.OnStage != nil {
			req.OnStage("checking")
			req.OnStage("downloading")
			req.OnStage("generating")
		}
		if req.OnProgress != nil {
			req.OnProgress("Selected language: en")
		}
		if req.OnLog != nil {
			req.OnLog(subtitles.CommandLog{Command: "yt-dlp", ExitCode: 0})
		}
		return subtitles.Result{
			Title: "My Talk",
			Subtitles: domain.SubtitleInfo{
				Language: "en",
				FilePath: "/tmp/My Talk.en.srt",
				Content:  "1\n00:00:00,000 --> 00:00:01,000\nhello\n",
			},
			Chapters:  "00:00 - Intro",
			Generated: true,
		}, nil
	}}
	app := newTestApp(store, pipeline)

	if _, err := app.StartProcessing("https://example.com/watch?v=1", ""); err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusDone)
	events := app.JobEvents(0)
	assertEventTypeExists(t, events, jobs.EventTypeStatus)
	assertEventTypeExists(t, events, jobs.EventTypeProgress)
	assertEventTypeExists(t, events, jobs.EventTypeLog)

	result := findEventByType(t, events, jobs.EventTypeResult)
	if result.Chapters != "00:00 - Intro" {
		t.Fatalf("result chapters = %q", result.Chapters)
	}
	if result.Title != "My Talk" || result.Language != "en" {
		t.Fatalf("unexpected result metadata: %+v", result)
	}
}

// TestStartProcessingDeliversSubtitlesOnGenerationFailure checks the
// downloaded transcript is not lost when the AI step fails.
func TestStartProcessingDeliversSubtitlesOnGenerationFailure(t *testing.T) {
	store := &fakeStore{settings: domain.Settings{Model: domain.DefaultModel, Language: "en"}}
	pipeline := &fakePipeline{run: func(ctx context.Context, req subtitles.Request) (subtitles.Result, error) {
		result := subtitles.Result{
			Subtitles: domain.SubtitleInfo{
				Language: "en",
				FilePath: "/tmp/clip.en.srt",
				Content:  "transcript text",
			},
		}
		return result, &subtitles.PipelineError{
			Stage:   "generating",
			Message: "chapter generation failed",
			Err:     errors.New("quota exceeded"),
		}
	}}
	app := newTestApp(store, pipeline)

	if _, err := app.StartProcessing("https://example.com/watch?v=1", ""); err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusFailed)
	events := app.JobEvents(0)
	assertEventTypeExists(t, events, jobs.EventTypeError)

	result := findEventByType(t, events, jobs.EventTypeResult)
	if result.Subtitles != "transcript text" {
		t.Fatalf("result subtitles = %q, want downloaded transcript", result.Subtitles)
	}
	if result.Chapters != "" {
		t.Fatalf("result chapters = %q, want empty", result.Chapters)
	}
}

// TestStartProcessingRecordsInstructionHistory checks custom instructions
// are added to history and persisted before the run.
func TestStartProcessingRecordsInstructionHistory(t *testing.T) {
	store := &fakeStore{settings: domain.Settings{Model: domain.DefaultModel, Language: "en"}}
	pipeline := &fakePipeline{run: func(ctx context.Context, req subtitles.Request) (subtitles.Result, error) {
		if req.OnStage != nil {
			req.OnStage("downloading")
		}
		return subtitles.Result{
			Subtitles: domain.SubtitleInfo{Language: "en", Content: "transcript"},
		}, nil
	}}
	app := newTestApp(store, pipeline)

	if _, err := app.StartProcessing("https://example.com/watch?v=1", "titles in Spanish"); err != nil {
		t.Fatalf("start job: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusDone)

	entries := app.GetInstructionHistory()
	if len(entries) != 1 || entries[0].Content != "titles in Spanish" {
		t.Fatalf("history entries = %+v", entries)
	}

	saved, ok := store.lastSaved()
	if !ok {
		t.Fatal("expected settings to be persisted")
	}
	if len(saved.InstructionHistory) != 1 {
		t.Fatalf("persisted history = %+v", saved.InstructionHistory)
	}
	if saved.LastURL != "https://example.com/watch?v=1" {
		t.Fatalf("persisted last URL = %q", saved.LastURL)
	}
}

// TestStopProcessingWithoutJob returns the no-running-job error.
func TestStopProcessingWithoutJob(t *testing.T) {
	store := &fakeStore{settings: domain.Settings{Model: domain.DefaultModel}}
	app := newTestApp(store, &fakePipeline{})

	if err := app.StopProcessing(); !errors.Is(err, jobs.ErrNoRunningJob) {
		t.Fatalf("stop error = %v, want %v", err, jobs.ErrNoRunningJob)
	}
}

// TestStopProcessingRequestsPipelineStop checks stop is forwarded and the
// job ends cancelled when the pipeline honors the flag.
func TestStopProcessingRequestsPipelineStop(t *testing.T) {
	release := make(chan struct{})
	store := &fakeStore{settings: domain.Settings{Model: domain.DefaultModel, Language: "en"}}
	pipeline := &fakePipeline{}
	pipeline.run = func(ctx context.Context, req subtitles.Request) (subtitles.Result, error) {
		<-release
		return subtitles.Result{
			Subtitles: domain.SubtitleInfo{Language: "en", Content: "partial"},
			Stopped:   true,
		}, nil
	}
	app := newTestApp(store, pipeline)

	if _, err := app.StartProcessing("https://example.com/watch?v=1", ""); err != nil {
		t.Fatalf("start job: %v", err)
	}
	if err := app.StopProcessing(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !pipeline.stopRequested() {
		t.Fatal("expected stop request to reach the pipeline")
	}

	close(release)
	waitForStatus(t, app, domain.JobStatusCancelled)
}

// TestSaveSettingsNormalizesModelAndLimit checks invalid inputs are repaired
// before persisting.
func TestSaveSettingsNormalizesModelAndLimit(t *testing.T) {
	store := &fakeStore{settings: domain.Settings{Model: domain.DefaultModel}}
	app := newTestApp(store, &fakePipeline{})

	saved, err := app.SaveSettings(domain.Settings{
		Model:                   "not-a-model",
		InstructionHistoryLimit: 500,
	})
	if err != nil {
		t.Fatalf("save settings: %v", err)
	}
	if saved.Model != domain.DefaultModel {
		t.Fatalf("model = %s, want %s", saved.Model, domain.DefaultModel)
	}
	if saved.InstructionHistoryLimit != history.MaxCapacity {
		t.Fatalf("limit = %d, want %d", saved.InstructionHistoryLimit, history.MaxCapacity)
	}
}

// TestSetInstructionHistoryLimitPersists checks the applied value is clamped
// and written back to settings.
func TestSetInstructionHistoryLimitPersists(t *testing.T) {
	store := &fakeStore{settings: domain.Settings{Model: domain.DefaultModel}}
	app := newTestApp(store, &fakePipeline{})

	applied, err := app.SetInstructionHistoryLimit(-5)
	if err != nil {
		t.Fatalf("set limit: %v", err)
	}
	if applied != history.MinCapacity {
		t.Fatalf("applied = %d, want %d", applied, history.MinCapacity)
	}

	saved, ok := store.lastSaved()
	if !ok {
		t.Fatal("expected settings to be persisted")
	}
	if saved.InstructionHistoryLimit != history.MinCapacity {
		t.Fatalf("persisted limit = %d, want %d", saved.InstructionHistoryLimit, history.MinCapacity)
	}
}

// TestNormalizeSettingsKeepsAutomaticLanguage checks an unset language is
// preserved so track selection runs in automatic mode.
func TestNormalizeSettingsKeepsAutomaticLanguage(t *testing.T) {
	normalized := normalizeSettings(config.DefaultSettings())
	if normalized.Language != "" {
		t.Fatalf("language = %q, want empty for automatic selection", normalized.Language)
	}

	normalized = normalizeSettings(domain.Settings{Language: "  de  "})
	if normalized.Language != "de" {
		t.Fatalf("language = %q, want de", normalized.Language)
	}
}

// TestRefreshDiagnosticsRerunsChecks verifies the report and cached settings
// are updated from the store.
func TestRefreshDiagnosticsRerunsChecks(t *testing.T) {
	store := &fakeStore{settings: domain.Settings{Model: domain.DefaultModel, OutputDir: t.TempDir()}}
	app := newTestApp(store, &fakePipeline{})
	app.checker = diagnostics.NewCheckerForTests(
		func(name string) (string, error) { return "/usr/local/bin/" + name, nil },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
		func() (bool, error) { return true, nil },
	)

	report, err := app.RefreshDiagnostics()
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(report.Items) == 0 || report.HasFailures {
		t.Fatalf("unexpected report: %+v", report)
	}
	if app.currentSettings().OutputDir != store.settings.OutputDir {
		t.Fatal("settings were not refreshed from the store")
	}
}

// waitForStatus polls until job reaches desired status or times out.
func waitForStatus(t *testing.T, app *App, want domain.JobStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if app.CurrentJob().Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", app.CurrentJob().Status, want)
}

// assertEventTypeExists verifies at least one event of given type exists.
func assertEventTypeExists(t *testing.T, events []jobs.Event, want jobs.EventType) {
	t.Helper()
	for _, event := range events {
		if event.Type == want {
			return
		}
	}
	t.Fatalf("event type %s not found", want)
}

// findEventByType returns the first event of the given type.
func findEventByType(t *testing.T, events []jobs.Event, want jobs.EventType) jobs.Event {
	t.Helper()
	for _, event := range events {
		if event.Type == want {
			return event
		}
	}
	t.Fatalf("event type %s not found", want)
	return jobs.Event{}
}
