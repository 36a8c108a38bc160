package subtitles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"video-chapters/internal/domain"
)

// Request contains the video URL, run options, and execution callbacks.
type Request struct {
	URL        string
	Options    domain.ProcessingOptions
	OnStage    func(stage string)
	OnProgress func(message string)
	OnLog      func(log CommandLog)
}

// Result contains the downloaded subtitles and, when an API key was given
// and the run was not stopped, the generated chapter text.
type Result struct {
	Title     string
	Subtitles domain.SubtitleInfo
	Chapters  string
	Generated bool
	Stopped   bool
}

// CommandLog captures one yt-dlp invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// PipelineError is a stage-aware error with optional command context.
type PipelineError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats pipeline failures for logs and UI.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Generator is the AI collaborator that turns a prompt into chapter text.
type Generator interface {
	Generate(ctx context.Context, prompt, model, apiKey string) (string, error)
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// Pipeline orchestrates subtitle download and chapter generation for one
// video at a time. Downloaded artifacts are registered for later Cleanup
// unless the caller asked to keep files.
type Pipeline struct {
	ytdlpPath string
	runner    commandRunner
	generator Generator
	mkdirTemp func(dir, pattern string) (string, error)
	remove    func(path string) error
	stat      func(name string) (os.FileInfo, error)
	mkdirAll  func(path string, perm os.FileMode) error
	readDir   func(name string) ([]os.DirEntry, error)
	readFile  func(name string) ([]byte, error)

	stopping atomic.Bool

	mu        sync.Mutex
	tempFiles []string
}

// NewPipeline constructs the production pipeline with OS dependencies.
func NewPipeline(generator Generator) *Pipeline {
	return &Pipeline{
		ytdlpPath: "yt-dlp",
		runner:    &execRunner{},
		generator: generator,
		mkdirTemp: os.MkdirTemp,
		remove:    os.Remove,
		stat:      os.Stat,
		mkdirAll:  os.MkdirAll,
		readDir:   os.ReadDir,
		readFile:  os.ReadFile,
	}
}

// CleanURL undoes common shell-escaping artifacts in pasted URLs.
func CleanURL(url string) string {
	replacer := strings.NewReplacer(`\?`, "?", `\=`, "=", `\&`, "&")
	return replacer.Replace(url)
}

// RequestStop asks the pipeline to skip chapter generation. The in-flight
// download or AI call is not interrupted; the flag is honored at the next
// checkpoint.
func (p *Pipeline) RequestStop() {
	p.stopping.Store(true)
}

// ResetStop clears a previous stop request. Callers reset before starting a
// new run; Run itself never clears the flag, so a stop requested while the
// run is still being scheduled is not lost.
func (p *Pipeline) ResetStop() {
	p.stopping.Store(false)
}

// Stopping reports whether a stop was requested for the current run.
func (p *Pipeline) Stopping() bool {
	return p.stopping.Load()
}

// ListTracks queries the offered auto-generated subtitle tracks without
// downloading anything.
func (p *Pipeline) ListTracks(ctx context.Context, url string) (Catalog, error) {
	meta, err := p.probe(ctx, CleanURL(url), nil)
	if err != nil {
		return nil, err
	}
	return meta.tracks, nil
}

// AvailableLanguages classifies the offered tracks for display. An empty
// classification means the video has no auto-generated subtitles.
func (p *Pipeline) AvailableLanguages(ctx context.Context, url string) (Classification, error) {
	catalog, err := p.ListTracks(ctx, url)
	if err != nil {
		return Classification{}, err
	}
	return Classify(catalog), nil
}

// Run performs track selection, subtitle download, and chapter generation.
// When only the generation step fails, the returned result still carries the
// downloaded subtitles so callers can surface them.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	url := CleanURL(req.URL)
	if strings.TrimSpace(url) == "" {
		return Result{}, &PipelineError{
			Stage:   stageChecking,
			Message: "video URL is required",
		}
	}

	emitProgress(req.OnProgress, "Processing URL: "+url)
	emitStage(req.OnStage, stageChecking)

	meta, err := p.probe(ctx, url, req.OnLog)
	if err != nil {
		var pErr *PipelineError
		if errors.As(err, &pErr) {
			return Result{}, err
		}
		return Result{}, &PipelineError{
			Stage:   stageChecking,
			Message: "failed to query subtitle tracks",
			Err:     err,
		}
	}
	if len(meta.tracks) == 0 {
		return Result{}, &PipelineError{
			Stage:   stageChecking,
			Message: "no auto-generated subtitles found",
			Err:     ErrNoSubtitles,
		}
	}

	selected, err := Select(meta.tracks, req.Options.Language)
	if err != nil {
		return Result{}, &PipelineError{
			Stage:   stageChecking,
			Message: err.Error(),
			Err:     err,
		}
	}
	emitProgress(req.OnProgress, "Selected language: "+selected)

	workDir := strings.TrimSpace(req.Options.OutputDir)
	if workDir == "" {
		workDir, err = p.mkdirTemp("", "video-chapters-*")
		if err != nil {
			return Result{}, &PipelineError{
				Stage:   stageDownloading,
				Message: "failed to create temporary workspace",
				Err:     err,
			}
		}
	} else if err := p.mkdirAll(workDir, 0o755); err != nil {
		return Result{}, &PipelineError{
			Stage:   stageDownloading,
			Message: fmt.Sprintf("cannot create output directory: %s", workDir),
			Err:     err,
		}
	}

	emitStage(req.OnStage, stageDownloading)
	args := buildDownloadArgs(url, selected, workDir)
	cmdResult, runErr := p.runner.Run(ctx, p.ytdlpPath, args...)
	log := CommandLog{
		Command:  p.ytdlpPath,
		Args:     args,
		ExitCode: cmdResult.ExitCode,
		Stdout:   cmdResult.Stdout,
		Stderr:   cmdResult.Stderr,
	}
	emitLog(req.OnLog, log)
	if runErr != nil {
		return Result{}, &PipelineError{
			Stage:      stageDownloading,
			Message:    "subtitle download failed",
			CommandLog: log,
			Err:        runErr,
		}
	}

	subtitlePath, err := p.findSubtitleFile(workDir)
	if err != nil {
		return Result{}, &PipelineError{
			Stage:      stageDownloading,
			Message:    "no subtitle files were downloaded",
			CommandLog: log,
			Err:        err,
		}
	}
	if !req.Options.KeepFiles {
		p.register(subtitlePath)
	}

	content, err := p.readFile(subtitlePath)
	if err != nil {
		return Result{}, &PipelineError{
			Stage:   stageDownloading,
			Message: fmt.Sprintf("failed to read subtitle file: %s", subtitlePath),
			Err:     err,
		}
	}
	emitProgress(req.OnProgress, "Subtitles downloaded successfully")

	result := Result{
		Title: meta.title,
		Subtitles: domain.SubtitleInfo{
			Language: selected,
			FilePath: subtitlePath,
			Content:  string(content),
		},
	}

	if p.stopping.Load() {
		emitProgress(req.OnProgress, "Stopped before chapter generation")
		result.Stopped = true
		return result, nil
	}
	if req.Options.APIKey == "" {
		return result, nil
	}
	if p.generator == nil {
		return result, &PipelineError{
			Stage:   stageGenerating,
			Message: "no AI generator configured",
		}
	}

	emitStage(req.OnStage, stageGenerating)
	model := domain.NormalizeModel(req.Options.Model)
	emitProgress(req.OnProgress, "Processing with "+model+"...")

	prompt := BuildPrompt(req.Options.CustomInstructions, result.Subtitles.Content)
	chapters, err := p.generator.Generate(ctx, prompt, model, req.Options.APIKey)
	if err != nil {
		return result, &PipelineError{
			Stage:   stageGenerating,
			Message: "chapter generation failed",
			Err:     err,
		}
	}

	result.Chapters = chapters
	result.Generated = true
	emitProgress(req.OnProgress, "Processing completed successfully")
	return result, nil
}

// Cleanup removes every registered subtitle artifact, best effort. Failures
// are logged and never returned; calling it repeatedly is safe.
func (p *Pipeline) Cleanup() {
	p.mu.Lock()
	files := p.tempFiles
	p.tempFiles = nil
	p.mu.Unlock()

	for _, path := range files {
		if _, err := p.stat(path); err != nil {
			continue
		}
		if err := p.remove(path); err != nil {
			slog.Warn("could not remove temporary file", "path", path, "error", err)
		}
	}
}

// SaveChapters writes generated chapter text next to the subtitles using a
// sanitized file name derived from the video title.
func SaveChapters(dir, title, content string) (string, error) {
	name := sanitizeFilename(title)
	if name == "" {
		name = "chapters"
	}

	path := filepath.Join(dir, name+".txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("save chapters: %w", err)
	}
	return path, nil
}

// Pipeline stage names reported through OnStage.
const (
	stageChecking    = "checking"
	stageDownloading = "downloading"
	stageGenerating  = "generating"
)

// videoMeta is the probe result: title plus offered auto-caption tracks.
type videoMeta struct {
	title  string
	tracks Catalog
}

// probe runs yt-dlp metadata extraction and parses the track catalog.
func (p *Pipeline) probe(ctx context.Context, url string, onLog func(log CommandLog)) (videoMeta, error) {
	args := buildProbeArgs(url)
	cmdResult, runErr := p.runner.Run(ctx, p.ytdlpPath, args...)
	log := CommandLog{
		Command:  p.ytdlpPath,
		Args:     args,
		ExitCode: cmdResult.ExitCode,
		Stdout:   cmdResult.Stdout,
		Stderr:   cmdResult.Stderr,
	}
	emitLog(onLog, log)
	if runErr != nil {
		return videoMeta{}, &PipelineError{
			Stage:      stageChecking,
			Message:    "failed to query subtitle tracks",
			CommandLog: log,
			Err:        runErr,
		}
	}

	meta := videoMeta{
		title:  gjson.Get(cmdResult.Stdout, "title").String(),
		tracks: Catalog{},
	}
	gjson.Get(cmdResult.Stdout, "automatic_captions").ForEach(func(key, value gjson.Result) bool {
		meta.tracks[key.String()] = value.Value()
		return true
	})
	return meta, nil
}

// Title returns the video title for the given URL, used to name exports.
func (p *Pipeline) Title(ctx context.Context, url string) (string, error) {
	meta, err := p.probe(ctx, CleanURL(url), nil)
	if err != nil {
		return "", err
	}
	return meta.title, nil
}

// register records a downloaded artifact for later Cleanup.
func (p *Pipeline) register(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tempFiles = append(p.tempFiles, path)
}

// findSubtitleFile returns the first .srt file in the work directory.
func (p *Pipeline) findSubtitleFile(dir string) (string, error) {
	entries, err := p.readDir(dir)
	if err != nil {
		return "", err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".srt") {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", os.ErrNotExist
	}

	sort.Strings(names)
	return filepath.Join(dir, names[0]), nil
}

// emitStage forwards stage updates when callback is configured.
func emitStage(cb func(stage string), stage string) {
	if cb != nil {
		cb(stage)
	}
}

// emitProgress forwards human-readable messages; without a sink they go to
// standard output.
func emitProgress(cb func(message string), message string) {
	if cb != nil {
		cb(message)
		return
	}
	fmt.Println(message)
}

// emitLog forwards command logs when callback is configured.
func emitLog(cb func(log CommandLog), log CommandLog) {
	if cb != nil {
		cb(log)
	}
}

// buildProbeArgs builds yt-dlp args for metadata-only extraction.
func buildProbeArgs(url string) []string {
	return []string{
		"--dump-json",
		"--no-download",
		"--no-warnings",
		url,
	}
}

// buildDownloadArgs builds yt-dlp args for subtitle-only download.
func buildDownloadArgs(url, track, outputDir string) []string {
	return []string{
		"--skip-download",
		"--write-auto-subs",
		"--sub-langs", track,
		"--sub-format", "srt",
		"--convert-subs", "srt",
		"--no-warnings",
		"-o", filepath.Join(outputDir, "%(title)s.%(ext)s"),
		url,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^\w\s-]`)
	filenameSeparators  = regexp.MustCompile(`[-\s]+`)
)

// sanitizeFilename reduces a video title to a safe export file name.
func sanitizeFilename(title string) string {
	name := unsafeFilenameChars.ReplaceAllString(title, "")
	name = strings.TrimSpace(name)
	return filenameSeparators.ReplaceAllString(name, "-")
}

// NewPipelineForTests constructs a pipeline with injectable dependencies.
func NewPipelineForTests(
	ytdlpPath string,
	runner commandRunner,
	generator Generator,
	mkdirTemp func(dir, pattern string) (string, error),
	remove func(path string) error,
	stat func(name string) (os.FileInfo, error),
) *Pipeline {
	return &Pipeline{
		ytdlpPath: ytdlpPath,
		runner:    runner,
		generator: generator,
		mkdirTemp: mkdirTemp,
		remove:    remove,
		stat:      stat,
		mkdirAll:  os.MkdirAll,
		readDir:   os.ReadDir,
		readFile:  os.ReadFile,
	}
}
