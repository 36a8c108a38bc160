package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"video-chapters/internal/credentials"
	"video-chapters/internal/domain"
	"video-chapters/internal/gemini"
	"video-chapters/internal/subtitles"
)

// runOptions collects the resolved command-line inputs for one run.
type runOptions struct {
	url            string
	apiKey         string
	language       string
	model          string
	outputDir      string
	instructions   string
	keepFiles      bool
	showSubtitles  bool
	nonInteractive bool
	checkLanguages bool
	quiet          bool
}

func newRootCommand() *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "chapters [url]",
		Short: "Generate timecoded chapters for a video from its auto-generated subtitles",
		Long: "chapters downloads the auto-generated subtitles for a video with yt-dlp " +
			"and asks Gemini to produce timecoded chapter titles from the transcript.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.url = args[0]
			configureLogger()
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "Gemini API key (falls back to GEMINI_API_KEY, then the OS keychain)")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Preferred subtitle language code (empty selects automatically)")
	cmd.Flags().StringVarP(&opts.model, "model", "m", domain.DefaultModel, "Gemini model to use")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "Directory for downloaded subtitles and saved chapters")
	cmd.Flags().StringVarP(&opts.instructions, "instructions", "i", "", "Extra instructions passed to the model")
	cmd.Flags().BoolVar(&opts.keepFiles, "keep-files", false, "Keep downloaded subtitle files")
	cmd.Flags().BoolVar(&opts.showSubtitles, "show-subtitles", false, "Print the downloaded subtitles")
	cmd.Flags().BoolVarP(&opts.nonInteractive, "non-interactive", "y", false, "Never prompt; save chapters without asking")
	cmd.Flags().BoolVar(&opts.checkLanguages, "check-languages", false, "List available subtitle languages and exit")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress progress output")

	return cmd
}

// run executes one CLI invocation end to end.
func run(ctx context.Context, opts runOptions) error {
	pipeline := subtitles.NewPipeline(gemini.NewClient())

	if opts.checkLanguages {
		return printAvailableLanguages(ctx, pipeline, opts.url)
	}

	apiKey, err := resolveAPIKey(opts.apiKey)
	if err != nil {
		return err
	}
	if apiKey == "" {
		return fmt.Errorf("a Gemini API key is required: pass --api-key, set GEMINI_API_KEY, or store one in the OS keychain")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	pipeline.ResetStop()
	installStopHandler(pipeline, cancel, opts.quiet)

	req := subtitles.Request{
		URL: opts.url,
		Options: domain.ProcessingOptions{
			Language:           opts.language,
			APIKey:             apiKey,
			Model:              opts.model,
			KeepFiles:          opts.keepFiles,
			OutputDir:          opts.outputDir,
			ShowSubtitles:      opts.showSubtitles,
			NonInteractive:     opts.nonInteractive,
			CustomInstructions: opts.instructions,
		},
		OnProgress: func(message string) {
			if !opts.quiet {
				fmt.Println(message)
			}
		},
	}

	result, runErr := pipeline.Run(ctx, req)
	if !opts.keepFiles {
		defer pipeline.Cleanup()
	}

	if opts.showSubtitles && result.Subtitles.Content != "" {
		fmt.Println()
		fmt.Println(result.Subtitles.Content)
	}

	if runErr != nil {
		// A failed generation still downloaded the transcript; point the
		// user at it before reporting the error.
		if result.Subtitles.Content != "" && opts.keepFiles {
			fmt.Fprintf(os.Stderr, "Subtitles were downloaded to: %s\n", result.Subtitles.FilePath)
		}
		return runErr
	}

	if result.Stopped {
		if !opts.quiet {
			fmt.Println("Stopped; chapters were not generated.")
		}
		return nil
	}

	if !result.Generated {
		return nil
	}

	fmt.Println()
	fmt.Println(result.Chapters)

	if !opts.nonInteractive && !confirmSave() {
		return nil
	}

	dir := strings.TrimSpace(opts.outputDir)
	if dir == "" {
		dir = "."
	}
	path, err := subtitles.SaveChapters(dir, result.Title, result.Chapters)
	if err != nil {
		return err
	}
	if !opts.quiet {
		fmt.Printf("Chapters saved to: %s\n", path)
	}
	return nil
}

// resolveAPIKey picks the key from flag, environment, then OS keychain.
func resolveAPIKey(flagValue string) (string, error) {
	if key := strings.TrimSpace(flagValue); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); key != "" {
		return key, nil
	}

	key, err := credentials.NewKeyringStore().Get()
	if err != nil {
		return "", fmt.Errorf("read API key from keychain: %w", err)
	}
	return key, nil
}

// printAvailableLanguages lists the offered subtitle tracks by category.
func printAvailableLanguages(ctx context.Context, pipeline *subtitles.Pipeline, url string) error {
	classification, err := pipeline.AvailableLanguages(ctx, url)
	if err != nil {
		return err
	}
	if classification.IsEmpty() {
		fmt.Println("No auto-generated subtitles are available for this video.")
		return nil
	}

	printBucket := func(label string, codes []string) {
		if len(codes) == 0 {
			return
		}
		fmt.Printf("%s:\n", label)
		for _, code := range codes {
			fmt.Printf("  %s\n", code)
		}
	}

	printBucket("Original language", classification.Original)
	printBucket("Available languages", classification.Standard)
	printBucket("Auto-translated", classification.AutoTranslated)
	return nil
}

// installStopHandler wires Ctrl-C to a cooperative stop. A second interrupt
// aborts the run outright.
func installStopHandler(pipeline *subtitles.Pipeline, cancel context.CancelFunc, quiet bool) {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt)

	go func() {
		<-signals
		if !quiet {
			fmt.Fprintln(os.Stderr, "Stop requested, finishing current step (press Ctrl-C again to abort)")
		}
		pipeline.RequestStop()

		<-signals
		cancel()
	}()
}

// confirmSave asks whether to write the chapter file.
func confirmSave() bool {
	fmt.Print("Save chapters to file? [Y/n] ")
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes":
		return true
	default:
		return false
	}
}
