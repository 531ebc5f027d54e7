package cmd

import (
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/Yates-Labs/storyimager/internal/config"
	"github.com/Yates-Labs/storyimager/internal/imaging"
	"github.com/Yates-Labs/storyimager/internal/narrative"
	"github.com/Yates-Labs/storyimager/internal/orchestrator"
	"github.com/Yates-Labs/storyimager/internal/story"
	"github.com/chzyer/readline"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"
)

var (
	genre        string
	style        string
	tone         string
	language     string
	length       string
	perspective  string
	audience     string
	creativity   int
	chapters     bool
	noTitle      bool
	emojis       bool
	provider     string
	model        string
	mockScenario string
	timeout      time.Duration
	maxAttempts  int
	exportFile   string
	interactive  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [image...]",
	Short: "Generate a story from one or more images",
	Long: `Generate a story grounded in the given JPEG, PNG or WEBP images.

The API key is asked for interactively and never stored. Reading
GEMINI_API_KEY / OPENAI_API_KEY from the environment is only enabled when
ALLOW_ENV_API_KEY=true (or allow_env_api_key in the config file).

Examples:
  storyimager generate beach.jpg sunset.png --genre adventure --chapters
  storyimager generate cat.webp --length short --tone emotional --export story.md
  storyimager generate a.jpg b.jpg --export stories/ --interactive
  storyimager generate a.jpg --provider mock --mock-scenario rate_limit`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	flags := generateCmd.Flags()
	flags.StringVar(&genre, "genre", "", "Story genre (see `storyimager options`)")
	flags.StringVar(&style, "style", "", "Writing style")
	flags.StringVar(&tone, "tone", "", "Emotional tone")
	flags.StringVar(&language, "language", "", "Output language")
	flags.StringVar(&length, "length", "", "Story length: short, medium, long")
	flags.StringVar(&perspective, "perspective", "", "Narrative perspective")
	flags.StringVar(&audience, "audience", "", "Target audience")
	flags.IntVar(&creativity, "creativity", 0, "Creativity from 1 (grounded) to 10 (inventive)")
	flags.BoolVar(&chapters, "chapters", false, "Split the story into chapters")
	flags.BoolVar(&noTitle, "no-title", false, "Ask the model not to title the story")
	flags.BoolVar(&emojis, "emojis", false, "Allow emojis in the story")
	flags.StringVar(&provider, "provider", "", "Model provider: gemini, openai, mock")
	flags.StringVar(&model, "model", "", "Model name")
	flags.StringVar(&mockScenario, "mock-scenario", "", "Mock behaviour: success, timeout, rate_limit, invalid_response, error, auth")
	flags.DurationVar(&timeout, "timeout", 0, "Per-attempt model timeout")
	flags.IntVar(&maxAttempts, "max-attempts", 0, "Total model attempts including retries")
	flags.StringVar(&exportFile, "export", "", "Export to a file (.json, .md, .txt, optionally .gz) or directory")
	flags.BoolVar(&interactive, "interactive", false, "Keep the session open to tweak preferences and regenerate")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg := settings
	applyFlagOverrides(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	assets, err := readAssets(args)
	if err != nil {
		return err
	}

	svc, err := buildService(cfg)
	if err != nil {
		return err
	}
	generator := orchestrator.NewCache(svc, cfg.CacheTTL)

	key, err := resolveAPIKey(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	req := orchestrator.Request{
		Images:      assets,
		Preferences: cfg.Preferences,
		APIKey:      key,
	}

	out := cmd.OutOrStdout()
	if interactive {
		return runSession(ctx, out, generator, req)
	}

	s, err := generator.Generate(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, renderStory(s))

	if exportFile != "" {
		return handleExport(out, s, exportFile)
	}
	return nil
}

// applyFlagOverrides copies explicitly set flags over cfg.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	prefs := &cfg.Preferences

	if changed("genre") {
		prefs.Genre = narrative.Genre(genre)
	}
	if changed("style") {
		prefs.Style = narrative.Style(style)
	}
	if changed("tone") {
		prefs.Tone = narrative.Tone(tone)
	}
	if changed("language") {
		prefs.Language = narrative.Language(language)
	}
	if changed("length") {
		prefs.Length = narrative.Length(length)
	}
	if changed("perspective") {
		prefs.Perspective = narrative.Perspective(perspective)
	}
	if changed("audience") {
		prefs.Audience = narrative.Audience(audience)
	}
	if changed("creativity") {
		prefs.Creativity = creativity
	}
	if changed("chapters") {
		prefs.Chapters = chapters
	}
	if changed("no-title") {
		prefs.OmitTitle = noTitle
	}
	if changed("emojis") {
		prefs.AllowEmojis = emojis
	}

	if changed("provider") {
		cfg.Provider = provider
		if !changed("model") {
			cfg.Model = ""
		}
	}
	if changed("model") {
		cfg.Model = model
	}
	if changed("mock-scenario") {
		cfg.MockScenario = mockScenario
	}
	if changed("timeout") {
		cfg.Timeout = timeout
	}
	if changed("max-attempts") {
		cfg.MaxAttempts = maxAttempts
	}
}

// readAssets loads image files, declaring their type from the extension.
func readAssets(paths []string) ([]imaging.Asset, error) {
	assets := make([]imaging.Asset, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
		if mimeType == "" {
			mimeType = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		}
		assets = append(assets, imaging.Asset{
			Name:     filepath.Base(path),
			MIMEType: mimeType,
			Data:     data,
		})
	}
	return assets, nil
}

// buildService wires the configured model behind the retrying client.
func buildService(cfg config.Config) (*orchestrator.Service, error) {
	llmConfig := cfg.LLMConfig()

	var (
		llm narrative.LLM
		err error
	)
	if cfg.Provider == narrative.ProviderMock {
		llm, err = narrative.NewMockScenario(cfg.MockScenario)
	} else {
		llm, err = narrative.NewLLM(llmConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	client := narrative.NewClient(llm, llmConfig)
	return orchestrator.NewService(client, cfg.ServiceConfig())
}

// resolveAPIKey returns the key from the environment when allowed, otherwise
// asks for it without echo. The mock provider needs no real key.
func resolveAPIKey(cfg config.Config) (narrative.APIKey, error) {
	if cfg.Provider == narrative.ProviderMock {
		return narrative.APIKey("mock-key"), nil
	}

	key := cfg.APIKeyFromEnv(os.LookupEnv)
	if key.Empty() {
		prompted, err := promptAPIKey(cfg.Provider)
		if err != nil {
			return "", err
		}
		key = prompted
	}

	if cfg.Provider == narrative.ProviderGemini {
		if err := narrative.ValidateGeminiKey(key); err != nil {
			return "", err
		}
	}
	return key, nil
}

func promptAPIKey(providerName string) (narrative.APIKey, error) {
	rl, err := readline.New("")
	if err != nil {
		return "", fmt.Errorf("failed to open terminal: %w", err)
	}
	defer func() {
		_ = rl.Close()
	}()

	secret, err := rl.ReadPassword(fmt.Sprintf("%s API key: ", providerName))
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return narrative.APIKey(strings.TrimSpace(string(secret))), nil
}

func handleExport(out io.Writer, s *story.Story, path string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, story.Filename(s, story.FormatMarkdown))
	}

	if err := exportStory(s, path); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✓ Exported story to %s", path)))
	return nil
}

// exportStory writes s to path, gzip-compressed when path ends in .gz.
func exportStory(s *story.Story, path string) (err error) {
	format, err := story.FormatForPath(path)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return story.Export(s, format, file)
	}

	gz := gzip.NewWriter(file)
	if err := story.Export(s, format, gz); err != nil {
		_ = gz.Close()
		return err
	}
	return gz.Close()
}
