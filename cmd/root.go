package cmd

import (
	"fmt"
	"os"

	"github.com/Yates-Labs/storyimager/internal/config"
	"github.com/Yates-Labs/storyimager/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string

	// settings is populated before any subcommand runs.
	settings = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "storyimager",
	Short: "Storyimager - turn images into stories",
	Long: `Storyimager writes a story grounded in the images you give it.

It validates and resizes the images, builds a structured prompt from your
genre, style and tone choices, calls a multimodal model (Gemini by default)
with retries, and splits the result into a titled, optionally chaptered story.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// loadSettings layers defaults, the config file and the environment.
func loadSettings(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()
	if configFile != "" {
		if err := cfg.LoadFile(configFile); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logging.Init(cfg.LogLevel)

	settings = cfg
	return nil
}

// Execute runs the root command
func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(1)
	}
}
