package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	bud "github.com/budecosystem/bud-go"
)

var rootFlags struct {
	baseURL string
	apiKey  string
	timeout time.Duration
}

var rootCmd = &cobra.Command{
	Use:           "bud",
	Short:         "Client for the Bud inference gateway",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.baseURL, "base-url", "", "gateway base URL (default $BUD_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&rootFlags.apiKey, "api-key", "", "API key (default $BUD_API_KEY)")
	rootCmd.PersistentFlags().DurationVar(&rootFlags.timeout, "timeout", 0, "request timeout (default 60s)")
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	// Best effort: a missing .env is not an error.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bud:", err)
		os.Exit(1)
	}
}

// newClient builds a client from flags, environment, and the config file,
// in that precedence order.
func newClient() (*bud.Client, error) {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return nil, err
	}

	var opts []bud.Option
	switch {
	case rootFlags.baseURL != "":
		opts = append(opts, bud.WithBaseURL(rootFlags.baseURL))
	case os.Getenv("BUD_BASE_URL") == "" && fileCfg.BaseURL != "":
		opts = append(opts, bud.WithBaseURL(fileCfg.BaseURL))
	}
	switch {
	case rootFlags.apiKey != "":
		opts = append(opts, bud.WithAPIKey(rootFlags.apiKey))
	case os.Getenv("BUD_API_KEY") == "" && fileCfg.APIKey != "":
		opts = append(opts, bud.WithAPIKey(fileCfg.APIKey))
	}
	if rootFlags.timeout > 0 {
		opts = append(opts, bud.WithTimeout(rootFlags.timeout))
	}
	return bud.NewClient(opts...)
}

// defaultModel resolves the model to use when --model is not given.
func defaultModel(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if m := os.Getenv("BUD_MODEL"); m != "" {
		return m, nil
	}
	fileCfg, err := loadFileConfig()
	if err != nil {
		return "", err
	}
	if fileCfg.Model != "" {
		return fileCfg.Model, nil
	}
	return "", fmt.Errorf("no model specified: pass --model, set BUD_MODEL, or run `bud config set model <name>`")
}
