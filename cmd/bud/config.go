package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// fileConfig is the persisted CLI configuration at
// ~/.config/bud/config.yaml.
type fileConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write the persistent CLI configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "bud", "config.yaml"), nil
}

func loadFileConfig() (fileConfig, error) {
	var cfg fileConfig
	path, err := configPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func saveFileConfig(cfg fileConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	switch args[0] {
	case "base_url":
		fmt.Fprintln(cmd.OutOrStdout(), cfg.BaseURL)
	case "api_key":
		fmt.Fprintln(cmd.OutOrStdout(), cfg.APIKey)
	case "model":
		fmt.Fprintln(cmd.OutOrStdout(), cfg.Model)
	default:
		return fmt.Errorf("unknown key %q (expected base_url, api_key, or model)", args[0])
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	switch args[0] {
	case "base_url":
		cfg.BaseURL = args[1]
	case "api_key":
		cfg.APIKey = args[1]
	case "model":
		cfg.Model = args[1]
	default:
		return fmt.Errorf("unknown key %q (expected base_url, api_key, or model)", args[0])
	}
	return saveFileConfig(cfg)
}
