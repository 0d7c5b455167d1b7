package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ndomo/wasend/internal/app"
	"github.com/ndomo/wasend/internal/config"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wasend",
	Short: "wasend - paced WhatsApp campaign sender",
	Long: `wasend sends WhatsApp campaigns through an UltraMsg-style gateway
with human-looking pacing, per-campaign dedup and resumable sessions.`,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wasend version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default wasend.yaml if present)")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd, versionCmd)
}

// loadConfig resolves the effective configuration: the -c flag, then
// wasend.yaml in the working directory, then built-in defaults.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("wasend.yaml"); err == nil {
			path = "wasend.yaml"
		} else {
			return config.Default(), nil
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openApp builds the application from the effective configuration.
// Callers own Close.
func openApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	application, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	return application, nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Gateway: %s\n", cfg.Provider.BaseURL)
	fmt.Printf("  Instance: %s\n", cfg.Provider.InstanceID)
	fmt.Printf("  Data dir: %s\n", cfg.Storage.DataDir)
	fmt.Printf("  API: %s (enabled: %t)\n", cfg.API.ListenAddr, cfg.API.Enabled)
	fmt.Printf("  Pattern: %s\n", cfg.Pacing.BehaviorPattern)

	return nil
}
