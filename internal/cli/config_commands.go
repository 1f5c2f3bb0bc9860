// Package cli provides configuration management commands.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tablerag/tablerag-client/internal/api"
	"github.com/tablerag/tablerag-client/internal/config"
	"github.com/tablerag/tablerag-client/internal/constants"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage tablerag configuration",
		Long: `Configuration management commands for tablerag.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  set   - Change one configuration key
  test  - Test the API connection
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigSetCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.GetDefaultConfigPath()
}

// readLine prompts and returns the trimmed answer, or def when it is empty.
func readLine(reader *bufio.Reader, out io.Writer, prompt, def string) string {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(out, "%s: ", prompt)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for tablerag.

The configuration is saved to ~/.config/tablerag/config.csv (or --config).
Use --force to overwrite an existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			path := configPath()
			out := cmd.OutOrStdout()

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(out, "Configuration already exists at: %s\n", path)
					fmt.Fprintln(out, "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			fmt.Fprintln(out, "TableRAG Configuration Setup")
			fmt.Fprintln(out, "============================")
			fmt.Fprintln(out)

			reader := bufio.NewReader(cmd.InOrStdin())
			cfg := config.Default()

			cfg.APIBaseURL = readLine(reader, out, "API Base URL", constants.DefaultAPIBaseURL)

			interval := readLine(reader, out, "Poll interval in ms", strconv.Itoa(cfg.PollIntervalMS))
			if v, err := strconv.Atoi(interval); err == nil && v > 0 {
				cfg.PollIntervalMS = v
			}

			cfg.DefaultExcelDir = readLine(reader, out, "Default excel_dir (empty: server default)", "")
			cfg.DefaultDocDir = readLine(reader, out, "Default doc_dir (empty: server default)", "")

			fmt.Fprintln(out)
			if ok, _ := promptConfirm(reader, out, "Configure proxy?"); ok {
				fmt.Fprintln(out, "Proxy modes: no-proxy, system, basic, ntlm")
				cfg.ProxyMode = readLine(reader, out, "Proxy mode", "system")
				if cfg.ProxyMode == "basic" || cfg.ProxyMode == "ntlm" {
					cfg.ProxyHost = readLine(reader, out, "Proxy host", "")
					if v, err := strconv.Atoi(readLine(reader, out, "Proxy port", "8080")); err == nil && v > 0 {
						cfg.ProxyPort = v
					}
					cfg.ProxyUser = readLine(reader, out, "Proxy user (password is asked at runtime)", "")
				}
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.SaveConfigCSV(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			logger.Info().Str("path", path).Msg("Configuration saved")

			fmt.Fprintln(out)
			fmt.Fprintf(out, "Configuration saved to: %s\n", path)
			fmt.Fprintln(out, "Test your configuration with: tablerag config test")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/tablerag/config.csv)
  2. Environment variables (` + constants.EnvAPIURL + `, ` + constants.EnvPollIntervalMS + `, .env)
  3. Command-line flags (--api-url)

Priority: flags > environment > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			path := configPath()
			cfg, err := config.LoadConfigCSV(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.MergeWithFlags(apiBaseURL, "", "", 0)

			values := make(map[string]string)
			for _, record := range cfg.Records() {
				if record[0] == "s3_secret_access_key" && record[1] != "" {
					record[1] = "<set>"
				}
				values[record[0]] = record[1]
			}

			return printResult(cmd, values, func(w io.Writer) error {
				fmt.Fprintln(w, "Current Configuration")
				fmt.Fprintln(w, "=====================")
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				for _, record := range cfg.Records() {
					fmt.Fprintf(tw, "  %s\t%s\n", record[0], values[record[0]])
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(w, "\nConfiguration file: %s\n", path)
				if _, err := os.Stat(path); os.IsNotExist(err) {
					fmt.Fprintln(w, "  (file does not exist - using defaults)")
				}
				return nil
			})
		},
	}

	return cmd
}

// newConfigSetCmd creates the 'config set' command.
func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one configuration key",
		Long: `Set one key in the configuration file, creating the file if needed.

Example:
  tablerag config set poll_interval_ms 2000`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			cfg, err := config.LoadConfigCSV(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			key := strings.ToLower(strings.TrimSpace(args[0]))
			if key == "proxy_password" {
				return fmt.Errorf("proxy_password is never stored; you are prompted for it at runtime")
			}
			if err := cfg.Set(key, args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := config.SaveConfigCSV(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, args[1])
			return nil
		},
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test API connection",
		Long: `Test the API connection with the current configuration, proxy included.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			out := cmd.OutOrStdout()

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			fmt.Fprintf(out, "API URL: %s\n", cfg.APIBaseURL)
			fmt.Fprintln(out, "Testing connection...")

			apiClient, err := api.NewClient(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to create API client: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			health, err := apiClient.Health(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("Connection test failed")
				fmt.Fprintln(out, "Connection FAILED")
				fmt.Fprintf(out, "  Error: %v\n", err)
				return fmt.Errorf("connection test failed")
			}

			logger.Info().Msg("Connection test successful")
			fmt.Fprintln(out, "Connection SUCCESSFUL")
			fmt.Fprintf(out, "  Server status:  %s\n", health.Status)
			fmt.Fprintf(out, "  Server version: %s\n", health.Version)
			return nil
		},
	}

	return cmd
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := configPath()
			fmt.Fprintln(out, path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(out, "  (file does not exist)")
			}
			return nil
		},
	}

	return cmd
}
