package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	igerrors "igsync/pkg/errors"
	"igsync/pkg/ui"
)

const exampleConfig = `# igsync configuration
#
# Values may reference the environment as ${NAME} or the secret store as
# ${secret:NAME} (see 'igsync secret guide'). Any IGSYNC_* variable
# overrides the file, e.g. IGSYNC_RATE_REQUESTS_PER_MINUTE=20.

logging:
  level: info
  # JSON log file, rotated by size; leave empty for console only
  file_path: ""
  max_size: 10485760   # bytes
  backup_count: 5
  console: true

rate_limits:
  requests_per_minute: 30
  delay_between_accounts: 2.0   # seconds
  delay_between_posts: 1.0      # seconds
  # share the per-minute budget between processes
  # redis_url: redis://localhost:6379/0

airtable:
  api_key: ${secret:airtable_api_key}
  base_id: ${AIRTABLE_BASE_ID}
  active_accounts_table: Accounts
  content_table: Content
  requests_per_second: 5

instagram:
  api_key: ${secret:rapidapi_key}
  host: instagram-scraper-api2.p.rapidapi.com
  timeout: 30s

retry:
  max_attempts: 3
  base_delay: 1s
  max_delay: 30s
  multiplier: 2.0
  jitter: 0.1

sync:
  scrape_content: false
  max_records: 0       # 0 means all active accounts
  max_post_pages: 5
  interval: 1h
  # checkpoint_dir: ""

# journal:
#   database_url: postgres://igsync@localhost/igsync?sslmode=disable

server:
  addr: ":8080"
`

func newConfigCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
		Long: `Manage igsync configuration files.

Configuration is loaded from (highest priority first):
  - Command line flags
  - IGSYNC_* environment variables
  - Configuration file (with ${NAME} and ${secret:NAME} placeholders)
  - Default values`,
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example configuration file",
		Long: `Write an example configuration file with every option.

The file is created as 'config.yaml' in the current directory unless a path
is given with --config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := o.configFile
			if path == "" {
				path = "config.yaml"
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(exampleConfig), 0600); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			ui.PrintSuccess("Configuration file created: " + path)
			ui.Println("\nNext steps:")
			ui.Println("1. Store your API keys with 'igsync secret set airtable_api_key' and 'igsync secret set rapidapi_key'")
			ui.Println("2. Set AIRTABLE_BASE_ID or edit airtable.base_id")
			ui.Println("3. Run 'igsync config validate'")
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig(nil)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg.Masked())
			if err != nil {
				return fmt.Errorf("failed to format configuration: %w", err)
			}
			ui.PrintHighlight("Current Configuration")
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Load the configuration from every source and report all problems at once:
malformed YAML, unset ${NAME} or ${secret:NAME} references, missing required
keys and out-of-range values.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig(nil)
			if err != nil {
				var cfgErr *igerrors.ConfigError
				if errors.As(err, &cfgErr) {
					ui.PrintError("Configuration has errors:")
					for _, p := range cfgErr.Problems {
						ui.PrintError("  - " + p)
					}
				}
				return err
			}

			ui.PrintSuccess("Configuration is valid")
			ui.Println("\nConfiguration summary:")
			ui.PrintInfo("  Base", cfg.Airtable.BaseID)
			ui.PrintInfo("  Accounts table", cfg.Airtable.ActiveAccountsTable)
			if cfg.Airtable.ContentTable != "" {
				ui.PrintInfo("  Content table", cfg.Airtable.ContentTable)
			}
			ui.PrintInfo("  Rate limit", fmt.Sprintf("%d requests/minute", cfg.RateLimits.RequestsPerMinute))
			ui.PrintInfo("  Account spacing", cfg.RateLimits.AccountDelay().String())
			ui.PrintInfo("  Post spacing", cfg.RateLimits.PostDelay().String())
			ui.PrintInfo("  Max retries", fmt.Sprintf("%d", cfg.Retry.MaxAttempts))
			ui.PrintInfo("  Log level", cfg.Logging.Level)
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd, validateCmd)
	return cmd
}
