package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/XinsongDu/Twitter-Tracker/pkg/auth"
	"github.com/XinsongDu/Twitter-Tracker/pkg/config"
	"github.com/XinsongDu/Twitter-Tracker/pkg/proxy"
	"github.com/XinsongDu/Twitter-Tracker/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage settings files",
	Long: `Manage twtracker settings files.

Settings are layered, highest priority first:
  - Command line flags
  - Environment variables (TWTRACKER_*)
  - .env files
  - Settings file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example settings file",
	Long: `Create an example settings file with all available options.

The file is created as '.twtracker.yaml' in the current directory unless a
different path is given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective settings",
	Long: `Show the settings after every source has been applied.

The Redis password is masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate settings and referenced files",
	Long: `Validate the settings and the files they point at.

This command checks:
  - YAML syntax and value ranges
  - The credentials file and stored credential sets
  - The proxies file
  - The progress file
  - Output and log directories`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

const exampleConfig = `# twtracker settings
#
# Every value can also be set through environment variables prefixed with
# TWTRACKER_, for example TWTRACKER_WORKERS or TWTRACKER_REDIS_ADDR.

crawl:
  # timeline or search
  mode: search
  # config.json holding {"apikeys": {"<name>": {"app_key": ..., "app_secret": ...}}}
  credentials_file: ./config.json
  # Upper bound on concurrent units; the effective value is also capped by
  # the number of lanes and active targets
  workers: 8
  # Failed requests allowed per target run
  retry_budget: 5
  page_delay: 1s
  transient_delay: 10s
  # Added to the platform's rate-limit reset time
  rate_limit_padding: 10s
  # Wait used when the reset time is unknown or already past
  rate_limit_fallback: 60s
  lane_poll_interval: 5s
  restart_delay: 5s
  timeline_page_size: 200
  search_page_size: 100

platform:
  base_url: https://api.twitter.com
  token_url: https://api.twitter.com/oauth2/token
  user_agent: twtracker/1.0
  request_timeout: 30s
  requests_per_second: 1
  token_retries: 3

proxy:
  # proxies.json: ["host:port", {"proxy": "host:port", "type": "socks5"}]
  file: ""
  check_url: https://api.twitter.com/1.1/help/configuration.json
  check_timeout: 5s
  precheck: true
  precheck_concurrency: 16

output:
  base_directory: ./data/

progress:
  # Defaults to users.json (timeline) or search.json (search)
  file: ""
  backup: true

# Optional progress mirror
redis:
  addr: ""
  password: ""
  db: 0
  key_prefix: twtracker

metrics:
  # e.g. :9090 to serve /metrics
  addr: ""

logging:
  level: info
  file: twtracker.log
  # MB
  max_size: 50
  max_backups: 10
  max_age: 0
  compress: false
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".twtracker.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		ui.PrintError("Settings file already exists", path)
		ui.Println("\nTo overwrite, first remove the existing file:")
		ui.Println("  rm " + path)
		return fmt.Errorf("%s already exists", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to create settings file: %w", err)
	}

	ui.PrintSuccess("Settings file created: " + path)
	ui.Println("\nNext steps:")
	ui.Println("1. Add credential sets with 'twtracker auth add' or a config.json file")
	ui.Println("2. Add targets with 'twtracker progress add-user' or 'add-search'")
	ui.Println("3. Run 'twtracker config validate'")
	ui.Println("4. Start with 'twtracker timeline' or 'twtracker search'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, baseFlags())
	if err != nil {
		return err
	}

	display := *cfg
	if display.Redis.Password != "" {
		display.Redis.Password = "***"
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format settings: %w", err)
	}

	ui.PrintHighlight("Effective Settings")
	ui.Println()
	ui.Println(string(data))

	ui.Println("Sources (in order of priority):")
	ui.Println("1. Command line flags")
	ui.Println("2. Environment variables (TWTRACKER_*)")
	ui.Println("3. .env and ~/.twtracker.env")
	if configFile != "" {
		ui.Println("4. Settings file: " + configFile)
	} else {
		ui.Println("4. Settings file: (default locations)")
	}
	ui.Println("5. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, baseFlags())
	if err != nil {
		ui.PrintError("Settings validation failed", err)
		return err
	}

	var warnings, problems []string

	manager, err := auth.NewManager()
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("credential stores unavailable: %v", err))
		manager = nil
	}
	if sets, err := auth.Resolve(cfg.Crawl.CredentialsFile, manager); err != nil {
		problems = append(problems, fmt.Sprintf("credentials: %v", err))
	} else {
		ui.PrintInfo("Credential sets", fmt.Sprintf("%d", len(sets)))
	}

	if cfg.Proxy.File != "" {
		if eps, err := proxy.LoadFile(cfg.Proxy.File); err != nil {
			problems = append(problems, fmt.Sprintf("proxies: %v", err))
		} else {
			ui.PrintInfo("Proxies", fmt.Sprintf("%d", len(eps)))
		}
	}

	if _, err := os.Stat(cfg.ProgressPath()); err != nil {
		warnings = append(warnings, fmt.Sprintf("progress file %s: %v", cfg.ProgressPath(), err))
	}

	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create output directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Settings warnings:")
		for _, w := range warnings {
			ui.Println("  - " + w)
		}
	}
	if len(problems) > 0 {
		ui.PrintError("Settings have errors:")
		for _, p := range problems {
			ui.PrintError("  - " + p)
		}
		return fmt.Errorf("%d problem(s) found", len(problems))
	}

	ui.PrintSuccess("Settings are valid")
	ui.Println("\nSummary:")
	ui.Println(fmt.Sprintf("  Mode: %s", cfg.Crawl.Mode))
	ui.Println(fmt.Sprintf("  Progress file: %s", cfg.ProgressPath()))
	ui.Println(fmt.Sprintf("  Output directory: %s", cfg.Output.BaseDirectory))
	ui.Println(fmt.Sprintf("  Workers: %d", cfg.Crawl.Workers))
	ui.Println(fmt.Sprintf("  Retry budget: %d", cfg.Crawl.RetryBudget))
	ui.Println(fmt.Sprintf("  Log level: %s", cfg.Logging.Level))
	return nil
}
