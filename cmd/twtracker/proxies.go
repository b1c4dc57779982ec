package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/XinsongDu/Twitter-Tracker/pkg/config"
	"github.com/XinsongDu/Twitter-Tracker/pkg/logger"
	"github.com/XinsongDu/Twitter-Tracker/pkg/proxy"
	"github.com/XinsongDu/Twitter-Tracker/pkg/ui"
)

var (
	checkProxiesFile string
	checkOutputFile  string
	checkConcurrency int
)

var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "Inspect proxy lists",
}

var proxiesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check which proxies are live",
	Long: `Send one request through every proxy of the list and report the live ones.

With --output the live proxies are written as a new proxies file.`,
	Example: `  twtracker proxies check -p proxies.json
  twtracker proxies check -p proxies.json -o live.json --concurrency 32`,
	Args: cobra.NoArgs,
	RunE: runProxiesCheck,
}

func init() {
	rootCmd.AddCommand(proxiesCmd)
	proxiesCmd.AddCommand(proxiesCheckCmd)

	proxiesCheckCmd.Flags().StringVarP(&checkProxiesFile, "proxies", "p", "", "proxies.json file (default from settings)")
	proxiesCheckCmd.Flags().StringVarP(&checkOutputFile, "output", "o", "", "write live proxies to this file")
	proxiesCheckCmd.Flags().IntVar(&checkConcurrency, "concurrency", 0, "parallel checks (default from settings)")
}

func runProxiesCheck(cmd *cobra.Command, args []string) error {
	flags := baseFlags()
	flags["proxies"] = checkProxiesFile
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}
	if cfg.Proxy.File == "" {
		return fmt.Errorf("no proxies file given, use --proxies")
	}

	endpoints, err := proxy.LoadFile(cfg.Proxy.File)
	if err != nil {
		return err
	}

	concurrency := cfg.Proxy.PrecheckConcurrency
	if checkConcurrency > 0 {
		concurrency = checkConcurrency
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	checker := proxy.NewHTTPChecker(cfg.Proxy.CheckURL, cfg.Proxy.CheckTimeout)
	live, err := proxy.FilterLive(ctx, checker, endpoints, concurrency)
	if err != nil {
		return err
	}

	alive := make(map[string]bool, len(live))
	for _, ep := range live {
		alive[ep.String()] = true
	}
	for _, ep := range endpoints {
		if alive[ep.String()] {
			ui.Println(ui.Green("  live ") + ep.String())
		} else {
			ui.Println(ui.Red("  dead ") + ep.String())
		}
	}
	ui.Println()
	ui.PrintInfo("Live proxies", fmt.Sprintf("%d/%d", len(live), len(endpoints)))

	if checkOutputFile != "" {
		if err := proxy.SaveFile(checkOutputFile, live); err != nil {
			return err
		}
		ui.PrintSuccess("Live proxies written to " + checkOutputFile)
	}
	return nil
}
