package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/XinsongDu/Twitter-Tracker/internal/dispatcher"
	"github.com/XinsongDu/Twitter-Tracker/pkg/auth"
	"github.com/XinsongDu/Twitter-Tracker/pkg/config"
	"github.com/XinsongDu/Twitter-Tracker/pkg/crawler"
	errs "github.com/XinsongDu/Twitter-Tracker/pkg/errors"
	"github.com/XinsongDu/Twitter-Tracker/pkg/lanes"
	"github.com/XinsongDu/Twitter-Tracker/pkg/logger"
	"github.com/XinsongDu/Twitter-Tracker/pkg/metrics"
	"github.com/XinsongDu/Twitter-Tracker/pkg/models"
	"github.com/XinsongDu/Twitter-Tracker/pkg/progress"
	"github.com/XinsongDu/Twitter-Tracker/pkg/proxy"
	"github.com/XinsongDu/Twitter-Tracker/pkg/storage"
	"github.com/XinsongDu/Twitter-Tracker/pkg/twitter"
	"github.com/XinsongDu/Twitter-Tracker/pkg/ui"
)

// crawl command flags
var (
	credentialsFile string
	proxiesFile     string
	outputDir       string
	progressFile    string
	workers         int
	noPrecheck      bool
	metricsAddr     string
	redisAddr       string
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Track account timelines listed in the progress file",
	Long: `Track the timelines of the accounts in the progress file (users.json by default).

Each account is paged backward from its newest post down to the stored
since_id. New posts are appended to <output>/<YYYYMMDD>/<user_id> and the
progress file is rewritten after every account.`,
	Example: `  twtracker timeline -c config.json -p proxies.json --progress users.json
  twtracker timeline -w 4 --no-precheck --metrics-addr :9090`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCrawl(cmd.Context(), config.ModeTimeline)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Track keyword searches listed in the progress file",
	Long: `Track the standing searches in the progress file (search.json by default).

Terms are combined as "a" OR "b". New posts are appended to
<output>/<YYYYMMDD>/<output_filename or md5 of the query>.`,
	Example: `  twtracker search -c config.json --progress search.json
  twtracker search --redis-addr localhost:6379`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCrawl(cmd.Context(), config.ModeSearch)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{timelineCmd, searchCmd} {
		rootCmd.AddCommand(cmd)
		cmd.Flags().StringVarP(&credentialsFile, "credentials", "c", "", "config.json holding the apikeys map")
		cmd.Flags().StringVarP(&proxiesFile, "proxies", "p", "", "proxies.json file")
		cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory")
		cmd.Flags().StringVar(&progressFile, "progress", "", "progress file (default users.json or search.json)")
		cmd.Flags().IntVarP(&workers, "workers", "w", 0, "maximum concurrent units")
		cmd.Flags().BoolVar(&noPrecheck, "no-precheck", false, "skip the startup proxy liveness check")
		cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
		cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "mirror progress into this Redis")
	}
}

func crawlFlags(mode string) map[string]interface{} {
	flags := baseFlags()
	flags["mode"] = mode
	flags["credentials"] = credentialsFile
	flags["proxies"] = proxiesFile
	flags["output"] = outputDir
	flags["progress"] = progressFile
	flags["workers"] = workers
	flags["no-precheck"] = noPrecheck
	flags["metrics-addr"] = metricsAddr
	flags["redis-addr"] = redisAddr
	return flags
}

func kindFor(mode string) models.Kind {
	if mode == config.ModeTimeline {
		return models.KindUser
	}
	return models.KindQuery
}

// interruptContexts returns a drain context cancelled by the first signal
// and a work context cancelled by the second
func interruptContexts(parent context.Context, log logger.Logger) (drain, work context.Context, stop func()) {
	drain, cancelDrain := context.WithCancel(parent)
	work, cancelWork := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			log.Warn("Interrupt received, waiting for running units to finish (interrupt again to abort them)")
			ui.PrintWarning("Stopping after in-flight units complete")
			cancelDrain()
		case <-done:
			return
		}
		select {
		case <-sigCh:
			log.Error("Second interrupt, aborting running units")
			cancelWork()
		case <-done:
		}
	}()

	return drain, work, func() {
		signal.Stop(sigCh)
		close(done)
		cancelDrain()
		cancelWork()
	}
}

func runCrawl(parent context.Context, mode string) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load(configFile, crawlFlags(mode))
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}
	log := logger.GetLogger().WithField("mode", mode)

	ui.PrintBanner()
	ui.PrintInfo("Mode", mode)
	ui.PrintInfo("Progress", cfg.ProgressPath())
	ui.PrintInfo("Output", cfg.Output.BaseDirectory)

	ctx, workCtx, stop := interruptContexts(parent, log)
	defer stop()

	creds, err := loadCredentials(cfg, log)
	if err != nil {
		return err
	}

	checker := proxy.NewHTTPChecker(cfg.Proxy.CheckURL, cfg.Proxy.CheckTimeout)
	endpoints, err := loadProxies(ctx, cfg, checker, log)
	if err != nil {
		return err
	}

	pool := lanes.NewPool(lanes.Partition(creds, endpoints))
	ui.PrintInfo("Lanes", strconv.Itoa(pool.Len()))

	out, err := storage.NewManager(cfg.Output.BaseDirectory)
	if err != nil {
		return err
	}

	factory := twitter.NewFactory(cfg.Platform, log)
	engine := crawler.NewEngine(crawler.FactoryConnector(factory), checker, out, crawler.OptionsFromConfig(cfg.Crawl), log)

	store := progress.NewStore(cfg.ProgressPath(), cfg.Output.BaseDirectory, kindFor(mode), log)
	if cfg.Progress.Backup {
		if err := store.Backup(); err != nil {
			log.WithError(err).Warn("Progress backup failed")
		}
	}

	if cfg.Redis.Addr != "" {
		mirror, err := progress.NewRedisMirror(ctx, cfg.Redis)
		if err != nil {
			log.WithError(err).Warn("Redis mirror disabled")
			ui.PrintWarning("Redis mirror disabled", err)
		} else {
			defer mirror.Close()
			store.WithMirror(mirror)
			ui.PrintInfo("Redis mirror", cfg.Redis.Addr)
		}
	}

	if cfg.Metrics.Addr != "" {
		metricsCtx, cancelMetrics := context.WithCancel(context.Background())
		defer cancelMetrics()
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.Metrics.Addr, log); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	build := func(targets map[string]models.Target) *dispatcher.Dispatcher {
		return dispatcher.New(store, pool, engine, targets, dispatcher.Options{
			Workers:      cfg.Crawl.Workers,
			PollInterval: cfg.Crawl.LanePollInterval,
			WorkContext:  workCtx,
		}, log)
	}

	ui.PrintHighlight("[CRAWL STARTED]")
	logger.LogComponentStart(log, "supervisor", map[string]interface{}{
		"lanes":   pool.Len(),
		"workers": cfg.Crawl.Workers,
	})

	sup := dispatcher.NewSupervisor(store, build, cfg.Crawl.RestartDelay, log)
	err = sup.Run(ctx)
	log.InfoWithFields("Crawl finished", map[string]interface{}{
		"records_written": out.GetWrittenCount(),
		"restarts":        sup.Restarts(),
	})
	ui.PrintInfo("Records written", strconv.FormatInt(out.GetWrittenCount(), 10))
	switch {
	case errors.Is(err, dispatcher.ErrNoActiveTargets):
		logger.LogComponentStop(log, "supervisor", "no active targets")
		ui.PrintWarning("Every target has been removed, nothing left to track")
		return nil
	case err != nil:
		logger.LogComponentStop(log, "supervisor", err.Error())
		return err
	}

	logger.LogComponentStop(log, "supervisor", "interrupted")
	ui.PrintSuccess("[CRAWL STOPPED - PROGRESS SAVED]")
	return nil
}

// loadCredentials merges the credentials file with stored sets
func loadCredentials(cfg *config.Config, log logger.Logger) ([]auth.CredentialSet, error) {
	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("Credential stores unavailable, using the credentials file only")
		manager = nil
	}

	sets, err := auth.Resolve(cfg.Crawl.CredentialsFile, manager)
	if err != nil {
		return nil, err
	}

	creds := make([]auth.CredentialSet, len(sets))
	for i, s := range sets {
		creds[i] = *s
	}
	log.InfoWithFields("Credential sets loaded", map[string]interface{}{"count": len(creds)})
	return creds, nil
}

// loadProxies reads the proxy list and, unless disabled, keeps only live ones
func loadProxies(ctx context.Context, cfg *config.Config, checker proxy.Checker, log logger.Logger) ([]proxy.Endpoint, error) {
	if cfg.Proxy.File == "" {
		ui.PrintInfo("Proxies", "none, connecting directly")
		return nil, nil
	}

	endpoints, err := proxy.LoadFile(cfg.Proxy.File)
	if err != nil {
		return nil, err
	}
	if !cfg.Proxy.Precheck || len(endpoints) == 0 {
		return endpoints, nil
	}

	live, err := proxy.FilterLive(ctx, checker, endpoints, cfg.Proxy.PrecheckConcurrency)
	if err != nil {
		return nil, err
	}
	log.InfoWithFields("Proxy precheck finished", map[string]interface{}{
		"total": len(endpoints),
		"live":  len(live),
	})
	ui.PrintInfo("Live proxies", fmt.Sprintf("%d/%d", len(live), len(endpoints)))

	if len(live) == 0 {
		return nil, errs.NewConfigurationError("proxies", "none of the %d proxies in %s is live", len(endpoints), cfg.Proxy.File)
	}
	return live, nil
}
