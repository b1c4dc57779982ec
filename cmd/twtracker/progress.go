package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/XinsongDu/Twitter-Tracker/pkg/config"
	"github.com/XinsongDu/Twitter-Tracker/pkg/logger"
	"github.com/XinsongDu/Twitter-Tracker/pkg/models"
	"github.com/XinsongDu/Twitter-Tracker/pkg/progress"
	"github.com/XinsongDu/Twitter-Tracker/pkg/ui"
)

var (
	progressMode   string
	showFromRedis  bool
	searchTerms    []string
	searchLang     string
	searchGeocode  string
	searchOutput   string
	searchTargetID string
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Inspect and edit the progress file",
	Long: `Inspect and edit the progress file that holds every tracked target
and its since_id watermark.`,
}

var progressShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List tracked targets and their watermarks",
	Example: `  twtracker progress show --mode timeline
  twtracker progress show --from-redis --redis-addr localhost:6379`,
	Args: cobra.NoArgs,
	RunE: runProgressShow,
}

var progressAddUserCmd = &cobra.Command{
	Use:     "add-user <user_id>...",
	Short:   "Track account timelines",
	Example: `  twtracker progress add-user 783214 17919972 --progress users.json`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runProgressAddUser,
}

var progressAddSearchCmd = &cobra.Command{
	Use:   "add-search",
	Short: "Track a keyword search",
	Long: `Track a keyword search. Terms are lowercased and combined as "a" OR "b".

The target is keyed by --id, defaulting to --output-filename or the md5 of the query.`,
	Example: `  twtracker progress add-search --terms vaccine,vaccination --lang en
  twtracker progress add-search --terms flu --output-filename flu --progress search.json`,
	Args: cobra.NoArgs,
	RunE: runProgressAddSearch,
}

func init() {
	rootCmd.AddCommand(progressCmd)
	progressCmd.AddCommand(progressShowCmd)
	progressCmd.AddCommand(progressAddUserCmd)
	progressCmd.AddCommand(progressAddSearchCmd)

	progressCmd.PersistentFlags().StringVar(&progressFile, "progress", "", "progress file (default users.json or search.json)")
	progressCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "output directory")

	progressShowCmd.Flags().StringVar(&progressMode, "mode", "", "timeline or search (default from settings)")
	progressShowCmd.Flags().BoolVar(&showFromRedis, "from-redis", false, "read the Redis mirror instead of the file")
	progressShowCmd.Flags().StringVar(&redisAddr, "redis-addr", "", "Redis address (default from settings)")

	progressAddSearchCmd.Flags().StringSliceVar(&searchTerms, "terms", nil, "comma separated search terms")
	progressAddSearchCmd.Flags().StringVar(&searchLang, "lang", "", "restrict results to a language")
	progressAddSearchCmd.Flags().StringVar(&searchGeocode, "geocode", "", "restrict results to lat,long,radius")
	progressAddSearchCmd.Flags().StringVar(&searchOutput, "output-filename", "", "output file name for the raw posts")
	progressAddSearchCmd.Flags().StringVar(&searchTargetID, "id", "", "key of the target in the progress file")
	_ = progressAddSearchCmd.MarkFlagRequired("terms")
}

func loadProgressConfig(mode string) (*config.Config, error) {
	flags := baseFlags()
	flags["mode"] = mode
	flags["progress"] = progressFile
	flags["output"] = outputDir
	flags["redis-addr"] = redisAddr
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runProgressShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadProgressConfig(progressMode)
	if err != nil {
		return err
	}
	kind := kindFor(cfg.Crawl.Mode)

	var targets []models.Target
	if showFromRedis {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("no Redis address configured, use --redis-addr")
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		mirror, err := progress.NewRedisMirror(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer mirror.Close()

		byID, err := mirror.Load(ctx, kind)
		if err != nil {
			return err
		}
		for _, t := range byID {
			targets = append(targets, t)
		}
		sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })

		if at, err := mirror.UpdatedAt(ctx, kind); err == nil && !at.IsZero() {
			ui.PrintInfo("Last commit", at.Local().Format(time.DateTime))
		}
		ui.PrintInfo("Source", "redis "+cfg.Redis.Addr)
	} else {
		store := progress.NewStore(cfg.ProgressPath(), cfg.Output.BaseDirectory, kind, logger.GetLogger())
		if _, err := store.Load(); err != nil {
			return err
		}
		targets = store.Targets()
		ui.PrintInfo("Source", cfg.ProgressPath())
	}

	ui.PrintInfo("Mode", cfg.Crawl.Mode)
	ui.Println()
	ui.PrintTargets(targets)
	return nil
}

func runProgressAddUser(cmd *cobra.Command, args []string) error {
	cfg, err := loadProgressConfig(config.ModeTimeline)
	if err != nil {
		return err
	}

	targets := make([]models.Target, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid user id %q", arg)
		}
		targets = append(targets, models.Target{
			ID:     strconv.FormatInt(id, 10),
			Kind:   models.KindUser,
			UserID: id,
		})
	}

	return upsertTargets(cfg, models.KindUser, targets)
}

func runProgressAddSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadProgressConfig(config.ModeSearch)
	if err != nil {
		return err
	}

	t := models.Target{
		Kind:           models.KindQuery,
		Terms:          searchTerms,
		Lang:           searchLang,
		Geocode:        searchGeocode,
		OutputFilename: searchOutput,
	}
	t.Query = t.QueryString()
	if t.Query == "" {
		return fmt.Errorf("at least one non-empty term is required")
	}

	t.ID = searchTargetID
	if t.ID == "" {
		t.ID = t.OutputName()
	}

	return upsertTargets(cfg, models.KindQuery, []models.Target{t})
}

func upsertTargets(cfg *config.Config, kind models.Kind, targets []models.Target) error {
	store := progress.NewStore(cfg.ProgressPath(), cfg.Output.BaseDirectory, kind, logger.GetLogger())
	added, err := store.Upsert(targets...)
	if err != nil {
		return err
	}

	if skipped := len(targets) - added; skipped > 0 {
		ui.PrintWarning(fmt.Sprintf("%d target(s) already tracked", skipped))
	}
	ui.PrintSuccess(fmt.Sprintf("Added %d target(s) to %s", added, cfg.ProgressPath()))
	return nil
}
