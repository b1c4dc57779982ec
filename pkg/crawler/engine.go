package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/XinsongDu/Twitter-Tracker/pkg/auth"
	"github.com/XinsongDu/Twitter-Tracker/pkg/config"
	errs "github.com/XinsongDu/Twitter-Tracker/pkg/errors"
	"github.com/XinsongDu/Twitter-Tracker/pkg/lanes"
	"github.com/XinsongDu/Twitter-Tracker/pkg/logger"
	"github.com/XinsongDu/Twitter-Tracker/pkg/models"
	"github.com/XinsongDu/Twitter-Tracker/pkg/proxy"
	"github.com/XinsongDu/Twitter-Tracker/pkg/ratelimit"
	"github.com/XinsongDu/Twitter-Tracker/pkg/retry"
	"github.com/XinsongDu/Twitter-Tracker/pkg/twitter"
)

// ErrNoLiveProxy is reported when every proxy of a lane failed its check
var ErrNoLiveProxy = errors.New("no live proxy in lane")

// API is the subset of the platform client a run needs
type API interface {
	UserTimeline(ctx context.Context, q twitter.TimelineQuery) ([]models.Record, error)
	Search(ctx context.Context, q twitter.SearchQuery) ([]models.Record, error)
	RateLimitStatus(ctx context.Context, resources ...string) (twitter.RateLimitStatus, error)
}

// Connector builds an API for a credential set, proxied when ep is non-nil
type Connector func(cred auth.CredentialSet, ep *proxy.Endpoint) (API, error)

// FactoryConnector adapts a twitter.Factory
func FactoryConnector(f *twitter.Factory) Connector {
	return func(cred auth.CredentialSet, ep *proxy.Endpoint) (API, error) {
		return f.Client(cred, ep)
	}
}

// RecordWriter appends fetched records to the target's output
type RecordWriter interface {
	AppendRecords(now time.Time, name string, records []models.Record) error
}

// Result is the outcome of one pagination run
type Result struct {
	// Target carries the new watermark and any resolved query fields
	Target models.Target
	// Retry asks the caller to try again with another lane
	Retry bool
	// Remove marks the target as permanently gone
	Remove  bool
	Pages   int
	Records int
	Calls   int
	// Err is the last failure seen, nil on a clean run
	Err error
}

// Options tune an Engine
type Options struct {
	Policy           retry.Policy
	PageDelay        time.Duration
	TimelinePageSize int
	SearchPageSize   int
	Sleep            retry.Sleeper
	Clock            func() time.Time
}

// OptionsFromConfig builds engine options from crawl settings
func OptionsFromConfig(cfg config.CrawlConfig) Options {
	return Options{
		Policy:           retry.PolicyFromConfig(cfg),
		PageDelay:        cfg.PageDelay,
		TimelinePageSize: cfg.TimelinePageSize,
		SearchPageSize:   cfg.SearchPageSize,
	}
}

// Engine pages backward through a target's new posts
type Engine struct {
	connect Connector
	checker proxy.Checker
	writer  RecordWriter
	opts    Options
	logger  logger.Logger
}

// NewEngine creates an engine. A nil checker treats every proxy as live.
func NewEngine(connect Connector, checker proxy.Checker, writer RecordWriter, opts Options, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Wait
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.TimelinePageSize <= 0 {
		opts.TimelinePageSize = twitter.MaxTimelineCount
	}
	if opts.SearchPageSize <= 0 {
		opts.SearchPageSize = twitter.MaxSearchCount
	}
	return &Engine{
		connect: connect,
		checker: checker,
		writer:  writer,
		opts:    opts,
		logger:  log.WithField("component", "crawler"),
	}
}

// Run fetches everything newer than the target's watermark using lane.
// Records are appended to the output file dated by now. The returned
// watermark only advances when the run completes.
func (e *Engine) Run(ctx context.Context, target models.Target, lane *lanes.Lane, now time.Time) Result {
	t := resolve(target)
	res := Result{Target: t}
	log := e.logger.WithFields(map[string]interface{}{
		"target": t.ID,
		"kind":   string(t.Kind),
		"lane":   lane.Name(),
	})

	ep, ok := e.selectProxy(ctx, lane, log)
	if !ok {
		res.Retry = true
		res.Err = ErrNoLiveProxy
		if ctx.Err() != nil {
			res.Retry = false
			res.Err = ctx.Err()
		}
		runsTotal.WithLabelValues("no_proxy").Inc()
		log.Warn("No live proxy, target will be retried on another lane")
		return res
	}

	api, err := e.connect(lane.Credentials, ep)
	if err != nil {
		res.Retry = true
		res.Err = err
		runsTotal.WithLabelValues("connect_failed").Inc()
		log.WithError(err).Error("Failed to build API client")
		return res
	}

	floor := t.SinceID
	watermark := floor
	prevMaxID, maxID := int64(-1), int64(0)
	budget := e.opts.Policy.NewBudget()
	name := t.OutputName()
	kind := string(t.Kind)

	for maxID != prevMaxID {
		if err := ctx.Err(); err != nil {
			return e.abort(res, err, log)
		}

		records, err := e.fetch(ctx, api, t, floor, maxID)
		res.Calls++
		apiCallsTotal.WithLabelValues(kind).Inc()
		if err == nil {
			err = e.writer.AppendRecords(now, name, records)
		}

		if err != nil {
			if ctx.Err() != nil {
				return e.abort(res, ctx.Err(), log)
			}
			switch errs.Classify(err) {
			case errs.ClassRateLimit:
				if werr := e.waitRateLimit(ctx, api, t.Kind, err, log); werr != nil {
					return e.abort(res, werr, log)
				}
				continue
			case errs.ClassPermanent:
				res.Remove = true
				res.Target.Removed = true
				res.Err = err
				runsTotal.WithLabelValues("removed").Inc()
				log.WithError(err).Warn("Target is gone, removing it")
				return res
			}

			res.Err = err
			delay := e.opts.Policy.TransientWait(budget.Used() + 1)
			retriesTotal.WithLabelValues("transient").Inc()
			log.WithError(err).WarnWithFields("Request failed, backing off", map[string]interface{}{
				"delay":     delay,
				"remaining": budget.Remaining() - 1,
			})
			if werr := e.opts.Sleep(ctx, delay); werr != nil {
				return e.abort(res, werr, log)
			}
			budget.Consume()
			if budget.Exhausted() {
				res.Err = fmt.Errorf("retry budget exhausted after %d failures: %w", budget.Used(), err)
				runsTotal.WithLabelValues("exhausted").Inc()
				log.WithError(err).Error("Retry budget exhausted, keeping previous watermark")
				return res
			}
			continue
		}

		prevMaxID = maxID
		for _, r := range records {
			if maxID == 0 || r.ID < maxID {
				maxID = r.ID
			}
			if r.ID > watermark {
				watermark = r.ID
			}
		}
		res.Pages++
		res.Records += len(records)
		pagesTotal.WithLabelValues(kind).Inc()
		recordsTotal.WithLabelValues(kind).Add(float64(len(records)))

		if maxID == prevMaxID {
			break
		}
		if err := e.opts.Sleep(ctx, e.opts.PageDelay); err != nil {
			return e.abort(res, err, log)
		}
	}

	res.Target.SinceID = watermark
	res.Err = nil
	runsTotal.WithLabelValues("completed").Inc()
	log.InfoWithFields("Run completed", map[string]interface{}{
		"records":  res.Records,
		"calls":    res.Calls,
		"since_id": watermark,
	})
	return res
}

// abort ends a run on cancellation, keeping the starting watermark
func (e *Engine) abort(res Result, err error, log logger.Logger) Result {
	res.Retry = false
	res.Remove = false
	res.Err = err
	runsTotal.WithLabelValues("aborted").Inc()
	log.WithError(err).Warn("Run aborted")
	return res
}

// selectProxy advances the lane's cursor until a proxy passes its check.
// Direct lanes return a nil endpoint. Dead proxies cost no budget.
func (e *Engine) selectProxy(ctx context.Context, lane *lanes.Lane, log logger.Logger) (*proxy.Endpoint, bool) {
	if lane.Direct() {
		return nil, true
	}
	for range lane.Proxies {
		ep, _ := lane.NextProxy()
		if e.checker == nil {
			return &ep, true
		}
		if err := e.checker.Check(ctx, ep); err != nil {
			if ctx.Err() != nil {
				return nil, false
			}
			retriesTotal.WithLabelValues("proxy").Inc()
			log.WithError(err).WarnWithFields("Proxy failed liveness check, skipping", map[string]interface{}{
				"proxy": ep.Address,
			})
			continue
		}
		return &ep, true
	}
	return nil, false
}

// fetch issues one page request bounded below by floor and, once a page
// has been seen, above by maxID-1
func (e *Engine) fetch(ctx context.Context, api API, t models.Target, floor, maxID int64) ([]models.Record, error) {
	var upper int64
	if maxID > 0 {
		upper = maxID - 1
	}

	if t.Kind == models.KindUser {
		return api.UserTimeline(ctx, twitter.TimelineQuery{
			UserID:  t.TimelineUserID(),
			SinceID: floor,
			MaxID:   upper,
			Count:   e.opts.TimelinePageSize,
		})
	}
	return api.Search(ctx, twitter.SearchQuery{
		Query:   t.Query,
		SinceID: floor,
		MaxID:   upper,
		Count:   e.opts.SearchPageSize,
		Lang:    t.Lang,
		Geocode: t.Geocode,
	})
}

// windowed is implemented by clients that track rate limit headers
type windowed interface {
	Window() *ratelimit.Window
}

// waitRateLimit sleeps until the window of the failed call resets. The
// reset comes from the status endpoint, then the error's header, then the
// last exhausted window the client recorded, else the fallback delay applies.
func (e *Engine) waitRateLimit(ctx context.Context, api API, kind models.Kind, cause error, log logger.Logger) error {
	resource, apiName := resourceFor(kind)

	var reset time.Time
	if status, err := api.RateLimitStatus(ctx, resource); err == nil {
		if epoch, ok := status.Reset(resource, apiName); ok {
			reset = time.Unix(epoch, 0)
		}
	} else {
		log.WithError(err).Debug("Rate limit status lookup failed")
	}
	if reset.IsZero() {
		var rl *errs.RateLimitError
		if errors.As(cause, &rl) {
			reset = rl.Reset
		}
	}
	if reset.IsZero() {
		if w, ok := api.(windowed); ok && w.Window().Exhausted(resource, e.opts.Clock()) {
			st, _ := w.Window().State(resource)
			reset = st.Reset
		}
	}

	wait := e.opts.Policy.RateLimitWait(reset, e.opts.Clock())
	retriesTotal.WithLabelValues("rate_limit").Inc()
	logger.LogRateLimit(log, resource, apiName, wait)
	return e.opts.Sleep(ctx, wait)
}

func resourceFor(kind models.Kind) (string, string) {
	if kind == models.KindUser {
		return twitter.ResourceStatuses, twitter.APIUserTimeline
	}
	return twitter.ResourceSearch, twitter.APISearchTweets
}

// resolve fills the derived search fields so they are persisted
func resolve(t models.Target) models.Target {
	if t.Kind == models.KindQuery {
		t.Query = t.QueryString()
		if t.OutputFilename == "" {
			t.OutputFilename = models.QueryHash(t.Query)
		}
	}
	return t
}
