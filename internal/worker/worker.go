package worker

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/matejnovak/govsicrawl/internal/config"
	"github.com/matejnovak/govsicrawl/internal/fetcher"
	"github.com/matejnovak/govsicrawl/internal/metadata"
	"github.com/matejnovak/govsicrawl/internal/metrics"
	"github.com/matejnovak/govsicrawl/internal/render"
	"github.com/matejnovak/govsicrawl/internal/robots"
	"github.com/matejnovak/govsicrawl/internal/shingle"
	"github.com/matejnovak/govsicrawl/internal/sitemap"
	"github.com/matejnovak/govsicrawl/internal/store"
	"github.com/matejnovak/govsicrawl/pkg/limiter"
	"github.com/matejnovak/govsicrawl/pkg/retry"
	"github.com/matejnovak/govsicrawl/pkg/timeutil"
)

/*
Worker is one lease→fetch→classify→persist→discover cycle. N of these run
concurrently as independent goroutines, coordinated only through the
Store's atomic lease — never through a channel or shared in-memory
frontier. A Worker owns its own HTTP fetcher, HTTP client and render
Agent; the Store, rate limiter, robots cache, robots fetcher and sitemap
fetcher are shared across workers.
*/

// RobotsDecider is the subset of robots.CachedRobot a Worker depends on,
// narrowed so tests can supply a stub.
type RobotsDecider interface {
	Decide(u url.URL) (robots.Decision, *robots.RobotsError)
}

type Worker struct {
	id             int
	store          *store.Store
	fetcher        fetcher.Fetcher
	httpClient     *http.Client
	robot          RobotsDecider
	robotsFetcher  *robots.RobotsFetcher
	sitemapFetcher sitemap.Fetcher
	rateLimiter    limiter.RateLimiter
	renderAgent    *render.Agent
	sink           metadata.MetadataSink
	metrics        *metrics.Metrics
	cfg            config.Config
}

// New builds a Worker. renderAgent may be nil, in which case rendering is
// skipped and HTML pages are persisted as fetched. m may also be nil, in
// which case the worker simply doesn't record metrics.
func New(
	id int,
	st *store.Store,
	f fetcher.Fetcher,
	httpClient *http.Client,
	robot RobotsDecider,
	robotsFetcher *robots.RobotsFetcher,
	sitemapFetcher sitemap.Fetcher,
	rateLimiter limiter.RateLimiter,
	renderAgent *render.Agent,
	sink metadata.MetadataSink,
	m *metrics.Metrics,
	cfg config.Config,
) *Worker {
	return &Worker{
		id:             id,
		store:          st,
		fetcher:        f,
		httpClient:     httpClient,
		robot:          robot,
		robotsFetcher:  robotsFetcher,
		sitemapFetcher: sitemapFetcher,
		rateLimiter:    rateLimiter,
		renderAgent:    renderAgent,
		sink:           sink,
		metrics:        m,
		cfg:            cfg,
	}
}

// Run leases and processes pages until ctx is cancelled. An empty
// frontier is not immediately terminal — another worker may still be
// discovering new links — so a lease miss backs off by EmptyLeaseDelay
// and retries. Only after MaxNumberOfRetries consecutive misses does Run
// give up and return, on the assumption the frontier has genuinely run
// dry rather than just being momentarily starved.
func (w *Worker) Run(ctx context.Context) {
	w.fetcher.Init(w.httpClient, w.cfg.UserAgent())

	emptyLeases := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		page, err := w.store.Lease(time.Now())
		if err != nil {
			w.recordError("Lease", err)
			emptyLeases++
			if emptyLeases >= w.cfg.MaxNumberOfRetries() {
				return
			}
			time.Sleep(w.cfg.EmptyLeaseDelay())
			continue
		}
		if page == nil {
			emptyLeases++
			if emptyLeases >= w.cfg.MaxNumberOfRetries() {
				return
			}
			time.Sleep(w.cfg.EmptyLeaseDelay())
			continue
		}
		emptyLeases = 0
		if w.metrics != nil {
			w.metrics.PagesLeased.Inc()
		}

		w.process(ctx, page)
	}
}

// ProcessForTest exposes process to package worker's external test suite,
// which cannot reach unexported methods and has no reason to drive Run's
// lease-polling loop just to exercise a single page.
func (w *Worker) ProcessForTest(ctx context.Context, page *store.Page) {
	w.process(ctx, page)
}

func (w *Worker) process(ctx context.Context, page *store.Page) {
	now := time.Now()

	pageURL, err := url.Parse(page.URL)
	if err != nil {
		w.complete(page, store.TerminalFields{PageTypeCode: store.PageTypeError, HTTPStatusCode: 0, AccessedTime: now})
		return
	}

	site, err := w.store.GetOrCreateSite(ctx, w.robotsFetcher, w.sitemapFetcher, pageURL.Scheme, pageURL.Hostname(), w.cfg.MaxURLLen())
	if err != nil {
		w.recordError("GetOrCreateSite", err)
		w.complete(page, store.TerminalFields{PageTypeCode: store.PageTypeError, HTTPStatusCode: 0, AccessedTime: now})
		return
	}

	decision, robotsErr := w.robot.Decide(*pageURL)
	if robotsErr != nil {
		w.recordError("Decide", robotsErr)
		w.complete(page, store.TerminalFields{SiteID: site.ID, PageTypeCode: store.PageTypeError, HTTPStatusCode: 0, AccessedTime: now})
		return
	}
	if !decision.Allowed {
		w.complete(page, store.TerminalFields{SiteID: site.ID, PageTypeCode: store.PageTypeDisallowed, HTTPStatusCode: 500, AccessedTime: now})
		return
	}
	if decision.CrawlDelay > 0 {
		w.rateLimiter.SetCrawlDelay(pageURL.Hostname(), decision.CrawlDelay)
	}

	delay := w.rateLimiter.ResolveDelay(pageURL.Hostname())
	time.Sleep(delay)

	fetchStart := time.Now()
	fetchResult, fetchErr := w.fetcher.Fetch(ctx, 0, *pageURL, retryParam(w.cfg))
	w.rateLimiter.MarkLastFetchAsNow(pageURL.Hostname())
	if w.metrics != nil {
		w.metrics.ObserveFetch(time.Since(fetchStart))
	}
	if fetchErr != nil {
		w.recordError("Fetch", fetchErr)
		if w.metrics != nil {
			w.metrics.RecordFetchError("Fetch")
		}
		w.complete(page, store.TerminalFields{SiteID: site.ID, PageTypeCode: store.PageTypeError, HTTPStatusCode: 500, AccessedTime: now})
		return
	}

	contentType := fetchResult.Headers()["Content-Type"]
	isHTML, isImage, dataType, recognized := classifyContentType(contentType)

	switch {
	case isHTML:
		w.handleHTML(ctx, page, site, *pageURL, fetchResult, now)
	case isImage:
		_ = w.store.InsertImageData(page.ID, pageURL.Path, contentType, fetchResult.Body(), now)
		w.complete(page, store.TerminalFields{SiteID: site.ID, PageTypeCode: store.PageTypeImage, HTTPStatusCode: fetchResult.Code(), AccessedTime: now})
	case recognized:
		if err := w.store.InsertPageData(page.ID, dataType, fetchResult.Body(), w.cfg.MaxBinaryTableSize()); err != nil {
			w.recordError("InsertPageData", err)
		}
		w.complete(page, store.TerminalFields{SiteID: site.ID, PageTypeCode: store.PageTypeBinary, HTTPStatusCode: fetchResult.Code(), AccessedTime: now})
	default:
		w.complete(page, store.TerminalFields{SiteID: site.ID, PageTypeCode: store.PageTypeBinary, HTTPStatusCode: fetchResult.Code(), AccessedTime: now})
	}

	_ = w.store.MarkCrawled(site.ID, now)
}

func (w *Worker) handleHTML(ctx context.Context, page *store.Page, site *store.Site, pageURL url.URL, fetchResult fetcher.FetchResult, now time.Time) {
	html := string(fetchResult.Body())

	if w.renderAgent != nil {
		if rendered, err := w.renderAgent.Render(ctx, pageURL.String()); err == nil {
			html = rendered
		} else {
			w.recordError("Render", err)
			w.complete(page, store.TerminalFields{SiteID: site.ID, PageTypeCode: store.PageTypeError, HTTPStatusCode: 500, AccessedTime: now})
			return
		}
	}

	exactHash, err := shingle.ExactHash(html)
	if err != nil {
		w.recordError("ExactHash", err)
	}

	if dupID, err := w.store.FindExactDuplicate(exactHash); err != nil {
		w.recordError("FindExactDuplicate", err)
	} else if dupID != 0 {
		w.complete(page, store.TerminalFields{
			SiteID: site.ID, PageTypeCode: store.PageTypeDuplicate,
			HashContent: &exactHash, HTTPStatusCode: fetchResult.Code(), AccessedTime: now,
		})
		return
	}

	set, err := shingle.Compute(html, w.cfg.ShingleSize())
	if err != nil {
		w.recordError("Compute", err)
	} else if dupID, err := w.store.FindNearDuplicate(set, w.cfg.MaxSimilarity()); err == nil && dupID != 0 {
		w.complete(page, store.TerminalFields{
			SiteID: site.ID, PageTypeCode: store.PageTypeDuplicate,
			HashContent: &exactHash, HTTPStatusCode: fetchResult.Code(), AccessedTime: now,
		})
		return
	}

	if set != nil {
		if err := w.store.InsertShingleSignature(page.ID, set); err != nil {
			w.recordError("InsertShingleSignature", err)
		}
	}

	links, err := discoverLinks(html, pageURL, w.cfg.AllowedDomainSuffix())
	if err != nil {
		w.recordError("discoverLinks", err)
	}
	for _, link := range links {
		if err := w.store.EnqueueDiscovered(site.ID, page.ID, link.String(), now, w.cfg.MaxURLLen(), w.cfg.MaxPagesTableRows()); err != nil {
			w.recordError("EnqueueDiscovered", err)
		}
	}

	w.complete(page, store.TerminalFields{
		SiteID:         site.ID,
		PageTypeCode:   store.PageTypeHTML,
		HTMLContent:    &html,
		HashContent:    &exactHash,
		HTTPStatusCode: fetchResult.Code(),
		AccessedTime:   now,
	})
}

func (w *Worker) complete(page *store.Page, fields store.TerminalFields) {
	if err := w.store.Complete(page.ID, fields); err != nil {
		w.recordError("Complete", err)
		return
	}
	if w.metrics != nil {
		w.metrics.RecordCompletion(string(fields.PageTypeCode))
	}
}

func (w *Worker) recordError(action string, err error) {
	if w.sink == nil {
		return
	}
	w.sink.RecordError(time.Now(), "worker", action, metadata.CauseUnknown, err.Error(), []metadata.Attribute{
		metadata.NewAttr(metadata.AttrWorkerID, strconv.Itoa(w.id)),
	})
}

func retryParam(cfg config.Config) retry.RetryParam {
	return retry.NewRetryParam(
		cfg.BaseDelay(),
		cfg.Jitter(),
		cfg.RandomSeed(),
		cfg.MaxAttempt(),
		timeutil.NewBackoffParam(cfg.BackoffInitialDuration(), cfg.BackoffMultiplier(), cfg.BackoffMaxDuration()),
	)
}
