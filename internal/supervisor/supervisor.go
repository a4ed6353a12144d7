package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/matejnovak/govsicrawl/internal/config"
	"github.com/matejnovak/govsicrawl/internal/fetcher"
	"github.com/matejnovak/govsicrawl/internal/frontier"
	"github.com/matejnovak/govsicrawl/internal/metadata"
	"github.com/matejnovak/govsicrawl/internal/metrics"
	"github.com/matejnovak/govsicrawl/internal/render"
	"github.com/matejnovak/govsicrawl/internal/robots"
	"github.com/matejnovak/govsicrawl/internal/sitemap"
	"github.com/matejnovak/govsicrawl/internal/store"
	"github.com/matejnovak/govsicrawl/internal/worker"
	"github.com/matejnovak/govsicrawl/pkg/limiter"
)

/*
Supervisor owns the pieces every worker goroutine shares: the Store, the
rate limiter, and the robots cache. It seeds the frontier from the
configured seed URLs, recovers leases orphaned by a previous crash, then
spawns cfg.Concurrency() workers and waits for them to exit.

There is no in-memory work queue here: once a seed is in the Store, every
worker pulls its own work directly from the frontier lease, so the
supervisor's only coordination duty is startup and shutdown.
*/
type Supervisor struct {
	store *store.Store
	cfg   config.Config
	sink  metadata.MetadataSink
}

func New(st *store.Store, cfg config.Config, sink metadata.MetadataSink) *Supervisor {
	return &Supervisor{store: st, cfg: cfg, sink: sink}
}

// Run reclaims crashed leases, seeds the frontier, and runs cfg.Concurrency()
// workers until ctx is cancelled.
func (sup *Supervisor) Run(ctx context.Context) error {
	reclaimed, err := sup.store.ResetLeases()
	if err != nil {
		return fmt.Errorf("reset leases: %w", err)
	}
	if reclaimed > 0 && sup.sink != nil {
		sup.sink.RecordError(time.Now(), "supervisor", "ResetLeases", metadata.CauseUnknown,
			fmt.Sprintf("reclaimed %d leases from a previous run", reclaimed), nil)
	}

	if err := sup.seedFrontier(ctx); err != nil {
		return fmt.Errorf("seed frontier: %w", err)
	}

	robotsFetcher := robots.NewRobotsFetcher(sup.sink, sup.cfg.UserAgent(), nil)
	sitemapClient := &http.Client{Timeout: sup.cfg.Timeout()}
	sitemapFetcher := sitemap.NewHTTPFetcher(sitemapClient)

	robot := robots.NewCachedRobot(sup.sink)
	robot.Init(sup.cfg.UserAgent())

	rateLimiter := limiter.NewConcurrentRateLimiter()
	rateLimiter.SetBaseDelay(sup.cfg.BaseDelay())
	rateLimiter.SetJitter(sup.cfg.Jitter())
	rateLimiter.SetRandomSeed(sup.cfg.RandomSeed())

	m := metrics.New()
	var wg sync.WaitGroup
	if sup.cfg.MetricsAddr() != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Serve(ctx, sup.cfg.MetricsAddr()); err != nil && sup.sink != nil {
				sup.sink.RecordError(time.Now(), "supervisor", "metrics.Serve", metadata.CauseUnknown, err.Error(), nil)
			}
		}()
	}

	for i := 0; i < sup.cfg.Concurrency(); i++ {
		var renderAgent *render.Agent
		if sup.cfg.RenderPoolSize() > 0 {
			renderAgent = render.NewAgent(sup.cfg.RenderTimeout())
		}

		htmlFetcher := fetcher.NewHtmlFetcher(sup.sink)
		w := worker.New(
			i,
			sup.store,
			&htmlFetcher,
			&http.Client{Timeout: sup.cfg.Timeout()},
			robot,
			robotsFetcher,
			sitemapFetcher,
			rateLimiter,
			renderAgent,
			sup.sink,
			m,
			sup.cfg,
		)

		wg.Add(1)
		go func(w *worker.Worker, agent *render.Agent) {
			defer wg.Done()
			defer func() {
				if agent != nil {
					agent.Close()
				}
			}()
			w.Run(ctx)
		}(w, renderAgent)
	}

	wg.Wait()
	return nil
}

// seedFrontier registers every seed URL's site (fetching its robots.txt
// and sitemap on first sight) and enqueues the seed itself. Hosts are
// deduplicated with a Set so a seed list containing multiple pages on the
// same host only registers that site once.
func (sup *Supervisor) seedFrontier(ctx context.Context) error {
	robotsFetcher := robots.NewRobotsFetcher(sup.sink, sup.cfg.UserAgent(), nil)
	sitemapFetcher := sitemap.NewHTTPFetcher(&http.Client{Timeout: sup.cfg.Timeout()})

	seen := frontier.NewSet[string]()
	siteIDs := make(map[string]int64)
	now := time.Now()

	for _, seed := range sup.cfg.SeedURLs() {
		host := seed.Hostname()
		if !seen.Contains(host) {
			seen.Add(host)
			site, err := sup.store.GetOrCreateSite(ctx, robotsFetcher, sitemapFetcher, schemeOrDefault(seed), host, sup.cfg.MaxURLLen())
			if err != nil {
				return fmt.Errorf("register site %s: %w", host, err)
			}
			siteIDs[host] = site.ID
		}

		if err := sup.store.EnqueueSeed(siteIDs[host], seed.String(), now); err != nil {
			return fmt.Errorf("enqueue seed %s: %w", seed.String(), err)
		}
	}
	return nil
}

func schemeOrDefault(u url.URL) string {
	if u.Scheme == "" {
		return "https"
	}
	return u.Scheme
}
