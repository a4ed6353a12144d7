package worker_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/matejnovak/govsicrawl/internal/config"
	"github.com/matejnovak/govsicrawl/internal/fetcher"
	"github.com/matejnovak/govsicrawl/internal/robots"
	"github.com/matejnovak/govsicrawl/internal/sitemap"
	"github.com/matejnovak/govsicrawl/internal/store"
	"github.com/matejnovak/govsicrawl/internal/worker"
	"github.com/matejnovak/govsicrawl/pkg/failure"
	"github.com/matejnovak/govsicrawl/pkg/limiter"
	"github.com/matejnovak/govsicrawl/pkg/retry"
)

// stubFetcher returns a fixed response regardless of the URL requested.
type stubFetcher struct {
	body        []byte
	contentType string
	statusCode  int
	err         failure.ClassifiedError
}

func (s *stubFetcher) Init(*http.Client, string) {}

func (s *stubFetcher) Fetch(ctx context.Context, depth int, fetchURL url.URL, retryParam retry.RetryParam) (fetcher.FetchResult, failure.ClassifiedError) {
	if s.err != nil {
		return fetcher.FetchResult{}, s.err
	}
	return fetcher.NewFetchResultForTest(fetchURL, s.body, s.statusCode, s.contentType, map[string]string{"Content-Type": s.contentType}, time.Now()), nil
}

// allowAllRobots always allows, with no crawl delay.
type allowAllRobots struct{}

func (allowAllRobots) Decide(u url.URL) (robots.Decision, *robots.RobotsError) {
	return robots.Decision{Url: u, Allowed: true, Reason: robots.AllowedByRobots}, nil
}

// disallowRobots always disallows.
type disallowRobots struct{}

func (disallowRobots) Decide(u url.URL) (robots.Decision, *robots.RobotsError) {
	return robots.Decision{Url: u, Allowed: false, Reason: robots.DisallowedByRobots}, nil
}

func testConfig(t *testing.T, dsn string) config.Config {
	t.Helper()
	cfg, err := config.WithDefault([]url.URL{{Scheme: "https", Host: "example.gov.si"}}).
		WithBaseDelay(time.Millisecond).
		WithJitter(0).
		WithDatabase("sqlite").
		WithDatabaseDSN(dsn).
		WithMaxAttempt(1).
		Build()
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	return cfg
}

func openTestStore(t *testing.T) (*store.Store, config.Config) {
	t.Helper()
	dsn := t.TempDir() + "/worker-test.db"
	cfg := testConfig(t, dsn)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st, cfg
}

func newWorker(st *store.Store, cfg config.Config, f fetcher.Fetcher, robot worker.RobotsDecider) *worker.Worker {
	return worker.New(
		1,
		st,
		f,
		&http.Client{},
		robot,
		robots.NewRobotsFetcher(nil, cfg.UserAgent(), nil),
		sitemap.NewHTTPFetcher(&http.Client{}),
		limiter.NewConcurrentRateLimiter(),
		nil,
		nil,
		nil,
		cfg,
	)
}

func seedFrontier(t *testing.T, st *store.Store, siteID int64, u string) {
	t.Helper()
	if err := st.EnqueueSeed(siteID, u, time.Now()); err != nil {
		t.Fatalf("seed frontier: %v", err)
	}
}

func TestWorkerPersistsHTMLPageAndDiscoversLinks(t *testing.T) {
	st, cfg := openTestStore(t)
	siteID, err := st.InsertSiteForTest("example.gov.si")
	if err != nil {
		t.Fatalf("insert site: %v", err)
	}
	seedFrontier(t, st, siteID, "https://example.gov.si/index.html")

	body := `<html><body><a href="/about.html">About</a><a href="https://other.si/x">external</a></body></html>`
	f := &stubFetcher{body: []byte(body), contentType: "text/html; charset=utf-8", statusCode: http.StatusOK}
	w := newWorker(st, cfg, f, allowAllRobots{})

	page, err := st.Lease(time.Now())
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if page == nil {
		t.Fatal("expected a leased page")
	}
	pageID := page.ID

	runProcess(w, page)

	processed, err := st.GetPageForTest(pageID)
	if err != nil {
		t.Fatalf("get processed page: %v", err)
	}
	if processed.PageTypeCode != store.PageTypeHTML {
		t.Errorf("expected page type %s, got %s", store.PageTypeHTML, processed.PageTypeCode)
	}
	if processed.HTMLContent == nil || *processed.HTMLContent == "" {
		t.Error("expected html content to be persisted")
	}

	row, err := st.Lease(time.Now())
	if err != nil {
		t.Fatalf("lease after process: %v", err)
	}
	if row == nil {
		t.Fatal("expected the discovered same-host link to have been enqueued")
	}
	if row.URL != "https://example.gov.si/about.html" {
		t.Errorf("expected /about.html to be discovered, got %s", row.URL)
	}
}

func TestWorkerSkipsDisallowedPages(t *testing.T) {
	st, cfg := openTestStore(t)
	siteID, err := st.InsertSiteForTest("example.gov.si")
	if err != nil {
		t.Fatalf("insert site: %v", err)
	}
	seedFrontier(t, st, siteID, "https://example.gov.si/secret.html")

	f := &stubFetcher{body: []byte("should not be fetched"), contentType: "text/html", statusCode: http.StatusOK}
	w := newWorker(st, cfg, f, disallowRobots{})

	page, err := st.Lease(time.Now())
	if err != nil || page == nil {
		t.Fatalf("lease: %v", err)
	}
	pageID := page.ID

	runProcess(w, page)

	row, err := st.GetPageForTest(pageID)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if row.PageTypeCode != store.PageTypeDisallowed {
		t.Errorf("expected page type %s, got %s", store.PageTypeDisallowed, row.PageTypeCode)
	}
}

func TestWorkerPersistsImagePayload(t *testing.T) {
	st, cfg := openTestStore(t)
	siteID, err := st.InsertSiteForTest("example.gov.si")
	if err != nil {
		t.Fatalf("insert site: %v", err)
	}
	seedFrontier(t, st, siteID, "https://example.gov.si/logo.png")

	f := &stubFetcher{body: []byte("binary-image-bytes"), contentType: "image/png", statusCode: http.StatusOK}
	w := newWorker(st, cfg, f, allowAllRobots{})

	page, err := st.Lease(time.Now())
	if err != nil || page == nil {
		t.Fatalf("lease: %v", err)
	}
	pageID := page.ID

	runProcess(w, page)

	row, err := st.GetPageForTest(pageID)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if row.PageTypeCode != store.PageTypeImage {
		t.Errorf("expected page type %s, got %s", store.PageTypeImage, row.PageTypeCode)
	}
}

func TestWorkerRunExitsOnEmptyFrontier(t *testing.T) {
	st, cfg := openTestStore(t)
	cfg, err := cfg.WithMaxNumberOfRetries(2).WithEmptyLeaseDelay(time.Millisecond).Build()
	if err != nil {
		t.Fatalf("build cfg: %v", err)
	}

	f := &stubFetcher{}
	w := newWorker(st, cfg, f, allowAllRobots{})

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after MaxNumberOfRetries empty leases")
	}
}

func TestWorkerHandlesExactDuplicate(t *testing.T) {
	st, cfg := openTestStore(t)
	siteID, err := st.InsertSiteForTest("example.gov.si")
	if err != nil {
		t.Fatalf("insert site: %v", err)
	}

	body := `<html><body><p></p></body></html>`

	seedFrontier(t, st, siteID, "https://example.gov.si/first.html")
	f := &stubFetcher{body: []byte(body), contentType: "text/html; charset=utf-8", statusCode: http.StatusOK}
	w := newWorker(st, cfg, f, allowAllRobots{})

	first, err := st.Lease(time.Now())
	if err != nil || first == nil {
		t.Fatalf("lease: %v", err)
	}
	runProcess(w, first)

	seedFrontier(t, st, siteID, "https://example.gov.si/second.html")
	second, err := st.Lease(time.Now())
	if err != nil || second == nil {
		t.Fatalf("lease: %v", err)
	}
	runProcess(w, second)

	row, err := st.GetPageForTest(second.ID)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if row.PageTypeCode != store.PageTypeDuplicate {
		t.Errorf("expected page type %s, got %s", store.PageTypeDuplicate, row.PageTypeCode)
	}
}

// runProcess exercises the worker's per-page pipeline directly, without
// running the Run loop's lease polling.
func runProcess(w *worker.Worker, page *store.Page) {
	w.ProcessForTest(context.Background(), page)
}
