package robots

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/matejnovak/govsicrawl/internal/metadata"
	"github.com/matejnovak/govsicrawl/internal/robots/cache"
)

/*
Responsibilities

- Fetch robots.txt per host
- Cache rules for crawl duration
- Enforce allow/disallow rules before enqueue

Robots checks occur before a URL enters the frontier.
*/

type robotState struct {
	sink metadata.MetadataSink

	mu        sync.RWMutex
	userAgent string
	fetcher   *RobotsFetcher
	cache     cache.Cache
	rulesets  map[string]ruleSet
}

// CachedRobot evaluates robots.txt policy for a single crawl run, fetching
// and caching one ruleSet per host for the lifetime of the process.
type CachedRobot struct {
	state *robotState
}

// NewCachedRobot creates a CachedRobot that records observability events
// through sink. Init or InitWithCache must be called before Decide.
func NewCachedRobot(sink metadata.MetadataSink) CachedRobot {
	return CachedRobot{
		state: &robotState{
			sink:     sink,
			cache:    cache.NewMemoryCache(),
			rulesets: make(map[string]ruleSet),
		},
	}
}

// Init configures the user agent used both for fetching and for matching
// user-agent groups in robots.txt, using an in-memory cache.
func (c CachedRobot) Init(userAgent string) {
	c.InitWithCache(userAgent, cache.NewMemoryCache())
}

// InitWithCache is like Init but lets the caller supply the robots.txt
// response cache (e.g. a persistent one shared across runs).
func (c CachedRobot) InitWithCache(userAgent string, ch cache.Cache) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()

	c.state.userAgent = userAgent
	c.state.cache = ch
	c.state.fetcher = NewRobotsFetcher(c.state.sink, userAgent, ch)
}

// Decide fetches (or reuses a cached) robots.txt for u's host and reports
// whether u may be crawled under the configured user agent.
func (c CachedRobot) Decide(u url.URL) (Decision, *RobotsError) {
	host := u.Hostname()
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}

	c.state.mu.RLock()
	rs, ok := c.state.rulesets[host]
	fetcher := c.state.fetcher
	userAgent := c.state.userAgent
	c.state.mu.RUnlock()

	if !ok {
		result, err := fetcher.Fetch(context.Background(), scheme, host)
		if err != nil {
			if c.state.sink != nil {
				c.state.sink.RecordError(time.Now(), "robots", "fetch", mapRobotsErrorToMetadataCause(err), err.Error(), []metadata.Attribute{
					metadata.NewAttr(metadata.AttrHost, host),
					metadata.NewAttr(metadata.AttrURL, u.String()),
				})
			}
			return Decision{}, err
		}

		rs = MapResponseToRuleSet(result.Response, userAgent, result.FetchedAt)

		c.state.mu.Lock()
		c.state.rulesets[host] = rs
		c.state.mu.Unlock()
	}

	return evaluate(u, rs), nil
}

// evaluate applies the longest-match-wins robots.txt algorithm: among all
// allow and disallow patterns matching path, the one with the longest raw
// pattern text wins; a tie favors Allow.
func evaluate(u url.URL, rs ruleSet) Decision {
	if !rs.hasGroups {
		return Decision{Url: u, Allowed: true, Reason: EmptyRuleSet}
	}
	if !rs.matchedGroup {
		return Decision{Url: u, Allowed: true, Reason: UserAgentNotMatched}
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	bestAllowLen, bestDisallowLen := -1, -1
	for _, r := range rs.AllowRules() {
		if l := len(r.Prefix()); l > bestAllowLen && matchesPattern(path, r.Prefix()) {
			bestAllowLen = l
		}
	}
	for _, r := range rs.DisallowRules() {
		if l := len(r.Prefix()); l > bestDisallowLen && matchesPattern(path, r.Prefix()) {
			bestDisallowLen = l
		}
	}

	var crawlDelay time.Duration
	if d := rs.CrawlDelay(); d != nil {
		crawlDelay = *d
	}

	switch {
	case bestAllowLen < 0 && bestDisallowLen < 0:
		return Decision{Url: u, Allowed: true, Reason: NoMatchingRules, CrawlDelay: crawlDelay}
	case bestAllowLen >= bestDisallowLen:
		return Decision{Url: u, Allowed: true, Reason: AllowedByRobots, CrawlDelay: crawlDelay}
	default:
		return Decision{Url: u, Allowed: false, Reason: DisallowedByRobots, CrawlDelay: crawlDelay}
	}
}

// matchesPattern implements robots.txt wildcard matching: '*' matches any
// run of characters, and a trailing '$' anchors the match to the end of
// path. Everything else matches literally.
func matchesPattern(path, pattern string) bool {
	anchored := strings.HasSuffix(pattern, "$")
	if anchored {
		pattern = pattern[:len(pattern)-1]
	}

	segments := strings.Split(pattern, "*")
	if !strings.HasPrefix(path, segments[0]) {
		return false
	}

	pos := len(segments[0])
	for _, seg := range segments[1:] {
		if seg == "" {
			continue
		}
		idx := strings.Index(path[pos:], seg)
		if idx == -1 {
			return false
		}
		pos += idx + len(seg)
	}

	if anchored {
		return pos == len(path)
	}
	return true
}
