package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"
)

type Config struct {
	//===============
	//  Crawl scope
	//===============
	// Initial pages to give to the crawler to begin discovering and traversing other pages.
	seedURLs []url.URL
	// Hostname allowlist. Stored and printed by the crawl command; link
	// discovery does not consult it.
	allowedHosts map[string]struct{}
	// URL path prefixes. Stored and printed by the crawl command; link
	// discovery does not consult it.
	allowedPathPrefix []string
	// Hostname suffix a discovered URL's host must match to be admitted to the frontier.
	// Empty means a discovered URL is admitted only when its host equals the
	// host of the page it was found on.
	allowedDomainSuffix string

	//===============
	// Limits
	//===============
	// Maximum number of hyperlink hops from a seed (root) URL. Stored and
	// printed; the crawl does not track or limit depth.
	maxDepth int
	// Maximum number of documents to fetch. Stored and printed; the crawl
	// does not stop at this count.
	maxPages int
	// Maximum accepted length, in bytes, of a URL before it is rejected outright
	maxURLLen int
	// Maximum cumulative size of binary document payloads retained in the store
	maxBinaryTableSize int64
	// Soft cap on the number of rows the pages table may hold before new
	// inserts are refused
	maxPagesTableRows int

	//===============
	// Politeness
	//===============
	// Maximum number of crawl worker goroutines processing URLs concurrently;
	// it does not control OS threads or CPU parallelism.
	concurrency int
	// Minimum, fixed waiting time you enforce between two HTTP requests to the same host.
	baseDelay time.Duration
	// Randomized variation added on top of the base delay.
	// Intentional randomness applied to timing.
	jitter time.Duration
	// Controls the random number generator
	randomSeed int64
	// maximum attempt during retry
	maxAttempt int
	// initial delay for backoff
	backoffInitialDuration time.Duration
	// multiplier during exponential backoff
	backoffMultiplier float64
	// capped maximum delay for backoff to stop exponential multiplication
	backoffMaxDuration time.Duration

	//===============
	// Worker lifecycle
	//===============
	// Number of consecutive empty-lease attempts a worker tolerates before it exits.
	maxNumberOfRetries int
	// Wait time between consecutive empty-lease attempts.
	emptyLeaseDelay time.Duration

	//===============
	// Fetch
	//===============
	// Maximum duration of a single fetch request
	timeout time.Duration
	// User agent that will be used in the request header. In raw string
	userAgent string

	//===============
	// Near-duplicate detection
	//===============
	// Number of consecutive words per shingle window
	shingleSize int
	// Similarity ratio above which a page is classified as a near-duplicate
	maxSimilarity float64

	//===============
	// Storage
	//===============
	database       string
	databaseDSN    string
	dbMaxOpenConns int
	dbMaxIdleConns int

	//===============
	// Rendering
	//===============
	renderTimeout  time.Duration
	renderPoolSize int

	//===============
	// Observability
	//===============
	logLevel    string
	logFile     string
	metricsAddr string

	//===============
	// Output
	//===============
	// Directory the export command writes data.json into
	outputDir string
	// Dry-run flag. Stored and printed by the crawl command; the crawl
	// still fetches pages and writes to the store when it is set.
	dryRun bool
}

type configDTO struct {
	SeedURLs            []url.URL           `json:"seedUrls"`
	AllowedHosts        map[string]struct{} `json:"allowedHosts,omitempty"`
	AllowedPathPrefix   []string            `json:"allowedPathPrefix,omitempty"`
	AllowedDomainSuffix string              `json:"allowedDomainSuffix,omitempty"`

	MaxDepth           int   `json:"maxDepth,omitempty"`
	MaxPages           int   `json:"maxPages,omitempty"`
	MaxURLLen          int   `json:"maxUrlLen,omitempty"`
	MaxBinaryTableSize int64 `json:"maxBinaryTableSize,omitempty"`
	MaxPagesTableRows  int   `json:"maxPagesTableRows,omitempty"`

	Concurrency            int           `json:"concurrency,omitempty"`
	BaseDelay              time.Duration `json:"baseDelay,omitempty"`
	Jitter                 time.Duration `json:"jitter,omitempty"`
	RandomSeed             int64         `json:"randomSeed,omitempty"`
	MaxAttempt             int           `json:"maxAttempt,omitempty"`
	BackoffInitialDuration time.Duration `json:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64       `json:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     time.Duration `json:"backoffMaxDuration,omitempty"`

	MaxNumberOfRetries int           `json:"maxNumberOfRetries,omitempty"`
	EmptyLeaseDelay    time.Duration `json:"emptyLeaseDelay,omitempty"`

	Timeout   time.Duration `json:"timeout,omitempty"`
	UserAgent string        `json:"userAgent,omitempty"`

	ShingleSize   int     `json:"shingleSize,omitempty"`
	MaxSimilarity float64 `json:"maxSimilarity,omitempty"`

	Database       string `json:"database,omitempty"`
	DatabaseDSN    string `json:"databaseDsn,omitempty"`
	DBMaxOpenConns int    `json:"dbMaxOpenConns,omitempty"`
	DBMaxIdleConns int    `json:"dbMaxIdleConns,omitempty"`

	RenderTimeout  time.Duration `json:"renderTimeout,omitempty"`
	RenderPoolSize int           `json:"renderPoolSize,omitempty"`

	LogLevel    string `json:"logLevel,omitempty"`
	LogFile     string `json:"logFile,omitempty"`
	MetricsAddr string `json:"metricsAddr,omitempty"`

	OutputDir string `json:"outputDir,omitempty"`
	DryRun    bool   `json:"dryRun,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {

	// Start with default config
	cfg, err := WithDefault(dto.SeedURLs).Build()
	if err != nil {
		return Config{}, err
	}

	// AllowedHosts can be empty - if so, default to seed URLs hostnames
	if len(dto.AllowedHosts) > 0 {
		cfg.allowedHosts = dto.AllowedHosts
	}

	// AllowedPathPrefix can be empty - always use DTO values
	cfg.allowedPathPrefix = dto.AllowedPathPrefix

	if dto.AllowedDomainSuffix != "" {
		cfg.allowedDomainSuffix = dto.AllowedDomainSuffix
	}

	// For other fields, only override if non-zero value is provided
	if dto.MaxDepth != 0 {
		cfg.maxDepth = dto.MaxDepth
	}
	if dto.MaxPages != 0 {
		cfg.maxPages = dto.MaxPages
	}
	if dto.MaxURLLen != 0 {
		cfg.maxURLLen = dto.MaxURLLen
	}
	if dto.MaxBinaryTableSize != 0 {
		cfg.maxBinaryTableSize = dto.MaxBinaryTableSize
	}
	if dto.MaxPagesTableRows != 0 {
		cfg.maxPagesTableRows = dto.MaxPagesTableRows
	}
	if dto.Concurrency != 0 {
		cfg.concurrency = dto.Concurrency
	}
	if dto.BaseDelay != 0 {
		cfg.baseDelay = dto.BaseDelay
	}
	if dto.Jitter != 0 {
		cfg.jitter = dto.Jitter
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.MaxAttempt != 0 {
		cfg.maxAttempt = dto.MaxAttempt
	}
	if dto.BackoffInitialDuration != 0 {
		cfg.backoffInitialDuration = dto.BackoffInitialDuration
	}
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	if dto.BackoffMaxDuration != 0 {
		cfg.backoffMaxDuration = dto.BackoffMaxDuration
	}

	if dto.MaxNumberOfRetries != 0 {
		cfg.maxNumberOfRetries = dto.MaxNumberOfRetries
	}
	if dto.EmptyLeaseDelay != 0 {
		cfg.emptyLeaseDelay = dto.EmptyLeaseDelay
	}

	if dto.Timeout != 0 {
		cfg.timeout = dto.Timeout
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}

	if dto.ShingleSize != 0 {
		cfg.shingleSize = dto.ShingleSize
	}
	if dto.MaxSimilarity != 0 {
		cfg.maxSimilarity = dto.MaxSimilarity
	}

	if dto.Database != "" {
		cfg.database = dto.Database
	}
	if dto.DatabaseDSN != "" {
		cfg.databaseDSN = dto.DatabaseDSN
	}
	if dto.DBMaxOpenConns != 0 {
		cfg.dbMaxOpenConns = dto.DBMaxOpenConns
	}
	if dto.DBMaxIdleConns != 0 {
		cfg.dbMaxIdleConns = dto.DBMaxIdleConns
	}

	if dto.RenderTimeout != 0 {
		cfg.renderTimeout = dto.RenderTimeout
	}
	if dto.RenderPoolSize != 0 {
		cfg.renderPoolSize = dto.RenderPoolSize
	}

	if dto.LogLevel != "" {
		cfg.logLevel = dto.LogLevel
	}
	if dto.LogFile != "" {
		cfg.logFile = dto.LogFile
	}
	if dto.MetricsAddr != "" {
		cfg.metricsAddr = dto.MetricsAddr
	}

	if dto.OutputDir != "" {
		cfg.outputDir = dto.OutputDir
	}
	// DryRun is a boolean, check if explicitly set (we use the DTO value as-is since bool zero value is false)
	cfg.dryRun = dto.DryRun

	return cfg, nil
}

func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	err = json.Unmarshal(configContent, &cfgDTO)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	cfg, err := newConfigFromDTO(cfgDTO)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefault creates a new Config with the provided seed URLs and default values for all other fields.
// seedUrls is mandatory and must not be empty - an error will be returned if it is.
func WithDefault(seedUrls []url.URL) *Config {
	defaultConfig := Config{
		seedURLs:     seedUrls,
		allowedHosts: map[string]struct{}{},
		allowedPathPrefix: []string{
			"/",
		},
		allowedDomainSuffix: "",

		maxDepth:           3,
		maxPages:           100,
		maxURLLen:          2000,
		maxBinaryTableSize: 1 << 30, // 1 GiB
		maxPagesTableRows:  100000,

		concurrency:            10,
		baseDelay:              10 * time.Second,
		jitter:                 time.Millisecond * 500,
		randomSeed:             time.Now().UnixNano(),
		maxAttempt:             5,
		backoffInitialDuration: 100 * time.Millisecond,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     10 * time.Second,

		maxNumberOfRetries: 5,
		emptyLeaseDelay:    10 * time.Second,

		timeout:   time.Second * 10,
		userAgent: "govsicrawl/1.0",

		shingleSize:   10,
		maxSimilarity: 0.95,

		database:       "sqlite",
		databaseDSN:    "govsicrawl.db",
		dbMaxOpenConns: 1,
		dbMaxIdleConns: 1,

		renderTimeout:  15 * time.Second,
		renderPoolSize: 1,

		logLevel:    "info",
		logFile:     "",
		metricsAddr: "",

		outputDir: "output",
		dryRun:    false,
	}
	return &defaultConfig
}

func (c *Config) WithSeedUrls(urls []url.URL) *Config {
	c.seedURLs = urls
	return c
}

func (c *Config) WithAllowedHosts(hosts map[string]struct{}) *Config {
	c.allowedHosts = hosts
	return c
}

func (c *Config) WithAllowedPathPrefix(prefixes []string) *Config {
	c.allowedPathPrefix = prefixes
	return c
}

func (c *Config) WithAllowedDomainSuffix(suffix string) *Config {
	c.allowedDomainSuffix = suffix
	return c
}

func (c *Config) WithMaxDepth(depth int) *Config {
	c.maxDepth = depth
	return c
}

func (c *Config) WithMaxPages(pages int) *Config {
	c.maxPages = pages
	return c
}

func (c *Config) WithMaxURLLen(n int) *Config {
	c.maxURLLen = n
	return c
}

func (c *Config) WithMaxBinaryTableSize(bytes int64) *Config {
	c.maxBinaryTableSize = bytes
	return c
}

func (c *Config) WithMaxPagesTableRows(rows int) *Config {
	c.maxPagesTableRows = rows
	return c
}

func (c *Config) WithConcurrency(concurrency int) *Config {
	c.concurrency = concurrency
	return c
}

func (c *Config) WithBaseDelay(delay time.Duration) *Config {
	c.baseDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithMaxAttempt(attempts int) *Config {
	c.maxAttempt = attempts
	return c
}

func (c *Config) WithBackoffInitialDuration(duration time.Duration) *Config {
	c.backoffInitialDuration = duration
	return c
}

func (c *Config) WithBackoffMultiplier(multiplier float64) *Config {
	c.backoffMultiplier = multiplier
	return c
}

func (c *Config) WithBackoffMaxDuration(duration time.Duration) *Config {
	c.backoffMaxDuration = duration
	return c
}

func (c *Config) WithMaxNumberOfRetries(retries int) *Config {
	c.maxNumberOfRetries = retries
	return c
}

func (c *Config) WithEmptyLeaseDelay(delay time.Duration) *Config {
	c.emptyLeaseDelay = delay
	return c
}

func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.timeout = timeout
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithShingleSize(size int) *Config {
	c.shingleSize = size
	return c
}

func (c *Config) WithMaxSimilarity(similarity float64) *Config {
	c.maxSimilarity = similarity
	return c
}

func (c *Config) WithDatabase(driver string) *Config {
	c.database = driver
	return c
}

func (c *Config) WithDatabaseDSN(dsn string) *Config {
	c.databaseDSN = dsn
	return c
}

func (c *Config) WithDBMaxOpenConns(n int) *Config {
	c.dbMaxOpenConns = n
	return c
}

func (c *Config) WithDBMaxIdleConns(n int) *Config {
	c.dbMaxIdleConns = n
	return c
}

func (c *Config) WithRenderTimeout(d time.Duration) *Config {
	c.renderTimeout = d
	return c
}

func (c *Config) WithRenderPoolSize(n int) *Config {
	c.renderPoolSize = n
	return c
}

func (c *Config) WithLogLevel(level string) *Config {
	c.logLevel = level
	return c
}

func (c *Config) WithLogFile(path string) *Config {
	c.logFile = path
	return c
}

func (c *Config) WithMetricsAddr(addr string) *Config {
	c.metricsAddr = addr
	return c
}

func (c *Config) WithOutputDir(outputDir string) *Config {
	c.outputDir = outputDir
	return c
}

func (c *Config) WithDryRun(dryRun bool) *Config {
	c.dryRun = dryRun
	return c
}

func (c *Config) Build() (Config, error) {
	if len(c.seedURLs) == 0 {
		return Config{}, fmt.Errorf("%w: seedUrls cannot be empty", ErrInvalidConfig)
	}

	// If allowedHosts is empty, default to seed URLs hostnames
	if len(c.allowedHosts) == 0 {
		c.allowedHosts = make(map[string]struct{})
		for _, u := range c.seedURLs {
			if u.Host != "" {
				c.allowedHosts[u.Host] = struct{}{}
			}
		}
	}

	return *c, nil
}

func (c Config) SeedURLs() []url.URL {
	urls := make([]url.URL, len(c.seedURLs))
	copy(urls, c.seedURLs)
	return urls
}

func (c Config) AllowedHosts() map[string]struct{} {
	hosts := make(map[string]struct{})
	for k, v := range c.allowedHosts {
		hosts[k] = v
	}
	return hosts
}

func (c Config) AllowedPathPrefix() []string {
	prefixes := make([]string, len(c.allowedPathPrefix))
	copy(prefixes, c.allowedPathPrefix)
	return prefixes
}

func (c Config) AllowedDomainSuffix() string {
	return c.allowedDomainSuffix
}

func (c Config) MaxDepth() int {
	return c.maxDepth
}

func (c Config) MaxPages() int {
	return c.maxPages
}

func (c Config) MaxURLLen() int {
	return c.maxURLLen
}

func (c Config) MaxBinaryTableSize() int64 {
	return c.maxBinaryTableSize
}

func (c Config) MaxPagesTableRows() int {
	return c.maxPagesTableRows
}

func (c Config) Concurrency() int {
	return c.concurrency
}

func (c Config) BaseDelay() time.Duration {
	return c.baseDelay
}

func (c Config) Jitter() time.Duration {
	return c.jitter
}

func (c Config) RandomSeed() int64 {
	return c.randomSeed
}

func (c Config) MaxNumberOfRetries() int {
	return c.maxNumberOfRetries
}

func (c Config) EmptyLeaseDelay() time.Duration {
	return c.emptyLeaseDelay
}

func (c Config) Timeout() time.Duration {
	return c.timeout
}

func (c Config) UserAgent() string {
	return c.userAgent
}

func (c Config) ShingleSize() int {
	return c.shingleSize
}

func (c Config) MaxSimilarity() float64 {
	return c.maxSimilarity
}

func (c Config) Database() string {
	return c.database
}

func (c Config) DatabaseDSN() string {
	return c.databaseDSN
}

func (c Config) DBMaxOpenConns() int {
	return c.dbMaxOpenConns
}

func (c Config) DBMaxIdleConns() int {
	return c.dbMaxIdleConns
}

func (c Config) RenderTimeout() time.Duration {
	return c.renderTimeout
}

func (c Config) RenderPoolSize() int {
	return c.renderPoolSize
}

func (c Config) LogLevel() string {
	return c.logLevel
}

func (c Config) LogFile() string {
	return c.logFile
}

func (c Config) MetricsAddr() string {
	return c.metricsAddr
}

func (c Config) OutputDir() string {
	return c.outputDir
}

func (c Config) DryRun() bool {
	return c.dryRun
}

func (c Config) MaxAttempt() int {
	return c.maxAttempt
}

func (c Config) BackoffInitialDuration() time.Duration {
	return c.backoffInitialDuration
}

func (c Config) BackoffMultiplier() float64 {
	return c.backoffMultiplier
}

func (c Config) BackoffMaxDuration() time.Duration {
	return c.backoffMaxDuration
}
