package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/matejnovak/govsicrawl/internal/config"
	"github.com/matejnovak/govsicrawl/internal/export"
	"github.com/matejnovak/govsicrawl/internal/metadata"
	"github.com/matejnovak/govsicrawl/internal/store"
	"github.com/matejnovak/govsicrawl/internal/supervisor"
	"github.com/spf13/cobra"
)

var (
	cfgFile             string
	seedURLs            []string
	maxDepth            int
	concurrency         int
	outputDir           string
	dryRun              bool
	maxPages            int
	userAgent           string
	timeout             time.Duration
	baseDelay           time.Duration
	jitter              time.Duration
	randomSeed          int64
	allowedHosts        []string
	allowedPathPrefix   []string
	allowedDomainSuffix string
	maxAttempt          int
	shingleSize         int
	maxSimilarity       float64
	maxURLLen           int
	database            string
	databaseDSN         string
	renderTimeout       time.Duration
	renderPoolSize      int
	logLevel            string
	logFile             string
	metricsAddr         string
	maxNumberOfRetries  int
	emptyLeaseDelay     time.Duration
)

// parseStringSliceToSet converts a string slice to a map[string]struct{} set
func parseStringSliceToSet(strings []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range strings {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// parseSeedURLs converts a string slice of URLs to []url.URL
func parseSeedURLs(urlStrings []string) ([]url.URL, error) {
	if len(urlStrings) == 0 {
		return nil, fmt.Errorf("seed URLs cannot be empty")
	}

	var urls []url.URL
	for _, urlStr := range urlStrings {
		parsedURL, err := url.Parse(urlStr)
		if err != nil {
			return nil, fmt.Errorf("error parsing seed URL %s: %w", urlStr, err)
		}
		urls = append(urls, *parsedURL)
	}
	return urls, nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "govsicrawl",
	Short: "A polite, single-TLD web crawler with near-duplicate detection.",
	Long: `govsicrawl crawls a single top-level domain, respecting robots.txt and
crawl-delay, rendering pages through a headless browser, and persisting
pages, images, and binary documents into a relational store while
discarding near-duplicate content.

Run "govsicrawl crawl" to start a crawl, "govsicrawl reset" to clear
stale frontier leases, and "govsicrawl export" to dump the crawled
site as JSON.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printConfig(cfg config.Config) {
	fmt.Printf("Configuration initialized successfully\n")
	if len(cfg.SeedURLs()) > 0 {
		var urls []string
		for _, u := range cfg.SeedURLs() {
			urls = append(urls, u.String())
		}
		fmt.Printf("Seed URLs: %s\n", strings.Join(urls, ", "))
	}
	if len(cfg.AllowedHosts()) > 0 {
		var hosts []string
		for host := range cfg.AllowedHosts() {
			hosts = append(hosts, host)
		}
		fmt.Printf("Allowed Hosts: %s\n", strings.Join(hosts, ", "))
	}
	if cfg.AllowedDomainSuffix() != "" {
		fmt.Printf("Allowed Domain Suffix: %s\n", cfg.AllowedDomainSuffix())
	}
	if len(cfg.AllowedPathPrefix()) > 0 {
		fmt.Printf("Allowed Path Prefixes: %s\n", strings.Join(cfg.AllowedPathPrefix(), ", "))
	}
	fmt.Printf("Max Depth: %d\n", cfg.MaxDepth())
	fmt.Printf("Max Pages: %d\n", cfg.MaxPages())
	fmt.Printf("Number of Workers: %d\n", cfg.Concurrency())
	fmt.Printf("Delay: %v\n", cfg.BaseDelay())
	fmt.Printf("Jitter: %v\n", cfg.Jitter())
	fmt.Printf("Random Seed: %d\n", cfg.RandomSeed())
	fmt.Printf("Timeout: %v\n", cfg.Timeout())
	fmt.Printf("User Agent: %s\n", cfg.UserAgent())
	fmt.Printf("Max Retries: %d\n", cfg.MaxAttempt())
	fmt.Printf("Shingle Size: %d\n", cfg.ShingleSize())
	fmt.Printf("Max Similarity: %f\n", cfg.MaxSimilarity())
	fmt.Printf("Database: %s (%s)\n", cfg.Database(), cfg.DatabaseDSN())
	fmt.Printf("Render Timeout: %v\n", cfg.RenderTimeout())
	fmt.Printf("Output Directory: %s\n", cfg.OutputDir())
	fmt.Printf("Dry Run: %t\n", cfg.DryRun())
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Start crawling the configured seed URLs.",
	Run: func(cmd *cobra.Command, args []string) {
		if len(seedURLs) == 0 {
			fmt.Fprintf(os.Stderr, "Error: --seed-url is required. Please provide at least one seed URL to start crawling.\n")
			cmd.Usage()
			os.Exit(1)
		}

		parsedURLs, err := parseSeedURLs(seedURLs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		cfg := InitConfig(parsedURLs)
		printConfig(cfg)

		sink := newSink(cfg)
		st, err := store.Open(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: opening store: %s\n", err)
			os.Exit(1)
		}
		defer st.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sup := supervisor.New(st, cfg, sink)
		if err := sup.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Release frontier leases left over from a crashed worker.",
	Run: func(cmd *cobra.Command, args []string) {
		if databaseDSN == "" {
			fmt.Fprintln(os.Stderr, "Error: --db-dsn is required.")
			os.Exit(1)
		}
		cfg := InitConfig([]url.URL{{Scheme: "https", Host: "localhost"}})
		st, err := store.Open(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: opening store: %s\n", err)
			os.Exit(1)
		}
		defer st.Close()

		n, err := st.ResetLeases()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		fmt.Printf("Released %d stale frontier lease(s).\n", n)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump crawled sites and their pages as a JSON hierarchy (links are not exported).",
	Run: func(cmd *cobra.Command, args []string) {
		if databaseDSN == "" {
			fmt.Fprintln(os.Stderr, "Error: --db-dsn is required.")
			os.Exit(1)
		}
		cfg := InitConfig([]url.URL{{Scheme: "https", Host: "localhost"}})
		st, err := store.Open(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: opening store: %s\n", err)
			os.Exit(1)
		}
		defer st.Close()

		path, err := export.Run(st, outputDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		fmt.Printf("Exported crawl data to %s\n", path)
	},
}

// newSink builds the production observability sink from cfg, writing
// structured JSON logs to cfg.LogFile() (or stdout if unset).
func newSink(cfg config.Config) metadata.MetadataSink {
	return metadata.NewZapRecorder(metadata.RecorderConfig{LogPath: cfg.LogFile()})
}

func init() {
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(exportCmd)
}

func init() {
	// Here you will define your flags and configuration settings.
	// Cobra supports persistent flags, which, if defined here,
	// will be available to all subcommands in the govsicrawl application.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/config.json)")
	rootCmd.PersistentFlags().StringArrayVar(&seedURLs, "seed-url", []string{}, "one or more starting URLs (can be repeated)")
	rootCmd.PersistentFlags().IntVar(&maxDepth, "max-depth", 5, "maximum link depth from seed URL (stored and printed; the crawl does not limit depth)")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 3, "number of concurrent fetch workers")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "output", "root output directory for crawled content")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "dry-run flag (stored and printed; the crawl still fetches and writes to the store)")
	rootCmd.PersistentFlags().IntVar(&maxPages, "max-pages", 0, "maximum number of pages to fetch (stored and printed; the crawl does not stop at this count)")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "timeout for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&baseDelay, "base-delay", 0, "base delay between HTTP requests to the same host")
	rootCmd.PersistentFlags().DurationVar(&jitter, "jitter", 0, "random jitter added to base delay")
	rootCmd.PersistentFlags().Int64Var(&randomSeed, "random-seed", 0, "seed for random number generation (0 for current time)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedHosts, "allowed-host", []string{}, "explicit hostname allowlist (stored and printed; link discovery does not consult it)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedPathPrefix, "allowed-path-prefix", []string{}, "path prefixes like `/docs`, `/guide` (stored and printed; link discovery does not consult them)")
	rootCmd.PersistentFlags().StringVar(&allowedDomainSuffix, "allowed-domain-suffix", "", "hostname suffix a discovered URL must match to be admitted to the frontier")
	rootCmd.PersistentFlags().IntVar(&maxAttempt, "max-retries", 0, "maximum number of retries for a failed fetch")
	rootCmd.PersistentFlags().IntVar(&shingleSize, "shingle-size", 0, "number of consecutive words per shingle window")
	rootCmd.PersistentFlags().Float64Var(&maxSimilarity, "max-similarity", 0, "similarity ratio above which a page is treated as a near-duplicate")
	rootCmd.PersistentFlags().IntVar(&maxURLLen, "max-url-len", 0, "maximum accepted URL length in bytes")
	rootCmd.PersistentFlags().StringVar(&database, "db-driver", "", "database driver name")
	rootCmd.PersistentFlags().StringVar(&databaseDSN, "db-dsn", "", "database connection string")
	rootCmd.PersistentFlags().DurationVar(&renderTimeout, "render-timeout", 0, "timeout for a single headless render")
	rootCmd.PersistentFlags().IntVar(&renderPoolSize, "render-pool-size", 0, "headless rendering per worker: any value above 0 gives each worker one render agent, 0 disables rendering")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "structured log level (stored and printed; logs are always written at info level)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "path to write structured logs (stdout if empty)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on")
	rootCmd.PersistentFlags().IntVar(&maxNumberOfRetries, "max-empty-lease-retries", 0, "number of consecutive empty-lease attempts a worker tolerates before it exits")
	rootCmd.PersistentFlags().DurationVar(&emptyLeaseDelay, "empty-lease-delay", 0, "wait time between consecutive empty-lease attempts")
}

// InitConfig builds the config from the config file if one is set, otherwise from CLI flags.
// seedUrls is a mandatory parameter and must contain at least one valid URL.
func InitConfig(seedUrls []url.URL) config.Config {
	cfg, err := InitConfigWithError(seedUrls)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// InitConfigWithError builds the config from the config file if one is set, otherwise from CLI flags, returning any errors.
// seedUrls is a mandatory parameter and must contain at least one valid URL.
// This makes it easier to test error cases.
func InitConfigWithError(seedUrls []url.URL) (config.Config, error) {
	if len(seedUrls) == 0 {
		return config.Config{}, fmt.Errorf("%w: seedUrls cannot be empty", config.ErrInvalidConfig)
	}

	if cfgFile != "" {
		fmt.Printf("Initializing config from file: %s\n", cfgFile)
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	// Build config from CLI flags using the With... functions with method chaining
	fmt.Println("No config file specified. Using default flag values")

	// Start with default config using provided seed URLs and apply overrides using method chaining
	configBuilder := config.WithDefault(seedUrls)

	// Override with CLI flag values where provided
	if maxDepth > 0 {
		configBuilder = configBuilder.WithMaxDepth(maxDepth)
	}

	if concurrency > 0 {
		configBuilder = configBuilder.WithConcurrency(concurrency)
	}

	if outputDir != "" && outputDir != "output" {
		configBuilder = configBuilder.WithOutputDir(outputDir)
	}

	if dryRun {
		configBuilder = configBuilder.WithDryRun(dryRun)
	}

	if maxPages > 0 {
		configBuilder = configBuilder.WithMaxPages(maxPages)
	}

	if userAgent != "" {
		configBuilder = configBuilder.WithUserAgent(userAgent)
	}

	if timeout > 0 {
		configBuilder = configBuilder.WithTimeout(timeout)
	}

	if baseDelay > 0 {
		configBuilder = configBuilder.WithBaseDelay(baseDelay)
	}

	if jitter > 0 {
		configBuilder = configBuilder.WithJitter(jitter)
	}

	if randomSeed != 0 {
		configBuilder = configBuilder.WithRandomSeed(randomSeed)
	}

	if len(allowedHosts) > 0 {
		configBuilder = configBuilder.WithAllowedHosts(parseStringSliceToSet(allowedHosts))
	}

	if len(allowedPathPrefix) > 0 {
		configBuilder = configBuilder.WithAllowedPathPrefix(allowedPathPrefix)
	}

	if allowedDomainSuffix != "" {
		configBuilder = configBuilder.WithAllowedDomainSuffix(allowedDomainSuffix)
	}

	if maxAttempt > 0 {
		configBuilder = configBuilder.WithMaxAttempt(maxAttempt)
	}

	if shingleSize > 0 {
		configBuilder = configBuilder.WithShingleSize(shingleSize)
	}

	if maxSimilarity > 0 {
		configBuilder = configBuilder.WithMaxSimilarity(maxSimilarity)
	}

	if maxURLLen > 0 {
		configBuilder = configBuilder.WithMaxURLLen(maxURLLen)
	}

	if database != "" {
		configBuilder = configBuilder.WithDatabase(database)
	}

	if databaseDSN != "" {
		configBuilder = configBuilder.WithDatabaseDSN(databaseDSN)
	}

	if renderTimeout > 0 {
		configBuilder = configBuilder.WithRenderTimeout(renderTimeout)
	}

	if renderPoolSize > 0 {
		configBuilder = configBuilder.WithRenderPoolSize(renderPoolSize)
	}

	if logLevel != "" {
		configBuilder = configBuilder.WithLogLevel(logLevel)
	}

	if logFile != "" {
		configBuilder = configBuilder.WithLogFile(logFile)
	}

	if metricsAddr != "" {
		configBuilder = configBuilder.WithMetricsAddr(metricsAddr)
	}

	if maxNumberOfRetries > 0 {
		configBuilder = configBuilder.WithMaxNumberOfRetries(maxNumberOfRetries)
	}

	if emptyLeaseDelay > 0 {
		configBuilder = configBuilder.WithEmptyLeaseDelay(emptyLeaseDelay)
	}

	cfg, err := configBuilder.Build()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func ResetFlags() {
	cfgFile = ""
	seedURLs = []string{}
	maxDepth = 0
	concurrency = 0
	outputDir = ""
	dryRun = false
	maxPages = 0
	userAgent = ""
	timeout = 0
	baseDelay = 0
	jitter = 0
	randomSeed = 0
	allowedHosts = []string{}
	allowedPathPrefix = []string{}
	allowedDomainSuffix = ""
	maxAttempt = 0
	shingleSize = 0
	maxSimilarity = 0
	maxURLLen = 0
	database = ""
	databaseDSN = ""
	renderTimeout = 0
	renderPoolSize = 0
	logLevel = ""
	logFile = ""
	metricsAddr = ""
	maxNumberOfRetries = 0
	emptyLeaseDelay = 0
}

// Test helper functions to set flag values from tests
func SetConfigFileForTest(path string) {
	cfgFile = path
}

func SetSeedURLsForTest(urls []string) {
	seedURLs = urls
}

func SetMaxDepthForTest(depth int) {
	maxDepth = depth
}

func SetConcurrencyForTest(conc int) {
	concurrency = conc
}

func SetOutputDirForTest(dir string) {
	outputDir = dir
}

func SetDryRunForTest(dry bool) {
	dryRun = dry
}

func SetMaxPagesForTest(pages int) {
	maxPages = pages
}

func SetUserAgentForTest(agent string) {
	userAgent = agent
}

func SetTimeoutForTest(t time.Duration) {
	timeout = t
}

func SetBaseDelayForTest(delay time.Duration) {
	baseDelay = delay
}

func SetJitterForTest(j time.Duration) {
	jitter = j
}

func SetRandomSeedForTest(seed int64) {
	randomSeed = seed
}

func SetAllowedHostsForTest(hosts []string) {
	allowedHosts = hosts
}

func SetAllowedPathPrefixForTest(prefixes []string) {
	allowedPathPrefix = prefixes
}

func SetAllowedDomainSuffixForTest(suffix string) {
	allowedDomainSuffix = suffix
}

func SetMaxAttemptForTest(attempts int) {
	maxAttempt = attempts
}

func SetShingleSizeForTest(size int) {
	shingleSize = size
}

func SetMaxSimilarityForTest(similarity float64) {
	maxSimilarity = similarity
}

func SetMaxURLLenForTest(n int) {
	maxURLLen = n
}

func SetDatabaseForTest(driver string) {
	database = driver
}

func SetDatabaseDSNForTest(dsn string) {
	databaseDSN = dsn
}

func SetRenderTimeoutForTest(d time.Duration) {
	renderTimeout = d
}

func SetRenderPoolSizeForTest(n int) {
	renderPoolSize = n
}

func SetLogLevelForTest(level string) {
	logLevel = level
}

func SetLogFileForTest(path string) {
	logFile = path
}

func SetMetricsAddrForTest(addr string) {
	metricsAddr = addr
}
