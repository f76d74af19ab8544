package deployclient

import (
	"os"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/nais/sitedeploy/pkg/api"
	"github.com/nais/sitedeploy/pkg/deploysite"
	"github.com/nais/sitedeploy/pkg/hashing"
)

type Config struct {
	Actions                   bool
	APIURL                    string
	AuthToken                 string
	Branch                    string
	ConcurrentHash            int
	ConcurrentUpload          int
	ConfigFile                string
	DeployID                  string
	Dir                       string
	DryRun                    bool
	EdgeFunctionsDir          string
	Functions                 []string
	FunctionsManifest         string
	HashAlgorithm             string
	JSON                      bool
	MaxRetry                  int
	Message                   string
	OpenTelemetryCollectorURL string
	PollInterval              time.Duration
	Prod                      bool
	PushgatewayURL            string
	Quiet                     bool
	SiteID                    string
	SkipFunctionsCache        bool
	SyncFileLimit             int
	Timeout                   time.Duration
	TracingDashboardURL       string
	Variables                 []string
	VariablesFile             string
}

// InitConfig parses command line flags into cfg.
// Values will be resolved with the following precedence: flags > environment variables > default values.
func InitConfig(cfg *Config) {
	initFlags(flag.CommandLine, cfg)
	flag.Parse()
}

func initFlags(fs *flag.FlagSet, cfg *Config) {
	fs.BoolVar(&cfg.Actions, "actions", getEnvBool("ACTIONS", false), "Use GitHub Actions compatible error and warning messages. (env ACTIONS)")
	fs.StringVar(&cfg.APIURL, "api-url", getEnv("DEPLOY_API_URL", api.DefaultURL), "URL to the deploy API. (env DEPLOY_API_URL)")
	fs.StringVar(&cfg.AuthToken, "auth-token", os.Getenv("DEPLOY_AUTH_TOKEN"), "Deploy API access token. (env DEPLOY_AUTH_TOKEN)")
	fs.StringVar(&cfg.Branch, "alias", os.Getenv("BRANCH"), "Deploy to a named alias instead of a unique draft URL. (env BRANCH)")
	fs.StringVar(&cfg.Branch, "branch", os.Getenv("BRANCH"), "Alias of --alias.")
	fs.IntVar(&cfg.ConcurrentHash, "concurrent-hash", getEnvInt("CONCURRENT_HASH", deploysite.DefaultConcurrentHash), "Number of files hashed in parallel. (env CONCURRENT_HASH)")
	fs.IntVar(&cfg.ConcurrentUpload, "concurrent-upload", getEnvInt("CONCURRENT_UPLOAD", deploysite.DefaultConcurrentUpload), "Number of files uploaded in parallel. (env CONCURRENT_UPLOAD)")
	fs.StringVar(&cfg.ConfigFile, "config", os.Getenv("CONFIG"), "Deploy configuration file, templated with --var and --vars. (env CONFIG)")
	fs.StringVar(&cfg.DeployID, "deploy-id", os.Getenv("DEPLOY_ID"), "Update an existing deploy instead of creating a new one. (env DEPLOY_ID)")
	fs.StringVar(&cfg.Dir, "dir", os.Getenv("DEPLOY_DIR"), "Directory with the built site. (env DEPLOY_DIR)")
	fs.BoolVar(&cfg.DryRun, "dry-run", getEnvBool("DRY_RUN", false), "Hash files and print the manifest, but don't contact the deploy API. (env DRY_RUN)")
	fs.StringVar(&cfg.EdgeFunctionsDir, "edge-functions", os.Getenv("EDGE_FUNCTIONS_DIR"), "Directory with built edge functions. (env EDGE_FUNCTIONS_DIR)")
	fs.StringSliceVar(&cfg.Functions, "functions", getEnvStringSlice("FUNCTIONS"), "Directory with functions. Can be specified multiple times. (env FUNCTIONS)")
	fs.StringVar(&cfg.FunctionsManifest, "functions-manifest", os.Getenv("FUNCTIONS_MANIFEST"), "Manifest written by the functions build, used as a cache. (env FUNCTIONS_MANIFEST)")
	fs.StringVar(&cfg.HashAlgorithm, "hash-algorithm", getEnv("HASH_ALGORITHM", hashing.DefaultAlgorithm), "Digest algorithm for file contents, one of "+strings.Join(hashing.Algorithms(), ", ")+". (env HASH_ALGORITHM)")
	fs.BoolVar(&cfg.JSON, "json", getEnvBool("JSON", false), "Print the deploy result as JSON to standard output. (env JSON)")
	fs.IntVar(&cfg.MaxRetry, "max-retry", getEnvInt("MAX_RETRY", deploysite.DefaultMaxRetry), "Retries per upload on transient errors. (env MAX_RETRY)")
	fs.StringVar(&cfg.Message, "message", os.Getenv("MESSAGE"), "Short message to include in the deploy log. (env MESSAGE)")
	fs.StringVar(&cfg.OpenTelemetryCollectorURL, "otel-collector-endpoint", getEnv("OTEL_COLLECTOR_ENDPOINT", ""), "OpenTelemetry collector endpoint. (env OTEL_COLLECTOR_ENDPOINT)")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", getEnvDuration("POLL_INTERVAL", deploysite.DefaultPollInterval), "How often to check deploy state. (env POLL_INTERVAL)")
	fs.BoolVar(&cfg.Prod, "prod", getEnvBool("PROD", false), "Deploy to production. (env PROD)")
	fs.StringVar(&cfg.PushgatewayURL, "pushgateway-url", os.Getenv("PUSHGATEWAY_URL"), "Push deploy metrics to this Prometheus Pushgateway. (env PUSHGATEWAY_URL)")
	fs.BoolVar(&cfg.Quiet, "quiet", getEnvBool("QUIET", false), "Suppress printing of informational messages except errors. (env QUIET)")
	fs.StringVar(&cfg.SiteID, "site", os.Getenv("SITE_ID"), "ID of the site to deploy to. (env SITE_ID)")
	fs.BoolVar(&cfg.SkipFunctionsCache, "skip-functions-cache", getEnvBool("SKIP_FUNCTIONS_CACHE", false), "Always package functions, ignoring the functions manifest. (env SKIP_FUNCTIONS_CACHE)")
	fs.IntVar(&cfg.SyncFileLimit, "sync-file-limit", getEnvInt("SYNC_FILE_LIMIT", deploysite.DefaultSyncFileLimit), "Number of files above which the deploy API computes the diff asynchronously. (env SYNC_FILE_LIMIT)")
	fs.DurationVar(&cfg.Timeout, "timeout", getEnvDuration("TIMEOUT", deploysite.DefaultDeployTimeout), "Time to wait for the deploy API to process the deploy. (env TIMEOUT)")
	fs.StringVar(&cfg.TracingDashboardURL, "tracing-dashboard-url", getEnv("TRACING_DASHBOARD_URL", ""), "Base URL to tracing dashboard onto which the trace ID can be appended. (env TRACING_DASHBOARD_URL)")
	fs.StringSliceVar(&cfg.Variables, "var", getEnvStringSlice("VAR"), "Template variable in the form KEY=VALUE. Can be specified multiple times. (env VAR)")
	fs.StringVar(&cfg.VariablesFile, "vars", os.Getenv("VARS"), "File containing template variables. (env VARS)")
}

// NewConfig returns a configuration with default values.
func NewConfig() *Config {
	return &Config{
		APIURL:           api.DefaultURL,
		ConcurrentHash:   deploysite.DefaultConcurrentHash,
		ConcurrentUpload: deploysite.DefaultConcurrentUpload,
		HashAlgorithm:    hashing.DefaultAlgorithm,
		MaxRetry:         deploysite.DefaultMaxRetry,
		PollInterval:     deploysite.DefaultPollInterval,
		SyncFileLimit:    deploysite.DefaultSyncFileLimit,
		Timeout:          deploysite.DefaultDeployTimeout,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		duration, err := time.ParseDuration(value)
		if err == nil {
			return duration
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return i
}

func getEnvStringSlice(key string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}

	return []string{}
}

func getEnvBool(key string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}

	return b
}

func (cfg *Config) Validate() error {
	if len(cfg.Dir) == 0 && len(cfg.Functions) == 0 && len(cfg.FunctionsManifest) == 0 {
		return ErrDirRequired
	}

	if cfg.DryRun {
		return nil
	}

	if len(cfg.SiteID) == 0 {
		return ErrSiteRequired
	}

	if len(cfg.AuthToken) == 0 {
		return ErrAuthRequired
	}

	if cfg.Prod && len(cfg.Branch) > 0 {
		return ErrProdWithAlias
	}

	return nil
}
