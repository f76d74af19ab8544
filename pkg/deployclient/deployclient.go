package deployclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	ocodes "go.opentelemetry.io/otel/codes"

	"github.com/nais/sitedeploy/pkg/api"
	"github.com/nais/sitedeploy/pkg/deploysite"
	"github.com/nais/sitedeploy/pkg/functions"
	"github.com/nais/sitedeploy/pkg/manifest"
	"github.com/nais/sitedeploy/pkg/metrics"
	"github.com/nais/sitedeploy/pkg/telemetry"
	"github.com/nais/sitedeploy/pkg/walker"
)

const (
	MetricsJob = "sitedeploy"

	metricsPushTimeout = 10 * time.Second
)

var (
	ErrDirRequired   = errors.New("a site directory, a functions directory or a functions manifest is required")
	ErrSiteRequired  = errors.New("site ID required")
	ErrAuthRequired  = errors.New("deploy API auth token required")
	ErrProdWithAlias = errors.New("production deploys can not have an alias")
)

// Prepare turns the command line configuration into pipeline options.
func Prepare(ctx context.Context, cfg *Config) (*deploysite.Options, error) {
	var err error

	if err = cfg.Validate(); err != nil {
		return nil, ErrorWrap(ExitInvocationFailure, err)
	}

	templateVariables := make(TemplateVariables)

	if len(cfg.VariablesFile) > 0 {
		templateVariables, err = templateVariablesFromFile(cfg.VariablesFile)
		if err != nil {
			return nil, Errorf(ExitInvocationFailure, "load template variables: %s", err)
		}
	}

	if len(cfg.Variables) > 0 {
		templateOverrides := templateVariablesFromSlice(cfg.Variables)
		for key, val := range templateOverrides {
			if oldval, ok := templateVariables[key]; ok {
				log.Warnf("Overwriting template variable '%s'; previous value was '%v'", key, oldval)
			}
			log.Infof("Setting template variable '%s' to '%v'", key, val)
			templateVariables[key] = val
		}
	}

	deployFile := &DeployFile{}
	if len(cfg.ConfigFile) > 0 {
		var templated []byte
		deployFile, templated, err = LoadDeployFile(cfg.ConfigFile, templateVariables)
		if err != nil {
			if cfg.DryRun && templated != nil {
				line, er := detectErrorLine(err.Error())
				if er == nil {
					for _, l := range errorContext(string(templated), line) {
						fmt.Fprintln(os.Stderr, l)
					}
				}
			}
			return nil, ErrorWrap(ExitTemplateError, err)
		}
		log.Infof("Loaded deploy configuration from %s", cfg.ConfigFile)
	}

	title := cfg.Message
	if len(title) == 0 {
		title = deployFile.Title
	}
	templatedTitle, err := templatedFile([]byte(title), templateVariables)
	if err != nil {
		return nil, Errorf(ExitTemplateError, "deploy title: %s", err)
	}

	opts := deploysite.DefaultOptions()
	opts.DeployID = cfg.DeployID
	opts.Branch = cfg.Branch
	opts.Draft = !cfg.Prod && len(cfg.Branch) == 0
	opts.Title = strings.TrimSpace(string(templatedTitle))
	opts.DeployConfig = deployFile.Config
	opts.HashAlgorithm = cfg.HashAlgorithm
	opts.ConcurrentHash = cfg.ConcurrentHash
	opts.ConcurrentUpload = cfg.ConcurrentUpload
	opts.SyncFileLimit = cfg.SyncFileLimit
	opts.MaxRetry = cfg.MaxRetry
	opts.DeployTimeout = cfg.Timeout
	opts.PollInterval = cfg.PollInterval
	opts.Observer = LogObserver

	files, rewrite, err := fileSource(cfg)
	if err != nil {
		return nil, ErrorWrap(ExitInvocationFailure, err)
	}
	if files != nil {
		opts.Files = files
		opts.Rewrite = rewrite
	}

	if len(cfg.Functions) > 0 || len(cfg.FunctionsManifest) > 0 {
		opts.Functions = &functions.Source{
			Directories:  cfg.Functions,
			Config:       deployFile.Functions,
			ManifestPath: cfg.FunctionsManifest,
			SkipCache:    cfg.SkipFunctionsCache,
			Observer:     LogObserver,
		}
	}

	if err = opts.Validate(); err != nil {
		return nil, ErrorWrap(ExitInvocationFailure, err)
	}

	return &opts, nil
}

// fileSource walks the site directory and the edge functions directory.
// Edge functions are moved below manifest.EdgeFunctionsPrefix.
func fileSource(cfg *Config) (*walker.Walker, manifest.Rewriter, error) {
	var roots []string
	skipNodeModules := false

	if len(cfg.Dir) > 0 {
		dir, err := filepath.Abs(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		wd, err := os.Getwd()
		if err != nil {
			return nil, nil, err
		}
		skipNodeModules = dir == wd
		roots = append(roots, dir)
	}

	var edgeRoot string
	if len(cfg.EdgeFunctionsDir) > 0 {
		var err error
		edgeRoot, err = filepath.Abs(cfg.EdgeFunctionsDir)
		if err != nil {
			return nil, nil, err
		}
		if _, err = os.Stat(edgeRoot); err == nil {
			roots = append(roots, edgeRoot)
		} else if errors.Is(err, os.ErrNotExist) {
			log.Warnf("Edge functions directory %s does not exist; deploying without edge functions", cfg.EdgeFunctionsDir)
			edgeRoot = ""
		} else {
			return nil, nil, err
		}
	}

	if len(roots) == 0 {
		return nil, nil, nil
	}

	rewrite := func(asset *manifest.Asset) string {
		if len(edgeRoot) > 0 && asset.RootDirectory == edgeRoot {
			return manifest.EdgeFunctionsPrefix + asset.NormalizedPath
		}
		return asset.NormalizedPath
	}

	return walker.New(walker.DefaultSkip(skipNodeModules), roots...), rewrite, nil
}

// Deploy runs the deploy pipeline and reports the outcome to the log and the GitHub step summary.
func Deploy(ctx context.Context, cfg *Config, client api.Client, opts deploysite.Options) (*deploysite.Result, error) {
	// Root span for tracing.
	// All sub-spans must be created from this context.
	ctx, span := telemetry.Tracer().Start(ctx, "Send site deploy and wait for completion")
	defer span.End()

	defer pushMetrics(ctx, cfg)

	traceID := telemetry.TraceID(ctx)
	startedAt := time.Now()

	log.Infof("Deploying to site %s through %s...", cfg.SiteID, cfg.APIURL)

	result, err := deploysite.DeploySite(ctx, client, cfg.SiteID, opts)

	// If running in GitHub actions, print a markdown summary
	summaryFile, summaryErr := os.OpenFile(os.Getenv("GITHUB_STEP_SUMMARY"), os.O_APPEND|os.O_WRONLY, 0644)
	summaryEnabled := strings.ToLower(os.Getenv("DEPLOY_SUMMARY")) != "false"
	summary := func(format string, a ...any) {
		if summaryFile == nil || !summaryEnabled {
			return
		}
		_, _ = fmt.Fprintf(summaryFile, format+"\n", a...)
	}
	if summaryErr == nil {
		defer summaryFile.Close()
	}

	summary("## 🚀 Site deploy")
	summary("")
	if len(cfg.TracingDashboardURL) > 0 && len(traceID) > 0 {
		summary("* Detailed trace: [%s](%s)", traceID, cfg.TracingDashboardURL+traceID)
	}
	summary("* Site: %s", cfg.SiteID)
	summary("* Started at: %s", startedAt.Local().Truncate(time.Second))

	if result != nil {
		summary("* Deploy ID: %s", result.DeployID)
	}

	if err != nil {
		err = deployError(err)
		span.SetStatus(ocodes.Error, err.Error())
		span.RecordError(err)
		summary("* Finished at: %s", time.Now().Local().Truncate(time.Second))
		summary("")
		summary("❌ Final status: *failed* / %s", err)
		return result, err
	}

	deploy := result.Deploy
	deployURL := deploy.DeploySSLURL
	if cfg.Prod {
		deployURL = deploy.SSLURL
	}

	// Print information to standard output
	log.Infof("Deploy information:")
	log.Infof("---")
	log.Infof("id...........: %s", result.DeployID)
	log.Infof("url..........: %s", deployURL)
	log.Infof("logs.........: %s", deploy.AdminURL)
	log.Infof("uploaded.....: %d assets", len(result.UploadList))
	if len(cfg.TracingDashboardURL) > 0 && len(traceID) > 0 {
		log.Infof("traces.......: %s", cfg.TracingDashboardURL+traceID)
	}
	log.Info("---")

	summary("* Deploy URL: [%s](%s)", deployURL, deployURL)
	summary("* Logs: [%s](%s)", deploy.AdminURL, deploy.AdminURL)
	summary("* Uploaded assets: %d", len(result.UploadList))
	summary("* Finished at: %s", time.Now().Local().Truncate(time.Second))
	summary("")
	summary("✅ Final status: *%s*", deploy.State)

	return result, nil
}

func pushMetrics(ctx context.Context, cfg *Config) {
	if len(cfg.PushgatewayURL) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsPushTimeout)
	defer cancel()

	err := metrics.Push(ctx, cfg.PushgatewayURL, MetricsJob, map[string]string{"site": cfg.SiteID})
	if err != nil {
		log.Warnf("Unable to push metrics to %s: %s", cfg.PushgatewayURL, err)
	}
}

// DryRun hashes everything that would be deployed and prints the resulting manifests without contacting the deploy API.
func DryRun(ctx context.Context, opts deploysite.Options, w io.Writer, asJSON bool) error {
	tmpDir, err := os.MkdirTemp(opts.TempDir, "sitedeploy-")
	if err != nil {
		return ErrorWrap(ExitInternalError, err)
	}
	defer os.RemoveAll(tmpDir)

	manifests, err := deploysite.BuildManifests(ctx, opts, tmpDir)
	if err != nil {
		return deployError(err)
	}

	if asJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		err = encoder.Encode(struct {
			Files     manifest.Manifest `json:"files"`
			Functions manifest.Manifest `json:"functions"`
		}{
			Files:     manifests.Files,
			Functions: manifests.Functions,
		})
		if err != nil {
			return ErrorWrap(ExitInternalError, err)
		}
		return nil
	}

	for _, path := range manifests.Files.Paths() {
		fmt.Fprintf(w, "%s  %s\n", manifests.Files[path], path)
	}
	for _, name := range manifests.Functions.Paths() {
		fmt.Fprintf(w, "%s  function:%s\n", manifests.Functions[name], name)
	}

	return nil
}

// Output is the machine readable deploy result.
type Output struct {
	SiteID    string `json:"site_id"`
	DeployID  string `json:"deploy_id"`
	DeployURL string `json:"deploy_url"`
	URL       string `json:"url,omitempty"`
	Logs      string `json:"logs"`
	Uploaded  int    `json:"uploaded"`
}

// WriteJSON prints the deploy result as JSON. Production deploys include the site URL.
func WriteJSON(w io.Writer, result *deploysite.Result, prod bool) error {
	deploy := result.Deploy
	out := Output{
		SiteID:    deploy.SiteID,
		DeployID:  result.DeployID,
		DeployURL: deploy.DeploySSLURL,
		Logs:      deploy.AdminURL,
		Uploaded:  len(result.UploadList),
	}
	if prod {
		out.URL = deploy.SSLURL
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
