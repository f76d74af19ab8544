package deployclient_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nais/sitedeploy/pkg/api"
	"github.com/nais/sitedeploy/pkg/deployclient"
	"github.com/nais/sitedeploy/pkg/deploysite"
	"github.com/nais/sitedeploy/pkg/fakeapi"
	"github.com/nais/sitedeploy/pkg/functions"
	"github.com/nais/sitedeploy/pkg/hashing"
)

const (
	siteID    = "site-1"
	authToken = "token"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	return root
}

func fakeDeployService(t *testing.T) (*fakeapi.Server, string) {
	t.Helper()

	server, err := fakeapi.New(fakeapi.Config{
		AuthToken:     authToken,
		HashAlgorithm: hashing.SHA1,
		Registerer:    prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)

	return server, httpServer.URL
}

func validConfig(t *testing.T, apiURL string) *deployclient.Config {
	cfg := deployclient.NewConfig()
	cfg.APIURL = apiURL
	cfg.AuthToken = authToken
	cfg.SiteID = siteID
	cfg.PollInterval = 10 * time.Millisecond
	cfg.Timeout = 5 * time.Second
	cfg.Dir = writeFiles(t, map[string]string{
		"index.html":   "<html>hi</html>",
		"about.html":   "<html>about</html>",
		".env":         "SECRET=1",
		"_redirects":   "/old /new",
		"img/logo.svg": "<svg/>",
	})
	return cfg
}

func deploy(t *testing.T, cfg *deployclient.Config) (*deploysite.Result, error) {
	t.Helper()
	ctx := context.Background()
	opts, err := deployclient.Prepare(ctx, cfg)
	require.NoError(t, err)
	opts.TempDir = t.TempDir()
	opts.Retry.InitialDelay = time.Millisecond
	opts.Retry.MaxDelay = 5 * time.Millisecond
	client := api.New(cfg.APIURL, cfg.AuthToken, "sitedeploy-test")
	return deployclient.Deploy(ctx, cfg, client, *opts)
}

func TestDeploy(t *testing.T) {
	server, url := fakeDeployService(t)
	cfg := validConfig(t, url)
	cfg.ConfigFile = "testdata/deploy.yaml"
	cfg.Variables = []string{"version=1.2.3"}
	cfg.EdgeFunctionsDir = writeFiles(t, map[string]string{"manifest.json": `{"functions":[]}`})
	cfg.Functions = []string{writeFiles(t, map[string]string{"report.js": "export default () => {}"})}

	summaryFile := filepath.Join(t.TempDir(), "summary.md")
	require.NoError(t, os.WriteFile(summaryFile, nil, 0o644))
	t.Setenv("GITHUB_STEP_SUMMARY", summaryFile)
	t.Setenv("DEPLOY_SUMMARY", "")

	result, err := deploy(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, api.StateReady, result.Deploy.State)
	assert.Equal(t, "Release 1.2.3", result.Deploy.Title)
	assert.True(t, result.Deploy.Draft)

	live := server.Live(siteID)
	assert.Contains(t, live, "index.html")
	assert.Contains(t, live, "about.html")
	assert.Contains(t, live, "img/logo.svg")
	assert.Contains(t, live, ".deploy/edge-functions/manifest.json")
	assert.Contains(t, live, deploysite.ConfigAssetPath)
	assert.NotContains(t, live, ".env")
	assert.NotContains(t, live, "_redirects")

	config, ok := server.Content(siteID, live[deploysite.ConfigAssetPath])
	require.True(t, ok)
	assert.JSONEq(t, `{"redirects":[{"from":"/old","to":"/new","status":301}]}`, string(config))

	summary, err := os.ReadFile(summaryFile)
	require.NoError(t, err)
	assert.Contains(t, string(summary), "* Deploy ID: "+result.DeployID)
	assert.Contains(t, string(summary), "Final status: *ready*")
}

func TestDeployExitCodes(t *testing.T) {
	t.Run("rejected upload", func(t *testing.T) {
		server, url := fakeDeployService(t)
		cfg := validConfig(t, url)
		server.FailUploads("index.html", http.StatusUnprocessableEntity)

		_, err := deploy(t, cfg)
		assert.Equal(t, deployclient.ExitUploadFailure, deployclient.ErrorExitCode(err))
		assert.Nil(t, server.Live(siteID))
	})

	t.Run("wrong token", func(t *testing.T) {
		_, url := fakeDeployService(t)
		cfg := validConfig(t, url)
		cfg.AuthToken = "wrong"

		_, err := deploy(t, cfg)
		assert.Equal(t, deployclient.ExitNoDeployment, deployclient.ErrorExitCode(err))
	})

	t.Run("empty directory", func(t *testing.T) {
		_, url := fakeDeployService(t)
		cfg := validConfig(t, url)
		cfg.Dir = t.TempDir()

		_, err := deploy(t, cfg)
		assert.Equal(t, deployclient.ExitNothingToDeploy, deployclient.ErrorExitCode(err))
	})
}

func TestPrepareErrors(t *testing.T) {
	for _, tt := range []struct {
		name   string
		modify func(cfg *deployclient.Config)
		code   deployclient.ExitCode
	}{
		{"missing site", func(cfg *deployclient.Config) { cfg.SiteID = "" }, deployclient.ExitInvocationFailure},
		{"unknown algorithm", func(cfg *deployclient.Config) { cfg.HashAlgorithm = "md5" }, deployclient.ExitInvocationFailure},
		{"no concurrency", func(cfg *deployclient.Config) { cfg.ConcurrentUpload = 0 }, deployclient.ExitInvocationFailure},
		{"missing variables file", func(cfg *deployclient.Config) { cfg.VariablesFile = "testdata/missing.yaml" }, deployclient.ExitInvocationFailure},
		{"broken config file", func(cfg *deployclient.Config) {
			cfg.ConfigFile = "testdata/broken.yaml"
			cfg.Variables = []string{"version=1"}
		}, deployclient.ExitTemplateError},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t, "http://localhost")
			tt.modify(cfg)
			_, err := deployclient.Prepare(context.Background(), cfg)
			assert.Equal(t, tt.code, deployclient.ErrorExitCode(err))
		})
	}
}

func TestPrepareDeployTarget(t *testing.T) {
	cfg := validConfig(t, "http://localhost")
	cfg.Message = "Build {{ build }}"
	cfg.Variables = []string{"build=42"}
	cfg.Prod = true

	opts, err := deployclient.Prepare(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "Build 42", opts.Title)
	assert.False(t, opts.Draft)
	assert.Empty(t, opts.Branch)

	cfg.Prod = false
	cfg.Branch = "staging"
	opts, err = deployclient.Prepare(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, opts.Draft)
	assert.Equal(t, "staging", opts.Branch)
}

func TestPrepareFunctionsManifestOnly(t *testing.T) {
	cfg := validConfig(t, "http://localhost")
	cfg.Dir = ""
	cfg.FunctionsManifest = filepath.Join(t.TempDir(), "manifest.json")

	opts, err := deployclient.Prepare(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, opts.Files)
	source, ok := opts.Functions.(*functions.Source)
	require.True(t, ok)
	assert.Empty(t, source.Directories)
	assert.Equal(t, cfg.FunctionsManifest, source.ManifestPath)
}

func TestDryRun(t *testing.T) {
	cfg := deployclient.NewConfig()
	cfg.DryRun = true
	cfg.Dir = writeFiles(t, map[string]string{
		"index.html": "hi",
		"copy.html":  "hi",
	})

	opts, err := deployclient.Prepare(context.Background(), cfg)
	require.NoError(t, err)
	opts.TempDir = t.TempDir()

	buf := &bytes.Buffer{}
	require.NoError(t, deployclient.DryRun(context.Background(), *opts, buf, false))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[0], "  "+deploysite.ConfigAssetPath))
	assert.True(t, strings.HasSuffix(lines[1], "  copy.html"))
	assert.True(t, strings.HasSuffix(lines[2], "  index.html"))
	assert.Equal(t, strings.Fields(lines[1])[0], strings.Fields(lines[2])[0])

	buf.Reset()
	require.NoError(t, deployclient.DryRun(context.Background(), *opts, buf, true))
	out := struct {
		Files map[string]string `json:"files"`
	}{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Len(t, out.Files, 3)

	entries, err := os.ReadDir(opts.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteJSON(t *testing.T) {
	result := &deploysite.Result{
		DeployID:   "deploy-1",
		UploadList: nil,
		Deploy: &api.Deploy{
			ID:           "deploy-1",
			SiteID:       siteID,
			SSLURL:       "https://site.example.com",
			DeploySSLURL: "https://deploy-1--site.example.com",
			AdminURL:     "https://admin.example.com/sites/site-1/deploys/deploy-1",
		},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, deployclient.WriteJSON(buf, result, false))
	assert.JSONEq(t, `{
		"site_id": "site-1",
		"deploy_id": "deploy-1",
		"deploy_url": "https://deploy-1--site.example.com",
		"logs": "https://admin.example.com/sites/site-1/deploys/deploy-1",
		"uploaded": 0
	}`, buf.String())

	buf.Reset()
	require.NoError(t, deployclient.WriteJSON(buf, result, true))
	assert.Contains(t, buf.String(), `"url": "https://site.example.com"`)
}
