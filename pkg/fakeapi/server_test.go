package fakeapi_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nais/sitedeploy/pkg/api"
	"github.com/nais/sitedeploy/pkg/fakeapi"
	"github.com/nais/sitedeploy/pkg/hashing"
)

const (
	siteID = "site-1"
	token  = "secret"
)

func newServer(t *testing.T, cfg fakeapi.Config) (*fakeapi.Server, api.Client) {
	t.Helper()

	cfg.AuthToken = token
	cfg.Registerer = prometheus.NewRegistry()

	server, err := fakeapi.New(cfg)
	require.NoError(t, err)

	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)

	return server, api.New(httpServer.URL, token, "test")
}

func sha1Of(content string) string {
	algorithm, _ := hashing.NewAlgorithm(hashing.SHA1)
	return algorithm.Bytes([]byte(content))
}

func upload(t *testing.T, client api.Client, deployID, path, content string) error {
	t.Helper()
	_, err := client.UploadDeployFile(context.Background(), deployID, api.FileUpload{
		Path: path,
		Body: bytes.NewBufferString(content),
		Size: int64(len(content)),
	})
	return err
}

func TestDeployLifecycle(t *testing.T) {
	server, client := newServer(t, fakeapi.Config{HashAlgorithm: hashing.SHA1})
	ctx := context.Background()

	request := &api.DeployRequest{
		Files: map[string]string{
			"a.txt":          sha1Of("hi"),
			"b.txt":          sha1Of("hi"),
			"dir/my doc.txt": sha1Of("bye"),
		},
		Title: "first",
	}

	deploy, err := client.CreateSiteDeploy(ctx, siteID, request)
	require.NoError(t, err)
	assert.NotEmpty(t, deploy.ID)
	assert.Equal(t, api.StatePrepared, deploy.State)
	assert.ElementsMatch(t, []string{sha1Of("hi"), sha1Of("bye")}, deploy.Required)
	assert.Equal(t, "first", deploy.Title)

	require.NoError(t, upload(t, client, deploy.ID, "a.txt", "hi"))
	require.NoError(t, upload(t, client, deploy.ID, "dir/my doc.txt", "bye"))

	deploy, err = client.GetSiteDeploy(ctx, siteID, deploy.ID)
	require.NoError(t, err)
	assert.Equal(t, api.StateUploading, deploy.State, "b.txt shares a digest but has not been uploaded")

	require.NoError(t, upload(t, client, deploy.ID, "b.txt", "hi"))

	deploy, err = client.GetSiteDeploy(ctx, siteID, deploy.ID)
	require.NoError(t, err)
	assert.Equal(t, api.StateReady, deploy.State)
	assert.Equal(t, request.Files, server.Live(siteID))

	content, ok := server.Content(siteID, sha1Of("bye"))
	assert.True(t, ok)
	assert.Equal(t, "bye", string(content))

	second, err := client.CreateSiteDeploy(ctx, siteID, request)
	require.NoError(t, err)
	assert.Empty(t, second.Required)
	assert.NotEqual(t, deploy.ID, second.ID)
}

func TestAsyncDiff(t *testing.T) {
	_, client := newServer(t, fakeapi.Config{DiffDelay: 50 * time.Millisecond})
	ctx := context.Background()

	deploy, err := client.CreateSiteDeploy(ctx, siteID, &api.DeployRequest{
		Files: map[string]string{"a.txt": sha1Of("hi")},
		Async: true,
	})
	require.NoError(t, err)
	assert.Equal(t, api.StatePreparing, deploy.State)
	assert.Nil(t, deploy.Required)

	err = upload(t, client, deploy.ID, "a.txt", "hi")
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	time.Sleep(60 * time.Millisecond)

	deploy, err = client.GetSiteDeploy(ctx, siteID, deploy.ID)
	require.NoError(t, err)
	assert.Equal(t, api.StatePrepared, deploy.State)
	assert.Equal(t, []string{sha1Of("hi")}, deploy.Required)
}

func TestUpdateDeploy(t *testing.T) {
	_, client := newServer(t, fakeapi.Config{})
	ctx := context.Background()

	deploy, err := client.CreateSiteDeploy(ctx, siteID, &api.DeployRequest{
		Files: map[string]string{"a.txt": sha1Of("hi")},
		Title: "kept",
	})
	require.NoError(t, err)

	updated, err := client.UpdateSiteDeploy(ctx, siteID, deploy.ID, &api.DeployRequest{
		Files: map[string]string{"b.txt": sha1Of("bye")},
	})
	require.NoError(t, err)
	assert.Equal(t, deploy.ID, updated.ID)
	assert.Equal(t, "kept", updated.Title)
	assert.Equal(t, []string{sha1Of("bye")}, updated.Required)

	_, err = client.UpdateSiteDeploy(ctx, siteID, "unknown", &api.DeployRequest{})
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestRejectsInvalidUploads(t *testing.T) {
	_, client := newServer(t, fakeapi.Config{HashAlgorithm: hashing.SHA1})
	ctx := context.Background()

	_, err := client.CreateSiteDeploy(ctx, siteID, &api.DeployRequest{
		Files: map[string]string{"what?.txt": sha1Of("hi")},
	})
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "invalid path")

	deploy, err := client.CreateSiteDeploy(ctx, siteID, &api.DeployRequest{
		Files: map[string]string{"a.txt": sha1Of("hi")},
	})
	require.NoError(t, err)

	err = upload(t, client, deploy.ID, "a.txt", "tampered")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)

	err = upload(t, client, deploy.ID, "not-in-manifest.txt", "hi")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
}

func TestAuthentication(t *testing.T) {
	server, err := fakeapi.New(fakeapi.Config{AuthToken: token, Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)

	httpServer := httptest.NewServer(server)
	defer httpServer.Close()

	client := api.New(httpServer.URL, "wrong", "test")
	_, err = client.GetSiteDeploy(context.Background(), siteID, "deploy")

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestFaultInjection(t *testing.T) {
	server, client := newServer(t, fakeapi.Config{})
	ctx := context.Background()

	deploy, err := client.CreateSiteDeploy(ctx, siteID, &api.DeployRequest{
		Files:     map[string]string{"a.txt": sha1Of("hi")},
		Functions: map[string]string{"api": sha1Of("zip")},
	})
	require.NoError(t, err)

	server.FailUploads("a.txt", http.StatusServiceUnavailable, http.StatusBadGateway)

	for _, status := range []int{http.StatusServiceUnavailable, http.StatusBadGateway} {
		err = upload(t, client, deploy.ID, "a.txt", "hi")
		var apiErr *api.Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, status, apiErr.StatusCode)
	}
	require.NoError(t, upload(t, client, deploy.ID, "a.txt", "hi"))
	assert.Equal(t, 3, server.UploadAttempts("a.txt"))

	server.FailUploads("api", http.StatusInternalServerError)
	for retry := range 2 {
		_, err = client.UploadDeployFunction(ctx, deploy.ID, api.FunctionUpload{
			Name:       "api",
			Body:       bytes.NewBufferString("zip"),
			Size:       3,
			Runtime:    "go",
			RetryCount: retry,
		})
	}
	require.NoError(t, err)
	assert.Equal(t, []string{"", "1"}, server.RetryHeaders("api"))

	deploy, err = client.GetSiteDeploy(ctx, siteID, deploy.ID)
	require.NoError(t, err)
	assert.Equal(t, api.StateReady, deploy.State)
}

func TestCancelDeploy(t *testing.T) {
	_, client := newServer(t, fakeapi.Config{})
	ctx := context.Background()

	deploy, err := client.CreateSiteDeploy(ctx, siteID, &api.DeployRequest{
		Files: map[string]string{"a.txt": sha1Of("hi")},
	})
	require.NoError(t, err)

	cancelled, err := client.CancelSiteDeploy(ctx, deploy.ID)
	require.NoError(t, err)
	assert.Equal(t, api.StateError, cancelled.State)

	err = upload(t, client, deploy.ID, "a.txt", "hi")
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
}

func TestRequestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	server, err := fakeapi.New(fakeapi.Config{Registerer: registry})
	require.NoError(t, err)

	httpServer := httptest.NewServer(server)
	defer httpServer.Close()

	client := api.New(httpServer.URL, "", "test")
	_, _ = client.GetSiteDeploy(context.Background(), siteID, "missing")

	families, err := registry.Gather()
	require.NoError(t, err)

	var found bool
	for _, family := range families {
		if family.GetName() != "requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, label := range metric.GetLabel() {
				labels[label.GetName()] = label.GetValue()
			}
			if labels["code"] == "404" && labels["path"] == "/api/v1/sites/{site_id}/deploys/{deploy_id}" {
				found = true
				assert.Equal(t, 1.0, metric.GetCounter().GetValue())
			}
		}
	}
	assert.True(t, found, "request counter labelled by route pattern")
}
