package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	DefaultURL = "https://api.deploy.nav.cloud.nais.io"

	RetryCountHeader = "X-Deploy-Retry-Count"
	RequestIDHeader  = "X-Request-Id"

	defaultRequestTimeout = 5 * time.Minute
)

type httpClient struct {
	client    *http.Client
	baseURL   string
	authToken string
	userAgent string
}

// New returns a Client talking to the deploy service at baseURL.
func New(baseURL, authToken, userAgent string) Client {
	return &httpClient{
		client: &http.Client{
			Timeout: defaultRequestTimeout,
		},
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		authToken: authToken,
		userAgent: userAgent,
	}
}

func (c *httpClient) CreateSiteDeploy(ctx context.Context, siteID string, request *DeployRequest) (*Deploy, error) {
	deploy := &Deploy{}
	path := fmt.Sprintf("/api/v1/sites/%s/deploys", url.PathEscape(siteID))
	err := c.doJSON(ctx, http.MethodPost, path, request, deploy)
	return deploy, err
}

func (c *httpClient) UpdateSiteDeploy(ctx context.Context, siteID, deployID string, request *DeployRequest) (*Deploy, error) {
	deploy := &Deploy{}
	path := fmt.Sprintf("/api/v1/sites/%s/deploys/%s", url.PathEscape(siteID), url.PathEscape(deployID))
	err := c.doJSON(ctx, http.MethodPut, path, request, deploy)
	return deploy, err
}

func (c *httpClient) GetSiteDeploy(ctx context.Context, siteID, deployID string) (*Deploy, error) {
	deploy := &Deploy{}
	path := fmt.Sprintf("/api/v1/sites/%s/deploys/%s", url.PathEscape(siteID), url.PathEscape(deployID))
	err := c.doJSON(ctx, http.MethodGet, path, nil, deploy)
	return deploy, err
}

func (c *httpClient) CancelSiteDeploy(ctx context.Context, deployID string) (*Deploy, error) {
	deploy := &Deploy{}
	path := fmt.Sprintf("/api/v1/deploys/%s/cancel", url.PathEscape(deployID))
	err := c.doJSON(ctx, http.MethodPost, path, nil, deploy)
	return deploy, err
}

func (c *httpClient) UploadDeployFile(ctx context.Context, deployID string, upload FileUpload) (*DeployFile, error) {
	path := fmt.Sprintf("/api/v1/deploys/%s/files/%s", url.PathEscape(deployID), escapePath(upload.Path))

	req, err := c.newRequest(ctx, http.MethodPut, path, upload.Body, upload.Size)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	file := &DeployFile{}
	return file, c.do(req, file)
}

func (c *httpClient) UploadDeployFunction(ctx context.Context, deployID string, upload FunctionUpload) (*DeployFunction, error) {
	query := url.Values{}
	if len(upload.Runtime) > 0 {
		query.Set("runtime", upload.Runtime)
	}
	if len(upload.InvocationMode) > 0 {
		query.Set("invocation_mode", upload.InvocationMode)
	}
	if upload.Timeout > 0 {
		query.Set("timeout", strconv.Itoa(upload.Timeout))
	}

	path := fmt.Sprintf("/api/v1/deploys/%s/functions/%s", url.PathEscape(deployID), url.PathEscape(upload.Name))
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodPut, path, upload.Body, upload.Size)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if upload.RetryCount > 0 {
		req.Header.Set(RetryCountHeader, strconv.Itoa(upload.RetryCount))
	}

	function := &DeployFunction{}
	return function, c.do(req, function)
}

func (c *httpClient) doJSON(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	var size int64
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
		size = int64(len(payload))
	}

	req, err := c.newRequest(ctx, method, path, reader, size)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, target)
}

func (c *httpClient) newRequest(ctx context.Context, method, path string, body io.Reader, size int64) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.ContentLength = size
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if len(c.authToken) > 0 {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if len(c.userAgent) > 0 {
		req.Header.Set("User-Agent", c.userAgent)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	return req, nil
}

func (c *httpClient) do(req *http.Request, target any) error {
	path := req.URL.Path

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Method: req.Method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	log.WithFields(log.Fields{
		"method":     req.Method,
		"path":       path,
		"status":     resp.StatusCode,
		"request_id": req.Header.Get(RequestIDHeader),
	}).Debug("deploy API request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(req.Method, path, resp)
	}

	if target == nil {
		return nil
	}

	err = json.NewDecoder(resp.Body).Decode(target)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, path, err)
	}

	return nil
}

func responseError(method, path string, resp *http.Response) error {
	apiErr := &Error{
		StatusCode: resp.StatusCode,
		Method:     method,
		Path:       path,
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	message := struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}{}
	if json.Unmarshal(body, &message) == nil && len(message.Message) > 0 {
		apiErr.Message = message.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}

	return apiErr
}

// escapePath escapes every segment of a deploy path while keeping the separators.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i := range segments {
		segments[i] = url.PathEscape(segments[i])
	}
	return strings.Join(segments, "/")
}
