package api

import (
	"context"
	"io"
)

// Deploy states reported by the deploy service.
const (
	StatePreparing  = "preparing"
	StatePrepared   = "prepared"
	StateUploading  = "uploading"
	StateUploaded   = "uploaded"
	StateProcessing = "processing"
	StateReady      = "ready"
	StateError      = "error"
)

// Client is the subset of the deploy service API used when deploying a site.
type Client interface {
	CreateSiteDeploy(ctx context.Context, siteID string, request *DeployRequest) (*Deploy, error)
	UpdateSiteDeploy(ctx context.Context, siteID, deployID string, request *DeployRequest) (*Deploy, error)
	GetSiteDeploy(ctx context.Context, siteID, deployID string) (*Deploy, error)
	CancelSiteDeploy(ctx context.Context, deployID string) (*Deploy, error)
	UploadDeployFile(ctx context.Context, deployID string, upload FileUpload) (*DeployFile, error)
	UploadDeployFunction(ctx context.Context, deployID string, upload FunctionUpload) (*DeployFunction, error)
}

type FunctionSchedule struct {
	Name string `json:"name"`
	Cron string `json:"cron"`
}

type FunctionConfig struct {
	DisplayName string           `json:"display_name,omitempty"`
	Generator   string           `json:"generator,omitempty"`
	Routes      []map[string]any `json:"routes,omitempty"`
	BuildData   map[string]any   `json:"build_data,omitempty"`
	Priority    int              `json:"priority,omitempty"`
}

// DeployRequest describes the complete desired state of a deploy.
type DeployRequest struct {
	Files             map[string]string         `json:"files"`
	Functions         map[string]string         `json:"functions,omitempty"`
	FunctionSchedules []FunctionSchedule        `json:"function_schedules,omitempty"`
	FunctionsConfig   map[string]FunctionConfig `json:"functions_config,omitempty"`
	Async             bool                      `json:"async"`
	Branch            string                    `json:"branch,omitempty"`
	Draft             bool                      `json:"draft"`
	Title             string                    `json:"title,omitempty"`
}

type Deploy struct {
	ID                string   `json:"id"`
	SiteID            string   `json:"site_id"`
	State             string   `json:"state"`
	Required          []string `json:"required"`
	RequiredFunctions []string `json:"required_functions"`
	ErrorMessage      string   `json:"error_message,omitempty"`
	Branch            string   `json:"branch,omitempty"`
	Draft             bool     `json:"draft"`
	Title             string   `json:"title,omitempty"`
	URL               string   `json:"url,omitempty"`
	SSLURL            string   `json:"ssl_url,omitempty"`
	DeployURL         string   `json:"deploy_url,omitempty"`
	DeploySSLURL      string   `json:"deploy_ssl_url,omitempty"`
	AdminURL          string   `json:"admin_url,omitempty"`
	CreatedAt         string   `json:"created_at,omitempty"`
}

type DeployFile struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size"`
}

type DeployFunction struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	SHA  string `json:"sha"`
}

// FileUpload is a single static file transfer. Body is consumed by the call.
type FileUpload struct {
	Path string
	Body io.Reader
	Size int64
}

// FunctionUpload is a single function artifact transfer. Body is consumed by the call.
// RetryCount is sent to the service when greater than zero.
type FunctionUpload struct {
	Name           string
	Body           io.Reader
	Size           int64
	Runtime        string
	InvocationMode string
	Timeout        int
	RetryCount     int
}
