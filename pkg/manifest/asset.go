package manifest

import (
	"strings"
)

// AssetType decides which upload endpoint an asset is transferred through.
type AssetType string

const (
	AssetTypeFile     AssetType = "file"
	AssetTypeFunction AssetType = "function"
)

// EdgeFunctionsPrefix is the deploy-space directory built edge functions are published under.
const EdgeFunctionsPrefix = ".deploy/edge-functions/"

// Asset is one unit of deployable content.
//
// Digest is assigned once by the content hasher and must not be changed afterwards.
type Asset struct {
	AbsolutePath   string
	RootDirectory  string
	RelativePath   string
	NormalizedPath string
	Type           AssetType
	Digest         string

	// Function is only set for assets of type AssetTypeFunction.
	Function *Function
}

// Function carries metadata for packaged serverless functions.
// The pipeline does not interpret it, only forwards it to the deploy service.
type Function struct {
	Name           string
	Runtime        string
	InvocationMode string
	Timeout        int
	Priority       int
	Schedule       string
	DisplayName    string
	Generator      string
	Routes         []map[string]any
	BuildData      map[string]any
}

func (a *Asset) IsFunction() bool {
	return a.Type == AssetTypeFunction
}

func (a *Asset) IsEdgeFunction() bool {
	return strings.HasPrefix(a.NormalizedPath, EdgeFunctionsPrefix)
}
