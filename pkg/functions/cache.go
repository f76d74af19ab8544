package functions

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ManifestTTL is how long a functions manifest written by a build is trusted.
const ManifestTTL = 2 * time.Minute

var ErrManifestExpired = errors.New("functions manifest expired")

// Manifest is written by the function build step and lists already packaged artifacts.
type Manifest struct {
	Functions []ManifestEntry `json:"functions"`
	// Timestamp is the build time in milliseconds since the epoch.
	Timestamp int64 `json:"timestamp"`
}

type ManifestEntry struct {
	Name           string           `json:"name"`
	Path           string           `json:"path"`
	Runtime        string           `json:"runtime"`
	RuntimeVersion string           `json:"runtimeVersion,omitempty"`
	InvocationMode string           `json:"invocationMode,omitempty"`
	Timeout        int              `json:"timeout,omitempty"`
	Priority       int              `json:"priority,omitempty"`
	Schedule       string           `json:"schedule,omitempty"`
	DisplayName    string           `json:"displayName,omitempty"`
	Generator      string           `json:"generator,omitempty"`
	Routes         []map[string]any `json:"routes,omitempty"`
	BuildData      map[string]any   `json:"buildData,omitempty"`
}

func (e ManifestEntry) config() Config {
	runtime := e.Runtime
	if len(e.RuntimeVersion) > 0 {
		runtime = e.RuntimeVersion
	}
	return Config{
		Runtime:        runtime,
		InvocationMode: e.InvocationMode,
		Timeout:        e.Timeout,
		Priority:       e.Priority,
		Schedule:       e.Schedule,
		DisplayName:    e.DisplayName,
		Generator:      e.Generator,
		Routes:         e.Routes,
		BuildData:      e.BuildData,
	}
}

// ReadManifest loads a functions manifest and rejects it if it is older than ManifestTTL at now.
func ReadManifest(path string, now time.Time) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode functions manifest: %w", err)
	}

	age := now.Sub(time.UnixMilli(m.Timestamp))
	if age > ManifestTTL {
		return nil, fmt.Errorf("%w: built %s ago", ErrManifestExpired, age.Round(time.Second))
	}

	for _, entry := range m.Functions {
		if len(entry.Name) == 0 || len(entry.Path) == 0 {
			return nil, fmt.Errorf("decode functions manifest: entry without name or path")
		}
	}

	return m, nil
}
