package functions

import (
	"github.com/nais/sitedeploy/pkg/manifest"
)

// DefaultConfigKey holds settings applied to every function without its own value.
const DefaultConfigKey = "*"

// Config is the per-function section of the deploy configuration file.
type Config struct {
	Runtime        string           `json:"runtime,omitempty"`
	InvocationMode string           `json:"invocation_mode,omitempty"`
	Timeout        int              `json:"timeout,omitempty"`
	Priority       int              `json:"priority,omitempty"`
	Schedule       string           `json:"schedule,omitempty"`
	DisplayName    string           `json:"display_name,omitempty"`
	Generator      string           `json:"generator,omitempty"`
	Routes         []map[string]any `json:"routes,omitempty"`
	BuildData      map[string]any   `json:"build_data,omitempty"`
}

// merge returns c with every unset field taken from defaults.
func (c Config) merge(defaults Config) Config {
	if len(c.Runtime) == 0 {
		c.Runtime = defaults.Runtime
	}
	if len(c.InvocationMode) == 0 {
		c.InvocationMode = defaults.InvocationMode
	}
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
	if c.Priority == 0 {
		c.Priority = defaults.Priority
	}
	if len(c.Generator) == 0 {
		c.Generator = defaults.Generator
	}
	return c
}

// resolve looks up the configuration for a single function.
// Schedules, display names, routes and build data never fall back to the defaults.
func resolve(configs map[string]Config, name string) Config {
	return configs[name].merge(configs[DefaultConfigKey])
}

func (c Config) function(name string) *manifest.Function {
	return &manifest.Function{
		Name:           name,
		Runtime:        c.Runtime,
		InvocationMode: c.InvocationMode,
		Timeout:        c.Timeout,
		Priority:       c.Priority,
		Schedule:       c.Schedule,
		DisplayName:    c.DisplayName,
		Generator:      c.Generator,
		Routes:         c.Routes,
		BuildData:      c.BuildData,
	}
}
