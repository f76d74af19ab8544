package deployclient

import (
	"fmt"
	"os"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/ghodss/yaml"

	"github.com/nais/sitedeploy/pkg/functions"
)

type TemplateVariables map[string]any

// DeployFile is the deploy configuration file.
//
//	title: "Release {{ version }}"
//	config:
//	  redirects:
//	    - from: /old
//	      to: /new
//	functions:
//	  "*":
//	    runtime: go
//	  report:
//	    schedule: "@daily"
type DeployFile struct {
	Title string `json:"title"`
	// Config is deployed as is to the site configuration asset.
	Config    map[string]any              `json:"config"`
	Functions map[string]functions.Config `json:"functions"`
}

// LoadDeployFile templates the file at path with vars and parses the result.
// The templated content is returned along with parse errors, so that the
// offending line can be shown.
func LoadDeployFile(path string, vars TemplateVariables) (*DeployFile, []byte, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: open file: %s", path, err)
	}

	templated, err := templatedFile(file, vars)
	if err != nil {
		errMsg := strings.ReplaceAll(err.Error(), "\n", ": ")
		return nil, nil, fmt.Errorf("%s: %s", path, errMsg)
	}

	deployFile := &DeployFile{}
	err = yaml.Unmarshal(templated, deployFile)
	if err != nil {
		errMsg := strings.ReplaceAll(err.Error(), "\n", ": ")
		return nil, templated, fmt.Errorf("%s: %s", path, errMsg)
	}

	return deployFile, templated, nil
}

func templatedFile(data []byte, ctx TemplateVariables) ([]byte, error) {
	if len(ctx) == 0 {
		return data, nil
	}
	template, err := raymond.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse template file: %s", err)
	}

	output, err := template.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("execute template: %s", err)
	}

	return []byte(output), nil
}

func templateVariablesFromFile(path string) (TemplateVariables, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: open file: %s", path, err)
	}

	vars := TemplateVariables{}
	err = yaml.Unmarshal(file, &vars)

	return vars, err
}

func templateVariablesFromSlice(vars []string) TemplateVariables {
	tv := TemplateVariables{}
	for _, keyval := range vars {
		tokens := strings.SplitN(keyval, "=", 2)
		switch len(tokens) {
		case 2: // KEY=VAL
			tv[tokens[0]] = tokens[1]
		case 1: // KEY
			tv[tokens[0]] = true
		default:
			continue
		}
	}

	return tv
}

// detectErrorLine extracts the line number from a YAML error message, e.g. "path: error converting YAML to JSON: yaml: line 3: ...".
func detectErrorLine(e string) (int, error) {
	idx := strings.Index(e, "yaml: line ")
	if idx < 0 {
		return 0, fmt.Errorf("no line number in %q", e)
	}
	var line int
	_, err := fmt.Sscanf(e[idx:], "yaml: line %d:", &line)
	return line, err
}

func errorContext(content string, line int) []string {
	ctx := make([]string, 0)
	lines := strings.Split(content, "\n")
	format := "%03d: %s"
	for l := range lines {
		ctx = append(ctx, fmt.Sprintf(format, l+1, lines[l]))
		if l+1 == line {
			helper := "     " + strings.Repeat("^", len(lines[l])) + " <--- error near this line"
			ctx = append(ctx, helper)
		}
	}
	return ctx
}
