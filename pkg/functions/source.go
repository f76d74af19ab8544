// Package functions finds packaged serverless functions and stages them for upload.
package functions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nais/sitedeploy/pkg/deploysite"
	"github.com/nais/sitedeploy/pkg/manifest"
)

var ErrDuplicateFunction = errors.New("duplicate function name")

// Source yields one function asset per entry in its directories.
//
// A .zip file is deployed as is. Any other file or directory is zipped into the scratch
// directory first. Entries starting with a dot are ignored.
type Source struct {
	Directories []string
	Config      map[string]Config

	// ManifestPath points to a manifest written by the function build. While it is fresh
	// its artifacts are deployed instead of packaging the directories again.
	ManifestPath string
	SkipCache    bool

	Observer deploysite.Observer

	// now is replaced in tests.
	now func() time.Time
}

func (s *Source) Functions(ctx context.Context, tmpDir string) ([]*manifest.Asset, error) {
	if len(s.Directories) == 0 && len(s.ManifestPath) == 0 {
		return nil, nil
	}

	if assets, ok := s.cached(); ok {
		return assets, nil
	}

	staging := filepath.Join(tmpDir, "functions")
	if err := os.MkdirAll(staging, 0o700); err != nil {
		return nil, err
	}

	var assets []*manifest.Asset
	seen := make(map[string]string)

	for _, dir := range s.Directories {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			log.Debugf("Functions directory %s does not exist", dir)
			continue
		} else if err != nil {
			return nil, err
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if strings.HasPrefix(entry.Name(), ".") {
				continue
			}

			src := filepath.Join(dir, entry.Name())
			name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
			if entry.IsDir() {
				name = entry.Name()
			}

			if previous, ok := seen[name]; ok {
				return nil, fmt.Errorf("%w %q: %s and %s", ErrDuplicateFunction, name, previous, src)
			}
			seen[name] = src

			artifact := src
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".zip" {
				artifact = filepath.Join(staging, name+".zip")
				if err := zipFunction(src, artifact); err != nil {
					return nil, fmt.Errorf("package function %s: %w", name, err)
				}
			}

			assets = append(assets, functionAsset(name, artifact, resolve(s.Config, name)))
		}
	}

	sort.Slice(assets, func(i, j int) bool {
		return assets[i].NormalizedPath < assets[j].NormalizedPath
	})

	return assets, nil
}

func (s *Source) cached() ([]*manifest.Asset, bool) {
	observer := s.Observer
	if observer == nil {
		observer = deploysite.Discard
	}

	observer.OnEvent(deploysite.Event{
		Type:    deploysite.EventFunctionsManifest,
		Message: "Looking for a functions cache...",
		Phase:   deploysite.PhaseStart,
	})

	stop := func(message string) {
		observer.OnEvent(deploysite.Event{
			Type:    deploysite.EventFunctionsManifest,
			Message: message,
			Phase:   deploysite.PhaseStop,
		})
	}

	switch {
	case s.SkipCache:
		stop("Ignoring functions cache (use without --skip-functions-cache to change)")
		return nil, false
	case len(s.ManifestPath) == 0:
		stop("No cached functions were found")
		return nil, false
	}

	now := time.Now
	if s.now != nil {
		now = s.now
	}

	m, err := ReadManifest(s.ManifestPath, now())
	if err != nil {
		log.Debugf("Functions cache %s: %s", s.ManifestPath, err)
		stop("Ignored invalid or expired functions cache")
		return nil, false
	}

	assets := make([]*manifest.Asset, 0, len(m.Functions))
	for _, entry := range m.Functions {
		config := entry.config().merge(resolve(s.Config, entry.Name))
		assets = append(assets, functionAsset(entry.Name, entry.Path, config))
	}

	stop("Deploying functions from cache (use --skip-functions-cache to override)")

	return assets, true
}

func functionAsset(name, artifact string, config Config) *manifest.Asset {
	return &manifest.Asset{
		AbsolutePath:   artifact,
		RootDirectory:  filepath.Dir(artifact),
		RelativePath:   filepath.Base(artifact),
		NormalizedPath: name,
		Type:           manifest.AssetTypeFunction,
		Function:       config.function(name),
	}
}
