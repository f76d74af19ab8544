// Package walker enumerates the static files of a site as deployable assets.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/nais/sitedeploy/pkg/manifest"
)

// Skip decides whether an entry below a root is left out of the deploy.
// Skipping a directory skips everything inside it.
type Skip func(path string, entry fs.DirEntry) bool

// Walker yields every regular file below a set of root directories.
type Walker struct {
	roots []string
	skip  Skip
}

func New(skip Skip, roots ...string) *Walker {
	return &Walker{
		roots: roots,
		skip:  skip,
	}
}

// DefaultSkip leaves out hidden entries other than .well-known, macOS archive
// leftovers and the redirect and header files that are deployed as configuration.
// node_modules is left out only when skipNodeModules is set, which is the case
// when the publish directory is the project root.
func DefaultSkip(skipNodeModules bool) Skip {
	return func(_ string, entry fs.DirEntry) bool {
		name := entry.Name()
		switch {
		case skipNodeModules && name == "node_modules":
			return true
		case strings.HasPrefix(name, ".") && name != ".well-known":
			return true
		case strings.HasPrefix(name, "__MACOSX"):
			return true
		case name == "_redirects", name == "_headers":
			return true
		}
		return false
	}
}

// Files walks the roots in order. Iteration stops at the first error, which is yielded with a nil asset.
func (w *Walker) Files(ctx context.Context) iter.Seq2[*manifest.Asset, error] {
	return func(yield func(*manifest.Asset, error) bool) {
		for _, root := range w.roots {
			if !w.walk(ctx, root, yield) {
				return
			}
		}
	}
}

// errStop is returned from the walk function when the consumer stopped iterating.
var errStop = errors.New("stop")

func (w *Walker) walk(ctx context.Context, root string, yield func(*manifest.Asset, error) bool) bool {
	root, err := filepath.Abs(root)
	if err != nil {
		yield(nil, err)
		return false
	}

	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path == root {
			if !entry.IsDir() {
				return fmt.Errorf("%s is not a directory", root)
			}
			return nil
		}

		if w.skip != nil && w.skip(path, entry) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !entry.Type().IsRegular() {
			if !entry.IsDir() {
				log.Debugf("Skipping %s: not a regular file", path)
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		asset := &manifest.Asset{
			AbsolutePath:  path,
			RootDirectory: root,
			RelativePath:  filepath.ToSlash(rel),
			Type:          manifest.AssetTypeFile,
		}
		if !yield(asset, nil) {
			return errStop
		}
		return nil
	})

	switch {
	case err == nil:
		return true
	case errors.Is(err, errStop):
		return false
	}
	yield(nil, err)
	return false
}
