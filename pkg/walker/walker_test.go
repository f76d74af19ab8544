package walker_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nais/sitedeploy/pkg/manifest"
	"github.com/nais/sitedeploy/pkg/walker"
)

func makeTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
	}
	return root
}

func collect(t *testing.T, w *walker.Walker) []*manifest.Asset {
	t.Helper()
	var assets []*manifest.Asset
	for asset, err := range w.Files(context.Background()) {
		require.NoError(t, err)
		assets = append(assets, asset)
	}
	return assets
}

func relativePaths(assets []*manifest.Asset) []string {
	paths := make([]string, 0, len(assets))
	for _, asset := range assets {
		paths = append(paths, asset.RelativePath)
	}
	sort.Strings(paths)
	return paths
}

func TestDefaultSkip(t *testing.T) {
	root := makeTree(t,
		"index.html",
		"css/site.css",
		".well-known/security.txt",
		".git/HEAD",
		".env",
		"__MACOSX/index.html",
		"_redirects",
		"_headers",
		"node_modules/lib/index.js",
	)

	t.Run("publish directory below project root", func(t *testing.T) {
		assets := collect(t, walker.New(walker.DefaultSkip(false), root))
		assert.Equal(t, []string{
			".well-known/security.txt",
			"css/site.css",
			"index.html",
			"node_modules/lib/index.js",
		}, relativePaths(assets))
	})

	t.Run("publish directory is project root", func(t *testing.T) {
		assets := collect(t, walker.New(walker.DefaultSkip(true), root))
		assert.Equal(t, []string{
			".well-known/security.txt",
			"css/site.css",
			"index.html",
		}, relativePaths(assets))
	})
}

func TestFilesOrigin(t *testing.T) {
	root := makeTree(t, "sub/dir/file.txt")

	assets := collect(t, walker.New(nil, root))
	require.Len(t, assets, 1)

	asset := assets[0]
	assert.Equal(t, root, asset.RootDirectory)
	assert.Equal(t, filepath.Join(root, "sub", "dir", "file.txt"), asset.AbsolutePath)
	assert.Equal(t, "sub/dir/file.txt", asset.RelativePath)
	assert.Equal(t, manifest.AssetTypeFile, asset.Type)
	assert.Empty(t, asset.NormalizedPath)
	assert.Empty(t, asset.Digest)
}

func TestFilesMultipleRoots(t *testing.T) {
	site := makeTree(t, "index.html")
	edge := makeTree(t, "main.js")

	assets := collect(t, walker.New(nil, site, edge))
	require.Len(t, assets, 2)
	assert.Equal(t, site, assets[0].RootDirectory)
	assert.Equal(t, edge, assets[1].RootDirectory)
}

func TestFilesSkipsNonRegularFiles(t *testing.T) {
	root := makeTree(t, "index.html")
	if err := os.Symlink(filepath.Join(root, "index.html"), filepath.Join(root, "link.html")); err != nil {
		t.Skipf("symlinks not supported: %s", err)
	}

	assets := collect(t, walker.New(nil, root))
	assert.Equal(t, []string{"index.html"}, relativePaths(assets))
}

func TestFilesStopsEarly(t *testing.T) {
	root := makeTree(t, "a.txt", "b.txt", "c.txt")

	count := 0
	for _, err := range walker.New(nil, root).Files(context.Background()) {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestFilesMissingRoot(t *testing.T) {
	w := walker.New(nil, filepath.Join(t.TempDir(), "does-not-exist"))

	var errs []error
	for asset, err := range w.Files(context.Background()) {
		assert.Nil(t, asset)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], os.ErrNotExist)
}

func TestFilesRootIsAFile(t *testing.T) {
	root := makeTree(t, "index.html")

	for _, err := range walker.New(nil, filepath.Join(root, "index.html")).Files(context.Background()) {
		assert.ErrorContains(t, err, "is not a directory")
	}
}

func TestFilesCancelled(t *testing.T) {
	root := makeTree(t, "a.txt")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, err := range walker.New(nil, root).Files(ctx) {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
