package hashing_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"testing"

	"github.com/nais/sitedeploy/pkg/hashing"
	"github.com/nais/sitedeploy/pkg/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func assetsOf(root string, names ...string) iter.Seq2[*manifest.Asset, error] {
	return func(yield func(*manifest.Asset, error) bool) {
		for _, name := range names {
			asset := &manifest.Asset{
				AbsolutePath:  filepath.Join(root, name),
				RootDirectory: root,
				RelativePath:  name,
				Type:          manifest.AssetTypeFile,
			}
			if !yield(asset, nil) {
				return
			}
		}
	}
}

func TestAlgorithms(t *testing.T) {
	for _, tc := range []struct {
		algorithm string
		expected  string
	}{
		{algorithm: hashing.SHA1, expected: "c22b5f9178342609428d6f51b2c5af4c0bde6a42"},
		{algorithm: hashing.SHA256, expected: "8f434346648f6b96df89dda901c5176b10a6d83961dd3c1ac88b59b2dc327aa4"},
	} {
		t.Run(tc.algorithm, func(t *testing.T) {
			alg, err := hashing.NewAlgorithm(tc.algorithm)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, alg.Bytes([]byte("hi")))
		})
	}

	t.Run(hashing.BLAKE3, func(t *testing.T) {
		alg, err := hashing.NewAlgorithm(hashing.BLAKE3)
		require.NoError(t, err)
		digest := alg.Bytes([]byte("hi"))
		assert.Len(t, digest, 64)
		assert.NotEqual(t, digest, alg.Bytes([]byte("bye")))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := hashing.NewAlgorithm("md4")
		assert.ErrorIs(t, err, hashing.ErrUnknownAlgorithm)
	})
}

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	_, err := hashing.New(hashing.SHA1, 0)
	assert.ErrorIs(t, err, hashing.ErrInvalidConcurrency)

	_, err = hashing.New(hashing.SHA1, -3)
	assert.ErrorIs(t, err, hashing.ErrInvalidConcurrency)

	_, err = hashing.New("", 10)
	assert.ErrorIs(t, err, hashing.ErrUnknownAlgorithm)
}

func TestHashIsDeterministicAcrossConcurrency(t *testing.T) {
	files := make(map[string]string)
	names := make([]string, 0)
	for i := range 50 {
		name := fmt.Sprintf("dir%d/file%d.txt", i%5, i)
		files[name] = fmt.Sprintf("content %d", i%7)
		names = append(names, name)
	}
	root := writeFiles(t, files)

	var reference manifest.Manifest
	for _, concurrency := range []int{1, 3, 16, 100} {
		h, err := hashing.New(hashing.SHA256, concurrency)
		require.NoError(t, err)

		builder := manifest.NewBuilder(nil)
		err = h.Hash(context.Background(), assetsOf(root, names...), builder.Add)
		require.NoError(t, err)
		assert.Equal(t, len(names), builder.Len())

		if reference == nil {
			reference = builder.Manifest()
			continue
		}
		assert.Equal(t, reference, builder.Manifest(), "concurrency %d", concurrency)
	}
}

func TestHashReportsOffendingPath(t *testing.T) {
	root := writeFiles(t, map[string]string{"a.txt": "hi"})
	h, err := hashing.New(hashing.SHA1, 4)
	require.NoError(t, err)

	err = h.Hash(context.Background(), assetsOf(root, "a.txt", "missing.txt"), func(*manifest.Asset) error { return nil })

	var hashErr *hashing.Error
	require.ErrorAs(t, err, &hashErr)
	assert.Equal(t, filepath.Join(root, "missing.txt"), hashErr.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHashStopsOnSinkError(t *testing.T) {
	root := writeFiles(t, map[string]string{"a.txt": "hi", "b.txt": "hi", "c.txt": "bye"})
	h, err := hashing.New(hashing.SHA1, 2)
	require.NoError(t, err)

	errSink := errors.New("sink is full")
	calls := 0
	err = h.Hash(context.Background(), assetsOf(root, "a.txt", "b.txt", "c.txt"), func(*manifest.Asset) error {
		calls++
		return errSink
	})
	assert.ErrorIs(t, err, errSink)
	assert.Equal(t, 1, calls)
}

func TestHashStopsOnSequenceError(t *testing.T) {
	errWalk := errors.New("walk failed")
	seq := func(yield func(*manifest.Asset, error) bool) {
		yield(nil, errWalk)
	}
	h, err := hashing.New(hashing.SHA1, 2)
	require.NoError(t, err)

	err = h.Hash(context.Background(), seq, func(*manifest.Asset) error { return nil })
	assert.ErrorIs(t, err, errWalk)
}
