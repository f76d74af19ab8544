package manifest

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrDuplicatePath = errors.New("duplicate normalized path")
	ErrInvalidPath   = errors.New("invalid path")
	ErrMissingDigest = errors.New("asset has no digest")
	ErrUnknownDigest = errors.New("required digest not found in manifest")
)

// Manifest maps a normalized path to the digest of its content.
type Manifest map[string]string

// DedupIndex maps a digest to every asset with that content, in insertion order.
type DedupIndex map[string][]*Asset

// Paths returns the manifest keys in sorted order.
func (m Manifest) Paths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Rewriter may move an asset to a different normalized path, e.g. under a public URL prefix.
// It receives the asset with NormalizedPath already set and returns the final path.
type Rewriter func(asset *Asset) string

// Builder accumulates hashed assets into a Manifest and a DedupIndex.
//
// A Builder is not safe for concurrent use; all hashed assets must be funneled
// through a single goroutine calling Add.
type Builder struct {
	manifest Manifest
	index    DedupIndex
	rewrite  Rewriter

	// Progress, when set, is called after each asset has been added.
	Progress func(asset *Asset)
}

func NewBuilder(rewrite Rewriter) *Builder {
	return &Builder{
		manifest: make(Manifest),
		index:    make(DedupIndex),
		rewrite:  rewrite,
	}
}

// Add normalizes the asset path and records it in both the manifest and the dedup index.
// Assets arriving with a NormalizedPath already set keep that path untouched.
func (b *Builder) Add(asset *Asset) error {
	if len(asset.Digest) == 0 {
		return fmt.Errorf("%w: %s", ErrMissingDigest, asset.AbsolutePath)
	}

	if len(asset.NormalizedPath) == 0 {
		normalized, err := NormalizePath(asset.RelativePath)
		if err != nil {
			return err
		}
		asset.NormalizedPath = normalized
		if b.rewrite != nil {
			asset.NormalizedPath = b.rewrite(asset)
		}
	}

	if _, exists := b.manifest[asset.NormalizedPath]; exists {
		return fmt.Errorf("%w: %q (from %s)", ErrDuplicatePath, asset.NormalizedPath, asset.AbsolutePath)
	}

	b.manifest[asset.NormalizedPath] = asset.Digest
	b.index[asset.Digest] = append(b.index[asset.Digest], asset)

	if b.Progress != nil {
		b.Progress(asset)
	}

	return nil
}

func (b *Builder) Manifest() Manifest {
	return b.manifest
}

func (b *Builder) Index() DedupIndex {
	return b.index
}

func (b *Builder) Len() int {
	return len(b.manifest)
}

// UploadList resolves required digests to every asset sharing them.
// Assets sharing a digest are all returned, since each normalized path must be materialized.
func UploadList(required []string, index DedupIndex) ([]*Asset, error) {
	uploads := make([]*Asset, 0, len(required))
	for _, digest := range required {
		assets, ok := index[digest]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDigest, digest)
		}
		uploads = append(uploads, assets...)
	}
	return uploads, nil
}
