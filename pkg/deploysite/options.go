package deploysite

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/nais/sitedeploy/pkg/hashing"
	"github.com/nais/sitedeploy/pkg/manifest"
)

const (
	DefaultConcurrentHash   = 100
	DefaultConcurrentUpload = 5
	DefaultSyncFileLimit    = 100
	DefaultMaxRetry         = 5
	DefaultDeployTimeout    = 20 * time.Minute
	DefaultPollInterval     = time.Second

	// ConfigAssetPath is where the serialized deploy configuration lives in deploy space.
	ConfigAssetPath = ".deploy/config.json"
)

// FileSource enumerates static files to deploy. Only regular files may be yielded.
type FileSource interface {
	Files(ctx context.Context) iter.Seq2[*manifest.Asset, error]
}

// FunctionSource produces packaged function artifacts, staging them in tmpDir if needed.
// Returned assets must have Type set to manifest.AssetTypeFunction and a NormalizedPath
// equal to the function name.
type FunctionSource interface {
	Functions(ctx context.Context, tmpDir string) ([]*manifest.Asset, error)
}

type Options struct {
	// DeployID updates an existing deploy instead of creating a new one.
	DeployID string
	Branch   string
	Draft    bool
	Title    string

	Files     FileSource
	Functions FunctionSource

	// DeployConfig is serialized and deployed as ConfigAssetPath.
	DeployConfig map[string]any

	HashAlgorithm    string
	ConcurrentHash   int
	ConcurrentUpload int
	// SyncFileLimit is the number of assets above which the deploy service computes the diff asynchronously.
	SyncFileLimit int
	MaxRetry      int
	Retry         RetryPolicy
	DeployTimeout time.Duration
	PollInterval  time.Duration

	// Rewrite optionally relocates files in deploy space.
	Rewrite manifest.Rewriter

	// Observer receives progress events. It may be called from several goroutines at once.
	Observer Observer

	// TempDir is the parent of the scratch directory. Defaults to the system temp dir.
	TempDir string
}

// DefaultOptions returns options with every tunable set to its default value.
func DefaultOptions() Options {
	return Options{
		HashAlgorithm:    hashing.DefaultAlgorithm,
		ConcurrentHash:   DefaultConcurrentHash,
		ConcurrentUpload: DefaultConcurrentUpload,
		SyncFileLimit:    DefaultSyncFileLimit,
		MaxRetry:         DefaultMaxRetry,
		Retry:            DefaultRetryPolicy(),
		DeployTimeout:    DefaultDeployTimeout,
		PollInterval:     DefaultPollInterval,
	}
}

// Validate checks options before any I/O takes place.
func (o *Options) Validate() error {
	if o.ConcurrentHash <= 0 {
		return fmt.Errorf("%w: hash concurrency must be positive, got %d", ErrInvalidOptions, o.ConcurrentHash)
	}

	if o.ConcurrentUpload <= 0 {
		return fmt.Errorf("%w: upload concurrency must be positive, got %d", ErrInvalidOptions, o.ConcurrentUpload)
	}

	if _, err := hashing.NewAlgorithm(o.HashAlgorithm); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	if o.SyncFileLimit < 0 {
		return fmt.Errorf("%w: sync file limit must not be negative", ErrInvalidOptions)
	}

	if o.MaxRetry < 0 {
		return fmt.Errorf("%w: max retry must not be negative", ErrInvalidOptions)
	}

	if o.DeployTimeout <= 0 {
		return fmt.Errorf("%w: deploy timeout must be positive", ErrInvalidOptions)
	}

	if o.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidOptions)
	}

	if err := o.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	return nil
}

func (o *Options) observer() Observer {
	if o.Observer == nil {
		return Discard
	}
	return o.Observer
}
