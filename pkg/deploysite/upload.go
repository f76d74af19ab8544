package deploysite

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/nais/sitedeploy/pkg/api"
	"github.com/nais/sitedeploy/pkg/manifest"
	"github.com/nais/sitedeploy/pkg/metrics"
)

type UploadOptions struct {
	Concurrency int
	MaxRetry    int
	Retry       RetryPolicy
	Observer    Observer
}

// UploadResult describes a completed transfer. Exactly one of File and Function is set.
type UploadResult struct {
	Asset    *manifest.Asset
	Attempts int
	File     *api.DeployFile
	Function *api.DeployFunction
}

// UploadFiles transfers every asset in uploads to the deploy, with at most opts.Concurrency
// transfers in flight. Results are returned in the same order as uploads.
//
// The first asset that fails permanently cancels the remaining transfers.
func UploadFiles(ctx context.Context, client api.Client, deployID string, uploads []*manifest.Asset, opts UploadOptions) ([]UploadResult, error) {
	if opts.Concurrency <= 0 {
		return nil, fmt.Errorf("%w: upload concurrency must be positive, got %d", ErrInvalidOptions, opts.Concurrency)
	}

	observer := opts.Observer
	if observer == nil {
		observer = Discard
	}

	total := len(uploads)
	results := make([]UploadResult, total)

	observer.OnEvent(Event{
		Type:    EventUpload,
		Message: fmt.Sprintf("Uploading %d files", total),
		Phase:   PhaseStart,
	})

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(opts.Concurrency)

	var started atomic.Int64
	for i, asset := range uploads {
		group.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			n := started.Add(1)
			result, attempts, err := retry(ctx, opts.Retry, opts.MaxRetry, func(retryCount int) (UploadResult, error) {
				observer.OnEvent(Event{
					Type:    EventUpload,
					Message: fmt.Sprintf("(%d/%d) Uploading %s...", n, total, asset.NormalizedPath),
					Phase:   PhaseProgress,
				})
				return uploadAsset(ctx, client, deployID, asset, retryCount)
			})

			metrics.AssetUploaded(string(asset.Type), attempts, err)

			if err != nil {
				return &StageError{Stage: StageUpload, Path: asset.NormalizedPath, Err: err}
			}

			result.Attempts = attempts
			results[i] = result
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		observer.OnEvent(Event{Type: EventUpload, Message: err.Error(), Phase: PhaseError})
		return nil, err
	}

	observer.OnEvent(Event{
		Type:    EventUpload,
		Message: fmt.Sprintf("Finished uploading %d assets", total),
		Phase:   PhaseStop,
	})

	return results, nil
}

// uploadAsset opens the asset for a single attempt so that every retry reads the content from the start.
func uploadAsset(ctx context.Context, client api.Client, deployID string, asset *manifest.Asset, retryCount int) (UploadResult, error) {
	file, err := os.Open(asset.AbsolutePath)
	if err != nil {
		return UploadResult{}, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return UploadResult{}, err
	}

	result := UploadResult{Asset: asset}

	switch asset.Type {
	case manifest.AssetTypeFile:
		result.File, err = client.UploadDeployFile(ctx, deployID, api.FileUpload{
			Path: asset.NormalizedPath,
			Body: file,
			Size: info.Size(),
		})

	case manifest.AssetTypeFunction:
		upload := api.FunctionUpload{
			Name:       asset.NormalizedPath,
			Body:       file,
			Size:       info.Size(),
			RetryCount: retryCount,
		}
		if fn := asset.Function; fn != nil {
			upload.Runtime = fn.Runtime
			upload.InvocationMode = fn.InvocationMode
			upload.Timeout = fn.Timeout
		}
		result.Function, err = client.UploadDeployFunction(ctx, deployID, upload)

	default:
		return UploadResult{}, fmt.Errorf("unsupported asset type %q", asset.Type)
	}

	return result, err
}
