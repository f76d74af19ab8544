package deploysite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	ocodes "go.opentelemetry.io/otel/codes"
	otrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nais/sitedeploy/pkg/api"
	"github.com/nais/sitedeploy/pkg/hashing"
	"github.com/nais/sitedeploy/pkg/manifest"
	"github.com/nais/sitedeploy/pkg/metrics"
	"github.com/nais/sitedeploy/pkg/telemetry"
)

// How long a best-effort cancel of a failed deploy may take.
const cancelTimeout = 10 * time.Second

// Manifests holds the desired state of a deploy, split by upload endpoint.
type Manifests struct {
	Files          manifest.Manifest
	FilesIndex     manifest.DedupIndex
	Functions      manifest.Manifest
	FunctionsIndex manifest.DedupIndex

	// Counts of discovered user content. The injected configuration asset is not included.
	FilesCount         int
	EdgeFunctionsCount int
	FunctionsCount     int
}

type Result struct {
	DeployID   string
	Deploy     *api.Deploy
	UploadList []*manifest.Asset
	Uploads    []UploadResult
}

// DeploySite hashes everything in opts, negotiates the difference against the deploy service,
// uploads what the service is missing and waits for the deploy to go live.
//
// Every stage shares the opts.DeployTimeout budget. Scratch files are staged in a fresh directory
// below opts.TempDir, which is removed before returning.
func DeploySite(ctx context.Context, client api.Client, siteID string, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	observer := opts.observer()

	ctx, cancel := context.WithTimeoutCause(ctx, opts.DeployTimeout, ErrDeployTimeout)
	defer cancel()

	ctx, span := telemetry.Tracer().Start(ctx, "Deploy site")
	defer span.End()

	tmpDir, err := os.MkdirTemp(opts.TempDir, "sitedeploy-")
	if err != nil {
		return nil, &StageError{Stage: StagePrepare, Err: err}
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			log.Warnf("Unable to clean up %s: %s", tmpDir, err)
		}
	}()

	var manifests *Manifests
	err = runStage(ctx, StageHash, func(ctx context.Context) error {
		var err error
		manifests, err = BuildManifests(ctx, opts, tmpDir)
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}

	var deploy *api.Deploy
	err = runStage(ctx, StageNegotiate, func(ctx context.Context) error {
		var err error
		deploy, err = Negotiate(ctx, client, siteID, manifests, opts)
		return err
	})
	if err != nil {
		if deploy != nil {
			cancelDeploy(ctx, client, deploy.ID, err)
		}
		return nil, fail(span, err)
	}

	deployID := deploy.ID
	telemetry.AddDeploySpanAttributes(span, siteID, deployID)

	result := &Result{
		DeployID: deployID,
		Deploy:   deploy,
	}

	err = runStage(ctx, StageUpload, func(ctx context.Context) error {
		var err error
		result.UploadList, err = requiredAssets(deploy, manifests)
		if err != nil {
			return err
		}
		result.Uploads, err = UploadFiles(ctx, client, deployID, result.UploadList, UploadOptions{
			Concurrency: opts.ConcurrentUpload,
			MaxRetry:    opts.MaxRetry,
			Retry:       opts.Retry,
			Observer:    observer,
		})
		return err
	})
	if err != nil {
		cancelDeploy(ctx, client, deployID, err)
		return result, fail(span, err)
	}

	err = runStage(ctx, StageFinalize, func(ctx context.Context) error {
		observer.OnEvent(Event{Type: EventWaitForDeploy, Message: "Waiting for deploy to go live...", Phase: PhaseStart})
		var err error
		deploy, err = WaitForDeploy(ctx, client, siteID, deployID, opts.DeployTimeout, opts.PollInterval)
		if err != nil {
			observer.OnEvent(Event{Type: EventWaitForDeploy, Message: err.Error(), Phase: PhaseError})
			return err
		}
		message := "Deploy is live!"
		if opts.Draft {
			message = "Draft deploy is live!"
		}
		observer.OnEvent(Event{Type: EventWaitForDeploy, Message: message, Phase: PhaseStop})
		return nil
	})
	if err != nil {
		cancelDeploy(ctx, client, deployID, err)
		return result, fail(span, err)
	}

	result.Deploy = deploy

	return result, nil
}

// BuildManifests writes the configuration asset to tmpDir, then hashes static files and functions
// concurrently into separate manifests.
func BuildManifests(ctx context.Context, opts Options, tmpDir string) (*Manifests, error) {
	observer := opts.observer()

	hasher, err := hashing.New(opts.HashAlgorithm, opts.ConcurrentHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	configAsset, err := writeConfigAsset(opts.DeployConfig, tmpDir)
	if err != nil {
		return nil, &StageError{Stage: StagePrepare, Path: ConfigAssetPath, Err: err}
	}

	observer.OnEvent(Event{Type: EventHashing, Message: "Hashing files...", Phase: PhaseStart})

	progress := func(asset *manifest.Asset) {
		metrics.AssetHashed(string(asset.Type))
		observer.OnEvent(Event{
			Type:    EventHashing,
			Message: fmt.Sprintf("Hashed %s", asset.NormalizedPath),
			Phase:   PhaseProgress,
		})
	}

	files := manifest.NewBuilder(opts.Rewrite)
	files.Progress = progress
	functions := manifest.NewBuilder(nil)
	functions.Progress = progress

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var source iter.Seq2[*manifest.Asset, error]
		if opts.Files != nil {
			source = opts.Files.Files(ctx)
		}
		return hashInto(ctx, hasher, prepend(configAsset, source), files)
	})

	group.Go(func() error {
		if opts.Functions == nil {
			return nil
		}
		assets, err := opts.Functions.Functions(ctx, tmpDir)
		if err != nil {
			return &StageError{Stage: StagePrepare, Err: err}
		}
		return hashInto(ctx, hasher, slice(assets), functions)
	})

	if err := group.Wait(); err != nil {
		observer.OnEvent(Event{Type: EventHashing, Message: err.Error(), Phase: PhaseError})
		return nil, err
	}

	manifests := &Manifests{
		Files:          files.Manifest(),
		FilesIndex:     files.Index(),
		Functions:      functions.Manifest(),
		FunctionsIndex: functions.Index(),
		FunctionsCount: functions.Len(),
	}
	for _, assets := range manifests.FilesIndex {
		for _, asset := range assets {
			switch {
			case asset == configAsset:
			case asset.IsEdgeFunction():
				manifests.EdgeFunctionsCount++
			default:
				manifests.FilesCount++
			}
		}
	}

	observer.OnEvent(Event{Type: EventHashing, Message: finishedHashingMessage(manifests), Phase: PhaseStop})

	return manifests, nil
}

func finishedHashingMessage(m *Manifests) string {
	message := fmt.Sprintf("Finished hashing %d files", m.FilesCount)
	var extra []string
	if m.EdgeFunctionsCount > 0 {
		extra = append(extra, fmt.Sprintf("%d edge functions", m.EdgeFunctionsCount))
	}
	if m.FunctionsCount > 0 {
		extra = append(extra, fmt.Sprintf("%d functions", m.FunctionsCount))
	}
	switch len(extra) {
	case 0:
		return message
	case 1:
		return message + " and " + extra[0]
	}
	return message + ", " + strings.Join(extra, " and ")
}

func hashInto(ctx context.Context, hasher *hashing.Hasher, assets iter.Seq2[*manifest.Asset, error], builder *manifest.Builder) error {
	err := hasher.Hash(ctx, assets, func(asset *manifest.Asset) error {
		if err := builder.Add(asset); err != nil {
			return &StageError{Stage: StageManifest, Path: asset.RelativePath, Err: err}
		}
		return nil
	})

	var hashErr *hashing.Error
	if errors.As(err, &hashErr) {
		return &StageError{Stage: StageHash, Path: hashErr.Path, Err: err}
	}
	return err
}

func writeConfigAsset(config map[string]any, tmpDir string) (*manifest.Asset, error) {
	if config == nil {
		config = map[string]any{}
	}

	data, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(tmpDir, "config.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, err
	}

	return &manifest.Asset{
		AbsolutePath:   path,
		RootDirectory:  tmpDir,
		RelativePath:   "config.json",
		NormalizedPath: ConfigAssetPath,
		Type:           manifest.AssetTypeFile,
	}, nil
}

// requiredAssets flattens the required digests of a deploy into a single upload list.
func requiredAssets(deploy *api.Deploy, manifests *Manifests) ([]*manifest.Asset, error) {
	files, err := manifest.UploadList(deploy.Required, manifests.FilesIndex)
	if err != nil {
		return nil, err
	}

	functions, err := manifest.UploadList(deploy.RequiredFunctions, manifests.FunctionsIndex)
	if err != nil {
		return nil, err
	}

	return append(files, functions...), nil
}

func runStage(ctx context.Context, stage Stage, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.Tracer().Start(ctx, string(stage))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.StageFinished(string(stage), start, err)

	if err != nil {
		if errors.Is(context.Cause(ctx), ErrDeployTimeout) && !errors.Is(err, ErrDeployTimeout) {
			err = fmt.Errorf("%w during %s: %w", ErrDeployTimeout, stage, err)
		}
		return fail(span, stageError(stage, err))
	}
	return nil
}

// cancelDeploy asks the deploy service to abandon a deploy that can no longer succeed.
// The caller's context may already be done, so the request runs on a detached context.
func cancelDeploy(ctx context.Context, client api.Client, deployID string, cause error) {
	if errors.Is(cause, ErrDeployFailed) {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()

	if _, err := client.CancelSiteDeploy(ctx, deployID); err != nil {
		log.Warnf("Unable to cancel deploy %s: %s", deployID, err)
		return
	}
	log.Debugf("Cancelled deploy %s", deployID)
}

func fail(span otrace.Span, err error) error {
	span.SetStatus(ocodes.Error, err.Error())
	span.RecordError(err)
	return err
}

func prepend(first *manifest.Asset, rest iter.Seq2[*manifest.Asset, error]) iter.Seq2[*manifest.Asset, error] {
	return func(yield func(*manifest.Asset, error) bool) {
		if !yield(first, nil) {
			return
		}
		if rest == nil {
			return
		}
		for asset, err := range rest {
			if !yield(asset, err) {
				return
			}
		}
	}
}

func slice(assets []*manifest.Asset) iter.Seq2[*manifest.Asset, error] {
	return func(yield func(*manifest.Asset, error) bool) {
		for _, asset := range assets {
			if !yield(asset, nil) {
				return
			}
		}
	}
}
