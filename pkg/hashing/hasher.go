package hashing

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/nais/sitedeploy/pkg/manifest"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidConcurrency = errors.New("hash concurrency must be a positive number")

// Error is returned when the content of a single asset could not be hashed.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("hash %s: %s", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Hasher computes asset digests with a fixed number of workers.
type Hasher struct {
	algorithm   Algorithm
	concurrency int
}

func New(algorithm string, concurrency int) (*Hasher, error) {
	if concurrency <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, concurrency)
	}

	alg, err := NewAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}

	return &Hasher{
		algorithm:   alg,
		concurrency: concurrency,
	}, nil
}

func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

// Hash reads every asset from the sequence, assigns its digest and hands it to sink.
//
// Assets are hashed concurrently and reach sink in completion order, but sink itself
// is only ever called from the goroutine that called Hash. The first error from the
// sequence, from hashing or from sink cancels the remaining work and is returned.
func (h *Hasher) Hash(ctx context.Context, assets iter.Seq2[*manifest.Asset, error], sink func(*manifest.Asset) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	queue := make(chan *manifest.Asset)
	hashed := make(chan *manifest.Asset)

	group.Go(func() error {
		defer close(queue)
		for asset, err := range assets {
			if err != nil {
				return err
			}
			select {
			case queue <- asset:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	workers := &sync.WaitGroup{}
	for range h.concurrency {
		workers.Add(1)
		group.Go(func() error {
			defer workers.Done()
			for asset := range queue {
				digest, err := h.algorithm.File(asset.AbsolutePath)
				if err != nil {
					return &Error{Path: asset.AbsolutePath, Err: err}
				}
				asset.Digest = digest
				select {
				case hashed <- asset:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	go func() {
		workers.Wait()
		close(hashed)
	}()

	var sinkErr error
	for asset := range hashed {
		if sinkErr != nil {
			continue
		}
		if err := sink(asset); err != nil {
			sinkErr = err
			cancel()
		}
	}

	err := group.Wait()
	if sinkErr != nil {
		return sinkErr
	}
	return err
}
