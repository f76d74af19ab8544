package deploysite

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOptions  = errors.New("invalid deploy options")
	ErrNothingToDeploy = errors.New("no files or functions to deploy")
	ErrDeployTimeout   = errors.New("timed out waiting for deploy")
	ErrDeployFailed    = errors.New("deploy failed")
)

type Stage string

const (
	StagePrepare   Stage = "prepare"
	StageHash      Stage = "hash"
	StageManifest  Stage = "manifest"
	StageNegotiate Stage = "negotiate"
	StageUpload    Stage = "upload"
	StageFinalize  Stage = "finalize"
)

// StageError identifies the pipeline stage, and the asset if any, that failed.
type StageError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("%s %s: %s", e.Stage, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}
