package capture

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step a failure originated from.
type Stage string

// Pipeline stages that can fail a job.
const (
	StageRender  Stage = "render"
	StageEncode  Stage = "encode"
	StageExtract Stage = "extract"
	StageUpload  Stage = "upload"
	StagePersist Stage = "persist"
)

// Sentinel errors for the capture failure taxonomy.
var (
	ErrRenderTimeout      = errors.New("render timed out")
	ErrRenderFailure      = errors.New("render failed")
	ErrEncodingFailure    = errors.New("encoding failed")
	ErrUploadFailure      = errors.New("upload failed")
	ErrPersistenceFailure = errors.New("persistence failed")
)

// StageError carries enough job context for logging and alerting when a
// pipeline stage fails.
type StageError struct {
	JobID string
	URL   string
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("capture job %s (%s) failed at %s: %v", e.JobID, e.URL, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(job CaptureJob, stage Stage, err error) *StageError {
	return &StageError{JobID: job.ID, URL: job.URL, Stage: stage, Err: err}
}
