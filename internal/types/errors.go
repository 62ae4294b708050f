package types

import (
	"errors"
	"fmt"
)

var (
	ErrAcquisition       = errors.New("acquisition failed")
	ErrTranscription     = errors.New("transcription failed")
	ErrContentExtraction = errors.New("content extraction failed")
	ErrSummarization     = errors.New("summarization failed")
	ErrClassification    = errors.New("classification failed")
	ErrPersistence       = errors.New("persistence failed")
	ErrConfig            = errors.New("invalid configuration")
)

// StageError ties a failure to one of the sentinel kinds above while keeping
// the underlying cause reachable through errors.Is / errors.As.
type StageError struct {
	Kind error
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error { return []error{e.Kind, e.Err} }

// Wrap returns nil for a nil err and leaves errors already of the given kind alone.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &StageError{Kind: kind, Err: err}
}

// Stage names the pipeline stage of an error for logging.
func Stage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAcquisition):
		return "acquire"
	case errors.Is(err, ErrTranscription):
		return "transcribe"
	case errors.Is(err, ErrClassification):
		return "classify"
	case errors.Is(err, ErrPersistence):
		return "persist"
	case errors.Is(err, ErrContentExtraction), errors.Is(err, ErrSummarization):
		return "rules"
	case errors.Is(err, ErrConfig):
		return "config"
	}
	return "unknown"
}
