package core

import (
	"fmt"
	"strings"
)

// UnsupportedTriggerError is returned for an event type no pipeline reacts to.
// A run is never started for it.
type UnsupportedTriggerError struct {
	Type string
}

func (e *UnsupportedTriggerError) Error() string {
	return fmt.Sprintf("unsupported trigger %q", e.Type)
}

// GraphErrorKind classifies why a plan could not be built.
type GraphErrorKind string

const (
	GraphCycle     GraphErrorKind = "cycle"
	GraphDangling  GraphErrorKind = "dangling dependency"
	GraphDuplicate GraphErrorKind = "duplicate job"
)

// GraphError aborts a run before any job executes.
type GraphError struct {
	Kind GraphErrorKind
	Jobs []string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("pipeline graph: %s: %s", e.Kind, strings.Join(e.Jobs, ", "))
}

// MissingArtifactError fails a job whose declared input is not in the store.
type MissingArtifactError struct {
	Job      string
	Artifact string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("job %s: required artifact %q not available", e.Job, e.Artifact)
}

// DuplicateArtifactError fails a job that writes an artifact slot twice.
type DuplicateArtifactError struct {
	Job      string
	Artifact string
}

func (e *DuplicateArtifactError) Error() string {
	return fmt.Sprintf("job %s: artifact %q already written in this run", e.Job, e.Artifact)
}

// ArtifactDigestError fails a job whose consumed artifact changed on disk
// after it was stored.
type ArtifactDigestError struct {
	Job      string
	Artifact string
	Want     string
	Got      string
}

func (e *ArtifactDigestError) Error() string {
	return fmt.Sprintf("job %s: artifact %q digest mismatch (stored %s, now %s)", e.Job, e.Artifact, short(e.Want), short(e.Got))
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

// StepFailure is a step that exited nonzero, timed out or could not start.
type StepFailure struct {
	Job      string
	Step     string
	ExitCode int
	Err      error
}

func (e *StepFailure) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("job %s: step %s exited with code %d", e.Job, e.Step, e.ExitCode)
	}
	return fmt.Sprintf("job %s: step %s failed: %v", e.Job, e.Step, e.Err)
}

func (e *StepFailure) Unwrap() error { return e.Err }
