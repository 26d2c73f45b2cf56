package engine

import "fmt"

// AnalysisError reports that the narration track carried no usable
// signal for beat detection. A silent track is recovered with the
// uniform fallback map, so callers only ever see this for tracks that
// are too short to analyze at all.
type AnalysisError struct {
	Reason string
}

func (e *AnalysisError) Error() string {
	return "audio analysis: " + e.Reason
}

// NotFoundError reports that no clips are registered for a keyword.
// Callers recover by falling back to the global pool.
type NotFoundError struct {
	Keyword string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no clips registered for keyword %q", e.Keyword)
}

// InvalidMediaError reports a clip file that failed validation on
// registration. The file is excluded from the pool and never retried.
type InvalidMediaError struct {
	Path   string
	Reason string
	Err    error
}

func (e *InvalidMediaError) Error() string {
	return fmt.Sprintf("invalid media %s: %s", e.Path, e.Reason)
}

func (e *InvalidMediaError) Unwrap() error { return e.Err }

// RenderError reports a compositing failure. It is fatal and surfaced
// to the caller.
type RenderError struct {
	Path string
	Err  error
}

func (e *RenderError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("render %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("render: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// AlignmentError reports a subtitle burn failure. The orchestrator
// degrades to caption-file-only output instead of discarding the video.
type AlignmentError struct {
	Err error
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("subtitle burn: %v", e.Err)
}

func (e *AlignmentError) Unwrap() error { return e.Err }

// PipelineError attaches the failing stage to the underlying cause so
// the caller can decide whether a fresh run is worth requesting.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
