package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the orchestration core. Handlers map these to HTTP
// statuses at the boundary; internal callers test them with errors.Is.
var (
	// ErrUnknownPipeline means the requested pipeline name is not registered.
	ErrUnknownPipeline = errors.New("unknown pipeline")

	// ErrPromptTooLarge means the prompt exceeds the configured character cap.
	ErrPromptTooLarge = errors.New("prompt too large")

	// ErrEmptyPrompt means the request carried no prompt text.
	ErrEmptyPrompt = errors.New("empty prompt")

	// ErrInvalidMode means the requested execution mode is not sync or queue.
	ErrInvalidMode = errors.New("invalid execution mode")

	// ErrModelNotAllowed means a model override is not on the allow-list.
	ErrModelNotAllowed = errors.New("model not allowed")

	// ErrJobNotFound means no job exists for the given ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotCompleted means a result was requested before the job
	// reached the completed state.
	ErrJobNotCompleted = errors.New("job not completed")

	// ErrStageConflict means a concurrent delivery already advanced the
	// stage cursor; the loser reloads and observes the advanced state.
	ErrStageConflict = errors.New("stage already advanced")

	// ErrAttemptsExhausted means the retry budget for the current stage
	// ran out and the job has been marked failed.
	ErrAttemptsExhausted = errors.New("attempts exhausted")

	// ErrInvalidSignature means webhook signature verification failed.
	// Always fatal to the request; never partially processed.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrQueueUnavailable means the configured queue backend rejected or
	// could not accept an enqueue.
	ErrQueueUnavailable = errors.New("queue unavailable")
)

// RetryableError wraps a provider failure that has not yet exhausted the
// job's attempt budget. The caller decides whether to re-invoke execution.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err so IsRetryable reports true for it.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err represents a failed attempt that may be
// re-driven by the caller (sync loop or queue redelivery).
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// IsVerdict reports whether err is a final execution outcome: the job
// record already holds it (exhausted attempts, unresolvable pipeline) or
// the job is gone entirely. Anything else — a store hiccup, a network
// failure — means the delivery may never have touched the job and must
// not be acknowledged as done.
func IsVerdict(err error) bool {
	return errors.Is(err, ErrAttemptsExhausted) ||
		errors.Is(err, ErrUnknownPipeline) ||
		errors.Is(err, ErrJobNotFound)
}
