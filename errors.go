package scorehider

import "errors"

// Error definitions for the `cybergodev/scorehider` package.
var (
	// ErrInputTooLarge is returned when input exceeds MaxInputSize.
	ErrInputTooLarge = errors.New("scorehider: input size exceeds maximum")

	// ErrInvalidHTML is returned when HTML parsing fails.
	ErrInvalidHTML = errors.New("scorehider: invalid HTML")

	// ErrProcessorClosed is returned when operations are attempted on a closed processor.
	ErrProcessorClosed = errors.New("scorehider: processor closed")

	// ErrMaxDepthExceeded is returned when HTML nesting exceeds MaxDepth.
	ErrMaxDepthExceeded = errors.New("scorehider: max depth exceeded")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("scorehider: invalid config")

	// ErrProcessingTimeout is returned when processing exceeds ProcessingTimeout.
	ErrProcessingTimeout = errors.New("scorehider: processing timeout exceeded")

	// ErrUnknownAction is returned for a command whose action is not recognised.
	ErrUnknownAction = errors.New("scorehider: unknown action")

	// ErrScoreNotFound is returned when a reveal names no hidden score.
	ErrScoreNotFound = errors.New("scorehider: score not found")

	// ErrElementNotFound is returned when a mutation targets a missing element.
	ErrElementNotFound = errors.New("scorehider: element not found")

	// ErrSessionClosed is returned when events are posted to a stopped session loop.
	ErrSessionClosed = errors.New("scorehider: session closed")

	// ErrInvalidSettings is returned when a settings document cannot be decoded.
	ErrInvalidSettings = errors.New("scorehider: invalid settings")
)
