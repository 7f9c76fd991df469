package domain

import "errors"

// Failure taxonomy for a single generation pipeline. Every internal error is
// wrapped into exactly one of these before it reaches the caller; nothing is
// retried and nothing is swallowed.
var (
	// ErrCredentialMissing means no API key is available. It is surfaced
	// before any network call is made.
	ErrCredentialMissing = errors.New("credential missing")

	// ErrUpstream covers failed or malformed text and image generation calls,
	// including both steps of the reference-image bootstrap.
	ErrUpstream = errors.New("upstream generation failure")

	// ErrPoll means a job status query itself failed mid-poll.
	ErrPoll = errors.New("job status query failed")

	// ErrJob means the remote job completed with an error payload.
	ErrJob = errors.New("remote job failed")

	// ErrMissingResult means the job completed without a usable video reference.
	ErrMissingResult = errors.New("job produced no result")

	// ErrDownload means the final binary fetch did not succeed.
	ErrDownload = errors.New("video download failed")

	ErrInvalidPrompt = errors.New("invalid prompt")
	ErrInvalidOption = errors.New("invalid option")
)
