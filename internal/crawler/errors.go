package crawler

import "errors"

var (
	// ErrFetchFailure marks transport-level failures after retries and fallback.
	ErrFetchFailure = errors.New("fetch failure")
	// ErrCorruptState marks a checkpoint that exists but cannot be decoded.
	ErrCorruptState = errors.New("corrupt crawl state")
	// ErrAnalysis marks an unexpected failure while analyzing fetched markup.
	ErrAnalysis = errors.New("analysis error")
)
