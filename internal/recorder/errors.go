package recorder

import "errors"

var (
	// ErrContainerNotFound means no caption region could be located: captions
	// are off, the meeting UI is still rendering, or no tab is connected.
	ErrContainerNotFound = errors.New("captions container not found")

	// ErrStorageUnavailable means the session store could not be opened.
	ErrStorageUnavailable = errors.New("session storage unavailable")

	// ErrSaveFailed wraps a snapshot write that did not land.
	ErrSaveFailed = errors.New("session snapshot failed")
)
