package domain

import "errors"

var (
	ErrBusy                = errors.New("a generation is already running")
	ErrEmptyHistory        = errors.New("history has no exchange to undo")
	ErrNoClient            = errors.New("model client is not configured")
	ErrNoDocument          = errors.New("no active document")
	ErrNothingStaged       = errors.New("no staged preview")
	ErrNothingToRetry      = errors.New("nothing to retry")
	ErrUnknownSeed         = errors.New("no produced image with that seed")
	ErrInvalidSettingKey   = errors.New("invalid setting key")
	ErrInvalidSettingValue = errors.New("invalid setting value")
)
