package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound       = errors.New("campaign not found")
	ErrAlreadyRunning = errors.New("campaign is already running")
	ErrNotRunning     = errors.New("campaign is not running")
	ErrNoRecipients   = errors.New("campaign has no recipients")
	ErrBadTemplate    = errors.New("campaign template does not parse")
)
