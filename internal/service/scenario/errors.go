package scenario

import "errors"

// Sentinel errors for the scenario service layer.
var (
	ErrNotFound         = errors.New("scenario or task not found")
	ErrAlreadyCompleted = errors.New("task is already completed")
	ErrValidation       = errors.New("invalid scenario")
)
