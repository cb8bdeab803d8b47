package contact

import "errors"

// Sentinel errors for the contact service layer.
var (
	ErrNotFound        = errors.New("contact not found")
	ErrDuplicatePhone  = errors.New("contact with this phone number already exists")
	ErrValidation      = errors.New("invalid contact")
	ErrArchiveDisabled = errors.New("export archive is not configured")
)
