package attendance

import "errors"

// Sentinel errors for the attendance service layer.
var (
	ErrNotFound        = errors.New("attendance record not found")
	ErrContactNotFound = errors.New("contact not found")
	ErrDuplicate       = errors.New("attendance already recorded for this contact, service and date")
	ErrValidation      = errors.New("invalid attendance")
)
