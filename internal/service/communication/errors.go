package communication

import "errors"

// Sentinel errors for the communication service layer.
var (
	ErrNotFound              = errors.New("communication not found")
	ErrAlreadySent           = errors.New("communication has already been sent")
	ErrNoRecipients          = errors.New("no recipients found")
	ErrNoProviderAvailable   = errors.New("no sms provider available")
	ErrUnknownProvider       = errors.New("unknown sms provider")
	ErrInvalidRecipientGroup = errors.New("invalid recipient group")
	ErrChannelNotSupported   = errors.New("message type not supported for sending")
	ErrSendInProgress        = errors.New("communication send already in progress")
	ErrValidation            = errors.New("invalid communication")
)
