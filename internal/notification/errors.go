package notification

import "errors"

// Validation errors returned by the value object constructors.
var (
	ErrSubjectRequired  = errors.New("subject must not be empty")
	ErrSubjectTooLong   = errors.New("subject exceeds 200 characters")
	ErrBodyRequired     = errors.New("body must not be empty")
	ErrBodyTooLong      = errors.New("body exceeds 2000 characters")
	ErrActionURLTooLong = errors.New("action url exceeds 2000 characters")
	ErrIconURLTooLong   = errors.New("icon url exceeds 1000 characters")

	ErrTooManyMetadataEntries = errors.New("metadata exceeds 50 entries")
	ErrMetadataKeyRequired    = errors.New("metadata key must not be empty")
	ErrMetadataKeyTooLong     = errors.New("metadata key exceeds 100 characters")
	ErrMetadataValueTooLong   = errors.New("metadata value exceeds 1000 characters")

	ErrRecipientRequired = errors.New("recipient id must not be empty")
	ErrInvalidChannel    = errors.New("invalid channel")
)

// State machine errors returned by the aggregate's transition methods.
var (
	ErrAlreadySent           = errors.New("notification already sent")
	ErrNotPending            = errors.New("notification is not pending")
	ErrAlreadyRead           = errors.New("notification already read")
	ErrCannotReadFailed      = errors.New("cannot mark a failed notification as read")
	ErrAlreadyDismissed      = errors.New("notification already dismissed")
	ErrCannotDismissFailed   = errors.New("cannot dismiss a failed notification")
	ErrNotFailed             = errors.New("notification is not failed")
	ErrTerminalStatus        = errors.New("notification is in a terminal status")
	ErrFailureReasonRequired = errors.New("failure reason must not be empty")
	ErrFailureReasonTooLong  = errors.New("failure reason exceeds 500 characters")
)
