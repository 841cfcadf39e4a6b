package scheduling

import "errors"

var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrNotConfigured    = errors.New("availability not configured")
	ErrSlotNotFound     = errors.New("slot not found")
)

// ValidationError rejects a request whose shape or values are unacceptable.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalid(reason string) error {
	return &ValidationError{Reason: reason}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err means there is nothing to return for the provider.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProviderNotFound) || errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrSlotNotFound)
}
