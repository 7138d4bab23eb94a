package schema

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator checks incoming security events against the contract the
// detection engine expects. A malformed event (above all a missing or invalid
// IP address) is a programming error on the caller's side and is rejected
// before any detector runs.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate validates a security event.
// Returns an error if validation fails.
func (v *Validator) Validate(event *SecurityEvent) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}

	if err := v.validate.Struct(event); err != nil {
		return fmt.Errorf("event validation failed: %w", err)
	}

	return nil
}
