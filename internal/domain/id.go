package domain

import (
	"fmt"

	"github.com/google/uuid"
)

func NewJobID() string {
	return uuid.NewString()
}

// ValidateJobID accepts only canonical 36-character version 4 UUIDs.
func ValidateJobID(id string) error {
	if len(id) != 36 {
		return fmt.Errorf("%w: %q", ErrInvalidJobID, id)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJobID, err)
	}
	if parsed.Version() != 4 || parsed.Variant() != uuid.RFC4122 {
		return fmt.Errorf("%w: not a version 4 uuid", ErrInvalidJobID)
	}
	return nil
}
