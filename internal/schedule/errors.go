package schedule

import "errors"

var (
	ErrInvalidPlanConfig    = errors.New("invalid plan configuration")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrNotDue               = errors.New("occurrence is not past its scheduled date")
	ErrChainConflict        = errors.New("plan already has a pending occurrence")
	ErrChainExhausted       = errors.New("plan recurrence is exhausted")
	ErrNotFound             = errors.New("not found")
	ErrSequenceCodeAssigned = errors.New("sequence code already assigned")
	ErrPersistenceFailure   = errors.New("persistence failure")
	ErrValidation           = errors.New("validation error")
)

// IsDomainError reports whether err carries one of the engine's sentinels, as
// opposed to a raw storage error.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrInvalidPlanConfig, ErrInvalidTransition, ErrChainConflict, ErrChainExhausted,
		ErrNotFound, ErrSequenceCodeAssigned, ErrPersistenceFailure, ErrValidation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
