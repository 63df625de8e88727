package engine

import (
	"errors"
	"fmt"
)

// ErrorClass groups errors by the assembly stage that raised them.
type ErrorClass string

const (
	// ErrorClassValidation indicates malformed input detected while building
	// the entity graph. Raised before any variable exists.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassRegistry indicates an unregistered constraint kind or objective.
	// Raised during compilation; assembly is aborted.
	ErrorClassRegistry ErrorClass = "registry"

	// ErrorClassSolver indicates a terminal, non-optimal solver status.
	ErrorClassSolver ErrorClass = "solver"

	// ErrorClassInternal indicates a broken invariant inside the compiler.
	ErrorClassInternal ErrorClass = "internal"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Entity is the name of the crude, unit, pool or blend involved.
	Entity string `json:"entity,omitempty"`

	// Kind is the constraint or objective kind involved, if any.
	Kind string `json:"kind,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Entity != "" && e.Kind != "":
		msg += fmt.Sprintf(" (entity=%s, kind=%s)", e.Entity, e.Kind)
	case e.Entity != "":
		msg += fmt.Sprintf(" (entity=%s)", e.Entity)
	case e.Kind != "":
		msg += fmt.Sprintf(" (kind=%s)", e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassValidation,
		Code:    ErrCodeValidation,
		Message: message,
		Err:     err,
	}
}

// NewRegistryError creates a new registry error.
func NewRegistryError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassRegistry,
		Message: message,
		Err:     err,
	}
}

// NewSolverError creates a new solver error.
func NewSolverError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassSolver,
		Code:    ErrCodeSolverFailed,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassInternal,
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// WithEntity adds entity context to an error.
func (e *EngineError) WithEntity(name string) *EngineError {
	e.Entity = name
	return e
}

// WithKind adds constraint kind context to an error.
func (e *EngineError) WithKind(kind string) *EngineError {
	e.Kind = kind
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func classOf(err error) (ErrorClass, string, bool) {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class, e.Code, true
	}
	return "", "", false
}

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool {
	class, _, ok := classOf(err)
	return ok && class == ErrorClassValidation
}

// IsRegistry returns true if the error came from a registry lookup.
func IsRegistry(err error) bool {
	class, _, ok := classOf(err)
	return ok && class == ErrorClassRegistry
}

// IsSolver returns true if the error reports a non-optimal solve.
func IsSolver(err error) bool {
	class, _, ok := classOf(err)
	return ok && class == ErrorClassSolver
}

// IsInfeasible returns true if the solver proved the model infeasible.
func IsInfeasible(err error) bool {
	class, code, ok := classOf(err)
	return ok && class == ErrorClassSolver && code == ErrCodeInfeasible
}

// IsUnbounded returns true if the solver proved the objective unbounded.
func IsUnbounded(err error) bool {
	class, code, ok := classOf(err)
	return ok && class == ErrorClassSolver && code == ErrCodeUnbounded
}

// Common error codes.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNameCollision    = "NAME_COLLISION"
	ErrCodeUnknownComponent = "UNKNOWN_COMPONENT"
	ErrCodeInvalidRatio     = "INVALID_RATIO"
	ErrCodeUnknownKind      = "UNKNOWN_KIND"
	ErrCodeUnknownObjective = "UNKNOWN_OBJECTIVE"
	ErrCodeBadProperty      = "BAD_PROPERTY"
	ErrCodeInfeasible       = "INFEASIBLE"
	ErrCodeUnbounded        = "UNBOUNDED"
	ErrCodeSolverFailed     = "SOLVER_FAILED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)
