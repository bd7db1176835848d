package sandbox

import (
	"errors"
	"fmt"
)

var (
	ErrRealmNotInitialized     = errors.New("sandbox realm is not initialized")
	ErrRealmBusy               = errors.New("sandbox realm is executing")
	ErrExecutionTimeout        = errors.New("execution timeout exceeded")
	ErrFunctionNotFound        = errors.New("function not exposed")
	ErrDynamicFunctionNotFound = errors.New("dynamic function not found")
)

// RealmInitError reports that a runtime could not be created
type RealmInitError struct {
	Err error
}

func (e *RealmInitError) Error() string {
	return fmt.Sprintf("failed to initialize sandbox realm: %v", e.Err)
}

func (e *RealmInitError) Unwrap() error { return e.Err }

// ExecutedCodeError reports that the executed code itself failed
type ExecutedCodeError struct {
	Message string
}

func (e *ExecutedCodeError) Error() string { return e.Message }

// HostCallableError reports a failing host callable. It is answered into the
// realm as a functionError and never aborts the run by itself.
type HostCallableError struct {
	Name string
	Err  error
}

func (e *HostCallableError) Error() string {
	return fmt.Sprintf("host function %q failed: %v", e.Name, e.Err)
}

func (e *HostCallableError) Unwrap() error { return e.Err }

// DynamicFunctionSyntaxError reports loaded code that does not compile
type DynamicFunctionSyntaxError struct {
	Name string
	Err  error
}

func (e *DynamicFunctionSyntaxError) Error() string {
	return fmt.Sprintf("dynamic function %q has a syntax error: %v", e.Name, e.Err)
}

func (e *DynamicFunctionSyntaxError) Unwrap() error { return e.Err }

// DynamicFunctionNotFoundError reports a name the lookup collaborator does not know
type DynamicFunctionNotFoundError struct {
	Name string
	Err  error
}

func (e *DynamicFunctionNotFoundError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDynamicFunctionNotFound, e.Name)
}

func (e *DynamicFunctionNotFoundError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDynamicFunctionNotFound}
	}
	return []error{ErrDynamicFunctionNotFound, e.Err}
}

// failureStatus maps a run failure to a metrics label
func failureStatus(err error) string {
	var codeErr *ExecutedCodeError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrExecutionTimeout):
		return "timeout"
	case errors.As(err, &codeErr):
		return "error"
	default:
		return "cancelled"
	}
}
