package functions

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/GriffinCanCode/scribe/backend/internal/sandbox"
	"github.com/GriffinCanCode/scribe/backend/internal/shared/utils"
)

var (
	// ErrNotFound is returned by every backend for an unknown name. It is the
	// sandbox sentinel so lookups surface in executed code unchanged.
	ErrNotFound = sandbox.ErrDynamicFunctionNotFound
	// ErrReadOnly is returned by Put and Delete on backends that cannot write
	ErrReadOnly = errors.New("function store is read-only")
)

const (
	MaxNameLength = 128
	MaxCodeSize   = 256 * 1024
)

var namePattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$.-]*$`)

// Function is a named piece of code runnable through run_dynamic_function
type Function struct {
	Name        string    `json:"name" yaml:"name" toml:"name"`
	Code        string    `json:"code" yaml:"code" toml:"code"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at,omitempty" toml:"updated_at,omitempty"`
}

// Checksum identifies the function's current name and code
func (f Function) Checksum() string {
	return utils.HashFields(f.Name, f.Code)
}

// Store resolves dynamic functions by name. Every Store satisfies
// sandbox.FunctionSource.
type Store interface {
	Lookup(ctx context.Context, name string) (string, error)
	Get(ctx context.Context, name string) (*Function, error)
	List(ctx context.Context) ([]Function, error)
	Close() error
}

// WritableStore is a Store that accepts updates
type WritableStore interface {
	Store
	Put(ctx context.Context, fn Function) error
	Delete(ctx context.Context, name string) error
}

var _ sandbox.FunctionSource = Store(nil)

// Validate checks that name is usable as a function name
func Validate(name string) error {
	if name == "" {
		return errors.New("function name is required")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("function name exceeds %d characters", MaxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid function name %q", name)
	}
	return nil
}

// ValidateFunction checks a function before it is stored
func ValidateFunction(fn Function) error {
	if err := Validate(fn.Name); err != nil {
		return err
	}
	if strings.TrimSpace(fn.Code) == "" {
		return fmt.Errorf("function %q has no code", fn.Name)
	}
	if len(fn.Code) > MaxCodeSize {
		return fmt.Errorf("function %q exceeds %d bytes", fn.Name, MaxCodeSize)
	}
	return nil
}

func notFound(name string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}
