// Package id provides identifier generation for the sandbox backend.
//
// Two families of identifiers are used:
//   - Execution IDs: prefixed ULIDs (exec_*), generated by the orchestrator once per run.
//     They sort by creation time, which keeps log streams readable.
//   - Call IDs and slot suffixes: random UUIDs, generated inside the realm for every
//     callback invocation and every leased argument slot.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ExecutionID identifies one top-level sandbox run
type ExecutionID string

// CallID identifies a single callable invocation inside a run
type CallID string

const (
	ExecutionPrefix = "exec"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a ULID generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Deterministic entropy is useful in tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewExecutionID generates a new execution ID
func NewExecutionID() ExecutionID {
	return ExecutionID(Default().GenerateWithPrefix(ExecutionPrefix))
}

// NewCallID generates a new call ID
func NewCallID() CallID {
	return CallID(uuid.NewString())
}

// Token returns 32 random hex characters, suitable as an identifier suffix
func Token() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (id ExecutionID) String() string { return string(id) }
func (id CallID) String() string      { return string(id) }

// IsValid checks if a string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// IsExecutionID checks that a string is a well-formed execution ID
func IsExecutionID(s string) bool {
	prefix, rest, ok := strings.Cut(s, "_")
	return ok && prefix == ExecutionPrefix && IsValid(rest)
}

// Timestamp extracts the creation time from a (possibly prefixed) ULID
func Timestamp(s string) (time.Time, error) {
	if _, rest, ok := strings.Cut(s, "_"); ok {
		s = rest
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
