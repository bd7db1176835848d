package http

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Request size limits (in bytes)
const (
	MaxRequestSize = 1 * 1024 * 1024 // whole request body
	MaxCodeSize    = 256 * 1024      // submitted code
	MaxContextSize = 64 * 1024       // serialized context map
)

const (
	MaxContextKeys  = 256
	MaxContextDepth = 10
	MaxTimeout      = 60_000 // milliseconds
)

// ValidateContext checks the size, key count and nesting of a request context
func ValidateContext(values map[string]any) error {
	if len(values) > MaxContextKeys {
		return fmt.Errorf("context has %d keys, maximum is %d", len(values), MaxContextKeys)
	}
	if err := checkDepth(values, 0, MaxContextDepth); err != nil {
		return err
	}
	data, err := sonic.Marshal(values)
	if err != nil {
		return fmt.Errorf("context is not serializable: %w", err)
	}
	if len(data) > MaxContextSize {
		return fmt.Errorf("context size %d bytes exceeds maximum %d bytes", len(data), MaxContextSize)
	}
	return nil
}

func checkDepth(data any, depth, maxDepth int) error {
	if depth > maxDepth {
		return fmt.Errorf("context nesting exceeds maximum depth of %d", maxDepth)
	}

	switch v := data.(type) {
	case map[string]any:
		for _, value := range v {
			if err := checkDepth(value, depth+1, maxDepth); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range v {
			if err := checkDepth(item, depth+1, maxDepth); err != nil {
				return err
			}
		}
	}
	return nil
}
