package sandbox

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/bytedance/sonic"
)

var cloneAPI = sonic.Config{UseInt64: true}.Froze()

// Clone returns an independent copy of v suitable for crossing the realm
// boundary. Functions become "[Function]", errors their message, and
// non-finite numbers their string form. Integers come back as int64.
func Clone(v any) any {
	v = transferable(v)
	switch t := v.(type) {
	case nil, string, bool, int64, float64:
		return t
	case int:
		return int64(t)
	}

	data, err := cloneAPI.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var out any
	if err := cloneAPI.Unmarshal(data, &out); err != nil {
		return fmt.Sprint(v)
	}
	return out
}

// CloneArgs clones every element of an argument list
func CloneArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = Clone(a)
	}
	return out
}

func transferable(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case error:
		return t.Error()
	case time.Time:
		return t
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = transferable(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = transferable(x)
		}
		return out
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Func:
		return "[Function]"
	case reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprint(v)
	}
	return v
}

func finite(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}
