package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRealm(t *testing.T, config Config) *Realm {
	t.Helper()
	r := NewRealm(config, zap.NewNop(), nil)
	require.NoError(t, r.Initialize())
	t.Cleanup(func() { r.Destroy() })
	return r
}

// runOnRealm drives one run directly against a realm and returns its outcome
// together with the run handle.
func runOnRealm(t *testing.T, r *Realm, code string, exposed Context) (outcome, *RunHandle) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	executionID := "exec_" + t.Name()
	ex := newExecution(ctx, executionID, r.Port(), exposed, zap.NewNop(), nopRecorder{})
	unsubscribe := r.Port().Subscribe(ex.receive)
	defer unsubscribe()

	handle, err := r.InjectAndRun(code, exposed, executionID)
	require.NoError(t, err)

	select {
	case out := <-ex.done:
		return out, handle
	case <-time.After(2 * time.Second):
		handle.Abandon("test timeout")
		t.Fatalf("run %q did not finish", code)
	}
	return outcome{}, handle
}

func TestRealmLifecycle(t *testing.T) {
	r := NewRealm(DefaultConfig(), nil, nil)
	assert.Equal(t, StateUninitialized, r.State())
	assert.Nil(t, r.Port())

	assert.ErrorIs(t, r.Reset(), ErrRealmNotInitialized)
	_, err := r.InjectAndRun("return 1", nil, "exec_a")
	assert.ErrorIs(t, err, ErrRealmNotInitialized)

	require.NoError(t, r.Initialize())
	assert.Equal(t, StateReady, r.State())
	port := r.Port()
	require.NoError(t, r.Initialize())
	assert.Same(t, port, r.Port())

	require.NoError(t, r.Reset())
	assert.Equal(t, StateReady, r.State())

	require.NoError(t, r.Destroy())
	assert.Equal(t, StateDestroyed, r.State())
	assert.ErrorIs(t, r.Reset(), ErrRealmNotInitialized)

	require.NoError(t, r.Initialize())
	assert.Equal(t, StateReady, r.State())
	require.NoError(t, r.Destroy())
}

func TestRealmInitError(t *testing.T) {
	config := DefaultConfig()
	config.Bootstrap = []Script{{Name: "broken.js", Source: "function ("}}

	r := NewRealm(config, nil, nil)
	err := r.Initialize()

	var initErr *RealmInitError
	require.ErrorAs(t, err, &initErr)
	assert.Contains(t, err.Error(), "broken.js")
	assert.Equal(t, StateUninitialized, r.State())
}

func TestRealmBootstrapGlobals(t *testing.T) {
	config := DefaultConfig()
	config.Bootstrap = []Script{{Name: "helpers.js", Source: "function shout(s) { return s.toUpperCase() + '!'; }"}}
	config.Globals = []string{"shout"}
	r := newTestRealm(t, config)

	out, _ := runOnRealm(t, r, `return shout("hi")`, nil)
	require.True(t, out.ok, out.err)
	assert.Equal(t, "HI!", out.result)
}

func TestRealmBusy(t *testing.T) {
	r := newTestRealm(t, DefaultConfig())

	handle, err := r.InjectAndRun("await new Promise(() => {})", nil, "exec_a")
	require.NoError(t, err)
	assert.Equal(t, StateExecuting, r.State())

	_, err = r.InjectAndRun("return 1", nil, "exec_b")
	assert.ErrorIs(t, err, ErrRealmBusy)
	assert.ErrorIs(t, r.Reset(), ErrRealmBusy)

	handle.Abandon("gave up")
	assert.Equal(t, StateReady, r.State())

	out, _ := runOnRealm(t, r, "return 1", nil)
	assert.True(t, out.ok)
}

func TestRealmHardening(t *testing.T) {
	r := newTestRealm(t, DefaultConfig())

	tests := []struct {
		name string
		code string
		want any
	}{
		{"require is hidden", "return typeof require", "undefined"},
		{"process is hidden", "return typeof process", "undefined"},
		{"eval is hidden", "return typeof eval", "undefined"},
		{"Function is not reachable", "return typeof Function", "undefined"},
		{"intrinsics are reachable", "return JSON.stringify({ a: Math.max(1, 2) })", `{"a":2}`},
		{"prototypes are frozen", "Object.prototype.polluted = 1; return ({}).polluted === undefined", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := runOnRealm(t, r, tt.code, nil)
			require.True(t, out.ok, out.err)
			assert.Equal(t, tt.want, out.result)
		})
	}

	t.Run("function constructor is disabled", func(t *testing.T) {
		out, _ := runOnRealm(t, r, `return (() => {}).constructor("return 1")()`, nil)
		assert.False(t, out.ok)
		assert.Contains(t, out.err, "dynamic code generation is disabled")
	})

	t.Run("global Function is disabled", func(t *testing.T) {
		out, _ := runOnRealm(t, r, `return (function () { return this })().Function("return 1")()`, nil)
		assert.False(t, out.ok)
		assert.Contains(t, out.err, "dynamic code generation is disabled")
	})

	t.Run("async function constructor is disabled", func(t *testing.T) {
		out, _ := runOnRealm(t, r, `return (async () => {}).constructor("return 1")()`, nil)
		assert.False(t, out.ok)
	})

	t.Run("template cannot be closed early", func(t *testing.T) {
		out, _ := runOnRealm(t, r, "})(); } }); (function () { with ({}) { return (async () => {", nil)
		assert.False(t, out.ok)
		assert.Contains(t, out.err, "SyntaxError")
	})
}

func TestRealmInterruptsAbandonedRun(t *testing.T) {
	r := newTestRealm(t, DefaultConfig())

	handle, err := r.InjectAndRun("while (true) {}", nil, "exec_spin")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	handle.Abandon("execution timeout exceeded")

	out, _ := runOnRealm(t, r, "return 'alive'", nil)
	require.True(t, out.ok, out.err)
	assert.Equal(t, "alive", out.result)
}

func TestRealmTimers(t *testing.T) {
	r := newTestRealm(t, DefaultConfig())

	out, _ := runOnRealm(t, r, `
		const cancelled = setTimeout(() => { throw new Error("should not run") }, 5);
		clearTimeout(cancelled);
		return await new Promise((resolve) => setTimeout((a, b) => resolve(a + b), 10, 3, 4));
	`, nil)
	require.True(t, out.ok, out.err)
	assert.Equal(t, int64(7), out.result)
}

func TestRealmDynamicArgumentsNeverPersist(t *testing.T) {
	r := newTestRealm(t, DefaultConfig())
	functions := map[string]string{
		"triple":    "function triple(args) { return args.n * 3; }",
		"commented": "// triples n\nfunction triple(args) { return args.n * 3 }",
		"helper":    "function helper(x) { return x * 2 }\nreturn helper(args.n)",
		"sum":       "return args.a + args.b;",
		"thrower":   "throw new Error('nope');",
		"broken":    "function (",
	}
	source := FunctionSourceFunc(func(_ context.Context, name string) (string, error) {
		code, ok := functions[name]
		if !ok {
			return "", ErrDynamicFunctionNotFound
		}
		return code, nil
	})
	exposed := Context{loadFunctionName: LoadFunction(source)}

	tests := []struct {
		name string
		code string
		ok   bool
		want any
	}{
		{"named function", `return await run_dynamic_function({ name: "triple", args: { n: 4 } })`, true, int64(12)},
		{"commented named function", `return await run_dynamic_function({ name: "commented", args: { n: 5 } })`, true, int64(15)},
		{"body declaring a helper", `return await run_dynamic_function({ name: "helper", args: { n: 5 } })`, true, int64(10)},
		{"bare body", `return await run_dynamic_function({ name: "sum", args: { a: 1, b: 2 } })`, true, int64(3)},
		{"throwing body", `return await run_dynamic_function({ name: "thrower", args: {} })`, false, nil},
		{"syntax error", `try { await run_dynamic_function({ name: "broken" }) } catch (e) { return e.name }`, true, "DynamicFunctionSyntaxError"},
		{"not found", `try { await run_dynamic_function({ name: "missing" }) } catch (e) { return e.message }`, true, "dynamic function not found: missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, handle := runOnRealm(t, r, tt.code, exposed)
			assert.Equal(t, tt.ok, out.ok, out.err)
			if tt.ok {
				assert.Equal(t, tt.want, out.result)
			}
			for _, key := range handle.Surface().Keys() {
				assert.False(t, strings.HasPrefix(key, argumentSlot), "leaked argument slot %s", key)
			}
		})
	}
}

func TestDynamicSource(t *testing.T) {
	named, err := dynamicSource("greet", "async function greet(args) { return args.name }", "__slot")
	require.NoError(t, err)
	assert.Contains(t, named, "return await greet(__slot);")
	assert.NotContains(t, named, "const args")

	bare, err := dynamicSource("bare", "return args.name", "__slot")
	require.NoError(t, err)
	assert.Contains(t, bare, "const args = __slot;")

	_, err = compileBound("bare", bare)
	assert.NoError(t, err)

	_, err = dynamicSource("broken", "function (", "__slot")
	assert.ErrorContains(t, err, "SyntaxError")
}

func TestDeclaredFunction(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"declaration", "function triple(args) { return args.n * 3 }", "triple"},
		{"async declaration", "async function fetchAll(args) { return [] }", "fetchAll"},
		{"leading comment", "// triples n\nfunction triple(args) { return args.n * 3 }", "triple"},
		{"helper then statement", "function helper(x) { return x * 2 }\nreturn helper(args.n)", ""},
		{"two declarations", "function a() {}\nfunction b() {}", ""},
		{"expression", "return (function named() { return 1 })()", ""},
		{"bare body", "return args.a + args.b", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := declaredFunction(tt.name, tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := declaredFunction("escape", "}\nfunction outside() {")
	assert.Error(t, err)
}

func TestRealmDynamicFailureKeepsSurface(t *testing.T) {
	r := newTestRealm(t, DefaultConfig())
	functions := map[string]string{
		"thrower": "throw new Error('nope');",
		"broken":  "function (",
	}
	source := FunctionSourceFunc(func(_ context.Context, name string) (string, error) {
		return functions[name], nil
	})

	ready := make(chan struct{})
	var handle *RunHandle
	var snapshots [][]string
	exposed := Context{
		loadFunctionName: LoadFunction(source),
		"snapshot": Sync(func(...any) (any, error) {
			<-ready
			snapshots = append(snapshots, handle.Surface().Keys())
			return nil, nil
		}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ex := newExecution(ctx, "exec_surface", r.Port(), exposed, zap.NewNop(), nopRecorder{})
	unsubscribe := r.Port().Subscribe(ex.receive)
	defer unsubscribe()

	code := `
		snapshot();
		for (const name of ["thrower", "broken"]) {
			try { await run_dynamic_function({ name, args: { secret: 1 } }) } catch (e) {}
		}
		snapshot();
		return true
	`
	var err error
	handle, err = r.InjectAndRun(code, exposed, "exec_surface")
	require.NoError(t, err)
	close(ready)

	select {
	case out := <-ex.done:
		require.True(t, out.ok, out.err)
	case <-time.After(2 * time.Second):
		handle.Abandon("test timeout")
		t.Fatal("run did not finish")
	}

	require.Len(t, snapshots, 2)
	assert.Equal(t, snapshots[0], snapshots[1])
}

func TestLoadFunctionWrapsLookupErrors(t *testing.T) {
	failing := FunctionSourceFunc(func(context.Context, string) (string, error) {
		return "", errors.New("backend down")
	})
	exposed := LoadFunction(failing)
	require.True(t, exposed.IsCallable())

	_, err := exposed.fn(context.Background(), "any")
	assert.EqualError(t, err, `load dynamic function "any": backend down`)

	missing := FunctionSourceFunc(func(context.Context, string) (string, error) {
		return "", ErrDynamicFunctionNotFound
	})
	_, err = LoadFunction(missing).fn(context.Background(), "gone")
	var notFound *DynamicFunctionNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "gone", notFound.Name)
	assert.ErrorIs(t, err, ErrDynamicFunctionNotFound)
}
