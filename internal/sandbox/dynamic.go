package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"

	"github.com/GriffinCanCode/scribe/backend/internal/shared/id"
)

const (
	loadFunctionName = "load_dynamic_function"
	runFunctionName  = "run_dynamic_function"
	argumentSlot     = "__dynamic_fn_args_"
)

var dynamicRunnerProgram = goja.MustCompile("dynamic-runner", dynamicRunnerSource, true)

// FunctionSource looks up the code of a dynamic function by name. A missing
// name is reported with an error wrapping ErrDynamicFunctionNotFound.
type FunctionSource interface {
	Lookup(ctx context.Context, name string) (string, error)
}

// FunctionSourceFunc adapts a plain function to FunctionSource
type FunctionSourceFunc func(ctx context.Context, name string) (string, error)

func (f FunctionSourceFunc) Lookup(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// LoadFunction exposes source as load_dynamic_function. Executed code receives
// {name, code} for a known name and a rejection otherwise.
func LoadFunction(source FunctionSource) Exposed {
	return Func(func(ctx context.Context, args ...any) (any, error) {
		var name string
		if len(args) > 0 {
			name, _ = args[0].(string)
		}
		if name == "" {
			return nil, &DynamicFunctionNotFoundError{Name: name}
		}

		code, err := source.Lookup(ctx, name)
		if err != nil {
			if errors.Is(err, ErrDynamicFunctionNotFound) {
				return nil, &DynamicFunctionNotFoundError{Name: name, Err: err}
			}
			return nil, fmt.Errorf("load dynamic function %q: %w", name, err)
		}
		return map[string]any{"name": name, "code": code}, nil
	})
}

// dynamicSource binds loaded code to the membrane. Code that consists of a
// single named function declaration is invoked with the leased arguments; any
// other body sees them as args.
func dynamicSource(name, code, slot string) (string, error) {
	body := strings.TrimRight(code, "\n")
	fn, err := declaredFunction(name, body)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("(function (__scope__) {\nwith (__scope__) {\nreturn async () => {\n")
	if fn != "" {
		b.WriteString(body)
		fmt.Fprintf(&b, "\nreturn await %s(%s);\n", fn, slot)
	} else {
		fmt.Fprintf(&b, "const args = %s;\n", slot)
		b.WriteString(body)
		b.WriteString("\n")
	}
	b.WriteString("};\n}\n})")
	return b.String(), nil
}

// declaredFunction returns the name of the function code declares when that
// declaration is its only statement, and "" for any other body. The code is
// parsed as a function body so bare bodies may return.
func declaredFunction(name, code string) (string, error) {
	program, err := goja.Parse(name, "async function __body__() {\n"+code+"\n}", parser.WithDisableSourceMaps)
	if err != nil {
		return "", fmt.Errorf("SyntaxError: %w", err)
	}
	if len(program.Body) != 1 {
		return "", fmt.Errorf("SyntaxError: unbalanced source in %s", name)
	}
	outer, ok := program.Body[0].(*ast.FunctionDeclaration)
	if !ok || outer.Function.Body == nil {
		return "", fmt.Errorf("SyntaxError: unbalanced source in %s", name)
	}

	statements := outer.Function.Body.List
	if len(statements) != 1 {
		return "", nil
	}
	decl, ok := statements[0].(*ast.FunctionDeclaration)
	if !ok || decl.Function.Name == nil {
		return "", nil
	}
	return string(decl.Function.Name.Name), nil
}

func (rn *run) dynamicRunner() (goja.Value, error) {
	factory, err := rn.vm.RunProgram(dynamicRunnerProgram)
	if err != nil {
		return nil, err
	}
	build, ok := goja.AssertFunction(factory)
	if !ok {
		return nil, errors.New("dynamic runner factory is not a function")
	}
	return build(goja.Undefined(),
		rn.scope.proxy,
		rn.vm.ToValue(rn.compileDynamic),
		rn.vm.ToValue(rn.lease),
		rn.vm.ToValue(rn.releaseSlot),
	)
}

// compileDynamic(name, code, slot) returns an async function running code
// in the run's membrane scope.
func (rn *run) compileDynamic(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	code := call.Argument(1).String()
	slot := call.Argument(2).String()

	src, err := dynamicSource(name, code, slot)
	if err != nil {
		panic(rn.syntaxError(&DynamicFunctionSyntaxError{Name: name, Err: err}))
	}
	prg, err := compileBound(name, src)
	if err != nil {
		panic(rn.syntaxError(&DynamicFunctionSyntaxError{Name: name, Err: err}))
	}
	fn, err := rn.scope.bind(prg)
	if err != nil {
		panic(rn.syntaxError(&DynamicFunctionSyntaxError{Name: name, Err: err}))
	}
	return fn
}

// lease(args) stores args under a fresh slot name and returns the name
func (rn *run) lease(call goja.FunctionCall) goja.Value {
	slot := argumentSlot + id.Token()
	rn.membrane.Set(slot, rn.scope.binding(call.Argument(0)))
	return rn.vm.ToValue(slot)
}

func (rn *run) releaseSlot(call goja.FunctionCall) goja.Value {
	rn.membrane.Delete(call.Argument(0).String())
	return goja.Undefined()
}

func (rn *run) syntaxError(err *DynamicFunctionSyntaxError) goja.Value {
	v := rn.newError(err.Error())
	if obj, ok := v.(*goja.Object); ok {
		_ = obj.DefineDataProperty("name", rn.vm.ToValue("DynamicFunctionSyntaxError"), goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	}
	return v
}
