package sandbox

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"
)

// scope binds a Membrane into one goja runtime. Executed code sees the proxy
// as both its `with` object and its `this`.
type scope struct {
	vm         *goja.Runtime
	membrane   *Membrane
	proxy      *goja.Object
	wrap       goja.Callable
	intrinsics map[string]bool
	// wrapped caches the wrapper handed out for each callable key so that
	// repeated reads of an unchanged binding yield the same function
	wrapped map[string]wrappedCallable
}

type wrappedCallable struct {
	target goja.Value
	fn     goja.Value
}

func newScope(vm *goja.Runtime, m *Membrane, wrap goja.Callable, intrinsics map[string]bool) *scope {
	s := &scope{
		vm:         vm,
		membrane:   m,
		wrap:       wrap,
		intrinsics: intrinsics,
		wrapped:    make(map[string]wrappedCallable),
	}
	m.export = s.export

	proxy := vm.NewProxy(vm.NewObject(), &goja.ProxyTrapConfig{
		Has: func(_ *goja.Object, key string) bool {
			return m.Has(key)
		},
		Get: func(_ *goja.Object, key string, _ goja.Value) goja.Value {
			return s.get(key)
		},
		Set: func(_ *goja.Object, key string, value goja.Value, _ goja.Value) bool {
			m.Set(key, s.binding(value))
			return true
		},
		DeleteProperty: func(_ *goja.Object, key string) bool {
			m.Delete(key)
			return true
		},
	})
	s.proxy = vm.ToValue(proxy).(*goja.Object)
	return s
}

func (s *scope) get(key string) goja.Value {
	b, ok := s.membrane.Get(key)
	if !ok {
		if s.intrinsics[key] {
			return s.vm.GlobalObject().Get(key)
		}
		return goja.Undefined()
	}

	value := s.value(b.Value)
	if !b.Callable {
		return value
	}
	if w, ok := s.wrapped[key]; ok && w.target.SameAs(value) {
		return w.fn
	}
	fn, err := s.wrap(goja.Undefined(), s.vm.ToValue(key), value)
	if err != nil {
		return value
	}
	s.wrapped[key] = wrappedCallable{target: value, fn: fn}
	return fn
}

// binding classifies a value written by executed code
func (s *scope) binding(v goja.Value) Binding {
	_, callable := goja.AssertFunction(v)
	return Binding{Value: v, Callable: callable}
}

func (s *scope) value(v any) goja.Value {
	if gv, ok := v.(goja.Value); ok {
		return gv
	}
	return s.vm.ToValue(v)
}

// export converts a realm or host value into its cloned Go form
func (s *scope) export(v any) any {
	if gv, ok := v.(goja.Value); ok {
		return Clone(exportValue(gv))
	}
	return Clone(v)
}

func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if _, ok := goja.AssertFunction(v); ok {
		return "[Function]"
	}
	if obj, ok := v.(*goja.Object); ok {
		switch obj.ClassName() {
		case "Error":
			return errorMessage(v)
		case "Promise":
			return "[Promise]"
		}
	}
	return v.Export()
}

// errorMessage renders a thrown value or rejection reason
func errorMessage(v any) string {
	switch t := v.(type) {
	case nil:
		return "undefined"
	case *goja.Exception:
		return errorMessage(t.Value())
	case *goja.InterruptedError:
		return fmt.Sprint(t.Value())
	case *goja.Object:
		if msg := t.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return msg.String()
		}
		return t.String()
	case goja.Value:
		if goja.IsUndefined(t) {
			return "undefined"
		}
		return t.String()
	case error:
		return t.Error()
	}
	return fmt.Sprint(v)
}

// compileBound parses src and rejects programs that are more than the single
// function expression a binding template produces, so source spliced into a
// template cannot close it early and run outside the membrane scope.
func compileBound(name, src string) (*goja.Program, error) {
	ast, err := goja.Parse(name, src, parser.WithDisableSourceMaps)
	if err != nil {
		return nil, fmt.Errorf("SyntaxError: %w", err)
	}
	if len(ast.Body) != 1 {
		return nil, fmt.Errorf("SyntaxError: unbalanced source in %s", name)
	}
	return goja.CompileAST(ast, false)
}

// bind runs a compiled binding template and returns the function it evaluates
// to, called with the scope as both receiver and argument.
func (s *scope) bind(prg *goja.Program) (goja.Value, error) {
	v, err := s.vm.RunProgram(prg)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("binding template did not produce a function")
	}
	return fn(s.proxy, s.proxy)
}

func runSource(code string) string {
	return fmt.Sprintf(runTemplate, strings.TrimRight(code, "\n"))
}
