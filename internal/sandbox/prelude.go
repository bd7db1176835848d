package sandbox

// hardenSource runs once on every fresh runtime, after the dangerous globals
// have been removed from Go. Code generation from strings is disabled on every
// function flavour and the shared prototypes are frozen against pollution.
// Error prototypes stay writable so thrown errors can still be renamed.
// It evaluates to the thrower that replaces the global Function constructor.
const hardenSource = `(function () {
	"use strict";
	var disabled = function () {
		throw new TypeError("dynamic code generation is disabled");
	};
	var lock = function (proto) {
		try {
			Object.defineProperty(proto, "constructor", {
				value: disabled,
				writable: false,
				configurable: false
			});
		} catch (e) {}
	};
	lock(Function.prototype);
	lock(Object.getPrototypeOf(async function () {}));
	lock(Object.getPrototypeOf(function* () {}));

	[
		Object, Array, Function, String, Number, Boolean, Symbol, Promise,
		RegExp, Date, Map, Set, WeakMap
	].forEach(function (ctor) {
		try {
			Object.freeze(ctor.prototype);
			Object.freeze(ctor);
		} catch (e) {}
	});
	return disabled;
})();`

// wrapperFactorySource compiles to a function taking the three lifecycle hooks
// and returning wrap(name, target). Wrapped callables report their start, then
// either an immediate end/error or, for thenables, one recorded on settlement.
// Failures are always re-thrown to the caller.
const wrapperFactorySource = `(function (started, ended, failed) {
	"use strict";
	var thenable = function (v) {
		return v !== null && (typeof v === "object" || typeof v === "function") && typeof v.then === "function";
	};
	return function (name, target) {
		return function () {
			var args = Array.prototype.slice.call(arguments);
			var callId = started(name, args);
			var result;
			try {
				result = target.apply(this, args);
			} catch (err) {
				failed(callId, err);
				throw err;
			}
			if (thenable(result)) {
				return result.then(function (value) {
					ended(callId, value);
					return value;
				}, function (err) {
					failed(callId, err);
					throw err;
				});
			}
			ended(callId, result);
			return result;
		};
	};
})`

// dynamicRunnerSource compiles to a function building run_dynamic_function
// for one membrane. The argument slot is always released, even when loading
// succeeded but compilation or the loaded code failed.
const dynamicRunnerSource = `(function (scope, compile, lease, release) {
	"use strict";
	return async function run_dynamic_function(request) {
		var name = request == null ? undefined : request.name;
		var args = request == null ? undefined : request.args;
		var loaded = await scope.load_dynamic_function(name);
		var code = loaded !== null && typeof loaded === "object" ? loaded.code : loaded;
		var slot = lease(args);
		try {
			var invoke = compile(String(name), String(code), slot);
			return await invoke();
		} finally {
			release(slot);
		}
	};
})`

// runTemplate binds executed code to the membrane scope. The body runs as an
// async arrow so top-level await and return are available to it.
const runTemplate = "(function (__scope__) {\n" +
	"with (__scope__) {\n" +
	"return (async () => {\n%s\n})();\n" +
	"}\n" +
	"})"

// intrinsicNames are the realm globals executed code may reach when the membrane
// has no binding of the same name.
var intrinsicNames = []string{
	"Object", "Array", "JSON", "Math", "Promise", "Date", "RegExp", "Symbol",
	"String", "Number", "Boolean", "Map", "Set", "WeakMap",
	"Error", "TypeError", "RangeError", "SyntaxError", "ReferenceError",
	"parseInt", "parseFloat", "isNaN", "isFinite",
	"encodeURIComponent", "decodeURIComponent",
	"NaN", "Infinity", "undefined",
	"console", "setTimeout", "clearTimeout",
}

// removedGlobals are unset on every runtime before hardening
var removedGlobals = []string{"require", "process", "module", "exports", "eval"}

// disabledGlobals are replaced by the hardening thrower, since hardening still
// needs them to reach the prototypes it locks
var disabledGlobals = []string{"Function"}
