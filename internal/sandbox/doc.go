/*
Package sandbox runs caller-supplied JavaScript in an isolated realm and
records every capability the code uses.

# Overview

An Executor owns one long-lived Realm, a goja runtime driven by its own
goroutine. Each Execute call:

  - builds a Membrane over the caller's Context
  - runs the code inside `with (membrane)` so every free identifier is
    resolved, assigned and recorded through the membrane
  - collects log and event messages from the realm's Port
  - answers host function calls on separate goroutines
  - races the realm's outcome against the timeout and the caller's context

# Exposed values

A Context maps names to Exposed entries:

	sandbox.Context{
		"limit":  sandbox.Data(10),
		"fetch":  sandbox.Func(fetchNote),   // async, served on the host
		"double": sandbox.Sync(double),      // inline on the realm goroutine
	}

Reads of names the context does not define fall back to a small allowlist of
realm intrinsics (Object, JSON, Math, Promise, console, ...) and are undefined
otherwise.

# Events

The membrane emits property_access, variable_set and the function_start /
function_end / function_error lifecycle of every callable. When a run fails,
calls that started without finishing get a synthesized function_error so the
record stays balanced.

# Message protocol

Realm and host exchange Messages tagged with the execution id. The executor
drops any message whose execution id is not the active run's.

# Timeouts

A run that exceeds its timeout is reported as failed at once. Realm code still
running is interrupted, and the runtime is rebuilt before the next run so
nothing left behind by the abandoned code leaks into it.

# Dynamic functions

With a FunctionSource configured, executed code can call

	await run_dynamic_function({ name: "summarize", args: { id: 7 } })

which loads the named code through load_dynamic_function and runs it bound
to the same membrane.

# Pooling

Pool keeps a fixed set of executors for concurrent callers and resets each
realm when it is released.
*/
package sandbox
