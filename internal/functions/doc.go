/*
Package functions stores the code behind run_dynamic_function.

Every backend implements Store, which satisfies sandbox.FunctionSource, so a
store plugs straight into sandbox.WithFunctionSource.

# Backends

  - Memory: map guarded by a RWMutex
  - Directory: .js, .yaml, .toml and .json files under a root, optionally
    reloaded on change
  - SQLite: the dynamic_functions table
  - Remote: an HTTP function registry behind retries, a rate limiter and a
    circuit breaker

Open picks a backend from configuration and wraps it with Instrumented so
every operation is timed.
*/
package functions
