/*
Package resilience provides a circuit breaker for remote collaborators.

The breaker sits in front of the remote dynamic function store so a failing
function registry fails lookups fast instead of stalling every execution that
loads a function.

# Usage

	breaker := resilience.New("functions-remote", resilience.Settings{
		MaxProbes: 2,
		Cooldown:  10 * time.Second,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, functions.ErrNotFound)
		},
	})

	err := breaker.Do(ctx, func(ctx context.Context) error {
		return fetch(ctx)
	})

# States

	Closed --[trip]-> Open --[cooldown]-> Half-Open --[probes succeed]-> Closed
	                                          |
	                                      [failure]
	                                          v
	                                        Open
*/
package resilience
