package functions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registry(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func testRemoteOptions() RemoteOptions {
	return RemoteOptions{
		RetryMax:     1,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Timeout:      2 * time.Second,
	}
}

func TestRemoteLookup(t *testing.T) {
	srv := registry(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/functions/greet":
			_, _ = w.Write([]byte(`{"name":"greet","code":"return 'hi'","description":"says hi"}`))
		case "/functions":
			_, _ = w.Write([]byte(`[{"name":"greet","code":"return 'hi'"}]`))
		default:
			http.NotFound(w, r)
		}
	})

	remote, err := NewRemote(srv.URL+"/", testRemoteOptions())
	require.NoError(t, err)
	defer remote.Close()

	ctx := context.Background()
	code, err := remote.Lookup(ctx, "greet")
	require.NoError(t, err)
	assert.Equal(t, "return 'hi'", code)

	fn, err := remote.Get(ctx, "greet")
	require.NoError(t, err)
	assert.Equal(t, "says hi", fn.Description)

	fns, err := remote.List(ctx)
	require.NoError(t, err)
	require.Len(t, fns, 1)

	_, err = remote.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = remote.Lookup(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := registry(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"flaky","code":"return 1"}`))
	})

	remote, err := NewRemote(srv.URL, testRemoteOptions())
	require.NoError(t, err)

	code, err := remote.Lookup(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Equal(t, "return 1", code)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRemoteBreakerOpensOnFailures(t *testing.T) {
	var calls atomic.Int32
	srv := registry(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	opts := testRemoteOptions()
	opts.RetryMax = 0
	remote, err := NewRemote(srv.URL, opts)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err = remote.Lookup(ctx, "down")
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, remote.Breaker().State())

	before := calls.Load()
	_, err = remote.Lookup(ctx, "down")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, before, calls.Load())
}

func TestRemoteNotFoundNeverTrips(t *testing.T) {
	srv := registry(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	remote, err := NewRemote(srv.URL, testRemoteOptions())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err = remote.Lookup(context.Background(), "ghost")
		require.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, resilience.StateClosed, remote.Breaker().State())
}

func TestRemoteRequiresURL(t *testing.T) {
	_, err := NewRemote("", DefaultRemoteOptions())
	assert.Error(t, err)
}

func TestRemoteRateLimitHonoursContext(t *testing.T) {
	srv := registry(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"x","code":"return 1"}`))
	})

	opts := testRemoteOptions()
	opts.RequestsPerSecond = 1
	remote, err := NewRemote(srv.URL, opts)
	require.NoError(t, err)

	_, err = remote.Lookup(context.Background(), "x")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = remote.Lookup(ctx, "x")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "rate limit"), err.Error())
}

func TestRemotePropagatesTrace(t *testing.T) {
	var traceID atomic.Value
	srv := registry(t, func(w http.ResponseWriter, r *http.Request) {
		traceID.Store(r.Header.Get(tracing.TraceHeader))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"greet","code":"return 1"}`))
	})

	remote, err := NewRemote(srv.URL, testRemoteOptions())
	require.NoError(t, err)
	defer remote.Close()

	ctx := tracing.WithSpan(context.Background(), "trace-abc", "span-abc")
	_, err = remote.Lookup(ctx, "greet")
	require.NoError(t, err)
	assert.Equal(t, "trace-abc", traceID.Load())
}
