package functions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/tracing"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RemoteOptions configures a Remote store
type RemoteOptions struct {
	// RequestsPerSecond throttles outgoing lookups, zero means unlimited
	RequestsPerSecond int
	RetryMax          int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	Timeout           time.Duration
	Logger            *zap.Logger
}

// DefaultRemoteOptions returns production settings
func DefaultRemoteOptions() RemoteOptions {
	return RemoteOptions{
		RequestsPerSecond: 20,
		RetryMax:          3,
		RetryWaitMin:      200 * time.Millisecond,
		RetryWaitMax:      2 * time.Second,
		Timeout:           10 * time.Second,
	}
}

// Remote fetches functions from an HTTP function registry exposing
// GET /functions and GET /functions/{name}.
type Remote struct {
	client  *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// NewRemote creates a store backed by the registry at baseURL
func NewRemote(baseURL string, opts RemoteOptions) (*Remote, error) {
	if baseURL == "" {
		return nil, errors.New("remote function store requires a base URL")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("functions.remote")

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.Logger = nil

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "scribe-sandbox/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.RequestsPerSecond)
	}

	breaker := resilience.New("functions-remote", resilience.Settings{
		MaxProbes: 2,
		Cooldown:  10 * time.Second,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	return &Remote{client: client, limiter: limiter, breaker: breaker, logger: logger}, nil
}

func (r *Remote) Lookup(ctx context.Context, name string) (string, error) {
	fn, err := r.Get(ctx, name)
	if err != nil {
		return "", err
	}
	return fn.Code, nil
}

func (r *Remote) Get(ctx context.Context, name string) (*Function, error) {
	if err := Validate(name); err != nil {
		return nil, notFound(name)
	}

	var fn Function
	err := r.do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetPathParam("name", name).SetResult(&fn).Get("/functions/{name}")
	})
	if err != nil {
		if errors.Is(err, errRemoteNotFound) {
			return nil, notFound(name)
		}
		return nil, fmt.Errorf("get function %s: %w", name, err)
	}
	if fn.Name == "" {
		fn.Name = name
	}
	return &fn, nil
}

func (r *Remote) List(ctx context.Context) ([]Function, error) {
	var fns []Function
	err := r.do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&fns).Get("/functions")
	})
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	return fns, nil
}

// Breaker exposes the circuit breaker state for stats
func (r *Remote) Breaker() *resilience.Breaker {
	return r.breaker
}

func (r *Remote) Close() error {
	r.client.GetClient().CloseIdleConnections()
	return nil
}

var errRemoteNotFound = fmt.Errorf("remote: %w", ErrNotFound)

func (r *Remote) do(ctx context.Context, send func(*resty.Request) (*resty.Response, error)) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	return r.breaker.Do(ctx, func(ctx context.Context) error {
		req := r.client.R().SetContext(ctx).ForceContentType("application/json")
		tracing.Inject(ctx, req.Header)
		resp, err := send(req)
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode() == http.StatusNotFound:
			return errRemoteNotFound
		case resp.IsError():
			return fmt.Errorf("remote function store returned %s", resp.Status())
		}
		return nil
	})
}
