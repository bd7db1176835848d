package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GriffinCanCode/scribe/backend/internal/api/ws"
	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/tracing"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Sandbox.PoolSize = 1
	cfg.RateLimit.Enabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(context.Background(), cfg, WithLogger(&logging.Logger{Logger: zaptest.NewLogger(t)}))
	require.NoError(t, err)
	return s
}

func TestServerLifecycle(t *testing.T) {
	s := newTestServer(t, testConfig())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- s.Serve(l) }()

	base := "http://" + l.Addr().String()
	resp, err := http.Post(base+"/sandbox/execute", "application/json", strings.NewReader(`{"code":"return 6 * 7"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(tracing.TraceHeader))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, <-served)
	assert.True(t, s.Pool().Stats().Closed)
}

func TestServerCompressesResponses(t *testing.T) {
	s := newTestServer(t, testConfig())
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	plain := httptest.NewRecorder()
	s.Handler().ServeHTTP(plain, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Empty(t, plain.Header().Get("Content-Encoding"))
	assert.Contains(t, plain.Body.String(), "sandbox_realm_resets_total")
}

func TestServerStreamsOverWebsocket(t *testing.T) {
	s := newTestServer(t, testConfig())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = s.Shutdown(context.Background())
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sandbox/stream"
	header := http.Header{"Accept-Encoding": []string{"gzip"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var hello ws.Frame
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "system", hello.Type)

	require.NoError(t, conn.WriteJSON(ws.Request{Type: "execute", ID: "r1", Code: "return 1 + 1"}))
	for {
		var f ws.Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == "result" {
			require.NotNil(t, f.Result)
			assert.True(t, f.Result.OK)
			assert.Equal(t, float64(2), f.Result.Data)
			break
		}
	}
}

func TestServerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Functions.Backend = "tape"

	_, err := New(context.Background(), cfg, WithLogger(&logging.Logger{Logger: zaptest.NewLogger(t)}))
	assert.ErrorContains(t, err, "unknown functions backend")
}

func TestServerFunctionBackends(t *testing.T) {
	cfg := testConfig()
	cfg.Functions.Backend = config.BackendSQLite
	cfg.Functions.SQLitePath = t.TempDir() + "/functions.db"

	s := newTestServer(t, cfg)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	assert.Equal(t, config.BackendSQLite, s.Store().Backend())
	assert.True(t, s.Store().Writable())
}
