package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	apihttp "github.com/GriffinCanCode/scribe/backend/internal/api/http"
	"github.com/GriffinCanCode/scribe/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scribe/backend/internal/sandbox"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	outboundBuffer = 256
	maxConcurrent  = 4
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS middleware guards the HTTP routes
	},
}

// Executor runs code for a stream request. *sandbox.Pool satisfies it.
type Executor interface {
	Execute(ctx context.Context, code string, exposed sandbox.Context, timeout time.Duration, opts ...sandbox.ExecuteOption) (*sandbox.Result, error)
}

// Request is a client message
type Request struct {
	Type      string         `json:"type"`
	ID        string         `json:"id,omitempty"`
	Code      string         `json:"code,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	TimeoutMs int64          `json:"timeoutMs,omitempty"`
}

// Frame is a server message
type Frame struct {
	Type        string          `json:"type"`
	ID          string          `json:"id,omitempty"`
	ExecutionID string          `json:"executionId,omitempty"`
	Log         *sandbox.Log    `json:"log,omitempty"`
	Event       *sandbox.Event  `json:"event,omitempty"`
	Result      *sandbox.Result `json:"result,omitempty"`
	Message     string          `json:"message,omitempty"`
	Timestamp   int64           `json:"timestamp"`
}

// Handler streams executions over WebSocket connections
type Handler struct {
	executor Executor
	host     sandbox.Context
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler. host functions are exposed to
// every execution; metrics may be nil.
func NewHandler(executor Executor, host sandbox.Context, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		executor: executor,
		host:     host,
		metrics:  metrics,
		logger:   logger.Named("ws"),
	}
}

// HandleConnection upgrades the request and serves it until the client leaves
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(apihttp.MaxRequestSize)

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	s := &session{
		handler: h,
		conn:    conn,
		ctx:     ctx,
		out:     make(chan Frame, outboundBuffer),
		slots:   make(chan struct{}, maxConcurrent),
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
	}()

	s.send(Frame{Type: "system", Message: "Connected to Scribe Sandbox Service"})
	s.readLoop()

	cancel()
	s.runs.Wait()
	close(s.out)
	<-writerDone
	conn.Close()
}

// session is one connection. Only writeLoop writes to conn.
type session struct {
	handler *Handler
	conn    *websocket.Conn
	ctx     context.Context
	out     chan Frame
	slots   chan struct{}
	runs    sync.WaitGroup

	dropped int
	mu      sync.Mutex
}

func (s *session) readLoop() {
	for {
		var req Request
		if err := s.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.handler.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		s.handler.recordMessage("in", req.Type)

		switch req.Type {
		case "execute":
			s.execute(req)
		case "ping":
			s.send(Frame{Type: "pong", ID: req.ID})
		default:
			s.sendError(req.ID, "unknown message type")
		}
	}
}

func (s *session) execute(req Request) {
	exec := apihttp.ExecuteRequest{Code: req.Code, Context: req.Context, TimeoutMs: req.TimeoutMs}
	if exec.Code == "" {
		s.sendError(req.ID, "code is required")
		return
	}
	timeout, err := exec.Validate()
	if err != nil {
		s.sendError(req.ID, err.Error())
		return
	}

	select {
	case s.slots <- struct{}{}:
	default:
		s.sendError(req.ID, "too many concurrent executions")
		return
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer func() { <-s.slots }()

		result, err := s.handler.executor.Execute(s.ctx, exec.Code, apihttp.Surface(exec.Context, s.handler.host), timeout,
			sandbox.WithObserver(func(msg sandbox.Message) { s.observe(req.ID, msg) }))
		if err != nil {
			s.sendError(req.ID, err.Error())
			return
		}
		s.send(Frame{Type: "result", ID: req.ID, ExecutionID: result.ExecutionID, Result: result})
	}()
}

// observe forwards live traffic. It runs on the realm's dispatch goroutine,
// so frames are dropped rather than blocking when the client is slow.
func (s *session) observe(requestID string, msg sandbox.Message) {
	frame := Frame{ID: requestID, ExecutionID: msg.ExecutionID, Timestamp: time.Now().UnixMilli()}
	switch msg.Kind {
	case sandbox.MessageLog:
		frame.Type, frame.Log = "log", msg.Log
	case sandbox.MessageEvent:
		frame.Type, frame.Event = "event", msg.Event
	default:
		return
	}

	select {
	case s.out <- frame:
	default:
		s.mu.Lock()
		s.dropped++
		dropped := s.dropped
		s.mu.Unlock()
		s.handler.logger.Warn("Dropping stream frame for slow client",
			zap.String("execution_id", msg.ExecutionID),
			zap.Int("dropped", dropped))
	}
}

// send queues a frame unless the session is shutting down
func (s *session) send(frame Frame) {
	if frame.Timestamp == 0 {
		frame.Timestamp = time.Now().UnixMilli()
	}
	select {
	case s.out <- frame:
	case <-s.ctx.Done():
	}
}

func (s *session) sendError(requestID, message string) {
	s.send(Frame{Type: "error", ID: requestID, Message: message})
}

func (s *session) writeLoop() {
	broken := false
	for frame := range s.out {
		// Keep draining after a write failure so senders never block
		if broken {
			continue
		}
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteJSON(frame); err != nil {
			s.handler.logger.Debug("WebSocket write error", zap.Error(err))
			broken = true
			continue
		}
		s.handler.recordMessage("out", frame.Type)
	}
}

func (h *Handler) recordMessage(direction, msgType string) {
	if h.metrics != nil {
		h.metrics.RecordWSMessage(direction, msgType)
	}
}
