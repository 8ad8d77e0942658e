package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/omok-server/internal/session"
)

const (
	readLimit    = 16 << 10
	writeTimeout = 5 * time.Second
	pingTimeout  = 3 * time.Second
)

// Handler is the game side of a connection.
type Handler interface {
	Connect(sessionID string, sink session.Sink)
	Disconnect(sessionID string)
	HandleFrame(sessionID string, data []byte)
}

// Server upgrades HTTP requests to websocket sessions.
type Server struct {
	handler      Handler
	origins      []string
	sendBuffer   int
	pingInterval time.Duration
	logger       *zap.Logger

	mu      sync.Mutex
	conns   map[string]*conn
	closing bool
	wg      sync.WaitGroup
}

type Option func(*Server)

// WithOriginPatterns allows cross-origin handshakes from the given host patterns.
func WithOriginPatterns(p []string) Option { return func(s *Server) { s.origins = p } }

func WithSendBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.sendBuffer = n
		}
	}
}

// WithPingInterval sets the keepalive period; zero disables pings.
func WithPingInterval(d time.Duration) Option { return func(s *Server) { s.pingInterval = d } }

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewServer(h Handler, opts ...Option) *Server {
	s := &Server{
		handler:      h,
		sendBuffer:   64,
		pingInterval: 30 * time.Second,
		logger:       zap.NewNop(),
		conns:        make(map[string]*conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.origins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Warn("ws_accept_error", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	c.SetReadLimit(readLimit)

	cn := newConn(uuid.NewString(), c, s.sendBuffer)
	if !s.track(cn) {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.untrack(cn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.handler.Connect(cn.id, cn)
	s.logger.Info("ws_connected", zap.String("session", cn.id), zap.String("remote", r.RemoteAddr))

	var loops sync.WaitGroup
	loops.Add(1)
	go func() {
		defer loops.Done()
		cn.writeLoop(ctx)
	}()
	if s.pingInterval > 0 {
		loops.Add(1)
		go func() {
			defer loops.Done()
			cn.pingLoop(ctx, s.pingInterval)
		}()
	}

	err = cn.readLoop(ctx, s.handler)
	cn.Close("closed")
	s.handler.Disconnect(cn.id)
	cancel()
	loops.Wait()

	if reason := cn.closeReason(); reason != "closed" {
		s.logger.Warn("ws_closed", zap.String("session", cn.id), zap.String("reason", reason))
	} else {
		s.logger.Info("ws_disconnected", zap.String("session", cn.id), zap.String("status", websocket.CloseStatus(err).String()))
	}
}

func (s *Server) track(cn *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[cn.id] = cn
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(cn *conn) {
	s.mu.Lock()
	delete(s.conns, cn.id)
	s.mu.Unlock()
	s.wg.Done()
}

// Count returns the number of open connections.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown closes every connection with GoingAway and waits for their
// handlers to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	list := make([]*conn, 0, len(s.conns))
	for _, cn := range s.conns {
		list = append(list, cn)
	}
	s.mu.Unlock()

	for _, cn := range list {
		cn.closeWith(websocket.StatusGoingAway, "server shutting down")
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// conn is one websocket session. Its outbound queue is bounded; Deliver never
// blocks.
type conn struct {
	id  string
	ws  *websocket.Conn
	out chan any

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	code      websocket.StatusCode
	reason    string
}

func newConn(id string, c *websocket.Conn, buffer int) *conn {
	return &conn{id: id, ws: c, out: make(chan any, buffer), done: make(chan struct{})}
}

func (c *conn) Deliver(frame any) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

// Close is called by the game side, typically for a slow consumer.
func (c *conn) Close(reason string) bool {
	return c.closeWith(websocket.StatusPolicyViolation, reason)
}

// closeWith records the first close only and reports whether this call was it.
func (c *conn) closeWith(code websocket.StatusCode, reason string) bool {
	first := false
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.code, c.reason = code, reason
		c.mu.Unlock()
		close(c.done)
		first = true
	})
	return first
}

func (c *conn) closeReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *conn) readLoop(ctx context.Context, h Handler) error {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		h.HandleFrame(c.id, data)
	}
}

// writeLoop drains the queue until the connection is closed, then sends the
// close frame. Frames queued before the close are flushed first.
func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case frame := <-c.out:
			if err := c.write(ctx, frame); err != nil {
				c.closeWith(websocket.StatusInternalError, "write failed")
				_ = c.ws.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-c.done:
			c.flush(ctx)
			c.mu.Lock()
			code, reason := c.code, c.reason
			c.mu.Unlock()
			if code == 0 || reason == "closed" {
				code = websocket.StatusNormalClosure
			}
			_ = c.ws.Close(code, reason)
			return
		}
	}
}

func (c *conn) flush(ctx context.Context) {
	for {
		select {
		case frame := <-c.out:
			if err := c.write(ctx, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *conn) write(ctx context.Context, frame any) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, c.ws, frame)
}

func (c *conn) pingLoop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			if errors.Is(err, context.Canceled) {
				return
			}
			failures++
			if failures >= 2 {
				c.closeWith(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}
