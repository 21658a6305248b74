// Package bridge implements the command bridge: a loopback WebSocket
// endpoint carrying JSON request and response envelopes between the UI
// layer and the host.
//
// Each connection has one read loop. Every parsed request is dispatched on
// its own goroutine and answers through a write lock shared by the
// connection, so responses may arrive out of order and are matched by
// correlation id only. Pings are answered from the read loop and never wait
// behind pending responses.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Defaults for Config.
const (
	DefaultAddress      = "127.0.0.1:31753"
	DefaultReadLimit    = 16 << 20
	DefaultWriteTimeout = 10 * time.Second
)

// errConnClosed is returned by conn.write after the connection went away.
var errConnClosed = errors.New("bridge: connection closed")

// Config configures a Server.
type Config struct {
	// Address is the TCP listen address. It should be a loopback address.
	Address string

	// ReadLimit caps the size of one inbound message.
	ReadLimit int64

	// WriteTimeout bounds each outbound write.
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = DefaultReadLimit
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// Server accepts bridge connections and dispatches their requests to a
// Router.
type Server struct {
	cfg      Config
	router   *Router
	upgrader websocket.Upgrader

	// handlerCtx is the context handlers run with. It outlives individual
	// connections and is canceled when Serve returns.
	handlerCtx context.Context
	cancel     context.CancelFunc

	mu      sync.Mutex
	conns   map[*conn]struct{}
	closing bool
	nextID atomic.Uint64
	wg     sync.WaitGroup
}

// NewServer returns a server dispatching to router.
func NewServer(router *Router, cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg.withDefaults(),
		router: router,
		upgrader: websocket.Upgrader{
			// The listener is loopback only; the UI layer's origin varies
			// with how it is hosted.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		handlerCtx: ctx,
		cancel:     cancel,
		conns:      make(map[*conn]struct{}),
	}
}

// Config returns the effective configuration.
func (s *Server) Config() Config { return s.cfg }

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// ListenAndServe listens on the configured address and serves until ctx is
// done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes every open
// connection and waits for in-flight handlers.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	slogger().Info("bridge: listening", "addr", ln.Addr().String())

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		slogger().Warn("bridge: shutdown", "err", serr)
	}
	s.closeAll()
	s.cancel()
	s.wg.Wait()
	slogger().Info("bridge: stopped")

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ServeHTTP upgrades the request and runs the connection's read loop.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.wg.Add(1)
	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slogger().Warn("bridge: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := s.newConn(ws)
	if c == nil {
		return
	}
	s.readLoop(c)
}

// newConn registers ws. It returns nil and closes ws when the server is
// already shutting down.
func (s *Server) newConn(ws *websocket.Conn) *conn {
	c := &conn{
		id:           s.nextID.Add(1),
		ws:           ws,
		writeTimeout: s.cfg.WriteTimeout,
	}
	ws.SetReadLimit(s.cfg.ReadLimit)
	ws.SetPingHandler(func(appData string) error {
		err := ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(s.cfg.WriteTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil
			}
			return err
		}
		return nil
	})

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = ws.Close()
		slogger().Debug("bridge: connection refused during shutdown", "remote", ws.RemoteAddr().String())
		return nil
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	slogger().Info("bridge: connection opened", "conn", c.id, "remote", ws.RemoteAddr().String())
	return c
}

func (s *Server) closeAll() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		c.close()
	}
}

func (s *Server) readLoop(c *conn) {
	defer func() {
		c.close()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		slogger().Info("bridge: connection closed", "conn", c.id)
	}()

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slogger().Debug("bridge: read ended", "conn", c.id, "err", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			slogger().Warn("bridge: ignoring non-text message", "conn", c.id, "type", mt, "size", len(data))
			continue
		}

		req, err := ParseRequest(data)
		if err != nil {
			slogger().Debug("bridge: malformed request", "conn", c.id, "err", err)
			if werr := c.write(Failure(nil, err)); werr != nil {
				return
			}
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.dispatch(c, req)
		}()
	}
}

func (s *Server) dispatch(c *conn, req *Request) {
	start := time.Now()
	data, err := s.router.Dispatch(s.handlerCtx, req)

	var then func()
	if f, ok := data.(followUp); ok {
		data, then = f.data, f.then
	}

	var resp Response
	if err != nil {
		resp = Failure(req, err)
	} else {
		resp = Success(req, data)
	}

	werr := c.write(resp)
	if werr != nil {
		slogger().Debug("bridge: response discarded", "conn", c.id, "route", req.URL, "err", werr)
	}
	slogger().Debug("bridge: dispatched", "conn", c.id, "route", req.URL,
		"success", err == nil, "elapsed", time.Since(start))

	if then != nil {
		then()
	}
}

// conn is one bridge connection. Writes from concurrent dispatches are
// serialized by writeMu.
type conn struct {
	id           uint64
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
	closed  atomic.Bool
}

func (c *conn) write(resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		// Handler data that cannot be encoded is reported to the caller.
		data, err = json.Marshal(Response{
			URL:           resp.URL,
			CorrelationID: resp.CorrelationID,
			Body:          ResponseBody{Success: false, Error: "encode response: " + err.Error()},
		})
		if err != nil {
			return err
		}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return errConnClosed
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *conn) close() {
	if c.closed.Swap(true) {
		return
	}
	_ = c.ws.Close()
}
