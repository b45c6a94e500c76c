// ABOUTME: Remote control surface for the player
// ABOUTME: Serves a websocket method channel plus plain HTTP start/stop/status
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mch25/pcmstream/pkg/pcmstream"
)

// Error codes carried in replies
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotImplemented  = "NOT_IMPLEMENTED"
	CodeUnavailable     = "UNAVAILABLE"
	CodeInternal        = "INTERNAL"
)

// Method names accepted on the websocket channel
const (
	MethodStartStream = "startStream"
	MethodStopStream  = "stopStream"
	MethodGetStatus   = "getStatus"
)

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	sendBuffer    = 32
)

// Controller is the playback surface the server drives
type Controller interface {
	Start(url string) error
	Stop()
	Status() pcmstream.Status
}

// Config holds server configuration
type Config struct {
	// Addr is the listen address (default: ":8927")
	Addr string
}

// Request is a method call from a websocket client
type Request struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Args   struct {
		URL string `json:"url,omitempty"`
	} `json:"args"`
}

// Response answers a Request with either a result or an error
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Error is a coded failure
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Event is pushed to every websocket client
type Event struct {
	Event  string           `json:"event"`
	Status pcmstream.Status `json:"status"`
}

// Server exposes a Controller over HTTP and websockets
type Server struct {
	config   Config
	ctrl     Controller
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	httpServer *http.Server
	listener   net.Listener

	clients   map[*client]struct{}
	clientsMu sync.Mutex

	wg sync.WaitGroup
}

// client is one websocket connection
type client struct {
	conn     *websocket.Conn
	sendChan chan any
	done     chan struct{}
	once     sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// New creates a control server for ctrl
func New(config Config, ctrl Controller) *Server {
	if config.Addr == "" {
		config.Addr = ":8927"
	}

	s := &Server{
		config: config,
		ctrl:   ctrl,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Control clients are local tools, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}

	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("POST /start", s.handleStart)
	s.mux.HandleFunc("POST /stop", s.handleStop)
	s.mux.HandleFunc("GET /status", s.handleStatus)

	return s
}

// Handler returns the HTTP handler serving all endpoints
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start binds the listen address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Control server listening on %s", ln.Addr())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Control server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting requests and closes every websocket client
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	s.clientsMu.Lock()
	for c := range s.clients {
		c.close()
	}
	s.clientsMu.Unlock()

	s.wg.Wait()
	return err
}

// Broadcast pushes a status event to every client. It never blocks; a
// client that has fallen behind misses the event.
func (s *Server) Broadcast(status pcmstream.Status) {
	event := Event{Event: "status", Status: status}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	for c := range s.clients {
		select {
		case c.sendChan <- event:
		default:
			log.Printf("Control client %s is slow, dropping status event", c.conn.RemoteAddr())
		}
	}
}

// ClientCount returns the number of connected websocket clients
func (s *Server) ClientCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("Control client connected from %s", r.RemoteAddr)

	c := &client{
		conn:     conn,
		sendChan: make(chan any, sendBuffer),
		done:     make(chan struct{}),
	}
	c.sendChan <- Event{Event: "status", Status: s.ctrl.Status()}

	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(c)
	}()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c)
		s.clientsMu.Unlock()
		c.close()
		log.Printf("Control client disconnected: %s", r.RemoteAddr)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		resp := s.dispatch(data)
		select {
		case c.sendChan <- resp:
		case <-c.done:
			return
		}
	}
}

// clientWriter owns all writes to the connection and closes it when done
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg := <-c.sendChan:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("Error marshaling control message: %v", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Error writing control message: %v", err)
				c.close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				c.close()
				return
			}

		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

// dispatch runs one request and builds its reply
func (s *Server) dispatch(data []byte) Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Response{Error: &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf("malformed request: %v", err)}}
	}

	resp := Response{ID: req.ID}

	switch req.Method {
	case MethodStartStream:
		if err := s.ctrl.Start(req.Args.URL); err != nil {
			resp.Error = toError(err)
			return resp
		}
		resp.Result = s.ctrl.Status()

	case MethodStopStream:
		s.ctrl.Stop()
		resp.Result = s.ctrl.Status()

	case MethodGetStatus:
		resp.Result = s.ctrl.Status()

	default:
		resp.Error = &Error{Code: CodeNotImplemented, Message: fmt.Sprintf("unknown method: %s", req.Method)}
	}

	return resp
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: &Error{
			Code:    CodeInvalidArgument,
			Message: fmt.Sprintf("malformed request: %v", err),
		}})
		return
	}

	if err := s.ctrl.Start(body.URL); err != nil {
		e := toError(err)
		writeJSON(w, httpStatus(e.Code), Response{Error: e})
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Stop()
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// toError maps a controller error to a coded reply
func toError(err error) *Error {
	var coded interface{ Code() string }
	switch {
	case errors.As(err, &coded):
		return &Error{Code: coded.Code(), Message: err.Error()}
	case errors.Is(err, pcmstream.ErrClosed):
		return &Error{Code: CodeUnavailable, Message: err.Error()}
	default:
		return &Error{Code: CodeInternal, Message: err.Error()}
	}
}

func httpStatus(code string) int {
	switch code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}
