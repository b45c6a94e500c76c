// ABOUTME: WebSocket client for the player control channel
// ABOUTME: Issues method calls and receives pushed status events
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mch25/pcmstream/internal/control"
	"github.com/mch25/pcmstream/pkg/pcmstream"
)

// ErrNotConnected is returned by calls on a closed client
var ErrNotConnected = errors.New("not connected")

// Config holds client configuration
type Config struct {
	// ServerAddr is the player's control address (host:port)
	ServerAddr string

	// HandshakeTimeout bounds the wait for the initial status (default: 5s)
	HandshakeTimeout time.Duration
}

// Client talks to one player's control channel
type Client struct {
	config Config
	conn   *websocket.Conn

	writeMu sync.Mutex

	pending   map[string]chan message
	pendingMu sync.Mutex
	nextID    atomic.Int64

	// Events receives every pushed status, including the initial one
	Events chan pcmstream.Status

	connected atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// message is any frame the server sends
type message struct {
	ID     json.RawMessage   `json:"id,omitempty"`
	Result json.RawMessage   `json:"result,omitempty"`
	Error  *control.Error    `json:"error,omitempty"`
	Event  string            `json:"event,omitempty"`
	Status *pcmstream.Status `json:"status,omitempty"`
}

// NewClient creates a new control client
func NewClient(config Config) *Client {
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:  config,
		pending: make(map[string]chan message),
		Events:  make(chan pcmstream.Status, 16),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect dials the player and waits for its initial status event
func (c *Client) Connect() error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = c.config.HandshakeTimeout

	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	c.conn = conn

	conn.SetReadDeadline(time.Now().Add(c.config.HandshakeTimeout))
	var first message
	if err := conn.ReadJSON(&first); err != nil {
		conn.Close()
		return fmt.Errorf("failed to read initial status: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	if first.Event != "status" || first.Status == nil {
		conn.Close()
		return fmt.Errorf("expected status event, got %q", first.Event)
	}

	c.connected.Store(true)
	c.deliver(*first.Status)

	go c.readMessages()
	return nil
}

// StartStream asks the player to play streamURL
func (c *Client) StartStream(ctx context.Context, streamURL string) (pcmstream.Status, error) {
	return c.call(ctx, control.MethodStartStream, streamURL)
}

// StopStream asks the player to stop
func (c *Client) StopStream(ctx context.Context) (pcmstream.Status, error) {
	return c.call(ctx, control.MethodStopStream, "")
}

// Status fetches the player's current status
func (c *Client) Status(ctx context.Context) (pcmstream.Status, error) {
	return c.call(ctx, control.MethodGetStatus, "")
}

// call sends one request and waits for the reply with the same id.
// A coded failure is returned as *control.Error.
func (c *Client) call(ctx context.Context, method, streamURL string) (pcmstream.Status, error) {
	var status pcmstream.Status

	if !c.connected.Load() {
		return status, ErrNotConnected
	}

	id := strconv.FormatInt(c.nextID.Add(1), 10)
	replyChan := make(chan message, 1)

	c.pendingMu.Lock()
	c.pending[id] = replyChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	req := map[string]any{
		"id":     json.RawMessage(id),
		"method": method,
		"args":   map[string]string{},
	}
	if streamURL != "" {
		req["args"] = map[string]string{"url": streamURL}
	}

	c.writeMu.Lock()
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return status, fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case reply := <-replyChan:
		if reply.Error != nil {
			return status, reply.Error
		}
		if err := json.Unmarshal(reply.Result, &status); err != nil {
			return status, fmt.Errorf("failed to parse %s result: %w", method, err)
		}
		return status, nil
	case <-ctx.Done():
		return status, ctx.Err()
	case <-c.ctx.Done():
		return status, ErrNotConnected
	}
}

// readMessages routes replies to their callers and events to Events
func (c *Client) readMessages() {
	defer c.Close()

	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Read error: %v", err)
			}
			return
		}

		if msg.Event == "status" && msg.Status != nil {
			c.deliver(*msg.Status)
			continue
		}

		c.pendingMu.Lock()
		replyChan, ok := c.pending[string(msg.ID)]
		c.pendingMu.Unlock()

		if !ok {
			log.Printf("Unexpected reply id %s", msg.ID)
			continue
		}
		replyChan <- msg
	}
}

// deliver drops the oldest event when nobody is draining Events
func (c *Client) deliver(status pcmstream.Status) {
	select {
	case c.Events <- status:
		return
	default:
	}
	select {
	case <-c.Events:
	default:
	}
	select {
	case c.Events <- status:
	default:
	}
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection
func (c *Client) Close() {
	if c.connected.CompareAndSwap(true, false) {
		c.cancel()
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
		log.Printf("Connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}
