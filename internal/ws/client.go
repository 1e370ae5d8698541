package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrSlowConsumer = errors.New("slow consumer")
	ErrClosed       = errors.New("connection closed")
)

// wsConn is the part of *websocket.Conn the client uses.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Options struct {
	PingInterval   time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
	SendBuffer     int
	RatePerSecond  float64
	Burst          int
}

func (o Options) withDefaults() Options {
	if o.PingInterval == 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.WriteDeadline == 0 {
		o.WriteDeadline = 10 * time.Second
	}
	if o.MaxMessageSize == 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.SendBuffer == 0 {
		o.SendBuffer = 256
	}
	if o.RatePerSecond == 0 {
		o.RatePerSecond = 20
	}
	if o.Burst == 0 {
		o.Burst = 40
	}
	return o
}

// Client is one websocket connection. It implements presence.Handle.
type Client struct {
	id      string
	userID  string
	conn    wsConn
	send    chan []byte
	done    chan struct{}
	limiter *rate.Limiter
	opts    Options
	log     *zap.Logger

	mu     sync.Mutex
	closed bool

	// touched only by the read loop
	registered bool
}

func NewClient(conn wsConn, userID string, opts Options, log *zap.Logger) *Client {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		id:      uuid.NewString(),
		userID:  userID,
		conn:    conn,
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		opts:    opts,
		log:     log.With(zap.String("user", userID)),
	}
}

func (c *Client) UserID() string { return c.userID }

// Push queues an event. A full queue closes the connection: the client is
// too slow to keep up and will reconnect.
func (c *Client) Push(event string, payload any) error {
	return c.write(outbound{Type: event, Payload: payload})
}

func (c *Client) reply(event, ref string, payload any) error {
	return c.write(outbound{Type: event, Ref: ref, Payload: payload})
}

func (c *Client) write(msg outbound) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		c.closeLocked()
		return ErrSlowConsumer
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump drains the send queue and pings on an interval. It closes the
// socket on exit, which also ends the read loop.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteDeadline))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				c.Close()
				return
			}
		}
	}
}

// readLoop decodes envelopes and hands them to handle one at a time, so
// signals from one connection never run concurrently.
func (c *Client) readLoop(handle func(Envelope)) {
	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	wait := 2 * c.opts.PingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wait))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			_ = c.reply(eventError, "", ErrorEvent{Code: "validation", Message: "malformed envelope"})
			continue
		}
		if !c.limiter.Allow() {
			_ = c.reply(eventError, env.Ref, ErrorEvent{Code: "limit", Message: "rate limit exceeded", Ref: env.Ref})
			continue
		}
		handle(env)
	}
}
