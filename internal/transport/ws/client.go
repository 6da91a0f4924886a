package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"parcelbot.ai/internal/agent/sensing"
	"parcelbot.ai/internal/grid"
	"parcelbot.ai/internal/protocol"
)

var (
	ErrClosed     = errors.New("ws: session closed")
	ErrAckTimeout = errors.New("ws: ack timeout")
)

const (
	DefaultAckTimeout  = 5 * time.Second
	DefaultEventBuffer = 256
	handshakeTimeout   = 10 * time.Second
	// parcelPushWait bounds how long the reader waits to queue a parcel
	// update when the buffer is full. It stays well below the ack timeout.
	parcelPushWait = 200 * time.Millisecond
)

type Options struct {
	Name  string
	Token string
	// ActionsPerSecond throttles outgoing ACTs; zero means unlimited.
	ActionsPerSecond float64
	AckTimeout       time.Duration
	EventBuffer      int
	// Validate checks inbound messages against the protocol schemas.
	Validate bool
}

// Client is a game session. It implements sensing.Actuator; observations are
// delivered on Events.
type Client struct {
	conn *websocket.Conn
	log  *log.Logger
	opts Options

	limiter *rate.Limiter
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan protocol.AckMsg

	events  chan sensing.Event
	welcome sensing.Welcome
	dropped atomic.Int64

	done    chan struct{}
	errOnce sync.Once
	err     error
}

// Dial connects, performs the HELLO/WELCOME handshake and starts the reader.
// The WELCOME is the first event delivered.
func Dial(ctx context.Context, url string, opts Options, logger *log.Logger) (*Client, error) {
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	c := &Client{
		conn:    conn,
		log:     logger,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Inf, 1),
		pending: make(map[string]chan protocol.AckMsg),
		events:  make(chan sensing.Event, opts.EventBuffer),
		done:    make(chan struct{}),
	}
	if opts.ActionsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.ActionsPerSecond), 1)
	}
	if err := c.handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.events <- c.welcome
	go c.readLoop()
	return c, nil
}

func (c *Client) handshake() error {
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       c.opts.Name,
	}
	if c.opts.Token != "" {
		hello.Auth = &protocol.HelloAuth{Token: c.opts.Token}
	}
	if err := c.writeJSON(hello); err != nil {
		return fmt.Errorf("send HELLO: %w", err)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer c.conn.SetReadDeadline(time.Time{})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("await WELCOME: %w", err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeWelcome {
			continue
		}
		if base.ProtocolVersion != protocol.Version {
			return fmt.Errorf("%s: server speaks %q", protocol.ErrProtoVersion, base.ProtocolVersion)
		}
		if c.opts.Validate {
			if err := protocol.Validate(base.Type, msg); err != nil {
				return fmt.Errorf("WELCOME: %w", err)
			}
		}
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return fmt.Errorf("WELCOME: %w", err)
		}
		ev, err := welcomeEvent(w)
		if err != nil {
			return fmt.Errorf("WELCOME: %w", err)
		}
		c.welcome = ev
		c.logf("WELCOME agent_id=%s map=%dx%d", w.AgentID, w.Map.Width, w.Map.Height)
		return nil
	}
}

func (c *Client) Events() <-chan sensing.Event { return c.events }

func (c *Client) Welcome() sensing.Welcome { return c.welcome }

// Done is closed when the session ends; Err then reports why.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Dropped counts sensing events lost because the consumer fell behind.
func (c *Client) Dropped() int64 { return c.dropped.Load() }

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.fail(ErrClosed)
	return c.conn.Close()
}

func (c *Client) fail(err error) {
	c.errOnce.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(fmt.Errorf("ws: read: %w", err))
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		if c.opts.Validate {
			if err := protocol.Validate(base.Type, msg); err != nil {
				c.logf("drop %s: %v", base.Type, err)
				continue
			}
		}
		switch base.Type {
		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			c.route(ack)
		case protocol.TypeYou:
			var m protocol.YouMsg
			if err := json.Unmarshal(msg, &m); err != nil {
				continue
			}
			c.push(youEvent(m))
		case protocol.TypeParcels:
			var m protocol.ParcelsMsg
			if err := json.Unmarshal(msg, &m); err != nil {
				continue
			}
			c.push(parcelsEvent(m))
		case protocol.TypeAgents:
			var m protocol.AgentsMsg
			if err := json.Unmarshal(msg, &m); err != nil {
				continue
			}
			c.push(agentsEvent(m))
		}
	}
}

// push queues ev for the agent. Agent and position frames are superseded by
// the next one and are dropped when the buffer is full; parcel frames carry
// deletions, so the reader waits a little for room before dropping them.
func (c *Client) push(ev sensing.Event) {
	select {
	case c.events <- ev:
		return
	default:
	}
	if _, ok := ev.(sensing.ParcelsSensed); ok {
		t := time.NewTimer(parcelPushWait)
		defer t.Stop()
		select {
		case c.events <- ev:
			return
		case <-c.done:
			return
		case <-t.C:
		}
	}
	if n := c.dropped.Add(1); n == 1 || n%100 == 0 {
		c.logf("event buffer full, dropped=%d", n)
	}
}

func (c *Client) route(ack protocol.AckMsg) {
	c.mu.Lock()
	ch, ok := c.pending[ack.AckFor]
	delete(c.pending, ack.AckFor)
	c.mu.Unlock()
	if ok {
		ch <- ack
	}
}

func (c *Client) act(ctx context.Context, action, dir string) (protocol.AckMsg, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return protocol.AckMsg{}, err
	}
	req := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		ReqID:           uuid.NewString(),
		Action:          action,
		Direction:       dir,
	}
	ch := make(chan protocol.AckMsg, 1)
	c.mu.Lock()
	c.pending[req.ReqID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ReqID)
		c.mu.Unlock()
	}()

	if err := c.writeJSON(req); err != nil {
		return protocol.AckMsg{}, fmt.Errorf("send ACT %s: %w", action, err)
	}
	t := time.NewTimer(c.opts.AckTimeout)
	defer t.Stop()
	select {
	case ack := <-ch:
		return ack, nil
	case <-t.C:
		return protocol.AckMsg{}, fmt.Errorf("%s %s: %w", action, req.ReqID, ErrAckTimeout)
	case <-c.done:
		return protocol.AckMsg{}, c.err
	case <-ctx.Done():
		return protocol.AckMsg{}, ctx.Err()
	}
}

func (c *Client) Move(ctx context.Context, d grid.Direction) (grid.Position, bool, error) {
	ack, err := c.act(ctx, protocol.ActionMove, string(d))
	if err != nil {
		return grid.Position{}, false, err
	}
	if !ack.Accepted {
		c.logf("move %s rejected: %s %s", d, ack.Code, ack.Message)
	}
	return grid.Position{X: ack.X, Y: ack.Y}, ack.Accepted, nil
}

func (c *Client) Pickup(ctx context.Context) ([]string, error) {
	ack, err := c.act(ctx, protocol.ActionPickup, "")
	if err != nil {
		return nil, err
	}
	if !ack.Accepted {
		return nil, nil
	}
	return ack.Parcels, nil
}

func (c *Client) Putdown(ctx context.Context) ([]string, error) {
	ack, err := c.act(ctx, protocol.ActionPutdown, "")
	if err != nil {
		return nil, err
	}
	if !ack.Accepted {
		return nil, nil
	}
	return ack.Parcels, nil
}

func (c *Client) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Client) logf(format string, args ...any) {
	if c.log != nil {
		c.log.Printf(format, args...)
	}
}
