package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClientClosed is returned by operations on a closed WSClientImpl.
var ErrClientClosed = errors.New("websocket client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is the delay before the first reconnect attempt. It
	// doubles per failed attempt up to MaxReconnectDelay.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	SubscribeTimeout time.Duration

	// Commitment is the commitment level requested for subscriptions.
	Commitment string

	// OnError receives error responses and reconnect failures. Optional.
	OnError func(error)
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		Commitment:        CommitmentConfirmed,
	}
}

// subscription is one accountSubscribe stream. It survives reconnects;
// only its server-side id changes.
type subscription struct {
	key    string
	ch     chan AccountNotification
	id     int64 // 0 until confirmed
	listed bool  // in WSClientImpl.open
}

// pendingSub waits for the server to confirm a subscription request.
type pendingSub struct {
	sub   *subscription
	reply chan error
}

// WSClientImpl implements WSClient using gorilla/websocket.
// A single reader goroutine dispatches notifications and reconnects on read
// failure, resubscribing every open stream.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig

	// connMu serializes writes and guards conn replacement.
	connMu sync.Mutex
	conn   *websocket.Conn

	mu      sync.Mutex
	subs    map[int64]*subscription
	open    []*subscription
	pending map[uint64]*pendingSub

	requestID atomic.Uint64
	closed    atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewWSClient connects to endpoint. A nil config uses DefaultWSConfig.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	defaults := DefaultWSConfig()
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = defaults.SubscribeTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaults.ReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = cfg.ReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.Commitment == "" {
		cfg.Commitment = CommitmentConfirmed
	}

	c := &WSClientImpl{
		endpoint: endpoint,
		config:   cfg,
		subs:     make(map[int64]*subscription),
		pending:  make(map[uint64]*pendingSub),
		done:     make(chan struct{}),
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn

	c.wg.Add(2)
	go c.readLoop(conn)
	go c.pingLoop()
	return c, nil
}

func (c *WSClientImpl) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	// Pongs answer pingLoop and keep an idle subscription from timing out.
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})
	return conn, nil
}

// SubscribeAccount streams updates of one account. The channel is closed by Close.
func (c *WSClientImpl) SubscribeAccount(ctx context.Context, pubkey string) (<-chan AccountNotification, error) {
	sub := &subscription{key: pubkey, ch: make(chan AccountNotification, 1024)}
	if err := c.subscribe(ctx, sub); err != nil {
		c.forget(sub)
		return nil, err
	}
	return sub.ch, nil
}

// forget drops a subscription whose confirmation the caller gave up on.
func (c *WSClientImpl) forget(sub *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !sub.listed {
		return
	}
	for i, s := range c.open {
		if s == sub {
			c.open = append(c.open[:i], c.open[i+1:]...)
			break
		}
	}
	sub.listed = false
}

// subscribe sends accountSubscribe for sub and waits until the reader has
// installed the confirmed id.
func (c *WSClientImpl) subscribe(ctx context.Context, sub *subscription) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	reqID := c.requestID.Add(1)
	p := &pendingSub{sub: sub, reply: make(chan error, 1)}
	c.mu.Lock()
	c.pending[reqID] = p
	c.mu.Unlock()

	abandon := func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		if sub.id != 0 && c.subs[sub.id] == sub {
			delete(c.subs, sub.id)
		}
		c.mu.Unlock()
	}

	err := c.writeJSON(wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "accountSubscribe",
		Params: []interface{}{
			sub.key,
			map[string]string{"encoding": "base64", "commitment": c.config.Commitment},
		},
	})
	if err != nil {
		abandon()
		return fmt.Errorf("write subscribe: %w", err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case err := <-p.reply:
		return err
	case <-timer.C:
		abandon()
		return fmt.Errorf("subscribe %s: no confirmation after %s", sub.key, c.config.SubscribeTimeout)
	case <-ctx.Done():
		abandon()
		return ctx.Err()
	case <-c.done:
		return ErrClientClosed
	}
}

func (c *WSClientImpl) writeJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// Close closes the connection and every subscription channel. It is idempotent.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
	}
	c.connMu.Unlock()

	// The reader must be gone before channels close so no send races a close.
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.open {
		close(sub.ch)
	}
	c.open = nil
	c.subs = map[int64]*subscription{}
	for id, p := range c.pending {
		p.reply <- ErrClientClosed
		delete(c.pending, id)
	}
	return nil
}

func (c *WSClientImpl) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err == nil {
			c.handleMessage(message)
			continue
		}
		if c.closed.Load() {
			return
		}

		conn = c.reconnect()
		if conn == nil {
			return
		}
	}
}

// reconnect dials until it succeeds or the client closes, then resubscribes
// in the background. Returns nil once closed.
func (c *WSClientImpl) reconnect() *websocket.Conn {
	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	delay := c.config.ReconnectDelay
	for {
		select {
		case <-c.done:
			return nil
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.reportError(fmt.Errorf("reconnect: %w", err))
			delay *= 2
			if delay > c.config.MaxReconnectDelay {
				delay = c.config.MaxReconnectDelay
			}
			continue
		}

		c.connMu.Lock()
		if c.closed.Load() {
			c.connMu.Unlock()
			_ = conn.Close()
			return nil
		}
		c.conn = conn
		c.connMu.Unlock()

		c.wg.Add(1)
		go c.resubscribeAll()
		return conn
	}
}

// resubscribeAll renews every open subscription on the new connection.
// Old server-side ids are dropped first; they mean nothing to the new server.
func (c *WSClientImpl) resubscribeAll() {
	defer c.wg.Done()

	c.mu.Lock()
	open := append([]*subscription(nil), c.open...)
	for _, sub := range open {
		delete(c.subs, sub.id)
		sub.id = 0
	}
	c.mu.Unlock()

	for _, sub := range open {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.SubscribeTimeout)
		err := c.subscribe(ctx, sub)
		cancel()
		if errors.Is(err, ErrClientClosed) {
			return
		}
		if err != nil {
			c.reportError(fmt.Errorf("resubscribe %s: %w", sub.key, err))
		}
	}
}

func (c *WSClientImpl) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.reportError(fmt.Errorf("decode websocket message: %w", err))
		return
	}

	switch {
	case msg.Method == "accountNotification" && msg.Params != nil:
		c.dispatch(msg.Params)
	case msg.Error != nil:
		c.reportError(msg.Error)
		c.confirm(msg.ID, 0, msg.Error)
	case msg.ID != 0 && len(msg.Result) > 0:
		var subID int64
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			c.confirm(msg.ID, 0, fmt.Errorf("decode subscription id: %w", err))
			return
		}
		c.confirm(msg.ID, subID, nil)
	}
}

// confirm resolves the pending request reqID, installing the subscription on success.
func (c *WSClientImpl) confirm(reqID uint64, subID int64, err error) {
	c.mu.Lock()
	p, ok := c.pending[reqID]
	if ok {
		delete(c.pending, reqID)
		if err == nil {
			p.sub.id = subID
			c.subs[subID] = p.sub
			// Listed by the reader so a reconnect that follows always sees it.
			if !p.sub.listed {
				p.sub.listed = true
				c.open = append(c.open, p.sub)
			}
		}
	}
	c.mu.Unlock()

	if ok {
		p.reply <- err
	}
}

// dispatch delivers a notification, blocking until the subscriber reads it or the client closes.
func (c *WSClientImpl) dispatch(params *wsNotificationParams) {
	c.mu.Lock()
	sub, ok := c.subs[params.Subscription]
	c.mu.Unlock()
	if !ok {
		return
	}

	update := AccountNotification{
		Pubkey:  sub.key,
		Account: params.Result.Value.info(),
	}
	if params.Result.Context != nil {
		update.Slot = params.Result.Context.Slot
	}

	select {
	case sub.ch <- update:
	case <-c.done:
	}
}

func (c *WSClientImpl) reportError(err error) {
	if c.config.OnError != nil {
		c.config.OnError(err)
	}
}

// pingLoop keeps the connection alive. A failed ping surfaces as a read
// error, which triggers the reconnect.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsMessage is any server frame: a response (ID with Result or Error) or a notification.
type wsMessage struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      uint64                `json:"id,omitempty"`
	Result  json.RawMessage       `json:"result,omitempty"`
	Error   *RPCError             `json:"error,omitempty"`
	Method  string                `json:"method,omitempty"`
	Params  *wsNotificationParams `json:"params,omitempty"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext    `json:"context"`
	Value   *accountValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

var _ WSClient = (*WSClientImpl)(nil)
