package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/tradepulse/pkg/config"
	"github.com/wonny/tradepulse/pkg/logger"
)

// Timing
const (
	PingInterval          = 30 * time.Second
	ReconnectInitialDelay = 1 * time.Second
	ReconnectMaxDelay     = 30 * time.Second
)

// ErrNoAPIKey is returned by Run when no token is configured
var ErrNoAPIKey = errors.New("finnhub api key not configured")

// Trade is one execution from the trade stream
type Trade struct {
	Symbol string
	Price  float64
	Volume float64
	Time   time.Time
}

type wsTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type wsMessage struct {
	Type string    `json:"type"`
	Data []wsTrade `json:"data"`
	Msg  string    `json:"msg"`
}

// Client streams trades from the Finnhub websocket
// ⭐ SSOT: Finnhub 실시간 체결 스트림은 이 클라이언트에서만
type Client struct {
	apiKey  string
	wsURL   string
	symbols []string
	logger  *logger.Logger

	reconnectDelay time.Duration
	maxDelay       time.Duration
	pingInterval   time.Duration

	onTrade func(Trade)

	connMu    sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// NewClient creates a new trade stream client
func NewClient(cfg config.FinnhubConfig, log *logger.Logger) *Client {
	return &Client{
		apiKey:         cfg.APIKey,
		wsURL:          cfg.WSURL,
		symbols:        cfg.Symbols,
		logger:         log.WithComponent("finnhub"),
		reconnectDelay: ReconnectInitialDelay,
		maxDelay:       ReconnectMaxDelay,
		pingInterval:   PingInterval,
	}
}

// OnTrade sets the trade callback. Must be called before Run.
func (c *Client) OnTrade(fn func(Trade)) { c.onTrade = fn }

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connected
}

// Run connects, subscribes and reads until ctx is cancelled, reconnecting with backoff
func (c *Client) Run(ctx context.Context) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}

	delay := c.reconnectDelay
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			delay = c.reconnectDelay
		}

		c.logger.WithError(err).WithField("delay", delay).Warn("Finnhub stream dropped, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}
}

// session runs one connection until it fails or ctx ends. connected reports
// whether the handshake and subscriptions went through.
func (c *Client) session(ctx context.Context) (connected bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, fmt.Sprintf("%s?token=%s", c.wsURL, c.apiKey), nil)
	if err != nil {
		return false, fmt.Errorf("finnhub connect: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connected = true
	c.connMu.Unlock()

	defer func() {
		c.connMu.Lock()
		c.conn.Close()
		c.conn = nil
		c.connected = false
		c.connMu.Unlock()
	}()

	for _, s := range c.symbols {
		if err := c.write(map[string]string{"type": "subscribe", "symbol": s}); err != nil {
			return false, fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.logger.WithField("symbols", len(c.symbols)).Info("Finnhub stream connected")

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.pingLoop(sessionCtx)

	// Unblock ReadMessage when ctx ends
	go func() {
		<-sessionCtx.Done()
		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connMu.Unlock()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("finnhub read: %w", err)
		}

		trades, err := parseMessage(raw)
		if err != nil {
			c.logger.WithError(err).Debug("Skipping finnhub frame")
			continue
		}
		if c.onTrade == nil {
			continue
		}
		for _, t := range trades {
			c.onTrade(t)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.write(map[string]string{"type": "ping"}); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(v)
}

// parseMessage extracts trades from a frame. Pings yield no trades.
func parseMessage(raw []byte) ([]Trade, error) {
	var m wsMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch m.Type {
	case "trade":
	case "error":
		return nil, fmt.Errorf("finnhub error: %s", m.Msg)
	default:
		return nil, nil
	}

	trades := make([]Trade, 0, len(m.Data))
	for _, d := range m.Data {
		if d.S == "" || d.P <= 0 {
			continue
		}
		trades = append(trades, Trade{
			Symbol: d.S,
			Price:  d.P,
			Volume: d.V,
			Time:   time.UnixMilli(d.T).UTC(),
		})
	}
	return trades, nil
}
