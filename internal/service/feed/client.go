package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"RangePull/internal/domain/models"
	drepo "RangePull/internal/domain/repository"
	"RangePull/pkg/fixedpoint"
	"RangePull/pkg/timeutil"

	"github.com/gorilla/websocket"
)

// Client implements a MarketStream backed by a provider WebSocket feed.
// Raw frames are normalized at this boundary: prices and volumes become
// fixed-point values, timestamps become canonical microseconds. Malformed
// trades are dropped here so the core only ever sees well-formed input.
type Client struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	precision      timeutil.Precision
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool
	nextID    atomic.Int64
}

// New creates a new WebSocket MarketStream.
func New(apiKey, websocketURL string, symbols []string, precision timeutil.Precision, reconnectDelay, pingInterval time.Duration) drepo.MarketStream {
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		precision:      precision,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	log.Printf("feed: connected")
	return nil
}

// Subscribe subscribes to configured symbols.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("feed not connected")
	}
	for _, s := range c.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
		log.Printf("feed: subscribed %s", s)
	}
	return nil
}

type wsTrade struct {
	S    string  `json:"s"`
	P    float64 `json:"p"`
	V    float64 `json:"v"`
	T    int64   `json:"t"`
	Side string  `json:"side"`
}

type wsMessage struct {
	Type string    `json:"type"`
	Data []wsTrade `json:"data"`
}

// normalize converts one raw frame entry into a domain trade. Returns an
// error for values the core would reject anyway.
func (c *Client) normalize(d wsTrade) (*models.Trade, error) {
	price, err := fixedpoint.FromFloat(d.P)
	if err != nil {
		return nil, fmt.Errorf("price %v: %w", d.P, err)
	}
	volume, err := fixedpoint.FromFloat(d.V)
	if err != nil {
		return nil, fmt.Errorf("volume %v: %w", d.V, err)
	}
	ts, err := timeutil.Normalize(d.T, c.precision)
	if err != nil {
		return nil, err
	}
	return &models.Trade{
		ID:        c.nextID.Add(1),
		Symbol:    d.S,
		Price:     price,
		Volume:    volume,
		Timestamp: ts,
		Side:      models.ParseSide(d.Side),
	}, nil
}

// Read streams Trade events and errors.
func (c *Client) Read(ctx context.Context) (<-chan *models.Trade, <-chan error) {
	trades := make(chan *models.Trade, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(trades)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("feed conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("feed read: %w", err)
					return
				}
				var m wsMessage
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-trade frames
					continue
				}
				if m.Type != "trade" {
					continue
				}
				for _, d := range m.Data {
					trade, err := c.normalize(d)
					if err != nil {
						log.Printf("feed: dropped malformed trade %s: %v", d.S, err)
						continue
					}
					select {
					case trades <- trade:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return trades, errs
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected }
