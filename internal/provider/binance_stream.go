package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	EventKline  = "kline"
	EventTicker = "ticker"

	defaultStreamURL      = "wss://stream.binance.com:9443"
	defaultStreamInterval = "5m"
	defaultReconnectDelay = 5 * time.Second
	defaultPingInterval   = 3 * time.Minute
)

var ErrAlreadySubscribed = errors.New("stream already subscribed")

// StreamHandler receives the data payload of one combined-stream frame.
// event is EventKline or EventTicker.
type StreamHandler func(event string, payload []byte)

type BinanceStreamConfig struct {
	URL            string
	Interval       string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// BinanceStream subscribes to the kline and 24h ticker streams of a symbol set
// over one combined websocket connection and reconnects until unsubscribed.
type BinanceStream struct {
	cfg    BinanceStreamConfig
	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

func NewBinanceStream(cfg BinanceStreamConfig) *BinanceStream {
	if cfg.URL == "" {
		cfg.URL = defaultStreamURL
	}
	if cfg.Interval == "" {
		cfg.Interval = defaultStreamInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &BinanceStream{cfg: cfg, dialer: websocket.DefaultDialer}
}

// StreamURL returns the combined-stream endpoint for symbols.
func (s *BinanceStream) StreamURL(symbols []string) string {
	names := make([]string, 0, len(symbols)*2)
	for _, sym := range symbols {
		lower := strings.ToLower(sym)
		names = append(names, lower+"@kline_"+s.cfg.Interval, lower+"@ticker")
	}
	return s.cfg.URL + "/stream?streams=" + strings.Join(names, "/")
}

// Subscribe dials synchronously so connection errors reach the caller, then
// reads in the background until ctx is done or Unsubscribe is called.
func (s *BinanceStream) Subscribe(ctx context.Context, symbols []string, handler StreamHandler) error {
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols to subscribe")
	}
	if handler == nil {
		return fmt.Errorf("nil stream handler")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadySubscribed
	}

	conn, err := s.dial(ctx, symbols)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.conn = conn
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, conn, symbols, handler, s.done)

	log.Printf("binance stream: subscribed %d symbols", len(symbols))
	return nil
}

// Unsubscribe stops the read loop and waits for it to exit. It is a no-op
// when nothing is subscribed.
func (s *BinanceStream) Unsubscribe() error {
	s.mu.Lock()
	cancel, done, conn := s.cancel, s.done, s.conn
	s.cancel, s.done, s.conn = nil, nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-done
	log.Printf("binance stream: unsubscribed")
	return nil
}

func (s *BinanceStream) dial(ctx context.Context, symbols []string) (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.StreamURL(symbols), nil)
	if err != nil {
		return nil, fmt.Errorf("binance stream connect: %w", err)
	}
	return conn, nil
}

func (s *BinanceStream) run(ctx context.Context, conn *websocket.Conn, symbols []string, handler StreamHandler, done chan struct{}) {
	defer close(done)

	for {
		if conn != nil {
			err := s.readLoop(ctx, conn, handler)
			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			log.Printf("binance stream: read failed: %v; reconnecting in %s", err, s.cfg.ReconnectDelay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectDelay):
		}

		next, err := s.dial(ctx, symbols)
		if err != nil {
			log.Printf("binance stream: %v", err)
			conn = nil
			continue
		}
		s.mu.Lock()
		if s.done == done {
			s.conn = next
		}
		s.mu.Unlock()
		conn = next
		log.Printf("binance stream: reconnected")
	}
}

type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

func (s *BinanceStream) readLoop(ctx context.Context, conn *websocket.Conn, handler StreamHandler) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-stop:
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frame combinedFrame
		if err := json.Unmarshal(msg, &frame); err != nil || len(frame.Data) == 0 {
			continue
		}
		event := eventForStream(frame.Stream)
		if event == "" {
			continue
		}
		handler(event, frame.Data)
	}
}

func eventForStream(name string) string {
	switch {
	case strings.Contains(name, "@kline_"):
		return EventKline
	case strings.HasSuffix(name, "@ticker"):
		return EventTicker
	default:
		return ""
	}
}
