package broker

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"sweep-trading-bot/internal/market"
)

const (
	streamReadTimeout   = 90 * time.Second
	streamReconnectWait = 5 * time.Second
)

// QuoteStream consumes the gateway's websocket quote feed and caches the
// latest quote per symbol. The coordinator falls back to REST when the
// stream has no fresh quote.
type QuoteStream struct {
	mu sync.RWMutex

	streamURL string
	apiKey    string
	symbols   []string
	quotes    map[string]market.Quote
	log       zerolog.Logger

	wsConn    *websocket.Conn
	isRunning bool
	stopChan  chan struct{}
}

type quoteEvent struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Bid       float64 `json:"bid"`
	Offer     float64 `json:"offer"`
	UpdatedAt int64   `json:"updatedAt"`
}

// NewQuoteStream creates a stream for the given symbols. Call Start to
// connect.
func NewQuoteStream(streamURL, apiKey string, symbols []string, log zerolog.Logger) *QuoteStream {
	return &QuoteStream{
		streamURL: streamURL,
		apiKey:    apiKey,
		symbols:   symbols,
		quotes:    make(map[string]market.Quote),
		log:       log.With().Str("component", "quote_stream").Logger(),
	}
}

// Start connects and launches the read loop. Reconnects happen in the
// background until Stop is called.
func (s *QuoteStream) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	if err := s.connect(); err != nil {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
	go s.readLoop()
	return nil
}

// Stop closes the connection and halts reconnects.
func (s *QuoteStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	s.isRunning = false
	close(s.stopChan)
	if s.wsConn != nil {
		s.wsConn.Close()
		s.wsConn = nil
	}
}

// Latest returns the cached quote for a symbol and whether one exists.
func (s *QuoteStream) Latest(symbol string) (market.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	return q, ok
}

func (s *QuoteStream) connect() error {
	u, err := url.Parse(s.streamURL)
	if err != nil {
		return fmt.Errorf("invalid stream url: %w", err)
	}
	q := u.Query()
	q.Set("symbols", strings.Join(s.symbols, ","))
	q.Set("apiKey", s.apiKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial quote stream: %w", err)
	}

	s.mu.Lock()
	s.wsConn = conn
	s.mu.Unlock()
	s.log.Info().Strs("symbols", s.symbols).Msg("quote stream connected")
	return nil
}

func (s *QuoteStream) readLoop() {
	for {
		s.mu.RLock()
		conn := s.wsConn
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}
		if conn == nil {
			if !s.reconnect() {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.log.Warn().Err(err).Msg("quote stream read failed")
			s.mu.Lock()
			if s.wsConn != nil {
				s.wsConn.Close()
				s.wsConn = nil
			}
			s.mu.Unlock()
			continue
		}

		var ev quoteEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.log.Debug().Err(err).Msg("skipping malformed quote event")
			continue
		}
		if ev.Symbol == "" || ev.Price <= 0 {
			continue
		}

		s.mu.Lock()
		s.quotes[ev.Symbol] = market.Quote{
			Price:     ev.Price,
			Bid:       ev.Bid,
			Offer:     ev.Offer,
			UpdatedAt: ev.UpdatedAt,
		}
		s.mu.Unlock()
	}
}

// reconnect waits and redials until success or Stop. Returns false when the
// stream was stopped.
func (s *QuoteStream) reconnect() bool {
	for {
		select {
		case <-s.stopChan:
			return false
		case <-time.After(streamReconnectWait):
		}
		if err := s.connect(); err != nil {
			s.log.Warn().Err(err).Msg("quote stream reconnect failed")
			continue
		}
		return true
	}
}
