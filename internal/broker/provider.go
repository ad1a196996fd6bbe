package broker

import (
	"context"

	"sweep-trading-bot/internal/market"
)

// StreamingProvider serves candles over REST and quotes from the websocket
// cache when one is fresh, falling back to REST otherwise.
type StreamingProvider struct {
	client *Client
	stream *QuoteStream
}

// NewStreamingProvider wraps a REST client with an optional quote stream.
// stream may be nil.
func NewStreamingProvider(client *Client, stream *QuoteStream) *StreamingProvider {
	return &StreamingProvider{client: client, stream: stream}
}

var _ market.DataProvider = (*StreamingProvider)(nil)

func (p *StreamingProvider) FetchCandles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	return p.client.FetchCandles(ctx, symbol, tf, limit)
}

func (p *StreamingProvider) FetchQuote(ctx context.Context, symbol string) (*market.Quote, error) {
	if p.stream != nil {
		if q, ok := p.stream.Latest(symbol); ok {
			return &q, nil
		}
	}
	return p.client.FetchQuote(ctx, symbol)
}
