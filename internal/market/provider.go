package market

import "context"

// DataProvider abstracts the market data feed. The live coordinator talks to
// a broker-backed implementation; tests use an in-memory fake.
type DataProvider interface {
	// FetchCandles returns up to limit most recent bars for the symbol at the
	// given timeframe, ordered by open time ascending.
	FetchCandles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error)

	// FetchQuote returns the current price snapshot for the symbol.
	FetchQuote(ctx context.Context, symbol string) (*Quote, error)
}
