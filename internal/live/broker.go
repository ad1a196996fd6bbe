package live

import (
	"context"

	"sweep-trading-bot/internal/plan"
)

// Position is a broker-reported open position.
type Position struct {
	DealID     string  `json:"dealId"`
	Side       string  `json:"side"` // BUY or SELL
	EntryPrice float64 `json:"entryPrice"`
	Size       float64 `json:"size"`
}

// OrderResult is the broker's answer to a placed order.
type OrderResult struct {
	Accepted      bool   `json:"accepted"`
	BrokerOrderID string `json:"brokerOrderId"`
	Reason        string `json:"reason,omitempty"`
}

// Broker is the order execution boundary.
type Broker interface {
	PlaceOrder(ctx context.Context, p *plan.Plan) (*OrderResult, error)
	ListOpenPositions(ctx context.Context, symbol string) ([]Position, error)
}
