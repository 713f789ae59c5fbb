package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Venue is the connector to a trading venue for a single account.
//
// PlaceLimitOrder fails with ErrOrderRejected when the venue refuses the
// order (for example below its minimum size) and with ErrTransientVenue on
// timeouts and rate limits. CancelOrder returns false, without error, when
// the order was already filled before the cancel landed.
type Venue interface {
	Name() string
	OpenOrders(ctx context.Context, market string) ([]Order, error)
	PlaceLimitOrder(ctx context.Context, market string, side Side, amount, price decimal.Decimal) (Order, error)
	CancelOrder(ctx context.Context, market, orderID string) (bool, error)
	TradeHistory(ctx context.Context, market string) ([]Trade, error)
	LastPrice(ctx context.Context, market string) (decimal.Decimal, error)
	Balances(ctx context.Context) (map[string]Balance, error)
}

type clientOrderIDKey struct{}

// WithClientOrderID attaches id to the placement made with ctx. Venues that
// support client order ids send it and echo it in Order.ClientID.
func WithClientOrderID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientOrderIDKey{}, id)
}

// ClientOrderID returns the id set by WithClientOrderID, or "".
func ClientOrderID(ctx context.Context) string {
	id, _ := ctx.Value(clientOrderIDKey{}).(string)
	return id
}
