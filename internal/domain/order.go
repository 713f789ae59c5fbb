package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/fixed"
)

// Side indicates whether an order buys or sells the base asset.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Sentinel ids for placeholder orders that only exist in local bookkeeping.
const (
	FakeBuyID  = "FB"
	FakeSellID = "FS"
)

// DateLayout is the layout used for Order.Date and event datetimes.
const DateLayout = "2006-01-02 15:04:05"

// Order is a resting limit order. Value is always derived from price,
// amount and the fee coefficient; never set it directly.
type Order struct {
	ID        string          `json:"id"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Value     decimal.Decimal `json:"value"`
	Timestamp int64           `json:"timestamp"`
	Date      string          `json:"date"`
	// ClientID is the caller's id echoed by venues that support one.
	ClientID string `json:"client_id,omitempty"`
}

// NewOrder builds an order with its derived value.
func NewOrder(id string, side Side, price, amount, feeCoef decimal.Decimal, at time.Time) Order {
	at = at.UTC()
	return Order{
		ID:        id,
		Side:      side,
		Price:     fixed.Quantize(price),
		Amount:    fixed.Quantize(amount),
		Value:     OrderValue(price, amount, feeCoef),
		Timestamp: at.UnixMilli(),
		Date:      at.Format(DateLayout),
	}
}

// NewFakeOrder builds the zero-amount placeholder kept at a range boundary.
func NewFakeOrder(side Side, price decimal.Decimal, at time.Time) Order {
	id := FakeBuyID
	if side == SideSell {
		id = FakeSellID
	}
	return NewOrder(id, side, price, decimal.Zero, decimal.NewFromInt(1), at)
}

// OrderValue is price × amount × feeCoef, quantized at each step.
func OrderValue(price, amount, feeCoef decimal.Decimal) decimal.Decimal {
	return fixed.Mul(fixed.Mul(price, amount), feeCoef)
}

// IsFake reports whether o is a boundary placeholder.
func (o Order) IsFake() bool {
	return o.ID == FakeBuyID || o.ID == FakeSellID
}

// WithAmount returns a copy of o with a new remaining amount and the value
// re-derived from it.
func (o Order) WithAmount(amount, feeCoef decimal.Decimal) Order {
	o.Amount = fixed.Quantize(amount)
	o.Value = OrderValue(o.Price, o.Amount, feeCoef)
	return o
}

// Same reports whether two orders describe the same resting state.
func (o Order) Same(other Order) bool {
	return o.ID == other.ID &&
		o.Side == other.Side &&
		o.Price.Equal(other.Price) &&
		o.Amount.Equal(other.Amount)
}

// Trade is one execution reported by the venue.
type Trade struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	Timestamp int64           `json:"timestamp"`
}

// Balance is the venue balance of one asset.
type Balance struct {
	Free  decimal.Decimal `json:"free"`
	Used  decimal.Decimal `json:"used"`
	Total decimal.Decimal `json:"total"`
}
