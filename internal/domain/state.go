package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderEventKind classifies an order-event log line.
type OrderEventKind string

const (
	EventPlaced    OrderEventKind = "placed"
	EventConsumed  OrderEventKind = "consumed"
	EventCancelled OrderEventKind = "cancelled"
)

// OrderEvent is one line of the append-only order-event log.
type OrderEvent struct {
	Market    string          `json:"market"`
	Event     OrderEventKind  `json:"event"`
	Side      Side            `json:"side"`
	OrderID   string          `json:"order_id"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp int64           `json:"timestamp"`
	Datetime  string          `json:"datetime"`
}

// NewOrderEvent stamps an event for o at the given time.
func NewOrderEvent(market string, kind OrderEventKind, o Order, amount decimal.Decimal, at time.Time) OrderEvent {
	at = at.UTC()
	return OrderEvent{
		Market:    market,
		Event:     kind,
		Side:      o.Side,
		OrderID:   o.ID,
		Price:     o.Price,
		Amount:    amount,
		Timestamp: at.UnixMilli(),
		Datetime:  at.Format(DateLayout),
	}
}

// ParamsRecord is the persisted strategy parameter set. Numeric fields are
// written as decimal strings so reloading never goes through floats.
type ParamsRecord struct {
	Datetime        string          `json:"datetime"`
	Marketplace     string          `json:"marketplace"`
	Market          string          `json:"market"`
	RangeBot        decimal.Decimal `json:"range_bot"`
	RangeTop        decimal.Decimal `json:"range_top"`
	SpreadBot       decimal.Decimal `json:"spread_bot"`
	SpreadTop       decimal.Decimal `json:"spread_top"`
	IncrementCoef   decimal.Decimal `json:"increment_coef"`
	Amount          decimal.Decimal `json:"amount"`
	StopAtBot       bool            `json:"stop_at_bot"`
	StopAtTop       bool            `json:"stop_at_top"`
	NbBuyToDisplay  int             `json:"nb_buy_to_display,string"`
	NbSellToDisplay int             `json:"nb_sell_to_display,string"`
	ProfitsAlloc    decimal.Decimal `json:"profits_alloc"`
}

// IntervalState is the serialized form of one ladder interval.
type IntervalState struct {
	Bottom decimal.Decimal `json:"bottom"`
	Top    decimal.Decimal `json:"top"`
	Buys   []Order         `json:"buys"`
	Sells  []Order         `json:"sells"`
}

// LadderSnapshot is the full in-memory strategy state written after every
// cycle and read back on restart.
type LadderSnapshot struct {
	Market          string            `json:"market"`
	Marketplace     string            `json:"marketplace"`
	SavedAt         time.Time         `json:"saved_at"`
	Intervals       []IntervalState   `json:"intervals"`
	SafetyBuy       *Order            `json:"safety_buy,omitempty"`
	SafetySell      *Order            `json:"safety_sell,omitempty"`
	RemainingBuy    decimal.Decimal   `json:"remaining_buy"`
	RemainingSell   decimal.Decimal   `json:"remaining_sell"`
	SpreadBot       int               `json:"spread_bot"`
	SpreadTop       int               `json:"spread_top"`
	Benefits        []decimal.Decimal `json:"benefits,omitempty"`
	ProcessedEvents []string          `json:"processed_events,omitempty"`
	// StopEdge is set while a boundary stop is still cancelling orders.
	StopEdge string `json:"stop_edge,omitempty"`
}

// CycleReport summarises one reconciliation cycle.
type CycleReport struct {
	ID            string          `json:"id"`
	Market        string          `json:"market"`
	StartedAt     time.Time       `json:"started_at"`
	Duration      time.Duration   `json:"duration"`
	Fetched       int             `json:"fetched"`
	Foreign       int             `json:"foreign"`
	ConsumedBuy   decimal.Decimal `json:"consumed_buy"`
	ConsumedSell  decimal.Decimal `json:"consumed_sell"`
	OpenedBuy     decimal.Decimal `json:"opened_buy"`
	OpenedSell    decimal.Decimal `json:"opened_sell"`
	Placed        int             `json:"placed"`
	Cancelled     int             `json:"cancelled"`
	RemainingBuy  decimal.Decimal `json:"remaining_buy"`
	RemainingSell decimal.Decimal `json:"remaining_sell"`
	SpreadBot     int             `json:"spread_bot"`
	SpreadTop     int             `json:"spread_top"`
	BuyIntervals  int             `json:"buy_intervals"`
	SellIntervals int             `json:"sell_intervals"`
	Boundary      string          `json:"boundary,omitempty"`
	NoOp          bool            `json:"noop"`
	Err           string          `json:"error,omitempty"`
	Events        []OrderEvent    `json:"events,omitempty"`
}
