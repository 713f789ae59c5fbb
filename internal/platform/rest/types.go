package rest

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

// APIOrder is an order as returned by the venue.
type APIOrder struct {
	ID        string          `json:"id"`
	Market    string          `json:"market"`
	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Remaining decimal.Decimal `json:"remaining"`
	Status    string          `json:"status,omitempty"`
	Timestamp int64           `json:"timestamp"`
	ClientID  string          `json:"client_order_id,omitempty"`
}

// ToDomainOrder converts the DTO, using the remaining amount when the venue
// reports one.
func (a APIOrder) ToDomainOrder(feeCoef decimal.Decimal) domain.Order {
	amount := a.Amount
	if !a.Remaining.IsZero() {
		amount = a.Remaining
	}
	at := time.UnixMilli(a.Timestamp)
	if a.Timestamp == 0 {
		at = time.Now()
	}
	o := domain.NewOrder(a.ID, parseSide(a.Side), a.Price, amount, feeCoef, at)
	o.ClientID = a.ClientID
	return o
}

// APITrade is one fill.
type APITrade struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	Timestamp int64           `json:"timestamp"`
}

func (a APITrade) ToDomainTrade() domain.Trade {
	return domain.Trade{
		ID:        a.ID,
		OrderID:   a.OrderID,
		Side:      parseSide(a.Side),
		Price:     a.Price,
		Amount:    a.Amount,
		Fee:       a.Fee,
		Timestamp: a.Timestamp,
	}
}

type apiTicker struct {
	Market string          `json:"market"`
	Last   decimal.Decimal `json:"last"`
}

type apiBalance struct {
	Free  decimal.Decimal `json:"free"`
	Used  decimal.Decimal `json:"used"`
	Total decimal.Decimal `json:"total"`
}

type placeRequest struct {
	Market string `json:"market"`
	Side   string `json:"side"`
	Type   string `json:"type"`
	Amount string `json:"amount"`
	Price  string `json:"price"`
	// ClientOrderID lets a retried placement be recognised on the book.
	ClientOrderID string `json:"client_order_id,omitempty"`
}

type cancelResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"error,omitempty"`
}

func parseSide(s string) domain.Side {
	if strings.EqualFold(s, "sell") || strings.EqualFold(s, "ask") {
		return domain.SideSell
	}
	return domain.SideBuy
}
