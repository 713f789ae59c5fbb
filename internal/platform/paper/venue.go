// Package paper is an in-process simulated venue. Orders rest in memory and
// fill when the simulated price crosses them. It backs paper mode and the
// strategy tests.
package paper

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/fixed"
)

// Config seeds the simulation.
type Config struct {
	Market         string
	MinOrderAmount decimal.Decimal
	StartPrice     decimal.Decimal
	BaseBalance    decimal.Decimal
	QuoteBalance   decimal.Decimal
	// Volatility is the largest relative price move per OpenOrders call.
	// Zero keeps the price still.
	Volatility decimal.Decimal
	Seed       uint64
}

type restingOrder struct {
	domain.Order
	market string
}

// Venue implements domain.Venue in memory. It is safe for concurrent use.
type Venue struct {
	mu       sync.Mutex
	cfg      Config
	base     string
	quote    string
	price    decimal.Decimal
	orders   map[string]*restingOrder
	trades   []domain.Trade
	balances map[string]*domain.Balance
	rng      *rand.Rand
	now      func() time.Time
}

// New returns a paper venue for cfg.Market ("BASE/QUOTE" or "BASE-QUOTE").
func New(cfg Config) (*Venue, error) {
	base, quote, err := SplitMarket(cfg.Market)
	if err != nil {
		return nil, err
	}
	if !fixed.Positive(cfg.StartPrice) {
		return nil, domain.NewConfigurationError("paper.start_price", "must be > 0, got %s", cfg.StartPrice)
	}
	v := &Venue{
		cfg:    cfg,
		base:   base,
		quote:  quote,
		price:  fixed.Quantize(cfg.StartPrice),
		orders: make(map[string]*restingOrder),
		balances: map[string]*domain.Balance{
			base:  {Free: cfg.BaseBalance, Used: decimal.Zero, Total: cfg.BaseBalance},
			quote: {Free: cfg.QuoteBalance, Used: decimal.Zero, Total: cfg.QuoteBalance},
		},
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		now: time.Now,
	}
	return v, nil
}

// SplitMarket splits "BASE/QUOTE" or "BASE-QUOTE".
func SplitMarket(market string) (string, string, error) {
	for _, sep := range []string{"/", "-", "_"} {
		if parts := strings.Split(market, sep); len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return strings.ToUpper(parts[0]), strings.ToUpper(parts[1]), nil
		}
	}
	return "", "", domain.NewConfigurationError("market", "%q is not BASE/QUOTE", market)
}

func (v *Venue) Name() string { return "paper" }

// SetClock replaces the time source.
func (v *Venue) SetClock(now func() time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = now
}

// OpenOrders advances the random walk, fills crossed orders and returns
// the remaining resting orders of market, lowest price first.
func (v *Venue) OpenOrders(_ context.Context, market string) ([]domain.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cfg.Volatility.Sign() > 0 {
		move := decimal.NewFromFloat(2*v.rng.Float64() - 1).Mul(v.cfg.Volatility)
		next := fixed.Mul(v.price, decimal.NewFromInt(1).Add(move))
		if next.Sign() > 0 {
			v.price = next
		}
	}
	v.matchLocked()

	out := make([]domain.Order, 0, len(v.orders))
	for _, o := range v.orders {
		if o.market == market {
			out = append(out, o.Order)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price.Equal(out[j].Price) {
			return out[i].ID < out[j].ID
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out, nil
}

func (v *Venue) PlaceLimitOrder(ctx context.Context, market string, side domain.Side, amount, price decimal.Decimal) (domain.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if market != v.cfg.Market {
		return domain.Order{}, fmt.Errorf("paper: %w: unknown market %q", domain.ErrOrderRejected, market)
	}
	if !side.Valid() {
		return domain.Order{}, fmt.Errorf("paper: %w: side %q", domain.ErrOrderRejected, side)
	}
	if !fixed.Positive(price) {
		return domain.Order{}, fmt.Errorf("paper: %w: price %s", domain.ErrOrderRejected, price)
	}
	if amount.LessThan(v.cfg.MinOrderAmount) || !fixed.Positive(amount) {
		return domain.Order{}, fmt.Errorf("paper: %w: amount %s below minimum %s", domain.ErrOrderRejected, amount, v.cfg.MinOrderAmount)
	}

	asset, need := v.base, amount
	if side == domain.SideBuy {
		asset, need = v.quote, fixed.Mul(amount, price)
	}
	bal := v.balances[asset]
	if bal.Free.LessThan(need) {
		return domain.Order{}, fmt.Errorf("paper: %w: insufficient %s (%s < %s)", domain.ErrOrderRejected, asset, bal.Free, need)
	}
	bal.Free = bal.Free.Sub(need)
	bal.Used = bal.Used.Add(need)

	o := domain.NewOrder(uuid.NewString(), side, price, amount, decimal.NewFromInt(1), v.now())
	o.ClientID = domain.ClientOrderID(ctx)
	v.orders[o.ID] = &restingOrder{Order: o, market: market}
	return o, nil
}

// CancelOrder releases the funds of a resting order. An unknown id is
// treated as already filled.
func (v *Venue) CancelOrder(_ context.Context, market, orderID string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	o, ok := v.orders[orderID]
	if !ok || o.market != market {
		return false, nil
	}
	delete(v.orders, orderID)
	asset, locked := v.base, o.Amount
	if o.Side == domain.SideBuy {
		asset, locked = v.quote, fixed.Mul(o.Amount, o.Price)
	}
	bal := v.balances[asset]
	bal.Used = bal.Used.Sub(locked)
	bal.Free = bal.Free.Add(locked)
	return true, nil
}

func (v *Venue) TradeHistory(_ context.Context, _ string) ([]domain.Trade, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.Trade(nil), v.trades...), nil
}

func (v *Venue) LastPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.price, nil
}

func (v *Venue) Balances(_ context.Context) (map[string]domain.Balance, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]domain.Balance, len(v.balances))
	for k, b := range v.balances {
		out[k] = *b
	}
	return out, nil
}

// SetPrice moves the simulated price and fills every crossed order.
func (v *Venue) SetPrice(price decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.price = fixed.Quantize(price)
	v.matchLocked()
}

// Fill executes amount of a resting order at its own price, as if a taker
// had hit it. A fill of the whole remaining amount removes the order.
func (v *Venue) Fill(orderID string, amount decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[orderID]
	if !ok {
		return fmt.Errorf("paper: fill %s: %w", orderID, domain.ErrNotFound)
	}
	v.fillLocked(o, fixed.Min(amount, o.Amount))
	return nil
}

// Order returns a resting order by id.
func (v *Venue) Order(orderID string) (domain.Order, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[orderID]
	if !ok {
		return domain.Order{}, false
	}
	return o.Order, true
}

func (v *Venue) matchLocked() {
	for _, o := range v.orders {
		crossed := (o.Side == domain.SideBuy && o.Price.GreaterThanOrEqual(v.price)) ||
			(o.Side == domain.SideSell && o.Price.LessThanOrEqual(v.price))
		if crossed {
			v.fillLocked(o, o.Amount)
		}
	}
}

func (v *Venue) fillLocked(o *restingOrder, amount decimal.Decimal) {
	if amount.Sign() <= 0 {
		return
	}
	cost := fixed.Mul(amount, o.Price)
	base, quote := v.balances[v.base], v.balances[v.quote]
	if o.Side == domain.SideBuy {
		quote.Used = quote.Used.Sub(cost)
		quote.Total = quote.Total.Sub(cost)
		base.Free = base.Free.Add(amount)
		base.Total = base.Total.Add(amount)
	} else {
		base.Used = base.Used.Sub(amount)
		base.Total = base.Total.Sub(amount)
		quote.Free = quote.Free.Add(cost)
		quote.Total = quote.Total.Add(cost)
	}

	v.trades = append(v.trades, domain.Trade{
		ID:        uuid.NewString(),
		OrderID:   o.ID,
		Side:      o.Side,
		Price:     o.Price,
		Amount:    amount,
		Fee:       decimal.Zero,
		Timestamp: v.now().UnixMilli(),
	})

	left := o.Amount.Sub(amount)
	if left.Sign() <= 0 {
		delete(v.orders, o.ID)
		return
	}
	o.Order = o.Order.WithAmount(left, decimal.NewFromInt(1))
}
