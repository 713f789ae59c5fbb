package allocation

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/fixed"
)

// maxRememberedEvents bounds the idempotency set kept by Profit.
const maxRememberedEvents = 4096

var hundred = decimal.NewFromInt(100)

// BenefitTracker is implemented by policies that keep per-interval profit.
// Only these calls mutate policy state.
type BenefitTracker interface {
	ProfitPct() decimal.Decimal
	Benefit(index int) decimal.Decimal
	Benefits() []decimal.Decimal
	SetBenefit(index int, v decimal.Decimal) error
	// AddActualBenefit credits v to index once per eventID.
	AddActualBenefit(eventID string, index int, v decimal.Decimal) bool
	// ConsumeBenefit debits at most the current benefit of index once per
	// eventID and returns the amount actually debited.
	ConsumeBenefit(eventID string, index int, v decimal.Decimal) decimal.Decimal
	ProcessedEvents() []string
	Restore(benefits []decimal.Decimal, events []string) error
}

// SpreadBenefit is the part of a round trip kept as profit, in base units:
// amount × (1 − buyPrice/sellPrice) × pct/100.
func SpreadBenefit(amount, buyPrice, sellPrice, pct decimal.Decimal) decimal.Decimal {
	if sellPrice.Sign() <= 0 || buyPrice.GreaterThanOrEqual(sellPrice) || pct.Sign() <= 0 {
		return decimal.Zero
	}
	ratio := fixed.MustDiv(buyPrice, sellPrice)
	gain := fixed.Mul(amount, decimal.NewFromInt(1).Sub(ratio))
	return fixed.Mul(gain, fixed.MustDiv(pct, hundred))
}

// Profit holds a constant base amount per interval and reinvests realized
// spread. Benefit credited to a sell interval is kept as base instead of
// being sold again; benefit credited to a buy interval is bought on top of
// the consumed amount.
type Profit struct {
	amount decimal.Decimal
	pct    decimal.Decimal

	mu       sync.RWMutex
	benefits []decimal.Decimal
	seen     map[string]struct{}
	order    []string
}

// NewProfit returns a Profit policy over count intervals.
func NewProfit(amount, pct decimal.Decimal, count int) (*Profit, error) {
	if amount.Sign() <= 0 {
		return nil, domain.NewConfigurationError("amount", "must be > 0, got %s", amount)
	}
	if pct.Sign() < 0 || pct.GreaterThan(hundred) {
		return nil, domain.NewConfigurationError("profits_alloc", "must be within [0, 100], got %s", pct)
	}
	if count < 1 {
		return nil, domain.NewConfigurationError("allocation", "ladder has %d intervals", count)
	}
	p := &Profit{
		amount:   fixed.Quantize(amount),
		pct:      pct,
		benefits: make([]decimal.Decimal, count),
		seen:     make(map[string]struct{}),
	}
	for i := range p.benefits {
		p.benefits[i] = decimal.Zero
	}
	return p, nil
}

func (p *Profit) Kind() Kind { return KindProfit }

func (p *Profit) Amount(int, domain.Side) decimal.Decimal { return p.amount }

func (p *Profit) BuyToOpen(index int, consumed decimal.Decimal) decimal.Decimal {
	return consumed.Add(p.Benefit(index))
}

func (p *Profit) SellToOpen(index int, consumed decimal.Decimal) decimal.Decimal {
	return consumed.Sub(fixed.Min(p.Benefit(index), consumed))
}

func (p *Profit) ProfitPct() decimal.Decimal { return p.pct }

func (p *Profit) Benefit(index int) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if index < 0 || index >= len(p.benefits) {
		return decimal.Zero
	}
	return p.benefits[index]
}

func (p *Profit) Benefits() []decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]decimal.Decimal(nil), p.benefits...)
}

func (p *Profit) SetBenefit(index int, v decimal.Decimal) error {
	if v.Sign() < 0 {
		return domain.NewInvariantError("benefit_non_negative", "benefit %s at %d", v, index)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.benefits) {
		return domain.NewInvariantError("benefit_index", "index %d outside [0, %d)", index, len(p.benefits))
	}
	p.benefits[index] = fixed.Quantize(v)
	return nil
}

func (p *Profit) AddActualBenefit(eventID string, index int, v decimal.Decimal) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.benefits) || v.Sign() <= 0 {
		return false
	}
	if !p.remember("add:" + eventID) {
		return false
	}
	p.benefits[index] = fixed.Quantize(p.benefits[index].Add(v))
	return true
}

func (p *Profit) ConsumeBenefit(eventID string, index int, v decimal.Decimal) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.benefits) || v.Sign() <= 0 {
		return decimal.Zero
	}
	if !p.remember("consume:" + eventID) {
		return decimal.Zero
	}
	taken := fixed.Min(p.benefits[index], v)
	p.benefits[index] = p.benefits[index].Sub(taken)
	return taken
}

// remember records key and reports whether it was new. Caller holds mu.
func (p *Profit) remember(key string) bool {
	if _, ok := p.seen[key]; ok {
		return false
	}
	p.seen[key] = struct{}{}
	p.order = append(p.order, key)
	if len(p.order) > maxRememberedEvents {
		delete(p.seen, p.order[0])
		p.order = p.order[1:]
	}
	return true
}

func (p *Profit) ProcessedEvents() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.order...)
}

// Restore loads benefits and processed event keys from a snapshot.
func (p *Profit) Restore(benefits []decimal.Decimal, events []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(benefits) != 0 && len(benefits) != len(p.benefits) {
		return domain.NewInvariantError("benefit_index", "snapshot has %d benefits, ladder has %d intervals", len(benefits), len(p.benefits))
	}
	for i, b := range benefits {
		if b.Sign() < 0 {
			return domain.NewInvariantError("benefit_non_negative", "benefit %s at %d", b, i)
		}
		p.benefits[i] = b
	}
	p.seen = make(map[string]struct{}, len(events))
	p.order = p.order[:0]
	for _, e := range events {
		p.remember(e)
	}
	return nil
}
