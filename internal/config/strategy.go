package config

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/allocation"
	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/fixed"
	"github.com/alanyoungcy/lazywhale/internal/strategy"
)

// StrategyParams converts the strategy section into validated engine
// parameters. Spread prices are resolved to ladder indexes. Every failure is
// a domain.ConfigurationError naming the offending key.
func (c *Config) StrategyParams() (strategy.Params, error) {
	s := c.Strategy
	p := strategy.Params{
		Marketplace:       strings.ToLower(strings.TrimSpace(c.Venue.Kind)),
		Market:            strings.TrimSpace(s.Market),
		OrdersPerInterval: s.OrdersPerInterval,
		SpreadGap:         s.SpreadGap,
		NbBuyToDisplay:    s.NbBuyToDisplay,
		NbSellToDisplay:   s.NbSellToDisplay,
		StopAtBot:         s.StopAtBot,
		StopAtTop:         s.StopAtTop,
		AllocStartIndex:   s.Allocation.StartIndex,
	}
	if p.Market == "" {
		return strategy.Params{}, domain.NewConfigurationError("market", "required")
	}

	kind, err := allocation.ParseKind(s.Allocation.Kind)
	if err != nil {
		return strategy.Params{}, err
	}
	p.Allocation = kind

	d := decimals{}
	p.RangeBot = d.required("range_bot", s.RangeBot)
	p.RangeTop = d.required("range_top", s.RangeTop)
	p.IncrementCoef = d.required("increment_coef", s.IncrementCoef)
	p.MinOrderAmount = d.required("min_order_amount", s.MinOrderAmount)
	p.FeeCoef = d.optional("fee_coef", s.FeeCoef, decimal.NewFromInt(1))
	p.ProfitsAlloc = d.optional("profits_alloc", s.ProfitsAlloc, decimal.Zero)
	spreadBot := d.required("spread_bot", s.SpreadBot)
	spreadTop := d.optional("spread_top", s.SpreadTop, decimal.Zero)
	switch kind {
	case allocation.KindLinear, allocation.KindCurved:
		p.AllocMinAmount = d.required("allocation.min_amount", s.Allocation.MinAmount)
		p.AllocMaxAmount = d.required("allocation.max_amount", s.Allocation.MaxAmount)
		p.Amount = d.optional("amount", s.Amount, decimal.Zero)
	default:
		p.Amount = d.required("amount", s.Amount)
	}
	if d.err != nil {
		return strategy.Params{}, d.err
	}

	if p.SpreadGap < 1 {
		return strategy.Params{}, domain.NewConfigurationError("spread_gap", "must be >= 1, got %d", p.SpreadGap)
	}
	lad, err := p.Ladder()
	if err != nil {
		return strategy.Params{}, err
	}
	if p.SpreadBot, p.SpreadTop, err = strategy.SpreadIndexes(lad, spreadBot, spreadTop, p.SpreadGap); err != nil {
		return strategy.Params{}, err
	}
	if err := p.Validate(); err != nil {
		return strategy.Params{}, err
	}
	return p, nil
}

// decimals parses config strings and keeps the first failure.
type decimals struct {
	err error
}

func (d *decimals) required(field, s string) decimal.Decimal {
	if strings.TrimSpace(s) == "" {
		d.fail(domain.NewConfigurationError(field, "required"))
		return decimal.Zero
	}
	return d.optional(field, s, decimal.Zero)
}

func (d *decimals) optional(field, s string, def decimal.Decimal) decimal.Decimal {
	if strings.TrimSpace(s) == "" {
		return def
	}
	v, err := fixed.Parse(s)
	if err != nil {
		d.fail(domain.NewConfigurationError(field, "malformed decimal %q", s))
		return decimal.Zero
	}
	return v
}

func (d *decimals) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}
