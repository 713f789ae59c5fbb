package strategy

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/allocation"
	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/fixed"
	"github.com/alanyoungcy/lazywhale/internal/ladder"
)

// DefaultSpreadGap is the number of empty intervals kept between the
// highest buy and the lowest sell.
const DefaultSpreadGap = 2

// Params is the validated parameter set of one strategy instance. Spread
// positions are ladder indexes.
type Params struct {
	Marketplace string
	Market      string

	RangeBot      decimal.Decimal
	RangeTop      decimal.Decimal
	IncrementCoef decimal.Decimal

	// Amount is the per-interval base amount for the constant and profit
	// policies.
	Amount            decimal.Decimal
	OrdersPerInterval int
	MinOrderAmount    decimal.Decimal
	FeeCoef           decimal.Decimal

	SpreadBot int
	SpreadTop int
	SpreadGap int

	NbBuyToDisplay  int
	NbSellToDisplay int

	StopAtBot bool
	StopAtTop bool

	ProfitsAlloc decimal.Decimal

	Allocation      allocation.Kind
	AllocMinAmount  decimal.Decimal
	AllocMaxAmount  decimal.Decimal
	AllocStartIndex int
}

// Ladder generates the interval ladder for the configured range.
func (p Params) Ladder() (*ladder.Ladder, error) {
	return ladder.Generate(p.RangeBot, p.RangeTop, p.IncrementCoef)
}

// Validate checks every parameter against the generated ladder. Errors are
// ConfigurationErrors naming the offending field.
func (p Params) Validate() error {
	if strings.TrimSpace(p.Market) == "" {
		return domain.NewConfigurationError("market", "required")
	}
	lad, err := p.Ladder()
	if err != nil {
		return err
	}
	return p.validateWith(lad)
}

func (p Params) validateWith(lad *ladder.Ladder) error {
	hundred := decimal.NewFromInt(100)
	switch {
	case p.OrdersPerInterval < 1:
		return domain.NewConfigurationError("orders_per_interval", "must be >= 1, got %d", p.OrdersPerInterval)
	case !fixed.Positive(p.MinOrderAmount):
		return domain.NewConfigurationError("min_order_amount", "must be > 0, got %s", p.MinOrderAmount)
	case !fixed.Positive(p.FeeCoef):
		return domain.NewConfigurationError("fee_coef", "must be > 0, got %s", p.FeeCoef)
	case p.NbBuyToDisplay < 1:
		return domain.NewConfigurationError("nb_buy_to_display", "must be >= 1, got %d", p.NbBuyToDisplay)
	case p.NbSellToDisplay < 1:
		return domain.NewConfigurationError("nb_sell_to_display", "must be >= 1, got %d", p.NbSellToDisplay)
	case p.ProfitsAlloc.Sign() < 0 || p.ProfitsAlloc.GreaterThan(hundred):
		return domain.NewConfigurationError("profits_alloc", "must be within [0, 100], got %s", p.ProfitsAlloc)
	case p.SpreadGap < 1:
		return domain.NewConfigurationError("spread_gap", "must be >= 1, got %d", p.SpreadGap)
	case !lad.Valid(p.SpreadBot):
		return domain.NewConfigurationError("spread_bot", "index %d outside ladder of %d intervals", p.SpreadBot, lad.Len())
	case !lad.Valid(p.SpreadTop):
		return domain.NewConfigurationError("spread_top", "index %d outside ladder of %d intervals", p.SpreadTop, lad.Len())
	case p.SpreadTop != p.SpreadBot+p.SpreadGap+1:
		return domain.NewConfigurationError("spread_top",
			"must be exactly %d intervals above spread_bot (bot %d, top %d)", p.SpreadGap+1, p.SpreadBot, p.SpreadTop)
	}

	switch p.Allocation {
	case allocation.KindConstant, allocation.KindProfit, "":
		if !fixed.Positive(p.Amount) {
			return domain.NewConfigurationError("amount", "must be > 0, got %s", p.Amount)
		}
		if err := p.checkSplit("amount", p.Amount); err != nil {
			return err
		}
	case allocation.KindLinear, allocation.KindCurved:
		if err := p.checkSplit("allocation.min_amount", p.AllocMinAmount); err != nil {
			return err
		}
	}

	if _, err := p.Policy(lad.Len()); err != nil {
		return err
	}
	return nil
}

func (p Params) checkSplit(field string, amount decimal.Decimal) error {
	floor := p.MinOrderAmount.Mul(decimal.NewFromInt(int64(p.OrdersPerInterval)))
	if amount.LessThan(floor) {
		return domain.NewConfigurationError(field,
			"%s cannot be split into %d orders of at least %s", amount, p.OrdersPerInterval, p.MinOrderAmount)
	}
	return nil
}

// Policy builds the allocation policy for a ladder of the given length.
func (p Params) Policy(intervals int) (allocation.Policy, error) {
	return allocation.New(p.Allocation, allocation.Options{
		Amount:     p.Amount,
		MinAmount:  p.AllocMinAmount,
		MaxAmount:  p.AllocMaxAmount,
		StartIndex: p.AllocStartIndex,
		Intervals:  intervals,
		ProfitPct:  p.ProfitsAlloc,
	})
}

// splitFloor is the smallest amount that can be placed in one interval.
func (p Params) splitFloor() decimal.Decimal {
	return p.MinOrderAmount.Mul(decimal.NewFromInt(int64(p.OrdersPerInterval)))
}

// Record converts the parameters into their persisted form, resolving the
// spread indexes to interval bottoms.
func (p Params) Record(lad *ladder.Ladder, spreadBot, spreadTop int, at time.Time) domain.ParamsRecord {
	return domain.ParamsRecord{
		Datetime:        at.UTC().Format(domain.DateLayout),
		Marketplace:     p.Marketplace,
		Market:          p.Market,
		RangeBot:        p.RangeBot,
		RangeTop:        p.RangeTop,
		SpreadBot:       boundAt(lad, spreadBot),
		SpreadTop:       boundAt(lad, spreadTop),
		IncrementCoef:   p.IncrementCoef,
		Amount:          p.Amount,
		StopAtBot:       p.StopAtBot,
		StopAtTop:       p.StopAtTop,
		NbBuyToDisplay:  p.NbBuyToDisplay,
		NbSellToDisplay: p.NbSellToDisplay,
		ProfitsAlloc:    p.ProfitsAlloc,
	}
}

// boundAt is the bottom of interval i, or the nearest ladder edge when i
// has drifted outside.
func boundAt(lad *ladder.Ladder, i int) decimal.Decimal {
	switch {
	case i < 0:
		return lad.Bottom()
	case i >= lad.Len():
		return lad.Top()
	default:
		return lad.At(i).Bottom()
	}
}

// SpreadIndexes resolves spread prices to ladder indexes. A zero spreadTop
// is derived from spreadBot and gap.
func SpreadIndexes(lad *ladder.Ladder, spreadBot, spreadTop decimal.Decimal, gap int) (int, int, error) {
	bot, err := lad.IndexOf(spreadBot)
	if err != nil {
		return 0, 0, domain.NewConfigurationError("spread_bot", "%s is outside the ladder %s-%s", spreadBot, lad.Bottom(), lad.Top())
	}
	if spreadTop.IsZero() {
		return bot, bot + gap + 1, nil
	}
	top, err := lad.IndexOf(spreadTop)
	if err != nil {
		return 0, 0, domain.NewConfigurationError("spread_top", "%s is outside the ladder %s-%s", spreadTop, lad.Bottom(), lad.Top())
	}
	return bot, top, nil
}
