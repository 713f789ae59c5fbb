// Package allocation decides how much base amount each ladder interval
// should hold on each side. Policies are a closed set selected by Kind.
package allocation

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/domain"
)

// Kind names one of the supported policies.
type Kind string

const (
	KindConstant Kind = "constant"
	KindLinear   Kind = "linear"
	KindCurved   Kind = "curved"
	KindProfit   Kind = "profit"
)

// Kinds lists every supported policy in a stable order.
func Kinds() []Kind {
	return []Kind{KindConstant, KindLinear, KindCurved, KindProfit}
}

// ParseKind maps a config string onto a Kind. An empty string selects
// KindConstant.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindConstant, nil
	case KindConstant, KindLinear, KindCurved, KindProfit:
		return k, nil
	default:
		return "", domain.NewConfigurationError("allocation", "unknown policy %q", s)
	}
}

// Policy answers how much base amount interval index should hold on side.
// Every method is pure; mutable policies expose their state through
// separate methods (see BenefitTracker).
type Policy interface {
	Kind() Kind
	// Amount is the target amount of interval index on side.
	Amount(index int, side domain.Side) decimal.Decimal
	// BuyToOpen is the buy amount to open at index after consumed was sold
	// on the opposite side.
	BuyToOpen(index int, consumed decimal.Decimal) decimal.Decimal
	// SellToOpen is the sell amount to open at index after consumed was
	// bought on the opposite side.
	SellToOpen(index int, consumed decimal.Decimal) decimal.Decimal
}

// Options configures New. Which fields matter depends on the kind.
type Options struct {
	Amount     decimal.Decimal // constant, profit
	MinAmount  decimal.Decimal // linear, curved
	MaxAmount  decimal.Decimal // linear, curved
	StartIndex int             // linear
	Intervals  int             // ladder length
	ProfitPct  decimal.Decimal // profit, 0..100
}

// New builds the policy of the given kind.
func New(kind Kind, opts Options) (Policy, error) {
	switch kind {
	case KindConstant, "":
		return NewConstant(opts.Amount)
	case KindLinear:
		return NewLinear(opts.MinAmount, opts.MaxAmount, opts.StartIndex, opts.Intervals)
	case KindCurved:
		return NewCurved(opts.MinAmount, opts.MaxAmount, opts.Intervals)
	case KindProfit:
		return NewProfit(opts.Amount, opts.ProfitPct, opts.Intervals)
	default:
		return nil, domain.NewConfigurationError("allocation", "unknown policy %q", kind)
	}
}

func checkRange(minAmount, maxAmount decimal.Decimal, count int) error {
	if minAmount.Sign() <= 0 {
		return domain.NewConfigurationError("allocation.min_amount", "must be > 0, got %s", minAmount)
	}
	if maxAmount.LessThan(minAmount) {
		return domain.NewConfigurationError("allocation.max_amount", "%s is below min_amount %s", maxAmount, minAmount)
	}
	if count < 1 {
		return domain.NewConfigurationError("allocation", "ladder has %d intervals", count)
	}
	return nil
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

func (k Kind) String() string { return string(k) }
