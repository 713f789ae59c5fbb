package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/fixed"
)

// Constant gives every interval the same amount and re-opens exactly what
// was consumed.
type Constant struct {
	amount decimal.Decimal
}

// NewConstant returns a Constant policy.
func NewConstant(amount decimal.Decimal) (*Constant, error) {
	if amount.Sign() <= 0 {
		return nil, domain.NewConfigurationError("amount", "must be > 0, got %s", amount)
	}
	return &Constant{amount: fixed.Quantize(amount)}, nil
}

func (c *Constant) Kind() Kind { return KindConstant }

func (c *Constant) Amount(int, domain.Side) decimal.Decimal { return c.amount }

func (c *Constant) BuyToOpen(_ int, consumed decimal.Decimal) decimal.Decimal { return consumed }

func (c *Constant) SellToOpen(_ int, consumed decimal.Decimal) decimal.Decimal { return consumed }
