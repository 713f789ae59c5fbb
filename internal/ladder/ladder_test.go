package ladder

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/fixed"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return fixed.MustParse(s) }

func TestGenerateFixture(t *testing.T) {
	l, err := Generate(d("0.01"), d("0.015"), d("1.0102"))
	require.NoError(t, err)
	assert.Equal(t, 40, l.Len())
	assert.True(t, l.Bottom().Equal(d("0.01")))
	assert.True(t, l.At(1).Bottom().Equal(d("0.010102")))
}

func TestGenerateCoverage(t *testing.T) {
	cases := []struct{ bottom, top, coef string }{
		{"0.01", "0.015", "1.0102"},
		{"100", "200", "1.01"},
		{"0.00001", "0.00002", "1.05"},
		{"3500", "4200", "1.003"},
	}
	for _, tc := range cases {
		l, err := Generate(d(tc.bottom), d(tc.top), d(tc.coef))
		require.NoError(t, err, tc)
		assert.True(t, l.At(0).Bottom().Equal(d(tc.bottom)))
		for i := 0; i < l.Len(); i++ {
			iv := l.At(i)
			assert.True(t, iv.Top().GreaterThan(iv.Bottom()), "interval %d not increasing", i)
			assert.True(t, iv.Bottom().LessThanOrEqual(d(tc.top)), "interval %d starts above range top", i)
			if i > 0 {
				assert.True(t, l.At(i-1).Top().Equal(iv.Bottom()), "gap before interval %d", i)
			}
		}
		assert.True(t, l.Top().GreaterThan(d(tc.top)))
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a, err := Generate(d("0.01"), d("0.015"), d("1.0102"))
	require.NoError(t, err)
	b, err := Generate(d("0.01"), d("0.015"), d("1.0102"))
	require.NoError(t, err)
	assert.True(t, a.SameBounds(b))
}

func TestGenerateRejects(t *testing.T) {
	_, err := Generate(d("0.01"), d("0.0105"), d("1.0102"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = Generate(d("0.02"), d("0.01"), d("1.0102"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = Generate(d("0.01"), d("0.02"), d("1"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = Generate(decimal.Zero, d("0.02"), d("1.1"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestIndexOf(t *testing.T) {
	l, err := Generate(d("0.01"), d("0.015"), d("1.0102"))
	require.NoError(t, err)

	i, err := l.IndexOf(d("0.01"))
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	i, err = l.IndexOf(d("0.010102"))
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	i, err = l.IndexOf(d("0.0101019"))
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	_, err = l.IndexOf(d("0.009"))
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
	_, err = l.IndexOf(l.Top())
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
}

func TestGenerateOrdersByAmountExact(t *testing.T) {
	iv := NewInterval(d("0.01"), d("0.010102"))
	for seed := uint64(0); seed < 50; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed+1))
		reqs, err := iv.GenerateOrdersByAmount(d("1.0"), d("0.1"), 3, rng)
		require.NoError(t, err)
		require.Len(t, reqs, 3)

		total := decimal.Zero
		for i, r := range reqs {
			total = total.Add(r.Amount)
			assert.True(t, r.Amount.GreaterThanOrEqual(d("0.1")), "seed %d amount %s", seed, r.Amount)
			assert.True(t, iv.Contains(r.Price), "seed %d price %s", seed, r.Price)
			if i > 0 {
				assert.True(t, reqs[i-1].Price.LessThanOrEqual(r.Price))
			}
		}
		assert.True(t, total.Equal(d("1.0")), "seed %d total %s", seed, total)
	}
}

func TestGenerateOrdersByAmountEdges(t *testing.T) {
	iv := NewInterval(d("100"), d("101"))
	rng := rand.New(rand.NewPCG(1, 2))

	reqs, err := iv.GenerateOrdersByAmount(d("0.3"), d("0.1"), 3, rng)
	require.NoError(t, err)
	for _, r := range reqs {
		assert.True(t, r.Amount.Equal(d("0.1")))
	}

	reqs, err = iv.GenerateOrdersByAmount(d("0.02"), d("0.001"), 1, rng)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Amount.Equal(d("0.02")))

	_, err = iv.GenerateOrdersByAmount(d("0.29"), d("0.1"), 3, rng)
	assert.ErrorIs(t, err, ErrInvalidSplit)
	_, err = iv.GenerateOrdersByAmount(d("1"), d("0.1"), 0, rng)
	assert.ErrorIs(t, err, ErrInvalidSplit)
}

func TestIntervalOrdering(t *testing.T) {
	iv := NewInterval(d("1"), d("2"))
	fee := decimal.NewFromInt(1)
	iv.InsertBuy(domain.NewOrder("b", domain.SideBuy, d("1.5"), d("1"), fee, testTime))
	iv.InsertBuy(domain.NewOrder("a", domain.SideBuy, d("1.2"), d("2"), fee, testTime))
	iv.InsertBuy(domain.NewOrder("c", domain.SideBuy, d("1.9"), d("3"), fee, testTime))

	low, ok := iv.LowestBuy()
	require.True(t, ok)
	assert.Equal(t, "a", low.ID)
	high, ok := iv.HighestBuy()
	require.True(t, ok)
	assert.Equal(t, "c", high.ID)
	assert.True(t, iv.BuyAmount().Equal(d("6")))
	assert.True(t, iv.SellAmount().IsZero())

	_, ok = iv.LowestSell()
	assert.False(t, ok)

	removed, ok := iv.RemoveOrder("b")
	require.True(t, ok)
	assert.Equal(t, "b", removed.ID)
	assert.Len(t, iv.Buys(), 2)
	assert.False(t, iv.Empty())
}

func TestIntervalEqual(t *testing.T) {
	fee := decimal.NewFromInt(1)
	a := NewInterval(d("1"), d("2"))
	a.InsertSell(domain.NewOrder("s1", domain.SideSell, d("1.5"), d("1"), fee, testTime))
	b := a.Clone()
	assert.True(t, a.Equal(b))

	b.RemoveOrder("s1")
	b.InsertSell(domain.NewOrder("s1", domain.SideSell, d("1.5"), d("0.5"), fee, testTime))
	assert.False(t, a.Equal(b))

	assert.False(t, a.Equal(NewInterval(d("1"), d("2.1"))))
	assert.True(t, NewInterval(d("1"), d("2")).Empty())
}

func TestFromStatesRoundTrip(t *testing.T) {
	l, err := Generate(d("0.01"), d("0.015"), d("1.0102"))
	require.NoError(t, err)
	_, err = l.Place(domain.NewOrder("x", domain.SideBuy, d("0.0101"), d("1"), decimal.NewFromInt(1), testTime))
	require.NoError(t, err)

	back, err := FromStates(l.States())
	require.NoError(t, err)
	assert.True(t, back.SameBounds(l))
	i, o, ok := back.FindOrder("x")
	require.True(t, ok)
	assert.Equal(t, 0, i)
	assert.True(t, o.Amount.Equal(d("1")))
	assert.Equal(t, []int{0}, back.BuyIndexes())

	states := l.States()
	states[3].Bottom = d("0.5")
	_, err = FromStates(states)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
}
