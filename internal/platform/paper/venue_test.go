package paper

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/fixed"
)

func d(s string) decimal.Decimal { return fixed.MustParse(s) }

func newVenue(t *testing.T) *Venue {
	t.Helper()
	v, err := New(Config{
		Market:         "ETH/BTC",
		MinOrderAmount: d("0.001"),
		StartPrice:     d("0.0125"),
		BaseBalance:    d("10"),
		QuoteBalance:   d("1"),
	})
	require.NoError(t, err)
	return v
}

func TestPlaceAndCancel(t *testing.T) {
	ctx := context.Background()
	v := newVenue(t)

	o, err := v.PlaceLimitOrder(ctx, "ETH/BTC", domain.SideBuy, d("2"), d("0.012"))
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)

	bal, err := v.Balances(ctx)
	require.NoError(t, err)
	assert.True(t, bal["BTC"].Used.Equal(d("0.024")))
	assert.True(t, bal["BTC"].Free.Equal(d("0.976")))

	open, err := v.OpenOrders(ctx, "ETH/BTC")
	require.NoError(t, err)
	require.Len(t, open, 1)

	ok, err := v.CancelOrder(ctx, "ETH/BTC", o.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.CancelOrder(ctx, "ETH/BTC", o.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second cancel is a race, not an error")

	bal, _ = v.Balances(ctx)
	assert.True(t, bal["BTC"].Free.Equal(d("1")))
}

func TestPlaceRejected(t *testing.T) {
	ctx := context.Background()
	v := newVenue(t)

	_, err := v.PlaceLimitOrder(ctx, "ETH/BTC", domain.SideSell, d("0.0001"), d("0.013"))
	assert.ErrorIs(t, err, domain.ErrOrderRejected)

	_, err = v.PlaceLimitOrder(ctx, "ETH/BTC", domain.SideSell, d("11"), d("0.013"))
	assert.ErrorIs(t, err, domain.ErrOrderRejected)

	_, err = v.PlaceLimitOrder(ctx, "LTC/BTC", domain.SideSell, d("1"), d("0.013"))
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
}

func TestPriceCrossFills(t *testing.T) {
	ctx := context.Background()
	v := newVenue(t)

	buy, err := v.PlaceLimitOrder(ctx, "ETH/BTC", domain.SideBuy, d("1"), d("0.012"))
	require.NoError(t, err)
	sell, err := v.PlaceLimitOrder(ctx, "ETH/BTC", domain.SideSell, d("1"), d("0.013"))
	require.NoError(t, err)

	v.SetPrice(d("0.0119"))
	open, err := v.OpenOrders(ctx, "ETH/BTC")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, sell.ID, open[0].ID)

	trades, err := v.TradeHistory(ctx, "ETH/BTC")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, buy.ID, trades[0].OrderID)

	bal, _ := v.Balances(ctx)
	assert.True(t, bal["ETH"].Total.Equal(d("11")))
	assert.True(t, bal["BTC"].Total.Equal(d("0.988")))
}

func TestPartialFill(t *testing.T) {
	ctx := context.Background()
	v := newVenue(t)
	o, err := v.PlaceLimitOrder(ctx, "ETH/BTC", domain.SideSell, d("1"), d("0.013"))
	require.NoError(t, err)

	require.NoError(t, v.Fill(o.ID, d("0.4")))
	got, ok := v.Order(o.ID)
	require.True(t, ok)
	assert.True(t, got.Amount.Equal(d("0.6")))

	require.NoError(t, v.Fill(o.ID, d("5")))
	_, ok = v.Order(o.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, v.Fill(o.ID, d("1")), domain.ErrNotFound)
}

func TestRandomWalkDeterministic(t *testing.T) {
	ctx := context.Background()
	mk := func() *Venue {
		v, err := New(Config{Market: "ETH-BTC", StartPrice: d("100"), Volatility: d("0.01"), Seed: 7})
		require.NoError(t, err)
		return v
	}
	a, b := mk(), mk()
	for i := 0; i < 5; i++ {
		_, _ = a.OpenOrders(ctx, "ETH-BTC")
		_, _ = b.OpenOrders(ctx, "ETH-BTC")
	}
	pa, _ := a.LastPrice(ctx, "ETH-BTC")
	pb, _ := b.LastPrice(ctx, "ETH-BTC")
	assert.True(t, pa.Equal(pb))
	assert.False(t, pa.Equal(d("100")))
}

func TestSplitMarket(t *testing.T) {
	b, q, err := SplitMarket("eth/btc")
	require.NoError(t, err)
	assert.Equal(t, "ETH", b)
	assert.Equal(t, "BTC", q)

	_, _, err = SplitMarket("ETHBTC")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
