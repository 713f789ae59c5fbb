package platform

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lazywhale/internal/crypto"
	"github.com/alanyoungcy/lazywhale/internal/domain"
	"github.com/alanyoungcy/lazywhale/internal/platform/paper"
	"github.com/alanyoungcy/lazywhale/internal/platform/rest"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" PAPER ")
	require.NoError(t, err)
	assert.Equal(t, KindPaper, k)

	_, err = ParseKind("binance")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNew(t *testing.T) {
	v, err := New(KindPaper, Options{Paper: paper.Config{Market: "ETH/BTC", StartPrice: decimal.NewFromInt(1)}})
	require.NoError(t, err)
	assert.Equal(t, "paper", v.Name())

	_, err = New(KindREST, Options{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	v, err = New(KindREST, Options{REST: rest.Config{BaseURL: "http://localhost"}, Auth: &crypto.HMACAuth{Key: "k"}})
	require.NoError(t, err)
	assert.Equal(t, "rest", v.Name())
}
