package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"grid-trading-bot-go/internal/models"
)

func newPaper(usdt float64) *PaperExchange {
	return NewPaperExchange(150, map[string]float64{"USDT": usdt}, zap.NewNop())
}

func TestPaperFillsCrossedOrders(t *testing.T) {
	ex := newPaper(10_000)
	ctx := context.Background()

	buyID, err := ex.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 125, 1, "c1")
	require.NoError(t, err)
	sellID, err := ex.PlaceLimitOrder(ctx, "BTCUSDT", models.Sell, 175, 1, "c2")
	require.NoError(t, err)

	// 价格下穿买单价位
	ex.SetPrice(120)
	status, err := ex.GetOrderStatus(ctx, "BTCUSDT", buyID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFilled, status)

	status, err = ex.GetOrderStatus(ctx, "BTCUSDT", sellID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderOpen, status)

	// 价格上穿卖单价位
	ex.SetPrice(180)
	status, err = ex.GetOrderStatus(ctx, "BTCUSDT", sellID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFilled, status)
}

func TestPaperRejectsBuyBeyondBalance(t *testing.T) {
	ex := newPaper(100)
	ctx := context.Background()

	_, err := ex.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 125, 1, "c1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.False(t, IsRetryable(err))
}

func TestPaperCancelRefundsQuoteBalance(t *testing.T) {
	ex := newPaper(125)
	ctx := context.Background()

	id, err := ex.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 125, 1, "c1")
	require.NoError(t, err)

	// 余额已被占用，第二单必然失败
	_, err = ex.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 125, 1, "c2")
	require.ErrorIs(t, err, ErrInsufficientFunds)

	require.NoError(t, ex.CancelOrder(ctx, "BTCUSDT", id))
	bal, err := ex.GetAccountBalance(ctx, "USDT")
	require.NoError(t, err)
	assert.Equal(t, 125.0, bal)

	_, err = ex.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 125, 1, "c3")
	assert.NoError(t, err)
}

func TestPaperRejectsInvalidParameters(t *testing.T) {
	ex := newPaper(10_000)
	ctx := context.Background()

	_, err := ex.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 0, 1, "c1")
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = ex.PlaceLimitOrder(ctx, "BTCUSDT", models.Sell, 100, -1, "c2")
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = ex.GetOrderStatus(ctx, "BTCUSDT", "missing")
	assert.Error(t, err)
}
