package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid-trading-bot-go/internal/models"
)

func newTestStore(t *testing.T) OrderStore {
	t.Helper()
	s, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoadActiveLadderReturnsNilOnFirstRun(t *testing.T) {
	s := newTestStore(t)

	levels, err := s.LoadActiveLadder("BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, levels)
}

func TestLadderRoundTrip(t *testing.T) {
	s := newTestStore(t)

	in := []models.GridLevel{
		{Index: 0, Price: 100, Side: models.Buy, Status: models.LevelLive,
			Order: &models.Order{ID: "1", Side: models.Buy, Price: 100, Quantity: 0.5, Status: models.OrderOpen}},
		{Index: 1, Price: 125, Side: models.Buy, Status: models.LevelPending},
		{Index: 2, Price: 150, Side: models.Sell, Status: models.LevelEmpty},
		{Index: 3, Price: 175, Side: models.Sell, Status: models.LevelLive,
			Order: &models.Order{ID: "2", Side: models.Sell, Price: 175, Quantity: 0.5, Status: models.OrderOpen}},
		{Index: 4, Price: 200, Side: models.Sell, Status: models.LevelFailed, LastError: "insufficient funds"},
	}
	require.NoError(t, s.SaveLadder("BTCUSDT", in))

	out, err := s.LoadActiveLadder("BTCUSDT")
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i].Index, out[i].Index)
		assert.Equal(t, in[i].Price, out[i].Price)
		assert.Equal(t, in[i].Side, out[i].Side)
		assert.Equal(t, in[i].Status, out[i].Status)
	}
	require.NotNil(t, out[0].Order)
	assert.Equal(t, "1", out[0].Order.ID)
	assert.Nil(t, out[1].Order)
}

func TestClearLadder(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveLadder("BTCUSDT", []models.GridLevel{{Index: 0, Price: 100}}))
	require.NoError(t, s.ClearLadder("BTCUSDT"))

	levels, err := s.LoadActiveLadder("BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, levels)
}

func TestOrderStatusUpdate(t *testing.T) {
	s := newTestStore(t)

	order := &models.Order{
		ID:        "42",
		Symbol:    "BTCUSDT",
		Side:      models.Buy,
		Price:     100,
		Quantity:  0.5,
		Status:    models.OrderOpen,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, s.SaveOrder(order))
	require.NoError(t, s.UpdateOrderStatus("42", models.OrderFilled))

	bs := s.(*badgerStore)
	got, err := bs.GetOrder("42")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.OrderFilled, got.Status)
	assert.Equal(t, models.Buy, got.Side)
}

func TestUpdateUnknownOrderFails(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.UpdateOrderStatus("missing", models.OrderFilled))
}
