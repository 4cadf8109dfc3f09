package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid-trading-bot-go/internal/models"
)

func testConfig() models.GridConfig {
	return models.GridConfig{
		Symbol:           "BTCUSDT",
		GridSize:         5,
		LowerPrice:       100,
		UpperPrice:       200,
		QuantityPerOrder: 0.01,
		CheckIntervalSec: 5,
	}
}

func TestBuildComputesEvenlySpacedPrices(t *testing.T) {
	ladder, err := Build(testConfig(), 140)
	require.NoError(t, err)
	require.Equal(t, 5, ladder.Len())

	want := []float64{100, 125, 150, 175, 200}
	for i, price := range want {
		lvl := ladder.Level(i)
		require.NotNil(t, lvl)
		assert.Equal(t, i, lvl.Index)
		assert.Equal(t, price, lvl.Price)
		assert.Equal(t, models.LevelPending, lvl.Status)
		assert.Nil(t, lvl.Order)
	}
}

func TestBuildClassifiesAgainstReferencePrice(t *testing.T) {
	ladder, err := Build(testConfig(), 140)
	require.NoError(t, err)

	wantSides := []models.Side{models.Buy, models.Buy, models.Sell, models.Sell, models.Sell}
	for i, side := range wantSides {
		assert.Equal(t, side, ladder.Level(i).Side, "level %d", i)
	}
}

func TestBuildTieBreaksEqualPriceAsSell(t *testing.T) {
	// Reference sits exactly on the 150 level.
	ladder, err := Build(testConfig(), 150)
	require.NoError(t, err)
	assert.Equal(t, models.Sell, ladder.Level(2).Side)
	assert.Equal(t, models.Buy, ladder.Level(1).Side)
}

func TestBuildRejectsInvalidInput(t *testing.T) {
	cfg := testConfig()

	cfg.GridSize = 1
	_, err := Build(cfg, 140)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.UpperPrice = cfg.LowerPrice
	_, err = Build(cfg, 140)
	assert.Error(t, err)

	_, err = Build(testConfig(), 0)
	assert.Error(t, err)
}

func TestRestoreRoundTrip(t *testing.T) {
	ladder, err := Build(testConfig(), 140)
	require.NoError(t, err)

	restored, err := Restore("BTCUSDT", ladder.Snapshot())
	require.NoError(t, err)
	require.Equal(t, ladder.Len(), restored.Len())
	for i := 0; i < ladder.Len(); i++ {
		assert.Equal(t, ladder.Level(i).Price, restored.Level(i).Price)
		assert.Equal(t, ladder.Level(i).Side, restored.Level(i).Side)
	}
}

func TestRestoreRejectsCorruptLadder(t *testing.T) {
	ladder, err := Build(testConfig(), 140)
	require.NoError(t, err)

	levels := ladder.Snapshot()
	levels[2].Price = levels[1].Price // duplicate price
	_, err = Restore("BTCUSDT", levels)
	assert.Error(t, err)
}

func TestFindByOrderID(t *testing.T) {
	ladder, err := Build(testConfig(), 140)
	require.NoError(t, err)

	ladder.Level(1).Order = &models.Order{ID: "abc", Status: models.OrderOpen}
	assert.Equal(t, ladder.Level(1), ladder.FindByOrderID("abc"))
	assert.Nil(t, ladder.FindByOrderID("missing"))
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	ladder, err := Build(testConfig(), 140)
	require.NoError(t, err)
	ladder.Level(0).Order = &models.Order{ID: "o1", Status: models.OrderOpen}

	snap := ladder.Snapshot()
	snap[0].Order.Status = models.OrderFilled
	snap[1].Side = models.Sell

	assert.Equal(t, models.OrderOpen, ladder.Level(0).Order.Status)
	assert.Equal(t, models.Buy, ladder.Level(1).Side)
}
