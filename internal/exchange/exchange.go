package exchange

import (
	"context"

	"grid-trading-bot-go/internal/models"
)

// Exchange 定义了所有交易所实现必须提供的通用方法。
// 这使得网格引擎可以在真实交易和纸面模拟之间轻松切换。
type Exchange interface {
	// GetTicker returns the last traded price for symbol.
	GetTicker(ctx context.Context, symbol string) (float64, error)

	// GetOrderBook returns up to depth levels per side.
	GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error)

	// PlaceLimitOrder rests a limit order and returns the
	// exchange-assigned order ID. Fails with ErrInsufficientFunds or
	// ErrInvalidOrder for non-retryable rejections, or a transient
	// error for network/5xx conditions.
	PlaceLimitOrder(ctx context.Context, symbol string, side models.Side, price, quantity float64, clientOrderID string) (string, error)

	// CancelOrder cancels a resting order. Cancelling an order that is
	// already in a terminal state is not an error.
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// GetOrderStatus returns the current lifecycle status of an order.
	GetOrderStatus(ctx context.Context, symbol, orderID string) (models.OrderStatus, error)

	// GetAccountBalance returns the free balance for a currency.
	GetAccountBalance(ctx context.Context, currency string) (float64, error)
}
