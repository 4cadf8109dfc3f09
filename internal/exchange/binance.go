package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"go.uber.org/zap"

	"grid-trading-bot-go/internal/models"
)

// BinanceExchange 实现了 Exchange 接口，通过官方SDK与币安现货交易所交互。
type BinanceExchange struct {
	client *binance.Client
	logger *zap.Logger
}

// NewBinanceExchange 创建一个新的 BinanceExchange 实例。
// testnet为true时使用币安测试网。
func NewBinanceExchange(apiKey, secretKey string, testnet bool, logger *zap.Logger) *BinanceExchange {
	binance.UseTestnet = testnet
	return &BinanceExchange{
		client: binance.NewClient(apiKey, secretKey),
		logger: logger,
	}
}

// Ping verifies connectivity and credentials before trading starts.
func (e *BinanceExchange) Ping(ctx context.Context) error {
	if _, err := e.client.NewGetAccountService().Do(ctx); err != nil {
		return e.classify(err)
	}
	return nil
}

func (e *BinanceExchange) GetTicker(ctx context.Context, symbol string) (float64, error) {
	prices, err := e.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, e.classify(err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("%w: no ticker for symbol %s", ErrInvalidOrder, symbol)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("解析价格 %q 失败: %w", prices[0].Price, err)
	}
	return price, nil
}

func (e *BinanceExchange) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	res, err := e.client.NewDepthService().Symbol(symbol).Limit(depth).Do(ctx)
	if err != nil {
		return nil, e.classify(err)
	}

	book := &models.OrderBook{Timestamp: time.Now()}
	for _, b := range res.Bids {
		price, _ := strconv.ParseFloat(b.Price, 64)
		qty, _ := strconv.ParseFloat(b.Quantity, 64)
		book.Bids = append(book.Bids, models.PriceLevel{Price: price, Quantity: qty})
	}
	for _, a := range res.Asks {
		price, _ := strconv.ParseFloat(a.Price, 64)
		qty, _ := strconv.ParseFloat(a.Quantity, 64)
		book.Asks = append(book.Asks, models.PriceLevel{Price: price, Quantity: qty})
	}
	return book, nil
}

func (e *BinanceExchange) PlaceLimitOrder(ctx context.Context, symbol string, side models.Side, price, quantity float64, clientOrderID string) (string, error) {
	sideType := binance.SideTypeBuy
	if side == models.Sell {
		sideType = binance.SideTypeSell
	}

	res, err := e.client.NewCreateOrderService().
		Symbol(symbol).
		Side(sideType).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(formatAmount(quantity)).
		Price(formatAmount(price)).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return "", e.classify(err)
	}

	e.logger.Info("挂单成功",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("price", price),
		zap.Float64("quantity", quantity),
		zap.Int64("orderId", res.OrderID))
	return strconv.FormatInt(res.OrderID, 10), nil
}

func (e *BinanceExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed order id %q", ErrInvalidOrder, orderID)
	}
	_, err = e.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		// 订单可能已经成交或被取消，这不算撤单失败
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == -2011 {
			e.logger.Debug("撤单时订单已不存在", zap.String("orderId", orderID))
			return nil
		}
		return e.classify(err)
	}
	return nil
}

func (e *BinanceExchange) GetOrderStatus(ctx context.Context, symbol, orderID string) (models.OrderStatus, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: malformed order id %q", ErrInvalidOrder, orderID)
	}
	order, err := e.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return "", e.classify(err)
	}
	return mapOrderStatus(order.Status), nil
}

func (e *BinanceExchange) GetAccountBalance(ctx context.Context, currency string) (float64, error) {
	account, err := e.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, e.classify(err)
	}
	for _, b := range account.Balances {
		if strings.EqualFold(b.Asset, currency) {
			free, err := strconv.ParseFloat(b.Free, 64)
			if err != nil {
				return 0, fmt.Errorf("解析余额 %q 失败: %w", b.Free, err)
			}
			return free, nil
		}
	}
	return 0, nil
}

// classify maps Binance API errors onto the engine's error taxonomy.
// Anything that is not a recognized hard rejection is treated as
// transient so the caller can retry with backoff.
func (e *BinanceExchange) classify(err error) error {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		// Network-level failure, timeout, malformed response.
		return Transient(err)
	}

	switch apiErr.Code {
	case -2010: // NEW_ORDER_REJECTED
		if strings.Contains(strings.ToLower(apiErr.Message), "insufficient") {
			return fmt.Errorf("%w: %s", ErrInsufficientFunds, apiErr.Message)
		}
		return fmt.Errorf("%w: %s", ErrInvalidOrder, apiErr.Message)
	case -1013, -1100, -1111, -1121: // filter failure, illegal chars, bad precision, bad symbol
		return fmt.Errorf("%w: %s", ErrInvalidOrder, apiErr.Message)
	case -2014, -2015: // bad API key / permissions
		return fmt.Errorf("%w: %s", ErrAuth, apiErr.Message)
	case -1003: // WAF rate limit
		return Transient(err)
	}
	if apiErr.Code <= -1000 && apiErr.Code >= -1099 {
		// General server/network error band.
		return Transient(err)
	}
	return Transient(err)
}

func mapOrderStatus(status binance.OrderStatusType) models.OrderStatus {
	switch status {
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePartiallyFilled:
		return models.OrderOpen
	case binance.OrderStatusTypeFilled:
		return models.OrderFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return models.OrderCancelled
	case binance.OrderStatusTypeRejected:
		return models.OrderRejected
	}
	return models.OrderPending
}

// formatAmount renders prices/quantities without scientific notation.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
