package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"grid-trading-bot-go/internal/models"
)

// PaperExchange 实现了 Exchange 接口的内存模拟交易所。
// 挂单在模拟价格穿过其价位时成交，用于纸面交易模式和引擎测试。
type PaperExchange struct {
	mu       sync.Mutex
	logger   *zap.Logger
	price    float64
	nextID   int64
	orders   map[string]*models.Order
	balances map[string]float64
}

// NewPaperExchange creates a simulator seeded with an initial price and
// per-currency balances.
func NewPaperExchange(initialPrice float64, balances map[string]float64, logger *zap.Logger) *PaperExchange {
	bals := make(map[string]float64, len(balances))
	for c, v := range balances {
		bals[c] = v
	}
	return &PaperExchange{
		logger:   logger,
		price:    initialPrice,
		nextID:   1,
		orders:   make(map[string]*models.Order),
		balances: bals,
	}
}

// SetPrice moves the simulated market price and fills every resting
// order the move crossed: buys at or above the new price, sells at or
// below it.
func (e *PaperExchange) SetPrice(price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.price = price

	for _, o := range e.orders {
		if o.Status != models.OrderOpen {
			continue
		}
		crossed := (o.Side == models.Buy && price <= o.Price) ||
			(o.Side == models.Sell && price >= o.Price)
		if crossed {
			o.Status = models.OrderFilled
			o.UpdatedAt = time.Now()
			e.logger.Debug("模拟成交",
				zap.String("orderId", o.ID),
				zap.String("side", string(o.Side)),
				zap.Float64("price", o.Price))
		}
	}
}

func (e *PaperExchange) GetTicker(_ context.Context, _ string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.price, nil
}

func (e *PaperExchange) GetOrderBook(_ context.Context, _ string, depth int) (*models.OrderBook, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Synthesize a book from the resting orders around the mark price.
	book := &models.OrderBook{Timestamp: time.Now()}
	for _, o := range e.orders {
		if o.Status != models.OrderOpen {
			continue
		}
		lvl := models.PriceLevel{Price: o.Price, Quantity: o.Quantity}
		if o.Side == models.Buy && len(book.Bids) < depth {
			book.Bids = append(book.Bids, lvl)
		} else if o.Side == models.Sell && len(book.Asks) < depth {
			book.Asks = append(book.Asks, lvl)
		}
	}
	return book, nil
}

func (e *PaperExchange) PlaceLimitOrder(_ context.Context, symbol string, side models.Side, price, quantity float64, clientOrderID string) (string, error) {
	if price <= 0 || quantity <= 0 {
		return "", fmt.Errorf("%w: price=%v quantity=%v", ErrInvalidOrder, price, quantity)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if side == models.Buy {
		cost := price * quantity
		if e.balances["USDT"] < cost {
			return "", fmt.Errorf("%w: need %.2f USDT", ErrInsufficientFunds, cost)
		}
		e.balances["USDT"] -= cost
	}

	id := strconv.FormatInt(e.nextID, 10)
	e.nextID++
	now := time.Now()
	e.orders[id] = &models.Order{
		ID:            id,
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		Price:         price,
		Quantity:      quantity,
		Status:        models.OrderOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return id, nil
}

func (e *PaperExchange) CancelOrder(_ context.Context, _ string, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: unknown order %s", ErrInvalidOrder, orderID)
	}
	if o.Status == models.OrderOpen {
		o.Status = models.OrderCancelled
		o.UpdatedAt = time.Now()
		if o.Side == models.Buy {
			e.balances["USDT"] += o.Price * o.Quantity
		}
	}
	return nil
}

func (e *PaperExchange) GetOrderStatus(_ context.Context, _ string, orderID string) (models.OrderStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[orderID]
	if !ok {
		return "", fmt.Errorf("%w: unknown order %s", ErrInvalidOrder, orderID)
	}
	return o.Status, nil
}

func (e *PaperExchange) GetAccountBalance(_ context.Context, currency string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[currency], nil
}

// OpenOrderCount reports resting orders, used by tests and the paper
// mode status line.
func (e *PaperExchange) OpenOrderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, o := range e.orders {
		if o.Status == models.OrderOpen {
			n++
		}
	}
	return n
}
