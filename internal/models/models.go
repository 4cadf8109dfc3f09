package models

import "time"

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other trading side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderStatus tracks the exchange-side lifecycle of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderOpen      OrderStatus = "OPEN"
	OrderFilled    OrderStatus = "FILLED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRejected  OrderStatus = "REJECTED"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected:
		return true
	}
	return false
}

// LevelStatus tracks the runtime state of a single grid level.
type LevelStatus string

const (
	// LevelPending 该网格线需要挂单，下一个检查周期会重试
	LevelPending LevelStatus = "PENDING"
	// LevelLive 该网格线上有一个活动挂单
	LevelLive LevelStatus = "LIVE"
	// LevelEmpty 挂单已成交并被清空，只能由再平衡链重新填充
	LevelEmpty LevelStatus = "EMPTY"
	// LevelFailed 不可重试的下单错误，该网格线被冻结
	LevelFailed LevelStatus = "FAILED"
)

// Order 定义了订单信息
type Order struct {
	ID            string      `json:"id"`              // 交易所分配的订单ID
	ClientOrderID string      `json:"client_order_id"` // 机器人生成的幂等ID
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Price         float64     `json:"price"`
	Quantity      float64     `json:"quantity"`
	Status        OrderStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// GridLevel 代表网格中的一个价格档位。
// Order 为 nil 表示该档位当前没有关联挂单。
type GridLevel struct {
	Index  int         `json:"index"`
	Price  float64     `json:"price"`
	Side   Side        `json:"side"`
	Status LevelStatus `json:"status"`
	Order  *Order      `json:"order,omitempty"`
	// LastError 记录该档位最近一次不可重试的下单失败原因
	LastError string `json:"last_error,omitempty"`
}

// LiveOrder returns the level's order if it is resting on the exchange.
func (l *GridLevel) LiveOrder() *Order {
	if l.Order != nil && !l.Order.Status.Terminal() {
		return l.Order
	}
	return nil
}

// PriceLevel is one side entry of an order book.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook represents the book state at a point in time.
type OrderBook struct {
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// TradeEvent 定义了来自 WebSocket 的交易事件
type TradeEvent struct {
	EventType string `json:"e"` // Event type
	EventTime int64  `json:"E"` // Event time
	Symbol    string `json:"s"` // Symbol
	TradeID   int64  `json:"a"` // Aggregate trade ID
	Price     string `json:"p"` // Price
	Quantity  string `json:"q"` // Quantity
	TradeTime int64  `json:"T"` // Trade time
	IsMaker   bool   `json:"m"` // Is the buyer the market maker?
}
