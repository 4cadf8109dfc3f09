package engine

import "grid-trading-bot-go/internal/models"

// Observer receives the engine's observable side effects: state
// transitions, order lifecycle events and error counts. Implementations
// must not block; the engine's decisions never wait on them.
type Observer interface {
	StateTransition(state string)
	OrderPlaced(side models.Side)
	OrderFilled(side models.Side, price, quantity float64)
	OrderCancelled()
	ExchangeError(kind string)
	SetLiveOrders(n int)
	SetLastPrice(price float64)
	AddRealizedProfit(profit float64)
}

// NopObserver discards every report. Useful in tests and when metrics
// are disabled.
type NopObserver struct{}

func (NopObserver) StateTransition(string)                {}
func (NopObserver) OrderPlaced(models.Side)               {}
func (NopObserver) OrderFilled(models.Side, float64, float64) {}
func (NopObserver) OrderCancelled()                       {}
func (NopObserver) ExchangeError(string)                  {}
func (NopObserver) SetLiveOrders(int)                     {}
func (NopObserver) SetLastPrice(float64)                  {}
func (NopObserver) AddRealizedProfit(float64)             {}
