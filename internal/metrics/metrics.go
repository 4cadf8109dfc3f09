// Package metrics exposes the bot's operational metrics in Prometheus
// exposition format:
//   - grid_orders_placed_total{side}  – limit orders placed
//   - grid_orders_filled_total{side}  – fills observed
//   - grid_orders_cancelled_total     – cancels issued
//   - grid_exchange_errors_total{kind} – exchange call failures by kind
//   - grid_state_transitions_total{state} – engine state transitions
//   - grid_live_orders                – currently resting orders (gauge)
//   - grid_last_price                 – last observed market price (gauge)
//   - grid_realized_profit            – cumulative locked-in spread (gauge)
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grid-trading-bot-go/internal/models"
)

// Collector implements the engine's Observer interface on top of a
// Prometheus registry. All methods are non-blocking.
type Collector struct {
	registry *prometheus.Registry

	ordersPlaced     *prometheus.CounterVec
	ordersFilled     *prometheus.CounterVec
	ordersCancelled  prometheus.Counter
	exchangeErrors   *prometheus.CounterVec
	stateTransitions *prometheus.CounterVec
	liveOrders       prometheus.Gauge
	lastPrice        prometheus.Gauge
	realizedProfit   prometheus.Gauge
}

// NewCollector creates and registers all collectors on a private
// registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		ordersPlaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grid_orders_placed_total",
				Help: "Limit orders placed",
			},
			[]string{"side"},
		),
		ordersFilled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grid_orders_filled_total",
				Help: "Order fills observed",
			},
			[]string{"side"},
		),
		ordersCancelled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "grid_orders_cancelled_total",
				Help: "Order cancels issued",
			},
		),
		exchangeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grid_exchange_errors_total",
				Help: "Exchange call failures by kind (transient|rejected|auth)",
			},
			[]string{"kind"},
		),
		stateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grid_state_transitions_total",
				Help: "Engine state transitions by target state",
			},
			[]string{"state"},
		),
		liveOrders: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "grid_live_orders",
				Help: "Orders currently resting on the exchange",
			},
		),
		lastPrice: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "grid_last_price",
				Help: "Last observed market price",
			},
		),
		realizedProfit: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "grid_realized_profit",
				Help: "Cumulative spread locked in by completed buy/sell pairs, in quote currency",
			},
		),
	}

	c.registry.MustRegister(
		c.ordersPlaced, c.ordersFilled, c.ordersCancelled,
		c.exchangeErrors, c.stateTransitions,
		c.liveOrders, c.lastPrice, c.realizedProfit,
	)
	return c
}

// Handler returns the /metrics HTTP handler for this registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) OrderPlaced(side models.Side) {
	c.ordersPlaced.WithLabelValues(string(side)).Inc()
}

func (c *Collector) OrderFilled(side models.Side, price, quantity float64) {
	c.ordersFilled.WithLabelValues(string(side)).Inc()
}

func (c *Collector) OrderCancelled() {
	c.ordersCancelled.Inc()
}

func (c *Collector) ExchangeError(kind string) {
	c.exchangeErrors.WithLabelValues(kind).Inc()
}

func (c *Collector) StateTransition(state string) {
	c.stateTransitions.WithLabelValues(state).Inc()
}

func (c *Collector) SetLiveOrders(n int) {
	c.liveOrders.Set(float64(n))
}

func (c *Collector) SetLastPrice(price float64) {
	c.lastPrice.Set(price)
}

func (c *Collector) AddRealizedProfit(profit float64) {
	c.realizedProfit.Add(profit)
}
