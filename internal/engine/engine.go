// Package engine drives the grid: it builds the ladder, keeps orders
// resting at every level and rebalances on fills. All ladder mutations
// happen on a single mutator goroutine fed by a FIFO event queue;
// concurrency is used only to parallelize exchange I/O.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"grid-trading-bot-go/internal/exchange"
	"grid-trading-bot-go/internal/grid"
	"grid-trading-bot-go/internal/models"
	"grid-trading-bot-go/internal/ratelimit"
	"grid-trading-bot-go/internal/store"
)

// State is the engine lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateStopping
	StateStopped
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInitializing:
		return "INITIALIZING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	case StateFaulted:
		return "FAULTED"
	}
	return "UNKNOWN"
}

// stopTimeout bounds the best-effort cancellation pass during Stopping.
const stopTimeout = 30 * time.Second

type event interface{}

type fillEvent struct{ orderID string }

type tickEvent struct{}

// Snapshot is a consistent copy of the engine's observable state.
type Snapshot struct {
	State     State
	Symbol    string
	LastPrice float64
	Levels    []models.GridLevel
}

// Engine orchestrates ladder construction, fill-driven rebalancing and
// lifecycle. All exchange calls pass through the shared rate limiter.
type Engine struct {
	cfg     *models.Config
	ex      exchange.Exchange
	store   store.OrderStore
	limiter *ratelimit.Limiter
	obs     Observer
	logger  *zap.Logger
	ids     *idGenerator

	// mu guards state, ladder and lastPrice for snapshot readers.
	// Mutations still flow exclusively through the mutator.
	mu        sync.RWMutex
	state     State
	ladder    *grid.Ladder
	lastPrice float64

	// pairedSells tracks sell orders placed as buy-fill replacements;
	// their fills realize one grid step of profit.
	pairedSells map[string]bool

	events   chan event
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	launched bool
}

// New creates an engine in the Idle state. obs may be nil.
func New(cfg *models.Config, ex exchange.Exchange, st store.OrderStore, limiter *ratelimit.Limiter, obs Observer, logger *zap.Logger) *Engine {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Engine{
		cfg:         cfg,
		ex:          ex,
		store:       st,
		limiter:     limiter,
		obs:         obs,
		logger:      logger,
		ids:         newIDGenerator("grid"),
		state:       StateIdle,
		pairedSells: make(map[string]bool),
		events:      make(chan event, 1024),
		done:        make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Start transitions the engine through Initializing into Running: it
// recovers or builds the ladder and runs the initial placement pass.
// Only configuration and authentication failures are returned; per
// level rejections are recorded on the level and reported through the
// observer while initialization continues.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle && e.state != StateStopped {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("engine: cannot start from state %s", state)
	}
	if e.state == StateStopped {
		// Restarting: the previous mutator has exited, reset the
		// run-scoped plumbing for a fresh lifecycle.
		e.done = make(chan struct{})
		e.events = make(chan event, 1024)
		e.stopOnce = sync.Once{}
		e.launched = false
		e.pairedSells = make(map[string]bool)
	}
	e.mu.Unlock()

	e.setState(StateInitializing)

	ladder, err := e.buildOrRecoverLadder(ctx)
	if err != nil {
		e.setState(StateFaulted)
		return err
	}
	e.mu.Lock()
	e.ladder = ladder
	e.mu.Unlock()

	// Initial placement pass. Rejected levels are marked and skipped;
	// transiently failing levels stay pending for the next tick.
	e.ensurePlacements(ctx)
	e.persistLadder()
	e.setState(StateRunning)

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.launched = true
	e.mu.Unlock()
	go e.run(runCtx)
	go e.tickLoop(runCtx)

	e.logger.Info("网格引擎已启动",
		zap.String("symbol", e.cfg.Grid.Symbol),
		zap.Int("levels", ladder.Len()))
	return nil
}

// Stop requests shutdown and waits until all cancellations have been
// attempted and the engine reaches Stopped. It is idempotent: a second
// call waits for the same shutdown, it never issues duplicate cancels.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.launched {
		// Never got past initialization: no orders to cancel and no
		// mutator to wait for. A faulted engine stays Faulted.
		if e.state == StateIdle {
			e.state = StateStopped
		}
		e.mu.Unlock()
		return
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	e.stopOnce.Do(cancel)
	<-done
}

// OnOrderFilled feeds an externally observed fill (e.g. a user-data
// stream) into the event queue. The periodic reconciliation sweep will
// also catch the fill if this is never called.
func (e *Engine) OnOrderFilled(orderID string) {
	e.mu.RLock()
	events, done := e.events, e.done
	e.mu.RUnlock()
	select {
	case events <- fillEvent{orderID: orderID}:
	case <-done:
	}
}

// OnPriceUpdate records the latest observed market price.
func (e *Engine) OnPriceUpdate(price float64) {
	e.mu.Lock()
	e.lastPrice = price
	e.mu.Unlock()
	e.obs.SetLastPrice(price)
}

// Snapshot returns a deep copy of the engine's observable state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := Snapshot{
		State:     e.state,
		Symbol:    e.cfg.Grid.Symbol,
		LastPrice: e.lastPrice,
	}
	if e.ladder != nil {
		snap.Levels = e.ladder.Snapshot()
	}
	return snap
}

// FailedLevels reports levels frozen by non-retryable rejections.
func (e *Engine) FailedLevels() []models.GridLevel {
	var failed []models.GridLevel
	for _, lvl := range e.Snapshot().Levels {
		if lvl.Status == models.LevelFailed {
			failed = append(failed, lvl)
		}
	}
	return failed
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.obs.StateTransition(s.String())
	e.logger.Info("引擎状态切换", zap.String("state", s.String()))
}

// buildOrRecoverLadder adopts a persisted ladder when the store has
// one for this symbol, otherwise builds a fresh ladder classified
// against the current ticker price.
func (e *Engine) buildOrRecoverLadder(ctx context.Context) (*grid.Ladder, error) {
	persisted, err := e.store.LoadActiveLadder(e.cfg.Grid.Symbol)
	if err != nil {
		e.logger.Warn("加载持久化网格失败，将重新构建", zap.Error(err))
	}
	if len(persisted) > 0 {
		ladder, err := grid.Restore(e.cfg.Grid.Symbol, persisted)
		if err == nil {
			e.logger.Info("从存储恢复网格", zap.Int("levels", ladder.Len()))
			return ladder, nil
		}
		e.logger.Warn("持久化网格不可用，将重新构建", zap.Error(err))
	}

	price, err := e.referencePrice(ctx)
	if err != nil {
		return nil, err
	}
	e.OnPriceUpdate(price)
	return grid.Build(e.cfg.Grid, price)
}

// referencePrice fetches the ticker with bounded retries. Auth errors
// and exhausted retries fault startup.
func (e *Engine) referencePrice(ctx context.Context) (float64, error) {
	delay := time.Duration(e.cfg.RetryInitialDelayMs) * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= e.cfg.RetryAttempts; attempt++ {
		if err := e.limiter.Acquire(ctx); err != nil {
			return 0, err
		}
		price, err := e.ex.GetTicker(ctx, e.cfg.Grid.Symbol)
		if err == nil {
			return price, nil
		}
		lastErr = err
		if errors.Is(err, exchange.ErrAuth) {
			e.obs.ExchangeError("auth")
			return 0, err
		}
		if !exchange.IsRetryable(err) {
			return 0, err
		}
		e.obs.ExchangeError("transient")
		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 0, fmt.Errorf("engine: could not fetch reference price: %w", lastErr)
}

// run is the mutator: the only flow that changes ladder state.
func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return
		case ev := <-e.events:
			switch ev := ev.(type) {
			case fillEvent:
				e.handleFill(ctx, ev.orderID)
				e.persistLadder()
			case tickEvent:
				e.reconcile(ctx)
			}
		}
	}
}

// tickLoop feeds periodic reconciliation ticks into the event queue.
func (e *Engine) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Grid.CheckInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case e.events <- tickEvent{}:
			default: // a tick is already queued, skip
			}
		}
	}
}

// reconcile sweeps the status of every resting order concurrently, then
// applies fills in level order and retries pending placements.
func (e *Engine) reconcile(ctx context.Context) {
	type probe struct {
		levelIdx int
		orderID  string
	}
	var probes []probe
	for _, lvl := range e.ladder.Levels() {
		if o := lvl.LiveOrder(); o != nil {
			probes = append(probes, probe{levelIdx: lvl.Index, orderID: o.ID})
		}
	}

	type result struct {
		levelIdx int
		orderID  string
		status   models.OrderStatus
	}
	results := make(chan result, len(probes))

	var wg sync.WaitGroup
	for _, p := range probes {
		wg.Add(1)
		go func(p probe) {
			defer wg.Done()
			if err := e.limiter.Acquire(ctx); err != nil {
				return
			}
			status, err := e.ex.GetOrderStatus(ctx, e.cfg.Grid.Symbol, p.orderID)
			if err != nil {
				e.obs.ExchangeError("transient")
				e.logger.Warn("查询订单状态失败",
					zap.String("orderId", p.orderID), zap.Error(err))
				return
			}
			results <- result{levelIdx: p.levelIdx, orderID: p.orderID, status: status}
		}(p)
	}
	wg.Wait()
	close(results)

	changed := make([]result, 0, len(probes))
	for r := range results {
		if r.status != models.OrderOpen && r.status != models.OrderPending {
			changed = append(changed, r)
		}
	}
	// Apply in ladder order so reconciliation is deterministic.
	sort.Slice(changed, func(i, j int) bool { return changed[i].levelIdx < changed[j].levelIdx })

	for _, r := range changed {
		switch r.status {
		case models.OrderFilled:
			e.handleFill(ctx, r.orderID)
		case models.OrderCancelled, models.OrderRejected:
			// Cancelled outside the bot: the level wants an order again.
			e.mu.Lock()
			if lvl := e.ladder.FindByOrderID(r.orderID); lvl != nil {
				lvl.Order.Status = r.status
				lvl.Order = nil
				lvl.Status = models.LevelPending
			}
			e.mu.Unlock()
			e.logger.Warn("挂单在交易所侧失效",
				zap.String("orderId", r.orderID), zap.String("status", string(r.status)))
		}
	}

	e.ensurePlacements(ctx)
	e.persistLadder()
	e.obs.SetLiveOrders(e.liveOrderCount())
}

// handleFill rebalances after a fill: the level's slot is cleared and a
// replacement order goes one grid step away on the opposite side. A
// filled buy at i places a sell at i+1, a filled sell at i places a buy
// at i-1. An occupied or out-of-range target gets no order.
func (e *Engine) handleFill(ctx context.Context, orderID string) {
	lvl := e.ladder.FindByOrderID(orderID)
	if lvl == nil {
		// Already processed, or an order the engine never placed.
		return
	}

	order := lvl.Order
	filledSide := order.Side

	e.mu.Lock()
	order.Status = models.OrderFilled
	order.UpdatedAt = time.Now()
	lvl.Order = nil // record retained in the store for audit
	lvl.Status = models.LevelEmpty
	e.mu.Unlock()

	if err := e.store.UpdateOrderStatus(orderID, models.OrderFilled); err != nil {
		e.logger.Error("持久化成交状态失败", zap.String("orderId", orderID), zap.Error(err))
	}
	e.obs.OrderFilled(filledSide, order.Price, order.Quantity)
	e.logger.Info("订单成交",
		zap.String("orderId", orderID),
		zap.String("side", string(filledSide)),
		zap.Float64("price", order.Price),
		zap.Int("level", lvl.Index))

	if filledSide == models.Sell && e.pairedSells[orderID] {
		// This sell completes a round trip with the buy one step below.
		delete(e.pairedSells, orderID)
		e.obs.AddRealizedProfit(e.cfg.Grid.Step() * order.Quantity)
	}

	targetIdx := lvl.Index + 1
	if filledSide == models.Sell {
		targetIdx = lvl.Index - 1
	}
	target := e.ladder.Level(targetIdx)
	if target == nil {
		e.logger.Debug("成交发生在网格边界，无补单目标", zap.Int("level", lvl.Index))
		return
	}
	if target.LiveOrder() != nil {
		// Two adjacent fills resolved to the same target; never double
		// up a level.
		e.logger.Debug("目标档位已有挂单，跳过补单", zap.Int("target", targetIdx))
		return
	}
	if target.Status == models.LevelFailed {
		e.logger.Warn("目标档位已被冻结，跳过补单", zap.Int("target", targetIdx))
		return
	}

	e.mu.Lock()
	target.Side = filledSide.Opposite()
	target.Status = models.LevelPending
	e.mu.Unlock()

	// Place the replacement before the next event is processed; a
	// transient failure leaves the level pending for the next tick.
	placedID := e.placeLevelOrder(ctx, target)
	if placedID != "" && filledSide == models.Buy {
		e.pairedSells[placedID] = true
	}
}

// ensurePlacements places an order for every level that wants one.
func (e *Engine) ensurePlacements(ctx context.Context) {
	for _, lvl := range e.ladder.Levels() {
		if ctx.Err() != nil {
			return
		}
		if lvl.Status == models.LevelPending && lvl.LiveOrder() == nil {
			e.placeLevelOrder(ctx, lvl)
		}
	}
}

// placeLevelOrder rests a limit order for lvl with bounded retries and
// exponential backoff. It returns the exchange order ID on success. A
// non-retryable rejection freezes the level; exhausted retries leave it
// pending for the next check interval.
func (e *Engine) placeLevelOrder(ctx context.Context, lvl *models.GridLevel) string {
	clientID := e.ids.Next()
	delay := time.Duration(e.cfg.RetryInitialDelayMs) * time.Millisecond

	for attempt := 0; attempt <= e.cfg.RetryAttempts; attempt++ {
		if err := e.limiter.Acquire(ctx); err != nil {
			return ""
		}
		orderID, err := e.ex.PlaceLimitOrder(ctx, e.cfg.Grid.Symbol,
			lvl.Side, lvl.Price, e.cfg.Grid.QuantityPerOrder, clientID)
		if err == nil {
			now := time.Now()
			order := &models.Order{
				ID:            orderID,
				ClientOrderID: clientID,
				Symbol:        e.cfg.Grid.Symbol,
				Side:          lvl.Side,
				Price:         lvl.Price,
				Quantity:      e.cfg.Grid.QuantityPerOrder,
				Status:        models.OrderOpen,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			e.mu.Lock()
			lvl.Order = order
			lvl.Status = models.LevelLive
			lvl.LastError = ""
			e.mu.Unlock()

			if err := e.store.SaveOrder(order); err != nil {
				e.logger.Error("持久化订单失败", zap.String("orderId", orderID), zap.Error(err))
			}
			e.obs.OrderPlaced(lvl.Side)
			return orderID
		}

		if errors.Is(err, exchange.ErrInsufficientFunds) || errors.Is(err, exchange.ErrInvalidOrder) {
			e.mu.Lock()
			lvl.Status = models.LevelFailed
			lvl.LastError = err.Error()
			e.mu.Unlock()
			e.obs.ExchangeError("rejected")
			e.logger.Error("档位下单被拒绝，已冻结该档位",
				zap.Int("level", lvl.Index),
				zap.Float64("price", lvl.Price),
				zap.Error(err))
			return ""
		}

		e.obs.ExchangeError("transient")
		e.logger.Warn("下单暂时失败，准备重试",
			zap.Int("level", lvl.Index),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return ""
		}
	}

	// Retries exhausted: the level stays pending and the next check
	// interval tries again.
	e.logger.Warn("下单重试次数耗尽，延后到下一个检查周期", zap.Int("level", lvl.Index))
	return ""
}

// shutdown cancels every live order best-effort, then parks in Stopped.
func (e *Engine) shutdown() {
	e.setState(StateStopping)

	// A fresh context: the run context is already cancelled, but the
	// cancellation pass must still reach the exchange.
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	allCancelled := true
	for _, lvl := range e.ladder.Levels() {
		order := lvl.LiveOrder()
		if order == nil {
			continue
		}
		if e.cancelWithRetry(ctx, order.ID) {
			e.mu.Lock()
			order.Status = models.OrderCancelled
			order.UpdatedAt = time.Now()
			lvl.Order = nil
			lvl.Status = models.LevelPending
			e.mu.Unlock()
			if err := e.store.UpdateOrderStatus(order.ID, models.OrderCancelled); err != nil {
				e.logger.Error("持久化撤单状态失败", zap.String("orderId", order.ID), zap.Error(err))
			}
			e.obs.OrderCancelled()
		} else {
			allCancelled = false
			e.logger.Error("撤单最终失败，放弃重试", zap.String("orderId", order.ID))
		}
	}

	if allCancelled {
		if err := e.store.ClearLadder(e.cfg.Grid.Symbol); err != nil {
			e.logger.Error("清除持久化网格失败", zap.Error(err))
		}
	} else {
		// Keep the snapshot so a restart can adopt the surviving orders.
		e.persistLadder()
	}

	e.obs.SetLiveOrders(e.liveOrderCount())
	e.setState(StateStopped)
	e.logger.Info("网格引擎已停止")
}

// cancelWithRetry issues a cancel with bounded retries on transient
// failures. A false return means the cancel ultimately failed.
func (e *Engine) cancelWithRetry(ctx context.Context, orderID string) bool {
	delay := time.Duration(e.cfg.RetryInitialDelayMs) * time.Millisecond
	for attempt := 0; attempt <= e.cfg.RetryAttempts; attempt++ {
		if err := e.limiter.Acquire(ctx); err != nil {
			return false
		}
		err := e.ex.CancelOrder(ctx, e.cfg.Grid.Symbol, orderID)
		if err == nil {
			return true
		}
		if !exchange.IsRetryable(err) {
			e.logger.Warn("撤单被拒绝", zap.String("orderId", orderID), zap.Error(err))
			return false
		}
		e.obs.ExchangeError("transient")
		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return false
		}
	}
	return false
}

func (e *Engine) persistLadder() {
	if e.ladder == nil {
		return
	}
	if err := e.store.SaveLadder(e.cfg.Grid.Symbol, e.ladder.Snapshot()); err != nil {
		e.logger.Error("持久化网格失败", zap.Error(err))
	}
}

func (e *Engine) liveOrderCount() int {
	n := 0
	for _, lvl := range e.ladder.Levels() {
		if lvl.LiveOrder() != nil {
			n++
		}
	}
	return n
}
