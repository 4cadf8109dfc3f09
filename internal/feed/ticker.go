// Package feed 通过币安WebSocket的aggTrade流订阅实时成交价。
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"grid-trading-bot-go/internal/models"
)

const (
	defaultWSBaseURL = "wss://stream.binance.com:9443"
	testnetWSBaseURL = "wss://stream.testnet.binance.vision"

	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // 必须小于pongWait
	reconnectDelay = 5 * time.Second
)

// PriceFeed 维护到交易所的WebSocket连接并在每笔成交时回调。
// 连接断开后自动重连，直到上下文被取消。
type PriceFeed struct {
	url     string
	logger  *zap.Logger
	onPrice func(price float64)
}

// New creates a feed for symbol. baseURL may be empty to use the
// production endpoint; pass testnet=true to target the testnet stream.
func New(symbol, baseURL string, testnet bool, logger *zap.Logger, onPrice func(float64)) *PriceFeed {
	if baseURL == "" {
		baseURL = defaultWSBaseURL
		if testnet {
			baseURL = testnetWSBaseURL
		}
	}
	return &PriceFeed{
		url:     fmt.Sprintf("%s/ws/%s@aggTrade", baseURL, strings.ToLower(symbol)),
		logger:  logger,
		onPrice: onPrice,
	}
}

// Run 是一个守护循环：连接、消费消息、断线后等待并重连。
// ctx取消后返回。
func (f *PriceFeed) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
		if err != nil {
			f.logger.Warn("WebSocket连接失败，稍后重试", zap.Error(err))
			select {
			case <-time.After(reconnectDelay):
				continue
			case <-ctx.Done():
				return
			}
		}

		f.logger.Info("WebSocket连接成功", zap.String("url", f.url))
		if err := f.consume(ctx, conn); err != nil && ctx.Err() == nil {
			f.logger.Warn("WebSocket连接断开，准备重连", zap.Error(err))
		}
		conn.Close()

		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

// consume 在单个连接上读消息并维持Ping/Pong心跳，阻塞直到连接损坏
// 或上下文取消。
func (f *PriceFeed) consume(ctx context.Context, conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-ctx.Done():
				// 优雅关闭：发送关闭帧后由读循环感知并退出
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = conn.SetReadDeadline(time.Now())
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("读取消息失败: %w", err)
		}

		var trade models.TradeEvent
		if err := json.Unmarshal(message, &trade); err != nil {
			f.logger.Debug("丢弃无法解析的消息", zap.Error(err))
			continue
		}
		price, err := strconv.ParseFloat(trade.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		f.onPrice(price)
	}
}
