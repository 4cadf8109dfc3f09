package models

import "time"

// Config 结构体定义了机器人的所有配置参数
type Config struct {
	Mode   string `json:"mode"`    // 运行模式: "live" 或 "paper"
	DBPath string `json:"db_path"` // 数据库文件路径

	IsTestnet   bool   `json:"is_testnet"`             // 是否使用币安测试网
	WSBaseURL   string `json:"ws_base_url,omitempty"`  // WebSocket基础地址，空则使用默认
	MetricsAddr string `json:"metrics_addr,omitempty"` // Prometheus /metrics 监听地址

	Grid GridConfig `json:"grid"` // 网格策略参数

	RateLimitCapacity  int     `json:"rate_limit_capacity"`   // 令牌桶容量
	RateLimitWindowSec float64 `json:"rate_limit_window_sec"` // 令牌桶补充窗口（秒）

	RetryAttempts       int `json:"retry_attempts"`         // 下单/撤单失败时的重试次数
	RetryInitialDelayMs int `json:"retry_initial_delay_ms"` // 重试前的初始延迟毫秒数

	LogConfig LogConfig `json:"log"` // 日志配置
}

// GridConfig 是网格策略的不可变参数，启动时创建一次，之后不再修改。
type GridConfig struct {
	Symbol           string  `json:"symbol"`             // 交易对，如 "BTCUSDT"
	GridSize         int     `json:"grid_size"`          // 网格数量 N (>=2)
	LowerPrice       float64 `json:"lower_price"`        // 价格区间下限
	UpperPrice       float64 `json:"upper_price"`        // 价格区间上限
	QuantityPerOrder float64 `json:"quantity_per_order"` // 每个网格的挂单数量（基础货币）
	CheckIntervalSec int     `json:"check_interval_sec"` // 订单状态检查间隔（秒）
}

// CheckInterval returns the reconciliation tick period.
func (g GridConfig) CheckInterval() time.Duration {
	return time.Duration(g.CheckIntervalSec) * time.Second
}

// Step returns the price distance between adjacent grid levels.
func (g GridConfig) Step() float64 {
	return (g.UpperPrice - g.LowerPrice) / float64(g.GridSize-1)
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}
