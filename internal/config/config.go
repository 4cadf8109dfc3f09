package config

import (
	"encoding/json"
	"fmt"
	"os"

	"grid-trading-bot-go/internal/models"
)

// Defaults applied when the config file omits a field.
const (
	defaultRateLimitCapacity  = 30
	defaultRateLimitWindowSec = 1.0
	defaultRetryAttempts      = 3
	defaultRetryInitialDelay  = 500
	defaultCheckIntervalSec   = 5
	defaultDBPath             = "data/gridbot"
	defaultMode               = "live"
)

// LoadConfig 从指定路径加载JSON配置文件并解析到Config结构体中。
// 解析成功后立即执行一次校验，校验失败的配置永远不会被返回。
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	cfg := &models.Config{}
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.Mode == "" {
		cfg.Mode = defaultMode
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.RateLimitCapacity == 0 {
		cfg.RateLimitCapacity = defaultRateLimitCapacity
	}
	if cfg.RateLimitWindowSec == 0 {
		cfg.RateLimitWindowSec = defaultRateLimitWindowSec
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryInitialDelayMs == 0 {
		cfg.RetryInitialDelayMs = defaultRetryInitialDelay
	}
	if cfg.Grid.CheckIntervalSec == 0 {
		cfg.Grid.CheckIntervalSec = defaultCheckIntervalSec
	}
}

// Validate checks every constraint the engine relies on. It is invoked
// once at load time; a config that passes here is treated as immutable
// and trusted everywhere else.
func Validate(cfg *models.Config) error {
	g := cfg.Grid
	switch {
	case g.Symbol == "":
		return fmt.Errorf("配置无效: symbol 不能为空")
	case g.GridSize < 2:
		return fmt.Errorf("配置无效: grid_size 必须 >= 2, 当前为 %d", g.GridSize)
	case g.LowerPrice <= 0:
		return fmt.Errorf("配置无效: lower_price 必须 > 0, 当前为 %v", g.LowerPrice)
	case g.UpperPrice <= g.LowerPrice:
		return fmt.Errorf("配置无效: upper_price (%v) 必须大于 lower_price (%v)", g.UpperPrice, g.LowerPrice)
	case g.QuantityPerOrder <= 0:
		return fmt.Errorf("配置无效: quantity_per_order 必须 > 0, 当前为 %v", g.QuantityPerOrder)
	case g.CheckIntervalSec <= 0:
		return fmt.Errorf("配置无效: check_interval_sec 必须 > 0, 当前为 %d", g.CheckIntervalSec)
	}

	if cfg.RateLimitCapacity <= 0 {
		return fmt.Errorf("配置无效: rate_limit_capacity 必须 > 0, 当前为 %d", cfg.RateLimitCapacity)
	}
	if cfg.RateLimitWindowSec <= 0 {
		return fmt.Errorf("配置无效: rate_limit_window_sec 必须 > 0, 当前为 %v", cfg.RateLimitWindowSec)
	}
	if cfg.Mode != "live" && cfg.Mode != "paper" {
		return fmt.Errorf("配置无效: mode 必须为 'live' 或 'paper', 当前为 %q", cfg.Mode)
	}
	return nil
}
