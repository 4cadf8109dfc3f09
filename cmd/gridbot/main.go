package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"grid-trading-bot-go/internal/config"
	"grid-trading-bot-go/internal/engine"
	"grid-trading-bot-go/internal/exchange"
	"grid-trading-bot-go/internal/feed"
	"grid-trading-bot-go/internal/grid"
	"grid-trading-bot-go/internal/logger"
	"grid-trading-bot-go/internal/metrics"
	"grid-trading-bot-go/internal/ratelimit"
	"grid-trading-bot-go/internal/reporter"
	"grid-trading-bot-go/internal/store"
)

const usage = `用法: gridbot <command> [options]

命令:
  start    启动网格交易机器人
  status   打印持久化的网格状态

选项:
  --config path    配置文件路径 (默认 "config.json")
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd := os.Args[1]
	configPath := "config.json"
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config", "-config":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "错误: --config 需要一个路径参数")
				os.Exit(2)
			}
			i++
			configPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "错误: 未知参数 %q\n%s", args[i], usage)
			os.Exit(2)
		}
	}

	switch cmd {
	case "start":
		os.Exit(runStart(configPath))
	case "status":
		os.Exit(runStatus(configPath))
	default:
		fmt.Fprintf(os.Stderr, "错误: 未知命令 %q\n%s", cmd, usage)
		os.Exit(2)
	}
}

// runStart wires everything together and blocks until SIGINT/SIGTERM.
func runStart(configPath string) int {
	// .env 先于配置加载，API密钥只从环境读取
	if err := godotenv.Load(); err == nil {
		fmt.Println("已从 .env 文件加载环境变量")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法加载配置: %v\n", err)
		return 1
	}

	log := logger.New(cfg.LogConfig)
	defer log.Sync() //nolint:errcheck

	st, err := store.NewBadgerStore(cfg.DBPath)
	if err != nil {
		log.Error("打开本地存储失败", zap.Error(err))
		return 1
	}
	defer st.Close()

	obs := metrics.NewCollector()
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", obs.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			log.Info("Prometheus指标服务已启动", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("指标服务异常退出", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var (
		ex    exchange.Exchange
		paper *exchange.PaperExchange
	)
	switch cfg.Mode {
	case "paper":
		log.Info("--- 模拟盘模式 ---")
		paper = exchange.NewPaperExchange(0, map[string]float64{"USDT": 1_000_000}, log)
		ex = paper
	default:
		log.Info("--- 实盘模式 ---", zap.Bool("testnet", cfg.IsTestnet))
		apiKey := os.Getenv("BINANCE_API_KEY")
		secretKey := os.Getenv("BINANCE_SECRET_KEY")
		if apiKey == "" || secretKey == "" {
			log.Error("BINANCE_API_KEY 和 BINANCE_SECRET_KEY 环境变量必须被设置")
			return 1
		}
		live := exchange.NewBinanceExchange(apiKey, secretKey, cfg.IsTestnet, log)
		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := live.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Error("交易所连接检查失败", zap.Error(err))
			return 1
		}
		ex = live
	}

	limiter := ratelimit.New(cfg.RateLimitCapacity,
		time.Duration(cfg.RateLimitWindowSec*float64(time.Second)))
	eng := engine.New(cfg, ex, st, limiter, obs, log)

	// 行情推送：模拟盘用它驱动撮合，实盘仅更新最新价格
	feedCtx, cancelFeed := context.WithCancel(context.Background())
	defer cancelFeed()
	if cfg.Mode == "paper" {
		// 模拟盘先从真实行情取一个初始价格，避免启动时无价可用
		priceFeed := feed.New(cfg.Grid.Symbol, cfg.WSBaseURL, cfg.IsTestnet, log, func(p float64) {
			paper.SetPrice(p)
			eng.OnPriceUpdate(p)
		})
		go priceFeed.Run(feedCtx)
		if !waitForPrice(eng, 30*time.Second) {
			log.Error("等待首个行情价格超时")
			return 1
		}
	} else {
		priceFeed := feed.New(cfg.Grid.Symbol, cfg.WSBaseURL, cfg.IsTestnet, log, eng.OnPriceUpdate)
		go priceFeed.Run(feedCtx)
	}

	if err := eng.Start(context.Background()); err != nil {
		log.Error("引擎启动失败", zap.Error(err))
		return 1
	}
	if failed := eng.FailedLevels(); len(failed) > 0 {
		log.Warn("部分档位下单被拒绝，已冻结", zap.Int("count", len(failed)))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("收到退出信号，开始优雅停机...")
	eng.Stop()
	cancelFeed()

	snap := eng.Snapshot()
	reporter.WriteShutdownSummary(os.Stdout, snap)

	if eng.State() != engine.StateStopped {
		return 1
	}
	return 0
}

// waitForPrice blocks until the feed has delivered a first price.
func waitForPrice(eng *engine.Engine, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if eng.Snapshot().LastPrice > 0 {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

// runStatus prints the persisted ladder without touching the exchange.
// The store is exclusive; run it while the bot is not running.
func runStatus(configPath string) int {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法加载配置: %v\n", err)
		return 1
	}

	st, err := store.NewBadgerStore(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "打开本地存储失败 (机器人是否正在运行?): %v\n", err)
		return 1
	}
	defer st.Close()

	levels, err := st.LoadActiveLadder(cfg.Grid.Symbol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取网格状态失败: %v\n", err)
		return 1
	}
	if len(levels) == 0 {
		fmt.Printf("交易对 %s 没有持久化的网格状态。\n", cfg.Grid.Symbol)
		return 0
	}

	if _, err := grid.Restore(cfg.Grid.Symbol, levels); err != nil {
		fmt.Fprintf(os.Stderr, "警告: 持久化网格未通过一致性检查: %v\n", err)
	}

	reporter.WriteSnapshot(os.Stdout, engine.Snapshot{
		State:  engine.StateStopped,
		Symbol: cfg.Grid.Symbol,
		Levels: levels,
	})
	return 0
}
