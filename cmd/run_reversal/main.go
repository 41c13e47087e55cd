// Package main runs a reversal-trailing-stop backtest from the command line,
// over a CSV file or a ClickHouse range, and prints a summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"reversal-backtest/services/clickhouse"
	"reversal-backtest/services/config"
	"reversal-backtest/services/dataset"
	"reversal-backtest/services/engine"
	"reversal-backtest/strategies"
)

func main() {
	csvPath := flag.String("csv", "", "Candle CSV file (timestamp,open,high,low,close,volume)")
	chAddr := flag.String("ch-addr", "", "ClickHouse address, e.g. localhost:9000 (used when -csv is empty)")
	symbol := flag.String("symbol", "BTCUSDT", "Symbol to query from ClickHouse")
	fromMs := flag.Int64("from", 0, "Range start, Unix ms (ClickHouse mode)")
	toMs := flag.Int64("to", 0, "Range end, Unix ms (ClickHouse mode)")
	configPath := flag.String("config", "", "YAML config file; defaults apply when empty")
	capital := flag.Float64("capital", 0, "Initial capital override")
	interval := flag.Duration("interval", 5*time.Minute, "Candle interval, used for gap reporting")
	tradesOut := flag.String("trades-out", "", "Write the trade list as JSON to this file")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Fatal("load config", zap.Error(err))
		}
	}
	if *capital > 0 {
		cfg.Backtest.InitialCapital = *capital
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	candles, err := loadCandles(ctx, cfg, *csvPath, *chAddr, *symbol, *fromMs, *toMs)
	if err != nil {
		logger.Fatal("load candles", zap.Error(err))
	}
	if len(candles) == 0 {
		logger.Fatal("no candles in selection")
	}
	logger.Info("candles loaded", zap.Int("count", len(candles)))

	for _, g := range dataset.DetectGaps(candles, *interval) {
		logger.Warn("gap in series",
			zap.Int64("from_ms", g.FromTs),
			zap.Int64("to_ms", g.ToTs),
			zap.Int("missing", g.Missing))
	}

	replay := engine.NewReplay(
		strategies.NewReversalTrailingStop(cfg.Strategy),
		engine.NewExecution(cfg.Backtest.FeeRate, cfg.Backtest.SlippageRate),
		logger,
	)
	replay.RiskFreeRate = cfg.Backtest.RiskFreeRate
	replay.PeriodsPerYear = cfg.Backtest.PeriodsPerYear

	result, err := replay.Run(ctx, candles, cfg.Strategy, decimal.NewFromFloat(cfg.Backtest.InitialCapital))
	if err != nil {
		logger.Fatal("run backtest", zap.Error(err))
	}

	printSummary(result)

	if *tradesOut != "" {
		payload, err := json.MarshalIndent(result.Trades, "", "  ")
		if err != nil {
			logger.Fatal("marshal trades", zap.Error(err))
		}
		if err := os.WriteFile(*tradesOut, payload, 0o644); err != nil {
			logger.Fatal("write trades", zap.Error(err))
		}
		logger.Info("trades written", zap.String("path", *tradesOut))
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadCandles(ctx context.Context, cfg *config.Config, csvPath, chAddr, symbol string, fromMs, toMs int64) ([]engine.Candle, error) {
	if csvPath != "" {
		return dataset.LoadCSV(csvPath)
	}
	if chAddr != "" {
		cfg.ClickHouse.Addr = chAddr
	}
	if toMs <= fromMs {
		return nil, fmt.Errorf("ClickHouse mode needs -from/-to (got %d..%d)", fromMs, toMs)
	}
	store, err := clickhouse.Open(ctx, cfg.ClickHouse)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.QueryCandles(ctx, symbol, fromMs, toMs)
}

func printSummary(res *engine.Result) {
	r := res.Report

	fmt.Println("\n=== BACKTEST SUMMARY ===")
	fmt.Printf("Run ID: %s\n", res.Manifest.RunID)
	fmt.Printf("Total Trades: %d\n", r.TotalTrades)
	fmt.Printf("Wins: %d\n", r.WinningTrades)
	fmt.Printf("Losses: %d\n", r.LosingTrades)
	fmt.Printf("Win Rate: %.2f%%\n", r.WinRate)
	fmt.Printf("Initial Capital: $%s\n", r.InitialCapital.StringFixed(2))
	fmt.Printf("Final Equity: $%s\n", r.FinalEquity.StringFixed(2))
	fmt.Printf("Realized PnL: $%s\n", r.RealizedPnL.StringFixed(2))
	if r.OpenPosition {
		fmt.Printf("Unrealized PnL (open %s): $%s\n", res.FinalPosition.Side, r.UnrealizedPnL.StringFixed(2))
	}
	fmt.Printf("ROI: %.2f%%\n", r.ROI)
	fmt.Printf("Profit Factor: %.2f\n", r.ProfitFactor)
	fmt.Printf("Max Drawdown: %.2f%%\n", r.MaxDrawdown)
	fmt.Printf("Sharpe: %.3f\n", r.Sharpe)
	fmt.Printf("Sortino: %.3f\n", r.Sortino)
	fmt.Printf("Calmar: %.3f\n", r.Calmar)
	fmt.Printf("Avg Trade Duration: %s\n", r.AvgTradeDuration)
	fmt.Println("========================")
}
