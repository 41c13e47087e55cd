// Package main runs the backtest HTTP service: candle ingestion into
// ClickHouse and on-demand replay runs over stored or inline candles.
package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"reversal-backtest/services/arrowfeed"
	"reversal-backtest/services/clickhouse"
	"reversal-backtest/services/config"
	"reversal-backtest/services/engine"
	"reversal-backtest/strategies"
)

type BacktestService struct {
	cfg    *config.Config
	store  *clickhouse.Store
	logger *zap.Logger
}

type backtestRequest struct {
	// Inline candles; when empty, symbol/from_ms/to_ms select from ClickHouse.
	Candles []engine.Candle `json:"candles"`
	Symbol  string          `json:"symbol"`
	FromMs  int64           `json:"from_ms"`
	ToMs    int64           `json:"to_ms"`

	// Optional overrides; zero values fall back to server config.
	Params         *engine.StrategyParameters `json:"params"`
	InitialCapital float64                    `json:"initial_capital"`
	FeeRate        *float64                   `json:"fee_rate"`
	SlippageRate   *float64                   `json:"slippage_rate"`
}

func (s *BacktestService) setupRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/health", s.handleHealth)
		api.POST("/backtest", s.handleBacktest)
		api.POST("/candles/:symbol", s.handleIngestCandles)
		api.GET("/candles/:symbol", s.handleQueryCandles)
	}
}

func (s *BacktestService) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"version":   engine.EngineVersion,
	})
}

func (s *BacktestService) handleBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	candles := req.Candles
	if len(candles) == 0 {
		if s.store == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no inline candles and no candle store configured"})
			return
		}
		if req.Symbol == "" || req.ToMs <= req.FromMs {
			c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and a valid from_ms/to_ms range are required"})
			return
		}
		var err error
		candles, err = s.store.QueryCandles(c.Request.Context(), req.Symbol, req.FromMs, req.ToMs)
		if err != nil {
			s.logger.Error("candle query failed", zap.String("symbol", req.Symbol), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if err := engine.ValidateSeries(candles); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := s.cfg.Strategy
	if req.Params != nil {
		params = *req.Params
	}
	capital := s.cfg.Backtest.InitialCapital
	if req.InitialCapital > 0 {
		capital = req.InitialCapital
	}
	feeRate := s.cfg.Backtest.FeeRate
	if req.FeeRate != nil {
		feeRate = *req.FeeRate
	}
	slipRate := s.cfg.Backtest.SlippageRate
	if req.SlippageRate != nil {
		slipRate = *req.SlippageRate
	}

	replay := engine.NewReplay(strategies.NewReversalTrailingStop(params), engine.NewExecution(feeRate, slipRate), s.logger)
	replay.RiskFreeRate = s.cfg.Backtest.RiskFreeRate
	replay.PeriodsPerYear = s.cfg.Backtest.PeriodsPerYear

	start := time.Now()
	result, err := replay.Run(c.Request.Context(), candles, params, decimal.NewFromFloat(capital))
	if err != nil {
		status := http.StatusInternalServerError
		var orderErr *engine.DataOrderError
		var paramErr *engine.InvalidParameterError
		if errors.As(err, &orderErr) || errors.As(err, &paramErr) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info("backtest served",
		zap.String("run_id", result.Manifest.RunID),
		zap.Int("candles", len(candles)),
		zap.Int("trades", len(result.Trades)),
		zap.Duration("elapsed", time.Since(start)))

	// format=arrow streams the equity curve as Arrow IPC for bulk consumers.
	if c.Query("format") == "arrow" {
		payload, err := arrowfeed.EncodeEquityCurve(result.EquityCurve)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", payload)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleIngestCandles accepts either a JSON array of candles or an Arrow IPC
// stream (Content-Type application/vnd.apache.arrow.stream).
func (s *BacktestService) handleIngestCandles(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no candle store configured"})
		return
	}
	symbol := c.Param("symbol")

	var candles []engine.Candle
	if c.ContentType() == "application/vnd.apache.arrow.stream" {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		candles, err = arrowfeed.DecodeCandles(bytes.NewReader(body))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	} else if err := c.ShouldBindJSON(&candles); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.InsertCandles(c.Request.Context(), symbol, candles); err != nil {
		s.logger.Error("candle insert failed", zap.String("symbol", symbol), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("candles ingested", zap.String("symbol", symbol), zap.Int("rows", len(candles)))
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "inserted": len(candles)})
}

func (s *BacktestService) handleQueryCandles(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no candle store configured"})
		return
	}
	symbol := c.Param("symbol")
	var q struct {
		FromMs int64 `form:"from_ms"`
		ToMs   int64 `form:"to_ms"`
	}
	if err := c.ShouldBindQuery(&q); err != nil || q.ToMs <= q.FromMs {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valid from_ms/to_ms query params are required"})
		return
	}
	candles, err := s.store.QueryCandles(c.Request.Context(), symbol, q.FromMs, q.ToMs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if c.Query("format") == "arrow" {
		payload, err := arrowfeed.EncodeCandles(candles)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", payload)
		return
	}
	c.JSON(http.StatusOK, candles)
}

// requestLogger tags each request with an id and logs its outcome.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := uuid.NewString()
		c.Set("request_id", reqID)
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("request_id", reqID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Default()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			logger.Fatal("load config", zap.String("path", path), zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := &BacktestService{cfg: cfg, logger: logger}
	if cfg.ClickHouse.Addr != "" {
		store, err := clickhouse.Open(ctx, cfg.ClickHouse)
		if err != nil {
			// Inline-candle backtests still work without a store.
			logger.Warn("clickhouse unavailable, candle store disabled", zap.Error(err))
		} else {
			if err := store.EnsureSchema(ctx); err != nil {
				logger.Fatal("ensure schema", zap.Error(err))
			}
			svc.store = store
			defer store.Close()
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	svc.setupRoutes(router)

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: router}
	go func() {
		logger.Info("starting backtest service", zap.String("addr", cfg.Server.Addr), zap.String("version", engine.EngineVersion))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve http", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}
