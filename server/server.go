// Package server 通过 HTTP 暴露预测接口。
//
// 路由：
//
//	POST /predict   输入一条记录，返回风险与饮食结果
//	GET  /models    当前加载的模型评估报告与集成配置
//	GET  /features  输入特征统计（配置了特征监控时）
//	GET  /healthz   存活检查
//	GET  /metrics   Prometheus 指标（可选）
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rushteam/cardiokit/feature"
	"github.com/rushteam/cardiokit/inference"
)

// Config 服务器配置
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodyBytes int64
	// MetricsPath 为空时不注册 /metrics
	MetricsPath string
}

// Server HTTP 服务器
type Server struct {
	cfg       Config
	predictor inference.Predictor
	state     *inference.Context
	logger    *zap.Logger
	gatherer  prometheus.Gatherer
	monitor   *feature.Monitor
	server    *http.Server
}

// Option 服务器选项
type Option func(*Server)

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGatherer 设置 /metrics 使用的指标源
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithFeatureMonitor 注册 /features
func WithFeatureMonitor(m *feature.Monitor) Option {
	return func(s *Server) { s.monitor = m }
}

// New 创建服务器。state 用于 /models，predictor 通常是带缓存的 Orchestrator。
func New(cfg Config, predictor inference.Predictor, state *inference.Context, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		predictor: predictor,
		state:     state,
		logger:    zap.NewNop(),
		gatherer:  prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler 返回挂好中间件的路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /predict", s.handlePredict)
	mux.HandleFunc("GET /models", s.handleModels)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.monitor != nil {
		mux.HandleFunc("GET /features", s.handleFeatures)
	}
	if s.cfg.MetricsPath != "" {
		mux.Handle("GET "+s.cfg.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	chain := Chain(
		RecoveryMiddleware(s.logger),
		RequestIDMiddleware,
		LoggerMiddleware(s.logger),
	)
	return chain(mux)
}

// Start 启动服务器，阻塞直到出错或被 Shutdown
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown 优雅停止
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回监听地址
func (s *Server) Addr() string {
	return s.server.Addr
}
