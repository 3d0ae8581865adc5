// cardiokit 命令行：单条预测或启动 HTTP 服务。
//
//	cardiokit predict [-config cardiokit.yaml] [-input record.json|-] ['{"Age": 61, ...}']
//	cardiokit serve   [-config cardiokit.yaml]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/rushteam/cardiokit/config"
	"github.com/rushteam/cardiokit/core"
	"github.com/rushteam/cardiokit/feature"
	"github.com/rushteam/cardiokit/inference"
	"github.com/rushteam/cardiokit/pipeline"
	"github.com/rushteam/cardiokit/pkg/logx"
	"github.com/rushteam/cardiokit/server"
	"github.com/rushteam/cardiokit/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "predict":
		err = runPredict(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "cardiokit: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  cardiokit predict [-config file] [-input file|-] [record-json]
  cardiokit serve   [-config file]

config path falls back to $`+config.EnvConfigPath)
}

// exitCode 输入错误返回 2，其余（包括产物缺失）返回 1
func exitCode(err error) int {
	if core.IsInvalidInput(err) {
		return 2
	}
	return 1
}

// setup 加载配置、日志、产物，返回预测器与共享状态
func setup(ctx context.Context, path string, reg prometheus.Registerer, extra ...pipeline.Hook) (*config.Config, *zap.Logger, inference.Predictor, *inference.Context, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	logger, err := logx.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	hooks := []pipeline.Hook{inference.NewLogObserver(logger)}
	if reg != nil {
		metrics, err := inference.NewMetricsObserver(reg)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		hooks = append(hooks, metrics)
	}
	hooks = append(hooks, extra...)
	opts, err := cfg.InferenceOptions(hooks...)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	s, err := store.Open(cfg.StoreOptions())
	if err != nil {
		return nil, nil, nil, nil, err
	}
	defer s.Close()

	start := time.Now()
	c, err := inference.NewLoader(inference.LoadFromStore(s, opts)).Load(ctx)
	if err != nil {
		logger.Error("load artifacts failed", zap.String("store", s.Name()), zap.Error(err))
		return nil, nil, nil, nil, err
	}
	logger.Info("artifacts loaded",
		zap.String("store", c.Bundle.Source),
		zap.Strings("ensemble", c.Spec.Models),
		zap.Int("rules", c.Rules.Len()),
		zap.Duration("elapsed", time.Since(start)))

	var cacheOpts []inference.CacheOption
	if reg != nil {
		cacheOpts = append(cacheOpts, inference.WithCacheMetrics(reg))
	}
	predictor, err := inference.NewCachedPredictor(inference.NewOrchestrator(c), cfg.Cache.Size, cacheOpts...)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return cfg, logger, predictor, c, nil
}

func runPredict(args []string) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file (yaml or json)")
	input := fs.String("input", "", "record file, - for stdin")
	pretty := fs.Bool("pretty", true, "indent output")
	if err := fs.Parse(args); err != nil {
		return core.WrapDomainError("cli", core.ErrorCodeInvalidInput, err, "parse flags")
	}

	raw, err := readInput(*input, fs.Args())
	if err != nil {
		return err
	}
	var record core.InputRecord
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&record); err != nil {
		return core.WrapDomainError("cli", core.ErrorCodeInvalidInput, err, "decode record")
	}

	ctx := context.Background()
	_, logger, predictor, _, err := setup(ctx, *configPath, nil)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	res, err := predictor.Predict(ctx, record)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res)
}

// readInput 优先使用 -input，其次是位置参数
func readInput(input string, args []string) ([]byte, error) {
	switch {
	case input == "-":
		return io.ReadAll(os.Stdin)
	case input != "":
		return os.ReadFile(input)
	case len(args) > 0:
		return []byte(args[0]), nil
	default:
		return nil, core.NewDomainError("cli", core.ErrorCodeInvalidInput, "record json or -input is required")
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file (yaml or json)")
	if err := fs.Parse(args); err != nil {
		return core.WrapDomainError("cli", core.ErrorCodeInvalidInput, err, "parse flags")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	monitor := feature.NewMonitor(0)
	cfg, logger, predictor, c, err := setup(ctx, *configPath, reg, monitor)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	scfg := server.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}
	if cfg.Metrics.Enabled {
		scfg.MetricsPath = cfg.Metrics.Path
	}
	srv := server.New(scfg, predictor, c, server.WithLogger(logger), server.WithGatherer(reg),
		server.WithFeatureMonitor(monitor))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
