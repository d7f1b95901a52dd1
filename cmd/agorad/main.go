package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agorachain/config"
	"agorachain/core/events"
	"agorachain/core/state"
	"agorachain/core/types"
	"agorachain/native/escrow"
	"agorachain/native/marketplace"
	"agorachain/native/reputation"
	"agorachain/observability/logging"
	"agorachain/observability/metrics"
	"agorachain/storage"
)

var hostTickKey = []byte("host/tick")

// logEmitter forwards marketplace events to the structured log and the
// metrics registry.
type logEmitter struct {
	log     *slog.Logger
	metrics *metrics.MarketplaceMetrics
}

func (l *logEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	l.metrics.ObserveEvent(evt.EventType())
	attrs := []any{slog.String("type", evt.EventType())}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				attrs = append(attrs, slog.String(key, value))
			}
		}
	}
	l.log.Info("marketplace event", attrs...)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := os.Getenv("AGORA_ENV")
	logger := logging.Setup("agorad", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	params, err := cfg.MarketplaceParams()
	if err != nil {
		logger.Error("invalid marketplace parameters", slog.Any("error", err))
		os.Exit(1)
	}
	interval, err := time.ParseDuration(cfg.TickInterval)
	if err != nil || interval <= 0 {
		logger.Error("invalid tick interval", slog.String("value", cfg.TickInterval))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "marketplace"))
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	mkMetrics := metrics.Marketplace()
	if cfg.MetricsAddress != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddress, nil); err != nil {
				logger.Error("metrics listener stopped", slog.Any("error", err))
			}
		}()
	}

	tick, err := loadTick(db)
	if err != nil {
		logger.Error("failed to restore tick counter", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("agorad started",
		slog.String("network", cfg.NetworkName),
		slog.Uint64("tick", tick),
		slog.String("dataDir", cfg.DataDir))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			logger.Info("agorad stopping", slog.Uint64("tick", tick))
			return
		case <-ticker.C:
			tick++
			if err := runTick(db, params, tick, logger, mkMetrics); err != nil {
				logger.Error("tick failed", slog.Uint64("tick", tick), slog.Any("error", err))
				os.Exit(1)
			}
		}
	}
}

// runTick advances the host by one tick: the sweep runs first, then the tick
// counter persists, all inside one overlay so a failed transition leaves the
// base state untouched.
func runTick(db storage.Database, params marketplace.Params, tick uint64, logger *slog.Logger, mkMetrics *metrics.MarketplaceMetrics) error {
	overlay := storage.NewOverlay(db)
	manager := state.NewManager(overlay)
	engine := marketplace.NewEngine(manager, escrow.NewVault(manager), reputation.NewLedger(manager))
	if err := engine.SetParams(params); err != nil {
		return err
	}
	engine.SetTickFunc(func() uint64 { return tick })
	engine.SetEmitter(&logEmitter{log: logger, metrics: mkMetrics})

	expired, err := engine.Sweep(tick)
	if err != nil {
		overlay.Discard()
		mkMetrics.ObserveCallError("sweep")
		return fmt.Errorf("sweep: %w", err)
	}
	if err := manager.KVPut(hostTickKey, tick); err != nil {
		overlay.Discard()
		return err
	}
	if err := overlay.Flush(); err != nil {
		return err
	}
	mkMetrics.ObserveSweep(expired)
	mkMetrics.SetCurrentTick(tick)
	if expired > 0 {
		logger.Info("sweep settled overdue invocations",
			slog.Uint64("tick", tick), slog.Int("expired", expired))
	}
	return nil
}

func loadTick(db storage.Database) (uint64, error) {
	manager := state.NewManager(db)
	var tick uint64
	ok, err := manager.KVGet(hostTickKey, &tick)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return tick, nil
}
