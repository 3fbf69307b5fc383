package main

import (
	"context"
	"flag"
	"fmt"
	"net/netip"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"sdwan-overlay/api"
	"sdwan-overlay/internal/alert"
	"sdwan-overlay/internal/config"
	"sdwan-overlay/internal/dataplane"
	"sdwan-overlay/internal/health"
	"sdwan-overlay/internal/metrics"
	"sdwan-overlay/internal/model"
	"sdwan-overlay/internal/probe"
	"sdwan-overlay/internal/routing"
	"sdwan-overlay/internal/store"
	"sdwan-overlay/internal/utils"
)

func main() {
	var (
		configFile = flag.String("config", "configs/sdwan.yaml", "Configuration file path (YAML)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("Failed to load config %s: %v\n", *configFile, err)
		fmt.Println("Using default configuration...")
		cfg = config.Default()
	} else {
		fmt.Printf("Loaded configuration from %s\n", *configFile)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	siteID := model.NewSiteID()
	if cfg.Site.ID != "" {
		siteID, err = model.ParseSiteID(cfg.Site.ID)
		if err != nil {
			logger.Fatalf("Bad site id %q: %v", cfg.Site.ID, err)
		}
	}
	logger.Infof("Starting overlay node %s (site %s)", cfg.Site.Name, siteID)

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}
	defer db.Close()

	prober := probe.New(probe.Config{
		Count:      cfg.Probe.Count,
		Timeout:    time.Duration(cfg.Probe.TimeoutSeconds) * time.Second,
		Interval:   time.Duration(cfg.Probe.IntervalMillis) * time.Millisecond,
		Strategy:   probe.ParseStrategy(cfg.Probe.Strategy),
		TargetPort: uint16(cfg.Probe.TargetPort),
	}, logger)

	promMetrics := metrics.NewPrometheusMetrics()

	monitor := health.NewMonitor(health.Config{
		CheckInterval: time.Duration(cfg.Health.CheckIntervalSeconds) * time.Second,
		PersistEvery:  cfg.Health.PersistEvery,
	}, prober, db, logger)
	watcher := alert.NewStatusWatcher(logger)
	if cfg.Alerting.Enabled {
		watcher.Register(alert.NewLogNotifier(logger))
		if cfg.Alerting.WebhookURL != "" {
			watcher.Register(alert.NewWebhookNotifier(cfg.Alerting.WebhookURL, true, logger))
		}
	}
	monitor.SetOnUpdate(func(h model.PathHealth) {
		promMetrics.RecordHealth(h)
		watcher.Observe(h)
	})

	dp, err := dataplane.New(dataplane.Config{
		ListenAddr: cfg.DataPlane.ListenAddr,
		MTU:        cfg.DataPlane.MTU,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to start data plane: %v", err)
	}

	utilization := health.NewRateUtilization(dp)
	monitor.SetUtilizationSource(utilization)

	engine := routing.NewEngine(monitor, logger)
	engine.SetOnFailover(func(flow model.FlowKey, from, to model.PathID) {
		promMetrics.RecordFailover(from, to)
	})
	engine.SetOnBind(func(flow model.FlowKey, path model.PathID) {
		promMetrics.RecordSelection(path)
	})
	engine.SetOnDenied(func(flow model.FlowKey) {
		promMetrics.RecordDenied()
	})

	for _, pc := range cfg.Paths {
		target := netip.MustParseAddr(pc.Target)
		monitor.RegisterPath(model.Path{
			ID:            model.PathID(pc.ID),
			Site:          siteID,
			Name:          pc.Name,
			Target:        target,
			BandwidthMbps: pc.BandwidthMbps,
		})
		engine.SetBandwidth(model.PathID(pc.ID), pc.BandwidthMbps)
		utilization.SetBandwidth(model.PathID(pc.ID), pc.BandwidthMbps)

		if pc.Remote != "" {
			remote := netip.MustParseAddrPort(pc.Remote)
			dp.AddTunnel(model.TunnelEndpoint{
				SiteID:             siteID,
				PathID:             model.PathID(pc.ID),
				RemoteAddr:         remote,
				CompressionEnabled: pc.Compression,
			})
			dp.AddRoute(target, model.PathID(pc.ID))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		monitor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		dp.Run(ctx)
	}()

	// Export data plane counters on a slow cadence
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				promMetrics.UpdateDataPlane(dp.Stats())
			}
		}
	}()

	srv := api.NewServer(cfg.API.ListenAddr, monitor, engine, dp, logger)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Errorf("API server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown error: %v", err)
	}

	wg.Wait()
	logger.Info("Shutdown complete")
}
