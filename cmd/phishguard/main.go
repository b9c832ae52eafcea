package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"phishguard/config"
	"phishguard/internal/aggregate"
	"phishguard/internal/analytics"
	"phishguard/internal/bridge"
	"phishguard/internal/classify"
	inputredis "phishguard/internal/input/redis"
	"phishguard/internal/livefeed"
	"phishguard/internal/logger"
	"phishguard/internal/metrics"
	"phishguard/internal/netmon"
	"phishguard/internal/notify"
	"phishguard/internal/output/reporthttp"
	"phishguard/internal/output/reportjson"
	"phishguard/internal/pipeline"
	"phishguard/internal/rules"
	"phishguard/internal/storage"
	"phishguard/pkg/models"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("phishguard.yml"); err == nil {
		return "phishguard.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "phishguard.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "phishguard.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.PhishGuard.Input.Redis.Addr == "" {
		cfg.PhishGuard.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.PhishGuard.Input.Redis.Key == "" {
		cfg.PhishGuard.Input.Redis.Key = "phishguard:requests"
	}
	if cfg.PhishGuard.Input.Redis.BlockTimeout == 0 {
		cfg.PhishGuard.Input.Redis.BlockTimeout = 5 * time.Second
	}

	if cfg.PhishGuard.Pipeline.Workers <= 0 {
		cfg.PhishGuard.Pipeline.Workers = 4
	}
	if cfg.PhishGuard.Pipeline.BatchSize <= 0 {
		cfg.PhishGuard.Pipeline.BatchSize = 100
	}
	if cfg.PhishGuard.Pipeline.FlushInterval <= 0 {
		cfg.PhishGuard.Pipeline.FlushInterval = 2 * time.Second
	}

	if cfg.PhishGuard.State.Mode == "" {
		cfg.PhishGuard.State.Mode = "file"
	}
	if cfg.PhishGuard.State.File == "" {
		cfg.PhishGuard.State.File = "data/state.json"
	}

	if cfg.PhishGuard.Notify.Mode == "" {
		cfg.PhishGuard.Notify.Mode = "file"
	}
	if cfg.PhishGuard.Notify.File.Path == "" {
		cfg.PhishGuard.Notify.File.Path = "output/reports.jsonl"
	}

	if cfg.PhishGuard.API.InstallIDFile == "" {
		cfg.PhishGuard.API.InstallIDFile = "data/install_id"
	}

	if cfg.PhishGuard.Metrics.Addr == "" {
		cfg.PhishGuard.Metrics.Addr = ":9090"
	}
	if cfg.PhishGuard.Metrics.Path == "" {
		cfg.PhishGuard.Metrics.Path = "/metrics"
	}

	if cfg.PhishGuard.Logging.Level == "" {
		cfg.PhishGuard.Logging.Level = "info"
	}
}

// loadInstallID reads the persisted install ID, minting and saving a
// fresh one on first run.
func loadInstallID(path string) (uuid.UUID, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id, parseErr := uuid.Parse(strings.TrimSpace(string(data)))
		if parseErr == nil {
			return id, nil
		}
		logger.Warnf("invalid install ID in %s, minting a new one", path)
	}

	id := uuid.New()
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return uuid.UUID{}, err
		}
	}
	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0600); err != nil {
		return uuid.UUID{}, err
	}
	return id, nil
}

func run(args []string) {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}

	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.PhishGuard.Logging.Enabled, cfg.PhishGuard.Logging.Level, cfg.PhishGuard.Logging.File, cfg.PhishGuard.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("PhishGuard starting")
	logger.Infof("Config loaded from: %s", configPath)

	installID, err := loadInstallID(cfg.PhishGuard.API.InstallIDFile)
	if err != nil {
		logger.Errorf("Failed to load install ID: %v", err)
		log.Fatalf("Failed to load install ID: %v", err)
	}

	consumer, err := inputredis.NewConsumer(inputredis.Config{
		Addr:         cfg.PhishGuard.Input.Redis.Addr,
		Password:     cfg.PhishGuard.Input.Redis.Password,
		DB:           cfg.PhishGuard.Input.Redis.DB,
		Key:          cfg.PhishGuard.Input.Redis.Key,
		BlockTimeout: cfg.PhishGuard.Input.Redis.BlockTimeout,
	})
	if err != nil {
		logger.Errorf("Failed to create Redis consumer: %v", err)
		log.Fatalf("Failed to create Redis consumer: %v", err)
	}

	var store aggregate.Store
	var storeCloser interface{ Close() error }
	switch cfg.PhishGuard.State.Mode {
	case "redis":
		s, err := storage.NewRedisStore(storage.RedisConfig{
			Addr:      cfg.PhishGuard.Input.Redis.Addr,
			Password:  cfg.PhishGuard.Input.Redis.Password,
			DB:        cfg.PhishGuard.Input.Redis.DB,
			KeyPrefix: cfg.PhishGuard.Input.Redis.KeyPrefix,
		})
		if err != nil {
			logger.Errorf("Failed to create Redis state store: %v", err)
			log.Fatalf("Failed to create Redis state store: %v", err)
		}
		store = s
		storeCloser = s
		logger.Infof("State store mode: redis (%s)", cfg.PhishGuard.Input.Redis.Addr)
	case "file":
		s, err := storage.NewFileStore(cfg.PhishGuard.State.File)
		if err != nil {
			logger.Errorf("Failed to create file state store: %v", err)
			log.Fatalf("Failed to create file state store: %v", err)
		}
		store = s
		logger.Infof("State store mode: file (%s)", cfg.PhishGuard.State.File)
	default:
		log.Fatalf("Unknown state store mode: %s", cfg.PhishGuard.State.Mode)
	}

	netCfg := netmon.FromConfig(cfg.PhishGuard.Network)

	agg := aggregate.New(aggregate.Config{
		FlushInterval:      cfg.PhishGuard.Aggregator.FlushInterval,
		ActivityHistoryCap: cfg.PhishGuard.Aggregator.ActivityHistoryCap,
		ExfilHistoryCap:    cfg.PhishGuard.Aggregator.ExfilHistoryCap,
		FingerprintCap:     cfg.PhishGuard.Aggregator.FingerprintCap,
		BehavioralCap:      cfg.PhishGuard.Aggregator.BehavioralCap,
	},
		aggregate.WithStore(store),
		aggregate.WithNotifier(notify.LogNotifier{}),
		aggregate.WithWhitelist(netCfg.Whitelist),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// State must be back before any monitor feeds reports.
	if err := agg.Rehydrate(ctx); err != nil {
		logger.Errorf("Failed to restore persisted state: %v", err)
		log.Fatalf("Failed to restore persisted state: %v", err)
	}

	var engine netmon.RuleEngine
	if cfg.PhishGuard.Rules.Enabled {
		if strings.TrimSpace(cfg.PhishGuard.Rules.Path) == "" {
			logger.Warnf("Rules enabled but rules.path is empty; rule matching disabled")
		} else {
			sigmaEngine, stats, err := rules.NewSigmaEngine(cfg.PhishGuard.Rules.Path)
			if err != nil {
				logger.Errorf("Failed to load Sigma rules from %s: %v", cfg.PhishGuard.Rules.Path, err)
				log.Fatalf("Failed to load Sigma rules: %v", err)
			}
			engine = sigmaEngine
			logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_datasource=%d skipped_invalid=%d files=%d",
				stats.Loaded,
				stats.SkippedComplex,
				stats.SkippedDatasource,
				stats.SkippedInvalid,
				stats.TotalFiles,
			)
			if stats.Loaded == 0 {
				logger.Warnf("No compatible Sigma rules loaded; rule matching is effectively disabled")
			}
		}
	}

	var writer pipeline.ReportWriter
	switch cfg.PhishGuard.Notify.Mode {
	case "file":
		w, err := reportjson.NewWriter(cfg.PhishGuard.Notify.File.Path)
		if err != nil {
			logger.Errorf("Failed to create report file writer: %v", err)
			log.Fatalf("Failed to create report file writer: %v", err)
		}
		writer = w
		logger.Infof("Report output mode: file (%s)", cfg.PhishGuard.Notify.File.Path)
	case "http":
		w, err := reporthttp.NewWriter(reporthttp.Config{
			URL:     cfg.PhishGuard.Notify.HTTP.URL,
			Timeout: cfg.PhishGuard.Notify.HTTP.Timeout,
			Headers: cfg.PhishGuard.Notify.HTTP.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create report HTTP writer: %v", err)
			log.Fatalf("Failed to create report HTTP writer: %v", err)
		}
		writer = w
		logger.Infof("Report output mode: http (%s)", cfg.PhishGuard.Notify.HTTP.URL)
	default:
		log.Fatalf("Unknown report output mode: %s", cfg.PhishGuard.Notify.Mode)
	}

	var m *metrics.Metrics
	if cfg.PhishGuard.Metrics.Enabled {
		m = metrics.New(metrics.Config{
			Addr: cfg.PhishGuard.Metrics.Addr,
			Path: cfg.PhishGuard.Metrics.Path,
		})
		m.Start()
	}

	var analyticsClient *analytics.Client
	if cfg.PhishGuard.API.AnalyticsURL != "" {
		analyticsClient = analytics.NewClient(analytics.Config{
			BaseURL: cfg.PhishGuard.API.AnalyticsURL,
		}, installID)
		logger.Infof("Analytics reporting to %s", cfg.PhishGuard.API.AnalyticsURL)
	}

	var classifier bridge.Classifier
	if cfg.PhishGuard.API.ClassifyURL != "" {
		classifier = classify.NewClient(classify.Config{
			URL:             cfg.PhishGuard.API.ClassifyURL,
			Timeout:         cfg.PhishGuard.API.ClassifyTimeout,
			SensitivityMode: cfg.PhishGuard.API.SensitivityMode,
		})
		logger.Infof("URL classification via %s", cfg.PhishGuard.API.ClassifyURL)
	}
	dispatcher := bridge.NewDispatcher(agg, classifier)

	// The pipeline is a report sink too, but it needs the monitor to
	// exist first. The closure breaks the construction cycle.
	var pipe *pipeline.RequestPipeline
	sink := netmon.SinkFunc(func(r models.Report) {
		agg.Report(r)
		if pipe != nil {
			pipe.Report(r)
		}
		if analyticsClient != nil && r.Severity.AtLeast(models.SeverityHigh) && r.URL != "" {
			go func(url string) {
				if err := analyticsClient.ReportActivity(ctx, url); err != nil {
					logger.Debugf("analytics report failed: %v", err)
				}
			}(r.URL)
		}
	})

	opts := []netmon.Option{
		netmon.WithBlacklist(agg),
		netmon.WithEnabled(agg.Enabled),
	}
	if engine != nil {
		opts = append(opts, netmon.WithRules(engine))
	}
	monitor, err := netmon.NewMonitor(netCfg, sink, opts...)
	if err != nil {
		logger.Errorf("Failed to create network monitor: %v", err)
		log.Fatalf("Failed to create network monitor: %v", err)
	}

	pipe = pipeline.NewRequestPipeline(
		consumer,
		monitor,
		agg,
		writer,
		m,
		cfg.PhishGuard.Pipeline.Workers,
		cfg.PhishGuard.Pipeline.BatchSize,
		cfg.PhishGuard.Pipeline.FlushInterval,
	)

	if cfg.PhishGuard.API.LiveFeedURL != "" {
		sub := livefeed.NewSubscriber(livefeed.Config{
			URL: cfg.PhishGuard.API.LiveFeedURL,
		}, func(data []byte) {
			var event struct {
				Domain string `json:"domain"`
				Reason string `json:"reason"`
			}
			if err := json.Unmarshal(data, &event); err != nil {
				logger.Debugf("unparseable feed event: %v", err)
				return
			}
			if event.Domain != "" {
				if event.Reason == "" {
					event.Reason = "threat feed"
				}
				if _, err := dispatcher.Dispatch(ctx, bridge.Message{
					Action: bridge.ActionBlockConnection,
					Domain: event.Domain,
					Reason: event.Reason,
				}); err != nil {
					logger.Warnf("feed block failed: %v", err)
				}
			}
		})
		go sub.Run(ctx)
		logger.Infof("Subscribed to threat feed at %s", cfg.PhishGuard.API.LiveFeedURL)
	}

	go agg.Run(ctx)
	go func() {
		if err := pipe.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("Pipeline error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()
	time.Sleep(1 * time.Second)

	if err := pipe.Close(); err != nil {
		logger.Errorf("Error closing pipeline: %v", err)
	}
	if m != nil {
		m.Close()
	}
	if storeCloser != nil {
		if err := storeCloser.Close(); err != nil {
			logger.Errorf("Error closing state store: %v", err)
		}
	}

	logger.Infof("PhishGuard stopped")
}

func main() {
	if len(os.Args) > 1 {
		run(os.Args[1:])
		return
	}
	run(nil)
}
