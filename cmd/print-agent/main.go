package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/repairmind/print-agent/internal/agent"
	"github.com/repairmind/print-agent/internal/config"
	"github.com/repairmind/print-agent/internal/store"
)

const version = "2.0.0"

func main() {
	var configFile, envFile, testPrinter string
	var verbose bool

	flag.StringVar(&configFile, "config", "", "Path to the YAML config file")
	flag.StringVar(&envFile, "env-file", "", "Path to a .env file to load")
	flag.StringVar(&testPrinter, "test-print", "", "Submit a local test receipt to the named printer after startup")
	flag.BoolVar(&verbose, "verbose", false, "Use verbose log output")
	flag.Parse()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Fatalf("Can't load env file: %v", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("Can't load config: %v", err)
	}

	settings, err := store.Open(config.DefaultStorePath())
	if err != nil {
		log.Fatalf("Can't open settings store: %v", err)
	}
	defer settings.Close()

	applyStore(cfg, settings)
	cfg.ApplyEnv()
	if err := cfg.ResolveProfile(); err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	setupLogging(cfg, verbose)

	if expired := settings.TokenExpired(time.Now()); expired && cfg.Backend.Token != "" {
		log.Warn("Stored token looks expired, authentication may be rejected")
	}

	a, err := agent.New(cfg, log.StandardLogger())
	if err != nil {
		log.Fatalf("Can't create agent: %v", err)
	}

	a.Bus().Subscribe(func(ev agent.Event) {
		switch ev.Type {
		case agent.EventAuthError:
			log.Errorf("Authentication failed: %s", ev.Message)
		case agent.EventReconnecting:
			log.Info(ev.Message)
		case agent.EventError:
			log.Error(ev.Message)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		log.Fatalf("Can't start agent: %v", err)
	}

	printBanner(cfg, a)

	if testPrinter != "" {
		if id, ok := a.SubmitTestJob(testPrinter); ok {
			log.Infof("Test job %s queued on %s", id, testPrinter)
		} else {
			log.Errorf("Test job on %s was rejected", testPrinter)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	statusTicker := time.NewTicker(60 * time.Second)
	defer statusTicker.Stop()

	for {
		select {
		case <-statusTicker.C:
			printStatusLine(a)
		case sig := <-sigCh:
			log.Infof("Received %s, shutting down", sig)
			a.Stop()
			printFinalMetrics(a)
			return
		}
	}
}

// applyStore layers persisted settings over file config; env still wins.
func applyStore(cfg *config.Config, settings *store.Store) {
	cfg.Environment = settings.GetOr(store.KeyEnvironment, cfg.Environment)
	cfg.Backend.TenantID = settings.GetOr(store.KeyTenantID, cfg.Backend.TenantID)
	cfg.Backend.ClientID = settings.GetOr(store.KeyClientID, cfg.Backend.ClientID)
	cfg.Backend.APIKey = settings.GetOr(store.KeyAPIKey, cfg.Backend.APIKey)
	cfg.Backend.Token = settings.GetOr(store.KeyToken, cfg.Backend.Token)
	cfg.Backend.AutoRegister = settings.GetBool(store.KeyAutoRegister, cfg.Backend.AutoRegister)
	if v := settings.GetOr(store.KeyHeartbeatInterval, ""); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			cfg.Backend.HeartbeatInterval = d
		}
	}
}

func setupLogging(cfg *config.Config, verbose bool) {
	if cfg.Logging.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = log.InfoLevel
	}
	if verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
}

func printBanner(cfg *config.Config, a *agent.Agent) {
	fmt.Printf("RepairMind Print Agent v%s (%s)\n", version, cfg.Environment)
	fmt.Printf("Backend: %s\n", cfg.Backend.WebsocketURL)

	printers := a.Printers()
	if len(printers) == 0 {
		fmt.Println("No printers detected")
		return
	}
	fmt.Printf("Detected printers (%d):\n", len(printers))
	for _, p := range printers {
		def := " "
		if p.Metadata.IsDefault {
			def = "*"
		}
		fmt.Printf("  %s %-30s %-10s %-10s %s\n", def, p.SystemName, p.Type, p.Transport, p.Metadata.Status)
	}
}

func printStatusLine(a *agent.Agent) {
	snap := a.Metrics().Snapshot()
	stats := a.Queue().GetStats()
	log.Infof("up %s | queued=%d processing=%d completed=%d failed=%d | received=%d reconnects=%d success=%.0f%%",
		snap.Uptime.Round(time.Second), stats.Queued, stats.Processing,
		stats.Completed, stats.Failed, snap.JobsReceived, snap.Reconnections,
		snap.SuccessRate*100)
}

func printFinalMetrics(a *agent.Agent) {
	snap := a.Metrics().Snapshot()
	fmt.Printf("Session summary: uptime %s, %d received, %d completed, %d failed, %d expired, %d reconnections\n",
		snap.Uptime.Round(time.Second), snap.JobsReceived, snap.JobsCompleted,
		snap.JobsFailed, snap.JobsExpired, snap.Reconnections)
}
