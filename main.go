// Package main provides the Fronius Gen24 collector entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fronius-io/gen24-collector/collector"
	"github.com/fronius-io/gen24-collector/config"
	"github.com/fronius-io/gen24-collector/discovery"
	"github.com/fronius-io/gen24-collector/httpapi"
	"github.com/fronius-io/gen24-collector/inverter"
	"github.com/fronius-io/gen24-collector/metrics"
	"github.com/fronius-io/gen24-collector/push"
	"github.com/fronius-io/gen24-collector/site"
)

const inverterRequestTimeout = 5 * time.Second

func main() {
	port := flag.Int("port", 0, "HTTP port override (defaults to PORT env var, then 8080)")
	help := flag.Bool("help", false, "Show help message")
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}

	logger := log.New(os.Stdout, "[GEN24] ", log.LstdFlags)

	pushClient, err := buildPushClient(cfg, logger)
	if err != nil {
		fmt.Println("Error in push configuration:", err)
		os.Exit(1)
	}

	client := inverter.NewClient(inverterRequestTimeout)
	st := site.New(client)
	discoverer := discovery.New(logger)
	coll := collector.New(st, discoverer, pushClient, logger)

	if pushClient != nil && cfg.PushEnabled {
		result := pushClient.SelfTest(context.Background())
		coll.RecordPushTest(result)
		logger.Printf("push self-test: success=%v", result.Success)
	}

	server := httpapi.NewServer(cfg, coll, logger)
	server.Mux().Handle("/metrics", buildMetricsHandler(coll))
	server.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go coll.Run(ctx)

	logger.Printf("collector running on port %d. Press Ctrl+C to stop...", cfg.Port)
	<-sigChan
	logger.Printf("shutdown signal received, stopping...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Printf("error stopping HTTP server: %v", err)
	}

	logger.Printf("collector stopped")
}

func buildPushClient(cfg *config.Config, logger *log.Logger) (*push.Client, error) {
	if !cfg.PushConfigured {
		return nil, nil
	}
	if errs := cfg.ValidatePush(); len(errs) > 0 {
		return nil, errs[0]
	}
	return push.New(cfg.PushAPIKey, cfg.PushURL(), cfg.PushEnabled, logger)
}

func buildMetricsHandler(coll *collector.Collector) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(coll))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func showHelp() {
	fmt.Println("gen24-collector - Discover and poll Fronius Gen24 inverters on the local network")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Discovers Fronius Gen24 inverters via ARP, polls them every two seconds,")
	fmt.Println("  integrates their power samples into running energy totals, and serves the")
	fmt.Println("  result over HTTP: a status endpoint, a server-sent events stream, and a")
	fmt.Println("  rolling history. Optionally pushes a once-a-minute report to a remote")
	fmt.Println("  collection server.")
	fmt.Println()
	fmt.Println("CONFIGURATION (environment variables):")
	fmt.Println("  PORT               HTTP listen port (default 8080)")
	fmt.Println("  LIVEONE_API_KEY    Push client API key, must start with \"fr_\"")
	fmt.Println("  LIVEONE_SERVER     Push destination base URL (http:// or https://)")
	fmt.Println("  LIVEONE_ENABLED    \"true\" or \"false\"; all three LIVEONE_* vars are required together")
	fmt.Println("  LIVEONE_LATITUDE   Site latitude, enables sunrise/sunset/solar-angle reporting")
	fmt.Println("  LIVEONE_LONGITUDE  Site longitude")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  gen24-collector [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
}
