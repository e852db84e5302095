package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FlowPilot/internal/classifier"
	_ "FlowPilot/internal/classifier/mlmodel"
	_ "FlowPilot/internal/classifier/rule"
	"FlowPilot/internal/config"
	"FlowPilot/internal/controller"
	"FlowPilot/internal/export"
	"FlowPilot/internal/model"
	"FlowPilot/internal/stats"
	"FlowPilot/internal/transport"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.Info("Starting fp-controller...")

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Metrics collector
	collector := stats.NewCollector(prometheus.DefaultRegisterer)

	// 3. Classifier, selected by config and created through the registry
	cls, err := classifier.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create classifier: %v", err)
	}
	log.WithField("kind", cls.Kind()).Info("Classifier ready")

	// 4. Command publisher towards the switches
	publisher, err := transport.NewCommandPublisher(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to create command publisher: %v", err)
	}
	defer publisher.Close()

	// 5. Optional record export to ClickHouse
	var recorder controller.Recorder
	var exporter *export.Exporter
	if cfg.Export.Enabled {
		writer, err := export.NewClickHouseWriter(cfg.Export.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to create ClickHouse writer: %v", err)
		}
		exporter, err = export.NewExporter(cfg.Export, []model.RecordWriter{writer})
		if err != nil {
			log.Fatalf("Failed to create exporter: %v", err)
		}
		exporter.Start()
		recorder = exporter
	}

	// 6. The flow-control engine itself
	ctrl, err := controller.New(cfg, cls, publisher, collector, recorder)
	if err != nil {
		log.Fatalf("Failed to create controller: %v", err)
	}

	// 7. Inbound switch events
	subscriber, err := transport.NewSubscriber(cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to create event subscriber: %v", err)
	}
	if err := subscriber.Start(ctrl); err != nil {
		log.Fatalf("Failed to subscribe to switch events: %v", err)
	}

	// 8. HTTP surface: Prometheus metrics plus a JSON counter snapshot
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/api/v1/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(collector.Export()); err != nil {
			log.WithError(err).Warn("Failed to write stats response")
		}
	}).Methods("GET")

	server := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: r,
	}
	go func() {
		log.Infof("HTTP server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// 9. Wait for a shutdown signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutdown signal received, stopping controller...")
	subscriber.Close()
	ctrl.Stop()
	if exporter != nil {
		exporter.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	log.Info("Shutdown complete.")
}
