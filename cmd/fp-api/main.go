package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FlowPilot/internal/config"
	"FlowPilot/internal/query"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file")
	listenAddr := flag.String("listen", ":8081", "API listen address")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if !cfg.Export.Enabled {
		log.Fatal("Record export is disabled in config. API server has nothing to serve.")
	}

	querier, err := query.NewClickHouseQuerier(cfg.Export.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to create querier: %v", err)
	}

	apiHandler := &APIHandler{querier: querier}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/traffic/summary", apiHandler.typeSummaryHandler).Methods("GET")
	r.HandleFunc("/api/v1/switches/summary", apiHandler.switchSummaryHandler).Methods("GET")

	server := &http.Server{
		Addr:    *listenAddr,
		Handler: r,
	}

	go func() {
		log.Infof("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("API server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Info("API server exited.")
}

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	querier query.Querier
}

// sinceParam parses the optional ?since duration parameter, defaulting to
// the last hour.
func sinceParam(r *http.Request) (time.Time, error) {
	window := time.Hour
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid 'since' duration: %w", err)
		}
		window = d
	}
	return time.Now().Add(-window), nil
}

func (h *APIHandler) typeSummaryHandler(w http.ResponseWriter, r *http.Request) {
	since, err := sinceParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	summaries, err := h.querier.SummarizeByType(r.Context(), since)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query records: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

func (h *APIHandler) switchSummaryHandler(w http.ResponseWriter, r *http.Request) {
	since, err := sinceParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	summaries, err := h.querier.SummarizeBySwitch(r.Context(), since)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query records: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}
