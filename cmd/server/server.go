package main

import (
	"context"
	"net/http"

	"hdbinsights/app"
	"hdbinsights/config"
	"hdbinsights/handlers"
	"hdbinsights/logging"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	services, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Close()

	var recorder handlers.TurnRecorder
	if services.Turns != nil {
		recorder = services.Turns
	}

	router := newRouter(services, recorder, logger)

	addr := ":" + cfg.Port
	logger.Info().Str("addr", addr).Msg("Server starting")

	if err := http.ListenAndServe(addr, router); err != nil {
		logger.Fatal().Err(err).Msg("Server failed to start")
	}
}

func newRouter(services *app.App, recorder handlers.TurnRecorder, logger zerolog.Logger) *mux.Router {
	router := mux.NewRouter()

	router.Use(corsMiddleware)
	router.Use(jsonMiddleware)

	router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("OPTIONS")

	handlers.NewAgentHandler(services.Agent, recorder, logger).RegisterRoutes(router)
	handlers.NewVisualisationHandler(services.Store, logger).RegisterRoutes(router)
	handlers.NewPageHandler(services.Agent, recorder, services.Store, logger).RegisterRoutes(router)
	if services.Turns != nil {
		handlers.NewTurnHandler(services.Turns, logger).RegisterRoutes(router)
	}

	router.HandleFunc("/health", healthCheckHandler).Methods("GET")

	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Expose-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "healthy"}`))
}
