package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slopewatch/evac-cli/internal/evac"
	"github.com/slopewatch/evac-cli/internal/geo"
	"github.com/slopewatch/evac-cli/internal/sensor"
)

var servePort int

// evaluator is the engine surface the HTTP layer depends on.
type evaluator interface {
	Evaluate(ctx context.Context, user geo.Point, records []sensor.Record) (*evac.Decision, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP evaluation server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(e.Engine, e.Source),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(engine evaluator, source sensor.Source) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/evaluate", func(w http.ResponseWriter, req *http.Request) {
		var in struct {
			Latitude  *float64        `json:"latitude"`
			Longitude *float64        `json:"longitude"`
			Records   []sensor.Record `json:"records"`
		}
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if in.Latitude == nil || in.Longitude == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "latitude and longitude are required"})
			return
		}

		user := geo.Point{Lat: *in.Latitude, Lng: *in.Longitude}
		if err := user.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		// Inline records bypass the configured source, for callers that
		// already hold fresh sensor data.
		records := in.Records
		if records == nil {
			var err error
			records, err = source.Sensors(req.Context())
			if err != nil {
				zap.L().Error("sensor fetch failed", zap.Error(err))
				writeJSON(w, http.StatusBadGateway, map[string]string{"error": "sensor data unavailable"})
				return
			}
		}

		decision, err := engine.Evaluate(req.Context(), user, records)
		if err != nil {
			zap.L().Error("evaluation failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "evaluation failed"})
			return
		}

		writeJSON(w, http.StatusOK, decision)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
