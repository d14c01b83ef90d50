package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edupath/guidance-backend/internal/config"
)

// WSUpgrader handles WebSocket upgrades for the countdown stream.
var WSUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to configured origins once the frontend host list settles
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Routes carries the mux-ready handlers supplied by the domain packages. The
// assessment handlers must already sit behind the auth middleware; the stream
// handler authenticates itself via the token query parameter.
type Routes struct {
	CreateAssessment    http.Handler
	ViewAssessment      http.Handler
	RecordAnswer        http.Handler
	SubmitAssessment    http.Handler
	ViewAttempt         http.Handler
	RetryRecommendation http.Handler
	LatestRecommend     http.Handler
	RecommendRanking    http.Handler
	AssessmentStream    http.HandlerFunc
}

// NewHTTPServer wires base routes (health, metrics) plus the domain surface.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, pool *pgxpool.Pool, rdb *redis.Client, routes Routes) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pingDependencies(r.Context(), pool, rdb); err != nil {
			logger.Error().Err(err).Msg("dependency ping failed")
			http.Error(w, "upstream error", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	mux.Handle("/metrics", promhttp.Handler())

	if routes.CreateAssessment != nil {
		mux.Handle("POST /v1/assessments", routes.CreateAssessment)
		mux.Handle("GET /v1/assessments/{id}", routes.ViewAssessment)
		mux.Handle("POST /v1/assessments/{id}/answers", routes.RecordAnswer)
		mux.Handle("POST /v1/assessments/{id}/submit", routes.SubmitAssessment)
		mux.Handle("GET /v1/assessments/{id}/attempt", routes.ViewAttempt)
		mux.Handle("POST /v1/assessments/{id}/recommendation/retry", routes.RetryRecommendation)
	}

	if routes.LatestRecommend != nil {
		mux.Handle("GET /v1/recommendations", routes.LatestRecommend)
		mux.Handle("GET /v1/recommendations/ranking", routes.RecommendRanking)
	}

	if routes.AssessmentStream != nil {
		mux.HandleFunc("/ws/assessments", routes.AssessmentStream)
	}

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: corsMiddleware(cfg.CORS, mux),
	}
}

func pingDependencies(ctx context.Context, pool *pgxpool.Pool, rdb *redis.Client) error {
	if err := pool.Ping(ctx); err != nil {
		return err
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}
	return nil
}

func corsMiddleware(cfg config.CORS, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowedMethods, ", "))
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
			w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
