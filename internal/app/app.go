package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edupath/guidance-backend/internal/assessment"
	"github.com/edupath/guidance-backend/internal/assessment/timer"
	"github.com/edupath/guidance-backend/internal/auth"
	"github.com/edupath/guidance-backend/internal/auth/jwt"
	"github.com/edupath/guidance-backend/internal/config"
	"github.com/edupath/guidance-backend/internal/genai"
	"github.com/edupath/guidance-backend/internal/logging"
	"github.com/edupath/guidance-backend/internal/recommend"
	"github.com/edupath/guidance-backend/internal/server"
	"github.com/edupath/guidance-backend/internal/store"
	ws "github.com/edupath/guidance-backend/pkg/http/ws"
)

// Application aggregates shared infrastructure (DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server

	arena         *timer.Arena
	assessmentSvc *assessment.Service
	bgCancels     []context.CancelFunc
}

// New bootstraps config, logger, Postgres, Redis, the countdown arena, and
// the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN()+" pool_max_conns=10")
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	db := store.NewPostgres(pool)
	validator := jwt.NewValidator([]byte(cfg.Security.JWTSecret))

	var generator genai.Generator
	if cfg.Generator.URL != "" {
		generator = genai.NewClient(genai.Config{
			URL:     cfg.Generator.URL,
			APIKey:  cfg.Generator.APIKey,
			Timeout: cfg.Generator.HTTPTimeout,
		}, logger)
	} else {
		return nil, fmt.Errorf("generator endpoint must be configured (set GENERATOR_URL)")
	}

	timerStore := timer.NewRedisStore(redisClient, cfg.Assessment.SessionTTL)
	arena := timer.NewArena(timerStore, logger)
	stateMgr := assessment.NewStateManager(redisClient, cfg.Assessment.SessionTTL, logger)

	recommendSvc := recommend.NewService(db, db, generator, logger)

	assessmentSvc := assessment.NewService(
		db,
		db,
		stateMgr,
		arena,
		generator,
		recommendSvc,
		assessment.Config{
			QuestionCount:      cfg.Assessment.QuestionCount,
			SecondsPerQuestion: cfg.Assessment.SecondsPerQuestion,
		},
		logger,
	)

	wsHub := ws.NewHub(logger)
	authMW := auth.Middleware(validator, logger)
	protect := func(h http.HandlerFunc) http.Handler {
		return authMW(auth.RequireUser(h))
	}

	assessmentHandler := assessment.NewHTTPHandler(assessmentSvc, logger)
	recommendHandler := recommend.NewHTTPHandler(recommendSvc, logger)
	streamHandler := assessment.NewStreamHandler(assessmentSvc, wsHub, validator, logger)

	apiServer := server.NewHTTPServer(cfg, logger, pool, redisClient, server.Routes{
		CreateAssessment:    protect(assessmentHandler.HandleCreate),
		ViewAssessment:      protect(assessmentHandler.HandleView),
		RecordAnswer:        protect(assessmentHandler.HandleAnswer),
		SubmitAssessment:    protect(assessmentHandler.HandleSubmit),
		ViewAttempt:         protect(assessmentHandler.HandleAttempt),
		RetryRecommendation: protect(assessmentHandler.HandleRetryRecommendation),
		LatestRecommend:     protect(recommendHandler.HandleLatest),
		RecommendRanking:    protect(recommendHandler.HandleRanking),
		AssessmentStream:    streamHandler.HandleWebSocket,
	})

	return &Application{
		cfg:           cfg,
		logger:        logger,
		pool:          pool,
		redis:         redisClient,
		http:          apiServer,
		arena:         arena,
		assessmentSvc: assessmentSvc,
		bgCancels:     make([]context.CancelFunc, 0, 2),
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}

	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}

// startBackgroundWorkers launches the countdown ticker and the expiry
// consumer that routes expired sessions into the guarded submit path.
func (a *Application) startBackgroundWorkers(ctx context.Context) {
	tickCtx, cancelTick := context.WithCancel(ctx)
	a.bgCancels = append(a.bgCancels, cancelTick)
	go func() {
		if err := a.arena.Run(tickCtx); err != nil && err != context.Canceled {
			a.logger.Warn().Err(err).Msg("countdown ticker stopped")
		}
	}()

	expiryCtx, cancelExpiry := context.WithCancel(ctx)
	a.bgCancels = append(a.bgCancels, cancelExpiry)
	go func() {
		if err := a.assessmentSvc.RunExpiryWorker(expiryCtx); err != nil && err != context.Canceled {
			a.logger.Warn().Err(err).Msg("expiry worker stopped")
		}
	}()
}
