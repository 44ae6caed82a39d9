package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"instaflow/internal/adapters/instagram"
	"instaflow/internal/adapters/repo"
	"instaflow/internal/adapters/replygen"
	"instaflow/internal/domain"
	"instaflow/internal/infra/cache"
	"instaflow/internal/infra/config"
	"instaflow/internal/infra/db"
	httpinfra "instaflow/internal/infra/http"
	"instaflow/internal/infra/log"
	"instaflow/internal/infra/metrics"
	openaiinfra "instaflow/internal/infra/openai"
	"instaflow/internal/usecase/webhook"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("webhook-gateway: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var dedup domain.Cache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		dedup = cache.NewRedis(redisClient)
	} else {
		logger.Warn().Msg("webhook-gateway: REDIS_ADDR не задан, дедупликация доставок отключена")
	}

	var generator domain.ReplyGenerator
	if cfg.OpenAI.APIKey != "" {
		openaiClient := openaiinfra.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		generator = replygen.NewOpenAI(openaiClient, cfg.OpenAI.Model, cfg.OpenAI.Timeout)
	} else {
		logger.Warn().Msg("webhook-gateway: OPENAI_API_KEY не задан, автоответы идут по шаблону")
		generator = replygen.NewSimple()
	}

	sender := instagram.NewClient(instagram.Config{
		IGBaseURL: cfg.Instagram.GraphBaseURL,
		FBBaseURL: cfg.Instagram.FacebookBaseURL,
		Timeout:   cfg.Instagram.SendTimeout,
	})

	resolver := webhook.NewResolver(repoAdapter, repoAdapter, logger)
	dispatcher := webhook.NewDispatcher(sender, generator, logger)
	recorder := webhook.NewRecorder(repoAdapter, repoAdapter, logger)
	service := webhook.NewService(resolver, dispatcher, recorder, repoAdapter, dedup, cfg.Webhook.DedupTTL, cfg.Instagram.VerifyToken, logger)

	srv := httpinfra.NewServer(logger)

	srv.Router.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	srv.Router.Get("/api/webhooks/instagram", func(w http.ResponseWriter, r *http.Request) {
		challenge, ok := service.HandleVerification(
			r.URL.Query().Get("hub.mode"),
			r.URL.Query().Get("hub.verify_token"),
			r.URL.Query().Get("hub.challenge"),
		)
		if !ok {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(challenge))
	})

	srv.Router.Post("/api/webhooks/instagram", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var env domain.WebhookEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			// Платформа повторяет доставку при любом не-200 ответе,
			// поэтому даже битый конверт подтверждается.
			logger.Error().Err(err).Msg("webhook-gateway: конверт доставки не разобран")
			w.WriteHeader(http.StatusOK)
			return
		}
		service.ProcessDelivery(r.Context(), env)
		w.WriteHeader(http.StatusOK)
	})

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("webhook-gateway: сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("webhook-gateway: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
