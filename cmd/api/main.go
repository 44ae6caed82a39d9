package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"instaflow/internal/adapters/repo"
	"instaflow/internal/adapters/replygen"
	"instaflow/internal/domain"
	"instaflow/internal/infra/config"
	"instaflow/internal/infra/db"
	httpinfra "instaflow/internal/infra/http"
	"instaflow/internal/infra/log"
	"instaflow/internal/infra/metrics"
	openaiinfra "instaflow/internal/infra/openai"
	automationsusecase "instaflow/internal/usecase/automations"
	contentusecase "instaflow/internal/usecase/content"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var captions domain.CaptionGenerator
	if cfg.OpenAI.APIKey != "" {
		openaiClient := openaiinfra.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		captions = replygen.NewOpenAI(openaiClient, cfg.OpenAI.Model, cfg.OpenAI.Timeout)
	} else {
		captions = replygen.NewSimple()
	}

	automationService := automationsusecase.NewService(repoAdapter, repoAdapter)
	contentService := contentusecase.NewService(captions, repoAdapter)

	srv := httpinfra.NewServer(logger)

	srv.Router.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	srv.Router.Route("/api", func(r chi.Router) {
		r.Get("/automations", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := requireUser(w, r)
			if !ok {
				return
			}
			items, err := automationService.List(r.Context(), userID)
			if err != nil {
				logger.Error().Err(err).Msg("api: список правил")
				writeError(w, http.StatusInternalServerError, "failed to list automations")
				return
			}
			writeJSON(w, items)
		})

		r.Post("/automations", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := requireUser(w, r)
			if !ok {
				return
			}
			defer r.Body.Close()
			var req automationRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			created, err := automationService.Create(r.Context(), domain.Automation{
				UserID:      userID,
				IGAccountID: req.IGAccountID,
				Kind:        req.Kind,
				Title:       req.Title,
				Description: req.Description,
				IsActive:    req.IsActive,
				Config:      req.Config,
			})
			if err != nil {
				writeServiceError(w, logger, err, "failed to create automation")
				return
			}
			writeJSON(w, created)
		})

		r.Patch("/automations/{id}", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := requireUser(w, r)
			if !ok {
				return
			}
			defer r.Body.Close()
			var req automationRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			updated, err := automationService.Update(r.Context(), userID, domain.Automation{
				ID:          chi.URLParam(r, "id"),
				Title:       req.Title,
				Description: req.Description,
				IsActive:    req.IsActive,
				Config:      req.Config,
			})
			if err != nil {
				writeServiceError(w, logger, err, "failed to update automation")
				return
			}
			writeJSON(w, updated)
		})

		r.Delete("/automations/{id}", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := requireUser(w, r)
			if !ok {
				return
			}
			if err := automationService.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
				writeServiceError(w, logger, err, "failed to delete automation")
				return
			}
			writeJSON(w, map[string]bool{"success": true})
		})

		r.Delete("/instagram/accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := requireUser(w, r)
			if !ok {
				return
			}
			if err := automationService.DisconnectAccount(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
				writeServiceError(w, logger, err, "failed to disconnect account")
				return
			}
			writeJSON(w, map[string]string{"message": "Account disconnected successfully"})
		})

		r.Get("/activity", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := requireUser(w, r)
			if !ok {
				return
			}
			limit := queryLimit(r, cfg.Limits.ActivityPage)
			items, err := repoAdapter.ListActivity(r.Context(), userID, limit)
			if err != nil {
				logger.Error().Err(err).Msg("api: журнал активности")
				writeError(w, http.StatusInternalServerError, "failed to list activity")
				return
			}
			writeJSON(w, items)
		})

		r.Post("/content/generate", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := requireUser(w, r)
			if !ok {
				return
			}
			defer r.Body.Close()
			var req generateRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			generated, err := contentService.Generate(r.Context(), userID, req.Topic, req.Tone, req.AdditionalInstructions)
			if err != nil {
				if errors.Is(err, contentusecase.ErrEmptyTopic) {
					writeError(w, http.StatusBadRequest, "Topic is required")
					return
				}
				logger.Error().Err(err).Msg("api: генерация контента")
				writeError(w, http.StatusInternalServerError, "failed to generate content")
				return
			}
			writeJSON(w, generated)
		})

		r.Get("/content/history", func(w http.ResponseWriter, r *http.Request) {
			userID, ok := requireUser(w, r)
			if !ok {
				return
			}
			limit := queryLimit(r, cfg.Limits.ContentHistory)
			items, err := contentService.History(r.Context(), userID, limit)
			if err != nil {
				logger.Error().Err(err).Msg("api: история генераций")
				writeError(w, http.StatusInternalServerError, "failed to list content")
				return
			}
			writeJSON(w, items)
		})
	})

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

type automationRequest struct {
	IGAccountID string                  `json:"instagramAccountId"`
	Kind        string                  `json:"type"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	IsActive    bool                    `json:"isActive"`
	Config      domain.AutomationConfig `json:"config"`
}

type generateRequest struct {
	Topic                  string `json:"topic"`
	Tone                   string `json:"tone"`
	AdditionalInstructions string `json:"additionalInstructions"`
}

// requireUser читает идентификатор пользователя из заголовка.
// Аутентификация живёт на внешнем шлюзе, сюда приходит уже проверенный ID.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return userID, true
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError переводит ошибки usecase в HTTP статусы.
// Чужие правила отдаются как 404, чтобы не раскрывать их существование.
func writeServiceError(w http.ResponseWriter, logger zerolog.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, automationsusecase.ErrForbidden):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, automationsusecase.ErrUnknownKind), errors.Is(err, automationsusecase.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error().Err(err).Msg("api: " + fallback)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"message": msg})
}
