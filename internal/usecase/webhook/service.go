package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"instaflow/internal/domain"
	"instaflow/internal/infra/metrics"
)

// ObjectInstagram — единственный вид доставок, который обрабатывает роутер.
const ObjectInstagram = "instagram"

// Исходы обработки одного события доставки.
const (
	OutcomeFired     = "fired"
	OutcomeNoMatch   = "no_match"
	OutcomeNoAccount = "no_account"
	OutcomeMalformed = "malformed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeError     = "error"
)

// Виды событий внутри доставки.
const (
	ItemKindComment = "comment"
	ItemKindMessage = "message"
)

// ItemResult — явный результат обработки одного события.
type ItemResult struct {
	Kind    string
	Outcome string
	Fired   int
	Reason  string
}

// DeliverySummary агрегирует результаты всех событий одной доставки.
type DeliverySummary struct {
	DeliveryID string
	Object     string
	Items      []ItemResult
}

// TotalFired возвращает суммарное число успешных срабатываний в доставке.
func (s DeliverySummary) TotalFired() int {
	total := 0
	for _, item := range s.Items {
		total += item.Fired
	}
	return total
}

// Service — роутер вебхука: верификация подписки и разбор доставок.
// Ошибка любого события никогда не прерывает обработку остальных и не
// влияет на подтверждение доставки: платформа при не-200 ответе устраивает
// шторм повторных доставок.
type Service struct {
	resolver    *Resolver
	dispatcher  *Dispatcher
	recorder    *Recorder
	automations domain.AutomationRepo
	cache       domain.Cache
	dedupTTL    time.Duration
	verifyToken string
	log         zerolog.Logger
}

// NewService создаёт роутер вебхука. Кэш опционален: без него дедупликация
// повторных доставок отключена.
func NewService(resolver *Resolver, dispatcher *Dispatcher, recorder *Recorder, automations domain.AutomationRepo, cache domain.Cache, dedupTTL time.Duration, verifyToken string, logger zerolog.Logger) *Service {
	if dedupTTL <= 0 {
		dedupTTL = 10 * time.Minute
	}
	return &Service{
		resolver:    resolver,
		dispatcher:  dispatcher,
		recorder:    recorder,
		automations: automations,
		cache:       cache,
		dedupTTL:    dedupTTL,
		verifyToken: verifyToken,
		log:         logger,
	}
}

// HandleVerification проверяет подписочный handshake платформы.
// Возвращает challenge для эха и признак успеха.
func (s *Service) HandleVerification(mode, token, challenge string) (string, bool) {
	if mode != "subscribe" || s.verifyToken == "" || token != s.verifyToken {
		s.log.Warn().Str("mode", mode).Msg("webhook: верификация отклонена")
		return "", false
	}
	s.log.Info().Msg("webhook: подписка подтверждена")
	return challenge, true
}

// ProcessDelivery разбирает конверт доставки и прогоняет каждое событие
// через пайплайн. Всегда возвращает сводку, никогда ошибку.
func (s *Service) ProcessDelivery(ctx context.Context, env domain.WebhookEnvelope) DeliverySummary {
	start := time.Now()
	metrics.WebhookDeliveriesTotal.Inc()

	summary := DeliverySummary{DeliveryID: uuid.NewString(), Object: env.Object}
	logger := s.log.With().Str("delivery_id", summary.DeliveryID).Logger()

	if env.Object != ObjectInstagram {
		logger.Warn().Str("object", env.Object).Msg("webhook: неизвестный объект доставки")
		return summary
	}

	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			var res ItemResult
			switch change.Field {
			case domain.ChangeFieldComments:
				res = s.processComment(ctx, logger, entry.ID, change.Value)
			case domain.ChangeFieldMessages:
				// Текст сообщений приходит в messaging, здесь только дубль уведомления.
				res = ItemResult{Kind: ItemKindMessage, Outcome: OutcomeIgnored, Reason: "messages change"}
			default:
				res = ItemResult{Kind: change.Field, Outcome: OutcomeIgnored, Reason: "unknown change field"}
			}
			metrics.IncWebhookItem(res.Kind, res.Outcome)
			summary.Items = append(summary.Items, res)
		}
		for _, msg := range entry.Messaging {
			res := s.processMessage(ctx, logger, entry.ID, msg)
			metrics.IncWebhookItem(res.Kind, res.Outcome)
			summary.Items = append(summary.Items, res)
		}
	}

	metrics.DeliveryProcessSeconds.Observe(time.Since(start).Seconds())
	logger.Info().
		Int("entries", len(env.Entry)).
		Int("items", len(summary.Items)).
		Int("fired", summary.TotalFired()).
		Msg("webhook: доставка обработана")
	return summary
}

func (s *Service) processComment(ctx context.Context, logger zerolog.Logger, igUserID string, raw json.RawMessage) ItemResult {
	res := ItemResult{Kind: ItemKindComment}

	var value domain.CommentChangeValue
	if err := json.Unmarshal(raw, &value); err != nil {
		res.Outcome, res.Reason = OutcomeMalformed, err.Error()
		return res
	}
	if value.ID == "" {
		res.Outcome, res.Reason = OutcomeMalformed, "пустой идентификатор комментария"
		return res
	}

	ev := domain.CommentEvent{
		CommentID:      value.ID,
		Text:           value.Text,
		AuthorUsername: value.From.Username,
		MediaID:        value.Media.ID,
		IGAccountID:    igUserID,
	}

	if !s.claimOnce(logger, "webhook:comment:"+ev.CommentID) {
		res.Outcome = OutcomeDuplicate
		return res
	}

	acc, err := s.resolver.Resolve(ctx, igUserID, ev.MediaID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			logger.Info().Str("ig_user_id", igUserID).Msg("webhook: аккаунт для комментария не найден, возможно нужно переподключение")
			res.Outcome = OutcomeNoAccount
			return res
		}
		res.Outcome, res.Reason = OutcomeError, err.Error()
		return res
	}

	rules, err := s.automations.ListAccountAutomations(ctx, acc.ID)
	if err != nil {
		res.Outcome, res.Reason = OutcomeError, err.Error()
		return res
	}

	matches := MatchComment(rules, ev)
	if len(matches) == 0 {
		res.Outcome = OutcomeNoMatch
		return res
	}

	for _, match := range matches {
		logger.Info().
			Str("automation_id", match.Automation.ID).
			Str("keyword", match.Keyword).
			Msg("webhook: ключевое слово совпало в комментарии")

		sendErr := s.dispatcher.DispatchComment(ctx, acc, match.Automation, ev)
		s.recorder.RecordFire(ctx, Fire{
			Account:        acc,
			Automation:     match.Automation,
			Action:         domain.ActionCommentDMSent,
			TargetUsername: authorOrUnknown(ev.AuthorUsername),
			Details:        fmt.Sprintf("Sent DM for keyword %q on comment", match.Keyword),
		}, sendErr)
		if sendErr == nil {
			res.Fired++
		}
	}

	res.Outcome = OutcomeFired
	return res
}

func (s *Service) processMessage(ctx context.Context, logger zerolog.Logger, igUserID string, msg domain.WebhookMessaging) ItemResult {
	res := ItemResult{Kind: ItemKindMessage}

	if msg.Sender.ID == "" || msg.Message.Text == "" {
		res.Outcome, res.Reason = OutcomeMalformed, "нет отправителя или текста"
		return res
	}

	ev := domain.MessageEvent{
		SenderID:    msg.Sender.ID,
		MessageID:   msg.Message.MID,
		Text:        msg.Message.Text,
		IGAccountID: igUserID,
	}

	if ev.MessageID != "" && !s.claimOnce(logger, "webhook:message:"+ev.MessageID) {
		res.Outcome = OutcomeDuplicate
		return res
	}

	acc, err := s.resolver.Resolve(ctx, igUserID, "")
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			logger.Info().Str("ig_user_id", igUserID).Msg("webhook: аккаунт для сообщения не найден")
			res.Outcome = OutcomeNoAccount
			return res
		}
		res.Outcome, res.Reason = OutcomeError, err.Error()
		return res
	}

	rules, err := s.automations.ListAccountAutomations(ctx, acc.ID)
	if err != nil {
		res.Outcome, res.Reason = OutcomeError, err.Error()
		return res
	}

	matches := MatchMessage(rules, ev)
	if len(matches) == 0 {
		res.Outcome = OutcomeNoMatch
		return res
	}

	for _, match := range matches {
		logger.Info().
			Str("automation_id", match.Automation.ID).
			Str("sender_id", ev.SenderID).
			Msg("webhook: автоответ сработал")

		sendErr := s.dispatcher.DispatchMessage(ctx, acc, match.Automation, ev)
		s.recorder.RecordFire(ctx, Fire{
			Account:        acc,
			Automation:     match.Automation,
			Action:         domain.ActionDMAutoReply,
			TargetUsername: ev.SenderID,
			Details:        fmt.Sprintf("Auto-replied to DM: \"%s...\"", clipRunes(ev.Text, 50)),
		}, sendErr)
		if sendErr == nil {
			res.Fired++
		}
	}

	res.Outcome = OutcomeFired
	return res
}

// claimOnce помечает событие обработанным через SetNX-кэш.
// Возвращает false, если событие уже обрабатывалось в пределах TTL.
// Недоступность кэша не блокирует обработку: дубль лучше потери.
func (s *Service) claimOnce(logger zerolog.Logger, key string) bool {
	if s.cache == nil {
		return true
	}
	claimed := false
	if err := s.cache.Once(key, s.dedupTTL, func() error {
		claimed = true
		return nil
	}); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("webhook: кэш дедупликации недоступен")
		return true
	}
	if !claimed {
		logger.Info().Str("key", key).Msg("webhook: повторная доставка пропущена")
	}
	return claimed
}

func authorOrUnknown(username string) string {
	if username == "" {
		return "unknown"
	}
	return username
}

func clipRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
