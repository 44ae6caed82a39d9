package webhook

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"instaflow/internal/domain"
	"instaflow/internal/infra/metrics"
)

// Fire описывает одно срабатывание правила для записи исхода.
type Fire struct {
	Account        domain.IGAccount
	Automation     domain.Automation
	Action         string
	TargetUsername string
	Details        string
}

// Recorder фиксирует исходы срабатываний: статистику правила и журнал активности.
type Recorder struct {
	automations domain.AutomationRepo
	activity    domain.ActivityRepo
	log         zerolog.Logger
}

// NewRecorder создаёт регистратор исходов.
func NewRecorder(automations domain.AutomationRepo, activity domain.ActivityRepo, logger zerolog.Logger) *Recorder {
	return &Recorder{automations: automations, activity: activity, log: logger}
}

// RecordFire вызывается один раз на каждое сработавшее правило.
// При успешной отправке увеличивается счётчик и пишется запись журнала.
// При неуспешной — только внутренний лог: статистика не трогается, запись
// пользователю не показывается.
func (r *Recorder) RecordFire(ctx context.Context, fire Fire, sendErr error) {
	logger := r.log.With().
		Str("automation_id", fire.Automation.ID).
		Str("account", fire.Account.Username).
		Logger()

	if sendErr != nil {
		metrics.SendErrorsTotal.Inc()
		logger.Error().Err(sendErr).Msg("webhook: отправка по правилу не удалась")
		return
	}

	metrics.IncAutomationFire(fire.Automation.Kind)

	now := time.Now().UTC()
	stats := fire.Automation.Stats
	stats.TotalReplies++
	stats.LastTriggered = &now
	if err := r.automations.UpdateAutomationStats(ctx, fire.Automation.ID, stats); err != nil {
		logger.Error().Err(err).Msg("webhook: не удалось обновить статистику правила")
	}

	entry := domain.ActivityEntry{
		UserID:         fire.Account.UserID,
		AutomationID:   fire.Automation.ID,
		Action:         fire.Action,
		TargetUsername: fire.TargetUsername,
		Details:        fire.Details,
	}
	if err := r.activity.AppendActivity(ctx, entry); err != nil {
		logger.Error().Err(err).Msg("webhook: не удалось записать журнал активности")
	}
}
