package webhook

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"instaflow/internal/domain"
)

// ErrAccountNotFound возвращается, когда событие не удалось привязать к аккаунту.
var ErrAccountNotFound = errors.New("подключённый аккаунт для события не найден")

// Resolver привязывает идентификатор аккаунта из вебхука к локальной записи.
// Платформа присылает в разных payload то бизнес-идентификатор, то базовый
// идентификатор пользователя, поэтому поиск идёт каскадом.
type Resolver struct {
	accounts    domain.AccountRepo
	automations domain.AutomationRepo
	log         zerolog.Logger
}

// NewResolver создаёт резолвер аккаунтов.
func NewResolver(accounts domain.AccountRepo, automations domain.AutomationRepo, logger zerolog.Logger) *Resolver {
	return &Resolver{accounts: accounts, automations: automations, log: logger}
}

// Resolve ищет аккаунт по идентификатору из доставки.
// Порядок: бизнес-идентификатор, затем базовый идентификатор, затем — если
// известен пост — владелец первого активного comment_to_dm правила, чей
// фильтр поста пуст или совпадает. После успеха через второй или третий шаг
// бизнес-идентификатор дозаписывается, чтобы следующие доставки находили
// аккаунт сразу первым шагом.
func (r *Resolver) Resolve(ctx context.Context, igUserID, mediaID string) (domain.IGAccount, error) {
	acc, err := r.accounts.GetAccountByBusinessID(ctx, igUserID)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.IGAccount{}, err
	}

	acc, err = r.accounts.GetAccountByIGUserID(ctx, igUserID)
	if err == nil {
		r.backfillBusinessID(ctx, &acc, igUserID)
		return acc, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.IGAccount{}, err
	}

	if mediaID == "" {
		return domain.IGAccount{}, ErrAccountNotFound
	}

	rules, err := r.automations.ListActiveAutomationsByKind(ctx, domain.KindCommentToDM)
	if err != nil {
		return domain.IGAccount{}, err
	}
	for _, rule := range rules {
		if rule.Config.MediaID != "" && rule.Config.MediaID != mediaID {
			continue
		}
		acc, err := r.accounts.GetAccountByID(ctx, rule.IGAccountID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return domain.IGAccount{}, err
		}
		r.log.Debug().Str("account", acc.Username).Str("media_id", mediaID).Msg("webhook: аккаунт найден через фильтр поста правила")
		r.backfillBusinessID(ctx, &acc, igUserID)
		return acc, nil
	}

	return domain.IGAccount{}, ErrAccountNotFound
}

func (r *Resolver) backfillBusinessID(ctx context.Context, acc *domain.IGAccount, businessID string) {
	if acc.BusinessID != "" {
		return
	}
	if err := r.accounts.UpdateAccountBusinessID(ctx, acc.ID, businessID); err != nil {
		// Дозапись необязательна: следующая доставка повторит попытку.
		r.log.Error().Err(err).Str("account_id", acc.ID).Msg("webhook: не удалось дозаписать бизнес-идентификатор")
		return
	}
	acc.BusinessID = businessID
}
