package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound возвращается репозиториями, когда записи нет.
var ErrNotFound = errors.New("запись не найдена")

// AccountRepo управляет подключёнными аккаунтами.
type AccountRepo interface {
	GetAccountByBusinessID(ctx context.Context, businessID string) (IGAccount, error)
	GetAccountByIGUserID(ctx context.Context, igUserID string) (IGAccount, error)
	GetAccountByID(ctx context.Context, id string) (IGAccount, error)
	UpdateAccountBusinessID(ctx context.Context, id, businessID string) error
	DeleteAccountCascade(ctx context.Context, id string) error
}

// AutomationRepo управляет правилами автоматизации.
type AutomationRepo interface {
	ListAccountAutomations(ctx context.Context, igAccountID string) ([]Automation, error)
	ListActiveAutomationsByKind(ctx context.Context, kind string) ([]Automation, error)
	GetAutomation(ctx context.Context, id string) (Automation, error)
	CreateAutomation(ctx context.Context, a Automation) (Automation, error)
	UpdateAutomation(ctx context.Context, a Automation) error
	UpdateAutomationStats(ctx context.Context, id string, stats AutomationStats) error
	DeleteAutomation(ctx context.Context, id string) error
	ListUserAutomations(ctx context.Context, userID string) ([]Automation, error)
}

// ActivityRepo пишет и читает журнал активности.
type ActivityRepo interface {
	AppendActivity(ctx context.Context, entry ActivityEntry) error
	ListActivity(ctx context.Context, userID string, limit int) ([]ActivityEntry, error)
}

// ContentRepo хранит историю сгенерированного контента.
type ContentRepo interface {
	SaveGeneratedContent(ctx context.Context, c GeneratedContent) (GeneratedContent, error)
	ListGeneratedContent(ctx context.Context, userID string, limit int) ([]GeneratedContent, error)
}

// Sender отправляет исходящие сообщения через Graph API платформы.
type Sender interface {
	SendPrivateReply(ctx context.Context, accessToken, businessID, commentID, text string) error
	SendDirectMessage(ctx context.Context, accessToken, recipientID, text string) error
}

// ReplyGenerator строит текст автоответа по входящему сообщению и промпту правила.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, message, prompt string) (string, error)
}

// CaptionGenerator строит текст публикации по теме и тону.
type CaptionGenerator interface {
	GenerateCaption(ctx context.Context, topic, tone, instructions string) (string, error)
}

// Cache используется для простых TTL-хранилищ, в том числе дедупликации доставок.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
