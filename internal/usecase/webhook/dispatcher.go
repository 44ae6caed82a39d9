package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"instaflow/internal/domain"
)

// ErrMissingAccessToken означает, что аккаунт не может отправлять сообщения
// до переподключения. Для правила это постоянная ошибка конфигурации.
var ErrMissingAccessToken = errors.New("у аккаунта отсутствует access token")

// ErrEmptyTemplate означает, что у comment_to_dm правила не задан текст ответа.
var ErrEmptyTemplate = errors.New("у правила не задан шаблон сообщения")

// Dispatcher готовит исходящий текст и вызывает отправку.
type Dispatcher struct {
	sender    domain.Sender
	generator domain.ReplyGenerator
	log       zerolog.Logger
}

// NewDispatcher создаёт диспетчер ответов.
func NewDispatcher(sender domain.Sender, generator domain.ReplyGenerator, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, generator: generator, log: logger}
}

// DispatchComment отправляет приватный ответ на комментарий по шаблону правила.
func (d *Dispatcher) DispatchComment(ctx context.Context, acc domain.IGAccount, rule domain.Automation, ev domain.CommentEvent) error {
	if acc.AccessToken == "" {
		return ErrMissingAccessToken
	}
	if rule.Config.MessageTemplate == "" {
		return ErrEmptyTemplate
	}
	businessID := acc.BusinessID
	if businessID == "" {
		businessID = ev.IGAccountID
	}
	if err := d.sender.SendPrivateReply(ctx, acc.AccessToken, businessID, ev.CommentID, rule.Config.MessageTemplate); err != nil {
		return fmt.Errorf("отправка приватного ответа: %w", err)
	}
	return nil
}

// DispatchMessage генерирует автоответ и отправляет его отправителю сообщения.
// При ошибке генерации правило пропускается, пустой текст не отправляется.
func (d *Dispatcher) DispatchMessage(ctx context.Context, acc domain.IGAccount, rule domain.Automation, ev domain.MessageEvent) error {
	if acc.AccessToken == "" {
		return ErrMissingAccessToken
	}
	text, err := d.generator.GenerateReply(ctx, ev.Text, rule.Config.Prompt)
	if err != nil {
		return fmt.Errorf("генерация автоответа: %w", err)
	}
	if err := d.sender.SendDirectMessage(ctx, acc.AccessToken, ev.SenderID, text); err != nil {
		return fmt.Errorf("отправка автоответа: %w", err)
	}
	return nil
}
