package automations

import (
	"context"
	"errors"
	"fmt"

	"instaflow/internal/domain"
)

// ErrForbidden возвращается при попытке работы с чужим правилом.
var ErrForbidden = errors.New("правило принадлежит другому пользователю")

// ErrUnknownKind возвращается для неподдерживаемого вида правила.
var ErrUnknownKind = errors.New("неизвестный вид автоматизации")

// ErrInvalid возвращается для правила, не прошедшего валидацию.
var ErrInvalid = errors.New("некорректное правило")

// Service реализует CRUD правил автоматизации с проверкой владения.
type Service struct {
	automations domain.AutomationRepo
	accounts    domain.AccountRepo
}

// NewService создаёт сервис правил.
func NewService(automations domain.AutomationRepo, accounts domain.AccountRepo) *Service {
	return &Service{automations: automations, accounts: accounts}
}

// List возвращает правила пользователя.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Automation, error) {
	return s.automations.ListUserAutomations(ctx, userID)
}

// Create валидирует и сохраняет новое правило.
func (s *Service) Create(ctx context.Context, a domain.Automation) (domain.Automation, error) {
	if a.Kind != domain.KindCommentToDM && a.Kind != domain.KindAutoDMReply {
		return domain.Automation{}, fmt.Errorf("%w: %s", ErrUnknownKind, a.Kind)
	}
	if a.Title == "" {
		return domain.Automation{}, fmt.Errorf("%w: пустое название", ErrInvalid)
	}
	acc, err := s.accounts.GetAccountByID(ctx, a.IGAccountID)
	if err != nil {
		return domain.Automation{}, fmt.Errorf("аккаунт правила: %w", err)
	}
	if acc.UserID != a.UserID {
		return domain.Automation{}, ErrForbidden
	}
	return s.automations.CreateAutomation(ctx, a)
}

// Update изменяет правило пользователя.
func (s *Service) Update(ctx context.Context, userID string, a domain.Automation) (domain.Automation, error) {
	existing, err := s.automations.GetAutomation(ctx, a.ID)
	if err != nil {
		return domain.Automation{}, err
	}
	if existing.UserID != userID {
		return domain.Automation{}, ErrForbidden
	}
	existing.Title = a.Title
	existing.Description = a.Description
	existing.IsActive = a.IsActive
	existing.Config = a.Config
	if err := s.automations.UpdateAutomation(ctx, existing); err != nil {
		return domain.Automation{}, err
	}
	return s.automations.GetAutomation(ctx, a.ID)
}

// Delete удаляет правило пользователя.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	existing, err := s.automations.GetAutomation(ctx, id)
	if err != nil {
		return err
	}
	if existing.UserID != userID {
		return ErrForbidden
	}
	return s.automations.DeleteAutomation(ctx, id)
}

// DisconnectAccount отключает аккаунт пользователя вместе с его правилами.
func (s *Service) DisconnectAccount(ctx context.Context, userID, accountID string) error {
	acc, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.UserID != userID {
		return ErrForbidden
	}
	return s.accounts.DeleteAccountCascade(ctx, accountID)
}
