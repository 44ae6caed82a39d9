package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"instaflow/internal/domain"
)

// ErrEmptyTopic возвращается, когда тема генерации не задана.
var ErrEmptyTopic = errors.New("тема публикации обязательна")

// Service строит тексты публикаций и ведёт историю генераций.
type Service struct {
	generator domain.CaptionGenerator
	repo      domain.ContentRepo
}

// NewService создаёт сервис генерации контента.
func NewService(generator domain.CaptionGenerator, repo domain.ContentRepo) *Service {
	return &Service{generator: generator, repo: repo}
}

// Generate строит текст публикации и сохраняет его в историю.
func (s *Service) Generate(ctx context.Context, userID, topic, tone, instructions string) (domain.GeneratedContent, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return domain.GeneratedContent{}, ErrEmptyTopic
	}
	text, err := s.generator.GenerateCaption(ctx, topic, tone, instructions)
	if err != nil {
		return domain.GeneratedContent{}, fmt.Errorf("генерация текста: %w", err)
	}
	saved, err := s.repo.SaveGeneratedContent(ctx, domain.GeneratedContent{
		UserID:        userID,
		Topic:         topic,
		Tone:          tone,
		Instructions:  instructions,
		GeneratedText: text,
	})
	if err != nil {
		return domain.GeneratedContent{}, fmt.Errorf("сохранение генерации: %w", err)
	}
	return saved, nil
}

// History возвращает последние генерации пользователя.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]domain.GeneratedContent, error) {
	return s.repo.ListGeneratedContent(ctx, userID, limit)
}
