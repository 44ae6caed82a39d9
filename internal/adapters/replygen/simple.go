package replygen

import (
	"context"
	"fmt"
	"strings"

	"instaflow/internal/domain"
)

// SimpleGenerator реализует генерацию ответов шаблоном без LLM.
// Используется, когда ключ OpenAI не задан.
type SimpleGenerator struct{}

var (
	_ domain.ReplyGenerator   = (*SimpleGenerator)(nil)
	_ domain.CaptionGenerator = (*SimpleGenerator)(nil)
)

// NewSimple создаёт генератор-заглушку.
func NewSimple() *SimpleGenerator {
	return &SimpleGenerator{}
}

// GenerateReply возвращает вежливый ответ-шаблон.
func (g *SimpleGenerator) GenerateReply(_ context.Context, message, _ string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("пустое входящее сообщение")
	}
	return "Спасибо за сообщение! Мы ответим вам в ближайшее время 🙌", nil
}

// GenerateCaption возвращает текст публикации из темы.
func (g *SimpleGenerator) GenerateCaption(_ context.Context, topic, tone, _ string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("пустая тема публикации")
	}
	if tone == "" {
		tone = "Professional"
	}
	return fmt.Sprintf("%s\n\n#%s #instagram #content", topic, strings.ToLower(tone)), nil
}
