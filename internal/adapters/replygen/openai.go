package replygen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"instaflow/internal/domain"
	openai "instaflow/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI реализует генерацию ответов через OpenAI Chat Completions.
type OpenAI struct {
	client  chatClient
	model   string
	timeout time.Duration
}

var (
	_ domain.ReplyGenerator   = (*OpenAI)(nil)
	_ domain.CaptionGenerator = (*OpenAI)(nil)
)

// NewOpenAI создаёт провайдер генерации.
func NewOpenAI(client chatClient, model string, timeout time.Duration) *OpenAI {
	if model == "" {
		model = "gpt-4.1-mini"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAI{client: client, model: model, timeout: timeout}
}

// GenerateReply строит автоответ на входящее сообщение.
// Промпт правила, если задан, полностью заменяет стандартный.
func (g *OpenAI) GenerateReply(ctx context.Context, message, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	userPrompt := strings.TrimSpace(prompt)
	if userPrompt == "" {
		userPrompt = fmt.Sprintf(`You are an Instagram automation assistant. Generate a friendly, helpful response to the following message.

Message received: %q

Requirements:
- Be warm and professional
- Keep response concise (1-2 sentences)
- Include an emoji if appropriate
- Sound natural and human-like

Respond only with the reply message.`, message)
	}

	req := openai.ChatCompletionRequest{
		Model:     g.model,
		MaxTokens: 200,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleUser, Content: userPrompt},
		},
	}
	return g.complete(ctx, req)
}

// GenerateCaption строит текст публикации по теме и тону.
func (g *OpenAI) GenerateCaption(ctx context.Context, topic, tone, instructions string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if tone == "" {
		tone = "Professional"
	}
	var extra string
	if instructions != "" {
		extra = "Additional Instructions: " + instructions + "\n"
	}
	userPrompt := fmt.Sprintf(`Generate an engaging Instagram caption for the following topic:

Topic: %s
Tone: %s
%s
Requirements:
- Make it engaging and authentic
- Include relevant emojis
- Add 3-5 relevant hashtags at the end
- Keep it between 100-200 words
- Match the requested tone

Respond only with the caption text.`, topic, tone, extra)

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0.7,
		Messages: []openai.ChatMessage{
			{
				Role:    openai.RoleSystem,
				Content: "You are a professional social media content creator specializing in Instagram captions that drive engagement.",
			},
			{Role: openai.RoleUser, Content: userPrompt},
		},
	}
	return g.complete(ctx, req)
}

func (g *OpenAI) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: пустой ответ")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai completion: пустой текст")
	}
	return text, nil
}
