package domain

import "encoding/json"

// WebhookEnvelope — верхний уровень доставки вебхука платформы.
type WebhookEnvelope struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry группирует события одного аккаунта внутри доставки.
type WebhookEntry struct {
	ID        string             `json:"id"`
	Time      int64              `json:"time,omitempty"`
	Changes   []WebhookChange    `json:"changes,omitempty"`
	Messaging []WebhookMessaging `json:"messaging,omitempty"`
}

// WebhookChange — одно изменение (комментарий и т.п.) внутри entry.
type WebhookChange struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// Поля change, которые обрабатывает пайплайн.
const (
	ChangeFieldComments = "comments"
	ChangeFieldMessages = "messages"
)

// CommentChangeValue — полезная нагрузка change с field=comments.
type CommentChangeValue struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	From struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Media struct {
		ID string `json:"id"`
	} `json:"media"`
}

// WebhookMessaging — одно событие личного сообщения внутри entry.
type WebhookMessaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		MID  string `json:"mid"`
		Text string `json:"text"`
	} `json:"message"`
}

// InboundEvent — размеченное объединение входящих событий.
// Живёт только на время обработки одной доставки и никогда не сохраняется.
type InboundEvent interface {
	isInboundEvent()
}

// CommentEvent — новый комментарий под постом аккаунта.
type CommentEvent struct {
	CommentID      string
	Text           string
	AuthorUsername string
	MediaID        string
	IGAccountID    string
}

// MessageEvent — новое личное сообщение аккаунту.
type MessageEvent struct {
	SenderID    string
	MessageID   string
	Text        string
	IGAccountID string
}

func (CommentEvent) isInboundEvent() {}
func (MessageEvent) isInboundEvent() {}
