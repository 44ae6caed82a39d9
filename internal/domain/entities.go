package domain

import "time"

// User описывает владельца подключённых аккаунтов.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// IGAccount описывает подключённый Instagram-аккаунт.
type IGAccount struct {
	ID           string
	UserID       string
	IGUserID     string
	BusinessID   string
	Username     string
	AccessToken  string
	TokenExpires *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Виды автоматизаций. Неизвестные виды пайплайн игнорирует.
const (
	KindCommentToDM = "comment_to_dm"
	KindAutoDMReply = "auto_dm_reply"
)

// AutomationConfig хранит свободную конфигурацию правила.
// Все поля опциональны: пустой MediaID означает "любой пост",
// пустой список TriggerWords — "отвечать на всё".
type AutomationConfig struct {
	Keywords        []string `json:"keywords,omitempty"`
	MediaID         string   `json:"mediaId,omitempty"`
	MessageTemplate string   `json:"messageTemplate,omitempty"`
	TriggerWords    []string `json:"triggerWords,omitempty"`
	Prompt          string   `json:"prompt,omitempty"`
}

// AutomationStats хранит изменяемую статистику срабатываний.
type AutomationStats struct {
	TotalReplies  int        `json:"totalReplies,omitempty"`
	LastTriggered *time.Time `json:"lastTriggered,omitempty"`
}

// Automation описывает пользовательское правило реакции.
type Automation struct {
	ID          string
	UserID      string
	IGAccountID string
	Kind        string
	Title       string
	Description string
	IsActive    bool
	Config      AutomationConfig
	Stats       AutomationStats
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Действия в журнале активности.
const (
	ActionCommentDMSent = "comment_dm_sent"
	ActionDMAutoReply   = "dm_auto_reply"
)

// ActivityEntry — запись append-only журнала активности.
type ActivityEntry struct {
	ID             string
	UserID         string
	AutomationID   string
	Action         string
	TargetUsername string
	Details        string
	CreatedAt      time.Time
}

// GeneratedContent хранит сгенерированный текст публикации.
type GeneratedContent struct {
	ID            string
	UserID        string
	Topic         string
	Tone          string
	Instructions  string
	GeneratedText string
	CreatedAt     time.Time
}
