package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"instaflow/internal/domain"
	"instaflow/internal/infra/metrics"
)

// Client отправляет сообщения через Graph API Instagram.
// Приватные ответы сначала идут через graph.instagram.com, при ошибке —
// через graph.facebook.com от имени бизнес-аккаунта.
type Client struct {
	http      *http.Client
	igBaseURL string
	fbBaseURL string
}

var _ domain.Sender = (*Client)(nil)

// Config задаёт параметры клиента Graph API.
type Config struct {
	IGBaseURL string
	FBBaseURL string
	Timeout   time.Duration
}

// NewClient создаёт клиента Graph API.
func NewClient(cfg Config) *Client {
	igBase := strings.TrimRight(cfg.IGBaseURL, "/")
	if igBase == "" {
		igBase = "https://graph.instagram.com/v21.0"
	}
	fbBase := strings.TrimRight(cfg.FBBaseURL, "/")
	if fbBase == "" {
		fbBase = "https://graph.facebook.com/v21.0"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		igBaseURL: igBase,
		fbBaseURL: fbBase,
	}
}

type recipientPayload struct {
	ID        string `json:"id,omitempty"`
	CommentID string `json:"comment_id,omitempty"`
}

type messagePayload struct {
	Text string `json:"text"`
}

type sendRequest struct {
	Recipient recipientPayload `json:"recipient"`
	Message   messagePayload   `json:"message"`
}

// SendPrivateReply отправляет приватный ответ на комментарий.
func (c *Client) SendPrivateReply(ctx context.Context, accessToken, businessID, commentID, text string) error {
	payload := sendRequest{
		Recipient: recipientPayload{CommentID: commentID},
		Message:   messagePayload{Text: text},
	}

	igErr := c.post(ctx, "private_reply", c.igBaseURL+"/me/messages", accessToken, payload)
	if igErr == nil {
		return nil
	}

	fbErr := c.post(ctx, "private_reply_fallback", c.fbBaseURL+"/"+businessID+"/messages", accessToken, payload)
	if fbErr == nil {
		return nil
	}
	return fmt.Errorf("приватный ответ не отправлен: %w (fallback: %v)", igErr, fbErr)
}

// SendDirectMessage отправляет личное сообщение получателю.
func (c *Client) SendDirectMessage(ctx context.Context, accessToken, recipientID, text string) error {
	payload := sendRequest{
		Recipient: recipientPayload{ID: recipientID},
		Message:   messagePayload{Text: text},
	}
	if err := c.post(ctx, "direct_message", c.igBaseURL+"/me/messages", accessToken, payload); err != nil {
		return fmt.Errorf("личное сообщение не отправлено: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, operation, endpoint, accessToken string, payload sendRequest) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("instagram: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("instagram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("instagram", operation, "messages", start, err)
		return fmt.Errorf("instagram: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("instagram", operation, "messages", start, err)
		return fmt.Errorf("instagram: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr apiErrorResponse
		if jsonErr := json.Unmarshal(respBody, &apiErr); jsonErr == nil && apiErr.Error.Message != "" {
			err = fmt.Errorf("instagram: %s (code %d)", apiErr.Error.Message, apiErr.Error.Code)
		} else {
			err = fmt.Errorf("instagram: unexpected status %d", resp.StatusCode)
		}
		metrics.ObserveNetworkRequest("instagram", operation, "messages", start, err)
		return err
	}
	metrics.ObserveNetworkRequest("instagram", operation, "messages", start, nil)
	return nil
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}
