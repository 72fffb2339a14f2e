// Package telegram шлёт операторам сообщения об оплаченных заказах через Bot API
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultAPIURL базовый адрес Bot API; токен дописывается к нему
const DefaultAPIURL = "https://api.telegram.org"

// Sender отправка текста в чат
type Sender interface {
	Send(ctx context.Context, chatID, text string) error
}

// BotSender реализует Sender поверх Bot API sendMessage
type BotSender struct {
	logger *zap.Logger
	apiURL string
	client *http.Client
}

// NewBotSender baseURL пустой -> DefaultAPIURL
func NewBotSender(logger *zap.Logger, baseURL, botToken string, timeout time.Duration) *BotSender {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BotSender{
		logger: logger,
		apiURL: strings.TrimRight(baseURL, "/") + "/bot" + botToken,
		client: &http.Client{Timeout: timeout},
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (s *BotSender) Send(ctx context.Context, chatID, text string) error {
	jsonData, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/sendMessage", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	// при не-200 тело нужно только для диагностики
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram API status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram API error: %s", result.Description)
	}

	s.logger.Debug("telegram message sent", zap.String("chat_id", chatID))
	return nil
}

// NoOpSender когда Telegram не настроен
type NoOpSender struct {
	logger *zap.Logger
}

func NewNoOpSender(logger *zap.Logger) *NoOpSender {
	return &NoOpSender{logger: logger}
}

func (s *NoOpSender) Send(ctx context.Context, chatID, text string) error {
	s.logger.Debug("no-op sender: message not sent",
		zap.String("chat_id", chatID),
		zap.String("text_preview", truncate(text, 50)),
	)
	return nil
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
