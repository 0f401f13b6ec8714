package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const telegramAPIURL = "https://api.telegram.org"

// TelegramSender delivers messages through the Telegram Bot API. Message.To is
// the recipient's chat id, which for private chats equals the Telegram user id.
type TelegramSender struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender. A nil client gets a default
// with a bounded timeout.
func NewTelegramSender(botToken string, client *http.Client) (*TelegramSender, error) {
	if botToken == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TelegramSender{token: botToken, baseURL: telegramAPIURL, client: client}, nil
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type botAPIResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (s *TelegramSender) Send(ctx context.Context, msg Message) error {
	text := msg.Body
	if msg.Subject != "" {
		text = msg.Subject + "\n\n" + msg.Body
	}
	payload, err := json.Marshal(sendMessageRequest{ChatID: msg.To, Text: text})
	if err != nil {
		return fmt.Errorf("telegram: encode request: %w", err)
	}

	endpoint := strings.TrimRight(s.baseURL, "/") + "/bot" + s.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	defer resp.Body.Close()

	var body botAPIResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)
	if resp.StatusCode != http.StatusOK || !body.OK {
		return fmt.Errorf("telegram: send message: status %d: %s", resp.StatusCode, body.Description)
	}
	return nil
}
