package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"exbitrage/internal/logger"
)

const DefaultTelegramBaseURL = "https://api.telegram.org"

type TelegramOptions struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Timeout  time.Duration
}

// TelegramNotifier posts alerts through the Bot API sendMessage method.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

func NewTelegramNotifier(opts TelegramOptions) *TelegramNotifier {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultTelegramBaseURL
	}
	return &TelegramNotifier{
		botToken: opts.BotToken,
		chatID:   opts.ChatID,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: timeout},
	}
}

func (t *TelegramNotifier) Notify(ctx context.Context, msg string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: t.chatID, Text: msg})
	if err != nil {
		return err
	}
	endpoint := t.baseURL + "/bot" + t.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL error embeds the bot token.
		return fmt.Errorf("telegram send failed: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("telegram status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var parsed sendMessageResponse
	if len(data) == 0 || json.Unmarshal(data, &parsed) != nil {
		return nil
	}
	if !parsed.OK {
		return fmt.Errorf("telegram api error: %s", strings.TrimSpace(parsed.Description))
	}
	return nil
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// LogNotifier writes alerts to the log. Used when no chat channel is configured.
type LogNotifier struct {
	log *logger.Entry
}

func NewLogNotifier(log *logger.Log) *LogNotifier {
	if log == nil {
		log = logger.GetLogger()
	}
	return &LogNotifier{log: log.WithComponent("alert")}
}

func (n *LogNotifier) Notify(_ context.Context, msg string) error {
	n.log.WithField("alert", msg).Warn("alert")
	return nil
}

func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
