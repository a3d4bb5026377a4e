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

	"github.com/shaiso/Stockpipe/internal/domain"
)

// ErrSlack — Slack отклонил сообщение.
var ErrSlack = errors.New("slack webhook rejected message")

// SlackConfig — конфигурация SlackNotifier.
type SlackConfig struct {
	// WebhookURL — адрес incoming webhook.
	WebhookURL string

	// Channel — канал (default: "general").
	Channel string

	// Client — HTTP клиент (default: таймаут 10s).
	Client *http.Client
}

// SlackNotifier отправляет уведомления в Slack.
type SlackNotifier struct {
	url     string
	channel string
	client  *http.Client
}

// NewSlackNotifier создаёт SlackNotifier.
func NewSlackNotifier(cfg SlackConfig) *SlackNotifier {
	s := &SlackNotifier{
		url:     cfg.WebhookURL,
		channel: cfg.Channel,
		client:  cfg.Client,
	}
	if s.channel == "" {
		s.channel = "general"
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 10 * time.Second}
	}
	return s
}

type slackMessage struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

// Send публикует сообщение через webhook.
func (s *SlackNotifier) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(slackMessage{Channel: s.channel, Text: slackText(n)})
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %d %s", ErrSlack, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func slackText(n Notification) string {
	var b strings.Builder
	b.WriteString(n.Message)
	fmt.Fprintf(&b, "\nrun: %s, slot: %s", n.RunID, n.ScheduledAt.Format(time.RFC3339))

	if n.Status == domain.RunStatusFailed {
		if n.FailedStage != "" {
			fmt.Fprintf(&b, "\nfailed stage: %s", n.FailedStage)
		}
		if n.Error != "" {
			fmt.Fprintf(&b, "\nerror: %s", n.Error)
		}
	}
	return b.String()
}
