package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	apperrors "github.com/allisson/sealdrop/internal/errors"
)

// DefaultMailjetBaseURL is the Mailjet API origin.
const DefaultMailjetBaseURL = "https://api.mailjet.com"

// MailjetConfig configures the Mailjet v3.1 Send API client.
type MailjetConfig struct {
	APIKeyPublic    string
	APIKeyPrivate   string
	SenderEmail     string
	SenderName      string
	DownloadPageURL string
	BaseURL         string
	RetryMax        int
	RetryWaitMin    time.Duration
}

// MailjetNotifier sends notifications through Mailjet.
type MailjetNotifier struct {
	config MailjetConfig
	client *retryablehttp.Client
}

type mailjetAddress struct {
	Email string `json:"Email"`
	Name  string `json:"Name,omitempty"`
}

type mailjetMessage struct {
	From     mailjetAddress   `json:"From"`
	To       []mailjetAddress `json:"To"`
	Subject  string           `json:"Subject"`
	TextPart string           `json:"TextPart"`
	HTMLPart string           `json:"HTMLPart"`
}

type mailjetSendRequest struct {
	Messages []mailjetMessage `json:"Messages"`
}

type mailjetSendResponse struct {
	Messages []struct {
		Status string `json:"Status"`
	} `json:"Messages"`
}

// NewMailjetNotifier creates a MailjetNotifier. Both API keys and a sender address are required.
func NewMailjetNotifier(cfg MailjetConfig, logger *slog.Logger) (*MailjetNotifier, error) {
	if cfg.APIKeyPublic == "" || cfg.APIKeyPrivate == "" {
		return nil, fmt.Errorf("mailjet API keys are required")
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("mailjet sender email is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMailjetBaseURL
	}
	if cfg.RetryMax == 0 {
		cfg.RetryMax = 3
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
		client.RetryWaitMax = 4 * cfg.RetryWaitMin
	}
	client.HTTPClient.Timeout = 15 * time.Second
	client.Logger = nil
	if logger != nil {
		client.Logger = logger
	}

	return &MailjetNotifier{config: cfg, client: client}, nil
}

// Notify sends one message. Transient failures (5xx, 429, network) are retried by the client.
func (m *MailjetNotifier) Notify(ctx context.Context, n Notification) error {
	msg, err := renderMessage(n, m.config.DownloadPageURL)
	if err != nil {
		return apperrors.Join(ErrDeliveryFailed, err)
	}

	fromName := m.config.SenderName
	if strings.TrimSpace(n.SenderName) != "" {
		fromName = n.Sender()
	}

	body, err := json.Marshal(mailjetSendRequest{
		Messages: []mailjetMessage{{
			From:     mailjetAddress{Email: m.config.SenderEmail, Name: fromName},
			To:       []mailjetAddress{{Email: n.RecipientEmail, Name: "Recipient"}},
			Subject:  msg.Subject,
			TextPart: msg.Text,
			HTMLPart: msg.HTML,
		}},
	})
	if err != nil {
		return apperrors.Join(ErrDeliveryFailed, err)
	}

	req, err := retryablehttp.NewRequestWithContext(
		ctx,
		http.MethodPost,
		strings.TrimRight(m.config.BaseURL, "/")+"/v3.1/send",
		body,
	)
	if err != nil {
		return apperrors.Join(ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(m.config.APIKeyPublic, m.config.APIKeyPrivate)

	resp, err := m.client.Do(req)
	if err != nil {
		return apperrors.Join(ErrDeliveryFailed, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.Join(
			ErrDeliveryFailed,
			fmt.Errorf("mailjet responded with status %d", resp.StatusCode),
		)
	}

	var result mailjetSendResponse
	if err := json.Unmarshal(payload, &result); err != nil {
		return apperrors.Join(ErrDeliveryFailed, fmt.Errorf("failed to decode mailjet response: %w", err))
	}
	for _, message := range result.Messages {
		if message.Status != "success" {
			return apperrors.Join(
				ErrDeliveryFailed,
				fmt.Errorf("mailjet rejected message with status %q", message.Status),
			)
		}
	}

	return nil
}
