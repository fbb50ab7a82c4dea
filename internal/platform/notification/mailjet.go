package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const mailjetSendURL = "https://api.mailjet.com/v3.1/send"

// MailjetSender sends transactional email through the Mailjet v3.1 API.
type MailjetSender struct {
	apiKey    string
	secretKey string
	fromEmail string
	fromName  string
	client    *http.Client
	logger    zerolog.Logger
}

// NewMailjetSender builds a Mailjet email sender with the given credentials.
func NewMailjetSender(apiKey, secretKey, fromEmail, fromName string, logger zerolog.Logger) *MailjetSender {
	return &MailjetSender{
		apiKey:    apiKey,
		secretKey: secretKey,
		fromEmail: fromEmail,
		fromName:  fromName,
		client:    &http.Client{Timeout: 15 * time.Second},
		logger:    logger.With().Str("component", "mailjet").Logger(),
	}
}

type mailjetRequest struct {
	Messages []mailjetMessage `json:"Messages"`
}

type mailjetMessage struct {
	From     mailjetAddress   `json:"From"`
	To       []mailjetAddress `json:"To"`
	Subject  string           `json:"Subject"`
	TextPart string           `json:"TextPart,omitempty"`
	HTMLPart string           `json:"HTMLPart,omitempty"`
}

type mailjetAddress struct {
	Email string `json:"Email"`
	Name  string `json:"Name,omitempty"`
}

// SendEmail posts a single message to the Mailjet send endpoint.
func (s *MailjetSender) SendEmail(ctx context.Context, to, toName, subject, textBody, htmlBody string) error {
	payload := mailjetRequest{
		Messages: []mailjetMessage{{
			From:     mailjetAddress{Email: s.fromEmail, Name: s.fromName},
			To:       []mailjetAddress{{Email: to, Name: toName}},
			Subject:  subject,
			TextPart: textBody,
			HTMLPart: htmlBody,
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal mailjet payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, mailjetSendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mailjet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(s.apiKey, s.secretKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("mailjet request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		s.logger.Error().Int("status", resp.StatusCode).Str("to", to).Msg("mailjet send rejected")
		return fmt.Errorf("mailjet send failed: status %d: %s", resp.StatusCode, string(msg))
	}

	s.logger.Info().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}
