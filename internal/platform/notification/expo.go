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

const expoPushURL = "https://exp.host/--/api/v2/push/send"

// ExpoPushSender delivers push notifications through the Expo push service.
type ExpoPushSender struct {
	client *http.Client
	logger zerolog.Logger
}

// NewExpoPushSender builds an Expo push sender.
func NewExpoPushSender(logger zerolog.Logger) *ExpoPushSender {
	return &ExpoPushSender{
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger.With().Str("component", "expo_push").Logger(),
	}
}

type expoMessage struct {
	To    string            `json:"to"`
	Sound string            `json:"sound"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// SendPush posts a single message to the Expo push endpoint. Tokens that do
// not look like Expo tokens are skipped without error.
func (s *ExpoPushSender) SendPush(ctx context.Context, token, title, body string, data map[string]string) error {
	if !IsExpoPushToken(token) {
		s.logger.Warn().Str("token", token).Msg("skipping invalid push token")
		return nil
	}

	msg := expoMessage{To: token, Sound: "default", Title: title, Body: body, Data: data}
	payload, err := json.Marshal([]expoMessage{msg})
	if err != nil {
		return fmt.Errorf("marshal expo payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, expoPushURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build expo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("expo push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		s.logger.Error().Int("status", resp.StatusCode).Msg("expo push rejected")
		return fmt.Errorf("expo push failed: status %d: %s", resp.StatusCode, string(detail))
	}

	s.logger.Info().Str("title", title).Msg("push notification sent")
	return nil
}
