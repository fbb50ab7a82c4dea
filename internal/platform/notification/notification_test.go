package notification

import (
	"context"
	"strings"
	"testing"
)

func TestIsExpoPushToken(t *testing.T) {
	cases := []struct {
		token string
		want  bool
	}{
		{"ExponentPushToken[abc123]", true},
		{"ExpoPushToken[xyz]", true},
		{"ExponentPushToken[", false},
		{"fcm-token-123", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsExpoPushToken(tc.token); got != tc.want {
			t.Errorf("IsExpoPushToken(%q) = %v, want %v", tc.token, got, tc.want)
		}
	}
}

func TestMockEmailSenderRecordsCalls(t *testing.T) {
	sender := &MockEmailSender{}

	err := sender.SendEmail(context.Background(), "marie@example.com", "Marie", "Sujet", "texte", "<p>html</p>")
	if err != nil {
		t.Fatalf("SendEmail() error = %v", err)
	}

	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].To != "marie@example.com" || calls[0].Subject != "Sujet" {
		t.Errorf("unexpected call: %+v", calls[0])
	}
}

func TestMockEmailSenderFailure(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}

	err := sender.SendEmail(context.Background(), "a@b.com", "", "s", "t", "")
	if err == nil || err.Error() != "smtp down" {
		t.Errorf("expected failure error, got %v", err)
	}
	if len(sender.Calls()) != 1 {
		t.Error("failed call should still be recorded")
	}
}

func TestMockPushSenderRecordsCalls(t *testing.T) {
	sender := &MockPushSender{}

	data := map[string]string{"type": "conversation_started"}
	if err := sender.SendPush(context.Background(), "ExponentPushToken[abc]", "Titre", "Corps", data); err != nil {
		t.Fatalf("SendPush() error = %v", err)
	}

	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Title != "Titre" || calls[0].Data["type"] != "conversation_started" {
		t.Errorf("unexpected call: %+v", calls[0])
	}
}

func TestMagicLinkEmail(t *testing.T) {
	subject, text, html := MagicLinkEmail("https://app.example.com", "tok123", "Marie")

	if subject != "Connexion à Julia App" {
		t.Errorf("unexpected subject %q", subject)
	}
	wantLink := "https://app.example.com/auth/verify?token=tok123"
	if !strings.Contains(text, wantLink) {
		t.Errorf("text body missing link %q", wantLink)
	}
	if !strings.Contains(html, wantLink) {
		t.Errorf("html body missing link %q", wantLink)
	}
	if !strings.Contains(text, "Marie") {
		t.Error("text body missing first name")
	}
	if !strings.Contains(text, "24 heures") {
		t.Error("text body missing validity notice")
	}
}

func TestWelcomeEmail(t *testing.T) {
	subject, text, html := WelcomeEmail("Marie", "Dr Dupont")

	if subject != "Bienvenue sur Julia App" {
		t.Errorf("unexpected subject %q", subject)
	}
	if !strings.Contains(text, "Dr Dupont") {
		t.Error("text body missing professional name")
	}
	if !strings.Contains(html, "Marie") {
		t.Error("html body missing first name")
	}
}
