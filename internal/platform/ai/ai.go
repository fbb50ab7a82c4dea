// Package ai defines the completion capability the conversation engine
// depends on, plus the Gemini-backed implementation.
package ai

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrQuotaExhausted reports that the model provider rejected the call for
// quota reasons. The conversation engine degrades gracefully on this error
// and flags the reply; every other provider error aborts the turn.
var ErrQuotaExhausted = errors.New("ai: provider quota exhausted")

// Message is one entry of a conversation transcript handed to the provider.
type Message struct {
	Sender  string
	Content string
}

// PatientContext carries the patient details injected into the system prompt.
type PatientContext struct {
	FirstName      string
	TherapySubject string
	LastSessionAt  *time.Time
	NextSessionAt  *time.Time
}

// TurnResult is the provider's answer to one conversation turn.
type TurnResult struct {
	Reply           string
	UrgencyDetected bool
}

// Summary is the structured digest of a closed conversation.
type Summary struct {
	Keywords          []string `json:"keywords"`
	MainConcern       string   `json:"mainConcern"`
	UrgencyDetected   bool     `json:"urgencyDetected"`
	RecommendedAction string   `json:"recommendedAction"`
}

// Provider produces free-text replies and structured summaries from a
// conversation transcript plus patient context.
type Provider interface {
	Complete(ctx context.Context, history []Message, pc PatientContext) (*TurnResult, error)
	Summarize(ctx context.Context, history []Message) (*Summary, error)
	AnalyzeNotes(ctx context.Context, text string) (string, error)
}

var urgencyKeywords = []string{
	"suicide",
	"me tuer",
	"en finir",
	"plus envie de vivre",
	"mourir",
	"violence",
}

// DetectUrgency scans reply text for crisis language.
func DetectUrgency(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range urgencyKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
