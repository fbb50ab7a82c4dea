package ai

import (
	"context"
	"sync"
)

// MockProvider is a test double for Provider. Replies and errors are
// programmable; all calls are recorded.
type MockProvider struct {
	mu sync.Mutex

	Reply        string
	Urgency      bool
	CompleteErr  error
	SummaryOut   *Summary
	SummarizeErr error
	NotesOut     string
	NotesErr     error

	CompleteCalls  [][]Message
	SummarizeCalls [][]Message
}

func (m *MockProvider) Complete(_ context.Context, history []Message, _ PatientContext) (*TurnResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteCalls = append(m.CompleteCalls, history)
	if m.CompleteErr != nil {
		return nil, m.CompleteErr
	}
	reply := m.Reply
	if reply == "" {
		reply = "Je vous écoute."
	}
	return &TurnResult{Reply: reply, UrgencyDetected: m.Urgency}, nil
}

func (m *MockProvider) Summarize(_ context.Context, history []Message) (*Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SummarizeCalls = append(m.SummarizeCalls, history)
	if m.SummarizeErr != nil {
		return nil, m.SummarizeErr
	}
	if m.SummaryOut != nil {
		return m.SummaryOut, nil
	}
	return &Summary{
		Keywords:    []string{"conversation"},
		MainConcern: "Discussion générale",
	}, nil
}

func (m *MockProvider) AnalyzeNotes(_ context.Context, _ string) (string, error) {
	if m.NotesErr != nil {
		return "", m.NotesErr
	}
	if m.NotesOut != "" {
		return m.NotesOut, nil
	}
	return "Synthèse des notes.", nil
}

// CompleteCount returns how many turns were requested.
func (m *MockProvider) CompleteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CompleteCalls)
}
