package conversation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/julia/julia/internal/domain/identity"
	"github.com/julia/julia/internal/platform/ai"
)

type mockRepo struct {
	mu    sync.Mutex
	convs map[uuid.UUID]*Conversation
}

func newMockRepo() *mockRepo {
	return &mockRepo{convs: make(map[uuid.UUID]*Conversation)}
}

func (r *mockRepo) Create(_ context.Context, c *Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.convs {
		if existing.PatientID == c.PatientID && existing.Status == StatusActive {
			return errors.New("conflict: patient already has an active conversation")
		}
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	r.convs[c.ID] = c
	return nil
}

func (r *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (r *mockRepo) GetActiveByPatient(_ context.Context, patientID uuid.UUID) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.convs {
		if c.PatientID == patientID && c.Status == StatusActive {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *mockRepo) UpdateMessages(_ context.Context, id uuid.UUID, messages []Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return ErrNotFound
	}
	c.Messages = messages
	return nil
}

func (r *mockRepo) Close(_ context.Context, c *Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.convs[c.ID]; !ok {
		return ErrNotFound
	}
	r.convs[c.ID] = c
	return nil
}

func (r *mockRepo) ListClosedByPatient(_ context.Context, patientID uuid.UUID, limit int) ([]*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Conversation
	for _, c := range r.convs {
		if c.PatientID == patientID && c.Status == StatusClosed {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.After(*out[j].ClosedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *mockRepo) ListByProfessional(_ context.Context, professionalID uuid.UUID, patientID *uuid.UUID, status string, limit int) ([]*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Conversation
	for _, c := range r.convs {
		if c.ProfessionalID != professionalID {
			continue
		}
		if patientID != nil && c.PatientID != *patientID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *mockRepo) CountActiveByProfessional(_ context.Context, professionalID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.convs {
		if c.ProfessionalID == professionalID && c.Status == StatusActive {
			n++
		}
	}
	return n, nil
}

func (r *mockRepo) CountHighGravityClosedSince(_ context.Context, professionalID uuid.UUID, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.convs {
		if c.ProfessionalID == professionalID && c.Status == StatusClosed &&
			c.Evaluation != nil && c.Evaluation.GravityLevel == 3 &&
			c.ClosedAt != nil && !c.ClosedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *mockRepo) CountCreatedPerDaySince(_ context.Context, professionalID uuid.UUID, since time.Time) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int)
	for _, c := range r.convs {
		if c.ProfessionalID == professionalID && !c.CreatedAt.Before(since) {
			counts[c.CreatedAt.Format("2006-01-02")]++
		}
	}
	return counts, nil
}

type mockPatients struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*identity.Patient
	scores   map[uuid.UUID]int
	scoreErr error
}

func newMockPatients() *mockPatients {
	return &mockPatients{
		patients: make(map[uuid.UUID]*identity.Patient),
		scores:   make(map[uuid.UUID]int),
	}
}

func (d *mockPatients) GetByID(_ context.Context, id uuid.UUID) (*identity.Patient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.patients[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return p, nil
}

func (d *mockPatients) UpdateScore(_ context.Context, id uuid.UUID, score int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.scoreErr != nil {
		return d.scoreErr
	}
	d.scores[id] = score
	return nil
}

type alert struct {
	kind           string
	professionalID uuid.UUID
	patientID      uuid.UUID
	conversationID uuid.UUID
}

type mockNotifier struct {
	mu     sync.Mutex
	alerts []alert
	err    error
}

func (n *mockNotifier) record(kind string, professionalID, patientID, conversationID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, alert{kind, professionalID, patientID, conversationID})
	return nil
}

func (n *mockNotifier) NotifyConversationStarted(_ context.Context, professionalID, patientID, conversationID uuid.UUID) error {
	return n.record("conversation_started", professionalID, patientID, conversationID)
}

func (n *mockNotifier) NotifyHighGravity(_ context.Context, professionalID, patientID, conversationID uuid.UUID) error {
	return n.record("high_gravity", professionalID, patientID, conversationID)
}

func (n *mockNotifier) byKind(kind string) []alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []alert
	for _, a := range n.alerts {
		if a.kind == kind {
			out = append(out, a)
		}
	}
	return out
}

type testEnv struct {
	svc      *Service
	repo     *mockRepo
	patients *mockPatients
	provider *ai.MockProvider
	notifier *mockNotifier
}

func newTestService(t *testing.T) *testEnv {
	t.Helper()
	repo := newMockRepo()
	patients := newMockPatients()
	provider := &ai.MockProvider{Reply: "Je suis là pour vous."}
	notifier := &mockNotifier{}
	svc := NewService(repo, patients, provider, notifier, zerolog.Nop())
	return &testEnv{svc: svc, repo: repo, patients: patients, provider: provider, notifier: notifier}
}

func (e *testEnv) seedPatient(t *testing.T) *identity.Patient {
	t.Helper()
	p := &identity.Patient{
		ID:             uuid.New(),
		ProfessionalID: uuid.New(),
		FirstName:      "Claire",
		LastName:       "Martin",
		Active:         true,
	}
	e.patients.mu.Lock()
	e.patients.patients[p.ID] = p
	e.patients.mu.Unlock()
	return p
}

func TestStartCreatesConversationAndNotifies(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)

	result, err := env.svc.Start(context.Background(), p.ID, "Bonjour, je ne vais pas très bien.")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	conv := result.Conversation
	if conv.ID == uuid.Nil {
		t.Fatal("expected conversation to be persisted with an id")
	}
	if conv.Status != StatusActive {
		t.Errorf("status = %q, want %q", conv.Status, StatusActive)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(conv.Messages))
	}
	if conv.Messages[0].Sender != SenderPatient || conv.Messages[0].Color != "blue" {
		t.Errorf("patient message = %+v", conv.Messages[0])
	}
	if conv.Messages[1].Sender != SenderAI || conv.Messages[1].Color != "green" {
		t.Errorf("ai message = %+v", conv.Messages[1])
	}
	if result.Degraded {
		t.Error("unexpected degraded flag")
	}

	started := env.notifier.byKind("conversation_started")
	if len(started) != 1 {
		t.Fatalf("conversation_started alerts = %d, want 1", len(started))
	}
	if started[0].professionalID != p.ProfessionalID || started[0].conversationID != conv.ID {
		t.Errorf("alert routing = %+v", started[0])
	}
}

func TestStartResumesActiveConversation(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)

	first, err := env.svc.Start(context.Background(), p.ID, "Premier message")
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	second, err := env.svc.Start(context.Background(), p.ID, "Deuxième message")
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if second.Conversation.ID != first.Conversation.ID {
		t.Error("expected second start to resume the existing active conversation")
	}
	if len(second.Conversation.Messages) != 4 {
		t.Errorf("messages = %d, want 4", len(second.Conversation.Messages))
	}
	if got := len(env.notifier.byKind("conversation_started")); got != 1 {
		t.Errorf("conversation_started alerts = %d, want 1", got)
	}
}

func TestStartEmptyMessage(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)
	if _, err := env.svc.Start(context.Background(), p.ID, "   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestStartInactivePatient(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)
	p.Active = false
	if _, err := env.svc.Start(context.Background(), p.ID, "Bonjour"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSendMessageAppendsTurn(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)
	started, err := env.svc.Start(context.Background(), p.ID, "Bonjour")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	result, err := env.svc.SendMessage(context.Background(), p.ID, started.Conversation.ID, "Je me sens un peu mieux.")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(result.Conversation.Messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(result.Conversation.Messages))
	}
	stored, _ := env.repo.GetByID(context.Background(), started.Conversation.ID)
	if len(stored.Messages) != 4 {
		t.Errorf("persisted messages = %d, want 4", len(stored.Messages))
	}
}

func TestPatientLocksReleaseEntries(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)
	started, err := env.svc.Start(context.Background(), p.ID, "Bonjour")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.SendMessage(context.Background(), p.ID, started.Conversation.ID, "Encore un message."); err != nil {
				t.Errorf("SendMessage: %v", err)
			}
		}()
	}
	wg.Wait()

	env.svc.locks.mu.Lock()
	held := len(env.svc.locks.m)
	env.svc.locks.mu.Unlock()
	if held != 0 {
		t.Errorf("lock entries still held = %d, want 0", held)
	}
}

func TestSendMessageOwnership(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)
	other := env.seedPatient(t)
	started, _ := env.svc.Start(context.Background(), p.ID, "Bonjour")

	_, err := env.svc.SendMessage(context.Background(), other.ID, started.Conversation.ID, "Intrusion")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	stored, _ := env.repo.GetByID(context.Background(), started.Conversation.ID)
	if len(stored.Messages) != 2 {
		t.Errorf("persisted messages = %d, want 2 (no mutation)", len(stored.Messages))
	}
}

func TestSendMessageClosedConversation(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)
	started, _ := env.svc.Start(context.Background(), p.ID, "Bonjour")
	if _, err := env.svc.Close(context.Background(), p.ID, started.Conversation.ID, 1); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := env.svc.SendMessage(context.Background(), p.ID, started.Conversation.ID, "Encore un mot")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestQuotaExhaustionServesFallback(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)
	env.provider.CompleteErr = ai.ErrQuotaExhausted

	result, err := env.svc.Start(context.Background(), p.ID, "Bonjour")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !result.Degraded {
		t.Error("expected degraded flag on quota fallback")
	}
	reply := result.Conversation.Messages[1]
	if reply.Sender != SenderAI || reply.Content == "" {
		t.Errorf("fallback reply = %+v", reply)
	}
	found := false
	for _, fr := range fallbackReplies {
		if reply.Content == fr {
			found = true
		}
	}
	if !found {
		t.Errorf("reply %q not among fallback replies", reply.Content)
	}
	stored, err := env.repo.GetActiveByPatient(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("expected fallback turn to be persisted: %v", err)
	}
	if len(stored.Messages) != 2 {
		t.Errorf("persisted messages = %d, want 2", len(stored.Messages))
	}
}

func TestProviderFailureDiscardsTurn(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)
	env.provider.CompleteErr = errors.New("model unavailable")

	_, err := env.svc.Start(context.Background(), p.ID, "Bonjour")
	if !errors.Is(err, ErrDependency) {
		t.Fatalf("err = %v, want ErrDependency", err)
	}
	if _, err := env.repo.GetActiveByPatient(context.Background(), p.ID); !errors.Is(err, ErrNotFound) {
		t.Error("expected no conversation to be persisted on hard failure")
	}
}

func TestProviderFailureDiscardsFollowUpTurn(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)
	started, _ := env.svc.Start(context.Background(), p.ID, "Bonjour")

	env.provider.CompleteErr = errors.New("model unavailable")
	_, err := env.svc.SendMessage(context.Background(), p.ID, started.Conversation.ID, "Encore")
	if !errors.Is(err, ErrDependency) {
		t.Fatalf("err = %v, want ErrDependency", err)
	}
	stored, _ := env.repo.GetByID(context.Background(), started.Conversation.ID)
	if len(stored.Messages) != 2 {
		t.Errorf("persisted messages = %d, want 2 (turn discarded)", len(stored.Messages))
	}
}

func TestCloseScoreMapping(t *testing.T) {
	tests := []struct {
		gravity int
		score   int
	}{
		{1, 7},
		{2, 4},
		{3, 1},
	}
	for _, tt := range tests {
		env := newTestService(t)
		p := env.seedPatient(t)
		started, _ := env.svc.Start(context.Background(), p.ID, "Bonjour")

		conv, err := env.svc.Close(context.Background(), p.ID, started.Conversation.ID, tt.gravity)
		if err != nil {
			t.Fatalf("Close(gravity=%d): %v", tt.gravity, err)
		}
		if conv.Status != StatusClosed || conv.ClosedAt == nil {
			t.Errorf("gravity %d: conversation not closed: %+v", tt.gravity, conv)
		}
		if conv.Evaluation == nil || conv.Evaluation.GravityLevel != tt.gravity || !conv.Evaluation.Rationality {
			t.Errorf("gravity %d: evaluation = %+v", tt.gravity, conv.Evaluation)
		}
		if got := env.patients.scores[p.ID]; got != tt.score {
			t.Errorf("gravity %d: score = %d, want %d", tt.gravity, got, tt.score)
		}
	}
}

func TestCloseInvalidGravity(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)
	started, _ := env.svc.Start(context.Background(), p.ID, "Bonjour")

	for _, g := range []int{0, 4, -1} {
		if _, err := env.svc.Close(context.Background(), p.ID, started.Conversation.ID, g); !errors.Is(err, ErrValidation) {
			t.Errorf("gravity %d: err = %v, want ErrValidation", g, err)
		}
	}
}

func TestCloseTwiceConflicts(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)
	started, _ := env.svc.Start(context.Background(), p.ID, "Bonjour")

	if _, err := env.svc.Close(context.Background(), p.ID, started.Conversation.ID, 2); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if _, err := env.svc.Close(context.Background(), p.ID, started.Conversation.ID, 2); !errors.Is(err, ErrConflict) {
		t.Fatalf("second Close err = %v, want ErrConflict", err)
	}
}

func TestCloseOwnership(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)
	other := env.seedPatient(t)
	started, _ := env.svc.Start(context.Background(), p.ID, "Bonjour")

	if _, err := env.svc.Close(context.Background(), other.ID, started.Conversation.ID, 2); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	stored, _ := env.repo.GetByID(context.Background(), started.Conversation.ID)
	if stored.Status != StatusActive {
		t.Error("expected conversation to stay active")
	}
}

func TestCloseHighGravityNotifies(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)
	started, _ := env.svc.Start(context.Background(), p.ID, "Bonjour")

	if _, err := env.svc.Close(context.Background(), p.ID, started.Conversation.ID, 3); err != nil {
		t.Fatalf("Close: %v", err)
	}
	alerts := env.notifier.byKind("high_gravity")
	if len(alerts) != 1 {
		t.Fatalf("high_gravity alerts = %d, want 1", len(alerts))
	}
	if alerts[0].professionalID != p.ProfessionalID {
		t.Errorf("alert routed to %s, want %s", alerts[0].professionalID, p.ProfessionalID)
	}
}

func TestCloseUrgencyInSummaryNotifies(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)
	env.provider.SummaryOut = &ai.Summary{
		Keywords:          []string{"détresse"},
		MainConcern:       "Signes de détresse aiguë",
		UrgencyDetected:   true,
		RecommendedAction: "Contacter le patient rapidement",
	}
	started, _ := env.svc.Start(context.Background(), p.ID, "Bonjour")

	conv, err := env.svc.Close(context.Background(), p.ID, started.Conversation.ID, 1)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !conv.Summary.UrgencyDetected {
		t.Error("expected urgency flag on stored summary")
	}
	if got := len(env.notifier.byKind("high_gravity")); got != 1 {
		t.Errorf("high_gravity alerts = %d, want 1", got)
	}
	if got := env.patients.scores[p.ID]; got != 7 {
		t.Errorf("score = %d, want 7 (gravity drives the score, not urgency)", got)
	}
}

func TestCloseLowGravityNoAlert(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)
	started, _ := env.svc.Start(context.Background(), p.ID, "Bonjour")

	if _, err := env.svc.Close(context.Background(), p.ID, started.Conversation.ID, 1); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := len(env.notifier.byKind("high_gravity")); got != 0 {
		t.Errorf("high_gravity alerts = %d, want 0", got)
	}
}

func TestCloseSummaryFailureFallsBack(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)
	env.provider.SummarizeErr = errors.New("model unavailable")
	started, _ := env.svc.Start(context.Background(), p.ID, "Bonjour")

	conv, err := env.svc.Close(context.Background(), p.ID, started.Conversation.ID, 2)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if conv.Summary == nil || conv.Summary.MainConcern != "Discussion générale" {
		t.Errorf("summary = %+v, want fallback", conv.Summary)
	}
	if conv.Summary.RecommendedAction != "Suivi normal" {
		t.Errorf("recommended action = %q", conv.Summary.RecommendedAction)
	}
	if conv.Status != StatusClosed {
		t.Error("summary failure must not block closing")
	}
}

func TestActiveReturnsNilWhenNone(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)

	conv, err := env.svc.Active(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if conv != nil {
		t.Errorf("conv = %+v, want nil", conv)
	}
}

func TestHistoryListsClosedOnly(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)

	first, _ := env.svc.Start(context.Background(), p.ID, "Première conversation")
	if _, err := env.svc.Close(context.Background(), p.ID, first.Conversation.ID, 1); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := env.svc.Start(context.Background(), p.ID, "Deuxième conversation"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	items, err := env.svc.History(context.Background(), p.ID, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("history = %d, want 1", len(items))
	}
	if items[0].ID != first.Conversation.ID || items[0].Status != StatusClosed {
		t.Errorf("history entry = %+v", items[0])
	}
}

func TestListForProfessionalFilters(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)

	started, _ := env.svc.Start(context.Background(), p.ID, "Bonjour")

	items, err := env.svc.ListForProfessional(context.Background(), p.ProfessionalID, nil, "", 0)
	if err != nil {
		t.Fatalf("ListForProfessional: %v", err)
	}
	if len(items) != 1 || items[0].ID != started.Conversation.ID {
		t.Fatalf("items = %+v", items)
	}

	items, err = env.svc.ListForProfessional(context.Background(), p.ProfessionalID, nil, StatusClosed, 0)
	if err != nil {
		t.Fatalf("ListForProfessional(closed): %v", err)
	}
	if len(items) != 0 {
		t.Errorf("closed items = %d, want 0", len(items))
	}

	if _, err := env.svc.ListForProfessional(context.Background(), p.ProfessionalID, nil, "archived", 0); !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestGetOwnership(t *testing.T) {
	env := newTestService(t)
	p := env.seedPatient(t)
	started, _ := env.svc.Start(context.Background(), p.ID, "Bonjour")

	if _, err := env.svc.Get(context.Background(), p.ProfessionalID, started.Conversation.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := env.svc.Get(context.Background(), uuid.New(), started.Conversation.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}
