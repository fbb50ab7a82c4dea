package notification

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/julia/julia/internal/domain/identity"
	delivery "github.com/julia/julia/internal/platform/notification"
)

// -- Mocks --

type mockRepo struct {
	records map[uuid.UUID]*Notification
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[uuid.UUID]*Notification)}
}

func (m *mockRepo) Create(_ context.Context, n *Notification) error {
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	n.UpdatedAt = time.Now()
	m.records[n.ID] = n
	return nil
}
func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Notification, error) {
	n, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return n, nil
}
func (m *mockRepo) ListByProfessional(_ context.Context, professionalID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	var result []*Notification
	for _, n := range m.records {
		if n.ProfessionalID != professionalID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, len(result), nil
}
func (m *mockRepo) MarkRead(_ context.Context, id uuid.UUID) error {
	if n, ok := m.records[id]; ok {
		now := time.Now()
		n.Read = true
		n.ReadAt = &now
	}
	return nil
}
func (m *mockRepo) MarkAllRead(_ context.Context, professionalID uuid.UUID) error {
	now := time.Now()
	for _, n := range m.records {
		if n.ProfessionalID == professionalID && !n.Read {
			n.Read = true
			n.ReadAt = &now
		}
	}
	return nil
}
func (m *mockRepo) MarkSent(_ context.Context, id uuid.UUID) error {
	if n, ok := m.records[id]; ok {
		n.Sent = true
	}
	return nil
}
func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.records, id)
	return nil
}

type mockDirectory struct {
	records map[uuid.UUID]*identity.Professional
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{records: make(map[uuid.UUID]*identity.Professional)}
}

func (m *mockDirectory) GetByID(_ context.Context, id uuid.UUID) (*identity.Professional, error) {
	p, ok := m.records[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return p, nil
}
func (m *mockDirectory) UpdatePushToken(_ context.Context, id uuid.UUID, token string) error {
	if p, ok := m.records[id]; ok {
		p.PushToken = &token
	}
	return nil
}

type testEnv struct {
	svc       *Service
	repo      *mockRepo
	directory *mockDirectory
	push      *delivery.MockPushSender
}

func newTestService() *testEnv {
	repo := newMockRepo()
	directory := newMockDirectory()
	push := &delivery.MockPushSender{}
	svc := NewService(repo, directory, push, zerolog.Nop())
	return &testEnv{svc: svc, repo: repo, directory: directory, push: push}
}

func (e *testEnv) addProfessional(token *string) *identity.Professional {
	p := &identity.Professional{ID: uuid.New(), Email: "pro@example.com", PushToken: token, Active: true}
	e.directory.records[p.ID] = p
	return p
}

// -- Tests --

func TestNotifyPersistsAndPushes(t *testing.T) {
	env := newTestService()
	token := "ExponentPushToken[abc]"
	pro := env.addProfessional(&token)
	patientID := uuid.New()
	conversationID := uuid.New()

	err := env.svc.NotifyHighGravity(context.Background(), pro.ID, patientID, conversationID)
	if err != nil {
		t.Fatalf("NotifyHighGravity() error = %v", err)
	}

	if len(env.repo.records) != 1 {
		t.Fatalf("expected 1 stored notification, got %d", len(env.repo.records))
	}
	for _, n := range env.repo.records {
		if n.Type != TypeHighGravity || n.Priority != PriorityUrgent {
			t.Errorf("unexpected notification: type=%s priority=%s", n.Type, n.Priority)
		}
		if n.Title != "⚠️ Alerte gravité élevée" {
			t.Errorf("unexpected title %q", n.Title)
		}
		if !n.Sent {
			t.Error("expected sent flag after successful push")
		}
	}

	calls := env.push.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 push, got %d", len(calls))
	}
	if calls[0].Token != token {
		t.Errorf("pushed to wrong token %q", calls[0].Token)
	}
	if calls[0].Data["conversation_id"] != conversationID.String() {
		t.Errorf("push data missing conversation id: %+v", calls[0].Data)
	}
}

func TestNotifyWithoutPushToken(t *testing.T) {
	env := newTestService()
	pro := env.addProfessional(nil)

	err := env.svc.NotifyConversationStarted(context.Background(), pro.ID, uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("NotifyConversationStarted() error = %v", err)
	}

	if len(env.push.Calls()) != 0 {
		t.Error("expected no push without a registered token")
	}
	for _, n := range env.repo.records {
		if n.Sent {
			t.Error("sent flag must stay false without delivery")
		}
		if n.Priority != PriorityMedium {
			t.Errorf("expected medium priority, got %s", n.Priority)
		}
	}
}

func TestNotifyPushFailureIsSwallowed(t *testing.T) {
	env := newTestService()
	env.push.ShouldFail = true
	env.push.FailError = "expo unavailable"
	token := "ExponentPushToken[abc]"
	pro := env.addProfessional(&token)

	err := env.svc.NotifyConversationStarted(context.Background(), pro.ID, uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("push failure must not surface, got %v", err)
	}
	for _, n := range env.repo.records {
		if n.Sent {
			t.Error("sent flag must stay false after failed push")
		}
	}
}

func TestNotifyInvalidType(t *testing.T) {
	env := newTestService()
	pro := env.addProfessional(nil)

	err := env.svc.Notify(context.Background(), &Notification{
		ProfessionalID: pro.ID,
		Type:           "spam",
		Title:          "t",
		Message:        "m",
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestMarkReadOwnership(t *testing.T) {
	env := newTestService()
	pro := env.addProfessional(nil)
	if err := env.svc.NotifyConversationStarted(context.Background(), pro.ID, uuid.New(), uuid.New()); err != nil {
		t.Fatal(err)
	}
	var id uuid.UUID
	for _, n := range env.repo.records {
		id = n.ID
	}

	if _, err := env.svc.MarkRead(context.Background(), uuid.New(), id); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden for stranger, got %v", err)
	}

	n, err := env.svc.MarkRead(context.Background(), pro.ID, id)
	if err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if !n.Read || n.ReadAt == nil {
		t.Error("notification not marked read")
	}
}

func TestMarkAllReadAndUnreadFilter(t *testing.T) {
	env := newTestService()
	pro := env.addProfessional(nil)
	for i := 0; i < 3; i++ {
		if err := env.svc.NotifyConversationStarted(context.Background(), pro.ID, uuid.New(), uuid.New()); err != nil {
			t.Fatal(err)
		}
	}

	unread, total, err := env.svc.List(context.Background(), pro.ID, true, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(unread) != 3 {
		t.Fatalf("expected 3 unread, got %d", total)
	}

	if err := env.svc.MarkAllRead(context.Background(), pro.ID); err != nil {
		t.Fatal(err)
	}
	_, total, err = env.svc.List(context.Background(), pro.ID, true, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Errorf("expected 0 unread after mark-all, got %d", total)
	}
}

func TestRegisterPushToken(t *testing.T) {
	env := newTestService()
	pro := env.addProfessional(nil)

	if err := env.svc.RegisterPushToken(context.Background(), pro.ID, "not-a-token"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for malformed token, got %v", err)
	}

	if err := env.svc.RegisterPushToken(context.Background(), pro.ID, "ExponentPushToken[xyz]"); err != nil {
		t.Fatalf("RegisterPushToken() error = %v", err)
	}
	if pro.PushToken == nil || *pro.PushToken != "ExponentPushToken[xyz]" {
		t.Error("token not stored")
	}
}
