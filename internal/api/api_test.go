package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/doodlemind/doodle.ai/internal/auth"
	"github.com/doodlemind/doodle.ai/internal/mind"
	"github.com/doodlemind/doodle.ai/internal/models"
	"github.com/doodlemind/doodle.ai/internal/session"
	"github.com/doodlemind/doodle.ai/internal/utils"
	"github.com/doodlemind/doodle.ai/services"
)

type nullStore struct {
	mu        sync.Mutex
	snapshots map[string]session.Snapshot
}

func (s *nullStore) LoadSnapshot(ctx context.Context, userID string) (*session.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, ok := s.snapshots[userID]
	if !ok {
		return nil, nil
	}
	return &snapshot, nil
}

func (s *nullStore) SaveSnapshot(ctx context.Context, userID string, snapshot session.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshots == nil {
		s.snapshots = make(map[string]session.Snapshot)
	}
	s.snapshots[userID] = snapshot
	return nil
}

type nullHistory struct{}

func (nullHistory) AppendMessage(ctx context.Context, userID string, msg models.Message) error {
	return nil
}

func (nullHistory) MarkResonated(ctx context.Context, userID, messageID string, likes int) error {
	return nil
}

func (nullHistory) ListMessages(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	return nil, nil
}

func (nullHistory) AppendEntry(ctx context.Context, userID string, entry models.JournalEntry) error {
	return nil
}

func (nullHistory) ListEntries(ctx context.Context, userID string, limit int) ([]models.JournalEntry, error) {
	return nil, nil
}

type fixedGenerator struct {
	batch []services.CandidateReply
}

func (g fixedGenerator) GenerateTurn(ctx context.Context, req services.TurnRequest) ([]services.CandidateReply, error) {
	return g.batch, nil
}

type fixedAnalyzer struct {
	analysis *services.JournalAnalysis
	err      error
}

func (a fixedAnalyzer) AnalyzeJournal(ctx context.Context, text string, personas []models.Persona) (*services.JournalAnalysis, error) {
	return a.analysis, a.err
}

func setupTestRouter(t *testing.T, gen services.TurnGenerator, analyzer services.EntryAnalyzer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authService, err := auth.NewService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("failed to create auth service: %v", err)
	}

	if gen == nil {
		gen = fixedGenerator{}
	}
	if analyzer == nil {
		analyzer = fixedAnalyzer{}
	}

	logger := zap.NewNop().Sugar()
	manager := session.NewManager(
		mind.DefaultRoster(),
		gen,
		analyzer,
		&nullStore{},
		nullHistory{},
		utils.EngineConfig{
			HistoryWindow:     8,
			MinReplyDelay:     time.Millisecond,
			MaxReplyDelay:     time.Millisecond,
			SkillCheckChance:  -1,
			GenerationTimeout: time.Second,
		},
		logger,
	)

	handler := NewHandler(authService, manager, logger)
	router := gin.New()
	handler.RegisterRoutes(router)

	return router
}

func registerUser(t *testing.T, router *gin.Engine, username string) string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": username,
		"password": "secret123",
	})
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed with status %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	decodeBody(t, rec.Body.Bytes(), &resp)
	token, _ := resp["token"].(string)
	if token == "" {
		t.Fatalf("expected token in registration response")
	}
	return token
}

func authedJSONRequest(t *testing.T, token, method, path string, body any) *http.Request {
	t.Helper()
	req := newJSONRequest(t, method, path, body)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestAuthRegisterAndLogin(t *testing.T) {
	router := setupTestRouter(t, nil, nil)

	registerUser(t, router, "alice")

	rec := httptest.NewRecorder()
	req := newJSONRequest(t, http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": "alice",
		"password":   "secret123",
	})
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var loginResp map[string]any
	decodeBody(t, rec.Body.Bytes(), &loginResp)
	if loginResp["token"] == "" {
		t.Fatalf("expected token in login response")
	}
}

func TestPersonasRequireAuth(t *testing.T) {
	router := setupTestRouter(t, nil, nil)

	rec := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/personas", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestListPersonasReturnsFullRoster(t *testing.T) {
	router := setupTestRouter(t, nil, nil)
	token := registerUser(t, router, "alice")

	rec := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/personas", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Personas      []models.Persona `json:"personas"`
		SelectionDone bool             `json:"selectionDone"`
	}
	decodeBody(t, rec.Body.Bytes(), &resp)
	if len(resp.Personas) != 16 {
		t.Fatalf("expected 16 personas, got %d", len(resp.Personas))
	}
	if resp.SelectionDone {
		t.Fatalf("fresh user must not have completed selection")
	}
}

func TestBootstrapOnceThenConflict(t *testing.T) {
	router := setupTestRouter(t, nil, nil)
	token := registerUser(t, router, "alice")

	rec := httptest.NewRecorder()
	req := authedJSONRequest(t, token, http.MethodPost, "/api/personas/bootstrap", map[string]string{"primaryId": "cypher"})
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Selected []string `json:"selected"`
	}
	decodeBody(t, rec.Body.Bytes(), &resp)
	if len(resp.Selected) != 4 {
		t.Fatalf("expected 4 selected personas, got %v", resp.Selected)
	}
	if resp.Selected[0] != "cypher" {
		t.Fatalf("expected primary first, got %v", resp.Selected)
	}

	rec = httptest.NewRecorder()
	req = authedJSONRequest(t, token, http.MethodPost, "/api/personas/bootstrap", map[string]string{"primaryId": "eros"})
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second bootstrap, got %d", rec.Code)
	}
}

func TestBootstrapUnknownPersona(t *testing.T) {
	router := setupTestRouter(t, nil, nil)
	token := registerUser(t, router, "alice")

	rec := httptest.NewRecorder()
	req := authedJSONRequest(t, token, http.MethodPost, "/api/personas/bootstrap", map[string]string{"primaryId": "ghost"})
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown persona, got %d", rec.Code)
	}
}

func TestUnlockWithoutEnergyConflicts(t *testing.T) {
	router := setupTestRouter(t, nil, nil)
	token := registerUser(t, router, "alice")

	rec := httptest.NewRecorder()
	req := authedJSONRequest(t, token, http.MethodPost, "/api/personas/cypher/unlock", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 unlocking with zero energy, got %d", rec.Code)
	}
}

func TestSendMessageValidation(t *testing.T) {
	router := setupTestRouter(t, nil, nil)
	token := registerUser(t, router, "alice")

	rec := httptest.NewRecorder()
	req := authedJSONRequest(t, token, http.MethodPost, "/api/chat/messages", map[string]string{"text": "   "})
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank text, got %d", rec.Code)
	}
}

func TestSendMessageAcceptedAndDelivered(t *testing.T) {
	gen := fixedGenerator{batch: []services.CandidateReply{
		{PersonaID: "cypher", Text: "an observation"},
	}}
	router := setupTestRouter(t, gen, nil)
	token := registerUser(t, router, "alice")

	rec := httptest.NewRecorder()
	req := authedJSONRequest(t, token, http.MethodPost, "/api/personas/bootstrap", map[string]string{"primaryId": "cypher"})
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bootstrap failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = authedJSONRequest(t, token, http.MethodPost, "/api/chat/messages", map[string]string{"text": "hello"})
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec = httptest.NewRecorder()
		listReq, _ := http.NewRequest(http.MethodGet, "/api/chat/messages", nil)
		listReq.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(rec, listReq)
		if rec.Code != http.StatusOK {
			t.Fatalf("list failed: %d", rec.Code)
		}

		var resp struct {
			Messages []models.Message `json:"messages"`
			Busy     bool             `json:"busy"`
		}
		decodeBody(t, rec.Body.Bytes(), &resp)
		if !resp.Busy && len(resp.Messages) >= 2 {
			if resp.Messages[0].AuthorID != models.AuthorUser || resp.Messages[1].AuthorID != "cypher" {
				t.Fatalf("unexpected timeline: %+v", resp.Messages)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("reply never delivered: %+v", resp)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestResonanceUnknownMessage(t *testing.T) {
	router := setupTestRouter(t, nil, nil)
	token := registerUser(t, router, "alice")

	rec := httptest.NewRecorder()
	req := authedJSONRequest(t, token, http.MethodPost, "/api/chat/messages/nope/resonance", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown message, got %d", rec.Code)
	}
}

func TestJournalRoundTrip(t *testing.T) {
	analyzer := fixedAnalyzer{analysis: &services.JournalAnalysis{
		Summary:   "a hinge day",
		Mood:      "hopeful",
		Reactions: []models.JournalReaction{{PersonaID: "haven", Text: "rest now"}},
	}}
	router := setupTestRouter(t, nil, analyzer)
	token := registerUser(t, router, "alice")

	rec := httptest.NewRecorder()
	req := authedJSONRequest(t, token, http.MethodPost, "/api/journal", map[string]string{"content": "today turned"})
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	listReq, _ := http.NewRequest(http.MethodGet, "/api/journal", nil)
	listReq.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, listReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Entries []models.JournalEntry `json:"entries"`
	}
	decodeBody(t, rec.Body.Bytes(), &resp)
	if len(resp.Entries) != 1 || resp.Entries[0].Summary != "a hinge day" {
		t.Fatalf("unexpected entries: %+v", resp.Entries)
	}
}

func TestJournalBlankContentRejected(t *testing.T) {
	router := setupTestRouter(t, nil, nil)
	token := registerUser(t, router, "alice")

	rec := httptest.NewRecorder()
	req := authedJSONRequest(t, token, http.MethodPost, "/api/journal", map[string]string{"content": ""})
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank entry, got %d", rec.Code)
	}
}

func TestProfileReflectsBootstrap(t *testing.T) {
	router := setupTestRouter(t, nil, nil)
	token := registerUser(t, router, "alice")

	rec := httptest.NewRecorder()
	req := authedJSONRequest(t, token, http.MethodPost, "/api/personas/bootstrap", map[string]string{"primaryId": "volt"})
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bootstrap failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	profileReq, _ := http.NewRequest(http.MethodGet, "/api/profile", nil)
	profileReq.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(rec, profileReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Traits        mind.TraitVector `json:"traits"`
		DominantType  string           `json:"dominantType"`
		SelectionDone bool             `json:"selectionDone"`
	}
	decodeBody(t, rec.Body.Bytes(), &resp)
	if !resp.SelectionDone {
		t.Fatalf("expected selection done after bootstrap")
	}
	if resp.Traits.Energy != mind.BootstrapBonus {
		t.Fatalf("expected bootstrap energy, got %d", resp.Traits.Energy)
	}
	if resp.DominantType != mind.UnresolvedType {
		t.Fatalf("expected unresolved type before any resonance, got %s", resp.DominantType)
	}
}

func newJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}

	req, err := http.NewRequest(method, path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, data []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}
