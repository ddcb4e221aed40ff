package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunara-health/lunara-api/internal/domain"
	"github.com/lunara-health/lunara-api/internal/middleware"
	"github.com/lunara-health/lunara-api/internal/port"
	"github.com/lunara-health/lunara-api/internal/service"
)

// stubEmbedder maps known texts to fixed vectors so routing is controlled
// from the test.
type stubEmbedder struct {
	vecs map[string][]float32
}

func (e *stubEmbedder) vec(text string) []float32 {
	if v, ok := e.vecs[text]; ok {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	return []float32{0, 0, 1}
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.vec(text), nil
}

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vec(t)
	}
	return out, nil
}

// memHistory is an in-memory port.ChatHistory.
type memHistory struct {
	chats map[string]string // chat id -> user id
	msgs  map[string][]domain.ChatMessage
}

func newMemHistory() *memHistory {
	return &memHistory{
		chats: make(map[string]string),
		msgs:  make(map[string][]domain.ChatMessage),
	}
}

func (m *memHistory) CreateChat(_ context.Context, userID string) (string, error) {
	id := uuid.NewString()
	m.chats[id] = userID
	return id, nil
}

func (m *memHistory) AppendMessages(_ context.Context, chatID, userID string, msgs []domain.ChatMessage) error {
	if m.chats[chatID] != userID {
		return port.ErrChatNotFound
	}
	m.msgs[chatID] = append(m.msgs[chatID], msgs...)
	return nil
}

func (m *memHistory) ListChats(_ context.Context, userID string) ([]domain.ChatSession, error) {
	var out []domain.ChatSession
	for id, owner := range m.chats {
		if owner == userID {
			out = append(out, domain.ChatSession{ID: id, UserID: owner, MessageCount: len(m.msgs[id])})
		}
	}
	return out, nil
}

func (m *memHistory) GetChatMessages(_ context.Context, chatID, userID string) ([]domain.ChatMessage, error) {
	if m.chats[chatID] != userID {
		return nil, port.ErrChatNotFound
	}
	return m.msgs[chatID], nil
}

func (m *memHistory) DeleteChat(_ context.Context, chatID, userID string) error {
	if m.chats[chatID] != userID {
		return port.ErrChatNotFound
	}
	delete(m.chats, chatID)
	delete(m.msgs, chatID)
	return nil
}

const ppdQuestion = "What are signs of PPD?"

func writeTestCorpus(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qa.json")
	content := `[
		{"question": "What are signs of PPD?", "answer": "Sadness and anxiety lasting beyond two weeks."},
		{"question": "How often should a newborn feed?", "answer": "Every two to three hours."}
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

var testJWTConfig = middleware.JWTConfig{
	Secret:    "test-secret",
	Issuer:    "lunara-care",
	ExpiresIn: time.Hour,
}

func newTestApp(t *testing.T, history port.ChatHistory) (*fiber.App, *service.ChatService) {
	t.Helper()

	embedder := &stubEmbedder{vecs: map[string][]float32{
		ppdQuestion: {1, 0, 0},
	}}
	svc := service.NewChatService(embedder, service.NewFallbackChain(time.Second), service.Options{
		CorpusPath:          writeTestCorpus(t),
		ConfidenceThreshold: 0.6,
		TopK:                3,
		FallbackEnabled:     true,
	})

	app := fiber.New()
	api := app.Group("/api/v1", middleware.JWTMiddleware(testJWTConfig))

	tracker := NewJobTracker()
	NewChatbotHandler(svc, history, tracker).Register(api)
	NewJobsHandler(tracker).Register(api)

	return app, svc
}

func authToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := middleware.GenerateJWT(&domain.User{
		ID:    userID,
		Email: "mara@example.com",
		Name:  "Mara",
		Role:  "mother",
	}, testJWTConfig)
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 10 * time.Second})
	require.NoError(t, err)

	var parsed map[string]any
	if resp.Header.Get("Content-Type") != "" {
		_ = json.NewDecoder(resp.Body).Decode(&parsed)
	}
	return resp, parsed
}

func TestChatRequiresAuth(t *testing.T) {
	app, _ := newTestApp(t, newMemHistory())

	resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/chatbot/chat", "", map[string]any{"message": "hi"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatMissingMessage(t *testing.T) {
	app, _ := newTestApp(t, newMemHistory())
	token := authToken(t, "user-1")

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/chatbot/chat", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "no message")
}

func TestChatKnowledgeBaseAnswer(t *testing.T) {
	history := newMemHistory()
	app, _ := newTestApp(t, history)
	token := authToken(t, "user-1")

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/chatbot/chat", token,
		map[string]any{"message": ppdQuestion})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "Sadness and anxiety lasting beyond two weeks.", body["answer"])
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, "rag", meta["source"])
	assert.InDelta(t, 1.0, meta["confidence"].(float64), 1e-6)

	// Turn was persisted and a chat id returned
	chatID, _ := body["chatId"].(string)
	require.NotEmpty(t, chatID)
	msgs, err := history.GetChatMessages(context.Background(), chatID, "user-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Sender)
	assert.Equal(t, "bot", msgs[1].Sender)
	require.NotNil(t, msgs[0].Sentiment)
}

func TestChatContinuesExistingChat(t *testing.T) {
	history := newMemHistory()
	app, _ := newTestApp(t, history)
	token := authToken(t, "user-1")

	_, first := doJSON(t, app, http.MethodPost, "/api/v1/chatbot/chat", token,
		map[string]any{"message": ppdQuestion})
	chatID := first["chatId"].(string)

	resp, second := doJSON(t, app, http.MethodPost, "/api/v1/chatbot/chat", token,
		map[string]any{"message": ppdQuestion, "chatId": chatID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, chatID, second["chatId"])

	msgs, err := history.GetChatMessages(context.Background(), chatID, "user-1")
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestChatHistoryFailureDoesNotFailAnswer(t *testing.T) {
	app, _ := newTestApp(t, nil) // no history store at all
	token := authToken(t, "user-1")

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/chatbot/chat", token,
		map[string]any{"message": ppdQuestion})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["answer"])
	assert.Nil(t, body["chatId"])
}

func TestChatGuardrailShortCircuit(t *testing.T) {
	app, _ := newTestApp(t, newMemHistory())
	token := authToken(t, "user-1")

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/chatbot/chat", token,
		map[string]any{"message": "I want to hurt myself"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, "safety", meta["source"])
}

func TestInitializeAndStatus(t *testing.T) {
	app, _ := newTestApp(t, newMemHistory())
	token := authToken(t, "user-1")

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/chatbot/initialize", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	features := body["features"].(map[string]any)
	assert.Equal(t, float64(2), features["knowledge_base_entries"])

	resp, body = doJSON(t, app, http.MethodGet, "/api/v1/chatbot/status", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["state"])
	assert.Equal(t, true, body["initialized"])
}

func TestUpdateSettings(t *testing.T) {
	app, svc := newTestApp(t, newMemHistory())
	token := authToken(t, "user-1")

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/chatbot/settings", token,
		map[string]any{"confidence_threshold": 0.8, "fallback_enabled": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 0.8, body["confidence_threshold"].(float64), 1e-9)
	assert.Equal(t, false, body["fallback_enabled"])
	assert.InDelta(t, 0.8, svc.Threshold(), 1e-9)

	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/chatbot/settings", token,
		map[string]any{"confidence_threshold": 1.5})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.InDelta(t, 0.8, svc.Threshold(), 1e-9) // unchanged
}

func TestChatSessionEndpoints(t *testing.T) {
	history := newMemHistory()
	app, _ := newTestApp(t, history)
	token := authToken(t, "user-1")
	otherToken := authToken(t, "user-2")

	_, body := doJSON(t, app, http.MethodPost, "/api/v1/chatbot/chat", token,
		map[string]any{"message": ppdQuestion})
	chatID := body["chatId"].(string)

	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/chatbot/chats", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["chats"], 1)

	// Another user cannot read or delete the chat
	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/chatbot/chats/"+chatID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = doJSON(t, app, http.MethodDelete, "/api/v1/chatbot/chats/"+chatID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Malformed id is rejected before touching storage
	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/chatbot/chats/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodGet, "/api/v1/chatbot/chats/"+chatID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["messages"], 2)

	resp, _ = doJSON(t, app, http.MethodDelete, "/api/v1/chatbot/chats/"+chatID, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/chatbot/chats/"+chatID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRebuildJobLifecycle(t *testing.T) {
	app, _ := newTestApp(t, newMemHistory())
	token := authToken(t, "user-1")

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/chatbot/rebuild", token, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	jobID := body["job_id"].(string)
	require.NotEmpty(t, jobID)

	// Poll until the background rebuild finishes
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, body = doJSON(t, app, http.MethodGet, "/api/v1/jobs/"+jobID, token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		if body["status"] == "complete" {
			assert.Equal(t, float64(2), body["total"])
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("rebuild job did not complete, last status %v", body["status"])
		}
		time.Sleep(20 * time.Millisecond)
	}

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobTrackerSubscribe(t *testing.T) {
	tracker := NewJobTracker()
	tracker.CreateJob("job-1")
	ch := tracker.Subscribe("job-1")

	tracker.UpdateJob("job-1", 1, 2, "running", "")
	update := <-ch
	assert.Equal(t, 1, update.Embedded)
	assert.Equal(t, "running", update.Status)

	tracker.UpdateJob("job-1", 2, 2, "complete", "")
	update = <-ch
	assert.Equal(t, "complete", update.Status)

	tracker.Unsubscribe("job-1", ch)
	_, open := <-ch
	assert.False(t, open)
}
