package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/lunara-health/lunara-api/internal/domain"
	"github.com/lunara-health/lunara-api/internal/middleware"
	"github.com/lunara-health/lunara-api/internal/port"
	"github.com/lunara-health/lunara-api/internal/service"
)

// ChatbotHandler handles chatbot HTTP endpoints.
type ChatbotHandler struct {
	svc     *service.ChatService
	history port.ChatHistory
	tracker *JobTracker
}

// NewChatbotHandler creates a new chatbot handler.
func NewChatbotHandler(svc *service.ChatService, history port.ChatHistory, tracker *JobTracker) *ChatbotHandler {
	return &ChatbotHandler{svc: svc, history: history, tracker: tracker}
}

// Register sets up chatbot routes.
func (h *ChatbotHandler) Register(router fiber.Router) {
	bot := router.Group("/chatbot")
	bot.Post("/chat", h.Chat)
	bot.Post("/initialize", h.Initialize)
	bot.Post("/rebuild", h.Rebuild)
	bot.Get("/status", h.Status)
	bot.Get("/settings", h.GetSettings)
	bot.Post("/settings", h.UpdateSettings)
	bot.Get("/chats", h.ListChats)
	bot.Get("/chats/:id", h.GetChat)
	bot.Delete("/chats/:id", h.DeleteChat)
}

type chatRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chatId"`
}

// Chat answers a user message against the knowledge base.
func (h *ChatbotHandler) Chat(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req chatRequest
	if err := c.Bind().Body(&req); err != nil || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no message provided"})
	}

	payload, ok := service.CheckGuardrails(req.Message)
	if !ok {
		var err error
		payload, err = h.svc.HandleMessage(c.Context(), req.Message)
		switch {
		case err == nil:
		case errors.Is(err, port.ErrEmptyQuery):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no message provided"})
		case errors.Is(err, port.ErrNotReady):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "knowledge base is not ready, try again shortly"})
		default:
			slog.Error("chat failed", "user_id", uc.UserID, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to answer message"})
		}
	}

	chatID := h.persistTurn(c.Context(), uc.UserID, req.ChatID, req.Message, payload)

	resp := fiber.Map{
		"answer":            payload.Answer,
		"metadata":          payload.Metadata,
		"similar_questions": payload.SimilarQuestions,
	}
	if chatID != "" {
		resp["chatId"] = chatID
	} else {
		resp["chatId"] = nil
	}
	return c.JSON(resp)
}

// persistTurn records the user and assistant messages. History is best
// effort: a storage failure must never fail the chat response.
func (h *ChatbotHandler) persistTurn(ctx context.Context, userID, chatID, message string, payload domain.AnswerPayload) string {
	if h.history == nil {
		return ""
	}

	if chatID == "" {
		id, err := h.history.CreateChat(ctx, userID)
		if err != nil {
			slog.Warn("failed to create chat", "user_id", userID, "error", err)
			return ""
		}
		chatID = id
	}

	sentiment := service.AnalyzeSentiment(message)
	now := time.Now()
	msgs := []domain.ChatMessage{
		{Sender: "user", Text: message, Sentiment: &sentiment, CreatedAt: now},
		{Sender: "bot", Text: payload.Answer, CreatedAt: now},
	}
	if err := h.history.AppendMessages(ctx, chatID, userID, msgs); err != nil {
		slog.Warn("failed to append chat messages", "chat_id", chatID, "error", err)
		return ""
	}
	return chatID
}

// Initialize builds the knowledge base index. Safe to call repeatedly.
func (h *ChatbotHandler) Initialize(c fiber.Ctx) error {
	if err := h.svc.Initialize(c.Context()); err != nil {
		slog.Error("initialization failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "initialization failed"})
	}
	return c.JSON(fiber.Map{
		"message": "chatbot initialized",
		"features": fiber.Map{
			"knowledge_base_entries": h.svc.CorpusSize(),
			"fallback_providers":     h.svc.ProviderNames(),
			"confidence_threshold":   h.svc.Threshold(),
		},
	})
}

// Rebuild re-embeds the corpus in the background and returns a job id.
func (h *ChatbotHandler) Rebuild(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	jobID := uuid.NewString()
	h.tracker.CreateJob(jobID)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		err := h.svc.Rebuild(ctx, func(done, total int) {
			h.tracker.UpdateJob(jobID, done, total, "running", "")
		})
		if err != nil {
			slog.Error("rebuild failed", "job_id", jobID, "error", err)
			h.tracker.UpdateJob(jobID, 0, 0, "error", err.Error())
			return
		}
		h.tracker.UpdateJob(jobID, h.svc.CorpusSize(), h.svc.CorpusSize(), "complete", "")
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": jobID})
}

// Status reports the engine state.
func (h *ChatbotHandler) Status(c fiber.Ctx) error {
	state := h.svc.State()
	return c.JSON(fiber.Map{
		"state":                state.String(),
		"initialized":          state == service.StateReady,
		"knowledge_base_size":  h.svc.CorpusSize(),
		"confidence_threshold": h.svc.Threshold(),
		"fallback_enabled":     h.svc.FallbackEnabled(),
		"fallback_providers":   h.svc.ProviderNames(),
	})
}

// GetSettings returns the tunable runtime settings.
func (h *ChatbotHandler) GetSettings(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"confidence_threshold": h.svc.Threshold(),
		"fallback_enabled":     h.svc.FallbackEnabled(),
	})
}

type settingsRequest struct {
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
	FallbackEnabled     *bool    `json:"fallback_enabled"`
}

// UpdateSettings adjusts the threshold or fallback toggle at runtime.
func (h *ChatbotHandler) UpdateSettings(c fiber.Ctx) error {
	var req settingsRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if req.ConfidenceThreshold != nil {
		if err := h.svc.SetThreshold(*req.ConfidenceThreshold); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}
	if req.FallbackEnabled != nil {
		h.svc.SetFallbackEnabled(*req.FallbackEnabled)
	}

	return c.JSON(fiber.Map{
		"confidence_threshold": h.svc.Threshold(),
		"fallback_enabled":     h.svc.FallbackEnabled(),
	})
}

// ListChats returns the caller's chat sessions.
func (h *ChatbotHandler) ListChats(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	if h.history == nil {
		return c.JSON(fiber.Map{"chats": []domain.ChatSession{}})
	}

	chats, err := h.history.ListChats(c.Context(), uc.UserID)
	if err != nil {
		slog.Error("failed to list chats", "user_id", uc.UserID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list chats"})
	}
	if chats == nil {
		chats = []domain.ChatSession{}
	}
	return c.JSON(fiber.Map{"chats": chats})
}

// GetChat returns the messages of one chat session.
func (h *ChatbotHandler) GetChat(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	chatID := c.Params("id")
	if _, err := uuid.Parse(chatID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid chat id"})
	}
	if h.history == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "chat not found"})
	}

	msgs, err := h.history.GetChatMessages(c.Context(), chatID, uc.UserID)
	if err != nil {
		if errors.Is(err, port.ErrChatNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "chat not found"})
		}
		slog.Error("failed to get chat", "chat_id", chatID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get chat"})
	}
	return c.JSON(fiber.Map{"chatId": chatID, "messages": msgs})
}

// DeleteChat removes a chat session and its messages.
func (h *ChatbotHandler) DeleteChat(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	chatID := c.Params("id")
	if _, err := uuid.Parse(chatID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid chat id"})
	}
	if h.history == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "chat not found"})
	}

	if err := h.history.DeleteChat(c.Context(), chatID, uc.UserID); err != nil {
		if errors.Is(err, port.ErrChatNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "chat not found"})
		}
		slog.Error("failed to delete chat", "chat_id", chatID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete chat"})
	}
	return c.JSON(fiber.Map{"deleted": true})
}
