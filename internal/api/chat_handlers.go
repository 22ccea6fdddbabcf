package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mojochat/internal/metrics"
	"mojochat/internal/models"
	"mojochat/internal/service/ai"
	"mojochat/internal/service/assistant"
)

const persistTimeout = 10 * time.Second

type submitTurnRequest struct {
	ID       string           `json:"id"`
	Messages []models.Message `json:"messages"`
}

func (h *Handler) submitTurn(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req submitTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}
	messages := models.FilterEmpty(req.Messages)
	for _, m := range messages {
		if !m.Role.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid role: %q", m.Role)})
			return
		}
	}
	if len(messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "messages must contain non-empty content"})
		return
	}

	existing, err := h.assistant.GetChat(c.Request.Context(), userID, req.ID)
	switch {
	case errors.Is(err, assistant.ErrForbidden):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: User does not own this chat"})
		return
	case err != nil && !errors.Is(err, assistant.ErrNotFound):
		h.internalError(c, "load chat failed", err)
		return
	}

	// Generation runs to completion even if the caller goes away, so the
	// turn is still saved. Only the stream timeout bounds it.
	streamCtx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.streamTimeout)
	defer cancel()
	// SSE Request construction
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	clientGone := false
	sendEvent := func(event string, payload interface{}) {
		if clientGone {
			return
		}
		if c.Request.Context().Err() != nil {
			clientGone = true
			return
		}
		data, err := json.Marshal(payload)
		if err != nil {
			h.logger.Warn("encode sse event failed", zap.String("event", event), zap.Error(err))
			return
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
			h.logger.Info("client disconnected mid-stream", zap.String("chat_id", req.ID), zap.Error(err))
			clientGone = true
			return
		}
		flusher.Flush()
	}

	result, err := h.ai.StreamChat(streamCtx, req.ID, messages, func(ev ai.Event) error {
		switch ev.Type {
		case ai.EventText:
			sendEvent("text", gin.H{"content": ev.Text})
		case ai.EventToolCall:
			sendEvent("tool_call", ev.ToolCall)
		case ai.EventToolResult:
			sendEvent("tool_result", ev.ToolResult)
		}
		return nil
	})
	if err != nil {
		h.logger.Error("chat stream failed", zap.String("chat_id", req.ID), zap.Error(err))
		metrics.ChatTurnsTotal.WithLabelValues("error").Inc()
		sendEvent("error", gin.H{"message": "generation failed"})
		return
	}

	chat := &models.Chat{
		ID:          req.ID,
		UserID:      userID,
		Messages:    messages,
		ToolCalls:   result.ToolCalls,
		ToolResults: result.ToolResults,
	}
	if existing != nil {
		chat.CreatedAt = existing.CreatedAt
	}
	if result.Text != "" {
		chat.Messages = append(chat.Messages, models.Message{Role: models.RoleAssistant, Content: result.Text})
	}
	// The reply has already reached the caller, so a failed save is only logged.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(c.Request.Context()), persistTimeout)
	defer cancelPersist()
	if err := h.assistant.SaveChat(persistCtx, chat); err != nil {
		h.logger.Error("persist chat failed", zap.String("chat_id", req.ID), zap.Error(err))
		metrics.ChatTurnsTotal.WithLabelValues("persist_error").Inc()
	} else {
		metrics.ChatTurnsTotal.WithLabelValues("ok").Inc()
	}

	sendEvent("done", gin.H{
		"id":      req.ID,
		"message": models.Message{Role: models.RoleAssistant, Content: result.Text},
	})
}

func (h *Handler) getChat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	chatID := strings.TrimSpace(c.Query("id"))
	if chatID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
		return
	}
	chat, err := h.assistant.GetChat(c.Request.Context(), userID, chatID)
	if err != nil {
		h.chatError(c, "get chat failed", err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

func (h *Handler) deleteChat(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	chatID := strings.TrimSpace(c.Query("id"))
	if chatID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
		return
	}
	if err := h.assistant.DeleteChat(c.Request.Context(), userID, chatID); err != nil {
		h.chatError(c, "delete chat failed", err)
		return
	}
	c.String(http.StatusOK, "Chat deleted")
}

func (h *Handler) listHistory(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	chats, err := h.assistant.ListChats(c.Request.Context(), userID)
	if err != nil {
		h.internalError(c, "list history failed", err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

func (h *Handler) chatError(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, assistant.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Chat not found"})
	case errors.Is(err, assistant.ErrForbidden):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: User does not own this chat"})
	default:
		h.internalError(c, msg, err)
	}
}
