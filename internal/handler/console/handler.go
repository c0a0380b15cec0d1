// Package console exposes the local HTTP API the console UI talks to. The
// handlers are thin; all reconciliation lives in the engine.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/harborsupport/console/internal/logger"
	"github.com/harborsupport/console/internal/model/chat"
	"github.com/harborsupport/console/internal/service/assist"
	"github.com/harborsupport/console/internal/service/engine"
	"github.com/harborsupport/console/internal/service/upload"
	"github.com/harborsupport/console/internal/upstream/api"
	"github.com/harborsupport/console/pkg/utils"
)

const maxAttachmentBytes = 25 << 20

// Handler serves the console routes.
type Handler struct {
	engine   *engine.Engine
	api      *api.Client
	uploads  *upload.Coordinator
	assist   *assist.Service
	pageSize int

	mu     sync.Mutex
	loaded map[string]bool
}

// New creates the console handler. assistSvc may be nil.
func New(eng *engine.Engine, apiClient *api.Client, uploads *upload.Coordinator, assistSvc *assist.Service, pageSize int) *Handler {
	return &Handler{
		engine:   eng,
		api:      apiClient,
		uploads:  uploads,
		assist:   assistSvc,
		pageSize: pageSize,
		loaded:   make(map[string]bool),
	}
}

// RegisterRoutes mounts the console routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/conversations", h.handleListConversations)
	r.Post("/conversations/{id}/open", h.handleOpenConversation)
	r.Post("/conversations/{id}/assign", h.handleAssignConversation)
	r.Post("/conversations/{id}/resolve", h.handleResolveConversation)
	r.Delete("/conversations/{id}", h.handleDeleteConversation)

	r.Get("/conversations/{id}/messages", h.handleGetMessages)
	r.Post("/conversations/{id}/messages", h.handleSendMessage)

	r.Post("/conversations/{id}/attachments", h.handleStageAttachment)
	r.Delete("/conversations/{id}/attachments/{stagedID}", h.handleDiscardAttachment)
	r.Get("/attachments/staged/{stagedID}", h.handleStagedPreview)

	r.Post("/messages/{id}/reactions", h.handleToggleReaction)

	r.Get("/conversations/{id}/suggestion", h.handleSuggestion)
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	tab := chat.Tab(r.URL.Query().Get("tab"))
	switch tab {
	case chat.TabAll, chat.TabMine, chat.TabUnassigned:
	case "":
		tab = chat.TabAll
	default:
		utils.RespondError(w, http.StatusBadRequest, "unknown tab")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"items": h.engine.Directory().List(tab, query),
	})
}

func (h *Handler) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.engine.Directory().Get(id); !ok {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	h.engine.OpenConversation(id)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.api.MarkRead(ctx, id, "assignee"); err != nil {
			logger.Warn("mark read failed", zap.String("conversation_id", id), zap.Error(err))
		}
	}()

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "open"})
}

func (h *Handler) handleAssignConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.engine.Directory().Get(id); !ok {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	if err := h.api.AssignToMe(r.Context(), id); err != nil {
		logger.Warn("assign failed", zap.String("conversation_id", id), zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, "assign failed")
		return
	}

	status := chat.StatusOpen
	assignee := h.engine.AgentID()
	h.engine.HandleEvent(engine.Event{
		Type:           engine.EventConversationPatched,
		ConversationID: id,
		Patch:          &chat.ConversationPatch{Status: &status, AssigneeID: &assignee},
	})

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

func (h *Handler) handleResolveConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.engine.Directory().Get(id); !ok {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	if err := h.api.Resolve(r.Context(), id); err != nil {
		logger.Warn("resolve failed", zap.String("conversation_id", id), zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, "resolve failed")
		return
	}

	status := chat.StatusResolved
	h.engine.HandleEvent(engine.Event{
		Type:           engine.EventConversationPatched,
		ConversationID: id,
		Patch:          &chat.ConversationPatch{Status: &status},
	})

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// handleDeleteConversation removes the conversation immediately, then waits
// for the upstream call so a failure is both rolled back and reported to the
// operator in the response.
func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	removed, idx, ok := h.engine.RemoveConversation(id)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	if err := h.api.DeleteConversation(r.Context(), id); err != nil {
		logger.Warn("delete failed, restoring conversation",
			zap.String("conversation_id", id), zap.Error(err))
		h.engine.RestoreConversation(removed, idx)
		utils.RespondError(w, http.StatusBadGateway, "delete failed")
		return
	}

	h.uploads.DiscardAll(id)
	h.forgetLoaded(id)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.engine.Directory().Get(id); !ok {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	if !h.isLoaded(id) || r.URL.Query().Get("refresh") == "1" {
		page, err := h.api.FetchMessages(r.Context(), id, 0, h.pageSize)
		if err != nil {
			utils.RespondError(w, http.StatusBadGateway, "history fetch failed")
			return
		}
		history := make([]chat.Message, 0, len(page.Items))
		for _, dto := range page.Items {
			history = append(history, dto.Normalize())
		}
		h.engine.LoadHistory(id, history)
		h.markLoaded(id)
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"items": h.engine.Timeline(id),
	})
}

// handleSendMessage commits any staged attachments, inserts a pending entry,
// and completes it asynchronously when the upstream call returns.
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.engine.Directory().Get(id); !ok {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	var payload struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	payload.Content = strings.TrimSpace(payload.Content)

	attachments, err := h.uploads.Commit(r.Context(), id)
	if err != nil && !errors.Is(err, upload.ErrNothingStaged) {
		logger.Warn("attachment commit failed", zap.String("conversation_id", id), zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, "attachment upload failed")
		return
	}

	if payload.Content == "" && len(attachments) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "message is empty")
		return
	}

	// The conversation can be deleted while uploads run.
	if _, ok := h.engine.Directory().Get(id); !ok {
		utils.RespondError(w, http.StatusGone, "conversation deleted")
		return
	}

	clientID, epoch, pending := h.engine.Send(id, payload.Content, attachments)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		dto, err := h.api.SendMessage(ctx, id, payload.Content, attachments, clientID)
		if err != nil {
			logger.Warn("send failed",
				zap.String("conversation_id", id),
				zap.String("client_message_id", clientID),
				zap.Error(err))
			h.engine.Fail(id, epoch, clientID)
			return
		}
		h.engine.Resolve(id, epoch, clientID, dto.Normalize())
	}()

	utils.RespondJSON(w, http.StatusAccepted, pending)
}

func (h *Handler) handleStageAttachment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.engine.Directory().Get(id); !ok {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	if err := r.ParseMultipartForm(maxAttachmentBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAttachmentBytes+1))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if len(data) > maxAttachmentBytes {
		utils.RespondError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	staged := h.uploads.Stage(id, header.Filename, header.Header.Get("Content-Type"), data)
	utils.RespondJSON(w, http.StatusCreated, staged)
}

func (h *Handler) handleDiscardAttachment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	stagedID := chi.URLParam(r, "stagedID")
	if !h.uploads.Discard(id, stagedID) {
		utils.RespondError(w, http.StatusNotFound, "staged file not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
}

func (h *Handler) handleStagedPreview(w http.ResponseWriter, r *http.Request) {
	stagedID := chi.URLParam(r, "stagedID")
	data, mimeType, ok := h.uploads.Preview(stagedID)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "staged file not found")
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleToggleReaction applies the toggle locally first and reverts it when
// the upstream call fails.
func (h *Handler) handleToggleReaction(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")

	var payload struct {
		ConversationID string `json:"conversationId"`
		Emoji          string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.ConversationID == "" || payload.Emoji == "" {
		utils.RespondError(w, http.StatusBadRequest, "conversationId and emoji are required")
		return
	}

	prev, ok := h.engine.ToggleReaction(payload.ConversationID, messageID, h.engine.AgentID(), payload.Emoji)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "message not found")
		return
	}

	if err := h.api.ToggleReaction(r.Context(), messageID, payload.Emoji); err != nil {
		logger.Warn("reaction toggle failed, reverting",
			zap.String("message_id", messageID), zap.Error(err))
		h.engine.RevertReactions(payload.ConversationID, messageID, prev)
		utils.RespondError(w, http.StatusBadGateway, "reaction toggle failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "toggled"})
}

func (h *Handler) handleSuggestion(w http.ResponseWriter, r *http.Request) {
	if h.assist == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "assist not configured")
		return
	}

	id := chi.URLParam(r, "id")
	conv, ok := h.engine.Directory().Get(id)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	draft, err := h.assist.Suggest(r.Context(), conv, h.engine.Timeline(id))
	if err != nil {
		logger.Warn("suggestion failed", zap.String("conversation_id", id), zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, "suggestion failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"draft": draft})
}

func (h *Handler) isLoaded(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded[id]
}

func (h *Handler) markLoaded(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loaded[id] = true
}

func (h *Handler) forgetLoaded(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.loaded, id)
}
