package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ksb-community/apiserver/internal/mq"
	"github.com/ksb-community/apiserver/internal/services"
	"github.com/ksb-community/apiserver/internal/store"
	"github.com/ksb-community/apiserver/types"
)

// ChatHandler provides the shared-room message endpoints.
type ChatHandler struct {
	messageService *services.MessageService
	userService    *services.UserService
	imageService   *services.ImageService
	broker         *mq.MQ
}

// NewChatHandler constructs a handler with the provided dependencies.
func NewChatHandler(
	messageService *services.MessageService,
	userService *services.UserService,
	imageService *services.ImageService,
	broker *mq.MQ,
) *ChatHandler {
	return &ChatHandler{
		messageService: messageService,
		userService:    userService,
		imageService:   imageService,
		broker:         broker,
	}
}

// ChatRouter registers chat routes on the given router. All routes
// require authentication.
func ChatRouter(
	r chi.Router,
	messageService *services.MessageService,
	userService *services.UserService,
	imageService *services.ImageService,
	broker *mq.MQ,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewChatHandler(messageService, userService, imageService, broker)

	r.With(authMiddleware).Get("/messages", handler.ListMessages)
	r.With(authMiddleware).Post("/messages", handler.SendMessage)
	r.With(authMiddleware).Delete("/messages/{messageID}", handler.DeleteMessage)
	r.With(authMiddleware).Patch("/messages/{messageID}/restore", handler.RestoreMessage)
}

type SendMessageRequest struct {
	Content  string `json:"content"`
	ImageUrl string `json:"imageUrl"`
}

// ListMessages returns the chat log. Admins get the moderation view
// including soft-deleted messages; members only see active ones.
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := loadCurrentUser(w, r, h.userService)
	if !ok {
		return
	}

	var (
		messages []types.MessageWithUser
		err      error
	)
	if strings.EqualFold(user.Role, adminRole) {
		messages, err = h.messageService.ListForAdmin(r.Context())
	} else {
		messages, err = h.messageService.ListForMember(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// SendMessage appends a message to the room, subject to the
// repeat-content guard.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := loadCurrentUser(w, r, h.userService)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	repeat, err := h.messageService.IsRepeat(r.Context(), user.ID, req.Content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}
	if repeat {
		writeError(w, http.StatusTooManyRequests, "repeated message blocked")
		return
	}

	imageURL, err := h.imageService.Ingest(r.Context(), req.ImageUrl)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image")
		return
	}

	created, err := h.messageService.Create(r.Context(), types.Message{
		UserID:   user.ID,
		Content:  req.Content,
		ImageUrl: imageURL,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// DeleteMessage soft-deletes a message. The author may delete their own
// messages; admins may delete any.
func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := loadCurrentUser(w, r, h.userService)
	if !ok {
		return
	}

	id, err := parseIDParam(r, "messageID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.messageService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load message")
		return
	}

	isAdmin := strings.EqualFold(user.Role, adminRole)
	if msg.UserID != user.ID && !isAdmin {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	if err := h.messageService.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete message")
		return
	}

	if isAdmin && msg.UserID != user.ID {
		mq.PublishModeration(r.Context(), h.broker, mq.ModerationEvent{
			Type:      mq.EventMessageDeleted,
			ActorID:   user.ID,
			SubjectID: msg.UserID,
			ObjectID:  msg.ID,
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// RestoreMessage clears the soft-delete flag. Admin only; a missing id
// is a 404 rather than a silent no-op.
func (h *ChatHandler) RestoreMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := loadCurrentUser(w, r, h.userService)
	if !ok {
		return
	}
	if !strings.EqualFold(user.Role, adminRole) {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}

	id, err := parseIDParam(r, "messageID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.messageService.Restore(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to restore message")
		return
	}

	mq.PublishModeration(r.Context(), h.broker, mq.ModerationEvent{
		Type:     mq.EventMessageRestored,
		ActorID:  user.ID,
		ObjectID: id,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "restored"})
}
