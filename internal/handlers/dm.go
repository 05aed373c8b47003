package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ksb-community/apiserver/internal/services"
	"github.com/ksb-community/apiserver/internal/store"
	"github.com/ksb-community/apiserver/types"
)

// DMHandler provides the direct-message endpoints. These are the
// durable path; the websocket relay is only a delivery shortcut and
// clients fall back to polling these endpoints.
type DMHandler struct {
	dmService    *services.DirectMessageService
	userService  *services.UserService
	imageService *services.ImageService
}

// NewDMHandler constructs a handler with the provided dependencies.
func NewDMHandler(
	dmService *services.DirectMessageService,
	userService *services.UserService,
	imageService *services.ImageService,
) *DMHandler {
	return &DMHandler{
		dmService:    dmService,
		userService:  userService,
		imageService: imageService,
	}
}

// DMRouter registers DM routes on the given router. All routes require
// authentication.
func DMRouter(
	r chi.Router,
	dmService *services.DirectMessageService,
	userService *services.UserService,
	imageService *services.ImageService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewDMHandler(dmService, userService, imageService)

	r.With(authMiddleware).Get("/dms/all", handler.Inbox)
	r.With(authMiddleware).Get("/dms/{otherID}", handler.History)
	r.With(authMiddleware).Post("/dms", handler.Send)
}

type SendDMRequest struct {
	ReceiverID int    `json:"receiverId"`
	Content    string `json:"content"`
	ImageUrl   string `json:"imageUrl"`
}

// Inbox returns every DM the current user has sent or received,
// oldest first. The client groups these into conversations.
func (h *DMHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	user, ok := loadCurrentUser(w, r, h.userService)
	if !ok {
		return
	}

	dms, err := h.dmService.Inbox(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, dms)
}

// History returns the conversation with another user, oldest first.
// The pair is unordered: either participant sees the same sequence.
func (h *DMHandler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := loadCurrentUser(w, r, h.userService)
	if !ok {
		return
	}

	otherID, err := parseIDParam(r, "otherID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dms, err := h.dmService.History(r.Context(), user.ID, otherID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, dms)
}

// Send persists a DM over HTTP, the fallback path when the relay
// socket is unavailable.
func (h *DMHandler) Send(w http.ResponseWriter, r *http.Request) {
	user, ok := loadCurrentUser(w, r, h.userService)
	if !ok {
		return
	}

	var req SendDMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if _, err := h.userService.GetByID(r.Context(), req.ReceiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "receiver not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	imageURL, err := h.imageService.Ingest(r.Context(), req.ImageUrl)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image")
		return
	}

	created, err := h.dmService.Send(r.Context(), types.DirectMessage{
		SenderID:   user.ID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		ImageUrl:   imageURL,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
