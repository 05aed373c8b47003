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

// FanartHandler provides the fanart submission and moderation endpoints.
type FanartHandler struct {
	fanartService *services.FanartService
	userService   *services.UserService
	imageService  *services.ImageService
	broker        *mq.MQ
}

// NewFanartHandler constructs a handler with the provided dependencies.
func NewFanartHandler(
	fanartService *services.FanartService,
	userService *services.UserService,
	imageService *services.ImageService,
	broker *mq.MQ,
) *FanartHandler {
	return &FanartHandler{
		fanartService: fanartService,
		userService:   userService,
		imageService:  imageService,
		broker:        broker,
	}
}

// FanartRouter registers fanart routes on the given router. All routes
// require authentication; the moderation routes additionally require
// the admin role.
func FanartRouter(
	r chi.Router,
	fanartService *services.FanartService,
	userService *services.UserService,
	imageService *services.ImageService,
	broker *mq.MQ,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewFanartHandler(fanartService, userService, imageService, broker)

	r.With(authMiddleware).Post("/fanarts", handler.Submit)
	r.With(authMiddleware).Get("/fanarts/approved", handler.ListApproved)
	r.With(authMiddleware).Get("/admin/fanarts", handler.ListPending)
	r.With(authMiddleware).Patch("/admin/fanarts/{fanartID}", handler.Decide)
}

type SubmitFanartRequest struct {
	ImageUrl string `json:"imageUrl"`
}

type DecideFanartRequest struct {
	Status types.FanartStatus `json:"status"`
}

// Submit queues an image for moderation.
func (h *FanartHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := loadCurrentUser(w, r, h.userService)
	if !ok {
		return
	}

	var req SubmitFanartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.ImageUrl) == "" {
		writeError(w, http.StatusBadRequest, "image is required")
		return
	}

	imageURL, err := h.imageService.Ingest(r.Context(), req.ImageUrl)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image")
		return
	}

	created, err := h.fanartService.Submit(r.Context(), user.ID, imageURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to submit fanart")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListApproved returns the public gallery.
func (h *FanartHandler) ListApproved(w http.ResponseWriter, r *http.Request) {
	if _, ok := loadCurrentUser(w, r, h.userService); !ok {
		return
	}

	fanarts, err := h.fanartService.ListApproved(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list fanarts")
		return
	}
	writeJSON(w, http.StatusOK, fanarts)
}

// ListPending returns the moderation queue. Admin only.
func (h *FanartHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	user, ok := loadCurrentUser(w, r, h.userService)
	if !ok {
		return
	}
	if !strings.EqualFold(user.Role, adminRole) {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}

	fanarts, err := h.fanartService.ListPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list fanarts")
		return
	}
	writeJSON(w, http.StatusOK, fanarts)
}

// Decide approves or rejects a submission. Approval grants the
// submitter Core membership as a side effect. Admin only.
func (h *FanartHandler) Decide(w http.ResponseWriter, r *http.Request) {
	user, ok := loadCurrentUser(w, r, h.userService)
	if !ok {
		return
	}
	if !strings.EqualFold(user.Role, adminRole) {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}

	id, err := parseIDParam(r, "fanartID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req DecideFanartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Status != types.FanartApproved && req.Status != types.FanartRejected {
		writeError(w, http.StatusBadRequest, "status must be approved or rejected")
		return
	}

	decided, err := h.fanartService.Decide(r.Context(), id, req.Status)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "fanart not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update fanart")
		return
	}

	mq.PublishModeration(r.Context(), h.broker, mq.ModerationEvent{
		Type:      mq.EventFanartDecided,
		ActorID:   user.ID,
		SubjectID: decided.UserID,
		ObjectID:  decided.ID,
		Detail:    decided.Status.String(),
	})

	writeJSON(w, http.StatusOK, decided)
}
