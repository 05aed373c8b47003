package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ksb-community/apiserver/internal/mq"
	"github.com/ksb-community/apiserver/internal/services"
	"github.com/ksb-community/apiserver/internal/store"
)

// UsersHandler provides the admin user-management endpoints.
type UsersHandler struct {
	userService *services.UserService
	broker      *mq.MQ
}

// NewUsersHandler constructs a handler with the provided dependencies.
func NewUsersHandler(userService *services.UserService, broker *mq.MQ) *UsersHandler {
	return &UsersHandler{
		userService: userService,
		broker:      broker,
	}
}

// UsersRouter registers the admin user routes on the given router.
func UsersRouter(r chi.Router, userService *services.UserService, broker *mq.MQ, authMiddleware func(http.Handler) http.Handler) {
	handler := NewUsersHandler(userService, broker)

	r.With(authMiddleware, handler.requireAdmin).Get("/users", handler.ListUsers)
	r.With(authMiddleware, handler.requireAdmin).Patch("/users/{userID}/toggle-delete", handler.ToggleDelete)
	r.With(authMiddleware, handler.requireAdmin).Patch("/admin/gift-core/{userID}", handler.GiftCore)
}

// ListUsers returns every non-banned account for the admin panel.
func (h *UsersHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// ToggleDelete flips the target account's ban flag.
func (h *UsersHandler) ToggleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	updated, err := h.userService.SetDeleted(r.Context(), id, !user.IsDeleted)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	detail := "unbanned"
	if updated.IsDeleted {
		detail = "banned"
	}
	actorID, _ := userIDFromContext(r.Context())
	mq.PublishModeration(r.Context(), h.broker, mq.ModerationEvent{
		Type:      mq.EventUserBanToggled,
		ActorID:   actorID,
		SubjectID: updated.ID,
		Detail:    detail,
	})

	writeJSON(w, http.StatusOK, updated)
}

// GiftCore grants the target account Core membership for the standard
// grant period. A repeated gift resets the expiry forward.
func (h *UsersHandler) GiftCore(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.userService.GrantCore(r.Context(), id, time.Now().Add(services.CoreGrantTTL))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	actorID, _ := userIDFromContext(r.Context())
	mq.PublishModeration(r.Context(), h.broker, mq.ModerationEvent{
		Type:      mq.EventCoreGranted,
		ActorID:   actorID,
		SubjectID: updated.ID,
	})

	writeJSON(w, http.StatusOK, updated)
}

func (h *UsersHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		user, err := h.userService.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load user")
			return
		}

		if user.IsDeleted || !strings.EqualFold(user.Role, adminRole) {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func parseIDParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
