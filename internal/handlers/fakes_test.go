package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ksb-community/apiserver/internal/services"
	"github.com/ksb-community/apiserver/internal/store"
	"github.com/ksb-community/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

// fakeUserRepo is an in-memory services.UserRepository.
type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{nextID: 1, users: make(map[int]types.User)}
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) List(_ context.Context) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := []types.User{}
	for _, user := range r.users {
		if !user.IsDeleted {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID > users[j].ID })
	return users, nil
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == user.Username {
			return types.User{}, store.ErrDuplicateUsername
		}
	}
	user.ID = r.nextID
	user.CreatedAt = time.Now()
	r.nextID++
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) UpdateProfile(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	existing.DisplayName = user.DisplayName
	existing.AvatarUrl = user.AvatarUrl
	existing.Biography = user.Biography
	existing.ProfileAnimation = user.ProfileAnimation
	existing.PasswordHash = user.PasswordHash
	r.users[existing.ID] = existing
	return existing, nil
}

func (r *fakeUserRepo) SetDeleted(_ context.Context, id int, deleted bool) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.IsDeleted = deleted
	r.users[id] = user
	return user, nil
}

func (r *fakeUserRepo) GrantCore(_ context.Context, id int, expiry time.Time) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.IsCore = true
	user.CoreExpiry = &expiry
	r.users[id] = user
	return user, nil
}

func (r *fakeUserRepo) ClearCore(_ context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.IsCore = false
	r.users[id] = user
	return user, nil
}

// fakeMessageRepo is an in-memory services.MessageRepository.
type fakeMessageRepo struct {
	mu       sync.Mutex
	nextID   int
	messages []types.Message
	users    *fakeUserRepo
}

func newFakeMessageRepo(users *fakeUserRepo) *fakeMessageRepo {
	return &fakeMessageRepo{nextID: 1, users: users}
}

func (r *fakeMessageRepo) join(msgs []types.Message) []types.MessageWithUser {
	out := []types.MessageWithUser{}
	for _, msg := range msgs {
		user := r.users.users[msg.UserID]
		out = append(out, types.MessageWithUser{Message: msg, User: user})
	}
	return out
}

// tail keeps the last n entries, preserving oldest-first order.
func tail(msgs []types.Message, n int) []types.Message {
	if len(msgs) > n {
		return msgs[len(msgs)-n:]
	}
	return msgs
}

func (r *fakeMessageRepo) ListVisible(_ context.Context, limit int) ([]types.MessageWithUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	visible := []types.Message{}
	for _, msg := range r.messages {
		if !msg.IsDeleted {
			visible = append(visible, msg)
		}
	}
	return r.join(tail(visible, limit)), nil
}

func (r *fakeMessageRepo) ListAll(_ context.Context, limit int) ([]types.MessageWithUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.join(tail(r.messages, limit)), nil
}

func (r *fakeMessageRepo) ListRecentByAuthor(_ context.Context, userID, limit int) ([]types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recent := []types.Message{}
	for i := len(r.messages) - 1; i >= 0 && len(recent) < limit; i-- {
		msg := r.messages[i]
		if msg.UserID == userID && !msg.IsDeleted {
			recent = append(recent, msg)
		}
	}
	return recent, nil
}

func (r *fakeMessageRepo) Get(_ context.Context, id int) (types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id {
			return msg, nil
		}
	}
	return types.Message{}, store.ErrNotFound
}

func (r *fakeMessageRepo) Create(_ context.Context, msg types.Message) (types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.ID = r.nextID
	msg.CreatedAt = time.Now()
	r.nextID++
	r.messages = append(r.messages, msg)
	return msg, nil
}

func (r *fakeMessageRepo) SetDeleted(_ context.Context, id int, deleted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		if r.messages[i].ID == id {
			r.messages[i].IsDeleted = deleted
			return nil
		}
	}
	return store.ErrNotFound
}

// fakeDMRepo is an in-memory services.DirectMessageRepository.
type fakeDMRepo struct {
	mu     sync.Mutex
	nextID int
	dms    []types.DirectMessage
}

func newFakeDMRepo() *fakeDMRepo {
	return &fakeDMRepo{nextID: 1}
}

func (r *fakeDMRepo) ListBetween(_ context.Context, userA, userB int) ([]types.DirectMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []types.DirectMessage{}
	for _, dm := range r.dms {
		if (dm.SenderID == userA && dm.ReceiverID == userB) ||
			(dm.SenderID == userB && dm.ReceiverID == userA) {
			out = append(out, dm)
		}
	}
	return out, nil
}

func (r *fakeDMRepo) ListInvolving(_ context.Context, userID int) ([]types.DirectMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []types.DirectMessage{}
	for _, dm := range r.dms {
		if dm.SenderID == userID || dm.ReceiverID == userID {
			out = append(out, dm)
		}
	}
	return out, nil
}

func (r *fakeDMRepo) Create(_ context.Context, dm types.DirectMessage) (types.DirectMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dm.ID = r.nextID
	dm.CreatedAt = time.Now()
	r.nextID++
	r.dms = append(r.dms, dm)
	return dm, nil
}

// fakeFanartRepo is an in-memory services.FanartRepository. Decide
// mirrors the transactional store: approval grants the submitter Core
// in the same call.
type fakeFanartRepo struct {
	mu      sync.Mutex
	nextID  int
	fanarts []types.Fanart
	users   *fakeUserRepo
}

func newFakeFanartRepo(users *fakeUserRepo) *fakeFanartRepo {
	return &fakeFanartRepo{nextID: 1, users: users}
}

func (r *fakeFanartRepo) ListByStatus(_ context.Context, status types.FanartStatus) ([]types.FanartWithUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []types.FanartWithUser{}
	for i := len(r.fanarts) - 1; i >= 0; i-- {
		fanart := r.fanarts[i]
		if fanart.Status == status {
			out = append(out, types.FanartWithUser{Fanart: fanart, User: r.users.users[fanart.UserID]})
		}
	}
	return out, nil
}

func (r *fakeFanartRepo) Create(_ context.Context, fanart types.Fanart) (types.Fanart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fanart.ID = r.nextID
	fanart.Status = types.FanartPending
	fanart.CreatedAt = time.Now()
	r.nextID++
	r.fanarts = append(r.fanarts, fanart)
	return fanart, nil
}

func (r *fakeFanartRepo) Decide(ctx context.Context, id int, status types.FanartStatus, coreExpiry time.Time) (types.Fanart, error) {
	r.mu.Lock()
	var decided *types.Fanart
	for i := range r.fanarts {
		if r.fanarts[i].ID == id {
			r.fanarts[i].Status = status
			decided = &r.fanarts[i]
			break
		}
	}
	r.mu.Unlock()
	if decided == nil {
		return types.Fanart{}, store.ErrNotFound
	}
	if status == types.FanartApproved {
		if _, err := r.users.GrantCore(ctx, decided.UserID, coreExpiry); err != nil {
			return types.Fanart{}, err
		}
	}
	return *decided, nil
}

// testEnv wires the full API router against in-memory repositories.
type testEnv struct {
	router   chi.Router
	users    *fakeUserRepo
	messages *fakeMessageRepo
	dms      *fakeDMRepo
	fanarts  *fakeFanartRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	userRepo := newFakeUserRepo()
	messageRepo := newFakeMessageRepo(userRepo)
	dmRepo := newFakeDMRepo()
	fanartRepo := newFakeFanartRepo(userRepo)

	userService := services.NewUserService(userRepo)
	messageService := services.NewMessageService(messageRepo)
	dmService := services.NewDirectMessageService(dmRepo)
	fanartService := services.NewFanartService(fanartRepo)
	imageService := services.NewImageService(nil)

	authMiddleware := RequireAuth(testSecret)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		AuthRouter(r, userService, imageService, testSecret)
		UsersRouter(r, userService, nil, authMiddleware)
		ChatRouter(r, messageService, userService, imageService, nil, authMiddleware)
		DMRouter(r, dmService, userService, imageService, authMiddleware)
		FanartRouter(r, fanartService, userService, imageService, nil, authMiddleware)
	})

	return &testEnv{
		router:   router,
		users:    userRepo,
		messages: messageRepo,
		dms:      dmRepo,
		fanarts:  fanartRepo,
	}
}

// seedUser creates an account directly in the repository and returns it
// with a valid session token.
func (env *testEnv) seedUser(t *testing.T, username, role string) (types.User, string) {
	t.Helper()

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user, err := env.users.Create(context.Background(), types.User{
		Username:     username,
		DisplayName:  username,
		Rank:         defaultUserRank,
		Role:         role,
		PasswordHash: string(hashed),
	})
	if err != nil {
		t.Fatalf("seed user %q: %v", username, err)
	}

	token, err := issueToken(user.ID, []byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return user, token
}

// do performs a request against the router. A non-empty token is sent
// as a Bearer header.
func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}
