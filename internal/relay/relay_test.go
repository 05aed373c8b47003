package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ksb-community/apiserver/internal/services"
	"github.com/ksb-community/apiserver/internal/storage"
	"github.com/ksb-community/apiserver/types"
)

// fakeDMRepo is an in-memory services.DirectMessageRepository.
type fakeDMRepo struct {
	mu     sync.Mutex
	nextID int
	dms    []types.DirectMessage
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
	r.nextID++
	dm.ID = r.nextID
	dm.CreatedAt = time.Now()
	r.dms = append(r.dms, dm)
	return dm, nil
}

func (r *fakeDMRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dms)
}

// blobSink is an in-memory storage.ObjectStorage. The relay handles
// frames on server goroutines, so access is locked.
type blobSink struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newBlobSink() *blobSink {
	return &blobSink{objects: make(map[string][]byte)}
}

func (b *blobSink) EnsureBucket(context.Context) error { return nil }

func (b *blobSink) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *blobSink) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *blobSink) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *blobSink) Bucket() string { return "test-bucket" }

func (b *blobSink) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

func newRelayServer(t *testing.T) (*httptest.Server, *fakeDMRepo) {
	t.Helper()
	repo := &fakeDMRepo{}
	rl := NewRelay(services.NewDirectMessageService(repo), services.NewImageService(nil))
	srv := httptest.NewServer(rl)
	t.Cleanup(srv.Close)
	return srv, repo
}

func dialRelay(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func announce(t *testing.T, conn *websocket.Conn, userID int) {
	t.Helper()
	if err := conn.WriteJSON(Frame{Type: "auth", UserID: userID}); err != nil {
		t.Fatalf("announce user %d: %v", userID, err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func readRawFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	payload := map[string]any{}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode frame %q: %v", data, err)
	}
	return payload
}

func TestRelayDeliversToConnectedReceiver(t *testing.T) {
	srv, repo := newRelayServer(t)

	sender := dialRelay(t, srv)
	receiver := dialRelay(t, srv)
	announce(t, sender, 1)
	announce(t, receiver, 2)

	// Give the server a moment to register the receiver before sending.
	time.Sleep(50 * time.Millisecond)

	if err := sender.WriteJSON(Frame{Type: "dm", ReceiverID: 2, Content: "merhaba"}); err != nil {
		t.Fatalf("send dm: %v", err)
	}

	pushed := readFrame(t, receiver)
	if pushed.Type != "dm" {
		t.Fatalf("receiver got %+v, want a dm push", pushed)
	}
	if pushed.SenderID != 1 || pushed.ReceiverID != 2 || pushed.Content != "merhaba" {
		t.Fatalf("pushed frame = %+v", pushed)
	}
	if pushed.ID == 0 || pushed.CreatedAt.IsZero() {
		t.Fatalf("pushed frame %+v was not persisted first", pushed)
	}

	ack := readFrame(t, sender)
	if ack.Type != "dm_sent" || ack.ID != pushed.ID {
		t.Fatalf("sender ack = %+v, want dm_sent for record %d", ack, pushed.ID)
	}

	if repo.count() != 1 {
		t.Fatalf("repo holds %d messages, want 1", repo.count())
	}
}

func TestRelayFramesCarryRecordFieldsAtTopLevel(t *testing.T) {
	srv, _ := newRelayServer(t)

	sender := dialRelay(t, srv)
	announce(t, sender, 1)

	if err := sender.WriteJSON(Frame{Type: "dm", ReceiverID: 2, Content: "hi"}); err != nil {
		t.Fatalf("send dm: %v", err)
	}

	ack := readRawFrame(t, sender)
	if ack["type"] != "dm_sent" {
		t.Fatalf("ack = %+v, want dm_sent", ack)
	}
	for _, key := range []string{"id", "senderId", "receiverId", "content", "createdAt"} {
		if _, ok := ack[key]; !ok {
			t.Errorf("ack is missing top-level %q: %+v", key, ack)
		}
	}
	if _, ok := ack["dm"]; ok {
		t.Errorf("ack nests the record instead of spreading it: %+v", ack)
	}
	if ack["senderId"] != float64(1) {
		t.Errorf("ack senderId = %v, want 1", ack["senderId"])
	}
}

func TestRelayIngestsInlineImages(t *testing.T) {
	repo := &fakeDMRepo{}
	sink := newBlobSink()
	rl := NewRelay(
		services.NewDirectMessageService(repo),
		services.NewImageService(storage.NewStorage(sink)),
	)
	srv := httptest.NewServer(rl)
	t.Cleanup(srv.Close)

	sender := dialRelay(t, srv)
	announce(t, sender, 1)

	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'})
	if err := sender.WriteJSON(Frame{Type: "dm", ReceiverID: 2, Content: "bak", ImageUrl: payload}); err != nil {
		t.Fatalf("send dm: %v", err)
	}

	ack := readFrame(t, sender)
	if ack.Type != "dm_sent" {
		t.Fatalf("ack = %+v", ack)
	}
	if !strings.HasPrefix(ack.ImageUrl, "/images/") || !strings.HasSuffix(ack.ImageUrl, ".png") {
		t.Fatalf("image url %q was not moved into object storage", ack.ImageUrl)
	}
	if !sink.has(strings.TrimPrefix(ack.ImageUrl, "/")) {
		t.Fatalf("object %q was not stored", ack.ImageUrl)
	}

	history, err := repo.ListBetween(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("list between: %v", err)
	}
	if len(history) != 1 || history[0].ImageUrl != ack.ImageUrl {
		t.Fatalf("stored history = %+v, want image url %q", history, ack.ImageUrl)
	}
}

func TestRelayPersistsForOfflineReceiver(t *testing.T) {
	srv, repo := newRelayServer(t)

	sender := dialRelay(t, srv)
	announce(t, sender, 1)

	if err := sender.WriteJSON(Frame{Type: "dm", ReceiverID: 42, Content: "catch up later"}); err != nil {
		t.Fatalf("send dm: %v", err)
	}

	// The sender still gets its ack even though nobody is listening.
	ack := readFrame(t, sender)
	if ack.Type != "dm_sent" || ack.ID == 0 {
		t.Fatalf("sender ack = %+v", ack)
	}
	if repo.count() != 1 {
		t.Fatalf("repo holds %d messages, want 1", repo.count())
	}

	history, err := repo.ListBetween(context.Background(), 1, 42)
	if err != nil {
		t.Fatalf("list between: %v", err)
	}
	if len(history) != 1 || history[0].Content != "catch up later" {
		t.Fatalf("stored history = %+v", history)
	}
}

func TestRelayDropsFramesBeforeAuth(t *testing.T) {
	srv, repo := newRelayServer(t)

	conn := dialRelay(t, srv)
	if err := conn.WriteJSON(Frame{Type: "dm", ReceiverID: 2, Content: "anonymous"}); err != nil {
		t.Fatalf("send dm: %v", err)
	}

	announce(t, conn, 1)
	if err := conn.WriteJSON(Frame{Type: "dm", ReceiverID: 2, Content: "identified"}); err != nil {
		t.Fatalf("send dm: %v", err)
	}

	ack := readFrame(t, conn)
	if ack.Type != "dm_sent" || ack.Content != "identified" {
		t.Fatalf("ack = %+v, want dm_sent for the identified message", ack)
	}
	if repo.count() != 1 {
		t.Fatalf("repo holds %d messages, want only the post-auth one", repo.count())
	}
}

func TestRelayReconnectReplacesRegistration(t *testing.T) {
	srv, _ := newRelayServer(t)

	first := dialRelay(t, srv)
	announce(t, first, 2)
	second := dialRelay(t, srv)
	announce(t, second, 2)
	time.Sleep(50 * time.Millisecond)

	// Closing the stale connection must not evict the fresh one.
	_ = first.Close()
	time.Sleep(50 * time.Millisecond)

	sender := dialRelay(t, srv)
	announce(t, sender, 1)
	time.Sleep(50 * time.Millisecond)

	if err := sender.WriteJSON(Frame{Type: "dm", ReceiverID: 2, Content: "still here?"}); err != nil {
		t.Fatalf("send dm: %v", err)
	}

	pushed := readFrame(t, second)
	if pushed.Type != "dm" || pushed.Content != "still here?" {
		t.Fatalf("fresh connection got %+v", pushed)
	}
}
