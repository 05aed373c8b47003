// Package relay implements the websocket fast path for direct
// messages. Delivery is best effort: every message is persisted first,
// and clients that miss a push catch up over the HTTP endpoints.
package relay

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ksb-community/apiserver/internal/services"
	"github.com/ksb-community/apiserver/types"
)

const (
	frameTypeAuth   = "auth"
	frameTypeDM     = "dm"
	frameTypeDMSent = "dm_sent"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The session cookie is the real gate; cross-origin pages cannot
	// produce a valid identity without it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Frame is the wire envelope for every relay message, in both
// directions. Server frames spread the persisted record's fields at
// the top level next to type; unused fields are omitted per frame
// type.
type Frame struct {
	Type       string    `json:"type"`
	UserID     int       `json:"userId,omitempty"`
	ID         int       `json:"id,omitempty"`
	SenderID   int       `json:"senderId,omitempty"`
	ReceiverID int       `json:"receiverId,omitempty"`
	Content    string    `json:"content,omitempty"`
	ImageUrl   string    `json:"imageUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitzero"`
}

// recordFrame spreads a persisted DM into an outbound frame.
func recordFrame(frameType string, dm types.DirectMessage) Frame {
	return Frame{
		Type:       frameType,
		ID:         dm.ID,
		SenderID:   dm.SenderID,
		ReceiverID: dm.ReceiverID,
		Content:    dm.Content,
		ImageUrl:   dm.ImageUrl,
		CreatedAt:  dm.CreatedAt,
	}
}

type client struct {
	conn *websocket.Conn

	// Serializes writes; reads happen only on the connection's own
	// goroutine.
	writeMu sync.Mutex
}

func (c *client) send(frame Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(frame)
}

// Relay tracks connected clients and routes DM frames between them.
type Relay struct {
	dmService    *services.DirectMessageService
	imageService *services.ImageService

	mu      sync.RWMutex
	clients map[int]*client
}

// NewRelay constructs a relay backed by the given DM and image
// services.
func NewRelay(dmService *services.DirectMessageService, imageService *services.ImageService) *Relay {
	return &Relay{
		dmService:    dmService,
		imageService: imageService,
		clients:      make(map[int]*client),
	}
}

// ServeHTTP upgrades the connection and runs its read loop until the
// peer disconnects.
func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("relay: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn}
	userID := 0

	defer func() {
		if userID != 0 {
			rl.unregister(userID, c)
		}
	}()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("relay: read error for user %d: %v", userID, err)
			}
			return
		}

		switch frame.Type {
		case frameTypeAuth:
			if frame.UserID < 1 {
				continue
			}
			if userID != 0 && userID != frame.UserID {
				rl.unregister(userID, c)
			}
			userID = frame.UserID
			rl.register(userID, c)
		case frameTypeDM:
			if userID == 0 {
				// Frames before the auth announcement are dropped.
				continue
			}
			rl.handleDM(r, userID, c, frame)
		default:
			// Unknown frame types are ignored so older clients can
			// keep talking to newer servers.
		}
	}
}

func (rl *Relay) handleDM(r *http.Request, senderID int, sender *client, frame Frame) {
	if frame.ReceiverID < 1 {
		return
	}

	// Data-URL payloads go into object storage here the same way the
	// HTTP send path does, so nothing lands in the database verbatim.
	imageURL, err := rl.imageService.Ingest(r.Context(), frame.ImageUrl)
	if err != nil {
		log.Printf("relay: invalid image from user %d: %v", senderID, err)
		return
	}

	created, err := rl.dmService.Send(r.Context(), types.DirectMessage{
		SenderID:   senderID,
		ReceiverID: frame.ReceiverID,
		Content:    frame.Content,
		ImageUrl:   imageURL,
	})
	if err != nil {
		log.Printf("relay: failed to persist dm from user %d: %v", senderID, err)
		return
	}

	if receiver, ok := rl.lookup(created.ReceiverID); ok {
		if err := receiver.send(recordFrame(frameTypeDM, created)); err != nil {
			// Receiver catches up over HTTP; nothing to retry here.
			log.Printf("relay: push to user %d failed: %v", created.ReceiverID, err)
		}
	}

	if err := sender.send(recordFrame(frameTypeDMSent, created)); err != nil {
		log.Printf("relay: ack to user %d failed: %v", senderID, err)
	}
}

func (rl *Relay) register(userID int, c *client) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.clients[userID] = c
}

// unregister removes the mapping only if it still points at this
// connection, so a reconnect that replaced the entry is left alone.
func (rl *Relay) unregister(userID int, c *client) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if current, ok := rl.clients[userID]; ok && current == c {
		delete(rl.clients, userID)
	}
}

func (rl *Relay) lookup(userID int) (*client, bool) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	c, ok := rl.clients[userID]
	return c, ok
}
