package types

import "time"

// Message represents a broadcast chat message in the shared room.
type Message struct {
	// ID is the unique identifier of the message.
	ID int `json:"id" db:"id"`

	// UserID identifies the author.
	UserID int `json:"userId" db:"user_id"`

	// Content is the text body of the message.
	Content string `json:"content" db:"content"`

	// ImageUrl is an optional attached image. It may be an object
	// storage path, a remote URL, or a raw data URL; the schema
	// does not distinguish.
	ImageUrl string `json:"imageUrl" db:"image_url"`

	// IsDeleted soft-deletes the message. Deleted messages stay in
	// the table and remain visible to admins.
	IsDeleted bool `json:"isDeleted" db:"is_deleted"`

	// CreatedAt is the timestamp when the message was sent.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// MessageWithUser is a message joined with its author, as returned
// by the chat listing endpoints.
type MessageWithUser struct {
	Message
	User User `json:"user"`
}

// DirectMessage represents a private message between two users.
// Direct messages are immutable once created.
type DirectMessage struct {
	// ID is the unique identifier of the direct message.
	ID int `json:"id" db:"id"`

	// SenderID identifies the sending user.
	SenderID int `json:"senderId" db:"sender_id"`

	// ReceiverID identifies the receiving user.
	ReceiverID int `json:"receiverId" db:"receiver_id"`

	// Content is the text body of the message.
	Content string `json:"content" db:"content"`

	// ImageUrl is an optional attached image.
	ImageUrl string `json:"imageUrl" db:"image_url"`

	// CreatedAt is the timestamp when the message was sent.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
