package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Fanart represents a user-submitted image awaiting moderation.
// Approval gates the submitter's Core membership.
type Fanart struct {
	// ID is the unique identifier of the submission.
	ID int `json:"id" db:"id"`

	// UserID identifies the submitting user.
	UserID int `json:"userId" db:"user_id"`

	// ImageUrl is the submitted image.
	ImageUrl string `json:"imageUrl" db:"image_url"`

	// Status is the moderation state of the submission.
	Status FanartStatus `json:"status" db:"status"`

	// CreatedAt is the timestamp when the submission was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// FanartWithUser is a fanart joined with its submitter, as returned
// by the gallery and moderation endpoints.
type FanartWithUser struct {
	Fanart
	User User `json:"user"`
}

// FanartStatus represents the moderation state of a fanart submission.
type FanartStatus int

// Supported fanart statuses.
const (
	// FanartPending indicates the submission has not been reviewed yet.
	FanartPending FanartStatus = iota

	// FanartApproved indicates an admin accepted the submission.
	// Approval grants the submitter Core membership.
	FanartApproved

	// FanartRejected indicates an admin declined the submission.
	FanartRejected
)

// String returns the compact string representation of the status
// used in API responses and the database.
func (s FanartStatus) String() string {
	switch s {
	case FanartPending:
		return "pending"
	case FanartApproved:
		return "approved"
	case FanartRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ParseFanartStatus maps a wire/database string onto a FanartStatus.
func ParseFanartStatus(value string) (FanartStatus, error) {
	switch value {
	case "pending":
		return FanartPending, nil
	case "approved":
		return FanartApproved, nil
	case "rejected":
		return FanartRejected, nil
	default:
		return FanartPending, fmt.Errorf("unknown fanart status %q", value)
	}
}

func (s FanartStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *FanartStatus) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	parsed, err := ParseFanartStatus(value)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
