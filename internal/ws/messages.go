package ws

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/listening-room-server/pkg/models"
)

const (
	EventJoinRoom  = "join_room"
	EventLeaveRoom = "leave_room"
	EventAddTrack  = "add_track"
	EventVoteSkip  = "vote_skip"

	EventConnected = "connected"
	EventError     = "error"
)

// Envelope wraps every frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type JoinRoomMessage struct {
	RoomID   string `json:"roomId" validate:"required"`
	Nickname string `json:"nickname" validate:"required"`
}

type LeaveRoomMessage struct {
	RoomID string `json:"roomId" validate:"required"`
}

type AddTrackMessage struct {
	RoomID string            `json:"roomId" validate:"required"`
	Track  models.TrackInput `json:"track"`
}

type VoteSkipMessage struct {
	RoomID string `json:"roomId" validate:"required"`
	ItemID string `json:"itemId"`
}

type ConnectedMessage struct {
	ConnectionID string `json:"connectionId"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

func encode(event string, data interface{}) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data})
}

// decode unmarshals raw into dst and runs its validation tags.
func decode(v *validator.Validate, raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing data")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("malformed data: %w", err)
	}
	if err := v.Struct(dst); err != nil {
		return fmt.Errorf("invalid data: %w", err)
	}
	return nil
}
