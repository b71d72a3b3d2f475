package room

import "github.com/listening-room-server/pkg/models"

// Outbound event names as seen by clients.
const (
	EventRoomState      = "room_state"
	EventTrackStarted   = "track_started"
	EventPlaybackSynced = "playback_synced"
)

type TrackStartedMessage struct {
	RoomID string                 `json:"roomId"`
	Track  models.CurrentPlayback `json:"track"`
}

type PlaybackSyncedMessage struct {
	RoomID      string  `json:"roomId"`
	PositionSec float64 `json:"positionSec"`
}

// Gateway delivers outbound events to connected clients.
type Gateway interface {
	// Broadcast sends to every member of the room.
	Broadcast(roomID, event string, data interface{})
	// Send sends to a single connection.
	Send(connID, event string, data interface{})
}
