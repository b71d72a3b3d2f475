package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID       string `json:"id" validate:"required"`
	Nickname string `json:"nickname" validate:"required"`
}

// TrackInput is a queue entry as submitted by a client, before it has any votes.
type TrackInput struct {
	ID          string  `json:"id" validate:"required"`
	TrackID     string  `json:"trackId" validate:"required"`
	Title       string  `json:"title" validate:"required"`
	DurationSec float64 `json:"durationSec" validate:"gt=0"`
	AddedBy     User    `json:"addedBy"`
}

type QueueItem struct {
	ID          string  `json:"id"`
	TrackID     string  `json:"trackId"`
	Title       string  `json:"title"`
	DurationSec float64 `json:"durationSec"`
	AddedBy     User    `json:"addedBy"`
	Votes       int     `json:"votes"`
}

type CurrentPlayback struct {
	TrackID           string  `json:"trackId"`
	ItemID            string  `json:"itemId"`
	Title             string  `json:"title,omitempty"`
	DurationSec       float64 `json:"durationSec"`
	AddedBy           User    `json:"addedBy"`
	StartedAtServerTs int64   `json:"startedAtServerTs"` // unix millis
	PositionSec       float64 `json:"positionSec"`
}

// Elapsed reports how far playback has progressed at now.
func (c *CurrentPlayback) Elapsed(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(c.StartedAtServerTs))
}

// Finished reports whether the track's full duration has elapsed at now.
func (c *CurrentPlayback) Finished(now time.Time) bool {
	return c.Elapsed(now).Seconds() >= c.DurationSec
}

// SameAs reports whether both values describe the same promotion.
func (c *CurrentPlayback) SameAs(other *CurrentPlayback) bool {
	if c == nil || other == nil {
		return c == nil && other == nil
	}
	return c.ItemID == other.ItemID &&
		c.TrackID == other.TrackID &&
		c.StartedAtServerTs == other.StartedAtServerTs
}

type RoomState struct {
	RoomID  string           `json:"roomId"`
	Users   []User           `json:"users"`
	Queue   []QueueItem      `json:"queue"`
	Current *CurrentPlayback `json:"current"`
}

// EmptyRoomState is what a room looks like to a client after it has ceased to exist.
func EmptyRoomState(roomID string) RoomState {
	return RoomState{
		RoomID: roomID,
		Users:  []User{},
		Queue:  []QueueItem{},
	}
}

// PlayedTrack is one row of a room's play history.
type PlayedTrack struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	RoomID      string    `json:"room_id" gorm:"size:191;index:idx_room_started"`
	ItemID      string    `json:"item_id"`
	TrackID     string    `json:"track_id"`
	Title       string    `json:"title"`
	DurationSec float64   `json:"duration_sec"`
	AddedByID   string    `json:"added_by_id"`
	AddedByName string    `json:"added_by_name"`
	StartedAt   time.Time `json:"started_at" gorm:"index:idx_room_started"`
	CreatedAt   time.Time `json:"created_at"`
}

// TrackResult is one catalog search hit, shaped so a client can enqueue it directly.
type TrackResult struct {
	TrackID     string  `json:"trackId"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist"`
	Album       string  `json:"album,omitempty"`
	ImageURL    string  `json:"imageUrl,omitempty"`
	DurationSec float64 `json:"durationSec"`
}
