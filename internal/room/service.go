package room

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/listening-room-server/pkg/events"
	"github.com/listening-room-server/pkg/models"
)

// Service applies client requests to the registry and tells the affected
// rooms about the result. It also receives the scheduler's tick events.
//
// Requests are handled one at a time: the registry mutation and the snapshot
// that gets broadcast for it happen under the same lock, so clients never see
// room states out of order.
type Service struct {
	mu       sync.Mutex
	registry *Registry
	gateway  Gateway
	events   events.Publisher
	history  History
}

func NewService(registry *Registry, gateway Gateway, publisher events.Publisher, history History) *Service {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if history == nil {
		history = NoHistory{}
	}
	return &Service{
		registry: registry,
		gateway:  gateway,
		events:   publisher,
		history:  history,
	}
}

// SetGateway replaces the outbound gateway. The websocket hub needs the
// service to exist before it can be built, so main wires it afterwards.
func (s *Service) SetGateway(gateway Gateway) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateway = gateway
}

func (s *Service) Join(connID, roomID, nickname string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := models.User{ID: connID, Nickname: nickname}
	state := s.registry.JoinRoom(roomID, connID, user)

	s.gateway.Broadcast(roomID, EventRoomState, state)
	if state.Current != nil {
		s.gateway.Send(connID, EventTrackStarted, TrackStartedMessage{RoomID: roomID, Track: *state.Current})
	}

	logrus.WithFields(logrus.Fields{
		"room_id":       roomID,
		"connection_id": connID,
		"members":       len(state.Users),
	}).Info("User joined room")
	s.publish(events.EventTypeUserJoined, roomID, connID, events.UserPayload{Nickname: nickname})
}

func (s *Service) Leave(connID, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.registry.LeaveRoom(roomID, connID)

	state, ok := s.registry.GetRoomState(roomID)
	if !ok {
		state = models.EmptyRoomState(roomID)
	} else {
		s.gateway.Broadcast(roomID, EventRoomState, state)
	}
	// the leaver is no longer a member, so it gets its copy directly
	s.gateway.Send(connID, EventRoomState, state)

	s.afterLeave(connID, roomID, removed)
}

// Disconnect removes a closed connection from every room it had joined.
func (s *Service) Disconnect(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, roomID := range s.registry.LeaveAll(connID) {
		state, ok := s.registry.GetRoomState(roomID)
		if ok {
			s.gateway.Broadcast(roomID, EventRoomState, state)
		}
		s.afterLeave(connID, roomID, !ok)
	}
}

func (s *Service) afterLeave(connID, roomID string, removed bool) {
	log := logrus.WithFields(logrus.Fields{
		"room_id":       roomID,
		"connection_id": connID,
	})
	log.Info("User left room")
	s.publish(events.EventTypeUserLeft, roomID, connID, nil)

	if removed {
		log.Info("Room closed")
		s.publish(events.EventTypeRoomClosed, roomID, "", nil)
	}
}

// AddTrack queues a track. Adding to a room that does not exist does nothing.
func (s *Service) AddTrack(connID, roomID string, track models.TrackInput) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{
		"room_id":       roomID,
		"connection_id": connID,
		"track_id":      track.TrackID,
	})

	item, started, ok := s.registry.AddTrack(roomID, track)
	if !ok {
		log.Debug("Ignoring track for unknown room")
		return
	}

	state, _ := s.registry.GetRoomState(roomID)
	s.gateway.Broadcast(roomID, EventRoomState, state)

	log.WithField("item_id", item.ID).Info("Track added")
	s.publish(events.EventTypeTrackAdded, roomID, connID, events.TrackAddedPayload{
		ItemID:      item.ID,
		TrackID:     item.TrackID,
		Title:       item.Title,
		DurationSec: item.DurationSec,
		Playing:     started != nil,
	})

	if started != nil {
		s.trackStartedLocked(roomID, *started)
	}
}

// VoteSkip counts a skip vote for a queued item. Without an item id the vote
// is aimed at the playing track, which is no longer in the queue and so is
// not counted.
func (s *Service) VoteSkip(connID, roomID, itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if itemID == "" {
		current := s.registry.GetCurrentTrack(roomID)
		if current == nil {
			return
		}
		itemID = current.ItemID
	}

	if !s.registry.VoteSkip(roomID, itemID) {
		return
	}

	state, _ := s.registry.GetRoomState(roomID)
	s.gateway.Broadcast(roomID, EventRoomState, state)
	s.publish(events.EventTypeSkipVoted, roomID, connID, events.SkipVotedPayload{ItemID: itemID})
}

// RoomStateChanged broadcasts the room's latest state.
func (s *Service) RoomStateChanged(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.registry.GetRoomState(roomID)
	if !ok {
		return
	}
	s.gateway.Broadcast(roomID, EventRoomState, state)

	if state.Current == nil {
		logrus.WithField("room_id", roomID).Info("Queue exhausted")
		s.publish(events.EventTypeQueueExhausted, roomID, "", nil)
	}
}

func (s *Service) TrackStarted(roomID string, track models.CurrentPlayback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackStartedLocked(roomID, track)
}

func (s *Service) trackStartedLocked(roomID string, track models.CurrentPlayback) {
	s.gateway.Broadcast(roomID, EventTrackStarted, TrackStartedMessage{RoomID: roomID, Track: track})

	logrus.WithFields(logrus.Fields{
		"room_id":  roomID,
		"track_id": track.TrackID,
		"item_id":  track.ItemID,
	}).Info("Track started")

	s.history.Record(models.PlayedTrack{
		ID:          uuid.New(),
		RoomID:      roomID,
		ItemID:      track.ItemID,
		TrackID:     track.TrackID,
		Title:       track.Title,
		DurationSec: track.DurationSec,
		AddedByID:   track.AddedBy.ID,
		AddedByName: track.AddedBy.Nickname,
		StartedAt:   time.UnixMilli(track.StartedAtServerTs).UTC(),
	})
	s.publish(events.EventTypeTrackStarted, roomID, track.AddedBy.ID, events.TrackStartedPayload{
		ItemID:            track.ItemID,
		TrackID:           track.TrackID,
		Title:             track.Title,
		DurationSec:       track.DurationSec,
		StartedAtServerTs: track.StartedAtServerTs,
	})
}

func (s *Service) PlaybackSynced(roomID string, positionSec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateway.Broadcast(roomID, EventPlaybackSynced, PlaybackSyncedMessage{RoomID: roomID, PositionSec: positionSec})
}

func (s *Service) State(roomID string) (models.RoomState, bool) {
	return s.registry.GetRoomState(roomID)
}

func (s *Service) RoomIDs() []string {
	return s.registry.RoomIDs()
}

func (s *Service) Stats() (rooms, members int) {
	return s.registry.Stats()
}

func (s *Service) History(ctx context.Context, roomID string, limit int) ([]models.PlayedTrack, error) {
	return s.history.Recent(ctx, roomID, limit)
}

func (s *Service) publish(eventType events.EventType, roomID, userID string, payload interface{}) {
	log := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"event":   eventType,
	})

	event, err := events.NewEvent(eventType, roomID, userID, payload)
	if err != nil {
		log.WithError(err).Warn("Failed to build room event")
		return
	}
	if err := s.events.Publish(context.Background(), event); err != nil {
		log.WithError(err).Warn("Failed to publish room event")
	}
}
