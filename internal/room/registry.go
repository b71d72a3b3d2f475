package room

import (
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/listening-room-server/pkg/models"
)

type roomState struct {
	id      string
	members map[string]models.User // connection id -> user
	queue   []models.QueueItem
	current *models.CurrentPlayback
}

// Registry owns every live room. All access goes through one mutex so that
// membership changes and queue promotion are applied in arrival order.
// Reads hand out copies; nothing outside the registry holds a live room.
type Registry struct {
	mu    sync.Mutex
	clock clock.Clock
	rooms map[string]*roomState
	// connection id -> set of joined room ids
	conns map[string]map[string]struct{}
}

func NewRegistry(clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	return &Registry{
		clock: clk,
		rooms: make(map[string]*roomState),
		conns: make(map[string]map[string]struct{}),
	}
}

// JoinRoom adds user to the room under connID, creating the room if needed.
// Joining again with the same connID replaces the stored user.
func (r *Registry) JoinRoom(roomID, connID string, user models.User) models.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.rooms[roomID]
	if !ok {
		rs = &roomState{
			id:      roomID,
			members: make(map[string]models.User),
		}
		r.rooms[roomID] = rs
	}
	rs.members[connID] = user

	joined, ok := r.conns[connID]
	if !ok {
		joined = make(map[string]struct{})
		r.conns[connID] = joined
	}
	joined[roomID] = struct{}{}

	return r.snapshotLocked(rs)
}

// LeaveRoom removes connID from the room. It reports whether the room was
// deleted because its last member left.
func (r *Registry) LeaveRoom(roomID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(roomID, connID)
}

// LeaveAll removes connID from every room it joined and returns those room ids.
func (r *Registry) LeaveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.conns[connID]
	roomIDs := make([]string, 0, len(joined))
	for roomID := range joined {
		roomIDs = append(roomIDs, roomID)
	}
	sort.Strings(roomIDs)

	for _, roomID := range roomIDs {
		r.leaveLocked(roomID, connID)
	}
	return roomIDs
}

func (r *Registry) leaveLocked(roomID, connID string) bool {
	if joined, ok := r.conns[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.conns, connID)
		}
	}

	rs, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	delete(rs.members, connID)
	if len(rs.members) > 0 {
		return false
	}
	delete(r.rooms, roomID)
	return true
}

// AddTrack appends a track to the room's queue with zero votes. If nothing is
// playing the track is promoted before AddTrack returns and started holds the
// new playback. ok is false when the room does not exist.
func (r *Registry) AddTrack(roomID string, track models.TrackInput) (item *models.QueueItem, started *models.CurrentPlayback, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, exists := r.rooms[roomID]
	if !exists {
		return nil, nil, false
	}

	queued := models.QueueItem{
		ID:          track.ID,
		TrackID:     track.TrackID,
		Title:       track.Title,
		DurationSec: track.DurationSec,
		AddedBy:     track.AddedBy,
		Votes:       0,
	}
	if queued.ID == "" {
		queued.ID = uuid.New().String()
	}
	rs.queue = append(rs.queue, queued)

	if rs.current == nil {
		r.startNextLocked(rs)
		started = r.currentCopyLocked(rs)
	}
	return &queued, started, true
}

// VoteSkip adds one vote to the queued item with the given id. Votes are only
// counted; no number of votes skips a track.
func (r *Registry) VoteSkip(roomID, itemID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	for i := range rs.queue {
		if rs.queue[i].ID == itemID {
			rs.queue[i].Votes++
			return true
		}
	}
	return false
}

// GetRoomState returns a snapshot of the room, or false if it does not exist.
func (r *Registry) GetRoomState(roomID string) (models.RoomState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.rooms[roomID]
	if !ok {
		return models.RoomState{}, false
	}
	return r.snapshotLocked(rs), true
}

// GetCurrentTrack returns the room's current playback, or nil.
func (r *Registry) GetCurrentTrack(roomID string) *models.CurrentPlayback {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return r.currentCopyLocked(rs)
}

// StartNextTrack promotes the head of the queue, oldest first. With an empty
// queue the room stops playing and nil is returned.
func (r *Registry) StartNextTrack(roomID string) *models.CurrentPlayback {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	r.startNextLocked(rs)
	return r.currentCopyLocked(rs)
}

// StartNextTrackIfNeeded promotes the next track when nothing is playing or the
// current track has run for its full duration. Otherwise the current track is
// returned as is. advanced reports whether this call changed the current
// playback, so each promotion is observed by exactly one caller.
func (r *Registry) StartNextTrackIfNeeded(roomID string) (current *models.CurrentPlayback, advanced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	switch {
	case rs.current == nil && len(rs.queue) == 0:
	case rs.current == nil || rs.current.Finished(r.clock.Now()):
		r.startNextLocked(rs)
		advanced = true
	}
	return r.currentCopyLocked(rs), advanced
}

func (r *Registry) startNextLocked(rs *roomState) {
	if len(rs.queue) == 0 {
		rs.current = nil
		return
	}
	next := rs.queue[0]
	rs.queue = rs.queue[1:]
	rs.current = &models.CurrentPlayback{
		TrackID:           next.TrackID,
		ItemID:            next.ID,
		Title:             next.Title,
		DurationSec:       next.DurationSec,
		AddedBy:           next.AddedBy,
		StartedAtServerTs: r.clock.Now().UnixMilli(),
	}
}

// RoomIDs returns the ids of all live rooms in sorted order.
func (r *Registry) RoomIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MemberIDs returns the connection ids joined to the room.
func (r *Registry) MemberIDs(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(rs.members))
	for id := range rs.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RoomsOf returns the rooms the connection has joined. It is a read-only
// inspection helper over the index LeaveAll consumes.
func (r *Registry) RoomsOf(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.conns[connID]))
	for id := range r.conns[connID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Stats() (rooms, members int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms = len(r.rooms)
	for _, rs := range r.rooms {
		members += len(rs.members)
	}
	return rooms, members
}

func (r *Registry) snapshotLocked(rs *roomState) models.RoomState {
	users := make([]models.User, 0, len(rs.members))
	connIDs := make([]string, 0, len(rs.members))
	for id := range rs.members {
		connIDs = append(connIDs, id)
	}
	sort.Strings(connIDs)
	for _, id := range connIDs {
		users = append(users, rs.members[id])
	}

	queue := make([]models.QueueItem, len(rs.queue))
	copy(queue, rs.queue)

	return models.RoomState{
		RoomID:  rs.id,
		Users:   users,
		Queue:   queue,
		Current: r.currentCopyLocked(rs),
	}
}

func (r *Registry) currentCopyLocked(rs *roomState) *models.CurrentPlayback {
	if rs.current == nil {
		return nil
	}
	cp := *rs.current
	cp.PositionSec = cp.Elapsed(r.clock.Now()).Seconds()
	return &cp
}
