package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listening-room-server/internal/room"
	"github.com/listening-room-server/pkg/models"
)

type syncCall struct {
	roomID      string
	positionSec float64
}

type mockNotifier struct {
	mu      sync.Mutex
	states  []string
	started []models.CurrentPlayback
	syncs   []syncCall
}

func (m *mockNotifier) RoomStateChanged(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, roomID)
}

func (m *mockNotifier) TrackStarted(roomID string, track models.CurrentPlayback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, track)
}

func (m *mockNotifier) PlaybackSynced(roomID string, positionSec float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs = append(m.syncs, syncCall{roomID: roomID, positionSec: positionSec})
}

func (m *mockNotifier) counts() (states, started, syncs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states), len(m.started), len(m.syncs)
}

// vanishingRooms reports a room id that no longer exists by the time it is probed.
type vanishingRooms struct{}

func (vanishingRooms) RoomIDs() []string { return []string{"gone"} }
func (vanishingRooms) GetCurrentTrack(string) *models.CurrentPlayback { return nil }
func (vanishingRooms) StartNextTrackIfNeeded(string) (*models.CurrentPlayback, bool) {
	return nil, false
}

var alice = models.User{ID: "c1", Nickname: "Alice"}

func setup(t *testing.T) (*room.Registry, *mockNotifier, *clock.Mock, *Scheduler) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	reg := room.NewRegistry(clk)
	n := &mockNotifier{}
	return reg, n, clk, New(reg, n, clk, Config{})
}

func addTrack(reg *room.Registry, roomID, id string, durationSec float64) {
	reg.AddTrack(roomID, models.TrackInput{
		ID:          id,
		TrackID:     "yt-" + id,
		Title:       id,
		DurationSec: durationSec,
		AddedBy:     alice,
	})
}

func TestScheduler_ProgressTick(t *testing.T) {
	reg, n, clk, s := setup(t)
	reg.JoinRoom("R1", "c1", alice)
	addTrack(reg, "R1", "t1", 10)
	addTrack(reg, "R1", "t2", 10)

	s.ProgressTick()
	states, started, _ := n.counts()
	assert.Zero(t, states, "track still playing")
	assert.Zero(t, started)

	clk.Add(10 * time.Second)
	s.ProgressTick()
	require.Len(t, n.started, 1)
	assert.Equal(t, "t2", n.started[0].ItemID)
	assert.Equal(t, []string{"R1"}, n.states)

	// same window: nothing new
	s.ProgressTick()
	states, started, _ = n.counts()
	assert.Equal(t, 1, states)
	assert.Equal(t, 1, started)

	// queue exhausted: state update only
	clk.Add(10 * time.Second)
	s.ProgressTick()
	states, started, _ = n.counts()
	assert.Equal(t, 2, states)
	assert.Equal(t, 1, started)
	assert.Nil(t, reg.GetCurrentTrack("R1"))

	// idle room stays quiet
	s.ProgressTick()
	states, _, _ = n.counts()
	assert.Equal(t, 2, states)
}

func TestScheduler_ProgressTickVanishedRoom(t *testing.T) {
	n := &mockNotifier{}
	s := New(vanishingRooms{}, n, clock.NewMock(), Config{})

	assert.NotPanics(t, s.ProgressTick)
	assert.NotPanics(t, s.SyncTick)
	states, started, syncs := n.counts()
	assert.Zero(t, states)
	assert.Zero(t, started)
	assert.Zero(t, syncs)
}

func TestScheduler_SyncTick(t *testing.T) {
	reg, n, clk, s := setup(t)
	reg.JoinRoom("R1", "c1", alice)
	reg.JoinRoom("R2", "c2", models.User{ID: "c2", Nickname: "Bob"})
	addTrack(reg, "R1", "t1", 60)

	clk.Add(2500 * time.Millisecond)
	before, _ := reg.GetRoomState("R1")
	s.SyncTick()
	after, _ := reg.GetRoomState("R1")

	require.Len(t, n.syncs, 1)
	assert.Equal(t, "R1", n.syncs[0].roomID)
	assert.InDelta(t, 2.5, n.syncs[0].positionSec, 0.001)
	assert.Equal(t, before, after)
}

func TestScheduler_StartStopRestart(t *testing.T) {
	reg, n, clk, s := setup(t)
	reg.JoinRoom("R1", "c1", alice)
	addTrack(reg, "R1", "t1", 1)
	addTrack(reg, "R1", "t2", 60)

	s.Start(context.Background())
	s.Start(context.Background())

	clk.Add(time.Second)
	assert.Eventually(t, func() bool {
		_, started, _ := n.counts()
		return started == 1
	}, time.Second, 10*time.Millisecond)

	clk.Add(4 * time.Second)
	assert.Eventually(t, func() bool {
		_, _, syncs := n.counts()
		return syncs >= 1
	}, time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()

	s.Start(context.Background())
	defer s.Stop()
	clk.Add(5 * time.Second)
	assert.Eventually(t, func() bool {
		_, _, syncs := n.counts()
		return syncs >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestScheduler_RestartAfterParentCancel(t *testing.T) {
	reg, n, clk, s := setup(t)
	reg.JoinRoom("R1", "c1", alice)
	addTrack(reg, "R1", "t1", 60)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.run == nil
	}, time.Second, 10*time.Millisecond)

	s.Start(context.Background())
	defer s.Stop()
	clk.Add(5 * time.Second)
	assert.Eventually(t, func() bool {
		_, _, syncs := n.counts()
		return syncs >= 1
	}, time.Second, 10*time.Millisecond)
}

type countingGateway struct {
	mu      sync.Mutex
	started []string
}

func (g *countingGateway) Broadcast(roomID, event string, data interface{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if event == room.EventTrackStarted {
		g.started = append(g.started, data.(room.TrackStartedMessage).Track.ItemID)
	}
}

func (g *countingGateway) Send(string, string, interface{}) {}

type countingHistory struct {
	room.NoHistory
	mu    sync.Mutex
	items []string
}

func (h *countingHistory) Record(track models.PlayedTrack) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, track.ItemID)
}

// interleavedRooms runs a request against the room service just before the
// scheduler's advance, as a concurrent client would.
type interleavedRooms struct {
	*room.Registry
	before func()
}

func (r *interleavedRooms) StartNextTrackIfNeeded(roomID string) (*models.CurrentPlayback, bool) {
	if f := r.before; f != nil {
		r.before = nil
		f()
	}
	return r.Registry.StartNextTrackIfNeeded(roomID)
}

func TestScheduler_PromotionReportedOnce(t *testing.T) {
	input := func(id string, durationSec float64) models.TrackInput {
		return models.TrackInput{ID: id, TrackID: "yt-" + id, Title: id, DurationSec: durationSec, AddedBy: alice}
	}

	tests := []struct {
		name        string
		playing     bool
		wantStarted []string
	}{
		{
			name:        "track added to idle room mid tick",
			wantStarted: []string{"t2"},
		},
		{
			name:        "track added while the current one has just ended",
			playing:     true,
			wantStarted: []string{"t2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewMock()
			clk.Set(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
			reg := room.NewRegistry(clk)
			gateway := &countingGateway{}
			history := &countingHistory{}
			svc := room.NewService(reg, gateway, nil, history)
			svc.Join("c1", "R1", "Alice")

			if tt.playing {
				svc.AddTrack("c1", "R1", input("t1", 10))
				clk.Add(10 * time.Second)
				gateway.started = nil
				history.items = nil
			}

			rooms := &interleavedRooms{Registry: reg}
			rooms.before = func() { svc.AddTrack("c1", "R1", input("t2", 10)) }
			s := New(rooms, svc, clk, Config{})

			s.ProgressTick()
			s.ProgressTick()

			assert.Equal(t, tt.wantStarted, gateway.started)
			assert.Equal(t, tt.wantStarted, history.items)
			current := reg.GetCurrentTrack("R1")
			require.NotNil(t, current)
			assert.Equal(t, "t2", current.ItemID)
		})
	}
}
