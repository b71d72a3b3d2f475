// Package scheduler drives playback for every live room off two fixed-interval
// tickers: one advances finished tracks, the other broadcasts the playback
// position so clients can correct drift.
//
// Rooms are polled rather than woken at each track's exact end, so a track may
// run up to one progression interval past its duration.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/listening-room-server/pkg/models"
)

const (
	DefaultProgressInterval = time.Second
	DefaultSyncInterval     = 5 * time.Second
)

// Rooms is the part of the room registry the scheduler reads and advances.
type Rooms interface {
	RoomIDs() []string
	GetCurrentTrack(roomID string) *models.CurrentPlayback
	// StartNextTrackIfNeeded reports whether it changed the room's playback.
	StartNextTrackIfNeeded(roomID string) (*models.CurrentPlayback, bool)
}

// Notifier receives the events derived by each tick.
type Notifier interface {
	RoomStateChanged(roomID string)
	TrackStarted(roomID string, track models.CurrentPlayback)
	PlaybackSynced(roomID string, positionSec float64)
}

type Config struct {
	ProgressInterval time.Duration
	SyncInterval     time.Duration
}

type Scheduler struct {
	rooms    Rooms
	notifier Notifier
	clock    clock.Clock
	cfg      Config

	mu  sync.Mutex
	run *run
	wg  sync.WaitGroup
}

type run struct {
	cancel context.CancelFunc
}

func New(rooms Rooms, notifier Notifier, clk clock.Clock, cfg Config) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	return &Scheduler{
		rooms:    rooms,
		notifier: notifier,
		clock:    clk,
		cfg:      cfg,
	}
}

// Start launches both loops. Calling Start on a running scheduler is a no-op.
// The loops end on Stop or when ctx is done; either way Start may be called
// again afterwards.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel}
	s.run = r

	progress := s.clock.Ticker(s.cfg.ProgressInterval)
	syncTicker := s.clock.Ticker(s.cfg.SyncInterval)

	s.wg.Add(3)
	go s.loop(ctx, progress, s.ProgressTick)
	go s.loop(ctx, syncTicker, s.SyncTick)
	go s.release(ctx, r)

	logrus.WithFields(logrus.Fields{
		"progress_interval": s.cfg.ProgressInterval,
		"sync_interval":     s.cfg.SyncInterval,
	}).Info("Scheduler started")
}

// Stop halts both loops and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	r := s.run
	s.run = nil
	s.mu.Unlock()

	if r != nil {
		r.cancel()
	}
	s.wg.Wait()
	if r != nil {
		logrus.Info("Scheduler stopped")
	}
}

// release forgets r once its context ends, so a cancelled parent context
// leaves the scheduler startable.
func (s *Scheduler) release(ctx context.Context, r *run) {
	defer s.wg.Done()
	<-ctx.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == r {
		s.run = nil
		r.cancel()
	}
}

func (s *Scheduler) loop(ctx context.Context, ticker *clock.Ticker, tick func()) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.safeTick(tick)
		}
	}
}

func (s *Scheduler) safeTick(tick func()) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("Scheduler tick panicked")
		}
	}()
	tick()
}

// ProgressTick advances every room whose track has finished and reports the
// rooms this tick advanced. Promotions made by anyone else, such as a track
// added to an idle room, are left to whoever made them.
func (s *Scheduler) ProgressTick() {
	for _, roomID := range s.rooms.RoomIDs() {
		current, advanced := s.rooms.StartNextTrackIfNeeded(roomID)
		if !advanced {
			continue
		}

		s.notifier.RoomStateChanged(roomID)
		if current != nil {
			s.notifier.TrackStarted(roomID, *current)
		}
	}
}

// SyncTick reports the elapsed position of every playing room. It never
// changes room state.
func (s *Scheduler) SyncTick() {
	now := s.clock.Now()
	for _, roomID := range s.rooms.RoomIDs() {
		current := s.rooms.GetCurrentTrack(roomID)
		if current == nil {
			continue
		}
		positionSec := float64(now.UnixMilli()-current.StartedAtServerTs) / 1000
		s.notifier.PlaybackSynced(roomID, positionSec)
	}
}
