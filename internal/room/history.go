package room

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/listening-room-server/pkg/models"
)

const historyBuffer = 256

// History keeps an append-only log of played tracks.
type History interface {
	Record(track models.PlayedTrack)
	Recent(ctx context.Context, roomID string, limit int) ([]models.PlayedTrack, error)
	Close() error
}

// HistoryStore is the persistence behind a HistoryRecorder.
type HistoryStore interface {
	SavePlayedTrack(ctx context.Context, track *models.PlayedTrack) error
	RecentPlayedTracks(ctx context.Context, roomID string, limit int) ([]models.PlayedTrack, error)
}

// HistoryRecorder writes played tracks from a background goroutine so that
// promotion never waits on the database. Entries are dropped, with a warning,
// when the buffer is full.
type HistoryRecorder struct {
	store   HistoryStore
	entries chan models.PlayedTrack
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewHistoryRecorder(store HistoryStore) *HistoryRecorder {
	h := &HistoryRecorder{
		store:   store,
		entries: make(chan models.PlayedTrack, historyBuffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *HistoryRecorder) run() {
	defer close(h.done)
	for entry := range h.entries {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		if err := h.store.SavePlayedTrack(ctx, &entry); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"room_id":  entry.RoomID,
				"track_id": entry.TrackID,
			}).Warn("Failed to save played track")
		}
		cancel()
	}
}

func (h *HistoryRecorder) Record(track models.PlayedTrack) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}

	select {
	case h.entries <- track:
	default:
		logrus.WithField("room_id", track.RoomID).Warn("History buffer full, dropping entry")
	}
}

func (h *HistoryRecorder) Recent(ctx context.Context, roomID string, limit int) ([]models.PlayedTrack, error) {
	return h.store.RecentPlayedTracks(ctx, roomID, limit)
}

// Close stops accepting entries and waits until the buffered ones are written.
func (h *HistoryRecorder) Close() error {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.entries)
	}
	h.mu.Unlock()

	<-h.done
	return nil
}

// NoHistory is used when no database is configured.
type NoHistory struct{}

func (NoHistory) Record(models.PlayedTrack) {}

func (NoHistory) Recent(context.Context, string, int) ([]models.PlayedTrack, error) {
	return []models.PlayedTrack{}, nil
}

func (NoHistory) Close() error { return nil }
