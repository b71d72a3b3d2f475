package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type EventType string

const (
	EventTypeUserJoined     EventType = "user_joined"
	EventTypeUserLeft       EventType = "user_left"
	EventTypeTrackAdded     EventType = "track_added"
	EventTypeSkipVoted      EventType = "skip_voted"
	EventTypeTrackStarted   EventType = "track_started"
	EventTypeQueueExhausted EventType = "queue_exhausted"
	EventTypeRoomClosed     EventType = "room_closed"
)

type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	RoomID    string          `json:"room_id"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with a fresh id and the payload encoded as JSON.
func NewEvent(eventType EventType, roomID, userID string, payload interface{}) (Event, error) {
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RoomID:    roomID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("failed to marshal payload: %w", err)
		}
		event.Payload = raw
	}
	return event, nil
}

// Publisher accepts room events for delivery to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaClient struct {
	writer messageWriter
}

// NewKafkaClient returns a client whose writer batches in the background, so
// Publish never waits on the brokers.
func NewKafkaClient(brokers []string, topic string) *KafkaClient {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logrus.WithError(err).WithField("count", len(messages)).Warn("Failed to deliver room events")
			}
		},
	}

	return &KafkaClient{writer: writer}
}

// Publish keys each message by room id so a room's events stay ordered within
// one partition.
func (k *KafkaClient) Publish(ctx context.Context, event Event) error {
	messageJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.RoomID),
		Value: messageJSON,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (k *KafkaClient) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

// Discard is the publisher used when no broker is configured.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
func (Discard) Close() error { return nil }

// Event payload types
type UserPayload struct {
	Nickname string `json:"nickname"`
}

type TrackAddedPayload struct {
	ItemID      string  `json:"item_id"`
	TrackID     string  `json:"track_id"`
	Title       string  `json:"title"`
	DurationSec float64 `json:"duration_sec"`
	Playing     bool    `json:"playing"`
}

type SkipVotedPayload struct {
	ItemID string `json:"item_id"`
}

type TrackStartedPayload struct {
	ItemID            string  `json:"item_id"`
	TrackID           string  `json:"track_id"`
	Title             string  `json:"title"`
	DurationSec       float64 `json:"duration_sec"`
	StartedAtServerTs int64   `json:"started_at_server_ts"`
}
