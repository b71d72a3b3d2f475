package ws

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/listening-room-server/pkg/models"
)

// RoomService is the set of room operations a client can trigger.
type RoomService interface {
	Join(connID, roomID, nickname string)
	Leave(connID, roomID string)
	AddTrack(connID, roomID string, track models.TrackInput)
	VoteSkip(connID, roomID, itemID string)
	Disconnect(connID string)
}

// Dispatcher decodes inbound frames and routes them to the room service.
type Dispatcher struct {
	service  RoomService
	validate *validator.Validate
}

func NewDispatcher(service RoomService) *Dispatcher {
	return &Dispatcher{
		service:  service,
		validate: validator.New(),
	}
}

// Handle processes one frame from c. Invalid frames are answered with an
// error event to c alone.
func (d *Dispatcher) Handle(c Client, data []byte) {
	log := logrus.WithField("connection_id", c.ID())

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Recovered from panic while handling message")
			d.reject(c, "internal error")
		}
	}()

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.WithError(err).Debug("Invalid frame")
		d.reject(c, "invalid message")
		return
	}

	if err := d.dispatch(c.ID(), env); err != nil {
		log.WithError(err).WithField("event", env.Event).Debug("Rejected message")
		d.reject(c, err.Error())
	}
}

func (d *Dispatcher) dispatch(connID string, env Envelope) error {
	switch env.Event {
	case EventJoinRoom:
		var msg JoinRoomMessage
		if err := decode(d.validate, env.Data, &msg); err != nil {
			return err
		}
		d.service.Join(connID, msg.RoomID, msg.Nickname)

	case EventLeaveRoom:
		var msg LeaveRoomMessage
		if err := decode(d.validate, env.Data, &msg); err != nil {
			return err
		}
		d.service.Leave(connID, msg.RoomID)

	case EventAddTrack:
		var msg AddTrackMessage
		if err := decode(d.validate, env.Data, &msg); err != nil {
			return err
		}
		d.service.AddTrack(connID, msg.RoomID, msg.Track)

	case EventVoteSkip:
		var msg VoteSkipMessage
		if err := decode(d.validate, env.Data, &msg); err != nil {
			return err
		}
		d.service.VoteSkip(connID, msg.RoomID, msg.ItemID)

	default:
		return fmt.Errorf("unknown event %q", env.Event)
	}
	return nil
}

// Closed is called once a connection's read loop has ended.
func (d *Dispatcher) Closed(c Client) {
	d.service.Disconnect(c.ID())
}

func (d *Dispatcher) reject(c Client, message string) {
	msg, err := encode(EventError, ErrorMessage{Message: message})
	if err != nil {
		return
	}
	c.Send(msg)
}
