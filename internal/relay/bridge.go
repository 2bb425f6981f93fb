package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"

	"inkwell/collab/pkg/protocol"
)

const busChannel = "collab:rooms"

// Bus replays room frames between relay instances over redis pub/sub, so
// members of the same room landing on different instances still see each
// other. A nil *Bus is valid and turns every call into a no-op, which is how
// a single-instance deployment runs.
type Bus struct {
	logger     *slog.Logger
	rdb        *redis.Client
	instanceID string
}

type roomEvent struct {
	Origin  string `json:"origin"`
	Room    string `json:"room"`
	Sender  string `json:"sender"`
	Payload string `json:"payload"`
}

func NewBus(logger *slog.Logger, rdb *redis.Client, instanceID string) *Bus {
	return &Bus{
		logger:     logger.With(slog.String("component", "bus")),
		rdb:        rdb,
		instanceID: instanceID,
	}
}

func (b *Bus) publish(roomID, senderID string, frame []byte) {
	if b == nil {
		return
	}

	event := roomEvent{
		Origin:  b.instanceID,
		Room:    roomID,
		Sender:  senderID,
		Payload: base64.RawURLEncoding.EncodeToString(frame),
	}

	bEvent, err := json.Marshal(event)
	if err != nil {
		return
	}

	if err := b.rdb.Publish(context.Background(), busChannel, string(bEvent)).Err(); err != nil {
		b.logger.Error("failed to publish room event", err)
	}
}

// Subscribe replays events from other instances into local rooms until ctx
// is canceled. Run it in its own goroutine.
func (b *Bus) Subscribe(ctx context.Context, rooms *Rooms) {
	if b == nil {
		return
	}

	sub := b.rdb.Subscribe(ctx, busChannel)
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = sub.Close()
			return
		case msg := <-ch:
			event := roomEvent{}
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Error("failed to unmarshal room event", err)
				continue
			}

			if event.Origin == b.instanceID {
				continue
			}

			room := rooms.Lookup(event.Room)
			if room == nil {
				continue
			}

			frame, err := base64.RawURLEncoding.DecodeString(event.Payload)
			if err != nil {
				b.logger.Warn("failed to decode room event payload", slog.String("room", event.Room))
				continue
			}

			// Keep the late-join snapshot current even when the canvas
			// traffic originated on another instance.
			if m, err := protocol.Decode(frame); err == nil {
				if v, ok := m.(protocol.CanvasUpdate); ok {
					room.storeSnapshot(v.Elements)
				}
			}

			room.broadcast(event.Sender, frame)
		}
	}
}
