// Package relay is the fan-out room server for the collaboration engine.
// Every frame a member sends is forwarded verbatim to the other members of
// its room; the relay itself only synthesizes membership traffic (init on
// join, user-joined/user-left on churn, and a lock-releasing empty selection
// when a member drops). It never reorders, dedupes or merges canvas state.
package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/segmentio/ksuid"
	"golang.org/x/exp/slog"
	"nhooyr.io/websocket"

	"inkwell/collab/pkg/protocol"
)

const pingInterval = 45 * time.Second

// Router builds the relay's HTTP surface. originPatterns is passed through
// to the websocket accept check; bus may be nil for a single-instance
// deployment.
func Router(logger *slog.Logger, rooms *Rooms, bus *Bus, originPatterns []string) chi.Router {
	router := chi.NewRouter()
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	router.Get("/parties/main/{roomID}", JoinRoute(logger, rooms, bus, originPatterns))

	return router
}

// JoinRoute upgrades the socket, registers the member in its room, and pumps
// frames both ways until the socket dies.
func JoinRoute(logger *slog.Logger, rooms *Rooms, bus *Bus, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")
		if roomID == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		kid, err := ksuid.NewRandom()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		memberID := kid.String()
		log := logger.With(slog.String("room", roomID), slog.String("member", memberID))

		opts := &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		}

		conn, err := websocket.Accept(w, r, opts)
		if err != nil {
			return
		}

		// The library default is far below a realistic canvas snapshot;
		// without this a valid frame tears the member down.
		conn.SetReadLimit(protocol.MaxFrameSize)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		room := rooms.Get(roomID)
		m := &member{id: memberID, send: make(chan []byte, sendBuffer)}

		snapshot, active := room.join(m)
		log.Info("joined", slog.Int("active", active))

		defer func() {
			userID, remaining := room.leave(memberID)
			rooms.drop(roomID)
			log.Info("left", slog.Int("active", remaining))

			// user-left carries no identity, so peers cannot release the
			// departed member's advisory locks from it alone. Clear them
			// with an empty selection under the member's last-seen user id.
			if userID != "" {
				if b, err := protocol.Encode(protocol.SelectionUpdate{UserID: userID}); err == nil {
					room.broadcast(memberID, b)
					bus.publish(roomID, memberID, b)
				}
			}

			if b, err := protocol.Encode(protocol.UserLeft{ActiveUsers: remaining}); err == nil {
				room.broadcast(memberID, b)
				bus.publish(roomID, memberID, b)
			}
		}()

		seed, err := protocol.Encode(protocol.Init{
			State:       protocol.InitState{Elements: snapshot},
			ActiveUsers: active,
		})
		if err != nil {
			log.Error("failed to encode init", err)
			return
		}

		if err := conn.Write(ctx, websocket.MessageBinary, seed); err != nil {
			return
		}

		if b, err := protocol.Encode(protocol.UserJoined{ActiveUsers: active}); err == nil {
			room.broadcast(memberID, b)
			bus.publish(roomID, memberID, b)
		}

		go func() {
			defer cancel()
			for {
				_, b, err := conn.Read(ctx)
				if err != nil {
					return
				}

				msg, err := protocol.Decode(b)
				if err != nil {
					log.Warn("dropping bad frame", slog.String("reason", err.Error()))
					continue
				}

				switch v := msg.(type) {
				case protocol.CanvasUpdate:
					room.storeSnapshot(v.Elements)
				case protocol.CursorUpdate:
					room.setUserID(memberID, v.UserID)
				case protocol.SelectionUpdate:
					room.setUserID(memberID, v.UserID)
				default:
					// Membership kinds are relay-synthesized; a client has
					// no business injecting them.
					log.Warn("dropping reserved frame", slog.String("type", string(msg.Kind())))
					continue
				}

				room.broadcast(memberID, b)
				bus.publish(roomID, memberID, b)
			}
		}()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(pingInterval):
					if err := conn.Ping(ctx); err != nil {
						_ = conn.Close(websocket.StatusAbnormalClosure, "hello?")
						return
					}
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case b, ok := <-m.send:
				if !ok {
					return
				}

				if err := conn.Write(ctx, websocket.MessageBinary, b); err != nil {
					log.Error("failed to write frame", err)
					return
				}
			}
		}
	}
}
