package relay

import (
	"sync"

	"golang.org/x/exp/slog"

	"inkwell/collab/pkg/scene"
)

const sendBuffer = 64

// member is one connected socket in a room. userID is the collaboration
// identity last seen on the member's cursor or selection frames; the relay
// needs it to release the member's advisory locks when the socket drops.
type member struct {
	id     string
	userID string
	send   chan []byte
}

// Room fans frames out to its members and retains the latest canvas
// snapshot so late joiners can be seeded. It is not a sequencer: frames are
// forwarded in arrival order with no guarantees across senders.
type Room struct {
	id string

	mu       sync.RWMutex
	members  map[string]*member
	elements []scene.Element
}

// Rooms is the registry of live rooms on this instance.
type Rooms struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	logger *slog.Logger
}

func NewRooms(logger *slog.Logger) *Rooms {
	return &Rooms{
		rooms:  make(map[string]*Room),
		logger: logger,
	}
}

// Get returns the room, creating it on first join.
func (r *Rooms) Get(id string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		room = &Room{id: id, members: make(map[string]*member)}
		r.rooms[id] = room
		r.logger.Debug("room opened", slog.String("room", id))
	}

	return room
}

// Lookup returns the room only if it already exists. The cross-instance
// bridge uses it so remote traffic never materializes empty rooms here.
func (r *Rooms) Lookup(id string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.rooms[id]
}

func (r *Rooms) drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[id]; ok && room.active() == 0 {
		delete(r.rooms, id)
		r.logger.Debug("room closed", slog.String("room", id))
	}
}

func (ro *Room) join(m *member) (snapshot []scene.Element, active int) {
	ro.mu.Lock()
	defer ro.mu.Unlock()

	ro.members[m.id] = m
	return ro.elements, len(ro.members)
}

// leave removes the member and reports its last-seen user id plus the
// remaining member count.
func (ro *Room) leave(memberID string) (userID string, active int) {
	ro.mu.Lock()
	defer ro.mu.Unlock()

	if m, ok := ro.members[memberID]; ok {
		userID = m.userID
		delete(ro.members, memberID)
		close(m.send)
	}

	return userID, len(ro.members)
}

func (ro *Room) active() int {
	ro.mu.RLock()
	defer ro.mu.RUnlock()

	return len(ro.members)
}

func (ro *Room) setUserID(memberID, userID string) {
	ro.mu.Lock()
	defer ro.mu.Unlock()

	if m, ok := ro.members[memberID]; ok {
		m.userID = userID
	}
}

func (ro *Room) storeSnapshot(elements []scene.Element) {
	ro.mu.Lock()
	defer ro.mu.Unlock()

	ro.elements = elements
}

// broadcast queues a frame for every member except the sender. A member
// whose buffer is full loses the frame; the protocol self-heals on the next
// snapshot so stalling the whole room for one slow reader is worse.
func (ro *Room) broadcast(senderID string, frame []byte) {
	ro.mu.RLock()
	defer ro.mu.RUnlock()

	for id, m := range ro.members {
		if id == senderID {
			continue
		}

		select {
		case m.send <- frame:
		default:
		}
	}
}
