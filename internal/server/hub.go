package server

import (
	"github.com/rs/zerolog"
)

type joinRequest struct {
	client *wsClient
	roomID string
}

type roomMessage struct {
	roomID  string
	payload []byte
}

// Hub tracks which socket clients belong to which conversation room and fans
// broadcast frames out to the members. All room state is owned by the Run
// goroutine; the channels are the only way in.
type Hub struct {
	rooms      map[string]map[*wsClient]struct{}
	register   chan *wsClient
	unregister chan *wsClient
	join       chan joinRequest
	broadcast  chan roomMessage
	done       chan struct{}

	logger  zerolog.Logger
	metrics *metrics
}

func NewHub(logger zerolog.Logger, m *metrics) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*wsClient]struct{}),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		join:       make(chan joinRequest),
		broadcast:  make(chan roomMessage, 64),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    m,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.logger.Debug().Str("client", client.id).Msg("client connected")
			if h.metrics != nil {
				h.metrics.wsConnections.Inc()
			}

		case client := <-h.unregister:
			for roomID, members := range h.rooms {
				if _, ok := members[client]; ok {
					delete(members, client)
					if len(members) == 0 {
						delete(h.rooms, roomID)
						if h.metrics != nil {
							h.metrics.wsRooms.Dec()
						}
					}
				}
			}
			client.closeSend()
			if h.metrics != nil {
				h.metrics.wsConnections.Dec()
			}

		case req := <-h.join:
			members, ok := h.rooms[req.roomID]
			if !ok {
				members = make(map[*wsClient]struct{})
				h.rooms[req.roomID] = members
				if h.metrics != nil {
					h.metrics.wsRooms.Inc()
				}
			}
			members[req.client] = struct{}{}
			h.logger.Debug().Str("room", req.roomID).Msg("client joined room")

		case msg := <-h.broadcast:
			members, ok := h.rooms[msg.roomID]
			if !ok {
				continue
			}
			delivered := 0
			for client := range members {
				if client.trySend(msg.payload) {
					delivered++
				} else {
					// Slow consumer: drop it from the room, the read pump
					// will unregister the connection itself.
					delete(members, client)
					client.closeSend()
				}
			}
			if len(members) == 0 {
				delete(h.rooms, msg.roomID)
				if h.metrics != nil {
					h.metrics.wsRooms.Dec()
				}
			}
			if delivered > 0 && h.metrics != nil {
				h.metrics.wsDelivered.Add(float64(delivered))
			}
		}
	}
}

// Register hands a freshly upgraded client to the hub.
func (h *Hub) Register(client *wsClient) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *wsClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) Join(client *wsClient, roomID string) {
	select {
	case h.join <- joinRequest{client: client, roomID: roomID}:
	case <-h.done:
	}
}

// Deliver queues a frame for everyone in the room.
func (h *Hub) Deliver(roomID string, payload []byte) {
	select {
	case h.broadcast <- roomMessage{roomID: roomID, payload: payload}:
	case <-h.done:
	}
}

func (h *Hub) Stop() {
	close(h.done)
}
