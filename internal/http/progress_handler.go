package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stepherg/gestaltmgr"
)

// ProgressEvent is one stage checkpoint delivered over the progress stream.
type ProgressEvent struct {
	Stage      string    `json:"stage"`
	Label      string    `json:"label"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Hub fans stage checkpoints out to connected websocket clients. Slow
// clients drop events rather than blocking the pipeline.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan ProgressEvent
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan ProgressEvent)}
}

// Broadcast implements gestaltmgr.ProgressFunc.
func (h *Hub) Broadcast(stage gestaltmgr.Stage, label string) {
	evt := ProgressEvent{Stage: stage.String(), Label: label, OccurredAt: time.Now()}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (h *Hub) add(conn *websocket.Conn) chan ProgressEvent {
	ch := make(chan ProgressEvent, 16)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	ch, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(ch)
	}
	h.mu.Unlock()
}

// ProgressHandler upgrades the connection and streams stage checkpoints as
// JSON events until the client disconnects.
func ProgressHandler(hub *Hub) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true }, // local tool
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ch := hub.add(conn)
		defer func() {
			hub.remove(conn)
			_ = conn.Close()
		}()

		// drain reads so close frames are processed
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					hub.remove(conn)
					return
				}
			}
		}()

		for evt := range ch {
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}
