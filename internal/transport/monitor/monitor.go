// SPDX-License-Identifier: MIT

// Package monitor broadcasts beat, onset, and tempo events to any number
// of connected WebSocket clients — a debugging/visualization sideband
// distinct from the low-latency osc and midi control outputs.
package monitor

import (
	"net/http"
	"sync"

	applog "beatpulse/internal/log"

	"github.com/gorilla/websocket"
)

// EventKind labels the JSON event broadcast to monitor clients.
type EventKind string

const (
	EventBeat       EventKind = "beat"
	EventTempo      EventKind = "tempo"
	EventCandidates EventKind = "candidates"
)

// Candidate is one weighted BPM hypothesis from the tempo estimator's
// peak scan, surfaced for diagnostic monitoring.
type Candidate struct {
	BPM   float64 `json:"bpm"`
	Score float64 `json:"score"`
	Total float64 `json:"total"`
}

// Event is the JSON payload broadcast to every connected monitor client.
type Event struct {
	Kind       EventKind   `json:"kind"`
	OnsetTime  float64     `json:"onsetTime,omitempty"`
	BPM        float64     `json:"bpm,omitempty"`
	Confidence float64     `json:"confidence,omitempty"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

// Broadcaster runs a WebSocket server and fans out Events to every
// connected client, dropping events if the shared broadcast queue is full
// rather than blocking the publisher.
type Broadcaster struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan Event
	server    *http.Server
}

// NewBroadcaster starts an HTTP server on addr exposing a /ws endpoint
// and begins fanning out published events immediately.
func NewBroadcaster(addr string) *Broadcaster {
	b := &Broadcaster{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Event, 256),
	}
	b.start()
	return b
}

func (b *Broadcaster) start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWebSocket)

	b.server = &http.Server{Addr: b.addr, Handler: mux}

	go func() {
		applog.Infof("monitor: starting WebSocket server on %s", b.addr)
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.Errorf("monitor: server error: %v", err)
		}
	}()
	go b.handleBroadcasts()
}

func (b *Broadcaster) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Errorf("monitor: upgrade error: %v", err)
		return
	}

	b.clientsMu.Lock()
	b.clients[conn] = true
	count := len(b.clients)
	b.clientsMu.Unlock()
	applog.Infof("monitor: client connected, total: %d", count)

	go func() {
		_, _, err := conn.ReadMessage()
		if err != nil {
			b.clientsMu.Lock()
			delete(b.clients, conn)
			remaining := len(b.clients)
			b.clientsMu.Unlock()
			conn.Close()
			applog.Infof("monitor: client disconnected, total: %d", remaining)
		}
	}()
}

func (b *Broadcaster) handleBroadcasts() {
	for event := range b.broadcast {
		b.clientsMu.Lock()
		for client := range b.clients {
			if err := client.WriteJSON(event); err != nil {
				applog.Errorf("monitor: error sending to client: %v", err)
				client.Close()
				delete(b.clients, client)
			}
		}
		b.clientsMu.Unlock()
	}
}

// Publish queues event for broadcast, dropping it if the queue is full.
func (b *Broadcaster) Publish(event Event) error {
	select {
	case b.broadcast <- event:
	default:
	}
	return nil
}

// Close shuts down the WebSocket server and disconnects every client.
func (b *Broadcaster) Close() error {
	applog.Infof("monitor: closing server")

	b.clientsMu.Lock()
	for client := range b.clients {
		client.Close()
	}
	b.clients = make(map[*websocket.Conn]bool)
	b.clientsMu.Unlock()

	if b.server != nil {
		return b.server.Close()
	}
	return nil
}
