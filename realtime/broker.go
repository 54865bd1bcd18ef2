// Package realtime pushes training events to browsers over SSE and websockets.
package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"sales-forecast/auth"
)

// subscriber is one connected client; tenantID scopes which events it receives
type subscriber struct {
	tenantID string
	ch       chan []byte
}

type message struct {
	tenantID string // empty = every tenant
	data     []byte
}

// Broker fans events out to SSE and websocket clients of the matching tenant
type Broker struct {
	clients    map[*subscriber]bool
	register   chan *subscriber
	unregister chan *subscriber
	broadcast  chan message
	done       chan struct{}
	mu         sync.RWMutex
}

// NewBroker creates a new broker; call Run before serving clients
func NewBroker() *Broker {
	return &Broker{
		clients:    make(map[*subscriber]bool),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		broadcast:  make(chan message, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the broker loop and returns after Stop
func (b *Broker) Run() {
	for {
		select {
		case <-b.done:
			b.mu.Lock()
			for client := range b.clients {
				delete(b.clients, client)
				close(client.ch)
			}
			b.mu.Unlock()
			return

		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			total := len(b.clients)
			b.mu.Unlock()
			log.Printf("📡 Event client connected (tenant %s). Total: %d", client.tenantID, total)

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client.ch)
				log.Printf("📡 Event client disconnected (tenant %s). Total: %d", client.tenantID, len(b.clients))
			}
			b.mu.Unlock()

		case msg := <-b.broadcast:
			b.mu.RLock()
			for client := range b.clients {
				if msg.tenantID != "" && client.tenantID != msg.tenantID {
					continue
				}
				select {
				case client.ch <- msg.data:
				default:
					// Slow client, drop the event
				}
			}
			b.mu.RUnlock()
		}
	}
}

// Stop ends Run and closes every client
func (b *Broker) Stop() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}

// ClientCount is the number of connected clients
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// subscribe registers a client, or returns nil once the broker stopped
func (b *Broker) subscribe(tenantID string) *subscriber {
	client := &subscriber{tenantID: tenantID, ch: make(chan []byte, 16)}
	select {
	case b.register <- client:
		return client
	case <-b.done:
		return nil
	}
}

func (b *Broker) unsubscribe(client *subscriber) {
	select {
	case b.unregister <- client:
	case <-b.done:
	}
}

// ServeHTTP streams the caller's tenant events as Server-Sent Events
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := b.subscribe(id.TenantID)
	if client == nil {
		return
	}
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			b.unsubscribe(client)
			return
		case msg, open := <-client.ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// Broadcast sends an event to the clients of tenantID (every client when empty)
func (b *Broker) Broadcast(tenantID, event string, payload interface{}) {
	data := map[string]interface{}{
		"event":   event,
		"payload": payload,
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		log.Printf("⚠️  Error marshalling broadcast message: %v", err)
		return
	}

	select {
	case b.broadcast <- message{tenantID: tenantID, data: jsonBytes}:
	default:
		log.Printf("⚠️  Event buffer full, dropping %s for tenant %s", event, tenantID)
	}
}
