package livereload

import (
	"context"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/listenupapp/livewatch/internal/id"
)

// ClientKind is the transport a client is connected through.
type ClientKind string

// Client kinds.
const (
	KindWebSocket ClientKind = "websocket"
	KindSSE       ClientKind = "sse"
)

// Client is a connected browser.
type Client struct {
	ConnectedAt time.Time
	Events      chan Event
	Done        chan struct{}
	ID          string
	Kind        ClientKind
}

// Hub tracks connected clients and fans events out to them.
type Hub struct {
	clients           map[string]*Client
	events            chan Event
	logger            *slog.Logger
	wg                sync.WaitGroup
	heartbeatInterval time.Duration
	mu                sync.RWMutex

	// Shutdown state - protected by shutdownMu
	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewHub creates a Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:           make(map[string]*Client),
		events:            make(chan Event, 256),
		logger:            logger,
		heartbeatInterval: 30 * time.Second,
	}
}

// Start launches the broadcast loop. It runs until ctx is cancelled or the
// hub is shut down.
func (h *Hub) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.run(ctx)
}

func (h *Hub) run(ctx context.Context) {
	defer h.wg.Done()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-h.events:
			if !ok {
				h.closeAllClients()
				return
			}
			h.broadcast(event)

		case <-heartbeat.C:
			h.broadcast(NewHeartbeatEvent())

		case <-ctx.Done():
			h.closeAllClients()
			return
		}
	}
}

// Shutdown stops accepting events, delivers what is queued, and disconnects
// every client.
func (h *Hub) Shutdown(ctx context.Context) error {
	// Close under the write lock so Emit never sends on a closed channel.
	h.shutdownMu.Lock()
	if h.shutdown {
		h.shutdownMu.Unlock()
		return nil
	}
	h.shutdown = true
	close(h.events)
	h.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		h.logger.Warn("live reload drain timeout, some events may be lost")
	}

	h.closeAllClients()
	return nil
}

// broadcast sends an event to every client without blocking on slow ones.
func (h *Hub) broadcast(event Event) {
	var delivered, dropped int

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.Events <- event:
			delivered++
		default:
			dropped++
			h.logger.Warn("dropped event for slow client",
				slog.String("client_id", client.ID),
				slog.String("event_type", string(event.Type)))
		}
	}

	if event.Type != EventHeartbeat {
		h.logger.Debug("event broadcast",
			slog.String("event_type", string(event.Type)),
			slog.String("path", event.Path),
			slog.Group("stats",
				slog.Int("delivered", delivered),
				slog.Int("dropped", dropped)))
	}
}

// Connect registers a client.
func (h *Hub) Connect(kind ClientKind) (*Client, error) {
	clientID, err := id.Generate(id.PrefixClient)
	if err != nil {
		return nil, err
	}

	client := &Client{
		ID:          clientID,
		Kind:        kind,
		Events:      make(chan Event, 64),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("live reload client connected",
		slog.String("client_id", clientID),
		slog.String("kind", string(kind)),
		slog.Int("total_clients", total))
	return client, nil
}

// Disconnect removes a client and closes its channels.
func (h *Hub) Disconnect(clientID string) {
	h.mu.Lock()
	client, ok := h.clients[clientID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, clientID)
	total := len(h.clients)
	h.mu.Unlock()

	close(client.Done)
	close(client.Events)

	h.logger.Debug("live reload client disconnected",
		slog.String("client_id", clientID),
		slog.Duration("duration", time.Since(client.ConnectedAt)),
		slog.Int("total_clients", total))
}

// Emit queues an event. It reports false when the hub is shut down or its
// queue is full.
func (h *Hub) Emit(event Event) bool {
	h.shutdownMu.RLock()
	defer h.shutdownMu.RUnlock()

	if h.shutdown {
		return false
	}

	select {
	case h.events <- event:
		return true
	default:
		h.logger.Error("live reload event queue full, dropping event",
			slog.String("event_type", string(event.Type)),
			slog.String("path", event.Path))
		return false
	}
}

// Clients returns an iterator over connected clients.
func (h *Hub) Clients() iter.Seq[*Client] {
	return func(yield func(*Client) bool) {
		h.mu.RLock()
		defer h.mu.RUnlock()

		for _, client := range h.clients {
			if !yield(client) {
				return
			}
		}
	}
}

// ClientIDs returns the ids of connected clients, sorted.
func (h *Hub) ClientIDs() []string {
	ids := make([]string, 0, h.ClientCount())
	for c := range h.Clients() {
		ids = append(ids, c.ID)
	}
	slices.Sort(ids)
	return ids
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.Done)
		close(client.Events)
	}
	h.clients = make(map[string]*Client)
}
