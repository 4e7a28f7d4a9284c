// Package livereload serves the LiveReload protocol to browsers: a websocket
// endpoint compatible with livereload.js, a server-sent events stream, and a
// small HTTP API for triggering reloads from scripts.
package livereload

import "time"

// EventType identifies what a hub event carries.
type EventType string

// Event types.
const (
	EventReload    EventType = "reload"
	EventHeartbeat EventType = "heartbeat"
)

// Event is broadcast by the hub to every connected client.
type Event struct {
	Type      EventType `json:"type"`
	Path      string    `json:"path,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewReloadEvent asks clients to reload path.
func NewReloadEvent(path string) Event {
	return Event{Type: EventReload, Path: path, Timestamp: time.Now()}
}

// NewHeartbeatEvent keeps idle connections alive.
func NewHeartbeatEvent() Event {
	return Event{Type: EventHeartbeat, Timestamp: time.Now()}
}

// protocolOfficial7 is the LiveReload protocol spoken by livereload.js.
const protocolOfficial7 = "http://livereload.com/protocols/official-7"

// serverName is announced in the hello handshake.
const serverName = "livewatch"

// clientMessage is anything a LiveReload client sends.
type clientMessage struct {
	Command   string   `json:"command"`
	Protocols []string `json:"protocols,omitempty"`
	URL       string   `json:"url,omitempty"`
}

type helloMessage struct {
	Command    string   `json:"command"`
	Protocols  []string `json:"protocols"`
	ServerName string   `json:"serverName"`
}

type reloadMessage struct {
	Command string `json:"command"`
	Path    string `json:"path"`
	LiveCSS bool   `json:"liveCSS"`
	LiveImg bool   `json:"liveImg"`
}

func newHello() helloMessage {
	return helloMessage{
		Command:    "hello",
		Protocols:  []string{protocolOfficial7},
		ServerName: serverName,
	}
}

func newReload(path string) reloadMessage {
	return reloadMessage{Command: "reload", Path: path, LiveCSS: true, LiveImg: true}
}
