/*
Package events publishes chat server lifecycle events (joins, leaves, kicks, permission and
settings changes, shutdown) to external subscribers. Publishing is fire-and-forget: failures are
logged and never reach the chat core.
*/
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Type names one kind of lifecycle event. It is also the last token of the NATS subject.
type Type string

const (
	TypeJoin     Type = "join"
	TypeLeave    Type = "leave"
	TypeKick     Type = "kick"
	TypeLevel    Type = "level"
	TypeSettings Type = "settings"
	TypeStop     Type = "stop"
)

// Event is the JSON document sent for every lifecycle change.
type Event struct {
	Type      Type   `json:"type"`
	Username  string `json:"username,omitempty"`
	Actor     string `json:"actor,omitempty"`
	Text      string `json:"text,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// New returns an event stamped with the current time.
func New(t Type, username, actor, text string) Event {
	return Event{
		Type:      t,
		Username:  username,
		Actor:     actor,
		Text:      text,
		Timestamp: time.Now().Unix(),
	}
}

// Encode marshals the event as JSON.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(e Event)
	Close()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}
func (Nop) Close()        {}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)
}

func (r *Recorder) Close() {}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []Type {
	evs := r.Events()
	out := make([]Type, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}
