package models

import "time"

// EventType names a lifecycle transition published by the controller
type EventType string

const (
	EventCreated      EventType = "created"
	EventStarted      EventType = "started"
	EventItemStart    EventType = "itemStart"
	EventItemComplete EventType = "itemComplete"
	EventItemError    EventType = "itemError"
	EventPaused       EventType = "paused"
	EventStopped      EventType = "stopped"
	EventCompleted    EventType = "completed"
	EventReset        EventType = "reset"
)

// Event carries a snapshot of the job at the time of the transition.
// Item is set only for item events; Error only when a run halted on a fatal error.
type Event struct {
	Type  EventType `json:"type"`
	Job   *Job      `json:"job"`
	Item  *Item     `json:"item,omitempty"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}
