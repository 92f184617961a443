// Package protocol defines the JSON frames exchanged over the WebSocket
// channel between the server and connected clients.
//
// The server emits connected, new_task, task_completed, notification and
// pong frames; clients emit ping. Frames are single JSON text messages.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lodhi7862/bringit-app/model"
)

// EventType identifies the kind of frame.
type EventType string

const (
	EventConnected     EventType = "connected"
	EventNewTask       EventType = "new_task"
	EventTaskCompleted EventType = "task_completed"
	EventNotification  EventType = "notification"
	EventPing          EventType = "ping"
	EventPong          EventType = "pong"
)

// Event is a wire frame. Only the fields relevant to the Type are set.
type Event struct {
	Type EventType `json:"type"`

	// connected
	UserID string `json:"userId,omitempty"`

	// new_task, task_completed
	Task    *model.Task `json:"task,omitempty"`
	Message string      `json:"message,omitempty"`

	// notification
	Title string            `json:"title,omitempty"`
	Body  string            `json:"body,omitempty"`
	Data  map[string]string `json:"data,omitempty"`

	// Set on every server-emitted event except connected/pong.
	Timestamp string `json:"timestamp,omitempty"`
}

// Connected is the first frame sent after a successful registration.
func Connected(userID string) Event {
	return Event{Type: EventConnected, UserID: userID}
}

// NewTask announces a freshly assigned task to its assignee.
func NewTask(t model.Task, message string) Event {
	return Event{
		Type:      EventNewTask,
		Task:      &t,
		Message:   message,
		Timestamp: now(),
	}
}

// TaskCompleted announces a completion to the user who assigned the task.
func TaskCompleted(t model.Task, message string) Event {
	return Event{
		Type:      EventTaskCompleted,
		Task:      &t,
		Message:   message,
		Timestamp: now(),
	}
}

// Notification is a generic user-visible message.
func Notification(title, body string, data map[string]string) Event {
	if data == nil {
		data = map[string]string{}
	}
	return Event{
		Type:      EventNotification,
		Title:     title,
		Body:      body,
		Data:      data,
		Timestamp: now(),
	}
}

// Ping is the client-emitted liveness frame.
func Ping() Event { return Event{Type: EventPing} }

// Pong answers a ping.
func Pong() Event { return Event{Type: EventPong} }

// Parse decodes a wire frame. Frames without a type are rejected so that
// arbitrary JSON objects are not silently dispatched as events.
func Parse(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("event without type")
	}
	return ev, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
