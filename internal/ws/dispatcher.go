package ws

import (
	"encoding/json"
	"log/slog"

	"github.com/lodhi7862/bringit-app/protocol"
)

// Dispatcher delivers events to connected users through the registry.
//
// Delivery is fire-and-forget: no queuing, no retries. Durability lives in
// the persisted record the event describes, and a missed delivery is
// compensated by the push-notification path or the client's next poll.
type Dispatcher struct {
	reg *Registry
	log *slog.Logger
}

// NewDispatcher creates a Dispatcher over the given registry.
func NewDispatcher(reg *Registry, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{reg: reg, log: log.With("component", "ws.dispatcher")}
}

// SendToUser attempts immediate delivery to every live connection of the
// user. Returns true when at least one connection received the event; false
// when the user is offline or every write failed. Never returns an error to
// the caller.
func (d *Dispatcher) SendToUser(userID string, ev protocol.Event) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		d.log.Error("failed to encode event", "type", ev.Type, "error", err)
		return false
	}
	return d.reg.send(userID, payload)
}

// SendToUsers applies SendToUser to each recipient independently. Partial
// failure is expected; the caller decides per-recipient compensation from
// the counts. sent+failed always equals len(userIDs).
func (d *Dispatcher) SendToUsers(userIDs []string, ev protocol.Event) (sent, failed int) {
	for _, userID := range userIDs {
		if d.SendToUser(userID, ev) {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}

// Broadcast sends the event to every registered connection. Used for
// operational signaling only, not for the task-assignment path.
func (d *Dispatcher) Broadcast(ev protocol.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		d.log.Error("failed to encode event", "type", ev.Type, "error", err)
		return
	}
	d.reg.broadcast(payload)
}
