// Package push sends best-effort push notifications to users' devices.
//
// Push is the compensation channel for the real-time layer: it is invoked
// after every task create/complete regardless of WebSocket delivery, so a
// user who missed the live event still hears about it. Failures are
// reported, never propagated — the durable task record is the source of
// truth either way.
package push

import "context"

// Result is the outcome of a single-user send.
type Result struct {
	Success bool
	Err     string
}

// Notifier delivers a notification to every device of a user.
type Notifier interface {
	Send(ctx context.Context, userID, title, body string, data map[string]string) Result
	SendToUsers(ctx context.Context, userIDs []string, title, body string, data map[string]string) (sent, failed int)
}

// Disabled is the Notifier used when push is not configured. Every send
// reports failure so callers can count misses, but nothing is attempted.
type Disabled struct{}

func (Disabled) Send(context.Context, string, string, string, map[string]string) Result {
	return Result{Success: false, Err: "push not configured"}
}

func (Disabled) SendToUsers(_ context.Context, userIDs []string, _, _ string, _ map[string]string) (int, int) {
	return 0, len(userIDs)
}
