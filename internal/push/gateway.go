package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lodhi7862/bringit-app/model"
)

// TokenSource resolves the registered device tokens of a user.
// Satisfied by the store.
type TokenSource interface {
	ListDeviceTokens(userID string) ([]model.DeviceToken, error)
}

// gatewayMessage is one notification in the Expo push API shape.
type gatewayMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Sound string            `json:"sound"`
	Data  map[string]string `json:"data,omitempty"`
}

// GatewaySender posts notifications to an Expo-compatible push gateway,
// one message per registered device token.
type GatewaySender struct {
	endpoint string
	token    string
	tokens   TokenSource
	client   *http.Client
	log      *slog.Logger
}

// NewGatewaySender creates a sender for the given gateway endpoint. The
// auth token is optional; when set it is passed as a bearer token.
func NewGatewaySender(endpoint, token string, tokens TokenSource, log *slog.Logger) *GatewaySender {
	if log == nil {
		log = slog.Default()
	}
	return &GatewaySender{
		endpoint: endpoint,
		token:    token,
		tokens:   tokens,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log.With("component", "push"),
	}
}

// Send delivers a notification to every device of the user. A user without
// registered tokens, or a gateway error, yields a failed Result — never an
// error.
func (g *GatewaySender) Send(ctx context.Context, userID, title, body string, data map[string]string) Result {
	tokens, err := g.tokens.ListDeviceTokens(userID)
	if err != nil {
		g.log.Error("listing device tokens failed", "user_id", userID, "error", err)
		return Result{Err: fmt.Sprintf("listing device tokens: %v", err)}
	}
	if len(tokens) == 0 {
		return Result{Err: "no device tokens found"}
	}

	messages := make([]gatewayMessage, 0, len(tokens))
	for _, t := range tokens {
		messages = append(messages, gatewayMessage{
			To:    t.Token,
			Title: title,
			Body:  body,
			Sound: "default",
			Data:  data,
		})
	}

	if err := g.post(ctx, messages); err != nil {
		g.log.Warn("push gateway request failed", "user_id", userID, "error", err)
		return Result{Err: err.Error()}
	}

	g.log.Info("push notification sent", "user_id", userID, "devices", len(messages))
	return Result{Success: true}
}

// SendToUsers applies Send to each user independently and reports counts;
// partial failure is expected.
func (g *GatewaySender) SendToUsers(ctx context.Context, userIDs []string, title, body string, data map[string]string) (sent, failed int) {
	for _, userID := range userIDs {
		if g.Send(ctx, userID, title, body, data).Success {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}

func (g *GatewaySender) post(ctx context.Context, messages []gatewayMessage) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encoding push messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to push gateway: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
