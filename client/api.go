package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lodhi7862/bringit-app/model"
)

// APIError carries the status code and server-reported message of a failed
// request.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// API is an HTTP client for the bringit REST surface.
type API struct {
	baseURL string
	http    *http.Client
}

// NewAPI creates a client for the given server address.
func NewAPI(baseURL string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// RegisterUser creates or updates a profile.
func (a *API) RegisterUser(ctx context.Context, u model.AppUser) error {
	return a.do(ctx, http.MethodPost, "/api/app-users", u, nil)
}

// GetUser fetches a profile by its user code.
func (a *API) GetUser(ctx context.Context, id string) (model.AppUser, error) {
	var u model.AppUser
	err := a.do(ctx, http.MethodGet, "/api/app-users/"+id, nil, &u)
	return u, err
}

// CreateTaskRequest are the fields of a new task assignment.
type CreateTaskRequest struct {
	ItemID         string `json:"itemId"`
	ItemName       string `json:"itemName"`
	Quantity       int    `json:"quantity"`
	Note           string `json:"note,omitempty"`
	AssignedToID   string `json:"assignedToId"`
	AssignedToName string `json:"assignedToName"`
	AssignedByID   string `json:"assignedById"`
	AssignedByName string `json:"assignedByName"`
}

// CreateTask assigns a task.
func (a *API) CreateTask(ctx context.Context, req CreateTaskRequest) (model.Task, error) {
	var t model.Task
	err := a.do(ctx, http.MethodPost, "/api/tasks", req, &t)
	return t, err
}

// TasksForUser fetches the authoritative task snapshot for the user: every
// task they assigned or were assigned. Feed the result to
// TaskMirror.Reconcile.
func (a *API) TasksForUser(ctx context.Context, userID string) ([]model.Task, error) {
	var tasks []model.Task
	err := a.do(ctx, http.MethodGet, "/api/tasks/"+userID, nil, &tasks)
	return tasks, err
}

// CompleteTask marks a task as done.
func (a *API) CompleteTask(ctx context.Context, id int64) (model.Task, error) {
	var t model.Task
	err := a.do(ctx, http.MethodPatch, fmt.Sprintf("/api/tasks/%d/complete", id), nil, &t)
	return t, err
}

// ConnectionRequestResult is the server's answer to a new connection
// request.
type ConnectionRequestResult struct {
	Success    bool                    `json:"success"`
	Request    model.ConnectionRequest `json:"request"`
	TargetUser model.AppUser           `json:"targetUser"`
}

// SendConnectionRequest asks another user, identified by their code, to
// connect.
func (a *API) SendConnectionRequest(ctx context.Context, from model.AppUser, toUserID string) (ConnectionRequestResult, error) {
	payload := map[string]string{
		"fromUserId":     from.ID,
		"fromUserName":   from.Name,
		"fromUserRole":   string(from.Role),
		"fromUserAvatar": from.AvatarSVG,
		"toUserId":       toUserID,
	}
	var res ConnectionRequestResult
	err := a.do(ctx, http.MethodPost, "/api/connection-requests", payload, &res)
	return res, err
}

// IncomingRequests lists pending requests addressed to the user.
func (a *API) IncomingRequests(ctx context.Context, userID string) ([]model.ConnectionRequest, error) {
	var out []model.ConnectionRequest
	err := a.do(ctx, http.MethodGet, "/api/connection-requests/incoming/"+userID, nil, &out)
	return out, err
}

// OutgoingRequests lists pending requests the user has sent.
func (a *API) OutgoingRequests(ctx context.Context, userID string) ([]model.OutgoingRequest, error) {
	var out []model.OutgoingRequest
	err := a.do(ctx, http.MethodGet, "/api/connection-requests/outgoing/"+userID, nil, &out)
	return out, err
}

// AcceptResult is the server's answer to an accepted request: both
// profiles, so each side can render its new family member.
type AcceptResult struct {
	Success  bool          `json:"success"`
	FromUser model.AppUser `json:"fromUser"`
	ToUser   model.AppUser `json:"toUser"`
}

// AcceptConnectionRequest accepts a request addressed to actorID.
func (a *API) AcceptConnectionRequest(ctx context.Context, requestID int64, actorID string) (AcceptResult, error) {
	var res AcceptResult
	err := a.do(ctx, http.MethodPost,
		fmt.Sprintf("/api/connection-requests/%d/accept", requestID),
		map[string]string{"userId": actorID}, &res)
	return res, err
}

// RejectConnectionRequest rejects a request addressed to actorID.
func (a *API) RejectConnectionRequest(ctx context.Context, requestID int64, actorID string) error {
	return a.do(ctx, http.MethodPost,
		fmt.Sprintf("/api/connection-requests/%d/reject", requestID),
		map[string]string{"userId": actorID}, nil)
}

// Connections lists the user's accepted connections as resolved family
// members.
func (a *API) Connections(ctx context.Context, userID string) ([]model.FamilyMember, error) {
	var out []model.FamilyMember
	err := a.do(ctx, http.MethodGet, "/api/connections/"+userID, nil, &out)
	return out, err
}

// DeleteConnection removes a connection; actorID must be a participant.
func (a *API) DeleteConnection(ctx context.Context, connectionID, actorID string) error {
	return a.do(ctx, http.MethodDelete, "/api/connections/"+connectionID,
		map[string]string{"userId": actorID}, nil)
}

// RegisterDeviceToken binds a push token to the user.
func (a *API) RegisterDeviceToken(ctx context.Context, userID, token, platform string) error {
	return a.do(ctx, http.MethodPost, "/api/device-tokens",
		map[string]string{"userId": userID, "token": token, "platform": platform}, nil)
}

// RemoveDeviceToken unbinds a push token, typically on sign-out.
func (a *API) RemoveDeviceToken(ctx context.Context, token string) error {
	return a.do(ctx, http.MethodDelete, "/api/device-tokens",
		map[string]string{"token": token}, nil)
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		if envelope.Error == "" {
			envelope.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
