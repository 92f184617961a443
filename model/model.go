// Package model defines the entities shared by the server, the wire
// protocol and the client library. JSON field names follow the HTTP API.
package model

import "time"

// Role distinguishes the two kinds of family members.
type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

// AppUser is a registered family member, identified by an opaque
// client-generated code.
type AppUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	AvatarSVG string    `json:"avatarSvg,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// RequestStatus is the lifecycle state of a connection request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// ConnectionRequest links two users once accepted. The sender's profile is
// denormalized so the recipient can render the request without extra lookups.
type ConnectionRequest struct {
	ID             int64         `json:"id"`
	FromUserID     string        `json:"fromUserId"`
	FromUserName   string        `json:"fromUserName"`
	FromUserRole   Role          `json:"fromUserRole"`
	FromUserAvatar string        `json:"fromUserAvatar,omitempty"`
	ToUserID       string        `json:"toUserId"`
	Status         RequestStatus `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// OutgoingRequest is a pending request enriched with the target user's
// profile, for the sender's outgoing-requests view.
type OutgoingRequest struct {
	ConnectionRequest
	ToUserName   string `json:"toUserName"`
	ToUserRole   Role   `json:"toUserRole"`
	ToUserAvatar string `json:"toUserAvatar,omitempty"`
}

// FamilyMember is an accepted connection resolved to the other user's
// profile, as returned by the connections listing.
type FamilyMember struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Role        Role      `json:"role"`
	AvatarSVG   string    `json:"avatarSvg,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// FamilyConnection is the parent→child quick link created by the QR flow.
type FamilyConnection struct {
	ID        int64     `json:"id"`
	ParentID  string    `json:"parentId"`
	ChildID   string    `json:"childId"`
	ChildName string    `json:"childName"`
	CreatedAt time.Time `json:"createdAt"`
}

// DeviceToken maps a push token to the user currently signed in on that
// device. Tokens are unique; re-registering moves the token to the new user.
type DeviceToken struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TaskStatus is the lifecycle state of a task. Completed is terminal.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

// Task is an assignment from a parent to a child. The server's copy is the
// source of truth; clients mirror it. CompletedAt is set exactly when the
// status is completed.
type Task struct {
	ID             int64      `json:"id"`
	ItemID         string     `json:"itemId"`
	ItemName       string     `json:"itemName,omitempty"`
	Quantity       int        `json:"quantity"`
	Note           string     `json:"note,omitempty"`
	AssignedToID   string     `json:"assignedToId"`
	AssignedToName string     `json:"assignedToName"`
	AssignedByID   string     `json:"assignedById"`
	AssignedByName string     `json:"assignedByName"`
	Status         TaskStatus `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// Completed reports whether the task has reached its terminal state.
func (t Task) Completed() bool {
	return t.Status == TaskCompleted
}

// DisplayName returns the item name, or a generic label when the item was
// created without one.
func (t Task) DisplayName() string {
	if t.ItemName != "" {
		return t.ItemName
	}
	return "Task"
}
