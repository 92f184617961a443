package store

import (
	"errors"

	"github.com/lodhi7862/bringit-app/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface for the bringit server.
// Defined at the consumer side per Go conventions.
type Store interface {
	// Users
	UpsertUser(u *model.AppUser) error
	GetUser(id string) (*model.AppUser, error)

	// Connection requests
	CreateConnectionRequest(r *model.ConnectionRequest) error
	GetConnectionRequest(id int64) (*model.ConnectionRequest, error)
	ListIncomingRequests(userID string) ([]model.ConnectionRequest, error)
	ListOutgoingRequests(userID string) ([]model.ConnectionRequest, error)
	UpdateConnectionRequestStatus(id int64, status model.RequestStatus) error
	DeleteConnectionRequest(id int64) error
	HasPendingRequest(fromUserID, toUserID string) (bool, error)
	AreConnected(userA, userB string) (bool, error)
	ListAcceptedConnections(userID string) ([]model.ConnectionRequest, error)

	// Device tokens
	UpsertDeviceToken(t *model.DeviceToken) error
	DeleteDeviceToken(token string) error
	ListDeviceTokens(userID string) ([]model.DeviceToken, error)

	// Family connections
	CreateFamilyConnection(c *model.FamilyConnection) error
	ListFamilyConnections(parentID string) ([]model.FamilyConnection, error)

	// Tasks
	CreateTask(t *model.Task) error
	GetTask(id int64) (*model.Task, error)
	ListTasksForUser(userID string) ([]model.Task, error)
	CompleteTask(id int64) (*model.Task, error)

	// Maintenance
	Close() error
}
