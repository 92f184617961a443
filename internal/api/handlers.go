// Package api exposes the HTTP surface of the bringit server: user and
// connection management, device tokens, tasks and image upload.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lodhi7862/bringit-app/internal/push"
	"github.com/lodhi7862/bringit-app/internal/store"
	"github.com/lodhi7862/bringit-app/model"
	"github.com/lodhi7862/bringit-app/protocol"
)

// Dispatcher is the real-time delivery collaborator.
// Defined at the consumer side per Go conventions.
type Dispatcher interface {
	SendToUser(userID string, ev protocol.Event) bool
	SendToUsers(userIDs []string, ev protocol.Event) (sent, failed int)
}

// Handlers carries the collaborators of the HTTP surface.
type Handlers struct {
	store    store.Store
	dispatch Dispatcher
	notifier push.Notifier
	uploads  Uploads
	validate *validator.Validate
	log      *slog.Logger
}

// NewHandlers wires the HTTP handlers.
func NewHandlers(st store.Store, dispatch Dispatcher, notifier push.Notifier, uploads Uploads, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{
		store:    st,
		dispatch: dispatch,
		notifier: notifier,
		uploads:  uploads,
		validate: validator.New(),
		log:      log.With("component", "api"),
	}
}

// decodeAndValidate reads the JSON body into dst and applies the struct's
// validation tags. Responds 400 and returns false on any violation.
func (h *Handlers) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		respondError(w, r, http.StatusBadRequest, "Missing required fields")
		return false
	}
	return true
}

// --- Users ---

type registerUserRequest struct {
	ID        string `json:"id"        validate:"required"`
	Name      string `json:"name"      validate:"required"`
	Role      string `json:"role"      validate:"required,oneof=parent child"`
	AvatarSVG string `json:"avatarSvg"`
}

// RegisterUser handles POST /api/app-users. Called when a profile is
// created or edited; upserts by id.
func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	u := &model.AppUser{
		ID:        req.ID,
		Name:      req.Name,
		Role:      model.Role(req.Role),
		AvatarSVG: req.AvatarSVG,
	}
	if err := h.store.UpsertUser(u); err != nil {
		respondStoreError(w, r, err, "User not found")
		return
	}

	h.log.Info("user registered", "user_id", u.ID, "role", u.Role)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetUser handles GET /api/app-users/{id}. Used to validate a user code
// before sending a connection request.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.store.GetUser(chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, r, err, "User not found")
		return
	}
	respondJSON(w, http.StatusOK, u)
}

// --- Connection requests ---

type connectionRequestRequest struct {
	FromUserID     string `json:"fromUserId"     validate:"required"`
	FromUserName   string `json:"fromUserName"   validate:"required"`
	FromUserRole   string `json:"fromUserRole"   validate:"required,oneof=parent child"`
	FromUserAvatar string `json:"fromUserAvatar"`
	ToUserID       string `json:"toUserId"       validate:"required"`
}

// CreateConnectionRequest handles POST /api/connection-requests.
func (h *Handlers) CreateConnectionRequest(w http.ResponseWriter, r *http.Request) {
	var req connectionRequestRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	target, err := h.store.GetUser(req.ToUserID)
	if err != nil {
		respondStoreError(w, r, err, "User code not found. Please check and try again.")
		return
	}

	pending, err := h.store.HasPendingRequest(req.FromUserID, req.ToUserID)
	if err != nil {
		respondStoreError(w, r, err, "")
		return
	}
	if pending {
		respondError(w, r, http.StatusConflict, "Request already sent")
		return
	}

	connected, err := h.store.AreConnected(req.FromUserID, req.ToUserID)
	if err != nil {
		respondStoreError(w, r, err, "")
		return
	}
	if connected {
		respondError(w, r, http.StatusConflict, "Already connected to this user")
		return
	}

	cr := &model.ConnectionRequest{
		FromUserID:     req.FromUserID,
		FromUserName:   req.FromUserName,
		FromUserRole:   model.Role(req.FromUserRole),
		FromUserAvatar: req.FromUserAvatar,
		ToUserID:       req.ToUserID,
	}
	if err := h.store.CreateConnectionRequest(cr); err != nil {
		respondStoreError(w, r, err, "")
		return
	}

	h.log.Info("connection request created", "from", cr.FromUserID, "to", cr.ToUserID)
	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"request":    cr,
		"targetUser": target,
	})
}

// IncomingRequests handles GET /api/connection-requests/incoming/{userId}.
func (h *Handlers) IncomingRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.store.ListIncomingRequests(chi.URLParam(r, "userId"))
	if err != nil {
		respondStoreError(w, r, err, "")
		return
	}
	if requests == nil {
		requests = []model.ConnectionRequest{}
	}
	respondJSON(w, http.StatusOK, requests)
}

// OutgoingRequests handles GET /api/connection-requests/outgoing/{userId}.
// Each request is enriched with the target user's profile for display.
func (h *Handlers) OutgoingRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.store.ListOutgoingRequests(chi.URLParam(r, "userId"))
	if err != nil {
		respondStoreError(w, r, err, "")
		return
	}

	out := make([]model.OutgoingRequest, 0, len(requests))
	for _, req := range requests {
		enriched := model.OutgoingRequest{
			ConnectionRequest: req,
			ToUserName:        "Unknown",
			ToUserRole:        model.RoleChild,
		}
		if target, err := h.store.GetUser(req.ToUserID); err == nil {
			enriched.ToUserName = target.Name
			enriched.ToUserRole = target.Role
			enriched.ToUserAvatar = target.AvatarSVG
		}
		out = append(out, enriched)
	}
	respondJSON(w, http.StatusOK, out)
}

type actorRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// AcceptConnectionRequest handles POST /api/connection-requests/{id}/accept.
// Only the recipient may accept.
func (h *Handlers) AcceptConnectionRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveConnectionRequest(w, r, model.RequestAccepted)
}

// RejectConnectionRequest handles POST /api/connection-requests/{id}/reject.
func (h *Handlers) RejectConnectionRequest(w http.ResponseWriter, r *http.Request) {
	h.resolveConnectionRequest(w, r, model.RequestRejected)
}

func (h *Handlers) resolveConnectionRequest(w http.ResponseWriter, r *http.Request, status model.RequestStatus) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid request id")
		return
	}

	var req actorRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	cr, err := h.store.GetConnectionRequest(id)
	if err != nil {
		respondStoreError(w, r, err, "Request not found")
		return
	}
	if cr.ToUserID != req.UserID {
		respondError(w, r, http.StatusForbidden, "Not authorized to update this request")
		return
	}

	if err := h.store.UpdateConnectionRequestStatus(id, status); err != nil {
		respondStoreError(w, r, err, "Request not found")
		return
	}

	h.log.Info("connection request resolved", "request_id", id, "status", status)

	if status != model.RequestAccepted {
		respondJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	// Both profiles go back so each side can show the new family member.
	fromUser, _ := h.store.GetUser(cr.FromUserID)
	toUser, _ := h.store.GetUser(cr.ToUserID)
	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"fromUser": fromUser,
		"toUser":   toUser,
	})
}

// --- Connections ---

// ListConnections handles GET /api/connections/{userId}: accepted
// connections resolved to the other side's profile.
func (h *Handlers) ListConnections(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	accepted, err := h.store.ListAcceptedConnections(userID)
	if err != nil {
		respondStoreError(w, r, err, "")
		return
	}

	members := make([]model.FamilyMember, 0, len(accepted))
	for _, cr := range accepted {
		otherID := cr.FromUserID
		if otherID == userID {
			otherID = cr.ToUserID
		}
		other, err := h.store.GetUser(otherID)
		if err != nil {
			continue
		}
		members = append(members, model.FamilyMember{
			ID:          strconv.FormatInt(cr.ID, 10),
			UserID:      other.ID,
			Name:        other.Name,
			Role:        other.Role,
			AvatarSVG:   other.AvatarSVG,
			ConnectedAt: cr.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, members)
}

// DeleteConnection handles DELETE /api/connections/{id}. Either participant
// may remove the connection.
func (h *Handlers) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid connection id")
		return
	}

	var req actorRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	cr, err := h.store.GetConnectionRequest(id)
	if err != nil {
		respondStoreError(w, r, err, "Connection not found")
		return
	}
	if cr.FromUserID != req.UserID && cr.ToUserID != req.UserID {
		respondError(w, r, http.StatusForbidden, "Not authorized to delete this connection")
		return
	}

	if err := h.store.DeleteConnectionRequest(id); err != nil {
		respondStoreError(w, r, err, "Connection not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- Device tokens ---

type deviceTokenRequest struct {
	UserID   string `json:"userId"   validate:"required"`
	Token    string `json:"token"    validate:"required"`
	Platform string `json:"platform" validate:"required"`
}

// RegisterDeviceToken handles POST /api/device-tokens.
func (h *Handlers) RegisterDeviceToken(w http.ResponseWriter, r *http.Request) {
	var req deviceTokenRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	t := &model.DeviceToken{UserID: req.UserID, Token: req.Token, Platform: req.Platform}
	if err := h.store.UpsertDeviceToken(t); err != nil {
		respondStoreError(w, r, err, "")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type removeTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// RemoveDeviceToken handles DELETE /api/device-tokens.
func (h *Handlers) RemoveDeviceToken(w http.ResponseWriter, r *http.Request) {
	var req removeTokenRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.store.DeleteDeviceToken(req.Token); err != nil {
		respondStoreError(w, r, err, "")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- Family connections ---

type familyConnectionRequest struct {
	ParentID  string `json:"parentId"  validate:"required"`
	ChildID   string `json:"childId"   validate:"required"`
	ChildName string `json:"childName" validate:"required"`
}

// CreateFamilyConnection handles POST /api/family-connections (QR link
// flow). Idempotent on (parent, child).
func (h *Handlers) CreateFamilyConnection(w http.ResponseWriter, r *http.Request) {
	var req familyConnectionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	c := &model.FamilyConnection{ParentID: req.ParentID, ChildID: req.ChildID, ChildName: req.ChildName}
	if err := h.store.CreateFamilyConnection(c); err != nil {
		respondStoreError(w, r, err, "")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ListFamilyConnections handles GET /api/family-connections/{parentId}.
func (h *Handlers) ListFamilyConnections(w http.ResponseWriter, r *http.Request) {
	connections, err := h.store.ListFamilyConnections(chi.URLParam(r, "parentId"))
	if err != nil {
		respondStoreError(w, r, err, "")
		return
	}
	if connections == nil {
		connections = []model.FamilyConnection{}
	}
	respondJSON(w, http.StatusOK, connections)
}
