package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lodhi7862/bringit-app/model"
	"github.com/lodhi7862/bringit-app/protocol"
)

type createTaskRequest struct {
	ItemID         string `json:"itemId"         validate:"required"`
	ItemName       string `json:"itemName"`
	Quantity       int    `json:"quantity"       validate:"gte=0"`
	Note           string `json:"note"`
	AssignedToID   string `json:"assignedToId"   validate:"required"`
	AssignedToName string `json:"assignedToName" validate:"required"`
	AssignedByID   string `json:"assignedById"   validate:"required"`
	AssignedByName string `json:"assignedByName" validate:"required"`
}

// CreateTask handles POST /api/tasks. The task is persisted first; only
// then is real-time delivery attempted and the push fallback issued, so
// every delivered event corresponds to a persisted fact.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	task := &model.Task{
		ItemID:         req.ItemID,
		ItemName:       req.ItemName,
		Quantity:       req.Quantity,
		Note:           req.Note,
		AssignedToID:   req.AssignedToID,
		AssignedToName: req.AssignedToName,
		AssignedByID:   req.AssignedByID,
		AssignedByName: req.AssignedByName,
	}
	if err := h.store.CreateTask(task); err != nil {
		respondStoreError(w, r, err, "")
		return
	}

	h.log.Info("task created",
		"task_id", task.ID,
		"assigned_to", task.AssignedToID,
		"assigned_by", task.AssignedByID)

	message := fmt.Sprintf("New task from %s: %s", task.AssignedByName, task.DisplayName())
	delivered := h.dispatch.SendToUser(task.AssignedToID, protocol.NewTask(*task, message))

	// Push is the compensation channel; it goes out regardless of the
	// real-time outcome.
	h.notifier.Send(r.Context(), task.AssignedToID,
		fmt.Sprintf("New task from %s", task.AssignedByName),
		task.DisplayName(),
		map[string]string{
			"taskId": strconv.FormatInt(task.ID, 10),
			"type":   string(protocol.EventNewTask),
		})

	if !delivered {
		h.log.Info("assignee offline, push fallback only", "task_id", task.ID, "user_id", task.AssignedToID)
	}

	respondJSON(w, http.StatusOK, task)
}

// ListTasks handles GET /api/tasks/{userId}: every task the user assigned
// or was assigned.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.ListTasksForUser(chi.URLParam(r, "userId"))
	if err != nil {
		respondStoreError(w, r, err, "")
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	respondJSON(w, http.StatusOK, tasks)
}

// CompleteTask handles PATCH /api/tasks/{id}/complete. The completion is
// persisted, then the assigner is notified over both channels.
func (h *Handlers) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "Invalid task id")
		return
	}

	task, err := h.store.CompleteTask(id)
	if err != nil {
		respondStoreError(w, r, err, "Task not found")
		return
	}

	h.log.Info("task completed", "task_id", task.ID, "assigned_by", task.AssignedByID)

	message := fmt.Sprintf("%s completed: %s", task.AssignedToName, task.DisplayName())
	h.dispatch.SendToUser(task.AssignedByID, protocol.TaskCompleted(*task, message))

	h.notifier.Send(r.Context(), task.AssignedByID,
		fmt.Sprintf("Task completed by %s", task.AssignedToName),
		fmt.Sprintf("%s has been completed", task.DisplayName()),
		map[string]string{
			"taskId": strconv.FormatInt(task.ID, 10),
			"type":   string(protocol.EventTaskCompleted),
		})

	respondJSON(w, http.StatusOK, task)
}

type sendNotificationRequest struct {
	ParentID string            `json:"parentId" validate:"required"`
	Title    string            `json:"title"    validate:"required"`
	Body     string            `json:"body"     validate:"required"`
	Data     map[string]string `json:"data"`
}

// SendNotification handles POST /api/notifications/send: a generic message
// to every connected family member, over both channels, with per-channel
// delivery counts in the response.
func (h *Handlers) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req sendNotificationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	accepted, err := h.store.ListAcceptedConnections(req.ParentID)
	if err != nil {
		respondStoreError(w, r, err, "")
		return
	}
	if len(accepted) == 0 {
		respondJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "No family members to notify",
		})
		return
	}

	memberIDs := make([]string, 0, len(accepted))
	for _, cr := range accepted {
		if cr.FromUserID == req.ParentID {
			memberIDs = append(memberIDs, cr.ToUserID)
		} else {
			memberIDs = append(memberIDs, cr.FromUserID)
		}
	}

	pushSent, pushFailed := h.notifier.SendToUsers(r.Context(), memberIDs, req.Title, req.Body, req.Data)
	wsSent, wsFailed := h.dispatch.SendToUsers(memberIDs, protocol.Notification(req.Title, req.Body, req.Data))

	h.log.Info("family notification sent",
		"parent_id", req.ParentID,
		"recipients", len(memberIDs),
		"push_sent", pushSent,
		"ws_sent", wsSent)

	respondJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"pushNotifications": map[string]int{"sent": pushSent, "failed": pushFailed},
		"websocket":         map[string]int{"sent": wsSent, "failed": wsFailed},
	})
}
