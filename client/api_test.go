package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodhi7862/bringit-app/model"
)

func TestAPI_CreateTaskDecodesTask(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/tasks", r.URL.Path)

		var req CreateTaskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Milk", req.ItemName)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(model.Task{ID: 42, ItemName: req.ItemName, Status: model.TaskPending})
	}))
	t.Cleanup(srv.Close)

	api := NewAPI(srv.URL)
	task, err := api.CreateTask(context.Background(), CreateTaskRequest{
		ItemID: "i1", ItemName: "Milk", Quantity: 1,
		AssignedToID: "c", AssignedToName: "Ben",
		AssignedByID: "p", AssignedByName: "Ada",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), task.ID)
}

func TestAPI_SurfacesServerErrorMessage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Request already sent"})
	}))
	t.Cleanup(srv.Close)

	api := NewAPI(srv.URL)
	_, err := api.SendConnectionRequest(context.Background(), model.AppUser{ID: "u1", Name: "Ada", Role: model.RoleParent}, "u2")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "Request already sent", apiErr.Message)
}

func TestAPI_CompleteTaskHitsPatchRoute(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/api/tasks/7/complete", r.URL.Path)
		_ = json.NewEncoder(w).Encode(model.Task{ID: 7, Status: model.TaskCompleted})
	}))
	t.Cleanup(srv.Close)

	api := NewAPI(srv.URL)
	task, err := api.CompleteTask(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, task.Completed())
}

func TestAPI_TasksForUserEmptyList(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tasks/u1", r.URL.Path)
		_, _ = w.Write([]byte("[]"))
	}))
	t.Cleanup(srv.Close)

	api := NewAPI(srv.URL)
	tasks, err := api.TasksForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
